package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"school-notification-service/internal/domain"
	"school-notification-service/internal/ledger"
	"school-notification-service/internal/repository"
	"school-notification-service/internal/sender"

	"go.uber.org/zap"
)

// ConnectionCounter reports how many realtime connections are live
type ConnectionCounter interface {
	ClientCount() int
}

// Queue buffers delivery ids and drains them in fixed-size batches on a
// ticker. One batch runs at a time; if a batch is still settling when the
// next tick fires, that tick is skipped. Enqueueing the same id twice while
// it is waiting is a no-op.
type Queue struct {
	ledger    *ledger.Ledger
	notifs    repository.NotificationRepository
	directory repository.Directory
	senders   map[domain.Channel]sender.Sender
	conns     ConnectionCounter
	logger    *zap.Logger

	tick        time.Duration
	batchSize   int
	sendTimeout time.Duration

	mu     sync.Mutex
	jobs   []string
	queued map[string]struct{}

	processing atomic.Bool
	stopChan   chan struct{}
	stopOnce   sync.Once
}

// Stats is a point-in-time snapshot of the queue and the realtime gateway
type Stats struct {
	PendingCount       int  `json:"pendingCount"`
	IsProcessingBatch  bool `json:"isProcessingBatch"`
	ConnectedUserCount int  `json:"connectedUserCount"`
}

func New(
	ldg *ledger.Ledger,
	notifs repository.NotificationRepository,
	directory repository.Directory,
	senders []sender.Sender,
	conns ConnectionCounter,
	logger *zap.Logger,
	tick time.Duration,
	batchSize int,
	sendTimeout time.Duration,
) *Queue {
	byChannel := make(map[domain.Channel]sender.Sender, len(senders))
	for _, s := range senders {
		byChannel[s.Channel()] = s
	}
	return &Queue{
		ledger:      ldg,
		notifs:      notifs,
		directory:   directory,
		senders:     byChannel,
		conns:       conns,
		logger:      logger,
		tick:        tick,
		batchSize:   batchSize,
		sendTimeout: sendTimeout,
		queued:      make(map[string]struct{}),
		stopChan:    make(chan struct{}),
	}
}

// Enqueue adds one delivery id to the tail of the queue
func (q *Queue) Enqueue(deliveryID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.queued[deliveryID]; ok {
		return
	}
	q.queued[deliveryID] = struct{}{}
	q.jobs = append(q.jobs, deliveryID)
}

// EnqueueDeliveries adds a seeded batch in order
func (q *Queue) EnqueueDeliveries(ds []*domain.Delivery) {
	for _, d := range ds {
		q.Enqueue(d.ID)
	}
}

// Start runs the drain loop until the context is cancelled or Stop is called
func (q *Queue) Start(ctx context.Context) {
	q.logger.Info("Delivery queue started",
		zap.Duration("tick", q.tick),
		zap.Int("batch_size", q.batchSize))

	ticker := time.NewTicker(q.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			q.ProcessBatch(ctx)
		case <-q.stopChan:
			q.logger.Info("Delivery queue stopped")
			return
		case <-ctx.Done():
			q.logger.Info("Delivery queue stopped", zap.Error(ctx.Err()))
			return
		}
	}
}

func (q *Queue) Stop() {
	q.stopOnce.Do(func() { close(q.stopChan) })
}

// ProcessBatch drains up to batchSize jobs. All jobs in the batch run
// concurrently and the batch settles as a whole before the processing flag is
// released, so a slow sender delays the next tick but never its siblings.
// Returns immediately if a previous batch is still in flight.
func (q *Queue) ProcessBatch(ctx context.Context) {
	if !q.processing.CompareAndSwap(false, true) {
		return
	}
	defer q.processing.Store(false)

	batch := q.dequeueBatch()
	if len(batch) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, deliveryID := range batch {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			q.processJob(ctx, id)
		}(deliveryID)
	}
	wg.Wait()
}

func (q *Queue) dequeueBatch() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := q.batchSize
	if n > len(q.jobs) {
		n = len(q.jobs)
	}
	if n == 0 {
		return nil
	}

	batch := q.jobs[:n]
	q.jobs = append([]string(nil), q.jobs[n:]...)
	for _, id := range batch {
		delete(q.queued, id)
	}
	return batch
}

// processJob re-reads the delivery before attempting it so a row that settled
// while waiting in the queue is skipped rather than re-sent.
func (q *Queue) processJob(ctx context.Context, deliveryID string) {
	d, err := q.ledger.Delivery(ctx, deliveryID)
	if err != nil {
		q.logger.Error("Failed to load queued delivery",
			zap.String("delivery_id", deliveryID),
			zap.Error(err))
		return
	}
	if d.Status != domain.DeliveryPending {
		return
	}

	n, err := q.notifs.GetByID(ctx, d.NotificationID)
	if err != nil {
		q.markFailed(ctx, d, "notification lookup failed")
		return
	}
	if n.Expired(time.Now()) {
		q.markFailed(ctx, d, "notification expired before delivery")
		return
	}

	snd, ok := q.senders[d.Channel]
	if !ok {
		q.markFailed(ctx, d, "no sender registered for channel "+string(d.Channel))
		return
	}

	// Contact details are best effort; the sender decides whether a missing
	// directory record is fatal for its channel.
	user, err := q.directory.GetUser(ctx, d.UserID)
	if err != nil {
		user = nil
	}

	sendCtx, cancel := context.WithTimeout(ctx, q.sendTimeout)
	ok = snd.Send(sendCtx, &sender.Job{Delivery: d, Notification: n, User: user})
	cancel()

	if ok {
		if err := q.ledger.MarkDelivered(ctx, d.ID); err != nil {
			q.logger.Error("Failed to mark delivery as delivered",
				zap.String("delivery_id", d.ID),
				zap.Error(err))
		}
		return
	}
	q.markFailed(ctx, d, "send failed on channel "+string(d.Channel))
}

func (q *Queue) markFailed(ctx context.Context, d *domain.Delivery, reason string) {
	q.logger.Warn("Delivery failed",
		zap.String("delivery_id", d.ID),
		zap.String("channel", string(d.Channel)),
		zap.String("reason", reason))
	if err := q.ledger.MarkFailed(ctx, d.ID, reason); err != nil {
		q.logger.Error("Failed to mark delivery as failed",
			zap.String("delivery_id", d.ID),
			zap.Error(err))
	}
}

func (q *Queue) Stats() Stats {
	q.mu.Lock()
	length := len(q.jobs)
	q.mu.Unlock()
	return Stats{
		PendingCount:       length,
		IsProcessingBatch:  q.processing.Load(),
		ConnectedUserCount: q.conns.ClientCount(),
	}
}
