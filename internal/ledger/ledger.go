package ledger

import (
	"context"
	"time"

	"school-notification-service/internal/domain"
	"school-notification-service/internal/repository"
	"school-notification-service/pkg/xerrors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Ledger owns delivery rows and their state machine. Every state change for a
// delivery goes through here: the queue applies sender results, the gateway
// records read receipts, retries re-open FAILED rows. Rows are never deleted.
type Ledger struct {
	repo       repository.DeliveryRepository
	logger     *zap.Logger
	maxRetries int
}

func New(repo repository.DeliveryRepository, logger *zap.Logger, maxRetries int) *Ledger {
	return &Ledger{
		repo:       repo,
		logger:     logger,
		maxRetries: maxRetries,
	}
}

// Seed creates one PENDING row per (recipient, channel), atomically.
// Recipients and channels are deduplicated so a duplicate id in the resolver
// output can never yield a duplicate (user, channel) pair.
func (l *Ledger) Seed(ctx context.Context, notificationID string, recipients []string, channels []domain.Channel) ([]*domain.Delivery, error) {
	seenChannel := make(map[domain.Channel]struct{}, len(channels))
	uniqueChannels := make([]domain.Channel, 0, len(channels))
	for _, ch := range channels {
		if _, ok := seenChannel[ch]; ok {
			continue
		}
		seenChannel[ch] = struct{}{}
		uniqueChannels = append(uniqueChannels, ch)
	}

	seenUser := make(map[string]struct{}, len(recipients))
	var deliveries []*domain.Delivery
	for _, userID := range recipients {
		if _, ok := seenUser[userID]; ok {
			continue
		}
		seenUser[userID] = struct{}{}

		for _, ch := range uniqueChannels {
			deliveries = append(deliveries, &domain.Delivery{
				ID:             uuid.New().String(),
				NotificationID: notificationID,
				UserID:         userID,
				Channel:        ch,
				Status:         domain.DeliveryPending,
				CreatedAt:      time.Now(),
			})
		}
	}

	if err := l.repo.InsertBatch(ctx, deliveries); err != nil {
		return nil, err
	}

	l.logger.Info("Seeded delivery records",
		zap.String("notification_id", notificationID),
		zap.Int("recipients", len(seenUser)),
		zap.Int("deliveries", len(deliveries)))
	return deliveries, nil
}

func (l *Ledger) Delivery(ctx context.Context, id string) (*domain.Delivery, error) {
	return l.repo.GetByID(ctx, id)
}

// MarkDelivered settles a PENDING row as DELIVERED. Calling it on a row that
// already settled is a no-op: the immediate in-app path and the queue may both
// mark the same row.
func (l *Ledger) MarkDelivered(ctx context.Context, id string) error {
	d, err := l.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if d.Terminal() {
		return nil
	}
	return l.repo.MarkDelivered(ctx, id, time.Now())
}

// MarkFailed settles a PENDING row as FAILED with a reason. No-op on rows
// that already settled.
func (l *Ledger) MarkFailed(ctx context.Context, id, reason string) error {
	d, err := l.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if d.Terminal() {
		return nil
	}
	return l.repo.MarkFailed(ctx, id, reason)
}

// RecordRead stashes a read-receipt timestamp in the delivery metadata. Only
// the owner of an IN_APP delivery may mark it read; a repeated mark is a
// no-op so double taps never error or double count.
func (l *Ledger) RecordRead(ctx context.Context, id, userID string) error {
	d, err := l.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if d.UserID != userID {
		return xerrors.ErrUnauthorized
	}
	if d.Channel != domain.ChannelInApp {
		return xerrors.ErrInvalidChannel
	}
	if _, read := d.ReadAt(); read {
		return nil
	}
	return l.repo.SetReadAt(ctx, id, time.Now())
}

// UnreadCount counts the user's DELIVERED in-app rows with no read receipt
func (l *Ledger) UnreadCount(ctx context.Context, userID string) (int, error) {
	return l.repo.UnreadCount(ctx, userID)
}

// Retry re-opens a FAILED row as PENDING, bounded by the retry limit.
// Retrying is a deliberate administrative action, never automatic.
func (l *Ledger) Retry(ctx context.Context, id string) (*domain.Delivery, error) {
	d, err := l.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.Status != domain.DeliveryFailed {
		return nil, xerrors.ErrNotRetryable
	}
	if d.RetryCount >= l.maxRetries {
		return nil, xerrors.ErrRetryExhausted
	}
	if err := l.repo.MarkRetry(ctx, id); err != nil {
		return nil, err
	}
	return l.repo.GetByID(ctx, id)
}

func (l *Ledger) ListForUser(ctx context.Context, userID string, limit, offset int) ([]*domain.UserDelivery, error) {
	if limit <= 0 {
		limit = 20
	}
	return l.repo.ListInAppForUser(ctx, userID, limit, offset)
}

func (l *Ledger) PendingForNotification(ctx context.Context, notificationID string) ([]*domain.Delivery, error) {
	return l.repo.ListPendingByNotification(ctx, notificationID)
}

func (l *Ledger) Stats(ctx context.Context, schoolID string, from, to *time.Time) ([]domain.DeliveryStat, error) {
	return l.repo.Stats(ctx, schoolID, from, to)
}
