package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"school-notification-service/internal/domain"
	"school-notification-service/internal/ledger"
	"school-notification-service/internal/sender"
	"school-notification-service/pkg/xerrors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// ---- fakes ----

type fakeDeliveryRepo struct {
	mu   sync.Mutex
	rows map[string]*domain.Delivery
}

func newFakeDeliveryRepo() *fakeDeliveryRepo {
	return &fakeDeliveryRepo{rows: make(map[string]*domain.Delivery)}
}

func (f *fakeDeliveryRepo) InsertBatch(ctx context.Context, ds []*domain.Delivery) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range ds {
		cp := *d
		f.rows[d.ID] = &cp
	}
	return nil
}

func (f *fakeDeliveryRepo) GetByID(ctx context.Context, id string) (*domain.Delivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.rows[id]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (f *fakeDeliveryRepo) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.rows[id]; ok && d.Status == domain.DeliveryPending {
		d.Status = domain.DeliveryDelivered
		d.DeliveredAt = &at
	}
	return nil
}

func (f *fakeDeliveryRepo) MarkFailed(ctx context.Context, id string, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.rows[id]; ok && d.Status == domain.DeliveryPending {
		d.Status = domain.DeliveryFailed
		d.FailureReason = &reason
	}
	return nil
}

func (f *fakeDeliveryRepo) SetReadAt(ctx context.Context, id string, at time.Time) error {
	return nil
}

func (f *fakeDeliveryRepo) UnreadCount(ctx context.Context, userID string) (int, error) {
	return 0, nil
}

func (f *fakeDeliveryRepo) ListInAppForUser(ctx context.Context, userID string, limit, offset int) ([]*domain.UserDelivery, error) {
	return nil, nil
}

func (f *fakeDeliveryRepo) ListPendingByNotification(ctx context.Context, notificationID string) ([]*domain.Delivery, error) {
	return nil, nil
}

func (f *fakeDeliveryRepo) MarkRetry(ctx context.Context, id string) error {
	return nil
}

func (f *fakeDeliveryRepo) Stats(ctx context.Context, schoolID string, from, to *time.Time) ([]domain.DeliveryStat, error) {
	return nil, nil
}

type fakeNotifRepo struct {
	notifs map[string]*domain.Notification
}

func (f *fakeNotifRepo) Create(ctx context.Context, n *domain.Notification) (*domain.Notification, error) {
	f.notifs[n.ID] = n
	return n, nil
}

func (f *fakeNotifRepo) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	n, ok := f.notifs[id]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	return n, nil
}

func (f *fakeNotifRepo) ListDueScheduled(ctx context.Context, now time.Time, limit int) ([]*domain.Notification, error) {
	return nil, nil
}

func (f *fakeNotifRepo) Deactivate(ctx context.Context, id, schoolID string) error {
	return nil
}

type fakeUserDirectory struct {
	users map[string]*domain.DirectoryUser
}

func (f *fakeUserDirectory) GetUser(ctx context.Context, userID string) (*domain.DirectoryUser, error) {
	u, ok := f.users[userID]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	return u, nil
}

func (f *fakeUserDirectory) ActiveUserIDs(ctx context.Context, schoolID string) ([]string, error) {
	return nil, nil
}

func (f *fakeUserDirectory) ActiveUserIDsByRoles(ctx context.Context, schoolID string, roles []domain.Role) ([]string, error) {
	return nil, nil
}

func (f *fakeUserDirectory) ActiveUserIDsByBranches(ctx context.Context, schoolID string, branchIDs []string) ([]string, error) {
	return nil, nil
}

func (f *fakeUserDirectory) ActiveUserIDsByClasses(ctx context.Context, schoolID string, classIDs []string) ([]string, error) {
	return nil, nil
}

func (f *fakeUserDirectory) ActiveUserIDsBySections(ctx context.Context, schoolID string, sectionIDs []string) ([]string, error) {
	return nil, nil
}

type fakeConns struct {
	n int
}

func (f fakeConns) ClientCount() int { return f.n }

// fakeSender succeeds or fails per delivery id
type fakeSender struct {
	channel domain.Channel
	fail    map[string]bool
	mu      sync.Mutex
	sent    []string
}

func (f *fakeSender) Channel() domain.Channel { return f.channel }

func (f *fakeSender) Send(ctx context.Context, job *sender.Job) bool {
	f.mu.Lock()
	f.sent = append(f.sent, job.Delivery.ID)
	f.mu.Unlock()
	return !f.fail[job.Delivery.ID]
}

// ---- harness ----

type env struct {
	queue  *Queue
	ledger *ledger.Ledger
	repo   *fakeDeliveryRepo
	notifs *fakeNotifRepo
	inApp  *fakeSender
	email  *fakeSender
}

func newTestEnv(t *testing.T) *env {
	t.Helper()
	repo := newFakeDeliveryRepo()
	ldg := ledger.New(repo, zap.NewNop(), 3)
	notifs := &fakeNotifRepo{notifs: make(map[string]*domain.Notification)}
	dir := &fakeUserDirectory{users: map[string]*domain.DirectoryUser{
		"u1": {ID: "u1", Status: domain.UserActive, Email: "u1@school.test", Phone: "+100"},
	}}
	inApp := &fakeSender{channel: domain.ChannelInApp, fail: map[string]bool{}}
	email := &fakeSender{channel: domain.ChannelEmail, fail: map[string]bool{}}

	q := New(ldg, notifs, dir, []sender.Sender{inApp, email}, fakeConns{n: 3},
		zap.NewNop(), time.Second, 10, time.Second)
	return &env{queue: q, ledger: ldg, repo: repo, notifs: notifs, inApp: inApp, email: email}
}

func (e *env) seed(t *testing.T, notifID string, users []string, channels []domain.Channel) []*domain.Delivery {
	t.Helper()
	if _, ok := e.notifs.notifs[notifID]; !ok {
		e.notifs.notifs[notifID] = &domain.Notification{
			ID: notifID, SchoolID: "school-1", Title: "T", Message: "M",
			Type: domain.General, CreatedAt: time.Now(), IsActive: true,
		}
	}
	ds, err := e.ledger.Seed(context.Background(), notifID, users, channels)
	require.NoError(t, err)
	return ds
}

// ---- tests ----

func TestEnqueueDeduplicates(t *testing.T) {
	e := newTestEnv(t)
	e.queue.Enqueue("d1")
	e.queue.Enqueue("d1")
	e.queue.Enqueue("d2")
	assert.Equal(t, 2, e.queue.Stats().PendingCount)
}

func TestStatsIncludesConnectedUsers(t *testing.T) {
	e := newTestEnv(t)
	stats := e.queue.Stats()
	assert.Equal(t, 3, stats.ConnectedUserCount)
	assert.Equal(t, 0, stats.PendingCount)
	assert.False(t, stats.IsProcessingBatch)
}

func TestProcessBatchSettlesDeliveries(t *testing.T) {
	e := newTestEnv(t)
	ds := e.seed(t, "n1", []string{"u1"}, []domain.Channel{domain.ChannelInApp, domain.ChannelEmail})
	e.queue.EnqueueDeliveries(ds)

	e.queue.ProcessBatch(context.Background())

	for _, d := range ds {
		got, err := e.repo.GetByID(context.Background(), d.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.DeliveryDelivered, got.Status, "channel %s", d.Channel)
	}
	assert.Equal(t, 0, e.queue.Stats().PendingCount)
}

func TestProcessBatchSenderFailureIsIsolated(t *testing.T) {
	e := newTestEnv(t)
	ds := e.seed(t, "n1", []string{"u1"}, []domain.Channel{domain.ChannelInApp, domain.ChannelEmail})

	var emailID, inAppID string
	for _, d := range ds {
		switch d.Channel {
		case domain.ChannelEmail:
			emailID = d.ID
		case domain.ChannelInApp:
			inAppID = d.ID
		}
	}
	e.email.fail[emailID] = true
	e.queue.EnqueueDeliveries(ds)

	e.queue.ProcessBatch(context.Background())

	failed, _ := e.repo.GetByID(context.Background(), emailID)
	assert.Equal(t, domain.DeliveryFailed, failed.Status)
	require.NotNil(t, failed.FailureReason)
	assert.Equal(t, "send failed on channel EMAIL", *failed.FailureReason)

	ok, _ := e.repo.GetByID(context.Background(), inAppID)
	assert.Equal(t, domain.DeliveryDelivered, ok.Status)
}

func TestProcessBatchSkipsSettledRows(t *testing.T) {
	e := newTestEnv(t)
	ds := e.seed(t, "n1", []string{"u1"}, []domain.Channel{domain.ChannelInApp})
	id := ds[0].ID

	// Settled while waiting in the queue
	require.NoError(t, e.ledger.MarkDelivered(context.Background(), id))
	e.queue.EnqueueDeliveries(ds)

	e.queue.ProcessBatch(context.Background())

	assert.Empty(t, e.inApp.sent, "settled row must not be re-sent")
}

func TestProcessBatchRespectsBatchSize(t *testing.T) {
	e := newTestEnv(t)
	users := make([]string, 15)
	for i := range users {
		users[i] = string(rune('a' + i))
	}
	ds := e.seed(t, "n1", users, []domain.Channel{domain.ChannelInApp})
	e.queue.EnqueueDeliveries(ds)

	e.queue.ProcessBatch(context.Background())
	assert.Equal(t, 5, e.queue.Stats().PendingCount)

	e.queue.ProcessBatch(context.Background())
	assert.Equal(t, 0, e.queue.Stats().PendingCount)
}

func TestProcessBatchFailsExpiredNotification(t *testing.T) {
	e := newTestEnv(t)
	past := time.Now().Add(-time.Hour)
	e.notifs.notifs["n1"] = &domain.Notification{
		ID: "n1", SchoolID: "school-1", Title: "T", Message: "M",
		Type: domain.General, ExpiresAt: &past, CreatedAt: past, IsActive: true,
	}
	ds := e.seed(t, "n1", []string{"u1"}, []domain.Channel{domain.ChannelInApp})
	e.queue.EnqueueDeliveries(ds)

	e.queue.ProcessBatch(context.Background())

	d, _ := e.repo.GetByID(context.Background(), ds[0].ID)
	assert.Equal(t, domain.DeliveryFailed, d.Status)
	assert.Empty(t, e.inApp.sent)
}

func TestProcessBatchMissingSender(t *testing.T) {
	e := newTestEnv(t)
	ds := e.seed(t, "n1", []string{"u1"}, []domain.Channel{domain.ChannelPush})
	e.queue.EnqueueDeliveries(ds)

	e.queue.ProcessBatch(context.Background())

	d, _ := e.repo.GetByID(context.Background(), ds[0].ID)
	assert.Equal(t, domain.DeliveryFailed, d.Status)
	require.NotNil(t, d.FailureReason)
	assert.Contains(t, *d.FailureReason, "no sender registered")
}

func TestSingleFlight(t *testing.T) {
	e := newTestEnv(t)
	e.queue.processing.Store(true)

	ds := e.seed(t, "n1", []string{"u1"}, []domain.Channel{domain.ChannelInApp})
	e.queue.EnqueueDeliveries(ds)

	// A tick while a batch is in flight must be a no-op
	e.queue.ProcessBatch(context.Background())
	assert.Equal(t, 1, e.queue.Stats().PendingCount)
	assert.Empty(t, e.inApp.sent)

	e.queue.processing.Store(false)
	e.queue.ProcessBatch(context.Background())
	assert.Equal(t, 0, e.queue.Stats().PendingCount)
}

// slowSender holds every send open for a fixed delay and tracks how many
// sends overlap.
type slowSender struct {
	channel  domain.Channel
	delay    time.Duration
	mu       sync.Mutex
	inFlight int
	peak     int
}

func (s *slowSender) Channel() domain.Channel { return s.channel }

func (s *slowSender) Send(ctx context.Context, job *sender.Job) bool {
	s.mu.Lock()
	s.inFlight++
	if s.inFlight > s.peak {
		s.peak = s.inFlight
	}
	s.mu.Unlock()

	time.Sleep(s.delay)

	s.mu.Lock()
	s.inFlight--
	s.mu.Unlock()
	return true
}

func TestProcessBatchRunsJobsConcurrently(t *testing.T) {
	e := newTestEnv(t)
	slow := &slowSender{channel: domain.ChannelInApp, delay: 50 * time.Millisecond}
	e.queue.senders[domain.ChannelInApp] = slow

	ds := e.seed(t, "n1", []string{"u1", "u2", "u3", "u4", "u5"},
		[]domain.Channel{domain.ChannelInApp})
	e.queue.EnqueueDeliveries(ds)

	e.queue.ProcessBatch(context.Background())

	slow.mu.Lock()
	peak := slow.peak
	slow.mu.Unlock()
	assert.GreaterOrEqual(t, peak, 2, "a slow send must not serialize its siblings")

	for _, d := range ds {
		got, err := e.repo.GetByID(context.Background(), d.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.DeliveryDelivered, got.Status)
	}
}
