package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"school-notification-service/internal/domain"
	"school-notification-service/pkg/xerrors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeDeliveryRepo keeps rows in memory and mirrors the SQL guards of the
// real repository: terminal updates only touch PENDING rows.
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
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.rows[id]
	if !ok {
		return xerrors.ErrNotFound
	}
	if d.Metadata == nil {
		d.Metadata = make(map[string]interface{})
	}
	d.Metadata[domain.MetaReadAt] = at.Format(time.RFC3339Nano)
	return nil
}

func (f *fakeDeliveryRepo) UnreadCount(ctx context.Context, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, d := range f.rows {
		if d.UserID != userID || d.Channel != domain.ChannelInApp || d.Status != domain.DeliveryDelivered {
			continue
		}
		if _, read := d.ReadAt(); !read {
			count++
		}
	}
	return count, nil
}

func (f *fakeDeliveryRepo) ListInAppForUser(ctx context.Context, userID string, limit, offset int) ([]*domain.UserDelivery, error) {
	return nil, nil
}

func (f *fakeDeliveryRepo) ListPendingByNotification(ctx context.Context, notificationID string) ([]*domain.Delivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Delivery
	for _, d := range f.rows {
		if d.NotificationID == notificationID && d.Status == domain.DeliveryPending {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeDeliveryRepo) MarkRetry(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.rows[id]
	if !ok || d.Status != domain.DeliveryFailed {
		return xerrors.ErrNotRetryable
	}
	d.Status = domain.DeliveryPending
	d.FailureReason = nil
	d.RetryCount++
	return nil
}

func (f *fakeDeliveryRepo) Stats(ctx context.Context, schoolID string, from, to *time.Time) ([]domain.DeliveryStat, error) {
	return nil, nil
}

func newTestLedger(t *testing.T) (*Ledger, *fakeDeliveryRepo) {
	t.Helper()
	repo := newFakeDeliveryRepo()
	return New(repo, zap.NewNop(), 3), repo
}

func TestSeedCrossProduct(t *testing.T) {
	l, repo := newTestLedger(t)

	ds, err := l.Seed(context.Background(), "n1",
		[]string{"t1", "t2", "t3"},
		[]domain.Channel{domain.ChannelInApp, domain.ChannelEmail})
	require.NoError(t, err)
	require.Len(t, ds, 6)
	assert.Len(t, repo.rows, 6)

	seen := make(map[string]int)
	for _, d := range ds {
		assert.Equal(t, domain.DeliveryPending, d.Status)
		assert.Equal(t, "n1", d.NotificationID)
		seen[d.UserID+"/"+string(d.Channel)]++
	}
	for pair, n := range seen {
		assert.Equal(t, 1, n, "duplicate pair %s", pair)
	}
}

func TestSeedDeduplicatesRecipientsAndChannels(t *testing.T) {
	l, _ := newTestLedger(t)

	ds, err := l.Seed(context.Background(), "n1",
		[]string{"u1", "u1", "u2"},
		[]domain.Channel{domain.ChannelInApp, domain.ChannelInApp})
	require.NoError(t, err)
	assert.Len(t, ds, 2)
}

func TestMarkDeliveredIsIdempotent(t *testing.T) {
	l, repo := newTestLedger(t)
	ds, err := l.Seed(context.Background(), "n1", []string{"u1"}, []domain.Channel{domain.ChannelInApp})
	require.NoError(t, err)
	id := ds[0].ID

	require.NoError(t, l.MarkDelivered(context.Background(), id))
	first, _ := repo.GetByID(context.Background(), id)
	require.Equal(t, domain.DeliveryDelivered, first.Status)

	// A second mark, or a late failure, must not disturb the settled row
	require.NoError(t, l.MarkDelivered(context.Background(), id))
	require.NoError(t, l.MarkFailed(context.Background(), id, "late failure"))

	after, _ := repo.GetByID(context.Background(), id)
	assert.Equal(t, domain.DeliveryDelivered, after.Status)
	assert.Nil(t, after.FailureReason)
	assert.Equal(t, first.DeliveredAt, after.DeliveredAt)
}

func TestMarkFailedRecordsReason(t *testing.T) {
	l, repo := newTestLedger(t)
	ds, _ := l.Seed(context.Background(), "n1", []string{"u1"}, []domain.Channel{domain.ChannelEmail})
	id := ds[0].ID

	require.NoError(t, l.MarkFailed(context.Background(), id, "send failed on channel EMAIL"))
	d, _ := repo.GetByID(context.Background(), id)
	assert.Equal(t, domain.DeliveryFailed, d.Status)
	require.NotNil(t, d.FailureReason)
	assert.Equal(t, "send failed on channel EMAIL", *d.FailureReason)
}

func TestRecordReadOwnership(t *testing.T) {
	l, _ := newTestLedger(t)
	ds, _ := l.Seed(context.Background(), "n1", []string{"u1"}, []domain.Channel{domain.ChannelInApp})
	id := ds[0].ID
	require.NoError(t, l.MarkDelivered(context.Background(), id))

	err := l.RecordRead(context.Background(), id, "intruder")
	assert.ErrorIs(t, err, xerrors.ErrUnauthorized)

	require.NoError(t, l.RecordRead(context.Background(), id, "u1"))

	d, _ := l.Delivery(context.Background(), id)
	readAt, read := d.ReadAt()
	assert.True(t, read)
	assert.NotEmpty(t, readAt)
}

func TestRecordReadTwiceKeepsFirstTimestamp(t *testing.T) {
	l, _ := newTestLedger(t)
	ds, _ := l.Seed(context.Background(), "n1", []string{"u1"}, []domain.Channel{domain.ChannelInApp})
	id := ds[0].ID
	require.NoError(t, l.MarkDelivered(context.Background(), id))

	require.NoError(t, l.RecordRead(context.Background(), id, "u1"))
	d1, _ := l.Delivery(context.Background(), id)
	first, _ := d1.ReadAt()

	require.NoError(t, l.RecordRead(context.Background(), id, "u1"))
	d2, _ := l.Delivery(context.Background(), id)
	second, _ := d2.ReadAt()
	assert.Equal(t, first, second)
}

func TestRecordReadRejectsNonInApp(t *testing.T) {
	l, _ := newTestLedger(t)
	ds, _ := l.Seed(context.Background(), "n1", []string{"u1"}, []domain.Channel{domain.ChannelEmail})

	err := l.RecordRead(context.Background(), ds[0].ID, "u1")
	assert.ErrorIs(t, err, xerrors.ErrInvalidChannel)
}

func TestUnreadCount(t *testing.T) {
	l, _ := newTestLedger(t)
	ds, _ := l.Seed(context.Background(), "n1", []string{"u1"},
		[]domain.Channel{domain.ChannelInApp})
	more, _ := l.Seed(context.Background(), "n2", []string{"u1"},
		[]domain.Channel{domain.ChannelInApp})

	require.NoError(t, l.MarkDelivered(context.Background(), ds[0].ID))
	require.NoError(t, l.MarkDelivered(context.Background(), more[0].ID))

	count, err := l.UnreadCount(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, l.RecordRead(context.Background(), ds[0].ID, "u1"))
	count, _ = l.UnreadCount(context.Background(), "u1")
	assert.Equal(t, 1, count)
}

func TestRetryBounds(t *testing.T) {
	l, repo := newTestLedger(t)
	ds, _ := l.Seed(context.Background(), "n1", []string{"u1"}, []domain.Channel{domain.ChannelSMS})
	id := ds[0].ID

	// A PENDING row is not retryable
	_, err := l.Retry(context.Background(), id)
	assert.ErrorIs(t, err, xerrors.ErrNotRetryable)

	for i := 1; i <= 3; i++ {
		require.NoError(t, l.MarkFailed(context.Background(), id, "boom"))
		d, err := l.Retry(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, domain.DeliveryPending, d.Status)
		assert.Equal(t, i, d.RetryCount)
	}

	require.NoError(t, l.MarkFailed(context.Background(), id, "boom"))
	_, err = l.Retry(context.Background(), id)
	assert.ErrorIs(t, err, xerrors.ErrRetryExhausted)

	d, _ := repo.GetByID(context.Background(), id)
	assert.Equal(t, 3, d.RetryCount)
}

func TestRetryDeliveredRowRejected(t *testing.T) {
	l, _ := newTestLedger(t)
	ds, _ := l.Seed(context.Background(), "n1", []string{"u1"}, []domain.Channel{domain.ChannelInApp})
	require.NoError(t, l.MarkDelivered(context.Background(), ds[0].ID))

	_, err := l.Retry(context.Background(), ds[0].ID)
	assert.ErrorIs(t, err, xerrors.ErrNotRetryable)
}
