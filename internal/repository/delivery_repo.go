package repository

import (
	"context"
	"errors"
	"time"

	"school-notification-service/internal/domain"
	"school-notification-service/pkg/xerrors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DeliveryRepository persists delivery rows, one per (notification, user,
// channel). Terminal-state updates are guarded on status = PENDING so that a
// second mark from a racing path is a no-op, not an error.
type DeliveryRepository interface {
	InsertBatch(ctx context.Context, ds []*domain.Delivery) error
	GetByID(ctx context.Context, id string) (*domain.Delivery, error)
	MarkDelivered(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id string, reason string) error
	SetReadAt(ctx context.Context, id string, at time.Time) error
	UnreadCount(ctx context.Context, userID string) (int, error)
	ListInAppForUser(ctx context.Context, userID string, limit, offset int) ([]*domain.UserDelivery, error)
	ListPendingByNotification(ctx context.Context, notificationID string) ([]*domain.Delivery, error)
	// MarkRetry flips a FAILED row back to PENDING and bumps retry_count.
	MarkRetry(ctx context.Context, id string) error
	Stats(ctx context.Context, schoolID string, from, to *time.Time) ([]domain.DeliveryStat, error)
}

type pgDeliveryRepo struct {
	db *pgxpool.Pool
}

func NewDeliveryRepository(db *pgxpool.Pool) DeliveryRepository {
	return &pgDeliveryRepo{db: db}
}

const deliveryColumns = `
	id, notification_id, user_id, channel, status,
	delivered_at, failure_reason, retry_count, metadata, created_at`

func (p *pgDeliveryRepo) InsertBatch(ctx context.Context, ds []*domain.Delivery) error {
	if len(ds) == 0 {
		return nil
	}

	tx, err := p.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	query := `
		INSERT INTO notification_deliveries (
			id, notification_id, user_id, channel, status, retry_count, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for _, d := range ds {
		batch.Queue(query,
			d.ID,
			d.NotificationID,
			d.UserID,
			string(d.Channel),
			string(d.Status),
			d.RetryCount,
			d.Metadata,
		)
	}

	br := tx.SendBatch(ctx, batch)
	for range ds {
		if _, err := br.Exec(); err != nil {
			br.Close()
			if xerrors.ParsePGErrorCode(err) == "23505" {
				return xerrors.ErrDuplicateDelivery
			}
			return err
		}
	}
	if err := br.Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (p *pgDeliveryRepo) GetByID(ctx context.Context, id string) (*domain.Delivery, error) {
	query := `SELECT` + deliveryColumns + ` FROM notification_deliveries WHERE id = $1`

	d, err := scanDelivery(p.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, xerrors.ErrNotFound
		}
		return nil, err
	}
	return d, nil
}

func (p *pgDeliveryRepo) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE notification_deliveries
		SET status = 'DELIVERED',
		    delivered_at = $2,
		    failure_reason = NULL
		WHERE id = $1 AND status = 'PENDING'
	`

	// zero rows affected means the row already settled; that race is expected
	_, err := p.db.Exec(ctx, query, id, at)
	return err
}

func (p *pgDeliveryRepo) MarkFailed(ctx context.Context, id string, reason string) error {
	query := `
		UPDATE notification_deliveries
		SET status = 'FAILED',
		    failure_reason = $2
		WHERE id = $1 AND status = 'PENDING'
	`

	_, err := p.db.Exec(ctx, query, id, reason)
	return err
}

func (p *pgDeliveryRepo) SetReadAt(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE notification_deliveries
		SET metadata = COALESCE(metadata, '{}'::jsonb) || jsonb_build_object('readAt', $2::text)
		WHERE id = $1
	`

	ct, err := p.db.Exec(ctx, query, id, at.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

func (p *pgDeliveryRepo) UnreadCount(ctx context.Context, userID string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM notification_deliveries
		WHERE user_id = $1
		  AND channel = 'IN_APP'
		  AND status = 'DELIVERED'
		  AND (metadata IS NULL OR metadata->>'readAt' IS NULL)
	`

	var count int
	if err := p.db.QueryRow(ctx, query, userID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (p *pgDeliveryRepo) ListInAppForUser(ctx context.Context, userID string, limit, offset int) ([]*domain.UserDelivery, error) {
	query := `
		SELECT
			d.id, d.notification_id, d.user_id, d.channel, d.status,
			d.delivered_at, d.failure_reason, d.retry_count, d.metadata, d.created_at,
			n.id, n.title, n.message, n.type, n.created_at, n.expires_at
		FROM notification_deliveries d
		JOIN notifications n ON n.id = d.notification_id
		WHERE d.user_id = $1
		  AND d.channel = 'IN_APP'
		  AND d.status = 'DELIVERED'
		  AND (n.expires_at IS NULL OR n.expires_at > NOW())
		ORDER BY d.delivered_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := p.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*domain.UserDelivery
	for rows.Next() {
		var (
			d       domain.Delivery
			channel string
			status  string
			s       domain.Summary
		)
		err := rows.Scan(
			&d.ID, &d.NotificationID, &d.UserID, &channel, &status,
			&d.DeliveredAt, &d.FailureReason, &d.RetryCount, &d.Metadata, &d.CreatedAt,
			&s.ID, &s.Title, &s.Message, &s.Type, &s.CreatedAt, &s.ExpiresAt,
		)
		if err != nil {
			return nil, err
		}
		d.Channel = domain.Channel(channel)
		d.Status = domain.DeliveryStatus(status)
		items = append(items, &domain.UserDelivery{Delivery: &d, Notification: s})
	}
	return items, rows.Err()
}

func (p *pgDeliveryRepo) ListPendingByNotification(ctx context.Context, notificationID string) ([]*domain.Delivery, error) {
	query := `
		SELECT` + deliveryColumns + `
		FROM notification_deliveries
		WHERE notification_id = $1 AND status = 'PENDING'
	`

	rows, err := p.db.Query(ctx, query, notificationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deliveries []*domain.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}

func (p *pgDeliveryRepo) MarkRetry(ctx context.Context, id string) error {
	query := `
		UPDATE notification_deliveries
		SET status = 'PENDING',
		    failure_reason = NULL,
		    retry_count = retry_count + 1
		WHERE id = $1 AND status = 'FAILED'
	`

	ct, err := p.db.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return xerrors.ErrNotRetryable
	}
	return nil
}

func (p *pgDeliveryRepo) Stats(ctx context.Context, schoolID string, from, to *time.Time) ([]domain.DeliveryStat, error) {
	query := `
		SELECT d.status, d.channel, COUNT(*)
		FROM notification_deliveries d
		JOIN notifications n ON n.id = d.notification_id
		WHERE n.school_id = $1
		  AND ($2::timestamptz IS NULL OR d.created_at >= $2)
		  AND ($3::timestamptz IS NULL OR d.created_at <= $3)
		GROUP BY d.status, d.channel
	`

	rows, err := p.db.Query(ctx, query, schoolID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []domain.DeliveryStat
	for rows.Next() {
		var (
			st      domain.DeliveryStat
			status  string
			channel string
		)
		if err := rows.Scan(&status, &channel, &st.Count); err != nil {
			return nil, err
		}
		st.Status = domain.DeliveryStatus(status)
		st.Channel = domain.Channel(channel)
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

func scanDelivery(row pgx.Row) (*domain.Delivery, error) {
	var (
		d       domain.Delivery
		channel string
		status  string
	)
	err := row.Scan(
		&d.ID,
		&d.NotificationID,
		&d.UserID,
		&channel,
		&status,
		&d.DeliveredAt,
		&d.FailureReason,
		&d.RetryCount,
		&d.Metadata,
		&d.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.Channel = domain.Channel(channel)
	d.Status = domain.DeliveryStatus(status)
	return &d, nil
}
