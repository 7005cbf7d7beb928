package repository

import (
	"context"
	"errors"
	"time"

	"school-notification-service/internal/domain"
	"school-notification-service/pkg/xerrors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NotificationRepository persists notification rows. Deliveries live in
// DeliveryRepository; a notification is immutable after creation except for
// soft-deactivation.
type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) (*domain.Notification, error)
	GetByID(ctx context.Context, id string) (*domain.Notification, error)
	// ListDueScheduled returns active scheduled notifications that are due and
	// still have pending deliveries to dispatch.
	ListDueScheduled(ctx context.Context, now time.Time, limit int) ([]*domain.Notification, error)
	Deactivate(ctx context.Context, id, schoolID string) error
}

type pgNotificationRepo struct {
	db *pgxpool.Pool
}

func NewNotificationRepository(db *pgxpool.Pool) NotificationRepository {
	return &pgNotificationRepo{db: db}
}

const notificationColumns = `
	id, school_id, branch_id, title, message, type, channels,
	target_type, target_roles, target_user_ids, target_branch_ids,
	target_class_ids, target_section_ids, filters,
	scheduled_at, expires_at, created_by, created_at, is_active`

func (p *pgNotificationRepo) Create(ctx context.Context, n *domain.Notification) (*domain.Notification, error) {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}

	query := `
		INSERT INTO notifications (
			id, school_id, branch_id, title, message, type, channels,
			target_type, target_roles, target_user_ids, target_branch_ids,
			target_class_ids, target_section_ids, filters,
			scheduled_at, expires_at, created_by, is_active
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11,
			$12, $13, $14,
			$15, $16, $17, true
		)
		RETURNING` + notificationColumns

	row := p.db.QueryRow(ctx, query,
		n.ID,
		n.SchoolID,
		n.BranchID,
		n.Title,
		n.Message,
		string(n.Type),
		channelsToStrings(n.Channels),
		string(n.TargetType),
		rolesToStrings(n.TargetRoles),
		n.TargetUserIDs,
		n.TargetBranchIDs,
		n.TargetClassIDs,
		n.TargetSectionIDs,
		n.Filters,
		n.ScheduledAt,
		n.ExpiresAt,
		n.CreatedBy,
	)

	return scanNotification(row)
}

func (p *pgNotificationRepo) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	query := `SELECT` + notificationColumns + ` FROM notifications WHERE id = $1`

	n, err := scanNotification(p.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, xerrors.ErrNotFound
		}
		return nil, err
	}
	return n, nil
}

func (p *pgNotificationRepo) ListDueScheduled(ctx context.Context, now time.Time, limit int) ([]*domain.Notification, error) {
	query := `
		SELECT` + notificationColumns + `
		FROM notifications n
		WHERE n.is_active = true
		  AND n.scheduled_at IS NOT NULL
		  AND n.scheduled_at <= $1
		  AND EXISTS (
			SELECT 1 FROM notification_deliveries d
			WHERE d.notification_id = n.id AND d.status = 'PENDING'
		  )
		ORDER BY n.scheduled_at ASC
		LIMIT $2
	`

	rows, err := p.db.Query(ctx, query, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []*domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

func (p *pgNotificationRepo) Deactivate(ctx context.Context, id, schoolID string) error {
	query := `
		UPDATE notifications
		SET is_active = false
		WHERE id = $1 AND school_id = $2 AND is_active = true
	`

	ct, err := p.db.Exec(ctx, query, id, schoolID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

func scanNotification(row pgx.Row) (*domain.Notification, error) {
	var (
		n        domain.Notification
		typ      string
		target   string
		channels []string
		roles    []string
	)
	err := row.Scan(
		&n.ID,
		&n.SchoolID,
		&n.BranchID,
		&n.Title,
		&n.Message,
		&typ,
		&channels,
		&target,
		&roles,
		&n.TargetUserIDs,
		&n.TargetBranchIDs,
		&n.TargetClassIDs,
		&n.TargetSectionIDs,
		&n.Filters,
		&n.ScheduledAt,
		&n.ExpiresAt,
		&n.CreatedBy,
		&n.CreatedAt,
		&n.IsActive,
	)
	if err != nil {
		return nil, err
	}
	n.Type = domain.NotificationType(typ)
	n.TargetType = domain.TargetType(target)
	n.Channels = stringsToChannels(channels)
	n.TargetRoles = stringsToRoles(roles)
	return &n, nil
}

func channelsToStrings(cs []domain.Channel) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = string(c)
	}
	return out
}

func stringsToChannels(ss []string) []domain.Channel {
	out := make([]domain.Channel, len(ss))
	for i, s := range ss {
		out[i] = domain.Channel(s)
	}
	return out
}

func rolesToStrings(rs []domain.Role) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = string(r)
	}
	return out
}

func stringsToRoles(ss []string) []domain.Role {
	out := make([]domain.Role, len(ss))
	for i, s := range ss {
		out[i] = domain.Role(s)
	}
	return out
}
