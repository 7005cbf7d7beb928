package usecase

import (
	"context"
	"time"

	"school-notification-service/internal/domain"
	"school-notification-service/internal/ledger"
	"school-notification-service/internal/repository"
	"school-notification-service/internal/resolver"
	"school-notification-service/pkg/xerrors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DeliveryQueue is the slice of the queue the usecase needs
type DeliveryQueue interface {
	Enqueue(deliveryID string)
	EnqueueDeliveries(ds []*domain.Delivery)
}

// Gateway is the slice of the realtime hub the usecase needs
type Gateway interface {
	SendToUser(userID string, event string, payload interface{}) bool
	BroadcastToSchool(schoolID string, event string, payload interface{}) int
}

// CreateNotificationInput is everything a caller provides to create and
// dispatch a notification.
type CreateNotificationInput struct {
	// SchoolID is only honored for platform callers whose token carries no
	// school claim; school-scoped callers always act on their own school.
	SchoolID         string                 `json:"schoolId,omitempty"`
	Title            string                 `json:"title"`
	Message          string                 `json:"message"`
	Type             string                 `json:"type"`
	Channels         []string               `json:"channels"`
	TargetType       string                 `json:"targetType"`
	TargetRoles      []string               `json:"targetRoles"`
	TargetUserIDs    []string               `json:"targetUserIds"`
	TargetBranchIDs  []string               `json:"targetBranchIds"`
	TargetClassIDs   []string               `json:"targetClassIds"`
	TargetSectionIDs []string               `json:"targetSectionIds"`
	Filters          map[string]interface{} `json:"filters"`
	ScheduledAt      *time.Time             `json:"scheduledAt"`
	ExpiresAt        *time.Time             `json:"expiresAt"`
	BranchID         *string                `json:"branchId"`
}

// DispatchResult summarizes what a create call did
type DispatchResult struct {
	Notification *domain.Notification `json:"notification"`
	Recipients   int                  `json:"recipients"`
	Deliveries   int                  `json:"deliveries"`
	Scheduled    bool                 `json:"scheduled"`
}

// TemplateInfo describes one supported notification type
type TemplateInfo struct {
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Channels    []string `json:"channels"`
}

// NotificationUsecase orchestrates the full pipeline: validate, persist,
// resolve the audience, seed the ledger, push realtime, enqueue the rest.
type NotificationUsecase struct {
	notifs   repository.NotificationRepository
	resolver *resolver.AudienceResolver
	ledger   *ledger.Ledger
	queue    DeliveryQueue
	gateway  Gateway
	logger   *zap.Logger
}

func NewNotificationUsecase(
	notifs repository.NotificationRepository,
	res *resolver.AudienceResolver,
	ldg *ledger.Ledger,
	queue DeliveryQueue,
	gateway Gateway,
	logger *zap.Logger,
) *NotificationUsecase {
	return &NotificationUsecase{
		notifs:   notifs,
		resolver: res,
		ledger:   ldg,
		queue:    queue,
		gateway:  gateway,
		logger:   logger,
	}
}

// CreateNotification validates, persists and dispatches a notification. A
// notification scheduled for the future is seeded but not sent; the scheduler
// picks it up when it comes due.
func (uc *NotificationUsecase) CreateNotification(ctx context.Context, schoolID, createdBy string, in CreateNotificationInput) (*DispatchResult, error) {
	if schoolID == "" {
		return nil, xerrors.ErrSchoolRequired
	}
	if in.Title == "" || in.Message == "" {
		return nil, xerrors.ErrInvalidInput
	}

	channels := make([]domain.Channel, 0, len(in.Channels))
	for _, c := range in.Channels {
		channels = append(channels, domain.Channel(c))
	}
	if len(channels) == 0 {
		channels = []domain.Channel{domain.ChannelInApp}
	}

	roles := make([]domain.Role, 0, len(in.TargetRoles))
	for _, r := range in.TargetRoles {
		roles = append(roles, domain.Role(r))
	}

	nType := domain.NotificationType(in.Type)
	if nType == "" {
		nType = domain.General
	}

	n := &domain.Notification{
		ID:               uuid.New().String(),
		SchoolID:         schoolID,
		BranchID:         in.BranchID,
		Title:            in.Title,
		Message:          in.Message,
		Type:             nType,
		Channels:         channels,
		TargetType:       domain.TargetType(in.TargetType),
		TargetRoles:      roles,
		TargetUserIDs:    in.TargetUserIDs,
		TargetBranchIDs:  in.TargetBranchIDs,
		TargetClassIDs:   in.TargetClassIDs,
		TargetSectionIDs: in.TargetSectionIDs,
		Filters:          in.Filters,
		ScheduledAt:      in.ScheduledAt,
		ExpiresAt:        in.ExpiresAt,
		CreatedBy:        createdBy,
		CreatedAt:        time.Now(),
		IsActive:         true,
	}

	// Validate before anything is persisted so a bad request leaves no rows
	if err := n.ValidateTargeting(); err != nil {
		return nil, err
	}
	if err := n.ValidateChannels(); err != nil {
		return nil, err
	}

	created, err := uc.notifs.Create(ctx, n)
	if err != nil {
		return nil, err
	}

	recipients, err := uc.resolver.Resolve(ctx, created)
	if err != nil {
		return nil, err
	}

	deliveries, err := uc.ledger.Seed(ctx, created.ID, recipients, created.Channels)
	if err != nil {
		return nil, err
	}

	scheduled := !created.DueNow(time.Now())
	if !scheduled {
		uc.dispatch(ctx, created, deliveries)
	} else {
		uc.logger.Info("Notification scheduled",
			zap.String("notification_id", created.ID),
			zap.Timep("scheduled_at", created.ScheduledAt))
	}

	return &DispatchResult{
		Notification: created,
		Recipients:   len(recipients),
		Deliveries:   len(deliveries),
		Scheduled:    scheduled,
	}, nil
}

// dispatch pushes in-app deliveries over the gateway immediately, settles the
// ones that reached a live connection, and hands everything to the queue. The
// queue skips rows that already settled, so the double submission is safe.
func (uc *NotificationUsecase) dispatch(ctx context.Context, n *domain.Notification, deliveries []*domain.Delivery) {
	for _, d := range deliveries {
		if d.Channel != domain.ChannelInApp {
			continue
		}
		if uc.gateway.SendToUser(d.UserID, "notification", domain.NewPushMessage(d, n)) {
			if err := uc.ledger.MarkDelivered(ctx, d.ID); err != nil {
				uc.logger.Error("Failed to settle pushed delivery",
					zap.String("delivery_id", d.ID),
					zap.Error(err))
			}
		}
	}

	uc.queue.EnqueueDeliveries(deliveries)

	uc.logger.Info("Notification dispatched",
		zap.String("notification_id", n.ID),
		zap.Int("deliveries", len(deliveries)))
}

// DispatchDue sends a previously scheduled notification whose time has come.
// Called by the scheduler worker.
func (uc *NotificationUsecase) DispatchDue(ctx context.Context, n *domain.Notification) error {
	pending, err := uc.ledger.PendingForNotification(ctx, n.ID)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}
	uc.dispatch(ctx, n, pending)
	return nil
}

// Broadcast sends an announcement to every active user of the school. Beyond
// the per-user fan-out, one announcement event goes to the whole school room
// so connected clients can surface a banner without waiting for their own
// delivery push.
func (uc *NotificationUsecase) Broadcast(ctx context.Context, schoolID, createdBy string, in CreateNotificationInput) (*DispatchResult, error) {
	in.TargetType = string(domain.TargetAllUsers)
	if in.Type == "" {
		in.Type = string(domain.Announcement)
	}

	result, err := uc.CreateNotification(ctx, schoolID, createdBy, in)
	if err != nil {
		return nil, err
	}
	if !result.Scheduled {
		uc.gateway.BroadcastToSchool(schoolID, "announcement", result.Notification.Summary())
	}
	return result, nil
}

// SendTest sends a canned in-app notification back to the caller
func (uc *NotificationUsecase) SendTest(ctx context.Context, schoolID, userID string) (*DispatchResult, error) {
	return uc.CreateNotification(ctx, schoolID, userID, CreateNotificationInput{
		Title:         "Test Notification",
		Message:       "This is a test notification. If you can read this, delivery works.",
		Type:          string(domain.General),
		Channels:      []string{string(domain.ChannelInApp)},
		TargetType:    string(domain.TargetSpecificUsers),
		TargetUserIDs: []string{userID},
	})
}

// MyNotifications lists the caller's in-app deliveries, newest first
func (uc *NotificationUsecase) MyNotifications(ctx context.Context, userID string, limit, offset int) ([]*domain.UserDelivery, int, error) {
	items, err := uc.ledger.ListForUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	unread, err := uc.ledger.UnreadCount(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	return items, unread, nil
}

// MarkAsRead records a read receipt and pushes the fresh unread count to the
// user's live connection, if any.
func (uc *NotificationUsecase) MarkAsRead(ctx context.Context, deliveryID, userID string) (int, error) {
	if err := uc.ledger.RecordRead(ctx, deliveryID, userID); err != nil {
		return 0, err
	}
	count, err := uc.ledger.UnreadCount(ctx, userID)
	if err != nil {
		return 0, err
	}
	uc.gateway.SendToUser(userID, "unread:count", map[string]int{"count": count})
	return count, nil
}

// RetryDelivery re-opens a failed delivery and puts it back on the queue
func (uc *NotificationUsecase) RetryDelivery(ctx context.Context, deliveryID string) (*domain.Delivery, error) {
	d, err := uc.ledger.Retry(ctx, deliveryID)
	if err != nil {
		return nil, err
	}
	uc.queue.Enqueue(d.ID)

	uc.logger.Info("Delivery re-queued",
		zap.String("delivery_id", d.ID),
		zap.Int("retry_count", d.RetryCount))
	return d, nil
}

// CancelNotification deactivates a notification so the scheduler will not
// dispatch it. Settled deliveries are untouched. Scoped to the caller's school.
func (uc *NotificationUsecase) CancelNotification(ctx context.Context, id, schoolID string) error {
	if err := uc.notifs.Deactivate(ctx, id, schoolID); err != nil {
		return err
	}
	uc.logger.Info("Notification cancelled", zap.String("notification_id", id))
	return nil
}

// Stats aggregates delivery counts by status and channel for a school
func (uc *NotificationUsecase) Stats(ctx context.Context, schoolID string, from, to *time.Time) ([]domain.DeliveryStat, error) {
	return uc.ledger.Stats(ctx, schoolID, from, to)
}

// ListTemplates describes the notification types the service understands
func (uc *NotificationUsecase) ListTemplates() []TemplateInfo {
	all := []string{
		string(domain.ChannelInApp),
		string(domain.ChannelEmail),
		string(domain.ChannelSMS),
		string(domain.ChannelPush),
	}
	return []TemplateInfo{
		{Type: string(domain.Announcement), Description: "General announcements to the school community", Channels: all},
		{Type: string(domain.Reminder), Description: "Reminders for upcoming events and deadlines", Channels: all},
		{Type: string(domain.Alert), Description: "Urgent alerts requiring immediate attention", Channels: all},
		{Type: string(domain.FeeDue), Description: "Fee due and payment reminders for parents", Channels: all},
		{Type: string(domain.AttendanceAlert), Description: "Absence and attendance notifications", Channels: all},
		{Type: string(domain.ExamResult), Description: "Exam result publication notices", Channels: all},
		{Type: string(domain.General), Description: "Anything that fits no other type", Channels: all},
	}
}
