package sender

import (
	"context"

	"school-notification-service/internal/domain"

	"go.uber.org/zap"
)

// PushTransport is the device push provider boundary
type PushTransport interface {
	Send(ctx context.Context, userID, title, body string, data map[string]interface{}) error
}

type PushSender struct {
	transport PushTransport
	logger    *zap.Logger
}

func NewPushSender(transport PushTransport, logger *zap.Logger) *PushSender {
	return &PushSender{transport: transport, logger: logger}
}

func (s *PushSender) Channel() domain.Channel {
	return domain.ChannelPush
}

func (s *PushSender) Send(ctx context.Context, job *Job) bool {
	n := job.Notification
	data := map[string]interface{}{
		"deliveryId":     job.Delivery.ID,
		"notificationId": n.ID,
		"type":           string(n.Type),
	}

	if err := s.transport.Send(ctx, job.Delivery.UserID, n.Title, n.Message, data); err != nil {
		s.logger.Error("Push send failed",
			zap.String("delivery_id", job.Delivery.ID),
			zap.String("user_id", job.Delivery.UserID),
			zap.Error(err))
		return false
	}
	return true
}
