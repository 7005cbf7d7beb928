package sender

import (
	"context"

	"school-notification-service/internal/domain"

	"go.uber.org/zap"
)

// InAppSender pushes the delivery over the realtime gateway. The delivery is
// durable once its ledger row exists, so the send always succeeds; whether
// the user was actually connected is only interesting for the logs.
type InAppSender struct {
	pusher Pusher
	logger *zap.Logger
}

func NewInAppSender(pusher Pusher, logger *zap.Logger) *InAppSender {
	return &InAppSender{pusher: pusher, logger: logger}
}

func (s *InAppSender) Channel() domain.Channel {
	return domain.ChannelInApp
}

func (s *InAppSender) Send(ctx context.Context, job *Job) bool {
	reached := s.pusher.SendToUser(job.Delivery.UserID, "notification",
		domain.NewPushMessage(job.Delivery, job.Notification))

	s.logger.Info("In-app notification processed",
		zap.String("delivery_id", job.Delivery.ID),
		zap.String("user_id", job.Delivery.UserID),
		zap.Bool("websocket_reached", reached))
	return true
}
