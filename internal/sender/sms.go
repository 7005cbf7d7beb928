package sender

import (
	"context"

	"school-notification-service/internal/domain"
	"school-notification-service/pkg/template"

	"go.uber.org/zap"
)

// SMSTransport is the outbound SMS gateway boundary
type SMSTransport interface {
	Send(ctx context.Context, recipient, body string) error
}

type SMSSender struct {
	transport SMSTransport
	templates *template.TemplateService
	logger    *zap.Logger
}

func NewSMSSender(transport SMSTransport, templates *template.TemplateService, logger *zap.Logger) *SMSSender {
	return &SMSSender{transport: transport, templates: templates, logger: logger}
}

func (s *SMSSender) Channel() domain.Channel {
	return domain.ChannelSMS
}

func (s *SMSSender) Send(ctx context.Context, job *Job) bool {
	if job.User == nil || job.User.Phone == "" {
		s.logger.Warn("Skipping SMS send, no recipient phone",
			zap.String("delivery_id", job.Delivery.ID),
			zap.String("user_id", job.Delivery.UserID))
		return false
	}

	n := job.Notification
	body := n.Title + ": " + n.Message
	data := template.NewData(n.Title, n.Message, string(n.Type), job.User.FirstName)
	if rendered, err := s.templates.RenderSMS(data); err == nil {
		body = rendered
	} else {
		s.logger.Warn("SMS template render failed", zap.Error(err))
	}

	if err := s.transport.Send(ctx, job.User.Phone, body); err != nil {
		s.logger.Error("SMS send failed",
			zap.String("delivery_id", job.Delivery.ID),
			zap.String("user_id", job.Delivery.UserID),
			zap.Error(err))
		return false
	}
	return true
}
