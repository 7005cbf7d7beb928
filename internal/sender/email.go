package sender

import (
	"context"

	"school-notification-service/internal/domain"
	"school-notification-service/pkg/template"

	"go.uber.org/zap"
)

// EmailTransport is the outbound mail boundary
type EmailTransport interface {
	Send(to, subject, body string) error
}

type EmailSender struct {
	transport EmailTransport
	templates *template.TemplateService
	logger    *zap.Logger
}

func NewEmailSender(transport EmailTransport, templates *template.TemplateService, logger *zap.Logger) *EmailSender {
	return &EmailSender{transport: transport, templates: templates, logger: logger}
}

func (s *EmailSender) Channel() domain.Channel {
	return domain.ChannelEmail
}

func (s *EmailSender) Send(ctx context.Context, job *Job) bool {
	if job.User == nil || job.User.Email == "" {
		s.logger.Warn("Skipping email send, no recipient address",
			zap.String("delivery_id", job.Delivery.ID),
			zap.String("user_id", job.Delivery.UserID))
		return false
	}

	n := job.Notification
	body := n.Message
	data := template.NewData(n.Title, n.Message, string(n.Type), job.User.FirstName)
	if rendered, err := s.templates.RenderEmail(data); err == nil {
		body = rendered
	} else {
		s.logger.Warn("Email template render failed", zap.Error(err))
	}

	if err := s.transport.Send(job.User.Email, n.Title, body); err != nil {
		s.logger.Error("Email send failed",
			zap.String("delivery_id", job.Delivery.ID),
			zap.String("user_id", job.Delivery.UserID),
			zap.Error(err))
		return false
	}
	return true
}
