package sender

import (
	"context"

	"school-notification-service/internal/domain"
)

// Job is one delivery attempt handed to a channel sender by the queue. The
// directory record may be nil when the delivery targets an id the directory
// no longer knows; senders that need contact details treat that as a failure.
type Job struct {
	Delivery     *domain.Delivery
	Notification *domain.Notification
	User         *domain.DirectoryUser
}

// Sender attempts one delivery on its channel. The boolean result is the only
// thing the queue acts on; senders never touch the ledger and never let a
// transport error escape.
type Sender interface {
	Channel() domain.Channel
	Send(ctx context.Context, job *Job) bool
}

// Pusher is the slice of the realtime gateway that the in-app sender uses
type Pusher interface {
	SendToUser(userID string, event string, payload interface{}) bool
}
