package domain

import "time"

// DeliveryStatus is the per-attempt state of a delivery row
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "PENDING"
	DeliveryDelivered DeliveryStatus = "DELIVERED"
	DeliveryFailed    DeliveryStatus = "FAILED"
)

// MetaReadAt is the metadata key holding the read-receipt timestamp
const MetaReadAt = "readAt"

// Delivery is one (notification, user, channel) row. Rows are never deleted;
// terminal transitions are idempotent and retries re-enter PENDING on the
// same row.
type Delivery struct {
	ID             string
	NotificationID string
	UserID         string
	Channel        Channel
	Status         DeliveryStatus
	DeliveredAt    *time.Time
	FailureReason  *string
	RetryCount     int
	Metadata       map[string]interface{}
	CreatedAt      time.Time
}

// Terminal reports whether the current attempt cycle has settled
func (d *Delivery) Terminal() bool {
	return d.Status == DeliveryDelivered || d.Status == DeliveryFailed
}

// ReadAt returns the read-receipt timestamp stashed in metadata, if any
func (d *Delivery) ReadAt() (string, bool) {
	if d.Metadata == nil {
		return "", false
	}
	v, ok := d.Metadata[MetaReadAt]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

// PushMessage is the realtime payload for one in-app delivery. The id is the
// delivery id so the client can ack read state against it.
type PushMessage struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Type      string     `json:"type"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

func NewPushMessage(d *Delivery, n *Notification) PushMessage {
	return PushMessage{
		ID:        d.ID,
		Title:     n.Title,
		Message:   n.Message,
		Type:      string(n.Type),
		CreatedAt: n.CreatedAt,
		ExpiresAt: n.ExpiresAt,
	}
}

// UserDelivery is an in-app delivery with its notification summary embedded,
// as returned by the my-notifications listing.
type UserDelivery struct {
	Delivery     *Delivery `json:"delivery"`
	Notification Summary   `json:"notification"`
}

// DeliveryStat is one row of the stats query, grouped by (status, channel)
type DeliveryStat struct {
	Status  DeliveryStatus `json:"status"`
	Channel Channel        `json:"channel"`
	Count   int            `json:"count"`
}
