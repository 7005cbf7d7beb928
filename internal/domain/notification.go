package domain

import (
	"time"

	"school-notification-service/pkg/xerrors"
)

// NotificationType defines category of messages
type NotificationType string

const (
	Announcement    NotificationType = "ANNOUNCEMENT"
	Reminder        NotificationType = "REMINDER"
	Alert           NotificationType = "ALERT"
	FeeDue          NotificationType = "FEE_DUE"
	AttendanceAlert NotificationType = "ATTENDANCE_ALERT"
	ExamResult      NotificationType = "EXAM_RESULT"
	General         NotificationType = "GENERAL"
)

// Channel is a delivery channel for a notification
type Channel string

const (
	ChannelInApp Channel = "IN_APP"
	ChannelEmail Channel = "EMAIL"
	ChannelSMS   Channel = "SMS"
	ChannelPush  Channel = "PUSH"
)

func ValidChannel(c Channel) bool {
	switch c {
	case ChannelInApp, ChannelEmail, ChannelSMS, ChannelPush:
		return true
	}
	return false
}

// TargetType selects how the recipient audience is resolved
type TargetType string

const (
	TargetAllUsers      TargetType = "ALL_USERS"
	TargetSpecificRoles TargetType = "SPECIFIC_ROLES"
	TargetSpecificUsers TargetType = "SPECIFIC_USERS"
	TargetBranchWise    TargetType = "BRANCH_WISE"
	TargetClassWise     TargetType = "CLASS_WISE"
	TargetSectionWise   TargetType = "SECTION_WISE"
)

type Notification struct {
	ID               string
	SchoolID         string
	BranchID         *string
	Title            string
	Message          string
	Type             NotificationType
	Channels         []Channel
	TargetType       TargetType
	TargetRoles      []Role
	TargetUserIDs    []string
	TargetBranchIDs  []string
	TargetClassIDs   []string
	TargetSectionIDs []string
	Filters          map[string]interface{}
	ScheduledAt      *time.Time
	ExpiresAt        *time.Time
	CreatedBy        string
	CreatedAt        time.Time
	IsActive         bool
}

// ValidateTargeting rejects unknown targeting variants before anything is persisted
func (n *Notification) ValidateTargeting() error {
	switch n.TargetType {
	case TargetAllUsers, TargetSpecificRoles, TargetSpecificUsers,
		TargetBranchWise, TargetClassWise, TargetSectionWise:
		return nil
	}
	return xerrors.ErrInvalidTarget
}

// ValidateChannels rejects unknown channels and empty channel sets
func (n *Notification) ValidateChannels() error {
	if len(n.Channels) == 0 {
		return xerrors.ErrInvalidChannel
	}
	for _, c := range n.Channels {
		if !ValidChannel(c) {
			return xerrors.ErrInvalidChannel
		}
	}
	return nil
}

// DueNow reports whether the notification should be dispatched immediately
func (n *Notification) DueNow(now time.Time) bool {
	return n.ScheduledAt == nil || !n.ScheduledAt.After(now)
}

// Expired reports whether the notification is past its expiry
func (n *Notification) Expired(now time.Time) bool {
	return n.ExpiresAt != nil && n.ExpiresAt.Before(now)
}

// Summary is the embedded notification view returned with in-app deliveries
// and pushed over the realtime gateway.
type Summary struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Type      string     `json:"type"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

func (n *Notification) Summary() Summary {
	return Summary{
		ID:        n.ID,
		Title:     n.Title,
		Message:   n.Message,
		Type:      string(n.Type),
		CreatedAt: n.CreatedAt,
		ExpiresAt: n.ExpiresAt,
	}
}
