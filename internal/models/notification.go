package models

import (
	"encoding/json"
	"time"
)

type NotificationType string

const (
	NotificationLeadCreated  NotificationType = "lead_created"
	NotificationSellerAlert  NotificationType = "seller_alert"
	NotificationComplaint    NotificationType = "complaint"
	NotificationSystemNotice NotificationType = "system"
)

// Notification priorities, 1 (low) through 4 (urgent).
const (
	PriorityLow    = 1
	PriorityNormal = 2
	PriorityHigh   = 3
	PriorityUrgent = 4
)

// Notification is stored durably and mirrored into a per-user ephemeral buffer.
type Notification struct {
	ID        int64            `json:"id"`
	UserID    int64            `json:"user_id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Priority  int              `json:"priority"`
	Data      json.RawMessage  `json:"data,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	ReadAt    *time.Time       `json:"read_at,omitempty"`
	ExpiresAt *time.Time       `json:"expires_at,omitempty"`
}

// IsRead reports whether the notification has been acknowledged.
func (n *Notification) IsRead() bool {
	return n.ReadAt != nil
}
