package service

import (
	"context"
	"time"

	"leadflow/internal/models"
)

// CustomerStore resolves who is talking to us.
type CustomerStore interface {
	FindCustomerByPhone(ctx context.Context, phone string) (*models.Customer, error)
	ConversationStats(ctx context.Context, senderPhone string) (models.ConversationStats, error)
	RecentTurns(ctx context.Context, senderPhone string, limit int) ([]models.ConversationTurn, error)
}

// LeadStore persists leads and resolves catalog products.
type LeadStore interface {
	FindProduct(ctx context.Context, terms []string) (*models.Product, error)
	CreateLead(ctx context.Context, lead *models.Lead) error
	FindLeadForMessage(ctx context.Context, messageID, senderPhone string) (int64, bool, error)
}

// NotificationStore is the durable side of the notification system.
type NotificationStore interface {
	InsertNotification(ctx context.Context, n *models.Notification) error
	MarkNotificationRead(ctx context.Context, id, userID int64, at time.Time) (bool, error)
	MarkAllNotificationsRead(ctx context.Context, userID int64, at time.Time) (int64, error)
	CountUnreadNotifications(ctx context.Context, userID int64) (int, error)
	ListNotifications(ctx context.Context, userID int64, limit, offset int) ([]models.Notification, int, error)
	DeleteExpiredNotifications(ctx context.Context) (int64, error)
}

// AuditStore is the append-only automation log.
type AuditStore interface {
	InsertAutomationEvent(ctx context.Context, e *models.AutomationEvent) error
	DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// FlagChecker reports runtime feature switches.
type FlagChecker interface {
	IsEnabled(flagName string) bool
}
