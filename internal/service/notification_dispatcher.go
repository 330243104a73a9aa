package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"leadflow/internal/constants"
	apperrors "leadflow/internal/errors"
	"leadflow/internal/kv"
	"leadflow/internal/metrics"
	"leadflow/internal/models"
)

const notificationKeyPrefix = "notifications:"

// NotificationConfig sizes the ephemeral buffer and durable expiry.
type NotificationConfig struct {
	BufferSize int
	BufferTTL  time.Duration
	// Expiry sets ExpiresAt on new notifications; zero keeps them forever.
	Expiry time.Duration
}

// NotificationDispatcher writes every notification durably and mirrors it
// into a short per-user list that polling clients read cheaply.
type NotificationDispatcher struct {
	store   NotificationStore
	buffer  kv.Store
	cfg     NotificationConfig
	now     func() time.Time
	metrics *metrics.Pipeline
	logger  logrus.FieldLogger
}

func NewNotificationDispatcher(store NotificationStore, buffer kv.Store, cfg NotificationConfig, m *metrics.Pipeline, logger logrus.FieldLogger) *NotificationDispatcher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = constants.DefaultNotificationBufferSize
	}
	if cfg.BufferTTL <= 0 {
		cfg.BufferTTL = constants.DefaultNotificationBufferTTL
	}
	return &NotificationDispatcher{
		store:   store,
		buffer:  buffer,
		cfg:     cfg,
		now:     time.Now,
		metrics: m,
		logger:  logger,
	}
}

func bufferKey(userID int64) string {
	return fmt.Sprintf("%s%d", notificationKeyPrefix, userID)
}

// Create stores n durably and then pushes a copy to the user's buffer. A
// buffer failure is logged and does not fail the call.
func (d *NotificationDispatcher) Create(ctx context.Context, n *models.Notification) (int64, error) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = d.now().UTC()
	}
	if n.ExpiresAt == nil && d.cfg.Expiry > 0 {
		expires := n.CreatedAt.Add(d.cfg.Expiry)
		n.ExpiresAt = &expires
	}

	if err := d.store.InsertNotification(ctx, n); err != nil {
		d.metrics.ObserveNotificationFailure("durable")
		return 0, apperrors.NewNotificationDeliveryError("durable", err)
	}

	if err := d.push(ctx, n); err != nil {
		d.metrics.ObserveNotificationFailure("ephemeral")
		apperrors.LogWarn(d.logger, apperrors.NewNotificationDeliveryError("ephemeral", err),
			"Failed to buffer notification", logrus.Fields{LogFieldUserID: n.UserID})
	}
	return n.ID, nil
}

func (d *NotificationDispatcher) push(ctx context.Context, n *models.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return d.buffer.PushFront(ctx, bufferKey(n.UserID), data, int64(d.cfg.BufferSize), d.cfg.BufferTTL)
}

// GetPending returns the buffered notifications of userID, newest first,
// optionally only those created after since. It never reads durable rows.
func (d *NotificationDispatcher) GetPending(ctx context.Context, userID int64, since *time.Time) ([]models.Notification, error) {
	items, err := d.buffered(ctx, userID)
	if err != nil {
		return nil, err
	}
	if since == nil {
		return items, nil
	}
	filtered := make([]models.Notification, 0, len(items))
	for _, n := range items {
		if n.CreatedAt.After(*since) {
			filtered = append(filtered, n)
		}
	}
	return filtered, nil
}

func (d *NotificationDispatcher) buffered(ctx context.Context, userID int64) ([]models.Notification, error) {
	raw, err := d.buffer.Range(ctx, bufferKey(userID), 0, -1)
	if err != nil {
		return nil, apperrors.NewCacheError("read notification buffer", err)
	}
	items := make([]models.Notification, 0, len(raw))
	for _, data := range raw {
		var n models.Notification
		if err := json.Unmarshal(data, &n); err != nil {
			d.logger.WithError(err).WithField(LogFieldUserID, userID).Warn("Skipping malformed buffered notification")
			continue
		}
		items = append(items, n)
	}
	return items, nil
}

// MarkRead marks one notification of userID as read.
func (d *NotificationDispatcher) MarkRead(ctx context.Context, id, userID int64) (bool, error) {
	at := d.now().UTC()
	ok, err := d.store.MarkNotificationRead(ctx, id, userID, at)
	if err != nil {
		return false, apperrors.NewDatabaseError("mark notification read", err)
	}
	if ok {
		d.rewriteBuffer(ctx, userID, at, func(n *models.Notification) bool { return n.ID == id })
	}
	return ok, nil
}

// MarkAllRead marks every unread notification of userID as read.
func (d *NotificationDispatcher) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	at := d.now().UTC()
	count, err := d.store.MarkAllNotificationsRead(ctx, userID, at)
	if err != nil {
		return 0, apperrors.NewDatabaseError("mark all notifications read", err)
	}
	d.rewriteBuffer(ctx, userID, at, func(n *models.Notification) bool { return !n.CreatedAt.After(at) })
	return count, nil
}

// rewriteBuffer stamps read_at on matching buffered copies. Items stay in
// the buffer until it expires. Notifications pushed while the rewrite runs
// are kept as they are.
func (d *NotificationDispatcher) rewriteBuffer(ctx context.Context, userID int64, at time.Time, match func(*models.Notification) bool) {
	err := d.buffer.UpdateList(ctx, bufferKey(userID), func(raw [][]byte) ([][]byte, bool) {
		values := make([][]byte, len(raw))
		changed := false
		for i, data := range raw {
			values[i] = data
			var n models.Notification
			if err := json.Unmarshal(data, &n); err != nil || n.ReadAt != nil || !match(&n) {
				continue
			}
			stamp := at
			n.ReadAt = &stamp
			if updated, err := json.Marshal(&n); err == nil {
				values[i] = updated
				changed = true
			}
		}
		return values, changed
	})
	if err != nil {
		apperrors.LogWarn(d.logger, apperrors.NewCacheError("rewrite notification buffer", err),
			"Failed to refresh notification buffer", logrus.Fields{LogFieldUserID: userID})
	}
}

// UnreadCount counts unread, unexpired notifications from durable storage.
func (d *NotificationDispatcher) UnreadCount(ctx context.Context, userID int64) (int, error) {
	count, err := d.store.CountUnreadNotifications(ctx, userID)
	if err != nil {
		return 0, apperrors.NewDatabaseError("count unread notifications", err)
	}
	return count, nil
}

// List pages through durable notifications, newest first. Page is 1-based.
func (d *NotificationDispatcher) List(ctx context.Context, userID int64, page, size int) ([]models.Notification, int, error) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = constants.DefaultNotificationPageSize
	}
	if size > constants.MaxNotificationPageSize {
		size = constants.MaxNotificationPageSize
	}
	items, total, err := d.store.ListNotifications(ctx, userID, size, (page-1)*size)
	if err != nil {
		return nil, 0, apperrors.NewDatabaseError("list notifications", err)
	}
	return items, total, nil
}

// PurgeExpired deletes durable notifications past their expiry.
func (d *NotificationDispatcher) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := d.store.DeleteExpiredNotifications(ctx)
	if err != nil {
		return 0, apperrors.NewDatabaseError("purge expired notifications", err)
	}
	return n, nil
}
