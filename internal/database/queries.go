package database

// Customer and catalog queries
const (
	InsertCustomerQuery = `
		INSERT INTO customers (name, phone, phone_suffix, seller_id, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	SelectCustomerByPhoneQuery = `
		SELECT id, name, phone, seller_id, created_at
		FROM customers
		WHERE phone = ? OR phone_suffix = ?
		ORDER BY (phone = ?) DESC, id ASC
		LIMIT 1
	`

	InsertProductQuery = `
		INSERT INTO products (sku, name, active) VALUES (?, ?, 1)
	`

	SelectProductByTermQuery = `
		SELECT id, sku, name
		FROM products
		WHERE active = 1 AND (sku = ? COLLATE NOCASE OR name LIKE ? COLLATE NOCASE)
		ORDER BY (sku = ? COLLATE NOCASE) DESC, id ASC
		LIMIT 1
	`
)

// Lead queries
const (
	InsertLeadQuery = `
		INSERT INTO leads (customer_id, seller_id, origin, note, phone, phone_suffix, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	InsertLeadItemQuery = `
		INSERT INTO lead_items (lead_id, product_id, description, quantity, unresolved)
		VALUES (?, ?, ?, ?, ?)
	`

	SelectLeadQuery = `
		SELECT id, customer_id, seller_id, origin, note, phone, metadata, created_at
		FROM leads
		WHERE id = ?
	`

	SelectLeadItemsQuery = `
		SELECT id, lead_id, product_id, description, quantity, unresolved
		FROM lead_items
		WHERE lead_id = ?
		ORDER BY id ASC
	`

	CountLeadsBySuffixQuery = `
		SELECT COUNT(*) FROM leads WHERE phone_suffix = ?
	`
)

// Notification queries
const (
	InsertNotificationQuery = `
		INSERT INTO notifications (user_id, type, title, message, priority, data, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	MarkNotificationReadQuery = `
		UPDATE notifications
		SET read_at = ?
		WHERE id = ? AND user_id = ? AND read_at IS NULL
	`

	MarkAllNotificationsReadQuery = `
		UPDATE notifications
		SET read_at = ?
		WHERE user_id = ? AND read_at IS NULL
	`

	CountUnreadNotificationsQuery = `
		SELECT COUNT(*)
		FROM notifications
		WHERE user_id = ? AND read_at IS NULL AND (expires_at IS NULL OR expires_at > ?)
	`

	CountNotificationsQuery = `
		SELECT COUNT(*) FROM notifications WHERE user_id = ?
	`

	SelectNotificationsPageQuery = `
		SELECT id, user_id, type, title, message, priority, data, created_at, read_at, expires_at
		FROM notifications
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`

	DeleteExpiredNotificationsQuery = `
		DELETE FROM notifications WHERE expires_at IS NOT NULL AND expires_at <= ?
	`
)

// Automation audit queries
const (
	InsertAutomationEventQuery = `
		INSERT INTO automation_events (
			id, message_id, sender_phone, sender_suffix, session_id, text,
			intent, confidence, sentiment, source,
			lead_created, lead_id, alert_sent, skipped_reason, error, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	SelectLeadForMessageQuery = `
		SELECT lead_id
		FROM automation_events
		WHERE message_id = ? AND sender_phone = ? AND lead_created = 1 AND lead_id > 0
		ORDER BY created_at ASC
		LIMIT 1
	`

	CountConversationEventsQuery = `
		SELECT COUNT(*)
		FROM automation_events
		WHERE sender_suffix = ? AND skipped_reason = ''
	`

	SelectLastConversationEventQuery = `
		SELECT created_at
		FROM automation_events
		WHERE sender_suffix = ? AND skipped_reason = ''
		ORDER BY created_at DESC
		LIMIT 1
	`

	SelectRecentTurnsQuery = `
		SELECT text, intent, sentiment, created_at
		FROM automation_events
		WHERE sender_suffix = ? AND skipped_reason = '' AND intent != ''
		ORDER BY created_at DESC
		LIMIT ?
	`

	DeleteEventsBeforeQuery = `
		DELETE FROM automation_events WHERE created_at < ?
	`
)
