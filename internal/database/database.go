// Package database is the durable store: customers, catalog, leads,
// notifications and the automation audit log, on SQLite.
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"leadflow/internal/migrations"
	"leadflow/internal/models"
	"leadflow/internal/phone"
	"leadflow/internal/security"
)

type Database struct {
	db        *sql.DB
	encryptor *encryptor
	now       func() time.Time
}

// Option customizes a Database.
type Option func(*Database) error

// WithEncryptionSecret enables at-rest encryption of stored chat text.
// An empty secret leaves it disabled.
func WithEncryptionSecret(secret string) Option {
	return func(d *Database) error {
		enc, err := newEncryptor(secret)
		if err != nil {
			return err
		}
		d.encryptor = enc
		return nil
	}
}

// WithClock replaces the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Database) error {
		d.now = now
		return nil
	}
}

// New opens (creating if needed) the SQLite file at dbPath and applies the
// embedded schema.
func New(ctx context.Context, dbPath string, opts ...Option) (*Database, error) {
	if err := security.ValidateFilePath(dbPath); err != nil {
		return nil, fmt.Errorf("invalid database path: %w", err)
	}

	if dbPath != ":memory:" {
		file, err := os.OpenFile(dbPath, os.O_RDWR|os.O_CREATE, 0600)
		if err != nil {
			return nil, fmt.Errorf("failed to create database file: %w", err)
		}
		if err := file.Close(); err != nil {
			return nil, fmt.Errorf("failed to close database file: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// every pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}

	d, err := open(ctx, db, opts...)
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("%w (close error: %v)", err, closeErr)
		}
		return nil, err
	}
	return d, nil
}

// NewWithDB wraps an already opened handle. The schema is not applied.
func NewWithDB(db *sql.DB, opts ...Option) (*Database, error) {
	d := &Database{db: db, encryptor: &encryptor{}, now: time.Now}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func open(ctx context.Context, db *sql.DB, opts ...Option) (*Database, error) {
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := migrations.Apply(ctx, db); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return NewWithDB(db, opts...)
}

func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_foreign_keys=on&_busy_timeout=5000"
}

func (d *Database) Close() error {
	return d.db.Close()
}

// Ping checks the connection.
func (d *Database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func (d *Database) timestamp() time.Time {
	return d.now().UTC()
}

// CreateCustomer stores a customer and sets its ID.
func (d *Database) CreateCustomer(ctx context.Context, c *models.Customer) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = d.timestamp()
	}
	return withRetry(ctx, "create customer", func() error {
		res, err := d.db.ExecContext(ctx, InsertCustomerQuery,
			c.Name, c.Phone, phone.Suffix(c.Phone), c.SellerID, c.CreatedAt.UTC())
		if err != nil {
			return err
		}
		c.ID, err = res.LastInsertId()
		return err
	})
}

// FindCustomerByPhone returns the customer whose phone equals number or shares
// its match suffix. It returns nil without error when nobody matches.
func (d *Database) FindCustomerByPhone(ctx context.Context, number string) (*models.Customer, error) {
	var c models.Customer
	err := d.db.QueryRowContext(ctx, SelectCustomerByPhoneQuery, number, phone.Suffix(number), number).
		Scan(&c.ID, &c.Name, &c.Phone, &c.SellerID, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find customer: %w", err)
	}
	return &c, nil
}

// CreateProduct adds a catalog entry and sets its ID.
func (d *Database) CreateProduct(ctx context.Context, p *models.Product) error {
	return withRetry(ctx, "create product", func() error {
		res, err := d.db.ExecContext(ctx, InsertProductQuery, p.SKU, p.Name)
		if err != nil {
			return err
		}
		p.ID, err = res.LastInsertId()
		return err
	})
}

// FindProduct tries each term in order against SKU (exact) and name
// (substring) and returns the first active match, or nil.
func (d *Database) FindProduct(ctx context.Context, terms []string) (*models.Product, error) {
	for _, term := range terms {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		pattern := escapeLike(term)
		if pattern == "" {
			continue
		}
		var p models.Product
		err := d.db.QueryRowContext(ctx, SelectProductByTermQuery, term, "%"+pattern+"%", term).
			Scan(&p.ID, &p.SKU, &p.Name)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to find product: %w", err)
		}
		return &p, nil
	}
	return nil, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer("%", "", "_", "").Replace(s)
}

// CreateLead inserts the lead and its items in one transaction and sets
// their IDs.
func (d *Database) CreateLead(ctx context.Context, lead *models.Lead) error {
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = d.timestamp()
	}
	var metadata interface{}
	if len(lead.Metadata) > 0 {
		metadata = string(lead.Metadata)
	}

	return withRetry(ctx, "create lead", func() error {
		tx, err := d.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		res, err := tx.ExecContext(ctx, InsertLeadQuery,
			lead.CustomerID, lead.SellerID, lead.Origin, lead.Note,
			lead.Phone, phone.Suffix(lead.Phone), metadata, lead.CreatedAt.UTC())
		if err != nil {
			return err
		}
		leadID, err := res.LastInsertId()
		if err != nil {
			return err
		}

		for i := range lead.Items {
			item := &lead.Items[i]
			res, err := tx.ExecContext(ctx, InsertLeadItemQuery,
				leadID, item.ProductID, item.Description, item.Quantity, item.Unresolved)
			if err != nil {
				return err
			}
			if item.ID, err = res.LastInsertId(); err != nil {
				return err
			}
			item.LeadID = leadID
		}

		if err := tx.Commit(); err != nil {
			return err
		}
		lead.ID = leadID
		return nil
	})
}

// GetLead loads a lead with its items.
func (d *Database) GetLead(ctx context.Context, id int64) (*models.Lead, error) {
	var (
		lead     models.Lead
		metadata sql.NullString
	)
	err := d.db.QueryRowContext(ctx, SelectLeadQuery, id).Scan(
		&lead.ID, &lead.CustomerID, &lead.SellerID, &lead.Origin, &lead.Note,
		&lead.Phone, &metadata, &lead.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lead: %w", err)
	}
	if metadata.Valid {
		lead.Metadata = json.RawMessage(metadata.String)
	}

	rows, err := d.db.QueryContext(ctx, SelectLeadItemsQuery, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get lead items: %w", err)
	}
	defer rows.Close()

	lead.Items = []models.LeadItem{}
	for rows.Next() {
		var item models.LeadItem
		if err := rows.Scan(&item.ID, &item.LeadID, &item.ProductID, &item.Description, &item.Quantity, &item.Unresolved); err != nil {
			return nil, fmt.Errorf("failed to scan lead item: %w", err)
		}
		lead.Items = append(lead.Items, item)
	}
	return &lead, rows.Err()
}

// InsertNotification stores n and sets its ID and CreatedAt if unset.
func (d *Database) InsertNotification(ctx context.Context, n *models.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = d.timestamp()
	}
	var data interface{}
	if len(n.Data) > 0 {
		data = string(n.Data)
	}
	var expires interface{}
	if n.ExpiresAt != nil {
		expires = n.ExpiresAt.UTC()
	}

	return withRetry(ctx, "insert notification", func() error {
		res, err := d.db.ExecContext(ctx, InsertNotificationQuery,
			n.UserID, string(n.Type), n.Title, n.Message, n.Priority, data, n.CreatedAt.UTC(), expires)
		if err != nil {
			return err
		}
		n.ID, err = res.LastInsertId()
		return err
	})
}

// MarkNotificationRead marks one unread notification owned by userID as read.
func (d *Database) MarkNotificationRead(ctx context.Context, id, userID int64, at time.Time) (bool, error) {
	var affected int64
	err := withRetry(ctx, "mark notification read", func() error {
		res, err := d.db.ExecContext(ctx, MarkNotificationReadQuery, at.UTC(), id, userID)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	return affected > 0, err
}

// MarkAllNotificationsRead marks every unread notification of userID as read.
func (d *Database) MarkAllNotificationsRead(ctx context.Context, userID int64, at time.Time) (int64, error) {
	var affected int64
	err := withRetry(ctx, "mark all notifications read", func() error {
		res, err := d.db.ExecContext(ctx, MarkAllNotificationsReadQuery, at.UTC(), userID)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	return affected, err
}

// CountUnreadNotifications counts unread, unexpired notifications.
func (d *Database) CountUnreadNotifications(ctx context.Context, userID int64) (int, error) {
	var count int
	if err := d.db.QueryRowContext(ctx, CountUnreadNotificationsQuery, userID, d.timestamp()).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}

// ListNotifications returns a newest-first page and the total count.
func (d *Database) ListNotifications(ctx context.Context, userID int64, limit, offset int) ([]models.Notification, int, error) {
	var total int
	if err := d.db.QueryRowContext(ctx, CountNotificationsQuery, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count notifications: %w", err)
	}

	rows, err := d.db.QueryContext(ctx, SelectNotificationsPageQuery, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	out := []models.Notification{}
	for rows.Next() {
		var (
			n       models.Notification
			typ     string
			data    sql.NullString
			readAt  sql.NullTime
			expires sql.NullTime
		)
		if err := rows.Scan(&n.ID, &n.UserID, &typ, &n.Title, &n.Message, &n.Priority, &data, &n.CreatedAt, &readAt, &expires); err != nil {
			return nil, 0, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.Type = models.NotificationType(typ)
		if data.Valid {
			n.Data = json.RawMessage(data.String)
		}
		if readAt.Valid {
			t := readAt.Time
			n.ReadAt = &t
		}
		if expires.Valid {
			t := expires.Time
			n.ExpiresAt = &t
		}
		out = append(out, n)
	}
	return out, total, rows.Err()
}

// DeleteExpiredNotifications removes notifications whose expiry has passed.
func (d *Database) DeleteExpiredNotifications(ctx context.Context) (int64, error) {
	var affected int64
	err := withRetry(ctx, "delete expired notifications", func() error {
		res, err := d.db.ExecContext(ctx, DeleteExpiredNotificationsQuery, d.timestamp())
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	return affected, err
}

// InsertAutomationEvent appends an audit record. Text is encrypted when
// encryption is enabled.
func (d *Database) InsertAutomationEvent(ctx context.Context, e *models.AutomationEvent) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = d.timestamp()
	}
	text, err := d.encryptor.Encrypt(e.Text)
	if err != nil {
		return fmt.Errorf("failed to encrypt event text: %w", err)
	}

	return withRetry(ctx, "insert automation event", func() error {
		_, err := d.db.ExecContext(ctx, InsertAutomationEventQuery,
			e.ID, e.MessageID, e.SenderPhone, phone.Suffix(e.SenderPhone), e.SessionID, text,
			string(e.Intent), e.Confidence, string(e.Sentiment), e.Source,
			e.LeadCreated, e.LeadID, e.AlertSent, e.SkippedReason, e.Error, e.CreatedAt.UTC())
		return err
	})
}

// FindLeadForMessage returns the lead already created for a delivery, if any.
func (d *Database) FindLeadForMessage(ctx context.Context, messageID, senderPhone string) (int64, bool, error) {
	var leadID int64
	err := d.db.QueryRowContext(ctx, SelectLeadForMessageQuery, messageID, senderPhone).Scan(&leadID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to look up lead for message: %w", err)
	}
	return leadID, true, nil
}

// ConversationStats summarizes the processed history of a sender.
func (d *Database) ConversationStats(ctx context.Context, senderPhone string) (models.ConversationStats, error) {
	var stats models.ConversationStats
	suffix := phone.Suffix(senderPhone)

	if err := d.db.QueryRowContext(ctx, CountConversationEventsQuery, suffix).Scan(&stats.MessageCount); err != nil {
		return stats, fmt.Errorf("failed to count conversation events: %w", err)
	}
	if err := d.db.QueryRowContext(ctx, CountLeadsBySuffixQuery, suffix).Scan(&stats.LeadsCount); err != nil {
		return stats, fmt.Errorf("failed to count leads: %w", err)
	}

	var last time.Time
	err := d.db.QueryRowContext(ctx, SelectLastConversationEventQuery, suffix).Scan(&last)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return stats, fmt.Errorf("failed to read last conversation event: %w", err)
	default:
		stats.LastMessageAt = &last
	}
	return stats, nil
}

// RecentTurns returns up to limit classified messages of a sender, newest first.
func (d *Database) RecentTurns(ctx context.Context, senderPhone string, limit int) ([]models.ConversationTurn, error) {
	rows, err := d.db.QueryContext(ctx, SelectRecentTurnsQuery, phone.Suffix(senderPhone), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read recent turns: %w", err)
	}
	defer rows.Close()

	var turns []models.ConversationTurn
	for rows.Next() {
		var (
			turn      models.ConversationTurn
			text      string
			intent    string
			sentiment string
		)
		if err := rows.Scan(&text, &intent, &sentiment, &turn.At); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		if turn.Text, err = d.encryptor.Decrypt(text); err != nil {
			return nil, fmt.Errorf("failed to decrypt turn: %w", err)
		}
		turn.Intent = models.Intent(intent)
		turn.Sentiment = models.Sentiment(sentiment)
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}

// DeleteEventsBefore purges audit records older than cutoff.
func (d *Database) DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var affected int64
	err := withRetry(ctx, "delete automation events", func() error {
		res, err := d.db.ExecContext(ctx, DeleteEventsBeforeQuery, cutoff.UTC())
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	return affected, err
}
