package models

import "time"

// Customer is the linked customer record owned by the storage layer.
type Customer struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	SellerID  int64     `json:"seller_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ConversationStats summarizes the recent activity of a sender.
type ConversationStats struct {
	MessageCount  int        `json:"message_count"`
	LeadsCount    int        `json:"leads_count"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
}

// ConversationTurn is a prior processed message used as classification context.
type ConversationTurn struct {
	Text      string    `json:"text"`
	Intent    Intent    `json:"intent"`
	Sentiment Sentiment `json:"sentiment"`
	At        time.Time `json:"at"`
}

// CustomerContext is a read-only snapshot assembled per classification call.
type CustomerContext struct {
	IsKnown         bool               `json:"is_known"`
	Customer        *Customer          `json:"linked_customer,omitempty"`
	SellerID        int64              `json:"seller_id,omitempty"`
	RecentSentiment Sentiment          `json:"recent_sentiment"`
	Stats           ConversationStats  `json:"stats"`
	RecentTurns     []ConversationTurn `json:"-"`
}

// HasSeller reports whether an operator is assigned to the sender.
func (c *CustomerContext) HasSeller() bool {
	return c != nil && c.SellerID > 0
}

// CustomerName returns the linked customer's name, if any.
func (c *CustomerContext) CustomerName() string {
	if c == nil || c.Customer == nil {
		return ""
	}
	return c.Customer.Name
}

// CustomerID returns the linked customer id, or 0 when unlinked.
func (c *CustomerContext) CustomerID() int64 {
	if c == nil || c.Customer == nil {
		return 0
	}
	return c.Customer.ID
}
