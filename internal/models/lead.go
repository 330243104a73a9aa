package models

import (
	"encoding/json"
	"time"
)

const LeadOriginWhatsApp = "whatsapp"

// Lead is a sales lead materialized from a classified message.
type Lead struct {
	ID         int64           `json:"id"`
	CustomerID int64           `json:"customer_id"`
	SellerID   int64           `json:"seller_id"`
	Origin     string          `json:"origin"`
	Note       string          `json:"note"`
	Phone      string          `json:"phone"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	Items      []LeadItem      `json:"items"`
	CreatedAt  time.Time       `json:"created_at"`
}

// LeadItem is a requested product. Items the catalog could not match are kept
// with Unresolved set and ProductID zero.
type LeadItem struct {
	ID          int64  `json:"id"`
	LeadID      int64  `json:"lead_id"`
	ProductID   int64  `json:"product_id"`
	Description string `json:"description"`
	Quantity    int    `json:"quantity"`
	Unresolved  bool   `json:"unresolved"`
}

// LeadOrigin is recorded alongside the lead for later audit and training.
type LeadOrigin struct {
	SessionID  string   `json:"session_id"`
	MessageID  string   `json:"message_id"`
	Intent     Intent   `json:"intent"`
	Confidence float64  `json:"confidence"`
	Source     string   `json:"source"`
	Entities   Entities `json:"entities"`
}

// Product is a catalog entry used to resolve free-text product mentions.
type Product struct {
	ID   int64  `json:"id"`
	SKU  string `json:"sku"`
	Name string `json:"name"`
}
