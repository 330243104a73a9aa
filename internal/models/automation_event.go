package models

import "time"

// AutomationEvent is the append-only audit record written for every delivery
// that passes payload validation, whatever its outcome.
type AutomationEvent struct {
	ID            string    `json:"id"`
	MessageID     string    `json:"message_id"`
	SenderPhone   string    `json:"sender_phone"`
	SessionID     string    `json:"session_id"`
	Text          string    `json:"text,omitempty"`
	Intent        Intent    `json:"intent,omitempty"`
	Confidence    float64   `json:"confidence"`
	Sentiment     Sentiment `json:"sentiment,omitempty"`
	Source        string    `json:"source,omitempty"`
	LeadCreated   bool      `json:"lead_created"`
	LeadID        int64     `json:"lead_id,omitempty"`
	AlertSent     bool      `json:"alert_sent"`
	SkippedReason string    `json:"skipped_reason,omitempty"`
	Error         string    `json:"error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
