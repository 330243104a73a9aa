package models

import (
	"strings"
	"time"
)

// Gateway webhook event types
const (
	EventMessage    = "message"
	EventMessageAny = "message.any"
)

// GatewayWebhookPayload is the native envelope sent by the WhatsApp HTTP gateway.
// The flat IncomingMessage shape is also accepted on the same endpoint.
type GatewayWebhookPayload struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"`
	Event     string `json:"event"`
	Session   string `json:"session"`
	Payload   struct {
		ID        string `json:"id"`
		Timestamp int64  `json:"timestamp"`
		From      string `json:"from"`
		FromMe    bool   `json:"fromMe"`
		To        string `json:"to"`
		Body      string `json:"body"`
		HasMedia  bool   `json:"hasMedia"`
		Type      string `json:"type"`
		// Set by the gateway's speech-to-text step for voice notes
		Transcription string `json:"transcription,omitempty"`
	} `json:"payload"`
}

// IsEnvelope reports whether the payload carries a gateway event.
func (p *GatewayWebhookPayload) IsEnvelope() bool {
	return p.Event != "" && p.Payload.From != ""
}

// ToIncomingMessage converts the gateway envelope to the pipeline's message shape.
func (p *GatewayWebhookPayload) ToIncomingMessage() *IncomingMessage {
	msg := &IncomingMessage{
		MessageID:      p.Payload.ID,
		SessionID:      p.Session,
		SenderPhone:    stripChatSuffix(p.Payload.From),
		RecipientPhone: stripChatSuffix(p.Payload.To),
		Direction:      DirectionIncoming,
		Type:           p.Payload.Type,
	}
	if p.Payload.FromMe {
		msg.Direction = DirectionOutgoing
		// For bot messages the customer is the recipient
		msg.SenderPhone, msg.RecipientPhone = msg.RecipientPhone, msg.SenderPhone
	}
	if msg.Type == "" {
		msg.Type = "text"
		if p.Payload.HasMedia {
			msg.Type = "media"
		}
	}
	if p.Payload.Body != "" {
		msg.Text = StringPtr(p.Payload.Body)
	}
	if p.Payload.Transcription != "" {
		msg.MediaTranscription = StringPtr(p.Payload.Transcription)
	}
	ts := p.Payload.Timestamp
	if ts == 0 {
		ts = p.Timestamp
	}
	switch {
	case ts > 1e12:
		msg.ReceivedAt = time.UnixMilli(ts).UTC()
	case ts > 0:
		msg.ReceivedAt = time.Unix(ts, 0).UTC()
	}
	return msg
}

func stripChatSuffix(id string) string {
	if i := strings.Index(id, "@"); i >= 0 {
		return id[:i]
	}
	return id
}
