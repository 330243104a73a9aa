package models

import (
	"strings"
	"time"
)

type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// IncomingMessage is a single chat message delivered by the messaging gateway.
// Text and MediaTranscription are nullable; an audio message usually arrives with
// only a transcription.
type IncomingMessage struct {
	MessageID          string    `json:"message_id"`
	SessionID          string    `json:"session_id"`
	SenderPhone        string    `json:"sender_phone"`
	RecipientPhone     string    `json:"recipient_phone"`
	Text               *string   `json:"text,omitempty"`
	MediaTranscription *string   `json:"media_transcription,omitempty"`
	Direction          Direction `json:"direction"`
	Type               string    `json:"type"`
	ReceivedAt         time.Time `json:"received_at"`
}

// IsOutgoing reports whether the message was sent by the bot itself.
func (m *IncomingMessage) IsOutgoing() bool {
	return Direction(strings.ToLower(string(m.Direction))) == DirectionOutgoing
}

// Content returns the classifiable text, preferring typed text over a media transcription.
func (m *IncomingMessage) Content() (string, bool) {
	if m.Text != nil {
		if t := strings.TrimSpace(*m.Text); t != "" {
			return t, true
		}
	}
	if m.MediaTranscription != nil {
		if t := strings.TrimSpace(*m.MediaTranscription); t != "" {
			return t, true
		}
	}
	return "", false
}

// StringPtr is a small helper for building nullable text fields.
func StringPtr(s string) *string {
	return &s
}
