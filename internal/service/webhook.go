package service

import (
	"bytes"
	"encoding/json"
	"strings"

	apperrors "leadflow/internal/errors"
	"leadflow/internal/models"
	"leadflow/internal/validation"
)

// ParseWebhook decodes a delivery in either the flat message shape or the
// gateway's native event envelope and checks the required fields.
func ParseWebhook(raw []byte) (*models.IncomingMessage, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, apperrors.NewInvalidPayloadError("body", "empty body")
	}

	var envelope models.GatewayWebhookPayload
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, apperrors.NewInvalidPayloadError("body", "malformed JSON")
	}

	var msg *models.IncomingMessage
	if envelope.IsEnvelope() {
		if envelope.Event != models.EventMessage && envelope.Event != models.EventMessageAny {
			return nil, apperrors.NewInvalidPayloadError("event", "unsupported event "+envelope.Event)
		}
		msg = envelope.ToIncomingMessage()
	} else {
		msg = &models.IncomingMessage{}
		if err := json.Unmarshal(raw, msg); err != nil {
			return nil, apperrors.NewInvalidPayloadError("body", "malformed message")
		}
	}

	msg.SenderPhone = strings.TrimSpace(msg.SenderPhone)
	msg.SessionID = strings.TrimSpace(msg.SessionID)
	if msg.SenderPhone == "" {
		return nil, apperrors.NewInvalidPayloadError("sender_phone", "sender_phone is required")
	}
	if msg.SessionID == "" {
		return nil, apperrors.NewInvalidPayloadError("session_id", "session_id is required")
	}
	if err := validation.ValidateSessionName(msg.SessionID); err != nil {
		return nil, invalidField(err)
	}
	if err := validation.ValidateMessageID(msg.MessageID); err != nil {
		return nil, invalidField(err)
	}

	switch models.Direction(strings.ToLower(string(msg.Direction))) {
	case "":
		msg.Direction = models.DirectionIncoming
	case models.DirectionIncoming, models.DirectionOutgoing:
		msg.Direction = models.Direction(strings.ToLower(string(msg.Direction)))
	default:
		return nil, apperrors.NewInvalidPayloadError("direction", "direction must be incoming or outgoing")
	}
	return msg, nil
}

// invalidField turns a field validation failure into a payload error so the
// webhook answers with a single error code.
func invalidField(err error) error {
	appErr, ok := apperrors.As(err)
	if !ok {
		return apperrors.NewInvalidPayloadError("body", err.Error())
	}
	field, _ := appErr.Context["field"].(string)
	return apperrors.NewInvalidPayloadError(field, field+" "+appErr.Message)
}
