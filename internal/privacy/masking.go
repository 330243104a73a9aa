package privacy

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const maskRune = "*"

// MaskPhoneNumber keeps the last four digits and a leading "+".
// Example: "+5511987654321" -> "+*********4321"
func MaskPhoneNumber(phone string) string {
	if phone == "" {
		return ""
	}
	if rest, ok := strings.CutPrefix(phone, "+"); ok {
		if rest == "" {
			return phone
		}
		return "+" + maskTail(rest, 4)
	}
	return maskTail(phone, 4)
}

// MaskJID masks the user part of a WhatsApp address and keeps the server.
// Example: "5511987654321@s.whatsapp.net" -> "*********4321@s.whatsapp.net"
func MaskJID(jid string) string {
	user, server, ok := strings.Cut(jid, "@")
	if !ok {
		return maskTail(jid, 4)
	}
	if device, _, hasDevice := strings.Cut(user, ":"); hasDevice {
		user = device
	}
	return maskTail(user, 4) + "@" + server
}

// MaskMessageID masks gateway message IDs. Serialized IDs of the form
// "fromMe_chat@server_id" keep the direction flag and server.
// Example: "false_5511987654321@c.us_3EB0A1B2C3D4" -> "false_*********4321@c.us_********C3D4"
func MaskMessageID(messageID string) string {
	if messageID == "" {
		return ""
	}
	parts := strings.SplitN(messageID, "_", 3)
	if len(parts) == 3 && (parts[0] == "true" || parts[0] == "false") {
		return parts[0] + "_" + MaskJID(parts[1]) + "_" + maskTail(parts[2], 4)
	}
	return maskTail(messageID, 8)
}

// MaskSession keeps the first dash separated segment of a session name.
// Example: "store-42-main" -> "store-**-*ain"
func MaskSession(session string) string {
	parts := strings.Split(session, "-")
	if len(parts) < 2 {
		return maskTail(session, 3)
	}
	for i := 1; i < len(parts)-1; i++ {
		parts[i] = strings.Repeat(maskRune, utf8.RuneCountInString(parts[i]))
	}
	parts[len(parts)-1] = maskTail(parts[len(parts)-1], 3)
	return strings.Join(parts, "-")
}

// MaskText replaces message content with its length so logs never carry
// customer text.
func MaskText(text string) string {
	if text == "" {
		return ""
	}
	return fmt.Sprintf("[redacted %d chars]", utf8.RuneCountInString(text))
}

// MaskIdentifier masks a generic identifier, treating long digit runs as
// phone numbers.
func MaskIdentifier(id string) string {
	if strings.HasPrefix(id, "+") || (len(id) >= 10 && isNumeric(id)) {
		return MaskPhoneNumber(id)
	}
	return maskTail(id, 4)
}

var fieldMaskers = map[string]func(string) string{
	"phone":          MaskPhoneNumber,
	"sender":         MaskPhoneNumber,
	"customer_phone": MaskPhoneNumber,
	"from":           MaskPhoneNumber,
	"to":             MaskPhoneNumber,
	"chat_id":        MaskJID,
	"jid":            MaskJID,
	"message_id":     MaskMessageID,
	"session":        MaskSession,
	"id":             MaskIdentifier,
	"user_id":        MaskIdentifier,
	"contact_id":     MaskIdentifier,
	"text":           MaskText,
	"content":        MaskText,
	"body":           MaskText,
	"transcription":  MaskText,
}

// MaskSensitiveFields returns a copy of fields with known personal data
// masked. Non-string values pass through.
func MaskSensitiveFields(fields map[string]interface{}) map[string]interface{} {
	if fields == nil {
		return nil
	}
	masked := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		s, isString := v.(string)
		if mask, ok := fieldMaskers[k]; ok && isString {
			masked[k] = mask(s)
			continue
		}
		masked[k] = v
	}
	return masked
}

// maskTail masks all but the last keep runes; strings no longer than keep
// are fully masked.
func maskTail(s string, keep int) string {
	runes := []rune(s)
	if len(runes) <= keep {
		return strings.Repeat(maskRune, len(runes))
	}
	return strings.Repeat(maskRune, len(runes)-keep) + string(runes[len(runes)-keep:])
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
