package validation

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode"

	"leadflow/internal/constants"
	"leadflow/internal/errors"
)

// ValidateMessageID rejects oversized gateway message IDs and IDs carrying
// control characters. An empty ID is allowed; the gateway omits it for some
// synthetic events.
func ValidateMessageID(messageID string) error {
	if len(messageID) > constants.MaxMessageIDLength {
		return errors.NewValidationError("message_id", truncate(messageID),
			fmt.Sprintf("too long (max %d characters)", constants.MaxMessageIDLength))
	}
	if strings.IndexFunc(messageID, unicode.IsControl) >= 0 {
		return errors.NewValidationError("message_id", truncate(messageID), "contains control characters")
	}
	return nil
}

// ValidateSessionName checks a gateway session name: letters, digits, '-',
// '_' and '.' only.
func ValidateSessionName(session string) error {
	if err := ValidateStringLength(session, "session_id", 1, constants.MaxSessionNameLength); err != nil {
		return err
	}
	for _, r := range session {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '_' && r != '.' {
			return errors.NewValidationError("session_id", session, "contains invalid characters")
		}
	}
	return nil
}

// ParseUserID validates the numeric user ID carried by notification API
// requests.
func ParseUserID(raw string) (int64, error) {
	return parsePositiveID("user_id", raw)
}

// ParseNotificationID validates a notification ID path segment.
func ParseNotificationID(raw string) (int64, error) {
	return parsePositiveID("notification_id", raw)
}

func parsePositiveID(field, raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, errors.NewValidationError(field, raw, "is required")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, errors.NewValidationError(field, truncate(raw), "must be a positive integer")
	}
	return id, nil
}

// ValidatePageSize bounds a history page size.
func ValidatePageSize(size int) error {
	return ValidateNumericRange(size, "size", 1, constants.MaxNotificationPageSize)
}

// ParseSince parses the last_check query parameter. Both RFC 3339 timestamps
// and Unix seconds are accepted; an empty value yields nil.
func ParseSince(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		t = t.UTC()
		return &t, nil
	}
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil && secs >= 0 {
		t := time.Unix(secs, 0).UTC()
		return &t, nil
	}
	return nil, errors.NewValidationError("last_check", truncate(raw), "must be an RFC 3339 timestamp or Unix seconds")
}

// ValidateHTTPRequestSize rejects requests whose declared length exceeds
// maxSizeBytes. Chunked bodies are bounded separately by the handler.
func ValidateHTTPRequestSize(r *http.Request, maxSizeBytes int64) error {
	if maxSizeBytes > 0 && r.ContentLength > maxSizeBytes {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("request body too large: %d bytes (max %d)", r.ContentLength, maxSizeBytes)).
			WithContext("field", "body").
			WithUserMessage("Request body too large")
	}
	return nil
}

// ValidateStringLength checks a rune length range.
func ValidateStringLength(value, fieldName string, minLength, maxLength int) error {
	n := len([]rune(value))
	if n < minLength {
		return errors.NewValidationError(fieldName, value, fmt.Sprintf("must be at least %d characters", minLength))
	}
	if n > maxLength {
		return errors.NewValidationError(fieldName, truncate(value), fmt.Sprintf("must be at most %d characters", maxLength))
	}
	return nil
}

func ValidateNumericRange(value int, fieldName string, min, max int) error {
	if value < min || value > max {
		return errors.NewValidationError(fieldName, strconv.Itoa(value), fmt.Sprintf("must be between %d and %d", min, max))
	}
	return nil
}

func truncate(s string) string {
	const max = 32
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
