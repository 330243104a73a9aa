package errors

import (
	"fmt"
	"net/http"
)

// NewInvalidPayloadError reports a webhook payload missing a required field.
func NewInvalidPayloadError(field, message string) *AppError {
	return New(ErrCodeInvalidPayload, message).
		WithContext("field", field).
		WithUserMessage(fmt.Sprintf("Invalid payload: %s", message))
}

// NewInvalidSignatureError reports a webhook signature that failed verification.
func NewInvalidSignatureError(reason string) *AppError {
	return New(ErrCodeInvalidSignature, "webhook signature verification failed").
		WithContext("reason", reason).
		WithUserMessage("Invalid signature")
}

// NewClassificationUnavailableError wraps an AI backend failure. It is logged and
// recovered by the rule-based fallback, never returned to callers.
func NewClassificationUnavailableError(err error) *AppError {
	return WrapRetryable(err, ErrCodeClassificationUnavailable, "AI classifier unavailable")
}

// NewMaterializationError wraps a storage failure while creating a lead.
func NewMaterializationError(step string, err error) *AppError {
	return Wrap(err, ErrCodeMaterializationFailure, fmt.Sprintf("lead materialization failed at %s", step)).
		WithContext("step", step)
}

// NewNotificationDeliveryError wraps a failure on one of the notification channels.
func NewNotificationDeliveryError(channel string, err error) *AppError {
	return Wrap(err, ErrCodeNotificationDeliveryFailure, fmt.Sprintf("notification %s write failed", channel)).
		WithContext("channel", channel)
}

// NewValidationError creates a validation error with field context
func NewValidationError(field, value, message string) *AppError {
	return New(ErrCodeInvalidInput, message).
		WithContext("field", field).
		WithContext("value", value).
		WithUserMessage(fmt.Sprintf("Invalid %s: %s", field, message))
}

// NewConfigError creates a configuration error
func NewConfigError(key, message string) *AppError {
	return New(ErrCodeInvalidConfig, message).
		WithContext("config_key", key).
		WithUserMessage("Configuration error")
}

// NewDatabaseError creates a database error with operation context
func NewDatabaseError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeDatabaseQuery, fmt.Sprintf("database %s failed", operation)).
		WithContext("operation", operation).
		WithUserMessage("Database operation failed")
}

// NewCacheError creates a key-value store error
func NewCacheError(operation string, err error) *AppError {
	return WrapRetryable(err, ErrCodeCache, fmt.Sprintf("cache %s failed", operation)).
		WithContext("operation", operation)
}

// NewAuthError creates an authentication error
func NewAuthError(reason string) *AppError {
	return New(ErrCodeAuthentication, "authentication failed").
		WithContext("reason", reason).
		WithUserMessage("Authentication failed")
}

// NewNotFoundError creates a not found error with resource context
func NewNotFoundError(resource, identifier string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource)).
		WithContext("resource", resource).
		WithContext("identifier", identifier).
		WithUserMessage(fmt.Sprintf("%s not found", resource))
}

// HTTPStatusCode maps error codes to appropriate HTTP status codes
func HTTPStatusCode(err error) int {
	switch GetCode(err) {
	case ErrCodeInvalidPayload, ErrCodeInvalidInput, ErrCodeInvalidConfig:
		return http.StatusBadRequest
	case ErrCodeInvalidSignature, ErrCodeAuthentication:
		return http.StatusUnauthorized
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case ErrCodeDatabaseConnection, ErrCodeDatabaseQuery, ErrCodeCache:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// HTTPErrorResponse is the error body returned by the API
type HTTPErrorResponse struct {
	Success bool `json:"success"`
	Error   struct {
		Code    ErrorCode   `json:"code"`
		Message string      `json:"message"`
		Context interface{} `json:"context,omitempty"`
	} `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// ToHTTPResponse converts an error to a standardized HTTP response
func ToHTTPResponse(err error, requestID string) HTTPErrorResponse {
	response := HTTPErrorResponse{RequestID: requestID}

	appErr, ok := As(err)
	if !ok {
		response.Error.Code = ErrCodeInternalError
		response.Error.Message = GetUserMessage(err)
		return response
	}

	response.Error.Code = appErr.Code
	response.Error.Message = GetUserMessage(err)
	if len(appErr.Context) > 0 {
		publicContext := make(map[string]interface{})
		for k, v := range appErr.Context {
			if k != "password" && k != "token" && k != "secret" && k != "value" {
				publicContext[k] = v
			}
		}
		if len(publicContext) > 0 {
			response.Error.Context = publicContext
		}
	}
	return response
}
