package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/radio-control/rtsbridge/internal/adapter"
	"github.com/radio-control/rtsbridge/internal/channel"
	"github.com/radio-control/rtsbridge/internal/command"
	"github.com/radio-control/rtsbridge/internal/telemetry"
)

// APIError represents an API-layer error with HTTP status code.
type APIError struct {
	Code       string
	Message    string
	Details    interface{}
	StatusCode int
}

// ErrBadRequest marks a body that could not be decoded.
var ErrBadRequest = errors.New("BAD_REQUEST")

// NewAPIError creates a new API error.
func NewAPIError(code string, message string, statusCode int, details interface{}) *APIError {
	return &APIError{
		Code:       code,
		Message:    message,
		Details:    details,
		StatusCode: statusCode,
	}
}

// Error implements the error interface for APIError.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

type errorMapping struct {
	sentinel error
	code     string
	status   int
	message  string
}

// Order matters: ErrInvalidRequest wraps the adapter cause, so it must win.
var errorMappings = []errorMapping{
	{command.ErrInvalidRequest, "INVALID_REQUEST", http.StatusBadRequest, "Malformed command request"},
	{adapter.ErrInvalidChannel, "INVALID_REQUEST", http.StatusBadRequest, "Malformed channel identifier"},
	{adapter.ErrUnsupportedAction, "INVALID_REQUEST", http.StatusBadRequest, "Unsupported action"},
	{adapter.ErrUnknownChannel, "UNKNOWN_CHANNEL", http.StatusBadRequest, "Channel is not addressable by the controller"},
	{ErrBadRequest, "BAD_REQUEST", http.StatusBadRequest, "Malformed JSON or unknown fields"},
	{channel.ErrNotFound, "NOT_FOUND", http.StatusNotFound, "Resource not found"},
	{command.ErrTimeout, "TIMEOUT", http.StatusGatewayTimeout, "Timed out waiting for the batch to finish"},
	{command.ErrShutdown, "UNAVAILABLE", http.StatusServiceUnavailable, "Service is shutting down"},
	{telemetry.ErrHubStopped, "UNAVAILABLE", http.StatusServiceUnavailable, "Service is temporarily unavailable"},
	{adapter.ErrPortUnavailable, "UNAVAILABLE", http.StatusServiceUnavailable, "Serial port is unavailable"},
	{adapter.ErrTransport, "TRANSPORT_ERROR", http.StatusBadGateway, "Failed to write to the controller"},
}

// ToAPIError converts an error to an API error with HTTP status code and JSON body.
func ToAPIError(err error) (int, []byte) {
	if err == nil {
		return http.StatusOK, nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode, marshalErrorResponse(apiErr.Code, apiErr.Message, apiErr.Details)
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.sentinel) {
			var details interface{}
			if m.status < http.StatusInternalServerError {
				details = map[string]interface{}{"reason": err.Error()}
			}
			return m.status, marshalErrorResponse(m.code, m.message, details)
		}
	}

	return http.StatusInternalServerError, marshalErrorResponse("INTERNAL", "Internal server error", map[string]interface{}{
		"original": err.Error(),
	})
}

func marshalErrorResponse(code, message string, details interface{}) []byte {
	jsonBytes, err := json.Marshal(ErrorResponse(code, message, details))
	if err != nil {
		fallback := map[string]interface{}{
			"result":        "error",
			"code":          "INTERNAL",
			"message":       "Failed to marshal error response",
			"correlationId": generateCorrelationID(),
		}
		jsonBytes, _ = json.Marshal(fallback)
	}
	return jsonBytes
}
