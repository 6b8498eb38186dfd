package common

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	RunIDKey     contextKey = "run_id"
	ChannelIDKey contextKey = "channel_id"
)

// WithRunID returns a context carrying a fresh poll run ID.
func WithRunID(ctx context.Context) (context.Context, uuid.UUID) {
	id := uuid.New()
	return context.WithValue(ctx, RunIDKey, id), id
}

// GetRunIDFromContext extracts the poll run ID, if any.
func GetRunIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(RunIDKey).(uuid.UUID)
	return id, ok
}

// WithChannelID tags ctx with the chat channel a command came from.
func WithChannelID(ctx context.Context, channelID string) context.Context {
	return context.WithValue(ctx, ChannelIDKey, channelID)
}

// GetChannelIDFromContext extracts the originating chat channel, if any.
func GetChannelIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ChannelIDKey).(string)
	return id, ok && id != ""
}

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Details map[string]string `json:"details,omitempty"`
	} `json:"error"`
}

// CreateErrorResponse creates a standardized error response
func CreateErrorResponse(code string, message string, details map[string]string) *ErrorResponse {
	var resp ErrorResponse
	resp.Error.Code = code
	resp.Error.Message = message
	resp.Error.Details = details
	return &resp
}

// SendValidationError sends a validation error response
func SendValidationError(c echo.Context, field, message string) error {
	details := map[string]string{
		field: message,
	}
	return c.JSON(http.StatusBadRequest, CreateErrorResponse("VALIDATION_ERROR", "Validation failed", details))
}

// SendServerError sends a server error response
func SendServerError(c echo.Context, message string) error {
	return c.JSON(http.StatusInternalServerError, CreateErrorResponse("SERVER_ERROR", message, nil))
}

// SendNotFoundError sends a not found error response
func SendNotFoundError(c echo.Context, resource string) error {
	return c.JSON(http.StatusNotFound, CreateErrorResponse("NOT_FOUND", fmt.Sprintf("%s not found", resource), nil))
}

// SendUpstreamError sends a bad gateway response for marketplace or geocoder failures.
func SendUpstreamError(c echo.Context, message string) error {
	return c.JSON(http.StatusBadGateway, CreateErrorResponse("UPSTREAM_ERROR", message, nil))
}
