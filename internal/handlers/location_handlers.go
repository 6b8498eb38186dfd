package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"magicbag/internal/common"
	"magicbag/internal/services"
)

type LocationHandlers struct {
	locations services.LocationService
	logger    *slog.Logger
}

func NewLocationHandlers(locations services.LocationService, logger *slog.Logger) *LocationHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocationHandlers{locations: locations, logger: logger}
}

func (h *LocationHandlers) ListLocations(c echo.Context) error {
	locations, err := h.locations.List(c.Request().Context())
	if err != nil {
		h.logger.Error("failed to list locations", slog.Any("error", err))
		return common.SendServerError(c, "Failed to list locations")
	}
	return c.JSON(http.StatusOK, map[string]any{
		"locations": locations,
		"count":     len(locations),
	})
}

// CreateLocation geocodes {"query": "..."} and watches the result.
func (h *LocationHandlers) CreateLocation(c echo.Context) error {
	var req struct {
		Query string `json:"query"`
	}
	if err := c.Bind(&req); err != nil {
		return common.SendValidationError(c, "body", "invalid JSON body")
	}
	if strings.TrimSpace(req.Query) == "" {
		return common.SendValidationError(c, "query", "query is required")
	}

	location, err := h.locations.Watch(c.Request().Context(), req.Query)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrNotFound):
			return common.SendNotFoundError(c, "Address")
		case errors.Is(err, common.ErrTransient), errors.Is(err, common.ErrMalformedResponse):
			return common.SendUpstreamError(c, "Geocoding service unavailable")
		default:
			h.logger.Error("failed to create location", slog.String("query", req.Query), slog.Any("error", err))
			return common.SendServerError(c, "Failed to create location")
		}
	}
	return c.JSON(http.StatusCreated, location)
}
