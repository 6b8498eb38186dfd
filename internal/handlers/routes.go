package handlers

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"

	"magicbag/internal/middleware"
)

// Handlers groups every HTTP handler set.
type Handlers struct {
	Health    *HealthHandlers
	Catalog   *CatalogHandlers
	Locations *LocationHandlers
	Poll      *PollHandlers
}

// NewRouter builds the echo instance with all routes registered.
func NewRouter(h Handlers, logger *slog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestLogger(logger))
	e.Use(echoMiddleware.Recover())
	e.Pre(echoMiddleware.RemoveTrailingSlash())

	e.GET("/health", h.Health.HealthCheck)
	e.GET("/health/ready", h.Health.ReadinessCheck)

	versions := middleware.NewVersionMiddleware()
	v1 := versions.VersionRoute(e, versions.GetCurrentVersion())

	v1.GET("/items", h.Catalog.ListItems)
	v1.GET("/items/:id", h.Catalog.GetItem)
	v1.GET("/stores", h.Catalog.ListStores)

	v1.GET("/locations", h.Locations.ListLocations)
	v1.POST("/locations", h.Locations.CreateLocation)

	v1.GET("/poll", h.Poll.PollStatus)
	v1.POST("/poll", h.Poll.TriggerPoll)

	return e
}
