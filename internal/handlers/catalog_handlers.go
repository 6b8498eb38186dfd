package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"magicbag/internal/common"
	"magicbag/internal/models"
	"magicbag/internal/repositories"
)

// CatalogHandlers serves stored items and stores.
type CatalogHandlers struct {
	items  repositories.ItemRepository
	stores repositories.StoreRepository
	now    func() time.Time
	logger *slog.Logger
}

func NewCatalogHandlers(items repositories.ItemRepository, stores repositories.StoreRepository, logger *slog.Logger) *CatalogHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &CatalogHandlers{items: items, stores: stores, now: time.Now, logger: logger}
}

// ListItems returns stored items. ?available=true keeps only items that can
// still be collected.
func (h *CatalogHandlers) ListItems(c echo.Context) error {
	onlyAvailable := false
	if raw := c.QueryParam("available"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return common.SendValidationError(c, "available", "must be a boolean")
		}
		onlyAvailable = v
	}

	items, err := h.items.List(c.Request().Context())
	if err != nil {
		h.logger.Error("failed to list items", slog.Any("error", err))
		return common.SendServerError(c, "Failed to list items")
	}

	if onlyAvailable {
		now := h.now()
		filtered := make([]*models.Item, 0, len(items))
		for _, item := range items {
			if item.IsAvailable(now) {
				filtered = append(filtered, item)
			}
		}
		items = filtered
	}

	return c.JSON(http.StatusOK, map[string]any{
		"items": items,
		"count": len(items),
	})
}

func (h *CatalogHandlers) GetItem(c echo.Context) error {
	item, err := h.items.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.SendNotFoundError(c, "Item")
		}
		h.logger.Error("failed to get item", slog.String("item_id", c.Param("id")), slog.Any("error", err))
		return common.SendServerError(c, "Failed to get item")
	}
	return c.JSON(http.StatusOK, item)
}

func (h *CatalogHandlers) ListStores(c echo.Context) error {
	stores, err := h.stores.List(c.Request().Context())
	if err != nil {
		h.logger.Error("failed to list stores", slog.Any("error", err))
		return common.SendServerError(c, "Failed to list stores")
	}
	return c.JSON(http.StatusOK, map[string]any{
		"stores": stores,
		"count":  len(stores),
	})
}
