package models

import (
	"fmt"
	"time"
)

// Item is a marketplace listing with its owning store.
type Item struct {
	ID             string    `json:"id" db:"id"`
	Name           string    `json:"name" db:"name"`
	DisplayName    string    `json:"display_name" db:"display_name"`
	Description    string    `json:"description" db:"description"`
	CollectionInfo string    `json:"collection_info" db:"collection_info"`
	Amount         int       `json:"amount" db:"amount"`
	Price          Money     `json:"price" db:"-"`
	PickupInterval *Interval `json:"pickup_interval,omitempty" db:"-"`
	Store          Store     `json:"store" db:"-"`
}

// NewItemFromAPI converts a raw listing. A malformed pickup timestamp is an error.
func NewItemFromAPI(raw RawItem) (*Item, error) {
	item := &Item{
		ID:             raw.Item.ItemID,
		Name:           raw.Item.Name,
		DisplayName:    raw.DisplayName,
		Description:    raw.Item.Description,
		CollectionInfo: raw.Item.CollectionInfo,
		Amount:         raw.ItemsAvailable,
		Price: Money{
			MinorUnits: raw.Item.PriceIncludingTaxes.MinorUnits,
			Decimals:   raw.Item.PriceIncludingTaxes.Decimals,
			Currency:   raw.Item.PriceIncludingTaxes.Code,
		},
		Store: NewStoreFromAPI(raw.Store),
	}
	if raw.PickupInterval != nil && raw.PickupInterval.Start != "" && raw.PickupInterval.End != "" {
		interval, err := ParseInterval(raw.PickupInterval.Start, raw.PickupInterval.End)
		if err != nil {
			return nil, fmt.Errorf("item %s: %w", raw.Item.ItemID, err)
		}
		item.PickupInterval = &interval
	}
	return item, nil
}

// HasExpired reports whether the pickup window has closed. Items without a
// window never expire.
func (i *Item) HasExpired(now time.Time) bool {
	if i.PickupInterval == nil {
		return false
	}
	return i.PickupInterval.IsAfter(now)
}

// IsAvailable reports whether the item can still be reserved and collected.
func (i *Item) IsAvailable(now time.Time) bool {
	return i.Amount > 0 && !i.HasExpired(now)
}

// Title prefers the marketplace display name.
func (i *Item) Title() string {
	if i.DisplayName != "" {
		return i.DisplayName
	}
	return i.Name
}
