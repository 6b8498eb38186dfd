package models

import "strings"

// Store is a pickup location as identified by the marketplace.
type Store struct {
	ID        string  `json:"id" db:"id"`
	Name      string  `json:"name" db:"name"`
	Address   string  `json:"address" db:"address"`
	Latitude  float64 `json:"latitude" db:"latitude"`
	Longitude float64 `json:"longitude" db:"longitude"`
}

// NewStoreFromAPI converts the store block of a marketplace listing.
func NewStoreFromAPI(raw RawStore) Store {
	return Store{
		ID:        raw.StoreID,
		Name:      strings.TrimSpace(raw.Branch + " " + raw.StoreName),
		Address:   raw.StoreLocation.Address.AddressLine,
		Latitude:  raw.StoreLocation.Location.Latitude,
		Longitude: raw.StoreLocation.Location.Longitude,
	}
}
