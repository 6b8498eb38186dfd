package models

import "fmt"

// Location is a geocoded search origin. ID is zero until stored.
type Location struct {
	ID          int64   `json:"id" db:"id"`
	Latitude    float64 `json:"latitude" db:"latitude"`
	Longitude   float64 `json:"longitude" db:"longitude"`
	FullAddress string  `json:"full_address" db:"full_address"`
}

func (l Location) String() string {
	return fmt.Sprintf("(%v, %v) %s", l.Latitude, l.Longitude, l.FullAddress)
}
