package models

import (
	"github.com/shopspring/decimal"
)

// Money is a price held as integer minor units, e.g. 499 with 2 decimals is 4.99.
type Money struct {
	MinorUnits int64  `json:"minor_units"`
	Decimals   int32  `json:"decimals"`
	Currency   string `json:"currency"`
}

// Decimal returns the exact amount in major units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.MinorUnits, -m.Decimals)
}

// Float converts to a display float. Do not feed it back into storage.
func (m Money) Float() float64 {
	return m.Decimal().InexactFloat64()
}

func (m Money) String() string {
	s := m.Decimal().StringFixed(m.Decimals)
	if m.Currency == "" {
		return s
	}
	return s + " " + m.Currency
}
