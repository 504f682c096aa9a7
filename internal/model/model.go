// Package model defines the core domain types shared across the split engine.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// FXRate is one historical exchange rate: the multiplier converting one unit
// of Currency into base-currency units on RateDate. Rows are unique per
// (RateDate, Currency) and form a sparse day-level time series; they are
// upserted, never deleted.
type FXRate struct {
	ID         string          `json:"id" db:"id"`
	RateDate   time.Time       `json:"rateDate" db:"rate_date"`
	Currency   string          `json:"currency" db:"currency"` // 3-letter uppercase ISO code
	RateToBase decimal.Decimal `json:"rateToBase" db:"rate_to_base"`
	CreatedAt  time.Time       `json:"createdAt" db:"created_at"`
}

// Day truncates a timestamp to its UTC calendar day. All rate lookups and
// writes are keyed on day granularity.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
