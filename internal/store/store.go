// Package store defines the persistence interface for historical FX rates.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/expenseapp/split-engine/internal/model"
)

var (
	// ErrRateNotFound is returned when no row matches the lookup.
	ErrRateNotFound = errors.New("store: rate not found")

	// ErrRateConflict is returned when a concurrent insert for the same
	// (rate_date, currency) key wins the race. Callers are expected to
	// re-read the surviving row instead of failing.
	ErrRateConflict = errors.New("store: concurrent insert for rate key")
)

// RateStore is the persistence interface. Rows are keyed by
// (rate_date, currency); all writes are upserts.
type RateStore interface {
	// UpsertRate updates the row for (r.RateDate, r.Currency) or inserts a
	// new one. On success r reflects the stored row (ID, CreatedAt). A lost
	// insert race returns ErrRateConflict.
	UpsertRate(ctx context.Context, r *model.FXRate) error

	// GetRate returns the exact row for (date, currency), or ErrRateNotFound.
	GetRate(ctx context.Context, date time.Time, currency string) (*model.FXRate, error)

	// LatestOnOrBefore returns the most recent row for currency with
	// rate_date <= date, or ErrRateNotFound.
	LatestOnOrBefore(ctx context.Context, date time.Time, currency string) (*model.FXRate, error)

	// History returns all rows for currency in [from, to], date ascending.
	History(ctx context.Context, currency string, from, to time.Time) ([]model.FXRate, error)
}
