package fx

import (
	"context"
	"log/slog"
	"time"

	"github.com/expenseapp/split-engine/internal/model"
)

// Scheduler periodically backfills the previous day's rates for a
// configured currency set. It runs outside the request-serving path so
// RateFor finds materialized rates instead of probing providers inline.
type Scheduler struct {
	rates      *Resolver
	currencies []string
	interval   time.Duration
}

// NewScheduler creates a backfill scheduler. interval <= 0 selects daily.
func NewScheduler(rates *Resolver, currencies []string, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Scheduler{
		rates:      rates,
		currencies: currencies,
		interval:   interval,
	}
}

// Run ticks until ctx is cancelled. Must be called in a goroutine.
func (s *Scheduler) Run(ctx context.Context) {
	if len(s.currencies) == 0 {
		slog.Warn("fx backfill enabled but no currencies configured")
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("fx backfill scheduler started",
		"interval", s.interval.String(), "currencies", s.currencies)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			yesterday := model.Day(time.Now().UTC().AddDate(0, 0, -1))
			inserted, err := s.rates.Backfill(ctx, yesterday, yesterday, s.currencies)
			if err != nil {
				slog.Error("fx backfill run failed", "err", err)
				continue
			}
			if inserted > 0 {
				slog.Info("fx backfill inserted rates",
					"inserted", inserted, "date", yesterday.Format("2006-01-02"))
			}
		}
	}
}
