// Package fx resolves, caches, and backfills historical day-level exchange
// rates against a fixed base currency.
//
// Resolution favors availability over accuracy: a lookup that cannot be
// answered from the store or any provider degrades to parity (1:1) with a
// logged warning, never an error. All rates use shopspring/decimal — never
// float64 for money.
package fx

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	cache "github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"

	"github.com/expenseapp/split-engine/internal/fx/provider"
	"github.com/expenseapp/split-engine/internal/metrics"
	"github.com/expenseapp/split-engine/internal/model"
	"github.com/expenseapp/split-engine/internal/store"
)

// DefaultProbeDays is how many consecutive days a provider is probed
// backward from a target date before the chain moves on.
const DefaultProbeDays = 7

var one = decimal.NewFromInt(1)

// Resolver answers "what was one unit of currency X worth in base currency
// on day D". It layers an in-process hot cache over the rate store and, for
// EnsureRate, an ordered chain of external providers.
type Resolver struct {
	store     store.RateStore
	providers []provider.Provider // sorted: priority asc, then name
	base      string
	probeDays int
	hot       *cache.Cache
	hub       *Hub // optional; broadcasts upserted rates
}

// NewResolver creates a resolver. Providers are reordered by their declared
// priority (primary source first); pass nil for hub if rate broadcasting is
// not needed. probeDays <= 0 selects DefaultProbeDays.
func NewResolver(st store.RateStore, baseCurrency string, providers []provider.Provider, probeDays int, hub *Hub) *Resolver {
	ordered := make([]provider.Provider, len(providers))
	copy(ordered, providers)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Priority() != ordered[j].Priority() {
			return ordered[i].Priority() < ordered[j].Priority()
		}
		return ordered[i].Name() < ordered[j].Name()
	})

	if probeDays <= 0 {
		probeDays = DefaultProbeDays
	}

	return &Resolver{
		store:     st,
		providers: ordered,
		base:      strings.ToUpper(baseCurrency),
		probeDays: probeDays,
		hot:       cache.New(5*time.Minute, 10*time.Minute),
		hub:       hub,
	}
}

// BaseCurrency returns the system-wide base currency code.
func (r *Resolver) BaseCurrency() string {
	return r.base
}

// RateFor returns the rate converting one unit of currency into base units
// on date: the most recent stored rate on or before date, parity for the
// base currency, parity when nothing is known. It never fails and never
// calls providers; use EnsureRate ahead of bulk conversion when a
// materialized rate matters.
func (r *Resolver) RateFor(ctx context.Context, date time.Time, currency string) decimal.Decimal {
	cur := strings.ToUpper(strings.TrimSpace(currency))
	if cur == "" || cur == r.base {
		return one
	}
	day := model.Day(date)

	key := hotKey(day, cur)
	if v, ok := r.hot.Get(key); ok {
		metrics.RateLookupsTotal.WithLabelValues("hot").Inc()
		return v.(decimal.Decimal)
	}

	row, err := r.store.LatestOnOrBefore(ctx, day, cur)
	if err == nil {
		metrics.RateLookupsTotal.WithLabelValues("store").Inc()
		r.hot.SetDefault(key, row.RateToBase)
		return row.RateToBase
	}

	if !errors.Is(err, store.ErrRateNotFound) {
		slog.Warn("fx rate lookup failed, falling back to parity",
			"currency", cur, "date", day.Format("2006-01-02"), "err", err)
	} else {
		slog.Warn("no fx rate on or before date, falling back to parity",
			"currency", cur, "date", day.Format("2006-01-02"))
	}
	metrics.RateLookupsTotal.WithLabelValues("parity").Inc()
	metrics.ParityFallbacksTotal.Inc()
	return one
}

// EnsureRate materializes a usable rate for (date, currency): it returns any
// stored rate on or before date, otherwise walks the provider chain probing
// up to probeDays backward from date, persists the first hit under the
// probed date, and returns it. Degrades to parity when every source comes
// up empty.
func (r *Resolver) EnsureRate(ctx context.Context, date time.Time, currency string) decimal.Decimal {
	cur := strings.ToUpper(strings.TrimSpace(currency))
	if cur == "" || cur == r.base {
		return one
	}
	day := model.Day(date)

	if row, err := r.store.LatestOnOrBefore(ctx, day, cur); err == nil {
		return row.RateToBase
	}

	if rate, ok := r.fetchFromProviders(ctx, day, cur, r.probeDays); ok {
		return rate
	}

	if len(r.providers) == 0 {
		slog.Warn("no fx providers configured, falling back to parity",
			"currency", cur, "date", day.Format("2006-01-02"))
	} else {
		slog.Warn("no provider yielded a rate, falling back to parity",
			"currency", cur, "date", day.Format("2006-01-02"))
	}
	metrics.ParityFallbacksTotal.Inc()
	return one
}

// fetchFromProviders probes each provider in priority order, walking up to
// probeDays backward from day. The first hit is persisted under the probed
// date (not necessarily the requested one) and returned.
func (r *Resolver) fetchFromProviders(ctx context.Context, day time.Time, cur string, probeDays int) (decimal.Decimal, bool) {
	for _, p := range r.providers {
		probe := day
		for i := 0; i < probeDays; i++ {
			rate, ok, err := p.HistoricalRateToBase(ctx, probe, r.base, cur)
			switch {
			case err != nil:
				metrics.ProviderProbesTotal.WithLabelValues(p.Name(), "error").Inc()
				slog.Error("fx provider call failed",
					"provider", p.Name(), "currency", cur,
					"date", probe.Format("2006-01-02"), "err", err)
			case ok:
				metrics.ProviderProbesTotal.WithLabelValues(p.Name(), "hit").Inc()
				metrics.RateLookupsTotal.WithLabelValues("provider").Inc()
				slog.Info("fetched historical fx rate",
					"provider", p.Name(), "currency", cur, "base", r.base,
					"requested", day.Format("2006-01-02"),
					"used", probe.Format("2006-01-02"),
					"rate", rate.String())
				if _, err := r.UpsertRate(ctx, probe, cur, rate); err != nil {
					slog.Error("failed to persist fetched fx rate",
						"provider", p.Name(), "currency", cur, "err", err)
				}
				return rate, true
			default:
				metrics.ProviderProbesTotal.WithLabelValues(p.Name(), "miss").Inc()
			}
			probe = probe.AddDate(0, 0, -1)
		}
	}
	return decimal.Decimal{}, false
}

// UpsertRate writes the rate for (date, currency), updating any existing
// row. A lost insert race is absorbed: the surviving row is re-read and
// returned, the caller never sees the conflict.
func (r *Resolver) UpsertRate(ctx context.Context, date time.Time, currency string, rateToBase decimal.Decimal) (*model.FXRate, error) {
	cur := strings.ToUpper(strings.TrimSpace(currency))
	day := model.Day(date)

	row := &model.FXRate{
		ID:         uuid.New().String(),
		RateDate:   day,
		Currency:   cur,
		RateToBase: rateToBase,
		CreatedAt:  time.Now().UTC(),
	}

	err := r.store.UpsertRate(ctx, row)
	if errors.Is(err, store.ErrRateConflict) {
		slog.Warn("concurrent fx rate insert, returning surviving row",
			"currency", cur, "date", day.Format("2006-01-02"))
		return r.store.GetRate(ctx, day, cur)
	}
	if err != nil {
		return nil, err
	}

	r.hot.Delete(hotKey(day, cur))
	metrics.RateUpsertsTotal.Inc()

	if r.hub != nil {
		r.hub.Broadcast(RateUpdate{
			Type:         "rate_upserted",
			RateDate:     day.Format("2006-01-02"),
			Currency:     cur,
			RateToBase:   rateToBase.String(),
			BaseCurrency: r.base,
		})
	}
	return row, nil
}

// ConvertToBase converts amount from currency into base units on date,
// rounded to 2 decimals.
func (r *Resolver) ConvertToBase(ctx context.Context, date time.Time, currency string, amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(r.RateFor(ctx, date, currency)).Round(2)
}

// RateRecordFor returns the stored rate row actually applicable on date
// (exact or most-recent-prior). The base currency yields a synthetic parity
// row; (nil, nil) means nothing is known.
func (r *Resolver) RateRecordFor(ctx context.Context, date time.Time, currency string) (*model.FXRate, error) {
	cur := strings.ToUpper(strings.TrimSpace(currency))
	day := model.Day(date)

	if cur == "" || cur == r.base {
		return &model.FXRate{
			RateDate:   day,
			Currency:   r.base,
			RateToBase: one,
		}, nil
	}

	row, err := r.store.LatestOnOrBefore(ctx, day, cur)
	if errors.Is(err, store.ErrRateNotFound) {
		return nil, nil
	}
	return row, err
}

// History returns stored rates for currency in [from, to], date ascending.
func (r *Resolver) History(ctx context.Context, currency string, from, to time.Time) ([]model.FXRate, error) {
	cur := strings.ToUpper(strings.TrimSpace(currency))
	return r.store.History(ctx, cur, from, to)
}

// Backfill fills every missing (day, currency) row in [from, to] from the
// provider chain, probing only the exact day per provider, and reports how
// many rows it inserted. The base currency is skipped.
func (r *Resolver) Backfill(ctx context.Context, from, to time.Time, currencies []string) (int, error) {
	inserted := 0
	for _, c := range currencies {
		cur := strings.ToUpper(strings.TrimSpace(c))
		if cur == "" || cur == r.base {
			continue
		}
		for d := model.Day(from); !d.After(model.Day(to)); d = d.AddDate(0, 0, 1) {
			if err := ctx.Err(); err != nil {
				return inserted, err
			}

			_, err := r.store.GetRate(ctx, d, cur)
			if err == nil {
				continue
			}
			if !errors.Is(err, store.ErrRateNotFound) {
				return inserted, err
			}

			if _, ok := r.fetchFromProviders(ctx, d, cur, 1); ok {
				inserted++
				metrics.BackfillInsertedTotal.Inc()
			}
		}
	}
	return inserted, nil
}

func hotKey(day time.Time, cur string) string {
	return cur + "@" + day.Format("2006-01-02")
}
