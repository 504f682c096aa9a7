package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/expenseapp/split-engine/internal/model"
)

// CachedStore wraps a primary RateStore (PostgreSQL) with a Redis
// read-through cache. Writes go to the primary store and invalidate the
// exact-date key; reads check Redis first then fall back to the primary.
type CachedStore struct {
	primary RateStore
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary RateStore, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

func (s *CachedStore) UpsertRate(ctx context.Context, r *model.FXRate) error {
	if err := s.primary.UpsertRate(ctx, r); err != nil {
		return err
	}
	// Invalidate the exact key; nearest-prior keys age out via TTL, so a
	// stale prior answer is possible for at most one TTL window.
	s.rdb.Del(ctx, exactKey(r.RateDate, r.Currency))
	return nil
}

func (s *CachedStore) GetRate(ctx context.Context, date time.Time, currency string) (*model.FXRate, error) {
	key := exactKey(date, currency)

	data, err := s.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var r model.FXRate
		if json.Unmarshal(data, &r) == nil {
			return &r, nil
		}
	}

	r, err := s.primary.GetRate(ctx, date, currency)
	if err != nil {
		return nil, err
	}

	s.cacheRate(ctx, key, r)
	return r, nil
}

func (s *CachedStore) LatestOnOrBefore(ctx context.Context, date time.Time, currency string) (*model.FXRate, error) {
	key := priorKey(date, currency)

	data, err := s.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var r model.FXRate
		if json.Unmarshal(data, &r) == nil {
			return &r, nil
		}
	}

	r, err := s.primary.LatestOnOrBefore(ctx, date, currency)
	if err != nil {
		return nil, err
	}

	s.cacheRate(ctx, key, r)
	return r, nil
}

// History is not cached: it serves admin/reporting queries, not the
// conversion hot path.
func (s *CachedStore) History(ctx context.Context, currency string, from, to time.Time) ([]model.FXRate, error) {
	return s.primary.History(ctx, currency, from, to)
}

func (s *CachedStore) cacheRate(ctx context.Context, key string, r *model.FXRate) {
	if data, err := json.Marshal(r); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
}

func exactKey(date time.Time, cur string) string {
	return fmt.Sprintf("fxrate:%s:%s", cur, model.Day(date).Format("2006-01-02"))
}

func priorKey(date time.Time, cur string) string {
	return fmt.Sprintf("fxrate:prior:%s:%s", cur, model.Day(date).Format("2006-01-02"))
}
