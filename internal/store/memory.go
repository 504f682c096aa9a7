package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/expenseapp/split-engine/internal/model"
)

// MemoryStore implements RateStore with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu    sync.RWMutex
	rates map[string]*model.FXRate // "YYYY-MM-DD|CUR" → row
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rates: make(map[string]*model.FXRate),
	}
}

func rateMapKey(date time.Time, currency string) string {
	return model.Day(date).Format("2006-01-02") + "|" + currency
}

func (s *MemoryStore) UpsertRate(_ context.Context, r *model.FXRate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := rateMapKey(r.RateDate, r.Currency)
	if existing, ok := s.rates[key]; ok {
		existing.RateToBase = r.RateToBase
		// Caller sees the surviving row's identity.
		r.ID = existing.ID
		r.CreatedAt = existing.CreatedAt
		return nil
	}

	copy := *r
	s.rates[key] = &copy
	return nil
}

func (s *MemoryStore) GetRate(_ context.Context, date time.Time, currency string) (*model.FXRate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rates[rateMapKey(date, currency)]
	if !ok {
		return nil, ErrRateNotFound
	}
	copy := *r
	return &copy, nil
}

func (s *MemoryStore) LatestOnOrBefore(_ context.Context, date time.Time, currency string) (*model.FXRate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	day := model.Day(date)
	var best *model.FXRate
	for _, r := range s.rates {
		if r.Currency != currency || r.RateDate.After(day) {
			continue
		}
		if best == nil || r.RateDate.After(best.RateDate) {
			best = r
		}
	}
	if best == nil {
		return nil, ErrRateNotFound
	}
	copy := *best
	return &copy, nil
}

func (s *MemoryStore) History(_ context.Context, currency string, from, to time.Time) ([]model.FXRate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fromDay, toDay := model.Day(from), model.Day(to)
	var result []model.FXRate
	for _, r := range s.rates {
		if r.Currency != currency || r.RateDate.Before(fromDay) || r.RateDate.After(toDay) {
			continue
		}
		result = append(result, *r)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].RateDate.Before(result[j].RateDate)
	})
	return result, nil
}
