package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/expenseapp/split-engine/internal/model"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func rate(id string, date time.Time, cur string, r float64) *model.FXRate {
	return &model.FXRate{
		ID:         id,
		RateDate:   date,
		Currency:   cur,
		RateToBase: decimal.NewFromFloat(r),
		CreatedAt:  time.Now().UTC(),
	}
}

func TestMemoryStore_UpsertAndGet(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	if err := st.UpsertRate(ctx, rate("r1", day(2024, 3, 10), "USD", 80)); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	row, err := st.GetRate(ctx, day(2024, 3, 10), "USD")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if row.ID != "r1" || !row.RateToBase.Equal(decimal.NewFromInt(80)) {
		t.Errorf("unexpected row: %+v", row)
	}

	if _, err := st.GetRate(ctx, day(2024, 3, 11), "USD"); !errors.Is(err, ErrRateNotFound) {
		t.Errorf("expected ErrRateNotFound, got %v", err)
	}
}

func TestMemoryStore_UpsertKeepsRowIdentity(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	if err := st.UpsertRate(ctx, rate("r1", day(2024, 3, 10), "USD", 80)); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	second := rate("r2", day(2024, 3, 10), "USD", 81)
	if err := st.UpsertRate(ctx, second); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	// The caller's row reflects the surviving identity.
	if second.ID != "r1" {
		t.Errorf("expected surviving id r1, got %s", second.ID)
	}

	row, err := st.GetRate(ctx, day(2024, 3, 10), "USD")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if row.ID != "r1" {
		t.Errorf("expected stored id r1, got %s", row.ID)
	}
	if !row.RateToBase.Equal(decimal.NewFromInt(81)) {
		t.Errorf("expected updated rate 81, got %s", row.RateToBase)
	}
}

func TestMemoryStore_LatestOnOrBefore(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	for i, d := range []time.Time{day(2024, 3, 1), day(2024, 3, 5), day(2024, 3, 8)} {
		if err := st.UpsertRate(ctx, rate("r", d, "USD", float64(80+i))); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}
	if err := st.UpsertRate(ctx, rate("e", day(2024, 3, 6), "EUR", 90)); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	// Exact hit.
	row, err := st.LatestOnOrBefore(ctx, day(2024, 3, 5), "USD")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if !row.RateDate.Equal(day(2024, 3, 5)) {
		t.Errorf("expected 2024-03-05, got %s", row.RateDate.Format("2006-01-02"))
	}

	// Gap day resolves to the nearest prior, ignoring other currencies.
	row, err = st.LatestOnOrBefore(ctx, day(2024, 3, 7), "USD")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if !row.RateDate.Equal(day(2024, 3, 5)) {
		t.Errorf("expected 2024-03-05, got %s", row.RateDate.Format("2006-01-02"))
	}

	// Nothing on or before.
	if _, err := st.LatestOnOrBefore(ctx, day(2024, 2, 28), "USD"); !errors.Is(err, ErrRateNotFound) {
		t.Errorf("expected ErrRateNotFound, got %v", err)
	}
}

func TestMemoryStore_HistoryAscendingWithinRange(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	for _, d := range []time.Time{day(2024, 3, 8), day(2024, 3, 1), day(2024, 3, 5), day(2024, 3, 20)} {
		if err := st.UpsertRate(ctx, rate("r", d, "USD", 80)); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	rows, err := st.History(ctx, "USD", day(2024, 3, 1), day(2024, 3, 10))
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	for i := 1; i < len(rows); i++ {
		if !rows[i-1].RateDate.Before(rows[i].RateDate) {
			t.Errorf("rows not ascending at %d: %s >= %s", i,
				rows[i-1].RateDate.Format("2006-01-02"), rows[i].RateDate.Format("2006-01-02"))
		}
	}
}

func TestMemoryStore_NormalizesDateToDay(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	noon := time.Date(2024, 3, 10, 12, 30, 0, 0, time.UTC)
	if err := st.UpsertRate(ctx, rate("r1", noon, "USD", 80)); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if _, err := st.GetRate(ctx, day(2024, 3, 10), "USD"); err != nil {
		t.Errorf("intra-day timestamp should land on the calendar day: %v", err)
	}
}
