package fx

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/expenseapp/split-engine/internal/store"
)

func newFXService(t *testing.T) (*Service, store.RateStore) {
	t.Helper()
	st := store.NewMemoryStore()
	return NewService(NewResolver(st, "INR", nil, 0, nil)), st
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestService_BaseCurrency(t *testing.T) {
	svc, _ := newFXService(t)

	rec := httptest.NewRecorder()
	svc.BaseCurrency(rec, httptest.NewRequest(http.MethodGet, "/api/v1/fx/base-currency", nil))

	var body map[string]string
	decodeBody(t, rec, &body)
	if body["baseCurrency"] != "INR" {
		t.Errorf("expected INR, got %q", body["baseCurrency"])
	}
}

func putJSON(t *testing.T, path string, body any) *http.Request {
	t.Helper()
	buf, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	return httptest.NewRequest(http.MethodPut, path, bytes.NewReader(buf))
}

func TestService_UpsertRate(t *testing.T) {
	svc, st := newFXService(t)

	rec := httptest.NewRecorder()
	svc.UpsertRate(rec, putJSON(t, "/api/v1/fx/rates", map[string]any{
		"date":       "2024-03-10",
		"currency":   "usd",
		"rateToBase": "83.25",
	}))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var view rateView
	decodeBody(t, rec, &view)
	if view.Currency != "USD" {
		t.Errorf("expected normalized currency USD, got %q", view.Currency)
	}
	if view.RateDate != "2024-03-10" {
		t.Errorf("expected rateDate 2024-03-10, got %q", view.RateDate)
	}
	if view.ID == "" {
		t.Error("expected a row id")
	}

	row, err := st.GetRate(context.Background(), day(2024, 3, 10), "USD")
	if err != nil {
		t.Fatalf("rate not persisted: %v", err)
	}
	if row.RateToBase.StringFixed(2) != "83.25" {
		t.Errorf("expected stored rate 83.25, got %s", row.RateToBase)
	}
}

func TestService_UpsertRateValidation(t *testing.T) {
	svc, _ := newFXService(t)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"bad date", map[string]any{"date": "10/03/2024", "currency": "USD", "rateToBase": "80"}},
		{"bad currency", map[string]any{"date": "2024-03-10", "currency": "US", "rateToBase": "80"}},
		{"zero rate", map[string]any{"date": "2024-03-10", "currency": "USD", "rateToBase": "0"}},
		{"negative rate", map[string]any{"date": "2024-03-10", "currency": "USD", "rateToBase": "-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			svc.UpsertRate(rec, putJSON(t, "/api/v1/fx/rates", tt.body))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestService_Convert(t *testing.T) {
	svc, _ := newFXService(t)

	rec := httptest.NewRecorder()
	svc.UpsertRate(rec, putJSON(t, "/api/v1/fx/rates", map[string]any{
		"date": "2024-03-10", "currency": "USD", "rateToBase": "80",
	}))
	if rec.Code != http.StatusOK {
		t.Fatalf("seed upsert failed: %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	svc.Convert(rec, httptest.NewRequest(http.MethodGet,
		"/api/v1/fx/convert?date=2024-03-12&currency=USD&amount=12.50", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		BaseCurrency string          `json:"baseCurrency"`
		BaseAmount   decimal.Decimal `json:"baseAmount"`
	}
	decodeBody(t, rec, &body)
	if body.BaseCurrency != "INR" {
		t.Errorf("expected baseCurrency INR, got %v", body.BaseCurrency)
	}
	// 12.50 * 80 via the nearest-prior rate.
	if !body.BaseAmount.Equal(d(1000)) {
		t.Errorf("expected baseAmount 1000, got %s", body.BaseAmount)
	}
}

func TestService_ConvertRejectsBadAmount(t *testing.T) {
	svc, _ := newFXService(t)

	rec := httptest.NewRecorder()
	svc.Convert(rec, httptest.NewRequest(http.MethodGet,
		"/api/v1/fx/convert?date=2024-03-12&currency=USD&amount=ten", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestService_History(t *testing.T) {
	svc, _ := newFXService(t)

	for _, day := range []string{"2024-03-12", "2024-03-10", "2024-03-11"} {
		rec := httptest.NewRecorder()
		svc.UpsertRate(rec, putJSON(t, "/api/v1/fx/rates", map[string]any{
			"date": day, "currency": "USD", "rateToBase": "80",
		}))
		if rec.Code != http.StatusOK {
			t.Fatalf("seed upsert failed: %s", rec.Body.String())
		}
	}

	rec := httptest.NewRecorder()
	svc.History(rec, httptest.NewRequest(http.MethodGet,
		"/api/v1/fx/rates/history?currency=USD&from=2024-03-10&to=2024-03-11", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var views []rateView
	decodeBody(t, rec, &views)
	if len(views) != 2 {
		t.Fatalf("expected 2 rows in range, got %d", len(views))
	}
	if views[0].RateDate != "2024-03-10" || views[1].RateDate != "2024-03-11" {
		t.Errorf("expected ascending dates, got %s, %s", views[0].RateDate, views[1].RateDate)
	}
}

func TestService_RateUsedReturnsEmptyObjectWhenUnknown(t *testing.T) {
	svc, _ := newFXService(t)

	rec := httptest.NewRecorder()
	svc.RateUsed(rec, httptest.NewRequest(http.MethodGet,
		"/api/v1/fx/rates/used?date=2024-03-10&currency=XYZ", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	decodeBody(t, rec, &body)
	if len(body) != 0 {
		t.Errorf("expected empty object, got %v", body)
	}
}

func TestService_RateUsedFallsBackToNearestPrior(t *testing.T) {
	svc, _ := newFXService(t)

	rec := httptest.NewRecorder()
	svc.UpsertRate(rec, putJSON(t, "/api/v1/fx/rates", map[string]any{
		"date": "2024-03-07", "currency": "USD", "rateToBase": "82",
	}))
	if rec.Code != http.StatusOK {
		t.Fatalf("seed upsert failed: %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	svc.RateUsed(rec, httptest.NewRequest(http.MethodGet,
		"/api/v1/fx/rates/used?date=2024-03-10&currency=USD", nil))

	var view rateView
	decodeBody(t, rec, &view)
	if view.RateDate != "2024-03-07" {
		t.Errorf("expected the 2024-03-07 row, got %q", view.RateDate)
	}
}

func TestService_BackfillValidatesRange(t *testing.T) {
	svc, _ := newFXService(t)

	rec := httptest.NewRecorder()
	svc.Backfill(rec, putJSON(t, "/api/v1/fx/backfill", map[string]any{
		"from": "2024-03-10", "to": "2024-03-01", "currencies": []string{"USD"},
	}))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for inverted range, got %d", rec.Code)
	}
}

func TestService_BackfillWithoutProviders(t *testing.T) {
	svc, _ := newFXService(t)

	rec := httptest.NewRecorder()
	svc.Backfill(rec, putJSON(t, "/api/v1/fx/backfill", map[string]any{
		"from": "2024-03-01", "to": "2024-03-03", "currencies": []string{"USD"},
	}))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]any
	decodeBody(t, rec, &body)
	if body["inserted"] != float64(0) {
		t.Errorf("expected 0 inserted, got %v", body["inserted"])
	}
}
