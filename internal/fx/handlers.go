package fx

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/expenseapp/split-engine/internal/currency"
	"github.com/expenseapp/split-engine/internal/model"
)

// Service exposes the resolver over HTTP.
type Service struct {
	rates *Resolver
}

// NewService creates the FX HTTP service.
func NewService(rates *Resolver) *Service {
	return &Service{rates: rates}
}

// rateView is the JSON shape for a stored rate; dates render as calendar
// days, not timestamps.
type rateView struct {
	ID           string          `json:"id,omitempty"`
	RateDate     string          `json:"rateDate"`
	Currency     string          `json:"currency"`
	RateToBase   decimal.Decimal `json:"rateToBase"`
	BaseCurrency string          `json:"baseCurrency"`
}

func viewOf(r *model.FXRate, base string) rateView {
	return rateView{
		ID:           r.ID,
		RateDate:     r.RateDate.Format("2006-01-02"),
		Currency:     r.Currency,
		RateToBase:   r.RateToBase,
		BaseCurrency: base,
	}
}

// BaseCurrency handles GET /api/v1/fx/base-currency
func (s *Service) BaseCurrency(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"baseCurrency": s.rates.BaseCurrency()})
}

// upsertRateRequest is the JSON body for PUT /api/v1/fx/rates.
type upsertRateRequest struct {
	Date       string          `json:"date"`
	Currency   string          `json:"currency"`
	RateToBase decimal.Decimal `json:"rateToBase"`
}

// UpsertRate handles PUT /api/v1/fx/rates
func (s *Service) UpsertRate(w http.ResponseWriter, r *http.Request) {
	var req upsertRateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	date, err := parseDate(req.Date)
	if err != nil {
		writeError(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	cur, err := currency.Normalize(req.Currency)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.RateToBase.Sign() <= 0 {
		writeError(w, "rateToBase must be positive", http.StatusBadRequest)
		return
	}

	row, err := s.rates.UpsertRate(r.Context(), date, cur, req.RateToBase)
	if err != nil {
		writeError(w, "failed to store rate", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(row, s.rates.BaseCurrency()))
}

// Convert handles GET /api/v1/fx/convert?date=&currency=&amount=
func (s *Service) Convert(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	date, err := parseDate(q.Get("date"))
	if err != nil {
		writeError(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	cur, err := currency.Normalize(q.Get("currency"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	amount, err := decimal.NewFromString(q.Get("amount"))
	if err != nil {
		writeError(w, "amount must be a decimal number", http.StatusBadRequest)
		return
	}

	base := s.rates.ConvertToBase(r.Context(), date, cur, amount)
	writeJSON(w, http.StatusOK, map[string]any{
		"baseCurrency": s.rates.BaseCurrency(),
		"baseAmount":   base,
	})
}

// History handles GET /api/v1/fx/rates/history?currency=&from=&to=
func (s *Service) History(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	cur, err := currency.Normalize(q.Get("currency"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	from, err := parseDate(q.Get("from"))
	if err != nil {
		writeError(w, "from must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	to, err := parseDate(q.Get("to"))
	if err != nil {
		writeError(w, "to must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	rows, err := s.rates.History(r.Context(), cur, from, to)
	if err != nil {
		writeError(w, "failed to load rate history", http.StatusInternalServerError)
		return
	}

	views := make([]rateView, 0, len(rows))
	for i := range rows {
		views = append(views, viewOf(&rows[i], s.rates.BaseCurrency()))
	}
	writeJSON(w, http.StatusOK, views)
}

// RateUsed handles GET /api/v1/fx/rates/used?date=&currency=
// Returns the rate actually applicable on that date (exact or nearest
// prior), or an empty object when nothing is known.
func (s *Service) RateUsed(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	date, err := parseDate(q.Get("date"))
	if err != nil {
		writeError(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	cur, err := currency.Normalize(q.Get("currency"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	row, err := s.rates.RateRecordFor(r.Context(), date, cur)
	if err != nil {
		writeError(w, "failed to resolve rate", http.StatusInternalServerError)
		return
	}
	if row == nil {
		writeJSON(w, http.StatusOK, map[string]any{})
		return
	}
	writeJSON(w, http.StatusOK, viewOf(row, s.rates.BaseCurrency()))
}

// backfillRequest is the JSON body for PUT /api/v1/fx/backfill.
type backfillRequest struct {
	From       string   `json:"from"`
	To         string   `json:"to"`
	Currencies []string `json:"currencies"`
}

// Backfill handles PUT /api/v1/fx/backfill
func (s *Service) Backfill(w http.ResponseWriter, r *http.Request) {
	var req backfillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	from, err := parseDate(req.From)
	if err != nil {
		writeError(w, "from must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	to, err := parseDate(req.To)
	if err != nil {
		writeError(w, "to must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	if to.Before(from) {
		writeError(w, "to must not precede from", http.StatusBadRequest)
		return
	}

	inserted, err := s.rates.Backfill(r.Context(), from, to, req.Currencies)
	if err != nil {
		writeError(w, "backfill failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"inserted":     inserted,
		"baseCurrency": s.rates.BaseCurrency(),
	})
}

func parseDate(s string) (time.Time, error) {
	return time.Parse("2006-01-02", s)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
