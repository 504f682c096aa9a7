package split

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/expenseapp/split-engine/internal/metrics"
)

// RateSource resolves day-level conversion rates into the base currency.
// Satisfied by fx.Resolver.
type RateSource interface {
	// RateFor never fails: unknown currencies resolve to parity.
	RateFor(ctx context.Context, date time.Time, currency string) decimal.Decimal

	// BaseCurrency returns the system-wide base currency code.
	BaseCurrency() string
}

// Engine runs allocations against live rates. It holds no mutable state and
// is safe for concurrent use.
type Engine struct {
	rates RateSource
}

// NewEngine creates an allocation engine backed by the given rate source.
func NewEngine(rates RateSource) *Engine {
	return &Engine{rates: rates}
}

// Allocate resolves the conversion rate for the request's date and currency
// and runs the allocation. A zero OccurredOn means today.
func (e *Engine) Allocate(ctx context.Context, req Request) (*Result, error) {
	if req.OccurredOn.IsZero() {
		req.OccurredOn = time.Now().UTC()
	}

	rate := e.rates.RateFor(ctx, req.OccurredOn, req.Currency)
	res, err := Allocate(req, rate, e.rates.BaseCurrency())
	if err != nil {
		return nil, err
	}

	metrics.SplitsTotal.WithLabelValues(string(req.Type)).Inc()
	return res, nil
}

// Service exposes the engine over HTTP.
type Service struct {
	engine *Engine
}

// NewService creates the split HTTP service.
func NewService(engine *Engine) *Service {
	return &Service{engine: engine}
}

// simulateRequest is the JSON body for POST /api/v1/split/simulate.
type simulateRequest struct {
	Type         string          `json:"type"`
	TotalAmount  decimal.Decimal `json:"totalAmount"`
	Currency     string          `json:"currency"`
	OccurredOn   string          `json:"occurredOn"` // YYYY-MM-DD; empty means today
	Participants []Participant   `json:"participants"`
}

// Simulate handles POST /api/v1/split/simulate
// Computes the allocation without persisting anything.
func (s *Service) Simulate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req simulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	splitType, err := ParseType(req.Type)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var occurredOn time.Time
	if req.OccurredOn != "" {
		occurredOn, err = time.Parse("2006-01-02", req.OccurredOn)
		if err != nil {
			writeError(w, "occurredOn must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
	}

	res, err := s.engine.Allocate(r.Context(), Request{
		Type:         splitType,
		TotalAmount:  req.TotalAmount,
		Currency:     req.Currency,
		OccurredOn:   occurredOn,
		Participants: req.Participants,
	})
	if err != nil {
		// Every allocation failure is a caller input problem.
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	metrics.SplitLatency.WithLabelValues(req.Type).Observe(time.Since(start).Seconds())
	slog.Info("split computed",
		"type", req.Type,
		"total", res.Total.String(),
		"currency", req.Currency,
		"participants", len(req.Participants),
	)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(res)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
