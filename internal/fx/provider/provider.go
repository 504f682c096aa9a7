// Package provider implements clients for external historical FX rate
// sources. Every variant satisfies the same contract: given a date, a base
// currency, and a quote currency, return the rate converting one unit of the
// quote currency into base units — or report "no value". Unknown currencies,
// missing history, and unreachable backends are all "no value"; the resolver
// chain must never be blocked by one bad source.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// Provider is one external historical-rate source.
type Provider interface {
	// Name identifies the provider in logs and metrics.
	Name() string

	// Priority orders the resolver chain; lower runs first. The primary
	// source carries priority 0.
	Priority() int

	// HistoricalRateToBase returns the rate converting one unit of currency
	// into baseCurrency units on date. ok=false means the provider has no
	// value for that day; err is reserved for transport/decode failures.
	HistoricalRateToBase(ctx context.Context, date time.Time, baseCurrency, currency string) (r decimal.Decimal, ok bool, err error)
}

const dateFormat = "2006-01-02"

// restClient is the shared HTTP plumbing for all provider variants: a
// bounded request rate so a backfill burst cannot hammer a free API, and a
// hard timeout so a stuck backend cannot hold the probe loop.
type restClient struct {
	http    *http.Client
	limiter *rate.Limiter
}

func newRESTClient() restClient {
	return restClient{
		http:    &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Every(200*time.Millisecond), 5),
	}
}

// getJSON fetches url and decodes the JSON body into out. Non-2xx statuses
// are returned as errNoValue so callers treat them as "no value".
func (c restClient) getJSON(ctx context.Context, url string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errNoValue
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// errNoValue marks a well-formed "nothing for that day" answer (e.g. a 404
// for a date before the source's history starts).
var errNoValue = fmt.Errorf("provider: no value")

// ratesResponse is the common {"rates": {"XXX": 1.23}} payload shape.
type ratesResponse struct {
	Rates map[string]json.Number `json:"rates"`
}

func (r ratesResponse) rateFor(code string) (decimal.Decimal, bool) {
	n, ok := r.Rates[code]
	if !ok {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}
