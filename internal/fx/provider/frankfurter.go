package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Frankfurter serves ECB reference rates. It is the primary source: free,
// keyless, and stable. API: https://www.frankfurter.app/docs/
type Frankfurter struct {
	rest    restClient
	baseURL string
}

// NewFrankfurter creates the Frankfurter client.
func NewFrankfurter() *Frankfurter {
	return &Frankfurter{
		rest:    newRESTClient(),
		baseURL: "https://api.frankfurter.app",
	}
}

func (f *Frankfurter) Name() string  { return "frankfurter" }
func (f *Frankfurter) Priority() int { return 0 }

func (f *Frankfurter) HistoricalRateToBase(ctx context.Context, date time.Time, baseCurrency, currency string) (decimal.Decimal, bool, error) {
	if currency == baseCurrency {
		return decimal.NewFromInt(1), true, nil
	}

	// Example: https://api.frankfurter.app/2020-01-10?from=USD&to=INR
	url := fmt.Sprintf("%s/%s?from=%s&to=%s",
		f.baseURL, date.Format(dateFormat), currency, baseCurrency)

	var resp ratesResponse
	if err := f.rest.getJSON(ctx, url, &resp); err != nil {
		if errors.Is(err, errNoValue) {
			return decimal.Decimal{}, false, nil
		}
		return decimal.Decimal{}, false, err
	}

	r, ok := resp.rateFor(baseCurrency)
	return r, ok, nil
}
