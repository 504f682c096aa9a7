package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ExchangerateHost queries exchangerate.host historical rates (free, no API
// key). API doc: https://exchangerate.host/#/#docs
type ExchangerateHost struct {
	rest    restClient
	baseURL string
}

// NewExchangerateHost creates the exchangerate.host client.
func NewExchangerateHost() *ExchangerateHost {
	return &ExchangerateHost{
		rest:    newRESTClient(),
		baseURL: "https://api.exchangerate.host",
	}
}

func (e *ExchangerateHost) Name() string  { return "exchangeratehost" }
func (e *ExchangerateHost) Priority() int { return 1 }

func (e *ExchangerateHost) HistoricalRateToBase(ctx context.Context, date time.Time, baseCurrency, currency string) (decimal.Decimal, bool, error) {
	if currency == baseCurrency {
		return decimal.NewFromInt(1), true, nil
	}

	// Example: https://api.exchangerate.host/2020-01-10?base=USD&symbols=INR
	url := fmt.Sprintf("%s/%s?base=%s&symbols=%s",
		e.baseURL, date.Format(dateFormat), currency, baseCurrency)

	var resp ratesResponse
	if err := e.rest.getJSON(ctx, url, &resp); err != nil {
		if errors.Is(err, errNoValue) {
			return decimal.Decimal{}, false, nil
		}
		return decimal.Decimal{}, false, err
	}

	r, ok := resp.rateFor(baseCurrency)
	return r, ok, nil
}
