package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// rateScale is the stored precision for derived cross rates.
const rateScale int32 = 8

// OpenExchangeRates queries openexchangerates.org historical rates. The API
// quotes everything against USD, so non-USD base currencies are derived as a
// USD cross rate. Requires an app id.
type OpenExchangeRates struct {
	rest    restClient
	baseURL string
	appID   string
}

// NewOpenExchangeRates creates the Open Exchange Rates client.
func NewOpenExchangeRates(appID string) *OpenExchangeRates {
	return &OpenExchangeRates{
		rest:    newRESTClient(),
		baseURL: "https://openexchangerates.org",
		appID:   appID,
	}
}

func (o *OpenExchangeRates) Name() string  { return "openexchangerates" }
func (o *OpenExchangeRates) Priority() int { return 2 }

func (o *OpenExchangeRates) HistoricalRateToBase(ctx context.Context, date time.Time, baseCurrency, currency string) (decimal.Decimal, bool, error) {
	if currency == baseCurrency {
		return decimal.NewFromInt(1), true, nil
	}

	url := fmt.Sprintf("%s/api/historical/%s.json?app_id=%s",
		o.baseURL, date.Format(dateFormat), o.appID)

	var resp ratesResponse
	if err := o.rest.getJSON(ctx, url, &resp); err != nil {
		if errors.Is(err, errNoValue) {
			return decimal.Decimal{}, false, nil
		}
		return decimal.Decimal{}, false, err
	}

	usdToCurrency, ok := resp.rateFor(currency)
	if !ok || usdToCurrency.IsZero() {
		return decimal.Decimal{}, false, nil
	}

	if baseCurrency == "USD" {
		one := decimal.NewFromInt(1)
		return one.Div(usdToCurrency).Round(rateScale), true, nil
	}

	usdToBase, ok := resp.rateFor(baseCurrency)
	if !ok {
		return decimal.Decimal{}, false, nil
	}
	return usdToBase.Div(usdToCurrency).Round(rateScale), true, nil
}
