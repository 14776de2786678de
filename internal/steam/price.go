package steam

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const priceTTL = 24 * time.Hour

// Steam's market API speaks its own numeric currency ids, not ISO
// codes. Unknown codes fall back to USD.
var currencyIDs = map[string]int{
	"USD": 1, "GBP": 2, "EUR": 3, "CHF": 4, "RUB": 5, "PLN": 6,
	"BRL": 7, "JPY": 8, "NOK": 9, "IDR": 10, "MYR": 11, "PHP": 12,
	"SGD": 13, "THB": 14, "VND": 15, "KRW": 16, "TRY": 17, "UAH": 18,
	"MXN": 19, "CAD": 20, "AUD": 21, "NZD": 22, "CNY": 23, "INR": 24,
}

var currencySymbols = map[string]string{
	"USD": "$", "GBP": "£", "EUR": "€", "RUB": "₽", "PLN": "zł",
	"BRL": "R$", "JPY": "¥", "CNY": "¥", "CAD": "C$", "AUD": "A$",
}

// PriceQuote is one cached market price lookup. Amount nil means the
// market reported no usable price.
type PriceQuote struct {
	AppID          string
	MarketHashName string
	CurrencyID     int
	Amount         *float64
	FetchedAt      time.Time
}

// PriceResult separates "no price listed" (Amount nil, Failure nil)
// from an actual fetch failure. Callers treat both as unpriced but the
// failure reason feeds the refresh report.
type PriceResult struct {
	Amount  *float64
	Failure error
}

// PriceOracle fetches and caches current market prices.
type PriceOracle struct {
	client        *Client
	log           *logrus.Logger
	clock         Clock
	CommunityHost string

	cache map[string]PriceQuote
}

func NewPriceOracle(client *Client, log *logrus.Logger, clock Clock) *PriceOracle {
	return &PriceOracle{
		client:        client,
		log:           log,
		clock:         clock,
		CommunityHost: defaultCommunityHost,
		cache:         make(map[string]PriceQuote),
	}
}

type priceOverviewResponse struct {
	Success     bool   `json:"success"`
	LowestPrice string `json:"lowest_price"`
	MedianPrice string `json:"median_price"`
}

// GetPrice returns the current market price for one item in one
// currency, cached for 24 hours. Fetch failures degrade to an unpriced
// result after logging; they never abort a batch refresh.
func (o *PriceOracle) GetPrice(ctx context.Context, appID, marketHashName string, currencyID int) PriceResult {
	cacheKey := fmt.Sprintf("%s|%s|%d", appID, marketHashName, currencyID)
	if quote, ok := o.cache[cacheKey]; ok && o.clock.Now().Sub(quote.FetchedAt) < priceTTL {
		return PriceResult{Amount: quote.Amount}
	}

	endpoint := fmt.Sprintf("%s/market/priceoverview/?appid=%s&currency=%d&market_hash_name=%s",
		o.CommunityHost, appID, currencyID, url.QueryEscape(marketHashName))

	resp, err := o.client.Dispatch(ctx, endpoint, nil)
	if err != nil {
		o.log.WithFields(logrus.Fields{"item": marketHashName, "error": err}).Warn("price fetch failed")
		return PriceResult{Failure: err}
	}
	if resp.StatusCode() != 200 {
		failure := &UpstreamError{Path: sanitizeURL(endpoint), Status: resp.StatusCode()}
		o.log.WithFields(logrus.Fields{"item": marketHashName, "status": resp.StatusCode()}).Warn("price fetch failed")
		return PriceResult{Failure: failure}
	}

	var parsed priceOverviewResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		o.log.WithFields(logrus.Fields{"item": marketHashName, "error": err}).Warn("price response unreadable")
		return PriceResult{Failure: &MalformedResponseError{Endpoint: "priceoverview", Missing: "json body"}}
	}
	if !parsed.Success {
		o.log.WithField("item", marketHashName).Warn("price response not successful")
		return PriceResult{Failure: &MalformedResponseError{Endpoint: "priceoverview", Missing: "success"}}
	}

	raw := parsed.LowestPrice
	if raw == "" {
		raw = parsed.MedianPrice
	}
	if raw == "" {
		return PriceResult{}
	}

	amount, err := ParsePriceString(raw)
	if err != nil {
		o.log.WithFields(logrus.Fields{"item": marketHashName, "raw": raw, "error": err}).Warn("price string unparsable")
		return PriceResult{Failure: &MalformedResponseError{Endpoint: "priceoverview", Missing: "numeric price"}}
	}

	o.cache[cacheKey] = PriceQuote{
		AppID:          appID,
		MarketHashName: marketHashName,
		CurrencyID:     currencyID,
		Amount:         &amount,
		FetchedAt:      o.clock.Now(),
	}
	return PriceResult{Amount: &amount}
}

// ParsePriceString normalizes Steam's locale-formatted price strings.
// Both "1,234.56" and "1.234,56" conventions occur; when both
// separators are present the rightmost one is the decimal separator.
// A lone comma is treated as decimal.
func ParsePriceString(raw string) (float64, error) {
	var b strings.Builder
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == ',' || r == '.' {
			b.WriteRune(r)
		}
	}
	s := b.String()
	if s == "" {
		return 0, fmt.Errorf("no digits in price string %q", raw)
	}

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")

	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		s = strings.ReplaceAll(s[:lastComma], ",", "") + "." + s[lastComma+1:]
	}

	return strconv.ParseFloat(s, 64)
}

// CurrencyCodeToID maps an ISO-like currency code to Steam's numeric
// currency id, defaulting to USD.
func CurrencyCodeToID(code string) int {
	if id, ok := currencyIDs[strings.ToUpper(code)]; ok {
		return id
	}
	return currencyIDs["USD"]
}

// FormatPrice renders an amount for display, or "N/A" when unpriced.
func FormatPrice(amount *float64, currencyCode string) string {
	if amount == nil {
		return "N/A"
	}
	code := strings.ToUpper(currencyCode)
	if symbol, ok := currencySymbols[code]; ok {
		return fmt.Sprintf("%s%.2f", symbol, *amount)
	}
	return fmt.Sprintf("%.2f %s", *amount, code)
}
