package dataflows

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/piquette/finance-go/quote"
	"github.com/shopspring/decimal"
)

const (
	metalAPIURL = "https://api.metalpriceapi.com/v1/latest"
	forexAPIURL = "https://api.forexrateapi.com/v1/latest"

	// Synthetic bid/ask spreads, as fractions of the mid price.
	metalSpread = 0.001
	forexSpread = 0.0002
)

// commodities quoted per troy ounce; their API rates arrive inverted.
var commodities = map[string]bool{
	"XAU": true, "XAG": true, "XPT": true, "XPD": true,
}

// Quote is a point-in-time price for a trading pair. Bid and ask are
// synthesized from the mid price with an asset-class spread.
type Quote struct {
	Pair      string    `json:"pair"`
	Price     float64   `json:"price"`
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

type rateResponse struct {
	Success   bool               `json:"success"`
	Base      string             `json:"base"`
	Timestamp int64              `json:"timestamp"`
	Rates     map[string]float64 `json:"rates"`
	Error     any                `json:"error,omitempty"`
}

// PriceService fetches live prices, commodities from Metal Price API and
// forex/crypto from Forex Rate API, with a Yahoo Finance quote as last
// resort. Results are cached to stay under free-tier rate limits.
type PriceService struct {
	metalClient *resty.Client
	forexClient *resty.Client
	metalKey    string
	forexKey    string
	cache       *Cache
}

// NewPriceService wires the HTTP clients and the injected cache.
func NewPriceService(metalKey, forexKey string, cache *Cache) *PriceService {
	metalClient := resty.New().
		SetBaseURL(metalAPIURL).
		SetTimeout(5 * time.Second)
	forexClient := resty.New().
		SetBaseURL(forexAPIURL).
		SetTimeout(5 * time.Second)

	return &PriceService{
		metalClient: metalClient,
		forexClient: forexClient,
		metalKey:    metalKey,
		forexKey:    forexKey,
		cache:       cache,
	}
}

// GetPrice returns the current quote for a pair like "EUR/USD" or "XAU/USD".
func (ps *PriceService) GetPrice(ctx context.Context, pair string) (*Quote, error) {
	if cached, ok := ps.cache.Get("price:" + pair); ok {
		if q, ok := cached.(*Quote); ok {
			return q, nil
		}
	}

	base, quoteCcy, err := ParsePair(pair)
	if err != nil {
		return nil, err
	}

	var q *Quote
	if commodities[base] {
		q, err = ps.fetchMetalPrice(ctx, base, quoteCcy)
	} else {
		q, err = ps.fetchForexPrice(ctx, base, quoteCcy)
	}
	if err != nil {
		log.Printf("[PriceService] primary source failed for %s: %v", pair, err)
		q, err = ps.fetchYahooPrice(base, quoteCcy)
		if err != nil {
			return nil, fmt.Errorf("all price sources failed for %s: %w", pair, err)
		}
	}

	ps.cache.Set("price:"+pair, q)
	return q, nil
}

// ParsePair splits "EUR/USD" (or "EURUSD") into base and quote currencies.
func ParsePair(pair string) (string, string, error) {
	p := strings.ToUpper(strings.TrimSpace(pair))
	if base, quoteCcy, ok := strings.Cut(p, "/"); ok {
		if base == "" || quoteCcy == "" {
			return "", "", fmt.Errorf("malformed pair %q", pair)
		}
		return base, quoteCcy, nil
	}
	if len(p) == 6 {
		return p[:3], p[3:], nil
	}
	return "", "", fmt.Errorf("malformed pair %q", pair)
}

// fetchMetalPrice queries Metal Price API. The API quotes ounces per unit of
// the quote currency, so the rate is inverted to get price per ounce.
func (ps *PriceService) fetchMetalPrice(ctx context.Context, base, quoteCcy string) (*Quote, error) {
	var body rateResponse
	resp, err := ps.metalClient.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"api_key":    ps.metalKey,
			"base":       quoteCcy,
			"currencies": base,
		}).
		SetResult(&body).
		Get("")
	if err != nil {
		return nil, fmt.Errorf("metal price request: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("metal price HTTP %d", resp.StatusCode())
	}
	if !body.Success {
		return nil, fmt.Errorf("metal price API error: %v", body.Error)
	}

	rate, ok := body.Rates[base]
	if !ok || rate <= 0 {
		return nil, fmt.Errorf("no usable %s rate in metal price response", base)
	}

	price := 1.0 / rate
	q := buildQuote(base+"/"+quoteCcy, price, metalSpread, 2, "metalpriceapi", body.Timestamp)
	return q, nil
}

func (ps *PriceService) fetchForexPrice(ctx context.Context, base, quoteCcy string) (*Quote, error) {
	var body rateResponse
	resp, err := ps.forexClient.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"api_key":    ps.forexKey,
			"base":       base,
			"currencies": quoteCcy,
		}).
		SetResult(&body).
		Get("")
	if err != nil {
		return nil, fmt.Errorf("forex rate request: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("forex rate HTTP %d", resp.StatusCode())
	}
	if !body.Success {
		return nil, fmt.Errorf("forex rate API error: %v", body.Error)
	}

	rate, ok := body.Rates[quoteCcy]
	if !ok || rate <= 0 {
		return nil, fmt.Errorf("no usable %s rate in forex rate response", quoteCcy)
	}

	q := buildQuote(base+"/"+quoteCcy, rate, forexSpread, 5, "forexrateapi", body.Timestamp)
	return q, nil
}

// fetchYahooPrice is the last-resort source when both rate APIs are down.
func (ps *PriceService) fetchYahooPrice(base, quoteCcy string) (*Quote, error) {
	symbol := yahooSymbol(base, quoteCcy)

	var price float64
	err := WithRetry(DefaultRetryConfig(), func() error {
		q, err := quote.Get(symbol)
		if err != nil {
			return fmt.Errorf("yahoo quote for %s: %w", symbol, err)
		}
		if q == nil || q.RegularMarketPrice <= 0 {
			return fmt.Errorf("yahoo returned empty quote for %s", symbol)
		}
		price = q.RegularMarketPrice
		return nil
	})
	if err != nil {
		return nil, err
	}

	spread := forexSpread
	digits := int32(5)
	if commodities[base] {
		spread = metalSpread
		digits = 2
	}
	return buildQuote(base+"/"+quoteCcy, price, spread, digits, "yahoo_finance", time.Now().Unix()), nil
}

func yahooSymbol(base, quoteCcy string) string {
	switch base {
	case "XAU":
		return "GC=F"
	case "XAG":
		return "SI=F"
	case "XPT":
		return "PL=F"
	case "XPD":
		return "PA=F"
	case "BTC", "ETH":
		return base + "-" + quoteCcy
	}
	return base + quoteCcy + "=X"
}

func buildQuote(pair string, price, spread float64, digits int32, source string, ts int64) *Quote {
	mid := decimal.NewFromFloat(price)
	half := mid.Mul(decimal.NewFromFloat(spread)).Div(decimal.NewFromInt(2))

	q := &Quote{
		Pair:      pair,
		Price:     mid.Round(digits).InexactFloat64(),
		Bid:       mid.Sub(half).Round(digits).InexactFloat64(),
		Ask:       mid.Add(half).Round(digits).InexactFloat64(),
		Source:    source,
		Timestamp: time.Unix(ts, 0).UTC(),
	}
	return q
}
