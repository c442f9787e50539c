package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/avelar/fxpilot/internal/llm"
	"github.com/avelar/fxpilot/internal/models"
)

// QueryParser normalizes free-text input into a StructuredQuery. The
// reasoning model does the heavy lifting; when it fails or is absent, a
// keyword table and a pair regex take over. Parse never fails: worst case it
// returns the default pair at low confidence with the error noted.
type QueryParser struct {
	reasoner llm.Reasoner
}

func NewQueryParser(reasoner llm.Reasoner) *QueryParser {
	return &QueryParser{reasoner: reasoner}
}

const defaultPair = "EUR/USD"

// Parse returns the structured query and, when the model path failed, the
// error that forced the fallback.
func (p *QueryParser) Parse(ctx context.Context, userQuery string) (*models.StructuredQuery, error) {
	if p.reasoner == nil {
		return fallbackQuery(userQuery, fmt.Errorf("reasoning model unavailable")), fmt.Errorf("reasoning model unavailable")
	}

	raw, err := p.reasoner.Reason(ctx, parserSystemPrompt, parserUserPrompt(userQuery))
	if err != nil {
		return fallbackQuery(userQuery, err), err
	}

	var q models.StructuredQuery
	if err := json.Unmarshal(raw, &q); err != nil {
		err = fmt.Errorf("decode structured query: %w", err)
		return fallbackQuery(userQuery, err), err
	}
	if q.Pair == "" {
		q.Pair = defaultPair
	}
	q.Pair = strings.ToUpper(q.Pair)
	if q.BaseCurrency == "" || q.QuoteCurrency == "" {
		if base, quote, ok := strings.Cut(q.Pair, "/"); ok {
			q.BaseCurrency, q.QuoteCurrency = base, quote
		}
	}
	if q.AssetType == "" {
		q.AssetType = classifyAsset(q.BaseCurrency)
	}
	return &q, nil
}

// pairAliases maps common asset keywords to canonical pairs.
var pairAliases = []struct {
	keyword string
	pair    string
}{
	{"gold", "XAU/USD"},
	{"silver", "XAG/USD"},
	{"oil", "CL/USD"},
	{"bitcoin", "BTC/USD"},
	{"btc", "BTC/USD"},
	{"ethereum", "ETH/USD"},
	{"eth", "ETH/USD"},
	{"euro", "EUR/USD"},
	{"pound", "GBP/USD"},
	{"yen", "USD/JPY"},
}

// Matched against the raw query, not an upper-cased copy: only currency
// codes the user actually typed in caps count as a pair-shaped token.
var pairPattern = regexp.MustCompile(`\b([A-Z]{3})[/\s]?([A-Z]{3})\b`)

// FallbackPair resolves a pair from the raw query without any model: alias
// table first, then a pair-shaped token, then the default.
func FallbackPair(userQuery string) string {
	lower := strings.ToLower(userQuery)
	for _, alias := range pairAliases {
		if strings.Contains(lower, alias.keyword) {
			return alias.pair
		}
	}

	if m := pairPattern.FindStringSubmatch(userQuery); m != nil {
		return m[1] + "/" + m[2]
	}

	return defaultPair
}

func fallbackQuery(userQuery string, cause error) *models.StructuredQuery {
	pair := FallbackPair(userQuery)
	base, quote, _ := strings.Cut(pair, "/")
	return &models.StructuredQuery{
		Pair:          pair,
		AssetType:     classifyAsset(base),
		BaseCurrency:  base,
		QuoteCurrency: quote,
		Timeframe:     "short_term",
		UserIntent:    "trading_signal",
		RiskTolerance: "moderate",
		Confidence:    0.3,
		ParseError:    cause.Error(),
	}
}

func classifyAsset(base string) string {
	switch base {
	case "XAU", "XAG", "XPT", "XPD", "CL":
		return "commodity"
	case "BTC", "ETH":
		return "crypto"
	case "":
		return "unknown"
	}
	return "forex"
}

const parserSystemPrompt = `You are a trading query parser for forex, commodities, and crypto. You transform natural language into structured JSON context. Respond with JSON only.`

func parserUserPrompt(userQuery string) string {
	return fmt.Sprintf(`Parse this trading query: %q

Extract:
1. Pair, normalized to BASE/QUOTE format ("gold" -> "XAU/USD", "bitcoin" -> "BTC/USD", "EURUSD" -> "EUR/USD"; default "EUR/USD" if unclear)
2. Asset type: "forex", "commodity", "crypto", or "index"
3. Base and quote currencies
4. Timeframe: "short_term", "medium_term", or "long_term" (default "short_term")
5. User intent: "trading_signal", "buy_signal", "sell_signal", "market_overview", or "risk_assessment"
6. Risk tolerance: "conservative", "moderate", or "aggressive" (default "moderate")
7. Confidence in your parse, 0.0 to 1.0

OUTPUT FORMAT (JSON):
{
  "pair": "XAU/USD",
  "asset_type": "commodity",
  "base_currency": "XAU",
  "quote_currency": "USD",
  "timeframe": "short_term",
  "user_intent": "trading_signal",
  "risk_tolerance": "moderate",
  "additional_context": {"keywords": []},
  "confidence": 0.95
}`, userQuery)
}
