package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log"
	"time"

	"github.com/avelar/fxpilot/consts"
	"github.com/avelar/fxpilot/internal/dataflows"
	"github.com/avelar/fxpilot/internal/llm"
	"github.com/avelar/fxpilot/internal/models"
)

// TechnicalAnalyst produces trend, key levels, and a suggested entry/stop/
// take-profit for a pair. It fetches a live quote first, then either asks the
// reasoning model to read the setup or derives levels from fixed offsets.
type TechnicalAnalyst struct {
	reasoner llm.Reasoner
	prices   *dataflows.PriceService
}

func NewTechnicalAnalyst(reasoner llm.Reasoner, prices *dataflows.PriceService) *TechnicalAnalyst {
	return &TechnicalAnalyst{reasoner: reasoner, prices: prices}
}

func (a *TechnicalAnalyst) Name() string { return consts.AgentTechnical }

func (a *TechnicalAnalyst) Analyze(ctx context.Context, req Request, sink models.EventSink) *models.AgentResult {
	start := time.Now()
	emitProgress(sink, consts.AgentTechnical, "fetching_price", "Fetching real-time price for "+req.Pair, 10)

	quote, err := a.prices.GetPrice(ctx, req.Pair)
	priceSource := "real"
	if err != nil {
		log.Printf("[TechnicalAnalyst] price fetch failed for %s: %v", req.Pair, err)
		quote = mockQuote(req.Pair)
		priceSource = "mock"
	}
	emitProgress(sink, consts.AgentTechnical, "price_fetched",
		fmt.Sprintf("Price fetched: %v (%s)", quote.Price, priceSource), 30)

	var data map[string]any
	if a.reasoner != nil {
		data, err = a.analyzeWithModel(ctx, req.Pair, quote, priceSource, sink)
		if err != nil {
			log.Printf("[TechnicalAnalyst] model analysis failed for %s: %v", req.Pair, err)
		}
	}
	if data == nil {
		emitProgress(sink, consts.AgentTechnical, "rule_based_analysis", "Calculating technical levels", 70)
		data = ruleBasedTechnical(req.Pair, quote.Price)
	}

	data["pair"] = req.Pair
	data["current_price"] = quote.Price
	data["bid"] = quote.Bid
	data["ask"] = quote.Ask
	data["price_source"] = priceSource
	data["analysis_timestamp"] = time.Now().UTC().Format(time.RFC3339)
	data["execution_time"] = time.Since(start).Seconds()

	emitProgress(sink, consts.AgentTechnical, "complete",
		fmt.Sprintf("Technical analysis complete in %.2fs", time.Since(start).Seconds()), 100)

	return &models.AgentResult{Success: true, Agent: consts.AgentTechnical, Data: data}
}

func (a *TechnicalAnalyst) analyzeWithModel(ctx context.Context, pair string, quote *dataflows.Quote, priceSource string, sink models.EventSink) (map[string]any, error) {
	emitProgress(sink, consts.AgentTechnical, "llm_analysis", "Analyzing technical patterns with reasoning model", 50)

	raw, err := a.reasoner.Reason(ctx, technicalSystemPrompt, technicalUserPrompt(pair, quote, priceSource))
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Trend         string             `json:"trend"`
		TrendStrength string             `json:"trend_strength"`
		Support       float64            `json:"support"`
		Resistance    float64            `json:"resistance"`
		Indicators    map[string]any     `json:"indicators"`
		Signals       map[string]string  `json:"signals"`
		StopLoss      float64            `json:"stop_loss"`
		TakeProfit    float64            `json:"take_profit"`
		KeyLevels     []float64          `json:"key_levels"`
		Reasoning     string             `json:"reasoning"`
		Summary       string             `json:"summary"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode technical analysis: %w", err)
	}
	if parsed.StopLoss <= 0 || parsed.Signals["overall"] == "" {
		return nil, fmt.Errorf("technical analysis missing stop loss or overall signal")
	}

	signals := map[string]any{}
	for k, v := range parsed.Signals {
		signals[k] = v
	}

	return map[string]any{
		"trend":          parsed.Trend,
		"trend_strength": parsed.TrendStrength,
		"support":        parsed.Support,
		"resistance":     parsed.Resistance,
		"indicators":     parsed.Indicators,
		"signals":        signals,
		"stop_loss":      parsed.StopLoss,
		"take_profit":    parsed.TakeProfit,
		"key_levels":     parsed.KeyLevels,
		"reasoning":      parsed.Reasoning,
		"summary":        parsed.Summary,
		"data_source":    "llm_analysis",
	}, nil
}

// ruleBasedTechnical derives levels from fixed offsets around the current
// price. The pseudo-RSI is hashed from the pair so repeated runs for the same
// pair agree with each other.
func ruleBasedTechnical(pair string, price float64) map[string]any {
	rsi := pseudoRSI(pair)

	trend := "sideways"
	if rsi > 55 {
		trend = "uptrend"
	} else if rsi < 45 {
		trend = "downtrend"
	}

	support := round5(price * 0.98)
	resistance := round5(price * 1.02)

	overall := "HOLD"
	buySignal, sellSignal := "weak", "weak"
	if rsi < 40 {
		overall = "BUY"
		buySignal = "moderate"
	} else if rsi > 60 {
		overall = "SELL"
		sellSignal = "moderate"
	}

	return map[string]any{
		"trend":          trend,
		"trend_strength": "medium",
		"support":        support,
		"resistance":     resistance,
		"indicators": map[string]any{
			"rsi": rsi,
		},
		"signals": map[string]any{
			"buy":     buySignal,
			"sell":    sellSignal,
			"overall": overall,
		},
		"stop_loss":   round5(support * 0.995),
		"take_profit": round5(resistance * 1.005),
		"key_levels":  []float64{support, resistance},
		"summary":     fmt.Sprintf("Technical analysis shows %s with %s signal.", trend, overall),
		"data_source": "rule_based",
	}
}

// pseudoRSI maps a pair name to a stable value in [30, 70].
func pseudoRSI(pair string) float64 {
	h := fnv.New32a()
	h.Write([]byte(pair))
	return 30.0 + float64(h.Sum32()%4001)/100.0
}

// mockQuote supplies a plausible price when every live source is down.
func mockQuote(pair string) *dataflows.Quote {
	prices := map[string]float64{
		"EUR/USD": 1.0850,
		"GBP/USD": 1.2500,
		"USD/JPY": 146.00,
		"XAU/USD": 2650.00,
		"XAG/USD": 31.00,
		"BTC/USD": 95000.00,
		"ETH/USD": 3400.00,
	}
	price, ok := prices[pair]
	if !ok {
		price = 1.25
	}
	return &dataflows.Quote{
		Pair:      pair,
		Price:     price,
		Bid:       price,
		Ask:       price,
		Source:    "mock",
		Timestamp: time.Now().UTC(),
	}
}

const technicalSystemPrompt = `You are a technical analyst for forex, commodities, and crypto. You receive a live quote and produce trend, levels, and a trade setup. Respond with JSON only.`

func technicalUserPrompt(pair string, quote *dataflows.Quote, priceSource string) string {
	return fmt.Sprintf(`Perform technical analysis for %s.

CURRENT QUOTE:
- Price: %v
- Bid: %v
- Ask: %v
- Source: %s (%s)

OUTPUT FORMAT (JSON):
{
  "trend": "uptrend|downtrend|sideways",
  "trend_strength": "strong|medium|weak",
  "support": 0.0,
  "resistance": 0.0,
  "indicators": {"rsi": 0.0, "macd": 0.0},
  "signals": {"buy": "strong|moderate|weak", "sell": "strong|moderate|weak", "overall": "BUY|SELL|HOLD"},
  "stop_loss": 0.0,
  "take_profit": 0.0,
  "key_levels": [0.0],
  "reasoning": "why these levels",
  "summary": "1-2 sentence technical summary"
}

Stop loss and take profit must be realistic distances from the current price for this asset class.`,
		pair, quote.Price, quote.Bid, quote.Ask, quote.Source, priceSource)
}
