package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/avelar/fxpilot/consts"
	"github.com/avelar/fxpilot/internal/dataflows"
	"github.com/avelar/fxpilot/internal/llm"
	"github.com/avelar/fxpilot/internal/models"
)

// FundamentalAnalyst compares the macro picture of the base and quote
// currencies. Without a reasoning model it degrades to a neutral outlook
// rather than failing the branch.
type FundamentalAnalyst struct {
	reasoner llm.Reasoner
}

func NewFundamentalAnalyst(reasoner llm.Reasoner) *FundamentalAnalyst {
	return &FundamentalAnalyst{reasoner: reasoner}
}

func (a *FundamentalAnalyst) Name() string { return consts.AgentFundamental }

func (a *FundamentalAnalyst) Analyze(ctx context.Context, req Request, sink models.EventSink) *models.AgentResult {
	start := time.Now()
	emitProgress(sink, consts.AgentFundamental, "initializing", "Starting fundamental analysis for "+req.Pair, 10)

	var data map[string]any
	var err error
	if a.reasoner != nil {
		data, err = a.analyzeWithModel(ctx, req.Pair, sink)
		if err != nil {
			log.Printf("[FundamentalAnalyst] model analysis failed for %s: %v", req.Pair, err)
		}
	}
	if data == nil {
		emitProgress(sink, consts.AgentFundamental, "neutral_fallback", "Reasoning model unavailable, using neutral outlook", 70)
		data = neutralFundamentals(req.Pair)
	}

	data["analysis_timestamp"] = time.Now().UTC().Format(time.RFC3339)
	data["execution_time"] = time.Since(start).Seconds()

	emitProgress(sink, consts.AgentFundamental, "complete",
		fmt.Sprintf("Fundamental analysis complete in %.2fs", time.Since(start).Seconds()), 100)

	return &models.AgentResult{Success: true, Agent: consts.AgentFundamental, Data: data}
}

func (a *FundamentalAnalyst) analyzeWithModel(ctx context.Context, pair string, sink models.EventSink) (map[string]any, error) {
	emitProgress(sink, consts.AgentFundamental, "llm_analysis", "Analyzing economic fundamentals", 40)

	raw, err := a.reasoner.Reason(ctx, fundamentalSystemPrompt, fundamentalUserPrompt(pair))
	if err != nil {
		return nil, err
	}

	var parsed struct {
		BaseCurrency     map[string]any `json:"base_currency"`
		QuoteCurrency    map[string]any `json:"quote_currency"`
		Comparison       map[string]any `json:"comparison"`
		FundamentalScore float64        `json:"fundamental_score"`
		Outlook          string         `json:"outlook"`
		KeyFactors       []string       `json:"key_factors"`
		Reasoning        string         `json:"reasoning"`
		Summary          string         `json:"summary"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode fundamental analysis: %w", err)
	}

	return map[string]any{
		"pair":              pair,
		"base_currency":     parsed.BaseCurrency,
		"quote_currency":    parsed.QuoteCurrency,
		"comparison":        parsed.Comparison,
		"fundamental_score": parsed.FundamentalScore,
		"outlook":           normalizeSentiment(parsed.Outlook),
		"key_factors":       parsed.KeyFactors,
		"reasoning":         parsed.Reasoning,
		"summary":           parsed.Summary,
		"data_source":       "llm_analysis",
	}, nil
}

func neutralFundamentals(pair string) map[string]any {
	base, quoteCcy, err := dataflows.ParsePair(pair)
	if err != nil {
		base, quoteCcy = "", ""
	}
	return map[string]any{
		"pair":              pair,
		"base_currency":     map[string]any{"currency": base},
		"quote_currency":    map[string]any{"currency": quoteCcy},
		"comparison":        map[string]any{},
		"fundamental_score": 0.0,
		"outlook":           "neutral",
		"key_factors":       []string{},
		"summary":           "No fundamental data available for " + pair + "; defaulting to neutral outlook.",
		"data_source":       "neutral_fallback",
	}
}

const fundamentalSystemPrompt = `You are a macro economist analyzing currency fundamentals: GDP, inflation, interest rates, and central bank policy. Respond with JSON only.`

func fundamentalUserPrompt(pair string) string {
	return fmt.Sprintf(`Perform fundamental analysis for %s.

Compare the base currency against the quote currency across growth, inflation, interest rates, and central bank stance, then score the pair.

OUTPUT FORMAT (JSON):
{
  "base_currency": {"currency": "EUR", "gdp_growth": "...", "inflation": "...", "interest_rate": "...", "central_bank": "..."},
  "quote_currency": {"currency": "USD", "gdp_growth": "...", "inflation": "...", "interest_rate": "...", "central_bank": "..."},
  "comparison": {"rate_differential": "...", "growth_differential": "..."},
  "fundamental_score": -1.0 to 1.0,
  "outlook": "bullish|bearish|neutral",
  "key_factors": ["factor 1", "factor 2"],
  "reasoning": "why the outlook",
  "summary": "1-2 sentence fundamental summary"
}

A positive score favors the base currency; a negative score favors the quote currency.`, pair)
}
