package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/avelar/fxpilot/consts"
	"github.com/avelar/fxpilot/internal/config"
	"github.com/avelar/fxpilot/internal/dataflows"
	"github.com/avelar/fxpilot/internal/llm"
	"github.com/avelar/fxpilot/internal/models"
)

// newTestEngine builds an engine whose data services run entirely off
// pre-seeded caches, so no test ever touches the network.
func newTestEngine(r llm.Reasoner) *Engine {
	cfg := &config.Config{
		LLMProvider:     "openai",
		LLMModel:        "gpt-4o-mini",
		AccountBalance:  10000,
		MaxRiskPerTrade: 0.02,
		PipMultiplier:   10000,
	}

	priceCache := dataflows.NewCache(time.Minute)
	priceCache.Set("price:EUR/USD", &dataflows.Quote{
		Pair: "EUR/USD", Price: 1.0850, Bid: 1.0849, Ask: 1.0851,
		Source: "test", Timestamp: time.Now().UTC(),
	})

	newsCache := dataflows.NewCache(time.Minute)
	newsCache.Set("news:EUR/USD forex news:10", []dataflows.Headline{
		{Title: "Euro rallies on strong PMI data", URL: "https://example.com/a", Source: "Test Wire", PublishedAt: time.Now().UTC()},
		{Title: "Dollar falls after dovish Fed remarks", URL: "https://example.com/b", Source: "Test Wire", PublishedAt: time.Now().UTC()},
	})

	return NewEngine(cfg, r,
		dataflows.NewPriceService("", "", priceCache),
		dataflows.NewNewsService(newsCache))
}

func TestEngineAlwaysTerminatesWithDecision(t *testing.T) {
	e := newTestEngine(nil)

	result, err := e.Analyze(context.Background(), "analyze EUR/USD", nil)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if result.Decision == nil {
		t.Fatal("workflow must always terminate with a decision")
	}
	if result.Decision.Action != models.ActionWait {
		t.Errorf("action = %q, want WAIT without a reasoning model", result.Decision.Action)
	}
	if result.Decision.Confidence != 0 {
		t.Errorf("confidence = %v, want 0", result.Decision.Confidence)
	}
	if !result.Decision.Reasoning.Error {
		t.Error("safe default decision must be flagged as an error decision")
	}
	if _, ok := result.Metadata.Errors[consts.AgentSynthesis]; !ok {
		t.Error("synthesis failure must be recorded in metadata errors")
	}

	// Fallback paths keep every analysis slot populated.
	if result.AgentResults.News == nil || !result.AgentResults.News.Success {
		t.Error("news result missing; keyword fallback should have produced one")
	}
	if result.AgentResults.Technical == nil || !result.AgentResults.Technical.Success {
		t.Error("technical result missing; rule-based fallback should have produced one")
	}
	if result.AgentResults.Fundamental == nil || !result.AgentResults.Fundamental.Success {
		t.Error("fundamental result missing; neutral fallback should have produced one")
	}
	if result.AgentResults.Risk == nil {
		t.Error("risk result missing")
	}
	if result.Metadata.Steps != 5 {
		t.Errorf("steps = %d, want 5", result.Metadata.Steps)
	}
	if result.Pair != "EUR/USD" {
		t.Errorf("pair = %q, want EUR/USD", result.Pair)
	}
}

func TestEngineSafeDefaultWhenSynthesisTimesOut(t *testing.T) {
	r := &scriptReasoner{fn: func(system, user string) (json.RawMessage, error) {
		if strings.Contains(system, "query parser") {
			return json.RawMessage(`{"pair":"EUR/USD","asset_type":"forex","confidence":0.9}`), nil
		}
		return nil, fmt.Errorf("model call timed out")
	}}
	e := newTestEngine(r)

	result, err := e.Analyze(context.Background(), "should I buy the euro?", nil)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if result.Decision.Action != models.ActionWait || result.Decision.Confidence != 0 {
		t.Errorf("decision = %s/%v, want WAIT/0", result.Decision.Action, result.Decision.Confidence)
	}
	if !strings.HasPrefix(result.Decision.Reasoning.Summary, "Synthesis failed:") {
		t.Errorf("summary = %q, want synthesis failure prefix", result.Decision.Reasoning.Summary)
	}
}

func TestEngineStreamEventOrdering(t *testing.T) {
	r := &scriptReasoner{fn: func(system, user string) (json.RawMessage, error) {
		switch {
		case strings.Contains(system, "query parser"):
			return json.RawMessage(`{"pair":"EUR/USD","asset_type":"forex","confidence":0.9}`), nil
		case strings.Contains(system, "decision synthesizer"):
			return json.RawMessage(`{
				"action": "BUY",
				"confidence": 0.82,
				"reasoning": {"summary": "Aligned bullish signals.", "key_factors": ["sentiment"]},
				"trade_parameters": {"entry_price": 1.085, "stop_loss": 1.08, "take_profit": 1.095, "position_size": 0.4},
				"disclaimer": "Informational only."
			}`), nil
		case strings.Contains(system, "report writer"):
			return json.RawMessage(`{
				"executive_summary": "<p>Buy setup.</p>",
				"market_analysis": "<p>Sentiment is positive.</p>",
				"technical_analysis": "<p>Uptrend.</p>",
				"risk_assessment": "<p>Sized at 2%.</p>",
				"key_takeaways": ["Momentum favors the euro"]
			}`), nil
		}
		return nil, fmt.Errorf("no analysis available")
	}}
	e := newTestEngine(r)

	events, err := e.AnalyzeStream(context.Background(), "euro outlook", nil)
	if err != nil {
		t.Fatalf("AnalyzeStream: %v", err)
	}

	var types []string
	var decisionAction string
	for ev := range events {
		types = append(types, ev.Type)
		if ev.Type == consts.EventDecision {
			decisionAction, _ = ev.Data["action"].(string)
		}
	}

	pos := func(typ string) int {
		for i, tt := range types {
			if tt == typ {
				return i
			}
		}
		t.Fatalf("event %q missing from stream %v", typ, types)
		return -1
	}

	if types[0] != consts.EventStart {
		t.Errorf("first event = %q, want start", types[0])
	}
	if types[len(types)-1] != consts.EventComplete {
		t.Errorf("last event = %q, want complete", types[len(types)-1])
	}
	if !(pos(consts.EventQueryParsed) < pos(consts.EventRiskUpdate) &&
		pos(consts.EventRiskUpdate) < pos(consts.EventDecision) &&
		pos(consts.EventDecision) < pos(consts.EventReportUpdate)) {
		t.Errorf("milestone events out of order: %v", types)
	}

	updates := 0
	for _, typ := range types {
		if typ == consts.EventAgentUpdate {
			updates++
		}
	}
	if updates != 3 {
		t.Errorf("agent_update events = %d, want one per analysis branch", updates)
	}
	if decisionAction != models.ActionBuy {
		t.Errorf("decision event action = %q, want BUY", decisionAction)
	}
}

func TestEnginePerRequestOverrides(t *testing.T) {
	e := newTestEngine(nil)

	result, err := e.Analyze(context.Background(), "analyze EUR/USD", &Options{
		AccountBalance:  20000,
		MaxRiskPerTrade: 0.01,
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	risk := result.AgentResults.Risk
	if risk == nil || !risk.Success {
		t.Fatalf("risk result missing or failed: %+v", risk)
	}
	if balance, _ := risk.Float("account_balance"); balance != 20000 {
		t.Errorf("account_balance = %v, want override 20000", balance)
	}
	if dollarRisk, _ := risk.Float("dollar_risk"); dollarRisk != 200 {
		t.Errorf("dollar_risk = %v, want 200 (1%% of 20000)", dollarRisk)
	}

	// Overrides are per run and never touch the engine defaults.
	again, err := e.Analyze(context.Background(), "analyze EUR/USD", nil)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if balance, _ := again.AgentResults.Risk.Float("account_balance"); balance != 10000 {
		t.Errorf("account_balance = %v, want configured 10000", balance)
	}
}

func TestEngineRejectsEmptyQuery(t *testing.T) {
	e := newTestEngine(nil)
	if _, err := e.AnalyzeStream(context.Background(), "", nil); err == nil {
		t.Fatal("empty query must be rejected")
	}
}

func TestEngineInfo(t *testing.T) {
	e := newTestEngine(nil)
	info := e.Info()

	stages, ok := info["stages"].([]string)
	if !ok || len(stages) != 5 {
		t.Fatalf("stages = %v, want the five pipeline stages", info["stages"])
	}
	if stages[0] != consts.QueryParser || stages[4] != consts.Report {
		t.Errorf("stage order = %v", stages)
	}
	if info["pip_multiplier"] != 10000.0 {
		t.Errorf("pip_multiplier = %v, want 10000", info["pip_multiplier"])
	}
}
