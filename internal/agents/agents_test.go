package agents

import (
	"context"
	"strings"
	"testing"

	"github.com/avelar/fxpilot/internal/dataflows"
	"github.com/avelar/fxpilot/internal/models"
)

func TestScoreHeadlinesDirectional(t *testing.T) {
	bullish := scoreHeadlines("EUR/USD", []dataflows.Headline{
		{Title: "Euro rallies to record high on strong data"},
		{Title: "EUR/USD surges as dollar weakens... wait, euro gains"},
	})
	if bullish["sentiment"] != "bullish" {
		t.Errorf("expected bullish sentiment, got %v", bullish["sentiment"])
	}

	bearish := scoreHeadlines("EUR/USD", []dataflows.Headline{
		{Title: "Euro slumps in broad selloff"},
		{Title: "EUR/USD falls on weak GDP"},
	})
	if bearish["sentiment"] != "bearish" {
		t.Errorf("expected bearish sentiment, got %v", bearish["sentiment"])
	}

	empty := scoreHeadlines("EUR/USD", nil)
	if empty["sentiment"] != "neutral" {
		t.Errorf("expected neutral sentiment with no headlines, got %v", empty["sentiment"])
	}
	if score := empty["sentiment_score"].(float64); score != 0 {
		t.Errorf("expected zero score with no headlines, got %v", score)
	}
}

func TestRuleBasedTechnicalLevels(t *testing.T) {
	data := ruleBasedTechnical("EUR/USD", 1.0850)

	support := data["support"].(float64)
	resistance := data["resistance"].(float64)
	stop := data["stop_loss"].(float64)
	target := data["take_profit"].(float64)

	if support >= 1.0850 || resistance <= 1.0850 {
		t.Errorf("expected support < price < resistance, got %v / %v", support, resistance)
	}
	if stop >= support {
		t.Errorf("stop loss %v must sit below support %v", stop, support)
	}
	if target <= resistance {
		t.Errorf("take profit %v must sit above resistance %v", target, resistance)
	}

	// Same pair, same pseudo-indicators.
	again := ruleBasedTechnical("EUR/USD", 1.0850)
	if data["trend"] != again["trend"] {
		t.Errorf("rule-based trend must be stable per pair")
	}
}

func TestNeutralFundamentals(t *testing.T) {
	data := neutralFundamentals("XAU/USD")
	if data["outlook"] != "neutral" {
		t.Errorf("expected neutral outlook, got %v", data["outlook"])
	}
	base := data["base_currency"].(map[string]any)
	if base["currency"] != "XAU" {
		t.Errorf("expected base XAU, got %v", base["currency"])
	}
}

func TestReportDisclaimerAndReferences(t *testing.T) {
	builder := NewReportBuilder(nil)
	decision := &models.Decision{
		Action:     models.ActionBuy,
		Confidence: 0.8,
		Sources: []models.Citation{
			{Title: "ECB statement", URL: "https://example.com/ecb"},
		},
		TradeParameters: &models.TradeParameters{EntryPrice: 1.0850, StopLoss: 1.08, TakeProfit: 1.095, PositionSize: 0.4},
	}

	doc := builder.assembleHTML(ReportInput{Pair: "EUR/USD", Decision: decision},
		"<p>summary</p>", "<p>market</p>", "<p>technical</p>", "<p>risk</p>",
		[]string{"takeaway one"})

	for _, want := range []string{
		"Trading Analysis Report",
		"EUR/USD",
		reportDisclaimer,
		"https://example.com/ecb",
		"ECB statement",
		"takeaway one",
		"Stop Loss",
	} {
		if !strings.Contains(doc, want) {
			t.Errorf("report HTML missing %q", want)
		}
	}
}

func TestReportWithoutReasonerFails(t *testing.T) {
	builder := NewReportBuilder(nil)
	result := builder.Generate(context.Background(), ReportInput{
		Pair:     "EUR/USD",
		Decision: &models.Decision{Action: models.ActionWait},
	}, models.NopSink{})

	if result.Success {
		t.Fatalf("expected failure without a reasoning model")
	}
	if result.HTML != "" {
		t.Errorf("failed report must carry no HTML")
	}
	if result.Error == "" {
		t.Errorf("failed report must carry an error")
	}
}
