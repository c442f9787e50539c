package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/avelar/fxpilot/consts"
	"github.com/avelar/fxpilot/internal/llm"
	"github.com/avelar/fxpilot/internal/models"
)

// Pip value in account currency for one standard lot.
const pipValuePerLot = 10.0

// Trade risk thresholds, in pips. Both boundaries are inclusive.
const (
	maxRiskPips = 100.0
	minRiskPips = 10.0
	minRR       = 1.5
)

// TradeRequest carries the proposed trade the advisor evaluates.
type TradeRequest struct {
	Pair       string
	EntryPrice float64
	StopLoss   float64
	Direction  string
	TakeProfit float64 // 0 means not set
	Leverage   float64
}

// RiskAdvisor sizes a position and validates it against fixed risk rules.
// The numbers are pure arithmetic; a reasoning model may layer qualitative
// risk factors on top. Its verdict is advisory and never halts a workflow.
type RiskAdvisor struct {
	balance  float64
	maxRisk  float64
	pipMult  float64
	reasoner llm.Reasoner
}

// NewRiskAdvisor configures the deterministic calculator. pipMult converts
// price distance to pips and is applied to every pair uniformly, including
// JPY-style pairs that conventionally use 100.
func NewRiskAdvisor(balance, maxRisk, pipMult float64, reasoner llm.Reasoner) *RiskAdvisor {
	return &RiskAdvisor{balance: balance, maxRisk: maxRisk, pipMult: pipMult, reasoner: reasoner}
}

func (a *RiskAdvisor) Name() string { return consts.AgentRisk }

// Analyze computes risk parameters for the trade and, when market context and
// a reasoning model are available, enhances the result with qualitative risk
// factors. The rule-based result is always computed first and survives any
// enhancement failure.
func (a *RiskAdvisor) Analyze(ctx context.Context, req TradeRequest, marketContext map[string]any, sink models.EventSink) *models.AgentResult {
	emitProgress(sink, consts.AgentRisk, "calculating", "Calculating position size and risk parameters", 20)

	result := a.Calculate(req)

	if a.reasoner != nil && len(marketContext) > 0 && result.Success {
		enhanced, err := a.enhanceWithModel(ctx, req.Pair, result, marketContext, sink)
		if err != nil {
			log.Printf("[RiskAdvisor] model enhancement failed for %s: %v", req.Pair, err)
		} else {
			result = enhanced
		}
	}

	emitProgress(sink, consts.AgentRisk, "complete", "Risk analysis complete", 100)
	return result
}

// Calculate runs the deterministic sizing math and validation rules.
func (a *RiskAdvisor) Calculate(req TradeRequest) *models.AgentResult {
	riskPips := math.Abs(req.EntryPrice-req.StopLoss) * a.pipMult
	dollarRisk := a.balance * a.maxRisk

	positionSize := 0.0
	if riskPips > 0 {
		positionSize = dollarRisk / (riskPips * pipValuePerLot)
	}

	data := map[string]any{
		"pair":            req.Pair,
		"direction":       req.Direction,
		"entry_price":     req.EntryPrice,
		"stop_loss":       req.StopLoss,
		"risk_in_pips":    round1(riskPips),
		"position_size":   round2(positionSize),
		"dollar_risk":     round2(dollarRisk),
		"risk_percentage": round2(a.maxRisk * 100),
		"leverage":        req.Leverage,
		"account_balance": a.balance,
		"data_source":     "rule_based",
	}

	hasRR := false
	var rr float64
	if req.TakeProfit != 0 {
		rewardPips := math.Abs(req.EntryPrice-req.TakeProfit) * a.pipMult
		if riskPips > 0 {
			rr = rewardPips / riskPips
		}
		hasRR = true
		data["take_profit"] = req.TakeProfit
		data["reward_in_pips"] = round1(rewardPips)
		data["risk_reward_ratio"] = round2(rr)
		data["potential_profit"] = round2(rr * dollarRisk)
	}

	// Validate the rounded values so approval always agrees with the
	// reported risk_in_pips/risk_reward_ratio. Raw float64 pip distances land
	// a hair off the boundary (1.0850-1.0750 is 100.00000000000009 pips) and
	// would reject trades sitting exactly on the inclusive limits.
	approved, reason := validateTrade(round1(riskPips), round2(rr), hasRR)
	data["trade_approved"] = approved
	if reason != "" {
		data["rejection_reason"] = reason
	}
	data["summary"] = a.riskSummary(approved, positionSize, dollarRisk, reason)
	data["analysis_timestamp"] = time.Now().UTC().Format(time.RFC3339)

	return &models.AgentResult{Success: true, Agent: consts.AgentRisk, Data: data}
}

// validateTrade applies the approval rules in order; the first failing rule
// supplies the rejection reason.
func validateTrade(riskPips, rr float64, hasRR bool) (bool, string) {
	if riskPips <= 0 {
		return false, "Invalid stop loss: risk in pips must be positive"
	}
	if riskPips > maxRiskPips {
		return false, fmt.Sprintf("Risk too high: %.1f pips exceeds maximum of %.0f pips", riskPips, maxRiskPips)
	}
	if riskPips < minRiskPips {
		return false, fmt.Sprintf("Risk too small: %.1f pips is below minimum of %.0f pips", riskPips, minRiskPips)
	}
	if hasRR && rr < minRR {
		return false, fmt.Sprintf("Poor risk/reward ratio: %.2f is below minimum of %.1f", rr, minRR)
	}
	return true, ""
}

func (a *RiskAdvisor) riskSummary(approved bool, positionSize, dollarRisk float64, reason string) string {
	if !approved {
		return "Trade REJECTED: " + reason
	}
	return fmt.Sprintf("Trade APPROVED: Position size %.2f lots, risking $%.2f (%.1f%% of account).",
		positionSize, dollarRisk, a.maxRisk*100)
}

func (a *RiskAdvisor) enhanceWithModel(ctx context.Context, pair string, base *models.AgentResult, marketContext map[string]any, sink models.EventSink) (*models.AgentResult, error) {
	emitProgress(sink, consts.AgentRisk, "llm_enhancement", "Assessing qualitative risk factors", 60)

	raw, err := a.reasoner.Reason(ctx, riskSystemPrompt, riskUserPrompt(pair, base.Data, marketContext))
	if err != nil {
		return nil, err
	}

	var parsed struct {
		RiskFactors      []string `json:"risk_factors"`
		MarketVolatility string   `json:"market_volatility"`
		ConfidenceScore  float64  `json:"confidence_score"`
		RiskWarnings     []string `json:"risk_warnings"`
		Reasoning        string   `json:"reasoning"`
		Summary          string   `json:"summary"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode risk enhancement: %w", err)
	}

	// The rule-based numbers stay authoritative; the model only adds
	// commentary fields on top.
	data := make(map[string]any, len(base.Data)+6)
	for k, v := range base.Data {
		data[k] = v
	}
	data["risk_factors"] = parsed.RiskFactors
	data["market_volatility"] = parsed.MarketVolatility
	data["confidence_score"] = parsed.ConfidenceScore
	data["risk_warnings"] = parsed.RiskWarnings
	data["llm_reasoning"] = parsed.Reasoning
	if parsed.Summary != "" {
		data["llm_summary"] = parsed.Summary
	}
	data["data_source"] = "llm_enhanced"

	return &models.AgentResult{Success: true, Agent: consts.AgentRisk, Data: data}, nil
}

const riskSystemPrompt = `You are a risk management analyst for forex, commodities, and crypto trading. You receive rule-based position sizing numbers plus market context and add qualitative risk assessment. Respond with JSON only.`

func riskUserPrompt(pair string, riskData, marketContext map[string]any) string {
	riskJSON, _ := json.MarshalIndent(riskData, "", "  ")
	ctxJSON, _ := json.MarshalIndent(marketContext, "", "  ")
	return fmt.Sprintf(`Assess the risk of the proposed trade on %s.

RULE-BASED CALCULATION:
%s

MARKET CONTEXT:
%s

OUTPUT FORMAT (JSON):
{
  "risk_factors": ["factor 1", "factor 2"],
  "market_volatility": "low|medium|high",
  "confidence_score": 0.0-1.0,
  "risk_warnings": ["warning 1"],
  "reasoning": "risk reasoning",
  "summary": "1-2 sentence risk summary"
}

Prioritize capital preservation. Flag conflicting signals between the market context dimensions.`, pair, riskJSON, ctxJSON)
}
