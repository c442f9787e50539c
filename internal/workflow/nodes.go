package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/avelar/fxpilot/consts"
	"github.com/avelar/fxpilot/internal/agents"
	"github.com/avelar/fxpilot/internal/llm"
	"github.com/avelar/fxpilot/internal/models"
)

// pipeline holds the providers for one workflow invocation. Built per run so
// request-level overrides (account balance, risk fraction) never leak
// between concurrent invocations.
type pipeline struct {
	parser      *QueryParser
	coordinator *Coordinator
	risk        *agents.RiskAdvisor
	reasoner    llm.Reasoner
	report      *agents.ReportBuilder
	sink        models.EventSink
}

// Every stage takes the state, writes only its own slot, advances the step
// count, and returns the state. Stages never return an error: failures are
// recorded in the state and the graph always runs to completion.

func (p *pipeline) queryParserNode(ctx context.Context, state *models.WorkflowState) (*models.WorkflowState, error) {
	query, err := p.parser.Parse(ctx, state.UserQuery)
	if err != nil {
		state.RecordError(consts.QueryParser, err.Error())
	}

	state.QueryContext = query
	state.Pair = query.Pair
	state.StepCount++
	return state, nil
}

func (p *pipeline) parallelNode(ctx context.Context, state *models.WorkflowState) (*models.WorkflowState, error) {
	return p.coordinator.Run(ctx, state, p.sink), nil
}

// riskNode derives the trade proposal from the technical result. Risk is
// advisory: any missing input yields a failed envelope that still carries
// trade_approved=false, and the workflow proceeds regardless.
func (p *pipeline) riskNode(ctx context.Context, state *models.WorkflowState) (*models.WorkflowState, error) {
	state.RiskResult = p.assessRisk(ctx, state)
	state.StepCount++
	if !state.RiskResult.Success {
		state.RecordError(consts.Risk, state.RiskResult.Error)
	}
	return state, nil
}

func (p *pipeline) assessRisk(ctx context.Context, state *models.WorkflowState) *models.AgentResult {
	ta := state.TechnicalResult
	if ta == nil || !ta.Success {
		return advisoryFailure("Technical analysis required for risk calculation", "Technical analysis unavailable")
	}

	entry, okEntry := ta.Float("current_price")
	stop, okStop := ta.Float("stop_loss")
	if !okEntry || !okStop || entry == 0 || stop == 0 {
		return advisoryFailure("Missing required price data", "Incomplete technical data")
	}

	direction := models.ActionSell
	if signals, ok := ta.Data["signals"].(map[string]any); ok {
		if overall, ok := signals["overall"].(string); ok && overall == models.ActionBuy {
			direction = models.ActionBuy
		}
	}

	takeProfit, _ := ta.Float("take_profit")

	req := agents.TradeRequest{
		Pair:       state.Pair,
		EntryPrice: entry,
		StopLoss:   stop,
		Direction:  direction,
		TakeProfit: takeProfit,
		Leverage:   1.0,
	}

	marketContext := map[string]any{}
	if state.NewsResult != nil && state.NewsResult.Success {
		marketContext["news"] = state.NewsResult.Data
	}
	if state.FundamentalResult != nil && state.FundamentalResult.Success {
		marketContext["fundamental"] = state.FundamentalResult.Data
	}
	marketContext["technical"] = ta.Data

	return p.risk.Analyze(ctx, req, marketContext, p.sink)
}

// advisoryFailure builds the failed risk envelope that still reports a
// disapproval, so downstream consumers see trade_approved=false rather than
// an absent field.
func advisoryFailure(errMsg, reason string) *models.AgentResult {
	return &models.AgentResult{
		Success: false,
		Agent:   consts.AgentRisk,
		Error:   errMsg,
		Data: map[string]any{
			"trade_approved":   false,
			"rejection_reason": reason,
		},
	}
}

// synthesisNode folds all prior results into the final decision. It is the
// one stage that must always produce a valid output: any failure becomes the
// safe default WAIT decision.
func (p *pipeline) synthesisNode(ctx context.Context, state *models.WorkflowState) (*models.WorkflowState, error) {
	p.sink.Emit(models.NewStreamEvent(consts.EventAgentProgress, map[string]any{
		"agent":   consts.AgentSynthesis,
		"step":    "collecting_data",
		"message": "Collecting all agent results",
	}))

	decision, err := p.synthesize(ctx, state)
	if err != nil {
		log.Printf("[Synthesis] failed for %s: %v", state.Pair, err)
		decision = models.SafeDefaultDecision(err.Error())
		state.RecordError(consts.AgentSynthesis, err.Error())
	}

	state.Decision = decision
	state.StepCount++
	return state, nil
}

func (p *pipeline) synthesize(ctx context.Context, state *models.WorkflowState) (*models.Decision, error) {
	if p.reasoner == nil {
		return nil, fmt.Errorf("reasoning model unavailable")
	}

	raw, err := p.reasoner.Reason(ctx, synthesisSystemPrompt, synthesisUserPrompt(state))
	if err != nil {
		return nil, err
	}

	var decision models.Decision
	if err := json.Unmarshal(raw, &decision); err != nil {
		return nil, fmt.Errorf("decode decision: %w", err)
	}

	switch decision.Action {
	case models.ActionBuy, models.ActionSell, models.ActionWait:
	default:
		return nil, fmt.Errorf("invalid decision action %q", decision.Action)
	}
	if decision.Confidence < 0 {
		decision.Confidence = 0
	}
	if decision.Confidence > 1 {
		decision.Confidence = 1
	}

	return &decision, nil
}

func (p *pipeline) reportNode(ctx context.Context, state *models.WorkflowState) (*models.WorkflowState, error) {
	result := p.report.Generate(ctx, agents.ReportInput{
		Decision:     state.Decision,
		QueryContext: state.QueryContext,
		Pair:         state.Pair,
		News:         state.NewsResult,
		Technical:    state.TechnicalResult,
		Fundamental:  state.FundamentalResult,
		Risk:         state.RiskResult,
	}, p.sink)

	state.ReportResult = result
	state.StepCount++
	if !result.Success {
		state.RecordError(consts.Report, result.Error)
	}
	return state, nil
}

// Routing functions for the conditional edges. Risk is advisory, so its
// router always continues; the end branch exists only for structural
// compatibility and is never taken.

func routeAfterRisk(state *models.WorkflowState) string {
	if state.RiskResult != nil {
		if approved, _ := state.RiskResult.Bool("trade_approved"); !approved {
			log.Printf("[Workflow] trade flagged by risk advisor, continuing (advisory only)")
		}
	}
	return consts.RouteContinue
}

func routeAfterSynthesis(state *models.WorkflowState) string {
	return consts.RouteReport
}

func routeAfterReport(state *models.WorkflowState) string {
	return consts.RouteEnd
}

const synthesisSystemPrompt = `You are a trading decision synthesizer. You receive news, technical, fundamental, and risk analysis for a pair and produce one final decision. Respond with JSON only.`

func synthesisUserPrompt(state *models.WorkflowState) string {
	dataOf := func(r *models.AgentResult) string {
		if r == nil {
			return "(not available)"
		}
		if !r.Success {
			return fmt.Sprintf("(failed: %s)", r.Error)
		}
		out, err := json.MarshalIndent(r.Data, "", "  ")
		if err != nil {
			return "(unreadable)"
		}
		return string(out)
	}

	return fmt.Sprintf(`Make the final trading decision for %s.

NEWS ANALYSIS:
%s

TECHNICAL ANALYSIS:
%s

FUNDAMENTAL ANALYSIS:
%s

RISK ANALYSIS (ADVISORY ONLY):
%s

CRITICAL RULES:
- The risk assessment is advisory: surface its concerns in the reasoning but do not let it force a WAIT by itself.
- Only recommend BUY or SELL when your confidence exceeds 0.7.
- When the analysis dimensions conflict, explain which factors you weighted more heavily and why.
- Take entry/stop/take-profit from the technical analysis and position size from the risk analysis when available.

OUTPUT FORMAT (JSON):
{
  "action": "BUY|SELL|WAIT",
  "confidence": 0.0-1.0,
  "reasoning": {
    "summary": "one paragraph decision summary",
    "key_factors": ["factor 1", "factor 2"],
    "risks": ["risk 1"],
    "risk_advisory": "note risk advisor concerns if trade_approved is false"
  },
  "trade_parameters": {
    "entry_price": 0.0,
    "stop_loss": 0.0,
    "take_profit": 0.0,
    "position_size": 0.0
  },
  "disclaimer": "Risk assessment and position sizing are for informational purposes only."
}

Be conservative. When in doubt, output "WAIT".`,
		state.Pair,
		dataOf(state.NewsResult),
		dataOf(state.TechnicalResult),
		dataOf(state.FundamentalResult),
		dataOf(state.RiskResult))
}
