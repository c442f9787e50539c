package workflow

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/avelar/fxpilot/consts"
	"github.com/avelar/fxpilot/internal/agents"
	"github.com/avelar/fxpilot/internal/config"
	"github.com/avelar/fxpilot/internal/dataflows"
	"github.com/avelar/fxpilot/internal/llm"
	"github.com/avelar/fxpilot/internal/models"
)

const version = "1.0.0"

// Options are per-request overrides for the risk calculator. Zero values
// fall back to the configured defaults.
type Options struct {
	AccountBalance  float64
	MaxRiskPerTrade float64
}

// Engine owns the shared services and runs one workflow graph per
// submission. Invocations are independent: all mutable per-run state lives
// in the pipeline built for that run, and the only resource shared between
// runs is the TTL price/news cache inside the dataflow services.
type Engine struct {
	cfg      *config.Config
	reasoner llm.Reasoner
	prices   *dataflows.PriceService
	news     *dataflows.NewsService
}

// NewEngine wires the engine. A nil reasoner is allowed: every stage then
// uses its deterministic fallback, which keeps the pipeline testable
// without credentials.
func NewEngine(cfg *config.Config, reasoner llm.Reasoner, prices *dataflows.PriceService, news *dataflows.NewsService) *Engine {
	return &Engine{cfg: cfg, reasoner: reasoner, prices: prices, news: news}
}

// AnalyzeStream runs the workflow and delivers events as they occur. The
// channel closes after the final complete event. Slow callers lose
// intermediate events; the complete event is always delivered.
func (e *Engine) AnalyzeStream(ctx context.Context, query string, opts *Options) (<-chan models.StreamEvent, error) {
	if query == "" {
		return nil, fmt.Errorf("query must not be empty")
	}

	em := newEmitter(256)
	runID := uuid.NewString()

	p := e.newPipeline(opts, em)
	runnable, err := p.buildGraph(ctx)
	if err != nil {
		return nil, fmt.Errorf("build workflow graph: %w", err)
	}

	go func() {
		defer em.close()

		started := time.Now()
		em.Emit(models.NewStreamEvent(consts.EventStart, map[string]any{
			"run_id": runID,
			"query":  query,
		}))

		state, err := runnable.Invoke(ctx, models.NewWorkflowState(query))
		if err != nil {
			// Stages never fail, so this is graph-level breakage. Surface it
			// and still deliver a well-formed result with the safe default.
			log.Printf("[Engine] run %s failed: %v", runID, err)
			em.Emit(models.NewStreamEvent(consts.EventError, map[string]any{
				"run_id": runID,
				"error":  err.Error(),
			}))
			state = models.NewWorkflowState(query)
			state.Decision = models.SafeDefaultDecision(err.Error())
			state.RecordError("workflow", err.Error())
		}

		em.emitFinal(models.NewStreamEvent(consts.EventComplete, map[string]any{
			"run_id":           runID,
			"result":           formatResult(state, runID),
			"duration_seconds": time.Since(started).Seconds(),
		}))
	}()

	return em.Events(), nil
}

// Analyze is the blocking variant: it discards intermediate events and
// returns only the final formatted result.
func (e *Engine) Analyze(ctx context.Context, query string, opts *Options) (*models.Result, error) {
	events, err := e.AnalyzeStream(ctx, query, opts)
	if err != nil {
		return nil, err
	}

	var result *models.Result
	for ev := range events {
		if ev.Type != consts.EventComplete {
			continue
		}
		if r, ok := ResultFromEvent(ev); ok {
			result = r
		}
	}
	if result == nil {
		return nil, fmt.Errorf("workflow finished without a result")
	}
	return result, nil
}

// ResultFromEvent extracts the formatted result carried by a complete event.
func ResultFromEvent(ev models.StreamEvent) (*models.Result, bool) {
	r, ok := ev.Data["result"].(*models.Result)
	return r, ok
}

// Info describes the engine configuration and pipeline shape.
func (e *Engine) Info() map[string]any {
	return map[string]any{
		"version":      version,
		"llm_provider": e.cfg.LLMProvider,
		"llm_model":    e.cfg.LLMModel,
		"stages": []string{
			consts.QueryParser, consts.ParallelAnalysis,
			consts.Risk, consts.Synthesis, consts.Report,
		},
		"agents": []string{
			consts.AgentNews, consts.AgentTechnical, consts.AgentFundamental,
			consts.AgentRisk, consts.AgentSynthesis, consts.AgentReport,
		},
		"account_balance":    e.cfg.AccountBalance,
		"max_risk_per_trade": e.cfg.MaxRiskPerTrade,
		"pip_multiplier":     e.cfg.PipMultiplier,
	}
}

// newPipeline assembles the providers for one run, applying request-level
// overrides to the risk calculator.
func (e *Engine) newPipeline(opts *Options, sink models.EventSink) *pipeline {
	balance := e.cfg.AccountBalance
	maxRisk := e.cfg.MaxRiskPerTrade
	if opts != nil {
		if opts.AccountBalance > 0 {
			balance = opts.AccountBalance
		}
		if opts.MaxRiskPerTrade > 0 {
			maxRisk = opts.MaxRiskPerTrade
		}
	}

	return &pipeline{
		parser: NewQueryParser(e.reasoner),
		coordinator: NewCoordinator(
			agents.NewNewsAnalyst(e.reasoner, e.news),
			agents.NewTechnicalAnalyst(e.reasoner, e.prices),
			agents.NewFundamentalAnalyst(e.reasoner),
		),
		risk:     agents.NewRiskAdvisor(balance, maxRisk, e.cfg.PipMultiplier, e.reasoner),
		reasoner: e.reasoner,
		report:   agents.NewReportBuilder(e.reasoner),
		sink:     sink,
	}
}

// formatResult flattens the final state for blocking callers.
func formatResult(state *models.WorkflowState, runID string) *models.Result {
	return &models.Result{
		UserQuery:    state.UserQuery,
		QueryContext: state.QueryContext,
		Pair:         state.Pair,
		Decision:     state.Decision,
		AgentResults: models.AgentResults{
			News:        state.NewsResult,
			Technical:   state.TechnicalResult,
			Fundamental: state.FundamentalResult,
			Risk:        state.RiskResult,
		},
		Report: state.ReportResult,
		Metadata: models.Metadata{
			RunID:  runID,
			Steps:  state.StepCount,
			Errors: state.Errors,
		},
	}
}
