package workflow

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/avelar/fxpilot/consts"
	"github.com/avelar/fxpilot/internal/agents"
	"github.com/avelar/fxpilot/internal/models"
)

// stubAnalyst is a scripted branch for coordinator tests.
type stubAnalyst struct {
	name   string
	result *models.AgentResult
	panics bool
}

func (s *stubAnalyst) Name() string { return s.name }

func (s *stubAnalyst) Analyze(context.Context, agents.Request, models.EventSink) *models.AgentResult {
	if s.panics {
		panic(s.name + " exploded")
	}
	return s.result
}

func okResult(agent string) *models.AgentResult {
	return &models.AgentResult{Success: true, Agent: agent, Data: map[string]any{"agent": agent}}
}

// recordSink collects events for assertions. Safe for concurrent branches.
type recordSink struct {
	mu     sync.Mutex
	events []models.StreamEvent
}

func (r *recordSink) Emit(ev models.StreamEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordSink) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

func TestCoordinatorMergesAllBranches(t *testing.T) {
	c := NewCoordinator(
		&stubAnalyst{name: consts.AgentNews, result: okResult(consts.AgentNews)},
		&stubAnalyst{name: consts.AgentTechnical, result: okResult(consts.AgentTechnical)},
		&stubAnalyst{name: consts.AgentFundamental, result: okResult(consts.AgentFundamental)},
	)

	state := models.NewWorkflowState("test")
	state.Pair = "EUR/USD"
	state.StepCount = 1

	c.Run(context.Background(), state, models.NopSink{})

	if state.NewsResult == nil || !state.NewsResult.Success {
		t.Error("news slot not merged")
	}
	if state.TechnicalResult == nil || !state.TechnicalResult.Success {
		t.Error("technical slot not merged")
	}
	if state.FundamentalResult == nil || !state.FundamentalResult.Success {
		t.Error("fundamental slot not merged")
	}
	// Parallel branches advance the step count to the max, not the sum.
	if state.StepCount != 2 {
		t.Errorf("step count = %d, want 2", state.StepCount)
	}
	if len(state.Errors) != 0 {
		t.Errorf("unexpected errors: %v", state.Errors)
	}
}

func TestCoordinatorIsolatesPanickingBranch(t *testing.T) {
	c := NewCoordinator(
		&stubAnalyst{name: consts.AgentNews, result: okResult(consts.AgentNews)},
		&stubAnalyst{name: consts.AgentTechnical, panics: true},
		&stubAnalyst{name: consts.AgentFundamental, result: okResult(consts.AgentFundamental)},
	)

	state := models.NewWorkflowState("test")
	state.Pair = "EUR/USD"
	state.StepCount = 1

	c.Run(context.Background(), state, models.NopSink{})

	if state.NewsResult == nil || !state.NewsResult.Success {
		t.Error("news branch should survive the technical panic")
	}
	if state.FundamentalResult == nil || !state.FundamentalResult.Success {
		t.Error("fundamental branch should survive the technical panic")
	}

	ta := state.TechnicalResult
	if ta == nil {
		t.Fatal("technical slot must hold a failed envelope, not nil")
	}
	if ta.Success {
		t.Error("panicked branch must produce a failed envelope")
	}
	if !strings.Contains(ta.Error, "panicked") {
		t.Errorf("error = %q, want panic mention", ta.Error)
	}
	if _, ok := state.Errors[consts.AgentTechnical]; !ok {
		t.Error("panic must be recorded in state errors")
	}
	if state.StepCount != 2 {
		t.Errorf("step count = %d, want 2", state.StepCount)
	}
}

func TestCoordinatorNormalizesNilResult(t *testing.T) {
	c := NewCoordinator(
		&stubAnalyst{name: consts.AgentNews, result: nil},
		&stubAnalyst{name: consts.AgentTechnical, result: okResult(consts.AgentTechnical)},
		&stubAnalyst{name: consts.AgentFundamental, result: okResult(consts.AgentFundamental)},
	)

	state := models.NewWorkflowState("test")
	state.Pair = "EUR/USD"

	c.Run(context.Background(), state, models.NopSink{})

	if state.NewsResult == nil || state.NewsResult.Success {
		t.Fatal("nil branch result must become a failed envelope")
	}
	if !strings.Contains(state.NewsResult.Error, "no result") {
		t.Errorf("error = %q, want no-result mention", state.NewsResult.Error)
	}
}

func TestCoordinatorEmitsAgentStartEvents(t *testing.T) {
	c := NewCoordinator(
		&stubAnalyst{name: consts.AgentNews, result: okResult(consts.AgentNews)},
		&stubAnalyst{name: consts.AgentTechnical, result: okResult(consts.AgentTechnical)},
		&stubAnalyst{name: consts.AgentFundamental, result: okResult(consts.AgentFundamental)},
	)

	state := models.NewWorkflowState("test")
	state.Pair = "EUR/USD"
	sink := &recordSink{}

	c.Run(context.Background(), state, sink)

	starts := 0
	for _, typ := range sink.types() {
		if typ == consts.EventAgentStart {
			starts++
		}
	}
	if starts != 3 {
		t.Errorf("agent_start events = %d, want 3", starts)
	}
}
