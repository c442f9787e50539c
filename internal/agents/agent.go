package agents

import (
	"context"
	"math"

	"github.com/avelar/fxpilot/consts"
	"github.com/avelar/fxpilot/internal/models"
)

// Request is the normalized input every analysis provider receives.
type Request struct {
	Pair  string
	Query *models.StructuredQuery
}

// Analyst is the contract for the news, technical, and fundamental providers.
// Analyze never panics and never returns nil: failures come back as a
// success=false envelope. The sink receives progress events while the
// provider runs.
type Analyst interface {
	Name() string
	Analyze(ctx context.Context, req Request, sink models.EventSink) *models.AgentResult
}

// emitProgress pushes a fine-grained progress event for an agent.
func emitProgress(sink models.EventSink, agent, step, message string, pct int) {
	sink.Emit(models.NewStreamEvent(consts.EventAgentProgress, map[string]any{
		"agent":               agent,
		"step":                step,
		"message":             message,
		"progress_percentage": pct,
	}))
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round5(v float64) float64 { return math.Round(v*100000) / 100000 }
