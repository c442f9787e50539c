package workflow

import (
	"github.com/avelar/fxpilot/consts"
	"github.com/avelar/fxpilot/internal/models"
)

// Emitter is the event sink handed to every stage and provider. Emit is
// non-blocking: when the consumer falls behind and the buffer fills, events
// are dropped rather than stalling the workflow.
type Emitter struct {
	ch     chan models.StreamEvent
	closed chan struct{}
}

func newEmitter(buffer int) *Emitter {
	if buffer <= 0 {
		buffer = 256
	}
	return &Emitter{
		ch:     make(chan models.StreamEvent, buffer),
		closed: make(chan struct{}),
	}
}

func (e *Emitter) Emit(ev models.StreamEvent) {
	select {
	case <-e.closed:
		return
	default:
	}
	select {
	case e.ch <- ev:
	default:
	}
}

// emitFinal delivers the terminal event even when the buffer is full,
// blocking until a consumer makes room. Progress events are lossy but the
// complete event carries the result and must always arrive; every consumer
// (blocking Analyze, the SSE handler's drain, the CLI loop) reads until the
// channel closes, so the send cannot stall forever.
func (e *Emitter) emitFinal(ev models.StreamEvent) {
	select {
	case <-e.closed:
		return
	default:
	}
	e.ch <- ev
}

func (e *Emitter) Events() <-chan models.StreamEvent {
	return e.ch
}

// close marks the emitter done and closes the channel. Must only be called
// once, by the engine, after the graph has finished.
func (e *Emitter) close() {
	close(e.closed)
	close(e.ch)
}

// diffEvents derives events from a state transition: exactly one event per
// slot that flipped from null to non-null since the previous snapshot.
func diffEvents(prev, next *models.WorkflowState) []models.StreamEvent {
	var events []models.StreamEvent

	if prev.QueryContext == nil && next.QueryContext != nil {
		events = append(events, models.NewStreamEvent(consts.EventQueryParsed, map[string]any{
			"pair":          next.Pair,
			"query_context": next.QueryContext,
		}))
	}

	agentSlots := []struct {
		agent string
		prev  *models.AgentResult
		next  *models.AgentResult
	}{
		{consts.AgentNews, prev.NewsResult, next.NewsResult},
		{consts.AgentTechnical, prev.TechnicalResult, next.TechnicalResult},
		{consts.AgentFundamental, prev.FundamentalResult, next.FundamentalResult},
	}
	for _, slot := range agentSlots {
		if slot.prev == nil && slot.next != nil {
			events = append(events, models.NewStreamEvent(consts.EventAgentUpdate, map[string]any{
				"agent":   slot.agent,
				"result":  slot.next,
				"success": slot.next.Success,
			}))
		}
	}

	if prev.RiskResult == nil && next.RiskResult != nil {
		approved, _ := next.RiskResult.Bool("trade_approved")
		events = append(events, models.NewStreamEvent(consts.EventRiskUpdate, map[string]any{
			"agent":          consts.AgentRisk,
			"result":         next.RiskResult,
			"trade_approved": approved,
		}))
	}

	if prev.Decision == nil && next.Decision != nil {
		events = append(events, models.NewStreamEvent(consts.EventDecision, map[string]any{
			"action":     next.Decision.Action,
			"confidence": next.Decision.Confidence,
			"decision":   next.Decision,
		}))
	}

	if prev.ReportResult == nil && next.ReportResult != nil {
		events = append(events, models.NewStreamEvent(consts.EventReportUpdate, map[string]any{
			"agent":   consts.AgentReport,
			"success": next.ReportResult.Success,
		}))
	}

	return events
}
