package workflow

import (
	"context"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"

	"github.com/avelar/fxpilot/consts"
	"github.com/avelar/fxpilot/internal/agents"
	"github.com/avelar/fxpilot/internal/models"
)

// branchOutcome is the normalized result of one concurrent branch. Exactly
// one of result/err is meaningful; normalization happens at the branch
// boundary so the merge step never sees a raw panic or error.
type branchOutcome struct {
	agent  string
	result *models.AgentResult
	err    error
}

// Coordinator fans the news, technical, and fundamental analysts out
// concurrently and folds their outcomes back into the state. Each branch is
// its own failure domain: one branch failing, or even panicking, never stops
// the other two.
type Coordinator struct {
	news        agents.Analyst
	technical   agents.Analyst
	fundamental agents.Analyst
}

func NewCoordinator(news, technical, fundamental agents.Analyst) *Coordinator {
	return &Coordinator{news: news, technical: technical, fundamental: fundamental}
}

// Run executes all three branches and merges their updates into state. The
// step count advances to the max across branches, never the sum.
func (c *Coordinator) Run(ctx context.Context, state *models.WorkflowState, sink models.EventSink) *models.WorkflowState {
	req := agents.Request{Pair: state.Pair, Query: state.QueryContext}

	outcomes, infraErr := c.runConcurrent(ctx, req, state, sink)
	if infraErr != nil {
		log.Printf("[Coordinator] concurrent execution failed, falling back to sequential: %v", infraErr)
		outcomes = c.runSequential(ctx, req, state, sink)
		state.RecordError("parallel_execution", infraErr.Error())
	}

	branchStep := state.StepCount + 1
	for _, out := range outcomes {
		update := models.StateUpdate{StepCount: branchStep}

		result := out.result
		if out.err != nil {
			result = models.FailedResult(out.agent, out.err)
			update.Errors = map[string]string{out.agent: out.err.Error()}
		} else if result != nil && !result.Success {
			update.Errors = map[string]string{out.agent: result.Error}
		}

		switch out.agent {
		case consts.AgentNews:
			update.NewsResult = result
		case consts.AgentTechnical:
			update.TechnicalResult = result
		case consts.AgentFundamental:
			update.FundamentalResult = result
		}

		state.Merge(update)
	}

	return state
}

// runConcurrent launches the three branches and waits for all of them. The
// returned error reports only infrastructure-level failure (a panic escaping
// the coordinator machinery itself), never a branch failure.
func (c *Coordinator) runConcurrent(ctx context.Context, req agents.Request, state *models.WorkflowState, sink models.EventSink) (outcomes []branchOutcome, infraErr error) {
	defer func() {
		if r := recover(); r != nil {
			outcomes = nil
			infraErr = fmt.Errorf("concurrent scheduling failed: %v", r)
		}
	}()

	branches := []agents.Analyst{c.news, c.technical, c.fundamental}
	results := make([]branchOutcome, len(branches))

	g, gctx := errgroup.WithContext(ctx)
	for i, analyst := range branches {
		g.Go(func() error {
			results[i] = runBranch(gctx, analyst, req, sink)
			// Branch failures are carried in the outcome; returning an
			// error here would cancel the sibling branches.
			return nil
		})
	}
	_ = g.Wait()

	return results, nil
}

// runSequential is the degraded mode: same three branches, one after
// another, carrying state forward between them.
func (c *Coordinator) runSequential(ctx context.Context, req agents.Request, state *models.WorkflowState, sink models.EventSink) []branchOutcome {
	branches := []agents.Analyst{c.news, c.technical, c.fundamental}
	outcomes := make([]branchOutcome, len(branches))
	for i, analyst := range branches {
		outcomes[i] = runBranch(ctx, analyst, req, sink)
	}
	return outcomes
}

// runBranch invokes one analyst with a panic barrier, normalizing whatever
// happens into a branchOutcome.
func runBranch(ctx context.Context, analyst agents.Analyst, req agents.Request, sink models.EventSink) (out branchOutcome) {
	out.agent = analyst.Name()

	defer func() {
		if r := recover(); r != nil {
			out.result = nil
			out.err = fmt.Errorf("%s branch panicked: %v", out.agent, r)
		}
	}()

	sink.Emit(models.NewStreamEvent(consts.EventAgentStart, map[string]any{
		"agent": out.agent,
		"pair":  req.Pair,
	}))

	out.result = analyst.Analyze(ctx, req, sink)
	if out.result == nil {
		out.err = fmt.Errorf("%s branch returned no result", out.agent)
	}
	return out
}
