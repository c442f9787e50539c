package workflow

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"

	"github.com/avelar/fxpilot/consts"
	"github.com/avelar/fxpilot/internal/models"
)

type stageFunc func(ctx context.Context, state *models.WorkflowState) (*models.WorkflowState, error)

// buildGraph wires the pipeline stages into the compiled state machine:
// start -> query_parser -> parallel_analysis -> risk -> synthesis -> report -> end.
// Everything is linear except the conditional edge out of risk, which always
// continues (risk is advisory; its end branch exists for structural
// compatibility only), and the single-target branches out of synthesis and
// report kept conditional in form for future extension.
func (p *pipeline) buildGraph(ctx context.Context) (compose.Runnable[*models.WorkflowState, *models.WorkflowState], error) {
	g := compose.NewGraph[*models.WorkflowState, *models.WorkflowState]()

	addNode := func(name string, fn stageFunc) {
		lambda := compose.InvokeWOOpt[*models.WorkflowState, *models.WorkflowState](p.instrument(name, fn))
		_ = g.AddLambdaNode(name, compose.InvokableLambda(lambda), compose.WithNodeName(name))
	}
	addNode(consts.QueryParser, p.queryParserNode)
	addNode(consts.ParallelAnalysis, p.parallelNode)
	addNode(consts.Risk, p.riskNode)
	addNode(consts.Synthesis, p.synthesisNode)
	addNode(consts.Report, p.reportNode)

	_ = g.AddEdge(compose.START, consts.QueryParser)
	_ = g.AddEdge(consts.QueryParser, consts.ParallelAnalysis)
	_ = g.AddEdge(consts.ParallelAnalysis, consts.Risk)

	riskTargets := map[string]bool{consts.Synthesis: true, compose.END: true}
	_ = g.AddBranch(consts.Risk, compose.NewGraphBranch(
		func(ctx context.Context, state *models.WorkflowState) (string, error) {
			if routeAfterRisk(state) == consts.RouteContinue {
				return consts.Synthesis, nil
			}
			return compose.END, nil
		}, riskTargets))

	_ = g.AddBranch(consts.Synthesis, compose.NewGraphBranch(
		func(ctx context.Context, state *models.WorkflowState) (string, error) {
			_ = routeAfterSynthesis(state)
			return consts.Report, nil
		}, map[string]bool{consts.Report: true}))

	_ = g.AddBranch(consts.Report, compose.NewGraphBranch(
		func(ctx context.Context, state *models.WorkflowState) (string, error) {
			_ = routeAfterReport(state)
			return compose.END, nil
		}, map[string]bool{compose.END: true}))

	return g.Compile(ctx,
		compose.WithGraphName("fxpilot-workflow"),
		compose.WithNodeTriggerMode(compose.AnyPredecessor),
	)
}

// instrument wraps a stage with a panic barrier and the snapshot differ:
// after the stage runs, each slot that flipped null to non-null produces
// exactly one derived event on the stream.
func (p *pipeline) instrument(name string, fn stageFunc) stageFunc {
	return func(ctx context.Context, state *models.WorkflowState) (out *models.WorkflowState, err error) {
		prev := state.Clone()

		defer func() {
			if r := recover(); r != nil {
				state.RecordError(name, fmt.Sprintf("stage panicked: %v", r))
				out, err = state, nil
			}
			if out == nil {
				out = state
			}
			for _, ev := range diffEvents(prev, out) {
				p.sink.Emit(ev)
			}
		}()

		out, err = fn(ctx, state)
		if err != nil {
			// Stages are written to never fail; if one does anyway, record
			// and keep the graph moving.
			state.RecordError(name, err.Error())
			out, err = state, nil
		}
		return out, nil
	}
}
