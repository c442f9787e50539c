package consts

// Workflow graph node names.
const (
	QueryParser      = "query_parser"
	ParallelAnalysis = "parallel_analysis"
	Risk             = "risk"
	Synthesis        = "synthesis"
	Report           = "report"
)

// Agent identifiers, used in AgentResult envelopes and stream events.
const (
	AgentNews        = "news"
	AgentTechnical   = "technical"
	AgentFundamental = "fundamental"
	AgentRisk        = "risk"
	AgentSynthesis   = "synthesis"
	AgentReport      = "report"
)

// Routing targets for conditional edges.
const (
	RouteContinue = "continue"
	RouteEnd      = "end"
	RouteReport   = "report"
)
