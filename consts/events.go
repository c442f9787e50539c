package consts

// Stream event types emitted during workflow execution.
//
// Per-stage ordering is start -> progress* -> update/complete; events from
// different parallel branches may interleave.
const (
	EventStart         = "start"
	EventQueryParsed   = "query_parsed"
	EventAgentStart    = "agent_start"
	EventAgentProgress = "agent_progress"
	EventAgentUpdate   = "agent_update"
	EventRiskUpdate    = "risk_update"
	EventDecision      = "decision"
	EventReportUpdate  = "report_update"
	EventComplete      = "complete"
	EventError         = "error"
)
