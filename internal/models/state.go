package models

// WorkflowState is the single mutable record threaded through every workflow
// stage. Slots are append-only: once a stage has written its slot the value is
// never reassigned for the rest of the run. Later stages read earlier slots
// but only ever write their own.
type WorkflowState struct {
	// UserQuery is the raw input, immutable after creation.
	UserQuery string `json:"user_query"`

	// QueryContext is set once by the query parser.
	QueryContext *StructuredQuery `json:"query_context,omitempty"`

	// Pair is the canonical asset identifier (e.g. "XAU/USD"), derived from
	// QueryContext and kept flat for stages that only need the pair.
	Pair string `json:"pair,omitempty"`

	NewsResult        *AgentResult `json:"news_result,omitempty"`
	TechnicalResult   *AgentResult `json:"technical_result,omitempty"`
	FundamentalResult *AgentResult `json:"fundamental_result,omitempty"`
	RiskResult        *AgentResult `json:"risk_result,omitempty"`
	ReportResult      *AgentResult `json:"report_result,omitempty"`

	Decision *Decision `json:"decision,omitempty"`

	// StepCount is monotonically non-decreasing. Parallel branches advance it
	// to the max across branches, never the sum.
	StepCount int `json:"step_count"`

	// Errors maps stage name to error message. Stages only ever add keys.
	Errors map[string]string `json:"errors,omitempty"`
}

// NewWorkflowState returns the initial state for a run: all slots nil,
// step count zero.
func NewWorkflowState(query string) *WorkflowState {
	return &WorkflowState{
		UserQuery: query,
		Errors:    map[string]string{},
	}
}

// Clone returns a snapshot of the state. Result slots are shared (they are
// immutable once set); the errors map is copied so branches can record
// failures without racing.
func (s *WorkflowState) Clone() *WorkflowState {
	c := *s
	c.Errors = make(map[string]string, len(s.Errors))
	for k, v := range s.Errors {
		c.Errors[k] = v
	}
	return &c
}

// RecordError stores a stage failure without deleting entries written by
// other stages.
func (s *WorkflowState) RecordError(stage, msg string) {
	if s.Errors == nil {
		s.Errors = map[string]string{}
	}
	s.Errors[stage] = msg
}

// StateUpdate is the normalized output of one parallel branch: the branch's
// own result slot plus its view of progress and failures.
type StateUpdate struct {
	NewsResult        *AgentResult
	TechnicalResult   *AgentResult
	FundamentalResult *AgentResult
	StepCount         int
	Errors            map[string]string
}

// Merge folds a branch update into the state. Result slots transfer only if
// still unset, step count advances to the maximum seen, and error entries
// union in.
func (s *WorkflowState) Merge(u StateUpdate) {
	if s.NewsResult == nil {
		s.NewsResult = u.NewsResult
	}
	if s.TechnicalResult == nil {
		s.TechnicalResult = u.TechnicalResult
	}
	if s.FundamentalResult == nil {
		s.FundamentalResult = u.FundamentalResult
	}
	if u.StepCount > s.StepCount {
		s.StepCount = u.StepCount
	}
	for k, v := range u.Errors {
		s.RecordError(k, v)
	}
}
