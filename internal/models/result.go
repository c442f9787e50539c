package models

// Trading decision actions.
const (
	ActionBuy  = "BUY"
	ActionSell = "SELL"
	ActionWait = "WAIT"
)

// AgentResult is the uniform envelope returned by every capability provider.
// Success=false implies Data is empty and Error is non-empty; consumers must
// check Success before reading Data.
type AgentResult struct {
	Success bool           `json:"success"`
	Agent   string         `json:"agent"`
	Data    map[string]any `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
	HTML    string         `json:"html,omitempty"` // report provider only
}

// FailedResult builds the failure envelope for an agent.
func FailedResult(agent string, err error) *AgentResult {
	return &AgentResult{Success: false, Agent: agent, Error: err.Error()}
}

// Float reads a numeric field from Data, tolerating the float64/int mix that
// JSON decoding produces.
func (r *AgentResult) Float(key string) (float64, bool) {
	if r == nil || !r.Success {
		return 0, false
	}
	switch v := r.Data[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

// String reads a string field from Data.
func (r *AgentResult) String(key string) (string, bool) {
	if r == nil || !r.Success {
		return "", false
	}
	v, ok := r.Data[key].(string)
	return v, ok
}

// Bool reads a boolean field from Data. Unlike Float/String it does not
// require Success: the risk provider reports trade_approved=false inside
// failed envelopes too.
func (r *AgentResult) Bool(key string) (bool, bool) {
	if r == nil || r.Data == nil {
		return false, false
	}
	v, ok := r.Data[key].(bool)
	return v, ok
}

// StructuredQuery is the normalizer output, created once per run and never
// mutated afterwards.
type StructuredQuery struct {
	Pair              string         `json:"pair"`
	AssetType         string         `json:"asset_type"`
	BaseCurrency      string         `json:"base_currency"`
	QuoteCurrency     string         `json:"quote_currency"`
	Timeframe         string         `json:"timeframe"`
	UserIntent        string         `json:"user_intent"`
	RiskTolerance     string         `json:"risk_tolerance"`
	AdditionalContext map[string]any `json:"additional_context,omitempty"`
	Confidence        float64        `json:"confidence"`
	ParseError        string         `json:"parse_error,omitempty"`
}

// Reasoning carries the explanation attached to a decision.
type Reasoning struct {
	Summary         string   `json:"summary"`
	WebVerification string   `json:"web_verification,omitempty"`
	KeyFactors      []string `json:"key_factors,omitempty"`
	Risks           []string `json:"risks,omitempty"`
	RiskAdvisory    string   `json:"risk_advisory,omitempty"`
	Error           bool     `json:"error,omitempty"`
}

// TradeParameters are the actionable numbers attached to a BUY/SELL decision.
type TradeParameters struct {
	EntryPrice   float64 `json:"entry_price"`
	StopLoss     float64 `json:"stop_loss"`
	TakeProfit   float64 `json:"take_profit"`
	PositionSize float64 `json:"position_size"`
}

// Citation is one source reference attached to a decision.
type Citation struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Decision is the synthesized trading recommendation.
type Decision struct {
	Action          string           `json:"action"`
	Confidence      float64          `json:"confidence"`
	Reasoning       Reasoning        `json:"reasoning"`
	TradeParameters *TradeParameters `json:"trade_parameters,omitempty"`
	Disclaimer      string           `json:"disclaimer,omitempty"`
	Sources         []Citation       `json:"sources,omitempty"`
}

// SafeDefaultDecision is the decision emitted when synthesis fails. The
// workflow always terminates with some valid decision; this is the one it
// falls back to.
func SafeDefaultDecision(reason string) *Decision {
	return &Decision{
		Action:     ActionWait,
		Confidence: 0.0,
		Reasoning: Reasoning{
			Summary: "Synthesis failed: " + reason,
			Error:   true,
		},
	}
}

// AgentResults groups the four analysis envelopes in the final result.
type AgentResults struct {
	News        *AgentResult `json:"news"`
	Technical   *AgentResult `json:"technical"`
	Fundamental *AgentResult `json:"fundamental"`
	Risk        *AgentResult `json:"risk"`
}

// Metadata summarizes a finished run.
type Metadata struct {
	RunID  string            `json:"run_id,omitempty"`
	Steps  int               `json:"steps"`
	Errors map[string]string `json:"errors,omitempty"`
}

// Result is the blocking-variant response: the final state flattened for
// callers that do not consume the event stream.
type Result struct {
	UserQuery    string           `json:"user_query"`
	QueryContext *StructuredQuery `json:"query_context"`
	Pair         string           `json:"pair"`
	Decision     *Decision        `json:"decision"`
	AgentResults AgentResults     `json:"agent_results"`
	Report       *AgentResult     `json:"report,omitempty"`
	Metadata     Metadata         `json:"metadata"`
}
