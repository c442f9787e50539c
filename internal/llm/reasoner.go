package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Reasoner is the narrow LLM surface the analysis providers depend on: one
// prompt in, one JSON document out. Providers that cannot reach a model get
// a nil Reasoner and fall back to deterministic logic.
type Reasoner interface {
	Reason(ctx context.Context, system, user string) (json.RawMessage, error)
}

// ModelReasoner adapts an eino chat model to the Reasoner interface, bounding
// each call with a timeout and cleaning the response down to raw JSON.
type ModelReasoner struct {
	model   model.BaseChatModel
	timeout time.Duration
}

func NewModelReasoner(m model.BaseChatModel, timeout time.Duration) *ModelReasoner {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ModelReasoner{model: m, timeout: timeout}
}

func (r *ModelReasoner) Reason(ctx context.Context, system, user string) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	msg, err := r.model.Generate(ctx, []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(user),
	})
	if err != nil {
		return nil, fmt.Errorf("model generate: %w", err)
	}

	raw := ExtractJSON(msg.Content)
	if !json.Valid([]byte(raw)) {
		return nil, fmt.Errorf("model returned invalid JSON: %.120s", msg.Content)
	}
	return json.RawMessage(raw), nil
}

// ExtractJSON strips markdown code fences and surrounding prose, returning
// the JSON body a model wrapped in its answer.
func ExtractJSON(content string) string {
	s := strings.TrimSpace(content)

	if idx := strings.Index(s, "```json"); idx >= 0 {
		s = s[idx+len("```json"):]
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
		return strings.TrimSpace(s)
	}
	if idx := strings.Index(s, "```"); idx >= 0 {
		s = s[idx+3:]
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
		return strings.TrimSpace(s)
	}

	// No fences. Trim to the outermost braces so leading prose does not
	// break decoding.
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	end := strings.LastIndexAny(s, "}]")
	if end < start {
		return s
	}
	return s[start : end+1]
}
