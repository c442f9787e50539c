package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/avelar/fxpilot/consts"
	"github.com/avelar/fxpilot/internal/models"
	"github.com/avelar/fxpilot/internal/workflow"
)

type stubEngine struct {
	lastOpts *workflow.Options
	fail     bool
}

func (s *stubEngine) Analyze(_ context.Context, query string, opts *workflow.Options) (*models.Result, error) {
	if s.fail {
		return nil, fmt.Errorf("engine down")
	}
	s.lastOpts = opts
	return &models.Result{
		UserQuery: query,
		Pair:      "EUR/USD",
		Decision:  &models.Decision{Action: models.ActionWait, Confidence: 0},
	}, nil
}

func (s *stubEngine) AnalyzeStream(_ context.Context, query string, opts *workflow.Options) (<-chan models.StreamEvent, error) {
	if query == "" {
		return nil, fmt.Errorf("query must not be empty")
	}
	s.lastOpts = opts
	ch := make(chan models.StreamEvent, 4)
	ch <- models.NewStreamEvent(consts.EventStart, map[string]any{"query": query})
	ch <- models.NewStreamEvent(consts.EventDecision, map[string]any{"action": "WAIT"})
	ch <- models.NewStreamEvent(consts.EventComplete, map[string]any{"run_id": "test"})
	close(ch)
	return ch, nil
}

func (s *stubEngine) Info() map[string]any {
	return map[string]any{"version": "test"}
}

func TestHealthEndpoint(t *testing.T) {
	srv := NewServer(":0", &stubEngine{})

	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestInfoEndpoint(t *testing.T) {
	srv := NewServer(":0", &stubEngine{})

	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/info", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var info map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode info: %v", err)
	}
	if info["version"] != "test" {
		t.Errorf("info = %v", info)
	}
}

func TestAnalyzeEndpoint(t *testing.T) {
	engine := &stubEngine{}
	srv := NewServer(":0", engine)

	body := strings.NewReader(`{"query": "analyze EUR/USD", "account_balance": 25000}`)
	req := httptest.NewRequest(http.MethodPost, "/analyze", body)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var result models.Result
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Decision == nil || result.Decision.Action != models.ActionWait {
		t.Errorf("decision = %+v", result.Decision)
	}
	if engine.lastOpts == nil || engine.lastOpts.AccountBalance != 25000 {
		t.Errorf("balance override not forwarded: %+v", engine.lastOpts)
	}
}

func TestAnalyzeRejectsMissingQuery(t *testing.T) {
	srv := NewServer(":0", &stubEngine{})

	req := httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestAnalyzeEngineFailure(t *testing.T) {
	srv := NewServer(":0", &stubEngine{fail: true})

	req := httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader(`{"query": "x"}`))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
}

func TestStreamEndpointFramesSSE(t *testing.T) {
	srv := NewServer(":0", &stubEngine{})

	req := httptest.NewRequest(http.MethodGet, "/analyze/stream?query=euro+outlook", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}

	frames := strings.Split(strings.TrimSpace(w.Body.String()), "\n\n")
	if len(frames) != 3 {
		t.Fatalf("frames = %d, want 3: %q", len(frames), w.Body.String())
	}
	for _, frame := range frames {
		if !strings.HasPrefix(frame, "data: ") {
			t.Errorf("frame missing data prefix: %q", frame)
		}
	}

	var first models.StreamEvent
	if err := json.Unmarshal([]byte(strings.TrimPrefix(frames[0], "data: ")), &first); err != nil {
		t.Fatalf("decode first frame: %v", err)
	}
	if first.Type != consts.EventStart {
		t.Errorf("first event = %q, want start", first.Type)
	}
}

func TestStreamPOSTForwardsOverrides(t *testing.T) {
	engine := &stubEngine{}
	srv := NewServer(":0", engine)

	body := strings.NewReader(`{"query": "gold", "max_risk_per_trade": 0.01}`)
	req := httptest.NewRequest(http.MethodPost, "/analyze/stream", body)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if engine.lastOpts == nil || engine.lastOpts.MaxRiskPerTrade != 0.01 {
		t.Errorf("risk override not forwarded: %+v", engine.lastOpts)
	}
}

func TestStreamRejectsMissingQuery(t *testing.T) {
	srv := NewServer(":0", &stubEngine{})

	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/analyze/stream", nil))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := NewServer(":0", &stubEngine{})

	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/analyze", nil))

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("CORS origin header missing")
	}
}
