package models

import "time"

// StreamEvent is one entry in the workflow's output stream. Events for a
// single stage arrive in order; events from different parallel branches may
// interleave.
type StreamEvent struct {
	Type      string         `json:"type"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewStreamEvent stamps an event with the current time.
func NewStreamEvent(typ string, data map[string]any) StreamEvent {
	return StreamEvent{Type: typ, Data: data, Timestamp: time.Now().UTC()}
}

// EventSink receives progress events pushed by capability providers while
// they run. Emit is fire-and-forget: implementations must never block the
// caller and never fail in a way that aborts the emitting stage.
type EventSink interface {
	Emit(ev StreamEvent)
}

// NopSink discards everything. Providers invoked outside a streaming run get
// this instead of a nil check at every call site.
type NopSink struct{}

func (NopSink) Emit(StreamEvent) {}
