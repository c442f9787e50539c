package workflow

import (
	"testing"

	"github.com/avelar/fxpilot/consts"
	"github.com/avelar/fxpilot/internal/models"
)

func TestEmitterDropsProgressWhenFull(t *testing.T) {
	em := newEmitter(1)
	em.Emit(models.NewStreamEvent(consts.EventAgentProgress, nil))
	em.Emit(models.NewStreamEvent(consts.EventAgentProgress, nil)) // buffer full, dropped
	em.close()

	var count int
	for range em.Events() {
		count++
	}
	if count != 1 {
		t.Fatalf("expected 1 buffered event, got %d", count)
	}
}

// The complete event carries the result and must reach a slow consumer even
// when every buffer slot is taken by progress events.
func TestEmitterDeliversFinalEventWhenFull(t *testing.T) {
	em := newEmitter(1)
	em.Emit(models.NewStreamEvent(consts.EventAgentProgress, nil))

	done := make(chan struct{})
	go func() {
		defer close(done)
		em.emitFinal(models.NewStreamEvent(consts.EventComplete, nil))
		em.close()
	}()

	var types []string
	for ev := range em.Events() {
		types = append(types, ev.Type)
	}
	<-done

	if len(types) != 2 {
		t.Fatalf("expected 2 events, got %d (%v)", len(types), types)
	}
	if types[len(types)-1] != consts.EventComplete {
		t.Errorf("last event must be complete, got %q", types[len(types)-1])
	}
}

func TestEmitterDiscardsAfterClose(t *testing.T) {
	em := newEmitter(4)
	em.close()
	em.Emit(models.NewStreamEvent(consts.EventAgentProgress, nil))
	em.emitFinal(models.NewStreamEvent(consts.EventComplete, nil))

	if _, ok := <-em.Events(); ok {
		t.Fatalf("closed emitter must deliver nothing")
	}
}
