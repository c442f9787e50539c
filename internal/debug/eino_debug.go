package debug

import (
	"context"
	"fmt"
	"log"

	"github.com/cloudwego/eino-ext/devops"

	"github.com/avelar/fxpilot/internal/config"
)

// EinoDebugger starts the eino visual debug server when enabled, so compiled
// workflow graphs can be inspected in the browser.
type EinoDebugger struct {
	cfg *config.Config
}

func NewEinoDebugger(cfg *config.Config) *EinoDebugger {
	return &EinoDebugger{cfg: cfg}
}

func (d *EinoDebugger) Initialize(ctx context.Context) error {
	if !d.cfg.EinoDebugEnabled {
		return nil
	}

	if err := devops.Init(ctx); err != nil {
		return fmt.Errorf("initialize eino debug plugin: %w", err)
	}

	log.Printf("[EinoDebug] debug server at %s", d.URL())
	return nil
}

func (d *EinoDebugger) IsEnabled() bool {
	return d.cfg.EinoDebugEnabled
}

func (d *EinoDebugger) URL() string {
	if !d.cfg.EinoDebugEnabled {
		return ""
	}
	return fmt.Sprintf("http://localhost:%d", d.cfg.EinoDebugPort)
}
