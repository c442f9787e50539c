package config

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestManagerCreatesAndUpdates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	mgr, err := NewManager(WithConfigPath(path))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not created: %v", err)
	}

	cfg := mgr.Get()
	cfg.AccountBalance = 25000.0
	cfg.MaxRiskPerTrade = 0.01

	data, _ := json.Marshal(cfg)
	if err := mgr.UpdateFromJSON(string(data)); err != nil {
		t.Fatalf("UpdateFromJSON: %v", err)
	}

	updated := mgr.Get()
	if updated.AccountBalance != 25000.0 {
		t.Fatalf("expected balance 25000, got %v", updated.AccountBalance)
	}
	if updated.MaxRiskPerTrade != 0.01 {
		t.Fatalf("expected max risk 0.01, got %v", updated.MaxRiskPerTrade)
	}
}

func TestManagerRejectsInvalidUpdate(t *testing.T) {
	dir := t.TempDir()
	mgr, err := NewManager(WithConfigPath(filepath.Join(dir, "config.json")))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	cfg := mgr.Get()
	cfg.MaxRiskPerTrade = 2.0
	if err := mgr.Update(cfg); err == nil {
		t.Fatalf("expected validation error for max_risk_per_trade > 1")
	}

	cfg = mgr.Get()
	cfg.PipMultiplier = 0
	if err := mgr.Update(cfg); err == nil {
		t.Fatalf("expected validation error for zero pip_multiplier")
	}
}

func TestManagerWatchReloads(t *testing.T) {
	dir := t.TempDir()
	mgr, err := NewManager(WithConfigPath(filepath.Join(dir, "config.json")))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan Config, 1)
	if err := mgr.Watch(ctx, func(cfg Config) {
		reloaded <- cfg
	}); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	cfg := mgr.Get()
	cfg.AccountBalance = 50000.0

	if err := writeConfigFile(mgr.Path(), cfg); err != nil {
		t.Fatalf("writeConfigFile: %v", err)
	}

	select {
	case got := <-reloaded:
		if got.AccountBalance != 50000.0 {
			t.Fatalf("expected reloaded balance 50000, got %v", got.AccountBalance)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("watcher did not fire on config change")
	}
}

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.AccountBalance != 10000.0 {
		t.Errorf("expected default balance 10000, got %v", cfg.AccountBalance)
	}
	if cfg.PipMultiplier != 10000.0 {
		t.Errorf("expected default pip multiplier 10000, got %v", cfg.PipMultiplier)
	}
}
