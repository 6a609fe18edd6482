package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/debemdeboas/scratchpad/internal/config"
)

func TestGeneratedConfigLoads(t *testing.T) {
	output, err := generate()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, output, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Generated config does not load: %v", err)
	}

	defaults := &config.Config{}
	config.ApplyDefaults(defaults)
	if cfg.Scratchpad.Debounce != defaults.Scratchpad.Debounce {
		t.Errorf("Expected debounce %v, got %v", defaults.Scratchpad.Debounce, cfg.Scratchpad.Debounce)
	}
	if len(cfg.Scratchpad.Headings) != len(defaults.Scratchpad.Headings) {
		t.Errorf("Expected headings %v, got %v", defaults.Scratchpad.Headings, cfg.Scratchpad.Headings)
	}
	if cfg.Storage.Backend != config.BackendSQLite {
		t.Errorf("Expected sqlite backend, got %q", cfg.Storage.Backend)
	}
}
