package engine

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig_OverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "codegen.yaml")
	content := `
guardrails:
  max_files: 10
  deny_globs:
    - "vendor/**"
executor:
  test_command: "go test ./..."
  fail_on_test_failure: true
sync_timeout: 5m
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if config.Guardrails.MaxFiles != 10 {
		t.Errorf("MaxFiles = %d", config.Guardrails.MaxFiles)
	}
	if len(config.Guardrails.DenyGlobs) != 1 {
		t.Errorf("DenyGlobs = %v", config.Guardrails.DenyGlobs)
	}
	if config.Executor.TestCommand != "go test ./..." {
		t.Errorf("TestCommand = %q", config.Executor.TestCommand)
	}
	if config.SyncTimeout != 5*time.Minute {
		t.Errorf("SyncTimeout = %s", config.SyncTimeout)
	}

	// Untouched sections keep their defaults.
	if config.Planner.Timeout != DefaultConfig().Planner.Timeout {
		t.Errorf("Planner.Timeout = %s, expected default", config.Planner.Timeout)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadConfig_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("guardrails: [not a map"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("expected error for malformed YAML")
	}
}

func TestConfig_Validate(t *testing.T) {
	config := DefaultConfig()
	if err := config.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}

	config.SyncTimeout = 0
	if err := config.Validate(); err == nil {
		t.Error("expected error for zero sync timeout")
	}

	config = DefaultConfig()
	config.Guardrails.MaxFiles = -1
	if err := config.Validate(); err == nil {
		t.Error("expected error for negative ceiling")
	}
}
