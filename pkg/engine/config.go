package engine

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/buildrhq/codegen/pkg/executor"
	"github.com/buildrhq/codegen/pkg/guardrail"
	"github.com/buildrhq/codegen/pkg/planner"
	"github.com/buildrhq/codegen/pkg/workspace"
)

// Config assembles the per-component configuration for one engine instance.
type Config struct {
	Guardrails guardrail.Config `yaml:"guardrails" json:"guardrails"`
	Planner    planner.Config   `yaml:"planner" json:"planner"`
	Executor   executor.Config  `yaml:"executor" json:"executor"`
	Workspace  workspace.Config `yaml:"workspace" json:"workspace"`

	// SyncTimeout bounds a synchronous Apply call end to end. Asynchronous
	// jobs use the same bound against a detached context.
	SyncTimeout time.Duration `yaml:"sync_timeout" json:"sync_timeout"`
}

// DefaultConfig returns a configuration suitable for most scaffolded
// projects.
func DefaultConfig() Config {
	return Config{
		Guardrails:  guardrail.DefaultConfig(),
		Planner:     planner.DefaultConfig(),
		Executor:    executor.DefaultConfig(),
		Workspace:   workspace.DefaultConfig(),
		SyncTimeout: 15 * time.Minute,
	}
}

// LoadConfig reads a YAML config file over the defaults.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return config, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := config.Validate(); err != nil {
		return config, err
	}
	return config, nil
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.SyncTimeout <= 0 {
		return fmt.Errorf("sync_timeout must be positive")
	}
	if c.Guardrails.MaxFiles < 0 || c.Guardrails.MaxTotalDiffBytes < 0 {
		return fmt.Errorf("guardrail ceilings cannot be negative")
	}
	if c.Planner.Timeout < 0 {
		return fmt.Errorf("planner timeout cannot be negative")
	}
	return nil
}
