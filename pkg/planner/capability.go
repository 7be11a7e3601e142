// Package planner turns a goal plus a bounded repository snapshot into a
// Plan. The external planning capability is opaque (text in, structured plan
// text out) and wrapped behind a narrow interface with a timeout and a
// deterministic fallback, so the rest of the pipeline stays testable without
// a live dependency.
package planner

import (
	"context"
	"time"
)

// Capability is the external planning capability: goal and snapshot text in,
// structured plan text out. Implementations must respect ctx cancellation.
type Capability interface {
	GeneratePlan(ctx context.Context, goal, snapshot string) (string, error)
}

// CapabilityFunc adapts a function to the Capability interface.
type CapabilityFunc func(ctx context.Context, goal, snapshot string) (string, error)

// GeneratePlan implements Capability.
func (f CapabilityFunc) GeneratePlan(ctx context.Context, goal, snapshot string) (string, error) {
	return f(ctx, goal, snapshot)
}

// Config tunes snapshot bounds and the capability call.
type Config struct {
	// Timeout bounds one capability call. On expiry the planner degrades to
	// the deterministic fallback plan.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// MaxSnapshotTokens bounds the rendered snapshot fed to the capability.
	MaxSnapshotTokens int `yaml:"max_snapshot_tokens" json:"max_snapshot_tokens"`
	// MaxFileBytes truncates any single file included in the snapshot.
	MaxFileBytes int `yaml:"max_file_bytes" json:"max_file_bytes"`
	// MaxSnapshotFiles bounds how many file bodies the snapshot includes.
	MaxSnapshotFiles int `yaml:"max_snapshot_files" json:"max_snapshot_files"`
}

// DefaultConfig returns planner defaults sized for typical scaffolded
// projects.
func DefaultConfig() Config {
	return Config{
		Timeout:           60 * time.Second,
		MaxSnapshotTokens: 24000,
		MaxFileBytes:      16 * 1024,
		MaxSnapshotFiles:  40,
	}
}
