// Package guardrail decides whether a candidate set of touched paths is safe
// to apply, independent of plan content. It also owns the deterministic risk
// classifier so plans are never labeled by the planning capability directly.
package guardrail

import (
	"fmt"
	"path"
	"strings"

	"github.com/gobwas/glob"

	"github.com/buildrhq/codegen/pkg/types"
)

// Config defines path policy and blast-radius ceilings for one validation.
type Config struct {
	// AllowPaths, when non-empty, restricts changes to matching paths.
	AllowPaths []string `yaml:"allow_paths" json:"allow_paths"`
	// DenyGlobs rejects matching paths regardless of the allow list.
	DenyGlobs []string `yaml:"deny_globs" json:"deny_globs"`

	// Blast-radius ceilings. Zero disables the ceiling.
	MaxFiles          int `yaml:"max_files" json:"max_files"`
	MaxTotalDiffBytes int `yaml:"max_total_diff_bytes" json:"max_total_diff_bytes"`

	// SensitiveGlobs force a high risk classification when touched. They do
	// not reject by themselves; add them to DenyGlobs to block.
	SensitiveGlobs []string `yaml:"sensitive_globs" json:"sensitive_globs"`

	// Risk thresholds. A plan exceeding the medium threshold is at least
	// medium, the high threshold at least high.
	MediumRiskFiles int `yaml:"medium_risk_files" json:"medium_risk_files"`
	HighRiskFiles   int `yaml:"high_risk_files" json:"high_risk_files"`
	MediumRiskBytes int `yaml:"medium_risk_bytes" json:"medium_risk_bytes"`
	HighRiskBytes   int `yaml:"high_risk_bytes" json:"high_risk_bytes"`

	// goalAllowPaths holds a goal's allow list when the operator also
	// configured one; a path must then satisfy both lists. Populated only by
	// Merge, never from a config file.
	goalAllowPaths []string
}

// DefaultSensitiveGlobs covers credential and pipeline files that should
// never be touched casually by generated changes.
func DefaultSensitiveGlobs() []string {
	return []string{
		".env",
		".env.*",
		"**/.env",
		"**/*.pem",
		"**/*.key",
		"**/id_rsa*",
		".github/workflows/**",
		"**/secrets/**",
		"**/credentials*",
	}
}

// DefaultConfig returns ceilings and thresholds suitable for scaffolded
// business applications.
func DefaultConfig() Config {
	return Config{
		MaxFiles:          25,
		MaxTotalDiffBytes: 512 * 1024,
		SensitiveGlobs:    DefaultSensitiveGlobs(),
		MediumRiskFiles:   5,
		HighRiskFiles:     15,
		MediumRiskBytes:   16 * 1024,
		HighRiskBytes:     64 * 1024,
	}
}

// Merge overlays per-goal allow/deny lists onto the base policy. Deny globs
// accumulate; a goal allow list narrows (it never widens a configured one):
// when the operator configured no allow list the goal's becomes the policy,
// otherwise a path must match both lists.
func (c Config) Merge(allowPaths, denyGlobs []string) Config {
	merged := c
	merged.DenyGlobs = append(append([]string{}, c.DenyGlobs...), denyGlobs...)
	switch {
	case len(allowPaths) == 0:
	case len(c.AllowPaths) == 0:
		merged.AllowPaths = append([]string{}, allowPaths...)
	default:
		merged.goalAllowPaths = append([]string{}, allowPaths...)
	}
	return merged
}

// Validator checks touched paths against a compiled policy. Validators are
// cheap to construct; the engine builds one per validation from the merged
// goal and engine config.
type Validator struct {
	config    Config
	allow     []pattern
	goalAllow []pattern
	deny      []pattern
	sensitive []pattern
}

// pattern keeps the source text next to its compiled glob for diagnostics.
type pattern struct {
	source string
	glob   glob.Glob
}

// NewValidator compiles the policy's glob patterns.
func NewValidator(config Config) (*Validator, error) {
	v := &Validator{config: config}

	var err error
	if v.allow, err = compile(config.AllowPaths); err != nil {
		return nil, fmt.Errorf("invalid allow pattern: %w", err)
	}
	if v.goalAllow, err = compile(config.goalAllowPaths); err != nil {
		return nil, fmt.Errorf("invalid allow pattern: %w", err)
	}
	if v.deny, err = compile(config.DenyGlobs); err != nil {
		return nil, fmt.Errorf("invalid deny pattern: %w", err)
	}
	if v.sensitive, err = compile(config.SensitiveGlobs); err != nil {
		return nil, fmt.Errorf("invalid sensitive pattern: %w", err)
	}
	return v, nil
}

func compile(sources []string) ([]pattern, error) {
	patterns := make([]pattern, 0, len(sources))
	for _, source := range sources {
		g, err := glob.Compile(source, '/')
		if err != nil {
			return nil, fmt.Errorf("%q: %w", source, err)
		}
		patterns = append(patterns, pattern{source: source, glob: g})
	}
	return patterns, nil
}

// normalize cleans a candidate path to slash form for matching.
func normalize(p string) string {
	return path.Clean(strings.ReplaceAll(p, "\\", "/"))
}

// CheckPaths applies the path policy in rule order: deny patterns first, then
// the allow list, then structural checks (absolute paths and traversal are
// always rejected). Returns one violation per offending path; an empty slice
// means pass.
func (v *Validator) CheckPaths(paths []string) []types.Violation {
	var violations []types.Violation

	for _, raw := range paths {
		p := normalize(raw)

		if p == "" || p == "." {
			violations = append(violations, types.Violation{Path: raw, Reason: "empty path"})
			continue
		}
		if strings.HasPrefix(p, "/") || strings.HasPrefix(p, "../") || p == ".." {
			violations = append(violations, types.Violation{Path: raw, Reason: "path escapes the workspace"})
			continue
		}

		if pattern := match(v.deny, p); pattern != "" {
			violations = append(violations, types.Violation{
				Path:   raw,
				Reason: fmt.Sprintf("matches deny pattern %q", pattern),
			})
			continue
		}

		if len(v.allow) > 0 && match(v.allow, p) == "" {
			violations = append(violations, types.Violation{
				Path:   raw,
				Reason: "not covered by the allow list",
			})
			continue
		}

		if len(v.goalAllow) > 0 && match(v.goalAllow, p) == "" {
			violations = append(violations, types.Violation{
				Path:   raw,
				Reason: "not covered by the goal's allow list",
			})
		}
	}

	return violations
}

// CheckSet validates a full candidate set: path policy plus blast-radius
// ceilings. Fails closed: any violation blocks the entire set, never a
// partial subset.
func (v *Validator) CheckSet(paths []string, totalDiffBytes int) []types.Violation {
	violations := v.CheckPaths(paths)

	if v.config.MaxFiles > 0 && len(paths) > v.config.MaxFiles {
		violations = append(violations, types.Violation{
			Path:   "*",
			Reason: fmt.Sprintf("touches %d files, exceeding the ceiling of %d", len(paths), v.config.MaxFiles),
		})
	}
	if v.config.MaxTotalDiffBytes > 0 && totalDiffBytes > v.config.MaxTotalDiffBytes {
		violations = append(violations, types.Violation{
			Path:   "*",
			Reason: fmt.Sprintf("total diff size %d bytes exceeds the ceiling of %d", totalDiffBytes, v.config.MaxTotalDiffBytes),
		})
	}

	return violations
}

// CheckPlan validates a plan's touched paths and size against the policy.
func (v *Validator) CheckPlan(plan *types.Plan) []types.Violation {
	return v.CheckSet(plan.TouchedPaths(), plan.TotalDiffBytes())
}

// Err converts violations into a GuardrailViolation error, or nil on pass.
func Err(violations []types.Violation) error {
	if len(violations) == 0 {
		return nil
	}
	files := make([]string, 0, len(violations))
	reasons := make([]string, 0, len(violations))
	for _, violation := range violations {
		files = append(files, violation.Path)
		reasons = append(reasons, violation.String())
	}
	return types.NewError(types.ErrGuardrailViolation,
		"guardrail policy rejected the change set: %s", strings.Join(reasons, "; ")).
		WithFiles(files...)
}

// IsSensitive reports whether the path matches a sensitive pattern.
func (v *Validator) IsSensitive(p string) bool {
	return match(v.sensitive, normalize(p)) != ""
}

// ClassifyRisk computes the deterministic, monotonic risk label from the
// touched-file count, total diff size, and sensitive-path matches. More files
// or bytes can only raise the label, never lower it.
func (v *Validator) ClassifyRisk(paths []string, totalDiffBytes int) types.Risk {
	risk := types.RiskLow

	if v.config.MediumRiskFiles > 0 && len(paths) > v.config.MediumRiskFiles {
		risk = risk.Max(types.RiskMedium)
	}
	if v.config.MediumRiskBytes > 0 && totalDiffBytes > v.config.MediumRiskBytes {
		risk = risk.Max(types.RiskMedium)
	}
	if v.config.HighRiskFiles > 0 && len(paths) > v.config.HighRiskFiles {
		risk = risk.Max(types.RiskHigh)
	}
	if v.config.HighRiskBytes > 0 && totalDiffBytes > v.config.HighRiskBytes {
		risk = risk.Max(types.RiskHigh)
	}
	for _, p := range paths {
		if v.IsSensitive(p) {
			risk = risk.Max(types.RiskHigh)
			break
		}
	}

	return risk
}

// match returns the source text of the first pattern matching p, or "".
func match(patterns []pattern, p string) string {
	for _, pat := range patterns {
		if pat.glob.Match(p) {
			return pat.source
		}
	}
	return ""
}
