package types

import (
	"fmt"
	"sort"
)

// ChangeOperation is the kind of file-level change a plan entry performs.
type ChangeOperation string

const (
	OpCreate ChangeOperation = "create"
	OpModify ChangeOperation = "modify"
	OpDelete ChangeOperation = "delete"
)

// Edit is one search/replace hunk applied to an existing file. The search
// text must match exactly once; ambiguous or missing matches are treated as a
// patch conflict, never applied partially.
type Edit struct {
	Search  string `json:"search" yaml:"search"`
	Replace string `json:"replace" yaml:"replace"`
}

// ProposedChange is one file-level change produced by the planner and
// consumed by the executor.
type ProposedChange struct {
	FilePath  string          `json:"file_path" yaml:"file_path"`
	Operation ChangeOperation `json:"operation" yaml:"operation"`

	// Content carries the full file content for create operations, or a
	// whole-file replacement for modify operations without edits.
	Content string `json:"content,omitempty" yaml:"content,omitempty"`

	// Edits carries search/replace hunks for modify operations. When set,
	// Content is ignored.
	Edits []Edit `json:"edits,omitempty" yaml:"edits,omitempty"`

	// Overwrite permits a create operation to replace an existing file.
	Overwrite bool `json:"overwrite,omitempty" yaml:"overwrite,omitempty"`

	Rationale string `json:"rationale,omitempty" yaml:"rationale,omitempty"`
}

// Validate checks the entry is internally consistent.
func (c *ProposedChange) Validate() error {
	if c.FilePath == "" {
		return fmt.Errorf("proposed change requires a file path")
	}
	switch c.Operation {
	case OpCreate:
		// Empty content is allowed: creating an empty marker file is valid.
	case OpModify:
		if c.Content == "" && len(c.Edits) == 0 {
			return fmt.Errorf("modify of %s requires content or edits", c.FilePath)
		}
		for i, e := range c.Edits {
			if e.Search == "" {
				return fmt.Errorf("modify of %s: edit %d has empty search text", c.FilePath, i+1)
			}
		}
	case OpDelete:
		// No payload.
	default:
		return fmt.Errorf("invalid operation %q for %s", c.Operation, c.FilePath)
	}
	return nil
}

// DiffBytes estimates the size of this change for guardrail ceilings.
func (c *ProposedChange) DiffBytes() int {
	n := len(c.Content)
	for _, e := range c.Edits {
		n += len(e.Search) + len(e.Replace)
	}
	return n
}

// Risk classifies a plan's blast radius. Assigned deterministically by the
// guardrail package, never taken from the planning capability's output.
type Risk string

const (
	RiskLow    Risk = "low"
	RiskMedium Risk = "medium"
	RiskHigh   Risk = "high"
)

// rank orders risk levels for comparison.
func (r Risk) rank() int {
	switch r {
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	default:
		return 0
	}
}

// AtLeast reports whether r is the same or a higher risk level than other.
func (r Risk) AtLeast(other Risk) bool {
	return r.rank() >= other.rank()
}

// Max returns the higher of two risk levels.
func (r Risk) Max(other Risk) Risk {
	if other.rank() > r.rank() {
		return other
	}
	return r
}

// Plan is an ordered list of proposed changes for one goal against one
// repository snapshot. Plans are ephemeral: regenerable from the same goal
// and snapshot, and not a source of truth once execution has started.
type Plan struct {
	Summary      string           `json:"summary" yaml:"summary"`
	Diffs        []ProposedChange `json:"diffs" yaml:"diffs"`
	Risk         Risk             `json:"risk" yaml:"risk"`
	FilesTouched []string         `json:"files_touched" yaml:"files_touched"`
	TestsTouched []string         `json:"tests_touched" yaml:"tests_touched"`

	// Violations carries informational guardrail findings from plan time so
	// callers can see problems before committing to an apply.
	Violations []Violation `json:"violations,omitempty" yaml:"violations,omitempty"`
}

// Violation is one structured guardrail finding.
type Violation struct {
	Path   string `json:"path" yaml:"path"`
	Reason string `json:"reason" yaml:"reason"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Reason)
}

// Validate checks every diff entry and the touched-file bookkeeping.
func (p *Plan) Validate() error {
	if len(p.Diffs) == 0 {
		return fmt.Errorf("plan has no diffs")
	}
	for i := range p.Diffs {
		if err := p.Diffs[i].Validate(); err != nil {
			return fmt.Errorf("diff %d: %w", i+1, err)
		}
	}
	return nil
}

// TotalDiffBytes sums the estimated size of all diffs.
func (p *Plan) TotalDiffBytes() int {
	total := 0
	for i := range p.Diffs {
		total += p.Diffs[i].DiffBytes()
	}
	return total
}

// TouchedPaths returns the sorted, de-duplicated set of file paths the plan
// touches. FilesTouched is derived from this, never trusted from the planner
// capability output.
func (p *Plan) TouchedPaths() []string {
	seen := make(map[string]struct{}, len(p.Diffs))
	paths := make([]string, 0, len(p.Diffs))
	for i := range p.Diffs {
		path := p.Diffs[i].FilePath
		if _, ok := seen[path]; ok {
			continue
		}
		seen[path] = struct{}{}
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}
