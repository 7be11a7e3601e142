package types

import (
	"fmt"
	"strings"
)

// CodegenGoal is one natural-language code-modification request. Goals are
// created per request and treated as immutable afterwards.
type CodegenGoal struct {
	GoalText   string   `json:"goal_text" yaml:"goal_text"`
	RepoRef    RepoRef  `json:"repo_ref" yaml:"repo_ref"`
	BranchBase string   `json:"branch_base" yaml:"branch_base"`
	DryRun     bool     `json:"dry_run" yaml:"dry_run"`
	AllowPaths []string `json:"allow_paths,omitempty" yaml:"allow_paths,omitempty"`
	DenyGlobs  []string `json:"deny_globs,omitempty" yaml:"deny_globs,omitempty"`

	// Tenant is an opaque tenant identifier carried for credential scoping
	// and audit. Tenant resolution itself happens outside this subsystem.
	Tenant string `json:"tenant,omitempty" yaml:"tenant,omitempty"`
}

// Validate checks the goal is complete enough to plan against.
func (g *CodegenGoal) Validate() error {
	if strings.TrimSpace(g.GoalText) == "" {
		return fmt.Errorf("goal text is required")
	}
	if err := g.RepoRef.Validate(); err != nil {
		return fmt.Errorf("invalid repo ref: %w", err)
	}
	return nil
}

// maxSlugLen bounds the goal-derived branch name fragment.
const maxSlugLen = 40

// Slug derives a lowercase, hyphenated fragment of the goal text for use in
// branch names and artifact directories.
func (g *CodegenGoal) Slug() string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(g.GoalText) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
		if b.Len() >= maxSlugLen {
			break
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		slug = "goal"
	}
	return slug
}
