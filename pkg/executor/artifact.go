package executor

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/buildrhq/codegen/pkg/types"
)

// runSummary is the persisted record of one execution attempt, written next
// to the stub change requests so failed runs stay inspectable after the
// workspace is discarded.
type runSummary struct {
	JobID  string                 `json:"job_id"`
	Goal   types.CodegenGoal      `json:"goal"`
	Plan   *types.Plan            `json:"plan"`
	Result *types.ExecutionResult `json:"result"`
}

// writeArtifacts persists the JSON and markdown run summaries. Artifact
// failures are logged, never fatal: the result has already been decided.
func (e *Executor) writeArtifacts(jobID string, goal *types.CodegenGoal, plan *types.Plan, result *types.ExecutionResult) {
	if !e.config.ArtifactsEnabled || e.config.ArtifactDir == "" {
		return
	}

	dir := filepath.Join(e.config.ArtifactDir, jobID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.Printf("[Executor] Warning: failed to create artifact dir: %v", err)
		return
	}

	summary := runSummary{JobID: jobID, Goal: *goal, Plan: plan, Result: result}
	if data, err := json.MarshalIndent(summary, "", "  "); err == nil {
		if err := os.WriteFile(filepath.Join(dir, "execution.json"), data, 0o600); err != nil {
			log.Printf("[Executor] Warning: failed to write execution JSON: %v", err)
		}
	}

	if err := os.WriteFile(filepath.Join(dir, "summary.md"), []byte(renderSummary(&summary)), 0o600); err != nil {
		log.Printf("[Executor] Warning: failed to write summary markdown: %v", err)
	}
}

func renderSummary(s *runSummary) string {
	var md strings.Builder
	md.WriteString("# Codegen Execution Summary\n\n")
	fmt.Fprintf(&md, "**Job:** %s\n\n", s.JobID)
	fmt.Fprintf(&md, "**Goal:** %s\n\n", s.Goal.GoalText)
	fmt.Fprintf(&md, "**Repository:** %s\n\n", s.Goal.RepoRef)
	fmt.Fprintf(&md, "**Status:** %s\n\n", s.Result.Status)
	fmt.Fprintf(&md, "**Duration:** %s\n\n", s.Result.Duration.Round(time.Millisecond))

	if s.Result.Error != "" {
		fmt.Fprintf(&md, "## Failure\n\n**Phase:** %s\n\n**Error:** %s\n\n", s.Result.FailedPhase, s.Result.Error)
		if len(s.Result.Files) > 0 {
			md.WriteString("**Implicated files:**\n\n")
			for _, f := range s.Result.Files {
				fmt.Fprintf(&md, "- `%s`\n", f)
			}
			md.WriteString("\n")
		}
	}

	if s.Plan != nil {
		fmt.Fprintf(&md, "## Plan (risk: %s)\n\n", s.Plan.Risk)
		for _, diff := range s.Plan.Diffs {
			fmt.Fprintf(&md, "- `%s` (%s)\n", diff.FilePath, diff.Operation)
		}
		md.WriteString("\n")
	}

	if s.Result.Tests != nil {
		fmt.Fprintf(&md, "## Tests\n\n%d passed, %d failed in %s\n\n",
			s.Result.Tests.Passed, s.Result.Tests.Failed, s.Result.Tests.Duration.Round(time.Millisecond))
	}
	if s.Result.Lint != nil && !s.Result.Lint.OK {
		fmt.Fprintf(&md, "## Lint\n\n%d issue(s):\n\n", len(s.Result.Lint.Issues))
		for _, issue := range s.Result.Lint.Issues {
			fmt.Fprintf(&md, "- %s\n", issue)
		}
		md.WriteString("\n")
	}

	if s.Result.Branch != "" {
		fmt.Fprintf(&md, "## Branch\n\n`%s`\n", s.Result.Branch)
	}
	if s.Result.ChangeRequest != "" {
		fmt.Fprintf(&md, "\n## Change request\n\n%s\n", s.Result.ChangeRequest)
	}
	return md.String()
}
