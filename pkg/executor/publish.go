package executor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/buildrhq/codegen/pkg/types"
	"github.com/buildrhq/codegen/pkg/workspace"
)

// ChangeRequestOpener publishes an applied branch for review. Remote
// repositories get a real change request; local-only repositories get an
// equivalent stub artifact with no network call.
type ChangeRequestOpener interface {
	Open(ctx context.Context, ws *workspace.Workspace, base, head, title, body string) (string, error)
}

// GHOpener opens pull requests through the gh CLI, which carries its own
// authentication. Used for remote repositories.
type GHOpener struct {
	Timeout time.Duration
	Draft   bool
}

// Open implements ChangeRequestOpener.
func (o *GHOpener) Open(ctx context.Context, ws *workspace.Workspace, base, head, title, body string) (string, error) {
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := []string{"pr", "create", "--base", base, "--head", head, "--title", title, "--body", body}
	if o.Draft {
		args = append(args, "--draft")
	}

	cmd := exec.CommandContext(execCtx, "gh", args...)
	cmd.Dir = ws.Dir
	output, err := cmd.CombinedOutput()
	if err != nil {
		if execCtx.Err() == context.DeadlineExceeded {
			return "", types.WrapError(types.ErrTimedOut, execCtx.Err(), "change request creation timed out")
		}
		return "", types.WrapError(types.ErrRepositoryUnavailable, err,
			"failed to open change request: %s", strings.TrimSpace(string(output)))
	}

	// gh prints the PR URL as the last line.
	lines := strings.Split(strings.TrimSpace(string(output)), "\n")
	return lines[len(lines)-1], nil
}

// StubOpener writes the change-request description to a local file instead
// of calling any provider. Used for local repositories and offline runs.
type StubOpener struct {
	Dir string
}

// Open implements ChangeRequestOpener.
func (o *StubOpener) Open(_ context.Context, ws *workspace.Workspace, base, head, title, body string) (string, error) {
	dir := o.Dir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", types.WrapError(types.ErrRepositoryUnavailable, err, "failed to create stub directory")
	}

	var md strings.Builder
	md.WriteString("# " + title + "\n\n")
	fmt.Fprintf(&md, "Base: `%s`  Head: `%s`  Repo: `%s`\n\n", base, head, ws.Ref)
	md.WriteString(body)
	md.WriteString("\n")

	path := filepath.Join(dir, head+".change-request.md")
	if err := os.WriteFile(path, []byte(md.String()), 0o600); err != nil {
		return "", types.WrapError(types.ErrRepositoryUnavailable, err, "failed to write stub change request")
	}
	return path, nil
}

// describeChange renders the deterministic change-request title and body from
// the plan and run evidence.
func describeChange(goal *types.CodegenGoal, plan *types.Plan, result *types.ExecutionResult) (title, body string) {
	title = plan.Summary
	if title == "" || len(title) > 72 {
		title = "codegen: " + goal.Slug()
	}

	var b strings.Builder
	b.WriteString("## Summary\n\n")
	if plan.Summary != "" {
		b.WriteString(plan.Summary + "\n\n")
	}
	b.WriteString("Goal: " + goal.GoalText + "\n\n")
	fmt.Fprintf(&b, "Risk: **%s**\n\n", plan.Risk)

	b.WriteString("## Files\n\n")
	for _, diff := range plan.Diffs {
		fmt.Fprintf(&b, "- `%s` (%s)", diff.FilePath, diff.Operation)
		if diff.Rationale != "" {
			b.WriteString(" — " + diff.Rationale)
		}
		b.WriteByte('\n')
	}

	if result.Tests != nil {
		b.WriteString("\n## Tests\n\n")
		fmt.Fprintf(&b, "%d passed, %d failed in %s\n", result.Tests.Passed, result.Tests.Failed, result.Tests.Duration.Round(time.Millisecond))
	}
	if result.Lint != nil {
		b.WriteString("\n## Lint\n\n")
		if result.Lint.OK {
			b.WriteString("No issues.\n")
		} else {
			fmt.Fprintf(&b, "%d issue(s) recorded (advisory).\n", len(result.Lint.Issues))
		}
	}
	return title, b.String()
}
