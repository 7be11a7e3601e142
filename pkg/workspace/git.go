package workspace

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/buildrhq/codegen/pkg/types"
)

// CreateBranch creates and checks out the feature branch from the base
// branch's current head. The name is derived from the hint via
// GenerateBranchName, so callers get back the actual branch name.
func (m *Manager) CreateBranch(ctx context.Context, ws *Workspace, nameHint string) (string, error) {
	branch := GenerateBranchName(nameHint)
	if _, err := m.execGit(ctx, ws, ws.Dir, "checkout", "-b", branch); err != nil {
		return "", types.WrapError(types.ErrRepositoryUnavailable, err, "failed to create branch %q", branch)
	}
	ws.Branch = branch
	return branch, nil
}

// Commit stages all touched files and commits them with the configured
// author.
func (m *Manager) Commit(ctx context.Context, ws *Workspace, message string) error {
	if _, err := m.execGit(ctx, ws, ws.Dir, "add", "-A"); err != nil {
		return types.WrapError(types.ErrRepositoryUnavailable, err, "failed to stage changes")
	}

	args := []string{"commit", "-m", message}
	if m.config.AuthorName != "" && m.config.AuthorEmail != "" {
		args = append(args, "--author", fmt.Sprintf("%s <%s>", m.config.AuthorName, m.config.AuthorEmail))
	}
	args = append([]string{
		"-c", "user.name=" + m.config.AuthorName,
		"-c", "user.email=" + m.config.AuthorEmail,
	}, args...)

	if _, err := m.execGit(ctx, ws, ws.Dir, args...); err != nil {
		return types.WrapError(types.ErrRepositoryUnavailable, err, "failed to create commit")
	}
	return nil
}

// BundleDescriptor records the outcome of a "push" for a local repository,
// which has no remote: a self-contained pointer a platform can later import.
type BundleDescriptor struct {
	ProjectID string    `json:"project_id"`
	Branch    string    `json:"branch"`
	Head      string    `json:"head"`
	CreatedAt time.Time `json:"created_at"`
}

// Push publishes the workspace branch. For remote repositories it pushes to
// origin; for local repositories it writes a bundle descriptor instead and
// returns its path.
func (m *Manager) Push(ctx context.Context, ws *Workspace) (string, error) {
	if ws.Branch == "" {
		return "", types.NewError(types.ErrRepositoryUnavailable, "no branch created for workspace")
	}

	if ws.Ref.IsLocal() {
		return m.writeBundleDescriptor(ctx, ws)
	}

	if _, err := m.execGit(ctx, ws, ws.Dir, "push", "origin", ws.Branch); err != nil {
		if isAuthFailure(err) {
			return "", types.WrapError(types.ErrRepositoryAuth, err, "authentication failed pushing %q", ws.Branch)
		}
		return "", types.WrapError(types.ErrRepositoryUnavailable, err, "failed to push %q", ws.Branch)
	}
	return "", nil
}

func (m *Manager) writeBundleDescriptor(ctx context.Context, ws *Workspace) (string, error) {
	head, err := m.HeadCommit(ctx, ws)
	if err != nil {
		return "", err
	}

	descriptor := BundleDescriptor{
		ProjectID: ws.Ref.ProjectID,
		Branch:    ws.Branch,
		Head:      head,
		CreatedAt: time.Now().UTC(),
	}
	data, err := json.MarshalIndent(descriptor, "", "  ")
	if err != nil {
		return "", types.WrapError(types.ErrRepositoryUnavailable, err, "failed to marshal bundle descriptor")
	}

	if err := os.MkdirAll(m.config.BundleDir, 0o750); err != nil {
		return "", types.WrapError(types.ErrRepositoryUnavailable, err, "failed to create bundle directory")
	}
	path := filepath.Join(m.config.BundleDir, ws.Branch+".bundle.json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", types.WrapError(types.ErrRepositoryUnavailable, err, "failed to write bundle descriptor")
	}
	return path, nil
}

// UndoPush compensates for a publish failure after a successful Push, so a
// terminal failure never leaves the branch on the upstream: the pushed branch
// is deleted from origin, or for local references the bundle descriptor is
// removed. Safe to call when nothing was pushed.
func (m *Manager) UndoPush(ctx context.Context, ws *Workspace) error {
	if ws.Branch == "" {
		return nil
	}

	if ws.Ref.IsLocal() {
		path := filepath.Join(m.config.BundleDir, ws.Branch+".bundle.json")
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return types.WrapError(types.ErrRepositoryUnavailable, err, "failed to remove bundle descriptor for %q", ws.Branch)
		}
		return nil
	}

	if _, err := m.execGit(ctx, ws, ws.Dir, "push", "origin", "--delete", ws.Branch); err != nil {
		if isAuthFailure(err) {
			return types.WrapError(types.ErrRepositoryAuth, err, "authentication failed deleting pushed branch %q", ws.Branch)
		}
		return types.WrapError(types.ErrRepositoryUnavailable, err, "failed to delete pushed branch %q", ws.Branch)
	}
	return nil
}

// HeadCommit returns the current head commit hash.
func (m *Manager) HeadCommit(ctx context.Context, ws *Workspace) (string, error) {
	out, err := m.execGit(ctx, ws, ws.Dir, "rev-parse", "HEAD")
	if err != nil {
		return "", types.WrapError(types.ErrRepositoryUnavailable, err, "failed to resolve head")
	}
	return strings.TrimSpace(out), nil
}

// Rollback discards every uncommitted change so the workspace matches the
// head it had before the attempt, byte for byte.
func (m *Manager) Rollback(ctx context.Context, ws *Workspace) error {
	if _, err := m.execGit(ctx, ws, ws.Dir, "reset", "--hard", "HEAD"); err != nil {
		return types.WrapError(types.ErrRepositoryUnavailable, err, "failed to reset workspace")
	}
	if _, err := m.execGit(ctx, ws, ws.Dir, "clean", "-fd"); err != nil {
		return types.WrapError(types.ErrRepositoryUnavailable, err, "failed to clean untracked files")
	}
	return nil
}

// ChangedFiles lists modified and untracked files from git status.
func (m *Manager) ChangedFiles(ctx context.Context, ws *Workspace) ([]string, error) {
	out, err := m.execGit(ctx, ws, ws.Dir, "status", "--porcelain")
	if err != nil {
		return nil, types.WrapError(types.ErrRepositoryUnavailable, err, "failed to get changed files")
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	files := make([]string, 0, len(lines))
	for _, line := range lines {
		if len(line) > 3 {
			files = append(files, strings.TrimSpace(line[3:]))
		}
	}
	return files, nil
}

// execGit runs a git command bound by the configured timeout. Any credential
// embedded in arguments is scrubbed from errors so tokens never reach logs.
func (m *Manager) execGit(ctx context.Context, ws *Workspace, dir string, args ...string) (string, error) {
	execCtx, cancel := context.WithTimeout(ctx, m.config.GitTimeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}

	output, err := cmd.CombinedOutput()
	if err != nil {
		msg := fmt.Sprintf("git %s failed: %v\nOutput: %s", scrub(args[firstSubcommand(args)], ws), err, scrub(string(output), ws))
		if execCtx.Err() == context.DeadlineExceeded {
			return "", types.WrapError(types.ErrTimedOut, execCtx.Err(), "%s", msg)
		}
		return "", fmt.Errorf("%s", msg)
	}
	return scrub(string(output), ws), nil
}

// firstSubcommand skips leading -c key=value pairs to find the subcommand for
// error messages.
func firstSubcommand(args []string) int {
	for i := 0; i < len(args); i++ {
		if args[i] == "-c" {
			i++
			continue
		}
		return i
	}
	return 0
}

// scrub removes the workspace token from text.
func scrub(text string, ws *Workspace) string {
	if ws == nil || ws.token == "" {
		return text
	}
	return strings.ReplaceAll(text, ws.token, "****")
}

// isAuthFailure classifies git errors caused by rejected credentials.
func isAuthFailure(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"authentication failed",
		"could not read username",
		"could not read password",
		"invalid username or password",
		"permission denied",
		"403",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
