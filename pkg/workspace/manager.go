// Package workspace produces isolated, disposable working copies for
// repository references and mediates all version-control operations on them.
// Local references are materialized from an exported project bundle; remote
// references are shallow-cloned with tenant-scoped credentials.
package workspace

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/buildrhq/codegen/pkg/types"
)

// ProjectStore resolves a local repo reference to an exported file bundle.
// The tenant/project store itself lives outside this subsystem.
type ProjectStore interface {
	// ExportBundle returns a directory containing the project's files. The
	// returned directory is read-only source material; the manager copies it
	// into the workspace.
	ExportBundle(ctx context.Context, tenant, projectID string) (string, error)
}

// CredentialSource provides tenant-scoped tokens for remote git operations.
// Tokens are used for the duration of one operation and never logged or
// persisted.
type CredentialSource interface {
	Token(ctx context.Context, tenant string, ref types.RepoRef) (string, error)
}

// Config tunes the manager.
type Config struct {
	// BundleDir receives bundle descriptors for local "pushes". Defaults to
	// the system temp directory.
	BundleDir string `yaml:"bundle_dir" json:"bundle_dir"`
	// GitTimeout bounds each individual git invocation.
	GitTimeout time.Duration `yaml:"git_timeout" json:"git_timeout"`
	// AuthorName and AuthorEmail are stamped on generated commits.
	AuthorName  string `yaml:"author_name" json:"author_name"`
	AuthorEmail string `yaml:"author_email" json:"author_email"`
}

// DefaultConfig returns manager defaults.
func DefaultConfig() Config {
	return Config{
		GitTimeout:  30 * time.Second,
		AuthorName:  "codegen[bot]",
		AuthorEmail: "codegen-bot@users.noreply.github.com",
	}
}

// Workspace is one ephemeral checkout. All paths inside it are relative to
// Dir; it is deleted by Release on every exit path.
type Workspace struct {
	Dir        string
	Ref        types.RepoRef
	BranchBase string
	Branch     string

	released bool
	token    string // held only for push; never logged
}

// Manager acquires and releases workspaces.
type Manager struct {
	config      Config
	projects    ProjectStore
	credentials CredentialSource
}

// NewManager creates a workspace manager. projects may be nil when only
// remote references are used, and credentials may be nil when only local
// references are used.
func NewManager(config Config, projects ProjectStore, credentials CredentialSource) *Manager {
	if config.GitTimeout <= 0 {
		config.GitTimeout = 30 * time.Second
	}
	if config.BundleDir == "" {
		config.BundleDir = os.TempDir()
	}
	return &Manager{config: config, projects: projects, credentials: credentials}
}

// Acquire materializes an isolated working copy for the reference. The
// returned workspace is always safe to Release, including after errors from
// later operations.
func (m *Manager) Acquire(ctx context.Context, tenant string, ref types.RepoRef, branchBase string) (*Workspace, error) {
	if err := ref.Validate(); err != nil {
		return nil, types.WrapError(types.ErrRepositoryUnavailable, err, "invalid repo ref")
	}

	dir, err := os.MkdirTemp("", "codegen-ws-")
	if err != nil {
		return nil, types.WrapError(types.ErrRepositoryUnavailable, err, "failed to create workspace directory")
	}

	ws := &Workspace{Dir: dir, Ref: ref, BranchBase: branchBase}

	if ref.IsLocal() {
		err = m.acquireLocal(ctx, ws, tenant)
	} else {
		err = m.acquireRemote(ctx, ws, tenant)
	}
	if err != nil {
		m.Release(ws)
		return nil, err
	}

	log.Printf("[Workspace] Acquired %s at %s (base %s)", ref, dir, ws.BranchBase)
	return ws, nil
}

// acquireLocal copies the exported project bundle into the workspace and
// ensures a git history exists so branching, rollback, and commits behave the
// same as for remote repositories.
func (m *Manager) acquireLocal(ctx context.Context, ws *Workspace, tenant string) error {
	if m.projects == nil {
		return types.NewError(types.ErrRepositoryUnavailable, "no project store configured for local repo refs")
	}

	bundle, err := m.projects.ExportBundle(ctx, tenant, ws.Ref.ProjectID)
	if err != nil {
		return types.WrapError(types.ErrRepositoryUnavailable, err, "failed to export project %s", ws.Ref.ProjectID)
	}

	if err := copyTree(bundle, ws.Dir); err != nil {
		return types.WrapError(types.ErrRepositoryUnavailable, err, "failed to copy project bundle")
	}

	if ws.BranchBase == "" {
		ws.BranchBase = "main"
	}

	// Exported bundles usually carry no history of their own.
	if _, err := os.Stat(filepath.Join(ws.Dir, ".git")); os.IsNotExist(err) {
		if err := m.initRepo(ctx, ws); err != nil {
			return err
		}
	}
	return nil
}

// acquireRemote performs a shallow, branch-scoped clone using a tenant-scoped
// token. The token appears only in the clone URL and is scrubbed from any
// error output.
func (m *Manager) acquireRemote(ctx context.Context, ws *Workspace, tenant string) error {
	if ws.BranchBase == "" {
		ws.BranchBase = ws.Ref.Branch
	}
	if ws.BranchBase == "" {
		ws.BranchBase = "main"
	}

	cloneURL := ws.Ref.CloneURL()
	if m.credentials != nil {
		token, err := m.credentials.Token(ctx, tenant, ws.Ref)
		if err != nil {
			return types.WrapError(types.ErrRepositoryAuth, err, "failed to resolve credentials for %s", ws.Ref)
		}
		if token != "" {
			ws.token = token
			cloneURL = strings.Replace(cloneURL, "https://", fmt.Sprintf("https://x-access-token:%s@", token), 1)
		}
	}

	_, err := m.execGit(ctx, ws, "", "clone", "--depth", "1", "--branch", ws.BranchBase, "--single-branch", cloneURL, ws.Dir)
	if err != nil {
		if isAuthFailure(err) {
			return types.WrapError(types.ErrRepositoryAuth, err, "authentication failed cloning %s", ws.Ref)
		}
		return types.WrapError(types.ErrRepositoryUnavailable, err, "failed to clone %s", ws.Ref)
	}
	return nil
}

// initRepo creates a fresh history for a bundle-backed workspace.
func (m *Manager) initRepo(ctx context.Context, ws *Workspace) error {
	steps := [][]string{
		{"init", "--initial-branch", ws.BranchBase},
		{"add", "-A"},
		{"-c", "user.name=" + m.config.AuthorName, "-c", "user.email=" + m.config.AuthorEmail,
			"commit", "--allow-empty", "-m", "import project bundle"},
	}
	for _, args := range steps {
		if _, err := m.execGit(ctx, ws, ws.Dir, args...); err != nil {
			return types.WrapError(types.ErrRepositoryUnavailable, err, "failed to initialize bundle repository")
		}
	}
	return nil
}

// Release deletes the workspace directory. It is idempotent and safe to
// defer immediately after Acquire.
func (m *Manager) Release(ws *Workspace) {
	if ws == nil || ws.released {
		return
	}
	ws.released = true
	ws.token = ""
	if ws.Dir != "" {
		if err := os.RemoveAll(ws.Dir); err != nil {
			log.Printf("[Workspace] Warning: failed to remove %s: %v", ws.Dir, err)
			return
		}
	}
	log.Printf("[Workspace] Released %s", ws.Dir)
}

// copyTree copies src into dst, preserving file modes. Symlinks are skipped;
// exported bundles are plain file trees.
func copyTree(src, dst string) error {
	return filepath.Walk(src, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		switch {
		case info.IsDir():
			return os.MkdirAll(target, info.Mode().Perm())
		case info.Mode().IsRegular():
			return copyFile(p, target, info.Mode().Perm())
		default:
			return nil
		}
	})
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// GenerateBranchName derives a collision-resistant branch name from a goal
// slug: codegen-<slug>-<timestamp>-<random suffix>. Concurrent jobs against
// the same base therefore never race on push.
func GenerateBranchName(slug string) string {
	timestamp := time.Now().Format("20060102-150405")
	suffix := uuid.NewString()[:8]
	return fmt.Sprintf("codegen-%s-%s-%s", slug, timestamp, suffix)
}
