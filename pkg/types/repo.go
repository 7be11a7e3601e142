// Package types defines the shared data contracts for the codegen engine:
// repository references, goals, plans, execution results, and jobs. It
// contains no behavior beyond validation and formatting helpers.
package types

import (
	"fmt"
	"strings"
)

// RepoKind discriminates the two repository reference variants.
type RepoKind string

const (
	// RepoLocal references a tenant project exported as a file bundle.
	RepoLocal RepoKind = "local"
	// RepoRemote references a hosted git repository.
	RepoRemote RepoKind = "remote"
)

// RepoRef identifies the repository a goal operates on. It is a tagged
// variant: Kind selects which field set is meaningful. A RepoRef is immutable
// once a goal has been created.
type RepoRef struct {
	Kind RepoKind `json:"kind" yaml:"kind"`

	// Local variant
	ProjectID string `json:"project_id,omitempty" yaml:"project_id,omitempty"`

	// Remote variant
	Owner  string `json:"owner,omitempty" yaml:"owner,omitempty"`
	Repo   string `json:"repo,omitempty" yaml:"repo,omitempty"`
	Branch string `json:"branch,omitempty" yaml:"branch,omitempty"`
}

// LocalRepo returns a RepoRef for a tenant project bundle.
func LocalRepo(projectID string) RepoRef {
	return RepoRef{Kind: RepoLocal, ProjectID: projectID}
}

// RemoteRepo returns a RepoRef for a hosted repository.
func RemoteRepo(owner, repo, branch string) RepoRef {
	return RepoRef{Kind: RepoRemote, Owner: owner, Repo: repo, Branch: branch}
}

// Validate checks that the variant fields match the declared kind.
func (r RepoRef) Validate() error {
	switch r.Kind {
	case RepoLocal:
		if r.ProjectID == "" {
			return fmt.Errorf("local repo ref requires a project_id")
		}
	case RepoRemote:
		if r.Owner == "" || r.Repo == "" {
			return fmt.Errorf("remote repo ref requires owner and repo")
		}
	default:
		return fmt.Errorf("invalid repo kind: %q (must be 'local' or 'remote')", r.Kind)
	}
	return nil
}

// String renders a compact identifier suitable for logs and branch slugs.
func (r RepoRef) String() string {
	switch r.Kind {
	case RepoLocal:
		return "local:" + r.ProjectID
	case RepoRemote:
		s := fmt.Sprintf("remote:%s/%s", r.Owner, r.Repo)
		if r.Branch != "" {
			s += "@" + r.Branch
		}
		return s
	default:
		return "unknown"
	}
}

// IsLocal reports whether the reference points at a tenant project bundle.
func (r RepoRef) IsLocal() bool {
	return r.Kind == RepoLocal
}

// CloneURL returns the https clone URL for a remote reference. The token, if
// any, is injected by the workspace manager at clone time and never stored
// here.
func (r RepoRef) CloneURL() string {
	if r.Kind != RepoRemote {
		return ""
	}
	return fmt.Sprintf("https://github.com/%s/%s.git", r.Owner, strings.TrimSuffix(r.Repo, ".git"))
}
