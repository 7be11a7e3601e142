package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/buildrhq/codegen/pkg/types"
)

// DirProjectStore serves exported project bundles from a directory tree laid
// out as <root>/<tenant>/<project-id>. It is the default store for the
// headless CLI and for tests; the platform substitutes its own export
// pipeline in production.
type DirProjectStore struct {
	root string
}

// NewDirProjectStore creates a store rooted at dir.
func NewDirProjectStore(dir string) *DirProjectStore {
	return &DirProjectStore{root: dir}
}

// ExportBundle resolves the bundle directory for a project. Tenant may be
// empty, in which case projects live directly under the root.
func (s *DirProjectStore) ExportBundle(_ context.Context, tenant, projectID string) (string, error) {
	dir := filepath.Join(s.root, tenant, projectID)
	info, err := os.Stat(dir)
	if err != nil {
		return "", fmt.Errorf("project bundle %s not found: %w", projectID, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("project bundle %s is not a directory", projectID)
	}
	return dir, nil
}

// StaticCredentials returns the same token for every tenant and reference.
type StaticCredentials struct {
	token string
}

// NewStaticCredentials wraps a fixed token, typically for single-tenant CLI
// use.
func NewStaticCredentials(token string) *StaticCredentials {
	return &StaticCredentials{token: token}
}

// Token implements CredentialSource.
func (c *StaticCredentials) Token(context.Context, string, types.RepoRef) (string, error) {
	return c.token, nil
}

// EnvCredentials resolves tokens from an environment variable, following the
// usual CI convention.
type EnvCredentials struct {
	variable string
}

// NewEnvCredentials reads tokens from the named environment variable,
// defaulting to GITHUB_TOKEN.
func NewEnvCredentials(variable string) *EnvCredentials {
	if variable == "" {
		variable = "GITHUB_TOKEN"
	}
	return &EnvCredentials{variable: variable}
}

// Token implements CredentialSource.
func (c *EnvCredentials) Token(context.Context, string, types.RepoRef) (string, error) {
	return os.Getenv(c.variable), nil
}
