// Package executor drives the apply pipeline as a finite state machine:
// validate, branch, apply, test, lint, commit, publish, with atomic rollback
// on any failure so no partially-applied state is ever visible outside the
// workspace.
package executor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/buildrhq/codegen/pkg/types"
)

// applyChange applies one plan entry inside the workspace directory. Every
// failure is a typed error; the caller rolls back the whole attempt on the
// first one, so partial application never escapes.
func applyChange(dir string, change *types.ProposedChange) error {
	if err := change.Validate(); err != nil {
		return types.WrapError(types.ErrPatchConflict, err, "invalid diff entry").WithFiles(change.FilePath)
	}

	target, err := resolveInside(dir, change.FilePath)
	if err != nil {
		return types.WrapError(types.ErrPatchConflict, err, "unsafe path").WithFiles(change.FilePath)
	}

	switch change.Operation {
	case types.OpCreate:
		return applyCreate(target, change)
	case types.OpModify:
		return applyModify(target, change)
	case types.OpDelete:
		return applyDelete(target, change)
	default:
		return types.NewError(types.ErrPatchConflict, "unknown operation %q", change.Operation).WithFiles(change.FilePath)
	}
}

func applyCreate(target string, change *types.ProposedChange) error {
	if _, err := os.Stat(target); err == nil && !change.Overwrite {
		return types.NewError(types.ErrPatchConflict, "create target %s already exists", change.FilePath).
			WithFiles(change.FilePath)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return types.WrapError(types.ErrPatchConflict, err, "failed to create parent directory").WithFiles(change.FilePath)
	}
	return writeAtomic(target, change.Content, change.FilePath)
}

// applyModify applies search/replace edits, or a whole-file replacement when
// no edits are present. A search text that is missing or ambiguous signals a
// stale plan and fails with PatchConflict.
func applyModify(target string, change *types.ProposedChange) error {
	data, err := os.ReadFile(target)
	if err != nil {
		return types.WrapError(types.ErrPatchConflict, err, "modify target %s is unreadable", change.FilePath).
			WithFiles(change.FilePath)
	}

	if len(change.Edits) == 0 {
		return writeAtomic(target, change.Content, change.FilePath)
	}

	content := string(data)
	for i, edit := range change.Edits {
		switch count := strings.Count(content, edit.Search); count {
		case 0:
			return types.NewError(types.ErrPatchConflict,
				"edit %d of %s: search text not found (file changed since planning)", i+1, change.FilePath).
				WithFiles(change.FilePath)
		case 1:
			content = strings.Replace(content, edit.Search, edit.Replace, 1)
		default:
			return types.NewError(types.ErrPatchConflict,
				"edit %d of %s: search text appears %d times, must be unique", i+1, change.FilePath, count).
				WithFiles(change.FilePath)
		}
	}
	return writeAtomic(target, content, change.FilePath)
}

func applyDelete(target string, change *types.ProposedChange) error {
	if _, err := os.Stat(target); os.IsNotExist(err) {
		return types.NewError(types.ErrPatchConflict, "delete target %s is already absent", change.FilePath).
			WithFiles(change.FilePath)
	}
	if err := os.Remove(target); err != nil {
		return types.WrapError(types.ErrPatchConflict, err, "failed to delete %s", change.FilePath).
			WithFiles(change.FilePath)
	}
	return nil
}

// writeAtomic writes via a temp file and rename so a crash mid-write never
// leaves a torn file.
func writeAtomic(target, content, relPath string) error {
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o600); err != nil {
		return types.WrapError(types.ErrPatchConflict, err, "failed to write %s", relPath).WithFiles(relPath)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return types.WrapError(types.ErrPatchConflict, err, "failed to finalize %s", relPath).WithFiles(relPath)
	}
	return nil
}

// resolveInside joins rel onto dir and rejects anything escaping it.
func resolveInside(dir, rel string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the workspace", rel)
	}
	return filepath.Join(dir, clean), nil
}
