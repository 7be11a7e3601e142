package executor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/buildrhq/codegen/pkg/types"
)

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
}

func readFile(t *testing.T, dir, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
	if err != nil {
		t.Fatalf("read %s: %v", rel, err)
	}
	return string(data)
}

func TestApplyChange_Create(t *testing.T) {
	dir := t.TempDir()

	change := &types.ProposedChange{
		FilePath:  "internal/api/health.go",
		Operation: types.OpCreate,
		Content:   "package api\n",
	}
	if err := applyChange(dir, change); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if got := readFile(t, dir, "internal/api/health.go"); got != "package api\n" {
		t.Errorf("content = %q", got)
	}
}

func TestApplyChange_CreateExistingConflicts(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "main.go", "package main\n")

	change := &types.ProposedChange{FilePath: "main.go", Operation: types.OpCreate, Content: "x"}
	err := applyChange(dir, change)
	if !types.IsKind(err, types.ErrPatchConflict) {
		t.Fatalf("expected patch conflict, got %v", err)
	}
	if got := readFile(t, dir, "main.go"); got != "package main\n" {
		t.Errorf("existing file was clobbered: %q", got)
	}
}

func TestApplyChange_CreateOverwrite(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "main.go", "old\n")

	change := &types.ProposedChange{FilePath: "main.go", Operation: types.OpCreate, Content: "new\n", Overwrite: true}
	if err := applyChange(dir, change); err != nil {
		t.Fatalf("overwrite create failed: %v", err)
	}
	if got := readFile(t, dir, "main.go"); got != "new\n" {
		t.Errorf("content = %q", got)
	}
}

func TestApplyChange_ModifyEdits(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "main.go", "package main\n\nfunc main() {}\n")

	change := &types.ProposedChange{
		FilePath:  "main.go",
		Operation: types.OpModify,
		Edits: []types.Edit{
			{Search: "func main() {}", Replace: "func main() {\n\trun()\n}"},
		},
	}
	if err := applyChange(dir, change); err != nil {
		t.Fatalf("modify failed: %v", err)
	}
	if got := readFile(t, dir, "main.go"); got != "package main\n\nfunc main() {\n\trun()\n}\n" {
		t.Errorf("content = %q", got)
	}
}

func TestApplyChange_ModifyConflicts(t *testing.T) {
	tests := []struct {
		name    string
		content string
		edit    types.Edit
	}{
		{
			name:    "search text missing",
			content: "package main\n",
			edit:    types.Edit{Search: "does not exist", Replace: "x"},
		},
		{
			name:    "search text ambiguous",
			content: "a\na\n",
			edit:    types.Edit{Search: "a", Replace: "b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, dir, "main.go", tt.content)

			change := &types.ProposedChange{
				FilePath:  "main.go",
				Operation: types.OpModify,
				Edits:     []types.Edit{tt.edit},
			}
			err := applyChange(dir, change)
			if !types.IsKind(err, types.ErrPatchConflict) {
				t.Fatalf("expected patch conflict, got %v", err)
			}
			// The conflicting hunk must not be applied partially.
			if got := readFile(t, dir, "main.go"); got != tt.content {
				t.Errorf("file was modified despite the conflict: %q", got)
			}
		})
	}
}

func TestApplyChange_ModifyMultipleEditsAtomicPerFile(t *testing.T) {
	dir := t.TempDir()
	original := "one\ntwo\nthree\n"
	writeFile(t, dir, "list.txt", original)

	// Second hunk misses; the first must not land either.
	change := &types.ProposedChange{
		FilePath:  "list.txt",
		Operation: types.OpModify,
		Edits: []types.Edit{
			{Search: "one", Replace: "ONE"},
			{Search: "missing", Replace: "x"},
		},
	}
	err := applyChange(dir, change)
	if !types.IsKind(err, types.ErrPatchConflict) {
		t.Fatalf("expected patch conflict, got %v", err)
	}
	if got := readFile(t, dir, "list.txt"); got != original {
		t.Errorf("partial hunk application escaped: %q", got)
	}
}

func TestApplyChange_ModifyMissingFile(t *testing.T) {
	dir := t.TempDir()

	change := &types.ProposedChange{FilePath: "ghost.go", Operation: types.OpModify, Content: "x"}
	if err := applyChange(dir, change); !types.IsKind(err, types.ErrPatchConflict) {
		t.Fatalf("expected patch conflict for modify of absent file, got %v", err)
	}
}

func TestApplyChange_Delete(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "old.go", "x")

	change := &types.ProposedChange{FilePath: "old.go", Operation: types.OpDelete}
	if err := applyChange(dir, change); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "old.go")); !os.IsNotExist(err) {
		t.Error("file still exists after delete")
	}

	// Deleting again conflicts: the plan is stale.
	if err := applyChange(dir, change); !types.IsKind(err, types.ErrPatchConflict) {
		t.Fatalf("expected patch conflict for absent delete target, got %v", err)
	}
}

func TestApplyChange_RejectsEscapingPaths(t *testing.T) {
	dir := t.TempDir()

	for _, rel := range []string{"../outside.txt", "/etc/passwd", "a/../../escape"} {
		change := &types.ProposedChange{FilePath: rel, Operation: types.OpCreate, Content: "x"}
		if err := applyChange(dir, change); !types.IsKind(err, types.ErrPatchConflict) {
			t.Errorf("expected %q to be rejected, got %v", rel, err)
		}
	}
}
