package planner

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Snapshot is a bounded view of a repository: the full file tree plus the
// contents of files relevant to the goal, truncated to fit the planning
// capability's input limits.
type Snapshot struct {
	Tree  []string
	Files map[string]string
}

// snapshot render markers. The capability prompt references these names.
const (
	treeHeader = "## File tree"
	fileHeader = "## File: "
)

// skipDirs are never walked into when building snapshots.
var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	".idea":        true,
	"dist":         true,
	"build":        true,
}

var (
	encoderOnce sync.Once
	encoder     *tiktoken.Tiktoken
)

// countTokens estimates token usage of text. Falls back to a bytes/4
// heuristic when the encoding is unavailable (offline environments).
func countTokens(text string) int {
	encoderOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			encoder = enc
		}
	})
	if encoder == nil {
		return len(text) / 4
	}
	return len(encoder.Encode(text, nil, nil))
}

// BuildSnapshot walks dir and assembles a goal-relevant snapshot within the
// configured bounds. The tree always lists every file; bodies are included
// for relevant files until the file and token budgets run out.
func BuildSnapshot(dir, goalText string, config Config) (*Snapshot, error) {
	var tree []string
	err := filepath.Walk(dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if skipDirs[info.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		tree = append(tree, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk repository: %w", err)
	}
	sort.Strings(tree)

	snap := &Snapshot{Tree: tree, Files: make(map[string]string)}

	budget := config.MaxSnapshotTokens
	budget -= countTokens(strings.Join(tree, "\n"))

	for _, rel := range rankByRelevance(tree, goalText) {
		if len(snap.Files) >= config.MaxSnapshotFiles || budget <= 0 {
			break
		}
		body, err := readBounded(filepath.Join(dir, filepath.FromSlash(rel)), config.MaxFileBytes)
		if err != nil || body == "" {
			continue
		}
		cost := countTokens(body)
		if cost > budget {
			continue
		}
		budget -= cost
		snap.Files[rel] = body
	}

	return snap, nil
}

// Render formats the snapshot for the capability prompt.
func (s *Snapshot) Render() string {
	var b strings.Builder
	b.WriteString(treeHeader + "\n")
	for _, p := range s.Tree {
		b.WriteString(p)
		b.WriteByte('\n')
	}

	paths := make([]string, 0, len(s.Files))
	for p := range s.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		b.WriteString("\n" + fileHeader + p + "\n")
		b.WriteString(s.Files[p])
		if !strings.HasSuffix(s.Files[p], "\n") {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// rankByRelevance orders tree paths by goal keyword hits, manifest files
// first among equals so the capability always sees project shape.
func rankByRelevance(tree []string, goalText string) []string {
	keywords := keywordsOf(goalText)

	type scored struct {
		path  string
		score int
	}
	ranked := make([]scored, 0, len(tree))
	for _, p := range tree {
		s := 0
		lower := strings.ToLower(p)
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				s += 10
			}
		}
		if isManifest(p) {
			s += 5
		}
		if strings.Contains(lower, "readme") {
			s += 3
		}
		ranked = append(ranked, scored{path: p, score: s})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	out := make([]string, len(ranked))
	for i, r := range ranked {
		out[i] = r.path
	}
	return out
}

func isManifest(p string) bool {
	switch filepath.Base(p) {
	case "go.mod", "package.json", "pyproject.toml", "Cargo.toml", "Makefile":
		return true
	}
	return false
}

// keywordsOf extracts lowercase words of length >= 3 from the goal text.
func keywordsOf(goalText string) []string {
	fields := strings.FieldsFunc(strings.ToLower(goalText), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	})
	keywords := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) >= 3 {
			keywords = append(keywords, f)
		}
	}
	return keywords
}

// readBounded reads at most limit bytes of a file, skipping binary content.
func readBounded(path string, limit int) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if isBinary(data) {
		return "", nil
	}
	if limit > 0 && len(data) > limit {
		data = data[:limit]
	}
	return string(data), nil
}

func isBinary(data []byte) bool {
	n := len(data)
	if n > 512 {
		n = 512
	}
	for _, b := range data[:n] {
		if b == 0 {
			return true
		}
	}
	return false
}
