package types

import (
	"strings"
	"testing"
)

func TestCodegenGoal_Validate(t *testing.T) {
	tests := []struct {
		name        string
		goal        CodegenGoal
		shouldError bool
	}{
		{
			name:        "valid local goal",
			goal:        CodegenGoal{GoalText: "add an endpoint", RepoRef: LocalRepo("proj-1")},
			shouldError: false,
		},
		{
			name:        "valid remote goal",
			goal:        CodegenGoal{GoalText: "add an endpoint", RepoRef: RemoteRepo("acme", "shop", "main")},
			shouldError: false,
		},
		{
			name:        "empty goal text",
			goal:        CodegenGoal{GoalText: "   ", RepoRef: LocalRepo("proj-1")},
			shouldError: true,
		},
		{
			name:        "missing project id",
			goal:        CodegenGoal{GoalText: "do something", RepoRef: RepoRef{Kind: RepoLocal}},
			shouldError: true,
		},
		{
			name:        "missing repo kind",
			goal:        CodegenGoal{GoalText: "do something"},
			shouldError: true,
		},
		{
			name:        "remote without owner",
			goal:        CodegenGoal{GoalText: "do something", RepoRef: RepoRef{Kind: RepoRemote, Repo: "shop"}},
			shouldError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.goal.Validate()
			if (err != nil) != tt.shouldError {
				t.Errorf("Validate() error = %v, shouldError = %v", err, tt.shouldError)
			}
		})
	}
}

func TestCodegenGoal_Slug(t *testing.T) {
	tests := []struct {
		name     string
		goalText string
		expected string
	}{
		{
			name:     "simple sentence",
			goalText: "Add a health endpoint",
			expected: "add-a-health-endpoint",
		},
		{
			name:     "punctuation collapses to single hyphens",
			goalText: "fix: the (broken) login!!",
			expected: "fix-the-broken-login",
		},
		{
			name:     "digits survive",
			goalText: "bump to v2",
			expected: "bump-to-v2",
		},
		{
			name:     "only punctuation falls back",
			goalText: "!!! ???",
			expected: "goal",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			goal := CodegenGoal{GoalText: tt.goalText}
			if got := goal.Slug(); got != tt.expected {
				t.Errorf("Slug() = %q, expected %q", got, tt.expected)
			}
		})
	}
}

func TestCodegenGoal_SlugBounded(t *testing.T) {
	goal := CodegenGoal{GoalText: strings.Repeat("refactor everything ", 20)}
	slug := goal.Slug()

	if len(slug) > maxSlugLen+1 {
		t.Errorf("Slug() length %d exceeds bound %d", len(slug), maxSlugLen)
	}
	if strings.HasSuffix(slug, "-") || strings.HasPrefix(slug, "-") {
		t.Errorf("Slug() %q has leading or trailing hyphen", slug)
	}
}

func TestCodegenGoal_SlugDeterministic(t *testing.T) {
	goal := CodegenGoal{GoalText: "Add rate limiting to the API"}
	if goal.Slug() != goal.Slug() {
		t.Error("Slug() is not deterministic for the same goal text")
	}
}
