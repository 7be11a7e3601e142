package planner

import (
	"reflect"
	"strings"
	"testing"

	"github.com/buildrhq/codegen/pkg/types"
)

func TestFallbackPlan_Deterministic(t *testing.T) {
	goal := &types.CodegenGoal{
		GoalText: "Add pagination to the orders list",
		RepoRef:  types.LocalRepo("proj-1"),
	}

	first := FallbackPlan(goal)
	second := FallbackPlan(goal)
	if !reflect.DeepEqual(first, second) {
		t.Error("fallback plan must be identical for the same goal")
	}
}

func TestFallbackPlan_Shape(t *testing.T) {
	goal := &types.CodegenGoal{
		GoalText: "Add pagination to the orders list",
		RepoRef:  types.RemoteRepo("acme", "shop", "main"),
	}

	plan := FallbackPlan(goal)

	if len(plan.Diffs) != 1 {
		t.Fatalf("expected a single diff, got %d", len(plan.Diffs))
	}
	diff := plan.Diffs[0]
	if diff.Operation != types.OpCreate {
		t.Errorf("expected an additive create, got %q", diff.Operation)
	}
	if !strings.HasPrefix(diff.FilePath, "docs/codegen/") || !strings.HasSuffix(diff.FilePath, ".md") {
		t.Errorf("unexpected fallback path %q", diff.FilePath)
	}
	if !strings.Contains(diff.Content, goal.GoalText) {
		t.Error("fallback content should record the goal text")
	}
	if !diff.Overwrite {
		t.Error("fallback create must tolerate re-submission of the same goal")
	}
	if !reflect.DeepEqual(plan.FilesTouched, []string{diff.FilePath}) {
		t.Errorf("FilesTouched = %v", plan.FilesTouched)
	}
	if err := plan.Validate(); err != nil {
		t.Errorf("fallback plan must validate: %v", err)
	}
}
