package planner

import (
	"fmt"
	"strings"

	"github.com/buildrhq/codegen/pkg/types"
)

// FallbackPlan is the degraded-mode plan produced when the planning
// capability is unavailable or times out: a single additive file documenting
// the goal. It is fully deterministic for a given goal so the rest of the
// pipeline remains exercisable without a live dependency.
func FallbackPlan(goal *types.CodegenGoal) *types.Plan {
	slug := goal.Slug()
	path := fmt.Sprintf("docs/codegen/%s.md", slug)

	var body strings.Builder
	body.WriteString("# Pending goal\n\n")
	body.WriteString("The planning capability was unavailable when this goal was submitted.\n")
	body.WriteString("This file records the goal so the request is not lost.\n\n")
	body.WriteString("## Goal\n\n")
	body.WriteString(goal.GoalText)
	body.WriteString("\n\n## Repository\n\n")
	body.WriteString(goal.RepoRef.String())
	body.WriteString("\n")

	plan := &types.Plan{
		Summary: fmt.Sprintf("Record goal %q for later planning (degraded mode)", slug),
		Diffs: []types.ProposedChange{{
			FilePath:  path,
			Operation: types.OpCreate,
			Content:   body.String(),
			Overwrite: true,
			Rationale: "planning capability unavailable; recording the goal additively",
		}},
	}
	plan.FilesTouched = plan.TouchedPaths()
	return plan
}
