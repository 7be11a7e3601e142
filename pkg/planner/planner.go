package planner

import (
	"context"
	"errors"
	"log"

	"github.com/buildrhq/codegen/pkg/guardrail"
	"github.com/buildrhq/codegen/pkg/types"
)

// Planner produces plans from goals and repository snapshots. It never
// mutates the repository it reads: planning is a pure function of
// (goal, snapshot) apart from the capability's own non-determinism, and two
// dry-run calls over the same snapshot yield the same files_touched set.
type Planner struct {
	capability Capability
	config     Config
}

// New creates a planner. capability may be nil, in which case every plan is
// the deterministic fallback.
func New(capability Capability, config Config) *Planner {
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	return &Planner{capability: capability, config: config}
}

// Plan builds a bounded snapshot of dir and asks the capability for a plan.
// The guardrail validator is consulted informationally: violations are
// attached to the plan so callers see problems before committing to an
// apply, and risk is always computed locally, never taken from the
// capability output.
func (p *Planner) Plan(ctx context.Context, goal *types.CodegenGoal, dir string, validator *guardrail.Validator) (*types.Plan, error) {
	if err := goal.Validate(); err != nil {
		return nil, err
	}

	snap, err := BuildSnapshot(dir, goal.GoalText, p.config)
	if err != nil {
		return nil, types.WrapError(types.ErrRepositoryUnavailable, err, "failed to snapshot repository")
	}

	plan := p.generate(ctx, goal, snap)
	p.finish(plan, validator)
	return plan, nil
}

// generate calls the capability under the configured timeout and parses its
// output, degrading to the fallback plan on unavailability, timeout, or
// unparseable output.
func (p *Planner) generate(ctx context.Context, goal *types.CodegenGoal, snap *Snapshot) *types.Plan {
	if p.capability == nil {
		log.Printf("[Planner] No planning capability configured, using fallback plan")
		return FallbackPlan(goal)
	}

	callCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	text, err := p.capability.GeneratePlan(callCtx, goal.GoalText, snap.Render())
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			log.Printf("[Planner] Capability timed out after %s, using fallback plan", p.config.Timeout)
		} else {
			log.Printf("[Planner] Capability unavailable (%v), using fallback plan", err)
		}
		return FallbackPlan(goal)
	}

	plan, err := parsePlanText(text)
	if err != nil {
		log.Printf("[Planner] Unparseable capability output (%v), using fallback plan", err)
		return FallbackPlan(goal)
	}
	return plan
}

// finish derives the guardrail-relevant shape of the plan: touched files,
// locally computed risk, and informational violations.
func (p *Planner) finish(plan *types.Plan, validator *guardrail.Validator) {
	plan.FilesTouched = plan.TouchedPaths()
	if validator != nil {
		plan.Risk = validator.ClassifyRisk(plan.FilesTouched, plan.TotalDiffBytes())
		plan.Violations = validator.CheckPlan(plan)
	} else {
		plan.Risk = types.RiskLow
	}
}
