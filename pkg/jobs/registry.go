// Package jobs records every execution attempt with its full state history,
// for polling and listing. The registry is an injected dependency, never a
// package global, so it can be swapped for a persistent backend.
package jobs

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/buildrhq/codegen/pkg/types"
)

// Registry is the in-memory job tracker. All methods are safe for concurrent
// use; updates are fine-grained, no lock is held across job execution.
type Registry struct {
	mu    sync.RWMutex
	jobs  map[string]*types.Job
	order []string // registration order, oldest first
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]*types.Job)}
}

// Register creates a Job in the pending state and returns its id.
func (r *Registry) Register(goal types.CodegenGoal, plan *types.Plan) *types.Job {
	now := time.Now()
	job := &types.Job{
		ID:        uuid.NewString(),
		Goal:      goal,
		Plan:      copyPlan(plan),
		State:     types.JobPending,
		History:   []types.JobTransition{{State: types.JobPending, At: now}},
		CreatedAt: now,
		UpdatedAt: now,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = job
	r.order = append(r.order, job.ID)
	return snapshot(job)
}

// Transition appends a state change to the job's history. Transitions are
// recorded, not overwritten, so a failed run remains fully inspectable.
// Unknown job ids are ignored.
func (r *Registry) Transition(jobID string, state types.JobState, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return
	}
	now := time.Now()
	job.State = state
	job.UpdatedAt = now
	job.History = append(job.History, types.JobTransition{State: state, At: now, Reason: reason})
}

// SetResult attaches the terminal execution result.
func (r *Registry) SetResult(jobID string, result *types.ExecutionResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job, ok := r.jobs[jobID]; ok {
		job.Result = copyResult(result)
		job.UpdatedAt = time.Now()
	}
}

// Cancel marks a running job as cancelled. The executor observes the flag
// before entering its testing, linting, and committing phases. Cancelling a
// job already in a terminal state has no effect and returns false.
func (r *Registry) Cancel(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok || job.State.Terminal() {
		return false
	}
	job.Cancelled = true
	job.UpdatedAt = time.Now()
	return true
}

// Cancelled implements the executor's Tracker interface.
func (r *Registry) Cancelled(jobID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[jobID]
	return ok && job.Cancelled
}

// Get returns a copy of the job, or false when unknown.
func (r *Registry) Get(jobID string) (*types.Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return nil, false
	}
	return snapshot(job), true
}

// Filter narrows a listing. Zero values match everything.
type Filter struct {
	State  types.JobState
	Tenant string
}

// List returns jobs most recent first, paginated. page is zero-based.
func (r *Registry) List(filter Filter, page, perPage int) []*types.Job {
	if perPage <= 0 {
		perPage = 20
	}
	if page < 0 {
		page = 0
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]*types.Job, 0, len(r.order))
	for i := len(r.order) - 1; i >= 0; i-- {
		job := r.jobs[r.order[i]]
		if filter.State != "" && job.State != filter.State {
			continue
		}
		if filter.Tenant != "" && job.Goal.Tenant != filter.Tenant {
			continue
		}
		matched = append(matched, job)
	}

	start := page * perPage
	if start >= len(matched) {
		return nil
	}
	end := start + perPage
	if end > len(matched) {
		end = len(matched)
	}

	out := make([]*types.Job, 0, end-start)
	for _, job := range matched[start:end] {
		out = append(out, snapshot(job))
	}
	return out
}

// snapshot copies a job, including its plan and result, so callers never
// share the registry's mutable state.
func snapshot(job *types.Job) *types.Job {
	copied := *job
	copied.History = append([]types.JobTransition(nil), job.History...)
	copied.Goal.AllowPaths = append([]string(nil), job.Goal.AllowPaths...)
	copied.Goal.DenyGlobs = append([]string(nil), job.Goal.DenyGlobs...)
	copied.Plan = copyPlan(job.Plan)
	copied.Result = copyResult(job.Result)
	return &copied
}

func copyPlan(plan *types.Plan) *types.Plan {
	if plan == nil {
		return nil
	}
	copied := *plan
	copied.Diffs = append([]types.ProposedChange(nil), plan.Diffs...)
	for i := range copied.Diffs {
		copied.Diffs[i].Edits = append([]types.Edit(nil), plan.Diffs[i].Edits...)
	}
	copied.FilesTouched = append([]string(nil), plan.FilesTouched...)
	copied.TestsTouched = append([]string(nil), plan.TestsTouched...)
	copied.Violations = append([]types.Violation(nil), plan.Violations...)
	return &copied
}

func copyResult(result *types.ExecutionResult) *types.ExecutionResult {
	if result == nil {
		return nil
	}
	copied := *result
	if result.Tests != nil {
		tests := *result.Tests
		copied.Tests = &tests
	}
	if result.Lint != nil {
		lint := *result.Lint
		lint.Issues = append([]string(nil), result.Lint.Issues...)
		copied.Lint = &lint
	}
	copied.Files = append([]string(nil), result.Files...)
	return &copied
}
