// Package engine is the external surface of the codegen subsystem: Plan,
// Validate, Apply (sync and async), and job status/listing. All state — the
// job registry, guardrail policy, and collaborators — is injected and passed
// explicitly; the package holds no globals.
package engine

import (
	"context"

	"github.com/buildrhq/codegen/pkg/executor"
	"github.com/buildrhq/codegen/pkg/guardrail"
	"github.com/buildrhq/codegen/pkg/jobs"
	"github.com/buildrhq/codegen/pkg/logging"
	"github.com/buildrhq/codegen/pkg/planner"
	"github.com/buildrhq/codegen/pkg/types"
	"github.com/buildrhq/codegen/pkg/workspace"
)

// Options carries the collaborators consumed through narrow interfaces: the
// planning capability, the tenant project store, remote credentials, and the
// change-request provider. Any of them may be nil; the engine degrades to
// deterministic stubs.
type Options struct {
	Capability  planner.Capability
	Projects    workspace.ProjectStore
	Credentials workspace.CredentialSource
	Remote      executor.ChangeRequestOpener
}

// Engine wires the planner, workspace manager, guardrails, executor, and job
// registry together.
type Engine struct {
	config     Config
	planner    *planner.Planner
	workspaces *workspace.Manager
	executor   *executor.Executor
	registry   *jobs.Registry
	logger     *logging.Logger
}

// New assembles an engine from configuration and collaborators.
func New(config Config, opts Options) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	registry := jobs.NewRegistry()
	workspaces := workspace.NewManager(config.Workspace, opts.Projects, opts.Credentials)
	logger, _ := logging.NewLogger("engine")

	return &Engine{
		config:     config,
		planner:    planner.New(opts.Capability, config.Planner),
		workspaces: workspaces,
		executor:   executor.New(config.Executor, workspaces, config.Guardrails, registry, opts.Remote),
		registry:   registry,
		logger:     logger,
	}, nil
}

// Registry exposes the job tracker, e.g. for a platform to surface job
// listings.
func (e *Engine) Registry() *jobs.Registry {
	return e.registry
}

// Plan produces a plan for the goal from a fresh repository snapshot. The
// target repository is never mutated: the snapshot is taken in a disposable
// workspace, so repeated dry-run calls are side-effect free and yield the
// same files_touched set for an unchanged snapshot.
func (e *Engine) Plan(ctx context.Context, goal *types.CodegenGoal) (*types.Plan, error) {
	if err := goal.Validate(); err != nil {
		return nil, err
	}
	e.logger.Infof("plan requested: repo=%s dry_run=%v", goal.RepoRef, goal.DryRun)

	validator, err := e.validator(goal)
	if err != nil {
		return nil, err
	}

	ws, err := e.workspaces.Acquire(ctx, goal.Tenant, goal.RepoRef, goal.BranchBase)
	if err != nil {
		return nil, err
	}
	defer e.workspaces.Release(ws)

	return e.planner.Plan(ctx, goal, ws.Dir, validator)
}

// Validate checks a candidate path set against the guardrail policy without
// planning or applying anything. An empty violation list means pass.
func (e *Engine) Validate(goal *types.CodegenGoal, candidatePaths []string) ([]types.Violation, error) {
	validator, err := e.validator(goal)
	if err != nil {
		return nil, err
	}
	return validator.CheckSet(candidatePaths, 0), nil
}

// Apply runs the accepted plan synchronously, blocking (bounded by
// SyncTimeout) for the whole state machine, and returns the terminal result.
func (e *Engine) Apply(ctx context.Context, goal *types.CodegenGoal, plan *types.Plan) (*types.ExecutionResult, error) {
	job, err := e.prepare(goal, plan)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(ctx, e.config.SyncTimeout)
	defer cancel()
	return e.run(runCtx, job), nil
}

// ApplyAsync registers the plan as a background job and returns its id
// immediately. Poll via Job.
func (e *Engine) ApplyAsync(ctx context.Context, goal *types.CodegenGoal, plan *types.Plan) (string, error) {
	job, err := e.prepare(goal, plan)
	if err != nil {
		return "", err
	}

	// Detached from the caller's context: the job outlives the request that
	// submitted it, bounded by the same overall timeout.
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.config.SyncTimeout)
	go func() {
		defer cancel()
		e.run(runCtx, job)
	}()
	return job.ID, nil
}

// Job returns the tracked job by id.
func (e *Engine) Job(jobID string) (*types.Job, bool) {
	return e.registry.Get(jobID)
}

// Jobs lists tracked jobs most recent first.
func (e *Engine) Jobs(filter jobs.Filter, page, perPage int) []*types.Job {
	return e.registry.List(filter, page, perPage)
}

// Cancel flags a running job for cancellation. The executor rolls the job
// back at its next checkpoint.
func (e *Engine) Cancel(jobID string) bool {
	return e.registry.Cancel(jobID)
}

// prepare validates inputs and registers the job.
func (e *Engine) prepare(goal *types.CodegenGoal, plan *types.Plan) (*types.Job, error) {
	if err := goal.Validate(); err != nil {
		return nil, err
	}
	if goal.DryRun {
		return nil, types.NewError(types.ErrGuardrailViolation,
			"goal is marked dry-run; resubmit with dry_run=false to apply")
	}
	if err := plan.Validate(); err != nil {
		return nil, types.WrapError(types.ErrGuardrailViolation, err, "plan is not applicable")
	}
	job := e.registry.Register(*goal, plan)
	e.logger.Infof("job %s registered: repo=%s files=%d risk=%s", job.ID, goal.RepoRef, len(plan.FilesTouched), plan.Risk)
	return job, nil
}

// run drives the executor and records the terminal result.
func (e *Engine) run(ctx context.Context, job *types.Job) *types.ExecutionResult {
	result := e.executor.Execute(ctx, job.ID, &job.Goal, job.Plan)
	e.registry.SetResult(job.ID, result)
	e.logger.Infof("job %s finished: status=%s branch=%s", job.ID, result.Status, result.Branch)
	return result
}

// validator compiles the engine policy merged with the goal's allow/deny
// lists.
func (e *Engine) validator(goal *types.CodegenGoal) (*guardrail.Validator, error) {
	validator, err := guardrail.NewValidator(e.config.Guardrails.Merge(goal.AllowPaths, goal.DenyGlobs))
	if err != nil {
		return nil, types.WrapError(types.ErrGuardrailViolation, err, "invalid guardrail policy")
	}
	return validator, nil
}
