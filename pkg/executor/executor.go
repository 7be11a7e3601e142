package executor

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/buildrhq/codegen/pkg/guardrail"
	"github.com/buildrhq/codegen/pkg/types"
	"github.com/buildrhq/codegen/pkg/workspace"
)

// Tracker receives state transitions and exposes the cancellation flag. The
// job registry implements it; a nil tracker disables both.
type Tracker interface {
	Transition(jobID string, state types.JobState, reason string)
	Cancelled(jobID string) bool
}

// Config tunes the apply pipeline.
type Config struct {
	// TestCommand runs inside the workspace after applying. Empty skips the
	// phase.
	TestCommand string        `yaml:"test_command" json:"test_command"`
	TestTimeout time.Duration `yaml:"test_timeout" json:"test_timeout"`
	// FailOnTestFailure enables the fail-closed policy: any failing test
	// rolls the attempt back.
	FailOnTestFailure bool `yaml:"fail_on_test_failure" json:"fail_on_test_failure"`

	// LintCommand runs after testing. Issues are advisory unless
	// LintBlocking is set.
	LintCommand  string        `yaml:"lint_command" json:"lint_command"`
	LintTimeout  time.Duration `yaml:"lint_timeout" json:"lint_timeout"`
	LintBlocking bool          `yaml:"lint_blocking" json:"lint_blocking"`

	// ArtifactDir receives per-job run summaries and stub change requests.
	ArtifactDir      string `yaml:"artifact_dir" json:"artifact_dir"`
	ArtifactsEnabled bool   `yaml:"artifacts_enabled" json:"artifacts_enabled"`

	DraftChangeRequests bool `yaml:"draft_change_requests" json:"draft_change_requests"`
}

// DefaultConfig returns the fail-closed defaults.
func DefaultConfig() Config {
	return Config{
		TestTimeout:       5 * time.Minute,
		FailOnTestFailure: true,
		LintTimeout:       2 * time.Minute,
		ArtifactsEnabled:  true,
	}
}

// Executor runs one accepted plan through the state machine. It holds no
// per-job state; a single executor serves concurrent jobs, each against its
// own isolated workspace.
type Executor struct {
	config     Config
	workspaces *workspace.Manager
	guardrails guardrail.Config
	tracker    Tracker
	remote     ChangeRequestOpener
	local      ChangeRequestOpener
}

// New creates an executor. remote may be nil, in which case remote publishes
// fall back to the stub opener as well.
func New(config Config, workspaces *workspace.Manager, guardrails guardrail.Config, tracker Tracker, remote ChangeRequestOpener) *Executor {
	if config.TestTimeout <= 0 {
		config.TestTimeout = DefaultConfig().TestTimeout
	}
	if config.LintTimeout <= 0 {
		config.LintTimeout = DefaultConfig().LintTimeout
	}
	return &Executor{
		config:     config,
		workspaces: workspaces,
		guardrails: guardrails,
		tracker:    tracker,
		remote:     remote,
		local:      &StubOpener{Dir: config.ArtifactDir},
	}
}

// Execute runs the full state machine for one job and always returns a
// terminal result. The upstream repository is either updated to exactly match
// the plan on a new branch, or left byte-for-byte unchanged.
func (e *Executor) Execute(ctx context.Context, jobID string, goal *types.CodegenGoal, plan *types.Plan) *types.ExecutionResult {
	result := &types.ExecutionResult{StartTime: time.Now()}
	defer func() {
		result.EndTime = time.Now()
		result.Duration = result.EndTime.Sub(result.StartTime)
		e.writeArtifacts(jobID, goal, plan, result)
	}()

	// VALIDATING: the authoritative guardrail run, closing the window
	// between planning and execution. The workspace is never touched on a
	// violation.
	e.transition(jobID, types.JobValidating, "")
	validator, err := guardrail.NewValidator(e.guardrails.Merge(goal.AllowPaths, goal.DenyGlobs))
	if err != nil {
		return e.fail(jobID, result, types.WrapError(types.ErrGuardrailViolation, err, "invalid guardrail policy").
			WithPhase(types.JobValidating))
	}
	if err := guardrail.Err(validator.CheckPlan(plan)); err != nil {
		return e.fail(jobID, result, asEngineError(err).WithPhase(types.JobValidating))
	}

	// BRANCHING
	e.transition(jobID, types.JobBranching, "")
	ws, err := e.workspaces.Acquire(ctx, goal.Tenant, goal.RepoRef, goal.BranchBase)
	if err != nil {
		return e.fail(jobID, result, asEngineError(err).WithPhase(types.JobBranching))
	}
	defer e.workspaces.Release(ws)

	branch, err := e.workspaces.CreateBranch(ctx, ws, goal.Slug())
	if err != nil {
		return e.fail(jobID, result, asEngineError(err).WithPhase(types.JobBranching))
	}
	result.Branch = branch

	// APPLYING: diffs in plan order; the first failure aborts the rest and
	// reverts everything already applied in this attempt.
	e.transition(jobID, types.JobApplying, "")
	for i := range plan.Diffs {
		if err := applyChange(ws.Dir, &plan.Diffs[i]); err != nil {
			return e.rollback(ctx, jobID, ws, result,
				asEngineError(err).WithPhase(types.JobApplying), types.StatusRolledBack)
		}
	}

	if e.cancelled(jobID) {
		return e.rollback(ctx, jobID, ws, result,
			types.NewError(types.ErrCancelled, "job cancelled before testing").WithPhase(types.JobTesting),
			types.StatusRolledBack)
	}

	// TESTING
	e.transition(jobID, types.JobTesting, "")
	if e.config.TestCommand != "" {
		report, timedOut, testErr := runTests(ctx, ws.Dir, e.config.TestCommand, e.config.TestTimeout)
		result.Tests = report
		if timedOut {
			return e.rollback(ctx, jobID, ws, result,
				types.WrapError(types.ErrTimedOut, testErr, "test run exceeded %s", e.config.TestTimeout).
					WithPhase(types.JobTesting), types.StatusFailed)
		}
		if testErr != nil && e.config.FailOnTestFailure {
			return e.rollback(ctx, jobID, ws, result,
				types.WrapError(types.ErrTestFailure, testErr, "%d test(s) failed", report.Failed).
					WithPhase(types.JobTesting).WithFiles(plan.FilesTouched...), types.StatusRolledBack)
		}
	}

	if e.cancelled(jobID) {
		return e.rollback(ctx, jobID, ws, result,
			types.NewError(types.ErrCancelled, "job cancelled before linting").WithPhase(types.JobLinting),
			types.StatusRolledBack)
	}

	// LINTING
	e.transition(jobID, types.JobLinting, "")
	if e.config.LintCommand != "" {
		report, timedOut := runLint(ctx, ws.Dir, e.config.LintCommand, e.config.LintTimeout)
		result.Lint = report
		if timedOut {
			return e.rollback(ctx, jobID, ws, result,
				types.NewError(types.ErrTimedOut, "lint run exceeded %s", e.config.LintTimeout).
					WithPhase(types.JobLinting), types.StatusFailed)
		}
		if !report.OK && e.config.LintBlocking {
			return e.rollback(ctx, jobID, ws, result,
				types.NewError(types.ErrTestFailure, "blocking lint reported %d issue(s)", len(report.Issues)).
					WithPhase(types.JobLinting).WithFiles(plan.FilesTouched...), types.StatusRolledBack)
		}
	} else {
		result.Lint = &types.LintReport{OK: true}
	}

	if e.cancelled(jobID) {
		return e.rollback(ctx, jobID, ws, result,
			types.NewError(types.ErrCancelled, "job cancelled before committing").WithPhase(types.JobCommitting),
			types.StatusRolledBack)
	}

	// COMMITTING
	e.transition(jobID, types.JobCommitting, "")
	if err := e.workspaces.Commit(ctx, ws, commitMessage(goal, plan)); err != nil {
		return e.rollback(ctx, jobID, ws, result, asEngineError(err).WithPhase(types.JobCommitting), types.StatusFailed)
	}

	// PUBLISHING
	e.transition(jobID, types.JobPublishing, "")
	bundle, err := e.workspaces.Push(ctx, ws)
	if err != nil {
		return e.fail(jobID, result, asEngineError(err).WithPhase(types.JobPublishing))
	}

	title, body := describeChange(goal, plan, result)
	opener := e.local
	if !goal.RepoRef.IsLocal() && e.remote != nil {
		opener = e.remote
	}
	url, err := opener.Open(ctx, ws, ws.BranchBase, branch, title, body)
	if err != nil {
		// The branch is already on the upstream; take it back down so a
		// terminal failure leaves the upstream in its pre-job state.
		if undoErr := e.workspaces.UndoPush(ctx, ws); undoErr != nil {
			log.Printf("[Executor] Warning: pushed branch %s retained after publish failure: %v", branch, undoErr)
		}
		return e.fail(jobID, result, asEngineError(err).WithPhase(types.JobPublishing))
	}
	result.ChangeRequest = url
	if url == "" {
		result.ChangeRequest = bundle
	}

	result.Status = types.StatusSuccess
	e.transition(jobID, types.JobDone, "")
	log.Printf("[Executor] Job %s done on branch %s", jobID, branch)
	return result
}

// rollback resets the workspace so the upstream repository stays untouched,
// then records the terminal state.
func (e *Executor) rollback(ctx context.Context, jobID string, ws *workspace.Workspace, result *types.ExecutionResult, cause *types.EngineError, status types.ExecutionStatus) *types.ExecutionResult {
	e.transition(jobID, types.JobRollingBack, cause.Message)
	if err := e.workspaces.Rollback(ctx, ws); err != nil {
		log.Printf("[Executor] Warning: rollback of job %s left workspace dirty: %v", jobID, err)
	}

	result.Status = status
	result.FailedPhase = string(cause.Phase)
	result.Files = cause.Files
	result.Error = cause.Error()

	terminal := types.JobRolledBack
	if status == types.StatusFailed {
		terminal = types.JobFailed
	}
	e.transition(jobID, terminal, cause.Message)
	return result
}

// fail records a terminal failure that never touched the workspace content.
func (e *Executor) fail(jobID string, result *types.ExecutionResult, cause *types.EngineError) *types.ExecutionResult {
	result.Status = types.StatusFailed
	result.FailedPhase = string(cause.Phase)
	result.Files = cause.Files
	result.Error = cause.Error()
	e.transition(jobID, types.JobFailed, cause.Message)
	return result
}

func (e *Executor) transition(jobID string, state types.JobState, reason string) {
	if e.tracker != nil {
		e.tracker.Transition(jobID, state, reason)
	}
}

func (e *Executor) cancelled(jobID string) bool {
	return e.tracker != nil && e.tracker.Cancelled(jobID)
}

// commitMessage derives the commit message from the goal.
func commitMessage(goal *types.CodegenGoal, plan *types.Plan) string {
	if plan.Summary != "" {
		return "codegen: " + plan.Summary + "\n\nGoal: " + goal.GoalText
	}
	return "codegen: " + goal.GoalText
}

// asEngineError coerces any error into an EngineError, preserving typed ones.
func asEngineError(err error) *types.EngineError {
	var ee *types.EngineError
	if errors.As(err, &ee) {
		return ee
	}
	return types.WrapError(types.ErrInternal, err, "unexpected failure")
}
