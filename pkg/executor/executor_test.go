package executor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildrhq/codegen/pkg/guardrail"
	"github.com/buildrhq/codegen/pkg/jobs"
	"github.com/buildrhq/codegen/pkg/types"
	"github.com/buildrhq/codegen/pkg/workspace"
)

// fixture wires a real executor against an on-disk project bundle. Git must
// be installed; every workspace lives in a temp dir and is released by the
// executor itself.
type fixture struct {
	exec      *Executor
	registry  *jobs.Registry
	bundleDir string // upstream bundle for project "demo"
	pushDir   string // receives bundle descriptors from local pushes
	artifacts string
}

const originalMain = "package main\n\nfunc main() {}\n"

func newFixture(t *testing.T, config Config, guard guardrail.Config) *fixture {
	t.Helper()

	root := t.TempDir()
	bundle := filepath.Join(root, "demo")
	require.NoError(t, os.MkdirAll(bundle, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(bundle, "main.go"), []byte(originalMain), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(bundle, "README.md"), []byte("# demo\n"), 0o644))

	wsConfig := workspace.DefaultConfig()
	wsConfig.BundleDir = t.TempDir()
	manager := workspace.NewManager(wsConfig, workspace.NewDirProjectStore(root), nil)

	if config.ArtifactDir == "" {
		config.ArtifactDir = t.TempDir()
		config.ArtifactsEnabled = true
	}

	registry := jobs.NewRegistry()
	return &fixture{
		exec:      New(config, manager, guard, registry, nil),
		registry:  registry,
		bundleDir: bundle,
		pushDir:   wsConfig.BundleDir,
		artifacts: config.ArtifactDir,
	}
}

func demoGoal() types.CodegenGoal {
	return types.CodegenGoal{
		GoalText: "Add a feature note",
		RepoRef:  types.LocalRepo("demo"),
	}
}

func additivePlan() *types.Plan {
	plan := &types.Plan{
		Summary: "Add a feature note and wire it up",
		Diffs: []types.ProposedChange{
			{FilePath: "docs/feature.md", Operation: types.OpCreate, Content: "# Feature\n"},
			{FilePath: "main.go", Operation: types.OpModify, Edits: []types.Edit{
				{Search: "func main() {}", Replace: "func main() {\n\t// feature\n}"},
			}},
		},
		Risk: types.RiskLow,
	}
	plan.FilesTouched = plan.TouchedPaths()
	return plan
}

func (f *fixture) run(t *testing.T, goal types.CodegenGoal, plan *types.Plan) (*types.Job, *types.ExecutionResult) {
	t.Helper()
	job := f.registry.Register(goal, plan)
	result := f.exec.Execute(context.Background(), job.ID, &goal, plan)
	tracked, ok := f.registry.Get(job.ID)
	require.True(t, ok)
	return tracked, result
}

func (f *fixture) states(job *types.Job) []types.JobState {
	states := make([]types.JobState, 0, len(job.History))
	for _, tr := range job.History {
		states = append(states, tr.State)
	}
	return states
}

func (f *fixture) assertUpstreamUntouched(t *testing.T) {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(f.bundleDir, "main.go"))
	require.NoError(t, err)
	assert.Equal(t, originalMain, string(data), "upstream bundle must stay byte-for-byte unchanged")

	_, err = os.Stat(filepath.Join(f.bundleDir, "docs"))
	assert.True(t, os.IsNotExist(err), "upstream bundle must not receive applied files")
}

func TestExecute_HappyPath(t *testing.T) {
	f := newFixture(t, Config{}, guardrail.DefaultConfig())

	job, result := f.run(t, demoGoal(), additivePlan())

	require.Equal(t, types.StatusSuccess, result.Status, "error: %s", result.Error)
	assert.True(t, strings.HasPrefix(result.Branch, "codegen-add-a-feature-note-"), "branch = %s", result.Branch)
	assert.Equal(t, types.JobDone, job.State)

	// The stub change request carries the plan evidence.
	require.NotEmpty(t, result.ChangeRequest)
	data, err := os.ReadFile(result.ChangeRequest)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Add a feature note")

	// Full phase ordering is recorded in the history.
	expected := []types.JobState{
		types.JobPending, types.JobValidating, types.JobBranching, types.JobApplying,
		types.JobTesting, types.JobLinting, types.JobCommitting, types.JobPublishing, types.JobDone,
	}
	assert.Equal(t, expected, f.states(job))

	f.assertUpstreamUntouched(t)
}

func TestExecute_TestSummaryRecordedOnSuccess(t *testing.T) {
	f := newFixture(t, Config{
		TestCommand:       "true",
		FailOnTestFailure: true,
	}, guardrail.DefaultConfig())

	_, result := f.run(t, demoGoal(), additivePlan())

	require.Equal(t, types.StatusSuccess, result.Status, "error: %s", result.Error)
	require.NotNil(t, result.Tests)
	assert.GreaterOrEqual(t, result.Tests.Passed, 1)
	assert.Zero(t, result.Tests.Failed)
}

func TestExecute_WritesArtifacts(t *testing.T) {
	f := newFixture(t, Config{}, guardrail.DefaultConfig())

	job, result := f.run(t, demoGoal(), additivePlan())
	require.Equal(t, types.StatusSuccess, result.Status)

	dir := filepath.Join(f.artifacts, job.ID)
	for _, name := range []string{"execution.json", "summary.md"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("artifact %s missing: %v", name, err)
		}
	}
}

func TestExecute_GuardrailViolationBlocksWholeSet(t *testing.T) {
	f := newFixture(t, Config{}, guardrail.DefaultConfig())

	goal := demoGoal()
	goal.DenyGlobs = []string{"docs/**"}

	job, result := f.run(t, goal, additivePlan())

	assert.Equal(t, types.StatusFailed, result.Status)
	assert.Equal(t, string(types.JobValidating), result.FailedPhase)
	assert.Contains(t, result.Files, "docs/feature.md")
	assert.Empty(t, result.Branch, "no branch may be created on a validation failure")
	assert.Equal(t, types.JobFailed, job.State)

	f.assertUpstreamUntouched(t)
}

func TestExecute_SensitivePathViolation(t *testing.T) {
	guard := guardrail.DefaultConfig()
	guard.DenyGlobs = guardrail.DefaultSensitiveGlobs()
	f := newFixture(t, Config{}, guard)

	plan := &types.Plan{
		Summary: "sneak in a secret",
		Diffs: []types.ProposedChange{
			{FilePath: ".env", Operation: types.OpCreate, Content: "KEY=1\n"},
		},
	}
	plan.FilesTouched = plan.TouchedPaths()

	_, result := f.run(t, demoGoal(), plan)
	assert.Equal(t, types.StatusFailed, result.Status)
	assert.Contains(t, result.Error, "guardrail")
}

func TestExecute_TestFailureRollsBack(t *testing.T) {
	f := newFixture(t, Config{
		TestCommand:       "false",
		FailOnTestFailure: true,
	}, guardrail.DefaultConfig())

	job, result := f.run(t, demoGoal(), additivePlan())

	assert.Equal(t, types.StatusRolledBack, result.Status)
	assert.Equal(t, string(types.JobTesting), result.FailedPhase)
	require.NotNil(t, result.Tests)
	assert.GreaterOrEqual(t, result.Tests.Failed, 1)
	assert.Equal(t, types.JobRolledBack, job.State)
	assert.Contains(t, f.states(job), types.JobRollingBack)

	f.assertUpstreamUntouched(t)
}

func TestExecute_TestFailureAdvisoryWhenFailOpen(t *testing.T) {
	f := newFixture(t, Config{
		TestCommand:       "false",
		FailOnTestFailure: false,
	}, guardrail.DefaultConfig())

	_, result := f.run(t, demoGoal(), additivePlan())

	assert.Equal(t, types.StatusSuccess, result.Status, "error: %s", result.Error)
	require.NotNil(t, result.Tests)
	assert.GreaterOrEqual(t, result.Tests.Failed, 1)
}

func TestExecute_PatchConflictOnSecondDiffRevertsFirst(t *testing.T) {
	f := newFixture(t, Config{}, guardrail.DefaultConfig())

	plan := &types.Plan{
		Summary: "two diffs, second is stale",
		Diffs: []types.ProposedChange{
			{FilePath: "docs/first.md", Operation: types.OpCreate, Content: "landed first\n"},
			{FilePath: "main.go", Operation: types.OpModify, Edits: []types.Edit{
				{Search: "text that is not in the file", Replace: "x"},
			}},
		},
	}
	plan.FilesTouched = plan.TouchedPaths()

	job, result := f.run(t, demoGoal(), plan)

	assert.Equal(t, types.StatusRolledBack, result.Status)
	assert.Equal(t, string(types.JobApplying), result.FailedPhase)
	assert.Contains(t, result.Files, "main.go")
	assert.Equal(t, types.JobRolledBack, job.State)

	f.assertUpstreamUntouched(t)
}

func TestExecute_BlockingLintRollsBack(t *testing.T) {
	f := newFixture(t, Config{
		LintCommand:  "false",
		LintBlocking: true,
	}, guardrail.DefaultConfig())

	job, result := f.run(t, demoGoal(), additivePlan())

	assert.Equal(t, types.StatusRolledBack, result.Status)
	assert.Equal(t, string(types.JobLinting), result.FailedPhase)
	assert.Equal(t, types.JobRolledBack, job.State)
}

func TestExecute_AdvisoryLintSucceeds(t *testing.T) {
	f := newFixture(t, Config{LintCommand: "false"}, guardrail.DefaultConfig())

	_, result := f.run(t, demoGoal(), additivePlan())

	assert.Equal(t, types.StatusSuccess, result.Status, "error: %s", result.Error)
	require.NotNil(t, result.Lint)
	assert.False(t, result.Lint.OK)
	assert.NotEmpty(t, result.Lint.Issues)
}

func TestExecute_PublishFailureUndoesPush(t *testing.T) {
	// A plain file where the opener wants its directory makes every stub
	// change-request write fail after the push has already happened.
	blocked := filepath.Join(t.TempDir(), "occupied")
	require.NoError(t, os.WriteFile(blocked, []byte("x"), 0o644))

	f := newFixture(t, Config{ArtifactDir: blocked}, guardrail.DefaultConfig())

	job, result := f.run(t, demoGoal(), additivePlan())

	assert.Equal(t, types.StatusFailed, result.Status)
	assert.Equal(t, string(types.JobPublishing), result.FailedPhase)
	assert.Equal(t, types.JobFailed, job.State)
	assert.Empty(t, result.ChangeRequest)

	// The push's bundle descriptor is taken back down with the failure, so
	// nothing published by this job outlives it.
	entries, err := os.ReadDir(f.pushDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "bundle descriptor retained after publish failure")

	f.assertUpstreamUntouched(t)
}

func TestExecute_CancelledJobRollsBack(t *testing.T) {
	f := newFixture(t, Config{}, guardrail.DefaultConfig())

	goal := demoGoal()
	plan := additivePlan()
	job := f.registry.Register(goal, plan)
	require.True(t, f.registry.Cancel(job.ID))

	result := f.exec.Execute(context.Background(), job.ID, &goal, plan)

	assert.Equal(t, types.StatusRolledBack, result.Status)
	assert.Contains(t, result.Error, "cancelled")

	tracked, ok := f.registry.Get(job.ID)
	require.True(t, ok)
	assert.Equal(t, types.JobRolledBack, tracked.State)
}

func TestExecute_ConcurrentJobsIsolated(t *testing.T) {
	f := newFixture(t, Config{}, guardrail.DefaultConfig())

	const n = 3
	var wg sync.WaitGroup
	results := make([]*types.ExecutionResult, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			goal := demoGoal()
			plan := additivePlan()
			job := f.registry.Register(goal, plan)
			results[i] = f.exec.Execute(context.Background(), job.ID, &goal, plan)
		}(i)
	}
	wg.Wait()

	branches := map[string]bool{}
	for i, result := range results {
		require.Equal(t, types.StatusSuccess, result.Status, "job %d error: %s", i, result.Error)
		assert.False(t, branches[result.Branch], "branch %s reused across concurrent jobs", result.Branch)
		branches[result.Branch] = true
	}
}
