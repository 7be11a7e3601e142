package types

import "time"

// ExecutionStatus is the terminal outcome of one execution attempt.
type ExecutionStatus string

const (
	StatusSuccess    ExecutionStatus = "success"
	StatusFailed     ExecutionStatus = "failed"
	StatusRolledBack ExecutionStatus = "rolled_back"
)

// TestReport captures the test run inside the workspace.
type TestReport struct {
	Passed   int           `json:"passed"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration"`
	Output   string        `json:"output,omitempty"`
}

// LintReport captures the lint run inside the workspace. Issues are advisory
// unless the engine is configured with blocking lint.
type LintReport struct {
	OK     bool     `json:"ok"`
	Issues []string `json:"issues,omitempty"`
}

// ExecutionResult is produced once per execution attempt and immutable after
// creation. Every terminal failure names the failing phase and the implicated
// files so an operator can adjust the goal or guardrails and resubmit.
type ExecutionResult struct {
	Status ExecutionStatus `json:"status"`
	Branch string          `json:"branch,omitempty"`
	Tests  *TestReport     `json:"tests,omitempty"`
	Lint   *LintReport     `json:"lint,omitempty"`

	// ChangeRequest is the opened change-request URL for remote repositories,
	// or the path of the stub descriptor for local-only repositories.
	ChangeRequest string `json:"pr_url_or_stub,omitempty"`

	FailedPhase string   `json:"failed_phase,omitempty"`
	Files       []string `json:"files,omitempty"`
	Error       string   `json:"error,omitempty"`

	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
}
