package types

import "time"

// JobState is one state of the executor's finite state machine.
type JobState string

const (
	JobPending     JobState = "pending"
	JobValidating  JobState = "validating"
	JobBranching   JobState = "branching"
	JobApplying    JobState = "applying"
	JobTesting     JobState = "testing"
	JobLinting     JobState = "linting"
	JobCommitting  JobState = "committing"
	JobPublishing  JobState = "publishing"
	JobRollingBack JobState = "rolling_back"
	JobDone        JobState = "done"
	JobFailed      JobState = "failed"
	JobRolledBack  JobState = "rolled_back"
)

// Terminal reports whether the state ends the state machine.
func (s JobState) Terminal() bool {
	switch s {
	case JobDone, JobFailed, JobRolledBack:
		return true
	default:
		return false
	}
}

// JobTransition records one state change. History entries are appended, never
// overwritten, so a failed run remains fully inspectable after the fact.
type JobTransition struct {
	State  JobState  `json:"state"`
	At     time.Time `json:"at"`
	Reason string    `json:"reason,omitempty"`
}

// Job is one execution attempt, synchronous or asynchronous, tracked from
// registration to its terminal result.
type Job struct {
	ID        string           `json:"job_id"`
	Goal      CodegenGoal      `json:"goal"`
	Plan      *Plan            `json:"plan,omitempty"`
	State     JobState         `json:"state"`
	History   []JobTransition  `json:"history"`
	Result    *ExecutionResult `json:"result,omitempty"`
	Cancelled bool             `json:"cancelled,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}
