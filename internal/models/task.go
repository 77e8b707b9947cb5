package models

import "time"

// TaskStatus represents the lifecycle state of one architecture's build task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusSucceeded TaskStatus = "succeeded"
	TaskStatusFailed    TaskStatus = "failed"
)

// Terminal reports whether the status is a terminal state.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusSucceeded || s == TaskStatusFailed
}

// Task step names, in execution order. A failed task records the step it
// stopped at.
const (
	StepWorkspace = "workspace"
	StepFetch     = "fetch"
	StepAuth      = "auth"
	StepBuild     = "build"
)

// BuildTask is the unit of work that produces one architecture's image.
// Owned exclusively by the coordinator; tasks never share mutable state.
type BuildTask struct {
	Arch     string          `json:"arch"`
	Target   ExecutionTarget `json:"target"`
	ArchTag  string          `json:"arch_tag"`
	Status   TaskStatus      `json:"status"`
	Step     string          `json:"step,omitempty"`
	ExitCode int             `json:"exit_code"`
	Error    string          `json:"error,omitempty"`

	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// RunOutcome describes how far a run got before deciding its exit status.
type RunOutcome string

const (
	OutcomeSucceeded     RunOutcome = "succeeded"
	OutcomeBuildFailed   RunOutcome = "build_failed"
	OutcomePublishFailed RunOutcome = "publish_failed"
	OutcomePruneFailed   RunOutcome = "prune_failed"
	OutcomeAborted       RunOutcome = "aborted"
)

// RunResult aggregates the terminal statuses of one invocation. It exists
// only for the duration of the run and is discarded after reporting.
type RunResult struct {
	RunID   string        `json:"run_id"`
	Image   ImageIdentity `json:"image"`
	Outcome RunOutcome    `json:"outcome"`
	Tasks   []BuildTask   `json:"tasks"`

	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Failed returns the tasks that reached the Failed state.
func (r *RunResult) Failed() []BuildTask {
	var failed []BuildTask
	for _, t := range r.Tasks {
		if t.Status == TaskStatusFailed {
			failed = append(failed, t)
		}
	}
	return failed
}

// AllSucceeded reports whether every task reached the Succeeded state.
// Publication must never begin unless this holds.
func (r *RunResult) AllSucceeded() bool {
	if len(r.Tasks) == 0 {
		return false
	}
	for _, t := range r.Tasks {
		if t.Status != TaskStatusSucceeded {
			return false
		}
	}
	return true
}

// ArchTags returns the per-architecture tags in task order.
func (r *RunResult) ArchTags() []string {
	tags := make([]string, len(r.Tasks))
	for i, t := range r.Tasks {
		tags[i] = t.ArchTag
	}
	return tags
}
