// internal/models/workflow.go
package models

import "time"

// RunState is the lifecycle state of a workflow run.
type RunState string

const (
	RunStatePending   RunState = "pending"
	RunStateRunning   RunState = "running"
	RunStateCompleted RunState = "completed"
	RunStateFailed    RunState = "failed"
)

// WorkflowStep is a named remote operation template. Arguments may contain
// ${var} placeholders resolved from the run context before dispatch.
type WorkflowStep struct {
	Name      string                 `json:"step"`
	Tool      string                 `json:"tool"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
	// SaveAs names the context key the step's output is stored under.
	// Defaults to the step name when empty.
	SaveAs string `json:"save_as,omitempty"`
	// Compensate is the operation executed during rollback after this step
	// has succeeded and a later step terminally fails.
	Compensate *CompensationAction `json:"compensate,omitempty"`
	// ContinueOnError lets the run proceed past a terminal failure of this
	// step instead of halting and compensating.
	ContinueOnError bool `json:"continue_on_error,omitempty"`
}

// CompensationAction is the declared undo for a succeeded step.
type CompensationAction struct {
	Tool      string                 `json:"tool"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
}

// StepResult records one step execution within a run.
type StepResult struct {
	Step    string           `json:"step"`
	Tool    string           `json:"tool"`
	Outcome OperationOutcome `json:"outcome"`
	// Output is the resolved value saved into the run context.
	Output map[string]interface{} `json:"output,omitempty"`
}

// CompensationResult records one compensation execution during rollback.
// A compensation failure is recorded, never fatal.
type CompensationResult struct {
	Step  string `json:"step"`
	Tool  string `json:"tool"`
	Done  bool   `json:"done"`
	Error string `json:"error,omitempty"`
}

// WorkflowRun is the full record of one workflow execution. Steps execute
// strictly in declared order; a failed run keeps its partial results
// visible for manual remediation.
type WorkflowRun struct {
	RunID         string                 `json:"run_id"`
	Skill         string                 `json:"skill,omitempty"`
	State         RunState               `json:"state"`
	Steps         []StepResult           `json:"steps"`
	FailedStep    int                    `json:"failed_step"` // index into Steps, -1 when none
	Compensations []CompensationResult   `json:"compensations,omitempty"`
	Context       map[string]interface{} `json:"context,omitempty"`
	StartedAt     time.Time              `json:"started_at"`
	FinishedAt    time.Time              `json:"finished_at"`
}

// Succeeded reports whether every step of the run completed.
func (r *WorkflowRun) Succeeded() bool {
	return r.State == RunStateCompleted
}
