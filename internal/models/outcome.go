// internal/models/outcome.go
package models

import "time"

// OutcomeStatus tags an OperationOutcome variant.
type OutcomeStatus string

const (
	OutcomeSuccess          OutcomeStatus = "success"
	OutcomeRetryableFailure OutcomeStatus = "retryable_failure"
	OutcomeTerminalFailure  OutcomeStatus = "terminal_failure"
)

// OperationOutcome is the result of one remote operation after the retry
// policy has run its course. Immutable once created.
type OperationOutcome struct {
	Status   OutcomeStatus `json:"status"`
	RemoteID string        `json:"remote_id,omitempty"`
	// Returned holds the store's view of the document on success.
	Returned map[string]interface{} `json:"returned,omitempty"`

	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	Suggestion   string `json:"suggestion,omitempty"`
	// RawError is the remote-supplied structured error body, kept verbatim
	// so callers can distinguish "never worked" from "flaky but exhausted".
	RawError string `json:"raw_error,omitempty"`
	// Input is the final payload that was dispatched, after autofill.
	Input map[string]interface{} `json:"input,omitempty"`

	Attempts int           `json:"attempts"`
	Elapsed  time.Duration `json:"elapsed_ms"`
	// Retried is true when the operation succeeded only after at least one
	// retryable failure.
	Retried bool `json:"retried,omitempty"`
}

// Succeeded reports whether the outcome is a success.
func (o OperationOutcome) Succeeded() bool {
	return o.Status == OutcomeSuccess
}

// BatchItem pairs one input record with its outcome.
type BatchItem struct {
	Index    int              `json:"index"`
	ClientID string           `json:"client_id,omitempty"`
	Record   *Record          `json:"-"`
	Outcome  OperationOutcome `json:"outcome"`
}

// BatchReport is the reconciled result of one bulk run. Items are indexed
// by original input order regardless of completion order.
type BatchReport struct {
	BatchID   string      `json:"batch_id"`
	DocType   string      `json:"doctype"`
	Mode      string      `json:"mode"`
	Items     []BatchItem `json:"items"`
	Succeeded int         `json:"succeeded"`
	// RetriedThenSucceeded counts successes that needed at least one retry.
	RetriedThenSucceeded int           `json:"retried_then_succeeded"`
	Failed               int           `json:"failed"`
	Elapsed              time.Duration `json:"elapsed_ms"`
}

// ProgressEvent is published once per completed item, in completion order.
type ProgressEvent struct {
	BatchID   string        `json:"batch_id"`
	Index     int           `json:"index"`
	ClientID  string        `json:"client_id,omitempty"`
	Status    OutcomeStatus `json:"status"`
	RemoteID  string        `json:"remote_id,omitempty"`
	Error     string        `json:"error,omitempty"`
	Completed int           `json:"completed"`
	Total     int           `json:"total"`
	Timestamp time.Time     `json:"timestamp"`
}
