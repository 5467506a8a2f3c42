// Package errors provides standardized error handling for remote document
// store operations.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeSchemaFetch ErrorCode = "SCHEMA_FETCH_ERROR"

	ErrCodeValidation     ErrorCode = "VALIDATION_ERROR"
	ErrCodePermission     ErrorCode = "PERMISSION_ERROR"
	ErrCodeNotFound       ErrorCode = "NOT_FOUND"
	ErrCodeDuplicateEntry ErrorCode = "DUPLICATE_ENTRY"

	ErrCodeRateLimited       ErrorCode = "RATE_LIMITED"
	ErrCodeRemoteUnavailable ErrorCode = "REMOTE_UNAVAILABLE"
	ErrCodeTimeout           ErrorCode = "TIMEOUT"
	ErrCodeNetwork           ErrorCode = "NETWORK_ERROR"
	// ErrCodeCancelled marks work stopped by the caller, not the remote.
	ErrCodeCancelled ErrorCode = "CANCELLED"

	ErrCodeUnresolvedBinding  ErrorCode = "UNRESOLVED_BINDING"
	ErrCodeCompensationFailed ErrorCode = "COMPENSATION_FAILED"
	ErrCodeSkillNotFound      ErrorCode = "SKILL_NOT_FOUND"

	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// WithMetadata attaches a metadata entry, allocating the map on first use.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// ==========================
// 2. Error Constructors
// ==========================

// NewSchemaFetchError creates a schema metadata fetch error. Retryability
// follows the underlying cause.
func NewSchemaFetchError(doctype string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSchemaFetch,
		Message:   fmt.Sprintf("Failed to fetch schema for DocType '%s'", doctype),
		Details:   err.Error(),
		Retryable: IsRetryable(err),
		Timestamp: time.Now().UTC(),
	}
}

// NewValidationError creates a non-retryable remote validation error.
func NewValidationError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidation,
		Message:   "Remote store rejected the document",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewPermissionError creates a non-retryable permission error.
func NewPermissionError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodePermission,
		Message:   "Insufficient permission for remote operation",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewNotFoundError creates a non-retryable not-found error.
func NewNotFoundError(doctype, name string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotFound,
		Message:   "Document not found",
		Details:   fmt.Sprintf("doctype: %s, name: %s", doctype, name),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewDuplicateEntryError creates a non-retryable duplicate entry error.
func NewDuplicateEntryError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeDuplicateEntry,
		Message:   "Duplicate entry",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewRateLimitedError creates a retryable rate-limit error.
func NewRateLimitedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeRateLimited,
		Message:   "Remote store rate limit hit",
		Details:   details,
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewRemoteUnavailableError creates a retryable 5xx-class error.
func NewRemoteUnavailableError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeRemoteUnavailable,
		Message:   "Remote store unavailable",
		Details:   details,
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewOperationTimeoutError creates a retryable per-call timeout error.
func NewOperationTimeoutError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeTimeout,
		Message:   fmt.Sprintf("Operation '%s' timed out", operation),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewNetworkError creates a retryable transport error.
func NewNetworkError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeNetwork,
		Message:   "Network error reaching remote store",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewUnresolvedBindingError creates a non-retryable workflow configuration
// error for a step input referencing an output that does not exist.
func NewUnresolvedBindingError(step, reference string) *StandardError {
	return &StandardError{
		Code:      ErrCodeUnresolvedBinding,
		Message:   fmt.Sprintf("Step '%s' references unresolved binding '%s'", step, reference),
		Details:   "binding must name a declared input or an earlier step's saved output",
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewCompensationFailedError records a failed compensation. Non-fatal by
// contract: rollback continues past it.
func NewCompensationFailedError(step string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeCompensationFailed,
		Message:   fmt.Sprintf("Compensation for step '%s' failed", step),
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewSkillNotFoundError creates a non-retryable unknown-skill error.
func NewSkillNotFoundError(name string) *StandardError {
	return &StandardError{
		Code:      ErrCodeSkillNotFound,
		Message:   fmt.Sprintf("Skill not found: %s", name),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidInputError creates a non-retryable programmer error surfaced
// at call time.
func NewInvalidInputError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidInput,
		Message:   "Invalid input",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInternalError wraps an unexpected failure.
func NewInternalError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. HTTP Status Classification
// ==========================

// FromHTTPStatus normalizes a remote HTTP failure into a StandardError.
// Rate limit and 5xx are retryable; every other 4xx is terminal.
func FromHTTPStatus(status int, body string) *StandardError {
	switch {
	case status == http.StatusTooManyRequests:
		return NewRateLimitedError(body)
	case status >= 500:
		return NewRemoteUnavailableError(fmt.Sprintf("status %d: %s", status, body))
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return NewPermissionError(body)
	case status == http.StatusNotFound:
		return &StandardError{
			Code:      ErrCodeNotFound,
			Message:   "Remote resource not found",
			Details:   body,
			Retryable: false,
			Timestamp: time.Now().UTC(),
		}
	case status == http.StatusConflict:
		return NewDuplicateEntryError(body)
	case status == http.StatusRequestTimeout:
		return &StandardError{
			Code:      ErrCodeTimeout,
			Message:   "Remote request timed out",
			Details:   body,
			Retryable: true,
			Timestamp: time.Now().UTC(),
		}
	default:
		err := NewValidationError(body)
		err.WithMetadata("status", status)
		return err
	}
}

// ==========================
// 4. Utility Functions
// ==========================

// IsRetryable reports whether an error should be retried: a retryable
// StandardError, a deadline expiry, or anything else that smells like a
// transport failure.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr.Retryable
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "deadline exceeded") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "no such host")
}

// AsStandardError normalizes any error into a StandardError.
func AsStandardError(err error) *StandardError {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr
	}
	out := NewInternalError(err)
	out.Retryable = IsRetryable(err)
	if out.Retryable {
		out.Code = ErrCodeNetwork
		out.Message = "Network error reaching remote store"
	}
	return out
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	switch code {
	case ErrCodeRateLimited, ErrCodeRemoteUnavailable, ErrCodeTimeout, ErrCodeNetwork, ErrCodeCancelled:
		return true
	default:
		return false
	}
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "SCHEMA"):
		return "SCHEMA"
	case strings.Contains(codeStr, "VALIDATION") || strings.Contains(codeStr, "INVALID") || strings.Contains(codeStr, "DUPLICATE"):
		return "VALIDATION"
	case strings.Contains(codeStr, "PERMISSION"):
		return "PERMISSION"
	case strings.Contains(codeStr, "RATE") || strings.Contains(codeStr, "UNAVAILABLE") || strings.Contains(codeStr, "TIMEOUT") || strings.Contains(codeStr, "NETWORK") || strings.Contains(codeStr, "CANCELLED"):
		return "TRANSIENT"
	case strings.Contains(codeStr, "BINDING") || strings.Contains(codeStr, "COMPENSATION") || strings.Contains(codeStr, "SKILL"):
		return "WORKFLOW"
	default:
		return "OTHER"
	}
}
