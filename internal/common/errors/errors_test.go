// internal/common/errors/errors_test.go
package errors

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

// ==========================
// Classification Tests
// ==========================

func TestFromHTTPStatus(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		expectedCode  ErrorCode
		expectedRetry bool
	}{
		{
			name:          "rate limit is retryable",
			status:        http.StatusTooManyRequests,
			expectedCode:  ErrCodeRateLimited,
			expectedRetry: true,
		},
		{
			name:          "internal server error is retryable",
			status:        http.StatusInternalServerError,
			expectedCode:  ErrCodeRemoteUnavailable,
			expectedRetry: true,
		},
		{
			name:          "bad gateway is retryable",
			status:        http.StatusBadGateway,
			expectedCode:  ErrCodeRemoteUnavailable,
			expectedRetry: true,
		},
		{
			name:          "forbidden is terminal",
			status:        http.StatusForbidden,
			expectedCode:  ErrCodePermission,
			expectedRetry: false,
		},
		{
			name:          "unauthorized is terminal",
			status:        http.StatusUnauthorized,
			expectedCode:  ErrCodePermission,
			expectedRetry: false,
		},
		{
			name:          "not found is terminal",
			status:        http.StatusNotFound,
			expectedCode:  ErrCodeNotFound,
			expectedRetry: false,
		},
		{
			name:          "conflict is duplicate",
			status:        http.StatusConflict,
			expectedCode:  ErrCodeDuplicateEntry,
			expectedRetry: false,
		},
		{
			name:          "request timeout is retryable",
			status:        http.StatusRequestTimeout,
			expectedCode:  ErrCodeTimeout,
			expectedRetry: true,
		},
		{
			name:          "generic 4xx is validation",
			status:        http.StatusExpectationFailed,
			expectedCode:  ErrCodeValidation,
			expectedRetry: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := FromHTTPStatus(tt.status, "body")
			assert.Equal(t, tt.expectedCode, err.Code)
			assert.Equal(t, tt.expectedRetry, err.Retryable)
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.True(t, IsRetryable(NewRateLimitedError("slow down")))
	assert.False(t, IsRetryable(NewValidationError("missing field")))
	assert.True(t, IsRetryable(context.DeadlineExceeded))
	assert.True(t, IsRetryable(fmt.Errorf("dial tcp: connection refused")))
	assert.False(t, IsRetryable(fmt.Errorf("some business failure")))

	// wrapped StandardError keeps its classification
	wrapped := fmt.Errorf("create failed: %w", NewRemoteUnavailableError("503"))
	assert.True(t, IsRetryable(wrapped))
}

func TestAsStandardError(t *testing.T) {
	stdErr := NewPermissionError("nope")
	assert.Same(t, stdErr, AsStandardError(fmt.Errorf("wrap: %w", stdErr)))

	plain := AsStandardError(fmt.Errorf("boom"))
	assert.Equal(t, ErrCodeInternal, plain.Code)
	assert.False(t, plain.Retryable)

	transient := AsStandardError(fmt.Errorf("read tcp: connection reset by peer"))
	assert.Equal(t, ErrCodeNetwork, transient.Code)
	assert.True(t, transient.Retryable)
}

func TestIsRetryableErrorCode(t *testing.T) {
	assert.True(t, IsRetryableErrorCode(ErrCodeRateLimited))
	assert.True(t, IsRetryableErrorCode(ErrCodeRemoteUnavailable))
	assert.True(t, IsRetryableErrorCode(ErrCodeTimeout))
	assert.True(t, IsRetryableErrorCode(ErrCodeNetwork))
	assert.False(t, IsRetryableErrorCode(ErrCodeValidation))
	assert.False(t, IsRetryableErrorCode(ErrCodePermission))
	assert.False(t, IsRetryableErrorCode(ErrCodeUnresolvedBinding))
}

func TestGetErrorCategory(t *testing.T) {
	assert.Equal(t, "SCHEMA", GetErrorCategory(ErrCodeSchemaFetch))
	assert.Equal(t, "VALIDATION", GetErrorCategory(ErrCodeValidation))
	assert.Equal(t, "VALIDATION", GetErrorCategory(ErrCodeDuplicateEntry))
	assert.Equal(t, "TRANSIENT", GetErrorCategory(ErrCodeRateLimited))
	assert.Equal(t, "WORKFLOW", GetErrorCategory(ErrCodeUnresolvedBinding))
	assert.Equal(t, "WORKFLOW", GetErrorCategory(ErrCodeCompensationFailed))
	assert.Equal(t, "PERMISSION", GetErrorCategory(ErrCodePermission))
}

// ==========================
// Enrichment Tests
// ==========================

func TestSuggest(t *testing.T) {
	tests := []struct {
		name     string
		errText  string
		contains string
	}{
		{"mandatory field", "MandatoryError: missing customer", "required fields"},
		{"permission denied", "403 Forbidden: permission denied", "permission"},
		{"not found", "Sales Order SO-001 not found", "Verify the document"},
		{"duplicate", "DuplicateEntryError: unique constraint", "Duplicate entry"},
		{"timeout", "request timeout after 30s", "Connection issue"},
		{"no match", "something else entirely", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			suggestion := Suggest(tt.errText)
			if tt.contains == "" {
				assert.Empty(t, suggestion)
			} else {
				assert.Contains(t, suggestion, tt.contains)
			}
		})
	}
}

func TestEnrich(t *testing.T) {
	stdErr := Enrich(NewValidationError("mandatory field missing"), "Sales Order", "create")

	assert.Equal(t, "Sales Order", stdErr.Metadata["doctype"])
	assert.Equal(t, "create", stdErr.Metadata["operation"])
	assert.Contains(t, stdErr.Metadata["suggestion"], "required fields")
}
