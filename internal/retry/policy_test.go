// internal/retry/policy_test.go
package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stderrors "erpnext-bridge/internal/common/errors"
	"erpnext-bridge/internal/common/logger"
	"erpnext-bridge/internal/models"
)

// ==========================
// Test Helper Functions
// ==========================

func newTestPolicy(t *testing.T, maxRetries int, sleeps *[]time.Duration) *Policy {
	return NewPolicy(maxRetries, time.Second, 30*time.Second, logger.NewTestLogger(t),
		WithSleep(func(ctx context.Context, d time.Duration) error {
			if sleeps != nil {
				*sleeps = append(*sleeps, d)
			}
			return nil
		}),
		WithJitter(func(max time.Duration) time.Duration { return 0 }),
	)
}

func failNTimes(n int, err error) Operation {
	calls := 0
	return func(ctx context.Context) (string, map[string]interface{}, error) {
		calls++
		if calls <= n {
			return "", nil, err
		}
		return "DOC-001", map[string]interface{}{"name": "DOC-001"}, nil
	}
}

// ==========================
// Execute Tests
// ==========================

func TestPolicy_FirstAttemptSuccess(t *testing.T) {
	policy := newTestPolicy(t, 3, nil)

	outcome := policy.Execute(context.Background(), "create", nil, failNTimes(0, nil))

	assert.Equal(t, models.OutcomeSuccess, outcome.Status)
	assert.Equal(t, "DOC-001", outcome.RemoteID)
	assert.Equal(t, 1, outcome.Attempts)
	assert.False(t, outcome.Retried)
}

func TestPolicy_RetryableFailureThenSuccess(t *testing.T) {
	var sleeps []time.Duration
	policy := newTestPolicy(t, 3, &sleeps)

	outcome := policy.Execute(context.Background(), "create", nil,
		failNTimes(2, stderrors.NewRemoteUnavailableError("status 503")))

	assert.Equal(t, models.OutcomeSuccess, outcome.Status)
	assert.Equal(t, 3, outcome.Attempts)
	assert.True(t, outcome.Retried)
	assert.Len(t, sleeps, 2)
}

func TestPolicy_TerminalFailureNoRetry(t *testing.T) {
	var sleeps []time.Duration
	policy := newTestPolicy(t, 3, &sleeps)
	input := map[string]interface{}{"customer_name": ""}

	outcome := policy.Execute(context.Background(), "create", input,
		failNTimes(99, stderrors.NewValidationError("customer_name is mandatory")))

	assert.Equal(t, models.OutcomeTerminalFailure, outcome.Status)
	assert.Equal(t, 1, outcome.Attempts)
	assert.Empty(t, sleeps)
	assert.Equal(t, string(stderrors.ErrCodeValidation), outcome.ErrorCode)
	assert.Equal(t, input, outcome.Input)
	assert.Contains(t, outcome.Suggestion, "required fields")
	assert.False(t, outcome.Retried)
}

func TestPolicy_ExhaustedRetriesAttemptBudget(t *testing.T) {
	var sleeps []time.Duration
	policy := newTestPolicy(t, 3, &sleeps)

	outcome := policy.Execute(context.Background(), "create", nil,
		failNTimes(99, stderrors.NewRemoteUnavailableError("status 503")))

	assert.Equal(t, models.OutcomeTerminalFailure, outcome.Status)
	// exactly max retries beyond the first attempt
	assert.Equal(t, 4, outcome.Attempts)
	assert.Len(t, sleeps, 3)
	assert.Equal(t, string(stderrors.ErrCodeRemoteUnavailable), outcome.ErrorCode)
	assert.Contains(t, outcome.RawError, "status 503")
	assert.True(t, outcome.Retried)
}

func TestPolicy_BackoffScheduleNonDecreasingAndCapped(t *testing.T) {
	policy := NewPolicy(10, time.Second, 8*time.Second, logger.NewTestLogger(t))

	var prev time.Duration
	for retry := 0; retry < 10; retry++ {
		delay := policy.DelayFor(retry)
		assert.GreaterOrEqual(t, delay, prev, "delay for retry %d decreased", retry)
		assert.LessOrEqual(t, delay, 8*time.Second)
		prev = delay
	}
	assert.Equal(t, time.Second, policy.DelayFor(0))
	assert.Equal(t, 2*time.Second, policy.DelayFor(1))
	assert.Equal(t, 4*time.Second, policy.DelayFor(2))
	assert.Equal(t, 8*time.Second, policy.DelayFor(3))
	assert.Equal(t, 8*time.Second, policy.DelayFor(9))
}

func TestPolicy_JitterStaysWithinDelay(t *testing.T) {
	policy := NewPolicy(3, time.Second, 30*time.Second, logger.NewTestLogger(t))

	for i := 0; i < 100; i++ {
		j := policy.jitter(time.Second)
		assert.GreaterOrEqual(t, j, time.Duration(0))
		assert.Less(t, j, time.Second)
	}
}

func TestPolicy_CancelledContextStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := NewPolicy(5, time.Second, 30*time.Second, logger.NewTestLogger(t),
		WithSleep(func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		}),
		WithJitter(func(max time.Duration) time.Duration { return 0 }),
	)

	outcome := policy.Execute(ctx, "create", nil,
		failNTimes(99, stderrors.NewRemoteUnavailableError("status 503")))

	assert.Equal(t, models.OutcomeRetryableFailure, outcome.Status)
	assert.Equal(t, string(stderrors.ErrCodeCancelled), outcome.ErrorCode)
	assert.Equal(t, 1, outcome.Attempts)
	assert.Contains(t, outcome.RawError, context.Canceled.Error())
}

func TestPolicy_PlainTransportErrorIsRetried(t *testing.T) {
	var sleeps []time.Duration
	policy := newTestPolicy(t, 2, &sleeps)

	outcome := policy.Execute(context.Background(), "create", nil,
		failNTimes(1, errors.New("dial tcp: connection refused")))

	assert.Equal(t, models.OutcomeSuccess, outcome.Status)
	assert.Equal(t, 2, outcome.Attempts)
	require.Len(t, sleeps, 1)
	assert.Equal(t, time.Second, sleeps[0])
}
