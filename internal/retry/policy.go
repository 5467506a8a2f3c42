// Package retry wraps remote operations with bounded exponential backoff.
// Failures are classified as retryable or terminal; exhausted retries come
// back as an enriched terminal outcome carrying the raw remote error, the
// final input, the attempt count, and the total elapsed time.
package retry

import (
	"context"
	"math/rand"
	"sync"
	"time"

	stderrors "erpnext-bridge/internal/common/errors"
	"erpnext-bridge/internal/common/logger"
	"erpnext-bridge/internal/common/metrics"
	"erpnext-bridge/internal/models"
)

// Operation is one remote call. On success it returns the remote-assigned
// document name and the store's view of the document.
type Operation func(ctx context.Context) (string, map[string]interface{}, error)

// Policy executes operations with capped exponential backoff and uniform
// jitter. Safe for concurrent use.
type Policy struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	logger     logger.Logger

	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(max time.Duration) time.Duration
}

type PolicyOption func(*Policy)

// WithSleep overrides the backoff sleep, for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) PolicyOption {
	return func(p *Policy) { p.sleep = sleep }
}

// WithJitter overrides the jitter source, for tests.
func WithJitter(jitter func(max time.Duration) time.Duration) PolicyOption {
	return func(p *Policy) { p.jitter = jitter }
}

func NewPolicy(maxRetries int, baseDelay, maxDelay time.Duration, log logger.Logger, opts ...PolicyOption) *Policy {
	p := &Policy{
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   maxDelay,
		logger:     log.WithFields(map[string]interface{}{"component": "retry"}),
		sleep:      sleepContext,
		jitter:     defaultJitter(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// defaultJitter draws uniformly from [0, max) with its own locked source so
// concurrent workers do not contend on the global one.
func defaultJitter() func(max time.Duration) time.Duration {
	var mu sync.Mutex
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	return func(max time.Duration) time.Duration {
		if max <= 0 {
			return 0
		}
		mu.Lock()
		defer mu.Unlock()
		return time.Duration(rng.Int63n(int64(max)))
	}
}

// DelayFor returns the capped exponential backoff before the given retry,
// excluding jitter. Retry 0 waits the base delay.
func (p *Policy) DelayFor(retry int) time.Duration {
	delay := p.baseDelay
	for i := 0; i < retry; i++ {
		delay *= 2
		if delay >= p.maxDelay {
			return p.maxDelay
		}
	}
	if delay > p.maxDelay {
		return p.maxDelay
	}
	return delay
}

// Execute runs the operation with up to maxRetries retries beyond the first
// attempt. The input map is attached to failure outcomes verbatim.
func (p *Policy) Execute(ctx context.Context, operation string, input map[string]interface{}, op Operation) models.OperationOutcome {
	start := time.Now()
	attempts := 0

	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return p.interruptedOutcome(ctx.Err(), input, attempts, start)
		}

		attempts++
		remoteID, returned, err := op(ctx)
		if err == nil {
			metrics.RemoteOperationsTotal.WithLabelValues(operation, "success").Inc()
			return models.OperationOutcome{
				Status:   models.OutcomeSuccess,
				RemoteID: remoteID,
				Returned: returned,
				Attempts: attempts,
				Elapsed:  time.Since(start),
				Retried:  attempt > 0,
			}
		}

		lastErr = err
		if !stderrors.IsRetryable(err) || attempt == p.maxRetries {
			break
		}

		delay := p.DelayFor(attempt)
		wait := delay + p.jitter(delay)
		metrics.RetryAttemptsTotal.WithLabelValues(operation).Inc()
		p.logger.Warn("retrying remote operation", map[string]interface{}{
			"operation": operation,
			"attempt":   attempts,
			"delay_ms":  wait.Milliseconds(),
			"error":     err.Error(),
		})

		if sleepErr := p.sleep(ctx, wait); sleepErr != nil {
			return p.interruptedOutcome(sleepErr, input, attempts, start)
		}
	}

	metrics.RemoteOperationsTotal.WithLabelValues(operation, "failure").Inc()
	return p.failureOutcome(lastErr, input, attempts, start)
}

// failureOutcome builds the enriched terminal outcome: a caller can tell
// "never worked" (1 attempt, terminal error) from "flaky but exhausted"
// (max attempts, retryable error code) by the attempt count and code.
func (p *Policy) failureOutcome(err error, input map[string]interface{}, attempts int, start time.Time) models.OperationOutcome {
	stdErr := stderrors.AsStandardError(err)
	return models.OperationOutcome{
		Status:       models.OutcomeTerminalFailure,
		ErrorCode:    string(stdErr.Code),
		ErrorMessage: stdErr.Message,
		Suggestion:   stderrors.Suggest(stdErr.Message + " " + stdErr.Details),
		RawError:     stdErr.Details,
		Input:        input,
		Attempts:     attempts,
		Elapsed:      time.Since(start),
		Retried:      attempts > 1,
	}
}

// interruptedOutcome reports a cancellation between attempts. The operation
// is still retryable; the budget was simply withdrawn.
func (p *Policy) interruptedOutcome(err error, input map[string]interface{}, attempts int, start time.Time) models.OperationOutcome {
	return models.OperationOutcome{
		Status:       models.OutcomeRetryableFailure,
		ErrorCode:    string(stderrors.ErrCodeCancelled),
		ErrorMessage: "operation cancelled before completion",
		RawError:     err.Error(),
		Input:        input,
		Attempts:     attempts,
		Elapsed:      time.Since(start),
		Retried:      attempts > 1,
	}
}
