// internal/skills/runner_test.go
package skills

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stderrors "erpnext-bridge/internal/common/errors"
	"erpnext-bridge/internal/common/logger"
	"erpnext-bridge/internal/models"
	"erpnext-bridge/internal/retry"
	"erpnext-bridge/pkg/skilldef"
)

// ==========================
// Test Helper Functions
// ==========================

type invocation struct {
	Tool string
	Args map[string]interface{}
}

// fakeInvoker scripts per-tool behavior and records every call in order.
type fakeInvoker struct {
	mu    sync.Mutex
	calls []invocation
	// failTool makes the named tool fail with the given error.
	failTool map[string]error
	// transientFailures makes the named tool fail retryably N times first.
	transientFailures map[string]int
	seq               int
}

func newFakeInvoker() *fakeInvoker {
	return &fakeInvoker{
		failTool:          make(map[string]error),
		transientFailures: make(map[string]int),
	}
}

func (f *fakeInvoker) Invoke(ctx context.Context, tool string, args map[string]interface{}) (map[string]interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, invocation{Tool: tool, Args: args})

	if n := f.transientFailures[tool]; n > 0 {
		f.transientFailures[tool] = n - 1
		return nil, stderrors.NewRemoteUnavailableError("status 503")
	}
	if err, ok := f.failTool[tool]; ok {
		return nil, err
	}

	f.seq++
	return map[string]interface{}{"name": fmt.Sprintf("DOC-%04d", f.seq), "tool": tool}, nil
}

func (f *fakeInvoker) toolOrder() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, call := range f.calls {
		out[i] = call.Tool
	}
	return out
}

func newTestRunner(t *testing.T, invoker Invoker) *Runner {
	policy := retry.NewPolicy(2, time.Millisecond, 10*time.Millisecond, logger.NewNoOpLogger(),
		retry.WithSleep(func(ctx context.Context, d time.Duration) error { return nil }),
		retry.WithJitter(func(max time.Duration) time.Duration { return 0 }),
	)
	return NewRunner(invoker, policy, logger.NewTestLogger(t))
}

func onboardingSkill() *skilldef.Skill {
	return &skilldef.Skill{
		Name:   "onboard_customer",
		Inputs: map[string]interface{}{"customer_name": nil, "territory": "All Territories"},
		Workflow: skilldef.Workflow{Steps: []models.WorkflowStep{
			{
				Name: "create_customer",
				Tool: "create_customer",
				Arguments: map[string]interface{}{
					"doctype": "Customer",
					"fields":  map[string]interface{}{"customer_name": "${customer_name}", "territory": "${territory}"},
				},
				SaveAs:     "customer",
				Compensate: &models.CompensationAction{Tool: "delete_customer", Arguments: map[string]interface{}{"name": "${customer.name}"}},
			},
			{
				Name: "create_contact",
				Tool: "create_contact",
				Arguments: map[string]interface{}{
					"fields": map[string]interface{}{"link_name": "${customer.name}"},
				},
				SaveAs:     "contact",
				Compensate: &models.CompensationAction{Tool: "delete_contact", Arguments: map[string]interface{}{"name": "${contact.name}"}},
			},
			{
				Name:      "create_order",
				Tool:      "create_order",
				Arguments: map[string]interface{}{"fields": map[string]interface{}{"customer": "${customer.name}"}},
			},
		}},
	}
}

// ==========================
// Happy Path Tests
// ==========================

func TestRunner_StepsRunInDeclaredOrder(t *testing.T) {
	invoker := newFakeInvoker()
	runner := newTestRunner(t, invoker)

	run := runner.Run(context.Background(), onboardingSkill(), map[string]interface{}{"customer_name": "Acme Corp"})

	assert.Equal(t, models.RunStateCompleted, run.State)
	assert.True(t, run.Succeeded())
	assert.Equal(t, -1, run.FailedStep)
	assert.Equal(t, []string{"create_customer", "create_contact", "create_order"}, invoker.toolOrder())
	require.Len(t, run.Steps, 3)
	assert.NotEmpty(t, run.RunID)
	assert.Empty(t, run.Compensations)
}

func TestRunner_OutputsThreadIntoLaterSteps(t *testing.T) {
	invoker := newFakeInvoker()
	runner := newTestRunner(t, invoker)

	run := runner.Run(context.Background(), onboardingSkill(), map[string]interface{}{"customer_name": "Acme Corp"})

	require.Equal(t, models.RunStateCompleted, run.State)

	createArgs := invoker.calls[0].Args["fields"].(map[string]interface{})
	assert.Equal(t, "Acme Corp", createArgs["customer_name"])
	// declared input default applies when the caller omits the key
	assert.Equal(t, "All Territories", createArgs["territory"])

	customerName := run.Steps[0].Output["name"]
	contactArgs := invoker.calls[1].Args["fields"].(map[string]interface{})
	assert.Equal(t, customerName, contactArgs["link_name"])
	orderArgs := invoker.calls[2].Args["fields"].(map[string]interface{})
	assert.Equal(t, customerName, orderArgs["customer"])
}

func TestRunner_StepRetriesThroughPolicy(t *testing.T) {
	invoker := newFakeInvoker()
	invoker.transientFailures["create_contact"] = 1
	runner := newTestRunner(t, invoker)

	run := runner.Run(context.Background(), onboardingSkill(), map[string]interface{}{"customer_name": "Acme Corp"})

	assert.Equal(t, models.RunStateCompleted, run.State)
	assert.True(t, run.Steps[1].Outcome.Retried)
	assert.Equal(t, 2, run.Steps[1].Outcome.Attempts)
}

// ==========================
// Failure and Compensation Tests
// ==========================

func TestRunner_TerminalFailureCompensatesInReverseOrder(t *testing.T) {
	invoker := newFakeInvoker()
	invoker.failTool["create_order"] = stderrors.NewValidationError("customer credit limit exceeded")
	runner := newTestRunner(t, invoker)

	run := runner.Run(context.Background(), onboardingSkill(), map[string]interface{}{"customer_name": "Acme Corp"})

	assert.Equal(t, models.RunStateFailed, run.State)
	assert.Equal(t, 2, run.FailedStep)
	require.Len(t, run.Steps, 3)
	assert.Equal(t, models.OutcomeTerminalFailure, run.Steps[2].Outcome.Status)

	// rollback runs after the failed step, newest succeeded step first
	assert.Equal(t, []string{
		"create_customer", "create_contact", "create_order",
		"delete_contact", "delete_customer",
	}, invoker.toolOrder())

	require.Len(t, run.Compensations, 2)
	assert.Equal(t, "create_contact", run.Compensations[0].Step)
	assert.True(t, run.Compensations[0].Done)
	assert.Equal(t, "create_customer", run.Compensations[1].Step)
	assert.True(t, run.Compensations[1].Done)

	// compensations received the saved outputs
	assert.Equal(t, run.Steps[0].Output["name"], invoker.calls[4].Args["name"])
}

func TestRunner_CompensationFailureIsRecordedNotFatal(t *testing.T) {
	invoker := newFakeInvoker()
	invoker.failTool["create_order"] = stderrors.NewValidationError("rejected")
	invoker.failTool["delete_contact"] = stderrors.NewRemoteUnavailableError("status 503")
	runner := newTestRunner(t, invoker)

	run := runner.Run(context.Background(), onboardingSkill(), map[string]interface{}{"customer_name": "Acme Corp"})

	assert.Equal(t, models.RunStateFailed, run.State)
	require.Len(t, run.Compensations, 2)

	assert.False(t, run.Compensations[0].Done)
	assert.Contains(t, run.Compensations[0].Error, "COMPENSATION_FAILED")
	// the next compensation still ran
	assert.True(t, run.Compensations[1].Done)
	assert.Contains(t, invoker.toolOrder(), "delete_customer")
}

func TestRunner_ContinueOnErrorSkipsCompensation(t *testing.T) {
	invoker := newFakeInvoker()
	invoker.failTool["optional_step"] = stderrors.NewValidationError("rejected")
	runner := newTestRunner(t, invoker)

	skill := &skilldef.Skill{
		Name: "tolerant",
		Workflow: skilldef.Workflow{Steps: []models.WorkflowStep{
			{Name: "first", Tool: "first_tool"},
			{Name: "optional", Tool: "optional_step", ContinueOnError: true},
			{Name: "last", Tool: "last_tool"},
		}},
	}

	run := runner.Run(context.Background(), skill, nil)

	assert.Equal(t, models.RunStateCompleted, run.State)
	require.Len(t, run.Steps, 3)
	assert.Equal(t, models.OutcomeTerminalFailure, run.Steps[1].Outcome.Status)
	assert.Empty(t, run.Compensations)
	assert.Equal(t, []string{"first_tool", "optional_step", "last_tool"}, invoker.toolOrder())
}

func TestRunner_UnresolvedBindingFailsBeforeDispatch(t *testing.T) {
	invoker := newFakeInvoker()
	runner := newTestRunner(t, invoker)

	skill := &skilldef.Skill{
		Name: "broken",
		Workflow: skilldef.Workflow{Steps: []models.WorkflowStep{
			{Name: "first", Tool: "first_tool", SaveAs: "doc",
				Compensate: &models.CompensationAction{Tool: "undo_first", Arguments: map[string]interface{}{"name": "${doc.name}"}}},
			{Name: "second", Tool: "second_tool", Arguments: map[string]interface{}{"v": "${missing}"}},
		}},
	}

	run := runner.Run(context.Background(), skill, nil)

	assert.Equal(t, models.RunStateFailed, run.State)
	assert.Equal(t, 1, run.FailedStep)
	assert.Equal(t, string(stderrors.ErrCodeUnresolvedBinding), run.Steps[1].Outcome.ErrorCode)
	// the broken step never reached the invoker; the first step rolled back
	assert.Equal(t, []string{"first_tool", "undo_first"}, invoker.toolOrder())
}

// cancelAfterFirst cancels the run's context once the first invocation
// returns, so the next step sees a dead context before dispatch.
type cancelAfterFirst struct {
	inner  *fakeInvoker
	cancel context.CancelFunc
	once   sync.Once
}

func (c *cancelAfterFirst) Invoke(ctx context.Context, tool string, args map[string]interface{}) (map[string]interface{}, error) {
	out, err := c.inner.Invoke(ctx, tool, args)
	c.once.Do(c.cancel)
	return out, err
}

func TestRunner_CancellationBetweenStepsRecordsSkippedStep(t *testing.T) {
	invoker := newFakeInvoker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runner := newTestRunner(t, &cancelAfterFirst{inner: invoker, cancel: cancel})

	run := runner.Run(ctx, onboardingSkill(), map[string]interface{}{"customer_name": "Acme Corp"})

	assert.Equal(t, models.RunStateFailed, run.State)
	assert.Equal(t, 1, run.FailedStep)
	require.Len(t, run.Steps, 2)
	assert.True(t, run.Steps[0].Outcome.Succeeded())

	// the skipped step is recorded, so FailedStep indexes into Steps
	skipped := run.Steps[run.FailedStep]
	assert.Equal(t, "create_contact", skipped.Step)
	assert.Equal(t, models.OutcomeRetryableFailure, skipped.Outcome.Status)
	assert.Equal(t, string(stderrors.ErrCodeCancelled), skipped.Outcome.ErrorCode)

	// the completed step still rolled back
	assert.Contains(t, invoker.toolOrder(), "delete_customer")
}

func TestRunner_PartialResultsVisibleAfterFailure(t *testing.T) {
	invoker := newFakeInvoker()
	invoker.failTool["create_contact"] = stderrors.NewPermissionError("forbidden")
	runner := newTestRunner(t, invoker)

	run := runner.Run(context.Background(), onboardingSkill(), map[string]interface{}{"customer_name": "Acme Corp"})

	assert.Equal(t, models.RunStateFailed, run.State)
	assert.Equal(t, 1, run.FailedStep)
	require.Len(t, run.Steps, 2)
	assert.True(t, run.Steps[0].Outcome.Succeeded())
	assert.Equal(t, string(stderrors.ErrCodePermission), run.Steps[1].Outcome.ErrorCode)
	assert.NotNil(t, run.Context["customer"])
}
