// internal/skills/runner.go
package skills

import (
	"context"
	"time"

	"github.com/google/uuid"

	stderrors "erpnext-bridge/internal/common/errors"
	"erpnext-bridge/internal/common/logger"
	"erpnext-bridge/internal/common/metrics"
	"erpnext-bridge/internal/models"
	"erpnext-bridge/internal/retry"
	"erpnext-bridge/pkg/skilldef"
)

// Invoker dispatches one tool invocation. The tools layer provides the
// implementation so skills can call the same operations external callers do.
type Invoker interface {
	Invoke(ctx context.Context, tool string, args map[string]interface{}) (map[string]interface{}, error)
}

// Runner executes skills step by step. Steps run strictly in declared
// order, each through the retry policy; on a step's terminal failure the
// runner compensates already-succeeded steps in reverse order, best-effort.
type Runner struct {
	invoker Invoker
	policy  *retry.Policy
	logger  logger.Logger
}

func NewRunner(invoker Invoker, policy *retry.Policy, log logger.Logger) *Runner {
	return &Runner{
		invoker: invoker,
		policy:  policy,
		logger:  log.WithFields(map[string]interface{}{"component": "skills"}),
	}
}

// Run executes a skill to completion or failure. Failures never surface as
// an error: the returned run carries the state, the failing step, and every
// partial outcome for manual remediation.
func (r *Runner) Run(ctx context.Context, skill *skilldef.Skill, initialContext map[string]interface{}) *models.WorkflowRun {
	run := &models.WorkflowRun{
		RunID:      uuid.New().String(),
		Skill:      skill.Name,
		State:      models.RunStateRunning,
		FailedStep: -1,
		Context:    buildContext(skill, initialContext),
		StartedAt:  time.Now().UTC(),
	}
	log := r.logger.WithFields(map[string]interface{}{"run_id": run.RunID, "skill": skill.Name})

	for i, step := range skill.Workflow.Steps {
		if err := ctx.Err(); err != nil {
			// record the step that never dispatched so FailedStep always
			// indexes into Steps
			run.Steps = append(run.Steps, models.StepResult{
				Step: step.Name,
				Tool: step.Tool,
				Outcome: models.OperationOutcome{
					Status:       models.OutcomeRetryableFailure,
					ErrorCode:    string(stderrors.ErrCodeCancelled),
					ErrorMessage: "run cancelled before step started",
					RawError:     err.Error(),
				},
			})
			r.fail(ctx, run, skill, i, log)
			return r.finish(run, log)
		}

		result, ok := r.runStep(ctx, run, step, i)
		run.Steps = append(run.Steps, result)

		if !ok {
			if step.ContinueOnError {
				log.Warn("step failed, continuing by declaration", map[string]interface{}{
					"step":  step.Name,
					"error": result.Outcome.ErrorMessage,
				})
				continue
			}
			r.fail(ctx, run, skill, i, log)
			return r.finish(run, log)
		}

		run.Context[skilldef.OutputKey(step, i)] = result.Output
	}

	run.State = models.RunStateCompleted
	return r.finish(run, log)
}

// buildContext layers the caller's initial context over the skill's
// declared input defaults.
func buildContext(skill *skilldef.Skill, initial map[string]interface{}) map[string]interface{} {
	context := make(map[string]interface{}, len(skill.Inputs)+len(initial))
	for input, defaultValue := range skill.Inputs {
		if defaultValue != nil {
			context[input] = defaultValue
		}
	}
	for k, v := range initial {
		context[k] = v
	}
	return context
}

func (r *Runner) runStep(ctx context.Context, run *models.WorkflowRun, step models.WorkflowStep, index int) (models.StepResult, bool) {
	result := models.StepResult{Step: step.Name, Tool: step.Tool}

	args, err := resolveArguments(step.Name, step.Arguments, run.Context)
	if err != nil {
		// configuration error, detected before the step dispatches
		stdErr := stderrors.AsStandardError(err)
		result.Outcome = models.OperationOutcome{
			Status:       models.OutcomeTerminalFailure,
			ErrorCode:    string(stdErr.Code),
			ErrorMessage: stdErr.Message,
			RawError:     stdErr.Details,
		}
		return result, false
	}

	outcome := r.policy.Execute(ctx, step.Tool, args, func(ctx context.Context) (string, map[string]interface{}, error) {
		output, err := r.invoker.Invoke(ctx, step.Tool, args)
		if err != nil {
			return "", nil, err
		}
		name, _ := output["name"].(string)
		return name, output, nil
	})
	result.Outcome = outcome
	if outcome.Succeeded() {
		result.Output = outcome.Returned
		return result, true
	}
	return result, false
}

// fail marks the run failed at the given step and rolls back succeeded
// steps in reverse declaration order. A compensation failure is recorded
// and rollback moves on.
func (r *Runner) fail(ctx context.Context, run *models.WorkflowRun, skill *skilldef.Skill, failedIndex int, log logger.Logger) {
	run.State = models.RunStateFailed
	run.FailedStep = failedIndex

	// compensations still run when the caller's context is gone
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
	}

	for i := failedIndex - 1; i >= 0; i-- {
		step := skill.Workflow.Steps[i]
		if step.Compensate == nil || !run.Steps[i].Outcome.Succeeded() {
			continue
		}

		compensation := models.CompensationResult{Step: step.Name, Tool: step.Compensate.Tool}
		args, err := resolveArguments(step.Name, step.Compensate.Arguments, run.Context)
		if err == nil {
			_, err = r.invoker.Invoke(ctx, step.Compensate.Tool, args)
		}
		if err != nil {
			stdErr := stderrors.NewCompensationFailedError(step.Name, err)
			compensation.Error = stdErr.Error()
			log.Error("compensation failed", map[string]interface{}{
				"step":  step.Name,
				"tool":  step.Compensate.Tool,
				"error": err.Error(),
			})
		} else {
			compensation.Done = true
		}
		run.Compensations = append(run.Compensations, compensation)
	}
}

func (r *Runner) finish(run *models.WorkflowRun, log logger.Logger) *models.WorkflowRun {
	run.FinishedAt = time.Now().UTC()
	metrics.WorkflowRunsTotal.WithLabelValues(string(run.State)).Inc()
	log.Info("workflow run finished", map[string]interface{}{
		"state":         string(run.State),
		"steps":         len(run.Steps),
		"failed_step":   run.FailedStep,
		"compensations": len(run.Compensations),
	})
	return run
}
