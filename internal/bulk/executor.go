// Package bulk drives batches of records through autofill, retry, and the
// remote client with a bounded worker pool. One item's failure never aborts
// its siblings; the final report is indexed by input order regardless of
// completion order.
package bulk

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"erpnext-bridge/internal/autofill"
	stderrors "erpnext-bridge/internal/common/errors"
	"erpnext-bridge/internal/common/logger"
	"erpnext-bridge/internal/common/metrics"
	"erpnext-bridge/internal/models"
	"erpnext-bridge/internal/retry"
)

// Batch execution modes.
const (
	ModeCreate      = "create"
	ModeUpdate      = "update"
	ModeDelete      = "delete"
	ModeSmartCreate = "smart_create"
)

// Remote is the slice of the remote client the executor dispatches through.
type Remote interface {
	Create(ctx context.Context, doctype string, fields map[string]interface{}) (string, map[string]interface{}, error)
	Update(ctx context.Context, doctype, name string, fields map[string]interface{}) (string, map[string]interface{}, error)
	Delete(ctx context.Context, doctype, name string) error
}

// SchemaSource resolves cached schemas for smart_create autofill.
type SchemaSource interface {
	Get(ctx context.Context, doctype string) (*models.DocTypeSchema, error)
}

// Executor runs batches. Safe for concurrent use; each Run is independent.
type Executor struct {
	remote         Remote
	schemas        SchemaSource
	engine         *autofill.Engine
	policy         *retry.Policy
	workers        int
	progressBuffer int
	logger         logger.Logger
}

func NewExecutor(remote Remote, schemas SchemaSource, engine *autofill.Engine, policy *retry.Policy, workers, progressBuffer int, log logger.Logger) *Executor {
	if workers < 1 {
		workers = 1
	}
	if progressBuffer < 1 {
		progressBuffer = 1
	}
	return &Executor{
		remote:         remote,
		schemas:        schemas,
		engine:         engine,
		policy:         policy,
		workers:        workers,
		progressBuffer: progressBuffer,
		logger:         log.WithFields(map[string]interface{}{"component": "bulk"}),
	}
}

// Run is a handle on one in-flight batch.
type Run struct {
	BatchID  string
	progress chan models.ProgressEvent
	done     chan struct{}
	report   *models.BatchReport
}

// Progress streams one event per completed item, in completion order. The
// stream is buffered and fire-and-forget: a slow or absent consumer drops
// events but never blocks the workers. Closed when the batch finishes.
func (r *Run) Progress() <-chan models.ProgressEvent {
	return r.progress
}

// Wait blocks until the batch finishes and returns the reconciled report.
func (r *Run) Wait() *models.BatchReport {
	<-r.done
	return r.report
}

// Execute runs a batch to completion, discarding progress events.
func (e *Executor) Execute(ctx context.Context, doctype, mode string, records []models.Record) (*models.BatchReport, error) {
	run, err := e.Start(ctx, doctype, mode, records)
	if err != nil {
		return nil, err
	}
	return run.Wait(), nil
}

// Start validates the request and launches the worker pool. Invalid mode
// and empty doctype are programmer errors surfaced here; everything later
// is captured per item in the report.
func (e *Executor) Start(ctx context.Context, doctype, mode string, records []models.Record) (*Run, error) {
	if doctype == "" {
		return nil, stderrors.NewInvalidInputError("doctype must not be empty")
	}
	switch mode {
	case ModeCreate, ModeUpdate, ModeDelete, ModeSmartCreate:
	default:
		return nil, stderrors.NewInvalidInputError(fmt.Sprintf("unknown bulk mode %q", mode))
	}

	run := &Run{
		BatchID:  uuid.New().String(),
		progress: make(chan models.ProgressEvent, e.progressBuffer),
		done:     make(chan struct{}),
	}

	go e.runBatch(ctx, run, doctype, mode, records)
	return run, nil
}

func (e *Executor) runBatch(ctx context.Context, run *Run, doctype, mode string, records []models.Record) {
	start := time.Now()
	defer close(run.done)
	defer close(run.progress)

	items := make([]models.BatchItem, len(records))

	var resolve autofill.SchemaResolver
	var rootSchema *models.DocTypeSchema
	if mode == ModeSmartCreate && len(records) > 0 {
		var err error
		rootSchema, resolve, err = e.resolveSchemas(ctx, doctype)
		if err != nil {
			// nothing is dispatched; every item carries the schema failure
			e.failAll(run, doctype, mode, records, items, err)
			run.report = e.reconcile(run.BatchID, doctype, mode, records, items, start)
			return
		}
	}

	jobs := make(chan int)
	var completed int64
	var wg sync.WaitGroup

	workers := e.workers
	if workers > len(records) {
		workers = len(records)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				outcome := e.processItem(ctx, doctype, mode, records[idx], rootSchema, resolve)
				items[idx] = models.BatchItem{
					Index:    idx,
					ClientID: records[idx].ClientID,
					Record:   &records[idx],
					Outcome:  outcome,
				}
				metrics.BulkItemsTotal.WithLabelValues(mode, string(outcome.Status)).Inc()
				e.publish(run, idx, records[idx].ClientID, outcome, int(atomic.AddInt64(&completed, 1)), len(records))
			}
		}()
	}

dispatch:
	for idx := range records {
		// cancellation takes effect here: in-flight items finish, no new
		// item starts
		select {
		case <-ctx.Done():
			break dispatch
		case jobs <- idx:
		}
	}
	close(jobs)
	wg.Wait()

	// items never dispatched keep a zero outcome; mark them interrupted
	for idx := range items {
		if items[idx].Outcome.Status == "" {
			items[idx] = models.BatchItem{
				Index:    idx,
				ClientID: records[idx].ClientID,
				Record:   &records[idx],
				Outcome: models.OperationOutcome{
					Status:       models.OutcomeRetryableFailure,
					ErrorCode:    string(stderrors.ErrCodeCancelled),
					ErrorMessage: "batch cancelled before item started",
					Input:        records[idx].Fields,
				},
			}
		}
	}

	run.report = e.reconcile(run.BatchID, doctype, mode, records, items, start)
	metrics.BulkBatchDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	e.logger.Info("batch finished", map[string]interface{}{
		"batch_id":  run.BatchID,
		"doctype":   doctype,
		"mode":      mode,
		"total":     len(records),
		"succeeded": run.report.Succeeded,
		"failed":    run.report.Failed,
	})
}

// resolveSchemas fetches the root schema plus the schemas of its child
// tables so autofill can recurse without doing I/O itself.
func (e *Executor) resolveSchemas(ctx context.Context, doctype string) (*models.DocTypeSchema, autofill.SchemaResolver, error) {
	root, err := e.schemas.Get(ctx, doctype)
	if err != nil {
		return nil, nil, err
	}

	children := make(map[string]*models.DocTypeSchema)
	for _, field := range root.Fields {
		if field.Kind != models.FieldKindChildTable || field.LinkTarget() == "" {
			continue
		}
		child, err := e.schemas.Get(ctx, field.LinkTarget())
		if err != nil {
			e.logger.Warn("child table schema unavailable, rows will not be autofilled", map[string]interface{}{
				"doctype": field.LinkTarget(),
				"error":   err.Error(),
			})
			continue
		}
		children[field.LinkTarget()] = child
	}

	resolve := func(name string) (*models.DocTypeSchema, bool) {
		child, ok := children[name]
		return child, ok
	}
	return root, resolve, nil
}

func (e *Executor) processItem(ctx context.Context, doctype, mode string, record models.Record, schema *models.DocTypeSchema, resolve autofill.SchemaResolver) models.OperationOutcome {
	dispatched := record
	if mode == ModeSmartCreate && schema != nil {
		dispatched = e.engine.Fill(record, schema, resolve)
	}

	switch mode {
	case ModeCreate, ModeSmartCreate:
		return e.policy.Execute(ctx, mode, dispatched.Fields, func(ctx context.Context) (string, map[string]interface{}, error) {
			return e.remote.Create(ctx, doctype, dispatched.Fields)
		})
	case ModeUpdate:
		name, fields, outcome := splitName(dispatched)
		if outcome != nil {
			return *outcome
		}
		return e.policy.Execute(ctx, mode, dispatched.Fields, func(ctx context.Context) (string, map[string]interface{}, error) {
			return e.remote.Update(ctx, doctype, name, fields)
		})
	case ModeDelete:
		name, _, outcome := splitName(dispatched)
		if outcome != nil {
			return *outcome
		}
		return e.policy.Execute(ctx, mode, dispatched.Fields, func(ctx context.Context) (string, map[string]interface{}, error) {
			if err := e.remote.Delete(ctx, doctype, name); err != nil {
				return "", nil, err
			}
			return name, nil, nil
		})
	}
	// unreachable, Start validated the mode
	return models.OperationOutcome{Status: models.OutcomeTerminalFailure, ErrorCode: string(stderrors.ErrCodeInternal)}
}

// splitName extracts the target document name for update/delete items and
// returns the remaining fields as the payload.
func splitName(record models.Record) (string, map[string]interface{}, *models.OperationOutcome) {
	name, _ := record.Fields["name"].(string)
	if name == "" {
		return "", nil, &models.OperationOutcome{
			Status:       models.OutcomeTerminalFailure,
			ErrorCode:    string(stderrors.ErrCodeInvalidInput),
			ErrorMessage: "record is missing the target document name",
			Input:        record.Fields,
			Attempts:     0,
		}
	}
	fields := make(map[string]interface{}, len(record.Fields))
	for k, v := range record.Fields {
		if k != "name" {
			fields[k] = v
		}
	}
	return name, fields, nil
}

func (e *Executor) publish(run *Run, index int, clientID string, outcome models.OperationOutcome, completed, total int) {
	event := models.ProgressEvent{
		BatchID:   run.BatchID,
		Index:     index,
		ClientID:  clientID,
		Status:    outcome.Status,
		RemoteID:  outcome.RemoteID,
		Error:     outcome.ErrorMessage,
		Completed: completed,
		Total:     total,
		Timestamp: time.Now().UTC(),
	}
	select {
	case run.progress <- event:
	default:
		// consumer is behind or absent; drop rather than block the worker
	}
}

func (e *Executor) failAll(run *Run, doctype, mode string, records []models.Record, items []models.BatchItem, err error) {
	stdErr := stderrors.AsStandardError(err)
	for idx := range records {
		items[idx] = models.BatchItem{
			Index:    idx,
			ClientID: records[idx].ClientID,
			Record:   &records[idx],
			Outcome: models.OperationOutcome{
				Status:       models.OutcomeTerminalFailure,
				ErrorCode:    string(stdErr.Code),
				ErrorMessage: stdErr.Message,
				RawError:     stdErr.Details,
				Input:        records[idx].Fields,
			},
		}
		metrics.BulkItemsTotal.WithLabelValues(mode, string(models.OutcomeTerminalFailure)).Inc()
		e.publish(run, idx, records[idx].ClientID, items[idx].Outcome, idx+1, len(records))
	}
}

func (e *Executor) reconcile(batchID, doctype, mode string, records []models.Record, items []models.BatchItem, start time.Time) *models.BatchReport {
	report := &models.BatchReport{
		BatchID: batchID,
		DocType: doctype,
		Mode:    mode,
		Items:   items,
		Elapsed: time.Since(start),
	}
	for _, item := range items {
		if item.Outcome.Succeeded() {
			report.Succeeded++
			if item.Outcome.Retried {
				report.RetriedThenSucceeded++
			}
		} else {
			report.Failed++
		}
	}
	return report
}
