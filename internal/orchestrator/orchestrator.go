// File: internal/orchestrator/orchestrator.go
// Description: Drives a batch of work items through search, extraction and
// transfer. Components are injected through interfaces so the controller can
// be tested without a browser.

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/nelakvee/recordsync/api/schemas"
	"github.com/nelakvee/recordsync/internal/automation"
	"github.com/nelakvee/recordsync/internal/config"
	"github.com/nelakvee/recordsync/internal/search"
)

// ErrBatchAborted is returned when the run stops before every item was processed.
var ErrBatchAborted = errors.New("batch aborted")

// SessionGuard reports whether the authenticated contexts are still usable.
type SessionGuard interface {
	EnsureAlive(ctx context.Context) error
}

// Searcher lists candidate rows for a key.
type Searcher interface {
	Search(ctx context.Context, key string) ([]search.Candidate, error)
}

// Extractor reads a record from a candidate's detail view.
type Extractor interface {
	Extract(ctx context.Context, view automation.Element) (schemas.ExtractedRecord, error)
}

// Transferer writes a record into the target system.
type Transferer interface {
	Transfer(ctx context.Context, key string, rec schemas.ExtractedRecord, commitEnabled bool) (schemas.TransferOutcome, error)
}

// DiagnosticSink records failure evidence and returns the artifact path.
type DiagnosticSink interface {
	Capture(ctx context.Context, key string, stage schemas.Stage, cause error) string
}

// ResultSink persists results as they are produced.
type ResultSink interface {
	SaveResult(ctx context.Context, result schemas.BatchResult) error
	SaveSummary(ctx context.Context, summary *schemas.RunSummary) error
}

// Components are the collaborators of the batch controller. Results is optional.
type Components struct {
	Sessions    SessionGuard
	Searcher    Searcher
	Extractor   Extractor
	Transferer  Transferer
	Diagnostics DiagnosticSink
	Results     ResultSink
}

// Orchestrator processes work items one at a time. A failure on one item is
// recorded and the batch continues; only a lost session or a canceled
// context stops the run.
type Orchestrator struct {
	cfg     config.Interface
	logger  *zap.Logger
	c       Components
	limiter *rate.Limiter
	now     func() time.Time
	runID   func() string
}

// New creates a new Orchestrator.
func New(cfg config.Interface, logger *zap.Logger, c Components) (*Orchestrator, error) {
	if cfg == nil ||
		logger == nil ||
		c.Sessions == nil ||
		c.Searcher == nil ||
		c.Extractor == nil ||
		c.Transferer == nil ||
		c.Diagnostics == nil {
		return nil, fmt.Errorf("cannot initialize orchestrator with nil dependencies")
	}
	o := &Orchestrator{
		cfg:    cfg,
		logger: logger.Named("batch"),
		c:      c,
		now:    time.Now,
		runID:  uuid.NewString,
	}
	if interval := cfg.Batch().MinItemInterval; interval > 0 {
		o.limiter = rate.NewLimiter(rate.Every(interval), 1)
	}
	return o, nil
}

// fatalError marks an item failure that must stop the batch.
type fatalError struct{ err error }

func (f *fatalError) Error() string { return f.err.Error() }
func (f *fatalError) Unwrap() error { return f.err }

// Run processes items in order and always returns a summary. The error is
// non-nil only when the run was aborted.
func (o *Orchestrator) Run(ctx context.Context, items []schemas.WorkItem) (*schemas.RunSummary, error) {
	runID := o.runID()
	summary := schemas.NewRunSummary(runID, len(items), o.now())
	logger := o.logger.With(zap.String("run_id", runID))
	logger.Info("Starting batch",
		zap.Int("items", len(items)),
		zap.Bool("commit_enabled", o.cfg.Transfer().CommitEnabled))

	var abortErr error
	for i, item := range items {
		if err := o.pace(ctx); err != nil {
			abortErr = err
			break
		}
		if err := o.c.Sessions.EnsureAlive(ctx); err != nil {
			abortErr = err
			break
		}

		result, err := o.processItem(ctx, runID, i, item)
		summary.Add(result)
		o.saveResult(ctx, logger, result)
		if err != nil {
			abortErr = err
			break
		}
	}

	summary.FinishedAt = o.now()
	if abortErr != nil {
		summary.Aborted = true
		summary.AbortReason = abortErr.Error()
		if errors.Is(abortErr, automation.ErrSessionLost) {
			// zap has no critical level and DPanic panics under development
			// loggers, so session loss is flagged on an error entry.
			logger.Error("Session lost; batch aborted",
				zap.Bool("critical", true),
				zap.Int("processed", summary.Processed),
				zap.Int("remaining", summary.Total-summary.Processed),
				zap.Error(abortErr))
		} else {
			logger.Error("Batch aborted", zap.Int("processed", summary.Processed), zap.Error(abortErr))
		}
	}
	o.logSummary(logger, summary)

	if o.c.Results != nil {
		if err := o.c.Results.SaveSummary(automation.Detach(ctx), summary); err != nil {
			logger.Warn("Failed to persist run summary", zap.Error(err))
		}
	}

	if abortErr != nil {
		return summary, fmt.Errorf("%w after %d of %d items: %w", ErrBatchAborted, summary.Processed, summary.Total, abortErr)
	}
	return summary, nil
}

func (o *Orchestrator) pace(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if o.limiter == nil {
		return nil
	}
	return o.limiter.Wait(ctx)
}

// itemRun carries the per-item state through the pipeline.
type itemRun struct {
	o      *Orchestrator
	ctx    context.Context
	item   schemas.WorkItem
	result schemas.BatchResult
	lc     *schemas.Lifecycle
	stage  schemas.Stage
	logger *zap.Logger
}

func (o *Orchestrator) processItem(ctx context.Context, runID string, index int, item schemas.WorkItem) (result schemas.BatchResult, fatal error) {
	r := &itemRun{
		o:    o,
		ctx:  ctx,
		item: item,
		result: schemas.BatchResult{
			RunID:     runID,
			Index:     index,
			Key:       item.Key,
			StartedAt: o.now(),
		},
		lc:     schemas.NewLifecycle(),
		stage:  schemas.StageSearch,
		logger: o.logger.With(zap.String("run_id", runID), zap.Int("index", index), zap.String("key", item.Key)),
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("Recovered from panic while processing item",
				zap.Any("panic", p),
				zap.String("stack", string(debug.Stack())))
			r.fail(failureState(r.stage), fmt.Errorf("panic: %v", p))
			fatal = nil
		}
		r.result.Duration = o.now().Sub(r.result.StartedAt)
		result = r.result
	}()

	fatal = r.run()
	return r.result, fatal
}

func (r *itemRun) run() error {
	o := r.o
	r.advance(schemas.StateSearching)

	candidates, err := o.c.Searcher.Search(r.ctx, r.item.Key)
	if err != nil {
		if errors.Is(err, search.ErrNoResults) {
			r.record(schemas.StateNoMatch, "no search results", err)
			return r.fatalIfLost(err)
		}
		r.fail(schemas.StateNoMatch, err)
		return r.fatalIfLost(err)
	}
	match, ok := search.Match(candidates, r.item.ExpectedLabel)
	if !ok {
		r.record(schemas.StateNoMatch,
			fmt.Sprintf("none of %d candidates matched label %q", len(candidates), r.item.ExpectedLabel), nil)
		return nil
	}
	r.advance(schemas.StateMatched)
	r.logger.Info("Matched candidate", zap.Int("row", match.Index), zap.String("label", match.Label))

	r.stage = schemas.StageExtract
	r.advance(schemas.StateExtracting)
	rec, err := o.c.Extractor.Extract(r.ctx, match.View)
	if err != nil {
		r.fail(schemas.StateExtractionFailed, err)
		return r.fatalIfLost(err)
	}
	r.advance(schemas.StateExtracted)

	r.stage = schemas.StageTransfer
	r.advance(schemas.StateTransferring)
	outcome, err := o.c.Transferer.Transfer(r.ctx, r.item.Key, rec, o.cfg.Transfer().CommitEnabled)
	if err != nil {
		r.fail(schemas.StateTransferFailed, err)
		return r.fatalIfLost(err)
	}
	r.result.Outcome = outcome
	r.record(schemas.StateSuccess, "", nil)
	return nil
}

func (r *itemRun) advance(next schemas.ItemState) {
	if err := r.lc.Advance(next); err != nil {
		r.logger.Error("Invalid item lifecycle", zap.Error(err))
		return
	}
	r.logger.Info("Item state changed", zap.String("state", string(next)))
}

// record moves the item into a terminal state without failure evidence.
func (r *itemRun) record(state schemas.ItemState, diagnostic string, cause error) {
	if !r.lc.State().Terminal() {
		r.advance(state)
	}
	status, _ := state.Status()
	r.result.Status = status
	r.result.Stage = r.stage
	r.result.Diagnostic = diagnostic
	if cause != nil {
		r.logger.Info("Item finished without match", zap.Error(cause))
	}
}

// fail moves the item into a terminal failure state and captures evidence.
func (r *itemRun) fail(state schemas.ItemState, err error) {
	r.record(state, err.Error(), nil)
	r.result.Screenshot = r.o.c.Diagnostics.Capture(automation.Detach(r.ctx), r.item.Key, r.stage, err)
}

func (r *itemRun) fatalIfLost(err error) error {
	if errors.Is(err, automation.ErrSessionLost) {
		return &fatalError{err: err}
	}
	if r.ctx.Err() != nil {
		return &fatalError{err: r.ctx.Err()}
	}
	return nil
}

func failureState(stage schemas.Stage) schemas.ItemState {
	switch stage {
	case schemas.StageExtract:
		return schemas.StateExtractionFailed
	case schemas.StageTransfer:
		return schemas.StateTransferFailed
	default:
		return schemas.StateNoMatch
	}
}

func (o *Orchestrator) saveResult(ctx context.Context, logger *zap.Logger, result schemas.BatchResult) {
	logger.Info("Item finished",
		zap.Int("index", result.Index),
		zap.String("key", result.Key),
		zap.String("status", string(result.Status)),
		zap.String("outcome", string(result.Outcome)),
		zap.Duration("duration", result.Duration))
	if o.c.Results == nil {
		return
	}
	if err := o.c.Results.SaveResult(automation.Detach(ctx), result); err != nil {
		logger.Warn("Failed to persist item result", zap.String("key", result.Key), zap.Error(err))
	}
}

func (o *Orchestrator) logSummary(logger *zap.Logger, s *schemas.RunSummary) {
	fields := []zap.Field{
		zap.Int("total", s.Total),
		zap.Int("processed", s.Processed),
		zap.Int("committed", s.Committed),
		zap.Bool("aborted", s.Aborted),
		zap.Duration("elapsed", s.FinishedAt.Sub(s.StartedAt)),
	}
	for _, status := range schemas.Statuses {
		fields = append(fields, zap.Int(string(status), s.Counts[status]))
	}
	logger.Info("Batch summary", fields...)
}
