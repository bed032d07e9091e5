// Package workflow runs checkpointed batch-analysis tasks: for every
// pending document it extracts content, dispatches it to an LLM backend,
// writes the analysis back to the library, and persists progress after
// each item so a crash or restart never redoes completed work.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"paperlens/internal/backend"
	"paperlens/internal/checkpoint"
	"paperlens/internal/extract"
	"paperlens/internal/library"
	"paperlens/internal/metrics"
	"paperlens/internal/models"
	"paperlens/internal/template"
)

// Library is the reference-library surface the orchestrator needs.
type Library interface {
	FetchPayload(ctx context.Context, documentID string) ([]byte, error)
	FetchAnnotations(ctx context.Context, documentID string) ([]models.Annotation, error)
	CreateNote(ctx context.Context, parentDocumentID, htmlContent string, tags []string) (string, error)
}

// Extractor produces content bundles from document payloads.
type Extractor interface {
	Extract(ctx context.Context, payload []byte, opts extract.Options) (*models.ContentBundle, error)
}

// Dispatcher routes a bundle to an LLM backend.
type Dispatcher interface {
	AutoSelect(bundle *models.ContentBundle) (string, error)
	Dispatch(ctx context.Context, bundle *models.ContentBundle, backendID string, prompt backend.Prompt) (string, error)
}

// Options tunes the orchestrator's scheduling and retry behavior.
type Options struct {
	// Workers bounds batch concurrency across documents.
	Workers int
	// MaxRetries is the number of extra attempts per stage after the first.
	MaxRetries int
	// RetryBaseDelay is the first backoff delay; it doubles per attempt
	// up to RetryMaxDelay.
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	// ExtractTimeout bounds extraction of one pathological document.
	ExtractTimeout time.Duration
	// RenderFallback renders imageless pages as whole-page image blocks.
	RenderFallback bool
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 3
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RetryBaseDelay <= 0 {
		o.RetryBaseDelay = time.Second
	}
	if o.RetryMaxDelay <= 0 {
		o.RetryMaxDelay = 30 * time.Second
	}
	if o.ExtractTimeout <= 0 {
		o.ExtractTimeout = 3 * time.Minute
	}
	return o
}

// Progress is a point-in-time view of a running task for display.
type Progress struct {
	Status    checkpoint.Status
	Total     int
	Completed int
	Failed    int
	Skipped   int
}

// Done counts items in a terminal per-item state.
func (p Progress) Done() int { return p.Completed + p.Failed + p.Skipped }

// Report summarizes a finished (or stopped) task run.
type Report struct {
	TaskID    string
	Status    checkpoint.Status
	Total     int
	Completed int
	Skipped   int
	Failed    map[string]string
	Backends  map[string]int
	Stages    map[string]metrics.StageSnapshot
	Elapsed   time.Duration
}

// Orchestrator owns the workflow checkpoint exclusively: all other
// components are stateless with respect to it and only return results
// or errors.
type Orchestrator struct {
	store      *checkpoint.FileStore
	lib        Library
	extractor  Extractor
	dispatcher Dispatcher
	templates  *template.Library
	opts       Options
	sleep      func(time.Duration)
	log        *slog.Logger

	mu     sync.Mutex // guards active checkpoints and their saves
	active map[string]*taskRun
}

// taskRun is the in-process state of one running task.
type taskRun struct {
	cp       *checkpoint.Checkpoint
	metrics  *metrics.Collector
	backends map[string]int
	stop     atomic.Bool
	abort    atomic.Bool // non-retryable configuration error seen

	stopMu sync.Mutex
	// stopStatus is the status to persist once in-flight stages drain:
	// paused for a graceful shutdown, cancelled for an explicit cancel.
	stopStatus checkpoint.Status
}

// requestStop records the terminal status for a graceful stop. The first
// request wins; a shutdown racing an explicit cancel keeps the cancel.
func (r *taskRun) requestStop(status checkpoint.Status) {
	r.stopMu.Lock()
	if r.stopStatus == "" || status == checkpoint.StatusCancelled {
		r.stopStatus = status
	}
	r.stopMu.Unlock()
	r.stop.Store(true)
}

func (r *taskRun) stopTarget() checkpoint.Status {
	r.stopMu.Lock()
	defer r.stopMu.Unlock()
	if r.stopStatus == "" {
		return checkpoint.StatusPaused
	}
	return r.stopStatus
}

// Option customizes the orchestrator.
type Option func(*Orchestrator)

// WithSleeper overrides how retry backoff sleeps are performed (for tests).
func WithSleeper(sleep func(time.Duration)) Option {
	return func(o *Orchestrator) {
		if sleep != nil {
			o.sleep = sleep
		}
	}
}

// New creates an orchestrator.
func New(store *checkpoint.FileStore, lib Library, extractor Extractor, dispatcher Dispatcher,
	templates *template.Library, opts Options, log *slog.Logger, extra ...Option) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	o := &Orchestrator{
		store:      store,
		lib:        lib,
		extractor:  extractor,
		dispatcher: dispatcher,
		templates:  templates,
		opts:       opts.withDefaults(),
		sleep:      time.Sleep,
		log:        log,
		active:     make(map[string]*taskRun),
	}
	for _, opt := range extra {
		opt(o)
	}
	return o
}

// Prepare validates a task configuration and persists its initial
// checkpoint, returning the new task id. Processing happens in a
// subsequent Resume, so callers can watch progress by id from the start.
func (o *Orchestrator) Prepare(cfg checkpoint.TaskConfig) (string, error) {
	if len(cfg.Documents) == 0 {
		return "", fmt.Errorf("no documents to analyze")
	}

	taskID := uuid.New().String()[:8] // short id, like job ids

	// A template that does not resolve is a task-level setup failure:
	// it would reproduce on every item.
	if _, err := o.templates.Get(cfg.Template); err != nil {
		return "", fmt.Errorf("task setup: %w", err)
	}

	cp := checkpoint.New(taskID, cfg)
	if err := o.store.Save(cp); err != nil {
		return "", fmt.Errorf("persist initial checkpoint: %w", err)
	}
	o.log.Info("task created", "task_id", taskID, "items", len(cfg.Documents), "template", cfg.Template)
	return taskID, nil
}

// Start creates a checkpoint for a new batch and processes it.
func (o *Orchestrator) Start(ctx context.Context, cfg checkpoint.TaskConfig) (*Report, error) {
	taskID, err := o.Prepare(cfg)
	if err != nil {
		return nil, err
	}
	return o.Resume(ctx, taskID)
}

// Resume loads a checkpoint and processes its recomputed pending set.
// Completed items are never reprocessed and previously failed items stay
// failed; use RetryFailed for an explicit retry pass. A corrupt
// checkpoint error is returned as-is: the caller must decide between
// starting fresh and aborting, it is never silently discarded.
func (o *Orchestrator) Resume(ctx context.Context, taskID string) (*Report, error) {
	cp, err := o.store.Load(taskID)
	if err != nil {
		return nil, err
	}

	pending := cp.Pending()
	o.log.Info("processing task", "task_id", taskID,
		"total", cp.TotalItems, "completed", len(cp.Completed),
		"failed", len(cp.Failed), "skipped", len(cp.Skipped), "pending", len(pending))

	if len(pending) == 0 {
		// Idempotent resume: no extraction or dispatch work, the
		// checkpoint only moves to completed if it was not there yet.
		if cp.Status != checkpoint.StatusCompleted {
			cp.SetStatus(checkpoint.StatusCompleted)
			if err := o.store.Save(cp); err != nil {
				return nil, fmt.Errorf("persist checkpoint: %w", err)
			}
		}
		return o.report(cp, nil, nil, 0), nil
	}

	cp.SetStatus(checkpoint.StatusRunning)
	if err := o.store.Save(cp); err != nil {
		return nil, fmt.Errorf("persist checkpoint: %w", err)
	}
	return o.run(ctx, cp)
}

// RetryFailed moves failed items back to pending, then resumes. This is
// the only path that reprocesses failed items.
func (o *Orchestrator) RetryFailed(ctx context.Context, taskID string) (*Report, error) {
	cp, err := o.store.Load(taskID)
	if err != nil {
		return nil, err
	}

	n := cp.ResetFailed()
	if n == 0 {
		return o.report(cp, nil, nil, 0), nil
	}
	cp.SetStatus(checkpoint.StatusRunning)
	if err := o.store.Save(cp); err != nil {
		return nil, fmt.Errorf("persist checkpoint: %w", err)
	}
	o.log.Info("retrying failed items", "task_id", taskID, "items", n)
	return o.run(ctx, cp)
}

// Stop asks a running task to stop dispatching new items. In-flight
// items finish their current stage; nothing is aborted mid-stage, so no
// partially-written notes. The task persists with the given status
// (paused for shutdown, cancelled for an explicit cancel) and can be
// resumed later.
func (o *Orchestrator) Stop(taskID string, status checkpoint.Status) bool {
	o.mu.Lock()
	run, ok := o.active[taskID]
	o.mu.Unlock()
	if !ok {
		return false
	}
	run.requestStop(status)
	o.log.Info("stop requested", "task_id", taskID, "status", status)
	return true
}

// Cancel marks a task cancelled. For a task running in this process it
// stops dispatch gracefully; otherwise it rewrites the stored status.
func (o *Orchestrator) Cancel(taskID string) error {
	if o.Stop(taskID, checkpoint.StatusCancelled) {
		return nil
	}
	cp, err := o.store.Load(taskID)
	if err != nil {
		return err
	}
	if cp.Status.Terminal() {
		return fmt.Errorf("task %s already %s", taskID, cp.Status)
	}
	cp.SetStatus(checkpoint.StatusCancelled)
	return o.store.Save(cp)
}

// Progress reports the live state of a task running in this process,
// falling back to the stored checkpoint.
func (o *Orchestrator) Progress(taskID string) (Progress, error) {
	o.mu.Lock()
	if run, ok := o.active[taskID]; ok {
		p := Progress{
			Status:    run.cp.Status,
			Total:     run.cp.TotalItems,
			Completed: len(run.cp.Completed),
			Failed:    len(run.cp.Failed),
			Skipped:   len(run.cp.Skipped),
		}
		o.mu.Unlock()
		return p, nil
	}
	o.mu.Unlock()

	cp, err := o.store.Load(taskID)
	if err != nil {
		return Progress{}, err
	}
	return Progress{
		Status:    cp.Status,
		Total:     cp.TotalItems,
		Completed: len(cp.Completed),
		Failed:    len(cp.Failed),
		Skipped:   len(cp.Skipped),
	}, nil
}

// run processes the checkpoint's pending set with a bounded worker pool.
// Items complete in any order; each transition saves a full snapshot.
func (o *Orchestrator) run(ctx context.Context, cp *checkpoint.Checkpoint) (*Report, error) {
	start := time.Now()

	tmpl, err := o.templates.Get(cp.Config.Template)
	if err != nil {
		cp.SetStatus(checkpoint.StatusFailed)
		if saveErr := o.store.Save(cp); saveErr != nil {
			o.log.Error("failed to persist checkpoint", "task_id", cp.TaskID, "error", saveErr)
		}
		return nil, fmt.Errorf("task setup: %w", err)
	}

	run := &taskRun{cp: cp, metrics: metrics.NewCollector(), backends: make(map[string]int)}
	o.mu.Lock()
	o.active[cp.TaskID] = run
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		delete(o.active, cp.TaskID)
		o.mu.Unlock()
	}()

	pending := cp.Pending()
	if len(pending) == 0 {
		o.setStatus(run, checkpoint.StatusCompleted)
		return o.report(cp, run.metrics, run.backends, time.Since(start)), nil
	}

	// Stop feeding workers when the caller's context ends; in-flight
	// stages still run against their own contexts.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			run.requestStop(checkpoint.StatusPaused)
		case <-watchDone:
		}
	}()

	jobs := make(chan models.SourceDocument)
	var wg sync.WaitGroup
	for w := 0; w < o.opts.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for doc := range jobs {
				if run.abort.Load() || run.stop.Load() {
					continue // stays pending
				}
				o.safeProcess(ctx, run, tmpl, doc)
			}
		}()
	}

feed:
	for _, doc := range pending {
		if run.stop.Load() || run.abort.Load() {
			break feed
		}
		select {
		case jobs <- doc:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	switch {
	case run.abort.Load():
		o.setStatus(run, checkpoint.StatusFailed)
	case run.stop.Load() && len(cp.Pending()) > 0:
		o.setStatus(run, run.stopTarget())
	default:
		o.setStatus(run, checkpoint.StatusCompleted)
	}

	report := o.report(cp, run.metrics, run.backends, time.Since(start))
	o.log.Info("task finished", "task_id", cp.TaskID, "status", report.Status,
		"completed", report.Completed, "failed", len(report.Failed),
		"skipped", report.Skipped, "elapsed", report.Elapsed.Round(time.Second))
	return report, nil
}

// safeProcess isolates worker panics to the single item.
func (o *Orchestrator) safeProcess(ctx context.Context, run *taskRun, tmpl template.Template, doc models.SourceDocument) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("item worker panicked", "task_id", run.cp.TaskID, "document", doc.ID, "panic", r)
			o.markFailed(run, doc.ID, fmt.Sprintf("internal panic: %v", r))
		}
	}()
	o.processItem(ctx, run, tmpl, doc)
}

// processItem drives one document through the per-item cycle:
// pending -> extracting -> dispatching -> writing-back -> completed,
// degrading to failed after exhausted retries or to skipped when the
// library already holds an analysis. A failure here never halts the
// batch.
func (o *Orchestrator) processItem(ctx context.Context, run *taskRun, tmpl template.Template, doc models.SourceDocument) {
	itemStart := time.Now()
	cp := run.cp
	log := o.log.With("task_id", cp.TaskID, "document", doc.ID)

	// Fetch payload and annotations concurrently: independent reads of
	// the same immutable document.
	var payload []byte
	var anns []models.Annotation
	err := o.withRetry(ctx, run, metrics.OpFetch, func(ctx context.Context) error {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			payload, err = o.lib.FetchPayload(gctx, doc.ID)
			return err
		})
		g.Go(func() error {
			var err error
			anns, err = o.lib.FetchAnnotations(gctx, doc.ID)
			return err
		})
		return g.Wait()
	})
	if err != nil {
		o.failItem(run, doc.ID, "fetch", err, log)
		return
	}

	if !cp.Config.Force && library.HasAnalysisNote(anns) {
		log.Info("document already analyzed, skipping")
		o.markSkipped(run, doc.ID)
		return
	}
	if run.stop.Load() {
		return // stays pending for the next resume
	}

	var bundle *models.ContentBundle
	err = o.withRetry(ctx, run, metrics.OpExtract, func(ctx context.Context) error {
		extractCtx, cancel := context.WithTimeout(ctx, o.opts.ExtractTimeout)
		defer cancel()
		var err error
		bundle, err = o.extractor.Extract(extractCtx, payload, extract.Options{
			Images:         cp.Config.Images,
			RenderFallback: cp.Config.Images && o.opts.RenderFallback,
			Tables:         cp.Config.Tables,
		})
		return err
	})
	if err != nil {
		o.failItem(run, doc.ID, "extract", err, log)
		return
	}
	if run.stop.Load() {
		return
	}

	rendered, err := tmpl.Render(promptVars(doc, bundle))
	if err != nil {
		// Template misuse reproduces on every item; abort the task.
		o.failItem(run, doc.ID, "render", err, log)
		return
	}

	backendID := cp.Config.Backend
	if backendID == "" {
		if backendID, err = o.dispatcher.AutoSelect(bundle); err != nil {
			o.failItem(run, doc.ID, "select backend", err, log)
			return
		}
	}

	var raw string
	err = o.withRetry(ctx, run, metrics.OpDispatch, func(ctx context.Context) error {
		var err error
		raw, err = o.dispatcher.Dispatch(ctx, bundle, backendID, backend.Prompt{
			System: tmpl.SystemPrompt,
			User:   rendered,
		})
		return err
	})
	if err != nil {
		o.failItem(run, doc.ID, "dispatch", err, log)
		return
	}

	result := tmpl.Parse(raw)
	result.DocumentID = doc.ID
	result.Backend = backendID
	result.Elapsed = time.Since(itemStart)

	if run.stop.Load() {
		return
	}
	err = o.withRetry(ctx, run, metrics.OpWriteBack, func(ctx context.Context) error {
		_, err := o.lib.CreateNote(ctx, doc.ID, noteHTML(doc, *result, tmpl.Name),
			[]string{library.AnalysisTag, "template:" + tmpl.Name})
		return err
	})
	if err != nil {
		o.failItem(run, doc.ID, "write-back", err, log)
		return
	}

	o.markCompleted(run, doc.ID, backendID)
	log.Info("document analyzed", "backend", backendID,
		"images", len(bundle.Images), "tables", len(bundle.Tables),
		"elapsed", result.Elapsed.Round(time.Millisecond))
}

// withRetry runs one stage with exponential backoff. Non-retryable
// errors return immediately; the caller decides whether they abort the
// whole task.
func (o *Orchestrator) withRetry(ctx context.Context, run *taskRun, stage string, fn func(context.Context) error) error {
	delay := o.opts.RetryBaseDelay
	var lastErr error
	for attempt := 0; attempt <= o.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			o.sleep(delay)
			delay *= 2
			if delay > o.opts.RetryMaxDelay {
				delay = o.opts.RetryMaxDelay
			}
		}

		start := time.Now()
		err := fn(ctx)
		run.metrics.RecordTiming(stage, time.Since(start))
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable(err) {
			return err
		}
		o.log.Warn("stage failed", "stage", stage, "attempt", attempt+1,
			"max_attempts", o.opts.MaxRetries+1, "error", err)
	}
	return lastErr
}

// retryable classifies errors per the propagation policy: backend call
// and transport failures retry; malformed documents, template misuse and
// unknown backends do not.
func retryable(err error) bool {
	var extractionErr *extract.ExtractionError
	var missingVar *template.MissingVariableError
	var unknownBackend *backend.UnknownBackendError
	switch {
	case errors.As(err, &extractionErr),
		errors.As(err, &missingVar),
		errors.As(err, &unknownBackend):
		return false
	case errors.Is(err, backend.ErrNoBackends),
		errors.Is(err, context.Canceled):
		return false
	}
	return true
}

// configError reports errors that will reproduce on every item and so
// abort the whole task.
func configError(err error) bool {
	var missingVar *template.MissingVariableError
	var unknownBackend *backend.UnknownBackendError
	return errors.As(err, &missingVar) ||
		errors.As(err, &unknownBackend) ||
		errors.Is(err, backend.ErrNoBackends)
}

func (o *Orchestrator) failItem(run *taskRun, docID, stage string, err error, log *slog.Logger) {
	if errors.Is(err, context.Canceled) {
		// Shutdown, not an item failure: the item stays pending.
		return
	}
	reason := fmt.Sprintf("%s: %v", stage, err)
	if configError(err) {
		log.Error("configuration error, aborting task", "stage", stage, "error", err)
		run.abort.Store(true)
	} else {
		log.Warn("document failed", "stage", stage, "error", err)
	}
	o.markFailed(run, docID, reason)
}

// Checkpoint transitions: each one saves a full snapshot immediately, so
// resumability is item-granular. The file is single-writer; workers
// serialize through this mutex.

func (o *Orchestrator) markCompleted(run *taskRun, docID, backendID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	run.cp.MarkCompleted(docID)
	run.backends[backendID]++
	o.saveLocked(run.cp)
}

func (o *Orchestrator) markFailed(run *taskRun, docID, reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	run.cp.MarkFailed(docID, reason)
	o.saveLocked(run.cp)
}

func (o *Orchestrator) markSkipped(run *taskRun, docID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	run.cp.MarkSkipped(docID)
	o.saveLocked(run.cp)
}

func (o *Orchestrator) setStatus(run *taskRun, status checkpoint.Status) {
	o.mu.Lock()
	defer o.mu.Unlock()
	run.cp.SetStatus(status)
	o.saveLocked(run.cp)
}

func (o *Orchestrator) saveLocked(cp *checkpoint.Checkpoint) {
	if err := o.store.Save(cp.Clone()); err != nil {
		o.log.Error("failed to persist checkpoint", "task_id", cp.TaskID, "error", err)
	}
}

func (o *Orchestrator) report(cp *checkpoint.Checkpoint, m *metrics.Collector, backends map[string]int, elapsed time.Duration) *Report {
	r := &Report{
		TaskID:    cp.TaskID,
		Status:    cp.Status,
		Total:     cp.TotalItems,
		Completed: len(cp.Completed),
		Skipped:   len(cp.Skipped),
		Failed:    make(map[string]string, len(cp.Failed)),
		Backends:  backends,
		Elapsed:   elapsed,
	}
	for id, reason := range cp.Failed {
		r.Failed[id] = reason
	}
	if m != nil {
		r.Stages = m.Snapshot()
	}
	return r
}

// promptVars builds the variable set for prompt rendering from document
// metadata and the extracted bundle.
func promptVars(doc models.SourceDocument, bundle *models.ContentBundle) map[string]string {
	vars := map[string]string{
		"title":       doc.Title,
		"authors":     strings.Join(doc.Authors, ", "),
		"publication": doc.Publication,
		"content":     bundle.Text(),
		"tables":      formatTables(bundle.Tables),
	}
	if doc.Year > 0 {
		vars["year"] = strconv.Itoa(doc.Year)
	}
	return vars
}

// formatTables renders detected table grids as plain text for prompts.
func formatTables(tables []models.TableBlock) string {
	if len(tables) == 0 {
		return "none detected"
	}
	var sb strings.Builder
	for i, t := range tables {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "Table on page %d (%dx%d):\n", t.Page, t.Rows(), t.Cols())
		for _, row := range t.Cells {
			sb.WriteString(strings.Join(row, " | "))
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
