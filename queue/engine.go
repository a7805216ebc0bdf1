package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/naashmtp/odoo-shopify-connector/core"
)

const (
	defaultBatchSize = 10
	defaultRetention = 30 * 24 * time.Hour

	persistTimeout = 10 * time.Second
	// staleGrace is added to the job timeout before a running job is
	// considered abandoned by its worker.
	staleGrace = time.Minute
)

// DefaultImportOperations are the children created by CreateImportBatch when
// no operation is given.
func DefaultImportOperations() []core.Operation {
	return []core.Operation{
		core.OperationImportProducts,
		core.OperationImportCustomers,
		core.OperationImportOrders,
	}
}

// Engine owns the job lifecycle. It is the only component that decides
// whether a failed job is retried.
type Engine struct {
	jobs        core.JobStore
	handlers    map[core.Operation]core.JobHandler
	unsupported map[core.Operation]bool
	exclusive   map[core.Operation]bool
	cfg         core.QueueConfig
	validate    *validator.Validate
	observer    core.Observer
	audit       core.AuditSink
	hooks       []core.JobLifecycleHook
	now         func() time.Time
}

type Option func(*engineBuilder)

type engineBuilder struct {
	cfg            core.QueueConfig
	unsupported    []core.Operation
	audit          core.AuditSink
	hooks          []core.JobLifecycleHook
	logger         core.Logger
	loggerProvider core.LoggerProvider
	metrics        core.MetricsRecorder
	now            func() time.Time
}

func WithConfig(cfg core.QueueConfig) Option {
	return func(b *engineBuilder) {
		b.cfg = cfg
	}
}

// WithUnsupported marks operations that have no handler on purpose. Jobs for
// them are rejected at creation.
func WithUnsupported(ops ...core.Operation) Option {
	return func(b *engineBuilder) {
		b.unsupported = append(b.unsupported, ops...)
	}
}

func WithAuditSink(sink core.AuditSink) Option {
	return func(b *engineBuilder) {
		b.audit = sink
	}
}

func WithLifecycleHook(hook core.JobLifecycleHook) Option {
	return func(b *engineBuilder) {
		if hook != nil {
			b.hooks = append(b.hooks, hook)
		}
	}
}

func WithLogger(logger core.Logger) Option {
	return func(b *engineBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider core.LoggerProvider) Option {
	return func(b *engineBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(metrics core.MetricsRecorder) Option {
	return func(b *engineBuilder) {
		b.metrics = metrics
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *engineBuilder) {
		if now != nil {
			b.now = now
		}
	}
}

// NewEngine checks that every declared operation has a handler or was marked
// unsupported.
func NewEngine(jobs core.JobStore, handlers map[core.Operation]core.JobHandler, opts ...Option) (*Engine, error) {
	if jobs == nil {
		return nil, queueDependencyError("queue: job store is required")
	}
	builder := engineBuilder{
		cfg: core.DefaultConfig().Queue,
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&builder)
		}
	}

	e := &Engine{
		jobs:        jobs,
		handlers:    make(map[core.Operation]core.JobHandler, len(handlers)),
		unsupported: map[core.Operation]bool{},
		exclusive:   builder.cfg.ExclusiveSet(),
		cfg:         builder.cfg,
		validate:    validator.New(),
		observer:    core.ResolveObserver("queue", builder.loggerProvider, builder.logger, builder.metrics),
		hooks:       builder.hooks,
		now:         builder.now,
	}
	e.audit = builder.audit
	if e.audit == nil {
		e.audit = core.LogAuditSink{Observer: e.observer}
	}
	for op, handler := range handlers {
		if handler != nil {
			e.handlers[op] = handler
		}
	}
	for _, op := range builder.unsupported {
		if _, ok := e.handlers[op]; !ok {
			e.unsupported[op] = true
		}
	}

	missing := make([]string, 0)
	for _, op := range core.Operations() {
		if _, ok := e.handlers[op]; ok {
			continue
		}
		if e.unsupported[op] {
			continue
		}
		missing = append(missing, string(op))
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("queue: no handler for operations %s", strings.Join(missing, ", "))
	}
	return e, nil
}

// Supported reports whether jobs for op can be executed.
func (e *Engine) Supported(op core.Operation) bool {
	_, ok := e.handlers[op]
	return ok
}

type createInput struct {
	Operation  string        `validate:"required"`
	Scope      string        `validate:"required"`
	Priority   int           `validate:"min=0,max=4"`
	MaxRetries int           `validate:"min=0"`
	RetryDelay time.Duration `validate:"min=0"`
}

func (e *Engine) Create(ctx context.Context, req core.CreateJobRequest) (core.Job, error) {
	priority := core.Priority(e.cfg.DefaultPriority)
	if req.Priority != nil {
		priority = *req.Priority
	}
	maxRetries := e.cfg.MaxRetries
	if req.MaxRetries != nil {
		maxRetries = *req.MaxRetries
	}
	retryDelay := e.cfg.RetryDelay
	if req.RetryDelay != nil {
		retryDelay = *req.RetryDelay
	}
	scope := strings.TrimSpace(req.Scope)

	if err := e.validate.Struct(createInput{
		Operation:  string(req.Operation),
		Scope:      scope,
		Priority:   int(priority),
		MaxRetries: maxRetries,
		RetryDelay: retryDelay,
	}); err != nil {
		return core.Job{}, validationFailure(err)
	}
	op, err := core.ParseOperation(string(req.Operation))
	if err != nil {
		return core.Job{}, queueValidationError("operation", err.Error())
	}
	if !e.Supported(op) {
		return core.Job{}, queueUnsupportedError(op)
	}
	payload, err := normalizePayload(req.Payload)
	if err != nil {
		return core.Job{}, queueValidationError("payload", err.Error())
	}

	now := e.now()
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = defaultJobName(op, now)
	}
	job := core.Job{
		ID:          core.NewID(),
		Name:        name,
		Operation:   op,
		Scope:       scope,
		State:       core.JobStateDraft,
		Priority:    priority,
		Exclusive:   e.exclusive[op],
		Payload:     payload,
		MaxRetries:  maxRetries,
		RetryDelay:  retryDelay,
		ParentJobID: strings.TrimSpace(req.ParentJobID),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.ScheduledAt != nil {
		scheduled := req.ScheduledAt.UTC()
		job.ScheduledAt = &scheduled
	}
	if req.Enqueue {
		job.State = core.JobStateQueued
		if job.ScheduledAt == nil {
			job.ScheduledAt = &now
		}
	}

	created, err := e.jobs.Create(ctx, job)
	if err != nil {
		return core.Job{}, err
	}
	e.observer.Debug(ctx, "queue: job created", jobFields(created))
	return created, nil
}

// Enqueue moves a draft job to queued. A schedule set at creation is kept
// when it lies in the future.
func (e *Engine) Enqueue(ctx context.Context, id string) (core.Job, error) {
	job, err := e.jobs.Get(ctx, id)
	if err != nil {
		return core.Job{}, err
	}
	if job.State != core.JobStateDraft {
		return core.Job{}, core.InvalidTransitionError(job.ID, job.State, core.JobStateQueued)
	}
	now := e.now()
	if job.ScheduledAt == nil || job.ScheduledAt.Before(now) {
		job.ScheduledAt = &now
	}
	if err := job.TransitionTo(core.JobStateQueued, now); err != nil {
		return core.Job{}, err
	}
	return e.swap(ctx, core.JobStateDraft, job)
}

func (e *Engine) Get(ctx context.Context, id string) (core.Job, error) {
	return e.jobs.Get(ctx, id)
}

func (e *Engine) Claim(ctx context.Context) (core.Job, bool, error) {
	jobs, err := e.ClaimBatch(ctx, 1)
	if err != nil || len(jobs) == 0 {
		return core.Job{}, false, err
	}
	return jobs[0], true, nil
}

func (e *Engine) ClaimBatch(ctx context.Context, limit int) ([]core.Job, error) {
	if limit <= 0 {
		limit = 1
	}
	return e.jobs.Claim(ctx, core.ClaimFilter{Now: e.now(), Limit: limit})
}

// Execute runs a claimed job and persists the outcome. The returned error
// reports store failures only; handler failures are reflected in the job.
func (e *Engine) Execute(ctx context.Context, job core.Job) (core.Job, error) {
	if job.State != core.JobStateRunning {
		return job, core.InvalidTransitionError(job.ID, job.State, core.JobStateRunning)
	}
	startedAt := e.now()
	e.notify(ctx, func(hook core.JobLifecycleHook, ctx context.Context) {
		hook.OnStart(ctx, core.JobLifecycleEvent{Job: job, Attempt: job.RetryCount + 1, StartedAt: startedAt})
	})

	result, handlerErr := e.run(ctx, job)
	if handlerErr != nil && ctx.Err() != nil {
		persistCtx, cancel := persistContext(ctx)
		defer cancel()
		return e.release(persistCtx, job, handlerErr)
	}
	return e.settle(ctx, job, startedAt, result, handlerErr)
}

// Settle records the outcome of a claimed job whose handler ran outside the
// engine. The same retry and audit rules as Execute apply.
func (e *Engine) Settle(ctx context.Context, job core.Job, result core.JobResult, handlerErr error) (core.Job, error) {
	if job.State != core.JobStateRunning {
		return job, core.InvalidTransitionError(job.ID, job.State, core.JobStateRunning)
	}
	startedAt := e.now()
	if job.StartedAt != nil {
		startedAt = *job.StartedAt
	}
	return e.settle(ctx, job, startedAt, result, handlerErr)
}

func (e *Engine) settle(
	ctx context.Context,
	job core.Job,
	startedAt time.Time,
	result core.JobResult,
	handlerErr error,
) (core.Job, error) {
	ctx, cancel := persistContext(ctx)
	defer cancel()
	fields := jobFields(job)
	now := e.now()
	event := core.JobLifecycleEvent{
		Attempt:   job.RetryCount + 1,
		Err:       handlerErr,
		StartedAt: startedAt,
		Duration:  now.Sub(startedAt),
	}

	next := job
	next.UpdatedAt = now
	var notifyHook func(core.JobLifecycleHook, context.Context)

	switch class := core.Classify(handlerErr); {
	case handlerErr == nil:
		message := strings.TrimSpace(result.Message)
		if message == "" {
			message = "Job completed successfully"
		}
		status := strings.TrimSpace(result.Status)
		if status == "" {
			status = "success"
		}
		next.State = core.JobStateDone
		next.FinishedAt = &now
		next.ErrorMessage = ""
		next.Result = &core.JobResult{Status: status, Message: message, Data: result.Data}
		notifyHook = func(hook core.JobLifecycleHook, ctx context.Context) { hook.OnSuccess(ctx, event) }
	case (class.Recoverable() || class == core.ErrorClassConflict) && job.RetryCount < job.MaxRetries:
		scheduled := now.Add(job.RetryDelay)
		next.State = core.JobStateQueued
		next.RetryCount = job.RetryCount + 1
		next.StartedAt = nil
		next.ScheduledAt = &scheduled
		next.ErrorMessage = handlerErr.Error()
		event.Delay = job.RetryDelay
		notifyHook = func(hook core.JobLifecycleHook, ctx context.Context) { hook.OnRetry(ctx, event) }
	default:
		next.State = core.JobStateFailed
		next.FinishedAt = &now
		next.ErrorMessage = handlerErr.Error()
		next.Result = &core.JobResult{Status: "error", Message: handlerErr.Error()}
		notifyHook = func(hook core.JobLifecycleHook, ctx context.Context) { hook.OnFailure(ctx, event) }
	}

	saved, err := e.swap(ctx, core.JobStateRunning, next)
	if err != nil {
		fields["error"] = err.Error()
		e.observer.Error(ctx, "queue: failed to persist job outcome", fields)
		return job, err
	}
	event.Job = saved
	e.notify(ctx, notifyHook)

	fields["state"] = string(saved.State)
	fields["retry_count"] = saved.RetryCount
	if saved.State == core.JobStateFailed {
		e.audit.Record(ctx, core.AuditEntry{
			Operation: string(saved.Operation),
			Scope:     saved.Scope,
			Status:    "error",
			Message:   fmt.Sprintf("Queue job %s failed: %s", saved.Name, saved.ErrorMessage),
			Fields:    map[string]any{"job_id": saved.ID, "retry_count": saved.RetryCount},
			At:        now,
		})
	}
	e.observer.Observe(ctx, startedAt, "job_execute", handlerErr, fields)
	return saved, nil
}

// RunOnce claims up to limit due jobs and executes them in order. Store
// failures of single jobs are joined and do not stop the batch. When ctx is
// cancelled the jobs not yet started are put back in the queue.
func (e *Engine) RunOnce(ctx context.Context, limit int) (core.RunStats, error) {
	if limit <= 0 {
		limit = e.cfg.BatchSize
	}
	if limit <= 0 {
		limit = defaultBatchSize
	}
	if _, err := e.RequeueStale(ctx); err != nil {
		e.observer.Warn(ctx, "queue: stale job recovery failed", map[string]any{"error": err.Error()})
	}
	claimed, err := e.ClaimBatch(ctx, limit)
	if err != nil {
		return core.RunStats{}, err
	}
	stats := core.RunStats{Claimed: len(claimed)}
	var errs []error
	for index, job := range claimed {
		if ctx.Err() != nil {
			persistCtx, cancel := persistContext(ctx)
			for _, pending := range claimed[index:] {
				if _, err := e.release(persistCtx, pending, ctx.Err()); err != nil {
					errs = append(errs, err)
					continue
				}
				stats.Requeued++
			}
			cancel()
			errs = append(errs, ctx.Err())
			break
		}
		finished, err := e.Execute(ctx, job)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		switch {
		case finished.State == core.JobStateDone:
			stats.Succeeded++
		case finished.State == core.JobStateFailed:
			stats.Failed++
		case finished.RetryCount > job.RetryCount:
			stats.Retried++
		default:
			stats.Requeued++
		}
	}
	return stats, errors.Join(errs...)
}

// RequeueStale puts back running jobs whose worker is gone, judged by a
// start time older than the job timeout plus a grace period. Retries are
// not consumed. Without a job timeout nothing is considered stale.
func (e *Engine) RequeueStale(ctx context.Context) (int, error) {
	if e.cfg.JobTimeout <= 0 {
		return 0, nil
	}
	now := e.now()
	requeued, err := e.jobs.RequeueStale(ctx, now.Add(-(e.cfg.JobTimeout + staleGrace)), now)
	if err != nil {
		return 0, err
	}
	if requeued > 0 {
		e.observer.Warn(ctx, "queue: requeued stale running jobs", map[string]any{"requeued": requeued})
	}
	return requeued, nil
}

// release returns a claimed job to the queue without consuming a retry.
func (e *Engine) release(ctx context.Context, job core.Job, cause error) (core.Job, error) {
	now := e.now()
	next := job
	next.State = core.JobStateQueued
	next.StartedAt = nil
	next.ScheduledAt = &now
	next.UpdatedAt = now
	if cause != nil {
		next.ErrorMessage = cause.Error()
	}
	saved, err := e.swap(ctx, core.JobStateRunning, next)
	if err != nil {
		fields := jobFields(job)
		fields["error"] = err.Error()
		e.observer.Error(ctx, "queue: failed to release job", fields)
		return job, err
	}
	e.observer.Info(ctx, "queue: released interrupted job", jobFields(saved))
	return saved, nil
}

// Retry puts a failed or cancelled job back in the queue with a fresh retry
// budget.
func (e *Engine) Retry(ctx context.Context, id string) (core.Job, error) {
	job, err := e.jobs.Get(ctx, id)
	if err != nil {
		return core.Job{}, err
	}
	from := job.State
	if from != core.JobStateFailed && from != core.JobStateCancelled {
		return core.Job{}, core.InvalidTransitionError(job.ID, from, core.JobStateQueued)
	}
	now := e.now()
	if err := job.TransitionTo(core.JobStateQueued, now); err != nil {
		return core.Job{}, err
	}
	job.RetryCount = 0
	job.ErrorMessage = ""
	job.Result = nil
	job.StartedAt = nil
	job.FinishedAt = nil
	job.ScheduledAt = &now
	return e.swap(ctx, from, job)
}

func (e *Engine) Cancel(ctx context.Context, id string) (core.Job, error) {
	job, err := e.jobs.Get(ctx, id)
	if err != nil {
		return core.Job{}, err
	}
	from := job.State
	switch from {
	case core.JobStateRunning:
		return core.Job{}, queueRunningCancelError(job.ID)
	case core.JobStateDraft, core.JobStateQueued, core.JobStateFailed:
	default:
		return core.Job{}, core.InvalidTransitionError(job.ID, from, core.JobStateCancelled)
	}
	now := e.now()
	if err := job.TransitionTo(core.JobStateCancelled, now); err != nil {
		return core.Job{}, err
	}
	job.FinishedAt = &now
	return e.swap(ctx, from, job)
}

// Purge deletes terminal jobs finished before now-olderThan. Zero means the
// configured retention.
func (e *Engine) Purge(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		olderThan = e.cfg.Retention
	}
	if olderThan <= 0 {
		olderThan = defaultRetention
	}
	cutoff := e.now().Add(-olderThan)
	removed, err := e.jobs.PurgeTerminal(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	e.observer.Info(ctx, "queue: purged terminal jobs", map[string]any{
		"removed": removed,
		"cutoff":  cutoff.Format(time.RFC3339),
	})
	return removed, nil
}

func (e *Engine) Stats(ctx context.Context) (core.QueueStats, error) {
	counts, err := e.jobs.CountByState(ctx)
	if err != nil {
		return core.QueueStats{}, err
	}
	stats := core.QueueStats{Counts: make(map[core.JobState]int, len(core.JobStates()))}
	for _, state := range core.JobStates() {
		stats.Counts[state] = counts[state]
		stats.Total += counts[state]
	}
	return stats, nil
}

// Progress adds delta to the counters of a running job.
func (e *Engine) Progress(ctx context.Context, id string, delta core.ProgressDelta) error {
	if delta.Empty() {
		return nil
	}
	if err := e.jobs.AddProgress(ctx, id, delta); err != nil {
		if errors.Is(err, core.ErrJobNotRunning) {
			return queueProgressError(id, err)
		}
		return err
	}
	return nil
}

// ImportBatch is a parent job grouping one import job per operation.
type ImportBatch struct {
	Parent   core.Job
	Children []core.Job
}

// CreateImportBatch creates a draft parent job grouping one queued child per
// import operation. The parent itself is never claimed.
func (e *Engine) CreateImportBatch(ctx context.Context, scope string, ops ...core.Operation) (ImportBatch, error) {
	if len(ops) == 0 {
		ops = DefaultImportOperations()
	}
	for _, op := range ops {
		if !e.Supported(op) {
			return ImportBatch{}, queueUnsupportedError(op)
		}
	}
	parent, err := e.Create(ctx, core.CreateJobRequest{
		Name:      "Import batch " + strings.TrimSpace(scope),
		Operation: core.OperationCustom,
		Scope:     scope,
		Payload:   map[string]any{"batch": true, "operations": operationNames(ops)},
	})
	if err != nil {
		return ImportBatch{}, err
	}
	batch := ImportBatch{Parent: parent, Children: make([]core.Job, 0, len(ops))}
	for _, op := range ops {
		child, err := e.Create(ctx, core.CreateJobRequest{
			Operation:   op,
			Scope:       scope,
			ParentJobID: parent.ID,
			Enqueue:     true,
		})
		if err != nil {
			return batch, err
		}
		batch.Children = append(batch.Children, child)
	}
	e.observer.Info(ctx, "queue: import batch created", map[string]any{
		"parent_id": parent.ID,
		"scope":     scope,
		"children":  len(batch.Children),
	})
	return batch, nil
}

// BatchStatus summarizes the children of an import batch parent.
func (e *Engine) BatchStatus(ctx context.Context, parentID string) (core.QueueStats, error) {
	children, err := e.jobs.ListChildren(ctx, parentID)
	if err != nil {
		return core.QueueStats{}, err
	}
	stats := core.QueueStats{Counts: make(map[core.JobState]int, len(core.JobStates()))}
	for _, state := range core.JobStates() {
		stats.Counts[state] = 0
	}
	for _, child := range children {
		stats.Counts[child.State]++
		stats.Total++
	}
	return stats, nil
}

func (e *Engine) run(ctx context.Context, job core.Job) (result core.JobResult, err error) {
	handler, ok := e.handlers[job.Operation]
	if !ok {
		return core.JobResult{}, queueUnsupportedError(job.Operation)
	}
	if e.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.JobTimeout)
		defer cancel()
	}
	defer func() {
		if recovered := recover(); recovered != nil {
			result = core.JobResult{}
			err = fmt.Errorf("queue: handler panic: %v", recovered)
		}
	}()
	result, err = handler.Handle(ctx, job)
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		err = core.TransientNetworkError(err, "queue: job "+job.ID+" timed out", map[string]any{"job_id": job.ID})
	}
	return result, err
}

func (e *Engine) swap(ctx context.Context, from core.JobState, job core.Job) (core.Job, error) {
	swapped, err := e.jobs.CompareAndSwap(ctx, from, job)
	if err != nil {
		return core.Job{}, err
	}
	if !swapped {
		current, getErr := e.jobs.Get(ctx, job.ID)
		if getErr != nil {
			return core.Job{}, getErr
		}
		return core.Job{}, core.InvalidTransitionError(job.ID, current.State, job.State)
	}
	return e.jobs.Get(ctx, job.ID)
}

// persistContext keeps outcome writes alive after the worker context is
// cancelled.
func persistContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
}

func (e *Engine) notify(ctx context.Context, fn func(core.JobLifecycleHook, context.Context)) {
	if fn == nil {
		return
	}
	for _, hook := range e.hooks {
		fn(hook, ctx)
	}
}

func normalizePayload(payload map[string]any) (map[string]any, error) {
	if len(payload) == 0 {
		return map[string]any{}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("payload is not JSON serializable: %w", err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("payload is not a JSON object: %w", err)
	}
	return out, nil
}

func defaultJobName(op core.Operation, now time.Time) string {
	words := strings.Split(string(op), "-")
	for index, word := range words {
		if word == "" {
			continue
		}
		words[index] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ") + " - " + now.Format(time.DateTime)
}

func operationNames(ops []core.Operation) []any {
	out := make([]any, 0, len(ops))
	for _, op := range ops {
		out = append(out, string(op))
	}
	return out
}

func jobFields(job core.Job) map[string]any {
	return map[string]any{
		"job_id":        job.ID,
		"job_operation": string(job.Operation),
		"scope":         job.Scope,
		"state":         string(job.State),
		"priority":      job.Priority.String(),
	}
}

func validationFailure(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		first := fieldErrs[0]
		return queueValidationError(strings.ToLower(first.Field()), "failed on "+first.Tag())
	}
	return queueValidationError("job", err.Error())
}
