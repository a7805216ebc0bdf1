package gojob

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/naashmtp/odoo-shopify-connector/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

const (
	JobIDPrefix = "shopify-sync."

	defaultPollInterval = time.Second
)

// Engine is the part of the sync queue engine these adapters drive.
type Engine interface {
	Create(ctx context.Context, req core.CreateJobRequest) (core.Job, error)
	Claim(ctx context.Context) (core.Job, bool, error)
	Settle(ctx context.Context, job core.Job, result core.JobResult, handlerErr error) (core.Job, error)
}

// RetryPolicy bounds nack delays and attempts before a job is failed.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// NormalizeAttempt enforces bounded retry behavior for a nack operation.
func (p RetryPolicy) NormalizeAttempt(opts queue.NackOptions, attempt int) queue.NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.DeadLetter {
		out.Requeue = false
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		if p.DeadLetterOnMax || out.DeadLetter {
			out.DeadLetter = true
		}
	}
	if !out.Requeue && !out.DeadLetter {
		out.Requeue = true
	}
	return out
}

// ToExecutionMessage maps a sync job to a go-job message. The job id
// doubles as the idempotency key.
func ToExecutionMessage(j core.Job) *job.ExecutionMessage {
	params := map[string]any{
		"job_id":   j.ID,
		"scope":    j.Scope,
		"priority": int(j.Priority),
		"payload":  copyAnyMap(j.Payload),
	}
	if j.ParentJobID != "" {
		params["parent_job_id"] = j.ParentJobID
	}
	return &job.ExecutionMessage{
		JobID:          JobIDPrefix + string(j.Operation),
		ScriptPath:     string(j.Operation),
		Parameters:     params,
		IdempotencyKey: j.ID,
	}
}

// FromExecutionMessage builds a queued create request from a go-job
// message produced by ToExecutionMessage or by a go-job command.
func FromExecutionMessage(msg *job.ExecutionMessage) (core.CreateJobRequest, error) {
	if msg == nil {
		return core.CreateJobRequest{}, fmt.Errorf("gojob: execution message is required")
	}
	op, err := core.ParseOperation(strings.TrimPrefix(strings.TrimSpace(msg.JobID), JobIDPrefix))
	if err != nil {
		return core.CreateJobRequest{}, fmt.Errorf("gojob: %w", err)
	}
	req := core.CreateJobRequest{
		Operation: op,
		Enqueue:   true,
	}
	req.Scope, _ = msg.Parameters["scope"].(string)
	if payload, ok := msg.Parameters["payload"].(map[string]any); ok {
		req.Payload = copyAnyMap(payload)
	}
	if parent, ok := msg.Parameters["parent_job_id"].(string); ok {
		req.ParentJobID = parent
	}
	switch raw := msg.Parameters["priority"].(type) {
	case int:
		priority := core.Priority(raw)
		req.Priority = &priority
	case float64:
		priority := core.Priority(int(raw))
		req.Priority = &priority
	}
	return req, nil
}

// EngineEnqueuer lets go-job producers enqueue sync jobs.
type EngineEnqueuer struct {
	engine Engine
}

func NewEngineEnqueuer(engine Engine) *EngineEnqueuer {
	return &EngineEnqueuer{engine: engine}
}

func (a *EngineEnqueuer) Enqueue(ctx context.Context, msg *job.ExecutionMessage) error {
	if a == nil || a.engine == nil {
		return fmt.Errorf("gojob: engine is not configured")
	}
	req, err := FromExecutionMessage(msg)
	if err != nil {
		return err
	}
	_, err = a.engine.Create(ctx, req)
	return err
}

// EngineDequeuer lets go-job workers consume the sync queue. Dequeue blocks,
// polling for a due job, until one is claimed or ctx ends.
type EngineDequeuer struct {
	engine Engine
	policy RetryPolicy
	poll   time.Duration
}

func NewEngineDequeuer(engine Engine, policy RetryPolicy, poll time.Duration) *EngineDequeuer {
	if poll <= 0 {
		poll = defaultPollInterval
	}
	return &EngineDequeuer{engine: engine, policy: policy, poll: poll}
}

func (a *EngineDequeuer) Dequeue(ctx context.Context) (queue.Delivery, error) {
	if a == nil || a.engine == nil {
		return nil, fmt.Errorf("gojob: engine is not configured")
	}
	ticker := time.NewTicker(a.poll)
	defer ticker.Stop()
	for {
		claimed, ok, err := a.engine.Claim(ctx)
		if err != nil {
			return nil, err
		}
		if ok {
			return &Delivery{engine: a.engine, job: claimed, policy: a.policy}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Delivery settles a claimed job through the engine.
type Delivery struct {
	engine Engine
	job    core.Job
	policy RetryPolicy
}

func (d *Delivery) Job() core.Job {
	return d.job
}

func (d *Delivery) Message() *job.ExecutionMessage {
	if d == nil {
		return nil
	}
	return ToExecutionMessage(d.job)
}

func (d *Delivery) Ack(ctx context.Context) error {
	if d == nil || d.engine == nil {
		return fmt.Errorf("gojob: delivery is not configured")
	}
	settled, err := d.engine.Settle(ctx, d.job, core.JobResult{}, nil)
	if err != nil {
		return err
	}
	d.job = settled
	return nil
}

// Nack requeues the job as a transient failure. Dead lettered nacks fail
// the job without consuming further retries.
func (d *Delivery) Nack(ctx context.Context, opts queue.NackOptions) error {
	if d == nil || d.engine == nil {
		return fmt.Errorf("gojob: delivery is not configured")
	}
	normalized := d.policy.NormalizeAttempt(opts, d.job.RetryCount+1)
	reason := normalized.Reason
	if reason == "" {
		reason = "nacked by worker"
	}
	fields := map[string]any{"job_id": d.job.ID, "source": "go-job"}

	var handlerErr error
	if normalized.DeadLetter {
		handlerErr = core.ValidationError(reason, fields)
	} else {
		handlerErr = core.TransientNetworkError(nil, reason, fields)
		if normalized.Delay > 0 {
			d.job.RetryDelay = normalized.Delay
		}
	}
	settled, err := d.engine.Settle(ctx, d.job, core.JobResult{}, handlerErr)
	if err != nil {
		return err
	}
	d.job = settled
	return nil
}

// LifecycleHookAdapter forwards engine lifecycle events to a go-job hook.
type LifecycleHookAdapter struct {
	hook worker.Hook
}

func NewLifecycleHookAdapter(hook worker.Hook) *LifecycleHookAdapter {
	return &LifecycleHookAdapter{hook: hook}
}

func (a *LifecycleHookAdapter) OnStart(ctx context.Context, event core.JobLifecycleEvent) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnStart(ctx, toWorkerEvent(event))
}

func (a *LifecycleHookAdapter) OnSuccess(ctx context.Context, event core.JobLifecycleEvent) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnSuccess(ctx, toWorkerEvent(event))
}

func (a *LifecycleHookAdapter) OnFailure(ctx context.Context, event core.JobLifecycleEvent) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnFailure(ctx, toWorkerEvent(event))
}

func (a *LifecycleHookAdapter) OnRetry(ctx context.Context, event core.JobLifecycleEvent) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnRetry(ctx, toWorkerEvent(event))
}

func toWorkerEvent(event core.JobLifecycleEvent) worker.Event {
	return worker.Event{
		Message:   ToExecutionMessage(event.Job),
		Attempt:   event.Attempt,
		Delay:     event.Delay,
		Err:       event.Err,
		StartedAt: event.StartedAt,
		Duration:  event.Duration,
	}
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

var (
	_ queue.Enqueuer        = (*EngineEnqueuer)(nil)
	_ queue.Dequeuer        = (*EngineDequeuer)(nil)
	_ queue.Delivery        = (*Delivery)(nil)
	_ core.JobLifecycleHook = (*LifecycleHookAdapter)(nil)
)
