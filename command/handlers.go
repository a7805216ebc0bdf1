package command

import (
	"context"
	"time"

	gocmd "github.com/goliatone/go-command"
	"github.com/naashmtp/odoo-shopify-connector/core"
	"github.com/naashmtp/odoo-shopify-connector/queue"
)

// QueueService is the mutating surface of queue.Engine.
type QueueService interface {
	Create(ctx context.Context, req core.CreateJobRequest) (core.Job, error)
	Enqueue(ctx context.Context, id string) (core.Job, error)
	Retry(ctx context.Context, id string) (core.Job, error)
	Cancel(ctx context.Context, id string) (core.Job, error)
	Purge(ctx context.Context, olderThan time.Duration) (int, error)
	RunOnce(ctx context.Context, limit int) (core.RunStats, error)
	CreateImportBatch(ctx context.Context, scope string, ops ...core.Operation) (queue.ImportBatch, error)
}

// WebhookService is the mutating surface of webhooks.Dispatcher.
type WebhookService interface {
	RegisterDefaults(ctx context.Context, scope string, baseURL string) ([]core.WebhookRegistration, error)
	PurgeLogs(ctx context.Context, olderThan time.Duration) (int, error)
}

type CreateJobCommand struct {
	service QueueService
}

func NewCreateJobCommand(service QueueService) *CreateJobCommand {
	return &CreateJobCommand{service: service}
}

func (c *CreateJobCommand) Execute(ctx context.Context, msg CreateJobMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: create job service is required")
	}
	out, err := c.service.Create(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type EnqueueJobCommand struct {
	service QueueService
}

func NewEnqueueJobCommand(service QueueService) *EnqueueJobCommand {
	return &EnqueueJobCommand{service: service}
}

func (c *EnqueueJobCommand) Execute(ctx context.Context, msg EnqueueJobMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: enqueue job service is required")
	}
	out, err := c.service.Enqueue(ctx, msg.JobID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RetryJobCommand struct {
	service QueueService
}

func NewRetryJobCommand(service QueueService) *RetryJobCommand {
	return &RetryJobCommand{service: service}
}

func (c *RetryJobCommand) Execute(ctx context.Context, msg RetryJobMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: retry job service is required")
	}
	out, err := c.service.Retry(ctx, msg.JobID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type CancelJobCommand struct {
	service QueueService
}

func NewCancelJobCommand(service QueueService) *CancelJobCommand {
	return &CancelJobCommand{service: service}
}

func (c *CancelJobCommand) Execute(ctx context.Context, msg CancelJobMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: cancel job service is required")
	}
	out, err := c.service.Cancel(ctx, msg.JobID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type PurgeJobsCommand struct {
	service QueueService
}

func NewPurgeJobsCommand(service QueueService) *PurgeJobsCommand {
	return &PurgeJobsCommand{service: service}
}

func (c *PurgeJobsCommand) Execute(ctx context.Context, msg PurgeJobsMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: purge jobs service is required")
	}
	removed, err := c.service.Purge(ctx, msg.OlderThan)
	if err != nil {
		return err
	}
	storeResult(ctx, removed)
	return nil
}

type RunQueueOnceCommand struct {
	service QueueService
}

func NewRunQueueOnceCommand(service QueueService) *RunQueueOnceCommand {
	return &RunQueueOnceCommand{service: service}
}

func (c *RunQueueOnceCommand) Execute(ctx context.Context, msg RunQueueOnceMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: run queue service is required")
	}
	stats, err := c.service.RunOnce(ctx, msg.Limit)
	if err != nil {
		return err
	}
	storeResult(ctx, stats)
	return nil
}

type CreateImportBatchCommand struct {
	service QueueService
}

func NewCreateImportBatchCommand(service QueueService) *CreateImportBatchCommand {
	return &CreateImportBatchCommand{service: service}
}

func (c *CreateImportBatchCommand) Execute(ctx context.Context, msg CreateImportBatchMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: import batch service is required")
	}
	batch, err := c.service.CreateImportBatch(ctx, msg.Scope, msg.Operations...)
	if err != nil {
		return err
	}
	storeResult(ctx, batch)
	return nil
}

type RegisterWebhooksCommand struct {
	service WebhookService
}

func NewRegisterWebhooksCommand(service WebhookService) *RegisterWebhooksCommand {
	return &RegisterWebhooksCommand{service: service}
}

func (c *RegisterWebhooksCommand) Execute(ctx context.Context, msg RegisterWebhooksMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: webhook service is required")
	}
	registrations, err := c.service.RegisterDefaults(ctx, msg.Scope, msg.BaseURL)
	if err != nil {
		return err
	}
	storeResult(ctx, registrations)
	return nil
}

type PurgeDeliveryLogsCommand struct {
	service WebhookService
}

func NewPurgeDeliveryLogsCommand(service WebhookService) *PurgeDeliveryLogsCommand {
	return &PurgeDeliveryLogsCommand{service: service}
}

func (c *PurgeDeliveryLogsCommand) Execute(ctx context.Context, msg PurgeDeliveryLogsMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: webhook service is required")
	}
	removed, err := c.service.PurgeLogs(ctx, msg.OlderThan)
	if err != nil {
		return err
	}
	storeResult(ctx, removed)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
