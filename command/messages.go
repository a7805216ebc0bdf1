package command

import (
	"strings"
	"time"

	"github.com/naashmtp/odoo-shopify-connector/core"
)

const (
	TypeCreateJob         = "shopify-sync.command.job.create"
	TypeEnqueueJob        = "shopify-sync.command.job.enqueue"
	TypeRetryJob          = "shopify-sync.command.job.retry"
	TypeCancelJob         = "shopify-sync.command.job.cancel"
	TypePurgeJobs         = "shopify-sync.command.job.purge"
	TypeRunQueueOnce      = "shopify-sync.command.queue.run_once"
	TypeCreateImportBatch = "shopify-sync.command.import_batch.create"
	TypeRegisterWebhooks  = "shopify-sync.command.webhooks.register"
	TypePurgeDeliveryLogs = "shopify-sync.command.webhooks.purge_logs"
)

type CreateJobMessage struct {
	Request core.CreateJobRequest
}

func (CreateJobMessage) Type() string { return TypeCreateJob }

func (m CreateJobMessage) Validate() error {
	if _, err := core.ParseOperation(string(m.Request.Operation)); err != nil {
		return commandValidationError("operation", err.Error())
	}
	if m.Request.Priority != nil && !m.Request.Priority.Valid() {
		return commandValidationError("priority", "priority must be low, normal or high")
	}
	if m.Request.MaxRetries != nil && *m.Request.MaxRetries < 0 {
		return commandValidationError("max_retries", "max retries cannot be negative")
	}
	if m.Request.RetryDelay != nil && *m.Request.RetryDelay < 0 {
		return commandValidationError("retry_delay", "retry delay cannot be negative")
	}
	return nil
}

type EnqueueJobMessage struct {
	JobID string
}

func (EnqueueJobMessage) Type() string { return TypeEnqueueJob }

func (m EnqueueJobMessage) Validate() error {
	return validateJobID(m.JobID)
}

type RetryJobMessage struct {
	JobID string
}

func (RetryJobMessage) Type() string { return TypeRetryJob }

func (m RetryJobMessage) Validate() error {
	return validateJobID(m.JobID)
}

type CancelJobMessage struct {
	JobID string
}

func (CancelJobMessage) Type() string { return TypeCancelJob }

func (m CancelJobMessage) Validate() error {
	return validateJobID(m.JobID)
}

// PurgeJobsMessage removes terminal jobs older than OlderThan. Zero uses the
// engine retention.
type PurgeJobsMessage struct {
	OlderThan time.Duration
}

func (PurgeJobsMessage) Type() string { return TypePurgeJobs }

func (m PurgeJobsMessage) Validate() error {
	if m.OlderThan < 0 {
		return commandValidationError("older_than", "retention cannot be negative")
	}
	return nil
}

type RunQueueOnceMessage struct {
	Limit int
}

func (RunQueueOnceMessage) Type() string { return TypeRunQueueOnce }

func (m RunQueueOnceMessage) Validate() error {
	if m.Limit < 0 {
		return commandValidationError("limit", "limit cannot be negative")
	}
	return nil
}

// CreateImportBatchMessage with no operations imports products, customers
// and orders.
type CreateImportBatchMessage struct {
	Scope      string
	Operations []core.Operation
}

func (CreateImportBatchMessage) Type() string { return TypeCreateImportBatch }

func (m CreateImportBatchMessage) Validate() error {
	if strings.TrimSpace(m.Scope) == "" {
		return commandValidationError("scope", "scope is required")
	}
	for _, op := range m.Operations {
		if _, err := core.ParseOperation(string(op)); err != nil {
			return commandValidationError("operations", err.Error())
		}
	}
	return nil
}

type RegisterWebhooksMessage struct {
	Scope   string
	BaseURL string
}

func (RegisterWebhooksMessage) Type() string { return TypeRegisterWebhooks }

func (m RegisterWebhooksMessage) Validate() error {
	if strings.TrimSpace(m.Scope) == "" {
		return commandValidationError("scope", "scope is required")
	}
	baseURL := strings.TrimSpace(m.BaseURL)
	if !strings.HasPrefix(baseURL, "https://") && !strings.HasPrefix(baseURL, "http://") {
		return commandValidationError("base_url", "base url must be absolute")
	}
	return nil
}

type PurgeDeliveryLogsMessage struct {
	OlderThan time.Duration
}

func (PurgeDeliveryLogsMessage) Type() string { return TypePurgeDeliveryLogs }

func (m PurgeDeliveryLogsMessage) Validate() error {
	if m.OlderThan < 0 {
		return commandValidationError("older_than", "retention cannot be negative")
	}
	return nil
}

func validateJobID(id string) error {
	if strings.TrimSpace(id) == "" {
		return commandValidationError("job_id", "job id is required")
	}
	return nil
}
