package query

import (
	"strings"

	"github.com/naashmtp/odoo-shopify-connector/core"
)

const (
	TypeGetJob                   = "shopify-sync.query.job.get"
	TypeQueueStats               = "shopify-sync.query.queue.stats"
	TypeBatchStatus              = "shopify-sync.query.import_batch.status"
	TypeListDeliveryLogs         = "shopify-sync.query.webhooks.delivery_logs"
	TypeListWebhookRegistrations = "shopify-sync.query.webhooks.registrations"
)

const maxDeliveryLogLimit = 500

type GetJobMessage struct {
	JobID string
}

func (GetJobMessage) Type() string { return TypeGetJob }

func (m GetJobMessage) Validate() error {
	if strings.TrimSpace(m.JobID) == "" {
		return queryValidationError("job_id", "job id is required")
	}
	return nil
}

type QueueStatsMessage struct{}

func (QueueStatsMessage) Type() string { return TypeQueueStats }

func (QueueStatsMessage) Validate() error { return nil }

type BatchStatusMessage struct {
	ParentJobID string
}

func (BatchStatusMessage) Type() string { return TypeBatchStatus }

func (m BatchStatusMessage) Validate() error {
	if strings.TrimSpace(m.ParentJobID) == "" {
		return queryValidationError("parent_job_id", "parent job id is required")
	}
	return nil
}

type ListDeliveryLogsMessage struct {
	Filter core.DeliveryLogFilter
}

func (ListDeliveryLogsMessage) Type() string { return TypeListDeliveryLogs }

func (m ListDeliveryLogsMessage) Validate() error {
	if m.Filter.Limit < 0 || m.Filter.Limit > maxDeliveryLogLimit {
		return queryValidationError("limit", "limit must be between 0 and 500")
	}
	switch m.Filter.Status {
	case "", core.DeliveryStatusProcessing, core.DeliveryStatusSuccess, core.DeliveryStatusFailed, core.DeliveryStatusError:
		return nil
	default:
		return queryValidationError("status", "unknown delivery status")
	}
}

type ListWebhookRegistrationsMessage struct {
	Scope string
}

func (ListWebhookRegistrationsMessage) Type() string { return TypeListWebhookRegistrations }

func (m ListWebhookRegistrationsMessage) Validate() error {
	if strings.TrimSpace(m.Scope) == "" {
		return queryValidationError("scope", "scope is required")
	}
	return nil
}
