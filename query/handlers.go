package query

import (
	"context"

	"github.com/naashmtp/odoo-shopify-connector/core"
)

// JobReader is the read surface of queue.Engine.
type JobReader interface {
	Get(ctx context.Context, id string) (core.Job, error)
	Stats(ctx context.Context) (core.QueueStats, error)
	BatchStatus(ctx context.Context, parentID string) (core.QueueStats, error)
}

type DeliveryLogReader interface {
	List(ctx context.Context, filter core.DeliveryLogFilter) ([]core.DeliveryLog, error)
}

type RegistrationReader interface {
	ListByScope(ctx context.Context, scope string) ([]core.WebhookRegistration, error)
}

type GetJobQuery struct {
	reader JobReader
}

func NewGetJobQuery(reader JobReader) *GetJobQuery {
	return &GetJobQuery{reader: reader}
}

func (q *GetJobQuery) Query(ctx context.Context, msg GetJobMessage) (core.Job, error) {
	if q == nil || q.reader == nil {
		return core.Job{}, queryDependencyError("query: job reader is required")
	}
	return q.reader.Get(ctx, msg.JobID)
}

type QueueStatsQuery struct {
	reader JobReader
}

func NewQueueStatsQuery(reader JobReader) *QueueStatsQuery {
	return &QueueStatsQuery{reader: reader}
}

func (q *QueueStatsQuery) Query(ctx context.Context, _ QueueStatsMessage) (core.QueueStats, error) {
	if q == nil || q.reader == nil {
		return core.QueueStats{}, queryDependencyError("query: job reader is required")
	}
	return q.reader.Stats(ctx)
}

type BatchStatusQuery struct {
	reader JobReader
}

func NewBatchStatusQuery(reader JobReader) *BatchStatusQuery {
	return &BatchStatusQuery{reader: reader}
}

func (q *BatchStatusQuery) Query(ctx context.Context, msg BatchStatusMessage) (core.QueueStats, error) {
	if q == nil || q.reader == nil {
		return core.QueueStats{}, queryDependencyError("query: job reader is required")
	}
	return q.reader.BatchStatus(ctx, msg.ParentJobID)
}

type ListDeliveryLogsQuery struct {
	reader DeliveryLogReader
}

func NewListDeliveryLogsQuery(reader DeliveryLogReader) *ListDeliveryLogsQuery {
	return &ListDeliveryLogsQuery{reader: reader}
}

func (q *ListDeliveryLogsQuery) Query(ctx context.Context, msg ListDeliveryLogsMessage) ([]core.DeliveryLog, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: delivery log reader is required")
	}
	return q.reader.List(ctx, msg.Filter)
}

type ListWebhookRegistrationsQuery struct {
	reader RegistrationReader
}

func NewListWebhookRegistrationsQuery(reader RegistrationReader) *ListWebhookRegistrationsQuery {
	return &ListWebhookRegistrationsQuery{reader: reader}
}

func (q *ListWebhookRegistrationsQuery) Query(
	ctx context.Context,
	msg ListWebhookRegistrationsMessage,
) ([]core.WebhookRegistration, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: registration reader is required")
	}
	return q.reader.ListByScope(ctx, msg.Scope)
}
