package sqlstore

import (
	"strings"
	"time"

	"github.com/naashmtp/odoo-shopify-connector/core"
)

func newJobRecord(job core.Job) *jobRecord {
	record := &jobRecord{
		ID:                job.ID,
		Name:              job.Name,
		Operation:         string(job.Operation),
		Scope:             job.Scope,
		State:             string(job.State),
		Priority:          int(job.Priority),
		Exclusive:         job.Exclusive,
		Payload:           copyAnyMap(job.Payload),
		ScheduledAt:       cloneTimePointer(job.ScheduledAt),
		StartedAt:         cloneTimePointer(job.StartedAt),
		FinishedAt:        cloneTimePointer(job.FinishedAt),
		RetryCount:        job.RetryCount,
		MaxRetries:        job.MaxRetries,
		RetryDelayMS:      job.RetryDelay.Milliseconds(),
		ProgressTotal:     job.Progress.Total,
		ProgressProcessed: job.Progress.Processed,
		ProgressSucceeded: job.Progress.Succeeded,
		ProgressFailed:    job.Progress.Failed,
		ErrorMessage:      job.ErrorMessage,
		CreatedAt:         job.CreatedAt.UTC(),
		UpdatedAt:         job.UpdatedAt.UTC(),
	}
	if parent := strings.TrimSpace(job.ParentJobID); parent != "" {
		record.ParentJobID = &parent
	}
	if job.Result != nil {
		record.Result = map[string]any{
			"status":  job.Result.Status,
			"message": job.Result.Message,
		}
		if len(job.Result.Data) > 0 {
			record.Result["data"] = copyAnyMap(job.Result.Data)
		}
	}
	return record
}

func (r *jobRecord) toDomain() core.Job {
	if r == nil {
		return core.Job{}
	}
	job := core.Job{
		ID:          r.ID,
		Name:        r.Name,
		Operation:   core.Operation(r.Operation),
		Scope:       r.Scope,
		State:       core.JobState(r.State),
		Priority:    core.Priority(r.Priority),
		Exclusive:   r.Exclusive,
		Payload:     copyAnyMap(r.Payload),
		ScheduledAt: cloneTimePointer(r.ScheduledAt),
		StartedAt:   cloneTimePointer(r.StartedAt),
		FinishedAt:  cloneTimePointer(r.FinishedAt),
		RetryCount:  r.RetryCount,
		MaxRetries:  r.MaxRetries,
		RetryDelay:  time.Duration(r.RetryDelayMS) * time.Millisecond,
		Progress: core.JobProgress{
			Total:     r.ProgressTotal,
			Processed: r.ProgressProcessed,
			Succeeded: r.ProgressSucceeded,
			Failed:    r.ProgressFailed,
		},
		ErrorMessage: r.ErrorMessage,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
	if r.ParentJobID != nil {
		job.ParentJobID = *r.ParentJobID
	}
	if len(r.Result) > 0 {
		result := &core.JobResult{}
		result.Status, _ = r.Result["status"].(string)
		result.Message, _ = r.Result["message"].(string)
		if data, ok := r.Result["data"].(map[string]any); ok {
			result.Data = copyAnyMap(data)
		}
		job.Result = result
	}
	return job
}

func newShadowRecord(record core.ShadowRecord) *shadowRecord {
	return &shadowRecord{
		ID:                record.ID,
		Kind:              string(record.Kind),
		Scope:             record.Scope,
		ParentID:          record.ParentID,
		ExternalID:        record.ExternalID,
		Data:              copyAnyMap(record.Data),
		Status:            record.Status,
		FulfillmentStatus: record.FulfillmentStatus,
		Imported:          record.Imported,
		LocalLink:         record.LocalLink,
		LastSync:          cloneTimePointer(record.LastSync),
		CreatedAt:         record.CreatedAt.UTC(),
		UpdatedAt:         record.UpdatedAt.UTC(),
	}
}

func (r *shadowRecord) toDomain() core.ShadowRecord {
	if r == nil {
		return core.ShadowRecord{}
	}
	return core.ShadowRecord{
		ID:                r.ID,
		Kind:              core.ShadowKind(r.Kind),
		Scope:             r.Scope,
		ParentID:          r.ParentID,
		ExternalID:        r.ExternalID,
		Data:              copyAnyMap(r.Data),
		Status:            r.Status,
		FulfillmentStatus: r.FulfillmentStatus,
		Imported:          r.Imported,
		LocalLink:         r.LocalLink,
		LastSync:          cloneTimePointer(r.LastSync),
		CreatedAt:         r.CreatedAt.UTC(),
		UpdatedAt:         r.UpdatedAt.UTC(),
	}
}

func (r *registrationRecord) toDomain() core.WebhookRegistration {
	if r == nil {
		return core.WebhookRegistration{}
	}
	return core.WebhookRegistration{
		ID:                r.ID,
		Scope:             r.Scope,
		Topic:             r.Topic,
		Address:           r.Address,
		State:             core.RegistrationState(r.State),
		ExternalWebhookID: r.ExternalWebhookID,
		TotalCalls:        r.TotalCalls,
		SuccessfulCalls:   r.SuccessfulCalls,
		FailedCalls:       r.FailedCalls,
		LastCallAt:        cloneTimePointer(r.LastCallAt),
		CreatedAt:         r.CreatedAt.UTC(),
		UpdatedAt:         r.UpdatedAt.UTC(),
	}
}

func newDeliveryLogRecord(entry core.DeliveryLog) *deliveryLogRecord {
	return &deliveryLogRecord{
		ID:             entry.ID,
		RegistrationID: entry.RegistrationID,
		Scope:          entry.Scope,
		Topic:          entry.Topic,
		DeliveryID:     entry.DeliveryID,
		Payload:        string(entry.Payload),
		Verified:       entry.Verified,
		Status:         string(entry.Status),
		Message:        entry.Message,
		CreatedAt:      entry.CreatedAt.UTC(),
		ProcessedAt:    cloneTimePointer(entry.ProcessedAt),
	}
}

func (r *deliveryLogRecord) toDomain() core.DeliveryLog {
	if r == nil {
		return core.DeliveryLog{}
	}
	return core.DeliveryLog{
		ID:             r.ID,
		RegistrationID: r.RegistrationID,
		Scope:          r.Scope,
		Topic:          r.Topic,
		DeliveryID:     r.DeliveryID,
		Payload:        []byte(r.Payload),
		Verified:       r.Verified,
		Status:         core.DeliveryStatus(r.Status),
		Message:        r.Message,
		CreatedAt:      r.CreatedAt.UTC(),
		ProcessedAt:    cloneTimePointer(r.ProcessedAt),
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

func cloneTimePointer(input *time.Time) *time.Time {
	if input == nil {
		return nil
	}
	value := input.UTC()
	return &value
}
