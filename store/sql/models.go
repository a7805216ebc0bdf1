package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type jobRecord struct {
	bun.BaseModel `bun:"table:sync_jobs,alias:sj"`

	ID                string         `bun:"id,pk"`
	Name              string         `bun:"name,notnull"`
	Operation         string         `bun:"operation,notnull"`
	Scope             string         `bun:"scope,notnull"`
	State             string         `bun:"state,notnull"`
	Priority          int            `bun:"priority,notnull"`
	Exclusive         bool           `bun:"exclusive,notnull"`
	Payload           map[string]any `bun:"payload,type:jsonb,notnull"`
	ScheduledAt       *time.Time     `bun:"scheduled_at,nullzero"`
	StartedAt         *time.Time     `bun:"started_at,nullzero"`
	FinishedAt        *time.Time     `bun:"finished_at,nullzero"`
	RetryCount        int            `bun:"retry_count,notnull"`
	MaxRetries        int            `bun:"max_retries,notnull"`
	RetryDelayMS      int64          `bun:"retry_delay_ms,notnull"`
	ProgressTotal     int64          `bun:"progress_total,notnull"`
	ProgressProcessed int64          `bun:"progress_processed,notnull"`
	ProgressSucceeded int64          `bun:"progress_succeeded,notnull"`
	ProgressFailed    int64          `bun:"progress_failed,notnull"`
	ParentJobID       *string        `bun:"parent_job_id"`
	ErrorMessage      string         `bun:"error_message,notnull"`
	Result            map[string]any `bun:"result,type:jsonb"`
	CreatedAt         time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt         time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type shadowRecord struct {
	bun.BaseModel `bun:"table:sync_shadow_records,alias:ssr"`

	ID                string         `bun:"id,pk"`
	Kind              string         `bun:"kind,notnull"`
	Scope             string         `bun:"scope,notnull"`
	ParentID          string         `bun:"parent_id,notnull"`
	ExternalID        string         `bun:"external_id,notnull"`
	Data              map[string]any `bun:"data,type:jsonb,notnull"`
	Status            string         `bun:"status,notnull"`
	FulfillmentStatus string         `bun:"fulfillment_status,notnull"`
	Imported          bool           `bun:"imported,notnull"`
	LocalLink         string         `bun:"local_link,notnull"`
	LastSync          *time.Time     `bun:"last_sync,nullzero"`
	CreatedAt         time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt         time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type registrationRecord struct {
	bun.BaseModel `bun:"table:sync_webhook_registrations,alias:swr"`

	ID                string     `bun:"id,pk"`
	Scope             string     `bun:"scope,notnull"`
	Topic             string     `bun:"topic,notnull"`
	Address           string     `bun:"address,notnull"`
	State             string     `bun:"state,notnull"`
	ExternalWebhookID string     `bun:"external_webhook_id,notnull"`
	TotalCalls        int64      `bun:"total_calls,notnull"`
	SuccessfulCalls   int64      `bun:"successful_calls,notnull"`
	FailedCalls       int64      `bun:"failed_calls,notnull"`
	LastCallAt        *time.Time `bun:"last_call_at,nullzero"`
	CreatedAt         time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt         time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type deliveryLogRecord struct {
	bun.BaseModel `bun:"table:sync_webhook_delivery_logs,alias:swdl"`

	ID             string     `bun:"id,pk"`
	RegistrationID string     `bun:"registration_id,notnull"`
	Scope          string     `bun:"scope,notnull"`
	Topic          string     `bun:"topic,notnull"`
	DeliveryID     string     `bun:"delivery_id,notnull"`
	Payload        string     `bun:"payload,notnull"`
	Verified       bool       `bun:"verified,notnull"`
	Status         string     `bun:"status,notnull"`
	Message        string     `bun:"message,notnull"`
	CreatedAt      time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	ProcessedAt    *time.Time `bun:"processed_at,nullzero"`
}

type stateCountRow struct {
	State string `bun:"state"`
	Count int    `bun:"count"`
}
