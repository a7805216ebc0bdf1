package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// ClaimFilter narrows a claim to jobs due at Now. Jobs flagged Exclusive are
// only claimed when no job with the same operation and scope is running.
type ClaimFilter struct {
	Now   time.Time
	Limit int
}

type JobStore interface {
	Create(ctx context.Context, job Job) (Job, error)
	Get(ctx context.Context, id string) (Job, error)
	// Claim atomically moves up to filter.Limit due queued jobs to running,
	// ordered by priority desc then creation order.
	Claim(ctx context.Context, filter ClaimFilter) ([]Job, error)
	// CompareAndSwap persists job when the stored state still equals from.
	// It reports false when another writer moved the job first.
	CompareAndSwap(ctx context.Context, from JobState, job Job) (bool, error)
	// AddProgress increments counters of a running job. ErrJobNotRunning is
	// returned when the job left the running state.
	AddProgress(ctx context.Context, id string, delta ProgressDelta) error
	CountByState(ctx context.Context) (map[JobState]int, error)
	// RequeueStale moves running jobs started before startedBefore back to
	// queued, scheduled at now, without touching the retry count.
	RequeueStale(ctx context.Context, startedBefore time.Time, now time.Time) (int, error)
	PurgeTerminal(ctx context.Context, before time.Time) (int, error)
	ListChildren(ctx context.Context, parentID string) ([]Job, error)
}

type ShadowStore interface {
	FindByKey(ctx context.Context, key NaturalKey) (ShadowRecord, error)
	// Create returns ErrShadowRecordExists when the natural key is taken.
	Create(ctx context.Context, record ShadowRecord) (ShadowRecord, error)
	// UpdateData overwrites the mapped fields and stamps last_sync.
	UpdateData(ctx context.Context, id string, data map[string]any, syncedAt time.Time) (ShadowRecord, error)
	// MarkImported flips the imported flag. Only one caller observes true.
	MarkImported(ctx context.Context, id string) (bool, error)
	ResetImported(ctx context.Context, id string) error
	SetLocalLink(ctx context.Context, id string, link string) error
	SetStatus(ctx context.Context, id string, status string) error
	SetFulfillmentStatus(ctx context.Context, id string, status string) error
	ListChildren(ctx context.Context, parentID string, kind ShadowKind) ([]ShadowRecord, error)
}

type RegistrationStore interface {
	Register(ctx context.Context, in RegisterWebhookInput) (WebhookRegistration, error)
	Get(ctx context.Context, id string) (WebhookRegistration, error)
	FindActive(ctx context.Context, scope string, topic string) (WebhookRegistration, error)
	ListByScope(ctx context.Context, scope string) ([]WebhookRegistration, error)
	SetState(ctx context.Context, id string, state RegistrationState) error
	// RecordCall increments the call counters in a single statement.
	RecordCall(ctx context.Context, id string, success bool, at time.Time) error
}

type DeliveryLogStore interface {
	Append(ctx context.Context, entry DeliveryLog) (DeliveryLog, error)
	// Finish moves a processing entry to a terminal status. Entries already
	// in a terminal status are left untouched.
	Finish(ctx context.Context, id string, status DeliveryStatus, message string, at time.Time) error
	Get(ctx context.Context, id string) (DeliveryLog, error)
	List(ctx context.Context, filter DeliveryLogFilter) ([]DeliveryLog, error)
	PurgeBefore(ctx context.Context, before time.Time) (int, error)
}

type DeliveryLogFilter struct {
	Scope  string
	Topic  string
	Status DeliveryStatus
	Limit  int
}

type ScopeProvider interface {
	GetScope(ctx context.Context, id string) (Scope, error)
	FindByShopDomain(ctx context.Context, domain string) (Scope, error)
}

// KeyLocker serializes work on a natural key.
type KeyLocker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// DeliveryDeduper remembers delivery ids already seen.
type DeliveryDeduper interface {
	MarkSeen(ctx context.Context, deliveryID string, ttl time.Duration) (first bool, err error)
	// Forget releases a delivery id so a redelivery is processed again.
	Forget(ctx context.Context, deliveryID string) error
}

// LocalLinker creates or finds the locally owned record mirrored by a
// shadow record and returns its reference.
type LocalLinker interface {
	Link(ctx context.Context, record ShadowRecord) (string, error)
}

type LocalLinkerFunc func(ctx context.Context, record ShadowRecord) (string, error)

func (f LocalLinkerFunc) Link(ctx context.Context, record ShadowRecord) (string, error) {
	return f(ctx, record)
}

// Upserter is the resolver contract shared by importers and webhook handlers.
type Upserter interface {
	Upsert(ctx context.Context, req UpsertRequest) (ShadowRecord, error)
}

type AuditEntry struct {
	Operation string
	Scope     string
	Status    string
	Message   string
	Fields    map[string]any
	At        time.Time
}

// AuditSink records outcomes. It owns no control flow.
type AuditSink interface {
	Record(ctx context.Context, entry AuditEntry)
}

type JobHandler interface {
	Handle(ctx context.Context, job Job) (JobResult, error)
}

type JobHandlerFunc func(ctx context.Context, job Job) (JobResult, error)

func (f JobHandlerFunc) Handle(ctx context.Context, job Job) (JobResult, error) {
	return f(ctx, job)
}

type JobLifecycleEvent struct {
	Job       Job
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

// JobLifecycleHook observes engine executions.
type JobLifecycleHook interface {
	OnStart(ctx context.Context, event JobLifecycleEvent)
	OnSuccess(ctx context.Context, event JobLifecycleEvent)
	OnFailure(ctx context.Context, event JobLifecycleEvent)
	OnRetry(ctx context.Context, event JobLifecycleEvent)
}
