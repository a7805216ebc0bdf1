package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidJobStateTransition = errors.New("core: invalid job state transition")
	ErrJobNotFound               = errors.New("core: job not found")
	ErrShadowRecordNotFound      = errors.New("core: shadow record not found")
	ErrRegistrationNotFound      = errors.New("core: webhook registration not found")
	ErrDeliveryLogNotFound       = errors.New("core: delivery log not found")
	ErrScopeNotFound             = errors.New("core: scope not found")
	ErrUnknownOperation          = errors.New("core: unknown job operation")
	ErrJobNotRunning             = errors.New("core: job is not running")
	ErrShadowRecordExists        = errors.New("core: shadow record already exists")
)

// NewID returns a time ordered identifier. Ids created later sort after
// earlier ones, which keeps FIFO ordering stable on ties.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = 5 * time.Minute
)

type Operation string

const (
	OperationImportProducts    Operation = "import-products"
	OperationExportProducts    Operation = "export-products"
	OperationImportOrders      Operation = "import-orders"
	OperationImportCustomers   Operation = "import-customers"
	OperationSyncStock         Operation = "sync-stock"
	OperationSyncPrices        Operation = "sync-prices"
	OperationProcessWebhook    Operation = "process-webhook"
	OperationExportOrderStatus Operation = "export-order-status"
	OperationImportRefunds     Operation = "import-refunds"
	OperationCustom            Operation = "custom"
)

// Operations lists every declared operation. Handler tables are checked
// against it at construction time.
func Operations() []Operation {
	return []Operation{
		OperationImportProducts,
		OperationExportProducts,
		OperationImportOrders,
		OperationImportCustomers,
		OperationSyncStock,
		OperationSyncPrices,
		OperationProcessWebhook,
		OperationExportOrderStatus,
		OperationImportRefunds,
		OperationCustom,
	}
}

func ParseOperation(raw string) (Operation, error) {
	candidate := Operation(strings.TrimSpace(strings.ToLower(raw)))
	for _, op := range Operations() {
		if op == candidate {
			return op, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownOperation, raw)
}

// DefaultExclusiveOperations run at most once per scope at a time.
func DefaultExclusiveOperations() []Operation {
	return []Operation{OperationSyncStock, OperationSyncPrices}
}

type JobState string

const (
	JobStateDraft     JobState = "draft"
	JobStateQueued    JobState = "queued"
	JobStateRunning   JobState = "running"
	JobStateDone      JobState = "done"
	JobStateFailed    JobState = "failed"
	JobStateCancelled JobState = "cancelled"
)

func JobStates() []JobState {
	return []JobState{
		JobStateDraft,
		JobStateQueued,
		JobStateRunning,
		JobStateDone,
		JobStateFailed,
		JobStateCancelled,
	}
}

func (s JobState) Terminal() bool {
	switch s {
	case JobStateDone, JobStateFailed, JobStateCancelled:
		return true
	default:
		return false
	}
}

type Priority int

const (
	PriorityVeryLow  Priority = 0
	PriorityLow      Priority = 1
	PriorityNormal   Priority = 2
	PriorityHigh     Priority = 3
	PriorityVeryHigh Priority = 4
)

func (p Priority) Valid() bool {
	return p >= PriorityVeryLow && p <= PriorityVeryHigh
}

func (p Priority) String() string {
	switch p {
	case PriorityVeryLow:
		return "very-low"
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityVeryHigh:
		return "very-high"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

type JobResult struct {
	Status  string         `json:"status"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

type JobProgress struct {
	Total     int64
	Processed int64
	Succeeded int64
	Failed    int64
}

type ProgressDelta struct {
	Total     int64
	Processed int64
	Succeeded int64
	Failed    int64
}

func (d ProgressDelta) Empty() bool {
	return d.Total == 0 && d.Processed == 0 && d.Succeeded == 0 && d.Failed == 0
}

type Job struct {
	ID           string
	Name         string
	Operation    Operation
	Scope        string
	State        JobState
	Priority     Priority
	Exclusive    bool
	Payload      map[string]any
	ScheduledAt  *time.Time
	StartedAt    *time.Time
	FinishedAt   *time.Time
	RetryCount   int
	MaxRetries   int
	RetryDelay   time.Duration
	Progress     JobProgress
	ParentJobID  string
	ErrorMessage string
	Result       *JobResult
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TransitionTo applies a state change after validating it against the job
// lifecycle table.
func (j *Job) TransitionTo(state JobState, now time.Time) error {
	if j == nil {
		return nil
	}
	if !JobTransitionAllowed(j.State, state) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidJobStateTransition, j.State, state)
	}
	j.State = state
	j.UpdatedAt = now
	return nil
}

func JobTransitionAllowed(current, next JobState) bool {
	allowed := map[JobState]map[JobState]struct{}{
		JobStateDraft: {
			JobStateQueued:    {},
			JobStateCancelled: {},
		},
		JobStateQueued: {
			JobStateRunning:   {},
			JobStateCancelled: {},
		},
		JobStateRunning: {
			JobStateDone:   {},
			JobStateQueued: {},
			JobStateFailed: {},
		},
		JobStateFailed: {
			JobStateQueued:    {},
			JobStateCancelled: {},
		},
		JobStateCancelled: {
			JobStateQueued: {},
		},
		JobStateDone: {},
	}
	_, ok := allowed[current][next]
	return ok
}

type CreateJobRequest struct {
	Name        string
	Operation   Operation
	Scope       string
	Priority    *Priority
	Payload     map[string]any
	MaxRetries  *int
	RetryDelay  *time.Duration
	ParentJobID string
	ScheduledAt *time.Time
	// Enqueue skips the draft state.
	Enqueue bool
}

type QueueStats struct {
	Counts map[JobState]int
	Total  int
}

type RunStats struct {
	Claimed   int
	Succeeded int
	Retried   int
	Failed    int
	Requeued  int
}

type ShadowKind string

const (
	ShadowKindProduct   ShadowKind = "product"
	ShadowKindVariant   ShadowKind = "variant"
	ShadowKindOrder     ShadowKind = "order"
	ShadowKindOrderLine ShadowKind = "order_line"
	ShadowKindCustomer  ShadowKind = "customer"
	ShadowKindAddress   ShadowKind = "address"
	ShadowKindRefund    ShadowKind = "refund"
)

const (
	ShadowStatusCancelled        = "cancelled"
	FulfillmentStatusFulfilled   = "fulfilled"
	FulfillmentStatusPartial     = "partial"
	FulfillmentStatusUnfulfilled = "unfulfilled"
)

// NaturalKey identifies a shadow record. Root records are keyed by scope,
// nested children by their parent record id.
type NaturalKey struct {
	Kind       ShadowKind
	Scope      string
	ParentID   string
	ExternalID string
}

func (k NaturalKey) String() string {
	owner := strings.TrimSpace(k.Scope)
	if strings.TrimSpace(k.ParentID) != "" {
		owner = "parent:" + strings.TrimSpace(k.ParentID)
	}
	return string(k.Kind) + "::" + owner + "::" + strings.TrimSpace(k.ExternalID)
}

type ShadowRecord struct {
	ID                string
	Kind              ShadowKind
	Scope             string
	ParentID          string
	ExternalID        string
	Data              map[string]any
	Status            string
	FulfillmentStatus string
	Imported          bool
	LocalLink         string
	LastSync          *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (r ShadowRecord) Key() NaturalKey {
	return NaturalKey{
		Kind:       r.Kind,
		Scope:      r.Scope,
		ParentID:   r.ParentID,
		ExternalID: r.ExternalID,
	}
}

type ChildPayload struct {
	ExternalID string `validate:"required"`
	Data       map[string]any
}

type UpsertRequest struct {
	Kind       ShadowKind `validate:"required"`
	Scope      string     `validate:"required"`
	ExternalID string     `validate:"required"`
	Data       map[string]any
	Children   map[ShadowKind][]ChildPayload `validate:"dive,dive"`
}

type RegistrationState string

const (
	RegistrationStateActive   RegistrationState = "active"
	RegistrationStateInactive RegistrationState = "inactive"
	RegistrationStateError    RegistrationState = "error"
)

type WebhookRegistration struct {
	ID                string
	Scope             string
	Topic             string
	Address           string
	State             RegistrationState
	ExternalWebhookID string
	TotalCalls        int64
	SuccessfulCalls   int64
	FailedCalls       int64
	LastCallAt        *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type RegisterWebhookInput struct {
	Scope             string `validate:"required"`
	Topic             string `validate:"required"`
	Address           string
	ExternalWebhookID string
	State             RegistrationState
}

type DeliveryStatus string

const (
	DeliveryStatusProcessing DeliveryStatus = "processing"
	DeliveryStatusSuccess    DeliveryStatus = "success"
	DeliveryStatusFailed     DeliveryStatus = "failed"
	DeliveryStatusError      DeliveryStatus = "error"
)

func (s DeliveryStatus) Terminal() bool {
	return s == DeliveryStatusSuccess || s == DeliveryStatusFailed || s == DeliveryStatusError
}

type DeliveryLog struct {
	ID             string
	RegistrationID string
	Scope          string
	Topic          string
	DeliveryID     string
	Payload        []byte
	Verified       bool
	Status         DeliveryStatus
	Message        string
	CreatedAt      time.Time
	ProcessedAt    *time.Time
}

// Scope carries the per-instance settings the core consumes.
type Scope struct {
	ID              string
	ShopURL         string
	AccessToken     string
	WebhookSecret   string
	AllowUnverified bool
	Active          bool
}

// NormalizeShopDomain reduces a shop URL or domain header to its host,
// lower cased, without scheme or trailing slash.
func NormalizeShopDomain(raw string) string {
	domain := strings.ToLower(strings.TrimSpace(raw))
	domain = strings.TrimPrefix(domain, "https://")
	domain = strings.TrimPrefix(domain, "http://")
	if idx := strings.IndexByte(domain, '/'); idx >= 0 {
		domain = domain[:idx]
	}
	return domain
}

type InboundRequest struct {
	Scope    string
	Topic    string
	Headers  map[string]string
	Body     []byte
	Metadata map[string]any
}
