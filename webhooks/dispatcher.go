package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/naashmtp/odoo-shopify-connector/core"
)

const defaultLogRetention = 30 * 24 * time.Hour

// HandlerResult is the outcome reported by a topic handler. OK=false marks
// a handled but unsuccessful delivery, such as an event for an unknown
// record.
type HandlerResult struct {
	OK      bool
	Message string
}

type Event struct {
	Scope      string
	Topic      Topic
	DeliveryID string
	Payload    map[string]any
	Headers    map[string]string
}

type TopicHandler func(ctx context.Context, event Event) (HandlerResult, error)

type Dispatcher struct {
	registrations core.RegistrationStore
	logs          core.DeliveryLogStore
	shadows       core.ShadowStore
	upserter      core.Upserter
	scopes        core.ScopeProvider
	deduper       core.DeliveryDeduper
	dedupeTTL     time.Duration
	handlers      map[Topic]TopicHandler
	observer      core.Observer
	now           func() time.Time
}

type DispatcherOption func(*dispatcherBuilder)

type dispatcherBuilder struct {
	scopes         core.ScopeProvider
	deduper        core.DeliveryDeduper
	dedupeTTL      time.Duration
	logger         core.Logger
	loggerProvider core.LoggerProvider
	metrics        core.MetricsRecorder
	overrides      map[Topic]TopicHandler
	now            func() time.Time
}

// WithDeduper suppresses repeated X-Shopify-Webhook-Id deliveries seen
// within ttl.
func WithDeduper(deduper core.DeliveryDeduper, ttl time.Duration) DispatcherOption {
	return func(b *dispatcherBuilder) {
		b.deduper = deduper
		b.dedupeTTL = ttl
	}
}

// WithScopeProvider lets the dispatcher record whether a delivery carried a
// valid signature for its scope.
func WithScopeProvider(scopes core.ScopeProvider) DispatcherOption {
	return func(b *dispatcherBuilder) {
		b.scopes = scopes
	}
}

func WithLogger(logger core.Logger) DispatcherOption {
	return func(b *dispatcherBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider core.LoggerProvider) DispatcherOption {
	return func(b *dispatcherBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(metrics core.MetricsRecorder) DispatcherOption {
	return func(b *dispatcherBuilder) {
		b.metrics = metrics
	}
}

// WithTopicHandler replaces the built-in handler for topic.
func WithTopicHandler(topic Topic, handler TopicHandler) DispatcherOption {
	return func(b *dispatcherBuilder) {
		if b.overrides == nil {
			b.overrides = map[Topic]TopicHandler{}
		}
		b.overrides[topic] = handler
	}
}

func WithClock(now func() time.Time) DispatcherOption {
	return func(b *dispatcherBuilder) {
		b.now = now
	}
}

func NewDispatcher(
	registrations core.RegistrationStore,
	logs core.DeliveryLogStore,
	shadows core.ShadowStore,
	upserter core.Upserter,
	opts ...DispatcherOption,
) (*Dispatcher, error) {
	if registrations == nil || logs == nil {
		return nil, fmt.Errorf("webhooks: registration and delivery log stores are required")
	}
	if shadows == nil || upserter == nil {
		return nil, fmt.Errorf("webhooks: shadow store and upserter are required")
	}
	builder := dispatcherBuilder{
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&builder)
		}
	}

	d := &Dispatcher{
		registrations: registrations,
		logs:          logs,
		shadows:       shadows,
		upserter:      upserter,
		scopes:        builder.scopes,
		deduper:       builder.deduper,
		dedupeTTL:     builder.dedupeTTL,
		observer:      core.ResolveObserver("webhooks", builder.loggerProvider, builder.logger, builder.metrics),
		now:           builder.now,
	}
	d.handlers = d.defaultHandlers()
	for topic, handler := range builder.overrides {
		if handler != nil {
			d.handlers[topic] = handler
		}
	}
	for _, topic := range Topics() {
		if _, ok := d.handlers[topic]; !ok {
			return nil, fmt.Errorf("webhooks: no handler for topic %s", topic)
		}
	}
	return d, nil
}

// Dispatch routes one delivery and reports whether it was processed
// successfully. It never returns an error and never panics; failures are
// logged and recorded in the delivery log.
func (d *Dispatcher) Dispatch(
	ctx context.Context,
	topic string,
	payload []byte,
	headers map[string]string,
	scope string,
) bool {
	ok, _ := d.dispatch(ctx, topic, payload, headers, scope)
	return ok
}

// dispatch returns the classified reason of an unsuccessful delivery next to
// the outcome. Handler errors are returned as is; handled but unsuccessful
// deliveries and unroutable events are validation errors.
func (d *Dispatcher) dispatch(
	ctx context.Context,
	topic string,
	payload []byte,
	headers map[string]string,
	scope string,
) (bool, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	startedAt := time.Now()
	topic = strings.TrimSpace(topic)
	fields := map[string]any{"topic": topic, "scope": scope}

	handler, ok := d.handlers[Topic(topic)]
	if !ok {
		d.observer.Warn(ctx, "webhooks: unhandled webhook topic", fields)
		return false, core.ValidationError("webhooks: unhandled topic "+topic, map[string]any{"scope": scope})
	}
	registration, err := d.registrations.FindActive(ctx, scope, topic)
	if err != nil {
		fields["error"] = err.Error()
		d.observer.Warn(ctx, "webhooks: no active webhook registration", fields)
		if errors.Is(err, core.ErrRegistrationNotFound) {
			return false, core.ValidationError("webhooks: no active registration for "+topic, map[string]any{"scope": scope})
		}
		return false, err
	}
	fields["registration_id"] = registration.ID

	deliveryID := headerValue(headers, HeaderWebhookID)
	if deliveryID != "" {
		fields["delivery_id"] = deliveryID
	}
	marked := false
	if d.deduper != nil && deliveryID != "" {
		first, err := d.deduper.MarkSeen(ctx, deliveryID, d.dedupeTTL)
		switch {
		case err != nil:
			fields["error"] = err.Error()
			d.observer.Warn(ctx, "webhooks: dedupe check failed, processing delivery", fields)
			delete(fields, "error")
		case !first:
			d.observer.Info(ctx, "webhooks: duplicate delivery ignored", fields)
			d.observer.Count(ctx, "webhooks.duplicate", map[string]string{"topic": topic})
			return true, nil
		default:
			marked = true
		}
	}
	// A delivery that did not succeed must stay eligible for redelivery and
	// for job retries.
	forget := func() {
		if !marked {
			return
		}
		if err := d.deduper.Forget(ctx, deliveryID); err != nil {
			d.observer.Error(ctx, "webhooks: failed to release delivery id", map[string]any{
				"delivery_id": deliveryID,
				"topic":       topic,
				"error":       err.Error(),
			})
		}
	}

	entry, err := d.logs.Append(ctx, core.DeliveryLog{
		RegistrationID: registration.ID,
		Scope:          scope,
		Topic:          topic,
		DeliveryID:     deliveryID,
		Payload:        append([]byte(nil), payload...),
		Verified:       d.verified(ctx, scope, payload, headers),
		Status:         core.DeliveryStatusProcessing,
		CreatedAt:      d.now(),
	})
	if err != nil {
		forget()
		d.observer.Observe(ctx, startedAt, "webhook_dispatch", err, fields)
		return false, err
	}

	result, err := d.run(ctx, handler, Event{
		Scope:      scope,
		Topic:      Topic(topic),
		DeliveryID: deliveryID,
		Headers:    headers,
	}, payload)

	status := core.DeliveryStatusSuccess
	message := strings.TrimSpace(result.Message)
	switch {
	case err != nil:
		status = core.DeliveryStatusError
		message = err.Error()
	case !result.OK:
		status = core.DeliveryStatusFailed
		if message == "" {
			message = "Processing failed"
		}
	case message == "":
		message = "Processed successfully"
	}
	success := status == core.DeliveryStatusSuccess
	finishedAt := d.now()

	fields["delivery_log_id"] = entry.ID
	if finishErr := d.logs.Finish(ctx, entry.ID, status, message, finishedAt); finishErr != nil {
		d.observer.Error(ctx, "webhooks: failed to finish delivery log", map[string]any{
			"delivery_log_id": entry.ID,
			"delivery_status": string(status),
			"topic":           topic,
			"error":           finishErr.Error(),
		})
	}
	if callErr := d.registrations.RecordCall(ctx, registration.ID, success, finishedAt); callErr != nil {
		d.observer.Error(ctx, "webhooks: failed to record registration call", map[string]any{
			"registration_id": registration.ID,
			"topic":           topic,
			"error":           callErr.Error(),
		})
	}

	fields["delivery_status"] = string(status)
	if !success {
		forget()
		if err == nil {
			err = core.ValidationError("webhooks: "+message, map[string]any{"topic": topic, "scope": scope})
		}
	}
	d.observer.Observe(ctx, startedAt, "webhook_dispatch", err, fields)
	return success, err
}

// PurgeLogs removes delivery log entries older than olderThan. Zero means
// the default retention of 30 days.
func (d *Dispatcher) PurgeLogs(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		olderThan = defaultLogRetention
	}
	cutoff := d.now().Add(-olderThan)
	removed, err := d.logs.PurgeBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	d.observer.Info(ctx, "webhooks: purged delivery logs", map[string]any{
		"removed": removed,
		"cutoff":  cutoff.Format(time.RFC3339),
	})
	return removed, nil
}

func (d *Dispatcher) run(ctx context.Context, handler TopicHandler, event Event, payload []byte) (result HandlerResult, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			result = HandlerResult{}
			err = fmt.Errorf("webhooks: handler panic: %v", recovered)
		}
	}()
	event.Payload, err = decodePayload(payload)
	if err != nil {
		return HandlerResult{}, err
	}
	return handler(ctx, event)
}

func (d *Dispatcher) verified(ctx context.Context, scope string, payload []byte, headers map[string]string) bool {
	if d.scopes == nil {
		return false
	}
	resolved, err := d.scopes.GetScope(ctx, scope)
	if err != nil || strings.TrimSpace(resolved.WebhookSecret) == "" {
		return false
	}
	return Verify(payload, headerValue(headers, HeaderHMAC), strings.TrimSpace(resolved.WebhookSecret))
}

func decodePayload(payload []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil, core.ValidationError("webhooks: payload is empty", nil)
	}
	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.UseNumber()
	out := map[string]any{}
	if err := decoder.Decode(&out); err != nil {
		return nil, core.ValidationError("webhooks: payload is not a JSON object: "+err.Error(), nil)
	}
	return out, nil
}
