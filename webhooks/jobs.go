package webhooks

import (
	"context"
	"fmt"
	"strings"

	"github.com/naashmtp/odoo-shopify-connector/core"
)

// JobPayload wraps an inbound event for deferred processing through a
// process-webhook job.
func JobPayload(topic string, scope string, body []byte, headers map[string]string) map[string]any {
	copied := make(map[string]any, len(headers))
	for key, value := range headers {
		copied[key] = value
	}
	return map[string]any{
		"topic":   topic,
		"scope":   scope,
		"body":    string(body),
		"headers": copied,
	}
}

// DispatchJobPayload is the queue handler for process-webhook jobs. The
// failure reason is returned so the engine retries recoverable errors;
// handled but unsuccessful deliveries fail the job.
func (d *Dispatcher) DispatchJobPayload(ctx context.Context, job core.Job) (core.JobResult, error) {
	topic, _ := job.Payload["topic"].(string)
	scope, _ := job.Payload["scope"].(string)
	body, _ := job.Payload["body"].(string)
	if strings.TrimSpace(topic) == "" {
		return core.JobResult{}, core.ValidationError("webhooks: job payload topic is required", map[string]any{"job_id": job.ID})
	}
	if strings.TrimSpace(scope) == "" {
		scope = job.Scope
	}

	headers := map[string]string{}
	switch typed := job.Payload["headers"].(type) {
	case map[string]string:
		for key, value := range typed {
			headers[key] = value
		}
	case map[string]any:
		for key, value := range typed {
			headers[key] = fmt.Sprint(value)
		}
	}

	ok, err := d.dispatch(ctx, topic, []byte(body), headers, scope)
	if !ok {
		if err == nil {
			err = core.ValidationError("webhooks: dispatch of "+topic+" did not succeed", map[string]any{
				"job_id": job.ID,
				"topic":  topic,
				"scope":  scope,
			})
		}
		return core.JobResult{}, err
	}
	return core.JobResult{Status: "success", Message: "Webhook " + topic + " processed"}, nil
}

// RegisterDefaults registers every handled topic for scope.
func RegisterDefaults(ctx context.Context, store core.RegistrationStore, scope string, baseURL string) ([]core.WebhookRegistration, error) {
	if store == nil {
		return nil, fmt.Errorf("webhooks: registration store is required")
	}
	out := make([]core.WebhookRegistration, 0, len(Topics()))
	for _, in := range DefaultTopics(scope, baseURL) {
		registration, err := store.Register(ctx, in)
		if err != nil {
			return out, err
		}
		out = append(out, registration)
	}
	return out, nil
}

// RegisterDefaults registers every handled topic for scope against the
// dispatcher's registration store.
func (d *Dispatcher) RegisterDefaults(ctx context.Context, scope string, baseURL string) ([]core.WebhookRegistration, error) {
	return RegisterDefaults(ctx, d.registrations, scope, baseURL)
}
