package inbound

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	goerrors "github.com/goliatone/go-errors"
	"github.com/naashmtp/odoo-shopify-connector/core"
	"github.com/naashmtp/odoo-shopify-connector/webhooks"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"

	RoutePrefix = "/shopify/webhook"

	defaultMaxBodySize int64 = 1 << 20
)

type Response struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// WebhookDispatcher is satisfied by webhooks.Dispatcher.
type WebhookDispatcher interface {
	Dispatch(ctx context.Context, topic string, payload []byte, headers map[string]string, scope string) bool
}

// JobCreator is satisfied by queue.Engine.
type JobCreator interface {
	Create(ctx context.Context, req core.CreateJobRequest) (core.Job, error)
}

type Handler struct {
	dispatcher   WebhookDispatcher
	scopes       core.ScopeProvider
	jobs         JobCreator
	mode         string
	replayWindow time.Duration
	maxBodySize  int64
	observer     core.Observer
	now          func() time.Time
}

type Option func(*handlerBuilder)

type handlerBuilder struct {
	jobs           JobCreator
	mode           string
	replayWindow   time.Duration
	maxBodySize    int64
	logger         core.Logger
	loggerProvider core.LoggerProvider
	metrics        core.MetricsRecorder
	now            func() time.Time
}

// WithQueuedMode wraps accepted deliveries as process-webhook jobs instead
// of dispatching them inline.
func WithQueuedMode(jobs JobCreator) Option {
	return func(b *handlerBuilder) {
		b.jobs = jobs
		b.mode = core.WebhookModeQueued
	}
}

func WithReplayWindow(window time.Duration) Option {
	return func(b *handlerBuilder) {
		b.replayWindow = window
	}
}

func WithMaxBodySize(limit int64) Option {
	return func(b *handlerBuilder) {
		b.maxBodySize = limit
	}
}

func WithLogger(logger core.Logger) Option {
	return func(b *handlerBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider core.LoggerProvider) Option {
	return func(b *handlerBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(metrics core.MetricsRecorder) Option {
	return func(b *handlerBuilder) {
		b.metrics = metrics
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *handlerBuilder) {
		b.now = now
	}
}

func NewHandler(dispatcher WebhookDispatcher, scopes core.ScopeProvider, opts ...Option) (*Handler, error) {
	if dispatcher == nil {
		return nil, inboundInternal("inbound: webhook dispatcher is required", nil)
	}
	if scopes == nil {
		return nil, inboundInternal("inbound: scope provider is required", nil)
	}
	builder := handlerBuilder{
		mode:        core.WebhookModeInline,
		maxBodySize: defaultMaxBodySize,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&builder)
		}
	}
	if builder.mode == core.WebhookModeQueued && builder.jobs == nil {
		return nil, inboundInternal("inbound: queued mode requires a job creator", nil)
	}
	if builder.maxBodySize <= 0 {
		builder.maxBodySize = defaultMaxBodySize
	}
	return &Handler{
		dispatcher:   dispatcher,
		scopes:       scopes,
		jobs:         builder.jobs,
		mode:         builder.mode,
		replayWindow: builder.replayWindow,
		maxBodySize:  builder.maxBodySize,
		observer:     core.ResolveObserver("inbound", builder.loggerProvider, builder.logger, builder.metrics),
		now:          builder.now,
	}, nil
}

// Register mounts the webhook routes on router.
func (h *Handler) Register(router gin.IRouter) {
	group := router.Group(RoutePrefix)
	group.GET("/test", h.HandleTest)
	group.POST("", h.HandleTopicHeader)
	group.POST("/:entity/:action", h.HandleRoute)
}

func (h *Handler) HandleTest(c *gin.Context) {
	c.JSON(http.StatusOK, Response{Status: StatusSuccess, Message: "Webhook endpoint is working"})
}

// HandleRoute serves /shopify/webhook/:entity/:action, mapping the route
// to its Shopify topic.
func (h *Handler) HandleRoute(c *gin.Context) {
	topic, ok := webhooks.TopicForRoute(c.Param("entity"), c.Param("action"))
	if !ok {
		h.respond(c, time.Now(), "", Response{Status: StatusError, Message: "Unsupported webhook route"},
			inboundError(
				fmt.Sprintf("inbound: no topic for route %s/%s", c.Param("entity"), c.Param("action")),
				goerrors.CategoryNotFound,
				http.StatusNotFound,
				core.SyncErrorNotFound,
				nil,
			))
		return
	}
	h.handle(c, string(topic))
}

// HandleTopicHeader serves /shopify/webhook using X-Shopify-Topic.
func (h *Handler) HandleTopicHeader(c *gin.Context) {
	h.handle(c, c.GetHeader(webhooks.HeaderTopic))
}

func (h *Handler) handle(c *gin.Context, topic string) {
	startedAt := time.Now()
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, h.maxBodySize+1))
	if err != nil {
		h.respond(c, startedAt, topic, Response{Status: StatusError, Message: "Failed to read request body"},
			inboundBadInput("inbound: read body: "+err.Error(), nil))
		return
	}
	if int64(len(body)) > h.maxBodySize {
		h.respond(c, startedAt, topic, Response{Status: StatusError, Message: "Payload too large"},
			inboundBadInput("inbound: payload exceeds size limit", map[string]any{"limit": h.maxBodySize}))
		return
	}
	response, err := h.Receive(c.Request.Context(), core.InboundRequest{
		Topic:   topic,
		Headers: flattenHeaders(c.Request.Header),
		Body:    body,
	})
	h.respond(c, startedAt, topic, response, err)
}

// Receive authenticates one delivery and hands it to the dispatcher, or to
// the queue in queued mode. The returned error explains an error response;
// the response is always safe to send.
func (h *Handler) Receive(ctx context.Context, req core.InboundRequest) (Response, error) {
	req.Topic = strings.TrimSpace(req.Topic)
	if req.Topic == "" {
		return Response{Status: StatusError, Message: "Missing topic"},
			inboundBadInput("inbound: "+webhooks.HeaderTopic+" header is required", nil)
	}
	domain := core.NormalizeShopDomain(headerValue(req.Headers, webhooks.HeaderShopDomain))
	if domain == "" {
		return Response{Status: StatusError, Message: "Missing shop domain"},
			inboundBadInput("inbound: "+webhooks.HeaderShopDomain+" header is required", map[string]any{"topic": req.Topic})
	}
	scope, err := h.scopes.FindByShopDomain(ctx, domain)
	if err == nil && !scope.Active {
		err = fmt.Errorf("%w: scope %q is inactive", core.ErrScopeNotFound, scope.ID)
	}
	if err != nil {
		return Response{Status: StatusError, Message: "Unknown shop domain"},
			inboundWrapError(err, goerrors.CategoryNotFound, "inbound: resolve shop domain", http.StatusNotFound,
				core.SyncErrorNotFound, map[string]any{"shop_domain": domain})
	}
	req.Scope = scope.ID

	verifier := webhooks.NewShopifyVerifier(scope, h.replayWindow)
	verifier.Now = h.now
	if err := verifier.Verify(ctx, req); err != nil {
		return Response{Status: StatusError, Message: "Invalid signature"}, err
	}

	if h.mode == core.WebhookModeQueued {
		job, err := h.jobs.Create(ctx, core.CreateJobRequest{
			Name:      "Webhook " + req.Topic,
			Operation: core.OperationProcessWebhook,
			Scope:     scope.ID,
			Payload:   webhooks.JobPayload(req.Topic, scope.ID, req.Body, req.Headers),
			Enqueue:   true,
		})
		if err != nil {
			return Response{Status: StatusError, Message: "Webhook could not be queued"},
				inboundWrapError(err, goerrors.CategoryInternal, "inbound: queue webhook", http.StatusInternalServerError,
					core.SyncErrorInternal, map[string]any{"topic": req.Topic, "scope": scope.ID})
		}
		return Response{Status: StatusSuccess, Message: "Webhook queued as job " + job.ID}, nil
	}

	if !h.dispatcher.Dispatch(ctx, req.Topic, req.Body, req.Headers, scope.ID) {
		return Response{Status: StatusError, Message: "Webhook processing failed"},
			inboundError("inbound: webhook dispatch failed", goerrors.CategoryOperation, http.StatusUnprocessableEntity,
				core.SyncErrorExternalFailure, map[string]any{"topic": req.Topic, "scope": scope.ID})
	}
	return Response{Status: StatusSuccess, Message: "Webhook processed"}, nil
}

func (h *Handler) respond(c *gin.Context, startedAt time.Time, topic string, response Response, err error) {
	fields := map[string]any{
		"topic":           topic,
		"path":            c.FullPath(),
		"response_status": response.Status,
	}
	if domain := c.GetHeader(webhooks.HeaderShopDomain); domain != "" {
		fields["shop_domain"] = domain
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && rich.TextCode != "" {
		fields["error_code"] = rich.TextCode
	}
	h.observer.Observe(c.Request.Context(), startedAt, "webhook_receive", err, fields)
	c.JSON(http.StatusOK, response)
}

func flattenHeaders(header http.Header) map[string]string {
	out := make(map[string]string, len(header))
	for key, values := range header {
		if len(values) > 0 {
			out[http.CanonicalHeaderKey(key)] = values[0]
		}
	}
	return out
}

func headerValue(headers map[string]string, key string) string {
	if value, ok := headers[key]; ok {
		return strings.TrimSpace(value)
	}
	for existing, value := range headers {
		if strings.EqualFold(existing, key) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
