package connector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/naashmtp/odoo-shopify-connector/adapters/gocommand"
	"github.com/naashmtp/odoo-shopify-connector/core"
	"github.com/naashmtp/odoo-shopify-connector/inbound"
	"github.com/naashmtp/odoo-shopify-connector/queue"
	"github.com/naashmtp/odoo-shopify-connector/ratelimit"
	"github.com/naashmtp/odoo-shopify-connector/resolver"
	memorystore "github.com/naashmtp/odoo-shopify-connector/store/memory"
	redisstore "github.com/naashmtp/odoo-shopify-connector/store/redis"
	sqlstore "github.com/naashmtp/odoo-shopify-connector/store/sql"
	syncimport "github.com/naashmtp/odoo-shopify-connector/sync"
	"github.com/naashmtp/odoo-shopify-connector/transport"
	"github.com/naashmtp/odoo-shopify-connector/webhooks"
	"github.com/redis/go-redis/v9"
)

type Config = core.Config

type Job = core.Job
type JobState = core.JobState
type Operation = core.Operation
type Priority = core.Priority
type CreateJobRequest = core.CreateJobRequest
type JobResult = core.JobResult
type Scope = core.Scope
type ShadowRecord = core.ShadowRecord
type UpsertRequest = core.UpsertRequest

func DefaultConfig() Config {
	return core.DefaultConfig()
}

// Service owns the sync runtime: stores, resolver, importer, webhook
// dispatcher, job engine, worker pool and the inbound HTTP handler.
type Service struct {
	config   Config
	observer core.Observer

	jobs          core.JobStore
	shadows       core.ShadowStore
	registrations core.RegistrationStore
	logs          core.DeliveryLogStore
	scopes        core.ScopeProvider

	resolver   *resolver.Resolver
	importer   *syncimport.Importer
	dispatcher *webhooks.Dispatcher
	engine     *queue.Engine
	pool       *queue.WorkerPool
	inbound    *inbound.Handler
	throttle   *ratelimit.AdaptivePolicy

	ownedRedis *redis.Client
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := serviceBuilder{runtimeConfig: cfg}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	finalConfig, err := core.ResolveConfig(context.Background(), builder.runtimeConfig, builder.configProvider, builder.optionsResolver)
	if err != nil {
		return nil, err
	}
	observer := core.ResolveObserver(finalConfig.ServiceName, builder.loggerProvider, builder.logger, builder.metricsRecorder)

	stores, err := resolveStores(builder)
	if err != nil {
		return nil, err
	}
	s := &Service{
		config:        finalConfig,
		observer:      observer,
		jobs:          stores.JobStore(),
		shadows:       stores.ShadowStore(),
		registrations: stores.RegistrationStore(),
		logs:          stores.DeliveryLogStore(),
	}
	s.scopes = builder.scopes
	if s.scopes == nil {
		s.scopes = memorystore.NewScopeStore(builder.staticScopes...)
	}
	if finalConfig.Webhooks.AllowUnverified {
		s.scopes = unverifiedScopes{ScopeProvider: s.scopes}
	}

	locker, deduper, throttleStore, err := s.resolveShared(builder)
	if err != nil {
		return nil, err
	}
	s.throttle = ratelimit.NewAdaptivePolicy(throttleStore)

	resolverOpts := []resolver.Option{resolver.WithObserver(core.ResolveObserver("resolver", builder.loggerProvider, builder.logger, builder.metricsRecorder))}
	if builder.localLinker != nil {
		kinds := builder.linkKinds
		if len(kinds) == 0 {
			for _, raw := range finalConfig.Resolver.AutoLinkKinds {
				kinds = append(kinds, core.ShadowKind(strings.TrimSpace(raw)))
			}
		}
		resolverOpts = append(resolverOpts, resolver.WithLocalLinker(builder.localLinker, kinds...))
	}
	s.resolver, err = resolver.New(s.shadows, locker, resolverOpts...)
	if err != nil {
		return nil, s.abort(err)
	}

	s.importer, err = syncimport.NewImporter(s.resolver, core.ResolveObserver("sync", builder.loggerProvider, builder.logger, builder.metricsRecorder))
	if err != nil {
		return nil, s.abort(err)
	}

	dispatcherOpts := []webhooks.DispatcherOption{
		webhooks.WithDeduper(deduper, finalConfig.Webhooks.DedupeTTL),
		webhooks.WithScopeProvider(s.scopes),
		webhooks.WithLogger(builder.logger),
		webhooks.WithLoggerProvider(builder.loggerProvider),
		webhooks.WithMetricsRecorder(builder.metricsRecorder),
	}
	for topic, handler := range builder.topicHandlers {
		dispatcherOpts = append(dispatcherOpts, webhooks.WithTopicHandler(topic, handler))
	}
	s.dispatcher, err = webhooks.NewDispatcher(s.registrations, s.logs, s.shadows, s.resolver, dispatcherOpts...)
	if err != nil {
		return nil, s.abort(err)
	}

	handlers := s.jobHandlers(builder)
	s.engine, err = queue.NewEngine(s.jobs, handlers, s.engineOptions(builder, handlers)...)
	if err != nil {
		return nil, s.abort(err)
	}
	s.pool = queue.NewWorkerPool(s.engine, finalConfig.Queue, core.ResolveObserver("worker", builder.loggerProvider, builder.logger, builder.metricsRecorder))

	inboundOpts := []inbound.Option{
		inbound.WithReplayWindow(finalConfig.Webhooks.ReplayWindow),
		inbound.WithLogger(builder.logger),
		inbound.WithLoggerProvider(builder.loggerProvider),
		inbound.WithMetricsRecorder(builder.metricsRecorder),
	}
	if finalConfig.Webhooks.Mode == core.WebhookModeQueued {
		inboundOpts = append(inboundOpts, inbound.WithQueuedMode(s.engine))
	}
	s.inbound, err = inbound.NewHandler(s.dispatcher, s.scopes, inboundOpts...)
	if err != nil {
		return nil, s.abort(err)
	}

	observer.Info(context.Background(), "connector: service ready", map[string]any{
		"webhook_mode": finalConfig.Webhooks.Mode,
		"workers":      finalConfig.Queue.Workers,
		"redis":        finalConfig.Redis.Addr != "" || builder.redisClient != nil,
	})
	return s, nil
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return NewService(cfg, opts...)
}

func resolveStores(builder serviceBuilder) (StoreProvider, error) {
	if builder.stores != nil {
		return builder.stores, nil
	}
	if builder.persistenceClient != nil {
		factory, err := sqlstore.NewRepositoryFactoryFromPersistence(builder.persistenceClient)
		if err != nil {
			return nil, err
		}
		if builder.registrationCache != nil {
			if err := factory.WithRegistrationCache(builder.registrationCache); err != nil {
				return nil, err
			}
		}
		return factory, nil
	}
	return NewMemoryStores(), nil
}

// resolveShared picks the state shared between workers: the resolver lock,
// the delivery deduper and the Shopify throttle store. Explicit options win,
// then Redis when configured, then in-process fallbacks.
func (s *Service) resolveShared(builder serviceBuilder) (core.KeyLocker, core.DeliveryDeduper, ratelimit.StateStore, error) {
	var client redis.UniversalClient = builder.redisClient
	if client == nil && strings.TrimSpace(s.config.Redis.Addr) != "" {
		owned, err := redisstore.NewClient(context.Background(), s.config.Redis)
		if err != nil {
			return nil, nil, nil, err
		}
		s.ownedRedis = owned
		client = owned
	}

	locker := builder.locker
	if locker == nil && client != nil {
		redisLocker, err := redisstore.NewKeyLocker(client, s.config.Redis.KeyPrefix, s.config.Resolver.LockTTL)
		if err != nil {
			return nil, nil, nil, s.abort(err)
		}
		locker = redisLocker
	}
	if locker == nil {
		locker = memorystore.NewKeyLocker()
	}

	deduper := builder.deduper
	if deduper == nil && client != nil {
		redisDeduper, err := redisstore.NewDeliveryDeduper(client, s.config.Redis.KeyPrefix)
		if err != nil {
			return nil, nil, nil, s.abort(err)
		}
		deduper = redisDeduper
	}
	if deduper == nil {
		deduper = memorystore.NewDeliveryDeduper()
	}

	var throttleStore ratelimit.StateStore = ratelimit.NewMemoryStateStore()
	if client != nil {
		redisThrottle, err := redisstore.NewThrottleStateStore(client, s.config.Redis.KeyPrefix, 0)
		if err != nil {
			return nil, nil, nil, s.abort(err)
		}
		throttleStore = redisThrottle
	}
	return locker, deduper, throttleStore, nil
}

func (s *Service) jobHandlers(builder serviceBuilder) map[core.Operation]core.JobHandler {
	progress := func(ctx context.Context, jobID string, delta core.ProgressDelta) error {
		return s.engine.Progress(ctx, jobID, delta)
	}
	handlers := s.importer.JobHandlers(
		s.scopes,
		syncimport.ShopifyClientFactory(s.config.Importer, builder.httpClient, transport.WithThrottle(s.throttle)),
		s.config.Importer.PageSize,
		progress,
	)
	handlers[core.OperationProcessWebhook] = core.JobHandlerFunc(s.dispatcher.DispatchJobPayload)
	handlers[core.OperationCustom] = core.JobHandlerFunc(s.runCustomJob)
	for op, handler := range builder.jobHandlers {
		if handler != nil {
			handlers[op] = handler
		}
	}
	return handlers
}

func (s *Service) engineOptions(builder serviceBuilder, handled map[core.Operation]core.JobHandler) []queue.Option {
	unsupported := make([]core.Operation, 0)
	for _, op := range core.Operations() {
		if _, ok := handled[op]; !ok {
			unsupported = append(unsupported, op)
		}
	}
	opts := []queue.Option{
		queue.WithConfig(s.config.Queue),
		queue.WithUnsupported(unsupported...),
		queue.WithLogger(builder.logger),
		queue.WithLoggerProvider(builder.loggerProvider),
		queue.WithMetricsRecorder(builder.metricsRecorder),
	}
	if builder.auditSink != nil {
		opts = append(opts, queue.WithAuditSink(builder.auditSink))
	}
	for _, hook := range builder.lifecycleHooks {
		opts = append(opts, queue.WithLifecycleHook(hook))
	}
	return opts
}

// runCustomJob summarizes an import batch when its parent job is run.
func (s *Service) runCustomJob(ctx context.Context, job core.Job) (core.JobResult, error) {
	if batch, _ := job.Payload["batch"].(bool); !batch {
		return core.JobResult{}, core.ValidationError("connector: custom job has no handler", map[string]any{"job_id": job.ID})
	}
	stats, err := s.engine.BatchStatus(ctx, job.ID)
	if err != nil {
		return core.JobResult{}, err
	}
	done := stats.Counts[core.JobStateDone]
	data := map[string]any{"total": stats.Total}
	for state, count := range stats.Counts {
		data[string(state)] = count
	}
	return core.JobResult{
		Status:  "success",
		Message: fmt.Sprintf("Batch %d/%d children done", done, stats.Total),
		Data:    data,
	}, nil
}

func (s *Service) abort(err error) error {
	if s.ownedRedis != nil {
		_ = s.ownedRedis.Close()
		s.ownedRedis = nil
	}
	return err
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Engine() *queue.Engine {
	if s == nil {
		return nil
	}
	return s.engine
}

func (s *Service) Dispatcher() *webhooks.Dispatcher {
	if s == nil {
		return nil
	}
	return s.dispatcher
}

func (s *Service) Resolver() *resolver.Resolver {
	if s == nil {
		return nil
	}
	return s.resolver
}

func (s *Service) Importer() *syncimport.Importer {
	if s == nil {
		return nil
	}
	return s.importer
}

func (s *Service) Inbound() *inbound.Handler {
	if s == nil {
		return nil
	}
	return s.inbound
}

func (s *Service) WorkerPool() *queue.WorkerPool {
	if s == nil {
		return nil
	}
	return s.pool
}

func (s *Service) Scopes() core.ScopeProvider {
	if s == nil {
		return nil
	}
	return s.scopes
}

// Routes mounts the webhook endpoints on router.
func (s *Service) Routes(router gin.IRouter) {
	s.inbound.Register(router)
}

// Router returns a gin engine serving only the webhook endpoints.
func (s *Service) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	s.Routes(router)
	return router
}

// Start launches the worker pool. It reports false when already running.
func (s *Service) Start(ctx context.Context) bool {
	return s.pool.Start(ctx)
}

// Close stops the workers and releases a Redis client the service opened.
func (s *Service) Close() error {
	if s == nil {
		return nil
	}
	s.pool.Stop()
	if s.ownedRedis != nil {
		err := s.ownedRedis.Close()
		s.ownedRedis = nil
		return err
	}
	return nil
}

type PurgeStats struct {
	Jobs         int
	DeliveryLogs int
}

// Purge drops terminal jobs and delivery logs older than their configured
// retention.
func (s *Service) Purge(ctx context.Context) (PurgeStats, error) {
	startedAt := time.Now()
	stats := PurgeStats{}
	var err error
	defer func() {
		s.observer.Observe(ctx, startedAt, "purge", err, map[string]any{
			"jobs":          stats.Jobs,
			"delivery_logs": stats.DeliveryLogs,
		})
	}()
	if stats.Jobs, err = s.engine.Purge(ctx, s.config.Queue.Retention); err != nil {
		return stats, err
	}
	if stats.DeliveryLogs, err = s.dispatcher.PurgeLogs(ctx, s.config.Webhooks.LogRetention); err != nil {
		return stats, err
	}
	return stats, nil
}

// Bind registers the go-command handlers of the service on adapter.
func (s *Service) Bind(adapter *gocommand.RegistryAdapter) (*gocommand.Bindings, error) {
	return gocommand.RegisterSyncHandlers(adapter, gocommand.SyncServices{
		Queue:         s.engine,
		Webhooks:      s.dispatcher,
		Jobs:          s.engine,
		DeliveryLogs:  s.logs,
		Registrations: s.registrations,
	})
}

type memoryStores struct {
	jobs          *memorystore.JobStore
	shadows       *memorystore.ShadowStore
	registrations *memorystore.RegistrationStore
	logs          *memorystore.DeliveryLogStore
}

// NewMemoryStores returns process-local stores, suitable for tests and
// single-process deployments that accept losing state on restart.
func NewMemoryStores() StoreProvider {
	return memoryStores{
		jobs:          memorystore.NewJobStore(),
		shadows:       memorystore.NewShadowStore(),
		registrations: memorystore.NewRegistrationStore(),
		logs:          memorystore.NewDeliveryLogStore(),
	}
}

func (m memoryStores) JobStore() core.JobStore                   { return m.jobs }
func (m memoryStores) ShadowStore() core.ShadowStore             { return m.shadows }
func (m memoryStores) RegistrationStore() core.RegistrationStore { return m.registrations }
func (m memoryStores) DeliveryLogStore() core.DeliveryLogStore   { return m.logs }

// unverifiedScopes applies webhooks.allow_unverified to every scope.
type unverifiedScopes struct {
	core.ScopeProvider
}

func (u unverifiedScopes) GetScope(ctx context.Context, id string) (core.Scope, error) {
	scope, err := u.ScopeProvider.GetScope(ctx, id)
	scope.AllowUnverified = true
	return scope, err
}

func (u unverifiedScopes) FindByShopDomain(ctx context.Context, domain string) (core.Scope, error) {
	scope, err := u.ScopeProvider.FindByShopDomain(ctx, domain)
	scope.AllowUnverified = true
	return scope, err
}
