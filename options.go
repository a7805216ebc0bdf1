package connector

import (
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/naashmtp/odoo-shopify-connector/core"
	"github.com/naashmtp/odoo-shopify-connector/transport"
	"github.com/naashmtp/odoo-shopify-connector/webhooks"
	"github.com/redis/go-redis/v9"
)

// StoreProvider hands out the persistence the service runs on.
// *sqlstore.RepositoryFactory satisfies it.
type StoreProvider interface {
	JobStore() core.JobStore
	ShadowStore() core.ShadowStore
	RegistrationStore() core.RegistrationStore
	DeliveryLogStore() core.DeliveryLogStore
}

type Option func(*serviceBuilder)

type serviceBuilder struct {
	runtimeConfig     core.Config
	logger            core.Logger
	loggerProvider    core.LoggerProvider
	metricsRecorder   core.MetricsRecorder
	configProvider    core.ConfigProvider
	optionsResolver   core.OptionsResolver
	persistenceClient *persistence.Client
	stores            StoreProvider
	registrationCache repositorycache.CacheService
	scopes            core.ScopeProvider
	staticScopes      []core.Scope
	redisClient       redis.UniversalClient
	locker            core.KeyLocker
	deduper           core.DeliveryDeduper
	localLinker       core.LocalLinker
	linkKinds         []core.ShadowKind
	httpClient        transport.HTTPDoer
	jobHandlers       map[core.Operation]core.JobHandler
	topicHandlers     map[webhooks.Topic]webhooks.TopicHandler
	auditSink         core.AuditSink
	lifecycleHooks    []core.JobLifecycleHook
}

func WithLogger(logger core.Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider core.LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder core.MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithConfigProvider(provider core.ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver core.OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

// WithPersistenceClient builds SQL stores on the client's bun database.
// WithStores takes precedence when both are given.
func WithPersistenceClient(client *persistence.Client) Option {
	return func(b *serviceBuilder) {
		b.persistenceClient = client
	}
}

func WithStores(stores StoreProvider) Option {
	return func(b *serviceBuilder) {
		b.stores = stores
	}
}

// WithRegistrationCache fronts the SQL registration store with a
// go-repository-cache service. Only used with WithPersistenceClient.
func WithRegistrationCache(cacheService repositorycache.CacheService) Option {
	return func(b *serviceBuilder) {
		b.registrationCache = cacheService
	}
}

func WithScopeProvider(scopes core.ScopeProvider) Option {
	return func(b *serviceBuilder) {
		b.scopes = scopes
	}
}

// WithScopes seeds the in-memory scope store. Ignored when a scope provider
// is set.
func WithScopes(scopes ...core.Scope) Option {
	return func(b *serviceBuilder) {
		b.staticScopes = append(b.staticScopes, scopes...)
	}
}

// WithRedisClient shares an existing client for the resolver lock and the
// delivery deduper. The service does not close it.
func WithRedisClient(client redis.UniversalClient) Option {
	return func(b *serviceBuilder) {
		b.redisClient = client
	}
}

func WithKeyLocker(locker core.KeyLocker) Option {
	return func(b *serviceBuilder) {
		b.locker = locker
	}
}

func WithDeliveryDeduper(deduper core.DeliveryDeduper) Option {
	return func(b *serviceBuilder) {
		b.deduper = deduper
	}
}

// WithLocalLinker enables auto-linking. Without kinds, resolver.auto_link_kinds
// from the config applies.
func WithLocalLinker(linker core.LocalLinker, kinds ...core.ShadowKind) Option {
	return func(b *serviceBuilder) {
		b.localLinker = linker
		b.linkKinds = append([]core.ShadowKind(nil), kinds...)
	}
}

func WithHTTPClient(client transport.HTTPDoer) Option {
	return func(b *serviceBuilder) {
		b.httpClient = client
	}
}

// WithJobHandler registers or replaces the handler of op. Operations left
// without a handler are rejected at job creation.
func WithJobHandler(op core.Operation, handler core.JobHandler) Option {
	return func(b *serviceBuilder) {
		if b.jobHandlers == nil {
			b.jobHandlers = map[core.Operation]core.JobHandler{}
		}
		b.jobHandlers[op] = handler
	}
}

func WithTopicHandler(topic webhooks.Topic, handler webhooks.TopicHandler) Option {
	return func(b *serviceBuilder) {
		if b.topicHandlers == nil {
			b.topicHandlers = map[webhooks.Topic]webhooks.TopicHandler{}
		}
		b.topicHandlers[topic] = handler
	}
}

func WithAuditSink(sink core.AuditSink) Option {
	return func(b *serviceBuilder) {
		b.auditSink = sink
	}
}

func WithLifecycleHook(hook core.JobLifecycleHook) Option {
	return func(b *serviceBuilder) {
		if hook != nil {
			b.lifecycleHooks = append(b.lifecycleHooks, hook)
		}
	}
}
