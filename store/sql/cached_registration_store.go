package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/naashmtp/odoo-shopify-connector/core"
)

const registrationCacheKeyPrefix = "shopify-sync::registration::v1"

// CachedRegistrationStore serves FindActive from a cache. Every write
// through the store evicts the affected (scope, topic) entry.
type CachedRegistrationStore struct {
	base  core.RegistrationStore
	cache repositorycache.CacheService
}

func NewCachedRegistrationStore(
	base core.RegistrationStore,
	cacheService repositorycache.CacheService,
) (*CachedRegistrationStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base registration store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: registration cache service is required")
	}
	return &CachedRegistrationStore{base: base, cache: cacheService}, nil
}

// RegistrationCacheKey returns shopify-sync::registration::v1::<scope>::<topic>
// with each segment URL-path escaped.
func RegistrationCacheKey(scope string, topic string) (string, error) {
	scope = strings.TrimSpace(scope)
	topic = strings.TrimSpace(topic)
	if scope == "" || topic == "" {
		return "", fmt.Errorf("sqlstore: registration cache key needs scope and topic")
	}
	return strings.Join([]string{registrationCacheKeyPrefix, url.PathEscape(scope), url.PathEscape(topic)}, "::"), nil
}

func (s *CachedRegistrationStore) FindActive(ctx context.Context, scope string, topic string) (core.WebhookRegistration, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.WebhookRegistration{}, fmt.Errorf("sqlstore: cached registration store is not configured")
	}
	cacheKey, err := RegistrationCacheKey(scope, topic)
	if err != nil {
		return core.WebhookRegistration{}, err
	}
	return repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.WebhookRegistration, error) {
		return s.base.FindActive(ctx, scope, topic)
	})
}

func (s *CachedRegistrationStore) Register(ctx context.Context, in core.RegisterWebhookInput) (core.WebhookRegistration, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.WebhookRegistration{}, fmt.Errorf("sqlstore: cached registration store is not configured")
	}
	registration, err := s.base.Register(ctx, in)
	if err != nil {
		return core.WebhookRegistration{}, err
	}
	return registration, s.evict(ctx, registration.Scope, registration.Topic)
}

func (s *CachedRegistrationStore) Get(ctx context.Context, id string) (core.WebhookRegistration, error) {
	return s.base.Get(ctx, id)
}

func (s *CachedRegistrationStore) ListByScope(ctx context.Context, scope string) ([]core.WebhookRegistration, error) {
	return s.base.ListByScope(ctx, scope)
}

func (s *CachedRegistrationStore) SetState(ctx context.Context, id string, state core.RegistrationState) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached registration store is not configured")
	}
	registration, err := s.base.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.base.SetState(ctx, id, state); err != nil {
		return err
	}
	return s.evict(ctx, registration.Scope, registration.Topic)
}

// RecordCall goes straight to the base store. Counters on a cached
// registration may lag until the next eviction.
func (s *CachedRegistrationStore) RecordCall(ctx context.Context, id string, success bool, at time.Time) error {
	return s.base.RecordCall(ctx, id, success, at)
}

func (s *CachedRegistrationStore) evict(ctx context.Context, scope string, topic string) error {
	cacheKey, err := RegistrationCacheKey(scope, topic)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}
