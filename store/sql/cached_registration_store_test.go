package sqlstore

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/naashmtp/odoo-shopify-connector/core"
)

type stubRegistrationStore struct {
	mu              sync.Mutex
	registration    core.WebhookRegistration
	findActiveCalls int
	recordCalls     int
	findErr         error
}

func (s *stubRegistrationStore) Register(_ context.Context, in core.RegisterWebhookInput) (core.WebhookRegistration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registration.Scope = in.Scope
	s.registration.Topic = in.Topic
	s.registration.Address = in.Address
	return s.registration, nil
}

func (s *stubRegistrationStore) Get(_ context.Context, id string) (core.WebhookRegistration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != s.registration.ID {
		return core.WebhookRegistration{}, core.ErrRegistrationNotFound
	}
	return s.registration, nil
}

func (s *stubRegistrationStore) FindActive(_ context.Context, _ string, _ string) (core.WebhookRegistration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findActiveCalls++
	if s.findErr != nil {
		return core.WebhookRegistration{}, s.findErr
	}
	return s.registration, nil
}

func (s *stubRegistrationStore) ListByScope(_ context.Context, _ string) ([]core.WebhookRegistration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return []core.WebhookRegistration{s.registration}, nil
}

func (s *stubRegistrationStore) SetState(_ context.Context, _ string, state core.RegistrationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registration.State = state
	return nil
}

func (s *stubRegistrationStore) RecordCall(_ context.Context, _ string, _ bool, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordCalls++
	return nil
}

func newStubRegistration() *stubRegistrationStore {
	return &stubRegistrationStore{
		registration: core.WebhookRegistration{
			ID:      "reg_1",
			Scope:   "shop_1",
			Topic:   "orders/create",
			Address: "https://example.test/shopify/webhook/orders/create",
			State:   core.RegistrationStateActive,
		},
	}
}

func TestCachedRegistrationStore_FindActive_MissFetchThenHit(t *testing.T) {
	base := newStubRegistration()
	store, err := NewCachedRegistrationStore(base, newTestRegistrationCacheService(t))
	if err != nil {
		t.Fatalf("new cached registration store: %v", err)
	}

	ctx := context.Background()
	if _, err := store.FindActive(ctx, "shop_1", "orders/create"); err != nil {
		t.Fatalf("first find: %v", err)
	}
	if base.findActiveCalls != 1 {
		t.Fatalf("expected first find to hit base once, got %d", base.findActiveCalls)
	}
	registration, err := store.FindActive(ctx, "shop_1", "orders/create")
	if err != nil {
		t.Fatalf("second find: %v", err)
	}
	if base.findActiveCalls != 1 {
		t.Fatalf("expected cache hit, base calls=%d", base.findActiveCalls)
	}
	if registration.ID != "reg_1" {
		t.Fatalf("unexpected cached registration %+v", registration)
	}
}

func TestCachedRegistrationStore_WritesEvictCachedEntry(t *testing.T) {
	base := newStubRegistration()
	store, err := NewCachedRegistrationStore(base, newTestRegistrationCacheService(t))
	if err != nil {
		t.Fatalf("new cached registration store: %v", err)
	}
	ctx := context.Background()

	if _, err := store.FindActive(ctx, "shop_1", "orders/create"); err != nil {
		t.Fatalf("prime cache: %v", err)
	}
	if _, err := store.Register(ctx, core.RegisterWebhookInput{
		Scope:   "shop_1",
		Topic:   "orders/create",
		Address: "https://example.test/new",
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	registration, err := store.FindActive(ctx, "shop_1", "orders/create")
	if err != nil {
		t.Fatalf("find after register: %v", err)
	}
	if base.findActiveCalls != 2 {
		t.Fatalf("expected register to evict, base calls=%d", base.findActiveCalls)
	}
	if registration.Address != "https://example.test/new" {
		t.Fatalf("expected refreshed address, got %q", registration.Address)
	}

	if err := store.SetState(ctx, "reg_1", core.RegistrationStateInactive); err != nil {
		t.Fatalf("set state: %v", err)
	}
	registration, err = store.FindActive(ctx, "shop_1", "orders/create")
	if err != nil {
		t.Fatalf("find after set state: %v", err)
	}
	if base.findActiveCalls != 3 {
		t.Fatalf("expected set state to evict, base calls=%d", base.findActiveCalls)
	}
	if registration.State != core.RegistrationStateInactive {
		t.Fatalf("expected inactive state, got %q", registration.State)
	}
}

func TestCachedRegistrationStore_RecordCallPassesThrough(t *testing.T) {
	base := newStubRegistration()
	store, err := NewCachedRegistrationStore(base, newTestRegistrationCacheService(t))
	if err != nil {
		t.Fatalf("new cached registration store: %v", err)
	}
	if err := store.RecordCall(context.Background(), "reg_1", true, time.Now()); err != nil {
		t.Fatalf("record call: %v", err)
	}
	if base.recordCalls != 1 {
		t.Fatalf("expected one base record call, got %d", base.recordCalls)
	}
}

func TestCachedRegistrationStore_PropagatesBaseErrors(t *testing.T) {
	base := newStubRegistration()
	base.findErr = core.ErrRegistrationNotFound
	store, err := NewCachedRegistrationStore(base, newTestRegistrationCacheService(t))
	if err != nil {
		t.Fatalf("new cached registration store: %v", err)
	}
	_, err = store.FindActive(context.Background(), "shop_1", "orders/paid")
	if !errors.Is(err, core.ErrRegistrationNotFound) {
		t.Fatalf("expected base error propagation, got %v", err)
	}
}

func TestRegistrationCacheKey_Contract(t *testing.T) {
	key, err := RegistrationCacheKey(" shop 1 ", "orders/create")
	if err != nil {
		t.Fatalf("cache key: %v", err)
	}
	if !strings.HasPrefix(key, registrationCacheKeyPrefix+"::") {
		t.Fatalf("expected prefix, got %q", key)
	}
	if key != registrationCacheKeyPrefix+"::shop%201::orders%2Fcreate" {
		t.Fatalf("unexpected cache key %q", key)
	}
	if _, err := RegistrationCacheKey("shop_1", " "); err == nil {
		t.Fatalf("expected blank topic to be rejected")
	}
}

func newTestRegistrationCacheService(t *testing.T) repositorycache.CacheService {
	t.Helper()
	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	return service
}
