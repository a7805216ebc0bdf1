package memorystore

import (
	"context"
	"strings"
	"sync"

	"github.com/naashmtp/odoo-shopify-connector/core"
)

// ScopeStore keeps shop instances keyed by id and by normalized shop domain.
type ScopeStore struct {
	mu       sync.RWMutex
	byID     map[string]core.Scope
	byDomain map[string]string
}

func NewScopeStore(scopes ...core.Scope) *ScopeStore {
	store := &ScopeStore{
		byID:     map[string]core.Scope{},
		byDomain: map[string]string{},
	}
	for _, scope := range scopes {
		store.Put(scope)
	}
	return store
}

func (s *ScopeStore) Put(scope core.Scope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	scope.ID = strings.TrimSpace(scope.ID)
	s.byID[scope.ID] = scope
	if domain := core.NormalizeShopDomain(scope.ShopURL); domain != "" {
		s.byDomain[domain] = scope.ID
	}
}

func (s *ScopeStore) GetScope(_ context.Context, id string) (core.Scope, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	scope, ok := s.byID[strings.TrimSpace(id)]
	if !ok {
		return core.Scope{}, core.ErrScopeNotFound
	}
	return scope, nil
}

func (s *ScopeStore) FindByShopDomain(_ context.Context, domain string) (core.Scope, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byDomain[core.NormalizeShopDomain(domain)]
	if !ok {
		return core.Scope{}, core.ErrScopeNotFound
	}
	return s.byID[id], nil
}

var _ core.ScopeProvider = (*ScopeStore)(nil)
