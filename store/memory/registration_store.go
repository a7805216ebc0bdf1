package memorystore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/naashmtp/odoo-shopify-connector/core"
)

type RegistrationStore struct {
	mu   sync.Mutex
	byID map[string]core.WebhookRegistration
}

func NewRegistrationStore() *RegistrationStore {
	return &RegistrationStore{byID: map[string]core.WebhookRegistration{}}
}

// Register creates the registration for (scope, topic) or updates the
// existing one in place.
func (s *RegistrationStore) Register(_ context.Context, in core.RegisterWebhookInput) (core.WebhookRegistration, error) {
	scope := strings.TrimSpace(in.Scope)
	topic := strings.TrimSpace(in.Topic)
	if scope == "" || topic == "" {
		return core.WebhookRegistration{}, core.ValidationError("memorystore: scope and topic are required", nil)
	}
	state := in.State
	if state == "" {
		state = core.RegistrationStateActive
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for id, existing := range s.byID {
		if existing.Scope == scope && existing.Topic == topic {
			existing.Address = in.Address
			existing.ExternalWebhookID = in.ExternalWebhookID
			existing.State = state
			existing.UpdatedAt = now
			s.byID[id] = existing
			return existing, nil
		}
	}
	registration := core.WebhookRegistration{
		ID:                core.NewID(),
		Scope:             scope,
		Topic:             topic,
		Address:           in.Address,
		State:             state,
		ExternalWebhookID: in.ExternalWebhookID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	s.byID[registration.ID] = registration
	return registration, nil
}

func (s *RegistrationStore) Get(_ context.Context, id string) (core.WebhookRegistration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	registration, ok := s.byID[strings.TrimSpace(id)]
	if !ok {
		return core.WebhookRegistration{}, core.ErrRegistrationNotFound
	}
	return registration, nil
}

func (s *RegistrationStore) FindActive(_ context.Context, scope string, topic string) (core.WebhookRegistration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, registration := range s.byID {
		if registration.Scope == scope &&
			registration.Topic == topic &&
			registration.State == core.RegistrationStateActive {
			return registration, nil
		}
	}
	return core.WebhookRegistration{}, core.ErrRegistrationNotFound
}

func (s *RegistrationStore) ListByScope(_ context.Context, scope string) ([]core.WebhookRegistration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.WebhookRegistration, 0)
	for _, registration := range s.byID {
		if registration.Scope == scope {
			out = append(out, registration)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Topic < out[j].Topic })
	return out, nil
}

func (s *RegistrationStore) SetState(_ context.Context, id string, state core.RegistrationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	registration, ok := s.byID[strings.TrimSpace(id)]
	if !ok {
		return core.ErrRegistrationNotFound
	}
	registration.State = state
	registration.UpdatedAt = time.Now().UTC()
	s.byID[registration.ID] = registration
	return nil
}

func (s *RegistrationStore) RecordCall(_ context.Context, id string, success bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	registration, ok := s.byID[strings.TrimSpace(id)]
	if !ok {
		return core.ErrRegistrationNotFound
	}
	registration.TotalCalls++
	if success {
		registration.SuccessfulCalls++
	} else {
		registration.FailedCalls++
	}
	stamp := at
	registration.LastCallAt = &stamp
	s.byID[registration.ID] = registration
	return nil
}

var _ core.RegistrationStore = (*RegistrationStore)(nil)
