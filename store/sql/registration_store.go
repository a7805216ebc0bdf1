package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/naashmtp/odoo-shopify-connector/core"
	"github.com/uptrace/bun"
)

type RegistrationStore struct {
	db   *bun.DB
	repo repository.Repository[*registrationRecord]
}

func NewRegistrationStore(db *bun.DB) (*RegistrationStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*registrationRecord](db, registrationHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid registration repository wiring: %w", err)
		}
	}
	return &RegistrationStore{db: db, repo: repo}, nil
}

// Register creates the (scope, topic) registration or updates its address,
// external id and state in place. Call counters are kept.
func (s *RegistrationStore) Register(ctx context.Context, in core.RegisterWebhookInput) (core.WebhookRegistration, error) {
	if s == nil || s.db == nil {
		return core.WebhookRegistration{}, fmt.Errorf("sqlstore: registration store is not configured")
	}
	in.Scope = strings.TrimSpace(in.Scope)
	in.Topic = strings.TrimSpace(in.Topic)
	if in.Scope == "" || in.Topic == "" {
		return core.WebhookRegistration{}, fmt.Errorf("sqlstore: registration scope and topic are required")
	}
	if in.State == "" {
		in.State = core.RegistrationStateActive
	}

	var registration core.WebhookRegistration
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		now := time.Now().UTC()
		existing := &registrationRecord{}
		err := tx.NewSelect().
			Model(existing).
			Where("?TableAlias.scope = ?", in.Scope).
			Where("?TableAlias.topic = ?", in.Topic).
			Limit(1).
			Scan(ctx)
		switch {
		case err == nil:
			existing.Address = strings.TrimSpace(in.Address)
			existing.ExternalWebhookID = strings.TrimSpace(in.ExternalWebhookID)
			existing.State = string(in.State)
			existing.UpdatedAt = now
			if _, updateErr := tx.NewUpdate().
				Model(existing).
				Column("address", "external_webhook_id", "state", "updated_at").
				WherePK().
				Exec(ctx); updateErr != nil {
				return updateErr
			}
			registration = existing.toDomain()
			return nil
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}

		record := &registrationRecord{
			ID:                core.NewID(),
			Scope:             in.Scope,
			Topic:             in.Topic,
			Address:           strings.TrimSpace(in.Address),
			State:             string(in.State),
			ExternalWebhookID: strings.TrimSpace(in.ExternalWebhookID),
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		created, createErr := s.repo.CreateTx(ctx, tx, record)
		if createErr != nil {
			return createErr
		}
		registration = created.toDomain()
		return nil
	})
	if err != nil {
		return core.WebhookRegistration{}, err
	}
	return registration, nil
}

func (s *RegistrationStore) Get(ctx context.Context, id string) (core.WebhookRegistration, error) {
	if s == nil || s.db == nil {
		return core.WebhookRegistration{}, fmt.Errorf("sqlstore: registration store is not configured")
	}
	record := &registrationRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.WebhookRegistration{}, fmt.Errorf("%w: id %q", core.ErrRegistrationNotFound, id)
		}
		return core.WebhookRegistration{}, err
	}
	return record.toDomain(), nil
}

func (s *RegistrationStore) FindActive(ctx context.Context, scope string, topic string) (core.WebhookRegistration, error) {
	if s == nil || s.db == nil {
		return core.WebhookRegistration{}, fmt.Errorf("sqlstore: registration store is not configured")
	}
	record := &registrationRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.scope = ?", strings.TrimSpace(scope)).
		Where("?TableAlias.topic = ?", strings.TrimSpace(topic)).
		Where("?TableAlias.state = ?", string(core.RegistrationStateActive)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.WebhookRegistration{}, fmt.Errorf("%w: scope %q topic %q", core.ErrRegistrationNotFound, scope, topic)
		}
		return core.WebhookRegistration{}, err
	}
	return record.toDomain(), nil
}

func (s *RegistrationStore) ListByScope(ctx context.Context, scope string) ([]core.WebhookRegistration, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: registration store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("scope", "=", strings.TrimSpace(scope)),
		repository.OrderBy("topic ASC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.WebhookRegistration, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *RegistrationStore) SetState(ctx context.Context, id string, state core.RegistrationState) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: registration store is not configured")
	}
	res, err := s.db.NewUpdate().
		Model((*registrationRecord)(nil)).
		Set("state = ?", string(state)).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", strings.TrimSpace(id)).
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireAffected(res, core.ErrRegistrationNotFound, id)
}

// RecordCall bumps the counters with a single increment statement.
func (s *RegistrationStore) RecordCall(ctx context.Context, id string, success bool, at time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: registration store is not configured")
	}
	successful, failed := 0, 1
	if success {
		successful, failed = 1, 0
	}
	at = at.UTC()
	res, err := s.db.NewUpdate().
		Model((*registrationRecord)(nil)).
		Set("total_calls = total_calls + 1").
		Set("successful_calls = successful_calls + ?", successful).
		Set("failed_calls = failed_calls + ?", failed).
		Set("last_call_at = ?", at).
		Set("updated_at = ?", at).
		Where("id = ?", strings.TrimSpace(id)).
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireAffected(res, core.ErrRegistrationNotFound, id)
}
