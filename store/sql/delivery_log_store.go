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

const defaultDeliveryLogLimit = 100

type DeliveryLogStore struct {
	db   *bun.DB
	repo repository.Repository[*deliveryLogRecord]
}

func NewDeliveryLogStore(db *bun.DB) (*DeliveryLogStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*deliveryLogRecord](db, deliveryLogHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid delivery log repository wiring: %w", err)
		}
	}
	return &DeliveryLogStore{db: db, repo: repo}, nil
}

func (s *DeliveryLogStore) Append(ctx context.Context, entry core.DeliveryLog) (core.DeliveryLog, error) {
	if s == nil || s.db == nil {
		return core.DeliveryLog{}, fmt.Errorf("sqlstore: delivery log store is not configured")
	}
	if strings.TrimSpace(entry.ID) == "" {
		entry.ID = core.NewID()
	}
	if entry.Status == "" {
		entry.Status = core.DeliveryStatusProcessing
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	created, err := s.repo.Create(ctx, newDeliveryLogRecord(entry))
	if err != nil {
		return core.DeliveryLog{}, err
	}
	return created.toDomain(), nil
}

// Finish only moves entries that are still processing.
func (s *DeliveryLogStore) Finish(
	ctx context.Context,
	id string,
	status core.DeliveryStatus,
	message string,
	at time.Time,
) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: delivery log store is not configured")
	}
	if !status.Terminal() {
		return fmt.Errorf("sqlstore: delivery status %q is not terminal", status)
	}
	res, err := s.db.NewUpdate().
		Model((*deliveryLogRecord)(nil)).
		Set("status = ?", string(status)).
		Set("message = ?", strings.TrimSpace(message)).
		Set("processed_at = ?", at.UTC()).
		Where("id = ?", strings.TrimSpace(id)).
		Where("status = ?", string(core.DeliveryStatusProcessing)).
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 1 {
		return nil
	}
	_, err = s.Get(ctx, id)
	return err
}

func (s *DeliveryLogStore) Get(ctx context.Context, id string) (core.DeliveryLog, error) {
	if s == nil || s.db == nil {
		return core.DeliveryLog{}, fmt.Errorf("sqlstore: delivery log store is not configured")
	}
	record := &deliveryLogRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.DeliveryLog{}, fmt.Errorf("%w: id %q", core.ErrDeliveryLogNotFound, id)
		}
		return core.DeliveryLog{}, err
	}
	return record.toDomain(), nil
}

func (s *DeliveryLogStore) List(ctx context.Context, filter core.DeliveryLogFilter) ([]core.DeliveryLog, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: delivery log store is not configured")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultDeliveryLogLimit
	}
	selectors := []repository.SelectCriteria{
		repository.OrderBy("created_at DESC"),
		repository.OrderBy("id DESC"),
		repository.SelectPaginate(limit, 0),
	}
	if scope := strings.TrimSpace(filter.Scope); scope != "" {
		selectors = append(selectors, repository.SelectBy("scope", "=", scope))
	}
	if topic := strings.TrimSpace(filter.Topic); topic != "" {
		selectors = append(selectors, repository.SelectBy("topic", "=", topic))
	}
	if filter.Status != "" {
		selectors = append(selectors, repository.SelectBy("status", "=", string(filter.Status)))
	}
	records, _, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return nil, err
	}
	out := make([]core.DeliveryLog, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *DeliveryLogStore) PurgeBefore(ctx context.Context, before time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: delivery log store is not configured")
	}
	res, err := s.db.NewDelete().
		Model((*deliveryLogRecord)(nil)).
		Where("created_at < ?", before.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, _ := res.RowsAffected()
	return int(affected), nil
}
