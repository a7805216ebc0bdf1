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

// ShadowStore persists shadow records. The unique index on
// (kind, scope, parent_id, external_id) enforces one record per natural key.
type ShadowStore struct {
	db   *bun.DB
	repo repository.Repository[*shadowRecord]
}

func NewShadowStore(db *bun.DB) (*ShadowStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*shadowRecord](db, shadowHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid shadow repository wiring: %w", err)
		}
	}
	return &ShadowStore{db: db, repo: repo}, nil
}

func (s *ShadowStore) FindByKey(ctx context.Context, key core.NaturalKey) (core.ShadowRecord, error) {
	if s == nil || s.db == nil {
		return core.ShadowRecord{}, fmt.Errorf("sqlstore: shadow store is not configured")
	}
	key = normalizeKey(key)
	record := &shadowRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.kind = ?", string(key.Kind)).
		Where("?TableAlias.scope = ?", key.Scope).
		Where("?TableAlias.parent_id = ?", key.ParentID).
		Where("?TableAlias.external_id = ?", key.ExternalID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.ShadowRecord{}, fmt.Errorf("%w: %s", core.ErrShadowRecordNotFound, key.String())
		}
		return core.ShadowRecord{}, err
	}
	return record.toDomain(), nil
}

func (s *ShadowStore) Create(ctx context.Context, record core.ShadowRecord) (core.ShadowRecord, error) {
	if s == nil || s.db == nil {
		return core.ShadowRecord{}, fmt.Errorf("sqlstore: shadow store is not configured")
	}
	key := normalizeKey(record.Key())
	if key.Kind == "" || key.ExternalID == "" {
		return core.ShadowRecord{}, fmt.Errorf("sqlstore: shadow kind and external id are required")
	}
	record.Kind = key.Kind
	record.Scope = key.Scope
	record.ParentID = key.ParentID
	record.ExternalID = key.ExternalID
	if strings.TrimSpace(record.ID) == "" {
		record.ID = core.NewID()
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = record.CreatedAt
	}
	created, err := s.repo.Create(ctx, newShadowRecord(record))
	if err != nil {
		if isUniqueViolation(err) {
			return core.ShadowRecord{}, fmt.Errorf("%w: %s", core.ErrShadowRecordExists, key.String())
		}
		return core.ShadowRecord{}, err
	}
	return created.toDomain(), nil
}

func (s *ShadowStore) UpdateData(ctx context.Context, id string, data map[string]any, syncedAt time.Time) (core.ShadowRecord, error) {
	if s == nil || s.db == nil {
		return core.ShadowRecord{}, fmt.Errorf("sqlstore: shadow store is not configured")
	}
	syncedAt = syncedAt.UTC()
	res, err := s.db.NewUpdate().
		Model((*shadowRecord)(nil)).
		Set("data = ?", copyAnyMap(data)).
		Set("last_sync = ?", syncedAt).
		Set("updated_at = ?", syncedAt).
		Where("id = ?", strings.TrimSpace(id)).
		Exec(ctx)
	if err != nil {
		return core.ShadowRecord{}, err
	}
	if err := requireAffected(res, core.ErrShadowRecordNotFound, id); err != nil {
		return core.ShadowRecord{}, err
	}
	return s.get(ctx, id)
}

// MarkImported flips imported from false to true. Only the caller whose
// statement changed the row observes true.
func (s *ShadowStore) MarkImported(ctx context.Context, id string) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: shadow store is not configured")
	}
	res, err := s.db.NewUpdate().
		Model((*shadowRecord)(nil)).
		Set("imported = ?", true).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", strings.TrimSpace(id)).
		Where("imported = ?", false).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	if affected, _ := res.RowsAffected(); affected == 1 {
		return true, nil
	}
	if _, err := s.get(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (s *ShadowStore) ResetImported(ctx context.Context, id string) error {
	return s.setColumn(ctx, id, "imported", false)
}

func (s *ShadowStore) SetLocalLink(ctx context.Context, id string, link string) error {
	return s.setColumn(ctx, id, "local_link", strings.TrimSpace(link))
}

func (s *ShadowStore) SetStatus(ctx context.Context, id string, status string) error {
	return s.setColumn(ctx, id, "status", strings.TrimSpace(status))
}

func (s *ShadowStore) SetFulfillmentStatus(ctx context.Context, id string, status string) error {
	return s.setColumn(ctx, id, "fulfillment_status", strings.TrimSpace(status))
}

func (s *ShadowStore) ListChildren(ctx context.Context, parentID string, kind core.ShadowKind) ([]core.ShadowRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: shadow store is not configured")
	}
	selectors := []repository.SelectCriteria{
		repository.SelectBy("parent_id", "=", strings.TrimSpace(parentID)),
		repository.OrderBy("external_id ASC"),
	}
	if kind != "" {
		selectors = append(selectors, repository.SelectBy("kind", "=", string(kind)))
	}
	records, _, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return nil, err
	}
	out := make([]core.ShadowRecord, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *ShadowStore) get(ctx context.Context, id string) (core.ShadowRecord, error) {
	record := &shadowRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.ShadowRecord{}, fmt.Errorf("%w: id %q", core.ErrShadowRecordNotFound, id)
		}
		return core.ShadowRecord{}, err
	}
	return record.toDomain(), nil
}

func (s *ShadowStore) setColumn(ctx context.Context, id string, column string, value any) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: shadow store is not configured")
	}
	res, err := s.db.NewUpdate().
		Model((*shadowRecord)(nil)).
		Set("? = ?", bun.Ident(column), value).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", strings.TrimSpace(id)).
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireAffected(res, core.ErrShadowRecordNotFound, id)
}

func normalizeKey(key core.NaturalKey) core.NaturalKey {
	key.Kind = core.ShadowKind(strings.TrimSpace(string(key.Kind)))
	key.Scope = strings.TrimSpace(key.Scope)
	key.ParentID = strings.TrimSpace(key.ParentID)
	key.ExternalID = strings.TrimSpace(key.ExternalID)
	return key
}

func requireAffected(res sql.Result, notFound error, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: id %q", notFound, id)
	}
	return nil
}
