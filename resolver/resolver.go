// Package resolver mirrors external resources into shadow records keyed by
// their natural key, creating or updating them idempotently.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/naashmtp/odoo-shopify-connector/core"
)

type Resolver struct {
	store    core.ShadowStore
	locker   core.KeyLocker
	linker   core.LocalLinker
	autoLink map[core.ShadowKind]bool
	validate *validator.Validate
	observer core.Observer
	now      func() time.Time
}

type Option func(*Resolver)

// WithLocalLinker links newly imported records of the listed kinds to local
// records. Without kinds every kind is linked.
func WithLocalLinker(linker core.LocalLinker, kinds ...core.ShadowKind) Option {
	return func(r *Resolver) {
		r.linker = linker
		if len(kinds) == 0 {
			r.autoLink = nil
			return
		}
		r.autoLink = make(map[core.ShadowKind]bool, len(kinds))
		for _, kind := range kinds {
			r.autoLink[kind] = true
		}
	}
}

func WithObserver(observer core.Observer) Option {
	return func(r *Resolver) {
		r.observer = observer
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

func New(store core.ShadowStore, locker core.KeyLocker, opts ...Option) (*Resolver, error) {
	if store == nil {
		return nil, fmt.Errorf("resolver: shadow store is required")
	}
	if locker == nil {
		return nil, fmt.Errorf("resolver: key locker is required")
	}
	r := &Resolver{
		store:    store,
		locker:   locker,
		validate: validator.New(),
		observer: core.NewObserver(nil, nil),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

// Upsert creates or updates the record for req's natural key, then its
// children. Children missing from the payload are left in place.
func (r *Resolver) Upsert(ctx context.Context, req core.UpsertRequest) (core.ShadowRecord, error) {
	startedAt := time.Now()
	req.Scope = strings.TrimSpace(req.Scope)
	req.ExternalID = strings.TrimSpace(req.ExternalID)
	if err := r.validate.Struct(req); err != nil {
		return core.ShadowRecord{}, resolverValidationError(err)
	}

	record, err := r.resolve(ctx, core.NaturalKey{
		Kind:       req.Kind,
		Scope:      req.Scope,
		ExternalID: req.ExternalID,
	}, req.Data)
	if err != nil {
		r.observer.Observe(ctx, startedAt, "resolver_upsert", err, map[string]any{
			"scope": req.Scope,
			"kind":  string(req.Kind),
		})
		return core.ShadowRecord{}, err
	}

	kinds := make([]core.ShadowKind, 0, len(req.Children))
	for kind := range req.Children {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	children := 0
	for _, kind := range kinds {
		for _, child := range req.Children[kind] {
			if _, err := r.resolve(ctx, core.NaturalKey{
				Kind:       kind,
				Scope:      req.Scope,
				ParentID:   record.ID,
				ExternalID: strings.TrimSpace(child.ExternalID),
			}, child.Data); err != nil {
				return record, fmt.Errorf("resolver: child %s %s of %s: %w", kind, child.ExternalID, record.ExternalID, err)
			}
			children++
		}
	}

	r.observer.Observe(ctx, startedAt, "resolver_upsert", nil, map[string]any{
		"scope":       req.Scope,
		"kind":        string(req.Kind),
		"external_id": req.ExternalID,
		"record_id":   record.ID,
		"children":    children,
	})
	return record, nil
}

func (r *Resolver) resolve(ctx context.Context, key core.NaturalKey, data map[string]any) (core.ShadowRecord, error) {
	record, err := r.writeLocked(ctx, key, data)
	if err != nil {
		return core.ShadowRecord{}, err
	}
	return r.link(ctx, record)
}

func (r *Resolver) writeLocked(ctx context.Context, key core.NaturalKey, data map[string]any) (core.ShadowRecord, error) {
	unlock, err := r.locker.Lock(ctx, key.String())
	if err != nil {
		return core.ShadowRecord{}, core.TransientNetworkError(err, "resolver: lock "+key.String(), nil)
	}
	defer unlock()

	now := r.now()
	existing, err := r.store.FindByKey(ctx, key)
	switch {
	case err == nil:
		return r.store.UpdateData(ctx, existing.ID, data, now)
	case !errors.Is(err, core.ErrShadowRecordNotFound):
		return core.ShadowRecord{}, err
	}

	created, err := r.store.Create(ctx, core.ShadowRecord{
		Kind:       key.Kind,
		Scope:      key.Scope,
		ParentID:   key.ParentID,
		ExternalID: key.ExternalID,
		Data:       data,
		LastSync:   &now,
	})
	if err == nil {
		return created, nil
	}
	if !errors.Is(err, core.ErrShadowRecordExists) {
		return core.ShadowRecord{}, err
	}
	// another process created the key between lookup and insert
	existing, err = r.store.FindByKey(ctx, key)
	if err != nil {
		return core.ShadowRecord{}, err
	}
	return r.store.UpdateData(ctx, existing.ID, data, now)
}

func (r *Resolver) link(ctx context.Context, record core.ShadowRecord) (core.ShadowRecord, error) {
	if r.linker == nil || record.Imported {
		return record, nil
	}
	if r.autoLink != nil && !r.autoLink[record.Kind] {
		return record, nil
	}
	flipped, err := r.store.MarkImported(ctx, record.ID)
	if err != nil || !flipped {
		return record, err
	}

	localRef, err := r.linker.Link(ctx, record)
	if err != nil {
		if resetErr := r.store.ResetImported(ctx, record.ID); resetErr != nil {
			r.observer.Error(ctx, "resolver: reset imported flag failed", map[string]any{
				"record_id": record.ID,
				"error":     resetErr.Error(),
			})
		}
		return record, err
	}
	if err := r.store.SetLocalLink(ctx, record.ID, localRef); err != nil {
		return record, err
	}
	record.Imported = true
	record.LocalLink = localRef
	return record, nil
}

var _ core.Upserter = (*Resolver)(nil)
