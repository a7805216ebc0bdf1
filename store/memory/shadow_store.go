package memorystore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/naashmtp/odoo-shopify-connector/core"
)

type ShadowStore struct {
	mu    sync.Mutex
	seq   int64
	byID  map[string]shadowEntry
	byKey map[string]string
}

type shadowEntry struct {
	seq    int64
	record core.ShadowRecord
}

func NewShadowStore() *ShadowStore {
	return &ShadowStore{
		byID:  map[string]shadowEntry{},
		byKey: map[string]string{},
	}
}

func (s *ShadowStore) FindByKey(_ context.Context, key core.NaturalKey) (core.ShadowRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byKey[key.String()]
	if !ok {
		return core.ShadowRecord{}, core.ErrShadowRecordNotFound
	}
	return cloneShadow(s.byID[id].record), nil
}

func (s *ShadowStore) Create(_ context.Context, record core.ShadowRecord) (core.ShadowRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := record.Key().String()
	if _, exists := s.byKey[key]; exists {
		return core.ShadowRecord{}, core.ErrShadowRecordExists
	}
	if strings.TrimSpace(record.ID) == "" {
		record.ID = core.NewID()
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	s.seq++
	s.byID[record.ID] = shadowEntry{seq: s.seq, record: cloneShadow(record)}
	s.byKey[key] = record.ID
	return cloneShadow(record), nil
}

func (s *ShadowStore) UpdateData(_ context.Context, id string, data map[string]any, syncedAt time.Time) (core.ShadowRecord, error) {
	var out core.ShadowRecord
	err := s.mutate(id, func(record *core.ShadowRecord) {
		record.Data = cloneMap(data)
		stamp := syncedAt
		record.LastSync = &stamp
		out = cloneShadow(*record)
	})
	return out, err
}

func (s *ShadowStore) MarkImported(_ context.Context, id string) (bool, error) {
	flipped := false
	err := s.mutate(id, func(record *core.ShadowRecord) {
		if record.Imported {
			return
		}
		record.Imported = true
		flipped = true
	})
	return flipped, err
}

func (s *ShadowStore) ResetImported(_ context.Context, id string) error {
	return s.mutate(id, func(record *core.ShadowRecord) {
		record.Imported = false
	})
}

func (s *ShadowStore) SetLocalLink(_ context.Context, id string, link string) error {
	return s.mutate(id, func(record *core.ShadowRecord) {
		record.LocalLink = link
	})
}

func (s *ShadowStore) SetStatus(_ context.Context, id string, status string) error {
	return s.mutate(id, func(record *core.ShadowRecord) {
		record.Status = status
	})
}

func (s *ShadowStore) SetFulfillmentStatus(_ context.Context, id string, status string) error {
	return s.mutate(id, func(record *core.ShadowRecord) {
		record.FulfillmentStatus = status
	})
}

func (s *ShadowStore) ListChildren(_ context.Context, parentID string, kind core.ShadowKind) ([]core.ShadowRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := make([]shadowEntry, 0)
	for _, entry := range s.byID {
		if entry.record.ParentID != parentID {
			continue
		}
		if kind != "" && entry.record.Kind != kind {
			continue
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	out := make([]core.ShadowRecord, 0, len(entries))
	for _, entry := range entries {
		out = append(out, cloneShadow(entry.record))
	}
	return out, nil
}

// Len reports the number of stored records.
func (s *ShadowStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

func (s *ShadowStore) mutate(id string, apply func(record *core.ShadowRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.byID[strings.TrimSpace(id)]
	if !ok {
		return core.ErrShadowRecordNotFound
	}
	apply(&entry.record)
	entry.record.UpdatedAt = time.Now().UTC()
	s.byID[entry.record.ID] = entry
	return nil
}

func cloneShadow(record core.ShadowRecord) core.ShadowRecord {
	record.Data = cloneMap(record.Data)
	if record.LastSync != nil {
		value := *record.LastSync
		record.LastSync = &value
	}
	return record
}

var _ core.ShadowStore = (*ShadowStore)(nil)
