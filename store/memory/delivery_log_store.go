package memorystore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/naashmtp/odoo-shopify-connector/core"
)

type DeliveryLogStore struct {
	mu      sync.Mutex
	seq     int64
	entries map[string]deliveryEntry
}

type deliveryEntry struct {
	seq int64
	log core.DeliveryLog
}

func NewDeliveryLogStore() *DeliveryLogStore {
	return &DeliveryLogStore{entries: map[string]deliveryEntry{}}
}

func (s *DeliveryLogStore) Append(_ context.Context, entry core.DeliveryLog) (core.DeliveryLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(entry.ID) == "" {
		entry.ID = core.NewID()
	}
	if entry.Status == "" {
		entry.Status = core.DeliveryStatusProcessing
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	entry.Payload = append([]byte(nil), entry.Payload...)
	s.seq++
	s.entries[entry.ID] = deliveryEntry{seq: s.seq, log: entry}
	return entry, nil
}

func (s *DeliveryLogStore) Finish(_ context.Context, id string, status core.DeliveryStatus, message string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[strings.TrimSpace(id)]
	if !ok {
		return core.ErrDeliveryLogNotFound
	}
	if entry.log.Status.Terminal() {
		return nil
	}
	stamp := at
	entry.log.Status = status
	entry.log.Message = message
	entry.log.ProcessedAt = &stamp
	s.entries[entry.log.ID] = entry
	return nil
}

func (s *DeliveryLogStore) Get(_ context.Context, id string) (core.DeliveryLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[strings.TrimSpace(id)]
	if !ok {
		return core.DeliveryLog{}, core.ErrDeliveryLogNotFound
	}
	return entry.log, nil
}

// List returns matching entries, newest first.
func (s *DeliveryLogStore) List(_ context.Context, filter core.DeliveryLogFilter) ([]core.DeliveryLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	matched := make([]deliveryEntry, 0)
	for _, entry := range s.entries {
		if filter.Scope != "" && entry.log.Scope != filter.Scope {
			continue
		}
		if filter.Topic != "" && entry.log.Topic != filter.Topic {
			continue
		}
		if filter.Status != "" && entry.log.Status != filter.Status {
			continue
		}
		matched = append(matched, entry)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].seq > matched[j].seq })
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	out := make([]core.DeliveryLog, 0, len(matched))
	for _, entry := range matched {
		out = append(out, entry.log)
	}
	return out, nil
}

func (s *DeliveryLogStore) PurgeBefore(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, entry := range s.entries {
		if entry.log.CreatedAt.Before(before) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed, nil
}

var _ core.DeliveryLogStore = (*DeliveryLogStore)(nil)
