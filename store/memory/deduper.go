package memorystore

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/naashmtp/odoo-shopify-connector/core"
)

const dedupeSweepInterval = time.Minute

// DeliveryDeduper expires entries lazily on lookup; a full sweep of the
// remaining entries runs at most once per dedupeSweepInterval.
type DeliveryDeduper struct {
	mu        sync.Mutex
	seen      map[string]time.Time
	lastSweep time.Time
	Now       func() time.Time
}

func NewDeliveryDeduper() *DeliveryDeduper {
	return &DeliveryDeduper{
		seen: map[string]time.Time{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// MarkSeen reports true the first time deliveryID is observed within ttl.
func (d *DeliveryDeduper) MarkSeen(_ context.Context, deliveryID string, ttl time.Duration) (bool, error) {
	deliveryID = strings.TrimSpace(deliveryID)
	if deliveryID == "" {
		return true, nil
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()
	if now.Sub(d.lastSweep) >= dedupeSweepInterval {
		d.sweep(now)
	}
	if expiresAt, exists := d.seen[deliveryID]; exists && expiresAt.After(now) {
		return false, nil
	}
	d.seen[deliveryID] = now.Add(ttl)
	return true, nil
}

func (d *DeliveryDeduper) Forget(_ context.Context, deliveryID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, strings.TrimSpace(deliveryID))
	return nil
}

// Len reports the number of tracked ids, expired ones included until the
// next sweep.
func (d *DeliveryDeduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

func (d *DeliveryDeduper) sweep(now time.Time) {
	for id, expiresAt := range d.seen {
		if !expiresAt.After(now) {
			delete(d.seen, id)
		}
	}
	d.lastSweep = now
}

func (d *DeliveryDeduper) now() time.Time {
	if d.Now != nil {
		return d.Now().UTC()
	}
	return time.Now().UTC()
}

var _ core.DeliveryDeduper = (*DeliveryDeduper)(nil)
