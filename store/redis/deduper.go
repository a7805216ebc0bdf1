package redisstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/naashmtp/odoo-shopify-connector/core"
	"github.com/redis/go-redis/v9"
)

const defaultDedupeTTL = 24 * time.Hour

type DeliveryDeduper struct {
	client redis.UniversalClient
	prefix string
}

func NewDeliveryDeduper(client redis.UniversalClient, prefix string) (*DeliveryDeduper, error) {
	if client == nil {
		return nil, fmt.Errorf("redisstore: client is required")
	}
	return &DeliveryDeduper{client: client, prefix: prefix}, nil
}

// MarkSeen uses SET NX so only the first delivery within ttl reports true.
// Deliveries without an id are always treated as new.
func (d *DeliveryDeduper) MarkSeen(ctx context.Context, deliveryID string, ttl time.Duration) (bool, error) {
	deliveryID = strings.TrimSpace(deliveryID)
	if deliveryID == "" {
		return true, nil
	}
	if ttl <= 0 {
		ttl = defaultDedupeTTL
	}
	first, err := d.client.SetNX(ctx, prefixed(d.prefix, "delivery", deliveryID), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redisstore: mark delivery %s: %w", deliveryID, err)
	}
	return first, nil
}

// Forget deletes the delivery key so the next delivery with the same id is
// processed.
func (d *DeliveryDeduper) Forget(ctx context.Context, deliveryID string) error {
	deliveryID = strings.TrimSpace(deliveryID)
	if deliveryID == "" {
		return nil
	}
	if err := d.client.Del(ctx, prefixed(d.prefix, "delivery", deliveryID)).Err(); err != nil {
		return fmt.Errorf("redisstore: forget delivery %s: %w", deliveryID, err)
	}
	return nil
}

var _ core.DeliveryDeduper = (*DeliveryDeduper)(nil)
