// Package redisstore backs the resolver lock and the webhook delivery
// deduper with Redis so several workers can share them.
package redisstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/naashmtp/odoo-shopify-connector/core"
	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "shopify-sync"

// NewClient connects to cfg.Addr and pings it before returning.
func NewClient(ctx context.Context, cfg core.RedisConfig) (*redis.Client, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, fmt.Errorf("redisstore: addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redisstore: ping %s: %w", addr, err)
	}
	return client, nil
}

func prefixed(prefix string, parts ...string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return prefix + ":" + strings.Join(parts, ":")
}
