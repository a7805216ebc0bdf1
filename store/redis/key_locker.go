package redisstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/naashmtp/odoo-shopify-connector/core"
	"github.com/redis/go-redis/v9"
)

const (
	defaultLockTTL   = 30 * time.Second
	defaultLockRetry = 25 * time.Millisecond
)

// releaseScript deletes the lock only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// KeyLocker is a single-instance Redis lock. A holder that outlives ttl
// loses the lock; ttl should exceed the longest resolver write.
type KeyLocker struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	retry  time.Duration
}

func NewKeyLocker(client redis.UniversalClient, prefix string, ttl time.Duration) (*KeyLocker, error) {
	if client == nil {
		return nil, fmt.Errorf("redisstore: client is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &KeyLocker{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		retry:  defaultLockRetry,
	}, nil
}

func (l *KeyLocker) Lock(ctx context.Context, key string) (func(), error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("redisstore: lock key is required")
	}
	redisKey := prefixed(l.prefix, "lock", key)
	token := uuid.NewString()

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()
	for {
		acquired, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redisstore: acquire %s: %w", key, err)
		}
		if acquired {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, l.client, []string{redisKey}, token).Err()
	}, nil
}

var _ core.KeyLocker = (*KeyLocker)(nil)
