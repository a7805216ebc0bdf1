package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/naashmtp/odoo-shopify-connector/ratelimit"
	"github.com/redis/go-redis/v9"
)

const defaultThrottleStateTTL = time.Hour

// ThrottleStateStore shares Shopify call-limit state between workers.
// Entries expire after ttl of inactivity.
type ThrottleStateStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewThrottleStateStore(client redis.UniversalClient, prefix string, ttl time.Duration) (*ThrottleStateStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redisstore: client is required")
	}
	if ttl <= 0 {
		ttl = defaultThrottleStateTTL
	}
	return &ThrottleStateStore{client: client, prefix: prefix, ttl: ttl}, nil
}

func (s *ThrottleStateStore) Get(ctx context.Context, key string) (ratelimit.State, error) {
	raw, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ratelimit.State{}, ratelimit.ErrStateNotFound
		}
		return ratelimit.State{}, fmt.Errorf("redisstore: load throttle state %s: %w", key, err)
	}
	var state ratelimit.State
	if err := json.Unmarshal(raw, &state); err != nil {
		return ratelimit.State{}, fmt.Errorf("redisstore: decode throttle state %s: %w", key, err)
	}
	return state, nil
}

func (s *ThrottleStateStore) Upsert(ctx context.Context, state ratelimit.State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("redisstore: encode throttle state %s: %w", state.Key, err)
	}
	if err := s.client.Set(ctx, s.key(state.Key), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("redisstore: save throttle state %s: %w", state.Key, err)
	}
	return nil
}

func (s *ThrottleStateStore) key(shop string) string {
	return prefixed(s.prefix, "throttle", strings.ToLower(strings.TrimSpace(shop)))
}

var _ ratelimit.StateStore = (*ThrottleStateStore)(nil)
