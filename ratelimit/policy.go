// Package ratelimit tracks the Shopify Admin API call budget per shop and
// holds requests back while a shop is throttled.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/naashmtp/odoo-shopify-connector/core"
)

const (
	HeaderCallLimit  = "X-Shopify-Shop-Api-Call-Limit"
	HeaderRetryAfter = "Retry-After"
)

var ErrStateNotFound = errors.New("ratelimit: state not found")

// State is the last observed call budget of one shop.
type State struct {
	Key            string
	Used           int
	Limit          int
	RetryAfter     *time.Duration
	ThrottledUntil *time.Time
	LastStatus     int
	Attempts       int
	UpdatedAt      time.Time
}

func (s State) Remaining() int {
	if s.Limit <= 0 {
		return -1
	}
	if remaining := s.Limit - s.Used; remaining > 0 {
		return remaining
	}
	return 0
}

type StateStore interface {
	Get(ctx context.Context, key string) (State, error)
	Upsert(ctx context.Context, state State) error
}

type ThrottledError struct {
	Key        string
	RetryAfter time.Duration
}

func (e ThrottledError) Error() string {
	return fmt.Sprintf("ratelimit: shop %q throttled for %s", strings.TrimSpace(e.Key), e.RetryAfter)
}

// ToSyncError reports the throttle as a rate-limited failure, which the
// queue engine retries.
func (e ThrottledError) ToSyncError() *goerrors.Error {
	metadata := map[string]any{"shop": strings.TrimSpace(e.Key)}
	if e.RetryAfter > 0 {
		metadata["retry_after_ms"] = e.RetryAfter.Milliseconds()
	}
	return goerrors.Wrap(e, goerrors.CategoryRateLimit, e.Error()).
		WithCode(http.StatusTooManyRequests).
		WithTextCode(core.SyncErrorRateLimited).
		WithMetadata(metadata)
}

type AdaptivePolicy struct {
	Store            StateStore
	Now              func() time.Time
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
	DefaultRetryHint time.Duration
	// MaxWait bounds how long Wait sleeps before giving up with a
	// ThrottledError. Zero never sleeps.
	MaxWait time.Duration
}

func NewAdaptivePolicy(store StateStore) *AdaptivePolicy {
	return &AdaptivePolicy{
		Store:            store,
		Now:              func() time.Time { return time.Now().UTC() },
		InitialBackoff:   time.Second,
		MaxBackoff:       time.Minute,
		DefaultRetryHint: 2 * time.Second,
		MaxWait:          10 * time.Second,
	}
}

// BeforeCall fails with a ThrottledError while key is inside a throttle
// window.
func (p *AdaptivePolicy) BeforeCall(ctx context.Context, key string) error {
	wait, err := p.pending(ctx, key)
	if err != nil || wait <= 0 {
		return err
	}
	return ThrottledError{Key: key, RetryAfter: wait}.ToSyncError()
}

// Wait sleeps out a short throttle window and fails like BeforeCall when
// the window exceeds MaxWait.
func (p *AdaptivePolicy) Wait(ctx context.Context, key string) error {
	wait, err := p.pending(ctx, key)
	if err != nil || wait <= 0 {
		return err
	}
	if p.MaxWait <= 0 || wait > p.MaxWait {
		return ThrottledError{Key: key, RetryAfter: wait}.ToSyncError()
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (p *AdaptivePolicy) pending(ctx context.Context, key string) (time.Duration, error) {
	if p == nil || p.Store == nil {
		return 0, nil
	}
	state, err := p.Store.Get(ctx, normalizeKey(key))
	if err != nil {
		if errors.Is(err, ErrStateNotFound) {
			return 0, nil
		}
		return 0, err
	}
	now := p.now()
	if until := state.ThrottledUntil; until != nil && now.Before(*until) {
		return until.Sub(now), nil
	}
	return 0, nil
}

// AfterCall records the budget reported by a response. A 429 or an
// exhausted bucket opens a throttle window sized by Retry-After, or by
// exponential backoff when Shopify gave no hint.
func (p *AdaptivePolicy) AfterCall(ctx context.Context, key string, statusCode int, headers map[string]string) error {
	if p == nil || p.Store == nil {
		return nil
	}
	key = normalizeKey(key)
	now := p.now()
	state, err := p.Store.Get(ctx, key)
	if err != nil && !errors.Is(err, ErrStateNotFound) {
		return err
	}
	if errors.Is(err, ErrStateNotFound) {
		state = State{Key: key}
	}

	state.LastStatus = statusCode
	state.UpdatedAt = now
	used, limit, hasLimit := ParseCallLimit(headerValue(headers, HeaderCallLimit))
	if hasLimit {
		state.Used = used
		state.Limit = limit
	}
	retryAfter, hasRetryAfter := parseRetryAfter(headerValue(headers, HeaderRetryAfter), now)
	if hasRetryAfter {
		state.RetryAfter = &retryAfter
	} else {
		state.RetryAfter = nil
	}

	throttled := statusCode == http.StatusTooManyRequests || (hasLimit && used >= limit)
	if !throttled {
		state.Attempts = 0
		state.ThrottledUntil = nil
		return p.Store.Upsert(ctx, state)
	}

	state.Attempts++
	delay := retryAfter
	if !hasRetryAfter {
		if statusCode == http.StatusTooManyRequests {
			delay = p.nextBackoff(state.Attempts)
		} else {
			delay = p.defaultRetryHint()
		}
	}
	until := now.Add(delay)
	state.ThrottledUntil = &until
	return p.Store.Upsert(ctx, state)
}

func (p *AdaptivePolicy) now() time.Time {
	if p != nil && p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

func (p *AdaptivePolicy) nextBackoff(attempt int) time.Duration {
	initial := p.InitialBackoff
	if initial <= 0 {
		initial = time.Second
	}
	maximum := p.MaxBackoff
	if maximum <= 0 {
		maximum = time.Minute
	}
	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maximum {
			return maximum
		}
	}
	return delay
}

func (p *AdaptivePolicy) defaultRetryHint() time.Duration {
	if p != nil && p.DefaultRetryHint > 0 {
		return p.DefaultRetryHint
	}
	return 2 * time.Second
}

// ParseCallLimit reads "used/limit" from X-Shopify-Shop-Api-Call-Limit.
func ParseCallLimit(value string) (used int, limit int, ok bool) {
	parts := strings.Split(strings.TrimSpace(value), "/")
	if len(parts) != 2 {
		return 0, 0, false
	}
	used, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || used < 0 {
		return 0, 0, false
	}
	limit, err = strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || limit <= 0 {
		return 0, 0, false
	}
	return used, limit, true
}

// Shopify sends fractional seconds ("2.0"); HTTP dates are accepted too.
func parseRetryAfter(raw string, now time.Time) (time.Duration, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	if seconds, err := strconv.ParseFloat(raw, 64); err == nil {
		if seconds <= 0 {
			return 0, false
		}
		return time.Duration(seconds * float64(time.Second)), true
	}
	if retryAt, err := http.ParseTime(raw); err == nil && retryAt.After(now) {
		return retryAt.Sub(now), true
	}
	return 0, false
}

func headerValue(headers map[string]string, key string) string {
	if value, ok := headers[key]; ok {
		return strings.TrimSpace(value)
	}
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), key) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

type MemoryStateStore struct {
	mu    sync.RWMutex
	items map[string]State
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{items: map[string]State{}}
}

func (s *MemoryStateStore) Get(_ context.Context, key string) (State, error) {
	if s == nil {
		return State{}, fmt.Errorf("ratelimit: state store is nil")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.items[normalizeKey(key)]
	if !ok {
		return State{}, ErrStateNotFound
	}
	return state, nil
}

func (s *MemoryStateStore) Upsert(_ context.Context, state State) error {
	if s == nil {
		return fmt.Errorf("ratelimit: state store is nil")
	}
	state.Key = normalizeKey(state.Key)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[state.Key] = state
	return nil
}
