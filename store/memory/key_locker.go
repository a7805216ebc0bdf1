package memorystore

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/naashmtp/odoo-shopify-connector/core"
)

// KeyLocker serializes callers per key inside one process. Idle keys are
// dropped once their last holder unlocks.
type KeyLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	slot chan struct{}
	refs int
}

func NewKeyLocker() *KeyLocker {
	return &KeyLocker{locks: map[string]*keyLock{}}
}

func (l *KeyLocker) Lock(ctx context.Context, key string) (func(), error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("memorystore: lock key is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	l.mu.Lock()
	lock, ok := l.locks[key]
	if !ok {
		lock = &keyLock{slot: make(chan struct{}, 1)}
		l.locks[key] = lock
	}
	lock.refs++
	l.mu.Unlock()

	select {
	case lock.slot <- struct{}{}:
	case <-ctx.Done():
		l.release(key, lock)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-lock.slot
			l.release(key, lock)
		})
	}, nil
}

func (l *KeyLocker) release(key string, lock *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock.refs--
	if lock.refs <= 0 {
		delete(l.locks, key)
	}
}

var _ core.KeyLocker = (*KeyLocker)(nil)
