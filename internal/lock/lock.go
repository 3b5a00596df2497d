package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"chatgames/internal/kv"
	"chatgames/internal/metrics"
)

// Manager hands out keyed locks backed by the shared store, so holders on
// different replicas exclude each other. Every lock is owned by a random
// token and can only be released by presenting that token; a holder whose
// TTL already lapsed can never delete the next holder's lock.
type Manager struct {
	store kv.Store
}

func NewManager(store kv.Store) *Manager {
	return &Manager{store: store}
}

// Acquire tries to take the lock once. On success it returns the owner
// token. ok=false means another holder is active.
func (m *Manager) Acquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error) {
	token, err = newToken()
	if err != nil {
		return "", false, err
	}
	ok, err = m.store.SetNX(ctx, key, token, ttl)
	if err != nil {
		return "", false, err
	}
	if !ok {
		metrics.LockContention.WithLabelValues(kind(key)).Inc()
		return "", false, nil
	}
	return token, true, nil
}

// AcquireWithRetry retries Acquire up to attempts times with a fixed delay
// between tries.
func (m *Manager) AcquireWithRetry(ctx context.Context, key string, ttl time.Duration, attempts int, delay time.Duration) (string, bool, error) {
	for i := 0; i < attempts; i++ {
		token, ok, err := m.Acquire(ctx, key, ttl)
		if err != nil || ok {
			return token, ok, err
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", false, ctx.Err()
		}
	}
	return "", false, nil
}

// Release deletes the lock if it is still owned by token. Returns false
// when the lock expired and was taken over in the meantime.
func (m *Manager) Release(ctx context.Context, key, token string) (bool, error) {
	return m.store.CompareAndDelete(ctx, key, token)
}

func newToken() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// kind strips the trailing room id so metrics group by lock family.
func kind(key string) string {
	if i := strings.LastIndex(key, ":"); i > 0 {
		return key[:i]
	}
	return key
}
