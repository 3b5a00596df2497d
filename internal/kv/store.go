package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key does not exist or has expired.
var ErrNotFound = errors.New("kv: key not found")

// Store is the keyed-store surface the game engines run on. All volatile
// game state (snapshots, decks, timers, locks, cached balances) lives
// behind this interface, keyed by room or user.
//
// Patterns for Keys use redis glob syntax restricted to '*'.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// SetNX sets key only if absent. Returns true when the value was set.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// CompareAndDelete deletes key only while it still holds value.
	// Returns true when the key was deleted.
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)

	Del(ctx context.Context, keys ...string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Keys(ctx context.Context, pattern string) ([]string, error)

	// Incr adds one to the integer stored at key, creating it at 1.
	Incr(ctx context.Context, key string) (int64, error)

	HSet(ctx context.Context, key, field, value string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	Publish(ctx context.Context, channel, payload string) error
}
