package kv

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"

	"chatgames/internal/logger"
)

// compare-and-delete: delete the key only while it still holds the caller's
// value. Runs server-side so a lock held by someone else is never released.
var cadScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("del", KEYS[1])
else
    return 0
end
`)

// Connect opens a Redis client and verifies it with a ping. The engine
// cannot run without its keyed store, so failure here is fatal.
func Connect(addr, password string, db int) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Fatal("redis connect failed", "addr", addr, "error", err)
	}
	logger.Info("redis connected", "addr", addr, "db", db)
	return client
}

// Redis implements Store on top of a go-redis client.
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	return val, err
}

func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *Redis) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, key, value, ttl).Result()
}

func (r *Redis) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	n, err := cadScript.Run(ctx, r.client, []string{key}, value).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *Redis) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}

func (r *Redis) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return r.client.Expire(ctx, key, ttl).Err()
}

// Keys walks keyspace with SCAN rather than KEYS so the poller can run
// against production instances without blocking them.
func (r *Redis) Keys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	var cursor uint64
	for {
		batch, next, err := r.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

func (r *Redis) Incr(ctx context.Context, key string) (int64, error) {
	return r.client.Incr(ctx, key).Result()
}

func (r *Redis) HSet(ctx context.Context, key, field, value string) error {
	return r.client.HSet(ctx, key, field, value).Err()
}

func (r *Redis) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return r.client.HGetAll(ctx, key).Result()
}

func (r *Redis) Publish(ctx context.Context, channel, payload string) error {
	return r.client.Publish(ctx, channel, payload).Err()
}
