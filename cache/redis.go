package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces cache keys in a shared redis.
const KeyPrefix = "strata:latest:"

// scanCount is the SCAN page size used by Clear.
const scanCount = 100

// Redis is a Backend shared between processes. Entries are stored as JSON
// with a native key expiry.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis connects to the redis at rawURL (redis://host:port/db).
func NewRedis(rawURL string) (*Redis, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &Redis{client: redis.NewClient(opts), prefix: KeyPrefix}, nil
}

func (r *Redis) key(k string) string { return r.prefix + k }

func (r *Redis) Get(ctx context.Context, key string) (*Entry, bool, error) {
	raw, err := r.client.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failure: %w", err)
	}
	var e Entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return nil, false, fmt.Errorf("decode cache entry: %w", err)
	}
	return &e, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, e *Entry, ttl time.Duration) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	if err := r.client.Set(ctx, r.key(key), string(data), ttl).Err(); err != nil {
		return fmt.Errorf("redis set failure: %w", err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del failure: %w", err)
	}
	return nil
}

// Clear deletes every key under the prefix, one SCAN page at a time.
func (r *Redis) Clear(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, r.prefix+"*", scanCount).Result()
		if err != nil {
			return fmt.Errorf("redis scan failure: %w", err)
		}
		if len(keys) > 0 {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis del failure: %w", err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// Close releases the connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}
