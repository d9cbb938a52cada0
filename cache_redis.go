package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/redis/go-redis/v9"
)

// DefaultCacheTTL bounds how long a cached identity can outlive the row it
// was built from if an invalidation is ever lost.
const DefaultCacheTTL = 15 * time.Minute

// RedisCacheStore is the production CacheStore.
type RedisCacheStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCacheStore wraps a redis client.
func NewRedisCacheStore(client *redis.Client) *RedisCacheStore {
	return &RedisCacheStore{
		client: client,
		ttl:    DefaultCacheTTL,
	}
}

// WithTTL overrides the entry TTL. Zero means no expiry.
func (r *RedisCacheStore) WithTTL(ttl time.Duration) *RedisCacheStore {
	r.ttl = ttl
	return r
}

func (r *RedisCacheStore) Get(ctx context.Context, key string) ([]byte, error) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if goerrors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "redis get failed")
	}
	return raw, nil
}

func (r *RedisCacheStore) Set(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, key, value, r.ttl).Err(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "redis set failed")
	}
	return nil
}

func (r *RedisCacheStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "redis delete failed")
	}
	return nil
}

var _ CacheStore = (*RedisCacheStore)(nil)
