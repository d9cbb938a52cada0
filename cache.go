package identity

import (
	"context"
	"encoding/json"

	"github.com/goliatone/go-errors"
	"golang.org/x/sync/errgroup"
)

// ErrCacheMiss is returned by CacheStore implementations for absent keys.
var ErrCacheMiss = errors.New("cache miss", errors.CategoryNotFound)

// CacheStore is the raw key-value surface the identity cache sits on.
type CacheStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, keys ...string) error
}

func cacheKeyID(id string) string {
	return "user:" + id
}

func cacheKeyEmail(email string) string {
	return "user:email:" + NormalizeEmail(email)
}

// cachedIdentity is the JSON shape stored in the cache. Password hashes are
// never cached.
type cachedIdentity struct {
	UserID   string `json:"id"`
	Name     string `json:"username"`
	Mail     string `json:"email"`
	UserRole string `json:"role"`
}

func (c cachedIdentity) ID() string       { return c.UserID }
func (c cachedIdentity) Username() string { return c.Name }
func (c cachedIdentity) Email() string    { return c.Mail }
func (c cachedIdentity) Role() string     { return c.UserRole }

var _ Identity = cachedIdentity{}

// IdentityCache is a read-through cache for resolved identities. Every
// identity is stored under two keys, one by id and one by normalized email,
// and both keys always move together. The cache is strictly best-effort:
// every failure is logged at warn level and treated as a miss, so a broken
// cache can degrade latency but never correctness.
type IdentityCache struct {
	store  CacheStore
	logger Logger
}

// NewIdentityCache wraps a store.
func NewIdentityCache(store CacheStore) *IdentityCache {
	return &IdentityCache{
		store:  store,
		logger: defLogger{},
	}
}

func (c *IdentityCache) WithLogger(logger Logger) *IdentityCache {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// GetByID looks an identity up by user id. A false return means miss,
// whether from absence or from a store failure.
func (c *IdentityCache) GetByID(ctx context.Context, id string) (Identity, bool) {
	return c.get(ctx, cacheKeyID(id))
}

// GetByEmail looks an identity up by email.
func (c *IdentityCache) GetByEmail(ctx context.Context, email string) (Identity, bool) {
	return c.get(ctx, cacheKeyEmail(email))
}

func (c *IdentityCache) get(ctx context.Context, key string) (Identity, bool) {
	if c == nil || c.store == nil {
		return nil, false
	}

	raw, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			c.logger.Warn("identity cache read failed for %q, treating as miss: %v", key, err)
		}
		return nil, false
	}

	var entry cachedIdentity
	if err := json.Unmarshal(raw, &entry); err != nil {
		c.logger.Warn("identity cache entry for %q is undecodable, treating as miss: %v", key, err)
		return nil, false
	}

	return entry, true
}

// Store writes the identity under both keys. The writes are issued together
// and awaited jointly; a failure on either side is logged and swallowed.
func (c *IdentityCache) Store(ctx context.Context, identity Identity) {
	if c == nil || c.store == nil || identity == nil {
		return
	}

	entry := cachedIdentity{
		UserID:   identity.ID(),
		Name:     identity.Username(),
		Mail:     NormalizeEmail(identity.Email()),
		UserRole: identity.Role(),
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		c.logger.Warn("identity cache encode failed for user %s: %v", identity.ID(), err)
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.store.Set(gctx, cacheKeyID(entry.UserID), raw)
	})
	g.Go(func() error {
		return c.store.Set(gctx, cacheKeyEmail(entry.Mail), raw)
	})

	if err := g.Wait(); err != nil {
		c.logger.Warn("identity cache store failed for user %s: %v", identity.ID(), err)
	}
}

// Invalidate removes both keys for a user. It must be called with the id and
// the email of the row as it was before the mutation; dropping only one key
// would leave a stale alias behind.
func (c *IdentityCache) Invalidate(ctx context.Context, id, email string) {
	if c == nil || c.store == nil {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.store.Delete(gctx, cacheKeyID(id))
	})
	g.Go(func() error {
		return c.store.Delete(gctx, cacheKeyEmail(email))
	})

	if err := g.Wait(); err != nil {
		c.logger.Warn("identity cache invalidation failed for user %s: %v", id, err)
	}
}
