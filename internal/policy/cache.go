package policy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/ecclesia-app/ecclesia-access/internal/profiles"
	"github.com/ecclesia-app/ecclesia-access/internal/shared"
)

const (
	cacheVersionKey = "policy:version"
	bumpChannel     = "policy.bump"
)

// Cache wraps Redis based caching of derived policy state. A global
// version number is folded into every key; invalidation bumps the
// version so stale entries simply expire unreferenced.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Version returns the current cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if err == redis.Nil {
		if err := c.client.Set(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	if ver <= 0 {
		ver = 1
		if err := c.client.Set(ctx, cacheVersionKey, ver, 0).Err(); err != nil {
			return 0, err
		}
	}
	return ver, nil
}

// BuildKey composes a cache key with the current version.
func (c *Cache) BuildKey(ctx context.Context, parts ...string) (string, error) {
	if c == nil || c.client == nil {
		return strings.Join(parts, ":"), nil
	}
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d", strings.Join(parts, ":"), ver), nil
}

// FetchJSON loads a cached value or populates it using the loader.
// Concurrent fetches of the same key share one loader call.
func (c *Cache) FetchJSON(ctx context.Context, key string, dest interface{}, loader func(context.Context) (interface{}, error)) error {
	if loader == nil {
		return errors.New("policy/cache: loader required")
	}
	if c == nil || c.client == nil {
		value, err := loader(ctx)
		if err != nil {
			return err
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return err
		}
		return json.Unmarshal(raw, dest)
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		return json.Unmarshal(payload, dest)
	}
	if err != redis.Nil {
		return err
	}
	raw, err, _ := c.group.Do(key, func() (interface{}, error) {
		value, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		if err := c.client.Set(ctx, key, encoded, c.ttl).Err(); err != nil {
			return nil, err
		}
		return encoded, nil
	})
	if err != nil {
		return err
	}
	return json.Unmarshal(raw.([]byte), dest)
}

// Bump invalidates all derived policy state by incrementing the global
// version and publishing the change for other instances.
func (c *Cache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	ver, err := c.client.Incr(ctx, cacheVersionKey).Result()
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, bumpChannel, strconv.FormatInt(ver, 10)).Err()
}

// ListenForInvalidation subscribes to version bump notifications so
// multi-instance deployments converge without polling.
func (c *Cache) ListenForInvalidation(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	pubsub := c.client.Subscribe(ctx, bumpChannel)
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if msg.Payload != "" {
					if ver, err := strconv.ParseInt(msg.Payload, 10, 64); err == nil {
						_ = c.client.Set(ctx, cacheVersionKey, ver, 0).Err()
						continue
					}
				}
				_ = c.client.Incr(ctx, cacheVersionKey).Err()
			}
		}
	}()
	return nil
}

func grantsKey(profileID int64) []string {
	return []string{"policy", "grants", strconv.FormatInt(profileID, 10)}
}

// GrantSource loads grant rows from storage.
type GrantSource interface {
	ListGrants(ctx context.Context, profileID int64) ([]profiles.Grant, error)
}

// CachedGrants serves grant lookups for the resolver from the policy
// cache, falling back to storage on miss.
type CachedGrants struct {
	cache  *Cache
	source GrantSource
}

// NewCachedGrants constructs the caching grant reader.
func NewCachedGrants(cache *Cache, source GrantSource) *CachedGrants {
	return &CachedGrants{cache: cache, source: source}
}

// GetGrant returns the grant row for a pair, shared.ErrNotFound when
// the pair is unconfigured.
func (c *CachedGrants) GetGrant(ctx context.Context, profileID, permissionID int64) (profiles.Grant, error) {
	grants, err := c.profileGrants(ctx, profileID)
	if err != nil {
		return profiles.Grant{}, err
	}
	for _, g := range grants {
		if g.PermissionID == permissionID {
			return g, nil
		}
	}
	return profiles.Grant{}, shared.ErrNotFound
}

// ListGrants returns the profile's grant rows through the cache.
func (c *CachedGrants) ListGrants(ctx context.Context, profileID int64) ([]profiles.Grant, error) {
	return c.profileGrants(ctx, profileID)
}

// Warm precomputes the cache entry for a profile.
func (c *CachedGrants) Warm(ctx context.Context, profileID int64) error {
	_, err := c.profileGrants(ctx, profileID)
	return err
}

func (c *CachedGrants) profileGrants(ctx context.Context, profileID int64) ([]profiles.Grant, error) {
	key, err := c.cache.BuildKey(ctx, grantsKey(profileID)...)
	if err != nil {
		return nil, err
	}
	var grants []profiles.Grant
	err = c.cache.FetchJSON(ctx, key, &grants, func(ctx context.Context) (interface{}, error) {
		loaded, err := c.source.ListGrants(ctx, profileID)
		if err != nil {
			return nil, err
		}
		if loaded == nil {
			loaded = []profiles.Grant{}
		}
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}
	return grants, nil
}
