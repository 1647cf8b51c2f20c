// Package cache provides the key cache: an external digest→principal mapping
// with a TTL, consulted by the auth guard before the principal store. Entries
// must be explicitly invalidated on credential rotation and principal
// deletion; absence of an entry always means "ask the store", never
// "unauthenticated".
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeyCache is the contract the auth guard and the privileged credential
// endpoints program against. The Redis implementation is used in production;
// tests substitute an in-memory fake.
type KeyCache interface {
	// Get resolves a digest to a principal id. ok is false when no entry
	// exists; the caller must then fall back to the persistent store.
	Get(ctx context.Context, digest string) (principalID string, ok bool, err error)
	// Set stores a digest→principal mapping with the given TTL.
	Set(ctx context.Context, digest, principalID string, ttl time.Duration) error
	// Delete removes a digest's entry. Deleting a non-existent entry is not
	// an error.
	Delete(ctx context.Context, digest string) error
}

// RedisKeyCache implements KeyCache over a shared go-redis client. The client
// is constructed once at startup and injected; go-redis handles pooling, so
// per-request acquisition and release happens inside the library.
type RedisKeyCache struct {
	client *redis.Client
}

// NewRedisKeyCache creates a RedisKeyCache around an existing client.
func NewRedisKeyCache(client *redis.Client) *RedisKeyCache {
	return &RedisKeyCache{client: client}
}

// NewRedisClient dials Redis and verifies the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis at %s: %w", addr, err)
	}
	return client, nil
}

// Get implements KeyCache.
func (c *RedisKeyCache) Get(ctx context.Context, digest string) (string, bool, error) {
	val, err := c.client.Get(ctx, cacheKey(digest)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("key cache get: %w", err)
	}
	return val, true, nil
}

// Set implements KeyCache.
func (c *RedisKeyCache) Set(ctx context.Context, digest, principalID string, ttl time.Duration) error {
	if err := c.client.Set(ctx, cacheKey(digest), principalID, ttl).Err(); err != nil {
		return fmt.Errorf("key cache set: %w", err)
	}
	return nil
}

// Delete implements KeyCache.
func (c *RedisKeyCache) Delete(ctx context.Context, digest string) error {
	if err := c.client.Del(ctx, cacheKey(digest)).Err(); err != nil {
		return fmt.Errorf("key cache delete: %w", err)
	}
	return nil
}

// cacheKey namespaces digest entries so the key cache can share a Redis
// database with the rate limiter.
func cacheKey(digest string) string {
	return "apikey:" + digest
}
