package cache

import (
	"context"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"
)

// EmailCache maps normalized emails to user ids. Invalidated by
// the user repository's pre-save and post-delete hooks.
type EmailCache interface {
	Get(ctx context.Context, email string) (string, error)
	Set(ctx context.Context, email, userID string) error
	Invalidate(ctx context.Context, email string) error
}

type redisEmailCache struct {
	client *redis.Client
}

// NewEmailCache builds the redis-backed email cache.
func NewEmailCache(client *redis.Client) EmailCache {
	return &redisEmailCache{client: client}
}

// NormalizeEmail lowercases and trims an email for cache keying.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func emailKey(email string) string {
	return "auth:email:" + NormalizeEmail(email)
}

func (c *redisEmailCache) Get(ctx context.Context, email string) (string, error) {
	id, err := c.client.Get(ctx, emailKey(email)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrMiss
		}
		return "", err
	}
	return id, nil
}

func (c *redisEmailCache) Set(ctx context.Context, email, userID string) error {
	return c.client.Set(ctx, emailKey(email), userID, 0).Err()
}

func (c *redisEmailCache) Invalidate(ctx context.Context, email string) error {
	return c.client.Del(ctx, emailKey(email)).Err()
}
