package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chatstack/routing-service/internal/domain"
)

// ErrMiss is returned when a cache lookup finds nothing.
var ErrMiss = errors.New("cache miss")

// TokenCache maps bearer tokens to user principals.
type TokenCache interface {
	Get(ctx context.Context, token string) (*domain.User, error)
	Set(ctx context.Context, token string, user *domain.User) error
	Invalidate(ctx context.Context, token string) error
}

type redisTokenCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewTokenCache builds the redis-backed token cache.
func NewTokenCache(client *redis.Client, ttl time.Duration) TokenCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &redisTokenCache{client: client, ttl: ttl}
}

func tokenKey(token string) string {
	return "auth:token:" + token
}

func (c *redisTokenCache) Get(ctx context.Context, token string) (*domain.User, error) {
	raw, err := c.client.Get(ctx, tokenKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMiss
		}
		return nil, err
	}
	var user domain.User
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *redisTokenCache) Set(ctx context.Context, token string, user *domain.User) error {
	// Anonymous principals are never cached.
	if user.Anonymous() {
		return nil
	}
	raw, err := json.Marshal(user)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, tokenKey(token), raw, c.ttl).Err()
}

func (c *redisTokenCache) Invalidate(ctx context.Context, token string) error {
	return c.client.Del(ctx, tokenKey(token)).Err()
}
