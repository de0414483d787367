package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// DashboardCache stores derived dashboard payloads keyed by the filter
// shape used to fetch them. Filters are immutable values passed per call;
// the key is derived from the value, never stored on the repository.
// Every entry is tagged with its project so room updates can drop the
// project's derived data in one call.
type DashboardCache interface {
	Get(ctx context.Context, filter any) ([]byte, error)
	Set(ctx context.Context, projectID string, filter any, payload []byte, ttl time.Duration) error
	InvalidateProject(ctx context.Context, projectID string) error
}

type redisDashboardCache struct {
	client *redis.Client
}

// NewDashboardCache builds the redis-backed dashboard cache.
func NewDashboardCache(client *redis.Client) DashboardCache {
	return &redisDashboardCache{client: client}
}

// FilterKey derives a deterministic key from any filter value.
func FilterKey(filter any) string {
	raw, err := json.Marshal(filter)
	if err != nil {
		return "invalid"
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func dashboardKey(filter any) string {
	return "dashboard:" + FilterKey(filter)
}

func projectSetKey(projectID string) string {
	return "dashboard:project:" + projectID
}

func (c *redisDashboardCache) Get(ctx context.Context, filter any) ([]byte, error) {
	raw, err := c.client.Get(ctx, dashboardKey(filter)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMiss
		}
		return nil, err
	}
	return raw, nil
}

func (c *redisDashboardCache) Set(ctx context.Context, projectID string, filter any, payload []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = time.Minute
	}
	key := dashboardKey(filter)
	if err := c.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return err
	}
	// Tag the entry so InvalidateProject can find it. The set outlives
	// individual entries slightly; stale members turn into no-op deletes.
	setKey := projectSetKey(projectID)
	if err := c.client.SAdd(ctx, setKey, key).Err(); err != nil {
		return err
	}
	return c.client.Expire(ctx, setKey, ttl+time.Minute).Err()
}

// InvalidateProject drops every dashboard entry tagged for the project.
// Room mutations call this through the conversation state machine.
func (c *redisDashboardCache) InvalidateProject(ctx context.Context, projectID string) error {
	setKey := projectSetKey(projectID)
	keys, err := c.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return err
	}
	if len(keys) > 0 {
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			return err
		}
	}
	return c.client.Del(ctx, setKey).Err()
}
