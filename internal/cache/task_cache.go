package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const DefaultTaskCacheTTL = 5 * time.Minute

// TaskCache stores list pages per user. Every page key embeds the user's
// current version; bumping the version retires all of that user's pages at
// once.
type TaskCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewTaskCache(client *redis.Client, ttl time.Duration) *TaskCache {
	if ttl <= 0 {
		ttl = DefaultTaskCacheTTL
	}
	return &TaskCache{client: client, ttl: ttl}
}

// GetPage returns the cached page, or nil on a miss, together with the
// version it was looked up under. Fill a miss with SetPage at that version.
func (c *TaskCache) GetPage(ctx context.Context, userID, queryKey string) ([]byte, int64, error) {
	if c == nil || c.client == nil {
		return nil, 0, nil
	}

	version, err := c.version(ctx, userID)
	if err != nil {
		return nil, 0, err
	}

	val, err := c.client.Get(ctx, UserTasksPageKey(userID, version, queryKey)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, version, nil
	}
	if err != nil {
		return nil, 0, err
	}
	return val, version, nil
}

// SetPage stores data under the given version. A page loaded before an
// Invalidate carries the old version and is never read back.
func (c *TaskCache) SetPage(ctx context.Context, userID string, version int64, queryKey string, data interface{}) error {
	if c == nil || c.client == nil {
		return nil
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	return c.client.Set(ctx, UserTasksPageKey(userID, version, queryKey), jsonData, c.ttl).Err()
}

// Invalidate retires every cached page of the user.
func (c *TaskCache) Invalidate(ctx context.Context, userID string) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, UserTasksVersionKey(userID)).Err()
}

func (c *TaskCache) version(ctx context.Context, userID string) (int64, error) {
	v, err := c.client.Get(ctx, UserTasksVersionKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

// Build cache key for the user's page version counter
func UserTasksVersionKey(userID string) string {
	return fmt.Sprintf("tasks:user:%s:version", userID)
}

// Build cache key for one page of the user's tasks
func UserTasksPageKey(userID string, version int64, queryKey string) string {
	return fmt.Sprintf("tasks:user:%s:v%d:%s", userID, version, queryKey)
}
