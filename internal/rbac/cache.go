package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// PermissionCache keeps each user's effective permissions in Redis with a TTL.
// Role-change events invalidate the entry explicitly; the TTL only bounds
// staleness when an invalidation is missed.
type PermissionCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewPermissionCache instantiates the cache helper.
func NewPermissionCache(client *redis.Client, ttl time.Duration) *PermissionCache {
	return &PermissionCache{client: client, ttl: ttl}
}

func permKey(userID string) string {
	return "rbac:perms:" + userID
}

// Get returns the cached permission set, or ok=false on a miss.
func (c *PermissionCache) Get(ctx context.Context, userID string) ([]string, bool, error) {
	if c == nil || c.client == nil {
		return nil, false, nil
	}
	payload, err := c.client.Get(ctx, permKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var perms []string
	if err := json.Unmarshal(payload, &perms); err != nil {
		return nil, false, err
	}
	return perms, true, nil
}

// Set stores the permission set under the configured TTL.
func (c *PermissionCache) Set(ctx context.Context, userID string, perms []string) error {
	if c == nil || c.client == nil {
		return nil
	}
	payload, err := json.Marshal(perms)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, permKey(userID), payload, c.ttl).Err()
}

// Invalidate drops one user's cached permissions.
func (c *PermissionCache) Invalidate(ctx context.Context, userID string) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, permKey(userID)).Err()
}

// InvalidateRole drops cached permissions for every member of a role.
func (c *PermissionCache) InvalidateRole(ctx context.Context, userIDs []string) error {
	if c == nil || c.client == nil || len(userIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		keys = append(keys, permKey(id))
	}
	return c.client.Del(ctx, keys...).Err()
}
