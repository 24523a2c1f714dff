package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"project-chat/internal/config"
	"project-chat/internal/models"
)

var ErrCacheMiss = errors.New("cache miss")

// MessageCache absorbs the 2s polling fan-in: every subscribed client
// re-fetches the full message list, so a short-TTL cached copy keeps the
// database off the hot path.
type MessageCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewMessageCache connects to redis and verifies the connection.
func NewMessageCache(cfg config.RedisConfig, cacheCfg config.CacheConfig) (*MessageCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &MessageCache{client: client, prefix: cacheCfg.Prefix, ttl: cacheCfg.TTL}, nil
}

func (c *MessageCache) key(groupID string) string {
	return fmt.Sprintf("%s:%s", c.prefix, groupID)
}

// Get returns the cached list for the group or ErrCacheMiss.
func (c *MessageCache) Get(ctx context.Context, groupID string) ([]models.Message, error) {
	data, err := c.client.Get(ctx, c.key(groupID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var msgs []models.Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache data: %w", err)
	}
	return msgs, nil
}

// Set stores the list for the configured TTL.
func (c *MessageCache) Set(ctx context.Context, groupID string, msgs []models.Message) error {
	data, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("failed to marshal cache data: %w", err)
	}
	return c.client.Set(ctx, c.key(groupID), data, c.ttl).Err()
}

// Invalidate drops the cached list after a write to the group.
func (c *MessageCache) Invalidate(ctx context.Context, groupID string) error {
	return c.client.Del(ctx, c.key(groupID)).Err()
}

// Client exposes the underlying connection for sibling stores.
func (c *MessageCache) Client() *redis.Client {
	return c.client
}

// Close releases the redis connection.
func (c *MessageCache) Close() error {
	return c.client.Close()
}
