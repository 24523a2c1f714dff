package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"project-chat/internal/models"
)

const idempotencyTTL = 24 * time.Hour

// IdempotencyStore deduplicates send attempts. Clients attach a fresh token
// to every send; replaying the same token returns the original canonical
// message instead of creating a duplicate.
type IdempotencyStore struct {
	client *redis.Client
	prefix string
}

// NewIdempotencyStore wraps an existing redis connection.
func NewIdempotencyStore(client *redis.Client, prefix string) *IdempotencyStore {
	return &IdempotencyStore{client: client, prefix: prefix}
}

func (s *IdempotencyStore) key(token string) string {
	return fmt.Sprintf("%s:idem:%s", s.prefix, token)
}

// Lookup returns the message previously stored for the token, or ErrCacheMiss.
func (s *IdempotencyStore) Lookup(ctx context.Context, token string) (models.Message, error) {
	data, err := s.client.Get(ctx, s.key(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.Message{}, ErrCacheMiss
		}
		return models.Message{}, fmt.Errorf("idempotency lookup: %w", err)
	}
	var msg models.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return models.Message{}, fmt.Errorf("idempotency decode: %w", err)
	}
	return msg, nil
}

// Remember stores the canonical message under the token. First writer wins.
func (s *IdempotencyStore) Remember(ctx context.Context, token string, msg models.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("idempotency encode: %w", err)
	}
	return s.client.SetNX(ctx, s.key(token), data, idempotencyTTL).Err()
}
