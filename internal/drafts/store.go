// Package drafts persists in-progress wizard snapshots in Redis so a
// booking survives an API restart.
package drafts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when no snapshot exists for the id.
var ErrNotFound = errors.New("drafts: not found")

// Store keeps one JSON document per wizard with a sliding TTL.
type Store struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewStore creates a draft store. A non-positive ttl keeps drafts forever.
func NewStore(redisClient *redis.Client, ttl time.Duration) *Store {
	return &Store{redis: redisClient, ttl: ttl}
}

func (s *Store) key(id string) string {
	return fmt.Sprintf("velo:wizard:%s", id)
}

// Save writes the snapshot and refreshes its TTL.
func (s *Store) Save(ctx context.Context, id string, data []byte) error {
	ttl := s.ttl
	if ttl < 0 {
		ttl = 0
	}
	if err := s.redis.Set(ctx, s.key(id), data, ttl).Err(); err != nil {
		return fmt.Errorf("drafts: save %s: %w", id, err)
	}
	return nil
}

// Load returns the stored snapshot.
func (s *Store) Load(ctx context.Context, id string) ([]byte, error) {
	data, err := s.redis.Get(ctx, s.key(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("drafts: load %s: %w", id, err)
	}
	return data, nil
}

// Delete removes the snapshot. Deleting a missing id is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.redis.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("drafts: delete %s: %w", id, err)
	}
	return nil
}
