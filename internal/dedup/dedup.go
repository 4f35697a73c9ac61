// Package dedup suppresses redelivered events. The events API retries
// delivery until acknowledged, so each event id is claimed exactly once
// in redis before it is processed.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultTTL = 10 * time.Minute

// Store tracks which event ids have already been handled.
type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// New connects to redis at url and verifies the connection.
func New(url string) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("dedup: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("dedup: redis ping: %w", err)
	}
	return &Store{client: client, prefix: "event:", ttl: defaultTTL}, nil
}

// FirstSeen claims eventID and reports whether this is its first
// delivery. Redeliveries within the TTL return false.
func (s *Store) FirstSeen(ctx context.Context, eventID string) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.prefix+eventID, 1, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup: claim %s: %w", eventID, err)
	}
	return ok, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}
