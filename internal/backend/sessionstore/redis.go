/*
Package sessionstore keeps the session token of the signed-in account between
process runs, so the auth state manager can recover it on startup.
*/
package sessionstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"globalchat/internal/backend"
)

const opTimeout = 2 * time.Second

// Redis stores the token under a single key with the session's TTL.
type Redis struct {
	client redis.Cmdable
	key    string
}

var _ backend.SessionStore = (*Redis)(nil)

// NewRedis creates a store writing to key.
func NewRedis(client redis.Cmdable, key string) *Redis {
	return &Redis{client: client, key: key}
}

// Dial connects to addr and pings it.
func Dial(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("sessionstore: ping redis: %w", err)
	}

	return client, nil
}

// Load returns the stored token or backend.ErrNoSession.
func (s *Redis) Load(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	token, err := s.client.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", backend.ErrNoSession
	}
	if err != nil {
		return "", fmt.Errorf("sessionstore: load %s: %w", s.key, err)
	}
	return token, nil
}

// Save stores token, expiring after ttl.
func (s *Redis) Save(ctx context.Context, token string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := s.client.Set(ctx, s.key, token, ttl).Err(); err != nil {
		return fmt.Errorf("sessionstore: save %s: %w", s.key, err)
	}
	return nil
}

// Clear deletes the stored token.
func (s *Redis) Clear(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("sessionstore: clear %s: %w", s.key, err)
	}
	return nil
}
