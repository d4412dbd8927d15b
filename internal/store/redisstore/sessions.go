// Package redisstore keeps sign-in sessions in Redis so they survive restarts
// and are shared between API replicas.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"campuslibrary/internal/apperr"
	"campuslibrary/internal/membership"
)

const keyPrefix = "session:"

var _ membership.SessionStore = (*Sessions)(nil)

type Sessions struct {
	client *redis.Client
}

// Connect parses a redis:// URL and pings the server.
func Connect(ctx context.Context, url string) (*Sessions, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return New(client), nil
}

func New(client *redis.Client) *Sessions {
	return &Sessions{client: client}
}

func (s *Sessions) SaveSession(ctx context.Context, id string, userID uuid.UUID, ttl time.Duration) error {
	if ttl <= 0 {
		return apperr.ErrSessionExpired
	}
	if err := s.client.Set(ctx, keyPrefix+id, userID.String(), ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *Sessions) SessionUser(ctx context.Context, id string) (uuid.UUID, error) {
	raw, err := s.client.Get(ctx, keyPrefix+id).Result()
	if errors.Is(err, redis.Nil) {
		return uuid.Nil, apperr.ErrSessionExpired
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("get session: %w", err)
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperr.ErrSessionExpired
	}
	return userID, nil
}

func (s *Sessions) DeleteSession(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, keyPrefix+id).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *Sessions) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Sessions) Close() error {
	return s.client.Close()
}
