package redisstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campuslibrary/internal/apperr"
)

func setupSessions(t *testing.T) *Sessions {
	t.Helper()
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		url = "redis://localhost:6379/15"
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	sessions, err := Connect(ctx, url)
	if err != nil {
		t.Skipf("skipping redis tests: %v", err)
	}
	t.Cleanup(func() { sessions.Close() })
	return sessions
}

func TestConnect_BadURL(t *testing.T) {
	_, err := Connect(context.Background(), "not a url")
	assert.Error(t, err)
}

func TestSessionLifecycle(t *testing.T) {
	s := setupSessions(t)
	ctx := context.Background()
	id := uuid.NewString()
	userID := uuid.New()

	require.NoError(t, s.SaveSession(ctx, id, userID, time.Minute))
	got, err := s.SessionUser(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, userID, got)

	ttl, err := s.client.TTL(ctx, keyPrefix+id).Result()
	require.NoError(t, err)
	assert.True(t, ttl > 0 && ttl <= time.Minute)

	require.NoError(t, s.DeleteSession(ctx, id))
	_, err = s.SessionUser(ctx, id)
	assert.ErrorIs(t, err, apperr.ErrSessionExpired)
}

func TestSessionUser_Garbage(t *testing.T) {
	s := setupSessions(t)
	ctx := context.Background()
	id := uuid.NewString()
	require.NoError(t, s.client.Set(ctx, keyPrefix+id, "nope", time.Minute).Err())
	t.Cleanup(func() { s.client.Del(context.Background(), keyPrefix+id) })

	_, err := s.SessionUser(ctx, id)
	assert.ErrorIs(t, err, apperr.ErrSessionExpired)
	assert.ErrorIs(t, s.SaveSession(ctx, id, uuid.New(), 0), apperr.ErrSessionExpired)
}
