package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"campuslibrary/internal/apperr"
	"campuslibrary/internal/membership"
)

var _ membership.SessionStore = (*Sessions)(nil)

type session struct {
	userID  uuid.UUID
	expires time.Time
}

// Sessions is the in-process session store used when no Redis is configured.
type Sessions struct {
	mu       sync.Mutex
	sessions map[string]session
	now      func() time.Time
}

func NewSessions(now func() time.Time) *Sessions {
	if now == nil {
		now = time.Now
	}
	return &Sessions{sessions: make(map[string]session), now: now}
}

func (s *Sessions) SaveSession(ctx context.Context, id string, userID uuid.UUID, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweep()
	s.sessions[id] = session{userID: userID, expires: s.now().Add(ttl)}
	return nil
}

func (s *Sessions) SessionUser(ctx context.Context, id string) (uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return uuid.Nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok || !s.now().Before(sess.expires) {
		delete(s.sessions, id)
		return uuid.Nil, apperr.ErrSessionExpired
	}
	return sess.userID, nil
}

func (s *Sessions) DeleteSession(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// sweep drops expired sessions. Callers hold mu.
func (s *Sessions) sweep() {
	now := s.now()
	for id, sess := range s.sessions {
		if !now.Before(sess.expires) {
			delete(s.sessions, id)
		}
	}
}
