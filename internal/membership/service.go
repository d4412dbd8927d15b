package membership

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Service defines the interface for the membership service.
type Service interface {
	SignUp(ctx context.Context, email, password string) (*User, error)
	SignIn(ctx context.Context, params SignInParams) (*Session, error)
	SignOut(ctx context.Context, token string) error
	ValidateSession(ctx context.Context, token string) (Principal, error)
	DeleteUser(ctx context.Context, principal Principal, id uuid.UUID) error
}

// UserStore persists accounts and their credentials.
type UserStore interface {
	// CreateUser stores the user and its credential together. A taken email
	// yields apperr.ErrAlreadyExists.
	CreateUser(ctx context.Context, user User, credential Credential) error
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetCredential(ctx context.Context, userID uuid.UUID) (*Credential, error)
	// UsersByIDs returns the users that exist among ids, in no particular order.
	UsersByIDs(ctx context.Context, ids []uuid.UUID) ([]User, error)
	DeleteUser(ctx context.Context, id uuid.UUID) error
}

// SessionStore tracks live sessions by token id.
type SessionStore interface {
	SaveSession(ctx context.Context, id string, userID uuid.UUID, ttl time.Duration) error
	// SessionUser returns apperr.ErrSessionExpired for unknown or expired ids.
	SessionUser(ctx context.Context, id string) (uuid.UUID, error)
	DeleteSession(ctx context.Context, id string) error
}
