package membership

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"campuslibrary/internal/apperr"
)

// Role is the stored role of a user. It is decided once at sign-up and is
// the only source consulted for authorization afterwards.
type Role string

const (
	RoleStudent Role = "student"
	RoleAdmin   Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleAdmin
}

// User is a library account.
type User struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Email     string    `json:"email" db:"email"`
	Role      Role      `json:"role" db:"role"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// DisplayName is the local part of the email address.
func (u User) DisplayName() string {
	return DisplayName(u.Email)
}

// Credential represents a user's login credentials.
type Credential struct {
	UserID       uuid.UUID `json:"-" db:"user_id"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Salt         string    `json:"-" db:"salt"`
}

// Principal is the authenticated caller of an operation.
type Principal struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
	Role   Role      `json:"role"`
}

func (p Principal) Authenticated() bool {
	return p.UserID != uuid.Nil
}

// Authorize returns apperr.ErrUnauthorized unless the principal is signed in
// and holds one of roles. With no roles any signed in principal passes.
func (p Principal) Authorize(roles ...Role) error {
	if !p.Authenticated() {
		return apperr.ErrUnauthorized
	}
	if len(roles) == 0 {
		return nil
	}
	for _, role := range roles {
		if p.Role == role {
			return nil
		}
	}
	return apperr.ErrUnauthorized
}

func (p Principal) DisplayName() string {
	return DisplayName(p.Email)
}

// DisplayName derives the name shown on receipts and dashboards from an email.
func DisplayName(email string) string {
	local, _, found := strings.Cut(email, "@")
	if !found || local == "" {
		return email
	}
	return local
}

// Session is returned by a successful sign-in.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      User      `json:"user"`
}

// SignInParams carries the credentials and the portal the user signed in from.
// An empty Portal accepts any role.
type SignInParams struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Portal   Role   `json:"portal,omitempty"`
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
