package membership

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"campuslibrary/internal/apperr"
)

const tokenIssuer = "campuslibrary"

type sessionClaims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

// tokenSigner issues and verifies HS256 session tokens. The token id doubles
// as the session key in the SessionStore.
type tokenSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func (t tokenSigner) issue(user User) (token, id string, expiresAt time.Time, err error) {
	issuedAt := t.now()
	expiresAt = issuedAt.Add(t.ttl)
	id = uuid.NewString()

	claims := sessionClaims{
		Role: user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Subject:   user.ID.String(),
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("failed to sign session token: %w", err)
	}
	return token, id, expiresAt, nil
}

// parse verifies signature, issuer and expiry. Every failure is reported as
// apperr.ErrSessionExpired so callers are asked to sign in again.
func (t tokenSigner) parse(token string) (*sessionClaims, error) {
	claims := &sessionClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperr.ErrSessionExpired
		}
		return nil, fmt.Errorf("%w: %v", apperr.ErrSessionExpired, err)
	}
	if claims.ID == "" {
		return nil, fmt.Errorf("%w: token has no id", apperr.ErrSessionExpired)
	}
	return claims, nil
}
