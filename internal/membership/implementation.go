package membership

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"campuslibrary/internal/apperr"
	"campuslibrary/internal/logging"
)

const minPasswordLength = 6

// Options tunes the membership service.
type Options struct {
	SessionSecret     []byte
	SessionTTL        time.Duration
	AdminEmailDomain  string
	AuthRatePerMinute int
	Now               func() time.Time
}

// service implements the Service interface.
type service struct {
	users       UserStore
	sessions    SessionStore
	logger      logrus.FieldLogger
	tracer      trace.Tracer
	tokens      tokenSigner
	adminDomain string
	rateLimiter *keyedLimiter
	now         func() time.Time
}

// NewService creates a new membership service instance.
func NewService(users UserStore, sessions SessionStore, logger logrus.FieldLogger, opts Options) Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 24 * time.Hour
	}
	if opts.AuthRatePerMinute <= 0 {
		opts.AuthRatePerMinute = 30
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &service{
		users:       users,
		sessions:    sessions,
		logger:      logger,
		tracer:      otel.Tracer("campuslibrary/membership"),
		tokens:      tokenSigner{secret: opts.SessionSecret, ttl: opts.SessionTTL, now: opts.Now},
		adminDomain: strings.ToLower(strings.TrimPrefix(opts.AdminEmailDomain, "@")),
		rateLimiter: newKeyedLimiter(opts.AuthRatePerMinute),
		now:         opts.Now,
	}
}

// SignUp registers a user. The admin email domain convention decides the
// stored role here and nowhere else.
func (s *service) SignUp(ctx context.Context, email, password string) (*User, error) {
	ctx, span := s.tracer.Start(ctx, "membership.sign_up")
	defer span.End()
	logger := logging.ServiceLogger(ctx, s.logger, "membership", "SignUp")

	email = normalizeEmail(email)
	if !s.rateLimiter.Allow(email) {
		return nil, apperr.ErrRateLimited
	}
	vErr := &apperr.ValidationError{}
	local, domain, found := strings.Cut(email, "@")
	if !found || local == "" || domain == "" || strings.Contains(domain, "@") {
		vErr.Add("email", "must be a valid email address")
	}
	if len(password) < minPasswordLength {
		vErr.Add("password", fmt.Sprintf("must be at least %d characters", minPasswordLength))
	}
	if err := vErr.OrNil(); err != nil {
		return nil, err
	}

	role := RoleStudent
	if s.adminDomain != "" && domain == s.adminDomain {
		role = RoleAdmin
	}

	user := User{
		ID:        uuid.New(),
		Email:     email,
		Role:      role,
		CreatedAt: s.now().UTC(),
	}
	credential, err := newCredential(user.ID, password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.users.CreateUser(ctx, user, credential); err != nil {
		err = apperr.Gateway("membership.create_user", err)
		logger.WithError(err).WithField("error_kind", apperr.Kind(err)).Warn("sign-up failed")
		return nil, err
	}

	span.SetAttributes(attribute.String("user.role", string(role)))
	logger.WithFields(logrus.Fields{"user_id": user.ID, "role": role}).Info("user signed up")
	return &user, nil
}

// SignIn verifies credentials and opens a session.
func (s *service) SignIn(ctx context.Context, params SignInParams) (*Session, error) {
	ctx, span := s.tracer.Start(ctx, "membership.sign_in")
	defer span.End()
	logger := logging.ServiceLogger(ctx, s.logger, "membership", "SignIn")

	if !s.rateLimiter.Allow(normalizeEmail(params.Email)) {
		return nil, apperr.ErrRateLimited
	}
	if params.Portal != "" && !params.Portal.Valid() {
		vErr := &apperr.ValidationError{}
		vErr.Add("portal", "must be student or admin")
		return nil, vErr
	}

	user, err := s.users.GetUserByEmail(ctx, normalizeEmail(params.Email))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.ErrInvalidCredentials
		}
		return nil, apperr.Gateway("membership.get_user", err)
	}

	credential, err := s.users.GetCredential(ctx, user.ID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.ErrInvalidCredentials
		}
		return nil, apperr.Gateway("membership.get_credential", err)
	}

	ok, err := verifyPassword(params.Password, *credential)
	if err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}
	if !ok {
		logger.WithField("user_id", user.ID).Info("sign-in rejected: invalid credentials")
		return nil, apperr.ErrInvalidCredentials
	}

	if params.Portal != "" && user.Role != params.Portal {
		logger.WithFields(logrus.Fields{"user_id": user.ID, "portal": params.Portal}).Info("sign-in rejected: wrong portal")
		return nil, apperr.ErrUnauthorized
	}

	token, id, expiresAt, err := s.tokens.issue(*user)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.SaveSession(ctx, id, user.ID, expiresAt.Sub(s.now())); err != nil {
		return nil, apperr.Gateway("membership.save_session", err)
	}

	logger.WithField("user_id", user.ID).Info("user signed in")
	return &Session{Token: token, ExpiresAt: expiresAt.UTC(), User: *user}, nil
}

// SignOut ends the session behind token. Signing out twice is not an error.
func (s *service) SignOut(ctx context.Context, token string) error {
	claims, err := s.tokens.parse(token)
	if err != nil {
		return err
	}
	if err := s.sessions.DeleteSession(ctx, claims.ID); err != nil {
		return apperr.Gateway("membership.delete_session", err)
	}
	logging.ServiceLogger(ctx, s.logger, "membership", "SignOut").WithField("user_id", claims.Subject).Info("user signed out")
	return nil
}

// ValidateSession resolves a bearer token to the principal it belongs to.
// The role comes from the stored user, never from the token.
func (s *service) ValidateSession(ctx context.Context, token string) (Principal, error) {
	ctx, span := s.tracer.Start(ctx, "membership.validate_session")
	defer span.End()

	claims, err := s.tokens.parse(token)
	if err != nil {
		return Principal{}, err
	}

	userID, err := s.sessions.SessionUser(ctx, claims.ID)
	if err != nil {
		return Principal{}, apperr.Gateway("membership.session_user", err)
	}
	if userID.String() != claims.Subject {
		return Principal{}, apperr.ErrSessionExpired
	}

	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return Principal{}, apperr.ErrSessionExpired
		}
		return Principal{}, apperr.Gateway("membership.get_user", err)
	}

	span.SetAttributes(attribute.String("user.role", string(user.Role)))
	return Principal{UserID: user.ID, Email: user.Email, Role: user.Role}, nil
}

// DeleteUser removes an account. Borrowing records stay behind.
func (s *service) DeleteUser(ctx context.Context, principal Principal, id uuid.UUID) error {
	logger := logging.ServiceLogger(ctx, s.logger, "membership", "DeleteUser")
	if err := principal.Authorize(RoleAdmin); err != nil {
		return err
	}
	if id == principal.UserID {
		vErr := &apperr.ValidationError{}
		vErr.Add("id", "administrators cannot delete their own account")
		return vErr
	}

	if err := s.users.DeleteUser(ctx, id); err != nil {
		return apperr.Gateway("membership.delete_user", err)
	}
	logger.WithFields(logrus.Fields{"user_id": id, "admin_id": principal.UserID}).Info("user deleted")
	return nil
}
