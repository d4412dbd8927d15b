package membership_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campuslibrary/internal/apperr"
	"campuslibrary/internal/httpx"
	"campuslibrary/internal/logging"
	"campuslibrary/internal/membership"
	"campuslibrary/internal/store/memory"
)

type fixture struct {
	svc      membership.Service
	store    *memory.Store
	sessions *memory.Sessions
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: memory.NewStore(),
		now:   time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }
	f.sessions = memory.NewSessions(clock)
	f.svc = membership.NewService(f.store, f.sessions, logging.Discard(), membership.Options{
		SessionSecret:     []byte("test-secret"),
		SessionTTL:        time.Hour,
		AdminEmailDomain:  "admin.library",
		AuthRatePerMinute: 1000,
		Now:               clock,
	})
	return f
}

func TestSignUp_AssignsRoleFromEmailDomain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	student, err := f.svc.SignUp(ctx, "Ayu@Campus.edu", "secret1")
	require.NoError(t, err)
	assert.Equal(t, membership.RoleStudent, student.Role)
	assert.Equal(t, "ayu@campus.edu", student.Email)

	admin, err := f.svc.SignUp(ctx, "librarian@admin.library", "secret1")
	require.NoError(t, err)
	assert.Equal(t, membership.RoleAdmin, admin.Role)

	_, err = f.svc.SignUp(ctx, "ayu@campus.edu", "another1")
	assert.ErrorIs(t, err, apperr.ErrAlreadyExists)
}

func TestSignUp_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.SignUp(context.Background(), "not-an-email", "123")
	var vErr *apperr.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.FieldErrors, "email")
	assert.Contains(t, vErr.FieldErrors, "password")
}

func TestSignIn_SessionLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user, err := f.svc.SignUp(ctx, "ayu@campus.edu", "secret1")
	require.NoError(t, err)

	_, err = f.svc.SignIn(ctx, membership.SignInParams{Email: "ayu@campus.edu", Password: "wrong!!"})
	assert.ErrorIs(t, err, apperr.ErrInvalidCredentials)
	_, err = f.svc.SignIn(ctx, membership.SignInParams{Email: "nobody@campus.edu", Password: "secret1"})
	assert.ErrorIs(t, err, apperr.ErrInvalidCredentials)

	session, err := f.svc.SignIn(ctx, membership.SignInParams{Email: "AYU@campus.edu", Password: "secret1", Portal: membership.RoleStudent})
	require.NoError(t, err)
	assert.Equal(t, f.now.Add(time.Hour), session.ExpiresAt)

	principal, err := f.svc.ValidateSession(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, principal.UserID)
	assert.Equal(t, membership.RoleStudent, principal.Role)
	assert.Equal(t, "ayu", principal.DisplayName())

	require.NoError(t, f.svc.SignOut(ctx, session.Token))
	_, err = f.svc.ValidateSession(ctx, session.Token)
	assert.ErrorIs(t, err, apperr.ErrSessionExpired)
}

func TestSignIn_WrongPortalRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.SignUp(ctx, "ayu@campus.edu", "secret1")
	require.NoError(t, err)

	_, err = f.svc.SignIn(ctx, membership.SignInParams{Email: "ayu@campus.edu", Password: "secret1", Portal: membership.RoleAdmin})
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestValidateSession_Expiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.SignUp(ctx, "ayu@campus.edu", "secret1")
	require.NoError(t, err)
	session, err := f.svc.SignIn(ctx, membership.SignInParams{Email: "ayu@campus.edu", Password: "secret1"})
	require.NoError(t, err)

	f.now = f.now.Add(2 * time.Hour)
	_, err = f.svc.ValidateSession(ctx, session.Token)
	assert.ErrorIs(t, err, apperr.ErrSessionExpired)

	_, err = f.svc.ValidateSession(ctx, "garbage")
	assert.ErrorIs(t, err, apperr.ErrSessionExpired)
}

func TestValidateSession_UsesStoredRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// An address on the admin domain created directly in the store as a
	// student stays a student.
	user := membership.User{ID: uuid.New(), Email: "intern@admin.library", Role: membership.RoleStudent}
	seed := newFixture(t)
	_, err := seed.svc.SignUp(ctx, "seed@campus.edu", "secret1")
	require.NoError(t, err)
	seedUser, err := seed.store.GetUserByEmail(ctx, "seed@campus.edu")
	require.NoError(t, err)
	cred, err := seed.store.GetCredential(ctx, seedUser.ID)
	require.NoError(t, err)
	cred.UserID = user.ID
	require.NoError(t, f.store.CreateUser(ctx, user, *cred))

	session, err := f.svc.SignIn(ctx, membership.SignInParams{Email: user.Email, Password: "secret1"})
	require.NoError(t, err)
	principal, err := f.svc.ValidateSession(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, membership.RoleStudent, principal.Role)
}

func TestDeleteUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin, err := f.svc.SignUp(ctx, "librarian@admin.library", "secret1")
	require.NoError(t, err)
	student, err := f.svc.SignUp(ctx, "ayu@campus.edu", "secret1")
	require.NoError(t, err)
	session, err := f.svc.SignIn(ctx, membership.SignInParams{Email: "ayu@campus.edu", Password: "secret1"})
	require.NoError(t, err)

	adminPrincipal := membership.Principal{UserID: admin.ID, Email: admin.Email, Role: admin.Role}
	studentPrincipal := membership.Principal{UserID: student.ID, Email: student.Email, Role: student.Role}

	assert.ErrorIs(t, f.svc.DeleteUser(ctx, studentPrincipal, admin.ID), apperr.ErrUnauthorized)
	require.NoError(t, f.svc.DeleteUser(ctx, adminPrincipal, student.ID))
	assert.ErrorIs(t, f.svc.DeleteUser(ctx, adminPrincipal, student.ID), apperr.ErrNotFound)

	_, err = f.svc.ValidateSession(ctx, session.Token)
	assert.ErrorIs(t, err, apperr.ErrSessionExpired)
}

func TestRateLimit(t *testing.T) {
	store := memory.NewStore()
	svc := membership.NewService(store, memory.NewSessions(nil), logging.Discard(), membership.Options{
		SessionSecret:     []byte("test-secret"),
		AuthRatePerMinute: 2,
	})
	ctx := context.Background()

	kinds := make([]string, 0, 4)
	for i := 0; i < 4; i++ {
		_, err := svc.SignIn(ctx, membership.SignInParams{Email: "ayu@campus.edu", Password: "secret1"})
		kinds = append(kinds, apperr.Kind(err))
	}
	assert.Equal(t, []string{
		apperr.KindInvalidCredentials,
		apperr.KindInvalidCredentials,
		apperr.KindRateLimited,
		apperr.KindRateLimited,
	}, kinds)
}

func TestRateLimit_IsPerEmail(t *testing.T) {
	store := memory.NewStore()
	svc := membership.NewService(store, memory.NewSessions(nil), logging.Discard(), membership.Options{
		SessionSecret:     []byte("test-secret"),
		AuthRatePerMinute: 2,
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _ = svc.SignIn(ctx, membership.SignInParams{Email: "noisy@campus.edu", Password: "wrong"})
	}
	_, err := svc.SignIn(ctx, membership.SignInParams{Email: " Noisy@Campus.edu ", Password: "wrong"})
	assert.ErrorIs(t, err, apperr.ErrRateLimited)

	for i := 0; i < 10; i++ {
		email := fmt.Sprintf("student%02d@campus.edu", i)
		_, err := svc.SignUp(ctx, email, "secret1")
		require.NoError(t, err)
		_, err = svc.SignIn(ctx, membership.SignInParams{Email: email, Password: "secret1"})
		require.NoError(t, err)
	}
}

func TestRequireSessionAndRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.SignUp(ctx, "ayu@campus.edu", "secret1")
	require.NoError(t, err)
	session, err := f.svc.SignIn(ctx, membership.SignInParams{Email: "ayu@campus.edu", Password: "secret1"})
	require.NoError(t, err)

	responder := httpx.NewResponder(logging.Discard())
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, found := membership.PrincipalFromContext(r.Context())
		assert.True(t, found)
		assert.Equal(t, "ayu@campus.edu", principal.Email)
		w.WriteHeader(http.StatusNoContent)
	})
	studentOnly := membership.RequireSession(f.svc, responder)(membership.RequireRole(responder, membership.RoleStudent)(ok))
	adminOnly := membership.RequireSession(f.svc, responder)(membership.RequireRole(responder, membership.RoleAdmin)(ok))

	req := httptest.NewRequest(http.MethodGet, "/me/dashboard", nil)
	rec := httptest.NewRecorder()
	studentOnly.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/me/dashboard", nil)
	req.Header.Set("Authorization", "Bearer "+session.Token)
	rec = httptest.NewRecorder()
	studentOnly.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/admin/borrowings", nil)
	req.Header.Set("Authorization", "Bearer "+session.Token)
	rec = httptest.NewRecorder()
	adminOnly.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
