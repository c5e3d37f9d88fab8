package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/banshee-data/listeria.report/internal/timeutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type memUsers map[string]string

func (m memUsers) PasswordHash(_ context.Context, username string) (string, bool, error) {
	h, ok := m[username]
	return h, ok, nil
}

type failingUsers struct{}

func (failingUsers) PasswordHash(context.Context, string) (string, bool, error) {
	return "", false, errors.New("database is locked")
}

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.NoError(t, CheckPassword(hash, "correct horse"))
	assert.Error(t, CheckPassword(hash, "wrong horse"))

	_, err = HashPassword("short")
	assert.ErrorIs(t, err, ErrPasswordTooShort)
	_, err = HashPassword(strings.Repeat("a", MaxPasswordLength+1))
	assert.ErrorIs(t, err, ErrPasswordTooLong)
}

func TestPasswordAuthenticator(t *testing.T) {
	hash, err := HashPassword("swab-the-drain")
	require.NoError(t, err)
	a := &PasswordAuthenticator{Users: memUsers{"qa": hash, "broken": "not-a-bcrypt-hash"}}
	ctx := context.Background()

	user, err := a.Authenticate(ctx, "qa", "swab-the-drain")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "qa", user.Username)

	tests := []struct {
		name, user, pass string
	}{
		{"wrong password", "qa", "swab-the-floor"},
		{"unknown user", "ghost", "swab-the-drain"},
		{"empty username", "", "swab-the-drain"},
		{"empty password", "qa", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			user, err := a.Authenticate(ctx, tc.user, tc.pass)
			assert.NoError(t, err)
			assert.Nil(t, user)
		})
	}

	// An unreadable hash looks like any other rejection to the caller.
	user, err = a.Authenticate(ctx, "broken", "whatever-password")
	assert.NoError(t, err)
	assert.Nil(t, user)

	_, err = (&PasswordAuthenticator{Users: failingUsers{}}).Authenticate(ctx, "qa", "pw")
	assert.Error(t, err)
}

func newManager(t *testing.T, clock timeutil.Clock) *SessionManager {
	t.Helper()
	m, err := NewSessionManager([]byte(strings.Repeat("s", 32)), time.Hour, false, clock)
	require.NoError(t, err)
	return m
}

func login(t *testing.T, m *SessionManager) *http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	_, err := m.Create(rec, httptest.NewRequest(http.MethodPost, "/login", nil), &UserInfo{Username: "qa"})
	require.NoError(t, err)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.True(t, cookies[0].HttpOnly)
	return cookies[0]
}

func TestSessionLifecycle(t *testing.T) {
	clock := timeutil.NewMockClock(time.Now())
	m := newManager(t, clock)

	_, ok := m.Get(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.False(t, ok, "no cookie, no session")

	cookie := login(t, m)

	req := httptest.NewRequest(http.MethodGet, "/trend", nil)
	req.AddCookie(cookie)
	s, ok := m.Get(req)
	require.True(t, ok)
	assert.Equal(t, "qa", s.Username)

	rec := httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.AddCookie(cookie)
	require.NoError(t, m.Destroy(rec, req))
	cleared := rec.Result().Cookies()
	require.Len(t, cleared, 1)
	assert.Less(t, cleared[0].MaxAge, 0)

	req = httptest.NewRequest(http.MethodGet, "/trend", nil)
	req.AddCookie(cleared[0])
	_, ok = m.Get(req)
	assert.False(t, ok, "cleared cookie carries no session")
}

func TestSessionExpires(t *testing.T) {
	clock := timeutil.NewMockClock(time.Now())
	m := newManager(t, clock)
	cookie := login(t, m)

	clock.Advance(59 * time.Minute)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	_, ok := m.Get(req)
	assert.True(t, ok)

	clock.Advance(2 * time.Minute)
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	_, ok = m.Get(req)
	assert.False(t, ok)
}

func TestSessionRejectsForeignCookie(t *testing.T) {
	cookie := login(t, newManager(t, nil))
	other, err := NewSessionManager([]byte(strings.Repeat("o", 32)), time.Hour, false, nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	_, ok := other.Get(req)
	assert.False(t, ok)
}

func TestNewSessionManagerValidation(t *testing.T) {
	_, err := NewSessionManager([]byte("short"), time.Hour, false, nil)
	assert.Error(t, err)

	m, err := NewSessionManager(GenerateSecret(), 0, true, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultTTL, m.ttl)
}

func TestRequireSession(t *testing.T) {
	m := newManager(t, nil)
	var seen *Session
	protected := m.RequireSession("/login", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	protected.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/trend", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	rec = httptest.NewRecorder()
	protected.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/summary", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	cookie := login(t, m)
	req := httptest.NewRequest(http.MethodGet, "/trend", nil)
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, "qa", seen.Username)

	_, ok := FromContext(context.Background())
	assert.False(t, ok)
}
