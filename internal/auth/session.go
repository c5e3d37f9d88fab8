package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"

	"github.com/banshee-data/listeria.report/internal/httputil"
	"github.com/banshee-data/listeria.report/internal/timeutil"
)

const (
	sessionName  = "listeria_session"
	keyUsername  = "username"
	keyIssuedAt  = "issued_at"
	DefaultTTL   = 12 * time.Hour
	minSecretLen = 32
)

// Session is an authenticated login. It exists from a successful login until
// logout or until it is older than the manager's TTL.
type Session struct {
	Username string
	IssuedAt time.Time
}

// SessionManager stores sessions in signed cookies.
type SessionManager struct {
	store *sessions.CookieStore
	ttl   time.Duration
	clock timeutil.Clock
}

// GenerateSecret returns a random signing key. Sessions signed with it do not
// survive a restart.
func GenerateSecret() []byte {
	return securecookie.GenerateRandomKey(minSecretLen)
}

func buildSessionOptions(secure bool, maxAge int) *sessions.Options {
	return &sessions.Options{
		Path:     "/",
		MaxAge:   maxAge,
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// NewSessionManager signs cookies with secret. A nil clock uses wall time.
func NewSessionManager(secret []byte, ttl time.Duration, secure bool, clock timeutil.Clock) (*SessionManager, error) {
	if len(secret) < minSecretLen {
		return nil, fmt.Errorf("session secret must be at least %d bytes", minSecretLen)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	store := sessions.NewCookieStore(secret)
	store.MaxAge(int(ttl.Seconds()))
	store.Options = buildSessionOptions(secure, int(ttl.Seconds()))
	return &SessionManager{store: store, ttl: ttl, clock: clock}, nil
}

// Create starts a session for user and writes its cookie.
func (m *SessionManager) Create(w http.ResponseWriter, r *http.Request, user *UserInfo) (*Session, error) {
	// A stale or forged cookie yields a fresh session alongside the error.
	sess, _ := m.store.Get(r, sessionName)
	now := m.clock.Now()
	sess.Values[keyUsername] = user.Username
	sess.Values[keyIssuedAt] = now.Unix()
	if err := sess.Save(r, w); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return &Session{Username: user.Username, IssuedAt: time.Unix(now.Unix(), 0)}, nil
}

// Get returns the request's live session, if any.
func (m *SessionManager) Get(r *http.Request) (*Session, bool) {
	sess, err := m.store.Get(r, sessionName)
	if err != nil || sess.IsNew {
		return nil, false
	}
	username, _ := sess.Values[keyUsername].(string)
	issued, ok := sess.Values[keyIssuedAt].(int64)
	if username == "" || !ok {
		return nil, false
	}
	s := &Session{Username: username, IssuedAt: time.Unix(issued, 0)}
	if m.clock.Since(s.IssuedAt) > m.ttl {
		return nil, false
	}
	return s, true
}

// Destroy ends the session and expires its cookie.
func (m *SessionManager) Destroy(w http.ResponseWriter, r *http.Request) error {
	sess, _ := m.store.Get(r, sessionName)
	for k := range sess.Values {
		delete(sess.Values, k)
	}
	sess.Options = buildSessionOptions(m.store.Options.Secure, -1)
	if err := sess.Save(r, w); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// RequireSession admits requests that carry a live session and places it in
// the request context. API paths get 401; pages are redirected to loginPath.
func (m *SessionManager) RequireSession(loginPath string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, ok := m.Get(r)
		if !ok {
			if strings.HasPrefix(r.URL.Path, "/api/") {
				httputil.Unauthorized(w)
				return
			}
			http.Redirect(w, r, loginPath, http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
	})
}

type ctxKey struct{}

// WithSession returns a context carrying s.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the session placed by RequireSession.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(*Session)
	return s, ok && s != nil
}
