// Package auth verifies dashboard credentials and tracks login sessions.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/banshee-data/listeria.report/internal/monitoring"
)

// UserInfo identifies an authenticated user.
type UserInfo struct {
	Username string `json:"username"`
}

// Authenticator checks a username/password pair. A nil user with a nil error
// means the credentials were rejected; errors are reserved for the backing
// store failing.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (*UserInfo, error)
}

// UserStore looks up the stored password hash for a username.
type UserStore interface {
	PasswordHash(ctx context.Context, username string) (hash string, found bool, err error)
}

// PasswordAuthenticator authenticates against bcrypt hashes in a UserStore.
type PasswordAuthenticator struct {
	Users UserStore
}

var _ Authenticator = (*PasswordAuthenticator)(nil)

var (
	dummyOnce sync.Once
	dummyHash []byte
)

// burnCompare spends a bcrypt comparison so unknown usernames take as long
// to reject as wrong passwords.
func burnCompare(password string) {
	dummyOnce.Do(func() {
		dummyHash, _ = bcrypt.GenerateFromPassword([]byte("listeria-placeholder"), BcryptCost)
	})
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
}

// Authenticate implements Authenticator.
func (a *PasswordAuthenticator) Authenticate(ctx context.Context, username, password string) (*UserInfo, error) {
	if username == "" || password == "" {
		return nil, nil
	}
	hash, found, err := a.Users.PasswordHash(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if !found {
		burnCompare(password)
		return nil, nil
	}
	err = CheckPassword(hash, password)
	switch {
	case err == nil:
		return &UserInfo{Username: username}, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return nil, nil
	default:
		monitoring.Logf("stored password hash for %q is unusable: %v", username, err)
		return nil, nil
	}
}
