package account

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no account exists for an email. It never
// reaches a client; login failures are reported generically.
var ErrNotFound = errors.New("account: not found")

// ErrDuplicate is returned when creating an account whose email is taken.
var ErrDuplicate = errors.New("account: email already registered")

// UserRepository is the credential store.
type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByEmail(ctx context.Context, email string) (*User, error)

	// UpdatePasswordHash persists a migrated or changed password hash.
	UpdatePasswordHash(ctx context.Context, email, hash string) error

	// SetMFASecret stores a provisioned TOTP secret and toggles enrollment.
	SetMFASecret(ctx context.Context, email, secret string, enabled bool) error

	// RecordLoginFailure bumps the failure counter and applies the lockout
	// window once the threshold is crossed.
	RecordLoginFailure(ctx context.Context, email string, lockedUntil *time.Time) error

	// RecordLoginSuccess clears failure state and stamps last_login_at.
	RecordLoginSuccess(ctx context.Context, email string, at time.Time) error
}
