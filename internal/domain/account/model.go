package account

import (
	"time"

	"github.com/hms/hms/internal/platform/auth"
)

// User is one portal account. PasswordHash normally holds a bcrypt hash;
// rows imported from the legacy portal hold plaintext until the first
// successful login migrates them.
type User struct {
	Email               string
	PasswordHash        string
	Role                auth.Role
	MFASecret           string
	MFAEnabled          bool
	FailedLoginAttempts int
	LockedUntil         *time.Time
	LastLoginAt         *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Locked reports whether a lockout window is still active.
func (u *User) Locked(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}
