package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Session is one refresh-token record. A login starts a family; every
// rotation appends a new session to the same family. Raw tokens are never
// stored, only their SHA-256 hash.
type Session struct {
	ID        uuid.UUID
	UserEmail string
	Role      Role
	TokenHash string
	FamilyID  uuid.UUID
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
}

// Expired reports whether the session's refresh token has passed its expiry.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// SessionStore persists refresh-token state.
//
// Consume is the rotation primitive: it atomically marks the session with the
// given token hash revoked and returns it, but only if it was not already
// revoked and has not expired at now. Under concurrent calls with the same
// hash exactly one caller receives the session; the rest get ErrTokenReuse.
// A hash with no record at all yields ErrTokenUnknown. An expired, unrevoked
// session yields ErrTokenExpired and is left untouched, so presenting it
// again is another expiry rejection, not reuse. On ErrTokenReuse and
// ErrTokenExpired the session is returned alongside the error so the caller
// can revoke the family or attribute the audit entry.
type SessionStore interface {
	Create(ctx context.Context, s *Session) error
	Consume(ctx context.Context, tokenHash string, now time.Time) (*Session, error)
	Revoke(ctx context.Context, tokenHash string) error
	RevokeFamily(ctx context.Context, familyID uuid.UUID) (int, error)
	DeleteExpired(ctx context.Context, before time.Time) (int, error)
}
