package account

import (
	"context"
	"sync"
	"time"
)

// UserRepoMem is an in-memory credential store for tests and development.
type UserRepoMem struct {
	mu    sync.Mutex
	users map[string]*User
}

func NewUserRepoMem() *UserRepoMem {
	return &UserRepoMem{users: make(map[string]*User)}
}

func (r *UserRepoMem) Create(_ context.Context, u *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[u.Email]; ok {
		return ErrDuplicate
	}
	cp := *u
	r.users[u.Email] = &cp
	return nil
}

func (r *UserRepoMem) GetByEmail(_ context.Context, email string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[email]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *UserRepoMem) UpdatePasswordHash(_ context.Context, email, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[email]; ok {
		u.PasswordHash = hash
		u.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (r *UserRepoMem) SetMFASecret(_ context.Context, email, secret string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[email]
	if !ok {
		return ErrNotFound
	}
	u.MFASecret = secret
	u.MFAEnabled = enabled
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *UserRepoMem) RecordLoginFailure(_ context.Context, email string, lockedUntil *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[email]; ok {
		u.FailedLoginAttempts++
		if lockedUntil != nil {
			u.LockedUntil = lockedUntil
		}
	}
	return nil
}

func (r *UserRepoMem) RecordLoginSuccess(_ context.Context, email string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[email]; ok {
		u.FailedLoginAttempts = 0
		u.LockedUntil = nil
		u.LastLoginAt = &at
	}
	return nil
}
