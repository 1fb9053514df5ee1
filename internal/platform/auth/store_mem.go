package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemorySessionStore keeps sessions in a mutex-guarded map. It backs unit
// tests and development mode; production uses the PostgreSQL store.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]*Session)}
}

func (m *MemorySessionStore) Create(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sessions[s.TokenHash] = &cp
	return nil
}

func (m *MemorySessionStore) Consume(_ context.Context, tokenHash string, now time.Time) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[tokenHash]
	if !ok {
		return nil, ErrTokenUnknown
	}
	if s.Revoked {
		cp := *s
		return &cp, ErrTokenReuse
	}
	if s.Expired(now) {
		cp := *s
		return &cp, ErrTokenExpired
	}
	s.Revoked = true
	cp := *s
	return &cp, nil
}

func (m *MemorySessionStore) Revoke(_ context.Context, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[tokenHash]; ok {
		s.Revoked = true
	}
	return nil
}

func (m *MemorySessionStore) RevokeFamily(_ context.Context, familyID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sessions {
		if s.FamilyID == familyID && !s.Revoked {
			s.Revoked = true
			n++
		}
	}
	return n, nil
}

func (m *MemorySessionStore) DeleteExpired(_ context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for hash, s := range m.sessions {
		if s.ExpiresAt.Before(before) {
			delete(m.sessions, hash)
			n++
		}
	}
	return n, nil
}
