package account

import (
	"sync"
	"time"
)

const challengeTTL = 5 * time.Minute

type pendingChallenge struct {
	email     string
	expiresAt time.Time
}

// ChallengeStore tracks accounts that have passed password verification and
// still owe a one-time code. A code submitted without a live challenge is
// rejected before any TOTP work, so the MFA endpoint cannot be used as a
// secret oracle.
type ChallengeStore struct {
	mu      sync.Mutex
	pending map[string]pendingChallenge
	now     func() time.Time
}

func NewChallengeStore() *ChallengeStore {
	return &ChallengeStore{
		pending: make(map[string]pendingChallenge),
		now:     time.Now,
	}
}

// Open starts (or refreshes) the challenge window for an account.
func (s *ChallengeStore) Open(email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweep()
	s.pending[email] = pendingChallenge{
		email:     email,
		expiresAt: s.now().Add(challengeTTL),
	}
}

// Live reports whether the account has an unexpired challenge.
func (s *ChallengeStore) Live(email string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.pending[email]
	return ok && s.now().Before(c.expiresAt)
}

// Close consumes the challenge after a successful code verification.
func (s *ChallengeStore) Close(email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, email)
}

// sweep drops expired challenges. Caller holds the lock.
func (s *ChallengeStore) sweep() {
	now := s.now()
	for email, c := range s.pending {
		if now.After(c.expiresAt) {
			delete(s.pending, email)
		}
	}
}
