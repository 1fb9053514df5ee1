package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/platform/audit"
)

// TokenPair is what a successful login or refresh hands to the client.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// SessionManager issues access tokens and rotates refresh tokens. Refresh
// tokens are single use: each successful refresh consumes the presented
// token and mints a replacement within the same family. Presenting a token
// that was already consumed revokes every live session in its family.
type SessionManager struct {
	store      SessionStore
	issuer     *TokenIssuer
	recorder   audit.Recorder
	logger     zerolog.Logger
	refreshTTL time.Duration
	now        func() time.Time
}

func NewSessionManager(store SessionStore, issuer *TokenIssuer, recorder audit.Recorder, logger zerolog.Logger, refreshTTL time.Duration) *SessionManager {
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	return &SessionManager{
		store:      store,
		issuer:     issuer,
		recorder:   recorder,
		logger:     logger.With().Str("component", "session").Logger(),
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// Login starts a new token family for an authenticated user and returns its
// first token pair. Callers must have completed password and, where enabled,
// MFA verification before calling this.
func (m *SessionManager) Login(ctx context.Context, email string, role Role) (*TokenPair, error) {
	familyID := uuid.New()
	return m.mint(ctx, email, role, familyID)
}

// Refresh rotates a refresh token. Exactly one concurrent caller presenting
// the same token wins the rotation; the rest observe reuse, which revokes
// the family.
func (m *SessionManager) Refresh(ctx context.Context, rawToken string) (*TokenPair, error) {
	hash := HashRefreshToken(rawToken)
	s, err := m.store.Consume(ctx, hash, m.now().UTC())
	switch {
	case errors.Is(err, ErrTokenUnknown):
		m.recorder.Record(ctx, audit.Entry{
			ID: uuid.New(), OccurredAt: m.now().UTC(),
			Action: audit.ActionTokenRefresh, Outcome: audit.OutcomeFailure,
			Severity: audit.SeverityWarn,
			Details:  map[string]string{"reason": "unknown token"},
		})
		return nil, ErrTokenUnknown
	case errors.Is(err, ErrTokenExpired):
		m.recorder.Record(ctx, audit.Entry{
			ID: uuid.New(), OccurredAt: m.now().UTC(),
			Actor: s.UserEmail, Action: audit.ActionTokenRefresh,
			ResourceType: "token_family", ResourceID: s.FamilyID.String(),
			Outcome: audit.OutcomeFailure, Severity: audit.SeverityWarn,
			Details: map[string]string{"reason": "token expired"},
		})
		return nil, ErrTokenExpired
	case errors.Is(err, ErrTokenReuse):
		revoked, revokeErr := m.store.RevokeFamily(ctx, s.FamilyID)
		if revokeErr != nil {
			m.logger.Error().Err(revokeErr).
				Str("family_id", s.FamilyID.String()).
				Msg("family revocation failed after reuse")
		}
		m.logger.Warn().
			Str("user", s.UserEmail).
			Str("family_id", s.FamilyID.String()).
			Int("sessions_revoked", revoked).
			Msg("refresh token reuse detected")
		m.recorder.Record(ctx, audit.TokenReuseDetected(s.UserEmail, s.FamilyID, revoked))
		return nil, ErrTokenReuse
	case err != nil:
		return nil, err
	}

	pair, err := m.mint(ctx, s.UserEmail, s.Role, s.FamilyID)
	if err != nil {
		return nil, err
	}
	m.recorder.Record(ctx, audit.Entry{
		ID: uuid.New(), OccurredAt: m.now().UTC(),
		Actor: s.UserEmail, Action: audit.ActionTokenRefresh,
		ResourceType: "token_family", ResourceID: s.FamilyID.String(),
		Outcome: audit.OutcomeSuccess, Severity: audit.SeverityInfo,
	})
	return pair, nil
}

// Logout revokes the presented refresh token. Other sessions of the same
// user, including others in the same family, stay valid. Unknown tokens are
// a no-op: logout is idempotent.
func (m *SessionManager) Logout(ctx context.Context, rawToken string) error {
	hash := HashRefreshToken(rawToken)
	if err := m.store.Revoke(ctx, hash); err != nil {
		return err
	}
	m.recorder.Record(ctx, audit.Entry{
		ID: uuid.New(), OccurredAt: m.now().UTC(),
		Action: audit.ActionLogout, Outcome: audit.OutcomeSuccess,
		Severity: audit.SeverityInfo,
	})
	return nil
}

// ValidateAccess verifies an access token offline. No store round trip: an
// access token stays valid until its expiry even if its family has been
// revoked since.
func (m *SessionManager) ValidateAccess(raw string) (*Claims, error) {
	return m.issuer.Validate(raw)
}

func (m *SessionManager) mint(ctx context.Context, email string, role Role, familyID uuid.UUID) (*TokenPair, error) {
	raw, hash, err := NewRefreshToken()
	if err != nil {
		return nil, err
	}
	now := m.now().UTC()
	s := &Session{
		ID:        uuid.New(),
		UserEmail: email,
		Role:      role,
		TokenHash: hash,
		FamilyID:  familyID,
		ExpiresAt: now.Add(m.refreshTTL),
		CreatedAt: now,
	}
	if err := m.store.Create(ctx, s); err != nil {
		return nil, err
	}

	access, err := m.issuer.Issue(email, role)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: raw,
		TokenType:    "Bearer",
		ExpiresIn:    int(m.issuer.AccessTTL().Seconds()),
	}, nil
}
