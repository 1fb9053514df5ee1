package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/hms/hms/internal/platform/audit"
	"github.com/hms/hms/internal/platform/auth"
)

const (
	lockoutThreshold = 5
	lockoutWindow    = 15 * time.Minute
)

// dummyHash is compared against when an email is unknown so that the lookup
// path and the wrong-password path cost the same.
var dummyHash, _ = auth.HashPassword("placeholder-for-timing-equalization")

// LoginResult is the outcome of a successful password verification. Either
// the account owes a one-time code or it holds a fresh token pair.
type LoginResult struct {
	MFARequired bool
	Tokens      *auth.TokenPair
}

// Service orchestrates authentication: password verification, lockout,
// legacy hash migration, the MFA gate, and session issuance.
type Service struct {
	repo       UserRepository
	sessions   *auth.SessionManager
	challenges *ChallengeStore
	recorder   audit.Recorder
	logger     zerolog.Logger
	now        func() time.Time
}

func NewService(repo UserRepository, sessions *auth.SessionManager, recorder audit.Recorder, logger zerolog.Logger) *Service {
	return &Service{
		repo:       repo,
		sessions:   sessions,
		challenges: NewChallengeStore(),
		recorder:   recorder,
		logger:     logger.With().Str("component", "account").Logger(),
		now:        time.Now,
	}
}

// Login verifies a password. Unknown accounts, wrong passwords, and locked
// accounts all come back as ErrInvalidCredential so the response gives away
// nothing; the audit trail records the real reason.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	u, err := s.repo.GetByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		// Burn a bcrypt comparison so unknown emails cost as much as known ones.
		_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
		s.recorder.Record(ctx, audit.LoginFailed(email, "unknown account"))
		return nil, auth.ErrInvalidCredential
	}
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if u.Locked(now) {
		s.recorder.Record(ctx, audit.LoginFailed(email, "account locked"))
		return nil, auth.ErrInvalidCredential
	}

	if err := auth.VerifyPassword(u.PasswordHash, password); err != nil {
		s.registerFailure(ctx, u, now)
		return nil, auth.ErrInvalidCredential
	}

	if !auth.IsHashed(u.PasswordHash) {
		s.migratePassword(ctx, email, password)
	}

	if err := s.repo.RecordLoginSuccess(ctx, email, now); err != nil {
		s.logger.Error().Err(err).Str("user", email).Msg("login bookkeeping failed")
	}

	if u.MFAEnabled {
		s.challenges.Open(email)
		// Password verification succeeded even though the login is not
		// complete yet; the trail carries both stages.
		s.recorder.Record(ctx, audit.Entry{
			OccurredAt: now, Actor: email, Action: audit.ActionLogin,
			Outcome: audit.OutcomeSuccess, Severity: audit.SeverityInfo,
			Details: map[string]string{"stage": "password", "mfa": "challenge issued"},
		})
		return &LoginResult{MFARequired: true}, nil
	}

	tokens, err := s.sessions.Login(ctx, email, u.Role)
	if err != nil {
		return nil, err
	}
	s.recorder.Record(ctx, audit.LoginSucceeded(email))
	return &LoginResult{Tokens: tokens}, nil
}

// VerifyMFA completes a login for an account with MFA enabled. It only runs
// when the account holds a live password-verified challenge.
func (s *Service) VerifyMFA(ctx context.Context, email, code string) (*auth.TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	if !s.challenges.Live(email) {
		s.recorder.Record(ctx, audit.Entry{
			OccurredAt: s.now().UTC(), Actor: email, Action: audit.ActionMFAVerify,
			Outcome: audit.OutcomeDenied, Severity: audit.SeverityWarn,
			Details: map[string]string{"reason": "no pending challenge"},
		})
		return nil, auth.ErrMFANotPending
	}

	u, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return nil, auth.ErrMFANotPending
	}

	if err := auth.VerifyTOTP(u.MFASecret, code, s.now()); err != nil {
		reason := "code incorrect"
		if errors.Is(err, auth.ErrMFAInvalidFormat) {
			reason = "code malformed"
		}
		s.recorder.Record(ctx, audit.Entry{
			OccurredAt: s.now().UTC(), Actor: email, Action: audit.ActionMFAVerify,
			Outcome: audit.OutcomeFailure, Severity: audit.SeverityWarn,
			Details: map[string]string{"reason": reason},
		})
		return nil, err
	}

	s.challenges.Close(email)

	tokens, err := s.sessions.Login(ctx, email, u.Role)
	if err != nil {
		return nil, err
	}
	s.recorder.Record(ctx, audit.Entry{
		OccurredAt: s.now().UTC(), Actor: email, Action: audit.ActionMFAVerify,
		Outcome: audit.OutcomeSuccess, Severity: audit.SeverityInfo,
	})
	return tokens, nil
}

// ProvisionMFA generates and stores a TOTP secret for an account. Caller
// authorization (CapProvisionMFA) is enforced at the HTTP layer.
func (s *Service) ProvisionMFA(ctx context.Context, actor, email string) (*auth.ProvisionedSecret, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	secret, err := auth.ProvisionTOTPSecret(email)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetMFASecret(ctx, email, secret.Secret, true); err != nil {
		return nil, err
	}
	s.recorder.Record(ctx, audit.Entry{
		OccurredAt: s.now().UTC(), Actor: actor, Action: audit.ActionMFAProvision,
		ResourceType: "user", ResourceID: email,
		Outcome: audit.OutcomeSuccess, Severity: audit.SeverityInfo,
	})
	return secret, nil
}

// DisableMFA removes an account's TOTP enrollment.
func (s *Service) DisableMFA(ctx context.Context, actor, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := s.repo.SetMFASecret(ctx, email, "", false); err != nil {
		return err
	}
	s.recorder.Record(ctx, audit.Entry{
		OccurredAt: s.now().UTC(), Actor: actor, Action: audit.ActionMFAProvision,
		ResourceType: "user", ResourceID: email,
		Outcome: audit.OutcomeSuccess, Severity: audit.SeverityInfo,
		Details: map[string]string{"change": "mfa disabled"},
	})
	return nil
}

// CreateUser provisions a new account with a hashed password.
func (s *Service) CreateUser(ctx context.Context, actor, email, password string, role auth.Role) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, fmt.Errorf("account: email is required")
	}
	if !auth.ValidRole(role) {
		return nil, fmt.Errorf("account: unknown role %q", role)
	}
	if len(password) < 12 {
		return nil, fmt.Errorf("account: password must be at least 12 characters")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	u := &User{
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}
	s.recorder.Record(ctx, audit.Entry{
		OccurredAt: now, Actor: actor, Action: audit.ActionUserCreate,
		ResourceType: "user", ResourceID: email,
		Outcome: audit.OutcomeSuccess, Severity: audit.SeverityInfo,
		Details: map[string]string{"role": string(role)},
	})
	return u, nil
}

// Refresh rotates a refresh token.
func (s *Service) Refresh(ctx context.Context, rawToken string) (*auth.TokenPair, error) {
	return s.sessions.Refresh(ctx, rawToken)
}

// Logout revokes one refresh token.
func (s *Service) Logout(ctx context.Context, rawToken string) error {
	return s.sessions.Logout(ctx, rawToken)
}

func (s *Service) registerFailure(ctx context.Context, u *User, now time.Time) {
	var lockedUntil *time.Time
	if u.FailedLoginAttempts+1 >= lockoutThreshold {
		t := now.Add(lockoutWindow)
		lockedUntil = &t
	}
	if err := s.repo.RecordLoginFailure(ctx, u.Email, lockedUntil); err != nil {
		s.logger.Error().Err(err).Str("user", u.Email).Msg("failure bookkeeping failed")
	}
	reason := "wrong password"
	if lockedUntil != nil {
		reason = "wrong password, account locked"
	}
	s.recorder.Record(ctx, audit.LoginFailed(u.Email, reason))
}

func (s *Service) migratePassword(ctx context.Context, email, password string) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		s.logger.Error().Err(err).Str("user", email).Msg("legacy hash migration failed")
		return
	}
	if err := s.repo.UpdatePasswordHash(ctx, email, hash); err != nil {
		s.logger.Error().Err(err).Str("user", email).Msg("legacy hash migration failed")
		return
	}
	s.recorder.Record(ctx, audit.Entry{
		OccurredAt: s.now().UTC(), Actor: email, Action: audit.ActionPasswordMigrate,
		ResourceType: "user", ResourceID: email,
		Outcome: audit.OutcomeSuccess, Severity: audit.SeverityInfo,
	})
}
