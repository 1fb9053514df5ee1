package account

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/platform/audit"
	"github.com/hms/hms/internal/platform/auth"
)

func testService(t *testing.T) (*Service, *UserRepoMem, *audit.MemoryRecorder) {
	t.Helper()
	repo := NewUserRepoMem()
	recorder := audit.NewMemoryRecorder()
	issuer, err := auth.NewTokenIssuer([]byte("0123456789abcdef0123456789abcdef"), "hms-test", 15*time.Minute)
	if err != nil {
		t.Fatalf("NewTokenIssuer() error: %v", err)
	}
	sessions := auth.NewSessionManager(auth.NewMemorySessionStore(), issuer, recorder, zerolog.Nop(), 24*time.Hour)
	return NewService(repo, sessions, recorder, zerolog.Nop()), repo, recorder
}

func seedUser(t *testing.T, repo *UserRepoMem, email, password string, role auth.Role) {
	t.Helper()
	hash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword() error: %v", err)
	}
	if err := repo.Create(context.Background(), &User{
		Email:        email,
		PasswordHash: hash,
		Role:         role,
	}); err != nil {
		t.Fatalf("seed user: %v", err)
	}
}

func TestLogin_Success(t *testing.T) {
	svc, repo, recorder := testService(t)
	seedUser(t, repo, "doctor@hospital.com", "Secret-Password-1", auth.RoleDoctor)

	res, err := svc.Login(context.Background(), "  Doctor@Hospital.COM ", "Secret-Password-1")
	if err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	if res.MFARequired {
		t.Fatal("MFA required for an account without MFA")
	}
	if res.Tokens == nil || res.Tokens.AccessToken == "" {
		t.Fatal("expected a token pair")
	}

	success := 0
	for _, e := range recorder.ByAction(audit.ActionLogin) {
		if e.Outcome == audit.OutcomeSuccess {
			success++
		}
	}
	if success != 1 {
		t.Errorf("successful login audit entries = %d, want 1", success)
	}
}

func TestLogin_GenericFailures(t *testing.T) {
	svc, repo, _ := testService(t)
	seedUser(t, repo, "doctor@hospital.com", "Secret-Password-1", auth.RoleDoctor)

	_, unknownErr := svc.Login(context.Background(), "nobody@hospital.com", "Secret-Password-1")
	_, wrongErr := svc.Login(context.Background(), "doctor@hospital.com", "wrong password")

	if !errors.Is(unknownErr, auth.ErrInvalidCredential) {
		t.Errorf("unknown account: %v", unknownErr)
	}
	if !errors.Is(wrongErr, auth.ErrInvalidCredential) {
		t.Errorf("wrong password: %v", wrongErr)
	}
	if unknownErr.Error() != wrongErr.Error() {
		t.Errorf("failure messages differ: %q vs %q", unknownErr, wrongErr)
	}
}

func TestLogin_Lockout(t *testing.T) {
	svc, repo, recorder := testService(t)
	seedUser(t, repo, "doctor@hospital.com", "Secret-Password-1", auth.RoleDoctor)
	ctx := context.Background()

	for i := 0; i < lockoutThreshold; i++ {
		if _, err := svc.Login(ctx, "doctor@hospital.com", "wrong password"); !errors.Is(err, auth.ErrInvalidCredential) {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}

	// The correct password no longer works while the lockout is active, and
	// the caller cannot tell a lockout from a wrong password.
	if _, err := svc.Login(ctx, "doctor@hospital.com", "Secret-Password-1"); !errors.Is(err, auth.ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential during lockout, got %v", err)
	}

	// After the window passes the account works again.
	svc.now = func() time.Time { return time.Now().Add(lockoutWindow + time.Minute) }
	res, err := svc.Login(ctx, "doctor@hospital.com", "Secret-Password-1")
	if err != nil {
		t.Fatalf("login after lockout window: %v", err)
	}
	if res.Tokens == nil {
		t.Fatal("expected tokens after lockout expiry")
	}

	u, err := repo.GetByEmail(ctx, "doctor@hospital.com")
	if err != nil {
		t.Fatalf("GetByEmail() error: %v", err)
	}
	if u.FailedLoginAttempts != 0 || u.LockedUntil != nil {
		t.Errorf("counters not reset: attempts=%d locked=%v", u.FailedLoginAttempts, u.LockedUntil)
	}

	locked := false
	for _, e := range recorder.ByAction(audit.ActionLogin) {
		if e.Details["reason"] == "account locked" {
			locked = true
		}
	}
	if !locked {
		t.Error("expected an audit entry with the lockout reason")
	}
}

func TestLogin_MigratesLegacyPlaintext(t *testing.T) {
	svc, repo, recorder := testService(t)
	ctx := context.Background()

	// Imported legacy row: the stored credential is the raw password.
	if err := repo.Create(ctx, &User{
		Email:        "legacy@hospital.com",
		PasswordHash: "plaintext-password-123",
		Role:         auth.RoleNurse,
	}); err != nil {
		t.Fatalf("seed legacy user: %v", err)
	}

	res, err := svc.Login(ctx, "legacy@hospital.com", "plaintext-password-123")
	if err != nil {
		t.Fatalf("legacy login: %v", err)
	}
	if res.Tokens == nil {
		t.Fatal("expected tokens")
	}

	u, err := repo.GetByEmail(ctx, "legacy@hospital.com")
	if err != nil {
		t.Fatalf("GetByEmail() error: %v", err)
	}
	if !auth.IsHashed(u.PasswordHash) {
		t.Fatalf("stored credential not migrated: %q", u.PasswordHash)
	}
	if len(recorder.ByAction(audit.ActionPasswordMigrate)) != 1 {
		t.Error("expected exactly one migration audit entry")
	}

	// Second login uses the hash; no further migration.
	if _, err := svc.Login(ctx, "legacy@hospital.com", "plaintext-password-123"); err != nil {
		t.Fatalf("post-migration login: %v", err)
	}
	if len(recorder.ByAction(audit.ActionPasswordMigrate)) != 1 {
		t.Error("migration ran twice")
	}
}

func TestVerifyMFA_RequiresPendingChallenge(t *testing.T) {
	svc, repo, _ := testService(t)
	seedUser(t, repo, "doctor@hospital.com", "Secret-Password-1", auth.RoleDoctor)

	_, err := svc.VerifyMFA(context.Background(), "doctor@hospital.com", "123456")
	if !errors.Is(err, auth.ErrMFANotPending) {
		t.Errorf("expected ErrMFANotPending, got %v", err)
	}
}

func TestVerifyMFA_FullFlow(t *testing.T) {
	svc, repo, recorder := testService(t)
	seedUser(t, repo, "doctor@hospital.com", "Secret-Password-1", auth.RoleDoctor)
	ctx := context.Background()

	secret, err := svc.ProvisionMFA(ctx, "admin@hospital.com", "doctor@hospital.com")
	if err != nil {
		t.Fatalf("ProvisionMFA() error: %v", err)
	}

	res, err := svc.Login(ctx, "doctor@hospital.com", "Secret-Password-1")
	if err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	if !res.MFARequired || res.Tokens != nil {
		t.Fatal("expected an MFA challenge, not tokens")
	}

	// The password stage is audited even though the login is still pending.
	passwordStage := 0
	for _, e := range recorder.ByAction(audit.ActionLogin) {
		if e.Outcome == audit.OutcomeSuccess && e.Details["stage"] == "password" {
			passwordStage++
		}
	}
	if passwordStage != 1 {
		t.Errorf("password-stage audit entries = %d, want 1", passwordStage)
	}

	t.Run("malformed code", func(t *testing.T) {
		_, err := svc.VerifyMFA(ctx, "doctor@hospital.com", "12x456")
		if !errors.Is(err, auth.ErrMFAInvalidFormat) {
			t.Errorf("expected ErrMFAInvalidFormat, got %v", err)
		}
	})

	t.Run("wrong code", func(t *testing.T) {
		_, err := svc.VerifyMFA(ctx, "doctor@hospital.com", "000000")
		if err == nil {
			t.Error("expected a wrong code to be rejected")
		}
	})

	code, err := totp.GenerateCodeCustom(secret.Secret, time.Now(), totp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		t.Fatalf("generate code: %v", err)
	}

	tokens, err := svc.VerifyMFA(ctx, "doctor@hospital.com", code)
	if err != nil {
		t.Fatalf("VerifyMFA() error: %v", err)
	}
	if tokens == nil || tokens.AccessToken == "" {
		t.Fatal("expected a token pair")
	}

	// The challenge is consumed: a second verification needs a fresh login.
	if _, err := svc.VerifyMFA(ctx, "doctor@hospital.com", code); !errors.Is(err, auth.ErrMFANotPending) {
		t.Errorf("expected consumed challenge, got %v", err)
	}

	verified := 0
	for _, e := range recorder.ByAction(audit.ActionMFAVerify) {
		if e.Outcome == audit.OutcomeSuccess {
			verified++
		}
	}
	if verified != 1 {
		t.Errorf("successful MFA audit entries = %d, want 1", verified)
	}
}

func TestDisableMFA(t *testing.T) {
	svc, repo, _ := testService(t)
	seedUser(t, repo, "doctor@hospital.com", "Secret-Password-1", auth.RoleDoctor)
	ctx := context.Background()

	if _, err := svc.ProvisionMFA(ctx, "admin@hospital.com", "doctor@hospital.com"); err != nil {
		t.Fatalf("ProvisionMFA() error: %v", err)
	}
	if err := svc.DisableMFA(ctx, "admin@hospital.com", "doctor@hospital.com"); err != nil {
		t.Fatalf("DisableMFA() error: %v", err)
	}

	res, err := svc.Login(ctx, "doctor@hospital.com", "Secret-Password-1")
	if err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	if res.MFARequired {
		t.Error("MFA still required after disable")
	}
}

func TestCreateUser(t *testing.T) {
	svc, _, recorder := testService(t)
	ctx := context.Background()

	u, err := svc.CreateUser(ctx, "admin@hospital.com", "New.Nurse@Hospital.com", "a long enough password", auth.RoleNurse)
	if err != nil {
		t.Fatalf("CreateUser() error: %v", err)
	}
	if u.Email != "new.nurse@hospital.com" {
		t.Errorf("email not normalized: %q", u.Email)
	}
	if !auth.IsHashed(u.PasswordHash) {
		t.Error("password stored unhashed")
	}
	if len(recorder.ByAction(audit.ActionUserCreate)) != 1 {
		t.Error("expected a creation audit entry")
	}

	t.Run("duplicate", func(t *testing.T) {
		_, err := svc.CreateUser(ctx, "admin@hospital.com", "new.nurse@hospital.com", "a long enough password", auth.RoleNurse)
		if !errors.Is(err, ErrDuplicate) {
			t.Errorf("expected ErrDuplicate, got %v", err)
		}
	})

	t.Run("unknown role", func(t *testing.T) {
		if _, err := svc.CreateUser(ctx, "admin@hospital.com", "x@hospital.com", "a long enough password", auth.Role("wizard")); err == nil {
			t.Error("expected unknown role to be rejected")
		}
	})

	t.Run("short password", func(t *testing.T) {
		if _, err := svc.CreateUser(ctx, "admin@hospital.com", "y@hospital.com", "short", auth.RoleNurse); err == nil {
			t.Error("expected short password to be rejected")
		}
	})
}

func TestChallengeStore_Expiry(t *testing.T) {
	store := NewChallengeStore()
	store.Open("doctor@hospital.com")
	if !store.Live("doctor@hospital.com") {
		t.Fatal("fresh challenge should be live")
	}

	store.now = func() time.Time { return time.Now().Add(challengeTTL + time.Second) }
	if store.Live("doctor@hospital.com") {
		t.Error("expired challenge still live")
	}
}
