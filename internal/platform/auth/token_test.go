package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func testIssuer(t *testing.T) *TokenIssuer {
	t.Helper()
	issuer, err := NewTokenIssuer([]byte("0123456789abcdef0123456789abcdef"), "hms-test", 15*time.Minute)
	if err != nil {
		t.Fatalf("NewTokenIssuer() error: %v", err)
	}
	return issuer
}

func TestNewTokenIssuer_ShortSecret(t *testing.T) {
	if _, err := NewTokenIssuer([]byte("short"), "hms-test", 0); err == nil {
		t.Error("expected error for short secret")
	}
}

func TestTokenIssuer_IssueValidate(t *testing.T) {
	issuer := testIssuer(t)

	raw, err := issuer.Issue("doctor@hospital.com", RoleDoctor)
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}

	claims, err := issuer.Validate(raw)
	if err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if claims.Subject != "doctor@hospital.com" {
		t.Errorf("subject = %q", claims.Subject)
	}
	if claims.Role != string(RoleDoctor) {
		t.Errorf("role = %q", claims.Role)
	}
	if claims.ID == "" {
		t.Error("expected a jti")
	}
}

func TestTokenIssuer_Expiry(t *testing.T) {
	issuer := testIssuer(t)

	base := time.Now()
	issuer.now = func() time.Time { return base }

	raw, err := issuer.Issue("nurse@hospital.com", RoleNurse)
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}

	issuer.now = func() time.Time { return base.Add(16 * time.Minute) }
	_, err = issuer.Validate(raw)
	if !errors.Is(err, ErrTokenExpired) {
		t.Errorf("expected ErrTokenExpired, got %v", err)
	}
}

func TestTokenIssuer_Tampered(t *testing.T) {
	issuer := testIssuer(t)

	raw, err := issuer.Issue("doctor@hospital.com", RoleDoctor)
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}

	t.Run("flipped signature byte", func(t *testing.T) {
		tampered := raw[:len(raw)-2] + "xx"
		if _, err := issuer.Validate(tampered); !errors.Is(err, ErrTokenUnknown) {
			t.Errorf("expected ErrTokenUnknown, got %v", err)
		}
	})

	t.Run("garbage", func(t *testing.T) {
		if _, err := issuer.Validate("not.a.jwt"); !errors.Is(err, ErrTokenUnknown) {
			t.Errorf("expected ErrTokenUnknown, got %v", err)
		}
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other, err := NewTokenIssuer([]byte("0123456789abcdef0123456789abcdef"), "someone-else", 0)
		if err != nil {
			t.Fatalf("NewTokenIssuer() error: %v", err)
		}
		foreign, err := other.Issue("doctor@hospital.com", RoleDoctor)
		if err != nil {
			t.Fatalf("Issue() error: %v", err)
		}
		if _, err := issuer.Validate(foreign); !errors.Is(err, ErrTokenUnknown) {
			t.Errorf("expected ErrTokenUnknown, got %v", err)
		}
	})
}

func TestNewRefreshToken(t *testing.T) {
	raw, hash, err := NewRefreshToken()
	if err != nil {
		t.Fatalf("NewRefreshToken() error: %v", err)
	}
	if raw == "" || hash == "" {
		t.Fatal("expected non-empty token and hash")
	}
	if strings.Contains(raw, "=") {
		t.Error("raw token should be unpadded base64url")
	}
	if hash != HashRefreshToken(raw) {
		t.Error("hash does not match HashRefreshToken(raw)")
	}

	raw2, _, err := NewRefreshToken()
	if err != nil {
		t.Fatalf("NewRefreshToken() error: %v", err)
	}
	if raw == raw2 {
		t.Error("two tokens should never collide")
	}
}
