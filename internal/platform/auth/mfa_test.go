package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

func generateCode(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(secret, at, totp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		t.Fatalf("generate code: %v", err)
	}
	return code
}

func TestProvisionTOTPSecret(t *testing.T) {
	secret, err := ProvisionTOTPSecret("doctor@hospital.com")
	if err != nil {
		t.Fatalf("ProvisionTOTPSecret() error: %v", err)
	}
	if secret.Secret == "" {
		t.Error("expected non-empty secret")
	}
	if secret.URL == "" {
		t.Error("expected provisioning URL")
	}

	now := time.Now()
	code := generateCode(t, secret.Secret, now)
	if err := VerifyTOTP(secret.Secret, code, now); err != nil {
		t.Errorf("fresh code rejected: %v", err)
	}
}

func TestVerifyTOTP_FormatGate(t *testing.T) {
	cases := []string{"", "12345", "1234567", "12345a", "abcdef", " 123456", "123456 "}
	for _, code := range cases {
		err := VerifyTOTP("JBSWY3DPEHPK3PXP", code, time.Now())
		if !errors.Is(err, ErrMFAInvalidFormat) {
			t.Errorf("VerifyTOTP(%q): expected ErrMFAInvalidFormat, got %v", code, err)
		}
	}
}

func TestVerifyTOTP_Windows(t *testing.T) {
	secret, err := ProvisionTOTPSecret("nurse@hospital.com")
	if err != nil {
		t.Fatalf("ProvisionTOTPSecret() error: %v", err)
	}

	// Anchor away from window edges so offsets land in the intended window.
	now := time.Date(2025, 6, 1, 12, 0, 15, 0, time.UTC)

	cases := []struct {
		name   string
		offset time.Duration
		accept bool
	}{
		{"current window", 0, true},
		{"previous window", -30 * time.Second, true},
		{"next window", 30 * time.Second, true},
		{"two windows back", -60 * time.Second, false},
		{"two windows ahead", 60 * time.Second, false},
		{"five minutes back", -5 * time.Minute, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code := generateCode(t, secret.Secret, now.Add(tc.offset))
			err := VerifyTOTP(secret.Secret, code, now)
			if tc.accept && err != nil {
				t.Errorf("expected acceptance, got %v", err)
			}
			if !tc.accept && !errors.Is(err, ErrMFAIncorrect) {
				t.Errorf("expected ErrMFAIncorrect, got %v", err)
			}
		})
	}
}

func TestVerifyTOTP_NoSecret(t *testing.T) {
	err := VerifyTOTP("", "123456", time.Now())
	if !errors.Is(err, ErrMFAIncorrect) {
		t.Errorf("expected ErrMFAIncorrect for missing secret, got %v", err)
	}
}
