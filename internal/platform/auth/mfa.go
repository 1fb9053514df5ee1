package auth

import (
	"fmt"
	"regexp"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

var sixDigits = regexp.MustCompile(`^\d{6}$`)

// TOTPIssuer is embedded in provisioning URLs so authenticator apps label
// the account.
const TOTPIssuer = "Hospital Portal"

// ProvisionedSecret is the result of enrolling an account in MFA. URL is an
// otpauth:// URI that can be rendered as a QR code by the admin console.
type ProvisionedSecret struct {
	Secret string `json:"secret"`
	URL    string `json:"url"`
}

// ProvisionTOTPSecret generates a fresh Base32 TOTP secret for the account.
// Authorization (admin only) is enforced by the caller.
func ProvisionTOTPSecret(email string) (*ProvisionedSecret, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      TOTPIssuer,
		AccountName: email,
		Period:      30,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("generate totp secret: %w", err)
	}
	return &ProvisionedSecret{Secret: key.Secret(), URL: key.URL()}, nil
}

// VerifyTOTP checks a submitted one-time code against the account secret.
// The format gate runs before any TOTP computation so malformed input never
// reaches the comparison. A code from the current 30-second window or from
// the window on either side is accepted.
func VerifyTOTP(secret, code string, now time.Time) error {
	if !sixDigits.MatchString(code) {
		return ErrMFAInvalidFormat
	}
	if secret == "" {
		return ErrMFAIncorrect
	}
	ok, err := totp.ValidateCustom(code, secret, now.UTC(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil || !ok {
		return ErrMFAIncorrect
	}
	return nil
}
