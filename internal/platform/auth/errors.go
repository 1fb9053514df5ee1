package auth

import "errors"

var (
	// ErrInvalidCredential covers unknown accounts and wrong passwords.
	// Callers must not distinguish the two on the wire.
	ErrInvalidCredential = errors.New("auth: invalid credential")

	// ErrAccountLocked is returned while a lockout window is active. It is
	// surfaced to clients as the same generic failure as ErrInvalidCredential.
	ErrAccountLocked = errors.New("auth: account locked")

	// ErrMFARequired signals that password verification succeeded but a
	// one-time code is still outstanding.
	ErrMFARequired = errors.New("auth: mfa required")

	// ErrMFAInvalidFormat is returned before any TOTP math when the submitted
	// code is not exactly six digits.
	ErrMFAInvalidFormat = errors.New("auth: mfa code malformed")

	// ErrMFAIncorrect is returned when a well-formed code does not match any
	// accepted time window.
	ErrMFAIncorrect = errors.New("auth: mfa code incorrect")

	// ErrMFANotPending is returned when a code is submitted without a live
	// password-verified challenge.
	ErrMFANotPending = errors.New("auth: no pending mfa challenge")

	ErrTokenExpired = errors.New("auth: token expired")
	ErrTokenUnknown = errors.New("auth: token unknown")

	// ErrTokenReuse marks consumption of an already-rotated refresh token.
	// The whole token family is revoked when this is observed.
	ErrTokenReuse = errors.New("auth: token reuse detected")

	ErrPermissionDenied = errors.New("auth: permission denied")
)
