package auth

import "errors"

var (
	// ErrPasskeyMismatch is returned when a passkey does not match the configured hash.
	ErrPasskeyMismatch = errors.New("auth: passkey mismatch")

	// ErrNotConfigured is returned when no passkey hash or signing secret is set.
	ErrNotConfigured = errors.New("auth: not configured")

	// ErrTokenInvalid is returned for a token that fails signature, expiry or audience checks.
	ErrTokenInvalid = errors.New("auth: invalid token")
)
