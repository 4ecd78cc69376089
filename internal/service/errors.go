package service

import "errors"

var (
	// ErrInvalidInput is returned for malformed or missing request fields
	ErrInvalidInput = errors.New("invalid input")

	// ErrTokenInvalid is the uniform outcome for a device token that is
	// unknown, revoked, or expired. The cases are deliberately not
	// distinguished so callers cannot enumerate valid tokens.
	ErrTokenInvalid = errors.New("invalid token")

	// ErrNotLinked means the pairing code exists but has not been consumed
	// on the web surface yet; the client should keep polling.
	ErrNotLinked = errors.New("device not linked yet")

	// ErrCodeExpired means the pairing code is gone: expired, already
	// consumed, or never issued. The client must re-register.
	ErrCodeExpired = errors.New("pairing code expired")

	// ErrRegistrationNotFound means the pairing code could not be resolved
	// on the session surface.
	ErrRegistrationNotFound = errors.New("registration not found")

	// ErrDeviceNotFound covers both a device that does not exist and one
	// owned by a different user.
	ErrDeviceNotFound = errors.New("device not found")
)
