// Package deviceauth is the client SDK for the GridNote device-pairing flow.
// It is what the Clipper host process links against: it keeps the install
// identity, registers for a pairing code, polls the exchange endpoint until
// the user links the device, and then signs every outbound request with the
// issued token, refreshing it before expiry.
package deviceauth

import "errors"

var (
	// ErrInvalidInput marks malformed local input (e.g. an empty install id)
	ErrInvalidInput = errors.New("invalid input")

	// ErrServiceUnavailable marks a transient network or server failure;
	// the caller may retry with backoff.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrNotLinkedYet means the user has not consumed the pairing code yet.
	// Not an error from the caller's perspective; the poller keeps going.
	ErrNotLinkedYet = errors.New("not linked yet")

	// ErrCodeExpired is terminal: the pairing code is dead and the caller
	// must register again.
	ErrCodeExpired = errors.New("pairing code expired")

	// ErrPollTimeout is terminal: the maximum wait elapsed without linkage.
	ErrPollTimeout = errors.New("pairing timed out")

	// ErrPollFailed is terminal: repeated server errors exhausted the
	// poller's failure budget.
	ErrPollFailed = errors.New("pairing failed")

	// ErrNotPaired means no device token is cached; the device must pair
	// before making authorized calls.
	ErrNotPaired = errors.New("device not paired")

	// ErrAuthFailed means the token was rejected and a refresh did not
	// help; the device must re-pair.
	ErrAuthFailed = errors.New("authentication failed")
)
