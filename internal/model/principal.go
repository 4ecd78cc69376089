package model

import "github.com/google/uuid"

// PrincipalSource tells how the caller authenticated
type PrincipalSource string

const (
	PrincipalSourceDeviceToken PrincipalSource = "device-token"
	PrincipalSourceSession     PrincipalSource = "session"
)

// Principal is the resolved identity of an inbound request. Both sources are
// equally authoritative for "who is the caller"; device-token principals
// additionally carry the calling device.
type Principal struct {
	UserID     uuid.UUID       `json:"user_id"`
	Email      string          `json:"email"`
	DeviceID   *uuid.UUID      `json:"device_id,omitempty"`
	DeviceName string          `json:"device_name,omitempty"`
	Source     PrincipalSource `json:"source"`
}

// IsSession reports whether the principal came from a browser session cookie
func (p *Principal) IsSession() bool {
	return p.Source == PrincipalSourceSession
}
