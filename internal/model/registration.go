package model

import (
	"time"

	"github.com/google/uuid"
)

// DeviceRegistration is a pending pairing attempt. It lives in Redis under the
// pairing-code TTL and is consumed (deleted) on the first successful exchange.
type DeviceRegistration struct {
	DeviceID    uuid.UUID  `json:"device_id"`
	Fingerprint string     `json:"fingerprint"`
	Code        string     `json:"code"`
	ExpiresAt   time.Time  `json:"expires_at"`
	CreatedAt   time.Time  `json:"created_at"`
	LinkedAt    *time.Time `json:"linked_at,omitempty"`
	UserID      *uuid.UUID `json:"user_id,omitempty"`
	UserEmail   string     `json:"user_email,omitempty"`
	DeviceName  string     `json:"device_name,omitempty"`
}

// IsExpired checks if the pairing code has expired
func (r *DeviceRegistration) IsExpired() bool {
	return !time.Now().Before(r.ExpiresAt)
}

// IsLinked checks if a user has already consumed the pairing code on the web surface
func (r *DeviceRegistration) IsLinked() bool {
	return r.LinkedAt != nil && r.UserID != nil
}
