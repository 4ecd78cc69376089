package model

import (
	"time"

	"github.com/google/uuid"
)

// ==================== Requests ====================

// RegisterDeviceRequest starts a pairing attempt for an installed client
type RegisterDeviceRequest struct {
	DeviceFingerprint string `json:"device_fingerprint" binding:"required"`
}

// ExchangeRequest trades a device id plus pairing code for a token once linked
type ExchangeRequest struct {
	DeviceID uuid.UUID `json:"deviceId" binding:"required"`
	Code     string    `json:"code" binding:"required"`
}

// LinkDeviceRequest consumes a pairing code on the session-authenticated surface
type LinkDeviceRequest struct {
	Code       string `json:"code" binding:"required"`
	DeviceName string `json:"device_name"`
}

// RenameDeviceRequest updates the display name of a linked device
type RenameDeviceRequest struct {
	Name string `json:"name" binding:"required,max=100"`
}

// ==================== Responses ====================

// RegisterDeviceResponse carries the short-lived human-enterable pairing code
type RegisterDeviceResponse struct {
	DeviceID  uuid.UUID `json:"deviceId"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// TokenResponse is returned exactly once per issuance or refresh; the token
// value never appears in any other response or in server logs.
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// DeviceResponse is one entry in the device-management listing
type DeviceResponse struct {
	DeviceID   uuid.UUID  `json:"device_id"`
	DeviceName string     `json:"device_name"`
	IssuedAt   time.Time  `json:"issued_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	LastUsedAt *time.Time `json:"last_used_at"`
}

// MessageResponse is a generic success message
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse is the standard error shape
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
