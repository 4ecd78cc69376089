package model

import (
	"time"

	"github.com/google/uuid"
)

// DeviceToken is the server-side record of an issued device token. Only the
// SHA-256 hash of the token is persisted; the plaintext is returned to the
// device exactly once, at issuance or refresh time.
type DeviceToken struct {
	ID         uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	DeviceID   uuid.UUID  `json:"device_id" gorm:"type:uuid;not null;index"`
	UserID     uuid.UUID  `json:"user_id" gorm:"type:uuid;not null;index"`
	UserEmail  string     `json:"user_email" gorm:"size:255;not null"`
	DeviceName string     `json:"device_name" gorm:"size:100;default:'Clipper'"`
	TokenHash  string     `json:"-" gorm:"size:64;not null;uniqueIndex"`
	IssuedAt   time.Time  `json:"issued_at" gorm:"not null"`
	ExpiresAt  time.Time  `json:"expires_at" gorm:"not null;index"`
	LastUsedAt *time.Time `json:"last_used_at"` // NULL = never used
	Revoked    bool       `json:"revoked" gorm:"default:false"`

	// Relations
	User User `json:"-" gorm:"foreignKey:UserID"`
}

// IsExpired checks if the token has passed its hard expiry cutoff
func (t *DeviceToken) IsExpired() bool {
	return !time.Now().Before(t.ExpiresAt)
}

// IsValid checks if the token can still authenticate requests
func (t *DeviceToken) IsValid() bool {
	return !t.Revoked && !t.IsExpired()
}

// ToResponse converts DeviceToken to the device-management listing shape
func (t *DeviceToken) ToResponse() DeviceResponse {
	return DeviceResponse{
		DeviceID:   t.DeviceID,
		DeviceName: t.DeviceName,
		IssuedAt:   t.IssuedAt,
		ExpiresAt:  t.ExpiresAt,
		LastUsedAt: t.LastUsedAt,
	}
}
