package repository

import (
	"time"

	"github.com/ducminhle/gridnote/internal/model"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TokenRepository handles database operations for DeviceToken. Request-serving
// code never touches the table directly; everything goes through these
// narrowly-scoped methods.
type TokenRepository struct {
	db *gorm.DB
}

func NewTokenRepository(db *gorm.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// Insert persists a new token record (hash plus metadata, never the plaintext)
func (r *TokenRepository) Insert(token *model.DeviceToken) error {
	return r.db.Create(token).Error
}

// FindByHash looks up a token record by its SHA-256 hash, or (nil, nil) on miss
func (r *TokenRepository) FindByHash(hash string) (*model.DeviceToken, error) {
	var token model.DeviceToken
	err := r.db.Where("token_hash = ?", hash).First(&token).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &token, nil
}

// Touch updates last_used_at. Concurrent touches race benignly; last write wins.
func (r *TokenRepository) Touch(id uuid.UUID, at time.Time) error {
	return r.db.Model(&model.DeviceToken{}).
		Where("id = ?", id).
		Update("last_used_at", at).Error
}

// Supersede caps a record's expiry at the given time. Used on refresh so the
// old token stays valid only for a short overlap window.
func (r *TokenRepository) Supersede(id uuid.UUID, until time.Time) error {
	return r.db.Model(&model.DeviceToken{}).
		Where("id = ? AND expires_at > ?", id, until).
		Update("expires_at", until).Error
}

// Revoke marks all of a device's tokens revoked, scoped to the owning user.
// Idempotent: revoking an already-revoked or unknown device affects zero rows.
func (r *TokenRepository) Revoke(userID, deviceID uuid.UUID) error {
	return r.db.Model(&model.DeviceToken{}).
		Where("user_id = ? AND device_id = ?", userID, deviceID).
		Update("revoked", true).Error
}

// ListByUser returns the authoritative (non-revoked, non-expired) token record
// per device for a user, newest first.
func (r *TokenRepository) ListByUser(userID uuid.UUID) ([]model.DeviceToken, error) {
	var tokens []model.DeviceToken
	err := r.db.
		Where("user_id = ? AND revoked = false AND expires_at > ?", userID, time.Now()).
		Order("issued_at DESC").
		Find(&tokens).Error
	return tokens, err
}

// Rename updates a device's display name across its token records. The
// ownership check is part of the query itself: a foreign device_id matches
// zero rows and is indistinguishable from a device that does not exist.
func (r *TokenRepository) Rename(userID, deviceID uuid.UUID, name string) (int64, error) {
	res := r.db.Model(&model.DeviceToken{}).
		Where("user_id = ? AND device_id = ?", userID, deviceID).
		Update("device_name", name)
	return res.RowsAffected, res.Error
}

// DeleteExpired removes token records past their expiry (housekeeping)
func (r *TokenRepository) DeleteExpired() error {
	return r.db.
		Where("expires_at < ?", time.Now()).
		Delete(&model.DeviceToken{}).Error
}
