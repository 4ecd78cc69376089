package service

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ducminhle/gridnote/internal/model"
	"github.com/google/uuid"
)

const (
	tokenBytes = 32 // 256 bits of randomness per token

	// refreshGrace is the window inside which a just-expired token may still
	// be refreshed, and for which a superseded token remains valid after its
	// replacement is issued.
	refreshGrace = 30 * time.Second
)

// TokenStore is the persistence contract for device token records. The
// issuer only ever needs these narrow operations, which keeps it testable
// without a live database and swappable across backends.
type TokenStore interface {
	Insert(token *model.DeviceToken) error
	FindByHash(hash string) (*model.DeviceToken, error)
	Touch(id uuid.UUID, at time.Time) error
	Supersede(id uuid.UUID, until time.Time) error
	Revoke(userID, deviceID uuid.UUID) error
	ListByUser(userID uuid.UUID) ([]model.DeviceToken, error)
	Rename(userID, deviceID uuid.UUID, name string) (int64, error)
	DeleteExpired() error
}

// UserDirectory maps a token's stored user id back to the canonical account
// row. A token whose account no longer exists is treated as invalid.
type UserDirectory interface {
	FindByID(id uuid.UUID) (*model.User, error)
}

// TokenService is the secure token issuer. It generates opaque device tokens,
// stores only their one-way hash, and validates bearers on every request.
type TokenService struct {
	store    TokenStore
	users    UserDirectory
	tokenTTL time.Duration
}

func NewTokenService(store TokenStore, users UserDirectory, tokenTTL time.Duration) *TokenService {
	return &TokenService{
		store:    store,
		users:    users,
		tokenTTL: tokenTTL,
	}
}

// Issue generates a fresh opaque token for a linked device and persists its
// hash. The plaintext is returned to the caller exactly once and never again.
func (s *TokenService) Issue(userID uuid.UUID, userEmail string, deviceID uuid.UUID, deviceName string) (*model.TokenResponse, error) {
	token, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	now := time.Now()
	record := &model.DeviceToken{
		DeviceID:   deviceID,
		UserID:     userID,
		UserEmail:  userEmail,
		DeviceName: deviceName,
		TokenHash:  hashToken(token),
		IssuedAt:   now,
		ExpiresAt:  now.Add(s.tokenTTL),
	}
	if err := s.store.Insert(record); err != nil {
		return nil, fmt.Errorf("store token: %w", err)
	}

	return &model.TokenResponse{
		Token:     token,
		ExpiresAt: record.ExpiresAt,
	}, nil
}

// ValidateAndTouch resolves a bearer token to its principal. Unknown, revoked
// and expired all collapse into the same ErrTokenInvalid outcome. On success
// the record's last_used_at is updated (last write wins under concurrency)
// and the stored user id is mapped through the user directory to the
// canonical account.
func (s *TokenService) ValidateAndTouch(token string) (*model.Principal, error) {
	record, err := s.store.FindByHash(hashToken(token))
	if err != nil {
		return nil, fmt.Errorf("lookup token: %w", err)
	}
	if record == nil || !record.IsValid() {
		return nil, ErrTokenInvalid
	}

	user, err := s.users.FindByID(record.UserID)
	if err != nil {
		return nil, fmt.Errorf("lookup token owner: %w", err)
	}
	if user == nil {
		return nil, ErrTokenInvalid
	}

	if err := s.store.Touch(record.ID, time.Now()); err != nil {
		// A lost touch only skews the "last used" display; don't fail auth.
		log.Printf("⚠️  Failed to touch device token %s: %v", record.ID, err)
	}

	deviceID := record.DeviceID
	return &model.Principal{
		UserID:     user.ID,
		Email:      user.Email,
		DeviceID:   &deviceID,
		DeviceName: record.DeviceName,
		Source:     model.PrincipalSourceDeviceToken,
	}, nil
}

// Refresh exchanges a current (or just-expired within grace) token for a new
// one bound to the same user and device. The old record is capped to a short
// overlap window rather than being invalidated synchronously, so two
// near-simultaneous refreshes both keep working.
func (s *TokenService) Refresh(token string) (*model.TokenResponse, error) {
	record, err := s.store.FindByHash(hashToken(token))
	if err != nil {
		return nil, fmt.Errorf("lookup token: %w", err)
	}
	if record == nil || record.Revoked || time.Since(record.ExpiresAt) > refreshGrace {
		return nil, ErrTokenInvalid
	}

	resp, err := s.Issue(record.UserID, record.UserEmail, record.DeviceID, record.DeviceName)
	if err != nil {
		return nil, err
	}

	if err := s.store.Supersede(record.ID, time.Now().Add(refreshGrace)); err != nil {
		log.Printf("⚠️  Failed to supersede device token %s: %v", record.ID, err)
	}
	return resp, nil
}

// Revoke marks all of a device's tokens revoked. Idempotent; scoped to the
// owning user so a foreign device id is a no-op.
func (s *TokenService) Revoke(userID, deviceID uuid.UUID) error {
	return s.store.Revoke(userID, deviceID)
}

// ListDevices returns the caller's linked devices
func (s *TokenService) ListDevices(userID uuid.UUID) ([]model.DeviceResponse, error) {
	tokens, err := s.store.ListByUser(userID)
	if err != nil {
		return nil, err
	}

	devices := make([]model.DeviceResponse, 0, len(tokens))
	seen := make(map[uuid.UUID]bool)
	for _, t := range tokens {
		// Newest record per device is authoritative; a superseded record in
		// its overlap window would otherwise show up twice.
		if seen[t.DeviceID] {
			continue
		}
		seen[t.DeviceID] = true
		devices = append(devices, t.ToResponse())
	}
	return devices, nil
}

// RenameDevice updates a device's display name. A device owned by another
// user fails exactly like a device that does not exist.
func (s *TokenService) RenameDevice(userID, deviceID uuid.UUID, name string) error {
	if name == "" {
		return ErrInvalidInput
	}
	affected, err := s.store.Rename(userID, deviceID, name)
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// CleanupExpired removes token records past their expiry (periodic sweep)
func (s *TokenService) CleanupExpired() error {
	return s.store.DeleteExpired()
}

// generateToken produces a URL-safe opaque secret with no embedded structure
func generateToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// hashToken is the one-way function applied before any token touches storage
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// IsTokenInvalid reports whether err is the uniform invalid-token outcome
func IsTokenInvalid(err error) bool {
	return errors.Is(err, ErrTokenInvalid)
}
