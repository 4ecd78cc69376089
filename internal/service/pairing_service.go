package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	"github.com/ducminhle/gridnote/internal/model"
	"github.com/google/uuid"
)

// codeAlphabet excludes 0/O/1/I so codes survive being read aloud or retyped
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const defaultDeviceName = "Clipper"

// RegistrationStore is the persistence contract for pending registrations.
// Consume must be atomic: a pairing code is exchanged at most once.
type RegistrationStore interface {
	Create(ctx context.Context, reg *model.DeviceRegistration, ttl time.Duration) error
	FindByDeviceID(ctx context.Context, deviceID uuid.UUID) (*model.DeviceRegistration, error)
	FindByCode(ctx context.Context, code string) (*model.DeviceRegistration, error)
	SaveLinked(ctx context.Context, reg *model.DeviceRegistration) error
	Consume(ctx context.Context, deviceID uuid.UUID) (*model.DeviceRegistration, error)
}

// LinkNotifier tells the account owner that a new device gained access
type LinkNotifier interface {
	SendDeviceLinked(toEmail, deviceName string) error
}

// PairingService drives the asynchronous linking flow: register a device,
// let the user consume the code on the session-authenticated surface, then
// hand out a token when the device polls the exchange endpoint.
type PairingService struct {
	regs     RegistrationStore
	tokens   *TokenService
	notifier LinkNotifier
	codeTTL  time.Duration
	codeLen  int
}

func NewPairingService(regs RegistrationStore, tokens *TokenService, notifier LinkNotifier, codeTTL time.Duration, codeLen int) *PairingService {
	return &PairingService{
		regs:     regs,
		tokens:   tokens,
		notifier: notifier,
		codeTTL:  codeTTL,
		codeLen:  codeLen,
	}
}

// Register creates a pending registration for a device fingerprint and
// returns a fresh pairing code. A device registering again simply orphans any
// prior outstanding code; the old code ages out on its own TTL.
func (s *PairingService) Register(ctx context.Context, fingerprint string) (*model.DeviceRegistration, error) {
	if fingerprint == "" {
		return nil, ErrInvalidInput
	}

	code, err := generatePairingCode(s.codeLen)
	if err != nil {
		return nil, fmt.Errorf("generate pairing code: %w", err)
	}

	now := time.Now()
	reg := &model.DeviceRegistration{
		DeviceID:    uuid.New(),
		Fingerprint: fingerprint,
		Code:        code,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.codeTTL),
	}
	if err := s.regs.Create(ctx, reg, s.codeTTL); err != nil {
		return nil, fmt.Errorf("store registration: %w", err)
	}
	return reg, nil
}

// Link consumes a pairing code on behalf of a session-authenticated user,
// binding the pending registration to their account. Unknown, expired and
// already-linked codes all fail the same way.
func (s *PairingService) Link(ctx context.Context, userID uuid.UUID, userEmail, code, deviceName string) error {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if normalized == "" {
		return ErrInvalidInput
	}

	reg, err := s.regs.FindByCode(ctx, normalized)
	if err != nil {
		return fmt.Errorf("lookup pairing code: %w", err)
	}
	if reg == nil || reg.IsExpired() || reg.IsLinked() {
		return ErrRegistrationNotFound
	}

	if deviceName == "" {
		deviceName = defaultDeviceName
	}

	now := time.Now()
	reg.LinkedAt = &now
	reg.UserID = &userID
	reg.UserEmail = userEmail
	reg.DeviceName = deviceName
	if err := s.regs.SaveLinked(ctx, reg); err != nil {
		return fmt.Errorf("save linked registration: %w", err)
	}
	return nil
}

// Exchange trades a device id plus pairing code for a token once the user has
// linked the device. Before linkage it returns ErrNotLinked and is safe to
// call repeatedly; after the first successful exchange the registration is
// consumed and every later call fails as expired.
func (s *PairingService) Exchange(ctx context.Context, deviceID uuid.UUID, code string) (*model.TokenResponse, error) {
	reg, err := s.regs.FindByDeviceID(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("lookup registration: %w", err)
	}
	// Unknown covers expired (TTL removal) and already-consumed alike; the
	// device cannot probe which it was.
	if reg == nil || reg.Code != strings.ToUpper(strings.TrimSpace(code)) || reg.IsExpired() {
		return nil, ErrCodeExpired
	}
	if !reg.IsLinked() {
		return nil, ErrNotLinked
	}

	// Single use: only the caller that wins the consume gets a token.
	consumed, err := s.regs.Consume(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("consume registration: %w", err)
	}
	if consumed == nil || !consumed.IsLinked() {
		return nil, ErrCodeExpired
	}

	resp, err := s.tokens.Issue(*consumed.UserID, consumed.UserEmail, consumed.DeviceID, consumed.DeviceName)
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		// Notify asynchronously; pairing must not block on SMTP.
		go func(email, name string) {
			if err := s.notifier.SendDeviceLinked(email, name); err != nil {
				log.Printf("⚠️  Failed to send device-linked email to %s: %v", email, err)
			}
		}(consumed.UserEmail, consumed.DeviceName)
	}

	return resp, nil
}

// generatePairingCode returns a cryptographically random human-enterable code
func generatePairingCode(length int) (string, error) {
	var sb strings.Builder
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeAlphabet))))
		if err != nil {
			return "", err
		}
		sb.WriteByte(codeAlphabet[n.Int64()])
	}
	return sb.String(), nil
}
