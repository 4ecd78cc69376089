package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ducminhle/gridnote/internal/model"
	"github.com/google/uuid"
)

type memoryRegStore struct {
	mu     sync.Mutex
	byID   map[uuid.UUID]*model.DeviceRegistration
	byCode map[string]uuid.UUID
}

func newMemoryRegStore() *memoryRegStore {
	return &memoryRegStore{
		byID:   make(map[uuid.UUID]*model.DeviceRegistration),
		byCode: make(map[string]uuid.UUID),
	}
}

func (m *memoryRegStore) Create(_ context.Context, reg *model.DeviceRegistration, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *reg
	m.byID[reg.DeviceID] = &copied
	m.byCode[reg.Code] = reg.DeviceID
	return nil
}

func (m *memoryRegStore) FindByDeviceID(_ context.Context, deviceID uuid.UUID) (*model.DeviceRegistration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if reg, ok := m.byID[deviceID]; ok {
		copied := *reg
		return &copied, nil
	}
	return nil, nil
}

func (m *memoryRegStore) FindByCode(ctx context.Context, code string) (*model.DeviceRegistration, error) {
	m.mu.Lock()
	deviceID, ok := m.byCode[code]
	m.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return m.FindByDeviceID(ctx, deviceID)
}

func (m *memoryRegStore) SaveLinked(_ context.Context, reg *model.DeviceRegistration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *reg
	m.byID[reg.DeviceID] = &copied
	return nil
}

func (m *memoryRegStore) Consume(_ context.Context, deviceID uuid.UUID) (*model.DeviceRegistration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	reg, ok := m.byID[deviceID]
	if !ok {
		return nil, nil
	}
	delete(m.byID, deviceID)
	delete(m.byCode, reg.Code)
	return reg, nil
}

// expire backdates a registration, simulating TTL about to fire
func (m *memoryRegStore) expire(deviceID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if reg, ok := m.byID[deviceID]; ok {
		reg.ExpiresAt = time.Now().Add(-time.Second)
	}
}

type captureNotifier struct {
	calls chan [2]string
}

func newCaptureNotifier() *captureNotifier {
	return &captureNotifier{calls: make(chan [2]string, 4)}
}

func (n *captureNotifier) SendDeviceLinked(toEmail, deviceName string) error {
	n.calls <- [2]string{toEmail, deviceName}
	return nil
}

func newTestPairingService(t *testing.T) (*PairingService, *memoryRegStore, *memoryUsers, *captureNotifier) {
	t.Helper()
	regs := newMemoryRegStore()
	users := newMemoryUsers()
	notifier := newCaptureNotifier()
	tokens := NewTokenService(newMemoryTokenStore(), users, time.Hour)
	svc := NewPairingService(regs, tokens, notifier, 10*time.Minute, 8)
	return svc, regs, users, notifier
}

func TestRegisterIssuesPairingCode(t *testing.T) {
	svc, _, _, _ := newTestPairingService(t)

	reg, err := svc.Register(context.Background(), "fp-1234")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if reg.DeviceID == uuid.Nil {
		t.Error("expected a device id")
	}
	if len(reg.Code) != 8 {
		t.Errorf("len(code) = %d, want 8", len(reg.Code))
	}
	for _, r := range reg.Code {
		if !strings.ContainsRune(codeAlphabet, r) {
			t.Errorf("code contains %q outside the alphabet", r)
		}
	}
	if !reg.ExpiresAt.After(time.Now()) {
		t.Error("code must never be issued already expired")
	}
}

func TestRegisterEmptyFingerprint(t *testing.T) {
	svc, _, _, _ := newTestPairingService(t)
	if _, err := svc.Register(context.Background(), ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestExchangeBeforeLink(t *testing.T) {
	svc, _, _, _ := newTestPairingService(t)
	ctx := context.Background()

	reg, err := svc.Register(ctx, "fp")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	// Safe to call repeatedly; never a token before linkage.
	for i := 0; i < 3; i++ {
		if _, err := svc.Exchange(ctx, reg.DeviceID, reg.Code); !errors.Is(err, ErrNotLinked) {
			t.Fatalf("attempt %d: expected ErrNotLinked, got %v", i, err)
		}
	}
}

func TestLinkThenExchange(t *testing.T) {
	svc, _, users, notifier := newTestPairingService(t)
	ctx := context.Background()
	user := users.add("alice@gridnote.local")

	reg, err := svc.Register(ctx, "fp")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := svc.Link(ctx, user.ID, user.Email, reg.Code, "Laptop"); err != nil {
		t.Fatalf("Link: %v", err)
	}

	resp, err := svc.Exchange(ctx, reg.DeviceID, reg.Code)
	if err != nil {
		t.Fatalf("Exchange after link: %v", err)
	}
	if resp.Token == "" || !resp.ExpiresAt.After(time.Now()) {
		t.Fatal("expected a fresh token with future expiry")
	}

	select {
	case call := <-notifier.calls:
		if call[0] != user.Email || call[1] != "Laptop" {
			t.Errorf("notify = %v", call)
		}
	case <-time.After(time.Second):
		t.Error("expected a device-linked notification")
	}

	// Single use: the code can never be exchanged again.
	if _, err := svc.Exchange(ctx, reg.DeviceID, reg.Code); !errors.Is(err, ErrCodeExpired) {
		t.Fatalf("expected ErrCodeExpired on second exchange, got %v", err)
	}
}

func TestExchangeExpiredCode(t *testing.T) {
	svc, regs, users, _ := newTestPairingService(t)
	ctx := context.Background()
	user := users.add("alice@gridnote.local")

	reg, err := svc.Register(ctx, "fp")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	// The user linked moments too late: the code is already past expiry.
	if err := svc.Link(ctx, user.ID, user.Email, reg.Code, ""); err != nil {
		t.Fatalf("Link: %v", err)
	}
	regs.expire(reg.DeviceID)

	if _, err := svc.Exchange(ctx, reg.DeviceID, reg.Code); !errors.Is(err, ErrCodeExpired) {
		t.Fatalf("expected ErrCodeExpired, got %v", err)
	}
}

func TestExchangeUnknownDeviceOrWrongCode(t *testing.T) {
	svc, _, _, _ := newTestPairingService(t)
	ctx := context.Background()

	if _, err := svc.Exchange(ctx, uuid.New(), "NOPE1234"); !errors.Is(err, ErrCodeExpired) {
		t.Fatalf("unknown device: expected ErrCodeExpired, got %v", err)
	}

	reg, _ := svc.Register(ctx, "fp")
	if _, err := svc.Exchange(ctx, reg.DeviceID, "WRONGCOD"); !errors.Is(err, ErrCodeExpired) {
		t.Fatalf("wrong code: expected ErrCodeExpired, got %v", err)
	}
}

func TestLinkUnknownOrReusedCode(t *testing.T) {
	svc, _, users, _ := newTestPairingService(t)
	ctx := context.Background()
	alice := users.add("alice@gridnote.local")
	bob := users.add("bob@gridnote.local")

	if err := svc.Link(ctx, alice.ID, alice.Email, "NOSUCHCO", ""); !errors.Is(err, ErrRegistrationNotFound) {
		t.Fatalf("unknown code: expected ErrRegistrationNotFound, got %v", err)
	}

	reg, _ := svc.Register(ctx, "fp")
	if err := svc.Link(ctx, alice.ID, alice.Email, reg.Code, ""); err != nil {
		t.Fatalf("Link: %v", err)
	}
	// A second user cannot take over an already-linked code.
	if err := svc.Link(ctx, bob.ID, bob.Email, reg.Code, ""); !errors.Is(err, ErrRegistrationNotFound) {
		t.Fatalf("reused code: expected ErrRegistrationNotFound, got %v", err)
	}
}

func TestLinkNormalizesCode(t *testing.T) {
	svc, _, users, _ := newTestPairingService(t)
	ctx := context.Background()
	user := users.add("alice@gridnote.local")

	reg, _ := svc.Register(ctx, "fp")
	typed := "  " + strings.ToLower(reg.Code) + " "
	if err := svc.Link(ctx, user.ID, user.Email, typed, ""); err != nil {
		t.Fatalf("Link with lowercased, padded code: %v", err)
	}
}

func TestLinkDefaultsDeviceName(t *testing.T) {
	svc, regs, users, _ := newTestPairingService(t)
	ctx := context.Background()
	user := users.add("alice@gridnote.local")

	reg, _ := svc.Register(ctx, "fp")
	if err := svc.Link(ctx, user.ID, user.Email, reg.Code, ""); err != nil {
		t.Fatalf("Link: %v", err)
	}
	linked, _ := regs.FindByDeviceID(ctx, reg.DeviceID)
	if linked.DeviceName != defaultDeviceName {
		t.Errorf("DeviceName = %q, want %q", linked.DeviceName, defaultDeviceName)
	}
}
