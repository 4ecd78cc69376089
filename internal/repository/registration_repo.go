package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ducminhle/gridnote/internal/model"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	regDeviceKeyPrefix = "pairing:device:"
	regCodeKeyPrefix   = "pairing:code:"
)

// RegistrationRepository stores pending device registrations in Redis.
// Expiry of the pairing code is enforced by the key TTL; a registration that
// has aged out simply no longer exists.
type RegistrationRepository struct {
	rdb *redis.Client
}

func NewRegistrationRepository(rdb *redis.Client) *RegistrationRepository {
	return &RegistrationRepository{rdb: rdb}
}

// Create stores a registration under both its device id and its pairing code,
// with TTLs matching the code expiry.
func (r *RegistrationRepository) Create(ctx context.Context, reg *model.DeviceRegistration, ttl time.Duration) error {
	payload, err := json.Marshal(reg)
	if err != nil {
		return fmt.Errorf("marshal registration: %w", err)
	}
	if err := r.rdb.Set(ctx, regDeviceKeyPrefix+reg.DeviceID.String(), payload, ttl).Err(); err != nil {
		return fmt.Errorf("store registration: %w", err)
	}
	if err := r.rdb.Set(ctx, regCodeKeyPrefix+reg.Code, reg.DeviceID.String(), ttl).Err(); err != nil {
		return fmt.Errorf("store pairing code: %w", err)
	}
	return nil
}

// FindByDeviceID returns the registration for a device, or (nil, nil) if none
func (r *RegistrationRepository) FindByDeviceID(ctx context.Context, deviceID uuid.UUID) (*model.DeviceRegistration, error) {
	payload, err := r.rdb.Get(ctx, regDeviceKeyPrefix+deviceID.String()).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	return unmarshalRegistration(payload)
}

// FindByCode resolves a pairing code to its registration, or (nil, nil)
func (r *RegistrationRepository) FindByCode(ctx context.Context, code string) (*model.DeviceRegistration, error) {
	deviceID, err := r.rdb.Get(ctx, regCodeKeyPrefix+code).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	id, err := uuid.Parse(deviceID)
	if err != nil {
		return nil, fmt.Errorf("corrupt pairing code entry: %w", err)
	}
	return r.FindByDeviceID(ctx, id)
}

// SaveLinked overwrites the registration after linking, keeping the original TTL
func (r *RegistrationRepository) SaveLinked(ctx context.Context, reg *model.DeviceRegistration) error {
	payload, err := json.Marshal(reg)
	if err != nil {
		return fmt.Errorf("marshal registration: %w", err)
	}
	return r.rdb.Set(ctx, regDeviceKeyPrefix+reg.DeviceID.String(), payload, redis.KeepTTL).Err()
}

// Consume atomically removes and returns the registration, guaranteeing that a
// pairing code is exchanged at most once. Returns (nil, nil) if it was already
// consumed or has expired.
func (r *RegistrationRepository) Consume(ctx context.Context, deviceID uuid.UUID) (*model.DeviceRegistration, error) {
	payload, err := r.rdb.GetDel(ctx, regDeviceKeyPrefix+deviceID.String()).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	reg, err := unmarshalRegistration(payload)
	if err != nil {
		return nil, err
	}
	_ = r.rdb.Del(ctx, regCodeKeyPrefix+reg.Code).Err()
	return reg, nil
}

func unmarshalRegistration(payload []byte) (*model.DeviceRegistration, error) {
	var reg model.DeviceRegistration
	if err := json.Unmarshal(payload, &reg); err != nil {
		return nil, fmt.Errorf("unmarshal registration: %w", err)
	}
	return &reg, nil
}
