package license

import (
	"context"
	"fmt"
	"time"

	"license-server/internal/database"
)

// LicenseDetails is the activation result returned to the client
type LicenseDetails struct {
	Key             string                 `json:"key"`
	GameID          string                 `json:"game_id"`
	GameName        string                 `json:"game_name"`
	Status          database.LicenseStatus `json:"status"`
	CustomerName    string                 `json:"customer_name"`
	DeviceID        string                 `json:"device_id"`
	ExpiresAt       time.Time              `json:"expires_at"`
	LastUsedAt      *time.Time             `json:"last_used_at,omitempty"`
	DaysUntilExpiry int                    `json:"days_until_expiry"`
	IsExpiringSoon  bool                   `json:"is_expiring_soon"`
}

// RequestMeta carries optional client metadata recorded on audit rows.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

// Activate executes the device-lock activation protocol. Checks run in a
// fixed order and the first failure wins: unknown key, derived expiry,
// stored suspension, then the device lock. Success binds the device, stamps
// last_used_at and updated_at, and appends one activation audit row, all in
// a single transaction. Re-activation from the same device is permitted and
// idempotent apart from the refreshed timestamps.
func (s *Service) Activate(ctx context.Context, rawKey, deviceID string, meta RequestMeta) (*LicenseDetails, error) {
	lk, err := s.store.GetLicenseKeyByKey(ctx, rawKey)
	if err != nil {
		return nil, fmt.Errorf("failed to look up license key: %w", err)
	}
	if lk == nil {
		return nil, ErrKeyNotFound
	}

	now := s.clock.Now()

	if IsPastDue(lk.ExpiresAt, now) {
		s.log.Info().Str("key_id", lk.ID).Str("device_id", deviceID).Msg("activation denied: expired")
		return nil, ErrExpired
	}
	if lk.Status == database.StatusSuspended {
		s.log.Info().Str("key_id", lk.ID).Str("device_id", deviceID).Msg("activation denied: suspended")
		return nil, ErrSuspended
	}
	if lk.DeviceID != "" && lk.DeviceID != deviceID {
		s.log.Info().Str("key_id", lk.ID).Str("device_id", deviceID).Msg("activation denied: device locked")
		return nil, ErrDeviceLocked
	}

	claimed, err := s.store.ClaimDevice(ctx, lk.ID, deviceID, now, &database.ActivityLog{
		LicenseKeyID: lk.ID,
		DeviceID:     deviceID,
		Action:       database.ActionActivation,
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
		CreatedAt:    now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to activate license key: %w", err)
	}
	if !claimed {
		// A concurrent write committed between the read and the claim:
		// either another device took the lock or an admin suspended the key.
		if current, rerr := s.store.GetLicenseKeyByID(ctx, lk.ID); rerr == nil && current != nil && current.Status == database.StatusSuspended {
			s.log.Info().Str("key_id", lk.ID).Str("device_id", deviceID).Msg("activation lost race to suspension")
			return nil, ErrSuspended
		}
		s.log.Info().Str("key_id", lk.ID).Str("device_id", deviceID).Msg("activation lost device race")
		return nil, ErrDeviceLocked
	}

	lk.DeviceID = deviceID
	lk.Status = database.StatusActive
	lk.LastUsedAt = &now
	lk.UpdatedAt = &now

	s.log.Info().Str("key_id", lk.ID).Str("device_id", deviceID).Msg("license key activated")

	return s.details(ctx, lk, now)
}

// ResetDeviceLock clears a key's device lock on behalf of an administrator
// and appends a device_reset audit row carrying the admin sentinel device
// id. The acting admin account must exist; the stored status is not touched.
func (s *Service) ResetDeviceLock(ctx context.Context, keyID, adminUserID string) error {
	lk, err := s.store.GetLicenseKeyByID(ctx, keyID)
	if err != nil {
		return fmt.Errorf("failed to look up license key: %w", err)
	}
	if lk == nil {
		return ErrKeyNotFound
	}

	admin, err := s.store.GetUserByID(ctx, adminUserID)
	if err != nil {
		return fmt.Errorf("failed to look up admin user: %w", err)
	}
	if admin == nil {
		return ErrUserNotFound
	}

	now := s.clock.Now()
	cleared, err := s.store.ClearDevice(ctx, lk.ID, now, &database.ActivityLog{
		LicenseKeyID: lk.ID,
		DeviceID:     database.DeviceAdminReset,
		Action:       database.ActionDeviceReset,
		CreatedAt:    now,
	})
	if err != nil {
		return fmt.Errorf("failed to reset device lock: %w", err)
	}
	if !cleared {
		return ErrKeyNotFound
	}

	s.log.Info().
		Str("key_id", lk.ID).
		Str("admin_user_id", adminUserID).
		Msg("device lock reset by administrator")

	return nil
}

// Details returns the evaluated view of a key by its key string without any
// side effects.
func (s *Service) Details(ctx context.Context, rawKey string) (*LicenseDetails, error) {
	lk, err := s.store.GetLicenseKeyByKey(ctx, rawKey)
	if err != nil {
		return nil, fmt.Errorf("failed to look up license key: %w", err)
	}
	if lk == nil {
		return nil, ErrKeyNotFound
	}
	return s.details(ctx, lk, s.clock.Now())
}

func (s *Service) details(ctx context.Context, lk *database.LicenseKey, now time.Time) (*LicenseDetails, error) {
	gameName := ""
	game, err := s.store.GetGameByID(ctx, lk.GameID)
	if err != nil {
		s.log.Warn().Err(err).Str("key_id", lk.ID).Str("game_id", lk.GameID).Msg("failed to resolve game name")
	} else if game != nil {
		gameName = game.Name
	}

	return &LicenseDetails{
		Key:             lk.Key,
		GameID:          lk.GameID,
		GameName:        gameName,
		Status:          lk.Status,
		CustomerName:    lk.CustomerName,
		DeviceID:        lk.DeviceID,
		ExpiresAt:       lk.ExpiresAt,
		LastUsedAt:      lk.LastUsedAt,
		DaysUntilExpiry: DaysUntilExpiry(lk.ExpiresAt, now),
		IsExpiringSoon:  IsExpiringSoon(lk.ExpiresAt, now),
	}, nil
}
