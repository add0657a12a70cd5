package license

import (
	"context"
	"fmt"
	"time"

	"license-server/internal/database"
)

// DashboardStats is the fleet-wide read-only summary. Key counts follow
// stored status, so a past-due key that has not been swept still counts as
// active and can appear in ExpiringKeys3Days.
type DashboardStats struct {
	TotalResellers    int `json:"total_resellers"`
	TotalActiveKeys   int `json:"total_active_keys"`
	TotalExpiredKeys  int `json:"total_expired_keys"`
	TotalLoginsToday  int `json:"total_logins_today"`
	ExpiringKeys3Days int `json:"expiring_keys_3_days"`
}

// DashboardStats recomputes the summary from current state on every call.
// It has no side effects and no cached materialized view behind it.
func (s *Service) DashboardStats(ctx context.Context) (*DashboardStats, error) {
	now := s.clock.Now()

	resellers, err := s.store.CountActiveResellers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count resellers: %w", err)
	}

	active, err := s.store.CountLicenseKeysByStatus(ctx, database.StatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to count active keys: %w", err)
	}

	expired, err := s.store.CountLicenseKeysByStatus(ctx, database.StatusExpired)
	if err != nil {
		return nil, fmt.Errorf("failed to count expired keys: %w", err)
	}

	// Logins are counted within the current UTC calendar day.
	utcNow := now.UTC()
	dayStart := time.Date(utcNow.Year(), utcNow.Month(), utcNow.Day(), 0, 0, 0, 0, time.UTC)
	logins, err := s.store.CountLoginsSince(ctx, dayStart)
	if err != nil {
		return nil, fmt.Errorf("failed to count logins: %w", err)
	}

	expiring, err := s.store.CountExpiringKeys(ctx, now.Add(expiringSoonDays*24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("failed to count expiring keys: %w", err)
	}

	return &DashboardStats{
		TotalResellers:    resellers,
		TotalActiveKeys:   active,
		TotalExpiredKeys:  expired,
		TotalLoginsToday:  logins,
		ExpiringKeys3Days: expiring,
	}, nil
}
