package license

import (
	"context"
	"fmt"
)

// ResellerStats reports a reseller's issuance totals and quota usage. Quota
// is reported here, never enforced: the issuance paths do not consult it.
type ResellerStats struct {
	TotalKeys      int `json:"total_keys"`
	ActiveKeys     int `json:"active_keys"`
	ExpiredKeys    int `json:"expired_keys"`
	QuotaUsed      int `json:"quota_used"`
	QuotaRemaining int `json:"quota_remaining"`
}

// ResellerStats computes quota usage from historical key counts. Every key
// ever issued counts against quota permanently; keys are never returned to
// the pool. A reseller with no configured quota has zero remaining capacity,
// not unlimited capacity.
func (s *Service) ResellerStats(ctx context.Context, resellerID string) (*ResellerStats, error) {
	user, err := s.store.GetUserByID(ctx, resellerID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up reseller: %w", err)
	}
	if user == nil {
		return nil, ErrResellerNotFound
	}

	total, active, expired, err := s.store.ResellerKeyCounts(ctx, resellerID)
	if err != nil {
		return nil, fmt.Errorf("failed to count reseller keys: %w", err)
	}

	quota := 0
	if user.Quota != nil {
		quota = *user.Quota
	}

	remaining := quota - total
	if remaining < 0 {
		remaining = 0
	}

	return &ResellerStats{
		TotalKeys:      total,
		ActiveKeys:     active,
		ExpiredKeys:    expired,
		QuotaUsed:      total,
		QuotaRemaining: remaining,
	}, nil
}
