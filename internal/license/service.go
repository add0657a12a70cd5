// Package license implements the license key lifecycle and activation
// engine: key generation, the status state machine, the device-lock
// activation protocol, quota accounting, and the derived dashboards.
package license

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"license-server/internal/database"
	"license-server/internal/logging"
)

// Store is the repository capability the engine needs: point lookups,
// filtered counts, paginated listing, and atomic conditional updates.
// *database.Repository satisfies it.
type Store interface {
	KeyProber
	CreateLicenseKey(ctx context.Context, lk *database.LicenseKey) error
	GetLicenseKeyByID(ctx context.Context, id string) (*database.LicenseKey, error)
	GetLicenseKeyByKey(ctx context.Context, key string) (*database.LicenseKey, error)
	UpdateLicenseKey(ctx context.Context, lk *database.LicenseKey) error
	SearchLicenseKeys(ctx context.Context, filter database.LicenseKeyFilter) ([]database.LicenseKey, int, error)
	ListExpiringKeys(ctx context.Context, cutoff time.Time) ([]database.LicenseKey, error)
	ClaimDevice(ctx context.Context, keyID, deviceID string, now time.Time, log *database.ActivityLog) (bool, error)
	ClearDevice(ctx context.Context, keyID string, now time.Time, log *database.ActivityLog) (bool, error)
	SweepExpired(ctx context.Context, now time.Time) (int, error)
	CountLicenseKeysByStatus(ctx context.Context, status database.LicenseStatus) (int, error)
	CountExpiringKeys(ctx context.Context, cutoff time.Time) (int, error)
	CountActiveResellers(ctx context.Context) (int, error)
	CountLoginsSince(ctx context.Context, since time.Time) (int, error)
	ResellerKeyCounts(ctx context.Context, createdBy string) (total, active, expired int, err error)
	GetGameByID(ctx context.Context, id string) (*database.Game, error)
	GetUserByID(ctx context.Context, id string) (*database.User, error)
}

// Service is the license key engine
type Service struct {
	store Store
	gen   *Generator
	clock Clock
	log   zerolog.Logger
}

// NewService creates the engine over the given store with the system clock.
func NewService(store Store) *Service {
	return NewServiceWithClock(store, SystemClock())
}

// NewServiceWithClock creates the engine with an explicit clock.
func NewServiceWithClock(store Store, clock Clock) *Service {
	return &Service{
		store: store,
		gen:   NewGenerator(store),
		clock: clock,
		log:   logging.Component("license"),
	}
}

// IssueRequest carries the fields for a single key issuance
type IssueRequest struct {
	GameID        string
	CustomerName  string
	CustomerEmail string
	ExpiresAt     time.Time
	Notes         string
	CreatedBy     string
}

// Issue creates one license key. The game and the issuing user must both
// exist. Quota is never consulted here: issuance beyond a reseller's quota is
// permitted and only shows up in the quota report.
func (s *Service) Issue(ctx context.Context, req IssueRequest) (*database.LicenseKey, error) {
	if err := s.checkIssueRefs(ctx, req.GameID, req.CreatedBy); err != nil {
		return nil, err
	}

	lk, err := s.issueOne(ctx, req, nil)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("key_id", lk.ID).
		Str("game_id", lk.GameID).
		Str("created_by", lk.CreatedBy).
		Time("expires_at", lk.ExpiresAt).
		Msg("license key issued")

	return lk, nil
}

// BulkIssueRequest carries the fields for a bulk issuance batch. Customer
// emails align by index with customer names; a short or missing slice leaves
// the remaining emails unset.
type BulkIssueRequest struct {
	GameID         string
	CustomerNames  []string
	CustomerEmails []string
	ExpiresAt      time.Time
	Notes          string
	CreatedBy      string
}

// IssueBulk creates one key per customer name within a single request. The
// batch is not all-or-nothing: keys issued before a failure are returned
// alongside the error. Candidates are checked against the keys already
// generated in this batch, which the storage probe cannot see yet.
func (s *Service) IssueBulk(ctx context.Context, req BulkIssueRequest) ([]*database.LicenseKey, error) {
	if err := s.checkIssueRefs(ctx, req.GameID, req.CreatedBy); err != nil {
		return nil, err
	}

	reserved := make(map[string]struct{}, len(req.CustomerNames))
	issued := make([]*database.LicenseKey, 0, len(req.CustomerNames))

	for i, name := range req.CustomerNames {
		one := IssueRequest{
			GameID:       req.GameID,
			CustomerName: name,
			ExpiresAt:    req.ExpiresAt,
			Notes:        req.Notes,
			CreatedBy:    req.CreatedBy,
		}
		if i < len(req.CustomerEmails) {
			one.CustomerEmail = req.CustomerEmails[i]
		}

		lk, err := s.issueOne(ctx, one, reserved)
		if err != nil {
			return issued, fmt.Errorf("bulk issuance failed at entry %d: %w", i, err)
		}
		reserved[lk.Key] = struct{}{}
		issued = append(issued, lk)
	}

	s.log.Info().
		Str("game_id", req.GameID).
		Str("created_by", req.CreatedBy).
		Int("count", len(issued)).
		Msg("bulk license keys issued")

	return issued, nil
}

// issueOne generates a unique key and persists the row. An insert-time
// unique violation means a concurrent issuance won the same candidate; it
// counts as a collision and a fresh candidate is tried within the bound.
func (s *Service) issueOne(ctx context.Context, req IssueRequest, reserved map[string]struct{}) (*database.LicenseKey, error) {
	for attempt := 0; attempt < maxKeyAttempts; attempt++ {
		key, err := s.gen.GenerateUniqueKey(ctx, reserved)
		if err != nil {
			return nil, err
		}

		lk := &database.LicenseKey{
			Key:           key,
			GameID:        req.GameID,
			Status:        database.StatusPending,
			CustomerName:  req.CustomerName,
			CustomerEmail: req.CustomerEmail,
			ExpiresAt:     req.ExpiresAt,
			Notes:         req.Notes,
			CreatedBy:     req.CreatedBy,
			CreatedAt:     s.clock.Now(),
		}

		err = s.store.CreateLicenseKey(ctx, lk)
		if err == nil {
			return lk, nil
		}
		if errors.Is(err, database.ErrDuplicateKey) {
			s.log.Debug().Str("key", key).Msg("insert collision, regenerating")
			continue
		}
		return nil, fmt.Errorf("failed to persist license key: %w", err)
	}

	return nil, ErrKeyGenExhausted
}

func (s *Service) checkIssueRefs(ctx context.Context, gameID, createdBy string) error {
	game, err := s.store.GetGameByID(ctx, gameID)
	if err != nil {
		return fmt.Errorf("failed to look up game: %w", err)
	}
	if game == nil {
		return ErrGameNotFound
	}

	user, err := s.store.GetUserByID(ctx, createdBy)
	if err != nil {
		return fmt.Errorf("failed to look up issuing user: %w", err)
	}
	if user == nil {
		return ErrUserNotFound
	}

	return nil
}

// UpdateRequest carries optional administrative updates; nil fields are left
// unchanged. Status may be forced to any valid value.
type UpdateRequest struct {
	CustomerName  *string
	CustomerEmail *string
	Status        *database.LicenseStatus
	ExpiresAt     *time.Time
	Notes         *string
}

// Update applies an administrative update to a key and refreshes updated_at.
func (s *Service) Update(ctx context.Context, id string, req UpdateRequest) (*database.LicenseKey, error) {
	lk, err := s.store.GetLicenseKeyByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to look up license key: %w", err)
	}
	if lk == nil {
		return nil, ErrKeyNotFound
	}

	if req.CustomerName != nil {
		lk.CustomerName = *req.CustomerName
	}
	if req.CustomerEmail != nil {
		lk.CustomerEmail = *req.CustomerEmail
	}
	if req.Status != nil {
		if !database.ValidStatus(*req.Status) {
			return nil, ErrInvalidStatus
		}
		if lk.Status != *req.Status {
			s.log.Info().
				Str("key_id", lk.ID).
				Str("from", string(lk.Status)).
				Str("to", string(*req.Status)).
				Msg("license status forced by administrative update")
		}
		lk.Status = *req.Status
	}
	if req.ExpiresAt != nil {
		lk.ExpiresAt = *req.ExpiresAt
	}
	if req.Notes != nil {
		lk.Notes = *req.Notes
	}

	now := s.clock.Now()
	lk.UpdatedAt = &now

	if err := s.store.UpdateLicenseKey(ctx, lk); err != nil {
		return nil, fmt.Errorf("failed to update license key: %w", err)
	}

	return lk, nil
}

// SearchResult is one page of license keys plus the total match count
type SearchResult struct {
	Items []database.LicenseKey `json:"items"`
	Total int                   `json:"total"`
	Page  int                   `json:"page"`
	Limit int                   `json:"limit"`
}

// Search retrieves keys matching the filter, newest first.
func (s *Service) Search(ctx context.Context, filter database.LicenseKeyFilter) (*SearchResult, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = 20
	}

	items, total, err := s.store.SearchLicenseKeys(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to search license keys: %w", err)
	}

	return &SearchResult{
		Items: items,
		Total: total,
		Page:  filter.Page,
		Limit: filter.Limit,
	}, nil
}

// ExpiringWithin lists active keys whose expiry falls within the given
// number of days from now, including keys already past due whose stored
// status has not been swept yet.
func (s *Service) ExpiringWithin(ctx context.Context, days int) ([]database.LicenseKey, error) {
	cutoff := s.clock.Now().Add(time.Duration(days) * 24 * time.Hour)
	keys, err := s.store.ListExpiringKeys(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list expiring keys: %w", err)
	}
	return keys, nil
}

// SweepExpired reconciles stored status with derived past-due state in one
// auditable batch write and returns the number of keys marked expired.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	n, err := s.store.SweepExpired(ctx, s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired keys: %w", err)
	}
	if n > 0 {
		s.log.Info().Int("count", n).Msg("expiry sweep marked keys expired")
	}
	return n, nil
}
