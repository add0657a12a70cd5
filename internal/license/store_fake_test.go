package license

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"license-server/internal/database"
)

// fakeStore is an in-memory Store with the same conditional-update semantics
// as the Postgres repository.
type fakeStore struct {
	mu    sync.Mutex
	games map[string]*database.Game
	users map[string]*database.User
	keys  map[string]*database.LicenseKey
	logs  []database.ActivityLog

	// duplicateInserts forces CreateLicenseKey to report a unique violation
	// this many times before succeeding.
	duplicateInserts int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		games: make(map[string]*database.Game),
		users: make(map[string]*database.User),
		keys:  make(map[string]*database.LicenseKey),
	}
}

func (f *fakeStore) addGame(name string) *database.Game {
	f.mu.Lock()
	defer f.mu.Unlock()
	game := &database.Game{ID: uuid.New().String(), Name: name, IsActive: true, CreatedAt: time.Now()}
	f.games[game.ID] = game
	return game
}

func (f *fakeStore) addUser(username string, role database.UserRole, quota *int) *database.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	user := &database.User{
		ID:       uuid.New().String(),
		Username: username,
		Role:     role,
		Quota:    quota,
		IsActive: true,
	}
	f.users[user.ID] = user
	return user
}

func (f *fakeStore) LicenseKeyExists(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, lk := range f.keys {
		if lk.Key == key {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) CreateLicenseKey(_ context.Context, lk *database.LicenseKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.duplicateInserts > 0 {
		f.duplicateInserts--
		return database.ErrDuplicateKey
	}
	for _, existing := range f.keys {
		if existing.Key == lk.Key {
			return database.ErrDuplicateKey
		}
	}
	if lk.ID == "" {
		lk.ID = uuid.New().String()
	}
	stored := *lk
	f.keys[lk.ID] = &stored
	return nil
}

func (f *fakeStore) GetLicenseKeyByID(_ context.Context, id string) (*database.LicenseKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if lk, ok := f.keys[id]; ok {
		out := *lk
		return &out, nil
	}
	return nil, nil
}

func (f *fakeStore) GetLicenseKeyByKey(_ context.Context, key string) (*database.LicenseKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, lk := range f.keys {
		if lk.Key == key {
			out := *lk
			return &out, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) UpdateLicenseKey(_ context.Context, lk *database.LicenseKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored := *lk
	f.keys[lk.ID] = &stored
	return nil
}

func (f *fakeStore) SearchLicenseKeys(_ context.Context, filter database.LicenseKeyFilter) ([]database.LicenseKey, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matches []database.LicenseKey
	for _, lk := range f.keys {
		if filter.GameID != "" && lk.GameID != filter.GameID {
			continue
		}
		if filter.CustomerName != "" && !strings.Contains(strings.ToLower(lk.CustomerName), strings.ToLower(filter.CustomerName)) {
			continue
		}
		if filter.Status != "" && lk.Status != filter.Status {
			continue
		}
		if filter.KeySubstring != "" && !strings.Contains(lk.Key, strings.ToUpper(filter.KeySubstring)) {
			continue
		}
		if filter.CreatedBy != "" && lk.CreatedBy != filter.CreatedBy {
			continue
		}
		matches = append(matches, *lk)
	}
	total := len(matches)
	start := (filter.Page - 1) * filter.Limit
	if start > total {
		start = total
	}
	end := start + filter.Limit
	if end > total {
		end = total
	}
	return matches[start:end], total, nil
}

func (f *fakeStore) ListExpiringKeys(_ context.Context, cutoff time.Time) ([]database.LicenseKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []database.LicenseKey
	for _, lk := range f.keys {
		if lk.Status == database.StatusActive && !lk.ExpiresAt.After(cutoff) {
			out = append(out, *lk)
		}
	}
	return out, nil
}

func (f *fakeStore) ClaimDevice(_ context.Context, keyID, deviceID string, now time.Time, log *database.ActivityLog) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lk, ok := f.keys[keyID]
	if !ok {
		return false, nil
	}
	if lk.DeviceID != "" && lk.DeviceID != deviceID {
		return false, nil
	}
	if lk.Status == database.StatusSuspended {
		return false, nil
	}
	lk.DeviceID = deviceID
	lk.Status = database.StatusActive
	lk.LastUsedAt = &now
	lk.UpdatedAt = &now
	f.logs = append(f.logs, *log)
	return true, nil
}

func (f *fakeStore) ClearDevice(_ context.Context, keyID string, now time.Time, log *database.ActivityLog) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lk, ok := f.keys[keyID]
	if !ok {
		return false, nil
	}
	lk.DeviceID = ""
	lk.UpdatedAt = &now
	f.logs = append(f.logs, *log)
	return true, nil
}

func (f *fakeStore) SweepExpired(_ context.Context, now time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, lk := range f.keys {
		if lk.ExpiresAt.Before(now) && (lk.Status == database.StatusActive || lk.Status == database.StatusPending) {
			lk.Status = database.StatusExpired
			lk.UpdatedAt = &now
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) CountLicenseKeysByStatus(_ context.Context, status database.LicenseStatus) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, lk := range f.keys {
		if lk.Status == status {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) CountExpiringKeys(_ context.Context, cutoff time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, lk := range f.keys {
		if lk.Status == database.StatusActive && !lk.ExpiresAt.After(cutoff) {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) CountActiveResellers(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, u := range f.users {
		if u.Role == database.RoleReseller && u.IsActive {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) CountLoginsSince(_ context.Context, since time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, log := range f.logs {
		if log.Action == database.ActionLogin && !log.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) ResellerKeyCounts(_ context.Context, createdBy string) (total, active, expired int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, lk := range f.keys {
		if lk.CreatedBy != createdBy {
			continue
		}
		total++
		switch lk.Status {
		case database.StatusActive:
			active++
		case database.StatusExpired:
			expired++
		}
	}
	return total, active, expired, nil
}

func (f *fakeStore) GetGameByID(_ context.Context, id string) (*database.Game, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if game, ok := f.games[id]; ok {
		out := *game
		return &out, nil
	}
	return nil, nil
}

func (f *fakeStore) GetUserByID(_ context.Context, id string) (*database.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if user, ok := f.users[id]; ok {
		out := *user
		return &out, nil
	}
	return nil, nil
}
