package license

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"license-server/internal/database"
)

type fixture struct {
	svc   *Service
	store *fakeStore
	game  *database.Game
	admin *database.User
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newFakeStore()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	return &fixture{
		svc:   NewServiceWithClock(store, FixedClock{Instant: now}),
		store: store,
		game:  store.addGame("Starfall"),
		admin: store.addUser("admin", database.RoleDeveloper, nil),
		now:   now,
	}
}

func (f *fixture) issue(t *testing.T, expiresAt time.Time) *database.LicenseKey {
	t.Helper()
	lk, err := f.svc.Issue(context.Background(), IssueRequest{
		GameID:       f.game.ID,
		CustomerName: "Ada",
		ExpiresAt:    expiresAt,
		CreatedBy:    f.admin.ID,
	})
	require.NoError(t, err)
	return lk
}

func TestActivateDeviceLockLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lk := f.issue(t, f.now.Add(30*24*time.Hour))
	require.Equal(t, database.StatusPending, lk.Status)

	// First activation binds the device and promotes the key to active.
	details, err := f.svc.Activate(ctx, lk.Key, "device-1", RequestMeta{IPAddress: "10.0.0.1", UserAgent: "launcher/1.0"})
	require.NoError(t, err)
	assert.Equal(t, database.StatusActive, details.Status)
	assert.Equal(t, "device-1", details.DeviceID)
	assert.Equal(t, "Starfall", details.GameName)
	assert.Equal(t, 30, details.DaysUntilExpiry)
	assert.False(t, details.IsExpiringSoon)
	require.NotNil(t, details.LastUsedAt)
	assert.True(t, details.LastUsedAt.Equal(f.now))

	// Same device again is permitted.
	_, err = f.svc.Activate(ctx, lk.Key, "device-1", RequestMeta{})
	require.NoError(t, err)

	// Another device is refused and the lock is untouched.
	_, err = f.svc.Activate(ctx, lk.Key, "device-2", RequestMeta{})
	require.ErrorIs(t, err, ErrDeviceLocked)
	stored, err := f.store.GetLicenseKeyByID(ctx, lk.ID)
	require.NoError(t, err)
	assert.Equal(t, "device-1", stored.DeviceID)

	// An administrator reset clears the lock without touching the status.
	require.NoError(t, f.svc.ResetDeviceLock(ctx, lk.ID, f.admin.ID))
	stored, err = f.store.GetLicenseKeyByID(ctx, lk.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.DeviceID)
	assert.Equal(t, database.StatusActive, stored.Status)

	// Now the new device can claim the key.
	details, err = f.svc.Activate(ctx, lk.Key, "device-2", RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, "device-2", details.DeviceID)
}

func TestActivateUnknownKey(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Activate(context.Background(), "AAAA-BBBB-CCCC-DDDD", "device-1", RequestMeta{})
	require.ErrorIs(t, err, ErrKeyNotFound)
}

func TestActivateExpiredByClock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Stored status still says active; the derived check must win anyway.
	lk := f.issue(t, f.now.Add(-time.Hour))
	lk.Status = database.StatusActive
	require.NoError(t, f.store.UpdateLicenseKey(ctx, lk))

	_, err := f.svc.Activate(ctx, lk.Key, "device-1", RequestMeta{})
	require.ErrorIs(t, err, ErrExpired)
}

func TestActivateExpiredBeatsSuspended(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	lk := f.issue(t, f.now.Add(-time.Hour))
	lk.Status = database.StatusSuspended
	require.NoError(t, f.store.UpdateLicenseKey(ctx, lk))

	_, err := f.svc.Activate(ctx, lk.Key, "device-1", RequestMeta{})
	require.ErrorIs(t, err, ErrExpired)
}

func TestActivateSuspended(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	lk := f.issue(t, f.now.Add(30*24*time.Hour))
	lk.Status = database.StatusSuspended
	require.NoError(t, f.store.UpdateLicenseKey(ctx, lk))

	_, err := f.svc.Activate(ctx, lk.Key, "device-1", RequestMeta{})
	require.ErrorIs(t, err, ErrSuspended)
}

// raceStore refuses every claim, standing in for a concurrent activation that
// committed first between the read and the conditional update.
type raceStore struct {
	*fakeStore
}

func (r *raceStore) ClaimDevice(context.Context, string, string, time.Time, *database.ActivityLog) (bool, error) {
	return false, nil
}

func TestActivateLostRace(t *testing.T) {
	store := newFakeStore()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	game := store.addGame("Starfall")
	admin := store.addUser("admin", database.RoleDeveloper, nil)

	seeded := NewServiceWithClock(store, FixedClock{Instant: now})
	lk, err := seeded.Issue(context.Background(), IssueRequest{
		GameID:       game.ID,
		CustomerName: "Ada",
		ExpiresAt:    now.Add(30 * 24 * time.Hour),
		CreatedBy:    admin.ID,
	})
	require.NoError(t, err)

	svc := NewServiceWithClock(&raceStore{fakeStore: store}, FixedClock{Instant: now})
	_, err = svc.Activate(context.Background(), lk.Key, "device-1", RequestMeta{})
	require.ErrorIs(t, err, ErrDeviceLocked)
}

// staleReadStore serves reads from a snapshot taken before a suspension
// committed, standing in for an admin suspending the key between the
// Activate read and the conditional claim.
type staleReadStore struct {
	*fakeStore
}

func (s *staleReadStore) GetLicenseKeyByKey(ctx context.Context, key string) (*database.LicenseKey, error) {
	lk, err := s.fakeStore.GetLicenseKeyByKey(ctx, key)
	if lk != nil {
		lk.Status = database.StatusActive
	}
	return lk, err
}

func TestActivateRaceToSuspension(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	lk := f.issue(t, f.now.Add(30*24*time.Hour))
	lk.Status = database.StatusSuspended
	require.NoError(t, f.store.UpdateLicenseKey(ctx, lk))

	svc := NewServiceWithClock(&staleReadStore{fakeStore: f.store}, FixedClock{Instant: f.now})
	_, err := svc.Activate(ctx, lk.Key, "device-1", RequestMeta{})
	require.ErrorIs(t, err, ErrSuspended)

	stored, err := f.store.GetLicenseKeyByID(ctx, lk.ID)
	require.NoError(t, err)
	assert.Equal(t, database.StatusSuspended, stored.Status)
	assert.Empty(t, stored.DeviceID)
}

func TestActivateWritesAuditRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lk := f.issue(t, f.now.Add(30*24*time.Hour))

	_, err := f.svc.Activate(ctx, lk.Key, "device-1", RequestMeta{IPAddress: "10.0.0.1", UserAgent: "launcher/1.0"})
	require.NoError(t, err)

	require.Len(t, f.store.logs, 1)
	log := f.store.logs[0]
	assert.Equal(t, lk.ID, log.LicenseKeyID)
	assert.Equal(t, database.ActionActivation, log.Action)
	assert.Equal(t, "device-1", log.DeviceID)
	assert.Equal(t, "10.0.0.1", log.IPAddress)
	assert.Equal(t, "launcher/1.0", log.UserAgent)
}

func TestResetDeviceLockWritesSentinelAudit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lk := f.issue(t, f.now.Add(30*24*time.Hour))

	_, err := f.svc.Activate(ctx, lk.Key, "device-1", RequestMeta{})
	require.NoError(t, err)
	require.NoError(t, f.svc.ResetDeviceLock(ctx, lk.ID, f.admin.ID))

	require.Len(t, f.store.logs, 2)
	log := f.store.logs[1]
	assert.Equal(t, database.ActionDeviceReset, log.Action)
	assert.Equal(t, database.DeviceAdminReset, log.DeviceID)
}

func TestResetDeviceLockUnknownKey(t *testing.T) {
	f := newFixture(t)

	err := f.svc.ResetDeviceLock(context.Background(), "00000000-0000-0000-0000-000000000000", f.admin.ID)
	require.ErrorIs(t, err, ErrKeyNotFound)
}

func TestResetDeviceLockUnknownAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lk := f.issue(t, f.now.Add(30*24*time.Hour))

	_, err := f.svc.Activate(ctx, lk.Key, "device-1", RequestMeta{})
	require.NoError(t, err)

	err = f.svc.ResetDeviceLock(ctx, lk.ID, "00000000-0000-0000-0000-000000000000")
	require.ErrorIs(t, err, ErrUserNotFound)

	// The lock must be untouched by the rejected reset.
	stored, err := f.store.GetLicenseKeyByID(ctx, lk.ID)
	require.NoError(t, err)
	assert.Equal(t, "device-1", stored.DeviceID)
}

// gameErrorStore fails game lookups to exercise detail assembly under a
// degraded catalogue.
type gameErrorStore struct {
	*fakeStore
}

func (s *gameErrorStore) GetGameByID(context.Context, string) (*database.Game, error) {
	return nil, errors.New("catalogue unavailable")
}

func TestDetailsToleratesGameLookupFailure(t *testing.T) {
	f := newFixture(t)
	lk := f.issue(t, f.now.Add(30*24*time.Hour))

	svc := NewServiceWithClock(&gameErrorStore{fakeStore: f.store}, FixedClock{Instant: f.now})
	details, err := svc.Details(context.Background(), lk.Key)
	require.NoError(t, err)
	assert.Empty(t, details.GameName)
	assert.Equal(t, lk.Key, details.Key)
}

func TestDetailsReadOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lk := f.issue(t, f.now.Add(48*time.Hour))

	details, err := f.svc.Details(ctx, lk.Key)
	require.NoError(t, err)
	assert.Equal(t, database.StatusPending, details.Status)
	assert.Equal(t, 2, details.DaysUntilExpiry)
	assert.True(t, details.IsExpiringSoon)

	stored, err := f.store.GetLicenseKeyByID(ctx, lk.ID)
	require.NoError(t, err)
	assert.Equal(t, database.StatusPending, stored.Status)
	assert.Nil(t, stored.LastUsedAt)
	assert.Empty(t, f.store.logs)
}

func TestErrorKindsAreDistinct(t *testing.T) {
	kinds := []error{
		ErrKeyNotFound, ErrGameNotFound, ErrUserNotFound, ErrResellerNotFound,
		ErrKeyGenExhausted, ErrExpired, ErrSuspended, ErrDeviceLocked,
		ErrDuplicateKey, ErrInvalidStatus,
	}
	for i, a := range kinds {
		for j, b := range kinds {
			if (i == j) != errors.Is(a, b) {
				t.Errorf("errors.Is(%v, %v) = %v", a, b, i != j)
			}
		}
	}
}
