package license

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"license-server/internal/database"
)

func TestIssueUnknownRefs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Issue(ctx, IssueRequest{
		GameID:    "00000000-0000-0000-0000-000000000000",
		ExpiresAt: f.now.Add(time.Hour),
		CreatedBy: f.admin.ID,
	})
	require.ErrorIs(t, err, ErrGameNotFound)

	_, err = f.svc.Issue(ctx, IssueRequest{
		GameID:    f.game.ID,
		ExpiresAt: f.now.Add(time.Hour),
		CreatedBy: "00000000-0000-0000-0000-000000000000",
	})
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestIssueRetriesInsertCollision(t *testing.T) {
	f := newFixture(t)
	f.store.duplicateInserts = 2

	lk := f.issue(t, f.now.Add(time.Hour))
	assert.Regexp(t, KeyPattern, lk.Key)
	assert.Equal(t, database.StatusPending, lk.Status)
	assert.True(t, lk.CreatedAt.Equal(f.now))
}

func TestIssueExhaustsOnPersistentCollision(t *testing.T) {
	f := newFixture(t)
	f.store.duplicateInserts = maxKeyAttempts

	_, err := f.svc.Issue(context.Background(), IssueRequest{
		GameID:    f.game.ID,
		ExpiresAt: f.now.Add(time.Hour),
		CreatedBy: f.admin.ID,
	})
	require.ErrorIs(t, err, ErrKeyGenExhausted)
}

func TestIssueBulk(t *testing.T) {
	f := newFixture(t)

	issued, err := f.svc.IssueBulk(context.Background(), BulkIssueRequest{
		GameID:         f.game.ID,
		CustomerNames:  []string{"Ada", "Grace", "Edsger"},
		CustomerEmails: []string{"ada@example.com"},
		ExpiresAt:      f.now.Add(30 * 24 * time.Hour),
		CreatedBy:      f.admin.ID,
	})
	require.NoError(t, err)
	require.Len(t, issued, 3)

	seen := make(map[string]struct{})
	for _, lk := range issued {
		assert.Regexp(t, KeyPattern, lk.Key)
		if _, dup := seen[lk.Key]; dup {
			t.Fatalf("duplicate key %q within batch", lk.Key)
		}
		seen[lk.Key] = struct{}{}
	}
	assert.Equal(t, "ada@example.com", issued[0].CustomerEmail)
	assert.Empty(t, issued[1].CustomerEmail)
	assert.Equal(t, "Edsger", issued[2].CustomerName)
}

// failAfterStore fails inserts once a number of keys have been persisted, to
// exercise partial bulk results.
type failAfterStore struct {
	*fakeStore
	remaining int
}

func (s *failAfterStore) CreateLicenseKey(ctx context.Context, lk *database.LicenseKey) error {
	if s.remaining <= 0 {
		return fmt.Errorf("connection reset")
	}
	s.remaining--
	return s.fakeStore.CreateLicenseKey(ctx, lk)
}

func TestIssueBulkPartialFailure(t *testing.T) {
	store := newFakeStore()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	game := store.addGame("Starfall")
	admin := store.addUser("admin", database.RoleDeveloper, nil)

	svc := NewServiceWithClock(&failAfterStore{fakeStore: store, remaining: 2}, FixedClock{Instant: now})

	issued, err := svc.IssueBulk(context.Background(), BulkIssueRequest{
		GameID:        game.ID,
		CustomerNames: []string{"Ada", "Grace", "Edsger", "Barbara"},
		ExpiresAt:     now.Add(time.Hour),
		CreatedBy:     admin.ID,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entry 2")
	require.Len(t, issued, 2)
	assert.Equal(t, "Ada", issued[0].CustomerName)
	assert.Equal(t, "Grace", issued[1].CustomerName)
}

func TestUpdatePartialFields(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lk := f.issue(t, f.now.Add(time.Hour))

	name := "Ada Lovelace"
	status := database.StatusSuspended
	updated, err := f.svc.Update(ctx, lk.ID, UpdateRequest{
		CustomerName: &name,
		Status:       &status,
	})
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", updated.CustomerName)
	assert.Equal(t, database.StatusSuspended, updated.Status)
	assert.True(t, updated.ExpiresAt.Equal(lk.ExpiresAt))
	require.NotNil(t, updated.UpdatedAt)
	assert.True(t, updated.UpdatedAt.Equal(f.now))
}

func TestUpdateRejectsInvalidStatus(t *testing.T) {
	f := newFixture(t)
	lk := f.issue(t, f.now.Add(time.Hour))

	bogus := database.LicenseStatus("revoked")
	_, err := f.svc.Update(context.Background(), lk.ID, UpdateRequest{Status: &bogus})
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestUpdateUnknownKey(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Update(context.Background(), "00000000-0000-0000-0000-000000000000", UpdateRequest{})
	require.ErrorIs(t, err, ErrKeyNotFound)
}

func TestSearchDefaultsPaging(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		f.issue(t, f.now.Add(time.Hour))
	}

	result, err := f.svc.Search(context.Background(), database.LicenseKeyFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Page)
	assert.Equal(t, 20, result.Limit)
	assert.Equal(t, 3, result.Total)
	assert.Len(t, result.Items, 3)
}

func TestExpiringWithinIncludesPastDue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	within := f.issue(t, f.now.Add(48*time.Hour))
	pastDue := f.issue(t, f.now.Add(-24*time.Hour))
	far := f.issue(t, f.now.Add(30*24*time.Hour))
	for _, lk := range []*database.LicenseKey{within, pastDue, far} {
		lk.Status = database.StatusActive
		require.NoError(t, f.store.UpdateLicenseKey(ctx, lk))
	}

	keys, err := f.svc.ExpiringWithin(ctx, 3)
	require.NoError(t, err)
	require.Len(t, keys, 2)
	for _, lk := range keys {
		assert.NotEqual(t, far.ID, lk.ID)
	}
}

func TestSweepExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	staleActive := f.issue(t, f.now.Add(-time.Hour))
	staleActive.Status = database.StatusActive
	require.NoError(t, f.store.UpdateLicenseKey(ctx, staleActive))

	stalePending := f.issue(t, f.now.Add(-48*time.Hour))

	suspended := f.issue(t, f.now.Add(-time.Hour))
	suspended.Status = database.StatusSuspended
	require.NoError(t, f.store.UpdateLicenseKey(ctx, suspended))

	current := f.issue(t, f.now.Add(time.Hour))
	current.Status = database.StatusActive
	require.NoError(t, f.store.UpdateLicenseKey(ctx, current))

	n, err := f.svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for id, want := range map[string]database.LicenseStatus{
		staleActive.ID:  database.StatusExpired,
		stalePending.ID: database.StatusExpired,
		suspended.ID:    database.StatusSuspended,
		current.ID:      database.StatusActive,
	} {
		lk, err := f.store.GetLicenseKeyByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, lk.Status, "key %s", id)
	}
}

func TestSweepWrapsStoreError(t *testing.T) {
	f := newFixture(t)
	svc := NewServiceWithClock(&sweepErrorStore{fakeStore: f.store}, FixedClock{Instant: f.now})

	_, err := svc.SweepExpired(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errSweepDown))
}

var errSweepDown = errors.New("store down")

type sweepErrorStore struct {
	*fakeStore
}

func (s *sweepErrorStore) SweepExpired(context.Context, time.Time) (int, error) {
	return 0, errSweepDown
}
