package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const licenseKeyColumns = `
	id, key, game_id, status, COALESCE(device_id, ''), customer_name,
	COALESCE(customer_email, ''), expires_at, COALESCE(notes, ''), created_by,
	last_used_at, created_at, updated_at`

func scanLicenseKey(row pgx.Row) (*LicenseKey, error) {
	var lk LicenseKey
	err := row.Scan(
		&lk.ID,
		&lk.Key,
		&lk.GameID,
		&lk.Status,
		&lk.DeviceID,
		&lk.CustomerName,
		&lk.CustomerEmail,
		&lk.ExpiresAt,
		&lk.Notes,
		&lk.CreatedBy,
		&lk.LastUsedAt,
		&lk.CreatedAt,
		&lk.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &lk, nil
}

// CreateLicenseKey inserts a new license key row. A collision on the unique
// key index surfaces as ErrDuplicateKey so the generator can retry with a
// fresh candidate.
func (r *Repository) CreateLicenseKey(ctx context.Context, lk *LicenseKey) error {
	if lk.ID == "" {
		lk.ID = uuid.New().String()
	}

	query := `
	INSERT INTO license_keys (id, key, game_id, status, customer_name, customer_email, expires_at, notes, created_by, created_at)
	VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, NULLIF($8, ''), $9, $10)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		lk.ID,
		lk.Key,
		lk.GameID,
		lk.Status,
		lk.CustomerName,
		lk.CustomerEmail,
		lk.ExpiresAt,
		lk.Notes,
		lk.CreatedBy,
		lk.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("failed to create license key: %w", err)
	}
	return nil
}

// LicenseKeyExists reports whether a key string is already taken. This is a
// pre-insert probe only; the unique index remains the authoritative guard.
func (r *Repository) LicenseKeyExists(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := r.db.Pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM license_keys WHERE key = $1)`, key,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check key existence: %w", err)
	}
	return exists, nil
}

// GetLicenseKeyByID retrieves a license key by ID, returning nil when absent
func (r *Repository) GetLicenseKeyByID(ctx context.Context, id string) (*LicenseKey, error) {
	query := fmt.Sprintf("SELECT %s FROM license_keys WHERE id = $1", licenseKeyColumns)
	lk, err := scanLicenseKey(r.db.Pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get license key by id: %w", err)
	}
	return lk, nil
}

// GetLicenseKeyByKey retrieves a license key by its key string
func (r *Repository) GetLicenseKeyByKey(ctx context.Context, key string) (*LicenseKey, error) {
	query := fmt.Sprintf("SELECT %s FROM license_keys WHERE key = $1", licenseKeyColumns)
	lk, err := scanLicenseKey(r.db.Pool.QueryRow(ctx, query, key))
	if err != nil {
		return nil, fmt.Errorf("failed to get license key: %w", err)
	}
	return lk, nil
}

// UpdateLicenseKey updates the mutable administrative fields of a key
func (r *Repository) UpdateLicenseKey(ctx context.Context, lk *LicenseKey) error {
	query := `
	UPDATE license_keys
	SET status = $2, customer_name = $3, customer_email = NULLIF($4, ''),
	    expires_at = $5, notes = NULLIF($6, ''), updated_at = $7
	WHERE id = $1
	`

	tag, err := r.db.Pool.Exec(ctx, query,
		lk.ID,
		lk.Status,
		lk.CustomerName,
		lk.CustomerEmail,
		lk.ExpiresAt,
		lk.Notes,
		lk.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update license key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// LicenseKeyFilter holds the optional search filters and pagination
type LicenseKeyFilter struct {
	GameID       string
	CustomerName string
	Status       LicenseStatus
	KeySubstring string
	CreatedBy    string
	Page         int
	Limit        int
}

// buildLicenseKeyWhere assembles the WHERE clause and args for a filter.
func buildLicenseKeyWhere(filter LicenseKeyFilter) (string, []interface{}) {
	whereClause := "WHERE 1=1"
	args := []interface{}{}
	argNum := 1

	if filter.GameID != "" {
		whereClause += fmt.Sprintf(" AND game_id = $%d", argNum)
		args = append(args, filter.GameID)
		argNum++
	}
	if filter.CustomerName != "" {
		whereClause += fmt.Sprintf(" AND customer_name ILIKE $%d", argNum)
		args = append(args, "%"+filter.CustomerName+"%")
		argNum++
	}
	if filter.Status != "" {
		whereClause += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, filter.Status)
		argNum++
	}
	if filter.KeySubstring != "" {
		whereClause += fmt.Sprintf(" AND key ILIKE $%d", argNum)
		args = append(args, "%"+filter.KeySubstring+"%")
		argNum++
	}
	if filter.CreatedBy != "" {
		whereClause += fmt.Sprintf(" AND created_by = $%d", argNum)
		args = append(args, filter.CreatedBy)
		argNum++
	}

	return whereClause, args
}

// SearchLicenseKeys retrieves license keys matching the filter along with the
// total match count for pagination
func (r *Repository) SearchLicenseKeys(ctx context.Context, filter LicenseKeyFilter) ([]LicenseKey, int, error) {
	whereClause, args := buildLicenseKeyWhere(filter)

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM license_keys %s", whereClause)
	var total int
	if err := r.db.Pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count license keys: %w", err)
	}

	offset := (filter.Page - 1) * filter.Limit
	query := fmt.Sprintf(`
	SELECT %s
	FROM license_keys
	%s
	ORDER BY created_at DESC
	LIMIT $%d OFFSET $%d
	`, licenseKeyColumns, whereClause, len(args)+1, len(args)+2)
	args = append(args, filter.Limit, offset)

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to search license keys: %w", err)
	}
	defer rows.Close()

	var keys []LicenseKey
	for rows.Next() {
		lk, err := scanLicenseKey(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan license key: %w", err)
		}
		keys = append(keys, *lk)
	}

	return keys, total, rows.Err()
}

// ListExpiringKeys retrieves active keys whose expiry falls on or before the
// cutoff, earliest first. Keys already past due are included.
func (r *Repository) ListExpiringKeys(ctx context.Context, cutoff time.Time) ([]LicenseKey, error) {
	query := fmt.Sprintf(`
	SELECT %s
	FROM license_keys
	WHERE status = $1 AND expires_at <= $2
	ORDER BY expires_at
	`, licenseKeyColumns)

	rows, err := r.db.Pool.Query(ctx, query, StatusActive, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list expiring keys: %w", err)
	}
	defer rows.Close()

	var keys []LicenseKey
	for rows.Next() {
		lk, err := scanLicenseKey(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan license key: %w", err)
		}
		keys = append(keys, *lk)
	}

	return keys, rows.Err()
}

// ClaimDevice binds a device to a key with a single conditional update and
// appends the activation audit row in the same transaction. It returns false
// without writing anything when another device already holds the lock, which
// also resolves concurrent first-activation races in favor of the first
// committer. The status guard keeps a suspension committed after the caller's
// read from being overwritten back to active.
func (r *Repository) ClaimDevice(ctx context.Context, keyID, deviceID string, now time.Time, log *ActivityLog) (bool, error) {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
	UPDATE license_keys
	SET device_id = $2, status = $3, last_used_at = $4, updated_at = $4
	WHERE id = $1 AND (device_id IS NULL OR device_id = $2) AND status <> $5
	`, keyID, deviceID, StatusActive, now, StatusSuspended)
	if err != nil {
		return false, fmt.Errorf("failed to claim device: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if err := insertActivityLog(ctx, tx, log); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit activation: %w", err)
	}
	return true, nil
}

// ClearDevice removes the device lock from a key and appends the reset audit
// row in the same transaction. It returns false when the key does not exist.
func (r *Repository) ClearDevice(ctx context.Context, keyID string, now time.Time, log *ActivityLog) (bool, error) {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
	UPDATE license_keys
	SET device_id = NULL, updated_at = $2
	WHERE id = $1
	`, keyID, now)
	if err != nil {
		return false, fmt.Errorf("failed to clear device: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if err := insertActivityLog(ctx, tx, log); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit device reset: %w", err)
	}
	return true, nil
}

// SweepExpired sets status to expired on every active or pending key whose
// expiry is in the past. It is the only path that reconciles stored status
// with derived past-due state in bulk.
func (r *Repository) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	tag, err := r.db.Pool.Exec(ctx, `
	UPDATE license_keys
	SET status = $1, updated_at = $2
	WHERE expires_at < $2 AND status IN ($3, $4)
	`, StatusExpired, now, StatusActive, StatusPending)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired keys: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// CountLicenseKeysByStatus counts keys with the given stored status
func (r *Repository) CountLicenseKeysByStatus(ctx context.Context, status LicenseStatus) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM license_keys WHERE status = $1`, status,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count license keys: %w", err)
	}
	return count, nil
}

// CountExpiringKeys counts active keys expiring on or before the cutoff
func (r *Repository) CountExpiringKeys(ctx context.Context, cutoff time.Time) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM license_keys WHERE status = $1 AND expires_at <= $2`,
		StatusActive, cutoff,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count expiring keys: %w", err)
	}
	return count, nil
}

// ResellerKeyCounts returns total, active, and expired key counts for keys
// issued by the given user, grouped by stored status.
func (r *Repository) ResellerKeyCounts(ctx context.Context, createdBy string) (total, active, expired int, err error) {
	query := `
	SELECT COUNT(*),
	       COALESCE(SUM(CASE WHEN status = $2 THEN 1 ELSE 0 END), 0),
	       COALESCE(SUM(CASE WHEN status = $3 THEN 1 ELSE 0 END), 0)
	FROM license_keys
	WHERE created_by = $1
	`

	err = r.db.Pool.QueryRow(ctx, query, createdBy, StatusActive, StatusExpired).Scan(&total, &active, &expired)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("failed to count reseller keys: %w", err)
	}
	return total, active, expired, nil
}
