package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// insertActivityLog writes an audit row inside an open transaction so
// activation side effects commit atomically.
func insertActivityLog(ctx context.Context, tx pgx.Tx, log *ActivityLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()
	}

	_, err := tx.Exec(ctx, `
	INSERT INTO activity_logs (id, license_key_id, device_id, action, ip_address, user_agent, created_at)
	VALUES ($1, NULLIF($2, '')::uuid, NULLIF($3, ''), $4, NULLIF($5, ''), NULLIF($6, ''), $7)
	`,
		log.ID,
		log.LicenseKeyID,
		log.DeviceID,
		log.Action,
		log.IPAddress,
		log.UserAgent,
		log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert activity log: %w", err)
	}
	return nil
}

// CreateActivityLog appends an audit row outside any transaction. Rows are
// never updated or deleted.
func (r *Repository) CreateActivityLog(ctx context.Context, log *ActivityLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now()
	}

	_, err := r.db.Pool.Exec(ctx, `
	INSERT INTO activity_logs (id, license_key_id, device_id, action, ip_address, user_agent, created_at)
	VALUES ($1, NULLIF($2, '')::uuid, NULLIF($3, ''), $4, NULLIF($5, ''), NULLIF($6, ''), $7)
	`,
		log.ID,
		log.LicenseKeyID,
		log.DeviceID,
		log.Action,
		log.IPAddress,
		log.UserAgent,
		log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create activity log: %w", err)
	}
	return nil
}

// ListActivityLogs retrieves recent audit rows for a license key, newest
// first.
func (r *Repository) ListActivityLogs(ctx context.Context, licenseKeyID string, limit int) ([]ActivityLog, error) {
	query := `
	SELECT id, COALESCE(license_key_id::text, ''), COALESCE(device_id, ''), action,
	       COALESCE(ip_address, ''), COALESCE(user_agent, ''), created_at
	FROM activity_logs
	WHERE license_key_id = $1
	ORDER BY created_at DESC
	LIMIT $2
	`

	rows, err := r.db.Pool.Query(ctx, query, licenseKeyID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity logs: %w", err)
	}
	defer rows.Close()

	var logs []ActivityLog
	for rows.Next() {
		var log ActivityLog
		err := rows.Scan(
			&log.ID,
			&log.LicenseKeyID,
			&log.DeviceID,
			&log.Action,
			&log.IPAddress,
			&log.UserAgent,
			&log.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity log: %w", err)
		}
		logs = append(logs, log)
	}

	return logs, rows.Err()
}

// CountLoginsSince counts login audit rows created at or after the given
// instant.
func (r *Repository) CountLoginsSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM activity_logs WHERE action = $1 AND created_at >= $2`,
		ActionLogin, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count logins: %w", err)
	}
	return count, nil
}
