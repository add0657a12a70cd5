package database

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// Repository provides access to all persisted entities
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// Sentinel errors surfaced for unique constraint violations so callers can
// map them to typed conflicts instead of generic failures.
var (
	ErrDuplicateKey      = errors.New("license key already exists")
	ErrDuplicateUsername = errors.New("username already exists")
)

const pgUniqueViolation = "23505"

// isUniqueViolation reports whether err is a Postgres unique constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
