package database

import (
	"encoding/json"
	"time"
)

// LicenseStatus is the stored status of a license key. "expired" is only
// written by an explicit administrative update or the expiry sweep; reads
// never rewrite it.
type LicenseStatus string

const (
	StatusActive    LicenseStatus = "active"
	StatusExpired   LicenseStatus = "expired"
	StatusSuspended LicenseStatus = "suspended"
	StatusPending   LicenseStatus = "pending"
)

// ValidStatus reports whether s is one of the known license statuses.
func ValidStatus(s LicenseStatus) bool {
	switch s {
	case StatusActive, StatusExpired, StatusSuspended, StatusPending:
		return true
	}
	return false
}

// UserRole identifies what a user account is allowed to do. Developers are
// the vendor's own staff and act as administrators.
type UserRole string

const (
	RoleDeveloper UserRole = "developer"
	RoleReseller  UserRole = "reseller"
	RoleUser      UserRole = "user"
)

// ValidRole reports whether r is one of the known user roles.
func ValidRole(r UserRole) bool {
	switch r {
	case RoleDeveloper, RoleReseller, RoleUser:
		return true
	}
	return false
}

// Activity log actions written by the engine and the auth layer.
const (
	ActionActivation  = "activation"
	ActionDeviceReset = "device_reset"
	ActionLogin       = "login"
)

// DeviceAdminReset is the sentinel device identifier recorded on
// device_reset activity rows, marking the reset as administrator-initiated.
const DeviceAdminReset = "ADMIN-RESET"

// LicenseKey represents a license key row. DeviceID is empty until the key
// has been activated at least once since the last reset.
type LicenseKey struct {
	ID            string        `json:"id" db:"id"`
	Key           string        `json:"key" db:"key"`
	GameID        string        `json:"game_id" db:"game_id"`
	Status        LicenseStatus `json:"status" db:"status"`
	DeviceID      string        `json:"device_id,omitempty" db:"device_id"`
	CustomerName  string        `json:"customer_name" db:"customer_name"`
	CustomerEmail string        `json:"customer_email,omitempty" db:"customer_email"`
	ExpiresAt     time.Time     `json:"expires_at" db:"expires_at"`
	Notes         string        `json:"notes,omitempty" db:"notes"`
	CreatedBy     string        `json:"created_by" db:"created_by"`
	LastUsedAt    *time.Time    `json:"last_used_at,omitempty" db:"last_used_at"`
	CreatedAt     time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt     *time.Time    `json:"updated_at,omitempty" db:"updated_at"`
}

// Game represents a game in the catalogue. Soft-deleted via IsActive.
type Game struct {
	ID        string     `json:"id" db:"id"`
	Name      string     `json:"name" db:"name"`
	IsActive  bool       `json:"is_active" db:"is_active"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty" db:"updated_at"`
}

// User represents an account. Quota and AllocatedGames are only meaningful
// for resellers; a NULL quota means no issuing capacity has been granted.
type User struct {
	ID             string     `json:"id" db:"id"`
	Username       string     `json:"username" db:"username"`
	PasswordHash   string     `json:"-" db:"password_hash"`
	Role           UserRole   `json:"role" db:"role"`
	Quota          *int       `json:"quota,omitempty" db:"quota"`
	AllocatedGames string     `json:"allocated_games,omitempty" db:"allocated_games"` // JSON array of game ids
	IsActive       bool       `json:"is_active" db:"is_active"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      *time.Time `json:"updated_at,omitempty" db:"updated_at"`
}

// ActivityLog is an append-only audit row. LicenseKeyID is empty for
// login-style audits that are not tied to a key.
type ActivityLog struct {
	ID           string    `json:"id" db:"id"`
	LicenseKeyID string    `json:"license_key_id,omitempty" db:"license_key_id"`
	DeviceID     string    `json:"device_id,omitempty" db:"device_id"`
	Action       string    `json:"action" db:"action"`
	IPAddress    string    `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent    string    `json:"user_agent,omitempty" db:"user_agent"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// AllocatedGamesToJSON converts a game id slice to its stored JSON form.
func AllocatedGamesToJSON(ids []string) string {
	data, _ := json.Marshal(ids)
	return string(data)
}

// JSONToAllocatedGames converts the stored JSON form back to a slice.
func JSONToAllocatedGames(jsonStr string) []string {
	var ids []string
	json.Unmarshal([]byte(jsonStr), &ids)
	return ids
}
