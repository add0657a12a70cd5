package license

// Error is a typed license engine failure. Callers inspect the Code to map
// failures onto their own presentation; the engine never collapses distinct
// kinds into a generic error.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e Error) Error() string {
	return e.Message
}

// Is matches errors by code so errors.Is works across wrapped values.
func (e Error) Is(target error) bool {
	t, ok := target.(Error)
	return ok && t.Code == e.Code
}

// Engine error kinds
var (
	ErrKeyNotFound      = Error{Code: "KEY_NOT_FOUND", Message: "license key not found"}
	ErrGameNotFound     = Error{Code: "GAME_NOT_FOUND", Message: "game not found"}
	ErrUserNotFound     = Error{Code: "USER_NOT_FOUND", Message: "user not found"}
	ErrResellerNotFound = Error{Code: "RESELLER_NOT_FOUND", Message: "reseller not found"}
	ErrKeyGenExhausted  = Error{Code: "KEY_GENERATION_EXHAUSTED", Message: "could not generate a unique license key"}
	ErrExpired          = Error{Code: "LICENSE_EXPIRED", Message: "license key has expired"}
	ErrSuspended        = Error{Code: "LICENSE_SUSPENDED", Message: "license key is suspended"}
	ErrDeviceLocked     = Error{Code: "DEVICE_LOCKED", Message: "license key is locked to another device"}
	ErrDuplicateKey     = Error{Code: "DUPLICATE_KEY", Message: "license key already exists"}
	ErrInvalidStatus    = Error{Code: "INVALID_STATUS", Message: "invalid license status"}
)
