package identity

import "errors"

// Sentinel kinds, stable for errors.Is and for API status mapping.
var (
	ErrInvalidInput       = errors.New("invalid_input")
	ErrNotFound           = errors.New("not_found")
	ErrConflict           = errors.New("conflict")
	ErrInvalidCredentials = errors.New("invalid_credentials")
)
