package session

import "errors"

var (
	// ErrInvalidToken is returned when an access token fails verification.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenRevoked is returned for a verified access token whose id is denylisted.
	ErrTokenRevoked = errors.New("token revoked")

	// ErrSessionNotFound is returned when no row matches a session id or token.
	ErrSessionNotFound = errors.New("session not found")

	ErrSessionExpired = errors.New("session expired")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)
