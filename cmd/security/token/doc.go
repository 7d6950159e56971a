// Package token hashes and mints opaque session tokens.
//
// Session-cookie tokens are stored only as a 64-char hex digest:
// HMAC-SHA256 under QB_TOKEN_HMAC_KEY when configured, plain SHA-256
// otherwise (development).
package token
