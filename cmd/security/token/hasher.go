package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
)

const (
	// #nosec G101 -- environment variable name, not a credential.
	HMACEnvKey = "QB_TOKEN_HMAC_KEY"

	MinHMACKeyBytes = 32
)

// HasherFromEnv reports these when QB_REQUIRE_TOKEN_HMAC demands a key.
var (
	ErrHMACKeyMissing  = errors.New("session token hmac key is not set")
	ErrHMACKeyTooShort = errors.New("session token hmac key is shorter than 32 bytes")
)

// Hasher digests opaque tokens for storage and lookup.
type Hasher struct {
	key []byte
}

// NewHasher returns an HMAC hasher for a non-empty key, SHA-256 otherwise.
func NewHasher(key []byte) Hasher {
	if len(key) == 0 {
		return Hasher{}
	}
	return Hasher{key: append([]byte(nil), key...)}
}

// HasherFromEnv reads HMACEnvKey. With require set, a missing or short key
// is an error instead of a SHA-256 fallback.
func HasherFromEnv(require bool) (Hasher, error) {
	raw := strings.TrimSpace(os.Getenv(HMACEnvKey))
	switch {
	case raw == "" && require:
		return Hasher{}, ErrHMACKeyMissing
	case raw != "" && require && len(raw) < MinHMACKeyBytes:
		return Hasher{}, ErrHMACKeyTooShort
	}
	return NewHasher([]byte(raw)), nil
}

func (h Hasher) Keyed() bool { return len(h.key) > 0 }

// Hash returns the hex digest of tok.
func (h Hasher) Hash(tok string) string {
	if !h.Keyed() {
		sum := sha256.Sum256([]byte(tok))
		return hex.EncodeToString(sum[:])
	}
	m := hmac.New(sha256.New, h.key)
	_, _ = m.Write([]byte(tok))
	return hex.EncodeToString(m.Sum(nil))
}

// Equal compares two digests in constant time.
func Equal(a, b string) bool {
	return hmac.Equal([]byte(a), []byte(b))
}

// NewOpaque returns a URL-safe random token carrying n bytes of entropy.
func NewOpaque(n int) (string, error) {
	if n < 16 {
		n = 32
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("token: random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
