package session

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the token and session lifetimes and the signing key.
type Config struct {
	// Issuer is the "iss" claim of access tokens.
	Issuer string

	AccessTokenTTL time.Duration

	// Session row lifetimes, picked from the user agent at login.
	SessionTTLWeb    time.Duration
	SessionTTLMobile time.Duration

	// ClockSkew is tolerated when checking nbf.
	ClockSkew time.Duration

	// SessionTokenBytes is the entropy of the opaque cookie token.
	SessionTokenBytes int

	// PasetoV4SecretKeyHex is the hex Ed25519 secret key for v4.public.
	PasetoV4SecretKeyHex string
}

func DefaultConfig() Config {
	return Config{
		Issuer:            "quotebid",
		AccessTokenTTL:    15 * time.Minute,
		SessionTTLWeb:     7 * 24 * time.Hour,
		SessionTTLMobile:  30 * 24 * time.Hour,
		ClockSkew:         30 * time.Second,
		SessionTokenBytes: 32,
	}
}

// LoadConfigFromEnv reads the session settings.
//
// Required:
//   - QB_PASETO_V4_SECRET_KEY_HEX
//
// Optional (Go duration strings unless noted):
//   - QB_AUTH_ISSUER
//   - QB_ACCESS_TOKEN_TTL
//   - QB_SESSION_TTL_WEB
//   - QB_SESSION_TTL_MOBILE
//   - QB_AUTH_CLOCK_SKEW
//   - QB_SESSION_TOKEN_BYTES (integer, 32..64)
//
// Errors wrap ErrConfig and name the offending key.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := strings.TrimSpace(os.Getenv("QB_AUTH_ISSUER")); v != "" {
		cfg.Issuer = v
	}

	durations := []struct {
		key       string
		dst       *time.Duration
		allowZero bool
	}{
		{"QB_ACCESS_TOKEN_TTL", &cfg.AccessTokenTTL, false},
		{"QB_SESSION_TTL_WEB", &cfg.SessionTTLWeb, false},
		{"QB_SESSION_TTL_MOBILE", &cfg.SessionTTLMobile, false},
		{"QB_AUTH_CLOCK_SKEW", &cfg.ClockSkew, true},
	}
	for _, d := range durations {
		v := strings.TrimSpace(os.Getenv(d.key))
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil || parsed < 0 || (parsed == 0 && !d.allowZero) {
			return Config{}, fmt.Errorf("%w: %s", ErrConfig, d.key)
		}
		*d.dst = parsed
	}

	if v := strings.TrimSpace(os.Getenv("QB_SESSION_TOKEN_BYTES")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 32 || n > 64 {
			return Config{}, fmt.Errorf("%w: QB_SESSION_TOKEN_BYTES", ErrConfig)
		}
		cfg.SessionTokenBytes = n
	}

	cfg.PasetoV4SecretKeyHex = strings.TrimSpace(os.Getenv("QB_PASETO_V4_SECRET_KEY_HEX"))
	if cfg.PasetoV4SecretKeyHex == "" {
		return Config{}, fmt.Errorf("%w: QB_PASETO_V4_SECRET_KEY_HEX", ErrConfig)
	}

	// An access token must never outlive the shortest session.
	if cfg.AccessTokenTTL > min(cfg.SessionTTLWeb, cfg.SessionTTLMobile) {
		return Config{}, fmt.Errorf("%w: QB_ACCESS_TOKEN_TTL exceeds session ttl", ErrConfig)
	}

	return cfg, nil
}
