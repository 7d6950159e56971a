package authapi

import (
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config controls the auth endpoints.
type Config struct {
	TrustProxy   bool
	MaxBodyBytes int64

	// LoginPerMinute and LoginBurst bound login attempts per client IP.
	LoginPerMinute int
	LoginBurst     int
	// LimiterIdle is how long an IP's limiter is kept without attempts.
	LimiterIdle time.Duration

	CookieName     string
	CookiePath     string
	CookieDomain   string
	CookieSecure   bool
	CookieSameSite http.SameSite
}

func DefaultConfig() Config {
	return Config{
		MaxBodyBytes:   64 << 10,
		LoginPerMinute: 10,
		LoginBurst:     5,
		LimiterIdle:    10 * time.Minute,
		CookieName:     "qb_session",
		CookiePath:     "/",
		CookieSameSite: http.SameSiteLaxMode,
	}
}

// LoadConfigFromEnv reads QB_AUTH_*, QB_LOGIN_* and QB_COOKIE_* keys.
// Invalid values fall back to the defaults.
func LoadConfigFromEnv() Config {
	def := DefaultConfig()
	return Config{
		TrustProxy:     envBool("QB_AUTH_TRUST_PROXY", false),
		MaxBodyBytes:   envInt64("QB_AUTH_MAX_BODY_BYTES", def.MaxBodyBytes),
		LoginPerMinute: envInt("QB_LOGIN_RATE_PER_MINUTE", def.LoginPerMinute),
		LoginBurst:     envInt("QB_LOGIN_BURST", def.LoginBurst),
		LimiterIdle:    envDuration("QB_LOGIN_LIMITER_IDLE", def.LimiterIdle),
		CookieName:     envString("QB_SESSION_COOKIE_NAME", def.CookieName),
		CookiePath:     def.CookiePath,
		CookieDomain:   strings.TrimSpace(os.Getenv("QB_COOKIE_DOMAIN")),
		CookieSecure:   envBool("QB_COOKIE_SECURE", false),
		CookieSameSite: parseSameSite(os.Getenv("QB_COOKIE_SAMESITE"), def.CookieSameSite),
	}
}

func parseSameSite(v string, def http.SameSite) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "lax":
		return http.SameSiteLaxMode
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return def
	}
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
