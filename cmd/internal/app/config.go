package app

import (
	"net"
	"strconv"
	"time"

	"github.com/cracked-sourcecode/QuoteBidV1-sub008/cmd/internal/client/socket"
)

// Config contains the server runtime configuration loaded from QB_* variables.
type Config struct {
	HTTPAddr string
	// WSAddr serves the session socket. Its port comes from QB_WS_PORT so
	// server and clients agree on the same fallback.
	WSAddr string

	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32
	AutoMigrate bool

	// If true, /readyz returns 503 unless the database is configured and reachable.
	ReadinessRequireDB bool

	// If true, QB_TOKEN_HMAC_KEY must be set (>= 32 bytes).
	RequireTokenHMAC bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int

	MetricsEnabled bool

	// Dev-only: created at startup when both are set.
	DevSeedUser     string
	DevSeedPassword string
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr: EnvString("QB_HTTP_ADDR", "0.0.0.0:8080"),
		WSAddr:   net.JoinHostPort(EnvString("QB_WS_BIND_HOST", "0.0.0.0"), strconv.Itoa(socket.PortFromEnv())),

		LogLevel:  EnvString("QB_LOG_LEVEL", "info"),
		LogFormat: EnvString("QB_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("QB_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("QB_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("QB_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("QB_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("QB_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("QB_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("QB_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("QB_DB_MIN_CONNS", 0),
		AutoMigrate: EnvBool("QB_AUTO_MIGRATE", false),

		ReadinessRequireDB: EnvBool("QB_READINESS_REQUIRE_DB", false),
		RequireTokenHMAC:   EnvBool("QB_REQUIRE_TOKEN_HMAC", false),

		RedisAddr:     EnvString("QB_REDIS_ADDR", ""),
		RedisPassword: EnvString("QB_REDIS_PASSWORD", ""),
		RedisDB:       EnvInt("QB_REDIS_DB", 0),

		CORSAllowedOrigins:   EnvCSV("QB_CORS_ALLOWED_ORIGINS", "http://localhost:*,http://127.0.0.1:*"),
		CORSAllowCredentials: EnvBool("QB_CORS_ALLOW_CREDENTIALS", true),
		CORSMaxAgeSeconds:    EnvInt("QB_CORS_MAX_AGE_SECONDS", 600),

		MetricsEnabled: EnvBool("QB_METRICS_ENABLED", true),

		DevSeedUser:     EnvString("QB_DEV_SEED_USER", ""),
		DevSeedPassword: EnvString("QB_DEV_SEED_PASSWORD", ""),
	}
}
