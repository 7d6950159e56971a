package realtime

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	wsDefaultSendQueueSize = 64
	wsMinSendQueueSize     = 8

	wsDefaultWriteTimeout = 5 * time.Second
	wsDefaultReadIdle     = 2 * time.Minute

	wsDefaultOriginRequired = true
	wsDefaultAllowedOrigins = "http://localhost,http://127.0.0.1"

	wsDefaultNotice = "QuoteBid works best on desktop. Keep this tab open to receive live updates."
)

// GatewayConfig holds the socket gateway knobs. Zero values are replaced
// with defaults by NewGateway.
type GatewayConfig struct {
	// DevInsecure skips the origin check in websocket.Accept.
	DevInsecure    bool
	OriginRequired bool
	AllowedOrigins []string

	// RequireAuth rejects handshakes without a token with 401.
	// A token that is present but invalid is always rejected.
	RequireAuth bool

	WriteTimeout    time.Duration
	ReadIdleTimeout time.Duration
	SendQueueSize   int

	HeartbeatEvery   time.Duration
	HeartbeatTimeout time.Duration

	RateEvents int
	RateWindow time.Duration

	LiveCheckEvery time.Duration

	// Notice is sent to non-mobile clients after session.ready. Empty disables it.
	Notice string
}

func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		OriginRequired:   wsDefaultOriginRequired,
		AllowedOrigins:   splitCSV(wsDefaultAllowedOrigins),
		WriteTimeout:     wsDefaultWriteTimeout,
		ReadIdleTimeout:  wsDefaultReadIdle,
		SendQueueSize:    wsDefaultSendQueueSize,
		HeartbeatEvery:   heartbeatInterval,
		HeartbeatTimeout: heartbeatTimeout,
		RateEvents:       rateLimitEvents,
		RateWindow:       rateLimitWindow,
		LiveCheckEvery:   liveCheckInterval,
		Notice:           wsDefaultNotice,
	}
}

// LoadGatewayConfigFromEnv reads QB_WS_*. Malformed values fall back to defaults.
func LoadGatewayConfigFromEnv() GatewayConfig {
	def := DefaultGatewayConfig()

	cfg := GatewayConfig{
		DevInsecure:      envBoolWS("QB_WS_DEV_INSECURE", false),
		OriginRequired:   envBoolWS("QB_WS_ORIGIN_REQUIRED", def.OriginRequired),
		AllowedOrigins:   envCSVWS("QB_WS_ALLOWED_ORIGINS", wsDefaultAllowedOrigins),
		RequireAuth:      envBoolWS("QB_WS_REQUIRE_AUTH", false),
		WriteTimeout:     envDurationWS("QB_WS_WRITE_TIMEOUT", def.WriteTimeout),
		ReadIdleTimeout:  envDurationWS("QB_WS_READ_IDLE_TIMEOUT", def.ReadIdleTimeout),
		SendQueueSize:    envIntWS("QB_WS_SEND_QUEUE", def.SendQueueSize),
		HeartbeatEvery:   envDurationWS("QB_WS_HEARTBEAT_INTERVAL", def.HeartbeatEvery),
		HeartbeatTimeout: envDurationWS("QB_WS_HEARTBEAT_TIMEOUT", def.HeartbeatTimeout),
		RateEvents:       envIntWS("QB_WS_RATE_EVENTS", def.RateEvents),
		RateWindow:       envDurationWS("QB_WS_RATE_WINDOW", def.RateWindow),
		LiveCheckEvery:   envDurationWS("QB_WS_LIVE_CHECK_INTERVAL", def.LiveCheckEvery),
		Notice:           def.Notice,
	}
	if v, ok := os.LookupEnv("QB_WS_NOTICE"); ok {
		cfg.Notice = strings.TrimSpace(v)
	}
	return cfg
}

func (c GatewayConfig) withDefaults() GatewayConfig {
	def := DefaultGatewayConfig()
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.ReadIdleTimeout <= 0 {
		c.ReadIdleTimeout = def.ReadIdleTimeout
	}
	if c.SendQueueSize < wsMinSendQueueSize {
		c.SendQueueSize = wsMinSendQueueSize
	}
	if c.HeartbeatEvery <= 0 {
		c.HeartbeatEvery = def.HeartbeatEvery
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = def.HeartbeatTimeout
	}
	if c.RateEvents <= 0 {
		c.RateEvents = def.RateEvents
	}
	if c.RateWindow <= 0 {
		c.RateWindow = def.RateWindow
	}
	if c.LiveCheckEvery <= 0 {
		c.LiveCheckEvery = def.LiveCheckEvery
	}
	return c
}

// ---- env helpers ----

func envBoolWS(key string, def bool) bool {
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

func envIntWS(key string, def int) int {
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

func envDurationWS(key string, def time.Duration) time.Duration {
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

func envCSVWS(key string, def string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		raw = def
	}
	return splitCSV(raw)
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
