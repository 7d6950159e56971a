package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/cracked-sourcecode/QuoteBidV1-sub008/cmd/internal/client/socket"
	v1 "github.com/cracked-sourcecode/QuoteBidV1-sub008/shared/contracts/realtime/v1"

	paseto "aidanwoods.dev/go-paseto"
)

const (
	seedUser     = "dev-operator"
	seedPassword = "correct horse battery"
)

func setTestEnv(t *testing.T) {
	t.Helper()
	t.Setenv("QB_PASETO_V4_SECRET_KEY_HEX", paseto.NewV4AsymmetricSecretKey().ExportHex())
	t.Setenv("QB_ARGON2_MEMORY_KIB", "8192")
	t.Setenv("QB_ARGON2_ITERATIONS", "1")
	t.Setenv("QB_ARGON2_PARALLELISM", "1")
	t.Setenv("QB_WS_ORIGIN_REQUIRED", "false")
	t.Setenv("QB_DATABASE_URL", "")
	t.Setenv("QB_REDIS_ADDR", "")
	t.Setenv("QB_REQUIRE_TOKEN_HMAC", "")
	t.Setenv("QB_DEV_SEED_USER", seedUser)
	t.Setenv("QB_DEV_SEED_PASSWORD", seedPassword)
}

func newTestApp(t *testing.T) (*App, *httptest.Server, *httptest.Server) {
	t.Helper()
	setTestEnv(t)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := New(context.Background(), LoadConfig(), log)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	api := httptest.NewServer(a.Handler())
	ws := httptest.NewServer(a.WSHandler())
	t.Cleanup(func() {
		api.Close()
		ws.Close()
		a.closeResources()
	})
	return a, api, ws
}

func login(t *testing.T, api *httptest.Server) string {
	t.Helper()

	body, _ := json.Marshal(map[string]string{"username": seedUser, "password": seedPassword})
	res, err := http.Post(api.URL+"/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("login status=%d", res.StatusCode)
	}

	var out struct {
		Session struct {
			AccessToken string `json:"access_token"`
		} `json:"session"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	if out.Session.AccessToken == "" {
		t.Fatalf("login returned no access token")
	}
	return out.Session.AccessToken
}

func authed(t *testing.T, method, target, tok string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest(method, target, nil)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, target, err)
	}
	t.Cleanup(func() { _ = res.Body.Close() })
	return res
}

func TestApp_HealthAndMetrics(t *testing.T) {
	_, api, _ := newTestApp(t)

	res := authed(t, http.MethodGet, api.URL+"/healthz", "")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("healthz=%d", res.StatusCode)
	}
	if res.Header.Get("X-Request-ID") == "" || res.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("middleware headers missing: %v", res.Header)
	}

	if res := authed(t, http.MethodGet, api.URL+"/readyz", ""); res.StatusCode != http.StatusOK {
		t.Fatalf("readyz=%d", res.StatusCode)
	}

	if res := authed(t, http.MethodGet, api.URL+"/api/me", ""); res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous /api/me=%d", res.StatusCode)
	}

	res = authed(t, http.MethodGet, api.URL+"/metrics", "")
	b, _ := io.ReadAll(res.Body)
	if !strings.Contains(string(b), `quotebid_auth_rejections_total{reason="missing"} 1`) {
		t.Fatalf("rejection counter not exported:\n%s", b)
	}
	if !strings.Contains(string(b), "quotebid_ws_connections 0") {
		t.Fatalf("socket gauge not exported")
	}
}

func TestApp_LoginSocketLogout(t *testing.T) {
	_, api, wsSrv := newTestApp(t)

	tok := login(t, api)
	if res := authed(t, http.MethodGet, api.URL+"/api/me", tok); res.StatusCode != http.StatusOK {
		t.Fatalf("/api/me with bearer=%d", res.StatusCode)
	}

	u, _ := url.Parse(wsSrv.URL)
	host, portStr, _ := net.SplitHostPort(u.Host)
	port, _ := strconv.Atoi(portStr)
	d := &socket.Dialer{Endpoint: socket.Endpoint{Host: host, Port: port}, Policy: socket.RequireToken}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	conn, err := d.Open(ctx, tok)
	if err != nil {
		t.Fatalf("socket open: %v", err)
	}
	defer conn.Close()

	next := func() v1.Envelope {
		t.Helper()
		select {
		case m, ok := <-conn.Messages():
			if !ok {
				t.Fatalf("socket ended: %v", conn.Err())
			}
			var env v1.Envelope
			if err := json.Unmarshal(m.Data, &env); err != nil {
				t.Fatalf("decode: %v", err)
			}
			return env
		case <-ctx.Done():
			t.Fatalf("timed out")
		}
		return v1.Envelope{}
	}

	if env := next(); env.Type != v1.TypeSessionReady {
		t.Fatalf("first envelope=%q", env.Type)
	}

	if res := authed(t, http.MethodPost, api.URL+"/auth/logout", tok); res.StatusCode != http.StatusNoContent {
		t.Fatalf("logout=%d", res.StatusCode)
	}

	for {
		env := next()
		if env.Type == v1.TypeSessionNotice {
			continue
		}
		if env.Type != v1.TypeSessionRevoked {
			t.Fatalf("expected session.revoked, got %q", env.Type)
		}
		break
	}

	if res := authed(t, http.MethodGet, api.URL+"/api/me", tok); res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("/api/me after logout=%d", res.StatusCode)
	}
}

func TestValidateSecurityConfig(t *testing.T) {
	t.Setenv("QB_TOKEN_HMAC_KEY", "")
	if _, err := ValidateSecurityConfig(Config{RequireTokenHMAC: true}); err == nil {
		t.Fatalf("missing key must fail when required")
	}

	t.Setenv("QB_TOKEN_HMAC_KEY", "short")
	if _, err := ValidateSecurityConfig(Config{RequireTokenHMAC: true}); err == nil {
		t.Fatalf("short key must fail when required")
	}

	t.Setenv("QB_TOKEN_HMAC_KEY", strings.Repeat("k", 32))
	h, err := ValidateSecurityConfig(Config{RequireTokenHMAC: true})
	if err != nil || !h.Keyed() {
		t.Fatalf("keyed=%v err=%v", h.Keyed(), err)
	}

	t.Setenv("QB_TOKEN_HMAC_KEY", "")
	h, err = ValidateSecurityConfig(Config{})
	if err != nil || h.Keyed() {
		t.Fatalf("unrequired: keyed=%v err=%v", h.Keyed(), err)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte("QB_DOTENV_PROBE=from-file\nQB_DOTENV_KEEP=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("QB_ENV_FILE", path)
	t.Setenv("QB_DOTENV_KEEP", "from-env")
	t.Setenv("QB_DOTENV_PROBE", "")
	_ = os.Unsetenv("QB_DOTENV_PROBE")

	if err := LoadDotEnv(); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("QB_DOTENV_PROBE"); got != "from-file" {
		t.Fatalf("probe=%q", got)
	}
	if got := os.Getenv("QB_DOTENV_KEEP"); got != "from-env" {
		t.Fatalf("existing variable overridden: %q", got)
	}

	t.Setenv("QB_ENV_FILE", filepath.Join(dir, "missing.env"))
	if err := LoadDotEnv(); err == nil {
		t.Fatalf("explicit missing file must fail")
	}
}

func TestLoadConfig_WSPortFromEnv(t *testing.T) {
	t.Setenv("QB_WS_PORT", "6001")
	t.Setenv("QB_WS_BIND_HOST", "127.0.0.1")
	if got := LoadConfig().WSAddr; got != "127.0.0.1:6001" {
		t.Fatalf("WSAddr=%q", got)
	}

	t.Setenv("QB_WS_PORT", "")
	if got := LoadConfig().WSAddr; got != "127.0.0.1:5050" {
		t.Fatalf("fallback WSAddr=%q", got)
	}
}
