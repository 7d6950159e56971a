package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cracked-sourcecode/QuoteBidV1-sub008/cmd/identity"
	"github.com/cracked-sourcecode/QuoteBidV1-sub008/cmd/internal/auth/denylist"
	"github.com/cracked-sourcecode/QuoteBidV1-sub008/cmd/internal/auth/session"
	"github.com/cracked-sourcecode/QuoteBidV1-sub008/cmd/security/password"

	paseto "aidanwoods.dev/go-paseto"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

const (
	testUser     = "alice"
	testPassword = "correct horse battery"
)

type recordingNotifier struct {
	mu    sync.Mutex
	ended []string
}

func (n *recordingNotifier) SessionEnded(sessionID, reason string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ended = append(n.ended, sessionID+":"+reason)
}

type fixture struct {
	ts         *httptest.Server
	sessions   *session.MemoryStore
	notifier   *recordingNotifier
	rejections *prometheus.CounterVec
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()

	pw := password.DefaultConfig()
	pw.Params.MemoryKiB = 8 * 1024
	pw.Params.Iterations = 1
	pw.Params.Parallelism = 1

	users := identity.NewMemoryStore()
	auth, err := identity.NewAuthenticator(users, pw, nil)
	if err != nil {
		t.Fatalf("NewAuthenticator: %v", err)
	}
	if _, err := auth.Register(context.Background(), testUser, testPassword, time.Now()); err != nil {
		t.Fatalf("Register: %v", err)
	}

	scfg := session.DefaultConfig()
	scfg.PasetoV4SecretKeyHex = paseto.NewV4AsymmetricSecretKey().ExportHex()
	mgr, err := session.NewPasetoV4PublicManager(scfg)
	if err != nil {
		t.Fatalf("NewPasetoV4PublicManager: %v", err)
	}
	store := session.NewMemoryStore()
	svc := session.NewService(scfg, store, mgr, session.WithDenylist(denylist.NewMemory()))

	f := &fixture{
		sessions: store,
		notifier: &recordingNotifier{},
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "test_auth_rejections_total",
		}, []string{"reason"}),
	}

	h, err := NewHandler(nil, cfg, users, auth, svc, WithNotifier(f.notifier), WithRejectionCounter(f.rejections))
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}

	mux := http.NewServeMux()
	h.Register(mux)
	f.ts = httptest.NewServer(mux)
	t.Cleanup(f.ts.Close)
	return f
}

type loginResult struct {
	status int
	body   loginResponse
	cookie *http.Cookie
	header http.Header
}

func (f *fixture) login(t *testing.T, username, pass string) loginResult {
	t.Helper()

	b, _ := json.Marshal(loginRequest{Username: username, Password: pass})
	req, _ := http.NewRequest(http.MethodPost, f.ts.URL+"/auth/login", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) Firefox/128.0")

	res, err := f.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	defer res.Body.Close()

	out := loginResult{status: res.StatusCode, header: res.Header}
	if res.StatusCode == http.StatusOK {
		if err := json.NewDecoder(res.Body).Decode(&out.body); err != nil {
			t.Fatalf("decode login: %v", err)
		}
	}
	for _, c := range res.Cookies() {
		if c.Name == "qb_session" {
			out.cookie = c
		}
	}
	return out
}

func (f *fixture) get(t *testing.T, path, bearer string, cookie *http.Cookie) (int, []byte) {
	t.Helper()
	return f.do(t, http.MethodGet, path, bearer, cookie)
}

func (f *fixture) do(t *testing.T, method, path, bearer string, cookie *http.Cookie) (int, []byte) {
	t.Helper()

	req, _ := http.NewRequest(method, f.ts.URL+path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if cookie != nil {
		req.AddCookie(&http.Cookie{Name: cookie.Name, Value: cookie.Value})
	}
	res, err := f.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)
	return res.StatusCode, body
}

func counterValue(t *testing.T, vec *prometheus.CounterVec, label string) float64 {
	t.Helper()
	var m dto.Metric
	if err := vec.WithLabelValues(label).Write(&m); err != nil {
		t.Fatalf("read counter: %v", err)
	}
	return m.GetCounter().GetValue()
}

func errorCode(t *testing.T, body []byte) string {
	t.Helper()
	var e errorResponse
	if err := json.Unmarshal(body, &e); err != nil {
		t.Fatalf("decode error body %q: %v", body, err)
	}
	return e.Error.Code
}

func TestLogin_IssuesCookieAndAccessToken(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	res := f.login(t, "ALICE", testPassword)
	if res.status != http.StatusOK {
		t.Fatalf("status=%d", res.status)
	}
	if res.body.Session.AccessToken == "" || res.body.User.Username != testUser {
		t.Fatalf("body=%+v", res.body)
	}
	if res.body.Session.Platform != string(session.PlatformWeb) {
		t.Fatalf("platform=%q", res.body.Session.Platform)
	}
	if res.cookie == nil || !res.cookie.HttpOnly || res.cookie.Value == "" {
		t.Fatalf("cookie=%+v", res.cookie)
	}
	if strings.Contains(res.cookie.Value, res.body.Session.AccessToken) {
		t.Fatalf("cookie carries the access token")
	}
	if got := res.header.Get("Cache-Control"); got != "no-store" {
		t.Fatalf("Cache-Control=%q", got)
	}
}

func TestLogin_BadCredentialsAreIndistinguishable(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	for _, tc := range []struct{ user, pass string }{
		{testUser, "wrong password here"},
		{"nobody", testPassword},
	} {
		res := f.login(t, tc.user, tc.pass)
		if res.status != http.StatusUnauthorized || res.cookie != nil {
			t.Fatalf("%s: status=%d cookie=%v", tc.user, res.status, res.cookie)
		}
	}
	if got := counterValue(t, f.rejections, "invalid_credentials"); got != 2 {
		t.Fatalf("rejections=%v want 2", got)
	}
}

func TestLogin_RateLimitedPerIP(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LoginPerMinute = 1
	cfg.LoginBurst = 2
	f := newFixture(t, cfg)

	for i := 0; i < 2; i++ {
		if res := f.login(t, testUser, "wrong password here"); res.status != http.StatusUnauthorized {
			t.Fatalf("attempt %d status=%d", i, res.status)
		}
	}
	res := f.login(t, testUser, testPassword)
	if res.status != http.StatusTooManyRequests {
		t.Fatalf("status=%d want 429", res.status)
	}
	if res.header.Get("Retry-After") == "" {
		t.Fatalf("missing Retry-After")
	}
}

func TestMe_BearerCookieOrRejection(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	login := f.login(t, testUser, testPassword)
	token := login.body.Session.AccessToken

	status, body := f.get(t, "/api/me", token, nil)
	if status != http.StatusOK {
		t.Fatalf("bearer status=%d body=%s", status, body)
	}
	var me meResponse
	_ = json.Unmarshal(body, &me)
	if me.Via != "bearer" || me.User.Username != testUser || me.SessionID != login.body.Session.SessionID {
		t.Fatalf("me=%+v", me)
	}

	status, body = f.get(t, "/api/me", "", login.cookie)
	_ = json.Unmarshal(body, &me)
	if status != http.StatusOK || me.Via != "cookie" {
		t.Fatalf("cookie status=%d me=%+v", status, me)
	}

	// A stale bearer next to a good cookie still gets through.
	status, _ = f.get(t, "/api/me", "v4.public.garbage", login.cookie)
	if status != http.StatusOK {
		t.Fatalf("stale bearer + cookie status=%d", status)
	}

	status, body = f.get(t, "/api/me", "", nil)
	if status != http.StatusUnauthorized || errorCode(t, body) != "unauthorized" {
		t.Fatalf("anonymous status=%d body=%s", status, body)
	}
	if got := counterValue(t, f.rejections, "missing"); got != 1 {
		t.Fatalf("missing rejections=%v", got)
	}
}

func TestMe_SessionPurgeRejectsCookieButNotBearer(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	login := f.login(t, testUser, testPassword)

	if n, err := f.sessions.DeleteAll(context.Background()); err != nil || n != 1 {
		t.Fatalf("DeleteAll=(%d,%v)", n, err)
	}

	if status, _ := f.get(t, "/api/me", "", login.cookie); status != http.StatusUnauthorized {
		t.Fatalf("cookie after purge status=%d want 401", status)
	}
	if status, _ := f.get(t, "/api/me", login.body.Session.AccessToken, nil); status != http.StatusOK {
		t.Fatalf("bearer after purge status=%d want 200", status)
	}
}

func TestLogout_RevokesBothCredentials(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	login := f.login(t, testUser, testPassword)
	token := login.body.Session.AccessToken

	if status, _ := f.do(t, http.MethodPost, "/auth/logout", token, login.cookie); status != http.StatusNoContent {
		t.Fatalf("logout status=%d", status)
	}

	if status, _ := f.get(t, "/api/me", token, nil); status != http.StatusUnauthorized {
		t.Fatalf("bearer after logout status=%d", status)
	}
	if status, _ := f.get(t, "/api/me", "", login.cookie); status != http.StatusUnauthorized {
		t.Fatalf("cookie after logout status=%d", status)
	}

	f.notifier.mu.Lock()
	defer f.notifier.mu.Unlock()
	if len(f.notifier.ended) != 1 || f.notifier.ended[0] != login.body.Session.SessionID+":logout" {
		t.Fatalf("notifier=%v", f.notifier.ended)
	}
}

func TestLogout_RequiresCredentials(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	if status, _ := f.do(t, http.MethodPost, "/auth/logout", "", nil); status != http.StatusUnauthorized {
		t.Fatalf("status=%d", status)
	}
}

func TestPublic_ReportsCaller(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	login := f.login(t, testUser, testPassword)

	var out publicResponse
	_, body := f.get(t, "/api/public", "", nil)
	_ = json.Unmarshal(body, &out)
	if !out.OK || out.Authenticated {
		t.Fatalf("anonymous public=%+v", out)
	}

	_, body = f.get(t, "/api/public", "", login.cookie)
	_ = json.Unmarshal(body, &out)
	if !out.Authenticated || out.Via != "cookie" {
		t.Fatalf("cookie public=%+v", out)
	}
}

func TestMethodsAreEnforced(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/auth/login"},
		{http.MethodGet, "/auth/logout"},
		{http.MethodPost, "/api/me"},
		{http.MethodDelete, "/api/public"},
	} {
		if status, _ := f.do(t, tc.method, tc.path, "", nil); status != http.StatusMethodNotAllowed {
			t.Fatalf("%s %s status=%d", tc.method, tc.path, status)
		}
	}
}

func TestBearerToken(t *testing.T) {
	tests := map[string]string{
		"":                 "",
		"Bearer abc":       "abc",
		"bearer  abc ":     "abc",
		"Basic Zm9vOmJhcg": "",
		"Bearer":           "",
	}
	for header, want := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			r.Header.Set("Authorization", header)
		}
		if got := BearerToken(r); got != want {
			t.Fatalf("BearerToken(%q)=%q want %q", header, got, want)
		}
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.1.2.3:5555"
	r.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")

	if got := clientIP(r, false).String(); got != "10.1.2.3" {
		t.Fatalf("untrusted=%s", got)
	}
	if got := clientIP(r, true).String(); got != "203.0.113.5" {
		t.Fatalf("trusted=%s", got)
	}
}
