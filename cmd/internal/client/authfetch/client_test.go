package authfetch

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/cracked-sourcecode/QuoteBidV1-sub008/cmd/internal/client/tokenstore"
)

type seen struct {
	mu     sync.Mutex
	auth   string
	hasHdr bool
	cookie string
	method string
	path   string
	body   string
	custom string
}

func newEchoServer(t *testing.T) (*httptest.Server, *seen) {
	t.Helper()

	s := &seen{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		_, s.hasHdr = r.Header["Authorization"]
		s.auth = r.Header.Get("Authorization")
		s.method = r.Method
		s.path = r.URL.Path
		s.custom = r.Header.Get("X-Custom")
		if c, err := r.Cookie("qb_session"); err == nil {
			s.cookie = c.Value
		} else {
			s.cookie = ""
		}
		b, _ := io.ReadAll(r.Body)
		s.body = string(b)

		if r.URL.Path == "/set-cookie" {
			http.SetCookie(w, &http.Cookie{Name: "qb_session", Value: "sess-1", Path: "/"})
		}
		if r.URL.Path == "/api/me" && !strings.HasPrefix(s.auth, "Bearer ") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, s
}

func (s *seen) snapshot() seen {
	s.mu.Lock()
	defer s.mu.Unlock()
	return seen{auth: s.auth, hasHdr: s.hasHdr, cookie: s.cookie, method: s.method, path: s.path, body: s.body, custom: s.custom}
}

func newClient(t *testing.T, tokens tokenstore.Source, base string, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithBaseURL(base)}, opts...)
	c, err := New(tokens, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestSend_TokenPresentAttachesBearer(t *testing.T) {
	srv, rec := newEchoServer(t)

	store := tokenstore.NewMemory()
	store.Set("abc123")
	c := newClient(t, store, srv.URL)

	resp, err := c.Send(context.Background(), "/api/me", RequestOptions{})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	_ = resp.Body.Close()
	s := rec.snapshot()

	if s.auth != "Bearer abc123" {
		t.Fatalf("Authorization=%q want %q", s.auth, "Bearer abc123")
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
}

func TestSend_NoTokenOmitsHeaderButSendsCookies(t *testing.T) {
	srv, rec := newEchoServer(t)

	store := tokenstore.NewMemory()
	c := newClient(t, store, srv.URL)

	resp, err := c.Send(context.Background(), "/set-cookie", RequestOptions{})
	if err != nil {
		t.Fatalf("Send(set-cookie): %v", err)
	}
	_ = resp.Body.Close()

	store.Clear()
	resp, err = c.Send(context.Background(), "/api/public", RequestOptions{
		Header: http.Header{"Authorization": []string{"Bearer stale"}},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	_ = resp.Body.Close()
	s := rec.snapshot()

	if s.hasHdr {
		t.Fatalf("expected no Authorization header, got %q", s.auth)
	}
	if s.cookie != "sess-1" {
		t.Fatalf("cookie=%q want sess-1", s.cookie)
	}
}

func TestSend_RejectionIsAResponse(t *testing.T) {
	srv, _ := newEchoServer(t)

	c := newClient(t, tokenstore.NewMemory(), srv.URL)
	resp, err := c.Send(context.Background(), "/api/me", RequestOptions{})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status=%d want 401", resp.StatusCode)
	}
}

func TestSend_MergesCallerOptions(t *testing.T) {
	srv, rec := newEchoServer(t)

	c := newClient(t, tokenstore.NewMemoryWith("t"), srv.URL)
	resp, err := c.Send(context.Background(), "/things", RequestOptions{
		Method: http.MethodPost,
		Header: http.Header{"X-Custom": []string{"yes"}},
		Body:   bytes.NewBufferString(`{"a":1}`),
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	_ = resp.Body.Close()
	s := rec.snapshot()

	if s.method != http.MethodPost || s.custom != "yes" || s.body != `{"a":1}` || s.auth != "Bearer t" {
		t.Fatalf("unexpected request: auth=%q method=%q custom=%q body=%q", s.auth, s.method, s.custom, s.body)
	}
}

func TestSend_AbsoluteAndRelativeTargets(t *testing.T) {
	srv, rec := newEchoServer(t)

	c := newClient(t, tokenstore.NewMemory(), "")
	resp, err := c.Send(context.Background(), srv.URL+"/abs", RequestOptions{})
	if err != nil {
		t.Fatalf("absolute without base: %v", err)
	}
	_ = resp.Body.Close()
	if s := rec.snapshot(); s.path != "/abs" {
		t.Fatalf("path=%q", s.path)
	}

	if _, err := c.Send(context.Background(), "/rel", RequestOptions{}); !errors.Is(err, ErrRelativeWithoutBase) {
		t.Fatalf("relative without base: err=%v", err)
	}

	c = newClient(t, tokenstore.NewMemory(), srv.URL+"/base/")
	resp, err = c.Send(context.Background(), "rel", RequestOptions{})
	if err != nil {
		t.Fatalf("relative: %v", err)
	}
	_ = resp.Body.Close()
	if s := rec.snapshot(); s.path != "/base/rel" {
		t.Fatalf("path=%q want /base/rel", s.path)
	}
}

func TestSend_TransportErrorPropagatesUnchanged(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	c := newClient(t, tokenstore.NewMemoryWith("t"), addr)
	_, err := c.Send(context.Background(), "/x", RequestOptions{})
	if err == nil {
		t.Fatalf("expected transport error")
	}
	var uerr *url.Error
	if !errors.As(err, &uerr) {
		t.Fatalf("expected *url.Error from transport, got %T: %v", err, err)
	}
}

func TestSend_LogsLengthNeverValue(t *testing.T) {
	srv, _ := newEchoServer(t)

	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	store := tokenstore.NewMemoryWith("secret-token-value")
	c := newClient(t, store, srv.URL, WithLogger(log))

	resp, err := c.Send(context.Background(), "/api/me", RequestOptions{})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	_ = resp.Body.Close()

	store.Clear()
	resp, err = c.Send(context.Background(), "/api/public", RequestOptions{})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	_ = resp.Body.Close()

	out := buf.String()
	if strings.Contains(out, "secret-token-value") {
		t.Fatalf("token value leaked into logs: %s", out)
	}
	if !strings.Contains(out, "authfetch.token.attached") || !strings.Contains(out, "token_len=18") {
		t.Fatalf("missing attached entry: %s", out)
	}
	if !strings.Contains(out, "authfetch.token.absent") {
		t.Fatalf("missing absent entry: %s", out)
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatalf("expected error for nil token source")
	}
	if _, err := New(tokenstore.NewMemory(), WithBaseURL("ftp://x")); err == nil {
		t.Fatalf("expected error for ftp base")
	}
	c, err := New(tokenstore.NewMemory(), WithHTTPClient(&http.Client{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.Jar() == nil {
		t.Fatalf("jar must always be present")
	}
	if c.http.Timeout != 0 {
		t.Fatalf("client must not impose a timeout")
	}
}

func TestNew_CookieJarSurvivesOptionOrder(t *testing.T) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	other, _ := cookiejar.New(nil)

	orders := map[string][]Option{
		"jar first":         {WithCookieJar(jar), WithHTTPClient(&http.Client{})},
		"jar last":          {WithHTTPClient(&http.Client{}), WithCookieJar(jar)},
		"over client's jar": {WithCookieJar(jar), WithHTTPClient(&http.Client{Jar: other})},
	}
	for name, opts := range orders {
		c, err := New(tokenstore.NewMemory(), opts...)
		if err != nil {
			t.Fatalf("%s: New: %v", name, err)
		}
		if c.Jar() != http.CookieJar(jar) {
			t.Fatalf("%s: caller's jar dropped", name)
		}
	}

	c, err := New(tokenstore.NewMemory(), WithHTTPClient(&http.Client{Jar: other}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.Jar() != http.CookieJar(other) {
		t.Fatalf("client's own jar replaced")
	}
}
