// Package authfetch sends HTTP requests on behalf of a client process with
// the current bearer token attached.
//
// Every request carries cookies (the client always owns a cookie jar) so a
// cookie session issued by the server rides alongside the bearer token.
// The client performs no retries and sets no timeout; cancellation is the
// caller's, through ctx. Transport errors are returned unchanged and
// response statuses are never interpreted: a 401 is a normal response.
package authfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"github.com/cracked-sourcecode/QuoteBidV1-sub008/cmd/internal/client/tokenstore"

	"golang.org/x/net/publicsuffix"
)

var ErrRelativeWithoutBase = errors.New("authfetch: relative target without base URL")

// RequestOptions describes the caller's part of an outbound request.
type RequestOptions struct {
	Method string // defaults to GET
	Header http.Header
	Body   io.Reader
}

type Client struct {
	tokens tokenstore.Source
	base   *url.URL
	http   *http.Client
	jar    http.CookieJar
	log    *slog.Logger
}

type Option func(*Client) error

// WithBaseURL sets the URL relative targets are resolved against.
func WithBaseURL(raw string) Option {
	return func(c *Client) error {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			c.base = nil
			return nil
		}
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("authfetch: parse base url: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("authfetch: base url scheme must be http or https, got %q", u.Scheme)
		}
		if u.Host == "" {
			return errors.New("authfetch: base url missing host")
		}
		c.base = u
		return nil
	}
}

// WithHTTPClient uses hc for transport. A copy is taken; a jar given with
// WithCookieJar wins over hc.Jar in any option order, and a client with
// neither gets a fresh one.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		if hc == nil {
			return nil
		}
		cp := *hc
		c.http = &cp
		return nil
	}
}

func WithCookieJar(jar http.CookieJar) Option {
	return func(c *Client) error {
		if jar == nil {
			return errors.New("authfetch: nil cookie jar")
		}
		c.jar = jar
		return nil
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(c *Client) error {
		if log != nil {
			c.log = log
		}
		return nil
	}
}

// New builds a client reading its token from tokens at send time.
func New(tokens tokenstore.Source, opts ...Option) (*Client, error) {
	if tokens == nil {
		return nil, errors.New("authfetch: nil token source")
	}

	c := &Client{
		tokens: tokens,
		http:   &http.Client{},
		log:    slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	switch {
	case c.jar != nil:
		c.http.Jar = c.jar
	case c.http.Jar == nil:
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("authfetch: cookie jar: %w", err)
		}
		c.http.Jar = jar
	}

	return c, nil
}

// Jar exposes the cookie jar shared by every request of this client.
func (c *Client) Jar() http.CookieJar { return c.http.Jar }

// Resolve turns target into an absolute URL. Absolute http(s) targets are
// returned as-is; anything else is resolved against the base URL.
func (c *Client) Resolve(target string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(target))
	if err != nil {
		return nil, fmt.Errorf("authfetch: parse target: %w", err)
	}
	if u.IsAbs() {
		return u, nil
	}
	if c.base == nil {
		return nil, ErrRelativeWithoutBase
	}
	return c.base.ResolveReference(u), nil
}

// Send performs one request. The Authorization header is
// "Bearer <token>" when the token source holds a token and absent
// otherwise, overriding any Authorization the caller supplied.
func (c *Client) Send(ctx context.Context, target string, opts RequestOptions) (*http.Response, error) {
	u, err := c.Resolve(target)
	if err != nil {
		return nil, err
	}

	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), opts.Body)
	if err != nil {
		return nil, fmt.Errorf("authfetch: build request: %w", err)
	}
	for k, vs := range opts.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	c.authorize(req)

	return c.http.Do(req)
}

func (c *Client) authorize(req *http.Request) {
	tok, ok := c.tokens.Get()
	if !ok {
		req.Header.Del("Authorization")
		c.log.Debug("authfetch.token.absent",
			"method", req.Method,
			"path", req.URL.Path,
		)
		return
	}

	req.Header.Set("Authorization", "Bearer "+tok)
	c.log.Debug("authfetch.token.attached",
		"method", req.Method,
		"path", req.URL.Path,
		"token_len", len(tok),
	)
}
