// Command ws-smoke is an end-to-end smoke check of a running QuoteBid server.
//
// It validates:
//   - login over HTTP and bearer access to /api/me
//   - socket handshake with ?token= and the session.ready envelope
//   - ping/pong
//   - a cooldown-gated reopen (sockets never reconnect on their own)
//   - optionally, logout ending the socket with session.revoked
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/cracked-sourcecode/QuoteBidV1-sub008/cmd/internal/client/authfetch"
	"github.com/cracked-sourcecode/QuoteBidV1-sub008/cmd/internal/client/config"
	"github.com/cracked-sourcecode/QuoteBidV1-sub008/cmd/internal/client/gate"
	"github.com/cracked-sourcecode/QuoteBidV1-sub008/cmd/internal/client/socket"
	"github.com/cracked-sourcecode/QuoteBidV1-sub008/cmd/internal/client/tokenstore"
	v1 "github.com/cracked-sourcecode/QuoteBidV1-sub008/shared/contracts/realtime/v1"
)

type smoke struct {
	log    *slog.Logger
	cfg    config.Config
	tokens *tokenstore.Memory
	http   *authfetch.Client
	dialer *socket.Dialer
	wait   time.Duration
}

func main() {
	var (
		cfgPath  = flag.String("config", "", "optional YAML client config")
		origin   = flag.String("origin", "http://localhost", "Origin header for the socket handshake")
		timeout  = flag.Duration("timeout", 10*time.Second, "overall timeout")
		wait     = flag.Duration("wait", 3*time.Second, "per-envelope wait")
		cooldown = flag.Duration("reopen-cooldown", time.Second, "minimum gap between socket opens")
		logout   = flag.Bool("logout", false, "log out at the end and expect session.revoked")
	)
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fail(err)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	s, err := newSmoke(cfg, *origin, *wait, log)
	if err != nil {
		fail(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := s.run(ctx, gate.NewCooldown(*cooldown), *logout); err != nil {
		fail(err)
	}
	fmt.Println("ws-smoke: ok")
}

// newSmoke wires the client stack from cfg. The token file, when set,
// seeds the store and receives every change.
func newSmoke(cfg config.Config, origin string, wait time.Duration, log *slog.Logger) (*smoke, error) {
	tokens := tokenstore.NewMemory()
	if cfg.TokenFile != "" {
		var err error
		if tokens, err = tokenstore.LoadFile(cfg.TokenFile); err != nil {
			return nil, err
		}
	}

	hc, err := authfetch.New(tokens, authfetch.WithBaseURL(cfg.BaseURL), authfetch.WithLogger(log))
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}

	return &smoke{
		log:    log,
		cfg:    cfg,
		tokens: tokens,
		http:   hc,
		wait:   wait,
		dialer: &socket.Dialer{
			Endpoint:     cfg.Endpoint(),
			Tokens:       tokens,
			Policy:       cfg.Policy(),
			Logger:       log,
			HTTPHeader:   header,
			Subprotocols: []string{"quotebid.session.v1"},
		},
	}, nil
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "ws-smoke: %v\n", err)
	os.Exit(1)
}

func (s *smoke) run(ctx context.Context, cd *gate.Cooldown, logout bool) error {
	if s.cfg.Username != "" {
		if err := s.login(ctx); err != nil {
			return err
		}
	}

	if _, ok := s.tokens.Get(); ok {
		if err := s.expectStatus(ctx, http.MethodGet, "/api/me", http.StatusOK); err != nil {
			return err
		}
	}

	conn, err := s.open(ctx, cd)
	if err != nil {
		return err
	}

	ping, err := v1.New(v1.TypePing, "smoke-1", time.Now(), v1.PingPayload{Nonce: "smoke"})
	if err != nil {
		return err
	}
	if err := conn.SendJSON(ctx, ping); err != nil {
		return fmt.Errorf("send ping: %w", err)
	}
	if _, err := s.expect(conn, v1.TypePong); err != nil {
		return err
	}
	_ = conn.Close()

	if !cd.Ready(time.Now()) {
		s.log.Info("smoke.reopen.cooldown", "seconds", cd.RemainingSeconds(time.Now()))
		select {
		case <-time.After(cd.Remaining(time.Now())):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if conn, err = s.open(ctx, cd); err != nil {
		return fmt.Errorf("reopen: %w", err)
	}
	defer conn.Close()

	if !logout {
		return nil
	}

	if err := s.expectStatus(ctx, http.MethodPost, "/auth/logout", http.StatusNoContent); err != nil {
		return err
	}
	env, err := s.expect(conn, v1.TypeSessionRevoked)
	if err != nil {
		return err
	}
	var rev v1.RevokedPayload
	_ = env.Decode(&rev)
	s.log.Info("smoke.revoked", "reason", rev.Reason)

	s.tokens.Clear()
	return s.saveToken()
}

func (s *smoke) login(ctx context.Context) error {
	body, _ := json.Marshal(map[string]string{"username": s.cfg.Username, "password": s.cfg.Password})
	res, err := s.http.Send(ctx, "/auth/login", authfetch.RequestOptions{
		Method: http.MethodPost,
		Header: http.Header{"Content-Type": []string{"application/json"}},
		Body:   bytes.NewReader(body),
	})
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		s.tokens.Clear()
		return fmt.Errorf("login: status %d", res.StatusCode)
	}

	var out struct {
		Session struct {
			AccessToken string `json:"access_token"`
		} `json:"session"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return fmt.Errorf("login: decode: %w", err)
	}
	if out.Session.AccessToken == "" {
		return errors.New("login: no access token in response")
	}

	s.tokens.Set(out.Session.AccessToken)
	s.log.Info("smoke.login", "username", s.cfg.Username, "token_len", len(out.Session.AccessToken))
	return s.saveToken()
}

func (s *smoke) saveToken() error {
	if s.cfg.TokenFile == "" {
		return nil
	}
	return tokenstore.SaveFile(s.cfg.TokenFile, s.tokens)
}

func (s *smoke) expectStatus(ctx context.Context, method, path string, want int) error {
	res, err := s.http.Send(ctx, path, authfetch.RequestOptions{Method: method})
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, res.Body)

	if res.StatusCode == http.StatusUnauthorized {
		s.tokens.Clear()
	}
	if res.StatusCode != want {
		return fmt.Errorf("%s %s: status %d, want %d", method, path, res.StatusCode, want)
	}
	return nil
}

// open dials with the current token, at most once per cooldown interval.
func (s *smoke) open(ctx context.Context, cd *gate.Cooldown) (*socket.Conn, error) {
	if !cd.Try(time.Now()) {
		return nil, fmt.Errorf("socket open throttled for %ds", cd.RemainingSeconds(time.Now()))
	}

	conn, err := s.dialer.OpenCurrent(ctx)
	if err != nil {
		return nil, err
	}

	env, err := s.expect(conn, v1.TypeSessionReady)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	var ready v1.ReadyPayload
	_ = env.Decode(&ready)
	s.log.Info("smoke.ready", "session_id", ready.SessionID, "anonymous", ready.Anonymous)
	return conn, nil
}

// expect returns the first envelope of type typ, skipping notices.
func (s *smoke) expect(conn *socket.Conn, typ string) (v1.Envelope, error) {
	deadline := time.After(s.wait)
	for {
		select {
		case m, ok := <-conn.Messages():
			if !ok {
				return v1.Envelope{}, fmt.Errorf("socket closed waiting for %s: %v", typ, conn.Err())
			}
			var env v1.Envelope
			if err := json.Unmarshal(m.Data, &env); err != nil {
				return v1.Envelope{}, fmt.Errorf("decode envelope: %w", err)
			}
			if env.Type == typ {
				return env, nil
			}
			if env.Type == v1.TypeSessionNotice {
				continue
			}
			return v1.Envelope{}, fmt.Errorf("got %s while waiting for %s", env.Type, typ)
		case <-deadline:
			return v1.Envelope{}, fmt.Errorf("timed out waiting for %s", typ)
		}
	}
}
