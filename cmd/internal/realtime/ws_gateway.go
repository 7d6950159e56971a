package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cracked-sourcecode/QuoteBidV1-sub008/cmd/internal/auth/session"
	"github.com/cracked-sourcecode/QuoteBidV1-sub008/cmd/internal/client/gate"
	v1 "github.com/cracked-sourcecode/QuoteBidV1-sub008/shared/contracts/realtime/v1"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

const (
	// Subprotocol is offered by clients that speak the v1 envelopes. It is
	// selected when offered but not required.
	Subprotocol = "quotebid.session.v1"

	wsCloseGrace      = 1 * time.Second
	wsMaxPingFailures = 3

	// Close reasons carried in session.revoked.
	ReasonLoggedOut    = "logged_out"
	ReasonSessionEnded = "session_ended"
	ReasonTokenExpired = "token_expired"
)

// Authenticator verifies the ?token= credential. *session.Service satisfies it.
type Authenticator interface {
	AuthenticateBearer(ctx context.Context, raw string, now time.Time) (session.Principal, error)
}

// SessionChecker reports whether a session row is still live.
// *session.Service satisfies it.
type SessionChecker interface {
	Active(ctx context.Context, sessionID string, now time.Time) (bool, error)
}

// Gateway is the session socket endpoint.
//
// It enforces origin policy, authenticates the query token before upgrading,
// and keeps each connection alive with heartbeats until the peer leaves or the
// session ends.
type Gateway struct {
	log     *slog.Logger
	cfg     GatewayConfig
	hub     *Hub
	auth    Authenticator
	checker SessionChecker

	originPatterns []string

	connections prometheus.Gauge
	now         func() time.Time
}

type GatewayOption func(*Gateway)

func WithSessionChecker(c SessionChecker) GatewayOption {
	return func(g *Gateway) { g.checker = c }
}

// WithConnectionGauge tracks open sockets.
func WithConnectionGauge(gauge prometheus.Gauge) GatewayOption {
	return func(g *Gateway) { g.connections = gauge }
}

// NewGateway builds a gateway. auth may be nil only when cfg.RequireAuth is
// false, in which case every connection is anonymous.
func NewGateway(log *slog.Logger, cfg GatewayConfig, hub *Hub, auth Authenticator, opts ...GatewayOption) (*Gateway, error) {
	if auth == nil && cfg.RequireAuth {
		return nil, errors.New("realtime: authenticator required when auth is required")
	}
	if log == nil {
		log = slog.Default()
	}
	if hub == nil {
		hub = NewHub(log)
	}

	g := &Gateway{
		log:  log,
		cfg:  cfg.withDefaults(),
		hub:  hub,
		auth: auth,
		now:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(g)
	}

	// websocket.Accept runs its own origin check against OriginPatterns;
	// derive them from the allowlist so both layers agree.
	g.originPatterns = deriveOriginPatternsFromAllowedOrigins(g.cfg.AllowedOrigins)
	return g, nil
}

func (g *Gateway) Hub() *Hub { return g.hub }

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	token := strings.TrimSpace(r.URL.Query().Get("token"))
	principal, anonymous, ok := g.authenticate(w, r, token)
	if !ok {
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       []string{Subprotocol},
		OriginPatterns:     g.originPatterns,
		InsecureSkipVerify: g.cfg.DevInsecure,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.CloseNow() }()

	conn.SetReadLimit(maxFrameBytes)

	ua := r.UserAgent()
	client := NewClient(principal.UserID, principal.SessionID, g.cfg.SendQueueSize)
	client.Mobile = gate.IsMobileUserAgent(ua)

	g.hub.Register(client)
	defer g.hub.Unregister(client)

	if g.connections != nil {
		g.connections.Inc()
		defer g.connections.Dec()
	}

	g.log.Info("ws.connect",
		"session_id", client.SessionID,
		"user_id", client.UserID,
		"anonymous", anonymous,
		"mobile", client.Mobile,
		"subprotocol", conn.Subprotocol(),
	)

	g.serve(r.Context(), conn, client, principal, anonymous, ua)
}

// authenticate resolves the query token. It writes the rejection itself and
// returns ok=false when the handshake must not proceed.
func (g *Gateway) authenticate(w http.ResponseWriter, r *http.Request, token string) (session.Principal, bool, bool) {
	if token == "" {
		if g.cfg.RequireAuth {
			g.log.Info("ws.reject.auth", "reason", "missing_token", "remote", r.RemoteAddr)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return session.Principal{}, false, false
		}
		g.log.Debug("ws.auth.anonymous", "remote", r.RemoteAddr)
		return session.Principal{}, true, true
	}

	if g.auth == nil {
		g.log.Info("ws.reject.auth", "reason", "no_authenticator", "token_len", len(token))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return session.Principal{}, false, false
	}

	p, err := g.auth.AuthenticateBearer(r.Context(), token, g.now())
	if err != nil {
		g.log.Info("ws.reject.auth", "reason", rejectReason(err), "token_len", len(token), "remote", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return session.Principal{}, false, false
	}
	return p, false, true
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, session.ErrTokenRevoked):
		return "revoked"
	case errors.Is(err, session.ErrInvalidToken):
		return "invalid"
	default:
		return "error"
	}
}

func (g *Gateway) serve(parent context.Context, conn *websocket.Conn, client *Client, principal session.Principal, anonymous bool, ua string) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	var closeOnce sync.Once
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			client.Close()
			_ = conn.Close(code, reason)
			cancel()
		})
	}

	now := g.now()
	g.enqueue(ctx, client, g.envelope(v1.TypeSessionReady, now, v1.ReadyPayload{
		SessionID: client.SessionID,
		UserID:    client.UserID,
		Anonymous: anonymous,
		Mobile:    client.Mobile,
	}))

	if g.cfg.Notice != "" {
		sendNotice := gate.OnlyIf(gate.Not(gate.MobileCheck(ua)), func(text string) {
			g.enqueue(ctx, client, g.envelope(v1.TypeSessionNotice, now, v1.NoticePayload{Text: text}))
		})
		sendNotice(g.cfg.Notice)
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)

		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case env := <-client.Send:
				if err := writeEnvelope(ctx, conn, env, g.cfg.WriteTimeout); err != nil {
					g.log.Info("ws.write.fail", "session_id", client.SessionID, "close_status", websocket.CloseStatus(err), "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			case reason := <-client.Revoked():
				// Drain what is already queued so session.revoked is last.
				for drained := false; !drained; {
					select {
					case env := <-client.Send:
						_ = writeEnvelope(ctx, conn, env, g.cfg.WriteTimeout)
					default:
						drained = true
					}
				}
				_ = writeEnvelope(ctx, conn, g.envelope(v1.TypeSessionRevoked, g.now(), v1.RevokedPayload{Reason: reason}), g.cfg.WriteTimeout)
				g.log.Info("ws.revoked", "session_id", client.SessionID, "reason", reason)
				shutdown(websocket.StatusPolicyViolation, reason)
				return
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)

		t := time.NewTicker(g.cfg.HeartbeatEvery)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, g.cfg.HeartbeatTimeout)
				err := conn.Ping(hbCtx)
				hbCancel()

				if err != nil {
					failures++
					g.log.Info("ws.ping.fail", "session_id", client.SessionID, "failures", failures, "err", err)
					if failures >= wsMaxPingFailures {
						shutdown(websocket.StatusGoingAway, "heartbeat failed")
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()

	if !anonymous {
		go g.watchSession(ctx, client, principal)
	}

	rl := rate.NewLimiter(rate.Every(g.cfg.RateWindow/time.Duration(g.cfg.RateEvents)), g.cfg.RateEvents)

readLoop:
	for {
		readCtx, readCancel := context.WithTimeout(ctx, g.cfg.ReadIdleTimeout)
		env, err := readEnvelope(readCtx, conn)
		readCancel()

		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose:
				shutdown(websocket.StatusNormalClosure, "peer closed")
				break readLoop
			case readErrCtxDone:
				shutdown(websocket.StatusNormalClosure, "context done")
				break readLoop
			case readErrConnClosed:
				shutdown(websocket.StatusAbnormalClosure, "conn closed")
				break readLoop
			case readErrBadJSON:
				g.sendError(ctx, client, "bad_json", "invalid JSON")
				continue readLoop
			default:
				g.log.Info("ws.read.fail", "session_id", client.SessionID, "err", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
				break readLoop
			}
		}

		if !rl.AllowN(g.now(), 1) {
			g.sendError(ctx, client, "rate_limited", "too many events")
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			break readLoop
		}

		if err := env.Validate(); err != nil {
			g.sendError(ctx, client, "bad_envelope", err.Error())
			continue readLoop
		}

		switch env.Type {
		case v1.TypePing:
			var p v1.PingPayload
			if err := env.Decode(&p); err != nil {
				g.sendError(ctx, client, "bad_payload", err.Error())
				continue readLoop
			}
			g.enqueue(ctx, client, g.envelope(v1.TypePong, g.now(), p))
		default:
			g.sendError(ctx, client, "unsupported", fmt.Sprintf("unsupported type: %s", env.Type))
		}
	}

	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone

	select {
	case <-heartbeatDone:
	case <-time.After(wsCloseGrace):
	}

	g.log.Info("ws.disconnect", "session_id", client.SessionID, "user_id", client.UserID)
}

// watchSession revokes the client once its session row is gone or its
// access token has expired. Store errors are logged and retried next tick.
func (g *Gateway) watchSession(ctx context.Context, client *Client, p session.Principal) {
	t := time.NewTicker(g.cfg.LiveCheckEvery)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-client.Done():
			return
		case <-t.C:
			now := g.now()
			if !p.ExpiresAt.IsZero() && !p.ExpiresAt.After(now) {
				client.Revoke(ReasonTokenExpired)
				return
			}
			if g.checker == nil {
				continue
			}
			active, err := g.checker.Active(ctx, p.SessionID, now)
			if err != nil {
				if ctx.Err() == nil {
					g.log.Warn("ws.live_check.fail", "session_id", p.SessionID, "err", err)
				}
				continue
			}
			if !active {
				client.Revoke(ReasonSessionEnded)
				return
			}
		}
	}
}

// ---- send helpers ----

func (g *Gateway) envelope(typ string, now time.Time, payload any) v1.Envelope {
	env, err := v1.New(typ, newEnvelopeID(now), now, payload)
	if err != nil {
		g.log.Error("ws.envelope.fail", "type", typ, "err", err)
		return v1.Envelope{V: v1.Version, Type: typ, TS: now}
	}
	return env
}

func (g *Gateway) sendError(ctx context.Context, client *Client, code, msg string) {
	g.enqueue(ctx, client, g.envelope(v1.TypeError, g.now(), v1.ErrorPayload{Code: code, Message: msg}))
}

// enqueue drops the envelope when the send queue is full.
func (g *Gateway) enqueue(ctx context.Context, client *Client, env v1.Envelope) bool {
	select {
	case <-ctx.Done():
		return false
	case <-client.Done():
		return false
	case client.Send <- env:
		return true
	default:
		g.log.Warn("ws.send.dropped", "session_id", client.SessionID, "type", env.Type)
		return false
	}
}

// ---- envelope IO ----

type badJSONError struct{ err error }

func (e badJSONError) Error() string { return "bad json: " + e.err.Error() }
func (e badJSONError) Unwrap() error { return e.err }

func readEnvelope(ctx context.Context, conn *websocket.Conn) (v1.Envelope, error) {
	mt, data, err := conn.Read(ctx)
	if err != nil {
		return v1.Envelope{}, err
	}
	if mt != websocket.MessageText && mt != websocket.MessageBinary {
		return v1.Envelope{}, fmt.Errorf("unsupported message type: %v", mt)
	}
	var env v1.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return v1.Envelope{}, badJSONError{err: err}
	}
	return env, nil
}

func writeEnvelope(parent context.Context, conn *websocket.Conn, env v1.Envelope, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

// ---- read error classification ----

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
	readErrBadJSON
)

func classifyReadErr(err error) readErrKind {
	var bad badJSONError
	if errors.As(err, &bad) {
		return readErrBadJSON
	}
	if websocket.CloseStatus(err) != -1 {
		return readErrClose
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrCtxDone
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return readErrConnClosed
	}
	return readErrUnknown
}

// ---- origin policy ----

func (g *Gateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.cfg.OriginRequired {
			return errors.New("missing origin")
		}
		return nil
	}

	if len(g.cfg.AllowedOrigins) == 0 {
		return errors.New("origin not allowed (no allowlist)")
	}

	originHost := originHostOnly(origin)
	for _, a := range g.cfg.AllowedOrigins {
		a = strings.TrimSpace(a)
		switch {
		case a == "":
			continue
		case a == "*":
			return nil
		case origin == a:
			return nil
		case originHost != "" && originHost == originHostOnly(a):
			return nil
		}
	}
	return fmt.Errorf("origin not allowed: %s", origin)
}

func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		s = strings.TrimSpace(u.Host)
		if s == "" {
			return ""
		}
	}

	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

// deriveOriginPatternsFromAllowedOrigins returns the sorted hosts of the
// allowlist in the form websocket.AcceptOptions.OriginPatterns expects.
// Accept matches patterns against host:port, so each host also gets a
// host:* pattern. A "*" entry allows every origin, so it becomes the only
// pattern.
func deriveOriginPatternsFromAllowedOrigins(allowed []string) []string {
	seen := make(map[string]struct{}, len(allowed))
	out := make([]string, 0, len(allowed))
	for _, a := range allowed {
		if strings.TrimSpace(a) == "*" {
			return []string{"*"}
		}
		h := originHostOnly(a)
		if h == "" {
			continue
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h, h+":*")
	}
	slices.Sort(out)
	return out
}
