package authapi

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cracked-sourcecode/QuoteBidV1-sub008/cmd/identity"
	"github.com/cracked-sourcecode/QuoteBidV1-sub008/cmd/internal/auth/session"

	"github.com/prometheus/client_golang/prometheus"
)

// SessionNotifier is told when a session ends so live sockets can be closed.
type SessionNotifier interface {
	SessionEnded(sessionID, reason string)
}

// Handler serves login, logout and the session-protected API.
type Handler struct {
	log *slog.Logger
	cfg Config

	users    identity.Store
	auth     *identity.Authenticator
	sessions *session.Service

	limiter    *loginLimiter
	notifier   SessionNotifier
	rejections *prometheus.CounterVec

	now func() time.Time
}

// HandlerOption configures optional dependencies.
type HandlerOption func(*Handler)

func WithNotifier(n SessionNotifier) HandlerOption {
	return func(h *Handler) { h.notifier = n }
}

// WithRejectionCounter counts 401/429 responses by reason.
func WithRejectionCounter(c *prometheus.CounterVec) HandlerOption {
	return func(h *Handler) { h.rejections = c }
}

func NewHandler(log *slog.Logger, cfg Config, users identity.Store, auth *identity.Authenticator, sessions *session.Service, opts ...HandlerOption) (*Handler, error) {
	if users == nil || auth == nil || sessions == nil {
		return nil, errors.New("auth: users, authenticator and sessions are required")
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultConfig().CookieName
	}
	if cfg.CookiePath == "" {
		cfg.CookiePath = "/"
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultConfig().MaxBodyBytes
	}

	h := &Handler{
		log:      log,
		cfg:      cfg,
		users:    users,
		auth:     auth,
		sessions: sessions,
		limiter:  newLoginLimiter(cfg.LoginPerMinute, cfg.LoginBurst, cfg.LimiterIdle),
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h, nil
}

// Register wires the routes onto mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/auth/login", h.handleLogin)
	mux.HandleFunc("/auth/logout", h.handleLogout)
	mux.HandleFunc("/api/me", h.handleMe)
	mux.HandleFunc("/api/public", h.handlePublic)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	now := h.now().UTC()
	ip := clientIP(r, h.cfg.TrustProxy)

	if ok, retryAfter := h.limiter.allow(ipKey(ip), now); !ok {
		h.reject("rate_limited")
		h.log.Warn("auth.login.rate_limited", "ip", ipKey(ip))
		writeRateLimited(w, retryAfter)
		return
	}

	req, code, err := readLogin(w, r, h.cfg.MaxBodyBytes)
	if err != nil {
		msg := "invalid request body"
		if code == codeInvalidRequest {
			msg = err.Error()
		}
		fail(w, http.StatusBadRequest, code, msg)
		return
	}

	ctx := r.Context()
	u, err := h.auth.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			h.reject("invalid_credentials")
			h.log.Info("auth.login.failed", "ip", ipKey(ip))
			fail(w, http.StatusUnauthorized, codeInvalidCredentials, "invalid credentials")
			return
		}
		h.log.Error("auth.login.lookup.fail", "err", err)
		failInternal(w)
		return
	}

	issued, err := h.sessions.Issue(ctx, now, u.ID, session.DeviceContext{
		UserAgent: r.UserAgent(),
		IP:        ipKey(ip),
	})
	if err != nil {
		h.log.Error("auth.login.issue.fail", "err", err, "user_id", u.ID)
		failInternal(w)
		return
	}

	h.setSessionCookie(w, issued.SessionToken, issued.SessionExp)
	h.log.Info("auth.login.ok", "user_id", u.ID, "session_id", issued.SessionID)

	respond(w, http.StatusOK, loginResponse{
		User:    toUserResponse(u),
		Session: toSessionResponse(issued),
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	p, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	if err := h.sessions.Revoke(r.Context(), h.now().UTC(), p); err != nil {
		h.log.Error("auth.logout.fail", "err", err, "session_id", p.SessionID)
		failInternal(w)
		return
	}

	h.clearSessionCookie(w)
	if h.notifier != nil {
		h.notifier.SessionEnded(p.SessionID, "logout")
	}
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	p, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	u, err := h.users.GetUserByID(r.Context(), p.UserID)
	if err != nil {
		if identity.IsNotFound(err) {
			h.reject("user_gone")
			failUnauthorized(w, "user no longer exists")
			return
		}
		h.log.Error("auth.me.lookup.fail", "err", err, "user_id", p.UserID)
		failInternal(w)
		return
	}

	respond(w, http.StatusOK, meResponse{
		User:      toUserResponse(u),
		SessionID: p.SessionID,
		Via:       string(p.Via),
	})
}

func (h *Handler) handlePublic(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	resp := publicResponse{OK: true}
	if p, err := h.Authenticate(r); err == nil {
		resp.Authenticated = true
		resp.Via = string(p.Via)
	}
	respond(w, http.StatusOK, resp)
}

// ErrNoCredentials is returned by Authenticate when neither a bearer token
// nor a session cookie was presented.
var ErrNoCredentials = errors.New("no credentials")

// Authenticate tries the bearer token first and the session cookie second.
func (h *Handler) Authenticate(r *http.Request) (session.Principal, error) {
	ctx := r.Context()
	now := h.now().UTC()

	bearer := BearerToken(r)
	cookie := h.sessionCookie(r)
	if bearer == "" && cookie == "" {
		return session.Principal{}, ErrNoCredentials
	}

	var bearerErr error
	if bearer != "" {
		p, err := h.sessions.AuthenticateBearer(ctx, bearer, now)
		if err == nil {
			return p, nil
		}
		bearerErr = err
	}
	if cookie != "" {
		p, err := h.sessions.AuthenticateCookie(ctx, cookie, now)
		if err == nil {
			return p, nil
		}
		return session.Principal{}, errors.Join(bearerErr, err)
	}
	return session.Principal{}, bearerErr
}

func (h *Handler) requireAuth(w http.ResponseWriter, r *http.Request) (session.Principal, bool) {
	p, err := h.Authenticate(r)
	if err == nil {
		return p, true
	}

	reason := rejectionReason(err)
	if reason == "" {
		h.log.Error("auth.authenticate.fail", "err", err)
		failInternal(w)
		return session.Principal{}, false
	}

	h.reject(reason)
	h.log.Debug("auth.rejected", "reason", reason, "path", r.URL.Path)
	failUnauthorized(w, "authentication required")
	return session.Principal{}, false
}

// rejectionReason maps credential failures to a label; store failures yield "".
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrNoCredentials):
		return "missing"
	case errors.Is(err, session.ErrTokenRevoked):
		return "revoked"
	case errors.Is(err, session.ErrSessionExpired):
		return "expired"
	case errors.Is(err, session.ErrInvalidToken), errors.Is(err, session.ErrSessionNotFound):
		return "invalid"
	default:
		return ""
	}
}

func (h *Handler) reject(reason string) {
	if h.rejections != nil {
		h.rejections.WithLabelValues(reason).Inc()
	}
}

func ipKey(ip net.IP) string {
	if ip == nil {
		return "unknown"
	}
	return ip.String()
}

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

func parseForwardedIP(raw string) net.IP {
	first, _, _ := strings.Cut(raw, ",")
	return net.ParseIP(strings.TrimSpace(first))
}
