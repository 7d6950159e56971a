package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/cracked-sourcecode/QuoteBidV1-sub008/cmd/security/token"
)

// Denylist records access tokens revoked before their expiry.
type Denylist interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// Via says which credential authenticated a request.
type Via string

const (
	ViaBearer Via = "bearer"
	ViaCookie Via = "cookie"
)

// Principal is an authenticated caller.
type Principal struct {
	UserID    string
	SessionID string
	// TokenID and ExpiresAt are set for bearer principals only.
	TokenID   string
	ExpiresAt time.Time
	Via       Via
}

// Issued is the result of a login.
type Issued struct {
	SessionID string
	UserID    string
	Platform  Platform

	AccessToken   string
	AccessTokenID string
	AccessExp     time.Time

	// SessionToken is the plain cookie value; only its hash is stored.
	SessionToken string
	SessionExp   time.Time
}

// Service issues, authenticates and revokes sessions.
type Service struct {
	cfg    Config
	store  Store
	tokens AccessTokenManager
	hasher token.Hasher
	deny   Denylist
	log    *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithDenylist enables bearer revocation. Without it Revoke only deletes the row.
func WithDenylist(d Denylist) Option { return func(s *Service) { s.deny = d } }

func WithHasher(h token.Hasher) Option { return func(s *Service) { s.hasher = h } }

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

func NewService(cfg Config, store Store, tokens AccessTokenManager, opts ...Option) *Service {
	s := &Service{
		cfg:    cfg,
		store:  store,
		tokens: tokens,
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store exposes the underlying store to operator tooling.
func (s *Service) Store() Store { return s.store }

func (s *Service) sessionTTL(p Platform) time.Duration {
	if p == PlatformMobile {
		return s.cfg.SessionTTLMobile
	}
	return s.cfg.SessionTTLWeb
}

// Issue creates a session row for userID and signs an access token bound to it.
func (s *Service) Issue(ctx context.Context, now time.Time, userID string, dev DeviceContext) (Issued, error) {
	plain, err := token.NewOpaque(s.cfg.SessionTokenBytes)
	if err != nil {
		return Issued{}, err
	}

	platform := PlatformFor(dev.UserAgent)
	exp := now.Add(s.sessionTTL(platform))

	row, err := s.store.Create(ctx, NewRow{
		UserID:    userID,
		TokenHash: s.hasher.Hash(plain),
		Platform:  platform,
		Device:    dev,
		Now:       now,
		ExpiresAt: exp,
	})
	if err != nil {
		return Issued{}, err
	}

	at, err := s.tokens.Issue(userID, row.ID, now)
	if err != nil {
		return Issued{}, err
	}

	s.log.Info("session.issued",
		"user_id", userID,
		"session_id", row.ID,
		"platform", string(platform),
	)

	return Issued{
		SessionID:     row.ID,
		UserID:        userID,
		Platform:      platform,
		AccessToken:   at.Token,
		AccessTokenID: at.TokenID,
		AccessExp:     at.ExpiresAt,
		SessionToken:  plain,
		SessionExp:    exp,
	}, nil
}

// AuthenticateBearer verifies an access token. It does not consult the
// session row, so tokens survive session deletion until they expire or are
// denylisted.
func (s *Service) AuthenticateBearer(ctx context.Context, raw string, now time.Time) (Principal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > 4096 {
		return Principal{}, ErrInvalidToken
	}

	claims, err := s.tokens.Verify(raw, now)
	if err != nil {
		return Principal{}, err
	}

	if s.deny != nil {
		revoked, err := s.deny.IsRevoked(ctx, claims.TokenID)
		if err != nil {
			return Principal{}, err
		}
		if revoked {
			return Principal{}, ErrTokenRevoked
		}
	}

	return Principal{
		UserID:    claims.UserID,
		SessionID: claims.SessionID,
		TokenID:   claims.TokenID,
		ExpiresAt: claims.ExpiresAt,
		Via:       ViaBearer,
	}, nil
}

// AuthenticateCookie resolves an opaque session token to its row.
// Expired rows are removed on sight.
func (s *Service) AuthenticateCookie(ctx context.Context, raw string, now time.Time) (Principal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > 4096 {
		return Principal{}, ErrSessionNotFound
	}

	row, err := s.store.GetByTokenHash(ctx, s.hasher.Hash(raw))
	if err != nil {
		return Principal{}, err
	}

	if !row.ExpiresAt.After(now) {
		if err := s.store.Delete(ctx, row.ID); err != nil && !errors.Is(err, ErrSessionNotFound) {
			s.log.Warn("session.expired.delete_failed", "session_id", row.ID, "err", err)
		}
		return Principal{}, ErrSessionExpired
	}

	if err := s.store.Touch(ctx, row.ID, now); err != nil && !errors.Is(err, ErrSessionNotFound) {
		s.log.Warn("session.touch_failed", "session_id", row.ID, "err", err)
	}

	return Principal{UserID: row.UserID, SessionID: row.ID, Via: ViaCookie}, nil
}

// Active reports whether a session row still exists and has not expired.
func (s *Service) Active(ctx context.Context, sessionID string, now time.Time) (bool, error) {
	row, err := s.store.GetByID(ctx, sessionID)
	if errors.Is(err, ErrSessionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return row.ExpiresAt.After(now), nil
}

// Revoke ends p's session: the row is deleted and, for bearer principals,
// the token id is denylisted until the token would have expired anyway.
// Revoking an already-ended session is not an error.
func (s *Service) Revoke(ctx context.Context, now time.Time, p Principal) error {
	if s.deny != nil && p.TokenID != "" {
		if ttl := p.ExpiresAt.Sub(now); ttl > 0 {
			if err := s.deny.Revoke(ctx, p.TokenID, ttl); err != nil {
				return err
			}
		}
	}

	if err := s.store.Delete(ctx, p.SessionID); err != nil && !errors.Is(err, ErrSessionNotFound) {
		return err
	}

	s.log.Info("session.revoked", "user_id", p.UserID, "session_id", p.SessionID, "via", string(p.Via))
	return nil
}

// PruneExpired deletes expired rows.
func (s *Service) PruneExpired(ctx context.Context, now time.Time) (int64, error) {
	n, err := s.store.DeleteExpired(ctx, now)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info("session.pruned", "count", n)
	}
	return n, nil
}
