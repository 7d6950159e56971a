package session

import (
	"time"

	"github.com/cracked-sourcecode/QuoteBidV1-sub008/cmd/identity/ids"

	paseto "aidanwoods.dev/go-paseto"
)

// AccessClaims is what a verified access token says about its holder.
type AccessClaims struct {
	UserID    string
	SessionID string
	// TokenID is the jti, the key used by the Denylist.
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Issuer    string
}

// AccessToken is a freshly signed token.
type AccessToken struct {
	Token     string
	TokenID   string
	ExpiresAt time.Time
}

// AccessTokenManager issues and verifies short-lived access tokens.
type AccessTokenManager interface {
	Issue(userID, sessionID string, now time.Time) (AccessToken, error)
	Verify(token string, now time.Time) (AccessClaims, error)
	PublicKeyHex() string
}

type pasetoV4PublicManager struct {
	issuer    string
	ttl       time.Duration
	clockSkew time.Duration

	secret paseto.V4AsymmetricSecretKey
	public paseto.V4AsymmetricPublicKey
}

// NewPasetoV4PublicManager signs v4.public tokens with the configured Ed25519 key.
func NewPasetoV4PublicManager(cfg Config) (AccessTokenManager, error) {
	secret, err := paseto.NewV4AsymmetricSecretKeyFromHex(cfg.PasetoV4SecretKeyHex)
	if err != nil {
		return nil, ErrConfig
	}
	if cfg.AccessTokenTTL <= 0 {
		return nil, ErrConfig
	}

	return &pasetoV4PublicManager{
		issuer:    cfg.Issuer,
		ttl:       cfg.AccessTokenTTL,
		clockSkew: cfg.ClockSkew,
		secret:    secret,
		public:    secret.Public(),
	}, nil
}

func (m *pasetoV4PublicManager) PublicKeyHex() string {
	return m.public.ExportHex()
}

func (m *pasetoV4PublicManager) Issue(userID, sessionID string, now time.Time) (AccessToken, error) {
	jti, err := ids.NewULID(now)
	if err != nil {
		return AccessToken{}, err
	}
	// Claims carry whole seconds; report the expiry the token actually has.
	exp := now.Add(m.ttl).Truncate(time.Second)

	tok := paseto.NewToken()
	tok.SetIssuer(m.issuer)
	tok.SetIssuedAt(now)
	tok.SetNotBefore(now)
	tok.SetExpiration(exp)
	tok.SetJti(jti)
	tok.SetString("uid", userID)
	tok.SetString("sid", sessionID)

	return AccessToken{
		Token:     tok.V4Sign(m.secret, nil),
		TokenID:   jti,
		ExpiresAt: exp,
	}, nil
}

func (m *pasetoV4PublicManager) Verify(token string, now time.Time) (AccessClaims, error) {
	// Checking a little in the future tolerates a signer whose clock runs ahead.
	p := paseto.NewParserWithoutExpiryCheck()
	p.AddRule(paseto.IssuedBy(m.issuer))
	p.AddRule(paseto.ValidAt(now.Add(m.clockSkew)))

	parsed, err := p.ParseV4Public(m.public, token, nil)
	if err != nil {
		return AccessClaims{}, ErrInvalidToken
	}

	exp, err := parsed.GetExpiration()
	if err != nil || !exp.After(now) {
		return AccessClaims{}, ErrInvalidToken
	}

	uid, err := parsed.GetString("uid")
	if err != nil || uid == "" {
		return AccessClaims{}, ErrInvalidToken
	}
	sid, err := parsed.GetString("sid")
	if err != nil || sid == "" {
		return AccessClaims{}, ErrInvalidToken
	}
	jti, err := parsed.GetJti()
	if err != nil || jti == "" {
		return AccessClaims{}, ErrInvalidToken
	}

	iss, _ := parsed.GetIssuer()
	iat, _ := parsed.GetIssuedAt()

	return AccessClaims{
		UserID:    uid,
		SessionID: sid,
		TokenID:   jti,
		IssuedAt:  iat,
		ExpiresAt: exp,
		Issuer:    iss,
	}, nil
}
