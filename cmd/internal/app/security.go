package app

import (
	"errors"

	"github.com/cracked-sourcecode/QuoteBidV1-sub008/cmd/security/token"
)

// ValidateSecurityConfig fails startup when HMAC token hashing is required
// but not configured.
func ValidateSecurityConfig(cfg Config) (token.Hasher, error) {
	h, err := token.HasherFromEnv(cfg.RequireTokenHMAC)
	switch {
	case errors.Is(err, token.ErrHMACKeyMissing):
		return token.Hasher{}, errors.New("security policy: QB_REQUIRE_TOKEN_HMAC=true but QB_TOKEN_HMAC_KEY is missing")
	case errors.Is(err, token.ErrHMACKeyTooShort):
		return token.Hasher{}, errors.New("security policy: QB_REQUIRE_TOKEN_HMAC=true but QB_TOKEN_HMAC_KEY is too short (min 32 bytes)")
	case err != nil:
		return token.Hasher{}, err
	}

	if cfg.RequireTokenHMAC && !h.Keyed() {
		return token.Hasher{}, errors.New("security policy: token hasher is not in HMAC mode")
	}
	return h, nil
}
