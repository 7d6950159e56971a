package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const phcVersion = argon2.Version

var b64 = base64.RawStdEncoding

// Hash validates password against the policy and returns its PHC string.
func (c Config) Hash(password string) (string, error) {
	if err := c.Validate(password); err != nil {
		return "", err
	}

	salt := make([]byte, c.Params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("salt: %w", err)
	}

	p := c.Params
	key := argon2.IDKey([]byte(password), salt, p.Iterations, p.MemoryKiB, p.Parallelism, p.KeyLength)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		phcVersion, p.MemoryKiB, p.Iterations, p.Parallelism,
		b64.EncodeToString(salt), b64.EncodeToString(key),
	), nil
}

// Verify reports whether password matches encoded. A malformed or
// out-of-bounds hash returns ErrInvalidHash.
func (c Config) Verify(encoded, password string) (bool, error) {
	got, salt, want, err := decode(encoded)
	if err != nil {
		return false, err
	}
	if !c.acceptable(got) {
		return false, ErrInvalidHash
	}

	key := argon2.IDKey([]byte(password), salt, got.Iterations, got.MemoryKiB, got.Parallelism, got.KeyLength)
	return subtle.ConstantTimeCompare(key, want) == 1, nil
}

// NeedsRehash reports whether encoded was produced with a cost other than
// the configured one. Callers rehash after a successful Verify.
func (c Config) NeedsRehash(encoded string) bool {
	got, _, _, err := decode(encoded)
	if err != nil {
		return true
	}
	return got != c.Params
}

// acceptable allows older, cheaper hashes but refuses anything more than
// twice the configured cost.
func (c Config) acceptable(got Params) bool {
	lim := c.Params
	switch {
	case got.MemoryKiB > lim.MemoryKiB*2,
		got.Iterations > lim.Iterations*2,
		got.Parallelism > lim.Parallelism*2,
		got.SaltLength < 8 || got.SaltLength > 64,
		got.KeyLength < 16 || got.KeyLength > 128:
		return false
	}
	return true
}

func decode(encoded string) (Params, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return Params{}, nil, nil, ErrInvalidHash
	}
	if parts[2] != "v="+strconv.Itoa(phcVersion) {
		return Params{}, nil, nil, ErrInvalidHash
	}

	var mem, iter, lanes uint64
	for _, kv := range strings.Split(parts[3], ",") {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return Params{}, nil, nil, ErrInvalidHash
		}
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil || n == 0 {
			return Params{}, nil, nil, ErrInvalidHash
		}
		switch k {
		case "m":
			mem = n
		case "t":
			iter = n
		case "p":
			lanes = n
		default:
			return Params{}, nil, nil, ErrInvalidHash
		}
	}
	if mem == 0 || iter == 0 || lanes == 0 || lanes > 255 {
		return Params{}, nil, nil, ErrInvalidHash
	}

	salt, err := b64.DecodeString(parts[4])
	if err != nil {
		return Params{}, nil, nil, ErrInvalidHash
	}
	key, err := b64.DecodeString(parts[5])
	if err != nil {
		return Params{}, nil, nil, ErrInvalidHash
	}

	return Params{
		MemoryKiB:   uint32(mem),       // #nosec G115 -- parsed with bitSize 32
		Iterations:  uint32(iter),      // #nosec G115 -- parsed with bitSize 32
		Parallelism: uint8(lanes),      // #nosec G115 -- checked <= 255
		SaltLength:  uint32(len(salt)), // #nosec G115 -- bounded by acceptable()
		KeyLength:   uint32(len(key)),  // #nosec G115 -- bounded by acceptable()
	}, salt, key, nil
}
