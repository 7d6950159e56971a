package password

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Params is the Argon2id cost. MemoryKiB is in KiB as argon2.IDKey expects.
type Params struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

type Policy struct {
	MinLength      int
	MaxLength      int
	RejectVeryWeak bool
}

type Config struct {
	Params Params
	Policy Policy
}

func DefaultConfig() Config {
	lanes := runtime.NumCPU()
	if lanes < 1 {
		lanes = 1
	}
	if lanes > 4 {
		lanes = 4
	}

	return Config{
		Params: Params{
			MemoryKiB:   64 * 1024,
			Iterations:  3,
			Parallelism: uint8(lanes), // #nosec G115 -- clamped to [1..4]
			SaltLength:  16,
			KeyLength:   32,
		},
		Policy: Policy{
			MinLength:      10,
			MaxLength:      256,
			RejectVeryWeak: true,
		},
	}
}

// FromEnv applies QB_PASSWORD_* and QB_ARGON2_* overrides to DefaultConfig.
// Any set-but-invalid value is an error.
func FromEnv() (Config, error) {
	cfg := DefaultConfig()

	lanes := uint32(cfg.Params.Parallelism)
	minLen := uint32(cfg.Policy.MinLength) // #nosec G115 -- positive default
	maxLen := uint32(cfg.Policy.MaxLength) // #nosec G115 -- positive default

	ranges := []struct {
		key      string
		dst      *uint32
		min, max uint32
	}{
		{"QB_PASSWORD_MIN_LEN", &minLen, 1, 1024},
		{"QB_PASSWORD_MAX_LEN", &maxLen, 1, 4096},
		{"QB_ARGON2_MEMORY_KIB", &cfg.Params.MemoryKiB, 8 * 1024, 1024 * 1024},
		{"QB_ARGON2_ITERATIONS", &cfg.Params.Iterations, 1, 20},
		{"QB_ARGON2_PARALLELISM", &lanes, 1, 64},
		{"QB_ARGON2_SALT_LEN", &cfg.Params.SaltLength, 8, 64},
		{"QB_ARGON2_KEY_LEN", &cfg.Params.KeyLength, 16, 64},
	}
	for _, r := range ranges {
		v, ok := os.LookupEnv(r.key)
		if !ok {
			continue
		}
		n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 32)
		if err != nil {
			return Config{}, fmt.Errorf("%s: not an unsigned integer", r.key)
		}
		if uint32(n) < r.min || uint32(n) > r.max {
			return Config{}, fmt.Errorf("%s: out of range [%d..%d]", r.key, r.min, r.max)
		}
		*r.dst = uint32(n)
	}

	if v, ok := os.LookupEnv("QB_PASSWORD_REJECT_VERY_WEAK"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return Config{}, fmt.Errorf("QB_PASSWORD_REJECT_VERY_WEAK: invalid boolean")
		}
		cfg.Policy.RejectVeryWeak = b
	}

	cfg.Params.Parallelism = uint8(lanes) // #nosec G115 -- bounded to 64 above
	cfg.Policy.MinLength = int(minLen)
	cfg.Policy.MaxLength = int(maxLen)

	if cfg.Policy.MinLength > cfg.Policy.MaxLength {
		return Config{}, fmt.Errorf("password policy invalid: min_len(%d) > max_len(%d)", cfg.Policy.MinLength, cfg.Policy.MaxLength)
	}
	return cfg, nil
}
