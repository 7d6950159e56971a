// Package config loads the settings shared by the client tools: where the
// server is, where the token is kept, and how the realtime socket behaves.
//
// Sources, later overriding earlier: built-in defaults, an optional YAML
// file, then QB_CLIENT_* environment variables (QB_CLIENT_BASE_URL ->
// base_url).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/cracked-sourcecode/QuoteBidV1-sub008/cmd/internal/client/socket"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const EnvPrefix = "QB_CLIENT_"

type Config struct {
	BaseURL string `koanf:"base_url"`

	// WSHost defaults to the host of BaseURL; WSPort to socket.PortFromEnv.
	WSHost string `koanf:"ws_host"`
	WSPort int    `koanf:"ws_port"`

	TokenFile   string `koanf:"token_file"`
	TokenPolicy string `koanf:"token_policy"`

	Username string `koanf:"username"`
	Password string `koanf:"password"`

	LogLevel string `koanf:"log_level"`
}

func defaults() Config {
	tokenFile := ""
	if dir, err := os.UserConfigDir(); err == nil {
		tokenFile = filepath.Join(dir, "quotebid", "token")
	}
	return Config{
		BaseURL:     "http://localhost:8080",
		TokenFile:   tokenFile,
		TokenPolicy: "anonymous",
		LogLevel:    "info",
	}
}

// Load reads path (when non-empty and present) and the environment.
func Load(path string) (Config, error) {
	k := koanf.New(".")

	if path = strings.TrimSpace(path); path != "" {
		if _, err := os.Stat(path); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return Config{}, fmt.Errorf("config: stat %s: %w", path, err)
			}
		} else if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("config: load file %s: %w", path, err)
		}
	}

	envTransformer := func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envTransformer), nil); err != nil {
		return Config{}, fmt.Errorf("config: load env: %w", err)
	}

	cfg := defaults()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return errors.New("config: base_url is required")
	}
	if c.WSPort < 0 || c.WSPort > 65535 {
		return fmt.Errorf("config: ws_port out of range: %d", c.WSPort)
	}
	if _, err := socket.ParseTokenPolicy(c.TokenPolicy); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Endpoint resolves the realtime endpoint for this config.
func (c Config) Endpoint() socket.Endpoint {
	host := strings.TrimSpace(c.WSHost)
	if host == "" {
		host = socket.HostFromBaseURL(c.BaseURL)
	}
	if c.WSPort > 0 {
		return socket.Endpoint{Host: host, Port: c.WSPort}
	}
	return socket.EndpointFromEnv(host)
}

func (c Config) Policy() socket.TokenPolicy {
	p, _ := socket.ParseTokenPolicy(c.TokenPolicy)
	return p
}
