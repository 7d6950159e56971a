package app

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
)

// Run is the entrypoint used by cmd/quotebid. It returns an error instead of
// calling os.Exit so defers run.
func Run() error {
	if err := LoadDotEnv(); err != nil {
		return err
	}

	cfg := LoadConfig()
	log := NewLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := New(ctx, cfg, log)
	if err != nil {
		return err
	}
	return a.Run(ctx)
}

// LoadDotEnv loads QB_ENV_FILE (default ".env") without overriding variables
// already set. A missing default file is not an error; a missing explicit
// one is.
func LoadDotEnv() error {
	path := strings.TrimSpace(os.Getenv("QB_ENV_FILE"))
	explicit := path != ""
	if !explicit {
		path = ".env"
	}

	err := godotenv.Load(path)
	if err != nil && !explicit && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
