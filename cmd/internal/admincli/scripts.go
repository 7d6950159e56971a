// Package admincli holds the operator commands: the zero-argument scripts
// (clear-sessions, migrate-up, migrate-down) and the qb-admin tool.
//
// Summaries go to stdout, errors and logs to stderr.
package admincli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/cracked-sourcecode/QuoteBidV1-sub008/cmd/internal/maintenance"
)

// Env is what an operator command runs against.
type Env struct {
	DSN     string
	Connect maintenance.Connector
	Log     *slog.Logger

	Stdout io.Writer
	Stderr io.Writer

	Now func() time.Time
}

// EnvFromOS reads QB_DATABASE_URL and QB_LOG_LEVEL (default warn).
func EnvFromOS() Env {
	return Env{
		DSN:    maintenance.DSNFromEnv(),
		Log:    NewLogger(os.Stderr, os.Getenv("QB_LOG_LEVEL")),
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

// NewLogger writes JSON records to w. Scripts default to warn so a
// successful run prints only its summary.
func NewLogger(w io.Writer, level string) *slog.Logger {
	lvl := slog.LevelWarn
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "error":
		lvl = slog.LevelError
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}

func (e Env) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func (e Env) logger() *slog.Logger {
	if e.Log != nil {
		return e.Log
	}
	return slog.New(slog.DiscardHandler)
}

// ClearSessions deletes every server-side session.
func ClearSessions(ctx context.Context, e Env, args []string) int {
	const name = "clear-sessions"
	return maintenance.RunScript(e.Stdout, e.Stderr, name, func() (string, error) {
		if err := maintenance.NoArgs(name, args); err != nil {
			return "", err
		}
		n, err := maintenance.NewSessionInvalidator(e.DSN, e.Connect, e.logger()).InvalidateAll(ctx)
		if err != nil {
			return "", err
		}
		return sessionsSummary(n), nil
	})
}

// MigrateUp applies every pending migration.
func MigrateUp(e Env, args []string) int {
	return runMigrate(e, "migrate-up", maintenance.Up, args)
}

// MigrateDown reverts the most recent migration.
func MigrateDown(e Env, args []string) int {
	return runMigrate(e, "migrate-down", maintenance.Down, args)
}

func runMigrate(e Env, name string, dir maintenance.Direction, args []string) int {
	return maintenance.RunScript(e.Stdout, e.Stderr, name, func() (string, error) {
		if err := maintenance.NoArgs(name, args); err != nil {
			return "", err
		}
		st, err := maintenance.Migrate(e.DSN, dir, e.logger())
		if err != nil {
			return "", err
		}
		return maintenance.Describe(dir, st), nil
	})
}

func sessionsSummary(n int64) string {
	if n == 1 {
		return "cleared 1 session"
	}
	return fmt.Sprintf("cleared %d sessions", n)
}
