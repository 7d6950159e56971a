// Package pgtest gives integration tests an isolated, migrated Postgres
// schema. Tests skip unless QB_DATABASE_URL is set.
package pgtest

import (
	"context"
	"errors"
	"net"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/cracked-sourcecode/QuoteBidV1-sub008/cmd/identity/ids"
	"github.com/cracked-sourcecode/QuoteBidV1-sub008/cmd/internal/migrations"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const EnvDatabaseURL = "QB_DATABASE_URL"

// DB is one test's schema.
type DB struct {
	Pool   *pgxpool.Pool
	DSN    string
	Schema string
}

// Open creates a fresh schema, migrates it, and returns a pool whose
// search_path points at it. Everything is dropped on cleanup.
func Open(t *testing.T) DB {
	t.Helper()

	raw := strings.TrimSpace(os.Getenv(EnvDatabaseURL))
	if raw == "" {
		t.Skipf("integration test skipped: %s is not set", EnvDatabaseURL)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	admin, err := pgxpool.New(ctx, raw)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}
	t.Cleanup(admin.Close)

	pingCtx, pingCancel := context.WithTimeout(ctx, 3*time.Second)
	defer pingCancel()
	if err := admin.Ping(pingCtx); err != nil {
		if unreachable(err) {
			t.Skipf("integration test skipped: Postgres unreachable: %v", err)
		}
		t.Fatalf("ping postgres: %v", err)
	}

	schema := "qb_it_" + strings.ToLower(ids.MustULID(time.Now()))
	if _, err := admin.Exec(ctx, `CREATE SCHEMA `+pgx.Identifier{schema}.Sanitize()); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, _ = admin.Exec(ctx, `DROP SCHEMA IF EXISTS `+pgx.Identifier{schema}.Sanitize()+` CASCADE`)
	})

	dsn := WithSearchPath(raw, schema)

	r, err := migrations.Open(dsn, nil)
	if err != nil {
		t.Fatalf("open migrations: %v", err)
	}
	if _, err := r.Up(); err != nil {
		_ = r.Close()
		t.Fatalf("migrate up: %v", err)
	}
	_ = r.Close()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect schema pool: %v", err)
	}
	t.Cleanup(pool.Close)

	return DB{Pool: pool, DSN: dsn, Schema: schema}
}

// WithSearchPath adds search_path=schema to a URL or keyword/value DSN.
func WithSearchPath(dsn, schema string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		u, err := url.Parse(dsn)
		if err == nil {
			q := u.Query()
			q.Set("search_path", schema)
			u.RawQuery = q.Encode()
			return u.String()
		}
	}
	return dsn + " search_path=" + schema
}

func unreachable(err error) bool {
	var nerr net.Error
	if errors.As(err, &nerr) {
		return true
	}
	var oerr *net.OpError
	if errors.As(err, &oerr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
