package maintenance

import (
	"context"
	"os"
	"strings"

	"github.com/cracked-sourcecode/QuoteBidV1-sub008/cmd/internal/auth/session"

	"github.com/jackc/pgx/v5"
)

// DatabaseURLEnv is the one required setting for every operation here.
const DatabaseURLEnv = "QB_DATABASE_URL"

// Conn is a single connection owned by one operation.
type Conn interface {
	session.DBTX
	Close(ctx context.Context) error
}

// Connector opens a Conn; tests substitute it.
type Connector func(ctx context.Context, dsn string) (Conn, error)

// PgxConnect is the default Connector.
func PgxConnect(ctx context.Context, dsn string) (Conn, error) {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// DSNFromEnv returns the trimmed database url, which may be empty.
func DSNFromEnv() string {
	return strings.TrimSpace(os.Getenv(DatabaseURLEnv))
}

func requireDSN(dsn string) error {
	if strings.TrimSpace(dsn) == "" {
		return ConfigError{Key: DatabaseURLEnv}
	}
	return nil
}

func withConn(ctx context.Context, connect Connector, dsn string, fn func(Conn) error) error {
	conn, err := connect(ctx, dsn)
	if err != nil {
		return &OpError{Op: "connect", Err: err}
	}
	defer func() { _ = conn.Close(context.WithoutCancel(ctx)) }()
	return fn(conn)
}
