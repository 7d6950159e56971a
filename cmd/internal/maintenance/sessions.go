package maintenance

import (
	"context"
	"log/slog"
	"time"

	"github.com/cracked-sourcecode/QuoteBidV1-sub008/cmd/internal/auth/session"
)

// SessionInvalidator purges server-side sessions. Bearer tokens already
// handed out stay valid until they expire.
type SessionInvalidator struct {
	dsn     string
	connect Connector
	log     *slog.Logger
}

// NewSessionInvalidator binds dsn. A nil connect uses PgxConnect.
func NewSessionInvalidator(dsn string, connect Connector, log *slog.Logger) *SessionInvalidator {
	if connect == nil {
		connect = PgxConnect
	}
	if log == nil {
		log = slog.Default()
	}
	return &SessionInvalidator{dsn: dsn, connect: connect, log: log}
}

// InvalidateAll deletes every user_sessions row and returns how many were
// removed. With no rows it returns 0 and no error.
func (s *SessionInvalidator) InvalidateAll(ctx context.Context) (int64, error) {
	if err := requireDSN(s.dsn); err != nil {
		return 0, err
	}

	var removed int64
	err := withConn(ctx, s.connect, s.dsn, func(c Conn) error {
		n, err := session.NewPostgresStore(c).DeleteAll(ctx)
		if err != nil {
			return &OpError{Op: "delete sessions", Err: err}
		}
		removed = n
		return nil
	})
	if err != nil {
		s.log.Debug("maintenance.sessions.invalidate.fail", "err", err)
		return 0, err
	}

	s.log.Info("maintenance.sessions.invalidated", "count", removed)
	return removed, nil
}

// Count reports the number of session rows.
func (s *SessionInvalidator) Count(ctx context.Context) (int64, error) {
	if err := requireDSN(s.dsn); err != nil {
		return 0, err
	}

	var n int64
	err := withConn(ctx, s.connect, s.dsn, func(c Conn) error {
		var err error
		if n, err = session.NewPostgresStore(c).Count(ctx); err != nil {
			return &OpError{Op: "count sessions", Err: err}
		}
		return nil
	})
	return n, err
}

// PruneExpired deletes sessions that expired at or before now.
func (s *SessionInvalidator) PruneExpired(ctx context.Context, now time.Time) (int64, error) {
	if err := requireDSN(s.dsn); err != nil {
		return 0, err
	}

	var n int64
	err := withConn(ctx, s.connect, s.dsn, func(c Conn) error {
		var err error
		if n, err = session.NewPostgresStore(c).DeleteExpired(ctx, now); err != nil {
			return &OpError{Op: "prune sessions", Err: err}
		}
		return nil
	})
	if err == nil {
		s.log.Info("maintenance.sessions.pruned", "count", n)
	}
	return n, err
}
