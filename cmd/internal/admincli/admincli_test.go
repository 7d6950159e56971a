package admincli

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/cracked-sourcecode/QuoteBidV1-sub008/cmd/internal/maintenance"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type fakeConn struct {
	rows  int64
	err   error
	execs []string
}

func (c *fakeConn) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	c.execs = append(c.execs, sql)
	if c.err != nil {
		return pgconn.CommandTag{}, c.err
	}
	n := c.rows
	c.rows = 0
	return pgconn.NewCommandTag("DELETE " + strconv.FormatInt(n, 10)), nil
}

func (c *fakeConn) QueryRow(context.Context, string, ...any) pgx.Row { return nil }

func (c *fakeConn) Close(context.Context) error { return nil }

func testEnv(dsn string, conn *fakeConn) (Env, *bytes.Buffer, *bytes.Buffer) {
	var stdout, stderr bytes.Buffer
	return Env{
		DSN: dsn,
		Connect: func(context.Context, string) (maintenance.Conn, error) {
			return conn, nil
		},
		Log:    NewLogger(&stderr, "error"),
		Stdout: &stdout,
		Stderr: &stderr,
		Now:    func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) },
	}, &stdout, &stderr
}

func TestClearSessions_ThreeThenZero(t *testing.T) {
	conn := &fakeConn{rows: 3}
	e, stdout, stderr := testEnv("postgres://example/qb", conn)

	if code := ClearSessions(context.Background(), e, nil); code != 0 {
		t.Fatalf("exit=%d stderr=%q", code, stderr)
	}
	if code := ClearSessions(context.Background(), e, nil); code != 0 {
		t.Fatalf("second exit=%d stderr=%q", code, stderr)
	}

	if got := stdout.String(); got != "cleared 3 sessions\ncleared 0 sessions\n" {
		t.Fatalf("stdout=%q", got)
	}
	if stderr.Len() != 0 {
		t.Fatalf("stderr=%q", stderr)
	}
	if len(conn.execs) != 2 || !strings.Contains(conn.execs[0], "DELETE FROM user_sessions") {
		t.Fatalf("execs=%q", conn.execs)
	}
}

func TestClearSessions_Failures(t *testing.T) {
	tests := []struct {
		name    string
		dsn     string
		conn    *fakeConn
		args    []string
		wantErr string
	}{
		{"missing dsn", "", &fakeConn{rows: 3}, nil, maintenance.DatabaseURLEnv},
		{"arguments", "postgres://example/qb", &fakeConn{rows: 3}, []string{"--all"}, "takes no arguments"},
		{"store error", "postgres://example/qb", &fakeConn{err: errors.New("relation does not exist")}, nil, "relation does not exist"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, stdout, stderr := testEnv(tt.dsn, tt.conn)
			if code := ClearSessions(context.Background(), e, tt.args); code != 1 {
				t.Fatalf("exit=%d", code)
			}
			if stdout.Len() != 0 {
				t.Fatalf("stdout=%q", stdout)
			}
			if !strings.HasPrefix(stderr.String(), "clear-sessions: ") || !strings.Contains(stderr.String(), tt.wantErr) {
				t.Fatalf("stderr=%q want %q", stderr, tt.wantErr)
			}
			if n := strings.Count(stderr.String(), "\n"); n != 1 {
				t.Fatalf("stderr has %d lines, want the error once: %q", n, stderr)
			}
			if tt.dsn == "" && len(tt.conn.execs) != 0 {
				t.Fatalf("store touched without a DSN")
			}
		})
	}
}

func TestMigrateScripts_MissingDSN(t *testing.T) {
	for name, run := range map[string]func(Env, []string) int{
		"migrate-up":   MigrateUp,
		"migrate-down": MigrateDown,
	} {
		e, stdout, stderr := testEnv("", &fakeConn{})
		if code := run(e, nil); code != 1 {
			t.Fatalf("%s exit=%d", name, code)
		}
		if stdout.Len() != 0 || !strings.Contains(stderr.String(), name+": ") || !strings.Contains(stderr.String(), maintenance.DatabaseURLEnv) {
			t.Fatalf("%s stdout=%q stderr=%q", name, stdout, stderr)
		}
	}
}

func TestMigrateScripts_RejectArgs(t *testing.T) {
	e, _, stderr := testEnv("postgres://example/qb", &fakeConn{})
	if code := MigrateUp(e, []string{"3"}); code != 1 {
		t.Fatalf("exit=%d", code)
	}
	if !strings.Contains(stderr.String(), "takes no arguments") {
		t.Fatalf("stderr=%q", stderr)
	}
}

func TestAdminApp_Sessions(t *testing.T) {
	t.Setenv(maintenance.DatabaseURLEnv, "")

	conn := &fakeConn{rows: 2}
	e, stdout, _ := testEnv("postgres://example/qb", conn)

	if err := App(e).Run([]string{"qb-admin", "sessions", "clear"}); err != nil {
		t.Fatalf("sessions clear: %v", err)
	}
	conn.rows = 4
	if err := App(e).Run([]string{"qb-admin", "sessions", "prune"}); err != nil {
		t.Fatalf("sessions prune: %v", err)
	}

	want := "cleared 2 sessions\npruned 4 expired sessions\n"
	if got := stdout.String(); got != want {
		t.Fatalf("stdout=%q want %q", got, want)
	}
	if !strings.Contains(conn.execs[1], "expires_at") {
		t.Fatalf("prune sql=%q", conn.execs[1])
	}
}

func TestAdminApp_EmptyEnvKeepsBaseDSN(t *testing.T) {
	t.Setenv(maintenance.DatabaseURLEnv, "  ")

	conn := &fakeConn{rows: 5}
	e, stdout, _ := testEnv("postgres://base/qb", conn)
	if err := App(e).Run([]string{"qb-admin", "sessions", "clear"}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := stdout.String(); got != "cleared 5 sessions\n" {
		t.Fatalf("stdout=%q", got)
	}
}

func TestAdminApp_ConfigErrors(t *testing.T) {
	t.Setenv(maintenance.DatabaseURLEnv, "")
	t.Setenv("QB_ADMIN_PASSWORD", "")

	e, _, _ := testEnv("", &fakeConn{})

	for _, args := range [][]string{
		{"qb-admin", "sessions", "clear"},
		{"qb-admin", "migrate", "up"},
		{"qb-admin", "users", "delete", "alice"},
	} {
		err := App(e).Run(args)
		if !maintenance.IsConfig(err) {
			t.Fatalf("%v: err=%v want config error", args[1:], err)
		}
	}

	if err := App(e).Run([]string{"qb-admin", "users", "delete"}); err == nil || maintenance.IsConfig(err) {
		t.Fatalf("missing username: err=%v", err)
	}
}

func TestAdminApp_FlagOverridesDSN(t *testing.T) {
	t.Setenv(maintenance.DatabaseURLEnv, "")

	conn := &fakeConn{rows: 1}
	e, stdout, _ := testEnv("", conn)
	if err := App(e).Run([]string{"qb-admin", "--database-url", "postgres://flag/qb", "sessions", "clear"}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := stdout.String(); got != "cleared 1 session\n" {
		t.Fatalf("stdout=%q", got)
	}
}
