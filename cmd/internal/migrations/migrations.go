// Package migrations owns the QuoteBid schema as numbered up/down steps.
//
// Applied versions are recorded by golang-migrate in schema_migrations (in
// the connection's current schema). Every step is written to be re-runnable
// (IF [NOT] EXISTS), so replaying a step against a database that already has
// it is harmless.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed sql/*.sql
var files embed.FS

var ErrEmptyDSN = errors.New("migrations: empty database url")

// Status is the ledger position after an operation.
type Status struct {
	Version uint
	Dirty   bool
	// Changed is false when the operation had nothing to do.
	Changed bool
}

// Runner applies the embedded steps to one database.
type Runner struct {
	m   *migrate.Migrate
	log *slog.Logger
}

// Open connects to dsn through pgx's database/sql driver.
func Open(dsn string, log *slog.Logger) (*Runner, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, ErrEmptyDSN
	}
	if log == nil {
		log = slog.Default()
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("migrations: open: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: postgres driver: %w", err)
	}

	src, err := iofs.New(files, "sql")
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: init: %w", err)
	}

	return &Runner{m: m, log: log}, nil
}

// Close releases the connection; the underlying *sql.DB is closed by the driver.
func (r *Runner) Close() error {
	srcErr, dbErr := r.m.Close()
	return errors.Join(srcErr, dbErr)
}

// Up applies every pending step.
func (r *Runner) Up() (Status, error) {
	r.log.Info("migrate.up.start")
	return r.finish("up", r.m.Up())
}

// Down reverts the most recent step.
func (r *Runner) Down() (Status, error) {
	r.log.Info("migrate.down.start")
	return r.finish("down", r.m.Steps(-1))
}

// Version reports the current ledger position; Version 0 means nothing applied.
func (r *Runner) Version() (Status, error) {
	v, dirty, err := r.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return Status{}, nil
	}
	if err != nil {
		return Status{}, fmt.Errorf("migrations: version: %w", err)
	}
	return Status{Version: v, Dirty: dirty}, nil
}

func (r *Runner) finish(op string, err error) (Status, error) {
	changed := true
	switch {
	case err == nil:
	case errors.Is(err, migrate.ErrNoChange):
		changed = false
	case op == "down" && isNothingToRevert(err):
		changed = false
	default:
		r.log.Debug("migrate."+op+".fail", "err", err)
		return Status{}, fmt.Errorf("migrations: %s: %w", op, err)
	}

	st, verr := r.Version()
	if verr != nil {
		return Status{}, verr
	}
	st.Changed = changed
	r.log.Info("migrate."+op+".done", "version", st.Version, "dirty", st.Dirty, "changed", changed)
	return st, nil
}

// Steps(-1) at version zero reports fs.ErrNotExist.
func isNothingToRevert(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, migrate.ErrNilVersion)
}
