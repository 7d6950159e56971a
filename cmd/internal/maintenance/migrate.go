package maintenance

import (
	"fmt"
	"log/slog"

	"github.com/cracked-sourcecode/QuoteBidV1-sub008/cmd/internal/migrations"
)

// Direction selects a ledger operation.
type Direction string

const (
	Up      Direction = "up"
	Down    Direction = "down"
	Version Direction = "version"
)

// Migrate runs one ledger operation against dsn. Up applies every pending
// step, Down reverts exactly one, Version only reads.
func Migrate(dsn string, dir Direction, log *slog.Logger) (migrations.Status, error) {
	if err := requireDSN(dsn); err != nil {
		return migrations.Status{}, err
	}

	r, err := migrations.Open(dsn, log)
	if err != nil {
		return migrations.Status{}, &OpError{Op: "open migrations", Err: err}
	}
	defer func() { _ = r.Close() }()

	var st migrations.Status
	switch dir {
	case Up:
		st, err = r.Up()
	case Down:
		st, err = r.Down()
	case Version:
		st, err = r.Version()
	default:
		return migrations.Status{}, ConfigError{Key: "direction", Reason: fmt.Sprintf("%q is not up, down or version", dir)}
	}
	if err != nil {
		return migrations.Status{}, &OpError{Op: "migrate " + string(dir), Err: err}
	}
	return st, nil
}

// Describe renders a status as one summary line.
func Describe(dir Direction, st migrations.Status) string {
	switch {
	case dir == Version:
		return fmt.Sprintf("schema at version %d (dirty=%t)", st.Version, st.Dirty)
	case !st.Changed:
		return fmt.Sprintf("migrate %s: nothing to do, schema at version %d", dir, st.Version)
	default:
		return fmt.Sprintf("migrate %s: schema now at version %d", dir, st.Version)
	}
}
