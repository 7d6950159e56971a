package admincli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cracked-sourcecode/QuoteBidV1-sub008/cmd/internal/maintenance"
	"github.com/cracked-sourcecode/QuoteBidV1-sub008/cmd/security/password"

	"github.com/urfave/cli/v2"
)

// Build information, set via ldflags.
var Version = "dev"

// App builds qb-admin. Flags override the fields of base; base.Connect is
// kept so tests can run the commands without a database.
func App(base Env) *cli.App {
	return &cli.App{
		Name:      "qb-admin",
		Usage:     "QuoteBid operator tool",
		Version:   Version,
		Writer:    base.Stdout,
		ErrWriter: base.Stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database-url",
				Aliases: []string{"d"},
				Usage:   "Postgres DSN",
				EnvVars: []string{maintenance.DatabaseURLEnv},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "debug, info, warn or error (logs go to stderr)",
				EnvVars: []string{"QB_LOG_LEVEL"},
				Value:   "warn",
			},
		},
		Before: func(c *cli.Context) error {
			c.App.Metadata = map[string]any{"env": envFor(c, base)}
			return nil
		},
		Commands: []*cli.Command{
			sessionsCommand(),
			usersCommand(),
			migrateCommand(),
		},
	}
}

func envFor(c *cli.Context, base Env) Env {
	e := base
	// IsSet also reports an exported but empty QB_DATABASE_URL.
	if v := strings.TrimSpace(c.String("database-url")); v != "" {
		e.DSN = v
	}
	e.Log = NewLogger(e.Stderr, c.String("log-level"))
	return e
}

func env(c *cli.Context) Env {
	e, _ := c.App.Metadata["env"].(Env)
	return e
}

func summary(c *cli.Context, format string, args ...any) {
	fmt.Fprintf(c.App.Writer, format+"\n", args...)
}

func sessionsCommand() *cli.Command {
	return &cli.Command{
		Name:  "sessions",
		Usage: "Manage server-side sessions",
		Subcommands: []*cli.Command{
			{
				Name:  "clear",
				Usage: "Delete every session (issued bearer tokens stay valid until they expire)",
				Action: func(c *cli.Context) error {
					e := env(c)
					n, err := maintenance.NewSessionInvalidator(e.DSN, e.Connect, e.Log).InvalidateAll(c.Context)
					if err != nil {
						return err
					}
					summary(c, "%s", sessionsSummary(n))
					return nil
				},
			},
			{
				Name:  "count",
				Usage: "Print the number of sessions",
				Action: func(c *cli.Context) error {
					e := env(c)
					n, err := maintenance.NewSessionInvalidator(e.DSN, e.Connect, e.Log).Count(c.Context)
					if err != nil {
						return err
					}
					summary(c, "%d sessions", n)
					return nil
				},
			},
			{
				Name:  "prune",
				Usage: "Delete expired sessions",
				Action: func(c *cli.Context) error {
					e := env(c)
					n, err := maintenance.NewSessionInvalidator(e.DSN, e.Connect, e.Log).PruneExpired(c.Context, e.now())
					if err != nil {
						return err
					}
					summary(c, "pruned %d expired sessions", n)
					return nil
				},
			},
		},
	}
}

func usersCommand() *cli.Command {
	return &cli.Command{
		Name:  "users",
		Usage: "Manage user accounts",
		Subcommands: []*cli.Command{
			{
				Name:      "create",
				Usage:     "Create a user",
				ArgsUsage: "USERNAME",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "password",
						Usage:    "initial password",
						EnvVars:  []string{"QB_ADMIN_PASSWORD"},
						Required: true,
					},
				},
				Action: func(c *cli.Context) error {
					username, err := oneArg(c)
					if err != nil {
						return err
					}
					pw, err := password.FromEnv()
					if err != nil {
						return err
					}
					e := env(c)
					u, err := maintenance.NewUserAdmin(e.DSN, pw, e.Connect, e.Log).Create(c.Context, username, c.String("password"))
					if err != nil {
						return err
					}
					summary(c, "created user %s (%s)", u.Username, u.ID)
					return nil
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete a user and, by cascade, their sessions",
				ArgsUsage: "USERNAME",
				Action: func(c *cli.Context) error {
					username, err := oneArg(c)
					if err != nil {
						return err
					}
					e := env(c)
					u, err := maintenance.NewUserAdmin(e.DSN, password.DefaultConfig(), e.Connect, e.Log).Delete(c.Context, username)
					if err != nil {
						return err
					}
					summary(c, "deleted user %s (%s)", u.Username, u.ID)
					return nil
				},
			},
		},
	}
}

func migrateCommand() *cli.Command {
	sub := func(dir maintenance.Direction, usage string) *cli.Command {
		return &cli.Command{
			Name:  string(dir),
			Usage: usage,
			Action: func(c *cli.Context) error {
				e := env(c)
				st, err := maintenance.Migrate(e.DSN, dir, e.Log)
				if err != nil {
					return err
				}
				summary(c, "%s", maintenance.Describe(dir, st))
				return nil
			},
		}
	}
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply or revert schema migrations",
		Subcommands: []*cli.Command{
			sub(maintenance.Up, "Apply every pending migration"),
			sub(maintenance.Down, "Revert the most recent migration"),
			sub(maintenance.Version, "Print the schema version"),
		},
	}
}

func oneArg(c *cli.Context) (string, error) {
	if c.NArg() != 1 {
		return "", errors.New("expected exactly one USERNAME argument")
	}
	return strings.TrimSpace(c.Args().First()), nil
}
