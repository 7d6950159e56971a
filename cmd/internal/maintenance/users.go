package maintenance

import (
	"context"
	"log/slog"
	"time"

	"github.com/cracked-sourcecode/QuoteBidV1-sub008/cmd/identity"
	"github.com/cracked-sourcecode/QuoteBidV1-sub008/cmd/security/password"
)

// UserAdmin creates and removes accounts. Removing a user drops its
// sessions through the foreign key cascade.
type UserAdmin struct {
	dsn       string
	connect   Connector
	passwords password.Config
	log       *slog.Logger
}

func NewUserAdmin(dsn string, passwords password.Config, connect Connector, log *slog.Logger) *UserAdmin {
	if connect == nil {
		connect = PgxConnect
	}
	if log == nil {
		log = slog.Default()
	}
	return &UserAdmin{dsn: dsn, connect: connect, passwords: passwords, log: log}
}

// Create registers username with a policy-checked password.
func (a *UserAdmin) Create(ctx context.Context, username, plain string) (identity.User, error) {
	if err := requireDSN(a.dsn); err != nil {
		return identity.User{}, err
	}

	var u identity.User
	err := withConn(ctx, a.connect, a.dsn, func(c Conn) error {
		auth, err := identity.NewAuthenticator(identity.NewPostgresStore(c), a.passwords, a.log)
		if err != nil {
			return err
		}
		u, err = auth.Register(ctx, username, plain, time.Now())
		if err != nil && !identity.IsInvalidInput(err) && !identity.IsConflict(err) {
			return &OpError{Op: "create user", Err: err}
		}
		return err
	})
	if err != nil {
		return identity.User{}, err
	}

	a.log.Info("maintenance.users.created", "user_id", u.ID, "username", u.Username)
	return u, nil
}

// Delete removes username. A missing user is reported as identity's not-found error.
func (a *UserAdmin) Delete(ctx context.Context, username string) (identity.User, error) {
	if err := requireDSN(a.dsn); err != nil {
		return identity.User{}, err
	}

	var u identity.User
	err := withConn(ctx, a.connect, a.dsn, func(c Conn) error {
		var err error
		u, err = identity.NewPostgresStore(c).DeleteUserByUsername(ctx, username)
		if err != nil && !identity.IsNotFound(err) {
			return &OpError{Op: "delete user", Err: err}
		}
		return err
	})
	if err != nil {
		return identity.User{}, err
	}

	a.log.Info("maintenance.users.deleted", "user_id", u.ID, "username", u.Username)
	return u, nil
}
