package identity

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/cracked-sourcecode/QuoteBidV1-sub008/cmd/security/password"
)

// Authenticator registers users and checks their passwords.
type Authenticator struct {
	store     Store
	passwords password.Config
	log       *slog.Logger

	// verified against when the user does not exist, so a miss costs the
	// same as a wrong password
	dummyHash string
}

func NewAuthenticator(store Store, passwords password.Config, log *slog.Logger) (*Authenticator, error) {
	if store == nil {
		return nil, errors.New("identity: nil store")
	}
	if log == nil {
		log = slog.Default()
	}

	dummyCfg := passwords
	dummyCfg.Policy.MinLength = 1
	dummyCfg.Policy.RejectVeryWeak = false
	dummy, err := dummyCfg.Hash("timing-equalizer-" + time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, err
	}

	return &Authenticator{store: store, passwords: passwords, log: log, dummyHash: dummy}, nil
}

// Register hashes plain under the password policy and stores the user.
func (a *Authenticator) Register(ctx context.Context, username, plain string, now time.Time) (User, error) {
	const op = "identity.Register"

	if !ValidUsername(username) {
		return User{}, invalid(op, "username must be 3-32 chars of a-z 0-9 . _ -")
	}
	hash, err := a.passwords.Hash(plain)
	if err != nil {
		switch {
		case errors.Is(err, password.ErrPasswordTooShort),
			errors.Is(err, password.ErrPasswordTooLong),
			errors.Is(err, password.ErrWeakPassword):
			return User{}, invalid(op, err.Error())
		default:
			return User{}, err
		}
	}
	return a.store.CreateUser(ctx, NewUser{Username: username, PasswordHash: hash, Now: now})
}

// Authenticate returns the user when username and plain match. Unknown users
// and wrong passwords both yield ErrInvalidCredentials.
func (a *Authenticator) Authenticate(ctx context.Context, username, plain string) (User, error) {
	const op = "identity.Authenticate"

	if strings.TrimSpace(username) == "" || plain == "" {
		return User{}, OpError{Op: op, Kind: ErrInvalidCredentials}
	}

	u, err := a.store.GetUserByUsername(ctx, username)
	if err != nil {
		if IsNotFound(err) {
			_, _ = a.passwords.Verify(a.dummyHash, plain)
			return User{}, OpError{Op: op, Kind: ErrInvalidCredentials}
		}
		return User{}, err
	}

	ok, err := a.passwords.Verify(u.PasswordHash, plain)
	if err != nil && !errors.Is(err, password.ErrInvalidHash) {
		return User{}, err
	}
	if !ok {
		return User{}, OpError{Op: op, Kind: ErrInvalidCredentials}
	}

	if a.passwords.NeedsRehash(u.PasswordHash) {
		a.rehash(ctx, u, plain)
	}
	return u, nil
}

func (a *Authenticator) rehash(ctx context.Context, u User, plain string) {
	cfg := a.passwords
	cfg.Policy.MinLength = 1
	cfg.Policy.RejectVeryWeak = false

	hash, err := cfg.Hash(plain)
	if err == nil {
		err = a.store.UpdatePasswordHash(ctx, u.ID, hash)
	}
	if err != nil {
		a.log.Warn("identity.rehash.fail", "user_id", u.ID, "err", err)
		return
	}
	a.log.Info("identity.rehash", "user_id", u.ID)
}
