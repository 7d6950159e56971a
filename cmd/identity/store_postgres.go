package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cracked-sourcecode/QuoteBidV1-sub008/cmd/identity/ids"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the subset of *pgxpool.Pool (or pgx.Tx) the store needs.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps users in the "users" table. The caller owns db.
type PostgresStore struct {
	db DBTX
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(db DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

const userColumns = `id, username, username_norm, password_hash, created_at`

func (s *PostgresStore) CreateUser(ctx context.Context, in NewUser) (User, error) {
	const op = "identity.CreateUser"

	u, err := prepareUser(op, in)
	if err != nil {
		return User{}, err
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5)`,
		u.ID, u.Username, u.UsernameNorm, u.PasswordHash, u.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return User{}, ConflictError{Op: op, Field: "username"}
		}
		return User{}, err
	}
	return u, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (User, error) {
	const op = "identity.GetUserByID"
	row := s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, strings.TrimSpace(id))
	return scanUser(op, row)
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (User, error) {
	const op = "identity.GetUserByUsername"
	row := s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username_norm = $1`, NormalizeUsername(username))
	return scanUser(op, row)
}

func (s *PostgresStore) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	const op = "identity.UpdatePasswordHash"
	if strings.TrimSpace(hash) == "" {
		return invalid(op, "empty hash")
	}

	tag, err := s.db.Exec(ctx, `UPDATE users SET password_hash = $2 WHERE id = $1`, id, hash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return NotFoundError{Op: op, Resource: "user"}
	}
	return nil
}

func (s *PostgresStore) DeleteUserByUsername(ctx context.Context, username string) (User, error) {
	const op = "identity.DeleteUserByUsername"
	row := s.db.QueryRow(ctx,
		`DELETE FROM users WHERE username_norm = $1 RETURNING `+userColumns,
		NormalizeUsername(username),
	)
	return scanUser(op, row)
}

func scanUser(op string, row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.UsernameNorm, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, NotFoundError{Op: op, Resource: "user"}
		}
		return User{}, err
	}
	return u, nil
}

func prepareUser(op string, in NewUser) (User, error) {
	name := strings.TrimSpace(in.Username)
	if !ValidUsername(name) {
		return User{}, invalid(op, "username must be 3-32 chars of a-z 0-9 . _ -")
	}
	if strings.TrimSpace(in.PasswordHash) == "" {
		return User{}, invalid(op, "password hash is required")
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()

	id, err := ids.NewULID(now)
	if err != nil {
		return User{}, err
	}

	return User{
		ID:           id,
		Username:     name,
		UsernameNorm: NormalizeUsername(name),
		PasswordHash: in.PasswordHash,
		CreatedAt:    now,
	}, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
