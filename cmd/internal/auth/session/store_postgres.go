package session

import (
	"context"
	"errors"
	"net/netip"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cracked-sourcecode/QuoteBidV1-sub008/cmd/identity/ids"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the subset of *pgxpool.Pool, *pgx.Conn or pgx.Tx the store uses.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps sessions in the user_sessions table.
type PostgresStore struct {
	db DBTX
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(db DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

const sessionColumns = `id, user_id, token_hash, platform, COALESCE(user_agent, ''), COALESCE(host(ip), ''),
	created_at, last_used_at, expires_at`

func (s *PostgresStore) Create(ctx context.Context, in NewRow) (Row, error) {
	row, err := prepareRow(in)
	if err != nil {
		return Row{}, err
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO user_sessions (id, user_id, token_hash, platform, user_agent, ip, created_at, last_used_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6::inet, $7, NULL, $8)
	`, row.ID, row.UserID, row.TokenHash, string(row.Platform),
		nullIfEmpty(row.UserAgent), nullIfEmpty(row.IP), row.CreatedAt, row.ExpiresAt)
	if err != nil {
		return Row{}, err
	}
	return row, nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id string) (Row, error) {
	return scanRow(s.db.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM user_sessions WHERE id = $1`, id))
}

func (s *PostgresStore) GetByTokenHash(ctx context.Context, tokenHash string) (Row, error) {
	return scanRow(s.db.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM user_sessions WHERE token_hash = $1`, tokenHash))
}

func (s *PostgresStore) Touch(ctx context.Context, id string, now time.Time) error {
	tag, err := s.db.Exec(ctx, `UPDATE user_sessions SET last_used_at = $2 WHERE id = $1`, id, now.UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM user_sessions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	return s.deleteWhere(ctx, `DELETE FROM user_sessions WHERE user_id = $1`, userID)
}

func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return s.deleteWhere(ctx, `DELETE FROM user_sessions WHERE expires_at <= $1`, now.UTC())
}

// DeleteAll is a single unconditional DELETE; running it twice removes
// nothing the second time.
func (s *PostgresStore) DeleteAll(ctx context.Context) (int64, error) {
	return s.deleteWhere(ctx, `DELETE FROM user_sessions`)
}

func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM user_sessions`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *PostgresStore) deleteWhere(ctx context.Context, sql string, args ...any) (int64, error) {
	tag, err := s.db.Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanRow(row pgx.Row) (Row, error) {
	var (
		r        Row
		platform string
	)
	err := row.Scan(&r.ID, &r.UserID, &r.TokenHash, &platform, &r.UserAgent, &r.IP,
		&r.CreatedAt, &r.LastUsedAt, &r.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Row{}, ErrSessionNotFound
	}
	if err != nil {
		return Row{}, err
	}
	r.Platform = Platform(platform)
	return r, nil
}

// prepareRow fills the id and normalizes the fields shared by both stores.
func prepareRow(in NewRow) (Row, error) {
	if strings.TrimSpace(in.UserID) == "" || len(in.TokenHash) != 64 {
		return Row{}, errors.New("session: user id and 64-char token hash are required")
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()

	id, err := ids.NewULID(now)
	if err != nil {
		return Row{}, err
	}

	platform := in.Platform
	if platform == "" {
		platform = PlatformUnknown
	}

	return Row{
		ID:        id,
		UserID:    in.UserID,
		TokenHash: in.TokenHash,
		Platform:  platform,
		UserAgent: truncate(strings.TrimSpace(in.Device.UserAgent), 512),
		IP:        normalizeIP(in.Device.IP),
		CreatedAt: now,
		ExpiresAt: in.ExpiresAt.UTC(),
	}, nil
}

func normalizeIP(raw string) string {
	addr, err := netip.ParseAddr(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return addr.Unmap().String()
}

// truncate cuts s to at most n bytes on a rune boundary. Invalid UTF-8 is
// replaced first since text columns reject it.
func truncate(s string, n int) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
