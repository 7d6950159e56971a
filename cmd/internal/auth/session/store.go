package session

import (
	"context"
	"strings"
	"time"

	"github.com/cracked-sourcecode/QuoteBidV1-sub008/cmd/internal/client/gate"
)

// Platform classifies the client that owns a session.
type Platform string

const (
	PlatformWeb     Platform = "web"
	PlatformMobile  Platform = "mobile"
	PlatformUnknown Platform = "unknown"
)

// PlatformFor classifies a User-Agent header.
func PlatformFor(userAgent string) Platform {
	switch {
	case strings.TrimSpace(userAgent) == "":
		return PlatformUnknown
	case gate.IsMobileUserAgent(userAgent):
		return PlatformMobile
	default:
		return PlatformWeb
	}
}

// DeviceContext describes the client at login.
type DeviceContext struct {
	UserAgent string
	// IP is the textual client address; empty or unparsable is stored as NULL.
	IP string
}

// Row mirrors a user_sessions row.
type Row struct {
	ID         string
	UserID     string
	TokenHash  string
	Platform   Platform
	UserAgent  string
	IP         string
	CreatedAt  time.Time
	LastUsedAt *time.Time
	ExpiresAt  time.Time
}

// NewRow is the input to Store.Create. The store assigns the id.
type NewRow struct {
	UserID    string
	TokenHash string
	Platform  Platform
	Device    DeviceContext
	Now       time.Time
	ExpiresAt time.Time
}

// Store persists session rows.
type Store interface {
	Create(ctx context.Context, in NewRow) (Row, error)
	GetByID(ctx context.Context, id string) (Row, error)
	GetByTokenHash(ctx context.Context, tokenHash string) (Row, error)

	// Touch records use of a session.
	Touch(ctx context.Context, id string, now time.Time) error

	// Delete removes one session. Deleting a missing id returns ErrSessionNotFound.
	Delete(ctx context.Context, id string) error

	// DeleteByUser removes every session of one user.
	DeleteByUser(ctx context.Context, userID string) (int64, error)

	// DeleteExpired removes sessions whose expiry is at or before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)

	// DeleteAll removes every session and reports how many were removed.
	DeleteAll(ctx context.Context) (int64, error)

	Count(ctx context.Context) (int64, error)
}
