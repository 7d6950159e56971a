package identity

import (
	"context"
	"time"
)

type User struct {
	ID           string
	Username     string
	UsernameNorm string
	PasswordHash string
	CreatedAt    time.Time
}

// NewUser is a user about to be stored; PasswordHash is already computed.
type NewUser struct {
	Username     string
	PasswordHash string
	Now          time.Time
}

type Store interface {
	CreateUser(ctx context.Context, in NewUser) (User, error)
	GetUserByID(ctx context.Context, id string) (User, error)
	GetUserByUsername(ctx context.Context, username string) (User, error)
	UpdatePasswordHash(ctx context.Context, id, hash string) error

	// DeleteUserByUsername removes the user; their sessions go with them.
	DeleteUserByUsername(ctx context.Context, username string) (User, error)
}
