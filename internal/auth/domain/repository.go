package domain

import (
	"context"

	"github.com/felixgeelhaar/meridian/internal/valuetype"
)

// UserRepository persists user credentials. Username lookups are
// case-insensitive; Save stores the username as given.
type UserRepository interface {
	Get(ctx context.Context, username string) (User, bool, error)
	Save(ctx context.Context, u User) error
	// HasAny reports whether any user account exists, driving §4.H's
	// "no users yet" initial-setup exempt-method list.
	HasAny(ctx context.Context) (bool, error)
}

// TokenRepository persists issued bearer tokens.
type TokenRepository interface {
	Save(ctx context.Context, t Token) error
	FindByHash(ctx context.Context, hash []byte) (Token, bool, error)
	ListForUser(ctx context.Context, username string) ([]Token, error)
	Delete(ctx context.Context, id valuetype.TokenID) error
}
