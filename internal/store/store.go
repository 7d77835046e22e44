package store

import (
	"context"
	"errors"

	"github.com/vovakirdan/marketchat/internal/core"
)

// ErrLocked is returned when the stored token is encrypted and no secret was configured.
var ErrLocked = errors.New("client state is encrypted; set state_secret")

// AuthStore keeps the credentials of the signed-in user.
type AuthStore interface {
	// Token returns the bearer token, or "" when signed out.
	Token(ctx context.Context) (string, error)

	// SetToken stores a new bearer token.
	SetToken(ctx context.Context, token string) error

	// CurrentUser returns the cached account, or nil when none is cached.
	CurrentUser(ctx context.Context) (*core.User, error)

	// SetCurrentUser caches the signed-in account.
	SetCurrentUser(ctx context.Context, u core.User) error

	// ClearAuth drops the token and the cached account.
	ClearAuth(ctx context.Context) error
}

// RoomMarker remembers the last chat room created from this client so the next
// chat view can open it once.
type RoomMarker interface {
	SetLastCreatedRoom(ctx context.Context, roomID string) error

	// TakeLastCreatedRoom returns the remembered room and forgets it.
	TakeLastCreatedRoom(ctx context.Context) (string, error)
}

// Store aggregates all client state.
type Store interface {
	AuthStore
	RoomMarker

	// Close closes the underlying database connection.
	Close() error
}
