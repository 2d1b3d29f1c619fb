// Package session ties browser sessions to cart stores and remembers each
// session's remote cart token. Cart contents are never stored here; the
// commerce backend owns them.
package session

import (
	"context"
	"errors"
)

var ErrTokenNotFound = errors.New("session: cart token not found")

// TokenStore persists the remote cart token for a session.
type TokenStore interface {
	Get(ctx context.Context, sessionID string) (string, error)
	Put(ctx context.Context, sessionID, token string) error
	Delete(ctx context.Context, sessionID string) error
}
