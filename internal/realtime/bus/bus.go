// Package bus fans realtime messages out across storefront instances so a
// shopper's stream sees cart changes made through any of them.
package bus

import (
	"context"

	"github.com/yungbote/storefront-backend/internal/realtime"
)

type Bus interface {
	Publish(ctx context.Context, msg realtime.Message) error
	// StartForwarder delivers every published message to onMsg until ctx ends.
	StartForwarder(ctx context.Context, onMsg func(m realtime.Message)) error
	Close() error
}
