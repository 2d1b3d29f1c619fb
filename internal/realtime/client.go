package realtime

import (
	"sync"

	"github.com/google/uuid"

	"github.com/yungbote/storefront-backend/internal/platform/logger"
)

// Client is one open event stream. Its outbound buffer is filled by the hub
// and drained by ServeHTTP.
type Client struct {
	ID        uuid.UUID
	SessionID string
	Channels  map[string]bool
	Outbound  chan Message
	done      chan struct{}
	closeOnce sync.Once
	Logger    *logger.Logger
}

// Done is closed when the hub closes the client.
func (c *Client) Done() <-chan struct{} { return c.done }
