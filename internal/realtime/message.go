package realtime

import (
	"encoding/json"

	"github.com/yungbote/storefront-backend/internal/domain/cart"
)

type Event string

const (
	EventCartSnapshot Event = "cart.snapshot"
	EventCartClosed   Event = "cart.closed"
)

// Message is one push to every client listening on Channel. Data is already
// JSON so messages survive a trip through an external bus unchanged.
type Message struct {
	Channel string          `json:"channel"`
	Event   Event           `json:"event"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// SnapshotMessage wraps a cart snapshot for the session's channel.
func SnapshotMessage(sessionID string, s cart.Snapshot) (Message, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return Message{}, err
	}
	return Message{Channel: sessionID, Event: EventCartSnapshot, Data: raw}, nil
}
