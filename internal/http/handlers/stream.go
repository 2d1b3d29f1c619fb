package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/storefront-backend/internal/http/middleware"
	"github.com/yungbote/storefront-backend/internal/http/response"
	"github.com/yungbote/storefront-backend/internal/platform/logger"
	"github.com/yungbote/storefront-backend/internal/realtime"
)

type StreamHandler struct {
	log  *logger.Logger
	cart *CartHandler
	hub  *realtime.Hub
}

func NewStreamHandler(log *logger.Logger, cart *CartHandler, hub *realtime.Hub) *StreamHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &StreamHandler{log: log.With("component", "CartStream"), cart: cart, hub: hub}
}

// GET /api/cart/stream sends the current snapshot, then every snapshot the
// session's store publishes, until the client goes away.
func (h *StreamHandler) Stream(c *gin.Context) {
	st, err := h.cart.store(c)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	sid := middleware.SessionID(c)
	release := h.cart.sessions.Hold(sid)
	defer release()

	client := h.hub.NewClient(sid)
	h.hub.AddChannel(client, sid)
	defer h.hub.CloseClient(client)

	if msg, err := realtime.SnapshotMessage(sid, st.Snapshot()); err == nil {
		client.Outbound <- msg
	} else {
		h.log.Warn("encode initial cart snapshot failed", "session_id", sid, "error", err)
	}

	h.log.Debug("cart stream open", "session_id", sid, "client_id", client.ID.String())
	h.hub.ServeHTTP(c.Writer, c.Request, client)
	h.log.Debug("cart stream closed", "session_id", sid, "client_id", client.ID.String())
}
