package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/storefront-backend/internal/cartstore"
	"github.com/yungbote/storefront-backend/internal/domain/cart"
	"github.com/yungbote/storefront-backend/internal/http/middleware"
	"github.com/yungbote/storefront-backend/internal/http/response"
	"github.com/yungbote/storefront-backend/internal/platform/apierr"
	"github.com/yungbote/storefront-backend/internal/platform/logger"
)

// Sessions hands out the cart store for a shopper session.
type Sessions interface {
	Get(ctx context.Context, sessionID string) (*cartstore.Store, error)
	Hold(sessionID string) func()
}

var errUnavailable = apierr.New(http.StatusServiceUnavailable, "cart_unavailable", errors.New("cart is unavailable, try again"))

type CartHandler struct {
	log         *logger.Logger
	sessions    Sessions
	waitTimeout time.Duration
}

func NewCartHandler(log *logger.Logger, sessions Sessions, waitTimeout time.Duration) *CartHandler {
	if waitTimeout <= 0 {
		waitTimeout = 10 * time.Second
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &CartHandler{log: log, sessions: sessions, waitTimeout: waitTimeout}
}

type addItemRequest struct {
	VariantID  string            `json:"variant_id"`
	Quantity   *int              `json:"quantity"`
	Attributes map[string]string `json:"attributes"`
}

type updateItemRequest struct {
	Quantity *int `json:"quantity"`
}

// GET /api/cart
func (h *CartHandler) GetCart(c *gin.Context) {
	st, err := h.store(c)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, st.Snapshot())
}

// POST /api/cart/items
func (h *CartHandler) AddItem(c *gin.Context) {
	var req addItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	req.VariantID = strings.TrimSpace(req.VariantID)
	qty := 1
	if req.Quantity != nil {
		qty = *req.Quantity
	}
	switch {
	case req.VariantID == "":
		response.RespondAPIError(c, apierr.BadRequest("invalid_variant", cart.ErrInvalidVariant))
		return
	case qty < 1:
		response.RespondAPIError(c, apierr.BadRequest("invalid_quantity", cart.ErrInvalidQuantity))
		return
	}
	if err := cart.ValidateAttributes(req.Attributes); err != nil {
		response.RespondAPIError(c, apierr.BadRequest("invalid_attributes", err))
		return
	}
	h.mutate(c, func(st *cartstore.Store) cartstore.Pending {
		return st.AddToCart(req.VariantID, qty, req.Attributes)
	})
}

// PATCH /api/cart/items/:key
func (h *CartHandler) UpdateItem(c *gin.Context) {
	key := strings.TrimSpace(c.Param("key"))
	if key == "" {
		response.RespondError(c, http.StatusBadRequest, "invalid_key", errors.New("line key required"))
		return
	}
	var req updateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if req.Quantity == nil || *req.Quantity < 0 {
		response.RespondAPIError(c, apierr.BadRequest("invalid_quantity", cart.ErrInvalidQuantity))
		return
	}
	qty := *req.Quantity
	h.mutate(c, func(st *cartstore.Store) cartstore.Pending {
		return st.UpdateQuantity(key, qty)
	})
}

// DELETE /api/cart/items/:key
func (h *CartHandler) RemoveItem(c *gin.Context) {
	key := strings.TrimSpace(c.Param("key"))
	if key == "" {
		response.RespondError(c, http.StatusBadRequest, "invalid_key", errors.New("line key required"))
		return
	}
	h.mutate(c, func(st *cartstore.Store) cartstore.Pending {
		return st.RemoveFromCart(key)
	})
}

// DELETE /api/cart
func (h *CartHandler) Clear(c *gin.Context) {
	h.mutate(c, (*cartstore.Store).ClearCart)
}

// POST /api/cart/refresh
func (h *CartHandler) Refresh(c *gin.Context) {
	h.mutate(c, (*cartstore.Store).Refresh)
}

func (h *CartHandler) Open(c *gin.Context)   { h.local(c, (*cartstore.Store).Open) }
func (h *CartHandler) Close(c *gin.Context)  { h.local(c, (*cartstore.Store).Close) }
func (h *CartHandler) Toggle(c *gin.Context) { h.local(c, (*cartstore.Store).Toggle) }

// DELETE /api/cart/notice
func (h *CartHandler) DismissNotice(c *gin.Context) {
	h.local(c, (*cartstore.Store).DismissNotice)
}

func (h *CartHandler) store(c *gin.Context) (*cartstore.Store, error) {
	sid := middleware.SessionID(c)
	if sid == "" {
		return nil, apierr.New(http.StatusUnauthorized, "no_session", errors.New("missing session"))
	}
	st, err := h.sessions.Get(c.Request.Context(), sid)
	if errors.Is(err, cartstore.ErrClosed) {
		return nil, errUnavailable
	}
	return st, err
}

func (h *CartHandler) local(c *gin.Context, fn func(*cartstore.Store)) {
	st, err := h.store(c)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	fn(st)
	response.RespondOK(c, st.Snapshot())
}

// mutate queues fn on the session's store and answers with the optimistic
// snapshot, or with the settled one when the caller asked to wait. A store
// torn down between lookup and enqueue is fetched again once.
func (h *CartHandler) mutate(c *gin.Context, fn func(*cartstore.Store) cartstore.Pending) {
	wait, _ := strconv.ParseBool(c.Query("wait"))

	for attempt := 0; ; attempt++ {
		st, err := h.store(c)
		if err != nil {
			response.RespondAPIError(c, err)
			return
		}
		p := fn(st)
		if closedEarly(p) {
			if attempt == 0 {
				continue
			}
			h.log.Warn("cart store closed twice during request", "session_id", middleware.SessionID(c))
			response.RespondAPIError(c, errUnavailable)
			return
		}
		if !wait {
			response.RespondAccepted(c, st.Snapshot())
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), h.waitTimeout)
		snap, err := p.Wait(ctx)
		cancel()
		switch {
		case err == nil:
			response.RespondOK(c, snap)
		case errors.Is(err, cartstore.ErrClosed):
			response.RespondAPIError(c, errUnavailable)
		default:
			// Still reconciling; the stream will carry the outcome.
			response.RespondAccepted(c, st.Snapshot())
		}
		return
	}
}

func closedEarly(p cartstore.Pending) bool {
	select {
	case <-p.Done():
	default:
		return false
	}
	_, err := p.Wait(context.Background())
	return errors.Is(err, cartstore.ErrClosed)
}
