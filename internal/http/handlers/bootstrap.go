package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/storefront-backend/internal/catalog"
	"github.com/yungbote/storefront-backend/internal/http/response"
)

// Routes are the storefront API paths a page script talks to.
type Routes struct {
	Root          string `json:"root"`
	CartURL       string `json:"cart_url"`
	CartAddURL    string `json:"cart_add_url"`
	CartChangeURL string `json:"cart_change_url"`
	CartUpdateURL string `json:"cart_update_url"`
	CartStreamURL string `json:"cart_stream_url"`
}

func DefaultRoutes() Routes {
	return Routes{
		Root:          "/",
		CartURL:       "/api/cart",
		CartAddURL:    "/api/cart/items",
		CartChangeURL: "/api/cart/items/{key}",
		CartUpdateURL: "/api/cart/items/{key}",
		CartStreamURL: "/api/cart/stream",
	}
}

type BootstrapHandler struct {
	cart     *CartHandler
	catalog  Catalog
	featured string
	routes   Routes
}

func NewBootstrapHandler(cart *CartHandler, c Catalog, featured string) *BootstrapHandler {
	return &BootstrapHandler{cart: cart, catalog: c, featured: featured, routes: DefaultRoutes()}
}

// GET /api/bootstrap returns what a page needs to render before any cart
// call: the featured product, every product by id, the session's cart and
// the API routes.
func (h *BootstrapHandler) Bootstrap(c *gin.Context) {
	st, err := h.cart.store(c)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}

	products := h.catalog.Products()
	all := make(map[string]catalog.Product, len(products))
	for _, p := range products {
		all[p.ID] = p
	}
	var featured any
	if p, err := h.catalog.Product(h.featured); err == nil {
		featured = p
	} else if len(products) > 0 {
		featured = products[0]
	}

	response.RespondOK(c, gin.H{
		"product":      featured,
		"all_products": all,
		"currency":     h.catalog.Currency(),
		"cart":         st.Snapshot(),
		"routes":       h.routes,
	})
}
