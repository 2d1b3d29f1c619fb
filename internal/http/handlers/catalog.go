package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/storefront-backend/internal/catalog"
	"github.com/yungbote/storefront-backend/internal/http/response"
)

type Catalog interface {
	Currency() string
	Products() []catalog.Product
	Product(id string) (catalog.Product, error)
}

type CatalogHandler struct {
	catalog Catalog
}

func NewCatalogHandler(c Catalog) *CatalogHandler {
	return &CatalogHandler{catalog: c}
}

// GET /api/products
func (h *CatalogHandler) ListProducts(c *gin.Context) {
	response.RespondOK(c, gin.H{
		"currency": h.catalog.Currency(),
		"products": h.catalog.Products(),
	})
}

// GET /api/products/:id accepts an id or a handle.
func (h *CatalogHandler) GetProduct(c *gin.Context) {
	p, err := h.catalog.Product(c.Param("id"))
	if errors.Is(err, catalog.ErrUnknownProduct) {
		response.RespondError(c, http.StatusNotFound, "product_not_found", err)
		return
	}
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, p)
}
