package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/storefront-backend/internal/http/handlers"
	httpMW "github.com/yungbote/storefront-backend/internal/http/middleware"
	"github.com/yungbote/storefront-backend/internal/observability"
	"github.com/yungbote/storefront-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log             *logger.Logger
	ServiceName     string
	AllowedOrigins  []string
	MaxRequestBytes int64
	Metrics         *observability.Metrics

	SessionMiddleware *httpMW.SessionMiddleware

	HealthHandler    *httpH.HealthHandler
	CatalogHandler   *httpH.CatalogHandler
	CartHandler      *httpH.CartHandler
	BootstrapHandler *httpH.BootstrapHandler
	StreamHandler    *httpH.StreamHandler
	SPAHandler       *httpH.SPAHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "storefront"
	}
	r := gin.New()
	r.Use(httpMW.Recover(cfg.Log))
	r.Use(otelgin.Middleware(cfg.ServiceName))
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.AllowedOrigins))
	r.Use(httpMW.BodyLimit(cfg.MaxRequestBytes))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthz", cfg.HealthHandler.Healthz)
		r.GET("/readyz", cfg.HealthHandler.Readyz)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics))
	}

	api := r.Group("/api")
	{
		// Catalog (no session needed)
		if cfg.CatalogHandler != nil {
			api.GET("/products", cfg.CatalogHandler.ListProducts)
			api.GET("/products/:id", cfg.CatalogHandler.GetProduct)
		}
	}

	shopper := api.Group("/")
	{
		if cfg.SessionMiddleware != nil {
			shopper.Use(cfg.SessionMiddleware.Attach())
		}

		if cfg.BootstrapHandler != nil {
			shopper.GET("/bootstrap", cfg.BootstrapHandler.Bootstrap)
		}

		// Cart
		if cfg.CartHandler != nil {
			shopper.GET("/cart", cfg.CartHandler.GetCart)
			shopper.DELETE("/cart", cfg.CartHandler.Clear)
			shopper.POST("/cart/items", cfg.CartHandler.AddItem)
			shopper.PATCH("/cart/items/:key", cfg.CartHandler.UpdateItem)
			shopper.DELETE("/cart/items/:key", cfg.CartHandler.RemoveItem)
			shopper.POST("/cart/refresh", cfg.CartHandler.Refresh)
			shopper.POST("/cart/open", cfg.CartHandler.Open)
			shopper.POST("/cart/close", cfg.CartHandler.Close)
			shopper.POST("/cart/toggle", cfg.CartHandler.Toggle)
			shopper.DELETE("/cart/notice", cfg.CartHandler.DismissNotice)
		}

		// Realtime (SSE)
		if cfg.StreamHandler != nil {
			shopper.GET("/cart/stream", cfg.StreamHandler.Stream)
		}
	}

	if cfg.SPAHandler != nil {
		r.NoRoute(cfg.SPAHandler.Serve)
	}

	return r
}
