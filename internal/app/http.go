package app

import (
	"context"
	"fmt"

	"github.com/yungbote/storefront-backend/internal/catalog"
	"github.com/yungbote/storefront-backend/internal/config"
	httpx "github.com/yungbote/storefront-backend/internal/http"
	httpH "github.com/yungbote/storefront-backend/internal/http/handlers"
	httpMW "github.com/yungbote/storefront-backend/internal/http/middleware"
	"github.com/yungbote/storefront-backend/internal/observability"
	"github.com/yungbote/storefront-backend/internal/platform/dbx"
	"github.com/yungbote/storefront-backend/internal/platform/logger"
	"github.com/yungbote/storefront-backend/internal/realtime"
	"github.com/yungbote/storefront-backend/internal/session"
)

func wireServer(
	log *logger.Logger,
	cfg *config.Config,
	cat *catalog.Catalog,
	clients Clients,
	reg *session.Registry,
	hub *realtime.Hub,
	metrics *observability.Metrics,
) (*httpx.Server, error) {
	log.Info("Wiring HTTP server...")

	signer, err := session.NewSigner(cfg.Session.Secret, cfg.Session.CookieMaxAge.Duration)
	if err != nil {
		return nil, fmt.Errorf("init session signer: %w", err)
	}
	sessionMW := httpMW.NewSessionMiddleware(log, signer, httpMW.SessionOptions{
		CookieName: cfg.Session.CookieName,
		MaxAge:     cfg.Session.CookieMaxAge.Duration,
		Secure:     cfg.Session.SecureCookie,
		NewID:      session.NewID,
	})

	cartH := httpH.NewCartHandler(log, reg, cfg.Cart.MutationTimeout.Duration*2)

	var spa *httpH.SPAHandler
	if cfg.HTTP.StaticDir != "" {
		spa = httpH.NewSPAHandler(cfg.HTTP.StaticDir)
	}

	return httpx.NewServer(cfg.HTTP, httpx.RouterConfig{
		Log:               log,
		ServiceName:       serviceName,
		Metrics:           metrics,
		SessionMiddleware: sessionMW,
		HealthHandler:     httpH.NewHealthHandler(readinessChecks(clients)...),
		CatalogHandler:    httpH.NewCatalogHandler(cat),
		CartHandler:       cartH,
		BootstrapHandler:  httpH.NewBootstrapHandler(cartH, cat, cfg.Catalog.FeaturedProduct),
		StreamHandler:     httpH.NewStreamHandler(log, cartH, hub),
		SPAHandler:        spa,
	}), nil
}

// readinessChecks covers the stores a request depends on. The commerce
// backend is left out: its failures reach shoppers as cart notices.
func readinessChecks(c Clients) []httpH.ReadinessCheck {
	var checks []httpH.ReadinessCheck
	if c.Redis != nil {
		rdb := c.Redis
		checks = append(checks, httpH.ReadinessCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
	}
	if c.DB != nil {
		db := c.DB
		checks = append(checks, httpH.ReadinessCheck{
			Name:  "database",
			Check: func(ctx context.Context) error { return dbx.Ping(ctx, db) },
		})
	}
	return checks
}
