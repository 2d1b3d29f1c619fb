package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/storefront-backend/internal/catalog"
	"github.com/yungbote/storefront-backend/internal/config"
	httpx "github.com/yungbote/storefront-backend/internal/http"
	"github.com/yungbote/storefront-backend/internal/observability"
	"github.com/yungbote/storefront-backend/internal/platform/logger"
	"github.com/yungbote/storefront-backend/internal/platform/shutdown"
	"github.com/yungbote/storefront-backend/internal/realtime"
	"github.com/yungbote/storefront-backend/internal/session"
)

const serviceName = "storefront"

type App struct {
	Log      *logger.Logger
	Cfg      *config.Config
	Catalog  *catalog.Catalog
	Clients  Clients
	Hub      *realtime.Hub
	Registry *session.Registry
	Metrics  *observability.Metrics
	Server   *httpx.Server

	otelShutdown func(context.Context) error
	closeOnce    sync.Once
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: serviceName,
		Environment: cfg.Env,
	})

	cat, err := loadCatalog(cfg.Catalog)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	clients, err := wireClients(ctx, log, cfg, cat)
	if err != nil {
		log.Sync()
		return nil, err
	}

	var metrics *observability.Metrics
	if observability.Enabled() {
		metrics = observability.NewMetrics()
	}

	hub := realtime.NewHub(log, realtime.HubOptions{
		ClientBuffer:      cfg.Realtime.ClientBuffer,
		HeartbeatInterval: cfg.Realtime.HeartbeatInterval.Duration,
	})

	regOpts := session.RegistryOptions{
		Client:          clients.Commerce,
		Catalog:         cat,
		Tokens:          clients.Tokens,
		Bus:             clients.Bus,
		Logger:          log,
		IdleTTL:         cfg.Session.IdleTTL.Duration,
		JanitorInterval: cfg.Session.JanitorInterval.Duration,
		MutationTimeout: cfg.Cart.MutationTimeout.Duration,
		QueueSize:       cfg.Cart.QueueSize,
	}
	if metrics != nil {
		regOpts.Observer = metrics
	}
	reg, err := session.NewRegistry(regOpts)
	if err != nil {
		clients.Close()
		log.Sync()
		return nil, fmt.Errorf("init session registry: %w", err)
	}
	metrics.TrackGauge("storefront_cart_sessions", "Live cart stores.", func() float64 { return float64(reg.Len()) })

	server, err := wireServer(log, cfg, cat, clients, reg, hub, metrics)
	if err != nil {
		reg.Close()
		clients.Close()
		log.Sync()
		return nil, err
	}

	return &App{
		Log:          log,
		Cfg:          cfg,
		Catalog:      cat,
		Clients:      clients,
		Hub:          hub,
		Registry:     reg,
		Metrics:      metrics,
		Server:       server,
		otelShutdown: otelShutdown,
	}, nil
}

func loadCatalog(cfg config.CatalogConfig) (*catalog.Catalog, error) {
	if cfg.Path == "" {
		return catalog.Default()
	}
	return catalog.Open(cfg.Path)
}

// Run serves HTTP, forwards bus messages to open streams and sweeps idle
// carts until ctx ends or one of them fails. It then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.Close()

	g, gctx := errgroup.WithContext(ctx)

	if a.Clients.Bus != nil {
		if err := a.Clients.Bus.StartForwarder(gctx, a.Hub.Broadcast); err != nil {
			return fmt.Errorf("start bus forwarder: %w", err)
		}
	}
	g.Go(func() error {
		return a.Registry.Run(gctx)
	})
	g.Go(func() error {
		a.Log.Info("HTTP server listening", "addr", a.Server.Addr())
		return a.Server.Run()
	})
	g.Go(func() error {
		<-gctx.Done()
		a.Log.Info("Shutting down HTTP server...")
		sctx, cancel := shutdown.Deadline(gctx, a.Cfg.HTTP.ShutdownTimeout.Duration)
		defer cancel()
		if err := a.Server.Shutdown(sctx, a.Cfg.HTTP.ShutdownTimeout.Duration); err != nil {
			a.Log.Warn("HTTP shutdown incomplete", "error", err)
		}
		return nil
	})

	err := g.Wait()
	if err != nil {
		a.Log.Error("storefront stopped with error", "error", err)
	}
	return err
}

// Close releases everything New acquired. Carts still reconciling are
// cancelled; their remote carts keep whatever the backend applied.
func (a *App) Close() {
	if a == nil {
		return
	}
	a.closeOnce.Do(func() {
		if a.Registry != nil {
			a.Registry.Close()
		}
		a.Clients.Close()
		if a.otelShutdown != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := a.otelShutdown(ctx); err != nil {
				a.Log.Warn("otel shutdown failed", "error", err)
			}
			cancel()
		}
		a.Log.Sync()
	})
}
