package app

import (
	"context"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/storefront-backend/internal/catalog"
	"github.com/yungbote/storefront-backend/internal/commerce"
	"github.com/yungbote/storefront-backend/internal/commerce/ajaxhttp"
	"github.com/yungbote/storefront-backend/internal/commerce/mock"
	"github.com/yungbote/storefront-backend/internal/config"
	"github.com/yungbote/storefront-backend/internal/platform/dbx"
	"github.com/yungbote/storefront-backend/internal/platform/logger"
	"github.com/yungbote/storefront-backend/internal/platform/redisx"
	"github.com/yungbote/storefront-backend/internal/realtime/bus"
	"github.com/yungbote/storefront-backend/internal/session"
)

type Clients struct {
	Commerce commerce.Client
	Tokens   session.TokenStore
	Bus      bus.Bus
	Redis    *goredis.Client
	DB       *gorm.DB
}

func wireClients(ctx context.Context, log *logger.Logger, cfg *config.Config, cat *catalog.Catalog) (Clients, error) {
	log.Info("Wiring clients...")
	var c Clients

	// Commerce backend
	switch cfg.Commerce.Type {
	case config.CommerceMock:
		log.Warn("using in-memory commerce backend; carts are lost on restart")
		c.Commerce = mock.New(cat.PriceBook(), cat.Currency())
	case config.CommerceAjaxHTTP:
		client, err := ajaxhttp.New(cfg.Commerce)
		if err != nil {
			return Clients{}, fmt.Errorf("init commerce client: %w", err)
		}
		c.Commerce = client
	default:
		return Clients{}, fmt.Errorf("unsupported commerce type %q", cfg.Commerce.Type)
	}

	// Redis, shared by the token store and the bus
	if needsRedis(cfg) {
		rdb, err := redisx.NewClient(ctx, cfg.Redis)
		if err != nil {
			return Clients{}, fmt.Errorf("init redis: %w", err)
		}
		c.Redis = rdb
	}

	// Token store
	ts := cfg.Session.TokenStore
	switch ts.Type {
	case config.TokenStoreMemory, "":
		c.Tokens = session.NewMemoryStore(ts.TokenTTL.Duration)
	case config.TokenStoreRedis:
		c.Tokens = session.NewRedisStore(c.Redis, ts.TokenTTL.Duration)
	case config.TokenStorePostgres, config.TokenStoreSQLite:
		db, err := dbx.Open(ts.Type, ts.DSN, log)
		if err != nil {
			c.Close()
			return Clients{}, fmt.Errorf("init token store: %w", err)
		}
		c.DB = db
		store, err := session.NewSQLStore(db, ts.TokenTTL.Duration)
		if err != nil {
			c.Close()
			return Clients{}, fmt.Errorf("migrate token store: %w", err)
		}
		c.Tokens = store
	default:
		c.Close()
		return Clients{}, fmt.Errorf("unsupported token store %q", ts.Type)
	}

	// Realtime bus
	switch strings.ToLower(cfg.Realtime.Bus) {
	case config.BusRedis:
		b, err := bus.NewRedisBus(log, c.Redis, cfg.Realtime.Channel, false)
		if err != nil {
			c.Close()
			return Clients{}, fmt.Errorf("init redis bus: %w", err)
		}
		c.Bus = b
	default:
		c.Bus = bus.NewLocalBus()
	}

	return c, nil
}

func needsRedis(cfg *config.Config) bool {
	return cfg.Session.TokenStore.Type == config.TokenStoreRedis ||
		strings.EqualFold(cfg.Realtime.Bus, config.BusRedis)
}

// Close is safe on a partially wired set.
func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Bus != nil {
		_ = c.Bus.Close()
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	if c.DB != nil {
		_ = dbx.Close(c.DB)
	}
}
