package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/storefront-backend/internal/platform/envutil"
)

const (
	CommerceAjaxHTTP = "ajax_http"
	CommerceMock     = "mock"

	TokenStoreMemory   = "memory"
	TokenStoreRedis    = "redis"
	TokenStorePostgres = "postgres"
	TokenStoreSQLite   = "sqlite"

	BusLocal = "local"
	BusRedis = "redis"
)

func (d *Duration) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" || s == "null" {
		d.Duration = 0
		return nil
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		u, err := strconv.Unquote(s)
		if err != nil {
			return err
		}
		if strings.TrimSpace(u) == "" {
			d.Duration = 0
			return nil
		}
		dd, err := time.ParseDuration(u)
		if err != nil {
			return err
		}
		d.Duration = dd
		return nil
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("duration must be a JSON string like \"5s\" or an int nanoseconds: %w", err)
	}
	d.Duration = time.Duration(n)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration.String())
}

func DefaultRoutes() RoutesConfig {
	return RoutesConfig{
		Cart:   "/cart.js",
		Add:    "/cart/add.js",
		Change: "/cart/change.js",
		Clear:  "/cart/clear.js",
	}
}

func defaultConfig() *Config {
	return &Config{
		Env: "development",
		HTTP: HTTPConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: Duration{Duration: 5 * time.Second},
			IdleTimeout:       Duration{Duration: 2 * time.Minute},
			ShutdownTimeout:   Duration{Duration: 15 * time.Second},
			MaxRequestBytes:   1 << 20,
		},
		Commerce: CommerceConfig{
			Type:       CommerceMock,
			Routes:     DefaultRoutes(),
			CookieName: "cart",
			Timeout:    Duration{Duration: 10 * time.Second},
			Currency:   "INR",
		},
		Cart: CartConfig{
			MutationTimeout: Duration{Duration: 8 * time.Second},
			QueueSize:       64,
		},
		Session: SessionConfig{
			CookieName:      "sf_session",
			CookieMaxAge:    Duration{Duration: 30 * 24 * time.Hour},
			IdleTTL:         Duration{Duration: 30 * time.Minute},
			JanitorInterval: Duration{Duration: time.Minute},
			TokenStore: TokenStoreConfig{
				Type:     TokenStoreMemory,
				TokenTTL: Duration{Duration: 14 * 24 * time.Hour},
			},
		},
		Realtime: RealtimeConfig{
			Bus:               BusLocal,
			Channel:           "storefront:cart",
			HeartbeatInterval: Duration{Duration: 25 * time.Second},
			ClientBuffer:      16,
		},
		Catalog: CatalogConfig{
			FeaturedProduct: "ashwagandha-gummies-ksm66",
		},
	}
}

// Load reads STOREFRONT_CONFIG_PATH (or ./config/config.json when present)
// over the defaults, then applies env overrides and validates.
func Load() (*Config, error) {
	cfg := defaultConfig()

	cfgPath := strings.TrimSpace(os.Getenv("STOREFRONT_CONFIG_PATH"))
	if cfgPath == "" {
		if wd, err := os.Getwd(); err == nil {
			p := filepath.Join(wd, "config", "config.json")
			if _, err := os.Stat(p); err == nil {
				cfgPath = p
			}
		}
	}

	if cfgPath != "" {
		b, err := os.ReadFile(cfgPath)
		if err != nil {
			return nil, err
		}
		// Decoded over the defaults so a partial file only overrides what it names.
		if err := json.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", cfgPath, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Env = envutil.String("LOG_MODE", cfg.Env)
	cfg.HTTP.Addr = envutil.String("STOREFRONT_HTTP_ADDR", cfg.HTTP.Addr)
	cfg.HTTP.StaticDir = envutil.String("STOREFRONT_STATIC_DIR", cfg.HTTP.StaticDir)
	if v := envutil.String("CORS_ALLOWED_ORIGINS", ""); v != "" {
		cfg.HTTP.CORSAllowedOrigins = splitCSV(v)
	}

	cfg.Commerce.Type = envutil.String("COMMERCE_TYPE", cfg.Commerce.Type)
	if v := envutil.String("COMMERCE_BASE_URL", ""); v != "" {
		cfg.Commerce.BaseURL = v
		// A base URL without an explicit type means a live backend.
		if os.Getenv("COMMERCE_TYPE") == "" {
			cfg.Commerce.Type = CommerceAjaxHTTP
		}
	}
	cfg.Commerce.Timeout.Duration = envutil.Duration("COMMERCE_TIMEOUT", cfg.Commerce.Timeout.Duration)

	cfg.Cart.MutationTimeout.Duration = envutil.Duration("CART_MUTATION_TIMEOUT", cfg.Cart.MutationTimeout.Duration)

	cfg.Session.Secret = envutil.String("SESSION_SECRET", cfg.Session.Secret)
	cfg.Session.SecureCookie = envutil.Bool("SESSION_SECURE_COOKIE", cfg.Session.SecureCookie)
	cfg.Session.IdleTTL.Duration = envutil.Duration("SESSION_IDLE_TTL", cfg.Session.IdleTTL.Duration)
	cfg.Session.TokenStore.Type = envutil.String("TOKEN_STORE", cfg.Session.TokenStore.Type)
	cfg.Session.TokenStore.DSN = envutil.String("TOKEN_STORE_DSN", cfg.Session.TokenStore.DSN)

	cfg.Redis.Addr = envutil.String("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = envutil.String("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = envutil.Int("REDIS_DB", cfg.Redis.DB)

	cfg.Realtime.Bus = envutil.String("REALTIME_BUS", cfg.Realtime.Bus)
	cfg.Catalog.Path = envutil.String("CATALOG_PATH", cfg.Catalog.Path)
}

func (cfg *Config) normalize() error {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "development"
	}
	if strings.TrimSpace(cfg.HTTP.Addr) == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.HTTP.MaxRequestBytes <= 0 {
		cfg.HTTP.MaxRequestBytes = 1 << 20
	}
	if cfg.HTTP.ShutdownTimeout.Duration <= 0 {
		cfg.HTTP.ShutdownTimeout = Duration{Duration: 15 * time.Second}
	}

	c := &cfg.Commerce
	c.Type = strings.ToLower(strings.TrimSpace(c.Type))
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	def := DefaultRoutes()
	c.Routes.Cart = orDefault(c.Routes.Cart, def.Cart)
	c.Routes.Add = orDefault(c.Routes.Add, def.Add)
	c.Routes.Change = orDefault(c.Routes.Change, def.Change)
	c.Routes.Clear = orDefault(c.Routes.Clear, def.Clear)
	c.CookieName = orDefault(c.CookieName, "cart")
	if c.Timeout.Duration <= 0 {
		c.Timeout = Duration{Duration: 10 * time.Second}
	}
	switch c.Type {
	case "", CommerceMock:
		c.Type = CommerceMock
	case CommerceAjaxHTTP, "shopify_ajax":
		c.Type = CommerceAjaxHTTP
		if c.BaseURL == "" {
			return errors.New("commerce.base_url is required for ajax_http")
		}
	default:
		return fmt.Errorf("invalid commerce.type=%q", c.Type)
	}

	if cfg.Cart.MutationTimeout.Duration <= 0 {
		cfg.Cart.MutationTimeout = Duration{Duration: 8 * time.Second}
	}
	if cfg.Cart.QueueSize <= 0 {
		cfg.Cart.QueueSize = 64
	}

	s := &cfg.Session
	s.CookieName = orDefault(s.CookieName, "sf_session")
	if s.IdleTTL.Duration <= 0 {
		s.IdleTTL = Duration{Duration: 30 * time.Minute}
	}
	if s.JanitorInterval.Duration <= 0 {
		s.JanitorInterval = Duration{Duration: time.Minute}
	}
	if strings.TrimSpace(s.Secret) == "" {
		if isProduction(cfg.Env) {
			return errors.New("session.secret is required in production")
		}
		s.Secret = "dev-insecure-session-secret"
	}
	s.TokenStore.Type = strings.ToLower(strings.TrimSpace(s.TokenStore.Type))
	switch s.TokenStore.Type {
	case "", TokenStoreMemory:
		s.TokenStore.Type = TokenStoreMemory
	case TokenStoreRedis:
		if strings.TrimSpace(cfg.Redis.Addr) == "" {
			return errors.New("redis.addr is required for the redis token store")
		}
	case TokenStorePostgres, TokenStoreSQLite:
		if strings.TrimSpace(s.TokenStore.DSN) == "" {
			return fmt.Errorf("session.token_store.dsn is required for %s", s.TokenStore.Type)
		}
	default:
		return fmt.Errorf("invalid session.token_store.type=%q", s.TokenStore.Type)
	}

	r := &cfg.Realtime
	r.Bus = strings.ToLower(strings.TrimSpace(r.Bus))
	switch r.Bus {
	case "", BusLocal:
		r.Bus = BusLocal
	case BusRedis:
		if strings.TrimSpace(cfg.Redis.Addr) == "" {
			return errors.New("redis.addr is required for the redis bus")
		}
	default:
		return fmt.Errorf("invalid realtime.bus=%q", r.Bus)
	}
	r.Channel = orDefault(r.Channel, "storefront:cart")
	if r.HeartbeatInterval.Duration <= 0 {
		r.HeartbeatInterval = Duration{Duration: 25 * time.Second}
	}
	if r.ClientBuffer <= 0 {
		r.ClientBuffer = 16
	}
	return nil
}

func isProduction(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "prod", "production":
		return true
	default:
		return false
	}
}

func orDefault(v, def string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return def
	}
	return v
}

func splitCSV(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
