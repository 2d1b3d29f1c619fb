package config

import "time"

type Duration struct {
	Duration time.Duration
}

type HTTPConfig struct {
	Addr              string   `json:"addr"`
	ReadHeaderTimeout Duration `json:"read_header_timeout"`
	IdleTimeout       Duration `json:"idle_timeout"`
	ShutdownTimeout   Duration `json:"shutdown_timeout"`
	MaxRequestBytes   int64    `json:"max_request_bytes"`

	// StaticDir is the built storefront bundle. Empty disables SPA serving.
	StaticDir string `json:"static_dir,omitempty"`

	CORSAllowedOrigins []string `json:"cors_allowed_origins,omitempty"`
}

// RoutesConfig names the remote cart endpoints. Storefront themes may mount
// them under a locale prefix, so every path is overridable.
type RoutesConfig struct {
	Cart   string `json:"cart_url,omitempty"`
	Add    string `json:"cart_add_url,omitempty"`
	Change string `json:"cart_change_url,omitempty"`
	Clear  string `json:"cart_clear_url,omitempty"`
}

type CommerceConfig struct {
	// Type is "ajax_http" for a live backend or "mock" for the in-memory one.
	Type string `json:"type"`

	BaseURL string       `json:"base_url,omitempty"`
	Routes  RoutesConfig `json:"routes,omitempty"`

	// CookieName is the cookie carrying the remote cart token. Defaults to "cart".
	CookieName string `json:"cookie_name,omitempty"`

	Timeout  Duration `json:"timeout,omitempty"`
	Currency string   `json:"currency,omitempty"`
}

type CartConfig struct {
	// MutationTimeout bounds each remote call made while reconciling. On
	// expiry the store forces a refetch.
	MutationTimeout Duration `json:"mutation_timeout,omitempty"`
	QueueSize       int      `json:"queue_size,omitempty"`
}

type TokenStoreConfig struct {
	// Type is one of "memory", "redis", "postgres", "sqlite".
	Type     string   `json:"type"`
	DSN      string   `json:"dsn,omitempty"`
	TokenTTL Duration `json:"token_ttl,omitempty"`
}

type SessionConfig struct {
	Secret       string   `json:"secret,omitempty"`
	CookieName   string   `json:"cookie_name,omitempty"`
	CookieMaxAge Duration `json:"cookie_max_age,omitempty"`
	SecureCookie bool     `json:"secure_cookie,omitempty"`

	IdleTTL         Duration `json:"idle_ttl,omitempty"`
	JanitorInterval Duration `json:"janitor_interval,omitempty"`

	TokenStore TokenStoreConfig `json:"token_store"`
}

type RedisConfig struct {
	Addr     string `json:"addr,omitempty"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db,omitempty"`
}

type RealtimeConfig struct {
	// Bus is "local" or "redis".
	Bus               string   `json:"bus,omitempty"`
	Channel           string   `json:"channel,omitempty"`
	HeartbeatInterval Duration `json:"heartbeat_interval,omitempty"`
	ClientBuffer      int      `json:"client_buffer,omitempty"`
}

type CatalogConfig struct {
	// Path to a catalog YAML file. Empty uses the built-in catalog.
	Path string `json:"path,omitempty"`

	// FeaturedProduct is the product id embedded in the bootstrap payload.
	FeaturedProduct string `json:"featured_product,omitempty"`
}

type Config struct {
	Env      string         `json:"env"`
	HTTP     HTTPConfig     `json:"http"`
	Commerce CommerceConfig `json:"commerce"`
	Cart     CartConfig     `json:"cart"`
	Session  SessionConfig  `json:"session"`
	Redis    RedisConfig    `json:"redis"`
	Realtime RealtimeConfig `json:"realtime"`
	Catalog  CatalogConfig  `json:"catalog"`
}
