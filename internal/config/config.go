package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server       ServerConfig
	App          AppConfig
	Store        StoreConfig
	Cache        CacheConfig
	Orchestrator OrchestratorConfig
	Inventory    InventoryConfig
	Login        LoginConfig
	Platform     PlatformConfig
	Realtime     RealtimeConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"3000"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string   `envconfig:"APP_NAME" default:"botfleet"`
	Environment string   `envconfig:"APP_ENV" default:"development"`
	LogLevel    string   `envconfig:"LOG_LEVEL" default:"info"`
	Version     string   `envconfig:"APP_VERSION" default:"1.0.0"`
	APIKeys     []string `envconfig:"API_KEYS"` // empty disables API key checks
}

// StoreConfig holds persistent store settings.
type StoreConfig struct {
	Type string `envconfig:"STORE_TYPE" default:"sqlite"` // sqlite, mysql or postgres
	Path string `envconfig:"STORE_PATH" default:"./data/botfleet.db"`

	Host     string `envconfig:"STORE_HOST" default:"localhost"`
	Port     int    `envconfig:"STORE_PORT" default:"0"` // 0 picks the driver default
	Name     string `envconfig:"STORE_NAME" default:"botfleet"`
	User     string `envconfig:"STORE_USER" default:"botfleet"`
	Password string `envconfig:"STORE_PASS" default:""`
	SSLMode  string `envconfig:"STORE_SSLMODE" default:"disable"`
}

// CacheConfig holds the shared cache and event relay settings.
type CacheConfig struct {
	Type string `envconfig:"CACHE_TYPE" default:"memory"` // memory or redis

	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	// EventChannel is the Redis pub/sub channel events are relayed to. Empty disables the relay.
	EventChannel string `envconfig:"REDIS_EVENT_CHANNEL" default:"botfleet:events"`
}

// OrchestratorConfig holds the account lifecycle policy.
type OrchestratorConfig struct {
	AuthTimeout          time.Duration `envconfig:"ORCH_AUTH_TIMEOUT" default:"30s"`
	MaxAttempts          int           `envconfig:"ORCH_MAX_ATTEMPTS" default:"3"`
	RateLimitCooldown    time.Duration `envconfig:"ORCH_RATE_LIMIT_COOLDOWN" default:"60s"`
	BackoffStep          time.Duration `envconfig:"ORCH_BACKOFF_STEP" default:"5s"`
	CredentialRetryDelay time.Duration `envconfig:"ORCH_CREDENTIAL_RETRY_DELAY" default:"3s"`
	SettleDelay          time.Duration `envconfig:"ORCH_SETTLE_DELAY" default:"3s"`
	NewItemsDelay        time.Duration `envconfig:"ORCH_NEW_ITEMS_DELAY" default:"3s"`
	ReconnectPolicy      string        `envconfig:"ORCH_RECONNECT_POLICY" default:"platform"` // platform or reauthenticate
	SessionTTL           time.Duration `envconfig:"ORCH_SESSION_TTL" default:"720h"`
	StopTimeout          time.Duration `envconfig:"ORCH_STOP_TIMEOUT" default:"5s"`
}

// InventoryConfig holds inventory namespace and cache settings.
type InventoryConfig struct {
	AppID              int64         `envconfig:"INVENTORY_APP_ID" default:"730"`
	ContextID          int64         `envconfig:"INVENTORY_CONTEXT_ID" default:"2"`
	ProtectedContextID int64         `envconfig:"INVENTORY_PROTECTED_CONTEXT_ID" default:"16"` // 0 disables
	TTL                time.Duration `envconfig:"INVENTORY_CACHE_TTL" default:"5m"`
	Retention          time.Duration `envconfig:"INVENTORY_CACHE_RETENTION" default:"24h"`
	CleanupInterval    time.Duration `envconfig:"INVENTORY_CLEANUP_INTERVAL" default:"1h"`
	ImageBaseURL       string        `envconfig:"INVENTORY_IMAGE_BASE_URL" default:"https://community.cloudflare.steamstatic.com/economy/image/"`
	FetchTimeout       time.Duration `envconfig:"INVENTORY_FETCH_TIMEOUT" default:"30s"`
}

// LoginConfig holds start-up scheduling defaults. Settings in the store win.
type LoginConfig struct {
	Mode      string        `envconfig:"LOGIN_MODE" default:"sequential-with-delay"` // or all-at-once
	Delay     time.Duration `envconfig:"LOGIN_DELAY" default:"5s"`
	AutoStart bool          `envconfig:"LOGIN_AUTOSTART" default:"true"`
}

// PlatformConfig selects the platform client.
type PlatformConfig struct {
	Type           string        `envconfig:"PLATFORM_TYPE" default:"gateway"` // gateway or fake
	GatewayURL     string        `envconfig:"PLATFORM_GATEWAY_URL" default:"http://localhost:7300"`
	GatewayToken   string        `envconfig:"PLATFORM_GATEWAY_TOKEN" default:""`
	RequestTimeout time.Duration `envconfig:"PLATFORM_REQUEST_TIMEOUT" default:"30s"`
}

// RealtimeConfig holds WebSocket fan-out settings.
type RealtimeConfig struct {
	HeartbeatInterval time.Duration `envconfig:"WS_HEARTBEAT_INTERVAL" default:"30s"`
	ClientBuffer      int           `envconfig:"WS_CLIENT_BUFFER" default:"256"`
	BusBuffer         int           `envconfig:"EVENT_BUS_BUFFER" default:"1024"`
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DSN returns the driver name and data source name for the configured store.
func (s *StoreConfig) DSN() (driver, dsn string) {
	switch s.Type {
	case "mysql":
		port := s.Port
		if port == 0 {
			port = 3306
		}
		return "mysql", fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&multiStatements=true",
			s.User, s.Password, s.Host, port, s.Name)
	case "postgres", "postgresql":
		port := s.Port
		if port == 0 {
			port = 5432
		}
		return "postgres", fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
			s.User, s.Password, s.Host, port, s.Name, s.SSLMode)
	default:
		return "sqlite", s.Path
	}
}

// RedisAddress returns the Redis address in host:port format.
func (c *CacheConfig) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// IsDevelopment returns true if running in development mode.
func (a *AppConfig) IsDevelopment() bool {
	return a.Environment == "development"
}

// Validate rejects option combinations the service cannot run with.
func (c *Config) Validate() error {
	switch c.Store.Type {
	case "sqlite", "mysql", "postgres", "postgresql":
	default:
		return fmt.Errorf("unsupported STORE_TYPE %q", c.Store.Type)
	}
	switch c.Cache.Type {
	case "memory", "redis":
	default:
		return fmt.Errorf("unsupported CACHE_TYPE %q", c.Cache.Type)
	}
	switch c.Orchestrator.ReconnectPolicy {
	case "platform", "reauthenticate":
	default:
		return fmt.Errorf("unsupported ORCH_RECONNECT_POLICY %q", c.Orchestrator.ReconnectPolicy)
	}
	switch c.Login.Mode {
	case "sequential-with-delay", "all-at-once":
	default:
		return fmt.Errorf("unsupported LOGIN_MODE %q", c.Login.Mode)
	}
	switch c.Platform.Type {
	case "gateway", "fake":
	default:
		return fmt.Errorf("unsupported PLATFORM_TYPE %q", c.Platform.Type)
	}
	if c.Orchestrator.MaxAttempts < 1 {
		return fmt.Errorf("ORCH_MAX_ATTEMPTS must be at least 1")
	}
	if c.Inventory.TTL <= 0 {
		return fmt.Errorf("INVENTORY_CACHE_TTL must be positive")
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
