package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable (GRADEKEEPER_DATABASE_URL, ...).
const EnvPrefix = "GRADEKEEPER"

// Access cache backends.
const (
	AccessBackendLRU    = "lru"
	AccessBackendRedis  = "redis"
	AccessBackendCookie = "cookie"
)

// Config holds the application configuration
type Config struct {
	// Database connection string (DSN). postgres:// selects PostgreSQL, anything else SQLite.
	DatabaseURL string

	// Server bind address (host:port)
	ServerAddr string

	// Maximum database connection pool size
	MaxDBConnections int

	// Enable debug logging
	Debug bool

	LogLevel  string
	LogFormat string

	// Page size used when scanning rows in batch operations (CompleteAll)
	PageSize int

	Access   AccessConfig
	Identity IdentityConfig
}

// AccessConfig configures the teacher→grades access cache.
type AccessConfig struct {
	// Backend is one of lru, redis, cookie.
	Backend string

	// TTL after which a cached entry is rebuilt from the store.
	TTL time.Duration

	// LRUSize bounds the number of users held by the in-process backend.
	LRUSize int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	// CookieName and CookieSecret configure the client-held signed token backend.
	CookieName   string
	CookieSecret string
}

// IdentityConfig names the claims carried by the upstream-verified bearer token.
type IdentityConfig struct {
	UserIDClaim string
	RoleClaim   string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database_url", "file:gradekeeper.db")
	v.SetDefault("server_addr", "localhost:8080")
	v.SetDefault("max_db_connections", 25)
	v.SetDefault("debug", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("page_size", 100)

	v.SetDefault("access.backend", AccessBackendLRU)
	v.SetDefault("access.ttl", 24*time.Hour)
	v.SetDefault("access.lru_size", 10000)
	v.SetDefault("access.redis_addr", "localhost:6379")
	v.SetDefault("access.redis_password", "")
	v.SetDefault("access.redis_db", 0)
	v.SetDefault("access.redis_prefix", "gradekeeper:access:")
	v.SetDefault("access.cookie_name", "grade_access")
	v.SetDefault("access.cookie_secret", "")

	v.SetDefault("identity.user_id_claim", "sub")
	v.SetDefault("identity.role_claim", "role")
}

// Load reads configuration from the global viper instance: defaults, then an
// optional config file already read by the caller, then GRADEKEEPER_* env vars.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads configuration from v.
func LoadFrom(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		DatabaseURL:      v.GetString("database_url"),
		ServerAddr:       v.GetString("server_addr"),
		MaxDBConnections: v.GetInt("max_db_connections"),
		Debug:            v.GetBool("debug"),
		LogLevel:         v.GetString("log_level"),
		LogFormat:        v.GetString("log_format"),
		PageSize:         v.GetInt("page_size"),
		Access: AccessConfig{
			Backend:       strings.ToLower(v.GetString("access.backend")),
			TTL:           v.GetDuration("access.ttl"),
			LRUSize:       v.GetInt("access.lru_size"),
			RedisAddr:     v.GetString("access.redis_addr"),
			RedisPassword: v.GetString("access.redis_password"),
			RedisDB:       v.GetInt("access.redis_db"),
			RedisPrefix:   v.GetString("access.redis_prefix"),
			CookieName:    v.GetString("access.cookie_name"),
			CookieSecret:  v.GetString("access.cookie_secret"),
		},
		Identity: IdentityConfig{
			UserIDClaim: v.GetString("identity.user_id_claim"),
			RoleClaim:   v.GetString("identity.role_claim"),
		},
	}

	if cfg.Debug {
		cfg.LogLevel = "debug"
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("database_url is required")
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("page_size must be positive, got %d", c.PageSize)
	}
	if c.Access.TTL <= 0 {
		return fmt.Errorf("access.ttl must be positive, got %s", c.Access.TTL)
	}

	switch c.Access.Backend {
	case AccessBackendLRU:
		if c.Access.LRUSize <= 0 {
			return fmt.Errorf("access.lru_size must be positive, got %d", c.Access.LRUSize)
		}
	case AccessBackendRedis:
		if c.Access.RedisAddr == "" {
			return fmt.Errorf("access.redis_addr is required for the redis backend")
		}
	case AccessBackendCookie:
		if len(c.Access.CookieSecret) < 32 {
			return fmt.Errorf("access.cookie_secret must be at least 32 bytes for the cookie backend")
		}
	default:
		return fmt.Errorf("unsupported access.backend %q (want lru, redis or cookie)", c.Access.Backend)
	}

	if c.Identity.UserIDClaim == "" || c.Identity.RoleClaim == "" {
		return fmt.Errorf("identity.user_id_claim and identity.role_claim are required")
	}
	return nil
}
