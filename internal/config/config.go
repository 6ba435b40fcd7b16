package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Catalog   CatalogConfig
	Auth      AuthConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
}

type ServerConfig struct {
	Port            string
	Env             string
	LogLevel        string
	ShutdownTimeout time.Duration
}

type StorageConfig struct {
	Driver      string // bolt, redis or memory
	Path        string
	Bucket      string
	Key         string
	SessionKey  string
	RedisPrefix string
}

type CatalogConfig struct {
	URL     string
	Limit   int
	Timeout time.Duration
}

type AuthConfig struct {
	URL     string
	APIKey  string
	SiteURL string
	Timeout time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

// IsDevelopment reports whether the server runs in development mode
func (c *Config) IsDevelopment() bool {
	return c.Server.Env != "production"
}

// RedisAddr returns host:port, or "" when Redis is not configured
func (c *Config) RedisAddr() string {
	if c.Redis.Host == "" {
		return ""
	}
	return c.Redis.Host + ":" + c.Redis.Port
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("SERVER_ENV", "development")
	v.SetDefault("LOG_LEVEL", "")
	v.SetDefault("SHUTDOWN_TIMEOUT", "30s")

	v.SetDefault("STORAGE_DRIVER", "bolt")
	v.SetDefault("STORAGE_PATH", "shelfdesk.db")
	v.SetDefault("STORAGE_BUCKET", "shelfdesk")
	v.SetDefault("STORAGE_KEY", "productstore-products")
	v.SetDefault("STORAGE_SESSION_KEY", "auth-session")
	v.SetDefault("STORAGE_REDIS_PREFIX", "shelfdesk:")

	v.SetDefault("CATALOG_API_URL", "https://dummyjson.com/products")
	v.SetDefault("CATALOG_LIMIT", 0)
	v.SetDefault("CATALOG_TIMEOUT", "15s")

	v.SetDefault("AUTH_URL", "")
	v.SetDefault("AUTH_API_KEY", "")
	v.SetDefault("AUTH_SITE_URL", "http://localhost:5173")
	v.SetDefault("AUTH_TIMEOUT", "10s")

	v.SetDefault("REDIS_HOST", "")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("RATE_LIMIT_REQUESTS", 10)
	v.SetDefault("RATE_LIMIT_WINDOW", "1m")

	v.SetDefault("CORS_ALLOWED_ORIGINS", "")
}

// Load reads the configuration from the environment, after loading .env if present.
// A missing .env is only reported at debug level.
func Load(logger *zap.Logger) (*Config, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := godotenv.Load(); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Debug("No .env file, using the environment only")
		} else {
			logger.Warn("Could not read .env file", zap.Error(err))
		}
	}

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            v.GetString("SERVER_PORT"),
			Env:             v.GetString("SERVER_ENV"),
			LogLevel:        v.GetString("LOG_LEVEL"),
			ShutdownTimeout: v.GetDuration("SHUTDOWN_TIMEOUT"),
		},
		Storage: StorageConfig{
			Driver:      strings.ToLower(v.GetString("STORAGE_DRIVER")),
			Path:        v.GetString("STORAGE_PATH"),
			Bucket:      v.GetString("STORAGE_BUCKET"),
			Key:         v.GetString("STORAGE_KEY"),
			SessionKey:  v.GetString("STORAGE_SESSION_KEY"),
			RedisPrefix: v.GetString("STORAGE_REDIS_PREFIX"),
		},
		Catalog: CatalogConfig{
			URL:     v.GetString("CATALOG_API_URL"),
			Limit:   v.GetInt("CATALOG_LIMIT"),
			Timeout: v.GetDuration("CATALOG_TIMEOUT"),
		},
		Auth: AuthConfig{
			URL:     v.GetString("AUTH_URL"),
			APIKey:  v.GetString("AUTH_API_KEY"),
			SiteURL: strings.TrimRight(v.GetString("AUTH_SITE_URL"), "/"),
			Timeout: v.GetDuration("AUTH_TIMEOUT"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetString("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		RateLimit: RateLimitConfig{
			Requests: v.GetInt("RATE_LIMIT_REQUESTS"),
			Window:   v.GetDuration("RATE_LIMIT_WINDOW"),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case "bolt", "memory":
	case "redis":
		if c.RedisAddr() == "" {
			return fmt.Errorf("invalid config: STORAGE_DRIVER=redis requires REDIS_HOST")
		}
	default:
		return fmt.Errorf("invalid config: unknown STORAGE_DRIVER %q", c.Storage.Driver)
	}
	if c.Catalog.Limit < 0 {
		return fmt.Errorf("invalid config: CATALOG_LIMIT must not be negative")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
