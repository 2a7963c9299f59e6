package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/nikolayk812/storefront-cart/internal/domain"
	"golang.org/x/text/currency"
)

const EnvPrefix = "CART"

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

type Config struct {
	App     AppConfig
	Storage StorageConfig
	DB      DBConfig
	Redis   RedisConfig
	Catalog CatalogConfig
}

// Load reads CART_* variables, e.g. CART_APP_ADDR or CART_STORAGE_BACKEND.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("envconfig.Process: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env             string        `envconfig:"ENV" default:"dev"`
	Addr            string        `envconfig:"ADDR" default:":8080"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat       string        `envconfig:"LOG_FORMAT" default:"json"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

type StorageConfig struct {
	Backend      string        `envconfig:"BACKEND" default:"memory"`
	Namespace    string        `envconfig:"NAMESPACE" default:"persist:root"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"5s"`
	FlushTimeout time.Duration `envconfig:"FLUSH_TIMEOUT" default:"5s"`
	// PurgeOnStart deletes the stored cart instead of rehydrating it.
	PurgeOnStart bool `envconfig:"PURGE_ON_START" default:"false"`
}

type DBConfig struct {
	DSN      string `envconfig:"DSN"`
	MaxConns int32  `envconfig:"MAX_CONNS" default:"4"`
}

type RedisConfig struct {
	URL string `envconfig:"URL"`
	// TTL > 0 lets Redis evict a cart that has not been written for that long.
	TTL time.Duration `envconfig:"TTL" default:"0"`
}

type CatalogConfig struct {
	ImageOrigin      string `envconfig:"IMAGE_ORIGIN" default:"https://nxadmin.consociate.co.in"`
	PlaceholderImage string `envconfig:"PLACEHOLDER_IMAGE" default:"/default-image.jpg"`
	Currency         string `envconfig:"CURRENCY" default:"GBP"`
}

func (c *Config) Validate() error {
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))

	switch c.Storage.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.DB.DSN == "" {
			return fmt.Errorf("db dsn is required for the postgres backend")
		}
	case BackendRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("redis url is required for the redis backend")
		}
	default:
		return fmt.Errorf("storage backend[%s] is not supported", c.Storage.Backend)
	}

	if c.Storage.Namespace == "" {
		return fmt.Errorf("storage namespace is empty")
	}

	if _, err := currency.ParseISO(c.Catalog.Currency); err != nil {
		return fmt.Errorf("currency[%s] is not valid: %w", c.Catalog.Currency, err)
	}

	return nil
}

// Normalizer builds the product normalizer from the catalog settings.
// Validate must have passed.
func (c CatalogConfig) Normalizer() domain.Normalizer {
	n := domain.NewNormalizer()
	n.ImageOrigin = c.ImageOrigin
	n.PlaceholderImage = c.PlaceholderImage
	if unit, err := currency.ParseISO(c.Currency); err == nil {
		n.Currency = unit
	}
	return n
}
