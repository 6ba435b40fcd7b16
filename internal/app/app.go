// Package app wires the storage, catalog and identity components from config.
// Both the HTTP API and the CLI build on it.
package app

import (
	"context"
	"errors"
	"fmt"

	"shelfdesk/internal/catalogapi"
	"shelfdesk/internal/config"
	"shelfdesk/internal/identity"
	"shelfdesk/internal/repository"
	"shelfdesk/internal/service"
	"shelfdesk/internal/storage"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// App holds the long-lived components of one process
type App struct {
	Config   *config.Config
	KV       storage.KV
	Redis    redis.UniversalClient // nil when REDIS_HOST is unset
	Catalog  service.CatalogStore
	Identity *identity.Client
	Sessions service.SessionGateway

	logger *zap.Logger
}

// Open builds every component. The session gateway is created but not
// initialized; callers decide when to resolve the stored session.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, logger: logger}

	if addr := cfg.RedisAddr(); addr != "" {
		a.Redis = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	kv, err := storage.Open(storage.Options{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		Bucket:      cfg.Storage.Bucket,
		RedisClient: a.Redis,
		RedisPrefix: cfg.Storage.RedisPrefix,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to open %s storage: %w", cfg.Storage.Driver, err)
	}
	a.KV = kv

	if cfg.Storage.Driver == storage.DriverRedis {
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to reach redis storage: %w", err)
		}
	}

	source := catalogapi.New(catalogapi.Config{
		URL:     cfg.Catalog.URL,
		Limit:   cfg.Catalog.Limit,
		Timeout: cfg.Catalog.Timeout,
	}, logger.Named("catalogapi"))

	a.Catalog, err = service.NewCatalogStore(ctx,
		repository.NewProductRepository(kv, cfg.Storage.Key),
		source,
		logger.Named("catalog"),
		service.WithFetchTimeout(cfg.Catalog.Timeout),
	)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	a.Identity = identity.New(identity.Config{
		URL:     cfg.Auth.URL,
		APIKey:  cfg.Auth.APIKey,
		Timeout: cfg.Auth.Timeout,
	}, repository.NewSessionRepository(kv, cfg.Storage.SessionKey), logger.Named("identity"))

	a.Sessions = service.NewSessionGateway(a.Identity, service.NewTranslator(), cfg.Auth.SiteURL, logger.Named("session"))

	return a, nil
}

// Close releases the gateway, the storage and the Redis client
func (a *App) Close() error {
	var errs []error
	if a.Sessions != nil {
		a.Sessions.Close()
	}
	if a.KV != nil {
		if err := a.KV.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close storage: %w", err))
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close redis: %w", err))
		}
	}
	return errors.Join(errs...)
}

// StorageHealth describes the local storage for the health endpoint
func (a *App) StorageHealth(ctx context.Context) map[string]any {
	health := map[string]any{"driver": a.Config.Storage.Driver}

	switch kv := a.KV.(type) {
	case *storage.Bolt:
		stats := kv.Stats()
		health["path"] = kv.Path()
		health["open_read_tx"] = stats.OpenTxN
		health["tx_total"] = stats.TxN
	case *storage.Redis:
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			health["status"] = "down"
			health["error"] = err.Error()
			return health
		}
	}

	health["status"] = "up"
	return health
}
