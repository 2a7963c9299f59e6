package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/nikolayk812/storefront-cart/internal/api"
	"github.com/nikolayk812/storefront-cart/internal/cart"
	"github.com/nikolayk812/storefront-cart/internal/config"
	"github.com/nikolayk812/storefront-cart/internal/logger"
	"github.com/nikolayk812/storefront-cart/internal/metrics"
	"github.com/nikolayk812/storefront-cart/internal/persist"
	"github.com/nikolayk812/storefront-cart/internal/port"
	"github.com/nikolayk812/storefront-cart/internal/repository"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cartd"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "cartd",
		Level:       cfg.App.LogLevel,
		Format:      cfg.App.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "cartd stopped with error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	repo, closeRepo, err := openRepository(ctx, cfg)
	if err != nil {
		return fmt.Errorf("openRepository: %w", err)
	}
	defer closeRepo()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	cartMetrics := metrics.NewCartMetrics(reg)

	store := cart.NewStore(cart.WithNormalizer(cfg.Catalog.Normalizer()))
	store.Subscribe(func(change cart.Change) {
		cartMetrics.ObserveOperation(string(change.Op), change.Cart.Count)
	})

	persister := persist.New(store, repo,
		persist.WithKey(cfg.Storage.Namespace),
		persist.WithLogger(logg),
		persist.WithMetrics(cartMetrics),
		persist.WithTimeouts(cfg.Storage.WriteTimeout, cfg.Storage.FlushTimeout),
	)
	if cfg.Storage.PurgeOnStart {
		if err := persister.Purge(ctx); err != nil {
			return fmt.Errorf("persister.Purge: %w", err)
		}
		logg.Info(ctx, "stored cart purged")
	} else {
		persister.Rehydrate(ctx)
	}

	srv := &http.Server{
		Addr:    cfg.App.Addr,
		Handler: api.NewRouter(api.Params{Store: store, Logger: logg, Gatherer: reg}),
	}

	g, gctx := errgroup.WithContext(ctx)

	// the persister outlives the server so writes issued during shutdown are flushed
	persistCtx, stopPersist := context.WithCancel(context.WithoutCancel(ctx))
	defer stopPersist()

	g.Go(func() error {
		return persister.Run(persistCtx)
	})

	g.Go(func() error {
		logg.Info(logg.WithField(gctx, "addr", cfg.App.Addr), "cart api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("srv.ListenAndServe: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		defer stopPersist()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.App.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("srv.Shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

func openRepository(ctx context.Context, cfg *config.Config) (port.StateRepository, func(), error) {
	switch cfg.Storage.Backend {
	case config.BackendPostgres:
		poolCfg, err := pgxpool.ParseConfig(cfg.DB.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("pgxpool.ParseConfig: %w", err)
		}
		poolCfg.MaxConns = cfg.DB.MaxConns

		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("pgxpool.NewWithConfig: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("pool.Ping: %w", err)
		}

		return repository.NewState(pool), pool.Close, nil

	case config.BackendRedis:
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("redis.ParseURL: %w", err)
		}

		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("client.Ping: %w", err)
		}

		return repository.NewRedis(client, cfg.Redis.TTL), func() { _ = client.Close() }, nil

	default:
		return repository.NewMemory(), func() {}, nil
	}
}
