package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bms-fs/order-core/internal/config"
	"github.com/bms-fs/order-core/internal/logging"
	"github.com/bms-fs/order-core/internal/pricing"
	"github.com/bms-fs/order-core/internal/remote"
	"github.com/bms-fs/order-core/internal/router"
	"github.com/bms-fs/order-core/internal/service"
	"github.com/bms-fs/order-core/internal/store"
	"github.com/bms-fs/order-core/internal/ws"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Store: Postgres when configured, otherwise in memory.
	var st store.Store
	if cfg.DatabaseURL != "" {
		if err := store.MigrateUp(cfg.DatabaseURL); err != nil {
			return err
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			return fmt.Errorf("ping database: %w", err)
		}
		st = store.NewPostgres(pool)
		logger.Info("using postgres store")
	} else {
		st = store.NewMemory()
		logger.Warn("DATABASE_URL not set, using in-memory store")
	}

	// Remote: nil keeps the services offline.
	var rm service.Remote
	if cfg.BMSAPIURL != "" {
		rm = remote.NewClient(remote.Config{
			BaseURL:    cfg.BMSAPIURL,
			Timeout:    cfg.RemoteTimeout,
			MaxRetries: cfg.RemoteMaxRetries,
			Logger:     logger,
		})
		logger.Info("syncing with backend", zap.String("url", cfg.BMSAPIURL))
	} else {
		logger.Warn("BMS_API_URL not set, running offline")
	}

	engine := pricing.New(pricing.Currency{Code: cfg.CurrencyCode, Exponent: cfg.CurrencyExponent})
	locks := service.NewKeyedLock()

	hub := ws.NewHub(logger)
	go hub.Run(ctx)

	carts := service.NewCartService(st, rm, engine, locks, logger)
	orders := service.NewOrderService(st, rm, engine, locks, hub, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router.New(cfg, carts, orders, hub, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
