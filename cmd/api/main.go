package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/safar/electrostore/internal/api"
	"github.com/safar/electrostore/internal/cardvault"
	"github.com/safar/electrostore/internal/checkout"
	"github.com/safar/electrostore/internal/config"
	"github.com/safar/electrostore/internal/database"
	"github.com/safar/electrostore/internal/idempotency"
	"github.com/safar/electrostore/internal/inventory"
	"github.com/safar/electrostore/internal/logger"
	"github.com/safar/electrostore/internal/metrics"
	"github.com/safar/electrostore/internal/orders"
	"github.com/safar/electrostore/internal/refunds"
	"github.com/safar/electrostore/internal/revenue"
)

const (
	serviceName     = "electrostore-api"
	shutdownTimeout = 15 * time.Second
)

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceName})

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       cfg.App.LogLevel,
		Format:      cfg.App.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	db, err := database.NewConnection(ctx, &cfg.Database, logg)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.App.AutoMigrate {
		if err := database.Migrate(ctx, db, "up"); err != nil {
			return err
		}
		logg.Info(ctx, "migrations applied")
	}

	key, err := cfg.Security.CardKey()
	if err != nil {
		return err
	}
	vault, err := cardvault.New(key)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewDBStatsCollector(db, "electrostore"),
	)
	commerce := metrics.NewCommerce(registry)

	ledger := inventory.NewLedger(commerce, logg)
	machine, err := orders.NewMachine(ledger, commerce, logg)
	if err != nil {
		return err
	}
	checkoutSvc, err := checkout.NewService(db, ledger, vault, commerce, logg)
	if err != nil {
		return err
	}
	orderSvc, err := orders.NewService(db, machine, logg)
	if err != nil {
		return err
	}
	refundSvc, err := refunds.NewService(db, machine, logg)
	if err != nil {
		return err
	}
	revenueSvc, err := revenue.NewService(db)
	if err != nil {
		return err
	}

	deps := api.Deps{
		Logger:         logg,
		DB:             dbPinger{db},
		Gatherer:       registry,
		IdempotencyTTL: cfg.Idempotency.TTL,
		Checkout:       checkoutSvc,
		Orders:         orderSvc,
		Refunds:        refundSvc,
		Revenue:        revenueSvc,
	}

	if cfg.Redis.Enabled() {
		client, err := idempotency.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			return err
		}
		defer client.Close()

		redisStore := idempotency.NewRedisStore(client)
		deps.Idempotency = redisStore
		deps.Redis = redisStore
	} else {
		logg.Warn(ctx, "REDIS_URL not set, idempotency keys are ignored")
	}

	addr := ":" + cfg.Server.Port
	server := &http.Server{
		Addr:         addr,
		Handler:      api.NewRouter(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logCtx := logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "addr": addr})
		logg.Info(logCtx, "starting api server")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	logg.Info(context.Background(), "shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

type dbPinger struct {
	db *sql.DB
}

func (p dbPinger) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}
