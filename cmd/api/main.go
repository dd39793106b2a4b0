// Package main is the entry point for the OpsDeck API server.
//
// It loads configuration, connects the three stores (MongoDB documents,
// Redis reminder jobs, Postgres wallet ledger), wires the domain services
// onto the core HTTP chassis, and serves until SIGINT/SIGTERM triggers a
// graceful shutdown.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/benbjohnson/clock"
	"github.com/redis/go-redis/v9"

	"opsdeck/internal/analytics"
	"opsdeck/internal/api/handlers"
	"opsdeck/internal/config"
	"opsdeck/internal/core"
	"opsdeck/internal/crypto"
	"opsdeck/internal/db"
	"opsdeck/internal/external"
	"opsdeck/internal/inventory"
	"opsdeck/internal/observability"
	"opsdeck/internal/reminders"
	"opsdeck/internal/social"
	"opsdeck/internal/wallet"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so main() can cleanly exit on error.
func run() error {
	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("opsdeck api starting",
		"environment", cfg.Environment,
		"service", cfg.Service,
		"port", cfg.Server.Port,
	)

	ctx := context.Background()

	// Stores.
	mongoDB, mongoClient, err := db.ConnectMongo(ctx, cfg.Mongo)
	if err != nil {
		return fmt.Errorf("connecting mongodb: %w", err)
	}
	pool, err := db.ConnectPostgres(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("connecting postgres: %w", err)
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password.Unmask(),
		DB:       cfg.Redis.DB,
	})
	if err := pingRedis(ctx, rdb); err != nil {
		return fmt.Errorf("pinging redis: %w", err)
	}

	// Observability.
	awsCfg, err := loadAWSConfig(ctx, cfg.AWS)
	if err != nil {
		return fmt.Errorf("loading aws config: %w", err)
	}
	metrics := observability.NewCloudWatchMetrics(cloudwatch.NewFromConfig(awsCfg), logger)

	// Shared infrastructure.
	cipher, err := crypto.NewFieldCipher(cfg.Crypto.FieldKey)
	if err != nil {
		return fmt.Errorf("initializing field cipher: %w", err)
	}
	registry := external.NewClientRegistry(cfg, logger)
	clk := clock.New()

	// Repositories.
	payables := db.NewPayableRepository(mongoDB)
	keys := db.NewAPIKeyRepository(mongoDB)
	orders := db.NewPurchaseOrderRepository(mongoDB)
	posts := db.NewPostRepository(mongoDB)
	stats := db.NewAnalyticsRepository(mongoDB)
	ledger := db.NewWalletRepository(pool)

	// Reminder subsystem.
	jobStore := reminders.NewRedisJobStore(rdb)
	scheduler := reminders.NewScheduler(jobStore, payables, clk, logger, reminders.SchedulerConfig{
		RetentionWindow: cfg.Reminders.RetentionWindow,
		MinTTL:          cfg.Reminders.MinTTL,
	})
	inspector := reminders.NewInspector(jobStore, payables, cipher, logger)
	collector := reminders.NewCollector(jobStore, payables, db.NewArchiveRepository(mongoDB), clk, logger, reminders.CollectorConfig{
		GracePeriod: cfg.Reminders.GracePeriod,
	})

	// Domain services.
	walletSvc := wallet.NewService(ledger, registry.Billing, logger)
	orderSvc := inventory.NewService(orders, clk, logger)
	postSvc := social.NewService(posts, registry.Publishers, clk, logger)
	reportSvc := analytics.NewService(stats, walletSvc, clk, logger)

	// HTTP chassis.
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.Keys = keys
	srv.Metrics = metrics
	srv.HealthProbes = []core.HealthProbe{
		db.MongoHealthProbe{Client: mongoClient},
		db.PostgresHealthProbe{Pool: pool},
		reminders.RedisHealthProbe{Client: rdb},
	}

	payableHandler := handlers.NewPayableHandler(payables, scheduler, cipher, srv.Validator, metrics, logger)
	reminderHandler := handlers.NewReminderHandler(inspector, collector, metrics, logger, cfg.Reminders.GCBatchSize)
	walletHandler := handlers.NewWalletHandler(walletSvc, srv.Validator, logger)
	orderHandler := handlers.NewOrderHandler(orderSvc, srv.Validator, logger)
	postHandler := handlers.NewPostHandler(postSvc, srv.Validator, logger)
	dashboardHandler := handlers.NewDashboardHandler(reportSvc, logger)

	srv.V1RouteRegistrars = []core.RouteRegistrar{
		payableHandler.RegisterRoutes,
		reminderHandler.RegisterRoutes,
		walletHandler.RegisterRoutes,
		orderHandler.RegisterRoutes,
		postHandler.RegisterRoutes,
		dashboardHandler.RegisterRoutes,
	}
	srv.MountRoutes()

	srv.OnShutdown(func(ctx context.Context) error { return mongoClient.Disconnect(ctx) })
	srv.OnShutdown(func(context.Context) error { pool.Close(); return nil })
	srv.OnShutdown(func(context.Context) error { return rdb.Close() })

	return serveHTTP(srv, cfg, logger)
}

// serveHTTP runs the server until a shutdown signal or listener error, then
// drains in-flight requests and closes server resources.
func serveHTTP(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

func pingRedis(ctx context.Context, rdb *redis.Client) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return rdb.Ping(ctx).Err()
}

// loadAWSConfig resolves the AWS SDK configuration, honoring the LocalStack
// endpoint override when one is configured.
func loadAWSConfig(ctx context.Context, cfg config.AWSConfig) (awssdk.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.EndpointURL != "" {
		opts = append(opts, awsconfig.WithBaseEndpoint(cfg.EndpointURL))
	}
	return awsconfig.LoadDefaultConfig(ctx, opts...)
}

// newLogger creates a JSON slog.Logger at the configured level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
