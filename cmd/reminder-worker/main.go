// Package main is the entry point for the reminder delivery worker.
//
// The worker polls the Redis job store for due reminder jobs, texts each
// payable's contact via the SMS gateway, charges the business wallet per
// delivered text, and publishes every outcome to the SQS dispatch queue.
// It runs as a long-lived process and stops cleanly on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/benbjohnson/clock"
	"github.com/redis/go-redis/v9"

	"opsdeck/internal/config"
	"opsdeck/internal/crypto"
	"opsdeck/internal/db"
	"opsdeck/internal/external"
	"opsdeck/internal/observability"
	"opsdeck/internal/queue"
	"opsdeck/internal/reminders"
	"opsdeck/internal/wallet"
	"opsdeck/internal/worker"
)

func main() {
	if err := run(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("reminder worker starting",
		"environment", cfg.Environment,
		"poll", cfg.Reminders.WorkerPoll,
		"batch", cfg.Reminders.WorkerBatch,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Stores.
	mongoDB, mongoClient, err := db.ConnectMongo(ctx, cfg.Mongo)
	if err != nil {
		return fmt.Errorf("connecting mongodb: %w", err)
	}
	defer func() { _ = mongoClient.Disconnect(context.Background()) }()

	pool, err := db.ConnectPostgres(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("connecting postgres: %w", err)
	}
	defer pool.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password.Unmask(),
		DB:       cfg.Redis.DB,
	})
	defer func() { _ = rdb.Close() }()

	// AWS clients for dispatch and metrics.
	awsCfg, err := loadAWSConfig(ctx, cfg.AWS)
	if err != nil {
		return fmt.Errorf("loading aws config: %w", err)
	}
	dispatcher := queue.NewReminderDispatcher(sqs.NewFromConfig(awsCfg), cfg.AWS, logger)
	metrics := observability.NewCloudWatchMetrics(cloudwatch.NewFromConfig(awsCfg), logger)

	cipher, err := crypto.NewFieldCipher(cfg.Crypto.FieldKey)
	if err != nil {
		return fmt.Errorf("initializing field cipher: %w", err)
	}
	registry := external.NewClientRegistry(cfg, logger)
	clk := clock.New()

	payables := db.NewPayableRepository(mongoDB)
	jobStore := reminders.NewRedisJobStore(rdb)
	inspector := reminders.NewInspector(jobStore, payables, cipher, logger)
	charger := wallet.NewService(db.NewWalletRepository(pool), registry.Billing, logger)

	w := worker.NewReminderWorker(
		inspector,
		jobStore,
		payables,
		registry.SMS,
		dispatcher,
		charger,
		metrics,
		clk,
		logger,
		worker.Config{
			Poll:       cfg.Reminders.WorkerPoll,
			Batch:      cfg.Reminders.WorkerBatch,
			Parallel:   cfg.Reminders.WorkerParallel,
			PaymentURL: cfg.Server.APIExternalURL,
		},
	)

	return w.Run(ctx)
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
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
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
