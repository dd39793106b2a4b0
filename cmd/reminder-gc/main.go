// Package main is the entry point for the reminder garbage collector.
//
// The collector reclaims reminder jobs whose fire time is past the grace
// period, oldest first, in bounded batches. Pruned payloads are gzip-archived
// to MongoDB before deletion. The process runs the sweep on a cron schedule;
// pass -once to run a single sweep and exit, which suits containerized cron
// and manual backfills.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/benbjohnson/clock"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"opsdeck/internal/config"
	"opsdeck/internal/db"
	"opsdeck/internal/observability"
	"opsdeck/internal/reminders"
)

func main() {
	once := flag.Bool("once", false, "run a single sweep and exit")
	flag.Parse()

	if err := run(*once); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(once bool) error {
	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("reminder gc starting",
		"environment", cfg.Environment,
		"schedule", cfg.Reminders.GCSchedule,
		"grace_period", cfg.Reminders.GracePeriod,
		"batch", cfg.Reminders.GCBatchSize,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mongoDB, mongoClient, err := db.ConnectMongo(ctx, cfg.Mongo)
	if err != nil {
		return fmt.Errorf("connecting mongodb: %w", err)
	}
	defer func() { _ = mongoClient.Disconnect(context.Background()) }()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password.Unmask(),
		DB:       cfg.Redis.DB,
	})
	defer func() { _ = rdb.Close() }()

	awsCfg, err := loadAWSConfig(ctx, cfg.AWS)
	if err != nil {
		return fmt.Errorf("loading aws config: %w", err)
	}
	metrics := observability.NewCloudWatchMetrics(cloudwatch.NewFromConfig(awsCfg), logger)

	payables := db.NewPayableRepository(mongoDB)
	collector := reminders.NewCollector(
		reminders.NewRedisJobStore(rdb),
		payables,
		db.NewArchiveRepository(mongoDB),
		clock.New(),
		logger,
		reminders.CollectorConfig{GracePeriod: cfg.Reminders.GracePeriod},
	)

	sweep := func() {
		res, err := collector.PruneExpiredJobsByETA(ctx, cfg.Reminders.GCBatchSize)
		if err != nil {
			logger.Error("gc sweep failed", "error", err)
			return
		}
		if res.Pruned > 0 {
			metrics.CountRemindersPruned(ctx, res.Pruned)
		}
	}

	if once {
		sweep()
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(cfg.Reminders.GCSchedule, sweep); err != nil {
		return fmt.Errorf("invalid gc schedule %q: %w", cfg.Reminders.GCSchedule, err)
	}
	c.Start()

	<-ctx.Done()
	logger.Info("reminder gc stopping")

	// Stop returns a context that completes when any in-flight sweep ends.
	<-c.Stop().Done()
	return nil
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
