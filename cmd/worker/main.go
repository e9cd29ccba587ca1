package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benvon/habit-tracker/internal/cache"
	"github.com/benvon/habit-tracker/internal/challenges"
	"github.com/benvon/habit-tracker/internal/config"
	"github.com/benvon/habit-tracker/internal/database"
	"github.com/benvon/habit-tracker/internal/logger"
	"github.com/benvon/habit-tracker/internal/queue"
	"github.com/benvon/habit-tracker/internal/services/leaderboard"
	"github.com/benvon/habit-tracker/internal/telemetry"
	"github.com/benvon/habit-tracker/internal/workers"
	"go.uber.org/zap"
)

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	debugMode := cfg.WorkerDebugMode || *debugFlag

	zapLogger, err := logger.NewProductionLogger(debugMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync(zapLogger) }()

	if !cfg.QueueEnabled() {
		zapLogger.Fatal("worker_requires_rabbitmq", zap.String("env", "RABBITMQ_URL"))
	}

	zapLogger.Info("starting_worker",
		zap.Bool("debug_mode", debugMode),
		zap.Int("prefetch", cfg.RabbitMQPrefetch),
		zap.Duration("leaderboard_refresh_interval", cfg.LeaderboardRefreshInterval),
	)

	if cfg.OTELEnabled && cfg.OTELEndpoint != "" {
		tp, err := telemetry.InitTracer(context.Background(), telemetry.ServiceName+"-worker", cfg.OTELEndpoint)
		if err != nil {
			zapLogger.Warn("failed_to_initialize_otel_tracer", zap.Error(err))
		} else {
			defer func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				if err := telemetry.Shutdown(shutdownCtx, tp); err != nil {
					zapLogger.Error("failed_to_shutdown_otel_tracer", zap.Error(err))
				}
			}()
		}
	}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			zapLogger.Warn("failed_to_close_database_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_database")

	userRepo := database.NewUserRepository(db)
	habitRepo := database.NewHabitRepository(db)
	entryRepo := database.NewEntryRepository(db)
	challengeRepo := database.NewChallengeRepository(db)

	challengeService := challenges.NewService(challengeRepo, habitRepo, entryRepo, zapLogger)

	var leaderboardService *leaderboard.Service
	var debouncer workers.Debouncer
	redisClient, err := cache.NewRedisClient(cfg.RedisURL)
	if err != nil {
		zapLogger.Warn("redis_unavailable_leaderboard_refresh_disabled", zap.Error(err))
		leaderboardService = leaderboard.NewService(userRepo, habitRepo, entryRepo, nil, zapLogger)
	} else {
		defer func() { _ = redisClient.Close() }()
		leaderboardCache := cache.NewLeaderboardCache(redisClient, cfg.LeaderboardCacheTTL)
		leaderboardService = leaderboard.NewService(userRepo, habitRepo, entryRepo, leaderboardCache, zapLogger)
		debouncer = workers.NewRedisDebouncer(redisClient)
	}

	jobQueue, err := queue.NewRabbitMQQueue(cfg.RabbitMQURL, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_rabbitmq", zap.Error(err))
	}
	defer func() {
		if err := jobQueue.Close(); err != nil {
			zapLogger.Warn("failed_to_close_rabbitmq_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_rabbitmq")

	processor := workers.NewProcessor(challengeService, leaderboardService, jobQueue, debouncer, zapLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	msgChan, errChan, err := jobQueue.Consume(ctx, cfg.RabbitMQPrefetch)
	if err != nil {
		zapLogger.Fatal("failed_to_start_consuming", zap.Error(err))
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		workers.Run(ctx, msgChan, errChan, processor, zapLogger)
	}()

	// Refreshing a window with no cache would only burn queries
	if redisClient != nil {
		scheduler := workers.NewLeaderboardScheduler(leaderboardService, jobQueue, cfg.LeaderboardRefreshInterval, zapLogger)
		go func() {
			if err := scheduler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				zapLogger.Error("leaderboard_scheduler_stopped_with_error", zap.Error(err))
			}
		}()
	}

	dlqGC := queue.NewGarbageCollector(jobQueue, time.Hour, 24*time.Hour, zapLogger)
	go func() {
		if err := dlqGC.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			zapLogger.Error("dlq_garbage_collector_stopped_with_error", zap.Error(err))
		}
	}()

	zapLogger.Info("worker_started")

	select {
	case <-sigChan:
		zapLogger.Info("worker_shutting_down")
	case <-done:
		zapLogger.Warn("worker_consumer_stopped")
	}
	cancel()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		zapLogger.Warn("worker_shutdown_timed_out")
	}

	zapLogger.Info("worker_stopped")
}
