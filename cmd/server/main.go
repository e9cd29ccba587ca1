package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benvon/habit-tracker/internal/cache"
	"github.com/benvon/habit-tracker/internal/challenges"
	"github.com/benvon/habit-tracker/internal/config"
	"github.com/benvon/habit-tracker/internal/database"
	"github.com/benvon/habit-tracker/internal/handlers"
	"github.com/benvon/habit-tracker/internal/logger"
	"github.com/benvon/habit-tracker/internal/metrics"
	"github.com/benvon/habit-tracker/internal/middleware"
	"github.com/benvon/habit-tracker/internal/queue"
	"github.com/benvon/habit-tracker/internal/services/leaderboard"
	"github.com/benvon/habit-tracker/internal/services/oidc"
	"github.com/benvon/habit-tracker/internal/services/stats"
	"github.com/benvon/habit-tracker/internal/telemetry"
	"github.com/benvon/habit-tracker/internal/workers"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/zap"
)

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.ValidateAuth(); err != nil {
		log.Fatalf("Invalid auth configuration: %v", err)
	}

	debugMode := cfg.ServerDebugMode || *debugFlag

	zapLogger, err := logger.NewProductionLogger(debugMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync(zapLogger) }()

	zapLogger.Info("starting_server",
		zap.Bool("debug_mode", debugMode),
		zap.String("server_port", cfg.ServerPort),
		zap.String("frontend_url", cfg.FrontendURL),
		zap.Bool("queue_enabled", cfg.QueueEnabled()),
		zap.Bool("otel_enabled", cfg.OTELEnabled),
		zap.Bool("metrics_enabled", cfg.MetricsEnabled),
	)

	tracingEnabled := false
	if cfg.OTELEnabled {
		if cfg.OTELEndpoint == "" {
			zapLogger.Warn("otel_enabled_but_endpoint_not_configured")
		} else if tp, err := telemetry.InitTracer(context.Background(), telemetry.ServiceName, cfg.OTELEndpoint); err != nil {
			zapLogger.Warn("failed_to_initialize_otel_tracer", zap.Error(err))
		} else {
			tracingEnabled = true
			zapLogger.Info("otel_tracer_initialized", zap.String("endpoint", cfg.OTELEndpoint))
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

	// Redis backs the leaderboard cache, the rate limiter and the reconcile
	// debounce. Without it those degrade to no cache, per-process limits and
	// undebounced jobs.
	var redisClient *redis.Client
	if client, err := cache.NewRedisClient(cfg.RedisURL); err != nil {
		zapLogger.Warn("redis_unavailable_running_degraded", zap.Error(err))
	} else {
		redisClient = client
		zapLogger.Info("connected_to_redis")
		defer func() {
			if err := redisClient.Close(); err != nil {
				zapLogger.Warn("failed_to_close_redis_connection", zap.Error(err))
			}
		}()
	}

	var jobQueue queue.JobQueue
	if cfg.QueueEnabled() {
		rabbit := connectRabbitMQ(cfg.RabbitMQURL, zapLogger)
		jobQueue = rabbit
		defer func() {
			if err := rabbit.Close(); err != nil {
				zapLogger.Warn("failed_to_close_rabbitmq_connection", zap.Error(err))
			}
		}()
	}

	userRepo := database.NewUserRepository(db)
	habitRepo := database.NewHabitRepository(db)
	entryRepo := database.NewEntryRepository(db)
	challengeRepo := database.NewChallengeRepository(db)

	statsService := stats.NewService(habitRepo, entryRepo, zapLogger)
	challengeService := challenges.NewService(challengeRepo, habitRepo, entryRepo, zapLogger)

	var leaderboardService *leaderboard.Service
	var dispatcherOpts []workers.DispatcherOption
	if redisClient != nil {
		leaderboardCache := cache.NewLeaderboardCache(redisClient, cfg.LeaderboardCacheTTL)
		leaderboardService = leaderboard.NewService(userRepo, habitRepo, entryRepo, leaderboardCache, zapLogger)
		dispatcherOpts = append(dispatcherOpts, workers.WithDebouncer(workers.NewRedisDebouncer(redisClient)))
	} else {
		leaderboardService = leaderboard.NewService(userRepo, habitRepo, entryRepo, nil, zapLogger)
	}
	if jobQueue != nil {
		dispatcherOpts = append(dispatcherOpts,
			workers.WithJobQueue(jobQueue),
			workers.WithDebounce(cfg.ReconcileDebounce),
		)
	}
	dispatcher := workers.NewDispatcher(challengeService, leaderboardService, zapLogger, dispatcherOpts...)

	jwksManager := oidc.NewJWKSManager()
	verifier := oidc.NewVerifier(jwksManager, cfg.OIDCIssuer, cfg.OIDCJWKSURL)
	authMW := middleware.Auth(userRepo, verifier, zapLogger)

	rateLimitMW, err := middleware.RateLimit(redisClient, cfg.RateLimit)
	if err != nil {
		zapLogger.Fatal("failed_to_create_rate_limiter", zap.Error(err))
	}

	authHandler := handlers.NewAuthHandler()
	habitHandler := handlers.NewHabitHandler(habitRepo, zapLogger, handlers.WithHabitChangeHook(dispatcher.OnEntryChange))
	entryHandler := handlers.NewEntryHandler(habitRepo, entryRepo, zapLogger, handlers.WithEntryChangeHook(dispatcher.OnEntryChange))
	statsHandler := handlers.NewStatsHandler(statsService, zapLogger)
	leaderboardHandler := handlers.NewLeaderboardHandler(leaderboardService, zapLogger)
	challengeHandler := handlers.NewChallengeHandler(challengeService, userRepo, zapLogger, handlers.WithReconcileTrigger(dispatcher.TriggerReconcile))
	healthChecker := newHealthChecker(db, redisClient, jobQueue)

	openAPIHandler := handlers.NewOpenAPIHandler(cfg.OpenAPIPath)
	if err := openAPIHandler.Err(); err != nil {
		zapLogger.Warn("openapi_document_unavailable", zap.String("path", cfg.OpenAPIPath), zap.Error(err))
	}

	r := mux.NewRouter()

	// gorilla/mux runs middleware in registration order, first registered outermost
	if tracingEnabled {
		r.Use(otelmux.Middleware(telemetry.ServiceName))
	}
	if cfg.MetricsEnabled {
		r.Use(metrics.Middleware)
	}
	r.Use(middleware.SecurityHeaders(cfg.EnableHSTS))
	r.Use(middleware.CORS(cfg.FrontendURL))
	r.Use(middleware.MaxRequestSize(middleware.DefaultMaxRequestSize))
	r.Use(middleware.ContentType)
	r.Use(middleware.Timeout(middleware.DefaultRequestTimeout))
	r.Use(middleware.ErrorHandler(zapLogger))
	r.Use(middleware.Audit(zapLogger))
	r.Use(middleware.Logging(zapLogger))

	r.HandleFunc("/healthz", healthChecker.HealthCheck).Methods("GET")
	if cfg.MetricsEnabled {
		r.Handle("/metrics", metrics.Handler()).Methods("GET")
	}
	openAPIHandler.RegisterRoutes(r)

	apiRouter := r.PathPrefix("/api/v1").Subrouter()
	apiRouter.Use(authMW)
	apiRouter.Use(rateLimitMW)

	authHandler.RegisterRoutes(apiRouter.PathPrefix("/auth").Subrouter())
	habitsRouter := apiRouter.PathPrefix("/habits").Subrouter()
	habitHandler.RegisterRoutes(habitsRouter)
	entryHandler.RegisterRoutes(habitsRouter)
	statsHandler.RegisterRoutes(apiRouter.PathPrefix("/stats").Subrouter())
	leaderboardHandler.RegisterRoutes(apiRouter.PathPrefix("/leaderboard").Subrouter())
	challengeHandler.RegisterRoutes(apiRouter.PathPrefix("/challenges").Subrouter())

	// Preflight requests are answered by the CORS middleware; this gives them a matching route
	r.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	srv := &http.Server{
		Addr:           ":" + cfg.ServerPort,
		Handler:        r,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   middleware.DefaultRequestTimeout + 5*time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	if dlqPurger, ok := jobQueue.(queue.DLQPurger); ok {
		dlqGC := queue.NewGarbageCollector(dlqPurger, time.Hour, 24*time.Hour, zapLogger)
		go func() {
			if err := dlqGC.Start(bgCtx); err != nil && !errors.Is(err, context.Canceled) {
				zapLogger.Error("dlq_garbage_collector_stopped_with_error", zap.Error(err))
			}
		}()
		zapLogger.Info("started_dlq_garbage_collector",
			zap.Duration("interval", time.Hour),
			zap.Duration("retention", 24*time.Hour),
		)
	}

	// Without a worker fleet the API keeps the leaderboard cache warm itself
	if jobQueue == nil && redisClient != nil {
		scheduler := workers.NewLeaderboardScheduler(leaderboardService, nil, cfg.LeaderboardRefreshInterval, zapLogger)
		go func() {
			if err := scheduler.Start(bgCtx); err != nil && !errors.Is(err, context.Canceled) {
				zapLogger.Error("leaderboard_scheduler_stopped_with_error", zap.Error(err))
			}
		}()
	}

	go func() {
		zapLogger.Info("server_starting", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("server_failed_to_start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("server_shutting_down")
	bgCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("server_forced_to_shutdown", zap.Error(err))
	}

	zapLogger.Info("server_exited")
}

// connectRabbitMQ retries with exponential backoff to ride out broker startup
func connectRabbitMQ(url string, zapLogger *zap.Logger) *queue.RabbitMQQueue {
	const maxRetries = 10
	const initialDelay = 2 * time.Second

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		q, err := queue.NewRabbitMQQueue(url, zapLogger)
		if err == nil {
			zapLogger.Info("connected_to_rabbitmq")
			return q
		}
		lastErr = err

		delay := min(initialDelay*time.Duration(1<<uint(attempt)), 30*time.Second)
		zapLogger.Warn("failed_to_connect_to_rabbitmq_retrying",
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", maxRetries),
			zap.Duration("retry_delay", delay),
			zap.Error(err),
		)
		time.Sleep(delay)
	}

	zapLogger.Fatal("failed_to_connect_to_rabbitmq_after_retries",
		zap.Int("max_retries", maxRetries),
		zap.Error(lastErr),
	)
	return nil
}

// newHealthChecker keeps nil clients out of the interfaces so they report as disabled
func newHealthChecker(db *database.DB, redisClient *redis.Client, jobQueue queue.JobQueue) *handlers.HealthChecker {
	var redisPinger handlers.RedisPinger
	if redisClient != nil {
		redisPinger = redisClient
	}
	var queueChecker handlers.QueueChecker
	if jobQueue != nil {
		queueChecker = jobQueue
	}
	return handlers.NewHealthCheckerWithDeps(db, redisPinger, queueChecker)
}
