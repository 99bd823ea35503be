package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/OpenFieldOps/open-job-api/internal/access"
	"github.com/OpenFieldOps/open-job-api/internal/api"
	"github.com/OpenFieldOps/open-job-api/internal/api/middleware"
	"github.com/OpenFieldOps/open-job-api/internal/auth"
	"github.com/OpenFieldOps/open-job-api/internal/broker"
	"github.com/OpenFieldOps/open-job-api/internal/chat"
	"github.com/OpenFieldOps/open-job-api/internal/config"
	"github.com/OpenFieldOps/open-job-api/internal/files"
	"github.com/OpenFieldOps/open-job-api/internal/gateway"
	"github.com/OpenFieldOps/open-job-api/internal/handlers"
	"github.com/OpenFieldOps/open-job-api/internal/job"
	"github.com/OpenFieldOps/open-job-api/internal/notification"
	"github.com/OpenFieldOps/open-job-api/internal/realtime"
	"github.com/OpenFieldOps/open-job-api/internal/store"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx := context.Background()

	// Run migrations
	logger.Info().Msg("running database migrations...")
	if err := store.RunMigrations(cfg.DatabaseURL); err != nil {
		logger.Fatal().Err(err).Msg("migration failed")
	}
	logger.Info().Msg("migrations completed")

	// Initialize PostgreSQL store
	pgStore, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection failed")
	}
	defer pgStore.Close()
	logger.Info().Msg("connected to PostgreSQL")

	// Initialize the event broker. Redis fans events out across
	// instances; without REDIS_URL a single-process broker is used.
	var (
		eventBroker broker.Broker
		brokerPing  handlers.Pinger
		limiter     *middleware.RateLimiter
	)
	if cfg.RedisURL != "" {
		redisBroker, err := broker.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisBroker.Close()
		logger.Info().Msg("connected to Redis")

		eventBroker = redisBroker
		brokerPing = redisBroker
		limiter = middleware.NewRateLimiter(redisBroker.Client(), logger)
	} else {
		logger.Warn().Msg("REDIS_URL not set, using in-process broker")
		mem := broker.NewMemory()
		eventBroker = mem
		brokerPing = mem
	}

	// Attachment storage
	fileStore, err := files.NewDiskStore(cfg.UploadDir, cfg.UploadBaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("upload directory unavailable")
	}

	// Realtime core: registry of open user connections, router for
	// local-or-broker event delivery, websocket gateway.
	verifier := auth.NewJWTVerifier(cfg.JWTSecret)
	resolver := access.NewResolver(pgStore)
	registry := realtime.NewRegistry()
	router := realtime.NewRouter(registry, eventBroker, logger)

	routerSub, err := router.Start(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("user-events subscription failed")
	}
	defer routerSub.Unsubscribe()

	gw := gateway.New(verifier, resolver, registry, eventBroker, logger)

	// Domain services
	chatSvc := chat.NewService(pgStore, resolver, eventBroker, fileStore, logger)
	notifSvc := notification.NewService(pgStore, router, logger)
	jobSvc := job.NewService(pgStore, resolver, router, logger)

	h := handlers.NewHandler(chatSvc, jobSvc, notifSvc, pgStore, brokerPing)

	// Create router
	mux := api.NewRouter(api.Deps{
		Logger:   logger,
		Handler:  h,
		Verifier: verifier,
		Gateway:  gw,
		Limiter:  limiter,
		Files:    fileStore,
	})

	// Create server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting open-job server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}
