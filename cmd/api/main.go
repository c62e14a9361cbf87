package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"clinic-auth-service/config"
	httpHandler "clinic-auth-service/internal/adapter/http/handler"
	"clinic-auth-service/internal/adapter/messaging/rabbitmq"
	pgStorage "clinic-auth-service/internal/adapter/storage/postgres"
	redisStorage "clinic-auth-service/internal/adapter/storage/redis"
	"clinic-auth-service/internal/core/ports"
	"clinic-auth-service/internal/service"
	"clinic-auth-service/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Msg("Starting Clinic Auth Service")

	ctx := context.Background()

	// Initialize PostgreSQL pool
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	// Initialize Redis client
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	// Initialize RabbitMQ client (declares exchange, audit queue and DLX)
	broker, err := rabbitmq.NewClient(cfg.Broker, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to RabbitMQ")
	}
	defer broker.Close()
	log.Info().Str("exchange", cfg.Broker.Exchange).Msg("RabbitMQ connected")

	// Initialize repositories
	userRepo := pgStorage.NewUserRepo(pool)
	tokenRepo := pgStorage.NewRefreshTokenRepo(pool)
	auditRepo := pgStorage.NewAuditRecordRepo(pool)
	transactor := pgStorage.NewTransactor(pool)

	// Initialize core services
	hashSvc := service.NewArgon2HashService()
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.AccessExpiry, cfg.JWT.Issuer)
	publisher := rabbitmq.NewPublisher(broker)

	// Initialize business services
	authSvc := service.NewAuthService(userRepo, tokenRepo, transactor, hashSvc, tokenSvc, publisher, cfg.Broker.PublishTimeout, log)
	auditSvc := service.NewAuditService(auditRepo, log)

	// Initialize rate limit store
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	// Initialize health checkers
	pgHealth := pgStorage.NewHealthCheck(pool)
	redisHealth := redisStorage.NewHealthCheck(rdb)
	brokerHealth := rabbitmq.NewHealthCheck(broker)

	// Start the audit consumer; it projects events from the audit queue into
	// the ledger and dead-letters deliveries it cannot persist.
	consumer := rabbitmq.NewAuditConsumer(broker, cfg.Broker.AuditQueue, auditSvc, logger.Component(log, "audit-consumer"))
	consumerCtx, stopConsumer := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := consumer.Run(consumerCtx); err != nil {
			log.Error().Err(err).Msg("audit consumer stopped")
		}
	}()

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		AuthSvc:        authSvc,
		AuditSvc:       auditSvc,
		TokenSvc:       tokenSvc,
		RateLimitStore: rateLimitStore,
		HealthCheckers: []ports.HealthChecker{pgHealth, redisHealth, brokerHealth},
		Logger:         log,
	})

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop the consumer after the HTTP server so in-flight requests can
	// still publish events that the consumer picks up.
	stopConsumer()
	wg.Wait()

	log.Info().Msg("Server exited")
}
