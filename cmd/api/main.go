package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sangkips/tillsync/internal/application/service"
	"github.com/sangkips/tillsync/internal/bootstrap"
	"github.com/sangkips/tillsync/internal/config"
	"github.com/sangkips/tillsync/internal/infrastructure/repository"
	"github.com/sangkips/tillsync/internal/logger"
	"github.com/sangkips/tillsync/internal/presentation/http/handler"
	"github.com/sangkips/tillsync/internal/presentation/http/middleware"
	"github.com/sangkips/tillsync/internal/presentation/http/routes"
	"github.com/sangkips/tillsync/internal/scheduler"
	"github.com/sangkips/tillsync/pkg/utils"
)

func main() {
	// Load configuration
	cfg := config.Load(os.Getenv("TILLSYNC_CONFIG"))
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	// Set Gin mode based on environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to database and run migrations
	db, err := bootstrap.OpenDatabase(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	publisher, closePublisher := bootstrap.NewPublisher(cfg, log)
	defer closePublisher()

	// Initialize repositories
	tx := repository.NewTransactor(db)
	receiptRepo := repository.NewReceiptRepository(db)
	saleRepo := repository.NewSaleRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	partialRepo := repository.NewPartialPaymentRepository(db)
	productRepo := repository.NewProductRepository(db)
	customerRepo := repository.NewCustomerRepository(db)
	creditRepo := repository.NewStoreCreditRepository(db)
	idempotencyRepo := repository.NewIdempotencyRepository(db)

	// Initialize services
	creditService := service.NewStoreCreditService(tx, creditRepo, customerRepo, publisher, log)
	settlementService := service.NewSettlementService(tx, receiptRepo, paymentRepo, partialRepo, creditService, publisher, log)
	checkoutService := service.NewCheckoutService(tx, receiptRepo, saleRepo, paymentRepo, productRepo, customerRepo, settlementService, log)

	syncJob, closeSync, err := bootstrap.NewSyncJob(ctx, cfg, db, registry, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build sync job")
	}
	defer closeSync()

	// Background jobs
	sched := scheduler.New(log)
	if err := sched.AddSync(cfg.Sync.Schedule, syncJob); err != nil {
		log.Fatal().Err(err).Msg("failed to schedule sync")
	}
	if err := sched.AddIdempotencySweep(cfg.Maintenance.IdempotencyCleanupSchedule, idempotencyRepo); err != nil {
		log.Fatal().Err(err).Msg("failed to schedule idempotency sweep")
	}
	sched.Start()

	requests := cfg.RateLimit.Requests
	window := time.Duration(cfg.RateLimit.Duration) * time.Second
	limiter := middleware.NewActorRateLimiter(middleware.RateLimiterConfig{
		RequestsPerSecond: float64(requests) / window.Seconds(),
		BurstSize:         requests,
		EntryTTL:          10 * time.Minute,
	})
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				limiter.Cleanup()
			}
		}
	}()

	handlers := &routes.Handlers{
		Receipt:     handler.NewReceiptHandler(checkoutService),
		Settlement:  handler.NewSettlementHandler(settlementService),
		StoreCredit: handler.NewStoreCreditHandler(creditService),
		Sync:        handler.NewSyncHandler(syncJob),
	}

	router := routes.Setup(handlers, &routes.Deps{
		JWTManager:      utils.NewJWTManager(cfg.JWT.Secret, cfg.App.Name, cfg.JWT.ExpiryHours),
		Cfg:             cfg,
		IdempotencyRepo: idempotencyRepo,
		RateLimiter:     limiter,
		Gatherer:        registry,
		Log:             log,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.App.Port).Str("env", cfg.App.Env).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("scheduler did not stop in time")
	}
	log.Info().Msg("server stopped")
}
