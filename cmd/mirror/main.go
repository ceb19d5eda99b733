package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sangkips/tillsync/internal/config"
	"github.com/sangkips/tillsync/internal/infrastructure/database"
	"github.com/sangkips/tillsync/internal/logger"
	"github.com/sangkips/tillsync/internal/mirror"
	"github.com/sangkips/tillsync/pkg/utils"
)

func main() {
	cfg := config.Load(os.Getenv("TILLSYNC_CONFIG"))
	log := logger.New(cfg.Log.Level, cfg.Log.Format).With().Str("service", "mirror").Logger()

	if cfg.Mirror.ClientSecretHash == "" {
		log.Fatal().Msg("MIRROR_CLIENT_SECRET_HASH is required")
	}

	db, err := database.NewSQLiteDB(cfg.Mirror.DatabasePath, cfg.App.Debug)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open mirror database")
	}
	if err := mirror.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate mirror database")
	}

	jwt := utils.NewJWTManager(cfg.Mirror.JWTSecret, "tillsync-mirror", cfg.Mirror.TokenTTL)
	tokens := mirror.NewTokenIssuer(cfg.Mirror.ClientID, cfg.Mirror.ClientSecretHash, jwt, log)
	router := mirror.NewRouter(mirror.NewStore(db, log), tokens, log)

	srv := &http.Server{
		Addr:              ":" + cfg.Mirror.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info().Str("port", cfg.Mirror.Port).Str("db", cfg.Mirror.DatabasePath).Msg("mirror listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start mirror")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("mirror shutdown failed")
	}
	log.Info().Msg("mirror stopped")
}
