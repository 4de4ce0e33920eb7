// Command server runs the marketplace backend: the REST negotiation API, the
// chat and message services, and the websocket event channel, all on one HTTP
// listener.
//
// Startup order: env → config → logging → tracing → database → hub → router →
// HTTP server. Shutdown drains in-flight requests before flushing traces.
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
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-market-backend/internal/config"
	httpapi "github.com/tbourn/go-market-backend/internal/http"
	"github.com/tbourn/go-market-backend/internal/observability"
	"github.com/tbourn/go-market-backend/internal/repo"
	"github.com/tbourn/go-market-backend/internal/sysutil"
	"github.com/tbourn/go-market-backend/internal/ws"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// .env is optional; real deployments configure through the environment.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	// Logging
	sysutil.SetLogLevel(cfg.LogLevel)
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	// Tracing
	ctx := context.Background()
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	// Persistence
	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("database open failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	// Event channel hub
	hub := ws.NewHub()

	// HTTP transport
	gin.SetMode(cfg.GinMode)
	engine := gin.New()
	httpapi.RegisterRoutes(engine, db, hub, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown failed")
	}

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info().Msg("bye")
}
