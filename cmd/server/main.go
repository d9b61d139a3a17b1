package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "helpdesk/docs"
	"helpdesk/internal/app"
	"helpdesk/internal/config"
	"helpdesk/internal/server"
)

const shutdownTimeout = 15 * time.Second

// @title Helpdesk API
// @version 1.0
// @description Knowledge base chat, ticket routing and staff desk
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	// Load configuration
	cfg := config.Load()

	// Setup logger
	logger := cfg.SetupLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer application.Close()

	if err := application.SLA.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start SLA checker")
	}
	defer application.SLA.Stop()

	// Create and initialize server
	srv := server.New(cfg, application.DB, application.ServerServices(), logger)
	srv.Initialize()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Server failed")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown failed")
	}
}
