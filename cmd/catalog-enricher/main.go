package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maltedev/catalog-enricher/internal/api"
	"github.com/maltedev/catalog-enricher/internal/app"
	"github.com/maltedev/catalog-enricher/internal/config"
	"github.com/maltedev/catalog-enricher/pkg/logger"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	handlers := api.NewHandlers(ctx, a.Registry, a.Runner, a.Store, api.Options{
		UploadsPerMinute: cfg.Server.UploadRatePerMinute,
		MaxUploadBytes:   cfg.Server.MaxUploadBytes,
	}, logger)

	server := &http.Server{
		Addr: fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler: api.NewRouter(handlers, api.RouterOptions{
			AllowedOrigins: cfg.Server.CORSOrigins,
			RequestTimeout: cfg.Server.ReadTimeout,
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}()

	logger.Info("server starting",
		"addr", server.Addr,
		"backend", cfg.Scraper.Backend,
		"batch_size", cfg.Scraper.BatchSize,
	)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	cancel()
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer waitCancel()
	if err := a.Runner.Wait(waitCtx); err != nil {
		logger.Warn("jobs did not finish before shutdown", "error", err)
	}

	logger.Info("server stopped")
}
