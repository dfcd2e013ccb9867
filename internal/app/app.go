// Package app assembles the runner and its optional backends from config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/maltedev/catalog-enricher/internal/browser"
	"github.com/maltedev/catalog-enricher/internal/cache"
	"github.com/maltedev/catalog-enricher/internal/config"
	"github.com/maltedev/catalog-enricher/internal/database"
	"github.com/maltedev/catalog-enricher/internal/events"
	"github.com/maltedev/catalog-enricher/internal/jobs"
	"github.com/maltedev/catalog-enricher/internal/llm"
	"github.com/maltedev/catalog-enricher/internal/parser"
	"github.com/maltedev/catalog-enricher/internal/ratelimit"
	"github.com/maltedev/catalog-enricher/internal/retry"
	"github.com/maltedev/catalog-enricher/internal/scraper"
	"github.com/maltedev/catalog-enricher/internal/sheet"
	"github.com/maltedev/catalog-enricher/internal/storage"
)

type App struct {
	Registry *jobs.MemoryRegistry
	Runner   *jobs.Runner
	Store    *storage.Local

	closers []func() error
	logger  *slog.Logger
}

// New connects every configured backend. On error, whatever was already
// opened is closed again.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (app *App, err error) {
	app = &App{
		Registry: jobs.NewMemoryRegistry(),
		logger:   logger,
	}
	defer func() {
		if err != nil {
			app.Close()
			app = nil
		}
	}()

	app.Store, err = storage.NewLocal(cfg.Storage.OutputDir, cfg.Storage.UploadDir)
	if err != nil {
		return app, err
	}

	pacer := ratelimit.NewPacer(cfg.Pacing.Ranges())

	var lookuper scraper.Lookuper
	switch cfg.Scraper.Backend {
	case config.BackendLLM:
		lookuper, err = app.llmBackend(cfg)
	default:
		lookuper, err = app.browserBackend(cfg, pacer)
	}
	if err != nil {
		return app, err
	}

	opts := []jobs.RunnerOption{}

	if cfg.Redis.Enabled() {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		app.closers = append(app.closers, client.Close)

		if err := client.Ping(ctx).Err(); err != nil {
			return app, fmt.Errorf("failed to connect to Redis: %w", err)
		}

		lookuper = cache.NewLookupCache(lookuper, client, cfg.Redis.CacheTTL, logger)
		opts = append(opts, jobs.WithPublisher(events.NewStreamPublisher(client, cfg.Redis.Stream, logger)))
		logger.Info("redis enabled", "addr", cfg.Redis.Addr, "stream", cfg.Redis.Stream)
	}

	if cfg.Database.ArchiveEnabled {
		db, err := database.New(ctx, database.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			Database: cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
			MaxConns: int32(cfg.Database.MaxConns),
		})
		if err != nil {
			return app, fmt.Errorf("failed to connect to database: %w", err)
		}
		app.closers = append(app.closers, func() error { db.Close(); return nil })

		archive := database.NewArchive(db, logger)
		if err := archive.EnsureSchema(ctx); err != nil {
			return app, err
		}
		opts = append(opts, jobs.WithArchive(archive))
		logger.Info("job archive enabled", "database", cfg.Database.DBName)
	}

	if cfg.Minio.Enabled() {
		mirror, err := storage.NewMirror(storage.MinioConfig{
			Endpoint:  cfg.Minio.Endpoint,
			AccessKey: cfg.Minio.AccessKey,
			SecretKey: cfg.Minio.SecretKey,
			Bucket:    cfg.Minio.Bucket,
			UseSSL:    cfg.Minio.UseSSL,
			URLExpiry: cfg.Minio.URLExpiry,
		}, logger)
		if err != nil {
			return app, err
		}
		if err := mirror.EnsureBucket(ctx); err != nil {
			return app, err
		}
		opts = append(opts, jobs.WithMirror(mirror))
		logger.Info("artifact mirror enabled", "endpoint", cfg.Minio.Endpoint, "bucket", cfg.Minio.Bucket)
	}

	var fetcher sheet.ImageFetcher
	if cfg.Scraper.EmbedImages {
		fetcher = sheet.NewHTTPFetcher(cfg.Scraper.ImageTimeout, cfg.Browser.UserAgent)
	}
	writer := sheet.NewWriter(fetcher, cfg.Scraper.ImagesPerRow, logger)

	app.Runner = jobs.NewRunner(app.Registry, lookuper, pacer, writer, app.Store, cfg.Scraper.BatchSize, logger, opts...)
	return app, nil
}

func (a *App) browserBackend(cfg *config.Config, pacer *ratelimit.Pacer) (scraper.Lookuper, error) {
	opts := browser.DefaultOptions()
	opts.Headless = cfg.Browser.Headless
	opts.Timeout = cfg.Browser.Timeout
	opts.ViewportWidth = cfg.Browser.ViewportWidth
	opts.ViewportHeight = cfg.Browser.ViewportHeight
	opts.AcceptLanguage = cfg.Browser.AcceptLanguage
	opts.TimezoneID = cfg.Browser.TimezoneID
	opts.Locale = cfg.Browser.Locale
	opts.ProxyServer = cfg.Browser.ProxyServer
	if cfg.Browser.UserAgent != "" {
		opts.UserAgent = cfg.Browser.UserAgent
	}

	b, err := browser.New(opts, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize browser: %w", err)
	}
	a.closers = append(a.closers, b.Close)

	driverOpts := scraper.DefaultOptions()
	driverOpts.BaseURL = cfg.Scraper.BaseURL
	driverOpts.ElementWait = cfg.Scraper.ElementWait
	driverOpts.CookieWait = cfg.Scraper.CookieWait
	driverOpts.Retry = retry.NewPolicy(cfg.Scraper.RetryDelay, cfg.Scraper.MaxRetries)

	return scraper.NewDriver(b, parser.NewAmazonParser(a.logger), pacer, driverOpts, a.logger), nil
}

func (a *App) llmBackend(cfg *config.Config) (scraper.Lookuper, error) {
	completer, err := llm.NewOpenAICompleter(llm.ClientOptions{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	})
	if err != nil {
		return nil, err
	}
	return llm.NewBackend(completer, retry.NewPolicy(cfg.Scraper.RetryDelay, cfg.Scraper.MaxRetries), a.logger), nil
}

// Close releases backends in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
