package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/timmy/transformer/internal/api"
	"github.com/timmy/transformer/internal/catalog"
	"github.com/timmy/transformer/internal/config"
	"github.com/timmy/transformer/internal/engine"
	"github.com/timmy/transformer/internal/logger"
	"github.com/timmy/transformer/internal/project"
	"github.com/timmy/transformer/internal/queue"
	"github.com/timmy/transformer/internal/repository"
	"github.com/timmy/transformer/internal/service"
	"github.com/timmy/transformer/internal/storage"
	"github.com/timmy/transformer/internal/target"
)

const (
	projectFetchTimeout = 2 * time.Minute
	shutdownTimeout     = 10 * time.Second
)

func main() {
	appLogger := logger.NewDefault()
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// CONFIG_PATH is used when no flag is given
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		appLogger.WithError(err).Fatal("Invalid configuration")
	}

	db, err := repository.InitDB(&cfg.Database, appLogger)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}
	jobRepo := repository.NewJobRepository(db)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if n, err := jobRepo.FailStale(ctx, "interrupted by service restart"); err != nil {
		appLogger.WithError(err).Warn("Failed to mark interrupted jobs")
	} else if n > 0 {
		appLogger.WithField(logger.FieldCount, n).Warn("Marked interrupted jobs as failed")
	}

	cat := catalog.FromConfig(&cfg.Catalog)
	resolver := target.NewResolver(cat, target.Options{
		FallbackProviderID: cfg.Transformer.FallbackProviderID,
		FallbackFilename:   cfg.Transformer.FallbackFilename,
	})
	loader := project.NewLoader(project.NewFetcher(projectFetchTimeout), cfg.Transformer.MaxProjectSizeMB<<20)
	hale := engine.NewCommand(cfg.Transformer.Engine.Command, cfg.Transformer.Engine.Args...)

	coordinator := service.NewCoordinator(
		hale,
		loader,
		resolver,
		storage.NewS3Publisher(),
		service.TempWorkspace{Root: cfg.Transformer.WorkDir},
		appLogger,
		&service.CoordinatorConfig{
			WaitTimeout:      cfg.Transformer.WaitTimeout,
			OutputDir:        cfg.Transformer.OutputDir,
			SourceProviderID: cfg.Transformer.SourceProviderID,
			DefaultSourceCRS: cfg.Transformer.DefaultSourceCRS,
			DetailedReports:  cfg.Transformer.DetailedReports,
		},
	)
	dispatcher := service.NewDispatcher(coordinator, jobRepo, appLogger, cfg.Transformer.QueueSize)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = dispatcher.Run(ctx)
	}()

	if cfg.AMQP.Enabled {
		consumer := queue.NewConsumer(&cfg.AMQP, dispatcher, appLogger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = consumer.Run(ctx)
		}()
	}

	var srv *http.Server
	if cfg.Server.Enabled {
		router := api.SetupRouter(dispatcher, jobRepo, &cfg.Server, appLogger)
		srv = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			appLogger.WithFields(logger.Fields{
				"port": cfg.Server.Port,
				"mode": cfg.Server.Mode,
			}).Info("Starting API server")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				appLogger.WithError(err).Error("API server failed")
				stop()
			}
		}()
	}

	appLogger.WithFields(logger.Fields{
		"engine":       cfg.Transformer.Engine.Command,
		"wait_timeout": cfg.Transformer.WaitTimeout.String(),
		"amqp":         cfg.AMQP.Enabled,
		"http":         cfg.Server.Enabled,
	}).Info("Transformer started")

	<-ctx.Done()
	appLogger.Info("Shutting down...")

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			appLogger.WithError(err).Error("Server forced to shutdown")
		}
		cancel()
	}

	wg.Wait()
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	appLogger.Info("Transformer exited")
}
