package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/savedobjects/internal/config"
	dbRedis "github.com/kailas-cloud/savedobjects/internal/db/redis"
	domso "github.com/kailas-cloud/savedobjects/internal/domain/savedobject"
	"github.com/kailas-cloud/savedobjects/internal/domain/savedobject/registry"
	logpkg "github.com/kailas-cloud/savedobjects/internal/logger"
	"github.com/kailas-cloud/savedobjects/internal/metrics"
	objectrepo "github.com/kailas-cloud/savedobjects/internal/repository/savedobject"
	sessionrepo "github.com/kailas-cloud/savedobjects/internal/repository/searchsession"
	chiTransport "github.com/kailas-cloud/savedobjects/internal/transport/chi"
	healthuc "github.com/kailas-cloud/savedobjects/internal/usecase/health"
	objectuc "github.com/kailas-cloud/savedobjects/internal/usecase/savedobject"
	searchuc "github.com/kailas-cloud/savedobjects/internal/usecase/search"
	"github.com/kailas-cloud/savedobjects/internal/version"
)

// Strategy names served under /internal/search/{strategy}.
const (
	strategyFTS     = "fts"
	strategyAsync   = "async"
	strategyDefault = "default"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(ctx context.Context) error {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting savedobjects API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	types, err := buildRegistry(cfg.Types)
	if err != nil {
		return err
	}

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Username: cfg.Database.Username,
		Password: cfg.Database.Password,
		DB:       cfg.Database.DB,
	})
	if err != nil {
		return fmt.Errorf("create database store: %w", err)
	}
	defer store.Close()

	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		return fmt.Errorf("database not ready: %w", err)
	}
	logger.Info("Connected to database")

	objectRepo := objectrepo.New(store, types, cfg.Storage.KeyPrefix)
	if err := objectRepo.EnsureIndex(ctx); err != nil {
		return fmt.Errorf("ensure index: %w", err)
	}
	// type and namespace names start alphanumeric, so "_" cannot collide with object keys
	sessions := sessionrepo.New(store, cfg.Storage.KeyPrefix+"_async_search:")

	objectSvc := objectuc.New(objectRepo, types).
		WithPagination(cfg.Pagination.DefaultPerPage, cfg.Pagination.MaxPerPage)

	fts := searchuc.NewFTS(store, objectRepo.IndexName(), cfg.Storage.KeyPrefix).
		WithMaxSize(cfg.Search.MaxSize)
	async := searchuc.NewAsync(fts, sessions, cfg.Search.AsyncWait(), cfg.Search.AsyncTTL()).
		WithLogger(logger.Named("async_search"))
	defer async.Close()

	strategies := searchuc.NewRegistry()
	strategies.Register(strategyFTS, fts)
	strategies.Register(strategyAsync, async)
	if cfg.Search.DefaultStrategy == strategyAsync {
		strategies.Register(strategyDefault, async)
	} else {
		strategies.Register(strategyDefault, fts)
	}

	healthSvc := healthuc.New(store, store, objectRepo.IndexName())

	server := chiTransport.NewServer(objectSvc, strategies, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	chiTransport.HandlerWithOptions(server, chiTransport.ServerOptions{
		BaseRouter:       r,
		ErrorHandlerFunc: invalidParamHandler,
	})

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-sigCtx.Done():
		logger.Info("Received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
	return nil
}

// buildRegistry turns the configured type list into the type registry.
func buildRegistry(cfg []config.TypeConfig) (*registry.Registry, error) {
	defs := make([]registry.TypeDef, 0, len(cfg))
	for _, tc := range cfg {
		defs = append(defs, registry.TypeDef{
			Name:          tc.Name,
			NamespaceType: domso.NamespaceType(tc.NamespaceType),
			Hidden:        tc.Hidden,
		})
	}
	types, err := registry.New(defs)
	if err != nil {
		return nil, fmt.Errorf("build type registry: %w", err)
	}
	return types, nil
}
