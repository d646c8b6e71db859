// cmd/stratabook/serve.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/dalemusser/stratabook/internal/app/bootstrap"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func newServeCmd() *cobra.Command {
	return configFlags(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, logger)
		},
	})
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// serve runs the bootstrap hooks in lifecycle order and blocks until ctx
// is cancelled.
func serve(ctx context.Context, logger *zap.Logger) error {
	coreCfg, appCfg, err := bootstrap.Hooks.LoadConfig(logger)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := bootstrap.Hooks.ValidateConfig(coreCfg, appCfg, logger); err != nil {
		return err
	}

	connectCtx, cancel := context.WithTimeout(ctx, orDefault(coreCfg.DBConnectTimeout, 10*time.Second))
	deps, err := bootstrap.Hooks.ConnectDB(connectCtx, coreCfg, appCfg, logger)
	cancel()
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	shutdown := func() {
		sctx, cancel := context.WithTimeout(context.Background(), orDefault(coreCfg.HTTP.ShutdownTimeout, 10*time.Second))
		defer cancel()
		if err := bootstrap.Hooks.Shutdown(sctx, coreCfg, appCfg, deps, logger); err != nil {
			logger.Warn("shutdown finished with errors", zap.Error(err))
		}
	}
	defer shutdown()

	schemaCtx, cancel := context.WithTimeout(ctx, orDefault(coreCfg.IndexBootTimeout, time.Minute))
	err = bootstrap.Hooks.EnsureSchema(schemaCtx, coreCfg, appCfg, deps, logger)
	cancel()
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	if err := bootstrap.Hooks.Startup(ctx, coreCfg, appCfg, deps, logger); err != nil {
		return fmt.Errorf("startup: %w", err)
	}

	handler, err := bootstrap.Hooks.BuildHandler(coreCfg, appCfg, deps, logger)
	if err != nil {
		return fmt.Errorf("build handler: %w", err)
	}

	port := coreCfg.HTTP.HTTPPort
	if port == 0 {
		port = 8080
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadTimeout:       coreCfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: orDefault(coreCfg.HTTP.ReadHeaderTimeout, 10*time.Second),
		WriteTimeout:      coreCfg.HTTP.WriteTimeout,
		IdleTimeout:       coreCfg.HTTP.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", zap.String("app", bootstrap.Hooks.Name),
			zap.String("addr", srv.Addr), zap.String("env", coreCfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		sctx, cancel := context.WithTimeout(context.Background(), orDefault(coreCfg.HTTP.ShutdownTimeout, 10*time.Second))
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}
