// cmd/stratabook/schema.go
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/dalemusser/stratabook/internal/app/bootstrap"
	"github.com/dalemusser/waffle/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newEnsureSchemaCmd() *cobra.Command {
	return configFlags(&cobra.Command{
		Use:   "ensure-schema",
		Short: "Create collections, validators and indexes, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			return withDeps(cmd.Context(), logger, func(ctx context.Context, env depsEnv) error {
				schemaCtx, cancel := context.WithTimeout(ctx, orDefault(env.core.IndexBootTimeout, time.Minute))
				defer cancel()
				if err := bootstrap.Hooks.EnsureSchema(schemaCtx, env.core, env.app, env.deps, logger); err != nil {
					return fmt.Errorf("ensure schema: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "schema ensured")
				return nil
			})
		},
	})
}

type depsEnv struct {
	core *config.CoreConfig
	app  bootstrap.AppConfig
	deps bootstrap.DBDeps
}

// withDeps loads config, connects, runs fn and disconnects.
func withDeps(ctx context.Context, logger *zap.Logger, fn func(ctx context.Context, env depsEnv) error) error {
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
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = bootstrap.Hooks.Shutdown(sctx, coreCfg, appCfg, deps, logger)
	}()

	return fn(ctx, depsEnv{core: coreCfg, app: appCfg, deps: deps})
}
