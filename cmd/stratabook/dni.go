// cmd/stratabook/dni.go
package main

import (
	"context"
	"fmt"

	profilestore "github.com/dalemusser/stratabook/internal/app/store/profiles"
	"github.com/dalemusser/stratabook/internal/app/system/profileval"
	"github.com/spf13/cobra"
)

func newCheckDNICmd() *cobra.Command {
	return configFlags(&cobra.Command{
		Use:   "check-dni <dni>",
		Short: "Report whether a DNI is free to register",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dni := args[0]
			if code := profileval.ValidateDNI(dni); code != "" {
				return fmt.Errorf("invalid DNI %q: %s", dni, code)
			}

			logger, err := newLogger()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			return withDeps(cmd.Context(), logger, func(ctx context.Context, env depsEnv) error {
				available, err := profilestore.New(env.deps.MongoDatabase, logger).DNIAvailable(ctx, dni)
				if err != nil {
					return fmt.Errorf("check dni: %w", err)
				}
				if available {
					fmt.Fprintf(cmd.OutOrStdout(), "%s is available\n", dni)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "%s is already registered\n", dni)
				}
				return nil
			})
		},
	})
}
