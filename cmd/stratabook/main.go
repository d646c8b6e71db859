// cmd/stratabook/main.go
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "stratabook",
		Short: "StrataBook account and onboarding service",
		Long:  "Sign-in, onboarding and profile API for StrataBook. Configuration comes from STRATABOOK_* variables, config files or --key=value flags.",
		// Config flags are parsed by the config loader, not cobra.
		FParseErrWhitelist: cobra.FParseErrWhitelist{UnknownFlags: true},
		SilenceUsage:       true,
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newEnsureSchemaCmd())
	rootCmd.AddCommand(newCheckDNICmd())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger() (*zap.Logger, error) {
	if os.Getenv("STRATABOOK_ENV") == "dev" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// configFlags lets subcommands accept the loader's --key=value flags.
func configFlags(cmd *cobra.Command) *cobra.Command {
	cmd.FParseErrWhitelist = cobra.FParseErrWhitelist{UnknownFlags: true}
	return cmd
}
