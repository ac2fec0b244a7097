// Package cli contains the sessiond commands.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/medisync/session-gateway/internal/pkg/config"
	"github.com/medisync/session-gateway/pkg/logger"
)

var (
	cfg     *config.Config
	log     zerolog.Logger
	verbose bool
	version = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "sessiond",
	Short: "Clinic session gateway",
	Long: `sessiond issues, verifies and revokes clinic sessions.

Configuration is read from the environment (see SESSION_SECRET, IDP_*, MONGO_*,
REDIS_* and GATE_*).

Example usage:
  sessiond serve                                       # Run the HTTP gateway
  sessiond claims set UID --tenant clinic-1 --role admin  # Bootstrap an administrator
  sessiond revoke UID                                  # Sign UID out everywhere`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig(cmd.Context())
	},
}

// Execute runs the root command with ctx.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// SetVersion sets the version string reported by the CLI.
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.AddCommand(serveCmd, claimsCmd, revokeCmd)
}

func initConfig(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var err error
	cfg, err = config.Load(ctx)
	if err != nil {
		return err
	}

	level := cfg.LogLevel
	if verbose {
		level = "debug"
	}
	log = logger.Init(logger.Options{
		Level:   level,
		Pretty:  !cfg.IsProduction(),
		Output:  os.Stderr,
		Service: "sessiond",
	})
	return nil
}

func printf(cmd *cobra.Command, format string, args ...any) {
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
