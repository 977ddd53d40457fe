package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"minho/internal/app"
)

var (
	runMetricsAddr string
	runNoBanner    bool
)

// runCmd boots the full runtime and keeps it running until SIGINT or
// SIGTERM.
var runCmd = &cobra.Command{
	Use:   "run [location...]",
	Short: "Start the runtime and keep it running",
	Long: `Starts the minho runtime with its default services, installs the
configured applications, any locations given as arguments and whatever
is found in the deploy directory, then runs until interrupted.

A location is a file path, an http(s) URL or an mvn: coordinate such as
mvn:org.example/app/1.0/zip.

Configuration:
  minho reads minho.properties, minho.json, minho.yaml and minho.toml from
  the --config-path directory (default: the working directory), or the
  single file given with --config. Properties can be overridden with
  --set key=value and with environment variables such as MINHO_DEPLOY for
  minho.deploy.`,
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg := newAppConfig()
	cfg.MetricsAddr = runMetricsAddr
	cfg.NoBanner = runNoBanner
	cfg.Install = args
	cfg.Out = cmd.OutOrStdout()

	application, err := app.NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return application.Run(ctx)
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	runCmd.Flags().BoolVar(&runNoBanner, "no-banner", false, "Do not print the startup banner")
}
