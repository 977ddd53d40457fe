package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"minho/internal/app"
	"minho/internal/shell"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Start the runtime with an interactive console",
	Long: `Starts the runtime and opens an interactive console to install,
inspect and remove modules, resolve coordinates and show the services.
Leaving the console with exit or Ctrl+D shuts the runtime down.`,
	Args: cobra.NoArgs,
	RunE: runShell,
}

func runShell(cmd *cobra.Command, args []string) (err error) {
	cfg := newAppConfig()
	cfg.Wait = false
	cfg.NoBanner = true
	cfg.Out = cmd.OutOrStdout()

	application, err := app.NewApplication(cfg)
	if err != nil {
		return err
	}
	rt := application.Runtime()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	defer func() {
		err = errors.Join(err, rt.Close())
	}()
	if err := rt.Start(ctx); err != nil {
		return err
	}

	sh, err := shell.New(rt.Registry(), rt.Sequence, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	return sh.Run(ctx)
}

func init() {
	rootCmd.AddCommand(shellCmd)
}
