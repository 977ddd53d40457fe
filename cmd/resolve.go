package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"minho/internal/app"
	"minho/internal/coordinate"
	"minho/internal/formatting"
	"minho/internal/services"
	"minho/internal/shell"
)

var (
	resolveOutput string
	resolveQuiet  bool
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <coordinate>...",
	Short: "Resolve mvn: coordinates to local files",
	Long: `Resolves each coordinate against the local cache, the bundled
repository and the configured remote repositories, downloading into the
cache when needed, and prints where each one was found.

Coordinates take the form mvn:group/artifact/version[/type[/classifier]].`,
	Args: cobra.MinimumNArgs(1),
	RunE: runResolve,
}

func runResolve(cmd *cobra.Command, args []string) error {
	format, err := formatting.ParseFormat(resolveOutput)
	if err != nil {
		return err
	}

	cfg := newAppConfig()
	cfg.Silent = !rootDebug
	if err := app.InitLogging(cfg); err != nil {
		return err
	}

	rt := app.NewRuntime(app.CoreServices(cfg)...)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := rt.Start(ctx); err != nil {
		_ = rt.Close()
		return err
	}
	defer rt.Close()

	resolver, err := services.Require[*coordinate.Service](rt.Registry())
	if err != nil {
		return err
	}

	var s *spinner.Spinner
	if !resolveQuiet && format == formatting.FormatTable {
		s = spinner.New(spinner.CharSets[14], 100*time.Millisecond)
		s.Writer = cmd.ErrOrStderr()
		s.Start()
	}

	results := make([]formatting.Resolution, len(args))
	missing := 0
	for i, uri := range args {
		if s != nil {
			s.Lock()
			s.Suffix = " Resolving " + uri
			s.Unlock()
		}
		results[i] = shell.Resolve(ctx, resolver, uri)
		if !results[i].Found {
			missing++
		}
	}
	if s != nil {
		s.Stop()
	}

	if err := formatting.NewPrinter(cmd.OutOrStdout(), format).Resolutions(results); err != nil {
		return err
	}
	if missing > 0 {
		return fmt.Errorf("%d of %d coordinates could not be resolved", missing, len(args))
	}
	return nil
}

func init() {
	rootCmd.AddCommand(resolveCmd)

	resolveCmd.Flags().StringVarP(&resolveOutput, "output", "o", "table", "Output format: table, json or yaml")
	resolveCmd.Flags().BoolVarP(&resolveQuiet, "quiet", "q", false, "Do not show progress")
}
