package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"minho/internal/app"
	"minho/internal/dispatcher"
	"minho/internal/formatting"
	"minho/internal/services"
)

var (
	installHandler string
	installProps   map[string]string
	installNoWait  bool
	installOutput  string
)

var installCmd = &cobra.Command{
	Use:   "install <location>...",
	Short: "Install modules and report the result",
	Long: `Starts the runtime without the banner, installs each location with
progress reporting and prints the installed modules. The runtime then keeps
running until interrupted.

With --no-wait the modules are removed again and minho exits, which checks
that the locations resolve and are accepted by a handler.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInstall,
}

func runInstall(cmd *cobra.Command, args []string) (err error) {
	format, err := formatting.ParseFormat(installOutput)
	if err != nil {
		return err
	}

	cfg := newAppConfig()
	cfg.NoBanner = true
	cfg.Wait = !installNoWait
	cfg.Out = cmd.OutOrStdout()
	if err := app.InitLogging(cfg); err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	rt := app.NewRuntime(app.DefaultServices(cfg)...)
	defer func() {
		err = errors.Join(err, rt.Close())
	}()
	if err := rt.Start(ctx); err != nil {
		return err
	}

	d, err := services.Require[*dispatcher.Dispatcher](rt.Registry())
	if err != nil {
		return err
	}

	var errs []error
	for _, location := range args {
		if err := installOne(ctx, cmd, d, location, format == formatting.FormatTable); err != nil {
			errs = append(errs, err)
		}
	}

	records := d.List()
	modules := make([]formatting.Module, len(records))
	for i, rec := range records {
		alive, _ := d.IsAlive(rec.ID)
		modules[i] = formatting.ModuleFromRecord(rec, alive)
	}
	if err := formatting.NewPrinter(cmd.OutOrStdout(), format).Modules(modules); err != nil {
		return err
	}

	if err := services.NewAggregateError("install", errs); err != nil {
		return err
	}
	return rt.Wait(ctx)
}

func installOne(ctx context.Context, cmd *cobra.Command, d *dispatcher.Dispatcher, location string, progress bool) error {
	if !progress {
		_, err := d.Install(ctx, location, installHandler, installProps)
		return err
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Writer = cmd.ErrOrStderr()
	s.Suffix = " Installing " + location
	s.Start()

	rec, err := d.Install(ctx, location, installHandler, installProps)
	if err != nil {
		s.FinalMSG = text.FgRed.Sprintf("✗ %s: %v", location, err) + "\n"
	} else {
		s.FinalMSG = text.FgGreen.Sprintf("✓ %s installed as %s", location, rec.ID) + "\n"
	}
	s.Stop()
	return err
}

func init() {
	rootCmd.AddCommand(installCmd)

	installCmd.Flags().StringVar(&installHandler, "handler", "", "Install with this handler instead of the first one that accepts the location")
	installCmd.Flags().StringToStringVarP(&installProps, "property", "p", nil, "Install properties passed to the handler (key=value)")
	installCmd.Flags().BoolVar(&installNoWait, "no-wait", false, "Remove the modules and exit after installing")
	installCmd.Flags().StringVarP(&installOutput, "output", "o", "table", "Output format: table, json or yaml")
}
