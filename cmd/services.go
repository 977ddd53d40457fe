package cmd

import (
	"github.com/spf13/cobra"

	"minho/internal/app"
	"minho/internal/formatting"
)

var servicesOutput string

var servicesCmd = &cobra.Command{
	Use:   "services",
	Short: "Show the service boot sequence",
	Long: `Lists the services minho run registers, in registration order, with
their effective priority. A priority overridden through <name>.priority
in the environment is marked.`,
	Args: cobra.NoArgs,
	RunE: runServices,
}

func runServices(cmd *cobra.Command, args []string) error {
	format, err := formatting.ParseFormat(servicesOutput)
	if err != nil {
		return err
	}

	cfg := newAppConfig()
	cfg.Wait = true
	rt := app.NewRuntime(app.DefaultServices(cfg)...)

	return formatting.NewPrinter(cmd.OutOrStdout(), format).Services(formatting.ServicesFromSequence(rt.Sequence()))
}

func init() {
	rootCmd.AddCommand(servicesCmd)

	servicesCmd.Flags().StringVarP(&servicesOutput, "output", "o", "table", "Output format: table, json or yaml")
}
