package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// newVersionCmd prints the version and, with --check, whether a newer
// release is available.
func newVersionCmd() *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version number of minho",
		Long:  `All software has versions. This is minho's.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "minho version %s\n", rootCmd.Version)
			if !check {
				return nil
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			src, err := newReleaseSource()
			if err != nil {
				return fmt.Errorf("failed to create updater: %w", err)
			}

			latest, err := newerRelease(ctx, src, rootCmd.Version)
			switch {
			case errors.Is(err, errDevelopmentVersion):
				fmt.Fprintln(out, "Development build, no release to compare with.")
				return nil
			case err != nil:
				return err
			case latest == nil:
				fmt.Fprintln(out, "minho is up to date.")
			default:
				fmt.Fprintf(out, "minho %s is available, run 'minho self-update' to install it.\n", latest.Version())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "Also check GitHub for a newer release")
	return cmd
}
