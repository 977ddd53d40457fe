package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/creativeprojects/go-selfupdate"
	"github.com/spf13/cobra"
)

// githubRepoSlug is the GitHub repository (owner/repo) releases are read from.
const githubRepoSlug = "minho-project/minho"

var errDevelopmentVersion = errors.New("cannot self-update a development version")

// releaseSource is the part of the updater minho uses.
type releaseSource interface {
	DetectLatest(ctx context.Context, repository selfupdate.Repository) (*selfupdate.Release, bool, error)
	UpdateTo(ctx context.Context, rel *selfupdate.Release, cmdPath string) error
}

// newReleaseSource is a variable to allow mocking in tests
var newReleaseSource = func() (releaseSource, error) {
	return selfupdate.NewUpdater(selfupdate.Config{})
}

// newerRelease returns the latest release when it is newer than current.
// Development builds are rejected since they carry no comparable version.
func newerRelease(ctx context.Context, src releaseSource, current string) (*selfupdate.Release, error) {
	if current == "" || current == "dev" {
		return nil, errDevelopmentVersion
	}

	latest, found, err := src.DetectLatest(ctx, selfupdate.ParseSlug(githubRepoSlug))
	if err != nil {
		return nil, fmt.Errorf("error detecting latest version: %w", err)
	}
	if !found {
		return nil, fmt.Errorf("latest release for %s could not be found", githubRepoSlug)
	}
	if !latest.GreaterThan(current) {
		return nil, nil
	}
	return latest, nil
}

func newSelfUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "self-update",
		Short: "Update minho to the latest version",
		Long: `Checks for the latest release of minho on GitHub and
replaces the running binary when a newer version is found.`,
		RunE: runSelfUpdate,
	}
}

func runSelfUpdate(cmd *cobra.Command, args []string) error {
	current := rootCmd.Version
	if current == "" || current == "dev" {
		return errDevelopmentVersion
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()

	src, err := newReleaseSource()
	if err != nil {
		return fmt.Errorf("failed to create updater: %w", err)
	}

	fmt.Fprintf(out, "Checking for a release newer than %s...\n", current)
	latest, err := newerRelease(ctx, src, current)
	if err != nil {
		return err
	}
	if latest == nil {
		fmt.Fprintln(out, "minho is up to date.")
		return nil
	}

	exe, err := selfupdate.ExecutablePath()
	if err != nil {
		return fmt.Errorf("could not locate executable path: %w", err)
	}

	fmt.Fprintf(out, "Updating %s from %s to %s (published %s)\n", exe, current, latest.Version(), latest.PublishedAt.Format("2006-01-02"))
	if err := src.UpdateTo(ctx, latest, exe); err != nil {
		return fmt.Errorf("update failed: %w", err)
	}

	fmt.Fprintf(out, "Updated to %s\n", latest.Version())
	if latest.ReleaseNotes != "" {
		fmt.Fprintf(out, "\nRelease notes:\n%s\n", latest.ReleaseNotes)
	}
	return nil
}
