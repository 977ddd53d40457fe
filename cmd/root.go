package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"minho/internal/app"
	"minho/internal/config"
	"minho/internal/dispatcher"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeConfig indicates a configuration file could not be read or decoded.
	ExitCodeConfig = 2
	// ExitCodeUnsupported indicates no handler accepted a location.
	ExitCodeUnsupported = 3
)

// Flags shared by every command that builds a runtime.
var (
	rootDebug      bool
	rootConfigPath string
	rootConfigFile string
	rootLogFormat  string
	rootLogLevel   string
	rootSet        map[string]string
)

// rootCmd represents the base command for the minho application.
// It is the entry point when the application is called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "minho",
	Short: "Run and manage pluggable modules",
	Long: `minho is a small runtime kernel. It boots a prioritized set of services,
resolves mvn: coordinates against local and remote repositories, and
installs modules such as zip bundles or executables through pluggable
handlers.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
	SilenceUsage: true,
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
// This function is called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "minho version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode determines the appropriate exit code based on the error type.
// This provides semantic exit codes for scripting and automation.
func getExitCode(err error) int {
	var cfgErr *config.ConfigurationError
	if errors.As(err, &cfgErr) {
		return ExitCodeConfig
	}

	if errors.Is(err, dispatcher.ErrUnsupportedArtifact) {
		return ExitCodeUnsupported
	}

	return ExitCodeError
}

// newAppConfig builds the runtime configuration from the persistent flags.
func newAppConfig() *app.Config {
	cfg := app.NewConfig(rootDebug, rootConfigPath)
	cfg.ConfigFile = rootConfigFile
	cfg.LogFormat = rootLogFormat
	cfg.LogLevel = rootLogLevel
	cfg.Properties = rootSet
	cfg.Version = rootCmd.Version
	return cfg
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newSelfUpdateCmd())

	flags := rootCmd.PersistentFlags()
	flags.BoolVar(&rootDebug, "debug", false, "Enable debug logging")
	flags.StringVar(&rootConfigPath, "config-path", "", "Directory searched for minho.{properties,json,yaml,toml}")
	flags.StringVar(&rootConfigFile, "config", "", "Explicit configuration file; its extension selects the format")
	flags.StringVar(&rootLogFormat, "log-format", "text", "Log format: text or json")
	flags.StringVar(&rootLogLevel, "log-level", "info", "Log level: debug, info, warn or error")
	flags.StringToStringVar(&rootSet, "set", nil, "Override configuration properties (key=value)")
}
