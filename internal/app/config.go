package app

import "io"

// Config holds the settings of one runtime invocation, typically taken
// from command line flags. Everything else is read from the configuration
// files by the config loaders.
type Config struct {
	// Debug enables debug logging.
	Debug bool

	// Silent discards log output.
	Silent bool

	// LogLevel is debug, info, warn or error. Debug wins over it.
	LogLevel string

	// LogFormat is "text" or "json".
	LogFormat string

	// ConfigPath is the directory searched for minho.<ext> files.
	ConfigPath string

	// ConfigFile is an explicit configuration file. Its extension selects
	// the loader.
	ConfigFile string

	// Properties override values from configuration files.
	Properties map[string]string

	// MetricsAddr serves /metrics on this address while running.
	MetricsAddr string

	// Install lists locations installed once the runtime has started.
	Install []string

	// NoBanner suppresses the startup banner.
	NoBanner bool

	// Wait keeps Run blocked until SIGINT or SIGTERM.
	Wait bool

	// Version is shown in the banner.
	Version string

	// Out receives the banner. Defaults to os.Stdout.
	Out io.Writer
}

// NewConfig creates a configuration for a long running runtime.
func NewConfig(debug bool, configPath string) *Config {
	return &Config{
		Debug:      debug,
		ConfigPath: configPath,
		Wait:       true,
	}
}
