package app

import (
	"io"
	"os"

	"minho/internal/banner"
	"minho/internal/bundled"
	"minho/internal/config"
	"minho/internal/coordinate"
	"minho/internal/deploy"
	"minho/internal/dispatcher"
	"minho/internal/handlers/bundle"
	"minho/internal/handlers/process"
	"minho/internal/metrics"
	"minho/internal/orchestrator"
	"minho/internal/services"
)

// DefaultServices returns the services of a full runtime:
//
//	config (-2000), lifecycle (-1000), config loaders (-900),
//	overrides (-899), metrics (-800), resolver (-500), dispatcher (-400),
//	bundle (1000), process (1001), deploy (1100), banner (last)
//
// plus a SignalAwaiter when cfg.Wait is set.
func DefaultServices(cfg *Config) []services.Service {
	var out io.Writer = os.Stdout
	if cfg.Out != nil {
		out = cfg.Out
	}

	props := make(map[string]string, len(cfg.Properties)+1)
	for k, v := range cfg.Properties {
		props[k] = v
	}
	if cfg.MetricsAddr != "" {
		props[config.KeyMetricsAddr] = cfg.MetricsAddr
	}

	svcs := []services.Service{
		config.NewService(nil),
		orchestrator.New(),
	}
	svcs = append(svcs, config.Loaders(config.Sources{Dir: cfg.ConfigPath, File: cfg.ConfigFile})...)
	svcs = append(svcs,
		config.NewOverrides(props),
		metrics.NewService(),
		coordinate.NewService(bundled.Repository()),
		dispatcher.New(nil),
		bundle.New(""),
		process.New(0),
		deploy.New("", 0),
	)
	if !cfg.NoBanner {
		svcs = append(svcs, banner.New(out, cfg.Version, ""))
	}
	if cfg.Wait {
		svcs = append(svcs, NewSignalAwaiter())
	}
	return svcs
}

// CoreServices returns only what is needed to read configuration and
// resolve coordinates, without handlers or lifecycle side effects.
func CoreServices(cfg *Config) []services.Service {
	svcs := []services.Service{config.NewService(nil)}
	svcs = append(svcs, config.Loaders(config.Sources{Dir: cfg.ConfigPath, File: cfg.ConfigFile})...)
	return append(svcs,
		config.NewOverrides(cfg.Properties),
		coordinate.NewService(bundled.Repository()),
	)
}
