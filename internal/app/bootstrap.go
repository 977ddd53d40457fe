package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/coreos/go-systemd/v22/daemon"

	"minho/internal/dispatcher"
	"minho/internal/services"
	"minho/pkg/logging"
)

// sdNotify is a variable to allow mocking in tests
var sdNotify = daemon.SdNotify

// Application wires a Runtime to a Config. It is what the run command
// executes.
//
// Example usage:
//
//	cfg := app.NewConfig(false, "/etc/minho")
//	application, err := app.NewApplication(cfg)
//	if err != nil {
//	    return fmt.Errorf("failed to create application: %w", err)
//	}
//	return application.Run(ctx)
type Application struct {
	config  *Config
	runtime *Runtime
}

// NewApplication configures logging and creates the runtime with the
// default services.
func NewApplication(cfg *Config) (*Application, error) {
	if err := InitLogging(cfg); err != nil {
		return nil, err
	}

	return &Application{
		config:  cfg,
		runtime: NewRuntime(DefaultServices(cfg)...),
	}, nil
}

// InitLogging applies the log level, format and output selected by cfg.
func InitLogging(cfg *Config) error {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	if cfg.Debug {
		level = logging.LevelDebug
	}

	format := logging.FormatText
	switch cfg.LogFormat {
	case "", string(logging.FormatText):
	case string(logging.FormatJSON):
		format = logging.FormatJSON
	default:
		return fmt.Errorf("unknown log format %q", cfg.LogFormat)
	}

	var logOutput io.Writer = os.Stderr
	if cfg.Silent {
		logOutput = io.Discard
	}
	logging.Init(level, format, logOutput)
	return nil
}

// Runtime returns the application's runtime.
func (a *Application) Runtime() *Runtime {
	return a.runtime
}

// Run starts the runtime, installs the requested locations, waits for
// the Awaiter and closes the runtime. Start and install failures are
// returned together with any shutdown failure.
func (a *Application) Run(ctx context.Context) error {
	if err := a.runtime.Start(ctx); err != nil {
		logging.Error("Bootstrap", err, "Failed to start runtime")
		return errors.Join(err, a.runtime.Close())
	}

	if err := a.install(ctx); err != nil {
		return errors.Join(err, a.runtime.Close())
	}

	notify(daemon.SdNotifyReady)
	waitErr := a.runtime.Wait(ctx)
	notify(daemon.SdNotifyStopping)

	return errors.Join(waitErr, a.runtime.Close())
}

func (a *Application) install(ctx context.Context) error {
	if len(a.config.Install) == 0 {
		return nil
	}

	d, err := services.Require[*dispatcher.Dispatcher](a.runtime.Registry())
	if err != nil {
		return err
	}

	var errs []error
	for _, location := range a.config.Install {
		if _, err := d.Install(ctx, location, "", nil); err != nil {
			logging.Error("Bootstrap", err, "Failed to install %s", location)
			errs = append(errs, err)
		}
	}
	return services.NewAggregateError("install", errs)
}

// notify tells a service manager about a state change. Outside systemd it
// is a no-op.
func notify(state string) {
	sent, err := sdNotify(false, state)
	if err != nil {
		logging.Debug("Bootstrap", "Failed to notify service manager: %v", err)
		return
	}
	if sent {
		logging.Debug("Bootstrap", "Notified service manager: %s", state)
	}
}
