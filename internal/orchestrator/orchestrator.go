package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"minho/internal/services"
	"minho/pkg/logging"
)

// State is the lifecycle phase of an Orchestrator.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateStarted
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateStarting:
		return "Starting"
	case StateStarted:
		return "Started"
	case StateStopping:
		return "Stopping"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// ErrPhaseStarted is returned when a callback is added to a phase that has
// already begun; such a callback would never run.
var ErrPhaseStarted = errors.New("lifecycle phase already started")

// Callback is a unit of work contributed to a lifecycle phase.
type Callback func(ctx context.Context) error

type callback struct {
	name string
	fn   Callback
}

// Orchestrator collects start and shutdown callbacks from other services
// during their registration and runs them as two batches. It is itself a
// service, registered early so that later services can hook into it.
type Orchestrator struct {
	services.Base

	mu         sync.Mutex
	state      State
	onStart    []callback
	onShutdown []callback
}

// New creates an idle Orchestrator.
func New() *Orchestrator {
	return &Orchestrator{
		Base: services.NewBase("lifecycle", services.PriorityLifecycle),
	}
}

// State returns the current phase.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// OnStart appends fn to the start batch. name identifies the contributor
// in errors and logs. It fails once Start has been called.
func (o *Orchestrator) OnStart(name string, fn Callback) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != StateIdle {
		return fmt.Errorf("cannot add start callback for %s in state %s: %w", name, o.state, ErrPhaseStarted)
	}
	o.onStart = append(o.onStart, callback{name: name, fn: fn})
	return nil
}

// OnShutdown appends fn to the shutdown batch. Start callbacks may still
// add shutdown work; it fails once shutdown has begun.
func (o *Orchestrator) OnShutdown(name string, fn Callback) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state >= StateStopping {
		return fmt.Errorf("cannot add shutdown callback for %s in state %s: %w", name, o.state, ErrPhaseStarted)
	}
	o.onShutdown = append(o.onShutdown, callback{name: name, fn: fn})
	return nil
}

// Start runs every start callback in registration order. A failing
// callback does not stop the batch; once all have run, the failures are
// returned together as a *services.AggregateError.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.state != StateIdle {
		state := o.state
		o.mu.Unlock()
		return fmt.Errorf("cannot start lifecycle in state %s", state)
	}
	o.state = StateStarting
	batch := append([]callback(nil), o.onStart...)
	o.mu.Unlock()

	logging.Info("Lifecycle", "Starting %d callbacks", len(batch))
	errs := run(ctx, "start", batch)

	o.mu.Lock()
	o.state = StateStarted
	o.mu.Unlock()

	return services.NewAggregateError(o.Name(), errs)
}

// Stop runs every shutdown callback with the same aggregation as Start.
// It may be called from any state and only runs once.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	if o.state >= StateStopping {
		o.mu.Unlock()
		return nil
	}
	o.state = StateStopping
	batch := append([]callback(nil), o.onShutdown...)
	o.mu.Unlock()

	logging.Info("Lifecycle", "Running %d shutdown callbacks", len(batch))
	errs := run(ctx, "shutdown", batch)

	o.mu.Lock()
	o.state = StateStopped
	o.mu.Unlock()

	return services.NewAggregateError(o.Name(), errs)
}

// Close implements services.Closer so the registry runs the shutdown
// batch during teardown.
func (o *Orchestrator) Close() error {
	return o.Stop(context.Background())
}

func run(ctx context.Context, phase string, batch []callback) []error {
	var errs []error
	for _, cb := range batch {
		if err := invoke(ctx, cb); err != nil {
			logging.Error("Lifecycle", err, "%s callback for %s failed", phase, cb.name)
			errs = append(errs, fmt.Errorf("%s callback for %s: %w", phase, cb.name, err))
		}
	}
	return errs
}

// invoke turns a panicking callback into an error so the rest of the
// batch still runs.
func invoke(ctx context.Context, cb callback) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return cb.fn(ctx)
}
