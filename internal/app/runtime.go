package app

import (
	"context"
	"fmt"
	"sync"

	"minho/internal/loader"
	"minho/internal/orchestrator"
	"minho/internal/services"
	"minho/pkg/logging"
)

// Awaiter is implemented by a service that keeps the runtime alive, for
// example one waiting for a termination signal. Wait delegates to it.
type Awaiter interface {
	Await(ctx context.Context) error
}

type runtimeState int

const (
	runtimeIdle runtimeState = iota
	runtimeStarted
	runtimeClosed
)

// Runtime owns a service registry. Start registers the runtime itself,
// loads the candidate services in priority order and starts the
// lifecycle; Close shuts everything down again.
type Runtime struct {
	services.Base

	registry *services.Registry
	loader   *loader.Loader

	mu    sync.Mutex
	state runtimeState
}

// NewRuntime creates a runtime over the given candidate services.
func NewRuntime(svcs ...services.Service) *Runtime {
	return &Runtime{
		Base:     services.NewBase("runtime", services.PriorityRuntime),
		registry: services.NewRegistry(),
		loader:   loader.New(svcs...),
	}
}

// Add supplies more candidate services. It fails once Start was called.
func (rt *Runtime) Add(svcs ...services.Service) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.state != runtimeIdle {
		return fmt.Errorf("cannot add services to a started runtime")
	}
	rt.loader.Add(svcs...)
	return nil
}

// Registry returns the runtime's registry.
func (rt *Runtime) Registry() *services.Registry {
	return rt.registry
}

// Sequence returns the candidate services in the order Start registers
// them.
func (rt *Runtime) Sequence() []loader.Entry {
	return rt.loader.Sequence()
}

// Start bootstraps the registry and runs the lifecycle start phase. When
// registration fails, the services registered so far are shut down. A
// failing start callback is returned after the whole phase ran; the
// runtime is started and must still be closed.
func (rt *Runtime) Start(ctx context.Context) error {
	rt.mu.Lock()
	if rt.state != runtimeIdle {
		rt.mu.Unlock()
		return fmt.Errorf("runtime already started")
	}
	rt.state = runtimeStarted
	rt.mu.Unlock()

	if _, err := rt.registry.Register(rt); err != nil {
		return err
	}

	registered, err := rt.loader.Bootstrap(rt.registry)
	if err != nil {
		rt.mu.Lock()
		rt.state = runtimeClosed
		rt.mu.Unlock()
		if serr := rt.registry.Shutdown(); serr != nil {
			logging.Error("Runtime", serr, "Failed to shut down after bootstrap failure")
		}
		return err
	}
	logging.Info("Runtime", "Registered %d services", len(registered))

	lc, ok, err := services.Get[*orchestrator.Orchestrator](rt.registry)
	if err != nil {
		return err
	}
	if !ok {
		logging.Debug("Runtime", "No lifecycle service registered")
		return nil
	}
	return lc.Start(ctx)
}

// Wait blocks on the registered Awaiter until it returns or ctx is done.
// Without an Awaiter it returns immediately.
func (rt *Runtime) Wait(ctx context.Context) error {
	awaiter, ok, err := services.Get[Awaiter](rt.registry)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	return awaiter.Await(ctx)
}

// Close shuts down the registry, running the lifecycle shutdown phase and
// removing the installed modules. It is safe to call more than once.
func (rt *Runtime) Close() error {
	rt.mu.Lock()
	if rt.state == runtimeClosed {
		rt.mu.Unlock()
		return nil
	}
	rt.state = runtimeClosed
	rt.mu.Unlock()

	logging.Info("Runtime", "Shutting down")
	return rt.registry.Shutdown()
}
