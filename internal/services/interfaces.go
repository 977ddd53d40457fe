package services

import "math"

// Well-known priorities. Lower values register earlier.
const (
	// DefaultPriority is used by services that do not care about ordering.
	DefaultPriority = 1000

	// PriorityRuntime is reserved for the runtime instance itself.
	PriorityRuntime = math.MinInt

	// PriorityConfig places the configuration store ahead of everything it serves.
	PriorityConfig = -2000

	// PriorityLifecycle registers the orchestrator early so later services
	// can hook into it from OnRegister.
	PriorityLifecycle = -1000

	// PriorityConfigLoader is used by services that merge configuration sources.
	PriorityConfigLoader = -900

	// PriorityLast is used by cosmetic services such as the banner.
	PriorityLast = math.MaxInt
)

// Service is a capability registered into the kernel by concrete type.
// At most one instance of each concrete type is registered at a time.
type Service interface {
	// Name is the stable, human readable identifier. It is also the
	// prefix of the "<name>.priority" configuration override.
	Name() string

	// Priority orders bootstrap; lower runs earlier.
	Priority() int
}

// Registrar is implemented by services that need to look up earlier
// services, or hook into them, when they are registered.
type Registrar interface {
	OnRegister(r *Registry) error
}

// Closer is implemented by services holding resources that must be
// released when the registry shuts down.
type Closer interface {
	Close() error
}
