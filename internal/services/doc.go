// Package services provides the service contract and the type-keyed
// registry at the centre of the minho kernel.
//
// # Core Concepts
//
// Service: a capability-bearing singleton with a stable name and a
// priority. Identity is the concrete Go type of the instance, so at most
// one *config.Service or *orchestrator.Orchestrator is live per runtime.
//
// Registry: a concurrency-safe map from concrete type to instance. It
// supports exact lookup, capability (interface) lookup with ambiguity
// detection, compare-and-set registration and bulk teardown.
//
// # Registration Hooks
//
// A service implementing Registrar receives the registry from
// OnRegister right after it is inserted. This is where a service looks up
// the services registered before it and contributes lifecycle callbacks:
//
//	func (s *Watcher) OnRegister(r *services.Registry) error {
//	    lc, err := services.Require[*orchestrator.Orchestrator](r)
//	    if err != nil {
//	        return err
//	    }
//	    return lc.OnStart(s.Name(), s.start)
//	}
//
// Registration order therefore matters: a service may rely on every
// lower-priority service being live, never the reverse.
//
// # Teardown
//
// Shutdown closes every Closer in reverse registration order. All of them
// are attempted and failures are returned as a single *AggregateError.
package services
