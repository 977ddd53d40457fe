package services

import (
	"fmt"
	"reflect"
	"sync"

	"minho/pkg/logging"
)

// Registry maps concrete service types to their single live instance.
// It is owned by one runtime; independent runtimes use independent
// registries.
type Registry struct {
	mu       sync.RWMutex
	services map[reflect.Type]Service
	order    []reflect.Type
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		services: make(map[reflect.Type]Service),
	}
}

// Register adds svc if no instance of its concrete type is registered.
// The check and the insert happen under one write lock, so concurrent
// registrations of the same type cannot both win.
//
// When the insert succeeds and svc implements Registrar, its hook runs
// outside the lock with access to every earlier service. A failing hook
// rolls the registration back and returns a *RegistrationError.
//
// Registering a type that is already present returns false and no error.
func (r *Registry) Register(svc Service) (bool, error) {
	if svc == nil {
		return false, fmt.Errorf("cannot register nil service")
	}

	t := reflect.TypeOf(svc)

	r.mu.Lock()
	if _, exists := r.services[t]; exists {
		r.mu.Unlock()
		logging.Debug("Registry", "Service %s (%s) already registered", svc.Name(), t)
		return false, nil
	}
	r.services[t] = svc
	r.order = append(r.order, t)
	r.mu.Unlock()

	if registrar, ok := svc.(Registrar); ok {
		if err := registrar.OnRegister(r); err != nil {
			r.mu.Lock()
			if cur, ok := r.services[t]; ok && cur == svc {
				r.drop(t)
			}
			r.mu.Unlock()
			return false, &RegistrationError{Service: svc.Name(), Err: err}
		}
	}

	logging.Debug("Registry", "Registered service %s (priority %d)", svc.Name(), svc.Priority())
	return true, nil
}

// Lookup returns the service registered for t. An exact type match wins;
// otherwise, when t is an interface, every registered service is checked
// for an implementation of it. A lookup matching nothing returns false;
// one matching more than one service returns an *AmbiguousLookupError.
func (r *Registry) Lookup(t reflect.Type) (Service, bool, error) {
	if t == nil {
		return nil, false, fmt.Errorf("cannot look up nil type")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if svc, ok := r.services[t]; ok {
		return svc, true, nil
	}
	if t.Kind() != reflect.Interface {
		return nil, false, nil
	}

	var matches []Service
	for _, candidate := range r.order {
		if candidate.Implements(t) {
			matches = append(matches, r.services[candidate])
		}
	}

	switch len(matches) {
	case 0:
		return nil, false, nil
	case 1:
		return matches[0], true, nil
	}

	names := make([]string, len(matches))
	for i, m := range matches {
		names[i] = m.Name()
	}
	return nil, false, &AmbiguousLookupError{Type: t.String(), Candidates: names}
}

// Get looks up the service of type T, which may be a concrete pointer
// type or an interface.
func Get[T any](r *Registry) (T, bool, error) {
	var zero T

	svc, ok, err := r.Lookup(reflect.TypeFor[T]())
	if err != nil || !ok {
		return zero, false, err
	}

	typed, ok := svc.(T)
	if !ok {
		return zero, false, nil
	}
	return typed, true, nil
}

// Require is Get for dependencies that must already be registered.
func Require[T any](r *Registry) (T, error) {
	svc, ok, err := Get[T](r)
	if err != nil {
		return svc, err
	}
	if !ok {
		return svc, fmt.Errorf("required service %s is not registered", reflect.TypeFor[T]())
	}
	return svc, nil
}

// Remove unregisters svc, but only if it is the instance currently
// registered for its type.
func (r *Registry) Remove(svc Service) bool {
	if svc == nil {
		return false
	}

	t := reflect.TypeOf(svc)
	if !t.Comparable() {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.services[t]
	if !ok || current != svc {
		return false
	}

	r.drop(t)
	return true
}

// drop deletes t. Callers hold the write lock.
func (r *Registry) drop(t reflect.Type) {
	delete(r.services, t)
	for i, candidate := range r.order {
		if candidate == t {
			r.order = append(r.order[:i], r.order[i+1:]...)
			return
		}
	}
}

// All returns the registered services in registration order.
func (r *Registry) All() []Service {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]Service, 0, len(r.order))
	for _, t := range r.order {
		all = append(all, r.services[t])
	}
	return all
}

// Len returns the number of registered services.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.services)
}

// Shutdown closes every registered Closer in reverse registration order
// and empties the registry. Every Close is attempted; failures are
// returned together as an *AggregateError.
func (r *Registry) Shutdown() error {
	r.mu.Lock()
	order := r.order
	services := r.services
	r.order = nil
	r.services = make(map[reflect.Type]Service)
	r.mu.Unlock()

	var errs []error
	for i := len(order) - 1; i >= 0; i-- {
		svc := services[order[i]]
		closer, ok := svc.(Closer)
		if !ok {
			continue
		}

		logging.Debug("Registry", "Closing service %s", svc.Name())
		if err := closer.Close(); err != nil {
			logging.Error("Registry", err, "Failed to close service %s", svc.Name())
			errs = append(errs, fmt.Errorf("service %s: %w", svc.Name(), err))
		}
	}

	return NewAggregateError("registry shutdown", errs)
}
