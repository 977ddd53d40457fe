package loader

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/cast"

	"minho/internal/config"
	"minho/internal/services"
	"minho/pkg/logging"
)

// PropertySource is implemented by configuration services that can supply
// "<name>.priority" overrides before anything is registered.
type PropertySource interface {
	Lookup(key string) (string, bool)
}

// Entry is a service with its effective priority.
type Entry struct {
	Service    services.Service
	Priority   int
	Overridden bool
}

// Loader collects candidate services and orders them for registration.
type Loader struct {
	mu        sync.Mutex
	static    []services.Service
	added     []services.Service
	lookupEnv func(string) (string, bool)
}

// New creates a Loader over the compiled-in services.
func New(static ...services.Service) *Loader {
	return &Loader{
		static:    static,
		lookupEnv: os.LookupEnv,
	}
}

// Add supplies services programmatically. Duplicates are not filtered
// here; the registry rejects a second instance of the same type.
func (l *Loader) Add(svcs ...services.Service) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, svc := range svcs {
		if svc != nil {
			l.added = append(l.added, svc)
		}
	}
}

// Sequence returns every candidate with its effective priority, in
// ascending priority order. Ties keep discovery order: static services
// first, then added ones.
func (l *Loader) Sequence() []Entry {
	l.mu.Lock()
	candidates := make([]services.Service, 0, len(l.static)+len(l.added))
	candidates = append(candidates, l.static...)
	candidates = append(candidates, l.added...)
	l.mu.Unlock()

	var source PropertySource
	for _, svc := range candidates {
		if ps, ok := svc.(PropertySource); ok {
			source = ps
			break
		}
	}

	entries := make([]Entry, len(candidates))
	for i, svc := range candidates {
		priority, overridden := l.priority(svc, source)
		entries[i] = Entry{Service: svc, Priority: priority, Overridden: overridden}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Priority < entries[j].Priority
	})
	return entries
}

// Load returns the candidates in registration order.
func (l *Loader) Load() []services.Service {
	entries := l.Sequence()
	out := make([]services.Service, len(entries))
	for i, e := range entries {
		out[i] = e.Service
	}
	return out
}

func (l *Loader) priority(svc services.Service, source PropertySource) (int, bool) {
	key := svc.Name() + ".priority"

	var (
		raw string
		ok  bool
	)
	if source != nil {
		raw, ok = source.Lookup(key)
	} else {
		raw, ok = l.lookupEnv(config.EnvKey(key))
	}
	if !ok {
		return svc.Priority(), false
	}

	p, err := cast.ToIntE(strings.TrimSpace(raw))
	if err != nil {
		logging.Warn("Loader", "Ignoring invalid priority %q for service %s", raw, svc.Name())
		return svc.Priority(), false
	}
	return p, true
}

// Bootstrap registers the loaded services in order. A registration
// failure stops bootstrap; a duplicate type is skipped with a warning.
// It returns the services that were registered.
func (l *Loader) Bootstrap(r *services.Registry) ([]services.Service, error) {
	var registered []services.Service
	for _, entry := range l.Sequence() {
		svc := entry.Service
		ok, err := r.Register(svc)
		if err != nil {
			return registered, fmt.Errorf("bootstrap aborted: %w", err)
		}
		if !ok {
			logging.Warn("Loader", "Service %s skipped: a service of type %T is already registered", svc.Name(), svc)
			continue
		}
		logging.Debug("Loader", "Loaded service %s (priority %d)", svc.Name(), entry.Priority)
		registered = append(registered, svc)
	}
	return registered, nil
}
