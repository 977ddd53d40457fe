package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"minho/internal/config"
	"minho/internal/coordinate"
	"minho/internal/orchestrator"
	"minho/internal/services"
	"minho/pkg/logging"
)

// PriorityDispatcher registers the dispatcher after configuration and the
// resolver, and before any handler.
const PriorityDispatcher = -400

// Resolver turns coordinates and remote URLs into local locations.
type Resolver interface {
	Resolve(ctx context.Context, uri string) (string, bool, error)
	Fetch(ctx context.Context, location string) (string, error)
}

// Recorder observes dispatcher operations. It is optional.
type Recorder interface {
	DispatcherOperation(op, result string)
	InstalledModules(n int)
}

// Dispatcher installs and removes modules through pluggable handlers.
//
// Install and Remove hold the write lock for their whole duration, so they
// are serialized against each other. Status and listing calls hold the
// read lock and run concurrently with one another.
type Dispatcher struct {
	services.Base

	mu         sync.RWMutex
	handlers   []Handler
	records    map[string]Record
	byLocation map[string]string
	order      []string

	resolver Resolver
	recorder Recorder
	cfg      *config.Service
	now      func() time.Time
}

// New creates a dispatcher without handlers. resolver may be nil, in which
// case coordinates and remote locations cannot be installed until one is
// found at registration.
func New(resolver Resolver) *Dispatcher {
	return &Dispatcher{
		Base:       services.NewBase("dispatcher", PriorityDispatcher),
		records:    make(map[string]Record),
		byLocation: make(map[string]string),
		resolver:   resolver,
		now:        time.Now,
	}
}

// OnRegister wires the dispatcher to the resolver, metrics and
// configuration services, and installs the configured applications when
// the lifecycle starts.
func (d *Dispatcher) OnRegister(r *services.Registry) error {
	if d.resolver == nil {
		res, ok, err := services.Get[*coordinate.Service](r)
		if err != nil {
			return err
		}
		if ok {
			d.resolver = res
		}
	}

	rec, ok, err := services.Get[Recorder](r)
	if err != nil {
		return err
	}
	if ok {
		d.recorder = rec
	}

	cfg, ok, err := services.Get[*config.Service](r)
	if err != nil {
		return err
	}
	if ok {
		d.cfg = cfg
	}

	lc, err := services.Require[*orchestrator.Orchestrator](r)
	if err != nil {
		return err
	}
	return lc.OnStart(d.Name(), d.installApplications)
}

// AddHandler appends h. Registration order decides which handler wins
// when several accept the same location.
func (d *Dispatcher) AddHandler(h Handler) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, existing := range d.handlers {
		if existing.Name() == h.Name() {
			return fmt.Errorf("handler %s already added", h.Name())
		}
	}
	d.handlers = append(d.handlers, h)
	logging.Debug("Dispatcher", "Added handler %s at position %d", h.Name(), len(d.handlers))
	return nil
}

// Handlers returns the handler names in selection order.
func (d *Dispatcher) Handlers() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	names := make([]string, len(d.handlers))
	for i, h := range d.handlers {
		names[i] = h.Name()
	}
	return names
}

// Install installs location with the handler named handlerName, or with
// the first handler that accepts it when handlerName is empty.
// Coordinates are resolved and remote URLs fetched before handlers are
// consulted. The record is keyed by the location as given.
func (d *Dispatcher) Install(ctx context.Context, location, handlerName string, properties map[string]string) (Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec, err := d.install(ctx, location, handlerName, properties)
	d.observe("install", err)
	return rec, err
}

func (d *Dispatcher) install(ctx context.Context, location, handlerName string, properties map[string]string) (Record, error) {
	if id, exists := d.byLocation[location]; exists {
		return Record{}, fmt.Errorf("%s is installed as module %s: %w", location, id, ErrAlreadyInstalled)
	}

	target, err := d.localize(ctx, location)
	if err != nil {
		return Record{}, err
	}

	h, err := d.selectHandler(ctx, location, target, handlerName)
	if err != nil {
		return Record{}, err
	}

	logging.Info("Dispatcher", "Installing %s with handler %s", location, h.Name())
	id, err := h.Install(ctx, target, properties)
	if err != nil {
		return Record{}, &InstallationError{Location: location, Handler: h.Name(), Err: err}
	}
	if existing, taken := d.records[id]; taken {
		// The id addresses the installed module, so it must not be uninstalled.
		logging.Warn("Dispatcher", "Handler %s returned id %s for %s, already used by %s", h.Name(), id, location, existing.Location)
		return Record{}, &InstallationError{Location: location, Handler: h.Name(), Err: fmt.Errorf("module id %s is already in use by %s", id, existing.Location)}
	}

	metadata := map[string]string{}
	if mp, ok := h.(MetadataProvider); ok {
		for k, v := range mp.Metadata(id) {
			metadata[k] = v
		}
	}
	if target != location {
		metadata["resolved"] = target
	}

	rec := Record{
		ID:          id,
		Location:    location,
		Handler:     h.Name(),
		Metadata:    metadata,
		InstalledAt: d.now(),
	}
	d.records[id] = rec
	d.byLocation[location] = id
	d.order = append(d.order, id)

	logging.Info("Dispatcher", "Installed %s as module %s", location, id)
	return rec.clone(), nil
}

// localize maps location to something handlers can read from disk.
func (d *Dispatcher) localize(ctx context.Context, location string) (string, error) {
	switch {
	case coordinate.IsCoordinate(location):
		if d.resolver == nil {
			return "", &InstallationError{Location: location, Err: fmt.Errorf("no resolver available for coordinates")}
		}
		resolved, found, err := d.resolver.Resolve(ctx, location)
		if err != nil {
			return "", &InstallationError{Location: location, Err: err}
		}
		if !found {
			return "", &InstallationError{Location: location, Err: ErrArtifactNotFound}
		}
		if coordinate.IsRemote(resolved) {
			return d.fetch(ctx, location, resolved)
		}
		return resolved, nil

	case coordinate.IsRemote(location):
		return d.fetch(ctx, location, location)

	default:
		return coordinate.StripFileScheme(location), nil
	}
}

func (d *Dispatcher) fetch(ctx context.Context, location, remote string) (string, error) {
	if d.resolver == nil {
		return "", &InstallationError{Location: location, Err: fmt.Errorf("no resolver available to fetch %s", remote)}
	}
	local, err := d.resolver.Fetch(ctx, remote)
	if err != nil {
		return "", &InstallationError{Location: location, Err: err}
	}
	return local, nil
}

func (d *Dispatcher) selectHandler(ctx context.Context, location, target, name string) (Handler, error) {
	if name != "" {
		for _, h := range d.handlers {
			if h.Name() == name {
				return h, nil
			}
		}
		return nil, fmt.Errorf("no handler named %s for %s: %w", name, location, ErrUnsupportedArtifact)
	}

	for _, h := range d.handlers {
		if h.CanHandle(ctx, target) {
			return h, nil
		}
		logging.Debug("Dispatcher", "Handler %s declined %s", h.Name(), location)
	}
	return nil, fmt.Errorf("no handler accepts %s: %w", location, ErrUnsupportedArtifact)
}

// Remove uninstalls the module with id. When the handler fails, the
// record is kept and a *RemovalError is returned.
func (d *Dispatcher) Remove(ctx context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	err := d.remove(ctx, id)
	d.observe("remove", err)
	return err
}

func (d *Dispatcher) remove(ctx context.Context, id string) error {
	rec, ok := d.records[id]
	if !ok {
		return fmt.Errorf("module %s: %w", id, ErrNotFound)
	}

	h := d.handlerNamed(rec.Handler)
	if h == nil {
		return &RemovalError{ID: id, Handler: rec.Handler, Err: fmt.Errorf("handler is no longer available")}
	}

	logging.Info("Dispatcher", "Removing module %s (%s)", id, rec.Location)
	if err := h.Uninstall(ctx, id); err != nil {
		return &RemovalError{ID: id, Handler: rec.Handler, Err: err}
	}

	delete(d.records, id)
	delete(d.byLocation, rec.Location)
	for i, candidate := range d.order {
		if candidate == id {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
	return nil
}

// RemoveAll removes every module, most recent first. Every removal is
// attempted; failures are returned as a *services.AggregateError.
func (d *Dispatcher) RemoveAll(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	ids := append([]string(nil), d.order...)
	var errs []error
	for i := len(ids) - 1; i >= 0; i-- {
		err := d.remove(ctx, ids[i])
		d.observe("remove", err)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return services.NewAggregateError(d.Name(), errs)
}

// RemoveLocation removes the module installed from location.
func (d *Dispatcher) RemoveLocation(ctx context.Context, location string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	id, ok := d.byLocation[location]
	if !ok {
		return fmt.Errorf("location %s: %w", location, ErrNotFound)
	}
	err := d.remove(ctx, id)
	d.observe("remove", err)
	return err
}

func (d *Dispatcher) handlerNamed(name string) Handler {
	for _, h := range d.handlers {
		if h.Name() == name {
			return h
		}
	}
	return nil
}

// IsAlive asks the owning handler whether the module is still active.
func (d *Dispatcher) IsAlive(id string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rec, ok := d.records[id]
	if !ok {
		return false, fmt.Errorf("module %s: %w", id, ErrNotFound)
	}
	h := d.handlerNamed(rec.Handler)
	if h == nil {
		return false, nil
	}
	return h.IsAlive(id), nil
}

// Get returns the record for id.
func (d *Dispatcher) Get(id string) (Record, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rec, ok := d.records[id]
	if !ok {
		return Record{}, false
	}
	return rec.clone(), true
}

// Location returns the source location of the module with id.
func (d *Dispatcher) Location(id string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rec, ok := d.records[id]
	return rec.Location, ok
}

// IDs returns the installed module ids in installation order.
func (d *Dispatcher) IDs() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]string(nil), d.order...)
}

// List returns every record in installation order.
func (d *Dispatcher) List() []Record {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]Record, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.records[id].clone())
	}
	return out
}

// Close removes every installed module.
func (d *Dispatcher) Close() error {
	return d.RemoveAll(context.Background())
}

// installApplications installs every application declared in
// configuration. Failures are collected so one broken application does
// not prevent the others from starting.
func (d *Dispatcher) installApplications(ctx context.Context) error {
	if d.cfg == nil {
		return nil
	}

	var errs []error
	apps, err := d.cfg.Applications()
	if err != nil {
		errs = append(errs, err)
	}

	for _, app := range apps {
		props := make(map[string]string, len(app.Properties)+1)
		for k, v := range app.Properties {
			props[k] = v
		}
		if app.Profile != "" {
			props["profile"] = app.Profile
		}

		if _, err := d.Install(ctx, app.URL, app.Type, props); err != nil {
			logging.Error("Dispatcher", err, "Failed to install application %s", app.Name)
			errs = append(errs, fmt.Errorf("application %s: %w", app.Name, err))
		}
	}
	return services.NewAggregateError(d.Name(), errs)
}

func (d *Dispatcher) observe(op string, err error) {
	if d.recorder == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	d.recorder.DispatcherOperation(op, result)
	d.recorder.InstalledModules(len(d.records))
}
