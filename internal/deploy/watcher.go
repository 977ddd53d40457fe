package deploy

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"minho/internal/config"
	"minho/internal/dispatcher"
	"minho/internal/orchestrator"
	"minho/internal/services"
	"minho/pkg/logging"
)

const subsystem = "Deploy"

// PriorityDeploy registers the watcher after the handlers.
const PriorityDeploy = services.DefaultPriority + 100

// DefaultInterval is the debounce interval used when none is configured.
const DefaultInterval = 500 * time.Millisecond

// Installer is the part of the dispatcher the watcher drives.
type Installer interface {
	Install(ctx context.Context, location, handler string, properties map[string]string) (dispatcher.Record, error)
	RemoveLocation(ctx context.Context, location string) error
}

type operation int

const (
	opInstall operation = iota
	opUpdate
	opRemove
)

func (o operation) String() string {
	switch o {
	case opInstall:
		return "install"
	case opUpdate:
		return "update"
	case opRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// merge folds a new event into a pending one.
func merge(old, new operation) operation {
	if new == opRemove {
		return opRemove
	}
	if old == opInstall {
		return opInstall
	}
	return new
}

type change struct {
	path string
	op   operation
}

type pending struct {
	op    operation
	timer *time.Timer
}

// Watcher installs files dropped into the deploy directory and removes
// them again when they disappear. Rapid successive events on one file are
// collapsed into a single operation.
type Watcher struct {
	services.Base

	mu        sync.Mutex
	dir       string
	interval  time.Duration
	installer Installer
	watcher   *fsnotify.Watcher
	pending   map[string]*pending
	changes   chan change
	stopCh    chan struct{}
	done      chan struct{}
	running   bool
}

// New creates a watcher for dir. An empty dir and a zero interval are
// read from configuration at registration.
func New(dir string, interval time.Duration) *Watcher {
	return &Watcher{
		Base:     services.NewBase("deploy", PriorityDeploy),
		dir:      dir,
		interval: interval,
		pending:  make(map[string]*pending),
	}
}

// NewWithInstaller creates a watcher that is not registered as a service.
func NewWithInstaller(dir string, interval time.Duration, installer Installer) *Watcher {
	w := New(dir, interval)
	w.installer = installer
	if w.interval == 0 {
		w.interval = DefaultInterval
	}
	return w
}

// OnRegister reads the deploy settings and ties the watcher to the
// lifecycle. An empty minho.deploy disables the watcher.
func (w *Watcher) OnRegister(r *services.Registry) error {
	cfg, ok, err := services.Get[*config.Service](r)
	if err != nil {
		return err
	}
	if ok {
		if w.dir == "" {
			w.dir = cfg.Property(config.KeyDeploy, "")
		}
		if w.interval == 0 {
			w.interval = cfg.Duration(config.KeyDeployInterval, DefaultInterval)
		}
	}
	if w.interval == 0 {
		w.interval = DefaultInterval
	}
	if w.dir == "" {
		logging.Debug(subsystem, "No deploy directory configured, watcher disabled")
		return nil
	}

	d, err := services.Require[*dispatcher.Dispatcher](r)
	if err != nil {
		return err
	}
	w.installer = d

	lc, err := services.Require[*orchestrator.Orchestrator](r)
	if err != nil {
		return err
	}
	if err := lc.OnStart(w.Name(), w.Start); err != nil {
		return err
	}
	return lc.OnShutdown(w.Name(), func(context.Context) error { return w.Stop() })
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string {
	return w.dir
}

// Start creates the directory, installs the files already present and
// begins watching.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		w.mu.Unlock()
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	if err := watcher.Add(w.dir); err != nil {
		watcher.Close()
		w.mu.Unlock()
		return err
	}

	w.watcher = watcher
	w.changes = make(chan change, 64)
	w.stopCh = make(chan struct{})
	w.done = make(chan struct{})
	w.running = true
	changes, stopCh, done := w.changes, w.stopCh, w.done
	w.mu.Unlock()

	for _, path := range w.existing() {
		w.apply(ctx, change{path: path, op: opInstall})
	}

	go w.run(watcher, changes, stopCh, done)

	logging.Info(subsystem, "Watching %s for deployments", w.dir)
	return nil
}

// existing returns the deployable files in the directory, sorted by name.
func (w *Watcher) existing() []string {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		logging.Warn(subsystem, "Failed to list %s: %v", w.dir, err)
		return nil
	}

	var paths []string
	for _, e := range entries {
		if e.Type().IsRegular() && deployable(e.Name()) {
			paths = append(paths, w.location(filepath.Join(w.dir, e.Name())))
		}
	}
	sort.Strings(paths)
	return paths
}

// location is the absolute path used as the dispatcher location.
func (w *Watcher) location(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}

// deployable skips hidden and editor temporary files.
func deployable(name string) bool {
	return !strings.HasPrefix(name, ".") &&
		!strings.HasSuffix(name, "~") &&
		!strings.HasSuffix(name, ".tmp") &&
		!strings.HasSuffix(name, ".swp")
}

func (w *Watcher) run(watcher *fsnotify.Watcher, changes <-chan change, stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		select {
		case <-stopCh:
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logging.Error(subsystem, err, "Filesystem watcher error")

		case c := <-changes:
			w.apply(context.Background(), c)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !deployable(filepath.Base(event.Name)) {
		return
	}

	var op operation
	switch {
	case event.Has(fsnotify.Create):
		op = opInstall
	case event.Has(fsnotify.Write):
		op = opUpdate
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		// The new name of a renamed file arrives as a create.
		op = opRemove
	default:
		return
	}

	w.debounce(change{path: w.location(event.Name), op: op})
}

func (w *Watcher) debounce(c change) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if p, ok := w.pending[c.path]; ok {
		p.timer.Stop()
		c.op = merge(p.op, c.op)
	}

	stopCh, changes := w.stopCh, w.changes
	p := &pending{op: c.op}
	p.timer = time.AfterFunc(w.interval, func() {
		w.flush(c.path, p, changes, stopCh)
	})
	w.pending[c.path] = p
}

// flush sends the operation of p unless p was superseded by a later event
// on the same path, in which case the newer entry sends the merged op.
func (w *Watcher) flush(path string, p *pending, changes chan<- change, stopCh <-chan struct{}) {
	w.mu.Lock()
	current := w.pending[path] == p
	if current {
		delete(w.pending, path)
	}
	w.mu.Unlock()
	if !current {
		return
	}

	select {
	case changes <- change{path: path, op: p.op}:
	case <-stopCh:
	}
}

func (w *Watcher) apply(ctx context.Context, c change) {
	logging.Debug(subsystem, "Applying %s for %s", c.op, c.path)

	switch c.op {
	case opRemove:
		if err := w.installer.RemoveLocation(ctx, c.path); err != nil && !errors.Is(err, dispatcher.ErrNotFound) {
			logging.Error(subsystem, err, "Failed to remove %s", c.path)
		}
		return

	case opUpdate:
		if info, err := os.Stat(c.path); err != nil || !info.Mode().IsRegular() {
			return
		}
		if err := w.installer.RemoveLocation(ctx, c.path); err != nil && !errors.Is(err, dispatcher.ErrNotFound) {
			logging.Error(subsystem, err, "Failed to remove %s before reinstalling", c.path)
			return
		}
	}

	if info, err := os.Stat(c.path); err != nil || !info.Mode().IsRegular() {
		return
	}
	if _, err := w.installer.Install(ctx, c.path, "", nil); err != nil {
		if errors.Is(err, dispatcher.ErrAlreadyInstalled) {
			return
		}
		logging.Error(subsystem, err, "Failed to install %s", c.path)
	}
}

// Stop stops watching. Installed modules are left to the dispatcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	close(w.stopCh)
	for _, p := range w.pending {
		p.timer.Stop()
	}
	w.pending = make(map[string]*pending)
	watcher, done := w.watcher, w.done
	w.watcher = nil
	w.mu.Unlock()

	<-done
	if err := watcher.Close(); err != nil {
		logging.Error(subsystem, err, "Error closing filesystem watcher")
	}
	logging.Info(subsystem, "Stopped watching %s", w.dir)
	return nil
}
