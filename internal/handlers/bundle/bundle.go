// Package bundle installs zip archives whose manifest declares a
// Bundle-SymbolicName. Installed bundles are unpacked under the bundle
// storage directory and identified by "<symbolic-name>/<version>".
package bundle

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"minho/internal/config"
	"minho/internal/dispatcher"
	"minho/internal/services"
	"minho/pkg/logging"
)

// Bundle states.
const (
	StateInstalled = "INSTALLED"
	StateActive    = "ACTIVE"
)

// DefaultVersion is used when the manifest has no Bundle-Version.
const DefaultVersion = "0.0.0"

type bundle struct {
	id       string
	name     string
	version  string
	location string
	dir      string
	headers  map[string]string
	state    string
	since    time.Time
}

// Handler is the bundle handler. It is a service that adds itself to the
// dispatcher when registered.
type Handler struct {
	services.Base

	mu      sync.RWMutex
	dir     string
	bundles map[string]*bundle
}

// New creates a bundle handler storing bundles under dir. An empty dir is
// replaced by minho.bundles at registration.
func New(dir string) *Handler {
	return &Handler{
		Base:    services.NewBase("bundle", services.DefaultPriority),
		dir:     dir,
		bundles: make(map[string]*bundle),
	}
}

// OnRegister reads the storage directory and adds the handler to the
// dispatcher.
func (h *Handler) OnRegister(r *services.Registry) error {
	if h.dir == "" {
		cfg, err := services.Require[*config.Service](r)
		if err != nil {
			return err
		}
		h.dir = cfg.Property(config.KeyBundles, "")
	}

	d, err := services.Require[*dispatcher.Dispatcher](r)
	if err != nil {
		return err
	}
	return d.AddHandler(h)
}

// CanHandle reports whether location is a zip archive with a bundle
// manifest.
func (h *Handler) CanHandle(ctx context.Context, location string) bool {
	headers, err := readManifest(location)
	if err != nil {
		return false
	}
	return symbolicName(headers) != ""
}

// Install unpacks the bundle. args["start"]="false" installs it without
// activating it.
func (h *Handler) Install(ctx context.Context, location string, args map[string]string) (string, error) {
	zr, err := zip.OpenReader(location)
	if err != nil {
		return "", fmt.Errorf("failed to open bundle: %w", err)
	}
	defer zr.Close()

	headers, err := manifestFromZip(&zr.Reader)
	if err != nil {
		return "", err
	}
	name := symbolicName(headers)
	if name == "" {
		return "", fmt.Errorf("manifest has no %s header", HeaderSymbolicName)
	}
	version := strings.TrimSpace(headers[HeaderVersion])
	if version == "" {
		version = DefaultVersion
	}
	id := name + "/" + version

	h.mu.Lock()
	defer h.mu.Unlock()

	if existing, ok := h.bundles[id]; ok {
		return "", fmt.Errorf("bundle %s is already installed from %s", id, existing.location)
	}
	if h.dir == "" {
		return "", fmt.Errorf("no bundle storage directory configured")
	}

	dir := filepath.Join(h.dir, strings.NewReplacer("/", "_", "\\", "_").Replace(name)+"_"+version)
	if err := os.RemoveAll(dir); err != nil {
		return "", err
	}
	if err := extract(&zr.Reader, dir); err != nil {
		_ = os.RemoveAll(dir)
		return "", fmt.Errorf("failed to unpack bundle %s: %w", id, err)
	}

	state := StateActive
	if args["start"] == "false" {
		state = StateInstalled
	}

	h.bundles[id] = &bundle{
		id:       id,
		name:     name,
		version:  version,
		location: location,
		dir:      dir,
		headers:  headers,
		state:    state,
		since:    time.Now(),
	}
	logging.Info("Bundle", "Installed bundle %s into %s (%s)", id, dir, state)
	return id, nil
}

// IsAlive reports whether the bundle is active and its files are present.
func (h *Handler) IsAlive(id string) bool {
	h.mu.RLock()
	b, ok := h.bundles[id]
	h.mu.RUnlock()
	if !ok || b.state != StateActive {
		return false
	}
	_, err := os.Stat(b.dir)
	return err == nil
}

// Uninstall deletes the unpacked bundle.
func (h *Handler) Uninstall(ctx context.Context, id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	b, ok := h.bundles[id]
	if !ok {
		return fmt.Errorf("bundle %s is not installed", id)
	}
	if err := os.RemoveAll(b.dir); err != nil {
		return err
	}
	delete(h.bundles, id)
	logging.Info("Bundle", "Uninstalled bundle %s", id)
	return nil
}

// Metadata returns the manifest headers plus the bundle state.
func (h *Handler) Metadata(id string) map[string]string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	b, ok := h.bundles[id]
	if !ok {
		return nil
	}
	md := make(map[string]string, len(b.headers)+3)
	for k, v := range b.headers {
		md[k] = v
	}
	md["state"] = b.state
	md["path"] = b.dir
	md["since"] = b.since.Format(time.RFC3339)
	return md
}

// Bundles returns the installed bundle ids, sorted.
func (h *Handler) Bundles() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.bundles))
	for id := range h.bundles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// extract unpacks zr into dir, refusing entries that escape it.
func extract(zr *zip.Reader, dir string) error {
	root, err := filepath.Abs(dir)
	if err != nil {
		return err
	}

	for _, f := range zr.File {
		target := filepath.Join(root, filepath.FromSlash(f.Name))
		if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
			return fmt.Errorf("entry %s escapes the bundle directory", f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := extractFile(f, target); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	mode := f.Mode().Perm()
	if mode == 0 {
		mode = 0o644
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
