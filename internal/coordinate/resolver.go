package coordinate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/sync/singleflight"

	"minho/pkg/logging"
)

// Resolution tiers, in the order they are tried.
const (
	TierCacheVersionless   = "cache-versionless"
	TierCache              = "cache"
	TierBundledVersionless = "bundled-versionless"
	TierBundled            = "bundled"
	TierRepository         = "repository"
)

// Recorder observes resolution outcomes. It is optional.
type Recorder interface {
	ResolverHit(tier string)
	ResolverMiss()
}

// Options configure a Resolver.
type Options struct {
	// CacheDir is the root of the local artifact cache. Its layout mirrors
	// Coordinate.Path. Without a cache, nothing is materialized and remote
	// hits are returned as URLs.
	CacheDir string

	// Repositories are tried in order after the cache and bundled tiers.
	// Entries are http(s) URLs, file: URLs or local directories.
	Repositories []string

	// Bundled holds artifacts shipped inside the binary, laid out like
	// the cache.
	Bundled fs.FS

	HTTPClient *http.Client
	Recorder   Recorder
}

// errNoCache is returned by Fetch when no cache directory is configured.
var errNoCache = errors.New("no cache directory configured")

// Resolver turns coordinates into concrete locations.
type Resolver struct {
	cacheDir     string
	repositories []string
	bundled      fs.FS
	client       *http.Client
	recorder     Recorder

	inflight singleflight.Group
}

type resolution struct {
	location string
	found    bool
}

// NewResolver creates a Resolver from opts.
func NewResolver(opts Options) *Resolver {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}

	repos := make([]string, 0, len(opts.Repositories))
	for _, repo := range opts.Repositories {
		if repo = strings.TrimSpace(repo); repo != "" {
			repos = append(repos, repo)
		}
	}

	return &Resolver{
		cacheDir:     opts.CacheDir,
		repositories: repos,
		bundled:      opts.Bundled,
		client:       client,
		recorder:     opts.Recorder,
	}
}

// CacheDir returns the cache root, which may be empty.
func (r *Resolver) CacheDir() string {
	return r.cacheDir
}

// Repositories returns a copy of the configured repository bases.
func (r *Resolver) Repositories() []string {
	return append([]string(nil), r.repositories...)
}

// Resolve locates the artifact named by uri. It tries, in order: the
// cache by version-less then versioned file name, the bundled resources
// in the same order, and finally each repository. Bundled and repository
// hits are copied into the cache so the next call is served from it.
//
// An artifact found nowhere yields ("", false, nil). Errors are reserved
// for malformed coordinates and cache write failures. Concurrent calls
// for the same coordinate share one resolution.
func (r *Resolver) Resolve(ctx context.Context, uri string) (string, bool, error) {
	c, err := Parse(uri)
	if err != nil {
		return "", false, err
	}

	v, err, _ := r.inflight.Do(c.String(), func() (interface{}, error) {
		location, found, err := r.resolve(ctx, c)
		return resolution{location: location, found: found}, err
	})
	if err != nil {
		return "", false, err
	}

	res := v.(resolution)
	return res.location, res.found, nil
}

func (r *Resolver) resolve(ctx context.Context, c Coordinate) (string, bool, error) {
	if r.cacheDir != "" {
		for _, t := range []struct{ tier, rel string }{
			{TierCacheVersionless, c.VersionlessPath()},
			{TierCache, c.Path()},
		} {
			p := r.cachePath(t.rel)
			if isRegularFile(p) {
				logging.Debug("Resolver", "Resolved %s from %s tier: %s", c, t.tier, p)
				r.hit(t.tier)
				return p, true, nil
			}
		}
	}

	if r.bundled != nil {
		for _, t := range []struct{ tier, rel string }{
			{TierBundledVersionless, c.VersionlessPath()},
			{TierBundled, c.Path()},
		} {
			location, found, err := r.fromBundled(t.rel)
			if err != nil {
				return "", false, err
			}
			if found {
				logging.Debug("Resolver", "Resolved %s from %s tier: %s", c, t.tier, location)
				r.hit(t.tier)
				return location, true, nil
			}
		}
	}

	repos := r.repositories
	if c.Repository != "" {
		repos = []string{c.Repository}
	}
	for _, base := range repos {
		location, err := r.fromRepository(ctx, base, c)
		if err != nil {
			if ctx.Err() != nil {
				return "", false, ctx.Err()
			}
			logging.Debug("Resolver", "Repository %s cannot provide %s: %v", base, c, err)
			continue
		}
		logging.Info("Resolver", "Resolved %s from repository %s", c, base)
		r.hit(TierRepository)
		return location, true, nil
	}

	logging.Debug("Resolver", "Artifact %s not found in any tier", c)
	if r.recorder != nil {
		r.recorder.ResolverMiss()
	}
	return "", false, nil
}

func (r *Resolver) hit(tier string) {
	if r.recorder != nil {
		r.recorder.ResolverHit(tier)
	}
}

func (r *Resolver) cachePath(rel string) string {
	return filepath.Join(r.cacheDir, filepath.FromSlash(rel))
}

// fromBundled copies rel out of the bundled resources. Without a cache the
// resource cannot be addressed from outside the binary, so it is skipped.
func (r *Resolver) fromBundled(rel string) (string, bool, error) {
	if r.cacheDir == "" {
		return "", false, nil
	}

	f, err := r.bundled.Open(rel)
	if err != nil {
		return "", false, nil
	}
	defer f.Close()

	if info, err := f.Stat(); err != nil || info.IsDir() {
		return "", false, nil
	}

	location, err := r.materialize(rel, f)
	if err != nil {
		return "", false, err
	}
	return location, true, nil
}

func (r *Resolver) fromRepository(ctx context.Context, base string, c Coordinate) (string, error) {
	if isRemote(base) {
		return r.fromRemote(ctx, strings.TrimSuffix(base, "/")+"/"+c.Path(), c)
	}

	p := filepath.Join(StripFileScheme(base), filepath.FromSlash(c.Path()))
	if !isRegularFile(p) {
		return "", fmt.Errorf("%s: %w", p, fs.ErrNotExist)
	}
	if r.cacheDir == "" {
		return p, nil
	}

	src, err := os.Open(p)
	if err != nil {
		return "", err
	}
	defer src.Close()
	return r.materialize(c.Path(), src)
}

func (r *Resolver) fromRemote(ctx context.Context, url string, c Coordinate) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("GET %s: unexpected status %s", url, resp.Status)
	}
	if r.cacheDir == "" {
		return url, nil
	}
	return r.materialize(c.Path(), resp.Body)
}

// materialize writes src to the cache at rel. The file appears atomically
// so concurrent readers never see a partial artifact.
func (r *Resolver) materialize(rel string, src io.Reader) (string, error) {
	dest := r.cachePath(rel)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("failed to create cache directory for %s: %w", rel, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+path.Base(rel)+".part-*")
	if err != nil {
		return "", fmt.Errorf("failed to cache %s: %w", rel, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to cache %s: %w", rel, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to cache %s: %w", rel, err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", fmt.Errorf("failed to cache %s: %w", rel, err)
	}

	logging.Debug("Resolver", "Cached %s", dest)
	return dest, nil
}

func isRemote(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}

// IsRemote reports whether location is an http or https URL.
func IsRemote(location string) bool {
	return isRemote(location)
}

func isRegularFile(p string) bool {
	info, err := os.Stat(p)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}

// Fetch downloads an arbitrary remote location into the cache under
// downloads/ and returns the local path. Non-remote locations are returned
// with any file: scheme removed.
func (r *Resolver) Fetch(ctx context.Context, location string) (string, error) {
	if !isRemote(location) {
		return StripFileScheme(location), nil
	}
	if r.cacheDir == "" {
		return "", errNoCache
	}

	v, err, _ := r.inflight.Do("fetch:"+location, func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
		if err != nil {
			return "", err
		}
		resp, err := r.client.Do(req)
		if err != nil {
			return "", err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("GET %s: unexpected status %s", location, resp.Status)
		}
		return r.materialize(downloadPath(location), resp.Body)
	})
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", location, err)
	}
	return v.(string), nil
}

// downloadPath maps a URL to a stable cache path that keeps its file name,
// so handlers can still sniff by extension.
func downloadPath(location string) string {
	rest := location[strings.Index(location, "://")+3:]
	if i := strings.IndexAny(rest, "?#"); i >= 0 {
		rest = rest[:i]
	}
	host, file, _ := strings.Cut(rest, "/")
	host = strings.NewReplacer(":", "_", "..", "_").Replace(host)
	file = strings.ReplaceAll(file, "..", "_")
	if file == "" {
		file = "index"
	}
	return path.Join("downloads", host, file)
}
