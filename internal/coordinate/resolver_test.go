package coordinate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRecorder struct {
	mu     sync.Mutex
	hits   map[string]int
	misses int
}

func (r *countingRecorder) ResolverHit(tier string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.hits == nil {
		r.hits = map[string]int{}
	}
	r.hits[tier]++
}

func (r *countingRecorder) ResolverMiss() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.misses++
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestResolve_CacheTierOrder(t *testing.T) {
	cache := t.TempDir()
	writeFile(t, filepath.Join(cache, "g/a/1.0/a-1.0.jar"), "versioned")

	rec := &countingRecorder{}
	r := NewResolver(Options{CacheDir: cache, Recorder: rec})

	location, found, err := r.Resolve(context.Background(), "mvn:g/a/1.0")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, filepath.Join(cache, "g/a/1.0/a-1.0.jar"), location)
	assert.Equal(t, 1, rec.hits[TierCache])

	writeFile(t, filepath.Join(cache, "g/a/1.0/a.jar"), "versionless")
	location, found, err = r.Resolve(context.Background(), "mvn:g/a/1.0")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, filepath.Join(cache, "g/a/1.0/a.jar"), location)
	assert.Equal(t, 1, rec.hits[TierCacheVersionless])
}

func TestResolve_BundledIsMaterialized(t *testing.T) {
	cache := t.TempDir()
	bundled := fstest.MapFS{
		"org/example/tool/1.0/tool-1.0.zip": {Data: []byte("bundled bytes")},
	}
	rec := &countingRecorder{}
	r := NewResolver(Options{CacheDir: cache, Bundled: bundled, Recorder: rec})

	location, found, err := r.Resolve(context.Background(), "mvn:org.example/tool/1.0/zip")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, filepath.Join(cache, "org/example/tool/1.0/tool-1.0.zip"), location)
	assert.Equal(t, 1, rec.hits[TierBundled])

	data, err := os.ReadFile(location)
	require.NoError(t, err)
	assert.Equal(t, "bundled bytes", string(data))

	again, found, err := r.Resolve(context.Background(), "mvn:org.example/tool/1.0/zip")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, location, again)
	assert.Equal(t, 1, rec.hits[TierCache])
}

func TestResolve_BundledVersionlessWins(t *testing.T) {
	cache := t.TempDir()
	bundled := fstest.MapFS{
		"g/a/1.0/a.jar":     {Data: []byte("versionless")},
		"g/a/1.0/a-1.0.jar": {Data: []byte("versioned")},
	}
	r := NewResolver(Options{CacheDir: cache, Bundled: bundled})

	location, found, err := r.Resolve(context.Background(), "mvn:g/a/1.0")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, filepath.Join(cache, "g/a/1.0/a.jar"), location)
}

func TestResolve_RemoteThenCacheWithRemoteDown(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		requests.Add(1)
		if req.URL.Path != "/maven2/org/example/app/2.0/app-2.0.jar" {
			http.NotFound(w, req)
			return
		}
		_, _ = w.Write([]byte("remote artifact"))
	}))

	cache := t.TempDir()
	r := NewResolver(Options{
		CacheDir:     cache,
		Repositories: []string{server.URL + "/missing", server.URL + "/maven2/"},
	})

	first, found, err := r.Resolve(context.Background(), "mvn:org.example/app/2.0")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, filepath.Join(cache, "org/example/app/2.0/app-2.0.jar"), first)
	assert.Equal(t, int32(2), requests.Load(), "the first repository miss must fall through to the next")

	server.Close()

	second, found, err := r.Resolve(context.Background(), "mvn:org.example/app/2.0")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, first, second)
}

func TestResolve_RemoteWithoutCacheReturnsURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	r := NewResolver(Options{Repositories: []string{server.URL}})
	location, found, err := r.Resolve(context.Background(), "mvn:g/a/1.0")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, server.URL+"/g/a/1.0/a-1.0.jar", location)
}

func TestResolve_RepositoryOverride(t *testing.T) {
	configured := t.TempDir()
	override := t.TempDir()
	writeFile(t, filepath.Join(configured, "g/a/1.0/a-1.0.jar"), "configured")
	writeFile(t, filepath.Join(override, "g/a/1.0/a-1.0.jar"), "override")

	r := NewResolver(Options{Repositories: []string{configured}})

	location, found, err := r.Resolve(context.Background(), "mvn:file:"+override+"!g/a/1.0")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, filepath.Join(override, "g/a/1.0/a-1.0.jar"), location)
}

func TestResolve_LocalRepositoryIsCached(t *testing.T) {
	repo := t.TempDir()
	cache := t.TempDir()
	writeFile(t, filepath.Join(repo, "g/a/1.0/a-1.0.jar"), "local")

	r := NewResolver(Options{CacheDir: cache, Repositories: []string{"file:" + repo}})
	location, found, err := r.Resolve(context.Background(), "mvn:g/a/1.0")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, filepath.Join(cache, "g/a/1.0/a-1.0.jar"), location)
}

func TestResolve_NotFoundIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	rec := &countingRecorder{}
	r := NewResolver(Options{
		CacheDir:     t.TempDir(),
		Repositories: []string{server.URL, "http://127.0.0.1:1/unreachable", t.TempDir()},
		Bundled:      fstest.MapFS{},
		Recorder:     rec,
	})

	location, found, err := r.Resolve(context.Background(), "mvn:g/missing/1.0")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, location)
	assert.Equal(t, 1, rec.misses)
}

func TestResolve_Malformed(t *testing.T) {
	r := NewResolver(Options{})
	_, _, err := r.Resolve(context.Background(), "mvn:g")
	assert.ErrorIs(t, err, ErrMalformedCoordinate)
}

func TestFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path == "/apps/hello.zip" {
			_, _ = w.Write([]byte("zip bytes"))
			return
		}
		http.NotFound(w, req)
	}))
	defer server.Close()

	cache := t.TempDir()
	r := NewResolver(Options{CacheDir: cache})

	local, err := r.Fetch(context.Background(), server.URL+"/apps/hello.zip?v=1")
	require.NoError(t, err)
	assert.Equal(t, "hello.zip", filepath.Base(local))
	data, err := os.ReadFile(local)
	require.NoError(t, err)
	assert.Equal(t, "zip bytes", string(data))

	_, err = r.Fetch(context.Background(), server.URL+"/apps/missing.zip")
	assert.Error(t, err)

	path, err := r.Fetch(context.Background(), "file:/opt/app.sh")
	require.NoError(t, err)
	assert.Equal(t, "/opt/app.sh", path)
}

func TestFetch_RequiresCache(t *testing.T) {
	r := NewResolver(Options{})
	_, err := r.Fetch(context.Background(), "https://example.com/a.zip")
	assert.Error(t, err)
}
