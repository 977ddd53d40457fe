package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minho/internal/config"
	"minho/internal/orchestrator"
	"minho/internal/services"
)

type fakeHandler struct {
	name       string
	accept     func(location string) bool
	installErr error
	removeErr  error
	fixedID    string

	mu        sync.Mutex
	next      int
	installed map[string]string
	args      map[string]map[string]string
}

func newFakeHandler(name string, accept func(string) bool) *fakeHandler {
	return &fakeHandler{
		name:      name,
		accept:    accept,
		installed: map[string]string{},
		args:      map[string]map[string]string{},
	}
}

func (h *fakeHandler) Name() string { return h.name }

func (h *fakeHandler) CanHandle(ctx context.Context, location string) bool {
	return h.accept(location)
}

func (h *fakeHandler) Install(ctx context.Context, location string, args map[string]string) (string, error) {
	if h.installErr != nil {
		return "", h.installErr
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	id := fmt.Sprintf("%s-%d", h.name, h.next)
	if h.fixedID != "" {
		id = h.fixedID
	}
	h.installed[id] = location
	h.args[id] = args
	return id, nil
}

func (h *fakeHandler) IsAlive(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.installed[id]
	return ok
}

func (h *fakeHandler) Uninstall(ctx context.Context, id string) error {
	if h.removeErr != nil {
		return h.removeErr
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.installed, id)
	return nil
}

func (h *fakeHandler) Metadata(id string) map[string]string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return map[string]string{"target": h.installed[id]}
}

type fakeResolver struct {
	resolved map[string]string
	fetched  []string
}

func (r *fakeResolver) Resolve(ctx context.Context, uri string) (string, bool, error) {
	if strings.HasPrefix(uri, "mvn:bad") {
		return "", false, errors.New("malformed")
	}
	loc, ok := r.resolved[uri]
	return loc, ok, nil
}

func (r *fakeResolver) Fetch(ctx context.Context, location string) (string, error) {
	r.fetched = append(r.fetched, location)
	return "/cache/downloads/" + location[strings.LastIndex(location, "/")+1:], nil
}

type opRecorder struct {
	ops       []string
	installed int
}

func (r *opRecorder) Name() string  { return "recorder" }
func (r *opRecorder) Priority() int { return -800 }

func (r *opRecorder) DispatcherOperation(op, result string) {
	r.ops = append(r.ops, op+":"+result)
}

func (r *opRecorder) InstalledModules(n int) { r.installed = n }

func acceptAll(string) bool { return true }

func acceptSuffix(suffix string) func(string) bool {
	return func(location string) bool { return strings.HasSuffix(location, suffix) }
}

func newDispatcher(t *testing.T, handlers ...Handler) *Dispatcher {
	t.Helper()
	d := New(nil)
	for _, h := range handlers {
		require.NoError(t, d.AddHandler(h))
	}
	return d
}

func TestInstall_IDClash(t *testing.T) {
	h := newFakeHandler("generic", acceptAll)
	h.fixedID = "fixed"
	d := newDispatcher(t, h)
	ctx := context.Background()

	_, err := d.Install(ctx, "/srv/a.zip", "", nil)
	require.NoError(t, err)

	_, err = d.Install(ctx, "/srv/b.zip", "", nil)
	var instErr *InstallationError
	require.ErrorAs(t, err, &instErr)
	assert.Equal(t, "/srv/b.zip", instErr.Location)

	location, ok := d.Location("fixed")
	require.True(t, ok)
	assert.Equal(t, "/srv/a.zip", location)

	alive, err := d.IsAlive("fixed")
	require.NoError(t, err)
	assert.True(t, alive, "the installed module must survive a clashing install")
	assert.Len(t, d.List(), 1)
}

func TestInstall_DuplicateLocation(t *testing.T) {
	d := newDispatcher(t, newFakeHandler("generic", acceptAll))
	ctx := context.Background()

	first, err := d.Install(ctx, "/srv/app.zip", "", nil)
	require.NoError(t, err)

	_, err = d.Install(ctx, "/srv/app.zip", "", nil)
	assert.ErrorIs(t, err, ErrAlreadyInstalled)
	assert.Len(t, d.List(), 1)

	require.NoError(t, d.Remove(ctx, first.ID))

	second, err := d.Install(ctx, "/srv/app.zip", "", nil)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, []string{second.ID}, d.IDs())
}

func TestInstall_UnsupportedLeavesStoreUnchanged(t *testing.T) {
	d := newDispatcher(t, newFakeHandler("zip", acceptSuffix(".zip")))
	ctx := context.Background()

	_, err := d.Install(ctx, "/srv/existing.zip", "", nil)
	require.NoError(t, err)
	before := d.List()

	_, err = d.Install(ctx, "/srv/notes.txt", "", nil)
	assert.ErrorIs(t, err, ErrUnsupportedArtifact)
	assert.Equal(t, before, d.List())

	_, err = d.Install(ctx, "/srv/other.zip", "missing", nil)
	assert.ErrorIs(t, err, ErrUnsupportedArtifact)
	assert.Equal(t, before, d.List())
}

func TestInstall_HandlerSelection(t *testing.T) {
	generic := newFakeHandler("generic", acceptAll)
	specific := newFakeHandler("zip", acceptSuffix(".zip"))

	tests := []struct {
		name        string
		handlers    []Handler
		location    string
		explicit    string
		wantHandler string
	}{
		{"first match wins", []Handler{generic, specific}, "/a.zip", "", "generic"},
		{"order is load-bearing", []Handler{specific, generic}, "/b.zip", "", "zip"},
		{"fallback to later handler", []Handler{specific, generic}, "/c.txt", "", "generic"},
		{"explicit name bypasses probing", []Handler{generic, specific}, "/d.txt", "zip", "zip"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDispatcher(t, tt.handlers...)
			rec, err := d.Install(context.Background(), tt.location, tt.explicit, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.wantHandler, rec.Handler)
			assert.Equal(t, tt.location, rec.Location)
		})
	}
}

func TestAddHandler_DuplicateName(t *testing.T) {
	d := newDispatcher(t, newFakeHandler("zip", acceptAll))
	assert.Error(t, d.AddHandler(newFakeHandler("zip", acceptAll)))
	assert.Equal(t, []string{"zip"}, d.Handlers())
}

func TestInstall_HandlerFailure(t *testing.T) {
	h := newFakeHandler("broken", acceptAll)
	cause := errors.New("corrupt archive")
	h.installErr = cause
	d := newDispatcher(t, h)

	_, err := d.Install(context.Background(), "/srv/app.zip", "", nil)

	var instErr *InstallationError
	require.ErrorAs(t, err, &instErr)
	assert.Equal(t, "/srv/app.zip", instErr.Location)
	assert.Equal(t, "broken", instErr.Handler)
	assert.ErrorIs(t, err, cause)
	assert.Empty(t, d.List())
}

func TestInstall_PassesPropertiesAndMetadata(t *testing.T) {
	h := newFakeHandler("generic", acceptAll)
	d := newDispatcher(t, h)

	rec, err := d.Install(context.Background(), "file:/srv/app.sh", "", map[string]string{"args": "-v"})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"args": "-v"}, h.args[rec.ID])
	assert.Equal(t, "/srv/app.sh", rec.Metadata["target"])
	assert.Equal(t, "/srv/app.sh", rec.Metadata["resolved"])
	assert.False(t, rec.InstalledAt.IsZero())

	rec.Metadata["target"] = "mutated"
	stored, ok := d.Get(rec.ID)
	require.True(t, ok)
	assert.Equal(t, "/srv/app.sh", stored.Metadata["target"])
}

func TestInstall_ResolvesCoordinates(t *testing.T) {
	h := newFakeHandler("generic", acceptAll)
	res := &fakeResolver{resolved: map[string]string{
		"mvn:org.example/app/1.0/zip":    "/cache/org/example/app/1.0/app-1.0.zip",
		"mvn:org.example/remote/1.0/zip": "https://repo/org/example/remote/1.0/remote-1.0.zip",
	}}
	d := New(res)
	require.NoError(t, d.AddHandler(h))
	ctx := context.Background()

	rec, err := d.Install(ctx, "mvn:org.example/app/1.0/zip", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "mvn:org.example/app/1.0/zip", rec.Location)
	assert.Equal(t, "/cache/org/example/app/1.0/app-1.0.zip", h.installed[rec.ID])

	loc, ok := d.Location(rec.ID)
	require.True(t, ok)
	assert.Equal(t, "mvn:org.example/app/1.0/zip", loc)

	rec, err = d.Install(ctx, "mvn:org.example/remote/1.0/zip", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "/cache/downloads/remote-1.0.zip", h.installed[rec.ID])

	rec, err = d.Install(ctx, "https://example.com/apps/direct.zip", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "/cache/downloads/direct.zip", h.installed[rec.ID])
	assert.Len(t, res.fetched, 2)

	_, err = d.Install(ctx, "mvn:org.example/missing/1.0", "", nil)
	assert.ErrorIs(t, err, ErrArtifactNotFound)
	var instErr *InstallationError
	assert.ErrorAs(t, err, &instErr)

	_, err = d.Install(ctx, "mvn:bad", "", nil)
	assert.ErrorAs(t, err, &instErr)
	assert.Len(t, d.List(), 3)
}

func TestInstall_CoordinateWithoutResolver(t *testing.T) {
	d := newDispatcher(t, newFakeHandler("generic", acceptAll))
	_, err := d.Install(context.Background(), "mvn:g/a/1.0", "", nil)
	var instErr *InstallationError
	assert.ErrorAs(t, err, &instErr)
}

func TestRemove(t *testing.T) {
	h := newFakeHandler("generic", acceptAll)
	d := newDispatcher(t, h)
	ctx := context.Background()

	err := d.Remove(ctx, "unknown")
	assert.ErrorIs(t, err, ErrNotFound)

	rec, err := d.Install(ctx, "/srv/app", "", nil)
	require.NoError(t, err)

	alive, err := d.IsAlive(rec.ID)
	require.NoError(t, err)
	assert.True(t, alive)

	h.removeErr = errors.New("still busy")
	err = d.Remove(ctx, rec.ID)
	var remErr *RemovalError
	require.ErrorAs(t, err, &remErr)
	assert.Equal(t, rec.ID, remErr.ID)
	assert.Equal(t, "generic", remErr.Handler)
	_, ok := d.Get(rec.ID)
	assert.True(t, ok, "record must survive a failed removal")

	h.removeErr = nil
	require.NoError(t, d.RemoveLocation(ctx, "/srv/app"))
	_, ok = d.Get(rec.ID)
	assert.False(t, ok)

	_, err = d.IsAlive(rec.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, d.RemoveLocation(ctx, "/srv/app"), ErrNotFound)
}

func TestRemoveAll_AggregatesFailures(t *testing.T) {
	good := newFakeHandler("good", acceptSuffix(".ok"))
	bad := newFakeHandler("bad", acceptSuffix(".bad"))
	d := newDispatcher(t, good, bad)
	ctx := context.Background()

	for _, loc := range []string{"/1.ok", "/2.bad", "/3.ok"} {
		_, err := d.Install(ctx, loc, "", nil)
		require.NoError(t, err)
	}
	bad.removeErr = errors.New("refused")

	err := d.Close()
	var aggErr *services.AggregateError
	require.ErrorAs(t, err, &aggErr)
	assert.Equal(t, 1, aggErr.Count())

	records := d.List()
	require.Len(t, records, 1)
	assert.Equal(t, "/2.bad", records[0].Location)
}

func TestConcurrentInstallsAndReads(t *testing.T) {
	d := newDispatcher(t, newFakeHandler("generic", acceptAll))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, err := d.Install(ctx, fmt.Sprintf("/srv/app-%d", i), "", nil)
			assert.NoError(t, err)
		}(i)
		go func() {
			defer wg.Done()
			for _, id := range d.IDs() {
				_, _ = d.IsAlive(id)
			}
			_ = d.List()
		}()
	}
	wg.Wait()

	assert.Len(t, d.IDs(), 20)
}

func TestOnRegister_InstallsConfiguredApplications(t *testing.T) {
	r := services.NewRegistry()
	cfg := config.NewService(map[string]string{
		"application.web.url":     "/srv/web.zip",
		"application.web.type":    "zip",
		"application.web.profile": "prod",
		"application.api.url":     "/srv/api.txt",
		"application.bad.url":     "/srv/nothing-accepts-this",
	})
	lc := orchestrator.New()
	rec := &opRecorder{}

	for _, svc := range []services.Service{cfg, lc, rec} {
		_, err := r.Register(svc)
		require.NoError(t, err)
	}

	d := New(nil)
	_, err := r.Register(d)
	require.NoError(t, err)

	zip := newFakeHandler("zip", acceptSuffix(".zip"))
	txt := newFakeHandler("txt", acceptSuffix(".txt"))
	require.NoError(t, d.AddHandler(zip))
	require.NoError(t, d.AddHandler(txt))

	err = lc.Start(context.Background())
	var aggErr *services.AggregateError
	require.ErrorAs(t, err, &aggErr)
	assert.ErrorIs(t, err, ErrUnsupportedArtifact)

	records := d.List()
	require.Len(t, records, 2)
	assert.Equal(t, "/srv/api.txt", records[0].Location)
	assert.Equal(t, "txt", records[0].Handler)
	assert.Equal(t, "zip", records[1].Handler)
	assert.Equal(t, "prod", zip.args[records[1].ID]["profile"])

	assert.Contains(t, rec.ops, "install:failure")
	assert.Equal(t, 2, rec.installed)

	require.NoError(t, r.Shutdown())
	assert.Empty(t, d.List())
}

func TestOnRegister_RequiresLifecycle(t *testing.T) {
	r := services.NewRegistry()
	_, err := r.Register(New(nil))
	var regErr *services.RegistrationError
	assert.ErrorAs(t, err, &regErr)
}
