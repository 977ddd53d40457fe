package bundle

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minho/internal/config"
	"minho/internal/dispatcher"
	"minho/internal/orchestrator"
	"minho/internal/services"
)

func writeZip(t *testing.T, path string, files map[string]string) string {
	t.Helper()

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return path
}

func TestParseManifest(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected map[string]string
		wantErr  bool
	}{
		{
			name:  "simple headers",
			input: "Manifest-Version: 1.0\r\nBundle-SymbolicName: org.example.api\r\nBundle-Version: 1.2.0\r\n",
			expected: map[string]string{
				"Manifest-Version":    "1.0",
				"Bundle-SymbolicName": "org.example.api",
				"Bundle-Version":      "1.2.0",
			},
		},
		{
			name:  "continuation lines",
			input: "Export-Package: org.example.a,\n org.example.b\nBundle-SymbolicName: x\n",
			expected: map[string]string{
				"Export-Package":      "org.example.a,org.example.b",
				"Bundle-SymbolicName": "x",
			},
		},
		{
			name:    "missing separator",
			input:   "not a header\n",
			wantErr: true,
		},
		{
			name:    "leading continuation",
			input:   " dangling\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseManifest(strings.NewReader(tt.input))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestCanHandle(t *testing.T) {
	dir := t.TempDir()
	h := New(t.TempDir())
	ctx := context.Background()

	valid := writeZip(t, filepath.Join(dir, "valid.jar"), map[string]string{
		ManifestPath: "Bundle-SymbolicName: org.example.api;singleton:=true\n",
	})
	plain := writeZip(t, filepath.Join(dir, "plain.jar"), map[string]string{
		ManifestPath: "Manifest-Version: 1.0\n",
	})
	noManifest := writeZip(t, filepath.Join(dir, "none.zip"), map[string]string{"a.txt": "a"})
	text := filepath.Join(dir, "file.txt")
	require.NoError(t, os.WriteFile(text, []byte("hello"), 0o644))

	assert.True(t, h.CanHandle(ctx, valid))
	assert.False(t, h.CanHandle(ctx, plain))
	assert.False(t, h.CanHandle(ctx, noManifest))
	assert.False(t, h.CanHandle(ctx, text))
	assert.False(t, h.CanHandle(ctx, filepath.Join(dir, "missing.jar")))
}

func TestInstallLifecycle(t *testing.T) {
	storage := t.TempDir()
	h := New(storage)
	ctx := context.Background()

	archive := writeZip(t, filepath.Join(t.TempDir(), "api.jar"), map[string]string{
		ManifestPath:             "Bundle-SymbolicName: org.example.api;singleton:=true\nBundle-Version: 1.2.0\n",
		"org/example/api/A.txt":  "a",
		"resources/config.props": "k=v",
	})

	id, err := h.Install(ctx, archive, nil)
	require.NoError(t, err)
	assert.Equal(t, "org.example.api/1.2.0", id)
	assert.True(t, h.IsAlive(id))
	assert.Equal(t, []string{id}, h.Bundles())

	md := h.Metadata(id)
	assert.Equal(t, StateActive, md["state"])
	assert.Equal(t, "1.2.0", md[HeaderVersion])
	assert.FileExists(t, filepath.Join(md["path"], "resources", "config.props"))

	_, err = h.Install(ctx, archive, nil)
	assert.ErrorContains(t, err, "already installed")

	require.NoError(t, h.Uninstall(ctx, id))
	assert.False(t, h.IsAlive(id))
	assert.NoDirExists(t, md["path"])
	assert.Nil(t, h.Metadata(id))
	assert.Error(t, h.Uninstall(ctx, id))
}

func TestInstallDefaultsAndInactive(t *testing.T) {
	h := New(t.TempDir())
	archive := writeZip(t, filepath.Join(t.TempDir(), "lib.jar"), map[string]string{
		ManifestPath: "Bundle-SymbolicName: org.example.lib\n",
	})

	id, err := h.Install(context.Background(), archive, map[string]string{"start": "false"})
	require.NoError(t, err)
	assert.Equal(t, "org.example.lib/"+DefaultVersion, id)
	assert.False(t, h.IsAlive(id))
	assert.Equal(t, StateInstalled, h.Metadata(id)["state"])
}

func TestInstallRejectsEscapingEntries(t *testing.T) {
	storage := t.TempDir()
	h := New(storage)
	archive := writeZip(t, filepath.Join(t.TempDir(), "evil.jar"), map[string]string{
		ManifestPath:       "Bundle-SymbolicName: evil\n",
		"../../outside.txt": "x",
	})

	_, err := h.Install(context.Background(), archive, nil)
	require.Error(t, err)
	assert.Empty(t, h.Bundles())
}

func TestRegistersWithDispatcher(t *testing.T) {
	storage := t.TempDir()
	r := services.NewRegistry()
	cfg := config.NewService(map[string]string{config.KeyBundles: storage})
	d := dispatcher.New(nil)

	for _, svc := range []services.Service{cfg, orchestrator.New(), d, New("")} {
		_, err := r.Register(svc)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"bundle"}, d.Handlers())

	archive := writeZip(t, filepath.Join(t.TempDir(), "app.jar"), map[string]string{
		ManifestPath: "Bundle-SymbolicName: org.example.app\nBundle-Version: 2.0.0\n",
	})

	rec, err := d.Install(context.Background(), archive, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "org.example.app/2.0.0", rec.ID)
	assert.Equal(t, "bundle", rec.Handler)
	assert.Equal(t, StateActive, rec.Metadata["state"])
	assert.True(t, strings.HasPrefix(rec.Metadata["path"], storage))

	require.NoError(t, d.RemoveAll(context.Background()))
	assert.Empty(t, d.IDs())
}
