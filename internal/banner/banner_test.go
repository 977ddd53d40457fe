package banner

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minho/internal/config"
	"minho/internal/orchestrator"
	"minho/internal/services"
)

func TestRenderSources(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		s := New(&bytes.Buffer{}, "1.2.3", t.TempDir())
		text, err := s.Render()
		require.NoError(t, err)
		assert.Contains(t, text, "1.2.3 0 services")
	})

	t.Run("file in directory", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("custom {{ .Version | upper }}"), 0o644))

		s := New(&bytes.Buffer{}, "v1-beta", dir)
		text, err := s.Render()
		require.NoError(t, err)
		assert.Equal(t, "custom V1-BETA", text)
	})

	t.Run("property wins over file", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("from file"), 0o644))

		r := services.NewRegistry()
		_, err := r.Register(config.NewService(map[string]string{config.KeyBanner: "from config: {{ join \",\" .Services }}"}))
		require.NoError(t, err)

		s := New(&bytes.Buffer{}, "", dir)
		_, err = r.Register(s)
		require.NoError(t, err)

		text, err := s.Render()
		require.NoError(t, err)
		assert.Equal(t, "from config: config,banner", text)
	})
}

func TestPrintedOnStart(t *testing.T) {
	var out bytes.Buffer
	r := services.NewRegistry()
	lc := orchestrator.New()
	_, err := r.Register(lc)
	require.NoError(t, err)

	_, err = r.Register(config.NewService(map[string]string{config.KeyBanner: "hello {{ .Version }}\n"}))
	require.NoError(t, err)
	_, err = r.Register(New(&out, "9.9", t.TempDir()))
	require.NoError(t, err)

	assert.Empty(t, out.String())
	require.NoError(t, lc.Start(context.Background()))
	assert.Equal(t, "hello 9.9\n", out.String())
}

func TestBrokenBannerDoesNotFailStart(t *testing.T) {
	var out bytes.Buffer
	r := services.NewRegistry()
	lc := orchestrator.New()
	_, err := r.Register(lc)
	require.NoError(t, err)
	_, err = r.Register(config.NewService(map[string]string{config.KeyBanner: "{{ .Nope"}))
	require.NoError(t, err)
	_, err = r.Register(New(&out, "", t.TempDir()))
	require.NoError(t, err)

	assert.NoError(t, lc.Start(context.Background()))
	assert.Empty(t, out.String())
}
