package formatting

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"minho/internal/dispatcher"
	"minho/internal/loader"
	"minho/internal/services"
)

type namedService struct {
	services.Base
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input    string
		expected OutputFormat
		wantErr  bool
	}{
		{input: "", expected: FormatTable},
		{input: "table", expected: FormatTable},
		{input: "JSON", expected: FormatJSON},
		{input: "yaml", expected: FormatYAML},
		{input: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func sampleModules() []Module {
	rec := dispatcher.Record{
		ID:          "org.example.api/1.0.0",
		Location:    "mvn:org.example/api/1.0.0",
		Handler:     "bundle",
		Metadata:    map[string]string{"state": "ACTIVE"},
		InstalledAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	return []Module{ModuleFromRecord(rec, true)}
}

func TestModules(t *testing.T) {
	t.Run("table", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, NewPrinter(&buf, FormatTable).Modules(sampleModules()))
		out := buf.String()
		assert.Contains(t, out, "org.example.api/1.0.0")
		assert.Contains(t, out, "alive")
		assert.Contains(t, out, "2026-01-02T03:04:05Z")
	})

	t.Run("empty table", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, NewPrinter(&buf, FormatTable).Modules(nil))
		assert.Contains(t, buf.String(), "No modules installed")
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, NewPrinter(&buf, FormatJSON).Modules(sampleModules()))

		var decoded []Module
		require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
		assert.Equal(t, sampleModules(), decoded)
	})

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, NewPrinter(&buf, FormatYAML).Modules(sampleModules()))

		var decoded []map[string]any
		require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
		require.Len(t, decoded, 1)
		assert.Equal(t, "bundle", decoded[0]["handler"])
	})
}

func TestModuleDetail(t *testing.T) {
	var buf bytes.Buffer
	m := sampleModules()[0]
	m.Metadata["Bundle-Description"] = string(bytes.Repeat([]byte("x"), 150))

	require.NoError(t, NewPrinter(&buf, FormatTable).Module(m))
	out := buf.String()
	assert.Contains(t, out, "ACTIVE")
	assert.Contains(t, out, "...")
	assert.NotContains(t, out, string(bytes.Repeat([]byte("x"), 150)))
}

func TestServices(t *testing.T) {
	entries := []loader.Entry{
		{Service: &namedService{services.NewBase("config", -2000)}, Priority: -2000},
		{Service: &namedService{services.NewBase("dispatcher", -400)}, Priority: -450, Overridden: true},
	}
	svcs := ServicesFromSequence(entries)
	assert.Equal(t, "*formatting.namedService", svcs[0].Type)
	assert.True(t, svcs[1].Overridden)

	var buf bytes.Buffer
	require.NoError(t, NewPrinter(&buf, FormatTable).Services(svcs))
	out := buf.String()
	assert.Contains(t, out, "config")
	assert.Contains(t, out, "-450 *")
}

func TestResolutions(t *testing.T) {
	results := []Resolution{
		{Coordinate: "mvn:g/a/1", Location: "/cache/g/a/1/a-1.jar", Found: true},
		{Coordinate: "mvn:g/b/1"},
		{Coordinate: "mvn:bad", Error: "malformed coordinate"},
	}

	var buf bytes.Buffer
	require.NoError(t, NewPrinter(&buf, FormatTable).Resolutions(results))
	out := buf.String()
	assert.Contains(t, out, "/cache/g/a/1/a-1.jar")
	assert.Contains(t, out, "not found")
	assert.Contains(t, out, "malformed coordinate")

	buf.Reset()
	require.NoError(t, NewPrinter(&buf, FormatJSON).Resolutions(results))
	assert.Contains(t, buf.String(), `"found": false`)
}
