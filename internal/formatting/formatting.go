// Package formatting renders runtime state for the command line: installed
// modules, the service boot sequence and resolution results, as a table,
// JSON or YAML.
package formatting

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"gopkg.in/yaml.v3"

	"minho/internal/dispatcher"
	"minho/internal/loader"
)

// OutputFormat represents the desired output format
type OutputFormat string

const (
	FormatTable OutputFormat = "table" // Rich table output
	FormatJSON  OutputFormat = "json"  // JSON output
	FormatYAML  OutputFormat = "yaml"  // YAML output
)

// ParseFormat validates s. An empty string selects the table format.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(s)) {
	case "", FormatTable:
		return FormatTable, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatYAML:
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want table, json or yaml)", s)
	}
}

// Module is the printed view of a dispatcher record.
type Module struct {
	ID          string            `json:"id" yaml:"id"`
	Location    string            `json:"location" yaml:"location"`
	Handler     string            `json:"handler" yaml:"handler"`
	Alive       bool              `json:"alive" yaml:"alive"`
	InstalledAt time.Time         `json:"installedAt" yaml:"installedAt"`
	Metadata    map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Service is the printed view of a boot sequence entry.
type Service struct {
	Name       string `json:"name" yaml:"name"`
	Priority   int    `json:"priority" yaml:"priority"`
	Overridden bool   `json:"overridden" yaml:"overridden"`
	Type       string `json:"type" yaml:"type"`
}

// Resolution is the outcome of resolving one coordinate.
type Resolution struct {
	Coordinate string `json:"coordinate" yaml:"coordinate"`
	Location   string `json:"location,omitempty" yaml:"location,omitempty"`
	Found      bool   `json:"found" yaml:"found"`
	Error      string `json:"error,omitempty" yaml:"error,omitempty"`
}

// ModuleFromRecord converts a dispatcher record.
func ModuleFromRecord(rec dispatcher.Record, alive bool) Module {
	return Module{
		ID:          rec.ID,
		Location:    rec.Location,
		Handler:     rec.Handler,
		Alive:       alive,
		InstalledAt: rec.InstalledAt,
		Metadata:    rec.Metadata,
	}
}

// ServicesFromSequence converts a loader sequence.
func ServicesFromSequence(entries []loader.Entry) []Service {
	out := make([]Service, len(entries))
	for i, e := range entries {
		out[i] = Service{
			Name:       e.Service.Name(),
			Priority:   e.Priority,
			Overridden: e.Overridden,
			Type:       fmt.Sprintf("%T", e.Service),
		}
	}
	return out
}

// Printer writes views in one format.
type Printer struct {
	out    io.Writer
	format OutputFormat
}

// NewPrinter creates a printer writing to out.
func NewPrinter(out io.Writer, format OutputFormat) *Printer {
	return &Printer{out: out, format: format}
}

// Modules prints installed modules.
func (p *Printer) Modules(modules []Module) error {
	if p.format != FormatTable {
		return p.encode(modules)
	}
	if len(modules) == 0 {
		return p.empty("No modules installed")
	}

	t := p.createTable()
	t.AppendHeader(header("ID", "HANDLER", "STATE", "LOCATION", "INSTALLED"))
	for _, m := range modules {
		t.AppendRow(table.Row{
			text.FgHiCyan.Sprint(m.ID),
			m.Handler,
			state(m.Alive),
			m.Location,
			m.InstalledAt.Format(time.RFC3339),
		})
	}
	t.Render()
	return nil
}

// Module prints one module with its metadata.
func (p *Printer) Module(m Module) error {
	if p.format != FormatTable {
		return p.encode(m)
	}

	t := p.createTable()
	t.AppendHeader(header("KEY", "VALUE"))
	t.AppendRow(table.Row{text.FgHiCyan.Sprint("id"), m.ID})
	t.AppendRow(table.Row{text.FgHiCyan.Sprint("handler"), m.Handler})
	t.AppendRow(table.Row{text.FgHiCyan.Sprint("state"), state(m.Alive)})
	t.AppendRow(table.Row{text.FgHiCyan.Sprint("location"), m.Location})

	keys := make([]string, 0, len(m.Metadata))
	for k := range m.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	t.AppendSeparator()
	for _, k := range keys {
		t.AppendRow(table.Row{k, truncate(m.Metadata[k], 100)})
	}
	t.Render()
	return nil
}

// Services prints the boot sequence.
func (p *Printer) Services(svcs []Service) error {
	if p.format != FormatTable {
		return p.encode(svcs)
	}

	t := p.createTable()
	t.AppendHeader(header("#", "NAME", "PRIORITY", "TYPE"))
	for i, s := range svcs {
		priority := fmt.Sprint(s.Priority)
		if s.Overridden {
			priority = text.FgYellow.Sprint(priority + " *")
		}
		t.AppendRow(table.Row{i + 1, text.FgHiCyan.Sprint(s.Name), priority, s.Type})
	}
	t.Render()
	return nil
}

// Resolutions prints resolution results.
func (p *Printer) Resolutions(results []Resolution) error {
	if p.format != FormatTable {
		return p.encode(results)
	}

	t := p.createTable()
	t.AppendHeader(header("COORDINATE", "LOCATION"))
	for _, r := range results {
		location := r.Location
		switch {
		case r.Error != "":
			location = text.FgRed.Sprint(r.Error)
		case !r.Found:
			location = text.FgYellow.Sprint("not found")
		}
		t.AppendRow(table.Row{text.FgHiCyan.Sprint(r.Coordinate), location})
	}
	t.Render()
	return nil
}

func (p *Printer) encode(v any) error {
	switch p.format {
	case FormatJSON:
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(p.out, string(b))
		return err
	case FormatYAML:
		enc := yaml.NewEncoder(p.out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported output format %q", p.format)
	}
}

// createTable creates a new table with standard styling
func (p *Printer) createTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(p.out)
	t.SetStyle(table.StyleRounded)
	return t
}

// empty formats empty result messages
func (p *Printer) empty(message string) error {
	_, err := fmt.Fprintf(p.out, "%s %s\n", text.FgYellow.Sprint("📋"), text.FgYellow.Sprint(message))
	return err
}

func header(names ...string) table.Row {
	row := make(table.Row, len(names))
	for i, n := range names {
		row[i] = text.FgHiCyan.Sprint(n)
	}
	return row
}

func state(alive bool) string {
	if alive {
		return text.FgGreen.Sprint("alive")
	}
	return text.FgRed.Sprint("stopped")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
