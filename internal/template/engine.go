// Package template renders text/template sources with the sprig function
// library.
package template

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// Engine renders templates. Parsed templates are not cached; the sources
// it serves are rendered once per process.
type Engine struct {
	funcs template.FuncMap
}

// New creates an engine with the sprig functions plus extra. Functions in
// extra override sprig functions of the same name.
func New(extra template.FuncMap) *Engine {
	funcs := sprig.TxtFuncMap()
	for name, fn := range extra {
		funcs[name] = fn
	}
	return &Engine{funcs: funcs}
}

// Render executes text with data. Missing map keys are an error.
func (e *Engine) Render(name, text string, data any) (string, error) {
	tmpl, err := template.New(name).Funcs(e.funcs).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", fmt.Errorf("failed to parse template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", name, err)
	}
	return buf.String(), nil
}
