// Package banner prints a startup banner once the lifecycle has started.
//
// The banner text is taken from the "banner" property, then from a
// banner.txt file in the working directory, then from the built-in
// default. It is rendered as a template with the runtime version, the
// registered service names, the installed module ids and the cache
// directory.
package banner

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"minho/internal/config"
	"minho/internal/dispatcher"
	"minho/internal/orchestrator"
	"minho/internal/services"
	"minho/internal/template"
	"minho/pkg/logging"
)

//go:embed banner.txt
var defaultBanner string

// FileName is looked up in the working directory.
const FileName = "banner.txt"

// Data is passed to the banner template.
type Data struct {
	Version  string
	Services []string
	Modules  []string
	Cache    string
}

// Service renders the banner.
type Service struct {
	services.Base

	out     io.Writer
	version string
	dir     string
	engine  *template.Engine

	registry   *services.Registry
	cfg        *config.Service
	dispatcher *dispatcher.Dispatcher
}

// New creates a banner printed to out. dir is searched for banner.txt; an
// empty dir means the working directory.
func New(out io.Writer, version, dir string) *Service {
	return &Service{
		Base:    services.NewBase("banner", services.PriorityLast),
		out:     out,
		version: version,
		dir:     dir,
		engine:  template.New(nil),
	}
}

// OnRegister prints the banner from a start callback. Without a lifecycle
// there is nothing to announce.
func (s *Service) OnRegister(r *services.Registry) error {
	s.registry = r

	cfg, ok, err := services.Get[*config.Service](r)
	if err != nil {
		return err
	}
	if ok {
		s.cfg = cfg
	}
	d, ok, err := services.Get[*dispatcher.Dispatcher](r)
	if err != nil {
		return err
	}
	if ok {
		s.dispatcher = d
	}

	lc, ok, err := services.Get[*orchestrator.Orchestrator](r)
	if err != nil || !ok {
		return err
	}
	return lc.OnStart(s.Name(), s.print)
}

func (s *Service) print(ctx context.Context) error {
	text, err := s.Render()
	if err != nil {
		// A broken banner must not fail the start.
		logging.Warn("Banner", "Failed to render banner: %v", err)
		return nil
	}
	_, err = fmt.Fprintln(s.out, strings.TrimRight(text, "\n"))
	return err
}

// Render returns the rendered banner.
func (s *Service) Render() (string, error) {
	source, name, err := s.source()
	if err != nil {
		return "", err
	}
	return s.engine.Render(name, source, s.data())
}

func (s *Service) source() (text, name string, err error) {
	if s.cfg != nil {
		if v, ok := s.cfg.Lookup(config.KeyBanner); ok && v != "" {
			return v, config.KeyBanner, nil
		}
	}

	path := filepath.Join(s.dir, FileName)
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		return string(b), path, nil
	case errors.Is(err, fs.ErrNotExist):
		return defaultBanner, "default", nil
	default:
		return "", "", err
	}
}

func (s *Service) data() Data {
	d := Data{Version: s.version}
	if s.cfg != nil {
		d.Cache = s.cfg.Property(config.KeyCache, "")
	}
	if s.registry != nil {
		for _, svc := range s.registry.All() {
			d.Services = append(d.Services, svc.Name())
		}
	}
	if s.dispatcher != nil {
		d.Modules = s.dispatcher.IDs()
	}
	return d
}
