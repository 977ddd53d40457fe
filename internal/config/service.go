package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cast"

	"minho/internal/services"
	"minho/pkg/logging"
)

var envReplacer = strings.NewReplacer(".", "_", "-", "_")

// EnvKey returns the environment variable that overrides key:
// minho.deploy.interval becomes MINHO_DEPLOY_INTERVAL.
func EnvKey(key string) string {
	return strings.ToUpper(envReplacer.Replace(key))
}

// Service is the flat key/value configuration shared by the kernel. The
// loaders merge into it during bootstrap; everything else reads it.
type Service struct {
	services.Base

	mu         sync.RWMutex
	properties map[string]string
	lookupEnv  func(string) (string, bool)
}

// NewService creates a configuration holding the defaults overlaid with
// initial.
func NewService(initial map[string]string) *Service {
	s := &Service{
		Base:       services.NewBase("config", services.PriorityConfig),
		properties: DefaultProperties(),
		lookupEnv:  os.LookupEnv,
	}
	s.Merge(initial)
	return s
}

// Lookup returns the value of key. An environment variable named by
// EnvKey takes precedence over loaded properties.
func (s *Service) Lookup(key string) (string, bool) {
	if v, ok := s.lookupEnv(EnvKey(key)); ok {
		return v, true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.properties[key]
	return v, ok
}

// Property returns the value of key, or def when it is unset.
func (s *Service) Property(key, def string) string {
	if v, ok := s.Lookup(key); ok {
		return v
	}
	return def
}

// Int returns key as an int, or def when it is unset or not a number.
func (s *Service) Int(key string, def int) int {
	v, ok := s.Lookup(key)
	if !ok {
		return def
	}
	i, err := cast.ToIntE(strings.TrimSpace(v))
	if err != nil {
		logging.Warn("Config", "Property %s=%q is not an integer, using %d", key, v, def)
		return def
	}
	return i
}

// Bool returns key as a bool, or def when it is unset or invalid.
func (s *Service) Bool(key string, def bool) bool {
	v, ok := s.Lookup(key)
	if !ok {
		return def
	}
	b, err := cast.ToBoolE(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return b
}

// Duration returns key as a duration ("500ms", "2s"), or def.
func (s *Service) Duration(key string, def time.Duration) time.Duration {
	v, ok := s.Lookup(key)
	if !ok {
		return def
	}
	d, err := cast.ToDurationE(strings.TrimSpace(v))
	if err != nil {
		logging.Warn("Config", "Property %s=%q is not a duration, using %s", key, v, def)
		return def
	}
	return d
}

// Strings splits a comma separated property, dropping empty entries.
func (s *Service) Strings(key string) []string {
	v, ok := s.Lookup(key)
	if !ok {
		return nil
	}

	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Properties returns a copy of the loaded properties, without
// environment overrides.
func (s *Service) Properties() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string, len(s.properties))
	for k, v := range s.properties {
		out[k] = v
	}
	return out
}

// Set stores a single property.
func (s *Service) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.properties[key] = value
}

// Merge overlays props onto the current properties.
func (s *Service) Merge(props map[string]string) {
	if len(props) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range props {
		s.properties[k] = v
	}
}

// Applications returns the applications declared under application.*,
// sorted by name. Every entry is validated.
func (s *Service) Applications() ([]Application, error) {
	s.mu.RLock()
	byName := make(map[string]*Application)
	for key, value := range s.properties {
		rest, ok := strings.CutPrefix(key, applicationPrefix)
		if !ok {
			continue
		}
		name, field, ok := strings.Cut(rest, ".")
		if !ok || name == "" || field == "" {
			continue
		}

		app := byName[name]
		if app == nil {
			app = &Application{Name: name, Properties: map[string]string{}}
			byName[name] = app
		}

		switch field {
		case "url":
			app.URL = value
		case "type":
			app.Type = value
		case "profile":
			app.Profile = value
		default:
			app.Properties[field] = value
		}
	}
	s.mu.RUnlock()

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	apps := make([]Application, 0, len(names))
	var errs ValidationErrors
	for _, name := range names {
		app := *byName[name]
		if err := ValidateApplication(app); err != nil {
			var verrs ValidationErrors
			if errors.As(err, &verrs) {
				errs = append(errs, verrs...)
				continue
			}
			return nil, fmt.Errorf("invalid application %s: %w", name, err)
		}
		apps = append(apps, app)
	}

	if len(errs) > 0 {
		return apps, errs
	}
	return apps, nil
}
