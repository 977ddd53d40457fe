package coordinate

import (
	"context"
	"errors"
	"io/fs"

	"minho/internal/config"
	"minho/internal/services"
	"minho/pkg/logging"
)

// Service exposes a Resolver configured from the runtime configuration:
// minho.cache and minho.repositories.
type Service struct {
	services.Base

	bundled  fs.FS
	resolver *Resolver
}

// NewService creates the resolver service. bundled may be nil.
func NewService(bundled fs.FS) *Service {
	return &Service{
		Base:    services.NewBase("resolver", -500),
		bundled: bundled,
	}
}

// OnRegister builds the resolver from configuration and picks up any
// registered Recorder.
func (s *Service) OnRegister(r *services.Registry) error {
	opts := Options{Bundled: s.bundled}

	cfg, ok, err := services.Get[*config.Service](r)
	if err != nil {
		return err
	}
	if ok {
		opts.CacheDir = cfg.Property(config.KeyCache, "")
		opts.Repositories = cfg.Strings(config.KeyRepositories)
	}

	rec, ok, err := services.Get[Recorder](r)
	if err != nil {
		return err
	}
	if ok {
		opts.Recorder = rec
	}

	s.resolver = NewResolver(opts)
	logging.Debug("Resolver", "Cache %q, repositories %v", opts.CacheDir, opts.Repositories)
	return nil
}

var errNotRegistered = errors.New("resolver service is not registered")

// Resolver returns the configured resolver, nil before registration.
func (s *Service) Resolver() *Resolver {
	return s.resolver
}

// Resolve delegates to Resolver.Resolve.
func (s *Service) Resolve(ctx context.Context, uri string) (string, bool, error) {
	if s.resolver == nil {
		return "", false, errNotRegistered
	}
	return s.resolver.Resolve(ctx, uri)
}

// Fetch delegates to Resolver.Fetch.
func (s *Service) Fetch(ctx context.Context, location string) (string, error) {
	if s.resolver == nil {
		return "", errNotRegistered
	}
	return s.resolver.Fetch(ctx, location)
}
