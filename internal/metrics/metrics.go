// Package metrics exposes Prometheus counters for artifact resolution and
// module dispatch. Each runtime owns its own prometheus.Registry.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"minho/internal/config"
	"minho/internal/orchestrator"
	"minho/internal/services"
	"minho/pkg/logging"
)

const namespace = "minho"

// Service records kernel metrics. It satisfies the optional recorder
// interfaces of the resolver and the dispatcher, which find it in the
// registry by capability.
type Service struct {
	services.Base

	registry       *prometheus.Registry
	resolverHits   *prometheus.CounterVec
	resolverMisses prometheus.Counter
	operations     *prometheus.CounterVec
	installed      prometheus.Gauge

	mu     sync.Mutex
	addr   string
	server *http.Server
	bound  string
}

// NewService creates the metrics service with a fresh registry.
func NewService() *Service {
	s := &Service{
		Base:     services.NewBase("metrics", -800),
		registry: prometheus.NewRegistry(),
		resolverHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "hits_total",
			Help:      "Artifacts resolved, by tier.",
		}, []string{"tier"}),
		resolverMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "misses_total",
			Help:      "Coordinates that no tier could resolve.",
		}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "operations_total",
			Help:      "Install and remove operations, by result.",
		}, []string{"op", "result"}),
		installed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "installed_modules",
			Help:      "Modules currently installed.",
		}),
	}

	s.registry.MustRegister(
		s.resolverHits,
		s.resolverMisses,
		s.operations,
		s.installed,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return s
}

// OnRegister serves /metrics during the lifecycle when minho.metrics.addr
// is set.
func (s *Service) OnRegister(r *services.Registry) error {
	cfg, ok, err := services.Get[*config.Service](r)
	if err != nil || !ok {
		return err
	}
	s.addr = cfg.Property(config.KeyMetricsAddr, "")
	if s.addr == "" {
		return nil
	}

	lc, err := services.Require[*orchestrator.Orchestrator](r)
	if err != nil {
		return err
	}
	if err := lc.OnStart(s.Name(), s.serve); err != nil {
		return err
	}
	return lc.OnShutdown(s.Name(), s.shutdown)
}

func (s *Service) serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", s.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	s.mu.Lock()
	s.server = srv
	s.bound = ln.Addr().String()
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("Metrics", err, "Metrics server stopped")
		}
	}()
	logging.Info("Metrics", "Serving metrics on http://%s/metrics", ln.Addr())
	return nil
}

func (s *Service) shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

// Addr returns the address the metrics server is listening on, or "" when
// it is not running.
func (s *Service) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return ""
	}
	return s.bound
}

func (s *Service) ResolverHit(tier string) {
	s.resolverHits.WithLabelValues(tier).Inc()
}

func (s *Service) ResolverMiss() {
	s.resolverMisses.Inc()
}

func (s *Service) DispatcherOperation(op, result string) {
	s.operations.WithLabelValues(op, result).Inc()
}

func (s *Service) InstalledModules(n int) {
	s.installed.Set(float64(n))
}

// Gatherer returns the runtime's metric registry.
func (s *Service) Gatherer() prometheus.Gatherer {
	return s.registry
}

// Handler serves the metrics in the Prometheus exposition format.
func (s *Service) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}
