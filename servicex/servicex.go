// Package servicex boots the usage monitor as a complete service.
//
// Overview:
//   - Responsibility: Wire logging, configuration, metrics export, the usage monitor and runtime endpoints
//   - Key Types: Config for environment settings, Service for lifecycle, Option for dependency injection
//   - Concurrency Model: One Service per process; Start and Stop are not meant to race
//   - Error Semantics: Configuration and endpoint failures are returned; a monitor failure is logged and skipped
//   - Performance Notes: Gauges read the latest snapshot without blocking the sampler
//
// Usage:
//
//	func main() {
//	    if err := servicex.Run(context.Background()); err != nil {
//	        os.Exit(1)
//	    }
//	}
package servicex

import (
	"context"
	"os/signal"
	"syscall"

	"go.opentelemetry.io/otel/sdk/metric"

	"go.eggybyte.com/usagemon/configx"
	"go.eggybyte.com/usagemon/core/log"
	"go.eggybyte.com/usagemon/runtimex"
	"go.eggybyte.com/usagemon/servicex/internal"
	"go.eggybyte.com/usagemon/usagex"
)

// Config is the environment-bound service configuration, including the
// monitor settings under Usage.
type Config = internal.Config

// Option is a functional option for configuring the service.
type Option func(*internal.ServiceConfig)

// WithLogger sets the logger. LOG_LEVEL and LOG_FORMAT are ignored.
func WithLogger(logger log.Logger) Option {
	return func(c *internal.ServiceConfig) {
		c.Logger = logger
	}
}

// WithConfigManager replaces the default env, file and ConfigMap manager.
func WithConfigManager(mgr configx.Manager) Option {
	return func(c *internal.ServiceConfig) {
		c.Manager = mgr
	}
}

// WithProcess replaces the process sampler of the usage monitor.
func WithProcess(p usagex.ProcessSampler) Option {
	return func(c *internal.ServiceConfig) {
		c.Process = p
	}
}

// WithMetricReader adds a metric reader next to the Prometheus exporter.
func WithMetricReader(reader metric.Reader) Option {
	return func(c *internal.ServiceConfig) {
		c.Readers = append(c.Readers, reader)
	}
}

// Service is one running usage monitor service.
type Service struct {
	rt *internal.ServiceRuntime
}

// New creates a service. Nothing is loaded until Start.
func New(opts ...Option) *Service {
	cfg := &internal.ServiceConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	return &Service{rt: internal.NewServiceRuntime(cfg)}
}

// Start loads configuration and serves the health and metrics endpoints.
func (s *Service) Start(ctx context.Context) error { return s.rt.Start(ctx) }

// Stop shuts the service down within ctx.
func (s *Service) Stop(ctx context.Context) error { return s.rt.Stop(ctx) }

// HealthAddr returns the bound health endpoint address.
func (s *Service) HealthAddr() string { return s.rt.Addr(runtimex.HealthServer) }

// MetricsAddr returns the bound metrics endpoint address.
func (s *Service) MetricsAddr() string { return s.rt.Addr(runtimex.MetricsServer) }

// Monitor returns the usage monitor, or nil when it is disabled.
func (s *Service) Monitor() *usagex.Monitor { return s.rt.Monitor() }

// Config returns the configuration bound at Start.
func (s *Service) Config() Config { return s.rt.Config() }

// Run starts the service and blocks until ctx is cancelled or the process
// receives SIGINT or SIGTERM, then shuts down gracefully.
//
// Parameters:
//   - ctx: parent context; cancelling it triggers shutdown
//   - opts: optional logger, config manager, process sampler and metric readers
//
// Returns:
//   - error: startup failure, or the joined shutdown errors
func Run(ctx context.Context, opts ...Option) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return New(opts...).rt.Run(ctx)
}
