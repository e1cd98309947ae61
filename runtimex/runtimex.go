// Package runtimex provides runtime lifecycle management for services and
// their health and metrics endpoints.
//
// Overview:
//   - Responsibility: Start and stop services, serve health and metrics endpoints
//   - Key Types: Service interface, HealthChecker, Options, Runtime
//   - Concurrency Model: Services start concurrently; shutdown is bounded by a timeout
//   - Error Semantics: Start fails fast; Stop returns every failure joined
//   - Performance Notes: Listeners are bound before Start returns
//
// Usage:
//
//	err := runtimex.Run(ctx, []runtimex.Service{monitor}, runtimex.Options{
//	  Logger:         logger,
//	  Health:         &runtimex.Endpoint{Addr: ":8081"},
//	  Metrics:        &runtimex.Endpoint{Addr: ":9091", Handler: provider.PrometheusHandler()},
//	  HealthCheckers: []runtimex.HealthChecker{monitor},
//	})
package runtimex

import (
	"context"
	"net/http"
	"time"

	"go.eggybyte.com/usagemon/core/errors"
	"go.eggybyte.com/usagemon/core/log"
	"go.eggybyte.com/usagemon/httpx"
	"go.eggybyte.com/usagemon/runtimex/internal"
)

// Server names accepted by Runtime.Addr.
const (
	HealthServer  = "health"
	MetricsServer = "metrics"
)

// DefaultShutdownTimeout bounds Stop when Options.ShutdownTimeout is zero.
const DefaultShutdownTimeout = 15 * time.Second

// Service defines the interface for services that can be started and stopped.
// Services must be safe for concurrent use and handle context cancellation.
type Service interface {
	// Start begins the service operation.
	// The context should be honored for cancellation.
	// Returns an error if the service fails to start.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the service.
	// The context should be honored for shutdown timeout.
	// Returns an error if the service fails to stop gracefully.
	Stop(ctx context.Context) error
}

// HealthChecker is probed on every health request.
type HealthChecker = internal.HealthChecker

// Detailer adds a status detail to a checker's health line.
type Detailer = internal.Detailer

// Endpoint represents a network endpoint with an address.
type Endpoint struct {
	Addr    string       // Network address (e.g., ":8081", "localhost:9091")
	Handler http.Handler // Required for Metrics; ignored for Health
}

// Options holds configuration for the runtime.
type Options struct {
	Logger          log.Logger      // Logger for runtime operations
	Health          *Endpoint       // Health check endpoint (recommended)
	Metrics         *Endpoint       // Metrics endpoint (recommended)
	HealthCheckers  []HealthChecker // Checkers reported by the health endpoint
	HealthTimeout   time.Duration   // Per-request health probe bound (default: 2s)
	ShutdownTimeout time.Duration   // Graceful shutdown timeout (default: 15s)
}

// Runtime owns services and endpoints between Start and Stop.
type Runtime struct {
	impl   *internal.Runtime
	health *internal.HealthRegistry
}

// New validates opts and builds a runtime. Nothing is started.
func New(services []Service, opts Options) (*Runtime, error) {
	if opts.Logger == nil {
		return nil, errors.New(errors.CodeInvalidArgument, "logger is required")
	}
	if opts.Metrics != nil && opts.Metrics.Handler == nil {
		return nil, errors.New(errors.CodeInvalidArgument, "metrics endpoint requires a handler")
	}

	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = DefaultShutdownTimeout
	}
	healthTimeout := opts.HealthTimeout
	if healthTimeout <= 0 {
		healthTimeout = 2 * time.Second
	}

	health := internal.NewHealthRegistry(healthTimeout)
	for _, c := range opts.HealthCheckers {
		health.Register(c)
	}

	var servers []*internal.Server
	if opts.Health != nil {
		mux := http.NewServeMux()
		mux.Handle("/health", health)
		mux.Handle("/healthz", health)
		mux.Handle("/", health)
		servers = append(servers, &internal.Server{Name: HealthServer, Addr: opts.Health.Addr, Handler: endpoint(mux)})
	}
	if opts.Metrics != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", opts.Metrics.Handler)
		servers = append(servers, &internal.Server{Name: MetricsServer, Addr: opts.Metrics.Addr, Handler: endpoint(mux)})
	}

	internalServices := make([]internal.Service, len(services))
	for i, service := range services {
		internalServices[i] = service
	}

	return &Runtime{
		impl:   internal.NewRuntime(opts.Logger, internalServices, servers, shutdownTimeout),
		health: health,
	}, nil
}

// endpoint restricts a read-only endpoint to GET and HEAD and adds the
// default security headers.
func endpoint(h http.Handler) http.Handler {
	return httpx.Chain(h,
		httpx.SecureMiddleware(httpx.DefaultSecurityHeaders()),
		httpx.MethodGuard(http.MethodGet, http.MethodHead),
	)
}

// Start starts services and binds the endpoints.
//
// Parameters:
//   - ctx: passed to every service; services run until it is cancelled or Stop is called
//
// Returns:
//   - error: INTERNAL if a service fails to start, UNAVAILABLE if a listener cannot bind
//
// Concurrency:
//   - Services start concurrently; Start returns once all have started and the endpoints listen
func (r *Runtime) Start(ctx context.Context) error {
	return r.impl.Start(ctx)
}

// Stop shuts services and endpoints down.
func (r *Runtime) Stop(ctx context.Context) error {
	return r.impl.Stop(ctx)
}

// Addr returns the bound address of HealthServer or MetricsServer.
func (r *Runtime) Addr(name string) string {
	return r.impl.Addr(name)
}

// RegisterHealthChecker adds a checker to this runtime's health endpoint.
func (r *Runtime) RegisterHealthChecker(checker HealthChecker) {
	r.health.Register(checker)
}

// Run starts all services and endpoints, blocks until ctx is cancelled and
// then shuts everything down.
func Run(ctx context.Context, services []Service, opts Options) error {
	rt, err := New(services, opts)
	if err != nil {
		return err
	}
	if err := rt.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()

	if err := rt.Stop(context.Background()); err != nil {
		return errors.Wrap(errors.CodeInternal, "runtimex.stop", err)
	}
	return nil
}
