// Package obsx provides OpenTelemetry metrics with Prometheus and OTLP export.
//
// Overview:
//   - Responsibility: Bootstrap the meter provider and publish resource usage gauges
//   - Key Types: Options for configuration, Provider for lifecycle, UsageReader for gauge input
//   - Concurrency Model: Provider is safe for concurrent use
//   - Error Semantics: NewProvider and RegisterUsageMetrics return coded errors
//   - Performance Notes: Gauges are observed on collection; callbacks never block
//
// Usage:
//
//	provider, err := obsx.NewProvider(ctx, obsx.Options{
//	  ServiceName: "shippingservice",
//	  ServiceVersion: "1.0.0",
//	})
//	err = provider.RegisterUsageMetrics(reader, obsx.UsageMetricsOptions{PID: pid, ProcessName: name})
//	defer provider.Shutdown(ctx)
package obsx

import (
	"context"
	"net/http"
	"time"

	api "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"

	"go.eggybyte.com/usagemon/obsx/internal"
)

// Usage instrument names as exported.
const (
	ContainerCPUUsage  = internal.ContainerCPUUsage
	ProcessCPUUsage    = internal.ProcessCPUUsage
	ProcessMemoryUsage = internal.ProcessMemoryUsage
)

// Options holds configuration for the metrics provider.
type Options struct {
	ServiceName    string            // Service name for metrics
	ServiceVersion string            // Service version
	ResourceAttrs  map[string]string // Additional resource attributes
	OTLPEndpoint   string            // OTLP gRPC collector; empty disables push
	ExportInterval time.Duration     // OTLP push interval (default: 15s)
	Readers        []metric.Reader   // Additional readers
}

// UsageReading is one set of values for the usage gauges.
type UsageReading = internal.UsageReading

// UsageReader supplies usage readings without blocking.
type UsageReader = internal.UsageReader

// UsageMetricsOptions holds the attributes attached to the usage gauges.
type UsageMetricsOptions struct {
	ServiceName string // default: the provider's service name
	PID         int64
	ProcessName string
}

// Provider manages OpenTelemetry metrics provider with Prometheus export.
// The provider must be shut down when no longer needed.
type Provider struct {
	impl        *internal.Provider
	serviceName string
}

// MeterProvider returns the OpenTelemetry meter provider.
func (p *Provider) MeterProvider() *metric.MeterProvider {
	return p.impl.MeterProvider
}

// PrometheusHandler returns an HTTP handler serving Prometheus text format.
//
// Example:
//
//	mux := http.NewServeMux()
//	mux.Handle("/metrics", provider.PrometheusHandler())
func (p *Provider) PrometheusHandler() http.Handler {
	return p.impl.GetPrometheusHandler()
}

// Meter returns an OpenTelemetry Meter for creating custom metrics.
func (p *Provider) Meter(name string) api.Meter {
	return p.impl.MeterProvider.Meter(name)
}

// NewProvider creates a new metrics provider. Prometheus export is always
// on; OTLP push is enabled when OTLPEndpoint is set.
//
// Parameters:
//   - ctx: context for resource detection and the OTLP exporter dial
//   - opts: service identity, OTLP settings and extra readers
//
// Returns:
//   - *Provider: provider serving /metrics; must be shut down
//   - error: INVALID_ARGUMENT without a service name, INTERNAL on exporter setup failure
//
// Concurrency:
//   - Safe to call from multiple goroutines
func NewProvider(ctx context.Context, opts Options) (*Provider, error) {
	impl, err := internal.NewProvider(ctx, internal.ProviderOptions{
		ServiceName:    opts.ServiceName,
		ServiceVersion: opts.ServiceVersion,
		ResourceAttrs:  opts.ResourceAttrs,
		OTLPEndpoint:   opts.OTLPEndpoint,
		ExportInterval: opts.ExportInterval,
		Readers:        opts.Readers,
	})
	if err != nil {
		return nil, err
	}

	return &Provider{impl: impl, serviceName: opts.ServiceName}, nil
}

// RegisterUsageMetrics registers the container_cpu_usage, process_cpu_usage
// and process_memory_usage gauges, all fed from reader on each collection.
// The registration is released by Shutdown.
//
// Parameters:
//   - reader: non-blocking source of the latest reading
//   - opts: service and process identity used as attributes
//
// Returns:
//   - error: INVALID_ARGUMENT for a nil reader, INTERNAL if an instrument cannot be created
//
// Concurrency:
//   - The callback runs on the exporter's goroutine and never waits on the sampler
//
// Attributes:
//   - container_cpu_usage: service.name, metric.type, scope, calculation_method
//   - process_cpu_usage, process_memory_usage: service.name, process.pid, process.name, metric.type
func (p *Provider) RegisterUsageMetrics(reader UsageReader, opts UsageMetricsOptions) error {
	if opts.ServiceName == "" {
		opts.ServiceName = p.serviceName
	}
	reg, err := internal.RegisterUsageMetrics(p.impl.MeterProvider, reader, internal.UsageAttributes{
		ServiceName: opts.ServiceName,
		PID:         opts.PID,
		ProcessName: opts.ProcessName,
	})
	if err != nil {
		return err
	}
	p.impl.Track(reg)
	return nil
}

// Shutdown gracefully shuts down the provider, flushing any OTLP exporter.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.impl.Shutdown(ctx)
}
