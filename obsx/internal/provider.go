// Package internal provides internal implementation for the obsx package.
package internal

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	api "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.uber.org/multierr"

	"go.eggybyte.com/usagemon/core/errors"
)

// DefaultExportInterval is the OTLP push interval when none is configured.
const DefaultExportInterval = 15 * time.Second

// ProviderOptions holds configuration for the metrics provider.
type ProviderOptions struct {
	ServiceName    string
	ServiceVersion string
	ResourceAttrs  map[string]string
	OTLPEndpoint   string          // host:port or URL; empty disables OTLP push
	ExportInterval time.Duration   // OTLP push interval
	Readers        []metric.Reader // extra readers, e.g. a ManualReader in tests
}

// Provider manages the OpenTelemetry meter provider and its exporters.
type Provider struct {
	MeterProvider      *metric.MeterProvider
	prometheusRegistry *promclient.Registry

	mu            sync.Mutex
	registrations []api.Registration
}

// NewProvider creates a meter provider that always serves Prometheus and
// optionally pushes over OTLP gRPC.
func NewProvider(ctx context.Context, opts ProviderOptions) (*Provider, error) {
	if opts.ServiceName == "" {
		return nil, errors.New(errors.CodeInvalidArgument, "service name is required")
	}

	res, err := createResource(ctx, opts)
	if err != nil {
		return nil, err
	}

	promRegistry := promclient.NewRegistry()
	promExporter, err := prometheus.New(
		prometheus.WithRegisterer(promRegistry),
		prometheus.WithoutUnits(),           // Instrument names already carry their meaning
		prometheus.WithoutScopeInfo(),       // Remove otel_scope_* labels to reduce cardinality
		prometheus.WithoutCounterSuffixes(), // Remove _total suffix duplication
	)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, "obsx.prometheus", err)
	}

	mpOpts := []metric.Option{
		metric.WithResource(res),
		metric.WithReader(promExporter),
	}
	if opts.OTLPEndpoint != "" {
		reader, err := newOTLPReader(ctx, opts.OTLPEndpoint, opts.ExportInterval)
		if err != nil {
			return nil, err
		}
		mpOpts = append(mpOpts, metric.WithReader(reader))
	}
	for _, r := range opts.Readers {
		mpOpts = append(mpOpts, metric.WithReader(r))
	}

	return &Provider{
		MeterProvider:      metric.NewMeterProvider(mpOpts...),
		prometheusRegistry: promRegistry,
	}, nil
}

// createResource creates an OpenTelemetry resource with service attributes.
func createResource(ctx context.Context, opts ProviderOptions) (*resource.Resource, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(opts.ServiceName),
			semconv.ServiceVersion(opts.ServiceVersion),
		),
	)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, "obsx.resource", err)
	}

	if len(opts.ResourceAttrs) > 0 {
		var attrs []attribute.KeyValue
		for k, v := range opts.ResourceAttrs {
			attrs = append(attrs, attribute.String(k, v))
		}
		res, err = resource.Merge(res, resource.NewWithAttributes(semconv.SchemaURL, attrs...))
		if err != nil {
			return nil, errors.Wrap(errors.CodeInternal, "obsx.resource", err)
		}
	}

	return res, nil
}

// newOTLPReader builds a periodic reader pushing to an OTLP gRPC collector.
// Bare host:port endpoints are dialed without TLS.
func newOTLPReader(ctx context.Context, endpoint string, interval time.Duration) (metric.Reader, error) {
	var opt []otlpmetricgrpc.Option
	if strings.Contains(endpoint, "://") {
		opt = append(opt, otlpmetricgrpc.WithEndpointURL(endpoint))
	} else {
		opt = append(opt, otlpmetricgrpc.WithEndpoint(endpoint), otlpmetricgrpc.WithInsecure())
	}

	exp, err := otlpmetricgrpc.New(ctx, opt...)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, "obsx.otlp", err)
	}
	if interval <= 0 {
		interval = DefaultExportInterval
	}
	return metric.NewPeriodicReader(exp, metric.WithInterval(interval)), nil
}

// GetPrometheusHandler returns an HTTP handler for the Prometheus metrics endpoint.
func (p *Provider) GetPrometheusHandler() http.Handler {
	if p.prometheusRegistry == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("# Prometheus metrics not available\n"))
		})
	}

	return promhttp.HandlerFor(p.prometheusRegistry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Track keeps reg so Shutdown can unregister it.
func (p *Provider) Track(reg api.Registration) {
	p.mu.Lock()
	p.registrations = append(p.registrations, reg)
	p.mu.Unlock()
}

// Shutdown unregisters callbacks and shuts the meter provider down, bounded
// by a 5 second timeout.
func (p *Provider) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	p.mu.Lock()
	regs := p.registrations
	p.registrations = nil
	p.mu.Unlock()

	var err error
	for _, reg := range regs {
		err = multierr.Append(err, reg.Unregister())
	}
	if p.MeterProvider != nil {
		if serr := p.MeterProvider.Shutdown(shutdownCtx); serr != nil {
			err = multierr.Append(err, errors.Wrap(errors.CodeInternal, "obsx.shutdown", serr))
		}
	}
	return err
}
