// Package obsx provides OpenTelemetry metrics for the usage monitor.
//
// # Overview
//
// obsx constructs an OpenTelemetry meter provider that is always scraped
// through a Prometheus handler and can additionally push to an OTLP gRPC
// collector. It publishes the three resource usage gauges fed by usagex.
//
// # Features
//
//   - Meter provider with Prometheus export and optional OTLP push
//   - container_cpu_usage, process_cpu_usage and process_memory_usage gauges
//   - Non-blocking collection: a busy reader skips the collection cycle
//   - Graceful shutdown with bounded timeouts
//
// # Usage
//
//	provider, err := obsx.NewProvider(ctx, obsx.Options{
//		ServiceName:    "shippingservice",
//		ServiceVersion: "1.0.0",
//		OTLPEndpoint:   "otel-collector:4317",
//	})
//	if err != nil { return err }
//
//	err = provider.RegisterUsageMetrics(reader, obsx.UsageMetricsOptions{
//		PID:         int64(os.Getpid()),
//		ProcessName: "shippingservice",
//	})
//
//	http.Handle("/metrics", provider.PrometheusHandler())
//	defer provider.Shutdown(ctx)
//
// # Layer
//
// obsx belongs to Layer 2 (L2) and depends on core only.
//
// # Stability
//
// Stable since v0.1.0.
package obsx
