// Package servicex provides one-call startup of the usage monitor service.
//
// # Overview
//
// servicex binds configuration from the environment, an optional YAML or
// JSON file and an optional Kubernetes ConfigMap, builds the OpenTelemetry
// metrics provider, starts the usage monitor and serves health and
// Prometheus endpoints through runtimex. Shutdown is graceful and bounded.
//
// # Environment
//
//   - SERVICE_NAME, PROCESS_NAME, USAGE_* : monitor settings (see usagex.Config)
//   - SERVICE_VERSION, LOG_LEVEL, LOG_FORMAT
//   - HEALTH_PORT (default :8081), METRICS_PORT (default :9091)
//   - OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_EXPORT_INTERVAL
//   - CONFIG_FILE, APP_CONFIGMAP_NAME, POD_NAMESPACE
//   - SHUTDOWN_TIMEOUT (default 15s)
//
// # Usage
//
//	if err := servicex.Run(ctx); err != nil {
//		log.Fatal(err)
//	}
//
// # Layer
//
// servicex belongs to Layer 4 (L4) and depends on every other package.
package servicex
