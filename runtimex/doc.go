// Package runtimex provides runtime lifecycle orchestration for services,
// including health and metrics endpoints and graceful shutdown.
//
// # Overview
//
// runtimex starts background services concurrently, binds the health and
// metrics listeners, and on shutdown stops everything within a bounded
// timeout. Each Runtime owns its own health registry.
//
// # Features
//
//   - Unified lifecycle management with graceful shutdown
//   - Health endpoint reporting every registered checker, with optional detail
//   - Metrics endpoint serving a caller-supplied handler
//   - Pluggable service interface for background workers
//
// # Usage
//
//	err := runtimex.Run(ctx, []runtimex.Service{monitor}, runtimex.Options{
//		Logger:         logger,
//		Health:         &runtimex.Endpoint{Addr: ":8081"},
//		Metrics:        &runtimex.Endpoint{Addr: ":9091", Handler: provider.PrometheusHandler()},
//		HealthCheckers: []runtimex.HealthChecker{monitor},
//	})
//
// # Layer
//
// runtimex belongs to Layer 3 (L3) and depends on core and httpx.
//
// # Stability
//
// Stable since v0.1.0.
package runtimex
