// Package usagex provides an embedded resource-usage monitor.
//
// # Overview
//
// A Monitor periodically reads cumulative CPU counters from the best
// available accounting interface (cgroup v2, cgroup v1, or the host-wide
// /proc/stat record), turns successive readings into a container CPU
// percentage, samples the current process's CPU and resident memory, and
// keeps the latest result in a snapshot that metric callbacks read.
//
// # Features
//
//   - Source detection with per-cycle fallback and re-probing after repeated failures
//   - Counter reset and zero-delta handling without NaN or negative values
//   - Non-blocking TrySnapshot for collection callbacks
//   - Injectable clock and filesystem roots for deterministic tests
//
// # Usage
//
//	mon, err := usagex.New(ctx, usagex.Options{Config: cfg, Logger: logger})
//	if err != nil {
//		return err
//	}
//	_ = mon.Start(ctx)
//	defer mon.Stop(context.Background())
//
// # Layer
//
// usagex depends on core/log and core/errors only; obsx adapts it to
// OpenTelemetry.
//
// # Stability
//
// Experimental until v0.1.0.
package usagex
