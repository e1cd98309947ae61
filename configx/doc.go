// Package configx provides unified configuration management with hot reload.
//
// # Overview
//
// configx aggregates configuration sources (environment, a YAML or JSON
// file, a Kubernetes ConfigMap), merges them deterministically, and binds
// the result into structs with env and default tags. Updates from watched
// sources are debounced, re-bound and published to subscribers.
//
// # Features
//
//   - Multiple sources with last-wins merge semantics
//   - Nested YAML/JSON keys flattened to upper snake case
//   - Type-safe struct binding including time.Duration
//   - Debounced hot updates with subscription callbacks
//   - Struct validation via go-playground/validator
//
// # Usage
//
//	mgr, err := configx.DefaultManager(ctx, logger)
//	if err != nil { return err }
//
//	var cfg usagex.Config
//	if err := mgr.Bind(&cfg); err != nil { return err }
//	if err := configx.ValidateStruct(nil, cfg); err != nil { return err }
//
// # Layer
//
// configx belongs to Layer 2 (L2) and depends on core and k8sx.
//
// # Stability
//
// Stable since v0.1.0. Backward-compatible API changes may occur with minor versions.
package configx
