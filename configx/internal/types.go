// Package internal provides internal implementation details for configx.
package internal

import (
	"context"
)

// Source describes a configuration source that can load and watch for updates.
// Implementations must be thread-safe and honor context cancellation.
type Source interface {
	// Load reads the current configuration snapshot for initial merge.
	Load(ctx context.Context) (map[string]string, error)

	// Watch publishes full snapshots on change. The channel is closed once
	// ctx is cancelled.
	Watch(ctx context.Context) (<-chan map[string]string, error)
}

// BindConfig holds bind configuration options.
type BindConfig struct {
	OnUpdate func()
}
