// Package configx provides unified configuration management with hot reloading.
//
// Overview:
//   - Responsibility: Merge configuration from env, files and ConfigMaps with hot updates
//   - Key Types: Source interface, Manager interface, Options for configuration
//   - Concurrency Model: Manager is safe for concurrent use, sources must be thread-safe
//   - Error Semantics: Functions return coded errors for initialization and binding failures
//   - Performance Notes: Updates are debounced per source and dropped when nothing changed
//
// Usage:
//
//	sources, err := configx.BuildSources(configx.SourcesOptions{
//	  ConfigFile:    "/etc/usagemon/config.yaml",
//	  ConfigMapName: "usagemon-config",
//	  Logger:        logger,
//	})
//	manager, err := configx.NewManager(ctx, configx.Options{
//	  Logger:   logger,
//	  Sources:  sources,
//	  Debounce: 200 * time.Millisecond,
//	})
//	var cfg usagex.Config
//	err = manager.Bind(&cfg)
package configx

import (
	"context"
	"os"
	"time"

	"k8s.io/client-go/kubernetes"

	"go.eggybyte.com/usagemon/configx/internal"
	"go.eggybyte.com/usagemon/core/errors"
	"go.eggybyte.com/usagemon/core/log"
)

// Source describes a configuration source that can load and watch for updates.
// Implementations must be thread-safe and honor context cancellation.
type Source interface {
	// Load reads the current configuration snapshot for initial merge.
	// Returns a map of key-value pairs.
	Load(ctx context.Context) (map[string]string, error)

	// Watch starts monitoring for updates and publishes snapshots via the returned channel.
	// The channel should be closed when the context is cancelled to avoid goroutine leaks.
	Watch(ctx context.Context) (<-chan map[string]string, error)
}

// Manager manages multiple configuration sources and provides unified access.
// The manager merges configurations with later sources taking precedence.
type Manager interface {
	// Snapshot returns a copy of the current merged configuration.
	Snapshot() map[string]string

	// Value returns the value for a key and whether it exists.
	Value(key string) (string, bool)

	// Bind decodes the configuration into a struct with env tags and default values.
	// With WithUpdateCallback the target is re-bound on every change.
	Bind(target any, opts ...BindOption) error

	// OnUpdate subscribes to configuration update events.
	// Returns an unsubscribe function.
	OnUpdate(fn func(snapshot map[string]string)) (unsubscribe func())
}

// Options holds configuration for the manager.
type Options struct {
	Logger   log.Logger    // Logger for configuration operations
	Sources  []Source      // Configuration sources (later sources override earlier ones)
	Debounce time.Duration // Debounce duration for updates (default: 200ms)
}

// BindOption configures binding behavior.
type BindOption interface {
	apply(*bindConfig)
}

type bindConfig struct {
	onUpdate func()
}

type bindOptionFunc func(*bindConfig)

func (f bindOptionFunc) apply(cfg *bindConfig) {
	f(cfg)
}

// WithUpdateCallback re-binds the target on every change and then calls fn.
// Callers reading the target concurrently must synchronize themselves.
func WithUpdateCallback(fn func()) BindOption {
	return bindOptionFunc(func(cfg *bindConfig) {
		cfg.onUpdate = fn
	})
}

// manager wraps the internal manager implementation.
type manager struct {
	impl *internal.ManagerImpl
}

// NewManager creates a configuration manager, loads every source and
// starts watching them until ctx is cancelled.
//
// Parameters:
//   - ctx: lifetime of the source watchers
//   - opts: logger, sources in precedence order and update debounce
//
// Returns:
//   - Manager: manager holding the merged snapshot
//   - error: INVALID_ARGUMENT without a logger, or the first source load error
//
// Concurrency:
//   - The returned manager is safe for concurrent use
func NewManager(ctx context.Context, opts Options) (Manager, error) {
	internalSources := make([]internal.Source, len(opts.Sources))
	for i, src := range opts.Sources {
		internalSources[i] = src
	}

	impl, err := internal.NewManager(opts.Logger, internalSources, opts.Debounce)
	if err != nil {
		return nil, err
	}
	if err := impl.Initialize(ctx); err != nil {
		return nil, err
	}

	return &manager{impl: impl}, nil
}

// Snapshot returns a copy of the current configuration.
func (m *manager) Snapshot() map[string]string {
	return m.impl.Snapshot()
}

// Value returns the value for a key and whether it exists.
func (m *manager) Value(key string) (string, bool) {
	return m.impl.Value(key)
}

// Bind decodes the configuration into a struct.
func (m *manager) Bind(target any, opts ...BindOption) error {
	var cfg bindConfig
	for _, opt := range opts {
		opt.apply(&cfg)
	}

	return m.impl.Bind(target, internal.BindConfig{
		OnUpdate: cfg.onUpdate,
	})
}

// OnUpdate subscribes to configuration update events.
func (m *manager) OnUpdate(fn func(snapshot map[string]string)) func() {
	return m.impl.OnUpdate(fn)
}

// Bind decodes snapshot into target without a manager.
func Bind(snapshot map[string]string, target any) error {
	return internal.BindToStruct(snapshot, target)
}

// EnvOptions configures environment variable source behavior.
type EnvOptions struct {
	Prefix    string
	Lowercase bool
	Uppercase bool
}

// FileOptions configures file source behavior.
type FileOptions struct {
	Watch    bool          // Poll the file for changes
	Format   string        // "yaml" or "json" (default: by extension)
	Interval time.Duration // Polling interval (default: 1s)
	Logger   log.Logger
}

// K8sOptions configures Kubernetes ConfigMap source behavior.
type K8sOptions struct {
	Namespace string
	Logger    log.Logger
	Client    kubernetes.Interface // default: in-cluster client
}

// SourcesOptions selects the optional layers stacked above the environment.
type SourcesOptions struct {
	ConfigFile    string
	FileInterval  time.Duration
	ConfigMapName string
	Namespace     string
	Client        kubernetes.Interface
	Logger        log.Logger
}

// NewEnvSource creates an environment variable configuration source.
func NewEnvSource(opts EnvOptions) Source {
	return internal.NewEnvSource(internal.EnvOptions{
		Prefix:    opts.Prefix,
		Lowercase: opts.Lowercase,
		Uppercase: opts.Uppercase,
	})
}

// NewFileSource creates a YAML or JSON file configuration source.
func NewFileSource(path string, opts FileOptions) Source {
	return internal.NewFileSource(path, internal.FileOptions{
		Watch:    opts.Watch,
		Format:   opts.Format,
		Interval: opts.Interval,
		Logger:   opts.Logger,
	})
}

// NewK8sConfigMapSource creates a Kubernetes ConfigMap configuration source.
func NewK8sConfigMapSource(name string, opts K8sOptions) (Source, error) {
	src, err := internal.NewK8sConfigMapSource(name, internal.K8sOptions{
		Namespace: opts.Namespace,
		Logger:    opts.Logger,
		Client:    opts.Client,
	})
	if err != nil {
		return nil, err
	}
	return src, nil
}

// BuildSources returns env, file and ConfigMap sources in precedence order,
// skipping the layers that are not configured.
func BuildSources(opts SourcesOptions) ([]Source, error) {
	internalSources, err := internal.BuildSources(internal.SourcesOptions{
		ConfigFile:    opts.ConfigFile,
		FileInterval:  opts.FileInterval,
		ConfigMapName: opts.ConfigMapName,
		Namespace:     opts.Namespace,
		Client:        opts.Client,
		Logger:        opts.Logger,
	})
	if err != nil {
		return nil, err
	}

	sources := make([]Source, len(internalSources))
	for i, s := range internalSources {
		sources[i] = s
	}
	return sources, nil
}

// DefaultManager creates a manager over the environment plus the file named
// by CONFIG_FILE and the ConfigMap named by APP_CONFIGMAP_NAME in
// POD_NAMESPACE, when set.
func DefaultManager(ctx context.Context, logger log.Logger) (Manager, error) {
	if logger == nil {
		return nil, errors.New(errors.CodeInvalidArgument, "logger is required")
	}

	sources, err := BuildSources(SourcesOptions{
		ConfigFile:    os.Getenv("CONFIG_FILE"),
		ConfigMapName: os.Getenv("APP_CONFIGMAP_NAME"),
		Namespace:     os.Getenv("POD_NAMESPACE"),
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}

	return NewManager(ctx, Options{
		Logger:   logger,
		Sources:  sources,
		Debounce: internal.DefaultDebounce,
	})
}
