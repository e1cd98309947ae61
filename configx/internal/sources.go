// Package internal provides internal implementation details for configx.
//
// Overview:
//   - Responsibility: Implement configuration sources (Env, File, K8s ConfigMap)
//   - Key Types: EnvSource, FileSource, K8sConfigMapSource
//   - Concurrency Model: All sources are safe for concurrent use
//   - Error Semantics: Sources return coded errors for loading failures
//   - Performance Notes: File sources poll; ConfigMap sources use a watch
//
// Usage:
//
//	envSource := configx.NewEnvSource(configx.EnvOptions{Prefix: "USAGE_"})
//	fileSource := configx.NewFileSource("/etc/usagemon/config.yaml", configx.FileOptions{Watch: true})
package internal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
	"k8s.io/client-go/kubernetes"

	"go.eggybyte.com/usagemon/core/errors"
	"go.eggybyte.com/usagemon/core/log"
	"go.eggybyte.com/usagemon/k8sx"
)

// EnvOptions configures environment variable source behavior.
type EnvOptions struct {
	Prefix    string // Only variables with this prefix are loaded; the prefix is stripped
	Lowercase bool   // Convert keys to lowercase
	Uppercase bool   // Convert keys to uppercase
}

// EnvSource loads configuration from environment variables.
type EnvSource struct {
	prefix    string
	lowercase bool
	uppercase bool
}

// NewEnvSource creates a new environment variable source.
func NewEnvSource(opts EnvOptions) *EnvSource {
	return &EnvSource{
		prefix:    opts.Prefix,
		lowercase: opts.Lowercase,
		uppercase: opts.Uppercase,
	}
}

// Load reads configuration from environment variables.
func (s *EnvSource) Load(ctx context.Context) (map[string]string, error) {
	config := make(map[string]string)

	for _, env := range os.Environ() {
		key, value, ok := strings.Cut(env, "=")
		if !ok {
			continue
		}
		if s.prefix != "" {
			if !strings.HasPrefix(key, s.prefix) {
				continue
			}
			key = strings.TrimPrefix(key, s.prefix)
		}

		if s.lowercase {
			key = strings.ToLower(key)
		} else if s.uppercase {
			key = strings.ToUpper(key)
		}
		config[key] = value
	}

	return config, nil
}

// Watch returns a channel that is closed with ctx. The process environment
// does not change after start.
func (s *EnvSource) Watch(ctx context.Context) (<-chan map[string]string, error) {
	return idleWatch(ctx), nil
}

// FileOptions configures file source behavior.
type FileOptions struct {
	Watch    bool          // Poll the file for changes
	Format   string        // "yaml" or "json" (default: by extension)
	Interval time.Duration // Polling interval (default: 1s)
	Logger   log.Logger    // Logger for watch failures
}

// FileSource loads configuration from a YAML or JSON file. Nested keys are
// flattened to upper snake case, so usage.sample_interval becomes
// USAGE_SAMPLE_INTERVAL.
type FileSource struct {
	path     string
	format   string
	watch    bool
	interval time.Duration
	logger   log.Logger
}

// NewFileSource creates a new file source.
func NewFileSource(path string, opts FileOptions) *FileSource {
	format := opts.Format
	if format == "" {
		format = detectFileFormat(path)
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}

	return &FileSource{
		path:     path,
		format:   format,
		watch:    opts.Watch,
		interval: interval,
		logger:   logger,
	}
}

// Load reads configuration from the file. A missing file is empty.
func (s *FileSource) Load(ctx context.Context) (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, errors.Wrapf(errors.CodeUnavailable, "configx.file", err, "read %s", s.path)
	}

	return parseConfigFile(data, s.format)
}

// Watch polls the file and publishes a snapshot whenever its modification
// time or size changes.
func (s *FileSource) Watch(ctx context.Context) (<-chan map[string]string, error) {
	if !s.watch {
		return idleWatch(ctx), nil
	}

	var lastMod time.Time
	var lastSize int64
	if info, err := os.Stat(s.path); err == nil {
		lastMod, lastSize = info.ModTime(), info.Size()
	}

	ch := make(chan map[string]string)
	go func() {
		defer close(ch)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			info, err := os.Stat(s.path)
			if err != nil {
				if !os.IsNotExist(err) {
					s.logger.Error(err, "failed to stat file", log.Str("path", s.path))
				}
				continue
			}
			if info.ModTime().Equal(lastMod) && info.Size() == lastSize {
				continue
			}
			lastMod, lastSize = info.ModTime(), info.Size()

			config, err := s.Load(ctx)
			if err != nil {
				s.logger.Error(err, "failed to load file", log.Str("path", s.path))
				continue
			}

			select {
			case ch <- config:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch, nil
}

// detectFileFormat detects file format from extension.
func detectFileFormat(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "json"
	default:
		return "yaml"
	}
}

// parseConfigFile parses file content into flat keys. JSON is parsed by the
// YAML decoder, which accepts it as a subset.
func parseConfigFile(data []byte, format string) (map[string]string, error) {
	switch format {
	case "yaml", "json":
	default:
		return nil, errors.New(errors.CodeInvalidArgument, "unsupported config format: "+format)
	}

	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrapf(errors.CodeInvalidArgument, "configx.parse", err, "parse %s", format)
	}

	out := make(map[string]string)
	for k, v := range doc {
		flatten(normalizeKey(k), v, out)
	}
	return out, nil
}

func flatten(key string, value any, out map[string]string) {
	switch v := value.(type) {
	case map[string]any:
		for k, child := range v {
			flatten(key+"_"+normalizeKey(k), child, out)
		}
	case map[any]any:
		for k, child := range v {
			flatten(key+"_"+normalizeKey(fmt.Sprint(k)), child, out)
		}
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, fmt.Sprint(item))
		}
		out[key] = strings.Join(parts, ",")
	case nil:
		out[key] = ""
	default:
		out[key] = fmt.Sprint(v)
	}
}

func normalizeKey(k string) string {
	return strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(k))
}

// K8sOptions configures Kubernetes ConfigMap source behavior.
type K8sOptions struct {
	Namespace string               // Kubernetes namespace (default: "default")
	Logger    log.Logger           // Logger for K8s operations
	Client    kubernetes.Interface // Client override (default: in-cluster)
}

// K8sConfigMapSource loads configuration from a Kubernetes ConfigMap.
type K8sConfigMapSource struct {
	watcher *k8sx.ConfigMapWatcher
}

// NewK8sConfigMapSource creates a new Kubernetes ConfigMap source.
func NewK8sConfigMapSource(name string, opts K8sOptions) (*K8sConfigMapSource, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}

	watcher, err := k8sx.NewConfigMapWatcher(name, k8sx.WatchOptions{
		Namespace: opts.Namespace,
		Client:    opts.Client,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	return &K8sConfigMapSource{watcher: watcher}, nil
}

// Load reads configuration from the ConfigMap.
func (s *K8sConfigMapSource) Load(ctx context.Context) (map[string]string, error) {
	return s.watcher.Load(ctx)
}

// Watch publishes the ConfigMap data on every change until ctx is cancelled.
func (s *K8sConfigMapSource) Watch(ctx context.Context) (<-chan map[string]string, error) {
	ch := make(chan map[string]string)
	err := s.watcher.Start(ctx, func(data map[string]string) {
		select {
		case ch <- data:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return nil, err
	}

	go func() {
		<-ctx.Done()
		s.watcher.Stop()
		close(ch)
	}()
	return ch, nil
}

func idleWatch(ctx context.Context) <-chan map[string]string {
	ch := make(chan map[string]string)
	go func() {
		defer close(ch)
		<-ctx.Done()
	}()
	return ch
}
