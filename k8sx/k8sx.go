// Package k8sx provides Kubernetes ConfigMap loading and watching.
//
// Overview:
//   - Responsibility: Read and watch ConfigMaps used as dynamic configuration
//   - Key Types: WatchOptions for configuration, ConfigMapWatcher for lifecycle
//   - Concurrency Model: ConfigMapWatcher is safe for concurrent use
//   - Error Semantics: Functions return coded errors from core/errors
//   - Performance Notes: One watch per ConfigMap, filtered by field selector
//
// Usage:
//
//	w, err := k8sx.NewConfigMapWatcher("usagemon-config", k8sx.WatchOptions{
//	  Namespace: "shop",
//	  Logger: logger,
//	})
//	err = w.Start(ctx, func(data map[string]string) {
//	  // Handle configuration update
//	})
//	defer w.Stop()
package k8sx

import (
	"context"
	"os"
	"time"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"go.eggybyte.com/usagemon/core/errors"
	"go.eggybyte.com/usagemon/core/log"
	"go.eggybyte.com/usagemon/k8sx/internal"
)

// DefaultRetryDelay is the pause before a failed watch is reopened.
const DefaultRetryDelay = 5 * time.Second

// WatchOptions holds configuration for ConfigMap watching.
type WatchOptions struct {
	Namespace  string               // Kubernetes namespace (default: "default")
	Client     kubernetes.Interface // Client to use (default: NewClient())
	Logger     log.Logger           // Logger for watch operations
	RetryDelay time.Duration        // Delay before reopening a failed watch (default: 5s)
}

// ConfigMapWatcher reads and watches one ConfigMap.
type ConfigMapWatcher struct {
	impl *internal.ConfigMapWatcher
}

// NewClient builds a clientset from the in-cluster service account, falling
// back to the file named by KUBECONFIG for local development.
func NewClient() (kubernetes.Interface, error) {
	config, err := rest.InClusterConfig()
	if err != nil {
		kubeconfig := os.Getenv("KUBECONFIG")
		if kubeconfig == "" {
			return nil, errors.Wrap(errors.CodeUnavailable, "k8sx.config", err)
		}
		config, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
		if err != nil {
			return nil, errors.Wrap(errors.CodeUnavailable, "k8sx.kubeconfig", err)
		}
	}

	client, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, "k8sx.client", err)
	}
	return client, nil
}

// NewConfigMapWatcher creates a watcher for the named ConfigMap.
func NewConfigMapWatcher(name string, opts WatchOptions) (*ConfigMapWatcher, error) {
	if name == "" {
		return nil, errors.New(errors.CodeInvalidArgument, "configmap name is required")
	}
	if opts.Logger == nil {
		return nil, errors.New(errors.CodeInvalidArgument, "logger is required")
	}

	namespace := opts.Namespace
	if namespace == "" {
		namespace = "default"
	}
	retryDelay := opts.RetryDelay
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}

	client := opts.Client
	if client == nil {
		var err error
		if client, err = NewClient(); err != nil {
			return nil, err
		}
	}

	return &ConfigMapWatcher{
		impl: internal.NewConfigMapWatcher(client, name, namespace, opts.Logger, retryDelay),
	}, nil
}

// Load returns the current ConfigMap data; a missing ConfigMap is empty.
func (w *ConfigMapWatcher) Load(ctx context.Context) (map[string]string, error) {
	return w.impl.Load(ctx)
}

// Start watches in the background until ctx is cancelled or Stop is called.
func (w *ConfigMapWatcher) Start(ctx context.Context, onUpdate func(data map[string]string)) error {
	if onUpdate == nil {
		return errors.New(errors.CodeInvalidArgument, "update callback is required")
	}
	return w.impl.Start(ctx, onUpdate)
}

// Stop ends the watch and waits for it to exit.
func (w *ConfigMapWatcher) Stop() {
	w.impl.Stop()
}

// WatchConfigMap watches a ConfigMap and calls onUpdate on every change.
// It blocks until ctx is cancelled.
func WatchConfigMap(ctx context.Context, name string, opts WatchOptions, onUpdate func(data map[string]string)) error {
	w, err := NewConfigMapWatcher(name, opts)
	if err != nil {
		return err
	}
	if err := w.Start(ctx, onUpdate); err != nil {
		return err
	}

	<-ctx.Done()
	w.Stop()
	return nil
}
