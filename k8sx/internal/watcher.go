// Package internal contains Kubernetes ConfigMap watcher implementation.
package internal

import (
	"context"
	"maps"
	"sync"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/fields"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"

	"go.eggybyte.com/usagemon/core/errors"
	"go.eggybyte.com/usagemon/core/log"
)

// ConfigMapWatcher reads and watches a single ConfigMap.
type ConfigMapWatcher struct {
	name       string
	namespace  string
	client     kubernetes.Interface
	logger     log.Logger
	retryDelay time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewConfigMapWatcher creates a watcher for namespace/name.
func NewConfigMapWatcher(client kubernetes.Interface, name, namespace string, logger log.Logger, retryDelay time.Duration) *ConfigMapWatcher {
	return &ConfigMapWatcher{
		name:       name,
		namespace:  namespace,
		client:     client,
		logger:     logger.With(log.Str("configmap", name), log.Str("namespace", namespace)),
		retryDelay: retryDelay,
	}
}

// Load returns the current ConfigMap data. A missing ConfigMap yields an
// empty map.
func (w *ConfigMapWatcher) Load(ctx context.Context) (map[string]string, error) {
	cm, err := w.client.CoreV1().ConfigMaps(w.namespace).Get(ctx, w.name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(errors.CodeUnavailable, "k8sx.configmap.get", err)
	}
	return dataOf(cm), nil
}

// Start begins watching in the background. onUpdate receives the current
// data once the watch is established and again on every change.
func (w *ConfigMapWatcher) Start(ctx context.Context, onUpdate func(map[string]string)) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel != nil {
		return errors.New(errors.CodeInternal, "watcher is already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})

	w.logger.Info("starting ConfigMap watcher")
	go func(done chan struct{}) {
		defer close(done)
		w.run(ctx, onUpdate)
	}(w.done)
	return nil
}

// Stop cancels the watch and waits for the background goroutine to exit.
func (w *ConfigMapWatcher) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (w *ConfigMapWatcher) run(ctx context.Context, onUpdate func(map[string]string)) {
	defer w.logger.Info("ConfigMap watcher stopped")

	for {
		if err := w.watchOnce(ctx, onUpdate); err != nil {
			w.logger.Error(err, "ConfigMap watch failed", log.Dur("retry_in", w.retryDelay))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.retryDelay):
		}
	}
}

// watchOnce opens one watch and delivers events until it closes. The
// current state is read after the watch is open so no change in between
// is lost.
func (w *ConfigMapWatcher) watchOnce(ctx context.Context, onUpdate func(map[string]string)) error {
	watcher, err := w.client.CoreV1().ConfigMaps(w.namespace).Watch(ctx, metav1.ListOptions{
		FieldSelector: fields.OneTermEqualSelector("metadata.name", w.name).String(),
	})
	if err != nil {
		return errors.Wrap(errors.CodeUnavailable, "k8sx.configmap.watch", err)
	}
	defer watcher.Stop()

	data, err := w.Load(ctx)
	if err != nil {
		return err
	}
	onUpdate(data)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.ResultChan():
			if !ok {
				w.logger.Warn("ConfigMap watcher channel closed")
				return nil
			}

			switch event.Type {
			case watch.Added, watch.Modified:
				cm, ok := event.Object.(*corev1.ConfigMap)
				if !ok || cm.Name != w.name {
					continue
				}
				w.logger.Info("ConfigMap updated", log.Int("data_keys", len(cm.Data)))
				onUpdate(dataOf(cm))
			case watch.Deleted:
				if cm, ok := event.Object.(*corev1.ConfigMap); ok && cm.Name != w.name {
					continue
				}
				w.logger.Info("ConfigMap deleted")
				onUpdate(map[string]string{})
			case watch.Error:
				return errors.Wrap(errors.CodeUnavailable, "k8sx.configmap.watch", apierrors.FromObject(event.Object))
			}
		}
	}
}

func dataOf(cm *corev1.ConfigMap) map[string]string {
	if cm.Data == nil {
		return map[string]string{}
	}
	return maps.Clone(cm.Data)
}
