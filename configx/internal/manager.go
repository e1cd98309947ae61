// Package internal provides internal implementation for the configx package.
package internal

import (
	"context"
	"maps"
	"sync"
	"time"

	"go.eggybyte.com/usagemon/core/errors"
	"go.eggybyte.com/usagemon/core/log"
)

// DefaultDebounce is applied when no debounce duration is configured.
const DefaultDebounce = 200 * time.Millisecond

type binding struct {
	target   any
	onUpdate func()
}

// ManagerImpl merges configuration sources. Each source keeps its own layer
// and later layers override earlier ones.
type ManagerImpl struct {
	logger   log.Logger
	sources  []Source
	debounce time.Duration

	mu       sync.RWMutex
	layers   []map[string]string
	snapshot map[string]string
	bindings []binding

	subsMu     sync.RWMutex
	updateSubs map[int]func(map[string]string)
	nextSubID  int
}

// NewManager creates a new configuration manager.
func NewManager(logger log.Logger, sources []Source, debounce time.Duration) (*ManagerImpl, error) {
	if logger == nil {
		return nil, errors.New(errors.CodeInvalidArgument, "logger is required")
	}
	if len(sources) == 0 {
		return nil, errors.New(errors.CodeInvalidArgument, "at least one source is required")
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	return &ManagerImpl{
		logger:     logger,
		sources:    sources,
		debounce:   debounce,
		layers:     make([]map[string]string, len(sources)),
		snapshot:   make(map[string]string),
		updateSubs: make(map[int]func(map[string]string)),
	}, nil
}

// Initialize loads every source and starts watching them. Watches end when
// ctx is cancelled.
func (m *ManagerImpl) Initialize(ctx context.Context) error {
	for i, source := range m.sources {
		snapshot, err := source.Load(ctx)
		if err != nil {
			return errors.Build(codeOf(err)).
				WithOp("configx.load").
				WithErr(err).
				WithMsgf("source %d load failed", i).
				Err()
		}
		m.layers[i] = snapshot
	}

	m.mu.Lock()
	m.snapshot = merge(m.layers)
	keys := len(m.snapshot)
	m.mu.Unlock()
	m.logger.Info("configuration loaded", log.Int("keys", keys), log.Int("sources", len(m.sources)))

	for i, source := range m.sources {
		updates, err := source.Watch(ctx)
		if err != nil {
			return errors.Wrapf(codeOf(err), "configx.watch", err, "source %d watch failed", i)
		}
		go m.watchSource(ctx, i, updates)
	}
	return nil
}

// watchSource applies the last snapshot received from one source once it
// has been quiet for the debounce duration.
func (m *ManagerImpl) watchSource(ctx context.Context, index int, updates <-chan map[string]string) {
	var pending map[string]string
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case snapshot, ok := <-updates:
			if !ok {
				return
			}
			pending = snapshot
			fire = time.After(m.debounce)
		case <-fire:
			m.applyUpdate(index, pending)
			pending, fire = nil, nil
		}
	}
}

// applyUpdate replaces one layer, re-merges, re-binds bound targets and
// notifies subscribers. Updates that leave the merged view unchanged are
// dropped.
func (m *ManagerImpl) applyUpdate(index int, update map[string]string) {
	m.mu.Lock()
	m.layers[index] = update
	merged := merge(m.layers)
	if maps.Equal(merged, m.snapshot) {
		m.mu.Unlock()
		m.logger.Debug("configuration unchanged", log.Int("source", index))
		return
	}
	m.snapshot = merged
	bindings := append([]binding(nil), m.bindings...)
	m.mu.Unlock()

	m.logger.Info("configuration updated", log.Int("source", index), log.Int("keys", len(merged)))

	for _, b := range bindings {
		if err := BindToStruct(merged, b.target); err != nil {
			m.logger.Error(err, "failed to rebind configuration")
			continue
		}
		if b.onUpdate != nil {
			b.onUpdate()
		}
	}
	m.notifySubscribers(merged)
}

// codeOf keeps a source's error code, treating uncoded errors as internal.
func codeOf(err error) errors.Code {
	if code := errors.CodeOf(err); code != "" {
		return code
	}
	return errors.CodeInternal
}

// merge flattens layers in order. Empty values never override.
func merge(layers []map[string]string) map[string]string {
	merged := make(map[string]string)
	for _, layer := range layers {
		for k, v := range layer {
			if v != "" {
				merged[k] = v
			}
		}
	}
	return merged
}

// notifySubscribers notifies all subscribers, each with its own copy.
func (m *ManagerImpl) notifySubscribers(snapshot map[string]string) {
	m.subsMu.RLock()
	subs := make([]func(map[string]string), 0, len(m.updateSubs))
	for _, sub := range m.updateSubs {
		subs = append(subs, sub)
	}
	m.subsMu.RUnlock()

	for _, sub := range subs {
		go sub(maps.Clone(snapshot))
	}
}

// Snapshot returns a copy of the current configuration.
func (m *ManagerImpl) Snapshot() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.snapshot)
}

// Value returns the value for a key and whether it exists.
func (m *ManagerImpl) Value(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, exists := m.snapshot[key]
	return value, exists
}

// Bind decodes the configuration into target. With an update callback the
// target is re-bound on every change before the callback runs.
func (m *ManagerImpl) Bind(target any, cfg BindConfig) error {
	if target == nil {
		return errors.New(errors.CodeInvalidArgument, "target cannot be nil")
	}
	if err := BindToStruct(m.Snapshot(), target); err != nil {
		return err
	}

	if cfg.OnUpdate != nil {
		m.mu.Lock()
		m.bindings = append(m.bindings, binding{target: target, onUpdate: cfg.OnUpdate})
		m.mu.Unlock()
	}
	return nil
}

// OnUpdate subscribes to configuration update events.
func (m *ManagerImpl) OnUpdate(fn func(snapshot map[string]string)) func() {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()

	subID := m.nextSubID
	m.nextSubID++
	m.updateSubs[subID] = fn

	return func() {
		m.subsMu.Lock()
		defer m.subsMu.Unlock()
		delete(m.updateSubs, subID)
	}
}
