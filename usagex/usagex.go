// Package usagex samples container and process resource usage in the
// background and serves the latest reading to metric exporters.
//
// Overview:
//   - Responsibility: Detect the CPU accounting source, sample counters on an interval, publish snapshots
//   - Key Types: Monitor, Config, Snapshot, SourceKind, SamplerState
//   - Concurrency Model: One sampling goroutine writes; Snapshot/TrySnapshot are safe from any goroutine
//   - Error Semantics: Runtime failures degrade to stale values and a log entry; only New can fail
//   - Performance Notes: TrySnapshot never blocks, for use inside metric collection callbacks
//
// Usage:
//
//	mon, err := usagex.New(ctx, usagex.Options{Config: cfg, Logger: logger})
//	if err := mon.Start(ctx); err != nil { ... }
//	defer mon.Stop(ctx)
//	snap := mon.Snapshot()
package usagex

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"go.eggybyte.com/usagemon/core/errors"
	"go.eggybyte.com/usagemon/core/log"
	"go.eggybyte.com/usagemon/usagex/internal"
)

// SourceKind identifies the CPU accounting interface in use.
type SourceKind = internal.SourceKind

// Accounting sources in preference order.
const (
	CgroupV2     = internal.CgroupV2
	CgroupV1     = internal.CgroupV1
	HostProcStat = internal.HostProcStat
	Unavailable  = internal.Unavailable
)

// SamplerState is the lifecycle state of the sampler.
type SamplerState = internal.SamplerState

// Sampler states.
const (
	Uninitialized = internal.Uninitialized
	Baseline      = internal.Baseline
	SteadyState   = internal.SteadyState
	Degraded      = internal.Degraded
)

// Snapshot is the latest utilization reading.
type Snapshot = internal.UtilizationSnapshot

// ProcessSample is one reading of the monitored process.
type ProcessSample = internal.ProcessSample

// ProcessSampler reads usage of a single process. The default samples the
// current process through the OS process table.
type ProcessSampler = internal.ProcessSampler

// Config holds monitor settings. Field tags drive configx binding and validation.
type Config struct {
	ServiceName    string        `env:"SERVICE_NAME" default:"shippingservice" validate:"required" yaml:"service_name"`
	ProcessName    string        `env:"PROCESS_NAME" yaml:"process_name"`
	SampleInterval time.Duration `env:"USAGE_SAMPLE_INTERVAL" default:"5s" validate:"min=100ms" yaml:"sample_interval"`
	CgroupRoot     string        `env:"USAGE_CGROUP_ROOT" default:"/sys/fs/cgroup" yaml:"cgroup_root"`
	ProcRoot       string        `env:"USAGE_PROC_ROOT" default:"/proc" yaml:"proc_root"`
	ReprobeAfter   int           `env:"USAGE_REPROBE_AFTER" default:"3" validate:"min=1" yaml:"reprobe_after"`
}

// Defaults.
const (
	DefaultServiceName    = "shippingservice"
	DefaultSampleInterval = 5 * time.Second
	MinSampleInterval     = 100 * time.Millisecond
)

func (c Config) withDefaults() Config {
	if c.ServiceName == "" {
		c.ServiceName = DefaultServiceName
	}
	if c.ProcessName == "" {
		c.ProcessName = c.ServiceName
	}
	if c.SampleInterval == 0 {
		c.SampleInterval = DefaultSampleInterval
	}
	if c.CgroupRoot == "" {
		c.CgroupRoot = internal.DefaultCgroupRoot
	}
	if c.ProcRoot == "" {
		c.ProcRoot = internal.DefaultProcRoot
	}
	if c.ReprobeAfter == 0 {
		c.ReprobeAfter = internal.DefaultReprobeAfter
	}
	return c
}

// Options holds the dependencies of a Monitor.
type Options struct {
	Config  Config
	Logger  log.Logger     // default: discard
	Clock   clock.Clock    // default: wall clock
	Process ProcessSampler // default: the current process
}

// Monitor owns the background sampler and its shared snapshot.
type Monitor struct {
	cfg     Config
	logger  log.Logger
	clock   clock.Clock
	process ProcessSampler
	detect  *internal.Detector
	reader  *internal.Reader
	store   *internal.Store
	sampler *internal.Sampler

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a monitor. It resolves the current process and returns a
// PROCESS_LOOKUP_FAILURE error when that fails.
//
// Parameters:
//   - ctx: bounds the process lookup
//   - opts: configuration plus optional logger, clock and process sampler
//
// Returns:
//   - *Monitor: a stopped monitor; call Start or Tick
//   - error: INVALID_ARGUMENT for bad settings, PROCESS_LOOKUP_FAILURE when the pid cannot be resolved
func New(ctx context.Context, opts Options) (*Monitor, error) {
	cfg := opts.Config.withDefaults()
	if cfg.SampleInterval < MinSampleInterval {
		return nil, errors.Build(errors.CodeInvalidArgument).
			WithOp("usagex.new").
			WithMsgf("sample interval %s is below %s", cfg.SampleInterval, MinSampleInterval).
			Err()
	}
	if cfg.ReprobeAfter < 1 {
		return nil, errors.Build(errors.CodeInvalidArgument).
			WithOp("usagex.new").
			WithMsgf("reprobe threshold %d must be at least 1", cfg.ReprobeAfter).
			Err()
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}
	logger = logger.With(log.Str("component", "usagex"))
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}

	proc := opts.Process
	if proc == nil {
		self, err := internal.NewSelfProcess(ctx, cfg.ProcessName)
		if err != nil {
			return nil, err
		}
		proc = self
	}

	paths := internal.Paths{CgroupRoot: cfg.CgroupRoot, ProcRoot: cfg.ProcRoot}
	m := &Monitor{
		cfg:     cfg,
		logger:  logger,
		clock:   clk,
		process: proc,
		detect:  internal.NewDetector(paths),
		reader:  internal.NewReader(paths, clk),
		store:   &internal.Store{},
	}

	sampler, err := internal.NewSampler(internal.SamplerOptions{
		Detector:     m.detect,
		Reader:       m.reader,
		Process:      proc,
		Store:        m.store,
		Clock:        clk,
		Logger:       logger,
		ReprobeAfter: cfg.ReprobeAfter,
	})
	if err != nil {
		return nil, err
	}
	m.sampler = sampler
	return m, nil
}

// Name identifies the monitor in service and health listings.
func (m *Monitor) Name() string { return "usage-monitor" }

// Config returns the effective configuration.
func (m *Monitor) Config() Config { return m.cfg }

// PID returns the monitored process id.
func (m *Monitor) PID() int32 { return m.process.PID() }

// ProcessName returns the process name used in metric attributes.
func (m *Monitor) ProcessName() string { return m.process.Name() }

// Start launches the sampling goroutine and returns immediately. The first
// tick runs right away; later ticks follow the configured interval.
//
// Parameters:
//   - ctx: the loop exits when ctx is cancelled
//
// Returns:
//   - error: INTERNAL if the loop is already running
//
// Concurrency:
//   - Safe to call from multiple goroutines; only one loop runs at a time
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New(errors.CodeInternal, "usage monitor already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	ticker := m.clock.Ticker(m.cfg.SampleInterval)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.running = true

	go m.run(runCtx, ticker, m.done)

	m.logger.Info("usage monitor started",
		log.Dur("interval", m.cfg.SampleInterval),
		log.Int("pid", int(m.PID())),
		log.Str("process", m.ProcessName()))
	return nil
}

// run owns the sampler until it returns. running is cleared only once the
// loop has exited, so Start and Tick cannot reach the sampler concurrently.
func (m *Monitor) run(ctx context.Context, ticker *clock.Ticker, done chan struct{}) {
	defer close(done)
	defer func() {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
	}()
	defer ticker.Stop()

	m.sampler.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sampler.Tick(ctx)
		}
	}
}

// Stop cancels the sampling loop and waits for it to exit or for ctx to
// expire. Stopping a monitor that is not running is a no-op. When ctx
// expires first the monitor keeps reporting Running until the loop exits.
func (m *Monitor) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	cancel()
	select {
	case <-done:
		m.logger.Info("usage monitor stopped")
		return nil
	case <-ctx.Done():
		return errors.Wrap(errors.CodeUnavailable, "usagex.stop", ctx.Err())
	}
}

// Tick runs one sampling cycle on the caller's goroutine. It is meant for
// one-shot tools and fails while the background loop is running.
func (m *Monitor) Tick(ctx context.Context) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return Snapshot{}, errors.New(errors.CodeInternal, "usage monitor is running")
	}
	return m.sampler.Tick(ctx), nil
}

// Source returns the accounting source the sampler is currently bound to.
func (m *Monitor) Source() SourceKind {
	return m.Snapshot().Source
}

// Running reports whether the sampling loop is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Snapshot returns the latest reading, waiting for an in-flight update.
func (m *Monitor) Snapshot() Snapshot {
	return m.store.Load()
}

// TrySnapshot returns the latest reading without blocking. It reports false
// when the sampler is mid-update.
func (m *Monitor) TrySnapshot() (Snapshot, bool) {
	return m.store.TryLoad()
}

// Check implements a health check. It fails once the sampling loop has
// exited, including when the Start context was cancelled. A degraded
// sampler is still healthy: monitoring is best effort.
func (m *Monitor) Check(ctx context.Context) error {
	if !m.Running() {
		return errors.New(errors.CodeUnavailable, "usage monitor is not running")
	}
	return nil
}

// Detail summarizes the sampler for the health endpoint.
func (m *Monitor) Detail() string {
	snap := m.Snapshot()
	return "source=" + snap.Source.String() + " state=" + snap.State.String()
}

// Detect probes the accounting sources once without starting the monitor.
func Detect(cfg Config) SourceKind {
	cfg = cfg.withDefaults()
	return internal.NewDetector(internal.Paths{CgroupRoot: cfg.CgroupRoot, ProcRoot: cfg.ProcRoot}).Detect()
}
