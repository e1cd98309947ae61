// Package internal provides internal implementation for the servicex package.
package internal

import (
	"context"
	"os"

	"go.uber.org/multierr"

	"go.eggybyte.com/usagemon/configx"
	"go.eggybyte.com/usagemon/core/errors"
	"go.eggybyte.com/usagemon/core/log"
	"go.eggybyte.com/usagemon/obsx"
	"go.eggybyte.com/usagemon/runtimex"
	"go.eggybyte.com/usagemon/usagex"
)

// ServiceRuntime manages the service lifecycle and components.
type ServiceRuntime struct {
	deps     *ServiceConfig
	logger   log.Logger
	cfg      Config
	manager  configx.Manager
	provider *obsx.Provider
	monitor  *usagex.Monitor
	runtime  *runtimex.Runtime

	cancelWatch context.CancelFunc
	unsubscribe func()
}

// NewServiceRuntime creates a new service runtime instance.
func NewServiceRuntime(deps *ServiceConfig) *ServiceRuntime {
	if deps == nil {
		deps = &ServiceConfig{}
	}
	return &ServiceRuntime{deps: deps}
}

// Start loads configuration, builds the metrics provider and the usage
// monitor, and serves the health and metrics endpoints. It returns once
// everything is listening. A monitor that cannot be created is logged and
// skipped; every other failure is returned.
func (r *ServiceRuntime) Start(ctx context.Context) error {
	r.initializeLogger()

	if err := r.initializeConfig(ctx); err != nil {
		r.release()
		return err
	}

	r.logger.Info("starting service",
		log.Str("service", r.cfg.Usage.ServiceName),
		log.Str("version", r.cfg.ServiceVersion),
		log.Str("build_time", BuildTime))

	if err := r.initializeObservability(ctx); err != nil {
		r.release()
		return err
	}

	r.initializeMonitor(ctx)

	if err := r.startRuntime(ctx); err != nil {
		if serr := r.provider.Shutdown(context.Background()); serr != nil {
			r.logger.Error(serr, "metrics provider shutdown failed")
		}
		r.release()
		return err
	}

	r.logger.Info("service started",
		log.Str("health_addr", r.runtime.Addr(runtimex.HealthServer)),
		log.Str("metrics_addr", r.runtime.Addr(runtimex.MetricsServer)),
		log.Bool("monitor", r.monitor != nil))
	return nil
}

// Stop shuts down the endpoints, the monitor and the metrics provider.
func (r *ServiceRuntime) Stop(ctx context.Context) error {
	var err error
	if r.runtime != nil {
		err = multierr.Append(err, r.runtime.Stop(ctx))
	}
	if r.provider != nil {
		if perr := r.provider.Shutdown(ctx); perr != nil {
			r.logger.Error(perr, "metrics provider shutdown failed")
			err = multierr.Append(err, perr)
		}
	}
	r.release()

	r.logger.Info("service stopped")
	return err
}

// Run starts the service, blocks until ctx is cancelled and shuts down
// within the configured timeout.
func (r *ServiceRuntime) Run(ctx context.Context) error {
	if err := r.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	r.logger.Info("shutting down service")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), r.cfg.ShutdownTimeout)
	defer cancel()
	return r.Stop(shutdownCtx)
}

// Addr returns the bound address of a runtimex server, or "" before Start.
func (r *ServiceRuntime) Addr(name string) string {
	if r.runtime == nil {
		return ""
	}
	return r.runtime.Addr(name)
}

// Monitor returns the usage monitor, or nil when it could not be created.
func (r *ServiceRuntime) Monitor() *usagex.Monitor { return r.monitor }

// Config returns the configuration bound at Start.
func (r *ServiceRuntime) Config() Config { return r.cfg }

// Logger returns the service logger.
func (r *ServiceRuntime) Logger() log.Logger { return r.logger }

// initializeLogger bootstraps from the environment so configuration loading
// is logged; initializeConfig rebuilds it from the bound settings.
func (r *ServiceRuntime) initializeLogger() {
	if r.deps.Logger != nil {
		r.logger = r.deps.Logger
		return
	}
	r.logger = NewLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
}

func (r *ServiceRuntime) initializeConfig(ctx context.Context) error {
	watchCtx, cancel := context.WithCancel(ctx)
	r.cancelWatch = cancel

	mgr := r.deps.Manager
	if mgr == nil {
		var err error
		mgr, err = configx.DefaultManager(watchCtx, r.logger)
		if err != nil {
			return errors.Wrap(codeOr(err, errors.CodeUnavailable), "servicex.config", err)
		}
	}

	if err := mgr.Bind(&r.cfg); err != nil {
		return err
	}
	if err := configx.ValidateStruct(nil, r.cfg); err != nil {
		return err
	}
	r.manager = mgr

	if r.deps.Logger == nil {
		r.logger = NewLogger(r.cfg.LogLevel, r.cfg.LogFormat)
	}
	r.unsubscribe = mgr.OnUpdate(r.onConfigUpdate)
	return nil
}

// onConfigUpdate reports monitor settings that changed at runtime. The
// sampler keeps its start-time settings until the next restart.
func (r *ServiceRuntime) onConfigUpdate(snapshot map[string]string) {
	var next Config
	if err := configx.Bind(snapshot, &next); err != nil {
		r.logger.Error(err, "configuration update rejected")
		return
	}
	if next.Usage == r.cfg.Usage {
		r.logger.Debug("configuration update does not affect the usage monitor")
		return
	}
	r.logger.Warn("usage settings changed, restart to apply",
		log.Dur("sample_interval", next.Usage.SampleInterval),
		log.Int("reprobe_after", next.Usage.ReprobeAfter))
}

func (r *ServiceRuntime) initializeObservability(ctx context.Context) error {
	provider, err := obsx.NewProvider(ctx, obsx.Options{
		ServiceName:    r.cfg.Usage.ServiceName,
		ServiceVersion: r.cfg.ServiceVersion,
		OTLPEndpoint:   r.cfg.OTLPEndpoint,
		ExportInterval: r.cfg.ExportInterval,
		Readers:        r.deps.Readers,
	})
	if err != nil {
		return errors.Wrap(codeOr(err, errors.CodeInternal), "servicex.obsx", err)
	}
	r.provider = provider
	return nil
}

// initializeMonitor creates the monitor and registers its gauges. Failure
// leaves the service running without usage metrics.
func (r *ServiceRuntime) initializeMonitor(ctx context.Context) {
	mon, err := usagex.New(ctx, usagex.Options{
		Config:  r.cfg.Usage,
		Logger:  r.logger,
		Process: r.deps.Process,
	})
	if err != nil {
		r.logger.Error(err, "usage monitor disabled, continuing without it")
		return
	}

	err = r.provider.RegisterUsageMetrics(usageReader{monitor: mon}, obsx.UsageMetricsOptions{
		ServiceName: mon.Config().ServiceName,
		PID:         int64(mon.PID()),
		ProcessName: mon.ProcessName(),
	})
	if err != nil {
		r.logger.Error(err, "usage metrics registration failed, continuing without them")
		return
	}
	r.monitor = mon
}

func (r *ServiceRuntime) startRuntime(ctx context.Context) error {
	var (
		services []runtimex.Service
		checkers []runtimex.HealthChecker
	)
	if r.monitor != nil {
		services = append(services, r.monitor)
		checkers = append(checkers, r.monitor)
	}

	rt, err := runtimex.New(services, runtimex.Options{
		Logger:          r.logger,
		Health:          &runtimex.Endpoint{Addr: normalizeAddr(r.cfg.HealthPort)},
		Metrics:         &runtimex.Endpoint{Addr: normalizeAddr(r.cfg.MetricsPort), Handler: r.provider.PrometheusHandler()},
		HealthCheckers:  checkers,
		ShutdownTimeout: r.cfg.ShutdownTimeout,
	})
	if err != nil {
		return err
	}
	if err := rt.Start(ctx); err != nil {
		return err
	}
	r.runtime = rt
	return nil
}

func (r *ServiceRuntime) release() {
	if r.unsubscribe != nil {
		r.unsubscribe()
		r.unsubscribe = nil
	}
	if r.cancelWatch != nil {
		r.cancelWatch()
		r.cancelWatch = nil
	}
}

func codeOr(err error, fallback errors.Code) errors.Code {
	if code := errors.CodeOf(err); code != "" {
		return code
	}
	return fallback
}
