package internal

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/time/rate"

	"go.eggybyte.com/usagemon/core/errors"
	"go.eggybyte.com/usagemon/core/log"
)

// DefaultReprobeAfter is the number of consecutive failures of the current
// source after which detection runs again.
const DefaultReprobeAfter = 3

// SourceDetector picks the preferred accounting source.
type SourceDetector interface {
	Detect() SourceKind
}

// CounterReader reads raw counters from a source.
type CounterReader interface {
	Read(ctx context.Context, kind SourceKind) (RawCounterSample, error)
}

// SamplerOptions configures a Sampler.
type SamplerOptions struct {
	Detector     SourceDetector
	Reader       CounterReader
	Process      ProcessSampler // optional
	Store        *Store
	Clock        clock.Clock
	Logger       log.Logger
	ReprobeAfter int
}

// Sampler turns successive counter readings into utilization percentages.
// Tick must only be called from one goroutine.
type Sampler struct {
	detector     SourceDetector
	reader       CounterReader
	process      ProcessSampler
	store        *Store
	clock        clock.Clock
	logger       log.Logger
	reprobeAfter int

	source   SourceKind
	detected bool
	previous *RawCounterSample // last sample of the sticky source
	fallback *RawCounterSample // last sample of the current fallback run
	hasRate  bool
	last     UtilizationSnapshot
	failures int

	readWarn     rate.Sometimes
	fallbackWarn rate.Sometimes
	processWarn  rate.Sometimes
}

// NewSampler creates a sampler. Detector, Reader and Store are required.
func NewSampler(opts SamplerOptions) (*Sampler, error) {
	if opts.Detector == nil || opts.Reader == nil || opts.Store == nil {
		return nil, errors.New(errors.CodeInvalidArgument, "sampler requires a detector, reader and store")
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.ReprobeAfter < 1 {
		opts.ReprobeAfter = DefaultReprobeAfter
	}
	return &Sampler{
		detector:     opts.Detector,
		reader:       opts.Reader,
		process:      opts.Process,
		store:        opts.Store,
		clock:        opts.Clock,
		logger:       opts.Logger,
		reprobeAfter: opts.ReprobeAfter,
		readWarn:     rate.Sometimes{First: 1, Interval: time.Minute},
		fallbackWarn: rate.Sometimes{First: 1, Interval: time.Minute},
		processWarn:  rate.Sometimes{First: 1, Interval: time.Minute},
	}, nil
}

// Source returns the sticky source, or Unavailable before the first tick.
func (s *Sampler) Source() SourceKind {
	return s.source
}

// Tick runs one sampling cycle, publishes the result to the store and
// returns it.
func (s *Sampler) Tick(ctx context.Context) UtilizationSnapshot {
	if !s.detected {
		s.detect()
	}

	next := s.last
	if sample, err := s.reader.Read(ctx, s.source); err == nil {
		s.failures = 0
		s.fallback = nil
		next.ContainerCPUPercent, next.State = s.advance(sample)
		next.Source = sample.Source
	} else {
		s.failures++
		next.State = Degraded
		s.readFallback(ctx, err, &next)
		if s.failures >= s.reprobeAfter {
			s.detect()
		}
	}

	if s.process != nil {
		ps, perr := s.process.Sample(ctx)
		if perr != nil {
			s.processWarn.Do(func() {
				s.logger.Info("process sample failed, holding previous values",
					log.Str("error", perr.Error()))
			})
		} else {
			next.ProcessCPUPercent = ps.CPUPercent
			next.ProcessMemoryBytes = ps.RSSBytes
		}
	}

	next.LastUpdated = s.clock.Now()
	s.store.Store(next)
	s.last = next

	s.logger.Debug("Updated metrics",
		log.Float("container_cpu", next.ContainerCPUPercent),
		log.Float("process_cpu", next.ProcessCPUPercent),
		log.Uint64("process_memory", next.ProcessMemoryBytes),
		log.Str("source", next.Source.String()),
		log.Str("state", next.State.String()))
	return next
}

func (s *Sampler) detect() {
	kind := s.detector.Detect()
	if s.detected && kind != s.source {
		s.logger.Info("cpu accounting source changed",
			log.Str("from", s.source.String()),
			log.Str("to", kind.String()))
		if s.fallback != nil && s.fallback.Source == kind {
			// Already read as a fallback: keep rating against its last sample.
			s.previous = s.fallback
			s.hasRate = false
		}
		s.fallback = nil
	}
	if kind == Unavailable && (!s.detected || s.source != Unavailable) {
		s.logger.Warn("no cpu accounting interface available", log.Str("code", string(errors.CodeDetection)))
	}
	if !s.detected && kind != Unavailable {
		s.logger.Info("cpu accounting source detected", log.Str("source", kind.String()))
	}
	s.source = kind
	s.detected = true
	s.failures = 0
}

// readFallback tries each lower-priority source for this cycle only. A
// fallback value is exported once two consecutive fallback samples of the
// same source give a rate; until then the sticky source's value is held.
// The sticky source's previous sample is left alone so a recovered read
// rates against it directly.
func (s *Sampler) readFallback(ctx context.Context, cause error, next *UtilizationSnapshot) {
	for _, kind := range Fallbacks(s.source) {
		sample, err := s.reader.Read(ctx, kind)
		if err != nil {
			continue
		}
		s.fallbackWarn.Do(func() {
			s.logger.Warn("cpu source failed, reading fallback",
				log.Str("source", s.source.String()),
				log.Str("fallback", kind.String()),
				log.Str("error", cause.Error()))
		})
		if pct, ok := s.advanceFallback(sample); ok {
			next.ContainerCPUPercent = pct
			next.Source = sample.Source
		} else if next.Source == Unavailable {
			next.Source = sample.Source
		}
		return
	}

	s.fallback = nil
	s.readWarn.Do(func() {
		s.logger.Warn("cpu counters unavailable, holding previous value",
			log.Str("source", s.source.String()),
			log.Str("error", cause.Error()))
	})
}

// advanceFallback rates cur against the previous sample of the same
// fallback run. It reports false when no rate is available yet.
func (s *Sampler) advanceFallback(cur RawCounterSample) (float64, bool) {
	prev := s.fallback
	s.fallback = &cur
	if prev == nil || prev.Source != cur.Source ||
		cur.ContainerCPUTimeNs < prev.ContainerCPUTimeNs || cur.HostCPUTimeNs <= prev.HostCPUTimeNs {
		return 0, false
	}
	return ContainerPercent(cur.ContainerCPUTimeNs-prev.ContainerCPUTimeNs, cur.HostCPUTimeNs-prev.HostCPUTimeNs, cur.OnlineCPUCount), true
}

// advance computes the container percentage against the previous sample and
// makes the current sample the new previous.
func (s *Sampler) advance(cur RawCounterSample) (float64, SamplerState) {
	prev := s.previous
	s.previous = &cur

	switch {
	case prev == nil:
		s.hasRate = false
		return 0, Baseline

	case prev.Source != cur.Source:
		s.logger.Debug("cpu source switched, re-baselining",
			log.Str("from", prev.Source.String()),
			log.Str("to", cur.Source.String()))
		s.hasRate = false
		return s.last.ContainerCPUPercent, Baseline

	case cur.ContainerCPUTimeNs < prev.ContainerCPUTimeNs || cur.HostCPUTimeNs < prev.HostCPUTimeNs:
		err := errors.Build(errors.CodeCounterReset).
			WithOp(cur.Source.String()).
			WithMsgf("container %d->%d host %d->%d",
				prev.ContainerCPUTimeNs, cur.ContainerCPUTimeNs, prev.HostCPUTimeNs, cur.HostCPUTimeNs).
			Err()
		s.logger.Info("cpu counter reset, re-baselining", log.Str("error", err.Error()))
		s.hasRate = false
		return 0, Baseline
	}

	hostDelta := cur.HostCPUTimeNs - prev.HostCPUTimeNs
	if hostDelta == 0 {
		if s.hasRate {
			return s.last.ContainerCPUPercent, SteadyState
		}
		return s.last.ContainerCPUPercent, Baseline
	}

	s.hasRate = true
	return ContainerPercent(cur.ContainerCPUTimeNs-prev.ContainerCPUTimeNs, hostDelta, cur.OnlineCPUCount), SteadyState
}

// ContainerPercent converts counter deltas to a percentage of the
// container's CPU capacity, clamped to [0,100].
func ContainerPercent(containerDelta, hostDelta uint64, onlineCPUs uint32) float64 {
	if hostDelta == 0 {
		return 0
	}
	cpus := float64(max(onlineCPUs, 1))
	return Clamp(float64(containerDelta)/float64(hostDelta)*cpus*100, 0, 100)
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	return min(max(v, lo), hi)
}
