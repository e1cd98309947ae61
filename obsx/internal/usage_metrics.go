package internal

import (
	"context"
	"math"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"go.eggybyte.com/usagemon/core/errors"
)

// Usage instrument names.
const (
	ContainerCPUUsage  = "container_cpu_usage"
	ProcessCPUUsage    = "process_cpu_usage"
	ProcessMemoryUsage = "process_memory_usage"
)

// UsageReading is the value set exported on one collection.
type UsageReading struct {
	ContainerCPUPercent float64
	ProcessCPUPercent   float64
	ProcessMemoryBytes  uint64
	CalculationMethod   string // cgroups or proc_stat
}

// UsageReader supplies readings to the collection callback. TryUsage must
// not block; it reports false when no reading can be taken right now.
type UsageReader interface {
	TryUsage() (UsageReading, bool)
}

// UsageAttributes identifies the monitored service and process.
type UsageAttributes struct {
	ServiceName string
	PID         int64
	ProcessName string
}

// RegisterUsageMetrics registers the container and process usage gauges
// under a single callback. A reading that is not available is skipped for
// that collection; the exporter keeps no stale value for it.
//
// Returns:
//   - metric.Registration: handle to unregister the callback
//   - error: INVALID_ARGUMENT or INTERNAL
func RegisterUsageMetrics(mp metric.MeterProvider, reader UsageReader, attrs UsageAttributes) (metric.Registration, error) {
	if mp == nil || reader == nil {
		return nil, errors.New(errors.CodeInvalidArgument, "meter provider and usage reader are required")
	}
	meter := mp.Meter("go.eggybyte.com/usagemon/obsx/usage")

	containerCPU, err := meter.Float64ObservableGauge(
		ContainerCPUUsage,
		metric.WithDescription("Container CPU usage percentage"),
		metric.WithUnit("%"),
	)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, "obsx.usage."+ContainerCPUUsage, err)
	}

	processCPU, err := meter.Float64ObservableGauge(
		ProcessCPUUsage,
		metric.WithDescription("Process CPU usage percentage"),
		metric.WithUnit("%"),
	)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, "obsx.usage."+ProcessCPUUsage, err)
	}

	processMemory, err := meter.Int64ObservableGauge(
		ProcessMemoryUsage,
		metric.WithDescription("Process resident memory in bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, "obsx.usage."+ProcessMemoryUsage, err)
	}

	service := attribute.String("service.name", attrs.ServiceName)
	process := []attribute.KeyValue{
		service,
		attribute.Int64("process.pid", attrs.PID),
		attribute.String("process.name", attrs.ProcessName),
	}
	processCPUAttrs := metric.WithAttributeSet(attribute.NewSet(append(process, attribute.String("metric.type", "process_cpu"))...))
	processMemAttrs := metric.WithAttributeSet(attribute.NewSet(append(process, attribute.String("metric.type", "process_memory"))...))

	return meter.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			r, ok := reader.TryUsage()
			if !ok {
				return nil
			}

			o.ObserveFloat64(containerCPU, r.ContainerCPUPercent, metric.WithAttributes(
				service,
				attribute.String("metric.type", "container_cpu"),
				attribute.String("scope", "container"),
				attribute.String("calculation_method", r.CalculationMethod),
			))
			o.ObserveFloat64(processCPU, r.ProcessCPUPercent, processCPUAttrs)
			o.ObserveInt64(processMemory, int64(min(r.ProcessMemoryBytes, math.MaxInt64)), processMemAttrs)
			return nil
		},
		containerCPU,
		processCPU,
		processMemory,
	)
}
