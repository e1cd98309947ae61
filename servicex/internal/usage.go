package internal

import (
	"go.eggybyte.com/usagemon/obsx"
	"go.eggybyte.com/usagemon/usagex"
)

// snapshotter is the read side of usagex.Monitor.
type snapshotter interface {
	TrySnapshot() (usagex.Snapshot, bool)
}

// usageReader adapts a monitor snapshot to the gauge callback. A contended
// snapshot skips the collection instead of waiting on the sampler.
type usageReader struct {
	monitor snapshotter
}

func (u usageReader) TryUsage() (obsx.UsageReading, bool) {
	snap, ok := u.monitor.TrySnapshot()
	if !ok {
		return obsx.UsageReading{}, false
	}
	return obsx.UsageReading{
		ContainerCPUPercent: snap.ContainerCPUPercent,
		ProcessCPUPercent:   snap.ProcessCPUPercent,
		ProcessMemoryBytes:  snap.ProcessMemoryBytes,
		CalculationMethod:   snap.Source.CalculationMethod(),
	}, true
}
