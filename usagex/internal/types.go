// Package internal provides the sampling engine behind usagex.
package internal

import "time"

// SourceKind identifies the CPU accounting interface a sample was read from.
type SourceKind int

const (
	Unavailable SourceKind = iota
	CgroupV2
	CgroupV1
	HostProcStat
)

// preference lists the readable sources, best first.
var preference = []SourceKind{CgroupV2, CgroupV1, HostProcStat}

// String returns the log and CLI name of the source.
func (k SourceKind) String() string {
	switch k {
	case CgroupV2:
		return "cgroup_v2"
	case CgroupV1:
		return "cgroup_v1"
	case HostProcStat:
		return "proc_stat"
	default:
		return "unavailable"
	}
}

// CalculationMethod returns the value of the calculation_method metric attribute.
func (k SourceKind) CalculationMethod() string {
	switch k {
	case CgroupV2, CgroupV1:
		return "cgroups"
	default:
		return "proc_stat"
	}
}

// IsCgroup reports whether the source reads container-scoped counters.
func (k SourceKind) IsCgroup() bool {
	return k == CgroupV2 || k == CgroupV1
}

// SamplerState is the lifecycle state of the sampler.
type SamplerState int

const (
	Uninitialized SamplerState = iota
	Baseline
	SteadyState
	Degraded
)

func (s SamplerState) String() string {
	switch s {
	case Baseline:
		return "baseline"
	case SteadyState:
		return "steady_state"
	case Degraded:
		return "degraded"
	default:
		return "uninitialized"
	}
}

// RawCounterSample is one reading of the cumulative CPU counters.
// Deltas are only meaningful between samples sharing the same Source.
type RawCounterSample struct {
	ContainerCPUTimeNs uint64
	HostCPUTimeNs      uint64
	OnlineCPUCount     uint32
	CapturedAt         time.Time
	Source             SourceKind
}

// UtilizationSnapshot is the published view of resource usage. It is
// replaced wholesale once per tick.
type UtilizationSnapshot struct {
	ContainerCPUPercent float64
	ProcessCPUPercent   float64
	ProcessMemoryBytes  uint64
	LastUpdated         time.Time
	Source              SourceKind
	State               SamplerState
}
