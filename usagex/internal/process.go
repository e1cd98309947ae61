package internal

import (
	"context"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/process"

	"go.eggybyte.com/usagemon/core/errors"
)

// ProcessSample is one reading of the monitored process.
type ProcessSample struct {
	CPUPercent float64
	RSSBytes   uint64
}

// ProcessSampler reads CPU and memory usage of a single process.
type ProcessSampler interface {
	PID() int32
	Name() string
	Sample(ctx context.Context) (ProcessSample, error)
}

// SelfProcess samples the current process through the OS process table.
type SelfProcess struct {
	proc   *process.Process
	name   string
	numCPU int
}

// NewSelfProcess resolves the current process. name overrides the
// executable name reported by the OS when non-empty.
func NewSelfProcess(ctx context.Context, name string) (*SelfProcess, error) {
	pid := int32(os.Getpid())
	proc, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return nil, errors.Build(errors.CodeProcessLookup).
			WithOp("process.lookup").
			WithErr(err).
			WithDetails("pid", pid).
			Err()
	}
	if name == "" {
		if name, err = proc.NameWithContext(ctx); err != nil {
			return nil, errors.Wrap(errors.CodeProcessLookup, "process.name", err)
		}
	}

	p := &SelfProcess{proc: proc, name: name, numCPU: max(runtime.NumCPU(), 1)}
	// Prime the CPU time baseline; the first Percent call always reports 0.
	_, _ = proc.PercentWithContext(ctx, 0)
	return p, nil
}

// PID returns the process id.
func (p *SelfProcess) PID() int32 { return p.proc.Pid }

// Name returns the process name used in metric attributes.
func (p *SelfProcess) Name() string { return p.name }

// Sample returns CPU usage since the previous call, normalized to the host's
// cores and clamped to [0,100], and resident memory.
func (p *SelfProcess) Sample(ctx context.Context) (ProcessSample, error) {
	pct, err := p.proc.PercentWithContext(ctx, 0)
	if err != nil {
		return ProcessSample{}, errors.Wrap(errors.CodeProcessLookup, "process.cpu_percent", err)
	}
	mem, err := p.proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return ProcessSample{}, errors.Wrap(errors.CodeProcessLookup, "process.memory_info", err)
	}
	return ProcessSample{
		CPUPercent: Clamp(pct/float64(p.numCPU), 0, 100),
		RSSBytes:   mem.RSS,
	}, nil
}
