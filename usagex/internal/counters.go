package internal

import (
	"bufio"
	"bytes"
	"context"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/procfs"

	"go.eggybyte.com/usagemon/core/errors"
)

const (
	// userHZ is the kernel clock tick rate used by /proc/stat.
	userHZ = 100
	// nsPerTick converts 1/100 s ticks to nanoseconds.
	nsPerTick = 10_000_000
)

// cgroup v1 controllers that may carry the CFS quota files, in lookup order.
var cgroupV1CPUDirs = []string{"cpu", "cpu,cpuacct", ""}

// Reader reads raw cumulative counters for a given source.
type Reader struct {
	paths Paths
	clock clock.Clock
}

// NewReader creates a counter reader. A nil clock uses wall time.
func NewReader(paths Paths, clk clock.Clock) *Reader {
	if clk == nil {
		clk = clock.New()
	}
	return &Reader{paths: paths.withDefaults(), clock: clk}
}

// hostTimes holds the aggregate /proc/stat counters in ticks.
type hostTimes struct {
	total uint64
	idle  uint64
}

// Read returns a fresh sample from kind. Missing or malformed files yield a
// READ_ERROR; Unavailable yields DETECTION_FAILURE.
func (r *Reader) Read(ctx context.Context, kind SourceKind) (RawCounterSample, error) {
	if err := ctx.Err(); err != nil {
		return RawCounterSample{}, errors.Wrap(errors.CodeUnavailable, "counters.read", err)
	}

	sample := RawCounterSample{Source: kind}
	switch kind {
	case CgroupV2, CgroupV1:
		var (
			usage uint64
			err   error
		)
		if kind == CgroupV2 {
			usage, err = r.cgroupV2Usage()
		} else {
			usage, err = r.cgroupV1Usage()
		}
		if err != nil {
			return RawCounterSample{}, err
		}
		host, err := r.hostTimes()
		if err != nil {
			return RawCounterSample{}, err
		}
		cpus, err := r.onlineCPUs()
		if err != nil {
			return RawCounterSample{}, err
		}
		sample.ContainerCPUTimeNs = usage
		sample.HostCPUTimeNs = host.total * nsPerTick
		sample.OnlineCPUCount = cpus

	case HostProcStat:
		host, err := r.hostTimes()
		if err != nil {
			return RawCounterSample{}, err
		}
		sample.ContainerCPUTimeNs = (host.total - host.idle) * nsPerTick
		sample.HostCPUTimeNs = host.total * nsPerTick
		sample.OnlineCPUCount = 1

	default:
		return RawCounterSample{}, errors.Build(errors.CodeDetection).
			WithOp("counters.read").
			WithMsg("no cpu accounting interface available").
			Err()
	}

	sample.CapturedAt = r.clock.Now()
	return sample, nil
}

// cgroupV2Usage returns usage_usec from cpu.stat in nanoseconds.
func (r *Reader) cgroupV2Usage() (uint64, error) {
	const op = "cgroup_v2.cpu.stat"
	data, err := os.ReadFile(r.paths.cgroup("cpu.stat"))
	if err != nil {
		return 0, errors.Wrap(errors.CodeRead, op, err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 2 || fields[0] != "usage_usec" {
			continue
		}
		usec, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return 0, errors.Wrapf(errors.CodeRead, op, err, "usage_usec %q", fields[1])
		}
		return usec * 1000, nil
	}
	return 0, errors.Build(errors.CodeRead).WithOp(op).WithMsg("usage_usec not found").Err()
}

// cgroupV1Usage returns cpuacct.usage in nanoseconds.
func (r *Reader) cgroupV1Usage() (uint64, error) {
	var firstErr error
	for _, dir := range cgroupV1AcctDirs {
		path := r.paths.cgroup(dir, "cpuacct.usage")
		v, err := readUint(path)
		if err == nil {
			return v, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return 0, errors.Wrap(errors.CodeRead, "cgroup_v1.cpuacct.usage", firstErr)
}

// hostTimes parses the aggregate cpu record of /proc/stat.
func (r *Reader) hostTimes() (hostTimes, error) {
	const op = "proc.stat"
	fs, err := procfs.NewFS(r.paths.ProcRoot)
	if err != nil {
		return hostTimes{}, errors.Wrap(errors.CodeRead, op, err)
	}
	stat, err := fs.Stat()
	if err != nil {
		return hostTimes{}, errors.Wrap(errors.CodeRead, op, err)
	}

	c := stat.CPUTotal
	busy := []float64{c.User, c.Nice, c.System, c.IRQ, c.SoftIRQ, c.Steal}
	var t hostTimes
	for _, sec := range busy {
		t.total += secondsToTicks(sec)
	}
	t.idle = secondsToTicks(c.Idle) + secondsToTicks(c.Iowait)
	t.total += t.idle
	if t.total == 0 {
		return hostTimes{}, errors.Build(errors.CodeRead).WithOp(op).WithMsg("aggregate cpu record missing").Err()
	}
	return t, nil
}

// secondsToTicks undoes procfs's division by USER_HZ.
func secondsToTicks(sec float64) uint64 {
	if sec <= 0 {
		return 0
	}
	return uint64(math.Round(sec * userHZ))
}

// onlineCPUs returns the CPU quota in whole cores when one is set,
// otherwise the number of processors listed in cpuinfo. Never below 1.
func (r *Reader) onlineCPUs() (uint32, error) {
	quota, err := r.cpuQuota()
	if err != nil {
		return 0, err
	}
	if quota > 0 {
		return quota, nil
	}

	f, err := os.Open(r.paths.proc("cpuinfo"))
	if err != nil {
		return 0, errors.Wrap(errors.CodeRead, "proc.cpuinfo", err)
	}
	defer f.Close()

	var n uint32
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		key, _, ok := strings.Cut(scanner.Text(), ":")
		if ok && strings.TrimSpace(key) == "processor" {
			n++
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, errors.Wrap(errors.CodeRead, "proc.cpuinfo", err)
	}
	return max(n, 1), nil
}

// cpuQuota returns floor(quota/period) with a minimum of 1, or 0 when no
// quota is configured.
func (r *Reader) cpuQuota() (uint32, error) {
	if data, err := os.ReadFile(r.paths.cgroup("cpu.max")); err == nil {
		fields := strings.Fields(string(data))
		if len(fields) != 2 {
			return 0, errors.Build(errors.CodeRead).WithOp("cgroup_v2.cpu.max").WithMsgf("malformed %q", data).Err()
		}
		if fields[0] == "max" {
			return 0, nil
		}
		quota, qerr := strconv.ParseInt(fields[0], 10, 64)
		period, perr := strconv.ParseInt(fields[1], 10, 64)
		if qerr != nil || perr != nil {
			return 0, errors.Build(errors.CodeRead).WithOp("cgroup_v2.cpu.max").WithMsgf("malformed %q", data).Err()
		}
		return quotaCores(quota, period), nil
	}

	for _, dir := range cgroupV1CPUDirs {
		quotaPath := r.paths.cgroup(dir, "cpu.cfs_quota_us")
		if _, err := os.Stat(quotaPath); err != nil {
			continue
		}
		quota, err := readInt(quotaPath)
		if err != nil {
			return 0, errors.Wrap(errors.CodeRead, "cgroup_v1.cpu.cfs_quota_us", err)
		}
		if quota < 0 {
			return 0, nil
		}
		period, err := readInt(r.paths.cgroup(dir, "cpu.cfs_period_us"))
		if err != nil {
			return 0, errors.Wrap(errors.CodeRead, "cgroup_v1.cpu.cfs_period_us", err)
		}
		return quotaCores(quota, period), nil
	}
	return 0, nil
}

func quotaCores(quota, period int64) uint32 {
	if quota <= 0 || period <= 0 {
		return 0
	}
	return uint32(max(quota/period, 1))
}

func readUint(path string) (uint64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
}

func readInt(path string) (int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
}
