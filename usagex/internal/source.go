package internal

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Default filesystem roots.
const (
	DefaultCgroupRoot = "/sys/fs/cgroup"
	DefaultProcRoot   = "/proc"
)

// cgroup v1 controllers that may carry cpuacct.usage, in lookup order.
var cgroupV1AcctDirs = []string{"cpuacct", "cpu,cpuacct"}

// Paths locates the cgroup and proc filesystems.
type Paths struct {
	CgroupRoot string
	ProcRoot   string
}

func (p Paths) withDefaults() Paths {
	if p.CgroupRoot == "" {
		p.CgroupRoot = DefaultCgroupRoot
	}
	if p.ProcRoot == "" {
		p.ProcRoot = DefaultProcRoot
	}
	return p
}

func (p Paths) cgroup(elem ...string) string {
	return filepath.Join(append([]string{p.CgroupRoot}, elem...)...)
}

func (p Paths) proc(elem ...string) string {
	return filepath.Join(append([]string{p.ProcRoot}, elem...)...)
}

// Detector probes the filesystem for the best available CPU accounting source.
type Detector struct {
	paths Paths
}

// NewDetector creates a detector rooted at paths.
func NewDetector(paths Paths) *Detector {
	return &Detector{paths: paths.withDefaults()}
}

// Detect returns the highest-priority readable source. It never fails;
// when nothing is readable it returns Unavailable.
func (d *Detector) Detect() SourceKind {
	switch {
	case d.hasCgroupV2():
		return CgroupV2
	case d.hasCgroupV1():
		return CgroupV1
	case d.hasProcStat():
		return HostProcStat
	default:
		return Unavailable
	}
}

func (d *Detector) hasCgroupV2() bool {
	data, err := os.ReadFile(d.paths.cgroup("cpu.stat"))
	if err != nil {
		return false
	}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		if fields := strings.Fields(scanner.Text()); len(fields) == 2 && fields[0] == "usage_usec" {
			return true
		}
	}
	return false
}

func (d *Detector) hasCgroupV1() bool {
	for _, dir := range cgroupV1AcctDirs {
		if data, err := os.ReadFile(d.paths.cgroup(dir, "cpuacct.usage")); err == nil && len(bytes.TrimSpace(data)) > 0 {
			return true
		}
	}
	return false
}

func (d *Detector) hasProcStat() bool {
	f, err := os.Open(d.paths.proc("stat"))
	if err != nil {
		return false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	return scanner.Scan() && strings.HasPrefix(scanner.Text(), "cpu ")
}

// Fallbacks returns the sources below kind in preference order.
func Fallbacks(kind SourceKind) []SourceKind {
	for i, k := range preference {
		if k == kind {
			return slices.Clone(preference[i+1:])
		}
	}
	return nil
}
