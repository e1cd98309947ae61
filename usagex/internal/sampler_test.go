package internal

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"go.eggybyte.com/usagemon/core/errors"
	"go.eggybyte.com/usagemon/testingx"
)

// fakeReader replays queued samples per source. A source with an empty
// queue, or marked failing, returns a READ_ERROR.
type fakeReader struct {
	samples map[SourceKind][]RawCounterSample
	failing map[SourceKind]bool
	calls   []SourceKind
}

func newFakeReader() *fakeReader {
	return &fakeReader{
		samples: make(map[SourceKind][]RawCounterSample),
		failing: make(map[SourceKind]bool),
	}
}

func (f *fakeReader) push(kind SourceKind, container, host uint64, cpus uint32) {
	f.samples[kind] = append(f.samples[kind], RawCounterSample{
		ContainerCPUTimeNs: container,
		HostCPUTimeNs:      host,
		OnlineCPUCount:     cpus,
		Source:             kind,
	})
}

func (f *fakeReader) Read(_ context.Context, kind SourceKind) (RawCounterSample, error) {
	f.calls = append(f.calls, kind)
	queue := f.samples[kind]
	if f.failing[kind] || len(queue) == 0 {
		return RawCounterSample{}, errors.Wrap(errors.CodeRead, kind.String(), errors.New(errors.CodeRead, "unreadable"))
	}
	f.samples[kind] = queue[1:]
	return queue[0], nil
}

// fakeDetector returns kinds in order, repeating the last one.
type fakeDetector struct {
	kinds []SourceKind
	calls int
}

func (d *fakeDetector) Detect() SourceKind {
	k := d.kinds[min(d.calls, len(d.kinds)-1)]
	d.calls++
	return k
}

type fakeProcess struct {
	samples []ProcessSample
	err     error
}

func (p *fakeProcess) PID() int32   { return 4242 }
func (p *fakeProcess) Name() string { return "shippingservice" }

func (p *fakeProcess) Sample(context.Context) (ProcessSample, error) {
	if p.err != nil {
		return ProcessSample{}, p.err
	}
	s := p.samples[0]
	if len(p.samples) > 1 {
		p.samples = p.samples[1:]
	}
	return s, nil
}

type samplerFixture struct {
	sampler  *Sampler
	reader   *fakeReader
	detector *fakeDetector
	store    *Store
	clock    *clock.Mock
	logger   *testingx.MockLogger
}

func newSamplerFixture(t *testing.T, proc ProcessSampler, kinds ...SourceKind) *samplerFixture {
	t.Helper()
	f := &samplerFixture{
		reader:   newFakeReader(),
		detector: &fakeDetector{kinds: kinds},
		store:    &Store{},
		clock:    clock.NewMock(),
		logger:   testingx.NewMockLogger(t),
	}
	s, err := NewSampler(SamplerOptions{
		Detector: f.detector,
		Reader:   f.reader,
		Process:  proc,
		Store:    f.store,
		Clock:    f.clock,
		Logger:   f.logger,
	})
	testingx.AssertNoError(t, err)
	f.sampler = s
	return f
}

func (f *samplerFixture) tick() UtilizationSnapshot {
	f.clock.Add(5 * time.Second)
	return f.sampler.Tick(context.Background())
}

func TestSampler_FirstTickIsBaseline(t *testing.T) {
	f := newSamplerFixture(t, nil, CgroupV2)
	f.reader.push(CgroupV2, 5_000_000_000, 90_000_000_000, 2)

	snap := f.tick()

	if snap.ContainerCPUPercent != 0 {
		t.Errorf("ContainerCPUPercent = %v, want 0", snap.ContainerCPUPercent)
	}
	if snap.State != Baseline {
		t.Errorf("State = %v, want baseline", snap.State)
	}
	if snap.Source != CgroupV2 {
		t.Errorf("Source = %v, want cgroup_v2", snap.Source)
	}
	if !snap.LastUpdated.Equal(f.clock.Now()) {
		t.Errorf("LastUpdated = %v, want %v", snap.LastUpdated, f.clock.Now())
	}
	if got := f.store.Load(); got != snap {
		t.Errorf("store holds %+v, want %+v", got, snap)
	}
	f.logger.AssertLogged("INFO", "cpu accounting source detected")
	f.logger.AssertLogged("DEBUG", "Updated metrics")
}

func TestSampler_SteadyState(t *testing.T) {
	f := newSamplerFixture(t, nil, CgroupV2)
	f.reader.push(CgroupV2, 0, 0, 2)
	f.reader.push(CgroupV2, 200_000_000, 1_000_000_000, 2)

	f.tick()
	snap := f.tick()

	if math.Abs(snap.ContainerCPUPercent-40) > 1e-9 {
		t.Errorf("ContainerCPUPercent = %v, want 40", snap.ContainerCPUPercent)
	}
	if snap.State != SteadyState {
		t.Errorf("State = %v, want steady_state", snap.State)
	}
}

func TestSampler_ClampsToHundred(t *testing.T) {
	f := newSamplerFixture(t, nil, CgroupV1)
	f.reader.push(CgroupV1, 0, 0, 4)
	f.reader.push(CgroupV1, 900_000_000, 1_000_000_000, 4)

	f.tick()
	if snap := f.tick(); snap.ContainerCPUPercent != 100 {
		t.Errorf("ContainerCPUPercent = %v, want 100", snap.ContainerCPUPercent)
	}
}

func TestSampler_CounterReset(t *testing.T) {
	f := newSamplerFixture(t, nil, CgroupV2)
	f.reader.push(CgroupV2, 0, 0, 1)
	f.reader.push(CgroupV2, 500, 1000, 1)
	f.reader.push(CgroupV2, 100, 2000, 1) // container counter went backwards
	f.reader.push(CgroupV2, 300, 3000, 1)

	f.tick()
	if snap := f.tick(); snap.ContainerCPUPercent != 50 {
		t.Fatalf("ContainerCPUPercent = %v, want 50", snap.ContainerCPUPercent)
	}

	snap := f.tick()
	if snap.ContainerCPUPercent != 0 || snap.State != Baseline {
		t.Errorf("after reset got %v/%v, want 0/baseline", snap.ContainerCPUPercent, snap.State)
	}
	f.logger.AssertLogged("INFO", "cpu counter reset, re-baselining")

	// The next delta is measured against the reset-time sample.
	snap = f.tick()
	if math.Abs(snap.ContainerCPUPercent-20) > 1e-9 {
		t.Errorf("ContainerCPUPercent = %v, want 20", snap.ContainerCPUPercent)
	}
}

func TestSampler_HostCounterReset(t *testing.T) {
	f := newSamplerFixture(t, nil, CgroupV2)
	f.reader.push(CgroupV2, 0, 5000, 1)
	f.reader.push(CgroupV2, 10, 100, 1)

	f.tick()
	if snap := f.tick(); snap.ContainerCPUPercent != 0 || snap.State != Baseline {
		t.Errorf("got %v/%v, want 0/baseline", snap.ContainerCPUPercent, snap.State)
	}
}

func TestSampler_ZeroHostDeltaHoldsValue(t *testing.T) {
	f := newSamplerFixture(t, nil, CgroupV2)
	f.reader.push(CgroupV2, 0, 0, 1)
	f.reader.push(CgroupV2, 250, 1000, 1)
	f.reader.push(CgroupV2, 250, 1000, 1)

	f.tick()
	f.tick()
	snap := f.tick()

	if snap.ContainerCPUPercent != 25 {
		t.Errorf("ContainerCPUPercent = %v, want 25", snap.ContainerCPUPercent)
	}
	if math.IsNaN(snap.ContainerCPUPercent) {
		t.Error("ContainerCPUPercent is NaN")
	}
	if snap.State != SteadyState {
		t.Errorf("State = %v, want steady_state", snap.State)
	}
}

func TestSampler_DegradedHoldsValue(t *testing.T) {
	f := newSamplerFixture(t, nil, CgroupV2)
	f.reader.push(CgroupV2, 0, 0, 1)
	f.reader.push(CgroupV2, 300, 1000, 1)

	f.tick()
	f.tick()
	snap := f.tick() // every source is now exhausted

	if snap.State != Degraded {
		t.Errorf("State = %v, want degraded", snap.State)
	}
	if snap.ContainerCPUPercent != 30 {
		t.Errorf("ContainerCPUPercent = %v, want held 30", snap.ContainerCPUPercent)
	}
	if snap.Source != CgroupV2 {
		t.Errorf("Source = %v, want cgroup_v2", snap.Source)
	}

	f.tick()
	if n := f.logger.Count("WARN", "cpu counters unavailable, holding previous value"); n != 1 {
		t.Errorf("degraded warning logged %d times, want 1", n)
	}
}

func TestSampler_FallsBackToProcStat(t *testing.T) {
	f := newSamplerFixture(t, nil, CgroupV2)
	f.reader.failing[CgroupV2] = true
	f.reader.failing[CgroupV1] = true
	f.reader.push(HostProcStat, 100, 1000, 1)
	f.reader.push(HostProcStat, 200, 2000, 1)

	first := f.tick()
	second := f.tick()

	if first.Source != HostProcStat || second.Source != HostProcStat {
		t.Fatalf("sources = %v, %v; want proc_stat", first.Source, second.Source)
	}
	if got := second.Source.CalculationMethod(); got != "proc_stat" {
		t.Errorf("CalculationMethod() = %q, want proc_stat", got)
	}
	// Fallback values are fresh but the preferred source is still failing.
	if second.State != Degraded || second.ContainerCPUPercent != 10 {
		t.Errorf("got %v/%v, want degraded/10", second.State, second.ContainerCPUPercent)
	}
	f.logger.AssertLogged("WARN", "cpu source failed, reading fallback")

	want := []SourceKind{CgroupV2, CgroupV1, HostProcStat, CgroupV2, CgroupV1, HostProcStat}
	if len(f.reader.calls) != len(want) {
		t.Fatalf("reader calls = %v, want %v", f.reader.calls, want)
	}
	for i := range want {
		if f.reader.calls[i] != want[i] {
			t.Errorf("call %d = %v, want %v", i, f.reader.calls[i], want[i])
		}
	}
}

func TestSampler_SourceSwitchHoldsValue(t *testing.T) {
	f := newSamplerFixture(t, nil, CgroupV2)
	f.reader.push(CgroupV2, 0, 0, 1)
	f.reader.push(CgroupV2, 400, 1000, 1)
	f.reader.push(HostProcStat, 10, 100, 1)

	f.tick()
	f.tick()
	f.sampler.source = HostProcStat // as after a re-probe
	snap := f.tick()

	if snap.Source != HostProcStat {
		t.Fatalf("Source = %v, want proc_stat", snap.Source)
	}
	if snap.ContainerCPUPercent != 40 || snap.State != Baseline {
		t.Errorf("got %v/%v, want held 40/baseline", snap.ContainerCPUPercent, snap.State)
	}
}

func TestSampler_TransientFailureKeepsBaseline(t *testing.T) {
	f := newSamplerFixture(t, nil, CgroupV2)
	f.reader.push(CgroupV2, 0, 0, 1)
	f.reader.push(CgroupV2, 400, 1000, 1)
	f.reader.push(HostProcStat, 7000, 9000, 1)

	f.tick()
	f.tick()

	// cgroup v2 queue is empty for one cycle; proc_stat answers instead.
	snap := f.tick()
	if snap.ContainerCPUPercent != 40 || snap.Source != CgroupV2 || snap.State != Degraded {
		t.Errorf("failed cycle got %v/%v/%v, want held 40/cgroup_v2/degraded",
			snap.ContainerCPUPercent, snap.Source, snap.State)
	}
	if got := snap.Source.CalculationMethod(); got != "cgroups" {
		t.Errorf("CalculationMethod() = %q, want cgroups", got)
	}

	f.reader.push(CgroupV2, 900, 2000, 1)
	f.reader.push(CgroupV2, 1400, 3000, 1)

	snap = f.tick()
	if math.Abs(snap.ContainerCPUPercent-50) > 1e-9 || snap.State != SteadyState || snap.Source != CgroupV2 {
		t.Errorf("recovered cycle got %v/%v/%v, want 50/steady_state/cgroup_v2",
			snap.ContainerCPUPercent, snap.State, snap.Source)
	}
	snap = f.tick()
	if math.Abs(snap.ContainerCPUPercent-50) > 1e-9 || snap.State != SteadyState {
		t.Errorf("next cycle got %v/%v, want 50/steady_state", snap.ContainerCPUPercent, snap.State)
	}
}

func TestSampler_ReprobesAfterRepeatedFailures(t *testing.T) {
	f := newSamplerFixture(t, nil, CgroupV2, CgroupV1)
	f.reader.failing[CgroupV2] = true
	for i := 0; i < 5; i++ {
		f.reader.push(CgroupV1, uint64(i*100), uint64(i*1000), 1)
	}

	for i := 0; i < DefaultReprobeAfter; i++ {
		f.tick()
	}
	if f.detector.calls != 2 {
		t.Fatalf("Detect called %d times, want 2", f.detector.calls)
	}
	if f.sampler.Source() != CgroupV1 {
		t.Fatalf("Source() = %v, want cgroup_v1", f.sampler.Source())
	}
	f.logger.AssertLogged("INFO", "cpu accounting source changed")

	calls := len(f.reader.calls)
	snap := f.tick()
	if got := f.reader.calls[calls:]; len(got) != 1 || got[0] != CgroupV1 {
		t.Errorf("reads after re-probe = %v, want [cgroup_v1]", got)
	}
	// Rated against the last fallback sample instead of re-baselining.
	if math.Abs(snap.ContainerCPUPercent-10) > 1e-9 || snap.State != SteadyState {
		t.Errorf("after re-probe got %v/%v, want 10/steady_state", snap.ContainerCPUPercent, snap.State)
	}
}

func TestSampler_Unavailable(t *testing.T) {
	f := newSamplerFixture(t, nil, Unavailable)

	for i := 0; i < 2*DefaultReprobeAfter; i++ {
		snap := f.tick()
		if snap.State != Degraded || snap.ContainerCPUPercent != 0 {
			t.Fatalf("tick %d: got %v/%v, want degraded/0", i, snap.State, snap.ContainerCPUPercent)
		}
		if snap.Source.CalculationMethod() != "proc_stat" {
			t.Errorf("CalculationMethod() = %q", snap.Source.CalculationMethod())
		}
	}
	if n := f.logger.Count("WARN", "no cpu accounting interface available"); n != 1 {
		t.Errorf("detection warning logged %d times, want 1", n)
	}
}

func TestSampler_ProcessValues(t *testing.T) {
	proc := &fakeProcess{samples: []ProcessSample{
		{CPUPercent: 12.5, RSSBytes: 64 << 20},
		{CPUPercent: 30, RSSBytes: 65 << 20},
	}}
	f := newSamplerFixture(t, proc, CgroupV2)
	f.reader.push(CgroupV2, 0, 0, 1)
	f.reader.push(CgroupV2, 0, 10, 1)

	if snap := f.tick(); snap.ProcessCPUPercent != 12.5 || snap.ProcessMemoryBytes != 64<<20 {
		t.Errorf("first tick process values = %v/%d", snap.ProcessCPUPercent, snap.ProcessMemoryBytes)
	}

	snap := f.tick()
	if snap.ProcessCPUPercent != 30 || snap.ProcessMemoryBytes != 65<<20 {
		t.Errorf("second tick process values = %v/%d", snap.ProcessCPUPercent, snap.ProcessMemoryBytes)
	}

	proc.err = errors.New(errors.CodeProcessLookup, "gone")
	snap = f.tick()
	if snap.ProcessCPUPercent != 30 || snap.ProcessMemoryBytes != 65<<20 {
		t.Errorf("process values not held: %v/%d", snap.ProcessCPUPercent, snap.ProcessMemoryBytes)
	}
	f.logger.AssertLogged("INFO", "process sample failed, holding previous values")
	f.logger.AssertNotLogged("WARN", "process sample failed, holding previous values")
}

func TestNewSampler_Validation(t *testing.T) {
	_, err := NewSampler(SamplerOptions{Reader: newFakeReader(), Store: &Store{}})
	testingx.AssertError(t, err, errors.CodeInvalidArgument)
}

func TestContainerPercent(t *testing.T) {
	tests := []struct {
		name      string
		container uint64
		host      uint64
		cpus      uint32
		want      float64
	}{
		{"two cores", 200_000_000, 1_000_000_000, 2, 40},
		{"idle", 0, 1_000_000_000, 8, 0},
		{"over capacity", 3_000_000_000, 1_000_000_000, 1, 100},
		{"zero host delta", 10, 0, 1, 0},
		{"zero cpus treated as one", 100, 1000, 0, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ContainerPercent(tt.container, tt.host, tt.cpus)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("ContainerPercent() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClamp(t *testing.T) {
	tests := []struct{ v, want float64 }{
		{-5, 0},
		{0, 0},
		{55.5, 55.5},
		{100, 100},
		{250, 100},
	}
	for _, tt := range tests {
		if got := Clamp(tt.v, 0, 100); got != tt.want {
			t.Errorf("Clamp(%v) = %v, want %v", tt.v, got, tt.want)
		}
	}
}
