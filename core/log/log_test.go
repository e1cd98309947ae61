package log

import (
	"testing"
	"time"
)

func TestKVHelpers(t *testing.T) {
	tests := []struct {
		name  string
		kv    any
		key   string
		value any
	}{
		{name: "Str", kv: Str("source", "cgroup_v2"), key: "source", value: "cgroup_v2"},
		{name: "Int", kv: Int("failures", 3), key: "failures", value: 3},
		{name: "Uint64", kv: Uint64("rss_bytes", 4096), key: "rss_bytes", value: uint64(4096)},
		{name: "Float", kv: Float("container_cpu", 40.5), key: "container_cpu", value: 40.5},
		{name: "Dur", kv: Dur("interval", 5*time.Second), key: "interval", value: 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slice, ok := tt.kv.([]any)
			if !ok {
				t.Fatalf("%s should return []any", tt.name)
			}
			if len(slice) != 2 {
				t.Fatalf("%s should return slice with 2 elements, got %d", tt.name, len(slice))
			}
			if slice[0] != tt.key || slice[1] != tt.value {
				t.Fatalf("%s returned %v, want [%v %v]", tt.name, slice, tt.key, tt.value)
			}
		})
	}
}

func TestNop(t *testing.T) {
	var logger Logger = Nop()

	// Must not panic and must keep returning a usable logger.
	logger = logger.With("k", "v")
	logger.Debug("debug")
	logger.Info("info", Str("k", "v"))
	logger.Warn("warn")
	logger.Error(nil, "error")

	if logger == nil {
		t.Fatal("With should return non-nil logger")
	}
}
