package internal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"go.eggybyte.com/usagemon/core/errors"
	"go.eggybyte.com/usagemon/testingx"
)

func TestEnvSource_Load(t *testing.T) {
	t.Setenv("USAGE_SAMPLE_INTERVAL", "2s")
	t.Setenv("USAGE_REPROBE_AFTER", "5")
	t.Setenv("SERVICE_NAME", "shippingservice")

	tests := []struct {
		name string
		opts EnvOptions
		want map[string]string
	}{
		{
			name: "prefix stripped",
			opts: EnvOptions{Prefix: "USAGE_"},
			want: map[string]string{"SAMPLE_INTERVAL": "2s", "REPROBE_AFTER": "5"},
		},
		{
			name: "prefix lowercase",
			opts: EnvOptions{Prefix: "USAGE_", Lowercase: true},
			want: map[string]string{"sample_interval": "2s", "reprobe_after": "5"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewEnvSource(tt.opts).Load(context.Background())
			testingx.AssertNoError(t, err)
			// Other USAGE_ variables from the host would break an exact match.
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("Load()[%s] = %q, want %q", k, got[k], v)
				}
			}
		})
	}

	all, err := NewEnvSource(EnvOptions{}).Load(context.Background())
	testingx.AssertNoError(t, err)
	if all["SERVICE_NAME"] != "shippingservice" {
		t.Errorf("SERVICE_NAME = %q, want shippingservice", all["SERVICE_NAME"])
	}
}

func TestEnvSource_WatchClosesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := NewEnvSource(EnvOptions{}).Watch(ctx)
	testingx.AssertNoError(t, err)

	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			t.Error("EnvSource should never publish")
		}
	case <-time.After(time.Second):
		t.Fatal("watch channel not closed after cancel")
	}
}

func TestFileSource_Load(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		content  string
		format   string
		want     map[string]string
		wantCode errors.Code
	}{
		{
			name: "nested yaml",
			file: "config.yaml",
			content: `
service_name: shippingservice
usage:
  sample_interval: 2s
  reprobe-after: 4
  cgroup.root: /host/sys/fs/cgroup
`,
			want: map[string]string{
				"SERVICE_NAME":          "shippingservice",
				"USAGE_SAMPLE_INTERVAL": "2s",
				"USAGE_REPROBE_AFTER":   "4",
				"USAGE_CGROUP_ROOT":     "/host/sys/fs/cgroup",
			},
		},
		{
			name:    "json by extension",
			file:    "config.json",
			content: `{"LOG_LEVEL": "debug", "usage": {"sample_interval": "500ms"}, "debug": true}`,
			want: map[string]string{
				"LOG_LEVEL":             "debug",
				"USAGE_SAMPLE_INTERVAL": "500ms",
				"DEBUG":                 "true",
			},
		},
		{
			name:    "lists and nulls",
			file:    "config.yml",
			content: "tags: [a, b]\nempty:\n",
			want:    map[string]string{"TAGS": "a,b", "EMPTY": ""},
		},
		{
			name:     "malformed",
			file:     "config.yaml",
			content:  "usage: [unterminated",
			wantCode: errors.CodeInvalidArgument,
		},
		{
			name:     "unsupported format",
			file:     "config.toml",
			content:  "a = 1",
			format:   "toml",
			wantCode: errors.CodeInvalidArgument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := testingx.WriteFiles(t, map[string]string{tt.file: tt.content})
			src := NewFileSource(filepath.Join(root, tt.file), FileOptions{Format: tt.format})

			got, err := src.Load(context.Background())
			if tt.wantCode != "" {
				testingx.AssertError(t, err, tt.wantCode)
				return
			}
			testingx.AssertNoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Load() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFileSource_MissingFileIsEmpty(t *testing.T) {
	src := NewFileSource(filepath.Join(t.TempDir(), "absent.yaml"), FileOptions{})
	got, err := src.Load(context.Background())
	testingx.AssertNoError(t, err)
	if len(got) != 0 {
		t.Errorf("Load() = %v, want empty", got)
	}
}

func TestFileSource_Watch(t *testing.T) {
	root := testingx.WriteFiles(t, map[string]string{"config.yaml": "log_level: info\n"})
	src := NewFileSource(filepath.Join(root, "config.yaml"), FileOptions{Watch: true, Interval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := src.Watch(ctx)
	testingx.AssertNoError(t, err)

	testingx.WriteFile(t, root, "config.yaml", "log_level: debug\nusage:\n  sample_interval: 1s\n")

	select {
	case got := <-ch:
		if got["LOG_LEVEL"] != "debug" || got["USAGE_SAMPLE_INTERVAL"] != "1s" {
			t.Errorf("watch snapshot = %v", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no snapshot after file change")
	}
}

func TestFileSource_WatchDisabled(t *testing.T) {
	src := NewFileSource(filepath.Join(t.TempDir(), "config.yaml"), FileOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := src.Watch(ctx)
	testingx.AssertNoError(t, err)
	cancel()

	if _, ok := <-ch; ok {
		t.Error("disabled watch should only close")
	}
}

func TestDetectFileFormat(t *testing.T) {
	tests := map[string]string{
		"/etc/usagemon/config.json": "json",
		"/etc/usagemon/config.JSON": "json",
		"/etc/usagemon/config.yaml": "yaml",
		"/etc/usagemon/config.yml":  "yaml",
		"/etc/usagemon/config":      "yaml",
	}
	for path, want := range tests {
		if got := detectFileFormat(path); got != want {
			t.Errorf("detectFileFormat(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestK8sConfigMapSource(t *testing.T) {
	client := fake.NewSimpleClientset(&corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{Name: "usagemon-config", Namespace: "shop"},
		Data:       map[string]string{"USAGE_SAMPLE_INTERVAL": "10s"},
	})

	src, err := NewK8sConfigMapSource("usagemon-config", K8sOptions{Namespace: "shop", Client: client})
	testingx.AssertNoError(t, err)

	got, err := src.Load(context.Background())
	testingx.AssertNoError(t, err)
	if got["USAGE_SAMPLE_INTERVAL"] != "10s" {
		t.Errorf("Load() = %v", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := src.Watch(ctx)
	testingx.AssertNoError(t, err)

	select {
	case initial := <-ch:
		if initial["USAGE_SAMPLE_INTERVAL"] != "10s" {
			t.Errorf("initial snapshot = %v", initial)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no initial snapshot")
	}

	_, err = client.CoreV1().ConfigMaps("shop").Update(context.Background(), &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{Name: "usagemon-config", Namespace: "shop"},
		Data:       map[string]string{"USAGE_SAMPLE_INTERVAL": "30s"},
	}, metav1.UpdateOptions{})
	testingx.AssertNoError(t, err)

	select {
	case updated := <-ch:
		if updated["USAGE_SAMPLE_INTERVAL"] != "30s" {
			t.Errorf("updated snapshot = %v", updated)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no snapshot after ConfigMap update")
	}

	cancel()
	for range ch {
	}
}
