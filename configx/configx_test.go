// Package configx provides tests for configuration management.
package configx

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"go.eggybyte.com/usagemon/core/errors"
	"go.eggybyte.com/usagemon/testingx"
)

type monitorSettings struct {
	ServiceName  string        `env:"SERVICE_NAME" default:"shippingservice" validate:"required"`
	Interval     time.Duration `env:"USAGE_SAMPLE_INTERVAL" default:"5s" validate:"min=100ms"`
	ReprobeAfter int           `env:"USAGE_REPROBE_AFTER" default:"3" validate:"min=1"`
}

func TestNewManager_Validation(t *testing.T) {
	_, err := NewManager(context.Background(), Options{Sources: []Source{NewEnvSource(EnvOptions{})}})
	testingx.AssertError(t, err, errors.CodeInvalidArgument)

	_, err = NewManager(context.Background(), Options{Logger: testingx.NewMockLogger(t)})
	testingx.AssertError(t, err, errors.CodeInvalidArgument)
}

func TestManager_LayeredBind(t *testing.T) {
	t.Setenv("SERVICE_NAME", "checkout")
	t.Setenv("USAGE_SAMPLE_INTERVAL", "5s")

	root := testingx.WriteFiles(t, map[string]string{
		"config.yaml": "usage:\n  sample_interval: 2s\n",
	})
	client := fake.NewSimpleClientset(&corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{Name: "usagemon-config", Namespace: "shop"},
		Data:       map[string]string{"USAGE_REPROBE_AFTER": "6"},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := testingx.NewMockLogger(t)
	sources, err := BuildSources(SourcesOptions{
		ConfigFile:    filepath.Join(root, "config.yaml"),
		ConfigMapName: "usagemon-config",
		Namespace:     "shop",
		Client:        client,
		Logger:        logger,
	})
	testingx.AssertNoError(t, err)
	if len(sources) != 3 {
		t.Fatalf("BuildSources() = %d sources, want 3", len(sources))
	}

	mgr, err := NewManager(ctx, Options{Logger: logger, Sources: sources})
	testingx.AssertNoError(t, err)

	var cfg monitorSettings
	testingx.AssertNoError(t, mgr.Bind(&cfg))
	testingx.AssertNoError(t, ValidateStruct(NewValidator(), cfg))

	if cfg.ServiceName != "checkout" {
		t.Errorf("ServiceName = %q, want checkout from env", cfg.ServiceName)
	}
	if cfg.Interval != 2*time.Second {
		t.Errorf("Interval = %v, want 2s from file", cfg.Interval)
	}
	if cfg.ReprobeAfter != 6 {
		t.Errorf("ReprobeAfter = %d, want 6 from ConfigMap", cfg.ReprobeAfter)
	}
	logger.AssertLogged("INFO", "configuration loaded")
}

func TestManager_ConfigMapHotUpdate(t *testing.T) {
	client := fake.NewSimpleClientset(&corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{Name: "usagemon-config", Namespace: "shop"},
		Data:       map[string]string{"USAGE_SAMPLE_INTERVAL": "1s"},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cm, err := NewK8sConfigMapSource("usagemon-config", K8sOptions{Namespace: "shop", Client: client})
	testingx.AssertNoError(t, err)
	mgr, err := NewManager(ctx, Options{
		Logger:   testingx.NewMockLogger(t),
		Sources:  []Source{cm},
		Debounce: 10 * time.Millisecond,
	})
	testingx.AssertNoError(t, err)

	updates := make(chan map[string]string, 4)
	defer mgr.OnUpdate(func(s map[string]string) { updates <- s })()

	_, err = client.CoreV1().ConfigMaps("shop").Update(ctx, &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{Name: "usagemon-config", Namespace: "shop"},
		Data:       map[string]string{"USAGE_SAMPLE_INTERVAL": "750ms"},
	}, metav1.UpdateOptions{})
	testingx.AssertNoError(t, err)

	select {
	case snap := <-updates:
		if snap["USAGE_SAMPLE_INTERVAL"] != "750ms" {
			t.Errorf("update snapshot = %v", snap)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no update after ConfigMap change")
	}
	if v, _ := mgr.Value("USAGE_SAMPLE_INTERVAL"); v != "750ms" {
		t.Errorf("Value() = %q, want 750ms", v)
	}
}

func TestBuildSources_EnvOnly(t *testing.T) {
	sources, err := BuildSources(SourcesOptions{})
	testingx.AssertNoError(t, err)
	if len(sources) != 1 {
		t.Errorf("BuildSources() = %d sources, want 1", len(sources))
	}
}

func TestDefaultManager(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("APP_CONFIGMAP_NAME", "")
	t.Setenv("USAGE_REPROBE_AFTER", "9")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mgr, err := DefaultManager(ctx, testingx.NewMockLogger(t))
	testingx.AssertNoError(t, err)

	var cfg monitorSettings
	testingx.AssertNoError(t, mgr.Bind(&cfg))
	if cfg.ReprobeAfter != 9 {
		t.Errorf("ReprobeAfter = %d, want 9", cfg.ReprobeAfter)
	}

	_, err = DefaultManager(ctx, nil)
	testingx.AssertError(t, err, errors.CodeInvalidArgument)
}

func TestBind(t *testing.T) {
	var cfg monitorSettings
	testingx.AssertNoError(t, Bind(map[string]string{"USAGE_SAMPLE_INTERVAL": "1m"}, &cfg))
	if cfg.Interval != time.Minute || cfg.ServiceName != "shippingservice" {
		t.Errorf("Bind() = %+v", cfg)
	}
}

func TestValidateStruct(t *testing.T) {
	tests := []struct {
		name    string
		cfg     monitorSettings
		wantErr bool
	}{
		{name: "valid", cfg: monitorSettings{ServiceName: "svc", Interval: time.Second, ReprobeAfter: 1}},
		{name: "interval too short", cfg: monitorSettings{ServiceName: "svc", Interval: time.Millisecond, ReprobeAfter: 1}, wantErr: true},
		{name: "reprobe zero", cfg: monitorSettings{ServiceName: "svc", Interval: time.Second}, wantErr: true},
		{name: "missing name", cfg: monitorSettings{Interval: time.Second, ReprobeAfter: 1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(nil, tt.cfg)
			if !tt.wantErr {
				testingx.AssertNoError(t, err)
				return
			}
			testingx.AssertError(t, err, errors.CodeInvalidArgument)
		})
	}
}

func TestNewValidator_WithOptions(t *testing.T) {
	called := false
	if NewValidator(func(*validator.Validate) { called = true }) == nil {
		t.Fatal("NewValidator() returned nil")
	}
	if !called {
		t.Error("validator option not applied")
	}
}
