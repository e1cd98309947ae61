// Package runtimex provides tests for runtime lifecycle management.
package runtimex

import (
	"context"
	stderrors "errors"
	"io"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.eggybyte.com/usagemon/core/errors"
	"go.eggybyte.com/usagemon/testingx"
)

// mockService is a mock implementation of the Service interface.
type mockService struct {
	starts   atomic.Int32
	stops    atomic.Int32
	startErr error
	stopErr  error
}

func (m *mockService) Start(ctx context.Context) error {
	m.starts.Add(1)
	return m.startErr
}

func (m *mockService) Stop(ctx context.Context) error {
	m.stops.Add(1)
	return m.stopErr
}

type namedChecker struct {
	name string
	err  error
}

func (c namedChecker) Name() string { return c.name }

func (c namedChecker) Check(ctx context.Context) error { return c.err }

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(body)
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{name: "missing logger", opts: Options{}},
		{name: "metrics without handler", opts: Options{Logger: testingx.NewMockLogger(t), Metrics: &Endpoint{Addr: ":0"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(nil, tt.opts)
			testingx.AssertError(t, err, errors.CodeInvalidArgument)
		})
	}
}

func TestRuntime_Lifecycle(t *testing.T) {
	logger := testingx.NewMockLogger(t)
	svc := &mockService{}
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("process_cpu_usage 1.5\n"))
	})

	rt, err := New([]Service{svc}, Options{
		Logger:         logger,
		Health:         &Endpoint{Addr: "127.0.0.1:0"},
		Metrics:        &Endpoint{Addr: "127.0.0.1:0", Handler: metrics},
		HealthCheckers: []HealthChecker{namedChecker{name: "usage-monitor"}},
	})
	testingx.AssertNoError(t, err)

	ctx := context.Background()
	testingx.AssertNoError(t, rt.Start(ctx))
	testingx.AssertError(t, rt.Start(ctx), errors.CodeInternal)

	if svc.starts.Load() != 1 {
		t.Errorf("service starts = %d, want 1", svc.starts.Load())
	}

	status, body := get(t, "http://"+rt.Addr(HealthServer)+"/health")
	if status != http.StatusOK || !strings.Contains(body, "usage-monitor: ok") {
		t.Errorf("health = %d %q", status, body)
	}

	status, body = get(t, "http://"+rt.Addr(MetricsServer)+"/metrics")
	if status != http.StatusOK || !strings.Contains(body, "process_cpu_usage") {
		t.Errorf("metrics = %d %q", status, body)
	}

	resp, err := http.Post("http://"+rt.Addr(HealthServer)+"/health", "text/plain", nil)
	testingx.AssertNoError(t, err)
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("POST /health = %d, want 405", resp.StatusCode)
	}
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}

	rt.RegisterHealthChecker(namedChecker{name: "broken", err: stderrors.New("down")})
	status, body = get(t, "http://"+rt.Addr(HealthServer)+"/healthz")
	if status != http.StatusServiceUnavailable || !strings.Contains(body, "broken: fail: down") {
		t.Errorf("health after failure = %d %q", status, body)
	}

	testingx.AssertNoError(t, rt.Stop(ctx))
	testingx.AssertNoError(t, rt.Stop(ctx))
	if svc.stops.Load() != 1 {
		t.Errorf("service stops = %d, want 1", svc.stops.Load())
	}
	logger.AssertLogged("INFO", "runtime service started")
	logger.AssertLogged("INFO", "runtime stopped")
}

func TestRuntime_StartFailure(t *testing.T) {
	ok := &mockService{}
	bad := &mockService{startErr: stderrors.New("boom")}

	rt, err := New([]Service{ok, bad}, Options{Logger: testingx.NewMockLogger(t)})
	testingx.AssertNoError(t, err)

	testingx.AssertError(t, rt.Start(context.Background()), errors.CodeInternal)
	if ok.stops.Load() != 1 {
		t.Errorf("started service stops = %d, want 1", ok.stops.Load())
	}
	if rt.Addr(HealthServer) != "" {
		t.Errorf("Addr() = %q after failed start", rt.Addr(HealthServer))
	}
}

func TestRuntime_ListenFailure(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	testingx.AssertNoError(t, err)
	defer busy.Close()

	svc := &mockService{}
	rt, err := New([]Service{svc}, Options{
		Logger: testingx.NewMockLogger(t),
		Health: &Endpoint{Addr: busy.Addr().String()},
	})
	testingx.AssertNoError(t, err)

	testingx.AssertError(t, rt.Start(context.Background()), errors.CodeUnavailable)
	if svc.stops.Load() != 1 {
		t.Errorf("service stops = %d, want 1", svc.stops.Load())
	}
}

func TestRuntime_StopErrors(t *testing.T) {
	a := &mockService{stopErr: stderrors.New("a failed")}
	b := &mockService{stopErr: stderrors.New("b failed")}

	rt, err := New([]Service{a, b}, Options{Logger: testingx.NewMockLogger(t), ShutdownTimeout: time.Second})
	testingx.AssertNoError(t, err)
	testingx.AssertNoError(t, rt.Start(context.Background()))

	err = rt.Stop(context.Background())
	if err == nil {
		t.Fatal("Stop() error = nil, want joined errors")
	}
	for _, want := range []string{"a failed", "b failed"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Stop() error = %v, missing %q", err, want)
		}
	}
}

func TestRun(t *testing.T) {
	logger := testingx.NewMockLogger(t)
	svc := &mockService{}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- Run(ctx, []Service{svc}, Options{
			Logger: logger,
			Health: &Endpoint{Addr: "127.0.0.1:0"},
		})
	}()

	deadline := time.Now().Add(2 * time.Second)
	for svc.starts.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-errCh:
		testingx.AssertNoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancellation")
	}
	if svc.stops.Load() != 1 {
		t.Errorf("service stops = %d, want 1", svc.stops.Load())
	}
}

func TestRun_MissingLogger(t *testing.T) {
	err := Run(context.Background(), nil, Options{})
	testingx.AssertError(t, err, errors.CodeInvalidArgument)
}
