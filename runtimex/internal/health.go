// Package internal contains the runtime implementation.
package internal

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.eggybyte.com/usagemon/httpx"
)

// HealthChecker defines the interface for health checks.
// Implementations should perform quick checks and honor context deadlines.
type HealthChecker interface {
	// Name returns the name of the health check.
	Name() string
	// Check performs the health check and returns an error if unhealthy.
	Check(ctx context.Context) error
}

// Detailer is implemented by checkers that add a status line to the
// health response even when healthy.
type Detailer interface {
	Detail() string
}

// CheckResult is the outcome of one checker.
type CheckResult struct {
	Name   string
	Err    error
	Detail string
}

// HealthRegistry holds the checkers of one runtime.
type HealthRegistry struct {
	mu       sync.RWMutex
	checkers []HealthChecker
	timeout  time.Duration
}

// NewHealthRegistry creates a registry that bounds each probe by timeout.
func NewHealthRegistry(timeout time.Duration) *HealthRegistry {
	return &HealthRegistry{timeout: timeout}
}

// Register adds a checker.
func (h *HealthRegistry) Register(checker HealthChecker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers = append(h.checkers, checker)
}

// Check runs every checker in registration order.
func (h *HealthRegistry) Check(ctx context.Context) []CheckResult {
	h.mu.RLock()
	checkers := append([]HealthChecker(nil), h.checkers...)
	h.mu.RUnlock()

	results := make([]CheckResult, 0, len(checkers))
	for _, c := range checkers {
		r := CheckResult{Name: c.Name(), Err: c.Check(ctx)}
		if d, ok := c.(Detailer); ok {
			r.Detail = d.Detail()
		}
		results = append(results, r)
	}
	return results
}

// healthReport is the JSON form of a health response.
type healthReport struct {
	Status string        `json:"status"`
	Checks []checkReport `json:"checks"`
}

type checkReport struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ServeHTTP answers 200 when every checker passes and 503 otherwise. The
// plain body has an overall line followed by one line per checker;
// ?format=json returns the same as a healthReport.
func (h *HealthRegistry) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	results := h.Check(ctx)

	report := healthReport{Status: "ok", Checks: make([]checkReport, 0, len(results))}
	status := http.StatusOK
	for _, res := range results {
		c := checkReport{Name: res.Name, Status: "ok", Detail: res.Detail}
		if res.Err != nil {
			status = http.StatusServiceUnavailable
			report.Status = "unavailable"
			c.Status = "fail"
			c.Error = res.Err.Error()
		}
		report.Checks = append(report.Checks, c)
	}

	if r.URL.Query().Get("format") == "json" {
		_ = httpx.WriteJSON(w, status, report)
		return
	}

	var b strings.Builder
	if status == http.StatusOK {
		b.WriteString("OK\n")
	} else {
		b.WriteString("UNAVAILABLE\n")
	}
	for _, c := range report.Checks {
		state := c.Status
		if c.Error != "" {
			state += ": " + c.Error
		}
		if c.Detail != "" {
			state += " (" + c.Detail + ")"
		}
		fmt.Fprintf(&b, "%s: %s\n", c.Name, state)
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(b.String()))
}
