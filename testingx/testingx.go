// Package testingx provides testing utilities for usagemon packages.
//
// Overview:
//   - Responsibility: Testing helpers, mocks, and filesystem fixtures
//   - Key Types: MockLogger, fixture helpers for cgroup and proc trees
//   - Concurrency Model: MockLogger is safe for concurrent use
//   - Error Semantics: Test failures via testing.TB
//   - Performance Notes: Optimized for test execution
//
// Usage:
//
//	logger := testingx.NewMockLogger(t)
//	root := testingx.WriteFiles(t, map[string]string{"cpu.stat": "usage_usec 100\n"})
package testingx

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"go.eggybyte.com/usagemon/core/errors"
	"go.eggybyte.com/usagemon/core/log"
)

// MockLogger is a mock logger for testing.
type MockLogger struct {
	t       testing.TB
	mu      sync.Mutex
	entries []LogEntry
	fields  []any
	parent  *MockLogger
}

// LogEntry represents a single log entry.
type LogEntry struct {
	Level   string
	Message string
	Fields  []any
	Error   error
}

// NewMockLogger creates a new mock logger.
func NewMockLogger(t testing.TB) *MockLogger {
	return &MockLogger{
		t:       t,
		entries: make([]LogEntry, 0),
	}
}

// With returns a child logger whose entries are recorded on the root logger.
func (m *MockLogger) With(kv ...any) log.Logger {
	return &MockLogger{
		t:      m.t,
		fields: append(append([]any{}, m.fields...), kv...),
		parent: m.root(),
	}
}

// Debug logs a debug message.
func (m *MockLogger) Debug(msg string, kv ...any) {
	m.log("DEBUG", msg, nil, kv)
}

// Info logs an info message.
func (m *MockLogger) Info(msg string, kv ...any) {
	m.log("INFO", msg, nil, kv)
}

// Warn logs a warning message.
func (m *MockLogger) Warn(msg string, kv ...any) {
	m.log("WARN", msg, nil, kv)
}

// Error logs an error message.
func (m *MockLogger) Error(err error, msg string, kv ...any) {
	m.log("ERROR", msg, err, kv)
}

func (m *MockLogger) root() *MockLogger {
	if m.parent != nil {
		return m.parent
	}
	return m
}

func (m *MockLogger) log(level, msg string, err error, kv []any) {
	r := m.root()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, LogEntry{
		Level:   level,
		Message: msg,
		Fields:  append(append([]any{}, m.fields...), kv...),
		Error:   err,
	})
}

// Entries returns all log entries.
func (m *MockLogger) Entries() []LogEntry {
	r := m.root()
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := make([]LogEntry, len(r.entries))
	copy(entries, r.entries)
	return entries
}

// Count returns how many entries were logged with the given level and message.
func (m *MockLogger) Count(level, msg string) int {
	n := 0
	for _, entry := range m.Entries() {
		if entry.Level == level && entry.Message == msg {
			n++
		}
	}
	return n
}

// AssertLogged asserts that a message was logged.
func (m *MockLogger) AssertLogged(level, msg string) {
	m.t.Helper()
	if m.Count(level, msg) == 0 {
		m.t.Errorf("Expected log message not found: level=%s msg=%q", level, msg)
	}
}

// AssertNotLogged asserts that a message was never logged.
func (m *MockLogger) AssertNotLogged(level, msg string) {
	m.t.Helper()
	if n := m.Count(level, msg); n != 0 {
		m.t.Errorf("Unexpected log message: level=%s msg=%q (%d times)", level, msg, n)
	}
}

// Clear clears all log entries.
func (m *MockLogger) Clear() {
	r := m.root()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
}

// AssertError asserts that an error has the expected code.
func AssertError(t testing.TB, err error, expectedCode errors.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("Expected error with code %s, got nil", expectedCode)
	}

	if code := errors.CodeOf(err); code != expectedCode {
		t.Errorf("Expected error code %s, got %s (%v)", expectedCode, code, err)
	}
}

// AssertNoError asserts that no error occurred.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
}

// WriteFiles creates a temporary directory tree holding files, keyed by
// slash-separated relative path, and returns its root.
func WriteFiles(t testing.TB, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		WriteFile(t, root, rel, content)
	}
	return root
}

// WriteFile writes content to root/rel, creating parent directories.
func WriteFile(t testing.TB, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// RemoveFile deletes root/rel, failing the test on any error other than absence.
func RemoveFile(t testing.TB, root, rel string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		t.Fatalf("remove %s: %v", path, err)
	}
}
