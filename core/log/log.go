// Package log provides a minimal logging interface compatible with slog concepts.
//
// Overview:
//   - Responsibility: Define a stable logging interface shared by every package
//   - Key Types: Logger interface with structured key-value logging
//   - Concurrency Model: Logger implementations must be safe for concurrent use
//   - Error Semantics: Error method accepts error as first parameter for structured logging
//   - Performance Notes: Interface designed for zero-allocation key-value pairs
//
// Usage:
//
//	logger.Info("sample stored", log.Str("source", "cgroup_v2"), log.Float("container_cpu", 12.5))
package log

import "time"

// Logger defines a structured logging interface compatible with slog concepts.
// Implementations must be safe for concurrent use.
type Logger interface {
	// With returns a new Logger with the given key-value pairs attached.
	With(kv ...any) Logger

	// Debug logs a debug message with optional key-value pairs.
	Debug(msg string, kv ...any)

	// Info logs an informational message with optional key-value pairs.
	Info(msg string, kv ...any)

	// Warn logs a warning message with optional key-value pairs.
	Warn(msg string, kv ...any)

	// Error logs an error message with the error and optional key-value pairs.
	// The error should be the first parameter for structured error handling.
	Error(err error, msg string, kv ...any)
}

// Str creates a string key-value pair for structured logging.
func Str(k, v string) any {
	return []any{k, v}
}

// Int creates an integer key-value pair for structured logging.
func Int(k string, v int) any {
	return []any{k, v}
}

// Uint64 creates an unsigned integer key-value pair for structured logging.
func Uint64(k string, v uint64) any {
	return []any{k, v}
}

// Float creates a float key-value pair for structured logging.
func Float(k string, v float64) any {
	return []any{k, v}
}

// Bool creates a boolean key-value pair for structured logging.
func Bool(k string, v bool) any {
	return []any{k, v}
}

// Dur creates a duration key-value pair for structured logging.
func Dur(k string, v time.Duration) any {
	return []any{k, v}
}

// Nop returns a Logger that discards everything.
func Nop() Logger {
	return nop{}
}

type nop struct{}

func (n nop) With(kv ...any) Logger                { return n }
func (nop) Debug(msg string, kv ...any)            {}
func (nop) Info(msg string, kv ...any)             {}
func (nop) Warn(msg string, kv ...any)             {}
func (nop) Error(err error, msg string, kv ...any) {}
