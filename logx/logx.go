// Package logx provides a structured logging implementation based on slog.
//
// Overview:
//   - Responsibility: Unified logging with logfmt/JSON output, field sorting, and colorization
//   - Key Types: Logger implementation of core/log.Logger, Options for configuration
//   - Concurrency Model: All loggers are safe for concurrent use
//   - Error Semantics: No errors returned; write failures are dropped
//   - Performance Notes: Disabled levels return before any attribute conversion
//
// Usage:
//
//	logger := logx.New(logx.WithFormat(logx.FormatJSON), logx.WithLevel(slog.LevelDebug))
//	logger.Info("monitor started", log.Str("source", "cgroup_v2"))
package logx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.eggybyte.com/usagemon/core/log"
	"go.eggybyte.com/usagemon/logx/internal"
)

// Format specifies the output format for logs.
type Format string

const (
	// FormatLogfmt outputs logs in logfmt format (key=value pairs).
	FormatLogfmt Format = "logfmt"
	// FormatJSON outputs one JSON object per line with time/severity/message keys.
	FormatJSON Format = "json"
)

// Options configures the logger behavior.
type Options struct {
	Format           Format     // Output format: logfmt or json
	Level            slog.Level // Minimum log level
	Color            bool       // Enable colorization for level field only (logfmt)
	Writer           io.Writer  // Output writer (default: os.Stderr)
	DisableTimestamp bool       // Disable timestamp in output
}

// Option configures logger behavior.
type Option func(*Options)

// WithFormat sets the output format.
func WithFormat(format Format) Option {
	return func(o *Options) {
		o.Format = format
	}
}

// WithLevel sets the minimum log level.
func WithLevel(level slog.Level) Option {
	return func(o *Options) {
		o.Level = level
	}
}

// WithColor enables colorization for the level field only.
func WithColor(enabled bool) Option {
	return func(o *Options) {
		o.Color = enabled
	}
}

// WithWriter sets the output writer.
func WithWriter(w io.Writer) Option {
	return func(o *Options) {
		o.Writer = w
	}
}

// WithTimestamp enables or disables the time field.
func WithTimestamp(enabled bool) Option {
	return func(o *Options) {
		o.DisableTimestamp = !enabled
	}
}

// Logger implements the core/log.Logger interface on top of a slog.Handler.
type Logger struct {
	handler slog.Handler
}

// New creates a new Logger with the given options.
func New(opts ...Option) *Logger {
	options := Options{
		Format:           FormatLogfmt,
		Level:            slog.LevelInfo,
		Writer:           os.Stderr,
		DisableTimestamp: true, // Container already adds timestamp
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.Writer == nil {
		options.Writer = os.Stderr
	}

	var handler slog.Handler
	switch options.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(options.Writer, &slog.HandlerOptions{
			Level: options.Level,
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				if options.DisableTimestamp && len(groups) == 0 && a.Key == slog.TimeKey {
					return slog.Attr{}
				}
				return internal.JSONReplaceAttr(groups, a)
			},
		})
	default:
		handler = internal.NewHandler(internal.Options{
			Level:            options.Level,
			Color:            options.Color,
			DisableTimestamp: options.DisableTimestamp,
		}, options.Writer)
	}

	return &Logger{handler: handler}
}

// ParseLevel converts a level name (debug, info, warn, error) to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Slog returns a *slog.Logger sharing this logger's handler and attributes.
func (l *Logger) Slog() *slog.Logger {
	return slog.New(l.handler)
}

// With returns a new Logger with the given key-value pairs attached.
func (l *Logger) With(kv ...any) log.Logger {
	return &Logger{handler: l.handler.WithAttrs(internal.KVToAttrs(kv))}
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, kv ...any) {
	l.log(slog.LevelDebug, msg, nil, kv)
}

// Info logs an informational message.
func (l *Logger) Info(msg string, kv ...any) {
	l.log(slog.LevelInfo, msg, nil, kv)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, kv ...any) {
	l.log(slog.LevelWarn, msg, nil, kv)
}

// Error logs an error message.
func (l *Logger) Error(err error, msg string, kv ...any) {
	l.log(slog.LevelError, msg, err, kv)
}

func (l *Logger) log(level slog.Level, msg string, err error, kv []any) {
	ctx := context.Background()
	if !l.handler.Enabled(ctx, level) {
		return
	}

	r := slog.NewRecord(time.Now(), level, msg, 0)
	if err != nil {
		r.AddAttrs(slog.String("error", err.Error()))
	}
	r.AddAttrs(internal.KVToAttrs(kv)...)
	_ = l.handler.Handle(ctx, r)
}
