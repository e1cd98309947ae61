// Package internal provides internal implementation details for servicex.
package internal

import (
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/sdk/metric"

	"go.eggybyte.com/usagemon/configx"
	"go.eggybyte.com/usagemon/core/log"
	"go.eggybyte.com/usagemon/logx"
	"go.eggybyte.com/usagemon/usagex"
)

// Config is the environment-bound service configuration. Usage is walked
// by the binder, so monitor keys live at the top level of every source.
type Config struct {
	ServiceVersion  string        `env:"SERVICE_VERSION" default:"0.0.0" yaml:"service_version"`
	LogLevel        string        `env:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn warning error DEBUG INFO WARN WARNING ERROR" yaml:"log_level"`
	LogFormat       string        `env:"LOG_FORMAT" default:"logfmt" validate:"oneof=logfmt json" yaml:"log_format"`
	HealthPort      string        `env:"HEALTH_PORT" default:":8081" yaml:"health_port"`
	MetricsPort     string        `env:"METRICS_PORT" default:":9091" yaml:"metrics_port"`
	OTLPEndpoint    string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT" yaml:"otlp_endpoint"`
	ExportInterval  time.Duration `env:"OTEL_EXPORT_INTERVAL" default:"15s" validate:"min=1s" yaml:"export_interval"`
	ConfigFile      string        `env:"CONFIG_FILE" yaml:"config_file"`
	ConfigMapName   string        `env:"APP_CONFIGMAP_NAME" yaml:"configmap_name"`
	Namespace       string        `env:"POD_NAMESPACE" yaml:"namespace"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" default:"15s" validate:"min=1s" yaml:"shutdown_timeout"`

	Usage usagex.Config `yaml:"usage"`
}

// ServiceConfig holds the injected dependencies of one service run.
type ServiceConfig struct {
	Logger  log.Logger            // default: logx built from LOG_LEVEL/LOG_FORMAT
	Manager configx.Manager       // default: configx.DefaultManager
	Process usagex.ProcessSampler // default: the current process
	Readers []metric.Reader       // extra metric readers
}

// NewLogger builds the service logger from level and format names.
// Unknown levels fall back to info.
func NewLogger(level, format string) log.Logger {
	lvl, err := logx.ParseLevel(level)
	if err != nil {
		lvl = slog.LevelInfo
	}
	f := logx.FormatLogfmt
	if format == string(logx.FormatJSON) {
		f = logx.FormatJSON
	}
	return logx.New(
		logx.WithFormat(f),
		logx.WithLevel(lvl),
		logx.WithColor(false),
	)
}

// normalizeAddr turns a bare port into a listen address.
func normalizeAddr(port string) string {
	if port != "" && !strings.Contains(port, ":") {
		return ":" + port
	}
	return port
}
