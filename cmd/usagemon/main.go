// Package main provides the usagemon CLI entry point.
//
// Overview:
//   - Responsibility: Run the monitor service, probe accounting sources, take one-shot samples
//   - Key Types: Cobra command tree built by newRootCmd
//   - Concurrency Model: Single-threaded CLI execution; serve blocks until a signal
//   - Error Semantics: Exit code 1 with the error printed to stderr
//   - Performance Notes: detect and sample never bind network ports
//
// Usage:
//
//	usagemon serve
//	usagemon detect --json
//	usagemon sample --count 3 --interval 1s
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"go.eggybyte.com/usagemon/configx"
	"go.eggybyte.com/usagemon/core/log"
	"go.eggybyte.com/usagemon/logx"
	"go.eggybyte.com/usagemon/usagex"
)

// Version is set at link time.
var Version = "dev"

// globalFlags are shared by every subcommand.
type globalFlags struct {
	verbose    bool
	jsonOutput bool
	cgroupRoot string
	procRoot   string
}

// newRootCmd builds the command tree.
func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	rootCmd := &cobra.Command{
		Use:   "usagemon",
		Short: "Container and process resource usage monitor",
		Long: `usagemon samples container CPU (cgroup v2, cgroup v1 or /proc/stat),
process CPU and process memory, and exports them as OpenTelemetry gauges.

Commands:
- serve:  run the monitor with health and Prometheus endpoints
- detect: print the CPU accounting source this host provides
- sample: take a few samples and print them`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "V", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&flags.jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVar(&flags.cgroupRoot, "cgroup-root", "", "Override USAGE_CGROUP_ROOT")
	rootCmd.PersistentFlags().StringVar(&flags.procRoot, "proc-root", "", "Override USAGE_PROC_ROOT")

	rootCmd.AddCommand(newServeCmd(flags), newDetectCmd(flags), newSampleCmd(flags))
	return rootCmd
}

// logger writes to stderr so command output stays parseable.
func (f *globalFlags) logger() log.Logger {
	level := slog.LevelWarn
	if f.verbose {
		level = slog.LevelDebug
	}
	return logx.New(logx.WithLevel(level), logx.WithWriter(os.Stderr))
}

// monitorConfig binds usagex.Config from the environment and applies flag
// overrides.
func (f *globalFlags) monitorConfig(ctx context.Context, logger log.Logger) (usagex.Config, error) {
	var cfg usagex.Config

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	mgr, err := configx.NewManager(watchCtx, configx.Options{
		Logger:  logger,
		Sources: []configx.Source{configx.NewEnvSource(configx.EnvOptions{})},
	})
	if err != nil {
		return cfg, err
	}
	if err := mgr.Bind(&cfg); err != nil {
		return cfg, err
	}

	if f.cgroupRoot != "" {
		cfg.CgroupRoot = f.cgroupRoot
	}
	if f.procRoot != "" {
		cfg.ProcRoot = f.procRoot
	}
	return cfg, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
