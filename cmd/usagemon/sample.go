package main

import (
	"encoding/json"
	"io"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"go.eggybyte.com/usagemon/core/errors"
	"go.eggybyte.com/usagemon/usagex"
)

// sampleRecord is one printed snapshot.
type sampleRecord struct {
	Tick                int       `json:"tick" yaml:"tick"`
	Source              string    `json:"source" yaml:"source"`
	State               string    `json:"state" yaml:"state"`
	ContainerCPUPercent float64   `json:"container_cpu_percent" yaml:"container_cpu_percent"`
	ProcessCPUPercent   float64   `json:"process_cpu_percent" yaml:"process_cpu_percent"`
	ProcessMemoryBytes  uint64    `json:"process_memory_bytes" yaml:"process_memory_bytes"`
	LastUpdated         time.Time `json:"last_updated" yaml:"last_updated"`
}

func newSampleCmd(flags *globalFlags) *cobra.Command {
	var (
		count    int
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Take a few samples of the current process and print them",
		Long: `Run the sampler in the foreground for --count ticks, --interval apart,
and print every snapshot. The first tick is a baseline and always reports a
container CPU of 0.

Example:
  usagemon sample --count 3 --interval 1s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 1 {
				return errors.New(errors.CodeInvalidArgument, "--count must be at least 1")
			}

			ctx := cmd.Context()
			logger := flags.logger()
			cfg, err := flags.monitorConfig(ctx, logger)
			if err != nil {
				return err
			}
			if interval > 0 {
				cfg.SampleInterval = interval
			}

			mon, err := usagex.New(ctx, usagex.Options{Config: cfg, Logger: logger})
			if err != nil {
				return err
			}

			records := make([]sampleRecord, 0, count)
			for i := 1; i <= count; i++ {
				if i > 1 {
					timer := time.NewTimer(mon.Config().SampleInterval)
					select {
					case <-ctx.Done():
						timer.Stop()
						return ctx.Err()
					case <-timer.C:
					}
				}
				snap, err := mon.Tick(ctx)
				if err != nil {
					return err
				}
				records = append(records, newSampleRecord(i, snap))
			}
			return printResult(cmd.OutOrStdout(), flags.jsonOutput, records)
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 3, "Number of ticks")
	cmd.Flags().DurationVarP(&interval, "interval", "i", 0, "Tick interval (default: USAGE_SAMPLE_INTERVAL)")
	return cmd
}

func newSampleRecord(tick int, snap usagex.Snapshot) sampleRecord {
	return sampleRecord{
		Tick:                tick,
		Source:              snap.Source.String(),
		State:               snap.State.String(),
		ContainerCPUPercent: snap.ContainerCPUPercent,
		ProcessCPUPercent:   snap.ProcessCPUPercent,
		ProcessMemoryBytes:  snap.ProcessMemoryBytes,
		LastUpdated:         snap.LastUpdated,
	}
}

// printResult writes v as YAML, or as indented JSON when asJSON is set.
func printResult(w io.Writer, asJSON bool, v any) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
