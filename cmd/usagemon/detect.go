package main

import (
	"github.com/spf13/cobra"

	"go.eggybyte.com/usagemon/usagex"
)

// detectResult is the printed outcome of a probe.
type detectResult struct {
	Source            string `json:"source" yaml:"source"`
	CalculationMethod string `json:"calculation_method" yaml:"calculation_method"`
	ContainerScoped   bool   `json:"container_scoped" yaml:"container_scoped"`
	CgroupRoot        string `json:"cgroup_root" yaml:"cgroup_root"`
	ProcRoot          string `json:"proc_root" yaml:"proc_root"`
}

func newDetectCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "detect",
		Short: "Print the CPU accounting source",
		Long: `Probe cgroup v2, cgroup v1 and /proc/stat in that order and print the
first usable source. "unavailable" means no accounting interface was found.

Example:
  usagemon detect --cgroup-root /sys/fs/cgroup`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.monitorConfig(cmd.Context(), flags.logger())
			if err != nil {
				return err
			}

			kind := usagex.Detect(cfg)
			return printResult(cmd.OutOrStdout(), flags.jsonOutput, detectResult{
				Source:            kind.String(),
				CalculationMethod: kind.CalculationMethod(),
				ContainerScoped:   kind.IsCgroup(),
				CgroupRoot:        cfg.CgroupRoot,
				ProcRoot:          cfg.ProcRoot,
			})
		},
	}
}
