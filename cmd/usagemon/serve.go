package main

import (
	"os"

	"github.com/spf13/cobra"

	"go.eggybyte.com/usagemon/servicex"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the monitor with health and metrics endpoints",
		Long: `Run the usage monitor until SIGINT or SIGTERM.

Configuration comes from the environment, CONFIG_FILE and the ConfigMap
named by APP_CONFIGMAP_NAME. Health is served on HEALTH_PORT and Prometheus
metrics on METRICS_PORT.

Example:
  SERVICE_NAME=shippingservice usagemon serve`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// The flag overrides reach servicex through its environment binding.
			if flags.cgroupRoot != "" {
				if err := os.Setenv("USAGE_CGROUP_ROOT", flags.cgroupRoot); err != nil {
					return err
				}
			}
			if flags.procRoot != "" {
				if err := os.Setenv("USAGE_PROC_ROOT", flags.procRoot); err != nil {
					return err
				}
			}
			if flags.verbose {
				if err := os.Setenv("LOG_LEVEL", "debug"); err != nil {
					return err
				}
			}
			return servicex.Run(cmd.Context())
		},
	}
}
