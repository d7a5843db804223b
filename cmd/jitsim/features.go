package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sarchlab/jitsim/cpu"
)

func newFeaturesCmd(g *globalFlags) *cobra.Command {
	var cpuinfo string
	cmd := &cobra.Command{
		Use:   "features",
		Short: "Print the probed host features and the features code generation targets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			src := cpu.ProcCPUInfo
			if cpuinfo != "" {
				text, err := os.ReadFile(cpuinfo)
				if err != nil {
					return fmt.Errorf("failed to read cpuinfo: %w", err)
				}
				src = cpu.Text(text)
			}
			if err := cpu.Init(src); err != nil {
				return err
			}
			defer cpu.Cleanup()

			c, err := g.loadConfig()
			if err != nil {
				return err
			}
			host := cpu.Host()
			target := c.Features(cpu.Target(host, true))
			fmt.Fprintf(cmd.OutOrStdout(), "host:   %s\n", host)
			fmt.Fprintf(cmd.OutOrStdout(), "target: %s\n", target)
			return nil
		},
	}
	cmd.Flags().StringVar(&cpuinfo, "cpuinfo", "", "read cpu information from this file instead of /proc/cpuinfo")
	return cmd
}
