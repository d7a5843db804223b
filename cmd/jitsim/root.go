package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sarchlab/jitsim/config"
)

type globalFlags struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:          "jitsim",
		Short:        "Assembler and instruction-set simulator for ARM, ARM64 and MIPS",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", "", "simulator configuration JSON file")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(
		newRunCmd(g),
		newDisasmCmd(),
		newFeaturesCmd(g),
		newDemoCmd(g),
		newBenchCmd(g),
	)
	return root
}

// loadConfig reads the configuration file if one was given and applies
// JITSIM_* environment overrides.
func (g *globalFlags) loadConfig() (*config.Config, error) {
	c := config.Default()
	if g.configPath != "" {
		var err error
		if c, err = config.Load(g.configPath); err != nil {
			return nil, err
		}
	}
	if err := c.FromEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return c, nil
}

func (g *globalFlags) logger(cmd *cobra.Command, c *config.Config) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(g.logLevel)
	if err != nil {
		return nil, err
	}
	l := logrus.New()
	l.SetOutput(cmd.ErrOrStderr())
	if c.Trace && level < logrus.DebugLevel {
		level = logrus.DebugLevel
	}
	l.SetLevel(level)
	return l, nil
}
