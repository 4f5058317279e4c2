package benchmarks

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type cli struct {
	config     *Config
	configFile string
	logger     *logrus.Logger
}

func GetRootCommand() *cobra.Command {
	rootCommand, _ := newRootCommand()
	return rootCommand
}

func newRootCommand() (*cobra.Command, *cli) {
	c := &cli{
		config: DefaultConfig(),
		logger: logrus.New(),
	}
	rootCommand := &cobra.Command{
		Use:               "crm",
		Short:             "Counterfactual reward machine experiments on the door-key task",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.prepare,
	}
	bindFlags(rootCommand.PersistentFlags(), c.config)
	rootCommand.PersistentFlags().StringVar(&c.configFile, "config", "", "YAML experiment configuration")
	// adding the subcommands here
	rootCommand.AddCommand(DoorKeyCommand(c))
	rootCommand.AddCommand(CompareCommand(c))
	rootCommand.AddCommand(MachineCommand(c))
	return rootCommand, c
}

func (c *cli) prepare(cmd *cobra.Command, _ []string) error {
	if err := applyFile(cmd, c.config, c.configFile); err != nil {
		return err
	}
	level, err := logrus.ParseLevel(c.config.LogLevel)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	c.logger.SetLevel(level)
	c.logger.SetOutput(cmd.ErrOrStderr())
	if c.config.LogJSON {
		c.logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return c.config.Validate()
}
