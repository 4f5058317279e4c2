package benchmarks

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/zeu5/crm/grid"
	"github.com/zeu5/crm/policies"
	"gopkg.in/yaml.v3"
)

// Config of a benchmark invocation. Values come from the defaults, then the
// YAML file given with --config, then explicitly set flags.
type Config struct {
	Episodes    int    `yaml:"episodes"`
	Runs        int    `yaml:"runs"`
	ReportEvery int    `yaml:"report_every"`
	Verbose     bool   `yaml:"verbose"`
	Save        string `yaml:"save"`
	Traces      bool   `yaml:"traces"`
	Parallel    int    `yaml:"parallel"`
	// moving average window of the curve plots
	Window int `yaml:"window"`

	Grid    grid.Config     `yaml:"grid"`
	Learner policies.Config `yaml:"learner"`
	// overrides the bundled machine of bl and crm, name or file path
	Machine string `yaml:"machine"`

	ResultsDB string `yaml:"results_db"`
	Tables    string `yaml:"tables"`
	Redis     string `yaml:"redis"`
	Serve     string `yaml:"serve"`

	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`

	CPUProfile string `yaml:"cpuprofile"`
	MemProfile string `yaml:"memprofile"`
}

func DefaultConfig() *Config {
	return &Config{
		Episodes:    1000,
		Runs:        1,
		ReportEvery: 100,
		Save:        "results",
		Parallel:    1,
		Window:      50,
		Grid:        grid.Config{Size: 5},
		Learner:     policies.DefaultConfig(),
		LogLevel:    "info",
	}
}

func (c *Config) Validate() error {
	if c.Episodes < 1 || c.Runs < 1 {
		return fmt.Errorf("episodes and runs must be positive, got %d and %d", c.Episodes, c.Runs)
	}
	if c.Tables != "" && c.Redis != "" {
		return fmt.Errorf("--tables and --redis are exclusive")
	}
	return c.Learner.Validate()
}

func bindFlags(flags *pflag.FlagSet, c *Config) {
	flags.IntVarP(&c.Episodes, "episodes", "e", c.Episodes, "Number of training episodes per run")
	flags.IntVar(&c.Runs, "runs", c.Runs, "Number of experiment runs")
	flags.IntVar(&c.ReportEvery, "report-every", c.ReportEvery, "Episodes between progress reports")
	flags.BoolVarP(&c.Verbose, "verbose", "v", c.Verbose, "Log progress reports and the evaluation episode")
	flags.StringVarP(&c.Save, "save", "s", c.Save, "Save the result data in the specified folder, empty to skip")
	flags.BoolVar(&c.Traces, "traces", c.Traces, "Record every training episode")
	flags.IntVar(&c.Parallel, "parallel", c.Parallel, "Number of runs trained concurrently")
	flags.IntVar(&c.Window, "window", c.Window, "Moving average window of the plots")

	flags.IntVar(&c.Grid.Size, "size", c.Grid.Size, "Width and height of the door-key room")
	flags.IntVar(&c.Grid.MaxSteps, "horizon", c.Grid.MaxSteps, "Maximum steps per episode, 0 for 10*size^2")
	flags.BoolVar(&c.Grid.Randomize, "randomize", c.Grid.Randomize, "Place the key and door at random on every reset")

	flags.Float64Var(&c.Learner.Alpha, "alpha", c.Learner.Alpha, "Learning rate")
	flags.Float64Var(&c.Learner.Gamma, "gamma", c.Learner.Gamma, "Discount factor")
	flags.Float64Var(&c.Learner.Epsilon, "epsilon", c.Learner.Epsilon, "Initial exploration rate")
	flags.Float64Var(&c.Learner.EpsilonDecay, "epsilon-decay", c.Learner.EpsilonDecay, "Exploration decay per episode")
	flags.Float64Var(&c.Learner.MinEpsilon, "min-epsilon", c.Learner.MinEpsilon, "Exploration floor")
	flags.Int64Var(&c.Learner.Seed, "seed", c.Learner.Seed, "Random seed, 0 seeds from the clock")
	flags.IntVar(&c.Learner.Hidden, "hidden", c.Learner.Hidden, "Hidden units of the network learner")
	flags.StringVar(&c.Machine, "machine", c.Machine, "Reward machine name or transition table file")

	flags.StringVar(&c.ResultsDB, "results-db", c.ResultsDB, "SQLite file storing finished runs")
	flags.StringVar(&c.Tables, "tables", c.Tables, "Directory storing the final value tables")
	flags.StringVar(&c.Redis, "redis", c.Redis, "Redis address storing the final value tables")
	flags.StringVar(&c.Serve, "serve", c.Serve, "Address of the status server, empty to disable")

	flags.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level")
	flags.BoolVar(&c.LogJSON, "log-json", c.LogJSON, "Log as JSON")
	flags.StringVar(&c.CPUProfile, "cpuprofile", c.CPUProfile, "Write a CPU profile to this file in the save folder")
	flags.StringVar(&c.MemProfile, "memprofile", c.MemProfile, "Write a heap profile to this file in the save folder")
}

// applyFile overlays the YAML file on the config and re-applies the flags
// set on the command line
func applyFile(cmd *cobra.Command, c *Config, file string) error {
	if file == "" {
		return nil
	}
	bs, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}

	changed := make(map[string]string)
	cmd.Flags().Visit(func(f *pflag.Flag) {
		changed[f.Name] = f.Value.String()
	})
	if err := yaml.Unmarshal(bs, c); err != nil {
		return fmt.Errorf("parsing config %s: %w", file, err)
	}
	for name, val := range changed {
		if err := cmd.Flags().Set(name, val); err != nil {
			return err
		}
	}
	return nil
}
