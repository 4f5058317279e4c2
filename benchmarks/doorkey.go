package benchmarks

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/zeu5/crm/grid"
	"github.com/zeu5/crm/machines"
	"github.com/zeu5/crm/monitor"
	"github.com/zeu5/crm/policies"
	"github.com/zeu5/crm/rm"
	"github.com/zeu5/crm/store"
	"github.com/zeu5/crm/types"
	"github.com/zeu5/crm/util"
	"golang.org/x/exp/slices"
)

// Algorithms lists the learners the door-key commands can train
//
//	q     Q-learning on the environment reward, no machine
//	bl    Q-learning on the machine reward
//	crm   counterfactual Q-learning on the machine reward
//	bl2   bl with the shaped machine
//	crm2  crm with the shaped machine
//	net   counterfactual learning with a network value function
var Algorithms = []string{"q", "bl", "crm", "bl2", "crm2", "net"}

func (c *cli) machineFor(alg string) string {
	switch alg {
	case "q":
		return ""
	case "bl2", "crm2":
		return machines.DoorKeyShaped
	}
	if c.config.Machine != "" {
		return c.config.Machine
	}
	return machines.DoorKey
}

func experimentName(alg string, size int) string {
	return fmt.Sprintf("%s_%dx%d", alg, size, size)
}

// setup builds the run factory of an algorithm
func (c *cli) setup(alg string, tables *tableRegistry) (types.SetupFunc, error) {
	if !slices.Contains(Algorithms, alg) {
		return nil, fmt.Errorf("unknown algorithm %q, expected one of %v", alg, Algorithms)
	}
	machineName := c.machineFor(alg)
	if machineName != "" {
		// fail before training when the machine does not load
		if _, err := machines.Resolve(machineName); err != nil {
			return nil, err
		}
	}
	cfg := c.config
	name := experimentName(alg, cfg.Grid.Size)

	return func(run int) (*types.Setup, error) {
		gridConfig := cfg.Grid
		learnerConfig := cfg.Learner
		if learnerConfig.Seed != 0 {
			learnerConfig.Seed += int64(run)
			gridConfig.Seed = learnerConfig.Seed
		}
		env, err := grid.NewDoorKeyEnvironment(gridConfig)
		if err != nil {
			return nil, err
		}
		setup := &types.Setup{Environment: env}

		var machine *rm.RewardMachine
		if machineName != "" {
			machine, err = machines.Resolve(machineName)
			if err != nil {
				return nil, err
			}
			setup.Machine = machine
		}

		var agent *policies.Agent
		switch alg {
		case "q", "bl", "bl2":
			agent = policies.NewQLearner(env.NumActions(), learnerConfig)
		case "crm", "crm2":
			agent = policies.NewCRMLearner(env.NumActions(), learnerConfig)
		case "net":
			all := machine.AllStates()
			states := all[len(all)-1] + 1
			agent = policies.NewNetworkLearner(
				env.NumActions(),
				grid.Encoder(gridConfig.Size, states),
				grid.NumFeatures(gridConfig.Size, states),
				learnerConfig,
			)
		}
		tables.add(name, run, agent)
		setup.Learner = agent
		return setup, nil
	}, nil
}

type comparison interface {
	AddExperiment(*types.Experiment)
	AddSummary(string, types.Summarizer)
	Run(context.Context) error
}

// run trains and evaluates every algorithm for the configured number of runs
func (c *cli) run(ctx context.Context, out io.Writer, algs []string) error {
	cfg := c.config
	logger := c.logger.WithField("size", cfg.Grid.Size)
	if err := util.EnsureDir(cfg.Save); err != nil {
		return err
	}
	stopProfiling, err := startProfiling(cfg.Save, cfg.CPUProfile, cfg.MemProfile, logger)
	if err != nil {
		return err
	}
	defer stopProfiling()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	storeKind := "memory"
	if cfg.ResultsDB != "" {
		storeKind = "sqlite"
	}
	results, err := store.NewResultStore(ctx, storeKind, cfg.ResultsDB)
	if err != nil {
		return err
	}
	defer store.CloseIfSupported(results)
	tableStore := c.tableStore()
	defer store.CloseIfSupported(tableStore)

	hooks := make([]types.NamedHook, 0)
	if cfg.Serve != "" {
		tracker := monitor.NewTracker(cfg.ReportEvery)
		hooks = append(hooks, tracker.Hook())
		server := monitor.NewServer(cfg.Serve, tracker, c.logger)
		go func() {
			if err := server.Run(ctx); err != nil {
				logger.WithError(err).Error("status server failed")
			}
		}()
	}

	cConfig := types.ComparisonConfig{
		Runs:         cfg.Runs,
		Episodes:     cfg.Episodes,
		ReportEvery:  cfg.ReportEvery,
		Verbose:      cfg.Verbose,
		RecordPath:   cfg.Save,
		RecordTraces: cfg.Traces && cfg.Save != "",
		Stores:       []types.ResultStore{results},
		Hooks:        hooks,
		Logger:       logger,
	}

	var comp comparison
	if cfg.Parallel > 1 {
		comp, err = types.NewParallelComparison(&types.ParallelComparisonConfig{
			ComparisonConfig: cConfig,
			Parallelism:      cfg.Parallel,
			PrintFrequency:   1,
			Out:              out,
		})
		if err != nil {
			return err
		}
	} else {
		sequential, err := types.NewComparison(&cConfig)
		if err != nil {
			return err
		}
		sequential.AddAnalysis("machine_states", types.NewMachineStateVisits(), types.LogMachineStateVisits(logger))
		if cfg.Save != "" {
			sequential.AddAnalysis("coverage", grid.NewGridCoverage(cfg.Grid.Size), grid.HeatMapComparator(path.Join(cfg.Save, "heatmaps")))
			sequential.AddAnalysis("states", types.NewStateCoverage(), types.CoveragePlotter(path.Join(cfg.Save, "states")))
		}
		comp = sequential
	}

	tables := newTableRegistry()
	for _, alg := range algs {
		setup, err := c.setup(alg, tables)
		if err != nil {
			return err
		}
		comp.AddExperiment(types.NewExperiment(experimentName(alg, cfg.Grid.Size), setup))
	}
	comp.AddSummary("test_steps", types.PrintTestSteps(logger))
	if cfg.Save != "" {
		comp.AddSummary("curves", types.TrainingCurvesPlotter(path.Join(cfg.Save, "curves.png"), cfg.Window))
		comp.AddSummary("averages", types.SaveAverages(cfg.Save))
	}

	if err := comp.Run(ctx); err != nil {
		return err
	}
	if tableStore != nil {
		if err := tables.save(ctx, tableStore, logger); err != nil {
			return fmt.Errorf("storing value tables: %w", err)
		}
	}
	logger.WithFields(logrus.Fields{"algorithms": algs, "runs": cfg.Runs}).Info("done")
	return nil
}

func DoorKeyCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:       "doorkey <algorithm>",
		Short:     "Train one algorithm on the door-key task",
		Args:      cobra.ExactArgs(1),
		ValidArgs: Algorithms,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd.Context(), cmd.OutOrStdout(), args)
		},
	}
}

func CompareCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "compare [algorithm...]",
		Short: "Train several algorithms on the door-key task and plot their curves",
		Long:  "Train several algorithms on the door-key task and plot their curves. Defaults to q, bl and crm.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				args = []string{"q", "bl", "crm"}
			}
			return c.run(cmd.Context(), cmd.OutOrStdout(), args)
		},
	}
}
