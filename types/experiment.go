package types

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strconv"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/zeu5/crm/util"
)

// Setup is everything a single run needs. Nothing in it may be shared
// between runs.
type Setup struct {
	Environment Environment
	// nil for plain Q-learning
	Machine Machine
	Learner Learner
}

// SetupFunc builds a fresh setup for the given run index
type SetupFunc func(run int) (*Setup, error)

// ResultStore persists finished runs
type ResultStore interface {
	SaveRun(ctx context.Context, record RunRecord) error
}

// RunRecord identifies a finished run
type RunRecord struct {
	ID         string
	Experiment string
	Index      int
	Run        *Run
}

// NamedHook builds an episode hook for the named experiment
type NamedHook func(experiment string) EpisodeHook

type experimentRunConfig struct {
	// execution configuration
	CurrentRun  int
	Episodes    int
	ReportEvery int
	Verbose     bool
	Analyzers   []Analyzer
	Hooks       []NamedHook
	Stores      []ResultStore
	Context     context.Context
	Logger      logrus.FieldLogger

	// record configuration
	RecordPath   string
	RecordTraces bool
}

// Experiment names a way of building a learner, environment and machine
type Experiment struct {
	Name  string
	setup SetupFunc
}

// NewExperiment creates a new experiment instance
func NewExperiment(name string, setup SetupFunc) *Experiment {
	return &Experiment{
		Name:  name,
		setup: setup,
	}
}

func (e *Experiment) recordTrace(rConfig *experimentRunConfig, trace *Trace) error {
	tracesFile := path.Join(rConfig.RecordPath, "traces", e.Name+"_"+strconv.Itoa(rConfig.CurrentRun)+".jsonl")
	bs, err := json.Marshal(trace)
	if err != nil {
		return err
	}
	return util.AppendToFile(tracesFile, string(bs))
}

// Run trains a fresh learner for the configured number of episodes and
// evaluates it greedily once
func (e *Experiment) Run(rConfig *experimentRunConfig) (*Run, error) {
	select {
	case <-rConfig.Context.Done():
		return nil, rConfig.Context.Err()
	default:
	}

	setup, err := e.setup(rConfig.CurrentRun)
	if err != nil {
		return nil, fmt.Errorf("setting up %s: %w", e.Name, err)
	}
	defer setup.Environment.Close()

	id := uuid.NewString()
	logger := rConfig.Logger.WithFields(logrus.Fields{
		"experiment": e.Name,
		"run":        rConfig.CurrentRun,
		"run_id":     id,
	})

	hooks := make([]EpisodeHook, 0, len(rConfig.Hooks)+len(rConfig.Analyzers)+1)
	for _, h := range rConfig.Hooks {
		hooks = append(hooks, h(e.Name))
	}
	for _, a := range rConfig.Analyzers {
		a := a
		hooks = append(hooks, func(stats EpisodeStats, trace *Trace) {
			a.Analyze(rConfig.CurrentRun, e.Name, stats, trace)
		})
	}
	var traceErr error
	if rConfig.RecordTraces {
		hooks = append(hooks, func(_ EpisodeStats, trace *Trace) {
			if traceErr == nil {
				traceErr = e.recordTrace(rConfig, trace)
			}
		})
	}

	agent, err := NewAgent(&AgentConfig{
		Episodes:    rConfig.Episodes,
		ReportEvery: rConfig.ReportEvery,
		Verbose:     rConfig.Verbose,
		Learner:     setup.Learner,
		Environment: setup.Environment,
		Machine:     setup.Machine,
		Logger:      logger,
		Hooks:       hooks,
		Context:     rConfig.Context,
	})
	if err != nil {
		return nil, err
	}

	run, err := agent.Train()
	if err != nil {
		return nil, fmt.Errorf("%s run %d: %w", e.Name, rConfig.CurrentRun, err)
	}
	if traceErr != nil {
		return nil, fmt.Errorf("recording traces: %w", traceErr)
	}
	run.TestSteps, err = agent.Test(rConfig.Verbose)
	if err != nil {
		return nil, fmt.Errorf("%s run %d evaluation: %w", e.Name, rConfig.CurrentRun, err)
	}
	logger.WithField("test_steps", run.TestSteps).Info("run finished")

	if rConfig.RecordPath != "" {
		runFile := path.Join(rConfig.RecordPath, e.Name+"_"+strconv.Itoa(rConfig.CurrentRun)+".json")
		if err := run.Save(runFile); err != nil {
			return nil, fmt.Errorf("saving run: %w", err)
		}
	}
	for _, s := range rConfig.Stores {
		record := RunRecord{ID: id, Experiment: e.Name, Index: rConfig.CurrentRun, Run: run}
		if err := s.SaveRun(rConfig.Context, record); err != nil {
			return nil, fmt.Errorf("storing run: %w", err)
		}
	}
	return run, nil
}

// Generic Dataset that contains information after processing the traces
type DataSet interface{}

// Analyzer compresses the information in the traces to a DataSet
type Analyzer interface {
	// Run, experiment, episode statistics, trace
	Analyze(int, string, EpisodeStats, *Trace)
	// Resulting dataset
	DataSet() DataSet
	// Reset the analyzer
	Reset()
}

// Comparator differentiates between different datasets with associated names
// run, experiment names, datasets
type Comparator func(int, []string, []DataSet) error

// Summarizer compares experiments once every run has finished
// experiment names, averaged runs
type Summarizer func([]string, []*Avg) error

func NoopComparator() Comparator {
	return func(int, []string, []DataSet) error { return nil }
}

// ComparisonConfig contains the configuration for the comparison
type ComparisonConfig struct {
	Runs        int // number of runs
	Episodes    int // number of episodes
	ReportEvery int
	Verbose     bool

	RecordPath   string // path to store the results, empty to skip
	RecordTraces bool
	Stores       []ResultStore
	Hooks        []NamedHook
	Logger       logrus.FieldLogger
}

// record the configuration of the comparison
func (c *Comparison) recordConfig() error {
	cfg := c.cConfig
	if cfg.RecordPath == "" {
		return nil
	}

	out := make(map[string]interface{})
	out["runs"] = cfg.Runs
	out["episodes"] = cfg.Episodes
	out["report_every"] = cfg.ReportEvery
	out["record_traces"] = cfg.RecordTraces

	experiments := make([]string, 0)
	for _, e := range c.Experiments {
		experiments = append(experiments, e.Name)
	}
	out["experiments"] = experiments

	analyzers := make([]string, 0)
	for name := range c.analyzers {
		analyzers = append(analyzers, name)
	}
	out["analyzers"] = analyzers

	return util.WriteJSON(path.Join(cfg.RecordPath, "comparison_config.json"), out)
}

// Comparison contains the different experiments to compare
// The traces obtained from the experiments are analyzed
// The analyzed datasets are then compared
type Comparison struct {
	Experiments []*Experiment
	analyzers   map[string]Analyzer
	comparators map[string]Comparator
	summarizers map[string]Summarizer
	results     map[string][]*Run
	cConfig     *ComparisonConfig
}

// NewComparison creates a comparison instance
func NewComparison(config *ComparisonConfig) (*Comparison, error) {
	if config.Logger == nil {
		config.Logger = logrus.StandardLogger()
	}
	if config.RecordPath != "" {
		if err := util.EnsureDir(config.RecordPath); err != nil {
			return nil, err
		}
	}

	return &Comparison{
		Experiments: make([]*Experiment, 0),
		analyzers:   make(map[string]Analyzer),
		comparators: make(map[string]Comparator),
		summarizers: make(map[string]Summarizer),
		results:     make(map[string][]*Run),
		cConfig:     config,
	}, nil
}

// AddAnalysis adds an analyzer and comparator to the comparison
func (c *Comparison) AddAnalysis(name string, analyzer Analyzer, comparator Comparator) {
	c.analyzers[name] = analyzer
	c.comparators[name] = comparator
}

// AddSummary adds a comparison over the averaged runs
func (c *Comparison) AddSummary(name string, s Summarizer) {
	c.summarizers[name] = s
}

// Add experiments to compare
func (c *Comparison) AddExperiment(e *Experiment) {
	c.Experiments = append(c.Experiments, e)
}

// Results returns the finished runs per experiment
func (c *Comparison) Results() map[string][]*Run {
	return c.results
}

// Run the comparison
func (c *Comparison) Run(ctx context.Context) error {
	if err := c.recordConfig(); err != nil { // store configuration details to a file
		return err
	}

	for run := 0; run < c.cConfig.Runs; run++ { // number of runs
		c.cConfig.Logger.WithField("run", run+1).Info("starting run")
		datasets := make(map[string][]DataSet)

		for name := range c.analyzers {
			datasets[name] = make([]DataSet, len(c.Experiments))
		}

		names := make([]string, len(c.Experiments))
		for i, e := range c.Experiments {
			result, err := e.Run(c.prepareRunConfig(ctx, run))
			if err != nil {
				return err
			}
			c.results[e.Name] = append(c.results[e.Name], result)
			for name, a := range c.analyzers {
				datasets[name][i] = a.DataSet()
				a.Reset()
			}
			names[i] = e.Name
		}
		for name, comp := range c.comparators {
			if err := comp(run, names, datasets[name]); err != nil {
				return fmt.Errorf("comparator %s: %w", name, err)
			}
		}
	}
	return summarize(c.Experiments, c.results, c.summarizers)
}

func summarize(experiments []*Experiment, results map[string][]*Run, summarizers map[string]Summarizer) error {
	if len(summarizers) == 0 {
		return nil
	}
	names := make([]string, len(experiments))
	avgs := make([]*Avg, len(experiments))
	for i, e := range experiments {
		avg, err := Average(results[e.Name])
		if err != nil {
			return fmt.Errorf("averaging %s: %w", e.Name, err)
		}
		names[i] = e.Name
		avgs[i] = avg
	}
	for name, s := range summarizers {
		if err := s(names, avgs); err != nil {
			return fmt.Errorf("summary %s: %w", name, err)
		}
	}
	return nil
}

// prepare the run configuration for the experiment
func (c *Comparison) prepareRunConfig(ctx context.Context, run int) *experimentRunConfig {
	rCfg := &experimentRunConfig{
		CurrentRun:   run,
		Episodes:     c.cConfig.Episodes,
		ReportEvery:  c.cConfig.ReportEvery,
		Verbose:      c.cConfig.Verbose,
		Analyzers:    make([]Analyzer, 0),
		Hooks:        c.cConfig.Hooks,
		Stores:       c.cConfig.Stores,
		Context:      ctx,
		Logger:       c.cConfig.Logger,
		RecordPath:   c.cConfig.RecordPath,
		RecordTraces: c.cConfig.RecordTraces,
	}

	for _, a := range c.analyzers {
		rCfg.Analyzers = append(rCfg.Analyzers, a)
	}
	return rCfg
}
