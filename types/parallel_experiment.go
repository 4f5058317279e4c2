package types

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gosuri/uilive"
	"github.com/sirupsen/logrus"
)

// ParallelComparisonConfig runs the (experiment, run) pairs of a comparison
// concurrently. Every pair builds its own setup.
type ParallelComparisonConfig struct {
	ComparisonConfig

	// number of runs in flight, at least 1
	Parallelism int
	// seconds between terminal refreshes, 0 disables the live printer
	PrintFrequency int
	// where the live printer writes, stdout when nil
	Out io.Writer
}

// ParallelComparison is the concurrent counterpart of Comparison. Per
// episode analyzers are not supported since they are not safe for
// concurrent use; summaries over averaged runs are.
type ParallelComparison struct {
	Experiments []*Experiment
	summarizers map[string]Summarizer
	results     map[string][]*Run
	cConfig     *ParallelComparisonConfig
}

func NewParallelComparison(config *ParallelComparisonConfig) (*ParallelComparison, error) {
	if config.Parallelism < 1 {
		config.Parallelism = 1
	}
	if config.Logger == nil {
		config.Logger = logrus.StandardLogger()
	}
	return &ParallelComparison{
		Experiments: make([]*Experiment, 0),
		summarizers: make(map[string]Summarizer),
		results:     make(map[string][]*Run),
		cConfig:     config,
	}, nil
}

func (c *ParallelComparison) AddExperiment(e *Experiment) {
	c.Experiments = append(c.Experiments, e)
}

func (c *ParallelComparison) AddSummary(name string, s Summarizer) {
	c.summarizers[name] = s
}

// Results returns the finished runs per experiment, ordered by run index
func (c *ParallelComparison) Results() map[string][]*Run {
	return c.results
}

type parallelJob struct {
	experiment *Experiment
	run        int
}

// Run every job, stopping at the first error
func (c *ParallelComparison) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	longestNameLen := 0
	for _, e := range c.Experiments {
		c.results[e.Name] = make([]*Run, c.cConfig.Runs)
		if len(e.Name) > longestNameLen {
			longestNameLen = len(e.Name)
		}
	}

	outputs := make([]*ParallelOutput, c.cConfig.Parallelism)
	slots := make(chan int, c.cConfig.Parallelism)
	for i := range outputs {
		outputs[i] = NewParallelOutput()
		slots <- i
	}
	if c.cConfig.PrintFrequency > 0 {
		printer := NewTerminalPrinter(ctx, outputs, c.cConfig.PrintFrequency, c.cConfig.Out)
		printer.Start()
		defer printer.Stop()
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
	}

	jobs := make([]parallelJob, 0, len(c.Experiments)*c.cConfig.Runs)
	for run := 0; run < c.cConfig.Runs; run++ {
		for _, e := range c.Experiments {
			jobs = append(jobs, parallelJob{experiment: e, run: run})
		}
	}

	for _, job := range jobs {
		var slot int
		select {
		case <-ctx.Done():
		case slot = <-slots:
		}
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		go func(job parallelJob, slot int) {
			defer wg.Done()
			defer func() { slots <- slot }()
			output := outputs[slot]
			output.SetRunning(true)
			defer output.SetRunning(false)

			rConfig := c.prepareRunConfig(ctx, job.run)
			rConfig.Hooks = append(rConfig.Hooks, progressHook(output, longestNameLen, job.run, c.cConfig.Episodes))
			result, err := job.experiment.Run(rConfig)
			if err != nil {
				fail(err)
				return
			}
			mu.Lock()
			c.results[job.experiment.Name][job.run] = result
			mu.Unlock()
		}(job, slot)
	}
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return summarize(c.Experiments, c.results, c.summarizers)
}

func (c *ParallelComparison) prepareRunConfig(ctx context.Context, run int) *experimentRunConfig {
	hooks := make([]NamedHook, len(c.cConfig.Hooks))
	copy(hooks, c.cConfig.Hooks)
	return &experimentRunConfig{
		CurrentRun:   run,
		Episodes:     c.cConfig.Episodes,
		ReportEvery:  c.cConfig.ReportEvery,
		Verbose:      c.cConfig.Verbose,
		Hooks:        hooks,
		Stores:       c.cConfig.Stores,
		Context:      ctx,
		Logger:       c.cConfig.Logger,
		RecordPath:   c.cConfig.RecordPath,
		RecordTraces: c.cConfig.RecordTraces,
	}
}

func progressHook(output *ParallelOutput, namePadding, run, episodes int) NamedHook {
	return func(name string) EpisodeHook {
		return func(stats EpisodeStats, _ *Trace) {
			// never block the training loop on the printer
			output.TrySet(fmt.Sprintf("Exp:%*s, Run:%3d, Eps:%6d/%d, Reward:%7.3f, Steps:%5d, Epsilon:%.3f",
				namePadding, name, run, stats.Episode, episodes, stats.Reward, stats.Steps, stats.Epsilon))
		}
	}
}

// TERMINAL PRINTER

type TerminalPrinter struct {
	parallelOutputs []*ParallelOutput
	ctx             context.Context
	printerCtx      context.Context
	printerCancel   context.CancelFunc
	frequency       int
	done            chan struct{}

	writer  *uilive.Writer
	writers []io.Writer
}

func NewTerminalPrinter(ctx context.Context, parallelOutputs []*ParallelOutput, frequency int, out io.Writer) *TerminalPrinter {
	printerCtx, cancel := context.WithCancel(ctx)
	size := len(parallelOutputs)
	writers := make([]io.Writer, size)
	writer := uilive.New()
	if out != nil {
		writer.Out = out
	}
	for i := 0; i < size-1; i++ {
		writers[i] = writer.Newline()
	}

	return &TerminalPrinter{
		parallelOutputs: parallelOutputs,
		ctx:             ctx,
		printerCtx:      printerCtx,
		printerCancel:   cancel,
		frequency:       frequency,
		done:            make(chan struct{}),

		writer:  writer,
		writers: writers,
	}
}

func (p *TerminalPrinter) Start() {
	p.writer.Start()
	go func() {
		defer close(p.done)
		for {
			select {
			case <-p.printerCtx.Done():
				p.print()
				p.writer.Stop()
				return
			case <-time.After(time.Duration(p.frequency) * time.Second):
				p.print()
			}
		}
	}()
}

// Stop prints a last time and waits for the printer to exit
func (p *TerminalPrinter) Stop() {
	p.printerCancel()
	<-p.done
}

func (p *TerminalPrinter) print() {
	for i, output := range p.parallelOutputs {
		s := output.Get()
		if s == "" {
			continue
		}
		if !output.Running() {
			s += " (idle)"
		}
		if i == 0 {
			fmt.Fprint(p.writer, s+"\n")
		} else {
			fmt.Fprint(p.writers[i-1], s+"\n")
		}
	}
	p.writer.Flush()
}

// PARALLEL OUTPUT

// used to update and print experiment outputs
type ParallelOutput struct {
	mu        sync.Mutex
	printable string
	running   bool
}

func NewParallelOutput() *ParallelOutput {
	return &ParallelOutput{}
}

// Set the output string (blocking)
func (p *ParallelOutput) Set(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.printable = s
}

// Try to set the output string (non-blocking)
func (p *ParallelOutput) TrySet(s string) bool {
	if p.mu.TryLock() {
		defer p.mu.Unlock()
		p.printable = s
		return true
	}
	return false
}

// Get the output string (blocking)
func (p *ParallelOutput) Get() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.printable
}

func (p *ParallelOutput) SetRunning(running bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running = running
}

func (p *ParallelOutput) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}
