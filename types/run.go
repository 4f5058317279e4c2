package types

import (
	"fmt"

	"github.com/zeu5/crm/util"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Run is the record of one training run followed by one greedy evaluation
type Run struct {
	Errors    []float64 `json:"errors"`
	Rewards   []float64 `json:"rewards"`
	Steps     []int     `json:"steps"`
	TestSteps int       `json:"test_steps"`
}

func (r *Run) Episodes() int {
	return len(r.Errors)
}

// Save writes the run as JSON
func (r *Run) Save(path string) error {
	return util.WriteJSON(path, r)
}

// LoadRun reads a run written by Save
func LoadRun(path string) (*Run, error) {
	run := &Run{}
	if err := util.ReadJSON(path, run); err != nil {
		return nil, fmt.Errorf("loading run %s: %w", path, err)
	}
	return run, nil
}

// Avg is the element-wise mean of several runs
type Avg struct {
	Errors    []float64 `json:"errors"`
	Rewards   []float64 `json:"rewards"`
	Steps     []float64 `json:"steps"`
	TestSteps float64   `json:"test_steps"`
	// standard deviation of the evaluation length across runs
	TestStepsStd float64 `json:"test_steps_std"`
	Runs         int     `json:"runs"`
}

// Average computes the per-episode mean across runs. All runs must cover the
// same number of episodes.
func Average(runs []*Run) (*Avg, error) {
	if len(runs) == 0 {
		return nil, fmt.Errorf("no runs to average")
	}
	episodes := runs[0].Episodes()
	avg := &Avg{
		Errors:  make([]float64, episodes),
		Rewards: make([]float64, episodes),
		Steps:   make([]float64, episodes),
		Runs:    len(runs),
	}
	testSteps := make([]float64, len(runs))
	steps := make([]float64, episodes)
	for i, run := range runs {
		if run.Episodes() != episodes || len(run.Rewards) != episodes || len(run.Steps) != episodes {
			return nil, fmt.Errorf("run %d has %d episodes, expected %d", i, run.Episodes(), episodes)
		}
		floats.Add(avg.Errors, run.Errors)
		floats.Add(avg.Rewards, run.Rewards)
		for j, s := range run.Steps {
			steps[j] = float64(s)
		}
		floats.Add(avg.Steps, steps)
		testSteps[i] = float64(run.TestSteps)
	}
	n := 1 / float64(len(runs))
	floats.Scale(n, avg.Errors)
	floats.Scale(n, avg.Rewards)
	floats.Scale(n, avg.Steps)
	avg.TestSteps, avg.TestStepsStd = stat.MeanStdDev(testSteps, nil)
	if len(runs) == 1 {
		avg.TestStepsStd = 0
	}
	return avg, nil
}
