// Package monitor exposes the progress of running experiments over HTTP
package monitor

import (
	"sync"

	"github.com/zeu5/crm/types"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/stat"
)

// Summary is the latest progress of one experiment
type Summary struct {
	Name string `json:"name"`
	Runs int    `json:"runs"`
	// episodes finished by the latest run
	Episode    int     `json:"episode"`
	Epsilon    float64 `json:"epsilon"`
	MeanReward float64 `json:"mean_reward"`
}

// History is every episode recorded for an experiment, one slice per run
type History struct {
	Name string                 `json:"name"`
	Runs [][]types.EpisodeStats `json:"runs"`
}

type runProgress struct {
	episodes []types.EpisodeStats
}

// Tracker collects episode statistics from the training loop
type Tracker struct {
	lock *sync.Mutex
	// window of the mean reward in summaries
	window      int
	experiments map[string][]*runProgress
}

func NewTracker(window int) *Tracker {
	if window <= 0 {
		window = 1
	}
	return &Tracker{
		lock:        new(sync.Mutex),
		window:      window,
		experiments: make(map[string][]*runProgress),
	}
}

// Hook registers a new run each time an experiment run builds its hooks
func (t *Tracker) Hook() types.NamedHook {
	return func(experiment string) types.EpisodeHook {
		t.lock.Lock()
		run := &runProgress{episodes: make([]types.EpisodeStats, 0)}
		t.experiments[experiment] = append(t.experiments[experiment], run)
		t.lock.Unlock()

		return func(stats types.EpisodeStats, _ *types.Trace) {
			t.lock.Lock()
			defer t.lock.Unlock()
			run.episodes = append(run.episodes, stats)
		}
	}
}

// Status summarizes every experiment, sorted by name
func (t *Tracker) Status() []Summary {
	t.lock.Lock()
	defer t.lock.Unlock()

	names := maps.Keys(t.experiments)
	slices.Sort(names)
	out := make([]Summary, len(names))
	for i, name := range names {
		runs := t.experiments[name]
		s := Summary{Name: name, Runs: len(runs)}
		latest := runs[len(runs)-1].episodes
		if n := len(latest); n > 0 {
			s.Episode = n
			s.Epsilon = latest[n-1].Epsilon
			from := n - t.window
			if from < 0 {
				from = 0
			}
			rewards := make([]float64, 0, n-from)
			for _, e := range latest[from:] {
				rewards = append(rewards, e.Reward)
			}
			s.MeanReward = stat.Mean(rewards, nil)
		}
		out[i] = s
	}
	return out
}

// History copies the recorded episodes of an experiment
func (t *Tracker) History(name string) (*History, bool) {
	t.lock.Lock()
	defer t.lock.Unlock()

	runs, ok := t.experiments[name]
	if !ok {
		return nil, false
	}
	h := &History{Name: name, Runs: make([][]types.EpisodeStats, len(runs))}
	for i, r := range runs {
		h.Runs[i] = slices.Clone(r.episodes)
	}
	return h, true
}
