package types

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"
)

// EpisodeStats aggregates one training episode
type EpisodeStats struct {
	Episode int     `json:"episode"`
	Error   float64 `json:"error"`
	Reward  float64 `json:"reward"`
	Steps   int     `json:"steps"`
	Epsilon float64 `json:"epsilon"`
}

// EpisodeHook observes finished training episodes
type EpisodeHook func(stats EpisodeStats, trace *Trace)

type AgentConfig struct {
	Episodes    int
	ReportEvery int
	Verbose     bool
	Learner     Learner
	Environment Environment
	// nil runs plain Q-learning on the environment reward with RM state 0
	Machine Machine
	Logger  logrus.FieldLogger
	Hooks   []EpisodeHook
	// checked between episodes, nil never cancels
	Context context.Context
}

// Agent drives a learner through an environment, optionally
// through a reward machine
type Agent struct {
	config      *AgentConfig
	learner     Learner
	environment Environment
	machine     Machine
	logger      logrus.FieldLogger
}

var ErrNoLearner = errors.New("agent config requires a learner and an environment")

// Instantiates a new Agent
func NewAgent(config *AgentConfig) (*Agent, error) {
	if config.Learner == nil || config.Environment == nil {
		return nil, ErrNoLearner
	}
	logger := config.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Agent{
		config:      config,
		learner:     config.Learner,
		environment: config.Environment,
		machine:     config.Machine,
		logger:      logger,
	}, nil
}

// Train runs the configured number of episodes with exploration and
// learning, returning per-episode |TD error| sums, rewards and lengths
func (a *Agent) Train() (*Run, error) {
	run := &Run{
		Errors:  make([]float64, 0, a.config.Episodes),
		Rewards: make([]float64, 0, a.config.Episodes),
		Steps:   make([]int, 0, a.config.Episodes),
	}
	reportEvery := a.config.ReportEvery
	if reportEvery < 1 {
		reportEvery = 1
	}

	for episode := 1; episode <= a.config.Episodes; episode++ {
		if a.config.Context != nil {
			if err := a.config.Context.Err(); err != nil {
				return run, err
			}
		}
		stats, trace, err := a.runEpisode(true)
		if err != nil {
			return run, fmt.Errorf("episode %d: %w", episode, err)
		}
		stats.Episode = episode
		stats.Epsilon = a.learner.Epsilon()
		run.Errors = append(run.Errors, stats.Error)
		run.Rewards = append(run.Rewards, stats.Reward)
		run.Steps = append(run.Steps, stats.Steps)

		if a.config.Verbose && episode%reportEvery == 0 {
			a.report(run, episode, reportEvery)
		}
		for _, hook := range a.config.Hooks {
			hook(stats, trace)
		}

		a.learner.DecayEpsilon()
	}

	return run, nil
}

// Test runs one greedy episode without learning and returns its length.
// The environment is left open, closing it is up to the caller.
func (a *Agent) Test(verbose bool) (int, error) {
	stats, trace, err := a.runEpisode(false)
	if err != nil {
		return stats.Steps, err
	}
	if verbose {
		namer, ok := a.environment.(ActionNamer)
		for i := 0; i < trace.Len(); i++ {
			state, action, reward, _, _ := trace.Get(i)
			name := fmt.Sprint(action)
			if ok {
				name = namer.ActionName(action)
			}
			a.logger.WithFields(logrus.Fields{
				"step":   i + 1,
				"state":  state.String(),
				"action": name,
				"reward": reward,
			}).Info("test step")
		}
	}
	return stats.Steps, nil
}

// run a single episode, learning only when explore is set
func (a *Agent) runEpisode(explore bool) (EpisodeStats, *Trace, error) {
	stats := EpisodeStats{}
	trace := NewTrace()

	obs, err := a.environment.Reset()
	if err != nil {
		return stats, trace, fmt.Errorf("reset: %w", err)
	}
	u := 0
	if a.machine != nil {
		u = a.machine.Reset()
	}
	state := NewState(obs, u)

	for done := false; !done; {
		action := a.learner.SelectAction(state, explore)
		result, err := a.environment.Step(action)
		if err != nil {
			return stats, trace, fmt.Errorf("step %d: %w", stats.Steps+1, err)
		}

		nextState := NewState(result.Observation, 0)
		reward := result.Reward
		terminal := result.Terminated || result.Truncated
		var batch []Experience
		if a.machine != nil {
			nextState, reward, terminal, batch, err = a.machine.Step(state, result.Observation.Hash(), result.Props)
			if err != nil {
				return stats, trace, fmt.Errorf("step %d: %w", stats.Steps+1, err)
			}
		}
		// the environment ending the episode always ends it, but only a
		// terminal RM state masks the bootstrap term
		done = terminal || result.Terminated || result.Truncated

		if explore {
			tdError := a.learner.Update(Transition{
				State:     state,
				Action:    action,
				Reward:    reward,
				NextState: nextState,
				Terminal:  terminal,
			}, batch)
			stats.Error += abs(tdError)
		}
		trace.Append(state, action, reward, nextState)
		stats.Reward += reward
		stats.Steps += 1
		state = nextState
	}
	return stats, trace, nil
}

func (a *Agent) report(run *Run, episode, window int) {
	from := episode - window
	steps := make([]float64, window)
	for i, s := range run.Steps[from:episode] {
		steps[i] = float64(s)
	}
	a.logger.WithFields(logrus.Fields{
		"episode": episode,
		"error":   stat.Mean(run.Errors[from:episode], nil),
		"reward":  stat.Mean(run.Rewards[from:episode], nil),
		"steps":   stat.Mean(steps, nil),
		"epsilon": a.learner.Epsilon(),
	}).Info("training")
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// Train is a shorthand for a one-off training run
func Train(learner Learner, env Environment, machine Machine, episodes, reportEvery int, verbose bool) (*Run, error) {
	agent, err := NewAgent(&AgentConfig{
		Episodes:    episodes,
		ReportEvery: reportEvery,
		Verbose:     verbose,
		Learner:     learner,
		Environment: env,
		Machine:     machine,
	})
	if err != nil {
		return nil, err
	}
	return agent.Train()
}

// Test is a shorthand for a one-off greedy evaluation
func Test(learner Learner, env Environment, machine Machine, verbose bool) (int, error) {
	agent, err := NewAgent(&AgentConfig{
		Learner:     learner,
		Environment: env,
		Machine:     machine,
	})
	if err != nil {
		return 0, err
	}
	return agent.Test(verbose)
}
