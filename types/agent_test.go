package types_test

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeu5/crm/policies"
	"github.com/zeu5/crm/rm"
	"github.com/zeu5/crm/types"
)

type counterObs int

func (c counterObs) Hash() string { return strconv.Itoa(int(c)) }

// countingEnv reports done once doneAt steps were taken and truncates after
// maxSteps
type countingEnv struct {
	doneAt   int
	maxSteps int
	reward   float64
	t        int
	resets   int
}

func (e *countingEnv) Reset() (types.Observation, error) {
	e.t = 0
	e.resets += 1
	return counterObs(0), nil
}

func (e *countingEnv) Step(action int) (types.StepResult, error) {
	e.t += 1
	return types.StepResult{
		Observation: counterObs(e.t),
		Reward:      e.reward,
		Truncated:   e.maxSteps > 0 && e.t >= e.maxSteps,
		Props:       types.Props{"done": e.t >= e.doneAt},
	}, nil
}

func (e *countingEnv) Close() error    { return nil }
func (e *countingEnv) NumActions() int { return 2 }

type recordingLearner struct {
	types.Learner
	transitions []types.Transition
	batches     [][]types.Experience
}

func (r *recordingLearner) Update(tr types.Transition, batch []types.Experience) float64 {
	r.transitions = append(r.transitions, tr)
	r.batches = append(r.batches, batch)
	return r.Learner.Update(tr, batch)
}

func doneMachine(t *testing.T) *rm.RewardMachine {
	machine, err := rm.New([]rm.Edge{
		{From: 0, To: 0, Formula: "!done", Reward: 0},
		{From: 0, To: 1, Formula: "done", Reward: 1},
	})
	require.NoError(t, err)
	return machine
}

func seeded() policies.Config {
	c := policies.DefaultConfig()
	c.Seed = 3
	return c
}

func TestCounterfactualEpisode(t *testing.T) {
	learner := &recordingLearner{Learner: policies.NewCRMLearner(2, seeded())}
	env := &countingEnv{doneAt: 4}

	run, err := types.Train(learner, env, doneMachine(t), 1, 1, false)
	require.NoError(t, err)
	require.Equal(t, 1, run.Episodes())
	assert.Equal(t, []int{4}, run.Steps)
	assert.Equal(t, []float64{1}, run.Rewards)

	rewarded := make([]types.Experience, 0)
	for _, batch := range learner.batches {
		// one experience per non-terminal machine state
		require.Len(t, batch, 1)
		for _, e := range batch {
			if e.Reward != 0 {
				rewarded = append(rewarded, e)
			}
		}
	}
	require.Len(t, rewarded, 1)
	assert.Equal(t, types.State{Key: "3", U: 0}, rewarded[0].State)
	assert.Equal(t, types.State{Key: "4", U: 1}, rewarded[0].NextState)
	assert.Equal(t, 1.0, rewarded[0].Reward)
	assert.True(t, rewarded[0].Terminal)

	last := learner.transitions[len(learner.transitions)-1]
	assert.Equal(t, types.State{Key: "3", U: 0}, last.State)
	assert.True(t, last.Terminal)
}

func TestCRMUpdatesEveryMachineState(t *testing.T) {
	machine, err := rm.New([]rm.Edge{
		{From: 0, To: 0, Formula: "!done", Reward: 0},
		{From: 0, To: 1, Formula: "done", Reward: 0},
		{From: 1, To: 1, Formula: "!done", Reward: 0},
		{From: 1, To: 2, Formula: "done", Reward: 1},
	})
	require.NoError(t, err)

	crm := policies.NewCRMLearner(2, seeded())
	_, err = types.Train(crm, &countingEnv{doneAt: 2, maxSteps: 3}, machine, 1, 1, false)
	require.NoError(t, err)

	// the counterfactual learner touched state 1 at keys it never visited in it
	table := crm.ValueFunction().(*policies.QTable)
	assert.True(t, table.HasState(types.State{Key: "0", U: 1}))
	assert.True(t, table.HasState(types.State{Key: "1", U: 1}))
}

func TestTrainWithoutMachine(t *testing.T) {
	learner := &recordingLearner{Learner: policies.NewQLearner(2, seeded())}
	env := &countingEnv{doneAt: 1, maxSteps: 5, reward: 0.5}

	run, err := types.Train(learner, env, nil, 3, 1, false)
	require.NoError(t, err)
	assert.Equal(t, []int{5, 5, 5}, run.Steps)
	assert.Equal(t, []float64{2.5, 2.5, 2.5}, run.Rewards)
	assert.Equal(t, 3, env.resets)

	for _, tr := range learner.transitions {
		assert.Equal(t, 0, tr.State.U)
		assert.Equal(t, 0, tr.NextState.U)
	}
	assert.True(t, learner.transitions[4].Terminal)
	assert.False(t, learner.transitions[3].Terminal)
	for _, b := range learner.batches {
		assert.Empty(t, b)
	}
	assert.Less(t, learner.Epsilon(), 1.0)
}

func TestTruncationEndsEpisodeWithMachine(t *testing.T) {
	learner := &recordingLearner{Learner: policies.NewCRMLearner(2, seeded())}
	env := &countingEnv{doneAt: 100, maxSteps: 6}

	run, err := types.Train(learner, env, doneMachine(t), 1, 1, false)
	require.NoError(t, err)
	assert.Equal(t, []int{6}, run.Steps)
	// truncation is not a terminal machine state, the bootstrap stays
	for _, tr := range learner.transitions {
		assert.False(t, tr.Terminal)
	}
}

func TestGreedyTestDoesNotLearn(t *testing.T) {
	learner := &recordingLearner{Learner: policies.NewCRMLearner(2, seeded())}
	steps, err := types.Test(learner, &countingEnv{doneAt: 3}, doneMachine(t), false)
	require.NoError(t, err)
	assert.Equal(t, 3, steps)
	assert.Empty(t, learner.transitions)
}

func TestMachineErrorsPropagate(t *testing.T) {
	machine, err := rm.New([]rm.Edge{{From: 0, To: 1, Formula: "done", Reward: 1}})
	require.NoError(t, err)

	_, err = types.Train(policies.NewCRMLearner(2, seeded()), &countingEnv{doneAt: 3}, machine, 1, 1, false)
	assert.ErrorIs(t, err, rm.ErrNoTransition)
}

func TestTrainStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	episodes := 0
	agent, err := types.NewAgent(&types.AgentConfig{
		Episodes:    10,
		Learner:     policies.NewQLearner(2, seeded()),
		Environment: &countingEnv{doneAt: 1, maxSteps: 2},
		Context:     ctx,
		Hooks: []types.EpisodeHook{func(types.EpisodeStats, *types.Trace) {
			episodes += 1
			if episodes == 2 {
				cancel()
			}
		}},
	})
	require.NoError(t, err)

	run, err := agent.Train()
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, run.Episodes())
}

func TestNewAgentRequiresLearner(t *testing.T) {
	_, err := types.NewAgent(&types.AgentConfig{Environment: &countingEnv{}})
	assert.ErrorIs(t, err, types.ErrNoLearner)
}
