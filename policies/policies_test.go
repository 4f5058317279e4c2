package policies

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeu5/crm/types"
)

func testConfig() Config {
	c := DefaultConfig()
	c.Seed = 7
	return c
}

func TestEpsilonDecay(t *testing.T) {
	c := testConfig()
	c.Epsilon = 1.0
	c.EpsilonDecay = 0.99
	c.MinEpsilon = 0.1

	agent := NewQLearner(4, c)
	agent.DecayEpsilon()
	assert.InDelta(t, 0.99, agent.Epsilon(), 1e-12)

	agent = NewQLearner(4, c)
	prev := agent.Epsilon()
	for i := 0; i < 1000; i++ {
		agent.DecayEpsilon()
		require.LessOrEqual(t, agent.Epsilon(), prev)
		prev = agent.Epsilon()
	}
	assert.Equal(t, math.Max(0.1, math.Pow(0.99, 1000)), agent.Epsilon())
	assert.Equal(t, 0.1, agent.Epsilon())
}

func TestLazyRowsAreIndependent(t *testing.T) {
	q := NewQTable(3, 0.1, 0.9, testConfig().Rand())
	identical := 0
	for i := 0; i < 100; i++ {
		a := q.Row(types.State{Key: "a", U: i})
		b := q.Row(types.State{Key: "b", U: i})
		for _, v := range append(append([]float64{}, a...), b...) {
			require.GreaterOrEqual(t, v, 0.0)
			require.Less(t, v, 1.0)
		}
		if assert.ObjectsAreEqual(a, b) {
			identical += 1
		}
	}
	assert.Equal(t, 0, identical)
	assert.Equal(t, 200, q.Len())
}

func TestRowIsShared(t *testing.T) {
	q := NewQTable(2, 0.1, 0.9, testConfig().Rand())
	s := types.State{Key: "s", U: 0}
	row := q.Row(s)
	row[1] = 42
	assert.Equal(t, 42.0, q.Get(s, 1))
	assert.True(t, q.HasState(s))
	assert.False(t, q.HasState(types.State{Key: "s", U: 1}))
}

func TestStableArgmax(t *testing.T) {
	c := testConfig()
	c.Epsilon = 0
	c.MinEpsilon = 0
	agent := NewQLearner(3, c)
	q := agent.ValueFunction().(*QTable)
	s := types.State{Key: "s", U: 0}
	require.NoError(t, q.Restore(map[string][]float64{s.Hash(): {0.5, 0.9, 0.9}}))

	for i := 0; i < 10; i++ {
		assert.Equal(t, 1, agent.SelectAction(s, true))
		assert.Equal(t, 1, agent.SelectAction(s, false))
	}
	action, value := q.Max(s)
	assert.Equal(t, 1, action)
	assert.Equal(t, 0.9, value)
}

func TestExplorationCoversActions(t *testing.T) {
	c := testConfig()
	c.Epsilon = 1
	agent := NewQLearner(4, c)
	s := types.State{Key: "s", U: 0}
	seen := make(map[int]bool)
	for i := 0; i < 200; i++ {
		a := agent.SelectAction(s, true)
		require.GreaterOrEqual(t, a, 0)
		require.Less(t, a, 4)
		seen[a] = true
	}
	assert.Len(t, seen, 4)
}

func TestBellmanUpdate(t *testing.T) {
	q := NewQTable(2, 0.1, 0.9, testConfig().Rand())
	s := types.State{Key: "s", U: 0}
	next := types.State{Key: "t", U: 0}
	require.NoError(t, q.Restore(map[string][]float64{
		s.Hash():    {0.5, 0},
		next.Hash(): {0.2, 0.8},
	}))

	td := q.Bellman(s, 0, 1, next, false)
	assert.InDelta(t, 1.22, td, 1e-12)
	assert.InDelta(t, 0.622, q.Get(s, 0), 1e-12)

	q.Set(s, 0, 0.5)
	td = q.Bellman(s, 0, 1, next, true)
	assert.InDelta(t, 0.5, td, 1e-12)
	assert.InDelta(t, 0.55, q.Get(s, 0), 1e-12)
}

func TestPlainUpdateIgnoresBatch(t *testing.T) {
	q := NewQTable(2, 0.5, 1, testConfig().Rand())
	s := types.State{Key: "a", U: 0}
	next := types.State{Key: "b", U: 0}
	other := types.State{Key: "a", U: 1}
	before := append([]float64(nil), q.Row(other)...)
	q.Row(next)

	tr := types.Transition{State: s, Action: 1, Reward: 0, NextState: next}
	PlainUpdate{}.Apply(q, tr, []types.Experience{
		{State: other, NextState: types.State{Key: "b", U: 1}, Reward: 10},
	})
	assert.Equal(t, before, q.Row(other))
}

func TestCRMUpdateMatchesManualBellman(t *testing.T) {
	batch := []types.Experience{
		{State: types.State{Key: "a", U: 0}, NextState: types.State{Key: "b", U: 0}, Reward: 0, Terminal: false},
		{State: types.State{Key: "a", U: 1}, NextState: types.State{Key: "b", U: 2}, Reward: 0.5, Terminal: false},
		{State: types.State{Key: "a", U: 2}, NextState: types.State{Key: "b", U: 3}, Reward: 1, Terminal: true},
	}
	crm := NewQTable(3, 0.1, 0.9, testConfig().Rand())
	for _, e := range batch {
		crm.Row(e.State)
		crm.Row(e.NextState)
	}
	manual := NewQTable(3, 0.1, 0.9, testConfig().Rand())
	require.NoError(t, manual.Restore(crm.Snapshot()))

	tr := types.Transition{
		State:     batch[1].State,
		Action:    2,
		Reward:    batch[1].Reward,
		NextState: batch[1].NextState,
	}
	td := CRMUpdate{}.Apply(crm, tr, batch)

	expected := make([]float64, len(batch))
	for i, e := range batch {
		expected[i] = manual.Bellman(e.State, 2, e.Reward, e.NextState, e.Terminal)
	}
	assert.Equal(t, manual.Snapshot(), crm.Snapshot())
	assert.Equal(t, expected[1], td)
}

func TestCRMUpdateWithoutBatch(t *testing.T) {
	q := NewQTable(2, 0.1, 0.9, testConfig().Rand())
	s := types.State{Key: "a", U: 0}
	next := types.State{Key: "b", U: 0}
	require.NoError(t, q.Restore(map[string][]float64{s.Hash(): {0, 0}, next.Hash(): {0, 0}}))

	td := CRMUpdate{}.Apply(q, types.Transition{State: s, Action: 0, Reward: 1, NextState: next}, nil)
	assert.InDelta(t, 1.0, td, 1e-12)
	assert.InDelta(t, 0.1, q.Get(s, 0), 1e-12)
}

func TestSnapshotRestore(t *testing.T) {
	q := NewQTable(2, 0.1, 0.9, testConfig().Rand())
	s := types.State{Key: "a", U: 0}
	q.Set(s, 0, 3)
	snap := q.Snapshot()
	snap[s.Hash()][0] = 100
	assert.Equal(t, 3.0, q.Get(s, 0))

	assert.Error(t, q.Restore(map[string][]float64{"x|0": {1, 2, 3}}))
	assert.Equal(t, 3.0, q.Get(s, 0))
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.Alpha = 0
	assert.ErrorIs(t, bad.Validate(), ErrInvalidConfig)

	bad = DefaultConfig()
	bad.Gamma = 1.5
	assert.ErrorIs(t, bad.Validate(), ErrInvalidConfig)

	bad = DefaultConfig()
	bad.MinEpsilon = 2
	assert.ErrorIs(t, bad.Validate(), ErrInvalidConfig)
}

func oneHot(state types.State) []float64 {
	x := make([]float64, 3)
	x[state.U%3] = 1
	return x
}

func TestFunctionApproxLearnsTerminalReward(t *testing.T) {
	net := NewFunctionApprox(oneHot, 3, 4, 2, 0.01, 0.9, testConfig().Rand())
	s := types.State{Key: "a", U: 0}
	next := types.State{Key: "a", U: 1}

	for i := 0; i < 2000; i++ {
		net.Bellman(s, 1, 1, next, true)
	}
	assert.InDelta(t, 1.0, net.Values(s)[1], 0.05)

	// terminal masking ignores the next state's values
	q := net.Values(s)[0]
	td := net.Bellman(s, 0, 0.5, next, true)
	assert.InDelta(t, 0.5-q, td, 1e-12)
}

func TestNetworkLearnerSelectsBestAction(t *testing.T) {
	c := testConfig()
	c.Alpha = 0.01
	c.Hidden = 4
	c.Epsilon = 0
	c.MinEpsilon = 0
	agent := NewNetworkLearner(2, oneHot, 3, c)
	s := types.State{Key: "a", U: 0}
	next := types.State{Key: "a", U: 1}
	for i := 0; i < 2000; i++ {
		agent.Update(types.Transition{State: s, Action: 0, Reward: -1, NextState: next, Terminal: true}, nil)
		agent.Update(types.Transition{State: s, Action: 1, Reward: 1, NextState: next, Terminal: true}, nil)
	}
	assert.Equal(t, 1, agent.SelectAction(s, false))
}
