package rm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeu5/crm/formula"
	"github.com/zeu5/crm/types"
)

func doorKeyEdges() []Edge {
	return []Edge{
		{From: 0, To: 0, Formula: "!key", Reward: 0},
		{From: 0, To: 1, Formula: "key", Reward: 0},
		{From: 1, To: 1, Formula: "!door", Reward: 0},
		{From: 1, To: 2, Formula: "door", Reward: 0},
		{From: 2, To: 2, Formula: "!goal", Reward: 0},
		{From: 2, To: 3, Formula: "goal", Reward: 1},
	}
}

func TestNewRejectsEmpty(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = New([]Edge{{From: 0, To: 1, Formula: "a &", Reward: 0}})
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.ErrorIs(t, err, formula.ErrEvaluation)
}

func TestStatesAndInitial(t *testing.T) {
	machine, err := New([]Edge{
		{From: 5, To: 7, Formula: "a", Reward: 1},
		{From: 5, To: 5, Formula: "!a", Reward: 0},
		{From: 3, To: 5, Formula: "b", Reward: 0},
		{From: 3, To: 3, Formula: "!b", Reward: 0},
		{From: 3, To: 9, Formula: "false", Reward: -1},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, machine.Initial())
	assert.Equal(t, 3, machine.Reset())
	assert.Equal(t, []int{3, 5}, machine.States())
	assert.Equal(t, []int{7, 9}, machine.Terminals())
	assert.Equal(t, []int{3, 5, 7, 9}, machine.AllStates())
	assert.True(t, machine.IsTerminal(7))
	assert.False(t, machine.IsTerminal(5))
	assert.Equal(t, []string{"a", "b"}, machine.Propositions())
}

func TestNextStateFirstMatchWins(t *testing.T) {
	machine, err := New([]Edge{
		{From: 0, To: 2, Formula: "a", Reward: 2},
		{From: 0, To: 1, Formula: "a | b", Reward: 1},
		{From: 0, To: 0, Formula: "!a & !b", Reward: 0},
	})
	require.NoError(t, err)

	u, err := machine.NextState(0, types.Props{"a": true, "b": true})
	require.NoError(t, err)
	assert.Equal(t, 2, u)

	u, err = machine.NextState(0, types.Props{"a": false, "b": true})
	require.NoError(t, err)
	assert.Equal(t, 1, u)

	r, err := machine.Reward(0, 1)
	require.NoError(t, err)
	assert.Equal(t, 1.0, r)

	_, err = machine.Reward(0, 7)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestNoTransition(t *testing.T) {
	machine, err := New([]Edge{
		{From: 0, To: 1, Formula: "a", Reward: 1},
		{From: 0, To: 0, Formula: "b", Reward: 0},
	})
	require.NoError(t, err)

	_, err = machine.NextState(0, types.Props{"a": false, "b": false})
	assert.ErrorIs(t, err, ErrNoTransition)

	_, _, _, _, err = machine.Step(types.State{Key: "s", U: 0}, "s", types.Props{})
	assert.ErrorIs(t, err, ErrNoTransition)
}

func TestCacheIsTransparent(t *testing.T) {
	machine, err := New(doorKeyEdges())
	require.NoError(t, err)

	first, err := machine.NextState(0, types.Props{"key": true})
	require.NoError(t, err)
	// irrelevant names change nothing and hit the cache
	second, err := machine.NextState(0, types.Props{"key": true, "lava": true, "wall": false})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, second)

	hits, misses := machine.CacheStats()
	assert.Equal(t, 1, hits)
	assert.Equal(t, 1, misses)

	// a fresh machine computes the same answer without a warm cache
	fresh, err := New(doorKeyEdges())
	require.NoError(t, err)
	third, err := fresh.NextState(0, types.Props{"key": true, "lava": true})
	require.NoError(t, err)
	assert.Equal(t, first, third)
}

func TestStrictPolicyIsNotHiddenByCache(t *testing.T) {
	machine, err := New(doorKeyEdges(), WithPolicy(formula.Strict))
	require.NoError(t, err)

	u, err := machine.NextState(0, types.Props{"key": false, "door": false, "goal": false})
	require.NoError(t, err)
	assert.Equal(t, 0, u)

	// same bitmask, but the proposition is absent
	_, err = machine.NextState(0, types.Props{})
	assert.ErrorIs(t, err, formula.ErrEvaluation)

	// only the guards of the current state need to be bound
	u, err = machine.NextState(1, types.Props{"door": true})
	require.NoError(t, err)
	assert.Equal(t, 2, u)
}

func TestExperiencesMatchStep(t *testing.T) {
	machine, err := New(doorKeyEdges())
	require.NoError(t, err)
	props := types.Props{"key": true, "door": true, "goal": true}

	experiences, err := machine.Experiences("a", "b", props)
	require.NoError(t, err)
	require.Len(t, experiences, len(machine.States()))

	expected := []types.Experience{
		{State: types.State{Key: "a", U: 0}, NextState: types.State{Key: "b", U: 1}, Reward: 0, Terminal: false},
		{State: types.State{Key: "a", U: 1}, NextState: types.State{Key: "b", U: 2}, Reward: 0, Terminal: false},
		{State: types.State{Key: "a", U: 2}, NextState: types.State{Key: "b", U: 3}, Reward: 1, Terminal: true},
	}
	assert.Equal(t, expected, experiences)

	for _, u := range machine.States() {
		next, reward, terminal, batch, err := machine.Step(types.State{Key: "a", U: u}, "b", props)
		require.NoError(t, err)
		assert.Equal(t, experiences, batch)
		assert.Equal(t, experiences[u].NextState, next)
		assert.Equal(t, experiences[u].Reward, reward)
		assert.Equal(t, experiences[u].Terminal, terminal)
	}
}

func TestStepFromTerminalFails(t *testing.T) {
	machine, err := New(doorKeyEdges())
	require.NoError(t, err)

	_, _, _, _, err = machine.Step(types.State{Key: "x", U: 3}, "y", types.Props{})
	assert.ErrorIs(t, err, ErrInvalidState)

	_, _, _, _, err = machine.Step(types.State{Key: "x", U: 42}, "y", types.Props{})
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = machine.NextState(3, types.Props{})
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestRepeatedEdgeKeepsPosition(t *testing.T) {
	machine, err := New([]Edge{
		{From: 0, To: 1, Formula: "a", Reward: 1},
		{From: 0, To: 2, Formula: "true", Reward: 0},
		{From: 0, To: 1, Formula: "b", Reward: 5},
	})
	require.NoError(t, err)

	u, err := machine.NextState(0, types.Props{"b": true})
	require.NoError(t, err)
	assert.Equal(t, 1, u)
	r, err := machine.Reward(0, 1)
	require.NoError(t, err)
	assert.Equal(t, 5.0, r)

	u, err = machine.NextState(0, types.Props{"a": true})
	require.NoError(t, err)
	assert.Equal(t, 2, u)
}
