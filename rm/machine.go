// Package rm implements reward machines: finite automata over task progress
// whose edges are guarded by propositional formulas and carry rewards.
package rm

import (
	"errors"
	"fmt"

	"github.com/zeu5/crm/formula"
	"github.com/zeu5/crm/types"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

var (
	// ErrConfiguration is returned for empty or malformed transition tables
	ErrConfiguration = errors.New("invalid reward machine configuration")
	// ErrNoTransition is returned when no outgoing guard is satisfied
	ErrNoTransition = errors.New("no transition")
	// ErrInvalidState is returned when stepping from a terminal or unknown state
	ErrInvalidState = errors.New("invalid reward machine state")
)

// Edge is one line of the transition table
type Edge struct {
	From    int
	To      int
	Formula string
	Reward  float64
}

type transition struct {
	to      int
	formula *formula.Formula
	reward  float64
}

// RewardMachine is read-only after construction except for its transition
// cache. Not safe for concurrent use.
type RewardMachine struct {
	edges []Edge
	// outgoing transitions per state, in insertion order
	delta map[int][]transition

	states    []int
	terminals []int
	isTerm    map[int]bool
	initial   int

	policy formula.Policy
	cache  *transitionCache
	// free variables of the guards leaving each state
	stateVars map[int][]string
}

// Option configures a RewardMachine
type Option func(*RewardMachine)

// WithPolicy sets how propositions missing from an assignment evaluate.
// The default is formula.DefaultFalse.
func WithPolicy(policy formula.Policy) Option {
	return func(rm *RewardMachine) {
		rm.policy = policy
	}
}

// New builds a reward machine from its edges. States with outgoing edges are
// non-terminal, the smallest of them is initial; states that only appear as
// targets are terminal.
func New(edges []Edge, opts ...Option) (*RewardMachine, error) {
	if len(edges) == 0 {
		return nil, fmt.Errorf("%w: expected non-empty transition list", ErrConfiguration)
	}
	rm := &RewardMachine{
		edges:     make([]Edge, len(edges)),
		delta:     make(map[int][]transition),
		isTerm:    make(map[int]bool),
		policy:    formula.DefaultFalse,
		stateVars: make(map[int][]string),
	}
	copy(rm.edges, edges)
	for _, opt := range opts {
		opt(rm)
	}

	targets := make(map[int]bool)
	relevant := make(map[string]struct{})
	for i, e := range edges {
		f, err := formula.Parse(e.Formula)
		if err != nil {
			return nil, fmt.Errorf("%w: edge %d (%d -> %d): %w", ErrConfiguration, i, e.From, e.To, err)
		}
		targets[e.To] = true
		for _, v := range f.Variables() {
			relevant[v] = struct{}{}
		}
		t := transition{to: e.To, formula: f, reward: e.Reward}
		// a repeated (from, to) pair replaces the earlier guard but keeps its position
		replaced := false
		for j, existing := range rm.delta[e.From] {
			if existing.to == e.To {
				rm.delta[e.From][j] = t
				replaced = true
				break
			}
		}
		if !replaced {
			rm.delta[e.From] = append(rm.delta[e.From], t)
		}
	}

	rm.states = maps.Keys(rm.delta)
	slices.Sort(rm.states)
	rm.initial = rm.states[0]
	for u := range targets {
		if _, ok := rm.delta[u]; !ok {
			rm.terminals = append(rm.terminals, u)
			rm.isTerm[u] = true
		}
	}
	slices.Sort(rm.terminals)

	for u, ts := range rm.delta {
		vars := make(map[string]struct{})
		for _, t := range ts {
			for _, v := range t.formula.Variables() {
				vars[v] = struct{}{}
			}
		}
		names := maps.Keys(vars)
		slices.Sort(names)
		rm.stateVars[u] = names
	}

	names := maps.Keys(relevant)
	slices.Sort(names)
	cache, err := newTransitionCache(names)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	rm.cache = cache
	return rm, nil
}

var _ types.Machine = &RewardMachine{}

// Reset returns the initial state
func (rm *RewardMachine) Reset() int {
	return rm.initial
}

// Initial state
func (rm *RewardMachine) Initial() int {
	return rm.initial
}

// States returns the non-terminal states in ascending order, the states
// counterfactual experiences are generated for
func (rm *RewardMachine) States() []int {
	return slices.Clone(rm.states)
}

// Terminals returns the terminal states in ascending order
func (rm *RewardMachine) Terminals() []int {
	return slices.Clone(rm.terminals)
}

// AllStates returns every state, terminal or not, in ascending order
func (rm *RewardMachine) AllStates() []int {
	all := append(slices.Clone(rm.states), rm.terminals...)
	slices.Sort(all)
	return all
}

// Propositions returns the sorted names referenced by at least one guard.
// Bit i of the cache key is the i-th of these.
func (rm *RewardMachine) Propositions() []string {
	return rm.cache.propositions()
}

// Edges returns the transition table in the order it was given
func (rm *RewardMachine) Edges() []Edge {
	return slices.Clone(rm.edges)
}

// IsTerminal reports whether u is a terminal state
func (rm *RewardMachine) IsTerminal(u int) bool {
	return rm.isTerm[u]
}

// Reward of the edge u1 -> u2
func (rm *RewardMachine) Reward(u1, u2 int) (float64, error) {
	for _, t := range rm.delta[u1] {
		if t.to == u2 {
			return t.reward, nil
		}
	}
	return 0, fmt.Errorf("%w: no edge %d -> %d", ErrInvalidState, u1, u2)
}

// NextState returns the target of the first outgoing edge of u1 whose guard
// holds under props. Results are memoized by the bitmask of the relevant
// propositions.
func (rm *RewardMachine) NextState(u1 int, props types.Props) (int, error) {
	ts, ok := rm.delta[u1]
	if !ok {
		if rm.isTerm[u1] {
			return 0, fmt.Errorf("%w: state %d is terminal", ErrInvalidState, u1)
		}
		return 0, fmt.Errorf("%w: unknown state %d", ErrInvalidState, u1)
	}
	if rm.policy == formula.Strict {
		// an absent name and a false one share a bit, check before trusting the cache
		for _, name := range rm.stateVars[u1] {
			if _, ok := props[name]; !ok {
				return 0, fmt.Errorf("%w: unbound proposition %q at state %d", formula.ErrEvaluation, name, u1)
			}
		}
	}

	mask := rm.cache.mask(props)
	if u2, ok := rm.cache.get(u1, mask); ok {
		return u2, nil
	}
	for _, t := range ts {
		holds, err := t.formula.Eval(props, rm.policy)
		if err != nil {
			return 0, fmt.Errorf("state %d -> %d: %w", u1, t.to, err)
		}
		if holds {
			rm.cache.put(u1, mask, t.to)
			return t.to, nil
		}
	}
	return 0, fmt.Errorf("%w: state %d, propositions %v", ErrNoTransition, u1, props)
}

// Experiences re-runs every non-terminal state against the propositions of
// one real environment transition, one experience per state in ascending
// state order
func (rm *RewardMachine) Experiences(key, nextKey string, props types.Props) ([]types.Experience, error) {
	experiences := make([]types.Experience, 0, len(rm.states))
	for _, u1 := range rm.states {
		u2, err := rm.NextState(u1, props)
		if err != nil {
			return nil, err
		}
		reward, _ := rm.Reward(u1, u2)
		experiences = append(experiences, types.Experience{
			State:     types.State{Key: key, U: u1},
			NextState: types.State{Key: nextKey, U: u2},
			Reward:    reward,
			Terminal:  rm.isTerm[u2],
		})
	}
	return experiences, nil
}

// Step advances from state along the real transition and also returns the
// counterfactual batch for the same propositions
func (rm *RewardMachine) Step(state types.State, nextKey string, props types.Props) (types.State, float64, bool, []types.Experience, error) {
	if rm.isTerm[state.U] {
		return types.State{}, 0, false, nil, fmt.Errorf("%w: step from terminal state %d", ErrInvalidState, state.U)
	}
	if _, ok := rm.delta[state.U]; !ok {
		return types.State{}, 0, false, nil, fmt.Errorf("%w: unknown state %d", ErrInvalidState, state.U)
	}
	experiences, err := rm.Experiences(state.Key, nextKey, props)
	if err != nil {
		return types.State{}, 0, false, nil, err
	}
	for _, e := range experiences {
		if e.State.U == state.U {
			return e.NextState, e.Reward, e.Terminal, experiences, nil
		}
	}
	// unreachable, every non-terminal state has an experience
	return types.State{}, 0, false, nil, fmt.Errorf("%w: state %d", ErrInvalidState, state.U)
}
