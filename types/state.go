package types

import (
	"fmt"
	"strconv"
	"strings"
)

// State is the composite agent state: environment feature key paired with
// the reward machine state. It is the key of the value table.
type State struct {
	Key string
	U   int
}

// NewState pairs an observation with an RM state
func NewState(obs Observation, u int) State {
	return State{Key: obs.Hash(), U: u}
}

// Hash is the flat string form used for snapshots, "<key>|<u>"
func (s State) Hash() string {
	return s.Key + "|" + strconv.Itoa(s.U)
}

func (s State) String() string {
	return fmt.Sprintf("(%s, %d)", s.Key, s.U)
}

// ParseStateHash inverts State.Hash. The key may itself contain '|'.
func ParseStateHash(h string) (State, error) {
	i := strings.LastIndex(h, "|")
	if i < 0 {
		return State{}, fmt.Errorf("invalid state hash %q", h)
	}
	u, err := strconv.Atoi(h[i+1:])
	if err != nil {
		return State{}, fmt.Errorf("invalid state hash %q: %w", h, err)
	}
	return State{Key: h[:i], U: u}, nil
}

// Experience is one counterfactual transition generated for a single RM state
type Experience struct {
	State     State
	NextState State
	Reward    float64
	Terminal  bool
}

// Transition is the real transition the agent experienced
type Transition struct {
	State     State
	Action    int
	Reward    float64
	NextState State
	Terminal  bool
}

// Machine is the reward machine as seen by the training loop
type Machine interface {
	// Initial RM state
	Reset() int
	// Real next state, reward and terminality plus the counterfactual batch
	Step(state State, nextKey string, props Props) (State, float64, bool, []Experience, error)
}

// Learner selects actions and learns from transitions
type Learner interface {
	SelectAction(state State, explore bool) int
	// Update returns the TD error of the real transition
	Update(tr Transition, batch []Experience) float64
	DecayEpsilon()
	Epsilon() float64
}
