package types

import "encoding/json"

// Trace of an episode as (state, action, reward, nextState) steps
type Trace struct {
	states     []State
	actions    []int
	rewards    []float64
	nextStates []State
}

func NewTrace() *Trace {
	return &Trace{
		states:     make([]State, 0),
		actions:    make([]int, 0),
		rewards:    make([]float64, 0),
		nextStates: make([]State, 0),
	}
}

func (t *Trace) Slice(from, to int) *Trace {
	slicedTrace := NewTrace()
	for i := from; i < to; i++ {
		slicedTrace.Append(t.states[i], t.actions[i], t.rewards[i], t.nextStates[i])
	}
	return slicedTrace
}

func (t *Trace) Append(state State, action int, reward float64, nextState State) {
	t.states = append(t.states, state)
	t.actions = append(t.actions, action)
	t.rewards = append(t.rewards, reward)
	t.nextStates = append(t.nextStates, nextState)
}

func (t *Trace) Len() int {
	return len(t.states)
}

func (t *Trace) Get(i int) (State, int, float64, State, bool) {
	if i < 0 || i >= len(t.states) {
		return State{}, 0, 0, State{}, false
	}
	return t.states[i], t.actions[i], t.rewards[i], t.nextStates[i], true
}

func (t *Trace) Last() (State, int, float64, State, bool) {
	return t.Get(len(t.states) - 1)
}

// Total reward collected along the trace
func (t *Trace) Return() float64 {
	total := 0.0
	for _, r := range t.rewards {
		total += r
	}
	return total
}

type traceStep struct {
	State     string  `json:"state"`
	Action    int     `json:"action"`
	Reward    float64 `json:"reward"`
	NextState string  `json:"next_state"`
}

func (t *Trace) MarshalJSON() ([]byte, error) {
	steps := make([]traceStep, t.Len())
	for i := range steps {
		steps[i] = traceStep{
			State:     t.states[i].Hash(),
			Action:    t.actions[i],
			Reward:    t.rewards[i],
			NextState: t.nextStates[i].Hash(),
		}
	}
	return json.Marshal(steps)
}
