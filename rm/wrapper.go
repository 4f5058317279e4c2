package rm

import (
	"fmt"
	"strconv"

	"github.com/zeu5/crm/types"
)

// Wrapper turns an environment into one whose rewards and episode ends come
// from reward machines. Each reset rotates to the next machine. Observations
// carry a one-hot encoding of the (machine, state) pair so that learners
// without a composite state can still condition on task progress.
type Wrapper struct {
	env      types.Environment
	machines []*RewardMachine

	// feature index per (machine, state)
	features    map[[2]int]int
	numFeatures int

	current int
	u       int
	obs     types.Observation
	last    *CRMParams
}

// CRMParams is the raw transition of the last step, what a counterfactual
// learner needs to generate its batch
type CRMParams struct {
	Observation     types.Observation
	Action          int
	NextObservation types.Observation
	Terminated      bool
	Truncated       bool
	Props           types.Props
}

// WrappedObservation is the inner observation extended with RM features
type WrappedObservation struct {
	Inner    types.Observation
	Machine  int
	U        int
	Done     bool
	Features []float64
}

var _ types.Observation = &WrappedObservation{}

func (w *WrappedObservation) Hash() string {
	if w.Done {
		return w.Inner.Hash() + "#done"
	}
	return w.Inner.Hash() + "#" + strconv.Itoa(w.Machine) + ":" + strconv.Itoa(w.U)
}

var _ types.Environment = &Wrapper{}

func NewWrapper(env types.Environment, machines ...*RewardMachine) (*Wrapper, error) {
	if len(machines) == 0 {
		return nil, fmt.Errorf("%w: wrapper needs at least one reward machine", ErrConfiguration)
	}
	w := &Wrapper{
		env:      env,
		machines: machines,
		features: make(map[[2]int]int),
		// the first reset rotates to machine 0
		current: len(machines) - 1,
	}
	for id, m := range machines {
		for _, u := range m.AllStates() {
			w.features[[2]int{id, u}] = w.numFeatures
			w.numFeatures += 1
		}
	}
	return w, nil
}

// NumFeatures is the length of the RM feature vector
func (w *Wrapper) NumFeatures() int {
	return w.numFeatures
}

// Current returns the active machine index and its state
func (w *Wrapper) Current() (int, int) {
	return w.current, w.u
}

// LastTransition returns the raw transition of the last step, nil before the first step
func (w *Wrapper) LastTransition() *CRMParams {
	return w.last
}

func (w *Wrapper) NumActions() int {
	return w.env.NumActions()
}

func (w *Wrapper) Reset() (types.Observation, error) {
	obs, err := w.env.Reset()
	if err != nil {
		return nil, err
	}
	w.obs = obs
	w.current = (w.current + 1) % len(w.machines)
	w.u = w.machines[w.current].Reset()
	w.last = nil
	return w.observation(obs, false), nil
}

func (w *Wrapper) Step(action int) (types.StepResult, error) {
	result, err := w.env.Step(action)
	if err != nil {
		return types.StepResult{}, err
	}
	w.last = &CRMParams{
		Observation:     w.obs,
		Action:          action,
		NextObservation: result.Observation,
		Terminated:      result.Terminated,
		Truncated:       result.Truncated,
		Props:           result.Props,
	}
	w.obs = result.Observation

	machine := w.machines[w.current]
	next, err := machine.NextState(w.u, result.Props)
	if err != nil {
		return types.StepResult{}, err
	}
	reward, err := machine.Reward(w.u, next)
	if err != nil {
		return types.StepResult{}, err
	}
	w.u = next
	rmDone := machine.IsTerminal(next)
	done := rmDone || result.Terminated || result.Truncated

	return types.StepResult{
		Observation: w.observation(result.Observation, done),
		Reward:      reward,
		Terminated:  rmDone || result.Terminated,
		Truncated:   result.Truncated,
		Props:       result.Props,
	}, nil
}

func (w *Wrapper) Close() error {
	return w.env.Close()
}

func (w *Wrapper) observation(inner types.Observation, done bool) *WrappedObservation {
	features := make([]float64, w.numFeatures)
	if !done {
		features[w.features[[2]int{w.current, w.u}]] = 1
	}
	return &WrappedObservation{
		Inner:    inner,
		Machine:  w.current,
		U:        w.u,
		Done:     done,
		Features: features,
	}
}
