package types

// Observation is what the environment returns on reset and step.
// The learner only ever sees its Hash, the environment feature key.
type Observation interface {
	// Should be deterministic
	Hash() string
}

// Props is the proposition assignment reported by the environment after a step
type Props map[string]bool

// Copy returns an independent assignment
func (p Props) Copy() Props {
	out := make(Props, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// StepResult bundles everything the environment reports for one step
type StepResult struct {
	Observation Observation
	Reward      float64
	Terminated  bool
	Truncated   bool
	Props       Props
}

// Environment the agent interacts with. Truncation (a step budget) is the
// environment's responsibility.
type Environment interface {
	// Reset called at the start of each episode
	Reset() (Observation, error)
	Step(action int) (StepResult, error)
	Close() error
	// Number of discrete actions
	NumActions() int
}

// ActionNamer is optionally implemented by environments to make verbose
// evaluation output readable
type ActionNamer interface {
	ActionName(action int) string
}
