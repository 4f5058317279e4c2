package policies

import (
	"github.com/zeu5/crm/types"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
)

// Agent is an epsilon-greedy learner composed of a value function and an
// update rule
type Agent struct {
	vf         ValueFunction
	rule       UpdateRule
	numActions int

	epsilon      float64
	epsilonDecay float64
	minEpsilon   float64
	rand         *rand.Rand
}

var _ types.Learner = &Agent{}

func NewAgent(vf ValueFunction, rule UpdateRule, numActions int, config Config, rand *rand.Rand) *Agent {
	return &Agent{
		vf:           vf,
		rule:         rule,
		numActions:   numActions,
		epsilon:      config.Epsilon,
		epsilonDecay: config.EpsilonDecay,
		minEpsilon:   config.MinEpsilon,
		rand:         rand,
	}
}

// NewQLearner is tabular Q-learning on the real transition
func NewQLearner(numActions int, config Config) *Agent {
	r := config.Rand()
	return NewAgent(NewQTable(numActions, config.Alpha, config.Gamma, r), PlainUpdate{}, numActions, config, r)
}

// NewCRMLearner is tabular Q-learning over every counterfactual experience
func NewCRMLearner(numActions int, config Config) *Agent {
	r := config.Rand()
	return NewAgent(NewQTable(numActions, config.Alpha, config.Gamma, r), CRMUpdate{}, numActions, config, r)
}

// NewNetworkLearner is counterfactual learning over a small network
func NewNetworkLearner(numActions int, encoder Encoder, numFeatures int, config Config) *Agent {
	r := config.Rand()
	net := NewFunctionApprox(encoder, numFeatures, config.Hidden, numActions, config.Alpha, config.Gamma, r)
	return NewAgent(net, CRMUpdate{}, numActions, config, r)
}

func (a *Agent) SelectAction(state types.State, explore bool) int {
	if explore && a.rand.Float64() < a.epsilon {
		return a.rand.Intn(a.numActions)
	}
	return floats.MaxIdx(a.vf.Values(state))
}

func (a *Agent) Update(tr types.Transition, batch []types.Experience) float64 {
	return a.rule.Apply(a.vf, tr, batch)
}

func (a *Agent) DecayEpsilon() {
	a.epsilon *= a.epsilonDecay
	if a.epsilon < a.minEpsilon {
		a.epsilon = a.minEpsilon
	}
}

func (a *Agent) Epsilon() float64 {
	return a.epsilon
}

// ValueFunction returns the learned estimates
func (a *Agent) ValueFunction() ValueFunction {
	return a.vf
}

func (a *Agent) Rule() UpdateRule {
	return a.rule
}
