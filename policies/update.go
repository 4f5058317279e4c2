package policies

import "github.com/zeu5/crm/types"

// UpdateRule decides which Bellman updates one real transition causes
type UpdateRule interface {
	Apply(vf ValueFunction, tr types.Transition, batch []types.Experience) float64
	Name() string
}

// PlainUpdate learns from the real transition only
type PlainUpdate struct{}

var _ UpdateRule = PlainUpdate{}

func (PlainUpdate) Name() string { return "plain" }

func (PlainUpdate) Apply(vf ValueFunction, tr types.Transition, _ []types.Experience) float64 {
	return vf.Bellman(tr.State, tr.Action, tr.Reward, tr.NextState, tr.Terminal)
}

// CRMUpdate applies one Bellman update per counterfactual experience, all
// with the action that was actually taken. The returned TD error is the one
// of the experience generated for the real state.
type CRMUpdate struct{}

var _ UpdateRule = CRMUpdate{}

func (CRMUpdate) Name() string { return "crm" }

func (CRMUpdate) Apply(vf ValueFunction, tr types.Transition, batch []types.Experience) float64 {
	tdError := 0.0
	found := false
	for _, e := range batch {
		td := vf.Bellman(e.State, tr.Action, e.Reward, e.NextState, e.Terminal)
		if !found && e.State == tr.State {
			tdError = td
			found = true
		}
	}
	if !found {
		// no machine, nothing to broadcast
		return vf.Bellman(tr.State, tr.Action, tr.Reward, tr.NextState, tr.Terminal)
	}
	return tdError
}
