package grid

import (
	"github.com/zeu5/crm/policies"
	"github.com/zeu5/crm/types"
)

// NumFeatures is the length of the vectors produced by Encoder
func NumFeatures(size, machineStates int) int {
	return 2*size + 2 + machineStates
}

// Encoder one-hot encodes the position and RM state of a door-key composite
// state and appends the inventory flags. RM states must be in
// [0, machineStates).
func Encoder(size, machineStates int) policies.Encoder {
	return func(state types.State) []float64 {
		x := make([]float64, NumFeatures(size, machineStates))
		obs, err := ParseKey(state.Key)
		if err != nil {
			panic(err)
		}
		x[obs.X] = 1
		x[size+obs.Y] = 1
		if obs.HasKey {
			x[2*size] = 1
		}
		if obs.DoorOpen {
			x[2*size+1] = 1
		}
		if state.U >= 0 && state.U < machineStates {
			x[2*size+2+state.U] = 1
		}
		return x
	}
}
