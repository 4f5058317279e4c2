package policies

import (
	"fmt"

	"github.com/zeu5/crm/types"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
)

// ValueFunction estimates action values of composite states
type ValueFunction interface {
	// Values returns the action values of state. Callers must not modify it.
	Values(state types.State) []float64
	// Bellman moves the value of (state, action) towards
	// reward + gamma * max(next) and returns the TD error. The future term is
	// zero when terminal.
	Bellman(state types.State, action int, reward float64, next types.State, terminal bool) float64
}

// QTable maps composite states to action value rows. Rows are created on
// first access with independent uniform [0,1) values.
type QTable struct {
	table      map[string][]float64
	numActions int
	rand       *rand.Rand

	alpha float64
	gamma float64
}

var _ ValueFunction = &QTable{}

func NewQTable(numActions int, alpha, gamma float64, rand *rand.Rand) *QTable {
	return &QTable{
		table:      make(map[string][]float64),
		numActions: numActions,
		rand:       rand,
		alpha:      alpha,
		gamma:      gamma,
	}
}

// Row returns the (shared) row of state, creating it if needed
func (q *QTable) Row(state types.State) []float64 {
	key := state.Hash()
	row, ok := q.table[key]
	if !ok {
		row = make([]float64, q.numActions)
		for i := range row {
			row[i] = q.rand.Float64()
		}
		q.table[key] = row
	}
	return row
}

func (q *QTable) Values(state types.State) []float64 {
	return q.Row(state)
}

func (q *QTable) Get(state types.State, action int) float64 {
	return q.Row(state)[action]
}

func (q *QTable) Set(state types.State, action int, val float64) {
	q.Row(state)[action] = val
}

// Max returns the first action with the highest value and that value
func (q *QTable) Max(state types.State) (int, float64) {
	row := q.Row(state)
	i := floats.MaxIdx(row)
	return i, row[i]
}

func (q *QTable) Bellman(state types.State, action int, reward float64, next types.State, terminal bool) float64 {
	future := 0.0
	if !terminal {
		_, future = q.Max(next)
	}
	current := q.Get(state, action)
	tdError := reward + q.gamma*future - current
	q.Set(state, action, current+q.alpha*tdError)
	return tdError
}

func (q *QTable) HasState(state types.State) bool {
	_, ok := q.table[state.Hash()]
	return ok
}

// Len is the number of states touched so far
func (q *QTable) Len() int {
	return len(q.table)
}

func (q *QTable) NumActions() int {
	return q.numActions
}

// Snapshot copies the table keyed by composite state hash
func (q *QTable) Snapshot() map[string][]float64 {
	out := make(map[string][]float64, len(q.table))
	for k, row := range q.table {
		out[k] = append([]float64(nil), row...)
	}
	return out
}

// Restore replaces the table with a snapshot
func (q *QTable) Restore(snapshot map[string][]float64) error {
	table := make(map[string][]float64, len(snapshot))
	for k, row := range snapshot {
		if len(row) != q.numActions {
			return fmt.Errorf("state %s: expected %d action values, got %d", k, q.numActions, len(row))
		}
		table[k] = append([]float64(nil), row...)
	}
	q.table = table
	return nil
}
