package policies

import (
	"fmt"
	"math"

	"github.com/zeu5/crm/types"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Encoder maps a composite state to a fixed length feature vector
type Encoder func(state types.State) []float64

// FunctionApprox estimates action values with a one hidden layer tanh
// network trained by semi-gradient TD
type FunctionApprox struct {
	encoder     Encoder
	numFeatures int

	// hidden x features
	w1 *mat.Dense
	b1 *mat.VecDense
	// actions x hidden
	w2 *mat.Dense
	b2 *mat.VecDense

	alpha float64
	gamma float64
}

var _ ValueFunction = &FunctionApprox{}

func NewFunctionApprox(encoder Encoder, numFeatures, hidden, numActions int, alpha, gamma float64, rand *rand.Rand) *FunctionApprox {
	if hidden < 1 {
		hidden = 1
	}
	return &FunctionApprox{
		encoder:     encoder,
		numFeatures: numFeatures,
		w1:          mat.NewDense(hidden, numFeatures, uniform(rand, hidden*numFeatures, 1/math.Sqrt(float64(numFeatures)))),
		b1:          mat.NewVecDense(hidden, nil),
		w2:          mat.NewDense(numActions, hidden, uniform(rand, numActions*hidden, 1/math.Sqrt(float64(hidden)))),
		b2:          mat.NewVecDense(numActions, nil),
		alpha:       alpha,
		gamma:       gamma,
	}
}

func uniform(rand *rand.Rand, n int, scale float64) []float64 {
	data := make([]float64, n)
	for i := range data {
		data[i] = (2*rand.Float64() - 1) * scale
	}
	return data
}

func (f *FunctionApprox) encode(state types.State) *mat.VecDense {
	x := f.encoder(state)
	if len(x) != f.numFeatures {
		panic(fmt.Sprintf("encoder returned %d features for %s, expected %d", len(x), state, f.numFeatures))
	}
	return mat.NewVecDense(len(x), x)
}

func (f *FunctionApprox) forward(x *mat.VecDense) (*mat.VecDense, *mat.VecDense) {
	hiddenLen, _ := f.w1.Dims()
	actions, _ := f.w2.Dims()

	h := mat.NewVecDense(hiddenLen, nil)
	h.MulVec(f.w1, x)
	h.AddVec(h, f.b1)
	for i := 0; i < hiddenLen; i++ {
		h.SetVec(i, math.Tanh(h.AtVec(i)))
	}
	q := mat.NewVecDense(actions, nil)
	q.MulVec(f.w2, h)
	q.AddVec(q, f.b2)
	return h, q
}

func (f *FunctionApprox) Values(state types.State) []float64 {
	_, q := f.forward(f.encode(state))
	return mat.Col(nil, 0, q)
}

func (f *FunctionApprox) Bellman(state types.State, action int, reward float64, next types.State, terminal bool) float64 {
	x := f.encode(state)
	h, q := f.forward(x)
	future := 0.0
	if !terminal {
		_, qNext := f.forward(f.encode(next))
		future = mat.Max(qNext)
	}
	tdError := reward + f.gamma*future - q.AtVec(action)

	// hidden gradient uses the output weights before they move
	hiddenLen := h.Len()
	dh := mat.NewVecDense(hiddenLen, nil)
	for i := 0; i < hiddenLen; i++ {
		hi := h.AtVec(i)
		dh.SetVec(i, tdError*f.w2.At(action, i)*(1-hi*hi))
	}

	floats.AddScaled(f.w2.RawRowView(action), f.alpha*tdError, mat.Col(nil, 0, h))
	f.b2.SetVec(action, f.b2.AtVec(action)+f.alpha*tdError)

	var grad mat.Dense
	grad.Outer(f.alpha, dh, x)
	f.w1.Add(f.w1, &grad)
	f.b1.AddScaledVec(f.b1, f.alpha, dh)

	return tdError
}
