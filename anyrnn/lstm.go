package anyrnn

import (
	"errors"
	"math"
	"math/rand"

	"github.com/YewRongDe/HTR"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvecsave"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

const lstmRememberBias = 1

func init() {
	var l LSTMGate
	serializer.RegisterTypedDeserializer(l.SerializerType(), DeserializeLSTMGate)
	var lstm LSTM
	serializer.RegisterTypedDeserializer(lstm.SerializerType(), DeserializeLSTM)
}

// LSTM is a long short-term memory block.
//
// The block starts every sequence from a zero cell and a
// zero hidden state.
// Its output at each timestep is the new hidden state.
type LSTM struct {
	InValue  *LSTMGate
	In       *LSTMGate
	Remember *LSTMGate
	Output   *LSTMGate
}

// DeserializeLSTM deserializes an LSTM.
func DeserializeLSTM(d []byte) (*LSTM, error) {
	var res LSTM
	err := serializer.DeserializeAny(d, &res.InValue, &res.In, &res.Remember, &res.Output)
	if err != nil {
		return nil, essentials.AddCtx("deserialize LSTM", err)
	}
	return &res, nil
}

// NewLSTM creates a new, randomized LSTM.
//
// The remember gates of the LSTM are initially biased to
// remember things.
//
// If r is nil, the global random source is used.
func NewLSTM(c anyvec.Creator, r *rand.Rand, in, state int) *LSTM {
	res := &LSTM{
		InValue:  NewLSTMGate(c, r, in, state, htr.Tanh),
		In:       NewLSTMGate(c, r, in, state, htr.Sigmoid),
		Remember: NewLSTMGate(c, r, in, state, htr.Sigmoid),
		Output:   NewLSTMGate(c, r, in, state, htr.Sigmoid),
	}
	res.Remember.Biases.Vector.AddScalar(c.MakeNumeric(lstmRememberBias))
	return res
}

// InCount returns the input size.
func (l *LSTM) InCount() int {
	return l.In.InCount()
}

// StateCount returns the size of the hidden state, which
// is also the output size.
func (l *LSTM) StateCount() int {
	return l.In.StateCount()
}

// Start produces a zero start state.
func (l *LSTM) Start(n int) State {
	c := l.In.Biases.Vector.Creator()
	return &lstmState{
		N:      n,
		Cell:   c.MakeVector(n * l.StateCount()),
		Hidden: c.MakeVector(n * l.StateCount()),
	}
}

// Step performs one timestep.
func (l *LSTM) Step(s State, in anyvec.Vector) Res {
	st := s.(*lstmState)
	n := st.N
	res := &lstmRes{
		InPool:     anydiff.NewVar(in),
		HiddenPool: anydiff.NewVar(st.Hidden),
		CellPool:   anydiff.NewVar(st.Cell),
	}

	inValue := l.InValue.Apply(res.InPool, res.HiddenPool, n)
	inGate := l.In.Apply(res.InPool, res.HiddenPool, n)
	remember := l.Remember.Apply(res.InPool, res.HiddenPool, n)
	output := l.Output.Apply(res.InPool, res.HiddenPool, n)

	res.NewCell = anydiff.Add(
		anydiff.Mul(remember, res.CellPool),
		anydiff.Mul(inGate, inValue),
	)
	res.NewCellPool = anydiff.NewVar(res.NewCell.Output())
	res.Out = anydiff.Mul(output, anydiff.Tanh(res.NewCellPool))

	res.OutState = &lstmState{N: n, Cell: res.NewCell.Output(), Hidden: res.Out.Output()}

	res.V = anydiff.MergeVarSets(res.NewCell.Vars(), res.Out.Vars())
	for _, p := range res.pools() {
		res.V.Del(p)
	}
	return res
}

// Parameters returns the parameters of the block.
func (l *LSTM) Parameters() []*anydiff.Var {
	var res []*anydiff.Var
	for _, g := range []*LSTMGate{l.InValue, l.In, l.Remember, l.Output} {
		res = append(res, g.Parameters()...)
	}
	return res
}

// SerializerType returns the unique ID used to serialize
// an LSTM with the serializer package.
func (l *LSTM) SerializerType() string {
	return "github.com/YewRongDe/HTR/anyrnn.LSTM"
}

// Serialize serializes the LSTM.
func (l *LSTM) Serialize() ([]byte, error) {
	return serializer.SerializeAny(l.InValue, l.In, l.Remember, l.Output)
}

// An LSTMGate computes a value based on the previous
// hidden state and the input.
type LSTMGate struct {
	StateWeights *anydiff.Var
	InputWeights *anydiff.Var
	Biases       *anydiff.Var
	Activation   htr.Activation
}

// DeserializeLSTMGate deserializes an LSTMGate.
func DeserializeLSTMGate(d []byte) (*LSTMGate, error) {
	var sw, iw, b *anyvecsave.S
	var a htr.Activation
	if err := serializer.DeserializeAny(d, &sw, &iw, &b, &a); err != nil {
		return nil, essentials.AddCtx("deserialize LSTMGate", err)
	}
	state := b.Vector.Len()
	if sw.Vector.Len() != state*state {
		return nil, errors.New("deserialize LSTMGate: incorrect state matrix size")
	}
	if iw.Vector.Len()%state != 0 {
		return nil, errors.New("deserialize LSTMGate: incorrect input matrix size")
	}
	return &LSTMGate{
		StateWeights: anydiff.NewVar(sw.Vector),
		InputWeights: anydiff.NewVar(iw.Vector),
		Biases:       anydiff.NewVar(b.Vector),
		Activation:   a,
	}, nil
}

// NewLSTMGate creates a randomized LSTM gate.
//
// Both weight matrices are scaled so that each output has
// unit variance for unit-variance inputs.
func NewLSTMGate(c anyvec.Creator, r *rand.Rand, in, state int,
	activation htr.Activation) *LSTMGate {
	res := &LSTMGate{
		StateWeights: anydiff.NewVar(c.MakeVector(state * state)),
		InputWeights: anydiff.NewVar(c.MakeVector(state * in)),
		Biases:       anydiff.NewVar(c.MakeVector(state)),
		Activation:   activation,
	}
	anyvec.Rand(res.StateWeights.Vector, anyvec.Normal, r)
	anyvec.Rand(res.InputWeights.Vector, anyvec.Normal, r)
	res.StateWeights.Vector.Scale(c.MakeNumeric(1 / math.Sqrt(float64(state))))
	res.InputWeights.Vector.Scale(c.MakeNumeric(1 / math.Sqrt(float64(in))))
	return res
}

// InCount returns the input size.
func (l *LSTMGate) InCount() int {
	return l.InputWeights.Vector.Len() / l.StateCount()
}

// StateCount returns the output size.
func (l *LSTMGate) StateCount() int {
	return l.Biases.Vector.Len()
}

// Apply computes the gate for a batch of n inputs and
// hidden states.
func (l *LSTMGate) Apply(in, hidden anydiff.Res, n int) anydiff.Res {
	state := l.StateCount()
	wState := applyWeights(state, state, l.StateWeights, hidden)
	wInput := applyWeights(l.InCount(), state, l.InputWeights, in)
	biased := anydiff.AddRepeated(anydiff.Add(wState, wInput), l.Biases)
	return l.Activation.Apply(biased, n, htr.Train)
}

// Parameters returns the parameters of the gate.
func (l *LSTMGate) Parameters() []*anydiff.Var {
	return []*anydiff.Var{l.StateWeights, l.InputWeights, l.Biases}
}

// SerializerType returns the unique ID used to serialize
// an LSTM gate with the serializer package.
func (l *LSTMGate) SerializerType() string {
	return "github.com/YewRongDe/HTR/anyrnn.LSTMGate"
}

// Serialize serializes the gate.
func (l *LSTMGate) Serialize() ([]byte, error) {
	sw := &anyvecsave.S{Vector: l.StateWeights.Vector}
	iw := &anyvecsave.S{Vector: l.InputWeights.Vector}
	b := &anyvecsave.S{Vector: l.Biases.Vector}
	return serializer.SerializeAny(sw, iw, b, l.Activation)
}

// lstmState packs the cells and the hidden vectors of n
// sequences.
type lstmState struct {
	N      int
	Cell   anyvec.Vector
	Hidden anyvec.Vector
}

func (l *lstmState) BatchSize() int {
	return l.N
}

type lstmRes struct {
	InPool      *anydiff.Var
	HiddenPool  *anydiff.Var
	CellPool    *anydiff.Var
	NewCellPool *anydiff.Var

	NewCell  anydiff.Res
	Out      anydiff.Res
	OutState *lstmState
	V        anydiff.VarSet
}

func (l *lstmRes) State() State {
	return l.OutState
}

func (l *lstmRes) Output() anyvec.Vector {
	return l.Out.Output()
}

func (l *lstmRes) Vars() anydiff.VarSet {
	return l.V
}

func (l *lstmRes) Propagate(u anyvec.Vector, s State, g anydiff.Grad) (anyvec.Vector, State) {
	for _, p := range l.pools() {
		g[p] = p.Vector.Creator().MakeVector(p.Vector.Len())
	}
	cellUp := g[l.NewCellPool]
	if s != nil {
		sg := s.(*lstmState)
		u.Add(sg.Hidden)
		cellUp.Add(sg.Cell)
	}

	// The output depends on the new cell, so the cell's
	// upstream is only complete after this.
	l.Out.Propagate(u, g)
	delete(g, l.NewCellPool)
	l.NewCell.Propagate(cellUp, g)

	down := g[l.InPool]
	downState := &lstmState{N: l.OutState.N, Cell: g[l.CellPool], Hidden: g[l.HiddenPool]}
	for _, p := range l.pools() {
		delete(g, p)
	}
	return down, downState
}

func (l *lstmRes) pools() []*anydiff.Var {
	return []*anydiff.Var{l.InPool, l.HiddenPool, l.CellPool, l.NewCellPool}
}

func applyWeights(in, out int, weights anydiff.Res, batch anydiff.Res) anydiff.Res {
	weightMat := &anydiff.Matrix{Data: weights, Rows: out, Cols: in}
	inMat := &anydiff.Matrix{Data: batch, Rows: batch.Output().Len() / in, Cols: in}
	return anydiff.MatMul(false, true, inMat, weightMat).Data
}
