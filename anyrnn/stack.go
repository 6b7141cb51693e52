package anyrnn

import (
	"fmt"
	"math/rand"

	"github.com/YewRongDe/HTR"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

func init() {
	var s Stack
	serializer.RegisterTypedDeserializer(s.SerializerType(), DeserializeStack)
}

// A Stack is a meta-Block for composing Blocks.
// In a Stack, the first Block's output is fed as input to
// the next Block, etc.
//
// An empty Stack is invalid.
type Stack []Block

// DeserializeStack deserializes a Stack.
func DeserializeStack(d []byte) (Stack, error) {
	slice, err := serializer.DeserializeSlice(d)
	if err != nil {
		return nil, essentials.AddCtx("deserialize Stack", err)
	}
	res := make(Stack, len(slice))
	for i, x := range slice {
		if block, ok := x.(Block); ok {
			res[i] = block
		} else {
			return nil, fmt.Errorf("deserialize Stack: not a Block: %T", x)
		}
	}
	return res, nil
}

// NewLSTMStack creates a Stack of randomized LSTMs.
// The first LSTM takes inputs of size in, and every LSTM
// has a state of size hidden.
//
// If r is nil, the global random source is used.
func NewLSTMStack(c anyvec.Creator, r *rand.Rand, in, hidden, layers int) Stack {
	var res Stack
	for i := 0; i < layers; i++ {
		res = append(res, NewLSTM(c, r, in, hidden))
		in = hidden
	}
	return res
}

// Start produces a start state.
func (s Stack) Start(n int) State {
	s.assertNonEmpty()
	res := make(stackState, len(s))
	for i, x := range s {
		res[i] = x.Start(n)
	}
	return res
}

// Step applies the block for a single timestep.
func (s Stack) Step(st State, in anyvec.Vector) Res {
	res := &stackRes{V: anydiff.VarSet{}}
	inVec := in
	for i, x := range s {
		inState := st.(stackState)[i]
		blockRes := x.Step(inState, inVec)
		inVec = blockRes.Output()
		res.Reses = append(res.Reses, blockRes)
		res.OutState = append(res.OutState, blockRes.State())
		res.V = anydiff.MergeVarSets(res.V, blockRes.Vars())
	}
	return res
}

// Parameters returns the parameters of every Block that
// implements htr.Parameterizer.
func (s Stack) Parameters() []*anydiff.Var {
	var res []*anydiff.Var
	for _, x := range s {
		res = append(res, htr.AllParameters(x)...)
	}
	return res
}

// SerializerType returns the unique ID used to serialize
// a Stack with the serializer package.
func (s Stack) SerializerType() string {
	return "github.com/YewRongDe/HTR/anyrnn.Stack"
}

// Serialize serializes the Stack.
// It fails if any Block is not a serializer.Serializer.
func (s Stack) Serialize() ([]byte, error) {
	var slice []serializer.Serializer
	for _, x := range s {
		if ser, ok := x.(serializer.Serializer); ok {
			slice = append(slice, ser)
		} else {
			return nil, fmt.Errorf("not a Serializer: %T", x)
		}
	}
	return serializer.SerializeSlice(slice)
}

func (s Stack) assertNonEmpty() {
	if len(s) == 0 {
		panic("empty Stack is invalid")
	}
}

type stackRes struct {
	Reses    []Res
	OutState stackState
	V        anydiff.VarSet
}

func (s *stackRes) State() State {
	return s.OutState
}

func (s *stackRes) Output() anyvec.Vector {
	return s.Reses[len(s.Reses)-1].Output()
}

func (s *stackRes) Vars() anydiff.VarSet {
	return s.V
}

func (s *stackRes) Propagate(u anyvec.Vector, sg State, g anydiff.Grad) (anyvec.Vector, State) {
	downVec := u
	downStates := make(stackState, len(s.Reses))
	for i := len(s.Reses) - 1; i >= 0; i-- {
		var stateUpstream State
		if sg != nil {
			stateUpstream = sg.(stackState)[i]
		}
		down, downState := s.Reses[i].Propagate(downVec, stateUpstream, g)
		downVec = down
		downStates[i] = downState
	}
	return downVec, downStates
}

// stackState holds one State per layer.
type stackState []State

func (s stackState) BatchSize() int {
	return s[0].BatchSize()
}
