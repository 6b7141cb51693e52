// Package anyrnn implements the recurrent sequence encoder
// of a text recognizer.
//
// Every image of a batch yields the same number of
// feature columns, so sequences are always mapped as full
// batches: each timestep holds one vector per sequence.
package anyrnn

import (
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
)

// A State is the recurrent state of every sequence in a
// batch after some timestep.
//
// Gradients with respect to a State are represented with
// the same type as the State.
type State interface {
	// BatchSize returns the number of sequences.
	BatchSize() int
}

// A Block is one recurrent cell, applied at every
// timestep.
type Block interface {
	// Start produces the start state for n sequences.
	// Start states are constant.
	Start(n int) State

	// Step applies the block to one timestep.
	// The input packs one vector per sequence.
	Step(s State, in anyvec.Vector) Res
}

// A Res is the result of a single Step.
type Res interface {
	// State returns the state after the timestep.
	State() State

	// Output returns one output vector per sequence.
	Output() anyvec.Vector

	// Vars returns the variables the output depends on,
	// including those behind the previous state.
	Vars() anydiff.VarSet

	// Propagate takes the upstream u of the output and the
	// upstream s of the new state, and returns the
	// downstreams of the input and the previous state.
	//
	// A nil s stands for a zero upstream, as for the last
	// timestep.
	// Propagate may modify u and s.
	Propagate(u anyvec.Vector, s State, g anydiff.Grad) (anyvec.Vector, State)
}
