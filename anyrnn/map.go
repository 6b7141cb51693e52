package anyrnn

import (
	"fmt"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/anyvec"
)

// Map runs a Block over a sequence batch, starting from
// the Block's start state, and yields one output per
// timestep.
//
// Every timestep must hold every sequence; Map panics on
// a batch of sequences with different lengths.
func Map(s anyseq.Seq, b Block) anyseq.Seq {
	steps := s.Output()
	res := &blockSeq{C: s.Creator(), In: s, V: s.Vars()}
	if len(steps) == 0 {
		return res
	}

	n := len(steps[0].Present)
	state := b.Start(n)
	for t, step := range steps {
		if len(step.Present) != n || step.NumPresent() != n {
			panic(fmt.Sprintf("timestep %d holds %d of %d sequences", t, step.NumPresent(), n))
		}
		out := b.Step(state, step.Packed)
		res.Steps = append(res.Steps, out)
		res.Out = append(res.Out, &anyseq.Batch{Packed: out.Output(), Present: step.Present})
		res.V = anydiff.MergeVarSets(res.V, out.Vars())
		state = out.State()
	}
	return res
}

type blockSeq struct {
	C     anyvec.Creator
	In    anyseq.Seq
	Steps []Res
	Out   []*anyseq.Batch
	V     anydiff.VarSet
}

func (b *blockSeq) Creator() anyvec.Creator {
	return b.C
}

func (b *blockSeq) Output() []*anyseq.Batch {
	return b.Out
}

func (b *blockSeq) Vars() anydiff.VarSet {
	return b.V
}

func (b *blockSeq) Propagate(u []*anyseq.Batch, g anydiff.Grad) {
	if len(u) == 0 {
		return
	}
	var downs []*anyseq.Batch
	if g.Intersects(b.In.Vars()) {
		downs = make([]*anyseq.Batch, len(u))
	}

	// Start states are constant, so the state gradient of
	// the first timestep is dropped.
	var stateUp State
	for t := len(b.Steps) - 1; t >= 0; t-- {
		down, stateDown := b.Steps[t].Propagate(u[t].Packed, stateUp, g)
		if downs != nil {
			downs[t] = &anyseq.Batch{Packed: down, Present: u[t].Present}
		}
		stateUp = stateDown
	}

	if downs != nil {
		b.In.Propagate(downs, g)
	}
}
