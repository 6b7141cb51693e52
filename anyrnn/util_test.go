package anyrnn

import (
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/anyvec"
)

// randomTestSequence creates a batch of two sequences of
// three timesteps, like the feature columns of two narrow
// images. The timesteps are variables.
func randomTestSequence(c anyvec.Creator, inSize int) (anyseq.Seq, []*anydiff.Var) {
	var inVars []*anydiff.Var
	var batches []*anyseq.ResBatch
	for t := 0; t < 3; t++ {
		vec := c.MakeVector(2 * inSize)
		anyvec.Rand(vec, anyvec.Normal, nil)
		v := anydiff.NewVar(vec)
		inVars = append(inVars, v)
		batches = append(batches, &anyseq.ResBatch{Packed: v, Present: []bool{true, true}})
	}
	return anyseq.ResSeq(c, batches), inVars
}
