package anyctc

import (
	"math"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/anyvec"
)

// Cost computes the cost for a batch of output sequences.
// The cost for each sequence is the negative log
// likelihood of the corresponding label.
//
// For a sequence, suppose that all of the labels are
// bounded between 0 and N.
// Then there should be N+1 outputs at each timestep.
// The first N outputs correspond to the N labels.
// The last output is the special "blank" symbol.
// The outputs are all in the log domain.
//
// A label with no alignment in its sequence has an
// infinite cost and contributes no gradient.
//
// The anyvec.Creator must use an anyvec.NumericList type
// []float32 or []float64.
// No other numeric types are supported.
func Cost(seqs anyseq.Seq, labels [][]int) anydiff.Res {
	if len(seqs.Output()) == 0 {
		return anydiff.NewConst(seqs.Creator().MakeVector(0))
	}
	return anydiff.Scale(pool(seqs, func(in []anydiff.Res, lengths []int) anydiff.Res {
		var res []anydiff.Res
		for i, x := range in {
			if lengths[i] == 0 {
				res = append(res, emptyLikelihood(seqs.Creator(), labels[i]))
			} else {
				res = append(res, newLikelihoodRes(x, lengths[i], labels[i]))
			}
		}
		return anydiff.Concat(res...)
	}), seqs.Creator().MakeNumeric(-1))
}

// MeanCost averages Cost over the batch.
func MeanCost(seqs anyseq.Seq, labels [][]int) anydiff.Res {
	costs := Cost(seqs, labels)
	n := costs.Output().Len()
	if n == 0 {
		return anydiff.NewConst(seqs.Creator().MakeVector(1))
	}
	return anydiff.Scale(anydiff.Sum(costs), seqs.Creator().MakeNumeric(1/float64(n)))
}

// ElementCosts computes the per-sequence costs for a
// batch of raw, unnormalized scores.
//
// Unlike Cost, ElementCosts applies log-softmax to every
// timestep itself and computes no gradient.
func ElementCosts(batches []*anyseq.Batch, labels [][]int) []float64 {
	if len(batches) == 0 {
		res := make([]float64, len(labels))
		for i, label := range labels {
			if len(label) > 0 {
				res[i] = math.Inf(1)
			}
		}
		return res
	}
	seqs := sequenceSteps(batches)
	res := make([]float64, len(seqs))
	for i, seq := range seqs {
		if len(seq) == 0 {
			if len(labels[i]) > 0 {
				res[i] = math.Inf(1)
			}
			continue
		}
		logSoftmaxSteps(seq)
		_, logP := forward(seq, labels[i])
		res[i] = -logP
	}
	return res
}

type poolRes struct {
	In      anyseq.Seq
	Pools   []*anydiff.Var
	Lengths []int
	Res     anydiff.Res
}

// pool packs every sequence of seqs into its own
// variable so that f can treat a whole sequence as one
// vector.
func pool(seqs anyseq.Seq, f func(in []anydiff.Res, lengths []int) anydiff.Res) anydiff.Res {
	rawData := anyseq.SeparateSeqs(seqs.Output())
	pools := make([]*anydiff.Var, len(rawData))
	pooledRes := make([]anydiff.Res, len(rawData))
	lengths := make([]int, len(rawData))
	for i, raw := range rawData {
		pools[i] = anydiff.NewVar(seqs.Creator().Concat(raw...))
		pooledRes[i] = pools[i]
		lengths[i] = len(raw)
	}
	return &poolRes{
		In:      seqs,
		Pools:   pools,
		Lengths: lengths,
		Res:     f(pooledRes, lengths),
	}
}

func (p *poolRes) Output() anyvec.Vector {
	return p.Res.Output()
}

func (p *poolRes) Vars() anydiff.VarSet {
	return p.In.Vars()
}

func (p *poolRes) Propagate(u anyvec.Vector, g anydiff.Grad) {
	for _, pvar := range p.Pools {
		g[pvar] = pvar.Vector.Creator().MakeVector(pvar.Vector.Len())
	}
	p.Res.Propagate(u, g)
	downstream := make([][]anyvec.Vector, len(p.Pools))
	for i, pvar := range p.Pools {
		downstream[i] = splitVec(g[pvar], p.Lengths[i])
		delete(g, p.Pools[i])
	}
	joinedU := anyseq.ConstSeqList(u.Creator(), downstream).Output()
	p.In.Propagate(joinedU, g)
}

func splitVec(vec anyvec.Vector, parts int) []anyvec.Vector {
	if parts == 0 {
		return nil
	}
	res := make([]anyvec.Vector, parts)
	chunkSize := vec.Len() / parts
	for i := range res {
		res[i] = vec.Slice(i*chunkSize, (i+1)*chunkSize)
	}
	return res
}
