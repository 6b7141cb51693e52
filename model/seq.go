package model

import (
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/anyvec"
)

// columnSeq views a batch of feature maps of height 1 as
// a time-major sequence.
//
// The input packs n maps of steps x depth values each,
// and timestep t of the sequence packs column t of every
// map.
type columnSeq struct {
	In    anydiff.Res
	N     int
	Steps int
	Depth int

	Out []*anyseq.Batch
}

func newColumnSeq(in anydiff.Res, n, steps, depth int) *columnSeq {
	out := in.Output()
	c := out.Creator()
	present := make([]bool, n)
	for i := range present {
		present[i] = true
	}
	batches := make([]*anyseq.Batch, steps)
	for t := range batches {
		columns := make([]anyvec.Vector, n)
		for i := range columns {
			start := (i*steps + t) * depth
			columns[i] = out.Slice(start, start+depth)
		}
		batches[t] = &anyseq.Batch{
			Packed:  c.Concat(columns...),
			Present: present,
		}
	}
	return &columnSeq{In: in, N: n, Steps: steps, Depth: depth, Out: batches}
}

func (c *columnSeq) Creator() anyvec.Creator {
	return c.In.Output().Creator()
}

func (c *columnSeq) Output() []*anyseq.Batch {
	return c.Out
}

func (c *columnSeq) Vars() anydiff.VarSet {
	return c.In.Vars()
}

func (c *columnSeq) Propagate(u []*anyseq.Batch, g anydiff.Grad) {
	if !g.Intersects(c.In.Vars()) {
		return
	}
	parts := make([]anyvec.Vector, 0, c.N*c.Steps)
	for i := 0; i < c.N; i++ {
		for _, batch := range u {
			parts = append(parts, batch.Packed.Slice(i*c.Depth, (i+1)*c.Depth))
		}
	}
	c.In.Propagate(c.Creator().Concat(parts...), g)
}
