package model

import (
	"math"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/anyvec"

	"github.com/YewRongDe/HTR"
)

// logits runs the network on a batch, producing raw class
// scores for every timestep.
func (m *Model) logits(b *Batch, mode htr.Mode) anyseq.Seq {
	n := len(b.Images)
	features := m.Extractor.Apply(anydiff.NewConst(m.packImages(b)), n, mode)
	columns := newColumnSeq(features, n, m.Extractor.OutputWidth(), m.Extractor.OutputDepth())
	encoded := m.Encoder.Apply(columns)
	return anyseq.Map(encoded, func(v anydiff.Res, n int) anydiff.Res {
		return m.Projection.Apply(v, n, mode)
	})
}

// logProbs normalizes class scores at every timestep.
func logProbs(logits anyseq.Seq) anyseq.Seq {
	return anyseq.Map(logits, func(v anydiff.Res, n int) anydiff.Res {
		return htr.LogSoftmax.Apply(v, n, htr.Eval)
	})
}

func scalar(v anyvec.Vector) float64 {
	switch data := v.Data().(type) {
	case []float32:
		return float64(data[0])
	case []float64:
		return data[0]
	default:
		panic("unsupported numeric type")
	}
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
