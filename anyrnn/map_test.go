package anyrnn

import (
	"math"
	"math/rand"
	"testing"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec64"
)

func TestMapEmpty(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	block := NewLSTM(c, rand.New(rand.NewSource(1)), 3, 2)
	out := Map(anyseq.ConstSeqList(c, nil), block)
	if len(out.Output()) != 0 {
		t.Errorf("expected no timesteps but got %d", len(out.Output()))
	}
	out.Propagate(nil, anydiff.Grad{})
}

func TestMapBatchIndependence(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	block := NewLSTMStack(c, rand.New(rand.NewSource(2)), 3, 2, 2)

	var seqs [][]anyvec.Vector
	for i := 0; i < 2; i++ {
		var steps []anyvec.Vector
		for j := 0; j < 4; j++ {
			v := c.MakeVector(3)
			anyvec.Rand(v, anyvec.Normal, nil)
			steps = append(steps, v)
		}
		seqs = append(seqs, steps)
	}

	joint := Map(anyseq.ConstSeqList(c, seqs), block).Output()
	for i, seq := range seqs {
		alone := Map(anyseq.ConstSeqList(c, [][]anyvec.Vector{seq}), block).Output()
		for k, step := range alone {
			expected := step.Packed.Data().([]float64)
			actual := joint[k].Packed.Data().([]float64)[i*2 : (i+1)*2]
			for j, x := range expected {
				if math.Abs(actual[j]-x) > 1e-8 {
					t.Errorf("sequence %d step %d: expected %v but got %v", i, k, expected, actual)
					break
				}
			}
		}
	}
}

func TestMapRaggedBatch(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	block := NewLSTM(c, rand.New(rand.NewSource(3)), 1, 2)
	seq := anyseq.ConstSeqList(c, [][]anyvec.Vector{
		{c.MakeVector(1), c.MakeVector(1)},
		{c.MakeVector(1)},
	})
	defer func() {
		if recover() == nil {
			t.Error("expected panic for sequences of different lengths")
		}
	}()
	Map(seq, block)
}
