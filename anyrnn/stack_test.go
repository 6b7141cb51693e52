package anyrnn

import (
	"math/rand"
	"testing"

	"github.com/unixpickle/anydiff/anydifftest"
	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec64"
)

func TestStackOutput(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	r := rand.New(rand.NewSource(1))
	layer1 := NewLSTM(c, r, 3, 2)
	layer2 := NewLSTM(c, r, 2, 4)

	input := c.MakeVectorData([]float64{
		2.098950, -0.645579, 2.106542,
		0.085620, 0.762207, -0.279375,
	})
	hidden := layer1.Step(layer1.Start(2), input).Output()
	expected := layer2.Step(layer2.Start(2), hidden).Output()

	stacked := Stack{layer1, layer2}
	actual := stacked.Step(stacked.Start(2), input).Output()

	diff := actual.Copy()
	diff.Sub(expected)
	max := anyvec.AbsMax(diff).(float64)
	if max > 1e-8 {
		t.Errorf("expected %v but got %v", expected.Data(), actual.Data())
	}
}

func TestStackProp(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	inSeq, inVars := randomTestSequence(c, 3)
	block := NewLSTMStack(c, rand.New(rand.NewSource(2)), 3, 2, 2)
	if len(block.Parameters()) != 24 {
		t.Errorf("expected 24 parameters, but got %d", len(block.Parameters()))
	}
	checker := &anydifftest.SeqChecker{
		F: func() anyseq.Seq {
			return Map(inSeq, block)
		},
		V: append(inVars, block.Parameters()...),
	}
	checker.FullCheck(t)
}
