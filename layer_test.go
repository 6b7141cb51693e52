package htr

import (
	"math"
	"math/rand"
	"testing"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anydifftest"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec64"
)

func TestLeakyReLUOutput(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	in := anydiff.NewConst(c.MakeVectorData([]float64{-2, -0.5, 0, 1, 3}))
	actual := LeakyReLU.Apply(in, 1, Train).Output().Data().([]float64)
	expected := []float64{-0.4, -0.1, 0, 1, 3}
	for i, x := range expected {
		if math.Abs(actual[i]-x) > 1e-8 {
			t.Errorf("output %d: expected %f but got %f", i, x, actual[i])
		}
	}
}

func TestLeakyReLUGradients(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	v := anydiff.NewVar(c.MakeVectorData([]float64{-2, -0.5, 0.3, 1, 3, -0.1}))
	checker := &anydifftest.ResChecker{
		F: func() anydiff.Res {
			return LeakyReLU.Apply(v, 2, Train)
		},
		V: []*anydiff.Var{v},
	}
	checker.FullCheck(t)
}

func TestFCGradients(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	r := rand.New(rand.NewSource(1337))
	fc := NewFC(c, r, 3, 2)
	anyvec.Rand(fc.Biases.Vector, anyvec.Normal, r)
	in := anydiff.NewVar(c.MakeVector(3 * 4))
	anyvec.Rand(in.Vector, anyvec.Normal, r)
	checker := &anydifftest.ResChecker{
		F: func() anydiff.Res {
			return fc.Apply(in, 4, Train)
		},
		V: append(fc.Parameters(), in),
	}
	checker.FullCheck(t)
}

func TestConcatMixer(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	in1 := anydiff.NewVar(c.MakeVectorData([]float64{1, 2, 3, 4}))
	in2 := anydiff.NewVar(c.MakeVectorData([]float64{5, 6, 7, 8, 9, 10}))
	out := ConcatMixer{}.Mix(in1, in2, 2).Output().Data().([]float64)
	expected := []float64{1, 2, 5, 6, 7, 3, 4, 8, 9, 10}
	if len(out) != len(expected) {
		t.Fatalf("expected length %d but got %d", len(expected), len(out))
	}
	for i, x := range expected {
		if out[i] != x {
			t.Fatalf("expected %v but got %v", expected, out)
		}
	}

	checker := &anydifftest.ResChecker{
		F: func() anydiff.Res {
			return ConcatMixer{}.Mix(in1, in2, 2)
		},
		V: []*anydiff.Var{in1, in2},
	}
	checker.FullCheck(t)
}
