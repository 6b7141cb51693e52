package anyctc

import (
	"math"
	"math/rand"
	"testing"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anydifftest"
	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec32"
	"github.com/unixpickle/anyvec/anyvec64"
)

func TestCostOutputs(t *testing.T) {
	probSeqs := [][][]float64{
		{},
		{{0.3, 0.2, 0.5}, {0.1, 0.5, 0.4}},
		{},
	}
	labels := [][]int{{}, {0, 1}, {1}}
	expectedProbs := []float64{1, 0.3 * 0.5, 0}
	inSeqs := logProbSeqs(anyvec32.CurrentCreator(), probSeqs)
	negOut := anydiff.Scale(Cost(inSeqs, labels), float32(-1))
	actualProbs := float64s(anydiff.Exp(negOut).Output())
	for i, x := range expectedProbs {
		a := actualProbs[i]
		if math.Abs(x-a)/x > testPrecision {
			t.Errorf("output %d: expected %f but got %f", i, x, a)
		}
	}
}

func TestCostGrad(t *testing.T) {
	c := anyvec32.CurrentCreator()
	var vars []*anydiff.Var
	seqs := anyseq.ResSeq(c, []*anyseq.ResBatch{
		{Packed: randomVar(c, 9, &vars), Present: []bool{true, true, true}},
		{Packed: randomVar(c, 6, &vars), Present: []bool{true, false, true}},
		{Packed: randomVar(c, 3, &vars), Present: []bool{false, false, true}},
		{Packed: randomVar(c, 3, &vars), Present: []bool{false, false, true}},
	})
	labels := [][]int{{1, 0}, {0}, {0, 1, 2}}
	ch := anydifftest.ResChecker{
		F: func() anydiff.Res {
			return Cost(seqs, labels)
		},
		V:     vars,
		Prec:  testPrecision * 3,
		Delta: testPrecision,
	}
	ch.FullCheck(t)
}

func TestCostImpossibleLabel(t *testing.T) {
	c := anyvec32.CurrentCreator()
	var vars []*anydiff.Var
	seqs := anyseq.ResSeq(c, []*anyseq.ResBatch{
		{Packed: randomVar(c, 3, &vars), Present: []bool{true}},
		{Packed: randomVar(c, 3, &vars), Present: []bool{true}},
	})

	// Two equal symbols need a blank in between.
	cost := Cost(seqs, [][]int{{0, 0}})
	if !math.IsInf(float64s(cost.Output())[0], 1) {
		t.Fatalf("expected +Inf but got %v", float64s(cost.Output()))
	}

	g := anydiff.NewGrad(vars...)
	cost.Propagate(c.MakeVectorData(c.MakeNumericList([]float64{1})), g)
	for _, v := range vars {
		for _, x := range float64s(g[v]) {
			if x != 0 {
				t.Fatalf("expected zero gradient but got %v", float64s(g[v]))
			}
		}
	}
}

func TestMeanCost(t *testing.T) {
	c := anyvec64.CurrentCreator()
	var vars []*anydiff.Var
	seqs := anyseq.ResSeq(c, []*anyseq.ResBatch{
		{Packed: randomVar(c, 9, &vars), Present: []bool{true, true, true}},
		{Packed: randomVar(c, 9, &vars), Present: []bool{true, true, true}},
		{Packed: randomVar(c, 3, &vars), Present: []bool{false, false, true}},
	})
	labels := [][]int{{1}, {0, 1}, {1, 1}}
	costs := float64s(Cost(seqs, labels).Output())
	mean := float64s(MeanCost(seqs, labels).Output())[0]
	expected := (costs[0] + costs[1] + costs[2]) / 3
	if math.Abs(mean-expected) > 1e-8 {
		t.Errorf("expected %f but got %f", expected, mean)
	}
	for i, x := range costs {
		if x < 0 {
			t.Errorf("cost %d is negative: %f", i, x)
		}
	}

	ch := anydifftest.ResChecker{
		F: func() anydiff.Res {
			return MeanCost(seqs, labels)
		},
		V:     vars,
		Prec:  1e-4,
		Delta: 1e-5,
	}
	ch.FullCheck(t)
}

func TestElementCosts(t *testing.T) {
	c := anyvec64.CurrentCreator()
	labels := [][]int{{1, 2, 2}, {}, {3}, {0, 1}}
	lengths := []int{6, 4, 0, 1}
	r := rand.New(rand.NewSource(3))

	var exact []float64
	var vecs [][]anyvec.Vector
	for i, label := range labels {
		seq, res := createTestSequence(c, r, lengths[i], testSymbolCount)
		exact = append(exact, -math.Log(pathLikelihood(seq, label)))
		var seqVecs []anyvec.Vector
		for j, x := range res {
			// Shift every timestep to check that the scores
			// are normalized internally.
			vec := x.Output().Copy()
			vec.AddScalar(float64(j + 1))
			seqVecs = append(seqVecs, vec)
		}
		vecs = append(vecs, seqVecs)
	}

	actual := ElementCosts(anyseq.ConstSeqList(c, vecs).Output(), labels)
	for i, x := range exact {
		a := actual[i]
		if math.IsInf(x, 1) {
			if !math.IsInf(a, 1) {
				t.Errorf("element %d: expected +Inf but got %f", i, a)
			}
		} else if math.Abs(x-a) > testPrecision {
			t.Errorf("element %d: expected %f but got %f", i, x, a)
		}
	}
}

func logProbSeqs(c anyvec.Creator, values [][][]float64) anyseq.Seq {
	vecLists := make([][]anyvec.Vector, len(values))
	for i, seq := range values {
		vecLists[i] = make([]anyvec.Vector, len(seq))
		for j, x := range seq {
			vecLists[i][j] = c.MakeVectorData(c.MakeNumericList(x))
			anyvec.Log(vecLists[i][j])
		}
	}
	return anyseq.ConstSeqList(c, vecLists)
}

func randomVar(c anyvec.Creator, n int, vs *[]*anydiff.Var) *anydiff.Var {
	v := c.MakeVector(n)
	anyvec.Rand(v, anyvec.Normal, nil)
	anyvec.LogSoftmax(v, 3)
	res := anydiff.NewVar(v)
	*vs = append(*vs, res)
	return res
}
