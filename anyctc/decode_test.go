package anyctc

import (
	"math/rand"
	"reflect"
	"testing"

	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec32"
	"github.com/unixpickle/anyvec/anyvec64"
)

func TestBestLabels(t *testing.T) {
	var inputs = [][][]float32{
		{
			{-9.21034037197618, -0.000100005000333347},
			{-0.105360515657826, -2.302585092994046},
			{-9.21034037197618, -0.000100005000333347},
			{-0.105360515657826, -2.302585092994046},
			{-9.21034037197618, -0.000100005000333347},
			{-9.21034037197618, -0.000100005000333347},
		},
		{
			{-1.38155105579643e+01, -1.38155105579643e+01, -2.00000199994916e-06},
			// The first label is not more likely, but
			// after both timesteps it has a 0.64% chance
			// of being seen in at least one of the two
			// timesteps.
			{-0.916290731874155, -13.815510557964274, -0.510827290434046},
			{-0.916290731874155, -13.815510557964274, -0.510827290434046},
			{-1.38155105579643e+01, -1.38155105579643e+01, -2.00000199994916e-06},
			{-1.609437912434100, -0.693147180559945, -1.203972804325936},
		},
		{
			{-1.38155105579643e+01, -1.38155105579643e+01, -2.00000199994916e-06},
			{-0.916290731874155, -13.815510557964274, -0.510827290434046},
			{-1.38155105579643e+01, -1.38155105579643e+01, -2.00000199994916e-06},
			{-1.609437912434100, -0.693147180559945, -1.203972804325936},
		},
		{
			{-0.916290731874155, -13.815510557964274, -0.510827290434046},
			{-1.38155105579643e+01, -1.38155105579643e+01, -2.00000199994916e-06},
			{-1.609437912434100, -0.693147180559945, -1.203972804325936},
		},
	}

	inLists := make([][]anyvec.Vector, len(inputs))
	for i, x := range inputs {
		inLists[i] = make([]anyvec.Vector, len(x))
		for j, y := range x {
			inLists[i][j] = anyvec32.MakeVectorData(y)
		}
	}
	in := anyseq.ConstSeqList(anyvec32.CurrentCreator(), inLists[1:])
	smallIn := anyseq.ConstSeqList(anyvec32.CurrentCreator(), inLists[:1])

	var expected = [][]int{
		{0, 0},
		{0, 1},
		{1},
		{1},
	}

	for _, thresh := range []float64{-1e-2, -1e-3, -1e-6, -1e-10} {
		actual := append(BestLabels(smallIn, thresh), BestLabels(in, thresh)...)
		if !reflect.DeepEqual(actual, expected) {
			t.Errorf("thresh %e: expected %v but got %v", thresh, expected, actual)
		}
	}
}

func TestGreedyLabels(t *testing.T) {
	c := anyvec64.CurrentCreator()
	blank := 3
	paths := [][]int{
		{0, 0, 3, 0, 1, 1, 3},
		{3, 3, 3},
		{2},
		{},
	}
	var vecs [][]anyvec.Vector
	for _, path := range paths {
		var seq []anyvec.Vector
		for _, x := range path {
			probs := []float64{0.1, 0.1, 0.1, 0.1}
			probs[x] = 0.7
			vec := c.MakeVectorData(c.MakeNumericList(probs))
			anyvec.Log(vec)
			seq = append(seq, vec)
		}
		vecs = append(vecs, seq)
	}
	in := anyseq.ConstSeqList(c, vecs)
	expected := [][]int{{0, 0, 1}, {}, {2}, {}}
	actual := GreedyLabels(in)
	if !reflect.DeepEqual(actual, expected) {
		t.Errorf("expected %v but got %v", expected, actual)
	}
	if again := GreedyLabels(in); !reflect.DeepEqual(again, actual) {
		t.Errorf("decode changed from %v to %v", actual, again)
	}
	for i, path := range paths {
		if got := Collapse(path, blank); !reflect.DeepEqual(got, expected[i]) {
			t.Errorf("path %d: expected %v but got %v", i, expected[i], got)
		}
	}
}

func TestCollapseMergeRepeat(t *testing.T) {
	const blank = 4
	for trial := 0; trial < 100; trial++ {
		label := make([]int, rand.Intn(8))
		for i := range label {
			label[i] = rand.Intn(blank)
		}

		// Build an alignment with repeated frames, a blank
		// between equal neighbors, and random extra blanks.
		var path []int
		for i, x := range label {
			if rand.Intn(2) == 0 || (i > 0 && label[i-1] == x) {
				path = append(path, blank)
			}
			for j := 0; j < 1+rand.Intn(3); j++ {
				path = append(path, x)
			}
		}
		if rand.Intn(2) == 0 {
			path = append(path, blank)
		}

		actual := Collapse(path, blank)
		if !reflect.DeepEqual(actual, label) {
			t.Fatalf("path %v: expected %v but got %v", path, label, actual)
		}
	}
}
