package anyctc

import (
	"math"
	"math/rand"
	"testing"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anydifftest"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec64"
)

const (
	testSymbolCount = 5
	testPrecision   = 1e-3
)

func TestLogLikelihoodOutputs(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	r := rand.New(rand.NewSource(1))

	// With symbols A=0 and B=1: "", "A", "AB", "AA",
	// "ABA" and "BAB".
	labels := [][]int{{}, {0}, {0, 1}, {0, 0}, {0, 1, 0}, {1, 0, 1}}
	for _, label := range labels {
		for steps := 1; steps <= 6; steps++ {
			seq, res := createTestSequence(c, r, steps, 2)
			expected := pathLikelihood(seq, label)
			actual := math.Exp(float64s(logLikelihood(c, res, label).Output())[0])
			if expected == 0 {
				if actual != 0 {
					t.Errorf("label %v, %d steps: expected 0 but got %e", label, steps, actual)
				}
			} else if math.Abs(actual-expected)/expected > 1e-8 {
				t.Errorf("label %v, %d steps: expected %e but got %e", label, steps,
					expected, actual)
			}
		}
	}
}

func TestLogLikelihoodRepeats(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	a, blank := []float64{0.6, 0.4}, []float64{0.3, 0.7}

	// "AA" needs a blank between the two emissions.
	res := []anydiff.Res{logVar(c, a), logVar(c, a)}
	if ll := float64s(logLikelihood(c, res, []int{0, 0}).Output())[0]; !math.IsInf(ll, -1) {
		t.Errorf("two steps: expected -Inf but got %f", ll)
	}

	res = []anydiff.Res{logVar(c, a), logVar(c, blank), logVar(c, a)}
	expected := math.Log(0.6 * 0.7 * 0.6)
	if ll := float64s(logLikelihood(c, res, []int{0, 0}).Output())[0]; math.Abs(ll-expected) > 1e-8 {
		t.Errorf("three steps: expected %f but got %f", expected, ll)
	}
}

func TestLogLikelihoodGrad(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	label := []int{0, 1, 1, 3}
	_, resSeq := createTestSequence(c, rand.New(rand.NewSource(2)), 8, testSymbolCount)
	var vars []*anydiff.Var
	for _, x := range resSeq {
		vars = append(vars, x.(*anydiff.Var))
	}
	ch := anydifftest.ResChecker{
		F: func() anydiff.Res {
			return logLikelihood(c, resSeq, label)
		},
		V: vars,
	}
	ch.FullCheck(t)
}

// createTestSequence creates random per-timestep
// distributions over symCount symbols and a blank.
//
// It returns the probabilities and, as variables, their
// logs.
func createTestSequence(c anyvec.Creator, r *rand.Rand, steps, symCount int) ([][]float64,
	[]anydiff.Res) {
	seq := make([][]float64, steps)
	res := make([]anydiff.Res, steps)
	for i := range seq {
		seq[i] = make([]float64, symCount+1)
		var sum float64
		for j := range seq[i] {
			seq[i][j] = r.Float64() + 0.05
			sum += seq[i][j]
		}
		for j := range seq[i] {
			seq[i][j] /= sum
		}
		res[i] = logVar(c, seq[i])
	}
	return seq, res
}

func logVar(c anyvec.Creator, probs []float64) *anydiff.Var {
	logs := make([]float64, len(probs))
	for i, p := range probs {
		logs[i] = math.Log(p)
	}
	return anydiff.NewVar(c.MakeVectorData(c.MakeNumericList(logs)))
}

// pathLikelihood sums the probabilities of every
// alignment path which collapses to label.
func pathLikelihood(seq [][]float64, label []int) float64 {
	if len(seq) == 0 {
		if len(label) == 0 {
			return 1
		}
		return 0
	}
	classes := len(seq[0])
	path := make([]int, len(seq))
	var total float64
	for {
		if labelsEqual(Collapse(path, classes-1), label) {
			prob := 1.0
			for t, x := range path {
				prob *= seq[t][x]
			}
			total += prob
		}

		// Advance path like an odometer.
		i := 0
		for i < len(path) && path[i] == classes-1 {
			path[i] = 0
			i++
		}
		if i == len(path) {
			return total
		}
		path[i]++
	}
}

func labelsEqual(l1, l2 []int) bool {
	if len(l1) != len(l2) {
		return false
	}
	for i, x := range l1 {
		if l2[i] != x {
			return false
		}
	}
	return true
}
