package anyctc

import (
	"math"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
	"gonum.org/v1/gonum/floats"
)

// logLikelihood computes the log likelihood of the label.
// The last entry of each input vector is the log of
// the probability of the blank symbol.
func logLikelihood(c anyvec.Creator, seq []anydiff.Res, label []int) anydiff.Res {
	if len(seq) == 0 {
		return emptyLikelihood(c, label)
	}
	return newLikelihoodRes(anydiff.Concat(seq...), len(seq), label)
}

func emptyLikelihood(c anyvec.Creator, label []int) anydiff.Res {
	var constVal float64
	if len(label) == 0 {
		constVal = 0
	} else {
		constVal = math.Inf(-1)
	}
	numList := c.MakeNumericList([]float64{constVal})
	return anydiff.NewConst(c.MakeVectorData(numList))
}

// likelihoodRes is the log likelihood of a label given
// a packed sequence of log-probability vectors.
//
// Alpha is kept from the forward pass so that Propagate
// only needs to run the backward recursion.
type likelihoodRes struct {
	In     anydiff.Res
	Steps  int
	Label  []int
	Alpha  [][]float64
	LogP   float64
	OutVec anyvec.Vector
}

func newLikelihoodRes(in anydiff.Res, steps int, label []int) *likelihoodRes {
	// Don't want the result to retain a reference to
	// this slice.
	label = append([]int{}, label...)

	probs := splitSteps(float64s(in.Output()), steps)
	alpha, logP := forward(probs, label)
	c := in.Output().Creator()
	return &likelihoodRes{
		In:     in,
		Steps:  steps,
		Label:  label,
		Alpha:  alpha,
		LogP:   logP,
		OutVec: c.MakeVectorData(c.MakeNumericList([]float64{logP})),
	}
}

func (l *likelihoodRes) Output() anyvec.Vector {
	return l.OutVec
}

func (l *likelihoodRes) Vars() anydiff.VarSet {
	return l.In.Vars()
}

func (l *likelihoodRes) Propagate(u anyvec.Vector, g anydiff.Grad) {
	if !g.Intersects(l.In.Vars()) {
		return
	}
	upstream := float64s(u)[0]
	probs := splitSteps(float64s(l.In.Output()), l.Steps)
	grad := make([]float64, 0, l.In.Output().Len())

	// An impossible label has no alignments, so nothing
	// can change its likelihood.
	if math.IsInf(l.LogP, -1) {
		grad = grad[:cap(grad)]
	} else {
		beta := backward(probs, l.Label)
		numSymbols := len(probs[0])
		blank := numSymbols - 1
		for t, step := range probs {
			terms := make([][]float64, numSymbols)
			for s := range l.Alpha[t] {
				sym := extendedSymbol(l.Label, s, blank)
				terms[sym] = append(terms[sym], l.Alpha[t][s]+beta[t][s])
			}
			for k, logY := range step {
				total := logSumExp(terms[k])
				if math.IsInf(total, -1) {
					grad = append(grad, 0)
				} else {
					grad = append(grad, upstream*math.Exp(total-logY-l.LogP))
				}
			}
		}
	}

	c := l.In.Output().Creator()
	l.In.Propagate(c.MakeVectorData(c.MakeNumericList(grad)), g)
}

// forward runs the CTC forward recursion over the
// blank-infused label, where blanks are injected at the
// start and end of the label and between entries.
//
// The returned log likelihood is -Inf when no alignment
// of the label fits in the sequence.
func forward(probs [][]float64, label []int) (alpha [][]float64, logP float64) {
	numPositions := len(label)*2 + 1
	blank := len(probs[0]) - 1
	alpha = make([][]float64, len(probs))
	for t, step := range probs {
		alpha[t] = make([]float64, numPositions)
		for s := range alpha[t] {
			var sum float64
			if t == 0 {
				sum = math.Inf(-1)
				if s < 2 {
					sum = 0
				}
			} else {
				last := alpha[t-1]
				sum = last[s]
				if s > 0 {
					sum = addLogs(sum, last[s-1])
				}
				if canSkip(label, s) {
					sum = addLogs(sum, last[s-2])
				}
			}
			alpha[t][s] = sum + step[extendedSymbol(label, s, blank)]
		}
	}
	last := alpha[len(alpha)-1]
	logP = last[numPositions-1]
	if numPositions > 1 {
		logP = addLogs(logP, last[numPositions-2])
	}
	return
}

// backward runs the CTC backward recursion.
// Like the forward variables, the backward variables
// include the emission at their own timestep.
func backward(probs [][]float64, label []int) [][]float64 {
	numPositions := len(label)*2 + 1
	blank := len(probs[0]) - 1
	beta := make([][]float64, len(probs))
	for t := len(probs) - 1; t >= 0; t-- {
		beta[t] = make([]float64, numPositions)
		for s := range beta[t] {
			var sum float64
			if t == len(probs)-1 {
				sum = math.Inf(-1)
				if s >= numPositions-2 {
					sum = 0
				}
			} else {
				next := beta[t+1]
				sum = next[s]
				if s+1 < numPositions {
					sum = addLogs(sum, next[s+1])
				}
				if s+2 < numPositions && canSkip(label, s+2) {
					sum = addLogs(sum, next[s+2])
				}
			}
			beta[t][s] = sum + probs[t][extendedSymbol(label, s, blank)]
		}
	}
	return beta
}

// extendedSymbol gets the symbol at position s of the
// blank-infused label.
func extendedSymbol(label []int, s, blank int) int {
	if s%2 == 0 {
		return blank
	}
	return label[s/2]
}

// canSkip checks if an alignment may jump straight to
// position s from position s-2, skipping a blank.
func canSkip(label []int, s int) bool {
	if s%2 == 0 || s < 2 {
		return false
	}
	return label[s/2] != label[s/2-1]
}

func splitSteps(packed []float64, steps int) [][]float64 {
	res := make([][]float64, steps)
	size := len(packed) / steps
	for i := range res {
		res[i] = packed[i*size : (i+1)*size]
	}
	return res
}

// logSumExp sums terms in the log domain.
// It returns -Inf for an empty or impossible sum.
func logSumExp(terms []float64) float64 {
	var finite []float64
	for _, x := range terms {
		if !math.IsInf(x, -1) {
			finite = append(finite, x)
		}
	}
	if len(finite) == 0 {
		return math.Inf(-1)
	}
	return floats.LogSumExp(finite)
}

// addLogs adds two numbers in the log domain.
func addLogs(a, b float64) float64 {
	if math.IsInf(a, -1) {
		return b
	} else if math.IsInf(b, -1) {
		return a
	}
	normalizer := math.Max(a, b)
	exp1 := math.Exp(a - normalizer)
	exp2 := math.Exp(b - normalizer)
	return math.Log(exp1+exp2) + normalizer
}
