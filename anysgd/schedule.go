package anysgd

// Piecewise is a StepRater with constant rates between
// step boundaries.
//
// Rates[i] is used while step < Boundaries[i], and the
// last rate is used after the last boundary.
// There must be exactly one more rate than boundaries,
// and the boundaries must be increasing.
type Piecewise struct {
	Boundaries []int
	Rates      []float64
}

// DefaultSchedule returns the schedule for recognizer
// training: a fast warm-up for the first 10 batches,
// then 1e-3 until batch 10000, then 1e-4.
func DefaultSchedule() *Piecewise {
	return &Piecewise{
		Boundaries: []int{10, 10000},
		Rates:      []float64{0.01, 0.001, 0.0001},
	}
}

// Rate returns the rate for the step.
func (p *Piecewise) Rate(step int) float64 {
	for i, b := range p.Boundaries {
		if step < b {
			return p.Rates[i]
		}
	}
	return p.Rates[len(p.Rates)-1]
}
