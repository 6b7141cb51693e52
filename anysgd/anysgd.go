// Package anysgd provides the optimizer, the learning
// rate schedule and the mini-batch loop used to train a
// text recognizer.
package anysgd

import (
	"context"
	"errors"
	"math/rand"

	"github.com/unixpickle/anydiff"
)

// A Stepper performs one training step on a mini-batch.
type Stepper interface {
	Step(batch SampleList) error
}

// SGD runs mini-batch training over a SampleList.
type SGD struct {
	// Stepper is called with every mini-batch.
	Stepper Stepper

	// Samples is the list of training samples to use for
	// training.
	// It will be shuffled and re-shuffled as needed.
	//
	// The list may not be empty.
	Samples SampleList

	// Rand is used to shuffle Samples.
	// If it is nil, the global random source is used.
	Rand *rand.Rand

	// StatusFunc, if non-nil, is called before every
	// iteration with the next mini-batch.
	StatusFunc func(batch SampleList)

	// BatchSize is the mini-batch size.
	// If it is 0, then the entire sample list is used at
	// every iteration.
	// The last mini-batch of an epoch may be smaller.
	BatchSize int

	// NumProcessed keeps track of the number of samples that
	// have been passed to Stepper so far.
	NumProcessed int
}

// Run runs SGD until ctx is done or the Stepper fails.
//
// It returns nil when ctx is done, and the Stepper's
// error otherwise.
func (s *SGD) Run(ctx context.Context) error {
	if s.Samples.Len() == 0 {
		return errors.New("cannot run SGD with empty sample list")
	}
	idx := s.Samples.Len()
	for ctx.Err() == nil {
		remaining := s.Samples.Len() - idx
		if remaining == 0 {
			Shuffle(s.Rand, s.Samples)
			idx = 0
			remaining = s.Samples.Len()
		}
		batchSize := s.batchSize(remaining)
		batch := s.Samples.Slice(idx, idx+batchSize)
		idx += batchSize

		if s.StatusFunc != nil {
			s.StatusFunc(batch)
			if ctx.Err() != nil {
				break
			}
		}

		if err := s.Stepper.Step(batch); err != nil {
			return err
		}
		s.NumProcessed += batchSize
	}
	return nil
}

func (s *SGD) batchSize(remaining int) int {
	if s.BatchSize == 0 || s.BatchSize > remaining {
		return remaining
	} else {
		return s.BatchSize
	}
}

// ApplyStep moves every variable in g against its
// gradient, scaled by the learning rate.
//
// The gradient is scaled in place.
func ApplyStep(g anydiff.Grad, rate float64) {
	for _, v := range g {
		v.Scale(v.Creator().MakeNumeric(-rate))
	}
	g.AddToVars()
}
