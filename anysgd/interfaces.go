package anysgd

import "github.com/unixpickle/anydiff"

// A Transformer transforms gradients.
// For example, pre-conditioning could be implemented as a
// transformer.
//
// After its first call, a Transformer expects to see
// gradients of the same form (i.e. containing the same
// variables).
//
// A Transformer may modify its own input and return the
// same gradient as an output.
// However, a Transformer should not retain a reference to
// the input after Transform returns.
type Transformer interface {
	Transform(g anydiff.Grad) anydiff.Grad
}

// A StepRater determines the learning rate given the
// number of steps taken so far.
type StepRater interface {
	Rate(step int) float64
}

// A SampleList represents a list of training samples.
type SampleList interface {
	// Len returns the number of samples.
	Len() int

	// Swap swaps two samples.
	Swap(i, j int)

	// Slice generates a shallow copy of a subset of the
	// list.
	Slice(i, j int) SampleList
}

// PostShuffler is used to notify a SampleList that it has
// been shuffled, allowing it to perform any sample
// re-ordering it likes.
type PostShuffler interface {
	PostShuffle()
}

// A Hasher is a SampleList which can produce a stable
// hash for each of its samples.
type Hasher interface {
	SampleList
	Hash(i int) []byte
}
