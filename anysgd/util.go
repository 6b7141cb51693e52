package anysgd

import (
	"math/rand"

	"github.com/unixpickle/anydiff"
)

// Shuffle shuffles a list of samples.
// If the list implements PostShuffler, then PostShuffle
// is called after the shuffle completes.
//
// If r is nil, the global random source is used.
func Shuffle(r *rand.Rand, s SampleList) {
	intn := rand.Intn
	if r != nil {
		intn = r.Intn
	}
	for i := 0; i < s.Len(); i++ {
		j := i + intn(s.Len()-i)
		s.Swap(i, j)
	}
	if p, ok := s.(PostShuffler); ok {
		p.PostShuffle()
	}
}

func copyGrad(g anydiff.Grad) anydiff.Grad {
	res := anydiff.Grad{}
	for v, x := range g {
		res[v] = x.Copy()
	}
	return res
}
