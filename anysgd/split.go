package anysgd

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
)

// HashSplit partitions a Hasher.
// It can be used to deterministically split data up into
// separate validation and training samples, so a sample
// never moves between the two sets when more samples are
// added.
//
// The Hasher h will be re-ordered in place.
//
// The leftRatio argument specifies the expected fraction
// of samples that should end up on the left partition.
func HashSplit(h Hasher, leftRatio float64) (left, right SampleList) {
	if leftRatio <= 0 {
		return h.Slice(0, 0), h
	} else if leftRatio >= 1 {
		return h, h.Slice(0, 0)
	}
	cutoff := uint64(leftRatio * math.MaxUint64)
	insertIdx := 0
	for i := 0; i < h.Len(); i++ {
		if hashValue(h.Hash(i)) < cutoff {
			h.Swap(insertIdx, i)
			insertIdx++
		}
	}
	return h.Slice(0, insertIdx), h.Slice(insertIdx, h.Len())
}

// hashValue maps a hash to a uniformly distributed
// integer.
func hashValue(hash []byte) uint64 {
	digest := sha256.Sum256(hash)
	return binary.BigEndian.Uint64(digest[:8])
}
