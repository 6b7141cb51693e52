package anyctc

import "github.com/pkg/errors"

// ErrMalformedLabels is returned when a SparseLabels
// value breaks its layout invariants.
var ErrMalformedLabels = errors.New("malformed sparse labels")

// SparseLabels stores a batch of ragged labels in
// coordinate form.
//
// Entry i places Values[i] at position Indices[i][1] of
// the label for batch element Indices[i][0].
// Entries are ordered by batch element, and the
// positions of each element run contiguously from 0.
// Shape is (batch size, longest label length).
type SparseLabels struct {
	Indices [][2]int
	Values  []int
	Shape   [2]int
}

// NewSparseLabels packs ragged labels.
func NewSparseLabels(labels [][]int) *SparseLabels {
	res := &SparseLabels{Shape: [2]int{len(labels), 0}}
	for i, label := range labels {
		for j, x := range label {
			res.Indices = append(res.Indices, [2]int{i, j})
			res.Values = append(res.Values, x)
		}
		if len(label) > res.Shape[1] {
			res.Shape[1] = len(label)
		}
	}
	return res
}

// Validate checks the layout invariants.
func (s *SparseLabels) Validate() error {
	if len(s.Indices) != len(s.Values) {
		return errors.Wrapf(ErrMalformedLabels, "%d indices for %d values",
			len(s.Indices), len(s.Values))
	}
	next := make([]int, s.Shape[0])
	lastBatch := 0
	maxLen := 0
	for i, idx := range s.Indices {
		b, p := idx[0], idx[1]
		if b < 0 || b >= s.Shape[0] {
			return errors.Wrapf(ErrMalformedLabels, "entry %d: batch index %d out of range", i, b)
		} else if b < lastBatch {
			return errors.Wrapf(ErrMalformedLabels, "entry %d: batch index %d out of order", i, b)
		} else if p != next[b] {
			return errors.Wrapf(ErrMalformedLabels, "entry %d: expected position %d but got %d",
				i, next[b], p)
		} else if s.Values[i] < 0 {
			return errors.Wrapf(ErrMalformedLabels, "entry %d: negative value %d", i, s.Values[i])
		}
		lastBatch = b
		next[b]++
		if next[b] > maxLen {
			maxLen = next[b]
		}
	}
	if maxLen != s.Shape[1] {
		return errors.Wrapf(ErrMalformedLabels, "shape says max length %d but found %d",
			s.Shape[1], maxLen)
	}
	return nil
}

// Labels unpacks the ragged labels.
// Elements without entries get empty, non-nil labels.
//
// The result is only meaningful if Validate succeeds.
func (s *SparseLabels) Labels() [][]int {
	res := make([][]int, s.Shape[0])
	for i := range res {
		res[i] = make([]int, 0)
	}
	for i, idx := range s.Indices {
		res[idx[0]] = append(res[idx[0]], s.Values[i])
	}
	return res
}
