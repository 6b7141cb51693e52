package htr

import (
	"strings"

	"github.com/YewRongDe/HTR/anyctc"
	"github.com/pkg/errors"
)

// A Vocab is an ordered, immutable character set.
//
// Character i is encoded as the label i.
// The CTC blank is encoded as Len().
type Vocab struct {
	chars []rune
	index map[rune]int
}

// NewVocab creates a vocabulary from the characters of a
// string, in order.
// Duplicate characters are an error.
func NewVocab(chars string) (*Vocab, error) {
	if chars == "" {
		return nil, ErrEmptyVocab
	}
	res := &Vocab{index: map[rune]int{}}
	for _, ch := range chars {
		if _, ok := res.index[ch]; ok {
			return nil, errors.Wrapf(ErrConfig, "duplicate vocabulary character %q", ch)
		}
		res.index[ch] = len(res.chars)
		res.chars = append(res.chars, ch)
	}
	return res, nil
}

// Len returns the number of characters, not counting the
// blank.
func (v *Vocab) Len() int {
	return len(v.chars)
}

// Blank returns the label of the blank symbol.
func (v *Vocab) Blank() int {
	return len(v.chars)
}

// NumClasses returns the number of outputs a model needs
// per timestep: one per character, plus the blank.
func (v *Vocab) NumClasses() int {
	return len(v.chars) + 1
}

// Index returns the label of a character.
func (v *Vocab) Index(ch rune) (int, bool) {
	idx, ok := v.index[ch]
	return idx, ok
}

// Char returns the character for a label.
// It panics if the label is out of range or the blank.
func (v *Vocab) Char(label int) rune {
	return v.chars[label]
}

// String returns the characters in order.
func (v *Vocab) String() string {
	return string(v.chars)
}

// Encode converts a text into a label sequence.
func (v *Vocab) Encode(text string) ([]int, error) {
	res := make([]int, 0, len(text))
	for _, ch := range text {
		idx, ok := v.index[ch]
		if !ok {
			return nil, errors.Wrapf(ErrUnknownChar, "encode %q: character %q", text, ch)
		}
		res = append(res, idx)
	}
	return res, nil
}

// Decode converts a label sequence into text.
// Blanks and out-of-range labels are skipped.
func (v *Vocab) Decode(labels []int) string {
	var b strings.Builder
	for _, l := range labels {
		if l >= 0 && l < len(v.chars) {
			b.WriteRune(v.chars[l])
		}
	}
	return b.String()
}

// Sparse encodes a batch of texts as a sparse label
// batch.
func (v *Vocab) Sparse(texts []string) (*anyctc.SparseLabels, error) {
	labels := make([][]int, len(texts))
	for i, text := range texts {
		l, err := v.Encode(text)
		if err != nil {
			return nil, err
		}
		labels[i] = l
	}
	return anyctc.NewSparseLabels(labels), nil
}
