package main

import (
	"math/rand"
	"strings"

	"github.com/YewRongDe/HTR/anysgd"
)

// wordList is an anysgd.SampleList of words.
type wordList []string

// randomWords generates words from the characters of a
// vocabulary.
func randomWords(r *rand.Rand, chars string, count, maxLen int) wordList {
	runes := []rune(strings.TrimSpace(chars))
	res := make(wordList, count)
	for i := range res {
		word := make([]rune, 1+r.Intn(maxLen))
		for j := range word {
			word[j] = runes[r.Intn(len(runes))]
		}
		res[i] = string(word)
	}
	return res
}

func (w wordList) Len() int {
	return len(w)
}

func (w wordList) Swap(i, j int) {
	w[i], w[j] = w[j], w[i]
}

func (w wordList) Slice(i, j int) anysgd.SampleList {
	return append(wordList{}, w[i:j]...)
}

// Hash hashes the word itself, so duplicate words always
// land on the same side of a split.
func (w wordList) Hash(i int) []byte {
	return []byte(w[i])
}
