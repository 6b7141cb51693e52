package htr

import "errors"

// Configuration errors.
// These are fatal and retrying will not help.
var (
	ErrEmptyVocab = errors.New("vocabulary is empty")
	ErrNoSnapshot = errors.New("no saved snapshot")
	ErrConfig     = errors.New("invalid configuration")
)

// Contract violations by a caller.
var (
	ErrShape       = errors.New("batch does not match the model")
	ErrUnknownChar = errors.New("character not in vocabulary")
)

// ErrNonFinite is returned when the loss of a batch is
// NaN or infinite, which usually means that a label cannot
// be aligned with the available timesteps.
var ErrNonFinite = errors.New("non-finite loss")
