// Package anyctc implements Connectionist Temporal
// Classification (CTC).
// For more information on CTC, see this paper:
// http://www.cs.toronto.edu/~graves/icml_2006.pdf.
//
// Inputs are time-major sequences of log-probabilities
// with one extra class at the end of every timestep for
// the blank symbol.
// Decoding collapses runs of the same symbol and then
// drops blanks, so emitting the same character twice in
// a row requires a blank between the two emissions.
package anyctc
