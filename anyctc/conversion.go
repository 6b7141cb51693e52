package anyctc

import (
	"fmt"

	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/anyvec"
	"gonum.org/v1/gonum/floats"
)

// float64s returns the numbers of a vector as float64s.
// The dynamic programs run in float64 even for float32
// models.
func float64s(v anyvec.Vector) []float64 {
	switch d := v.Data().(type) {
	case []float64:
		return d
	case []float32:
		res := make([]float64, len(d))
		for i, x := range d {
			res[i] = float64(x)
		}
		return res
	default:
		panic(fmt.Sprintf("unsupported numeric type: %T", d))
	}
}

// sequenceSteps splits a time-major batch into the
// timesteps of each sequence.
// Timestep t of sequence i holds its class scores.
func sequenceSteps(batches []*anyseq.Batch) [][][]float64 {
	if len(batches) == 0 {
		return nil
	}
	res := make([][][]float64, len(batches[0].Present))
	for _, batch := range batches {
		n := batch.NumPresent()
		if n == 0 {
			continue
		}
		data := float64s(batch.Packed)
		size := len(data) / n
		var j int
		for i, present := range batch.Present {
			if present {
				res[i] = append(res[i], data[j*size:(j+1)*size])
				j++
			}
		}
	}
	return res
}

// logSoftmaxSteps normalizes every timestep in place.
func logSoftmaxSteps(steps [][]float64) {
	for _, step := range steps {
		floats.AddConst(-floats.LogSumExp(step), step)
	}
}
