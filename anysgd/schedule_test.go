package anysgd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultSchedule(t *testing.T) {
	s := DefaultSchedule()
	cases := map[int]float64{
		0:     0.01,
		9:     0.01,
		10:    0.001,
		9999:  0.001,
		10000: 0.0001,
		50000: 0.0001,
	}
	for step, expected := range cases {
		assert.Equal(t, expected, s.Rate(step), "step %d", step)
	}
}

func TestPiecewiseSingleRate(t *testing.T) {
	p := &Piecewise{Rates: []float64{0.5}}
	assert.Equal(t, 0.5, p.Rate(0))
	assert.Equal(t, 0.5, p.Rate(1000))
}
