package anysgd

import (
	"reflect"
	"testing"

	"github.com/pkg/errors"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec32"
	"github.com/unixpickle/anyvec/anyvec64"
)

// paramSizes resembles a tiny recognizer: convolution
// filters and biases, batch norm scales, LSTM weights and
// a class projection.
var paramSizes = []int{3 * 3 * 4, 4, 4, 4, 4 * 4 * 8, 4 * 8, 8 * 5, 5}

func TestMomentsEncode(t *testing.T) {
	vars := paramVars(anyvec64.DefaultCreator{})
	moment := randomGrad(vars)

	data, err := encodeMoments(vars, moment)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := decodeMoments(vars, data)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(moment, decoded) {
		t.Error("moment mismatch")
	}
}

func TestMomentsEmpty(t *testing.T) {
	vars := paramVars(anyvec64.DefaultCreator{})
	data, err := (&RMSProp{}).MarshalMoments(vars)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 0 {
		t.Errorf("expected no data before the first step, got %d bytes", len(data))
	}
	decoded, err := decodeMoments(vars, data)
	if err != nil || decoded != nil {
		t.Errorf("unexpected result %v, %v", decoded, err)
	}
}

func TestMomentsMismatch(t *testing.T) {
	vars := paramVars(anyvec64.DefaultCreator{})
	if _, err := encodeMoments(vars, randomGrad(vars[1:])); !errors.Is(err, errMomentMismatch) {
		t.Errorf("missing moment: unexpected error %v", err)
	}

	data, err := encodeMoments(vars, randomGrad(vars))
	if err != nil {
		t.Fatal(err)
	}

	// A model with one parameter fewer.
	if _, err := decodeMoments(vars[1:], data); !errors.Is(err, errMomentMismatch) {
		t.Errorf("variable count: unexpected error %v", err)
	}

	// A model with a different hidden size.
	resized := append([]*anydiff.Var{}, vars...)
	resized[4] = anydiff.NewVar(anyvec64.MakeVector(paramSizes[4] + 1))
	if _, err := decodeMoments(resized, data); !errors.Is(err, errMomentMismatch) {
		t.Errorf("variable size: unexpected error %v", err)
	}

	// A float32 model restoring float64 moments.
	if _, err := decodeMoments(paramVars(anyvec32.DefaultCreator{}), data); !errors.Is(err, errMomentMismatch) {
		t.Errorf("creator: unexpected error %v", err)
	}
}

func TestRMSPropMoments(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	vars := paramVars(c)
	inst := &RMSProp{}

	var inGrads []anydiff.Grad
	var outGrads []anydiff.Grad
	var checkpoints [][]byte

	for i := 0; i < 5; i++ {
		inGrad := randomGrad(vars)
		data, err := inst.MarshalMoments(vars)
		if err != nil {
			t.Fatal(err)
		}
		outGrad := copyGrad(inst.Transform(copyGrad(inGrad)))
		inGrads = append(inGrads, inGrad)
		checkpoints = append(checkpoints, data)
		outGrads = append(outGrads, outGrad)
	}

	// Restoring an older checkpoint replays its step.
	for _, i := range []int{3, 1, 4, 0, 2} {
		if err := inst.UnmarshalMoments(vars, checkpoints[i]); err != nil {
			t.Fatal(err)
		}
		out := inst.Transform(inGrads[i])
		if !reflect.DeepEqual(out, outGrads[i]) {
			t.Errorf("step %d came out wrong", i)
		}
	}
}

func paramVars(c anyvec.Creator) []*anydiff.Var {
	var vars []*anydiff.Var
	for _, size := range paramSizes {
		vec := c.MakeVector(size)
		anyvec.Rand(vec, anyvec.Normal, nil)
		vars = append(vars, anydiff.NewVar(vec))
	}
	return vars
}

func randomGrad(vars []*anydiff.Var) anydiff.Grad {
	res := anydiff.Grad{}
	for _, v := range vars {
		vec := v.Vector.Creator().MakeVector(v.Vector.Len())
		anyvec.Rand(vec, anyvec.Normal, nil)
		res[v] = vec
	}
	return res
}
