package anysgd

import (
	"github.com/pkg/errors"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec/anyvecsave"
	"github.com/unixpickle/serializer"
)

// errMomentMismatch reports stored moments which do not
// line up with the variables they are restored into.
var errMomentMismatch = errors.New("moments do not match parameters")

// encodeMoments stores the variable count followed by one
// moment vector per variable.
// A nil moment (no step taken yet) encodes as no data.
func encodeMoments(vars []*anydiff.Var, moment anydiff.Grad) ([]byte, error) {
	if moment == nil {
		return []byte{}, nil
	}
	if len(vars) != len(moment) {
		return nil, errors.Wrapf(errMomentMismatch, "%d variables but %d moments",
			len(vars), len(moment))
	}
	objs := []interface{}{serializer.Int(len(vars))}
	for i, v := range vars {
		vec, ok := moment[v]
		if !ok {
			return nil, errors.Wrapf(errMomentMismatch, "no moment for variable %d", i)
		}
		objs = append(objs, &anyvecsave.S{Vector: vec})
	}
	return serializer.SerializeAny(objs...)
}

func decodeMoments(vars []*anydiff.Var, data []byte) (anydiff.Grad, error) {
	if len(data) == 0 {
		return nil, nil
	}
	slice, err := serializer.DeserializeSlice(data)
	if err != nil {
		return nil, errors.Wrap(err, "decode moments")
	}
	if len(slice) == 0 {
		return nil, errors.Wrap(errMomentMismatch, "missing moment count")
	}
	count, ok := slice[0].(serializer.Int)
	if !ok || int(count) != len(slice)-1 {
		return nil, errors.Wrap(errMomentMismatch, "bad moment count")
	}
	if int(count) != len(vars) {
		return nil, errors.Wrapf(errMomentMismatch, "%d stored moments for %d variables",
			count, len(vars))
	}

	res := anydiff.Grad{}
	for i, v := range vars {
		saved, ok := slice[i+1].(*anyvecsave.S)
		if !ok {
			return nil, errors.Wrapf(errMomentMismatch, "moment %d is a %T", i, slice[i+1])
		}
		vec := saved.Vector
		if vec.Len() != v.Vector.Len() {
			return nil, errors.Wrapf(errMomentMismatch, "moment %d has length %d, variable has %d",
				i, vec.Len(), v.Vector.Len())
		} else if vec.Creator() != v.Vector.Creator() {
			return nil, errors.Wrapf(errMomentMismatch, "moment %d has a different creator", i)
		}
		res[v] = vec
	}
	return res, nil
}
