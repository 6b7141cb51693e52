package anyconv

import (
	"fmt"
	"math/rand"

	"github.com/YewRongDe/HTR"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

func init() {
	var s Stage
	serializer.RegisterTypedDeserializer(s.SerializerType(), DeserializeStage)
}

// StageSpec describes one stage of an Extractor.
type StageSpec struct {
	// Kernel is the width and height of the square filters.
	Kernel int

	// Filters is the output depth of the stage.
	Filters int

	// PoolX and PoolY are the max-pooling spans along the
	// width and height axes.
	PoolX int
	PoolY int
}

// A Stage is one convolutional block of an Extractor.
//
// It convolves with "same" padding, normalizes, applies a
// leaky ReLU and then max-pools, so only the pool changes
// the spatial size.
type Stage struct {
	Conv *Conv
	Norm *BatchNorm
	Pool *MaxPool
}

// DeserializeStage deserializes a Stage.
func DeserializeStage(d []byte) (*Stage, error) {
	var res Stage
	err := serializer.DeserializeAny(d, &res.Conv, &res.Norm, &res.Pool)
	if err != nil {
		return nil, essentials.AddCtx("deserialize Stage", err)
	}
	return &res, nil
}

// NewStage creates a randomly initialized Stage for input
// tensors of the given size.
//
// If r is nil, the global random source is used.
func NewStage(c anyvec.Creator, r *rand.Rand, width, height, depth int,
	spec StageSpec) *Stage {
	return &Stage{
		Conv: NewConv(c, r, width, height, depth, spec.Kernel, spec.Filters),
		Norm: NewBatchNorm(c, spec.Filters),
		Pool: &MaxPool{
			SpanX:       spec.PoolX,
			SpanY:       spec.PoolY,
			InputWidth:  width,
			InputHeight: height,
			InputDepth:  spec.Filters,
		},
	}
}

// Net returns the layers of the stage in order.
func (s *Stage) Net() htr.Net {
	return htr.Net{s.Conv, s.Norm, htr.LeakyReLU, s.Pool}
}

// Apply applies the stage to a batch of tensors.
func (s *Stage) Apply(in anydiff.Res, batch int, mode htr.Mode) anydiff.Res {
	return s.Net().Apply(in, batch, mode)
}

// OutputWidth returns the width of the output tensor.
func (s *Stage) OutputWidth() int {
	return s.Pool.OutputWidth()
}

// OutputHeight returns the height of the output tensor.
func (s *Stage) OutputHeight() int {
	return s.Pool.OutputHeight()
}

// OutputDepth returns the depth of the output tensor.
func (s *Stage) OutputDepth() int {
	return s.Pool.OutputDepth()
}

// Parameters returns the convolution and normalization
// parameters.
func (s *Stage) Parameters() []*anydiff.Var {
	return append(s.Conv.Parameters(), s.Norm.Parameters()...)
}

// SerializerType returns the unique ID used to serialize
// a Stage with the serializer package.
func (s *Stage) SerializerType() string {
	return "github.com/YewRongDe/HTR/anyconv.Stage"
}

// Serialize serializes the Stage.
func (s *Stage) Serialize() ([]byte, error) {
	return serializer.SerializeAny(s.Conv, s.Norm, s.Pool)
}

func (s StageSpec) validate() error {
	if s.Kernel < 1 || s.Filters < 1 || s.PoolX < 1 || s.PoolY < 1 {
		return fmt.Errorf("invalid stage %+v: all sizes must be positive", s)
	}
	return nil
}
