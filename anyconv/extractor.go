package anyconv

import (
	"fmt"
	"math/rand"

	"github.com/YewRongDe/HTR"
	"github.com/pkg/errors"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

func init() {
	var e Extractor
	serializer.RegisterTypedDeserializer(e.SerializerType(), DeserializeExtractor)
}

// DefaultStages is the stage table for 128x32 images.
// It produces a feature map of height 1, width 32 and
// depth 512.
var DefaultStages = []StageSpec{
	{Kernel: 5, Filters: 32, PoolX: 2, PoolY: 2},
	{Kernel: 5, Filters: 64, PoolX: 2, PoolY: 2},
	{Kernel: 3, Filters: 128, PoolX: 1, PoolY: 1},
	{Kernel: 3, Filters: 128, PoolX: 1, PoolY: 2},
	{Kernel: 3, Filters: 256, PoolX: 1, PoolY: 2},
	{Kernel: 3, Filters: 256, PoolX: 1, PoolY: 2},
	{Kernel: 3, Filters: 512, PoolX: 1, PoolY: 1},
}

// An Extractor turns grayscale images into feature maps
// of height 1.
//
// Column x of the feature map summarizes a vertical strip
// of the image, so the output width is the number of
// timesteps available to the sequence encoder.
type Extractor struct {
	InputWidth  int
	InputHeight int

	Stages []*Stage
}

// DeserializeExtractor deserializes an Extractor.
func DeserializeExtractor(d []byte) (*Extractor, error) {
	slice, err := serializer.DeserializeSlice(d)
	if err != nil {
		return nil, essentials.AddCtx("deserialize Extractor", err)
	}
	if len(slice) < 2 {
		return nil, errors.New("deserialize Extractor: missing image size")
	}
	width, ok1 := slice[0].(serializer.Int)
	height, ok2 := slice[1].(serializer.Int)
	if !ok1 || !ok2 {
		return nil, errors.New("deserialize Extractor: bad image size")
	}
	res := &Extractor{InputWidth: int(width), InputHeight: int(height)}
	for _, x := range slice[2:] {
		stage, ok := x.(*Stage)
		if !ok {
			return nil, fmt.Errorf("deserialize Extractor: not a Stage: %T", x)
		}
		res.Stages = append(res.Stages, stage)
	}
	return res, nil
}

// NewExtractor creates a randomly initialized Extractor
// for single-channel images of the given size.
//
// It fails with htr.ErrConfig if the stages do not
// reduce the height to exactly 1 or if they reduce the
// width to 0.
func NewExtractor(c anyvec.Creator, r *rand.Rand, width, height int,
	stages []StageSpec) (*Extractor, error) {
	if width < 1 || height < 1 {
		return nil, errors.Wrapf(htr.ErrConfig, "image size %dx%d", width, height)
	}
	if len(stages) == 0 {
		return nil, errors.Wrap(htr.ErrConfig, "no extractor stages")
	}
	res := &Extractor{InputWidth: width, InputHeight: height}
	w, h, d := width, height, 1
	for i, spec := range stages {
		if err := spec.validate(); err != nil {
			return nil, errors.Wrapf(htr.ErrConfig, "stage %d: %v", i, err)
		}
		stage := NewStage(c, r, w, h, d, spec)
		w, h, d = stage.OutputWidth(), stage.OutputHeight(), stage.OutputDepth()
		if w == 0 || h == 0 {
			return nil, errors.Wrapf(htr.ErrConfig,
				"stage %d reduces %dx%d images to nothing", i, width, height)
		}
		res.Stages = append(res.Stages, stage)
	}
	if h != 1 {
		return nil, errors.Wrapf(htr.ErrConfig,
			"feature map height is %d (expected 1) for %dx%d images", h, width, height)
	}
	return res, nil
}

// SetParallel controls whether the convolutions spread
// the images of a batch across CPUs.
func (e *Extractor) SetParallel(parallel bool) {
	for _, s := range e.Stages {
		s.Conv.Parallel = parallel
	}
}

// OutputWidth returns the width of the feature map, which
// is the sequence length.
func (e *Extractor) OutputWidth() int {
	return e.Stages[len(e.Stages)-1].OutputWidth()
}

// OutputDepth returns the number of features per column.
func (e *Extractor) OutputDepth() int {
	return e.Stages[len(e.Stages)-1].OutputDepth()
}

// Apply applies the stages to a batch of images.
//
// It panics if the input length is not batch times the
// image size.
func (e *Extractor) Apply(in anydiff.Res, batch int, mode htr.Mode) anydiff.Res {
	imgSize := e.InputWidth * e.InputHeight
	if in.Output().Len() != batch*imgSize {
		panic(fmt.Sprintf("extractor input length should be %d, but got %d",
			batch*imgSize, in.Output().Len()))
	}
	for _, s := range e.Stages {
		in = s.Apply(in, batch, mode)
	}
	return in
}

// Parameters returns the parameters of every stage.
func (e *Extractor) Parameters() []*anydiff.Var {
	var res []*anydiff.Var
	for _, s := range e.Stages {
		res = append(res, s.Parameters()...)
	}
	return res
}

// SerializerType returns the unique ID used to serialize
// an Extractor with the serializer package.
func (e *Extractor) SerializerType() string {
	return "github.com/YewRongDe/HTR/anyconv.Extractor"
}

// Serialize serializes the Extractor.
func (e *Extractor) Serialize() ([]byte, error) {
	slice := []serializer.Serializer{
		serializer.Int(e.InputWidth),
		serializer.Int(e.InputHeight),
	}
	for _, s := range e.Stages {
		slice = append(slice, s)
	}
	return serializer.SerializeSlice(slice)
}
