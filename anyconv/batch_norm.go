package anyconv

import (
	"github.com/YewRongDe/HTR"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvecsave"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

const (
	defaultBNStabilizer = 1e-3
	defaultBNMomentum   = 0.99
)

func init() {
	var b BatchNorm
	serializer.RegisterTypedDeserializer(b.SerializerType(), DeserializeBatchNorm)
}

// BatchNorm is a batch normalization layer.
//
// In htr.Train mode, inputs are normalized with the
// statistics of the batch, and those statistics are
// folded into RunningMean and RunningVar.
// In htr.Eval mode, the running statistics are used and
// nothing is updated, so the output for an image does not
// depend on the rest of its batch.
type BatchNorm struct {
	// InputCount indicates how many components to normalize.
	//
	// After a convolutional layer, this should be the
	// number of filters.
	InputCount int

	// Post-normalization affine transform.
	Scalers *anydiff.Var
	Biases  *anydiff.Var

	// Population statistics, one entry per component.
	RunningMean anyvec.Vector
	RunningVar  anyvec.Vector

	// Momentum is the weight of the old running statistics
	// in every update.
	//
	// If it is 0, a default is used.
	Momentum float64

	// Stabilizer prevents numerical instability by adding a
	// small constant to variances to keep them from being 0.
	//
	// If it is 0, a default is used.
	Stabilizer float64
}

// DeserializeBatchNorm deserializes a BatchNorm.
func DeserializeBatchNorm(d []byte) (*BatchNorm, error) {
	var s, b, mean, variance *anyvecsave.S
	var stab, momentum serializer.Float64
	err := serializer.DeserializeAny(d, &s, &b, &stab, &mean, &variance, &momentum)
	if err != nil {
		return nil, essentials.AddCtx("deserialize BatchNorm", err)
	}
	return &BatchNorm{
		InputCount:  s.Vector.Len(),
		Scalers:     anydiff.NewVar(s.Vector),
		Biases:      anydiff.NewVar(b.Vector),
		RunningMean: mean.Vector,
		RunningVar:  variance.Vector,
		Momentum:    float64(momentum),
		Stabilizer:  float64(stab),
	}, nil
}

// NewBatchNorm creates a BatchNorm with an input size.
//
// The running mean starts at 0 and the running variance
// at 1, so an untrained layer in eval mode is close to
// the identity.
func NewBatchNorm(c anyvec.Creator, inCount int) *BatchNorm {
	oneScaler := c.MakeVector(inCount)
	oneScaler.AddScalar(c.MakeNumeric(1))
	return &BatchNorm{
		InputCount:  inCount,
		Scalers:     anydiff.NewVar(oneScaler),
		Biases:      anydiff.NewVar(c.MakeVector(inCount)),
		RunningMean: c.MakeVector(inCount),
		RunningVar:  oneScaler.Copy(),
	}
}

// Apply applies the layer to some inputs.
func (b *BatchNorm) Apply(in anydiff.Res, batch int, mode htr.Mode) anydiff.Res {
	if in.Output().Len()%b.InputCount != 0 {
		panic("invalid input size")
	}
	if mode == htr.Eval {
		return b.applyPopulation(in)
	}
	return anydiff.Pool(in, func(in anydiff.Res) anydiff.Res {
		c := in.Output().Creator()

		mean := channelMean(in, b.InputCount)
		secondMoment := channelMean(anydiff.Square(in), b.InputCount)
		variance := anydiff.Sub(secondMoment, anydiff.Square(mean))
		negMean := anydiff.Scale(mean, c.MakeNumeric(-1))
		b.updateRunning(negMean.Output(), variance.Output())

		variance = anydiff.AddScalar(variance, c.MakeNumeric(b.stabilizer()))
		normalizer := anydiff.Pow(variance, c.MakeNumeric(-0.5))

		totalScaler := anydiff.Mul(b.Scalers, normalizer)
		return anydiff.Pool(totalScaler, func(totalScaler anydiff.Res) anydiff.Res {
			return anydiff.ScaleAddRepeated(
				in,
				totalScaler,
				anydiff.Add(b.Biases, anydiff.Mul(negMean, totalScaler)),
			)
		})
	})
}

// Parameters returns a slice containing the scales and
// biases, in that order.
//
// The running statistics are not parameters, since they
// are not trained by gradient descent.
func (b *BatchNorm) Parameters() []*anydiff.Var {
	return []*anydiff.Var{b.Scalers, b.Biases}
}

// SerializerType returns the unique ID used to serialize
// a BatchNorm with the serializer package.
func (b *BatchNorm) SerializerType() string {
	return "github.com/YewRongDe/HTR/anyconv.BatchNorm"
}

// Serialize serializes the layer.
func (b *BatchNorm) Serialize() ([]byte, error) {
	return serializer.SerializeAny(
		&anyvecsave.S{Vector: b.Scalers.Vector},
		&anyvecsave.S{Vector: b.Biases.Vector},
		serializer.Float64(b.Stabilizer),
		&anyvecsave.S{Vector: b.RunningMean},
		&anyvecsave.S{Vector: b.RunningVar},
		serializer.Float64(b.Momentum),
	)
}

func (b *BatchNorm) applyPopulation(in anydiff.Res) anydiff.Res {
	c := in.Output().Creator()

	normalizer := b.RunningVar.Copy()
	normalizer.AddScalar(c.MakeNumeric(b.stabilizer()))
	anyvec.Pow(normalizer, c.MakeNumeric(-0.5))
	negMean := b.RunningMean.Copy()
	negMean.Scale(c.MakeNumeric(-1))

	totalScaler := anydiff.Mul(b.Scalers, anydiff.NewConst(normalizer))
	return anydiff.Pool(totalScaler, func(totalScaler anydiff.Res) anydiff.Res {
		return anydiff.ScaleAddRepeated(
			in,
			totalScaler,
			anydiff.Add(b.Biases, anydiff.Mul(anydiff.NewConst(negMean), totalScaler)),
		)
	})
}

func (b *BatchNorm) updateRunning(negMean, variance anyvec.Vector) {
	c := negMean.Creator()
	momentum := b.momentum()

	b.RunningMean.Scale(c.MakeNumeric(momentum))
	scaledMean := negMean.Copy()
	scaledMean.Scale(c.MakeNumeric(momentum - 1))
	b.RunningMean.Add(scaledMean)

	b.RunningVar.Scale(c.MakeNumeric(momentum))
	scaledVar := variance.Copy()
	scaledVar.Scale(c.MakeNumeric(1 - momentum))
	b.RunningVar.Add(scaledVar)
}

func (b *BatchNorm) stabilizer() float64 {
	if b.Stabilizer == 0 {
		return defaultBNStabilizer
	} else {
		return b.Stabilizer
	}
}

func (b *BatchNorm) momentum() float64 {
	if b.Momentum == 0 {
		return defaultBNMomentum
	} else {
		return b.Momentum
	}
}

// channelMean averages a depth-minor batch over every
// image and position, leaving one value per channel.
func channelMean(in anydiff.Res, channels int) anydiff.Res {
	rows := in.Output().Len() / channels
	sum := anydiff.SumRows(&anydiff.Matrix{Data: in, Rows: rows, Cols: channels})
	return anydiff.Scale(sum, in.Output().Creator().MakeNumeric(1/float64(rows)))
}
