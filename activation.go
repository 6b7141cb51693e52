package htr

import (
	"fmt"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/serializer"
)

// LeakySlope is the slope LeakyReLU uses for negative
// inputs.
const LeakySlope = 0.2

func init() {
	var a Activation
	serializer.RegisterTypedDeserializer(a.SerializerType(), DeserializeActivation)
}

// An Activation is a standard activation function.
type Activation int

// Activations used by the recognizer: the LSTM gates, the
// convolution stages and the class scores.
const (
	Tanh Activation = iota
	LogSoftmax
	Sigmoid
	LeakyReLU
)

// DeserializeActivation deserializes an Activation.
func DeserializeActivation(d []byte) (Activation, error) {
	if len(d) != 1 {
		return 0, fmt.Errorf("deserialize Activation: data length (%d) should be 1", len(d))
	}
	a := Activation(d[0])
	if a > LeakyReLU {
		return 0, fmt.Errorf("deserialize Activation: unknown activation ID: %d", a)
	}
	return a, nil
}

// Apply applies the activation function.
// Activations behave the same in every Mode.
func (a Activation) Apply(in anydiff.Res, n int, mode Mode) anydiff.Res {
	switch a {
	case Tanh:
		return anydiff.Tanh(in)
	case LogSoftmax:
		inLen := in.Output().Len()
		if inLen%n != 0 {
			panic("batch size must divide input length")
		}
		return anydiff.LogSoftmax(in, inLen/n)
	case Sigmoid:
		return anydiff.Sigmoid(in)
	case LeakyReLU:
		c := in.Output().Creator()
		return anydiff.Pool(in, func(in anydiff.Res) anydiff.Res {
			pos := anydiff.Scale(anydiff.ClipPos(in), c.MakeNumeric(1-LeakySlope))
			return anydiff.Add(pos, anydiff.Scale(in, c.MakeNumeric(LeakySlope)))
		})
	default:
		panic(fmt.Sprintf("unknown activation: %d", a))
	}
}

// SerializerType returns the unique ID used to serialize
// an Activation.
func (a Activation) SerializerType() string {
	return "github.com/YewRongDe/HTR.Activation"
}

// Serialize serializes the activation.
func (a Activation) Serialize() ([]byte, error) {
	return []byte{byte(a)}, nil
}
