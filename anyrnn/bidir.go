package anyrnn

import (
	"math/rand"

	"github.com/YewRongDe/HTR"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

func init() {
	var b Bidir
	serializer.RegisterTypedDeserializer(b.SerializerType(), DeserializeBidir)
}

// Bidir implements a bi-directional RNN.
//
// In a bi-directional RNN, a forward block is evaluated
// on the input sequence, while a backward block is mapped
// over the reversed input sequence.
// Then, outputs from the forward and backward block for
// corresponding timesteps in the original sequence are
// concatenated, forward outputs first.
//
// The two blocks do not share weights.
type Bidir struct {
	Forward  Block
	Backward Block
}

// DeserializeBidir deserializes a Bidir.
func DeserializeBidir(d []byte) (*Bidir, error) {
	var res Bidir
	err := serializer.DeserializeAny(d, &res.Forward, &res.Backward)
	if err != nil {
		return nil, essentials.AddCtx("deserialize Bidir", err)
	}
	return &res, nil
}

// NewBidir creates a Bidir whose directions are each a
// Stack of layers LSTMs.
// Every output vector has 2*hidden components.
//
// If r is nil, the global random source is used.
func NewBidir(c anyvec.Creator, r *rand.Rand, in, hidden, layers int) *Bidir {
	return &Bidir{
		Forward:  NewLSTMStack(c, r, in, hidden, layers),
		Backward: NewLSTMStack(c, r, in, hidden, layers),
	}
}

// Apply applies the bidirectional RNN.
func (b *Bidir) Apply(in anyseq.Seq) anyseq.Seq {
	return anyseq.Pool(in, func(in anyseq.Seq) anyseq.Seq {
		forwOut := Map(in, b.Forward)
		backOut := anyseq.Reverse(Map(anyseq.Reverse(in), b.Backward))
		return anyseq.MapN(func(n int, v ...anydiff.Res) anydiff.Res {
			return htr.ConcatMixer{}.Mix(v[0], v[1], n)
		}, forwOut, backOut)
	})
}

// Parameters returns the parameters of the forward block
// followed by those of the backward block.
func (b *Bidir) Parameters() []*anydiff.Var {
	return htr.AllParameters(b.Forward, b.Backward)
}

// SerializerType returns the unique ID used to serialize
// a Bidir with the serializer package.
func (b *Bidir) SerializerType() string {
	return "github.com/YewRongDe/HTR/anyrnn.Bidir"
}

// Serialize serializes the Bidir.
func (b *Bidir) Serialize() ([]byte, error) {
	return serializer.SerializeAny(b.Forward, b.Backward)
}
