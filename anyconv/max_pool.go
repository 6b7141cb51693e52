package anyconv

import (
	"fmt"
	"sync"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"

	"github.com/YewRongDe/HTR"
)

func init() {
	var m MaxPool
	serializer.RegisterTypedDeserializer(m.SerializerType(), DeserializeMaxPool)
}

// MaxPool takes the maximum of every channel over
// non-overlapping SpanX by SpanY windows.
//
// Rows or columns at the end of the input which do not
// fill a window are dropped.
type MaxPool struct {
	SpanX int
	SpanY int

	InputWidth  int
	InputHeight int
	InputDepth  int

	lock    sync.Mutex
	windows anyvec.Mapper
}

// DeserializeMaxPool deserializes a MaxPool.
func DeserializeMaxPool(d []byte) (*MaxPool, error) {
	var sX, sY, iW, iH, iD serializer.Int
	if err := serializer.DeserializeAny(d, &sX, &sY, &iW, &iH, &iD); err != nil {
		return nil, essentials.AddCtx("deserialize MaxPool", err)
	}
	return &MaxPool{
		SpanX:       int(sX),
		SpanY:       int(sY),
		InputWidth:  int(iW),
		InputHeight: int(iH),
		InputDepth:  int(iD),
	}, nil
}

// OutputWidth returns the width of the output tensor.
func (m *MaxPool) OutputWidth() int {
	return m.InputWidth / m.SpanX
}

// OutputHeight returns the height of the output tensor.
func (m *MaxPool) OutputHeight() int {
	return m.InputHeight / m.SpanY
}

// OutputDepth returns the depth of the output tensor.
func (m *MaxPool) OutputDepth() int {
	return m.InputDepth
}

// Apply pools a batch of tensors.
// Pooling behaves the same in every Mode.
func (m *MaxPool) Apply(in anydiff.Res, batch int, mode htr.Mode) anydiff.Res {
	inSize := m.InputWidth * m.InputHeight * m.InputDepth
	if in.Output().Len() != batch*inSize {
		panic(fmt.Sprintf("max pool input length should be %d, but got %d",
			batch*inSize, in.Output().Len()))
	}
	cr := in.Output().Creator()
	windows := m.windowMapper(cr)
	gathered := cr.MakeVector(windows.OutSize())

	res := &maxPoolRes{Layer: m, In: in, Argmax: make([]anyvec.Mapper, batch)}
	outs := make([]anyvec.Vector, batch)
	for i := range outs {
		windows.Map(in.Output().Slice(inSize*i, inSize*(i+1)), gathered)
		res.Argmax[i] = anyvec.MapMax(gathered, m.SpanX*m.SpanY)
		outs[i] = cr.MakeVector(res.Argmax[i].OutSize())
		res.Argmax[i].Map(gathered, outs[i])
	}
	res.OutVec = cr.Concat(outs...)
	return res
}

// SerializerType returns the unique ID used to serialize
// a MaxPool with the serializer package.
func (m *MaxPool) SerializerType() string {
	return "github.com/YewRongDe/HTR/anyconv.MaxPool"
}

// Serialize serializes the MaxPool.
func (m *MaxPool) Serialize() ([]byte, error) {
	return serializer.SerializeAny(
		serializer.Int(m.SpanX),
		serializer.Int(m.SpanY),
		serializer.Int(m.InputWidth),
		serializer.Int(m.InputHeight),
		serializer.Int(m.InputDepth),
	)
}

// windowMapper gathers every window of every channel into
// a contiguous run of SpanX*SpanY values, in output order.
func (m *MaxPool) windowMapper(cr anyvec.Creator) anyvec.Mapper {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.windows != nil && m.windows.Creator() == cr {
		return m.windows
	}
	var mapping []int
	for outY := 0; outY < m.OutputHeight(); outY++ {
		for outX := 0; outX < m.OutputWidth(); outX++ {
			for z := 0; z < m.InputDepth; z++ {
				for y := outY * m.SpanY; y < (outY+1)*m.SpanY; y++ {
					for x := outX * m.SpanX; x < (outX+1)*m.SpanX; x++ {
						mapping = append(mapping, (y*m.InputWidth+x)*m.InputDepth+z)
					}
				}
			}
		}
	}
	m.windows = cr.MakeMapper(m.InputWidth*m.InputHeight*m.InputDepth, mapping)
	return m.windows
}

type maxPoolRes struct {
	Layer  *MaxPool
	In     anydiff.Res
	OutVec anyvec.Vector
	Argmax []anyvec.Mapper
}

func (m *maxPoolRes) Output() anyvec.Vector {
	return m.OutVec
}

func (m *maxPoolRes) Vars() anydiff.VarSet {
	return m.In.Vars()
}

func (m *maxPoolRes) Propagate(u anyvec.Vector, g anydiff.Grad) {
	if !g.Intersects(m.In.Vars()) {
		return
	}
	cr := u.Creator()
	windows := m.Layer.windowMapper(cr)
	outSize := u.Len() / len(m.Argmax)
	downs := make([]anyvec.Vector, len(m.Argmax))
	for i, argmax := range m.Argmax {
		gathered := cr.MakeVector(argmax.InSize())
		argmax.MapTranspose(u.Slice(outSize*i, outSize*(i+1)), gathered)
		downs[i] = cr.MakeVector(windows.InSize())
		windows.MapTranspose(gathered, downs[i])
	}
	m.In.Propagate(cr.Concat(downs...), g)
}
