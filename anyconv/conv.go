// Package anyconv implements the convolutional feature
// extractor of a text recognizer.
//
// All tensors are row-major and depth-minor, so a batch
// of N images of height H, width W and depth D is packed
// as N*H*W*D values. Text runs along the width axis.
package anyconv

import (
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sync"

	"github.com/pkg/errors"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvecsave"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"

	"github.com/YewRongDe/HTR"
)

func init() {
	var c Conv
	serializer.RegisterTypedDeserializer(c.SerializerType(), DeserializeConv)
}

// Conv is a convolution with square filters, stride 1 and
// zero "same" padding, so the output has the width and
// height of the input.
//
// The padding before the input is (Kernel-1)/2 along each
// axis and the rest of Kernel-1 comes after it.
type Conv struct {
	Kernel      int
	FilterCount int

	InputWidth  int
	InputHeight int
	InputDepth  int

	// Filters is a FilterCount by PatchSize() matrix.
	// A row is laid out like a Kernel by Kernel patch of
	// the input.
	Filters *anydiff.Var
	Biases  *anydiff.Var

	// Parallel spreads the images of a batch across CPUs.
	// It is not serialized.
	Parallel bool

	lock    sync.Mutex
	patches anyvec.Mapper
}

// NewConv creates a Conv with normal random filters,
// scaled by the square root of the fan-in, and zero
// biases.
//
// If r is nil, the global random source is used.
func NewConv(c anyvec.Creator, r *rand.Rand, width, height, depth, kernel,
	filters int) *Conv {
	res := &Conv{
		Kernel:      kernel,
		FilterCount: filters,
		InputWidth:  width,
		InputHeight: height,
		InputDepth:  depth,
	}
	res.Filters = anydiff.NewVar(c.MakeVector(filters * res.PatchSize()))
	res.Biases = anydiff.NewVar(c.MakeVector(filters))
	anyvec.Rand(res.Filters.Vector, anyvec.Normal, r)
	res.Filters.Vector.Scale(c.MakeNumeric(1 / math.Sqrt(float64(res.PatchSize()))))
	return res
}

// DeserializeConv deserializes a Conv.
func DeserializeConv(d []byte) (*Conv, error) {
	var kernel, inW, inH, inD serializer.Int
	var f, b *anyvecsave.S
	err := serializer.DeserializeAny(d, &kernel, &inW, &inH, &inD, &f, &b)
	if err != nil {
		return nil, essentials.AddCtx("deserialize Conv", err)
	}
	res := &Conv{
		Kernel:      int(kernel),
		FilterCount: b.Vector.Len(),
		InputWidth:  int(inW),
		InputHeight: int(inH),
		InputDepth:  int(inD),
		Filters:     anydiff.NewVar(f.Vector),
		Biases:      anydiff.NewVar(b.Vector),
	}
	if f.Vector.Len() != res.FilterCount*res.PatchSize() {
		return nil, errors.Errorf("deserialize Conv: %d filter values for %d filters of size %d",
			f.Vector.Len(), res.FilterCount, res.PatchSize())
	}
	return res, nil
}

// PatchSize returns the number of input values a filter
// covers.
func (c *Conv) PatchSize() int {
	return c.Kernel * c.Kernel * c.InputDepth
}

// OutputWidth returns the width of the output tensor.
func (c *Conv) OutputWidth() int {
	return c.InputWidth
}

// OutputHeight returns the height of the output tensor.
func (c *Conv) OutputHeight() int {
	return c.InputHeight
}

// OutputDepth returns the depth of the output tensor.
func (c *Conv) OutputDepth() int {
	return c.FilterCount
}

// Apply convolves a batch of tensors.
// Convolution behaves the same in every Mode.
func (c *Conv) Apply(in anydiff.Res, batch int, mode htr.Mode) anydiff.Res {
	inSize := c.InputWidth * c.InputHeight * c.InputDepth
	if in.Output().Len() != batch*inSize {
		panic(fmt.Sprintf("conv input length should be %d, but got %d",
			batch*inSize, in.Output().Len()))
	}
	cr := in.Output().Creator()
	patches := c.patchMapper(cr)
	filters := c.filterMatrix()
	pixels := c.InputWidth * c.InputHeight

	outs := make([]anyvec.Vector, batch)
	c.eachImage(cr, batch, func(i int, mat *anyvec.Matrix) {
		loadPatches(patches, in.Output(), i, mat)
		out := &anyvec.Matrix{
			Data: cr.MakeVector(pixels * c.FilterCount),
			Rows: pixels,
			Cols: c.FilterCount,
		}
		out.Product(false, true, cr.MakeNumeric(1), mat, filters, cr.MakeNumeric(0))
		outs[i] = out.Data
	})
	outVec := cr.Concat(outs...)
	anyvec.AddRepeated(outVec, c.Biases.Vector)

	return &convRes{
		Layer:  c,
		N:      batch,
		In:     in,
		OutVec: outVec,
		V:      anydiff.MergeVarSets(in.Vars(), anydiff.NewVarSet(c.Filters, c.Biases)),
	}
}

// Parameters returns the filters and then the biases.
func (c *Conv) Parameters() []*anydiff.Var {
	return []*anydiff.Var{c.Filters, c.Biases}
}

// SerializerType returns the unique ID used to serialize
// a Conv with the serializer package.
func (c *Conv) SerializerType() string {
	return "github.com/YewRongDe/HTR/anyconv.Conv"
}

// Serialize serializes the layer.
func (c *Conv) Serialize() ([]byte, error) {
	return serializer.SerializeAny(
		serializer.Int(c.Kernel),
		serializer.Int(c.InputWidth),
		serializer.Int(c.InputHeight),
		serializer.Int(c.InputDepth),
		&anyvecsave.S{Vector: c.Filters.Vector},
		&anyvecsave.S{Vector: c.Biases.Vector},
	)
}

func (c *Conv) filterMatrix() *anyvec.Matrix {
	return &anyvec.Matrix{
		Data: c.Filters.Vector,
		Rows: c.FilterCount,
		Cols: c.PatchSize(),
	}
}

// patchMapper maps an image followed by a single zero to
// one patch row per output pixel.
// Patch entries outside the image read the zero.
func (c *Conv) patchMapper(cr anyvec.Creator) anyvec.Mapper {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.patches != nil && c.patches.Creator() == cr {
		return c.patches
	}

	inSize := c.InputWidth * c.InputHeight * c.InputDepth
	before := (c.Kernel - 1) / 2
	mapping := make([]int, 0, c.InputWidth*c.InputHeight*c.PatchSize())
	for y := 0; y < c.InputHeight; y++ {
		for x := 0; x < c.InputWidth; x++ {
			for ky := 0; ky < c.Kernel; ky++ {
				srcY := y + ky - before
				for kx := 0; kx < c.Kernel; kx++ {
					srcX := x + kx - before
					inside := srcY >= 0 && srcY < c.InputHeight &&
						srcX >= 0 && srcX < c.InputWidth
					for z := 0; z < c.InputDepth; z++ {
						if inside {
							mapping = append(mapping, (srcY*c.InputWidth+srcX)*c.InputDepth+z)
						} else {
							mapping = append(mapping, inSize)
						}
					}
				}
			}
		}
	}
	c.patches = cr.MakeMapper(inSize+1, mapping)
	return c.patches
}

// eachImage calls f for every image index with a scratch
// patch matrix owned by the calling goroutine.
func (c *Conv) eachImage(cr anyvec.Creator, n int, f func(i int, mat *anyvec.Matrix)) {
	newMat := func() *anyvec.Matrix {
		rows := c.InputWidth * c.InputHeight
		return &anyvec.Matrix{
			Data: cr.MakeVector(rows * c.PatchSize()),
			Rows: rows,
			Cols: c.PatchSize(),
		}
	}
	workers := 1
	if c.Parallel {
		workers = runtime.GOMAXPROCS(0)
		if workers > n {
			workers = n
		}
	}
	if workers <= 1 {
		mat := newMat()
		for i := 0; i < n; i++ {
			f(i, mat)
		}
		return
	}

	jobs := make(chan int, n)
	for i := 0; i < n; i++ {
		jobs <- i
	}
	close(jobs)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mat := newMat()
			for i := range jobs {
				f(i, mat)
			}
		}()
	}
	wg.Wait()
}

// loadPatches fills mat with the patches of image i.
func loadPatches(m anyvec.Mapper, batch anyvec.Vector, i int, mat *anyvec.Matrix) {
	size := m.InSize() - 1
	img := batch.Slice(i*size, (i+1)*size)
	padded := img.Creator().Concat(img, img.Creator().MakeVector(1))
	m.Map(padded, mat.Data)
}

type convRes struct {
	Layer  *Conv
	N      int
	In     anydiff.Res
	OutVec anyvec.Vector
	V      anydiff.VarSet
}

func (c *convRes) Output() anyvec.Vector {
	return c.OutVec
}

func (c *convRes) Vars() anydiff.VarSet {
	return c.V
}

func (c *convRes) Propagate(u anyvec.Vector, g anydiff.Grad) {
	l := c.Layer
	cr := u.Creator()
	if biasGrad, ok := g[l.Biases]; ok {
		biasGrad.Add(anyvec.SumRows(u, l.FilterCount))
	}
	filterGrad, doFilters := g[l.Filters]
	doIn := g.Intersects(c.In.Vars())
	if !doFilters && !doIn {
		return
	}

	one := cr.MakeNumeric(1)
	zero := cr.MakeNumeric(0)
	patches := l.patchMapper(cr)
	filters := l.filterMatrix()
	pixels := l.InputWidth * l.InputHeight
	outSize := pixels * l.FilterCount
	inSize := pixels * l.InputDepth

	inUps := make([]anyvec.Vector, c.N)
	var lock sync.Mutex
	l.eachImage(cr, c.N, func(i int, mat *anyvec.Matrix) {
		uMat := &anyvec.Matrix{
			Data: u.Slice(outSize*i, outSize*(i+1)),
			Rows: pixels,
			Cols: l.FilterCount,
		}
		if doFilters {
			loadPatches(patches, c.In.Output(), i, mat)
			fg := &anyvec.Matrix{
				Data: cr.MakeVector(filterGrad.Len()),
				Rows: l.FilterCount,
				Cols: l.PatchSize(),
			}
			fg.Product(true, false, one, uMat, mat, zero)
			lock.Lock()
			filterGrad.Add(fg.Data)
			lock.Unlock()
		}
		if doIn {
			mat.Product(false, false, one, uMat, filters, zero)
			padded := cr.MakeVector(inSize + 1)
			patches.MapTranspose(mat.Data, padded)
			inUps[i] = padded.Slice(0, inSize)
		}
	})

	if doIn {
		c.In.Propagate(cr.Concat(inUps...), g)
	}
}
