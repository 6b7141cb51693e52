package model

import (
	"image"

	"github.com/pkg/errors"
	"github.com/unixpickle/anyvec"

	"github.com/YewRongDe/HTR/anyconv"
)

// An Image is a normalized grayscale image.
//
// Data stores Height rows of Width pixels each.
// Text runs along the width.
type Image struct {
	Width  int
	Height int
	Data   []float64
}

// NewImage converts an image to grayscale.
func NewImage(img image.Image) *Image {
	b := img.Bounds()
	return &Image{
		Width:  b.Dx(),
		Height: b.Dy(),
		Data:   anyconv.ImageToGray(img),
	}
}

// A Batch is a set of images, optionally with their
// ground truth texts.
type Batch struct {
	Images []*Image
	Texts  []string
}

func (m *Model) checkImages(b *Batch) error {
	if b == nil || len(b.Images) == 0 {
		return errors.Wrap(ErrShape, "empty batch")
	}
	for i, img := range b.Images {
		if img == nil {
			return errors.Wrapf(ErrShape, "image %d is nil", i)
		}
		if img.Width != m.cfg.ImageWidth || img.Height != m.cfg.ImageHeight {
			return errors.Wrapf(ErrShape, "image %d is %dx%d but the model expects %dx%d",
				i, img.Width, img.Height, m.cfg.ImageWidth, m.cfg.ImageHeight)
		}
		if len(img.Data) != img.Width*img.Height {
			return errors.Wrapf(ErrShape, "image %d has %d pixels but should have %d",
				i, len(img.Data), img.Width*img.Height)
		}
	}
	return nil
}

func (m *Model) checkTexts(b *Batch) error {
	if len(b.Texts) != len(b.Images) {
		return errors.Wrapf(ErrShape, "%d texts for %d images", len(b.Texts), len(b.Images))
	}
	return nil
}

// packImages concatenates the pixels of a batch.
func (m *Model) packImages(b *Batch) anyvec.Vector {
	data := make([]float64, 0, len(b.Images)*m.cfg.ImageWidth*m.cfg.ImageHeight)
	for _, img := range b.Images {
		data = append(data, img.Data...)
	}
	return m.creator.MakeVectorData(m.creator.MakeNumericList(data))
}
