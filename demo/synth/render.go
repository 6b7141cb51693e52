package main

import (
	"image"
	"image/color"
	"math/rand"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/YewRongDe/HTR/anyconv"
	"github.com/YewRongDe/HTR/model"
)

// renderWord draws a word in white on black at a random
// offset, then scales it to the model's input size.
func renderWord(word string, width, height int, r *rand.Rand) *model.Image {
	face := basicfont.Face7x13
	textWidth := font.MeasureString(face, word).Ceil()
	canvasWidth := textWidth + 8
	canvasHeight := face.Height + 6

	canvas := image.NewGray(image.Rect(0, 0, canvasWidth, canvasHeight))
	d := &font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(color.Gray{Y: 0xff}),
		Face: face,
		Dot:  fixed.P(2+r.Intn(5), face.Ascent+1+r.Intn(4)),
	}
	d.DrawString(word)

	// Words keep their aspect ratio and are padded on the
	// right.
	scaledWidth := canvasWidth * height / canvasHeight
	if scaledWidth > width || scaledWidth == 0 {
		scaledWidth = width
	}
	dst := image.NewGray(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, image.Rect(0, 0, scaledWidth, height), canvas, canvas.Bounds(),
		draw.Src, nil)
	return &model.Image{Width: width, Height: height, Data: anyconv.ImageToGray(dst)}
}

// fitImage scales an arbitrary image to the model's input
// size.
func fitImage(img image.Image, width, height int) *model.Image {
	dst := image.NewGray(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return model.NewImage(dst)
}
