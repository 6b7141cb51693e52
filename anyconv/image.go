package anyconv

import (
	"image"
	"image/color"
)

// ImageToGray converts an image to row-major grayscale
// intensities between 0 and 1.
func ImageToGray(img image.Image) []float64 {
	w := img.Bounds().Dx()
	h := img.Bounds().Dy()
	minX := img.Bounds().Min.X
	minY := img.Bounds().Min.Y

	res := make([]float64, w*h)
	idx := 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			gray := color.Gray16Model.Convert(img.At(minX+x, minY+y)).(color.Gray16)
			res[idx] = float64(gray.Y) / 0xffff
			idx++
		}
	}
	return res
}
