// Package nfnt implements imgfit.Resizer with github.com/nfnt/resize.
package nfnt

import (
	"fmt"
	"image"

	"github.com/nfnt/resize"
)

type Resizer struct {
	// Interpolation defaults to resize.Lanczos3. NearestNeighbor, being
	// the zero value, cannot be selected.
	Interpolation resize.InterpolationFunction
}

func (r Resizer) Resize(img image.Image, width, height int) (image.Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid dimensions: width=%d, height=%d", width, height)
	}
	interp := r.Interpolation
	if interp == 0 {
		interp = resize.Lanczos3
	}
	return resize.Resize(uint(width), uint(height), img, interp), nil
}
