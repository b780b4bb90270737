package imgfit

import (
	"image"

	"github.com/disintegration/imaging"
)

// Resizer scales an image to exactly width x height pixels.
// The original aspect ratio is ignored.
type Resizer interface {
	Resize(img image.Image, width, height int) (image.Image, error)
}

// Resize scales img to exactly width x height using a Lanczos filter.
// Both dimensions must be positive.
func Resize(img image.Image, width, height int) image.Image {
	return imaging.Resize(img, width, height, imaging.Lanczos)
}

// LanczosResizer is the default Resizer, backed by imaging.
type LanczosResizer struct{}

func (LanczosResizer) Resize(img image.Image, width, height int) (image.Image, error) {
	if err := positive("width", width); err != nil {
		return nil, err
	}
	if err := positive("height", height); err != nil {
		return nil, err
	}
	return Resize(img, width, height), nil
}
