package imgfit

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

const (
	DefaultStartQuality = 95
	DefaultMinQuality   = 5
	DefaultQualityStep  = 5
)

// EncodeResult is the outcome of a size-targeted encoding.
type EncodeResult struct {
	Bytes  []byte
	Format Format

	// Size is the length of Bytes. It may exceed the target when the
	// format is lossless or the quality floor was reached.
	Size int

	// Quality is the JPEG quality used, zero for PNG.
	Quality int

	// Attempts is the number of encode passes performed.
	Attempts int
}

// Encoder searches for the highest JPEG quality, scanning downward from
// StartQuality in steps of QualityStep, whose encoding fits the target
// size. The search stops at MinQuality even if the result is still too
// large. PNG is encoded once.
type Encoder struct {
	StartQuality int
	MinQuality   int
	QualityStep  int
	Logger       hclog.Logger
}

func DefaultEncoder() *Encoder {
	return &Encoder{
		StartQuality: DefaultStartQuality,
		MinQuality:   DefaultMinQuality,
		QualityStep:  DefaultQualityStep,
	}
}

// EncodeToTarget encodes img with the default search policy.
func EncodeToTarget(img image.Image, format Format, targetBytes int) (*EncodeResult, error) {
	return DefaultEncoder().Encode(img, format, targetBytes)
}

// Validate checks the search policy.
func (e *Encoder) Validate() error {
	if e.MinQuality < 1 {
		return &InvalidParameterError{Name: "min quality", Value: e.MinQuality, Reason: "must be at least 1"}
	}
	if e.StartQuality > 100 {
		return &InvalidParameterError{Name: "start quality", Value: e.StartQuality, Reason: "must be at most 100"}
	}
	if e.StartQuality < e.MinQuality {
		return &InvalidParameterError{Name: "start quality", Value: e.StartQuality, Reason: "must not be below min quality"}
	}
	if e.QualityStep < 1 {
		return &InvalidParameterError{Name: "quality step", Value: e.QualityStep, Reason: "must be positive"}
	}
	return nil
}

func (e *Encoder) Encode(img image.Image, format Format, targetBytes int) (*EncodeResult, error) {
	if img == nil {
		return nil, errors.New("image is nil")
	}
	if err := positive("target bytes", targetBytes); err != nil {
		return nil, err
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}

	switch format {
	case FormatJPEG:
		return e.encodeJPEG(img, targetBytes)
	case FormatPNG:
		return e.encodePNG(img)
	}
	return nil, &EncodeError{Format: format, Err: errors.New("unsupported format")}
}

func (e *Encoder) logger() hclog.Logger {
	if e.Logger == nil {
		return hclog.NewNullLogger()
	}
	return e.Logger
}

func (e *Encoder) encodeJPEG(img image.Image, targetBytes int) (*EncodeResult, error) {
	log := e.logger()
	quality := e.StartQuality
	buf := &bytes.Buffer{}

	for attempts := 1; ; attempts++ {
		buf.Reset()
		err := jpeg.Encode(buf, img, &jpeg.Options{Quality: quality})
		if err != nil {
			return nil, &EncodeError{Format: FormatJPEG, Quality: quality, Err: err}
		}

		size := buf.Len()
		log.Trace("JPEG attempt", "quality", quality, "size", size, "target", targetBytes)
		if size <= targetBytes || quality <= e.MinQuality {
			if size > targetBytes {
				log.Debug("Quality floor reached above target", "quality", quality, "size", size, "target", targetBytes)
			}
			return &EncodeResult{
				Bytes:    buf.Bytes(),
				Format:   FormatJPEG,
				Size:     size,
				Quality:  quality,
				Attempts: attempts,
			}, nil
		}

		quality -= e.QualityStep
		if quality < e.MinQuality {
			quality = e.MinQuality
		}
	}
}

func (e *Encoder) encodePNG(img image.Image) (*EncodeResult, error) {
	buf := &bytes.Buffer{}
	err := png.Encode(buf, img)
	if err != nil {
		return nil, &EncodeError{Format: FormatPNG, Err: err}
	}
	e.logger().Trace("PNG encoded", "size", buf.Len())
	return &EncodeResult{
		Bytes:    buf.Bytes(),
		Format:   FormatPNG,
		Size:     buf.Len(),
		Attempts: 1,
	}, nil
}
