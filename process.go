package imgfit

import (
	"bytes"
	"image"
	"io"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

// Params are the caller supplied processing parameters.
type Params struct {
	Width    int
	Height   int
	TargetKB int
	Format   Format
}

func (p Params) TargetBytes() int {
	return p.TargetKB * 1024
}

// Validate checks that every dimension is positive and, when maxDimension
// is positive, that neither width nor height exceeds it.
func (p Params) Validate(maxDimension int) error {
	if err := positive("width", p.Width); err != nil {
		return err
	}
	if err := positive("height", p.Height); err != nil {
		return err
	}
	if err := positive("target size", p.TargetKB); err != nil {
		return err
	}
	if maxDimension > 0 {
		if p.Width > maxDimension {
			return &InvalidParameterError{Name: "width", Value: p.Width, Reason: "exceeds maximum dimension"}
		}
		if p.Height > maxDimension {
			return &InvalidParameterError{Name: "height", Value: p.Height, Reason: "exceeds maximum dimension"}
		}
	}
	if p.Format != FormatJPEG && p.Format != FormatPNG {
		return &InvalidParameterError{Name: "format", Value: int(p.Format), Reason: "unsupported"}
	}
	return nil
}

type ProcessorConfig struct {
	Resizer      Resizer
	Encoder      *Encoder
	MaxDimension int

	// MaxSourcePixels caps width*height of decoded sources. Zero selects
	// DefaultMaxSourcePixels, negative disables the check.
	MaxSourcePixels int64
	Logger          hclog.Logger
}

// DefaultMaxSourcePixels matches the decompression bomb limit of PIL.
const DefaultMaxSourcePixels = 2 * (1024 * 1024 * 1024 / 4 / 3)

// Processor runs the decode, resize and encode pipeline.
type Processor struct {
	conf *ProcessorConfig
}

func NewProcessor(conf ProcessorConfig) (*Processor, error) {
	if conf.Logger == nil {
		conf.Logger = hclog.NewNullLogger()
	}
	if conf.Resizer == nil {
		conf.Resizer = LanczosResizer{}
	}
	if conf.Encoder == nil {
		conf.Encoder = DefaultEncoder()
	}
	enc := *conf.Encoder
	if enc.Logger == nil {
		enc.Logger = conf.Logger.Named("encoder")
	}
	if err := enc.Validate(); err != nil {
		return nil, err
	}
	conf.Encoder = &enc
	if conf.MaxSourcePixels == 0 {
		conf.MaxSourcePixels = DefaultMaxSourcePixels
	}
	return &Processor{conf: &conf}, nil
}

// Process decodes the image read from r, resizes it and encodes it as
// close to the target size as the encoder allows.
func (p *Processor) Process(r io.Reader, params Params) (*EncodeResult, error) {
	err := params.Validate(p.conf.MaxDimension)
	if err != nil {
		return nil, err
	}

	// the header is read first so oversized sources are never allocated
	header := &bytes.Buffer{}
	cfg, _, err := image.DecodeConfig(io.TeeReader(r, header))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	pixels := int64(cfg.Width) * int64(cfg.Height)
	if p.conf.MaxSourcePixels > 0 && pixels > p.conf.MaxSourcePixels {
		return nil, &DecodeError{Err: errors.Errorf(
			"image size (%d pixels) exceeds limit of %d pixels", pixels, p.conf.MaxSourcePixels)}
	}

	src, name, err := image.Decode(io.MultiReader(header, r))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	b := src.Bounds()
	p.conf.Logger.Debug("Decoded", "codec", name, "width", b.Dx(), "height", b.Dy())

	resized, err := p.conf.Resizer.Resize(src, params.Width, params.Height)
	if err != nil {
		return nil, errors.Wrapf(err, "resize to %dx%d", params.Width, params.Height)
	}

	res, err := p.conf.Encoder.Encode(resized, params.Format, params.TargetBytes())
	if err != nil {
		return nil, err
	}
	p.conf.Logger.Debug("Encoded",
		"format", res.Format,
		"size", res.Size,
		"target", params.TargetBytes(),
		"quality", res.Quality,
		"attempts", res.Attempts,
	)
	return res, nil
}
