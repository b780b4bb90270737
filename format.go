package imgfit

import (
	"fmt"
	"strings"
)

// Format is an output encoding supported by the encoder.
type Format int

const (
	FormatJPEG Format = iota + 1
	FormatPNG
)

// ParseFormat maps a file extension to a Format.
// jpg and jpeg both map to FormatJPEG. The leading dot is optional.
func ParseFormat(ext string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "jpg", "jpeg":
		return FormatJPEG, nil
	case "png":
		return FormatPNG, nil
	}
	return 0, fmt.Errorf("unsupported format: %q", ext)
}

// Ext returns the extension, without dot, used when persisting an
// encoding of this format.
func (f Format) Ext() string {
	switch f {
	case FormatJPEG:
		return "jpeg"
	case FormatPNG:
		return "png"
	}
	return ""
}

func (f Format) ContentType() string {
	switch f {
	case FormatJPEG:
		return "image/jpeg"
	case FormatPNG:
		return "image/png"
	}
	return "application/octet-stream"
}

func (f Format) String() string {
	switch f {
	case FormatJPEG:
		return "JPEG"
	case FormatPNG:
		return "PNG"
	}
	return fmt.Sprintf("Format(%d)", int(f))
}
