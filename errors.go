package imgfit

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrNotFound is returned by a Storage when the key does not exist.
var ErrNotFound = errors.New("not found")

// DecodeError reports a source image that could not be decoded.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return "decode image: " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error { return e.Err }

// EncodeError reports that the codec rejected the image for the format.
// Quality is zero for lossless formats.
type EncodeError struct {
	Format  Format
	Quality int
	Err     error
}

func (e *EncodeError) Error() string {
	if e.Quality > 0 {
		return fmt.Sprintf("encode %v at quality %d: %v", e.Format, e.Quality, e.Err)
	}
	return fmt.Sprintf("encode %v: %v", e.Format, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// InvalidParameterError reports a parameter outside its accepted range.
type InvalidParameterError struct {
	Name   string
	Value  int
	Reason string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid %s %d: %s", e.Name, e.Value, e.Reason)
}

func positive(name string, v int) error {
	if v <= 0 {
		return &InvalidParameterError{Name: name, Value: v, Reason: "must be positive"}
	}
	return nil
}
