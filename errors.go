package webpconv

import (
	"errors"
	"fmt"

	"github.com/deepteams/webpconv/animation"
)

// ErrEmptySource is wrapped by a DecodeError when a source has no bytes.
var ErrEmptySource = errors.New("webpconv: empty source")

// DecodeError reports that a source could not be read as an image.
type DecodeError struct {
	Filename string
	Format   string // Format tag derived from the file name.
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s as %s: %v", e.Filename, e.Format, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// CodecError reports a failure inside the WebP encoder.
type CodecError struct {
	Filename string
	Backend  string
	Err      error
}

func (e *CodecError) Error() string {
	if e.Filename == "" {
		return fmt.Sprintf("encode with %s: %v", e.Backend, e.Err)
	}
	return fmt.Sprintf("encode %s with %s: %v", e.Filename, e.Backend, e.Err)
}

func (e *CodecError) Unwrap() error { return e.Err }

// DimensionMismatchError is returned when the frames of an animation do not
// share one size.
type DimensionMismatchError = animation.DimensionMismatchError

// ConversionError wraps any failure of a single conversion. Err is a
// *DecodeError, *CodecError or *DimensionMismatchError.
type ConversionError struct {
	Filename string
	Err      error
}

func (e *ConversionError) Error() string {
	return "webpconv: " + e.Err.Error()
}

func (e *ConversionError) Unwrap() error { return e.Err }
