package codec

import (
	"image"
	"io"

	"github.com/HugoSmits86/nativewebp"
)

// nativeEncoder is a pure Go VP8L encoder; it has no lossy mode.
type nativeEncoder struct{}

func init() { Register(nativeEncoder{}) }

func (nativeEncoder) Name() string { return "native" }
func (nativeEncoder) Lossy() bool  { return false }

func (nativeEncoder) Encode(w io.Writer, img image.Image, o Options) error {
	if !o.Lossless {
		return ErrLossyUnsupported
	}
	return nativewebp.Encode(w, img, nil)
}
