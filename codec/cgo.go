//go:build cgo

package codec

import (
	"image"
	"io"

	chai2010 "github.com/chai2010/webp"
)

// cgoEncoder calls the libwebp C library bundled with chai2010/webp.
type cgoEncoder struct{}

func init() { Register(cgoEncoder{}) }

func (cgoEncoder) Name() string { return "cgo" }
func (cgoEncoder) Lossy() bool  { return true }

func (cgoEncoder) Encode(w io.Writer, img image.Image, o Options) error {
	return chai2010.Encode(w, img, &chai2010.Options{
		Lossless: o.Lossless,
		Quality:  float32(clampQuality(o.Quality)),
	})
}
