package codec

import (
	"image"
	"io"

	gen2brain "github.com/gen2brain/webp"
)

// wasmEncoder runs libwebp inside the wazero WebAssembly runtime.
type wasmEncoder struct{}

func init() { Register(wasmEncoder{}) }

func (wasmEncoder) Name() string { return "wasm" }
func (wasmEncoder) Lossy() bool  { return true }

func (wasmEncoder) Encode(w io.Writer, img image.Image, o Options) error {
	opts := gen2brain.Options{Lossless: o.Lossless, Quality: clampQuality(o.Quality)}
	if o.Lossless {
		// libwebp reads quality as effort in lossless mode.
		opts.Quality = 100
	}
	return gen2brain.Encode(w, img, opts)
}
