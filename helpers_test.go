package webpconv

import (
	"bytes"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/deepteams/webpconv/codec"
	"github.com/deepteams/webpconv/internal/container"
	"github.com/deepteams/webpconv/mux"
)

// lossyEncoder returns the default lossy backend. The wasm backend only
// runs when WEBPCONV_TEST_WASM is set; wazero crashes on some toolchains.
func lossyEncoder(tb testing.TB) codec.Encoder {
	tb.Helper()
	enc := codec.Default()
	if enc.Name() == "wasm" && os.Getenv("WEBPCONV_TEST_WASM") == "" {
		tb.Skip("set WEBPCONV_TEST_WASM=1 to run the wasm backend")
	}
	return enc
}

// recordingEncoder writes a minimal still WebP (a VP8L header sized to the
// image) and remembers every call.
type recordingEncoder struct {
	mu     sync.Mutex
	opts   []codec.Options
	images []*image.NRGBA
	delay  func(img image.Image) time.Duration
	hook   func()
}

func (*recordingEncoder) Name() string { return "recording" }
func (*recordingEncoder) Lossy() bool  { return true }

func (e *recordingEncoder) Encode(w io.Writer, img image.Image, o codec.Options) error {
	e.mu.Lock()
	e.opts = append(e.opts, o)
	if n, ok := img.(*image.NRGBA); ok {
		e.images = append(e.images, n)
	}
	hook, delay := e.hook, e.delay
	e.mu.Unlock()

	if hook != nil {
		hook()
	}
	if delay != nil {
		time.Sleep(delay(img))
	}
	return writeFakeWebP(w, img.Bounds().Size())
}

func (e *recordingEncoder) calls() []codec.Options {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]codec.Options(nil), e.opts...)
}

func writeFakeWebP(w io.Writer, size image.Point) error {
	bs := make([]byte, 5+16)
	bs[0] = container.VP8LMagicByte
	binary.LittleEndian.PutUint32(bs[1:5], uint32(size.X-1)|uint32(size.Y-1)<<14)
	m := mux.NewMuxer()
	if err := m.AddFrame(bs, nil); err != nil {
		return err
	}
	return m.Assemble(w)
}

var errEncoderBroken = errors.New("encoder broken")

type brokenEncoder struct{}

func (brokenEncoder) Name() string                                       { return "broken" }
func (brokenEncoder) Lossy() bool                                        { return true }
func (brokenEncoder) Encode(io.Writer, image.Image, codec.Options) error { return errEncoderBroken }

func gradient(t testing.TB, w, h int, alpha uint8) *image.NRGBA {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(x * 255 / max(w-1, 1)),
				G: uint8(y * 255 / max(h-1, 1)),
				B: 128,
				A: alpha,
			})
		}
	}
	return img
}

func pngBytes(t testing.TB, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

func jpegBytes(t testing.TB, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		t.Fatalf("jpeg.Encode: %v", err)
	}
	return buf.Bytes()
}

var testPalette = color.Palette{
	color.RGBA{R: 255, A: 255},
	color.RGBA{G: 255, A: 255},
	color.RGBA{B: 255, A: 255},
	color.RGBA{R: 255, G: 255, B: 255, A: 255},
}

// gifBytes encodes an n-frame w x h GIF with the given delays in
// hundredths of a second.
func gifBytes(t testing.TB, w, h int, delays ...int) []byte {
	t.Helper()
	g := &gif.GIF{Config: image.Config{Width: w, Height: h}}
	for i, d := range delays {
		m := image.NewPaletted(image.Rect(0, 0, w, h), testPalette)
		for p := range m.Pix {
			m.Pix[p] = uint8((i + p) % len(testPalette))
		}
		g.Image = append(g.Image, m)
		g.Delay = append(g.Delay, d)
	}
	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, g); err != nil {
		t.Fatalf("gif.EncodeAll: %v", err)
	}
	return buf.Bytes()
}
