package animation

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"time"

	"github.com/deepteams/webpconv/codec"
	"github.com/deepteams/webpconv/internal/pool"
	"github.com/deepteams/webpconv/mux"
	"github.com/deepteams/webpconv/pixel"
)

// EncodeOptions configures the AnimEncoder.
type EncodeOptions struct {
	LoopCount       int // 0 loops forever.
	BackgroundColor color.NRGBA
	Lossless        bool
	Quality         int // 0-100, ignored when Lossless is set.

	// Encoder produces the still bitstream for each frame. Nil selects
	// codec.Default().
	Encoder codec.Encoder
}

// DimensionMismatchError is returned when a frame does not match the
// canvas size of the animation it is added to.
type DimensionMismatchError struct {
	Index int
	Want  image.Point
	Got   image.Point
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("animation: frame %d is %dx%d, canvas is %dx%d",
		e.Index, e.Got.X, e.Got.Y, e.Want.X, e.Want.Y)
}

var ErrEncoderClosed = errors.New("animation: encoder is closed")

// AnimEncoder writes an animated WebP file using mux.Muxer.
//
// Every frame is a full-canvas keyframe placed at (0,0) with blend=none and
// dispose=none.
type AnimEncoder struct {
	w      io.Writer
	muxer  *mux.Muxer
	width  int
	height int
	opts   EncodeOptions
	closed bool
}

// NewEncoder creates a new AnimEncoder for a canvas of the given size.
func NewEncoder(w io.Writer, canvasWidth, canvasHeight int, opts *EncodeOptions) *AnimEncoder {
	m := mux.NewMuxer()
	enc := &AnimEncoder{
		w:      w,
		muxer:  m,
		width:  canvasWidth,
		height: canvasHeight,
	}
	if opts != nil {
		enc.opts = *opts
	}
	if enc.opts.Encoder == nil {
		enc.opts.Encoder = codec.Default()
	}
	m.SetAnimated(true)
	m.SetCanvasSize(canvasWidth, canvasHeight)
	m.SetLoopCount(enc.opts.LoopCount)
	m.SetBackgroundColor(nrgbaToARGB(enc.opts.BackgroundColor))
	return enc
}

// AddFrame encodes f and appends it with the given display duration.
func (e *AnimEncoder) AddFrame(f pixel.Frame, duration time.Duration) error {
	if e.closed {
		return ErrEncoderClosed
	}
	want := image.Pt(e.width, e.height)
	if got := f.Size(); got != want {
		return &DimensionMismatchError{Index: e.muxer.NumFrames(), Want: want, Got: got}
	}

	payload, err := e.encodeFrame(f)
	if err != nil {
		return fmt.Errorf("animation: frame %d: %w", e.muxer.NumFrames(), err)
	}
	return e.muxer.AddFrame(payload, &mux.FrameOptions{
		Duration:    int(duration / time.Millisecond),
		BlendMode:   mux.BlendNone,
		DisposeMode: mux.DisposeNone,
	})
}

// encodeFrame runs the still encoder and strips the RIFF wrapper, keeping
// the optional ALPH chunk and the VP8/VP8L bitstream.
func (e *AnimEncoder) encodeFrame(f pixel.Frame) ([]byte, error) {
	buf := pool.GetBuffer()
	defer pool.PutBuffer(buf)

	err := e.opts.Encoder.Encode(buf, f.Image, codec.Options{
		Lossless: e.opts.Lossless,
		Quality:  e.opts.Quality,
	})
	if err != nil {
		return nil, err
	}
	fi, err := mux.ExtractFrame(buf.Bytes())
	if err != nil {
		return nil, err
	}
	// The bitstream aliases buf, which goes back to the pool.
	return bytes.Clone(fi.Payload()), nil
}

// NumFrames returns the number of frames added so far.
func (e *AnimEncoder) NumFrames() int { return e.muxer.NumFrames() }

// Close assembles the animation and writes it to the underlying writer.
func (e *AnimEncoder) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	if e.muxer.NumFrames() == 0 {
		return ErrNoFrames
	}
	return e.muxer.Assemble(e.w)
}

// Encode writes seq as an animated WebP. The canvas takes the size of the
// first frame; every other frame must match it.
func Encode(w io.Writer, seq *Sequence, opts *EncodeOptions) error {
	if seq == nil || seq.Len() == 0 {
		return ErrNoFrames
	}
	size := seq.Size()
	enc := NewEncoder(w, size.X, size.Y, opts)
	for _, f := range seq.Frames {
		if err := enc.AddFrame(f.Image, f.Duration); err != nil {
			return err
		}
	}
	return enc.Close()
}

// nrgbaToARGB converts color.NRGBA to an ARGB uint32.
func nrgbaToARGB(c color.NRGBA) uint32 {
	return uint32(c.A)<<24 | uint32(c.R)<<16 | uint32(c.G)<<8 | uint32(c.B)
}
