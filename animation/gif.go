package animation

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"time"

	"golang.org/x/image/draw"

	"github.com/deepteams/webpconv/internal/pool"
)

// GIFSource plays back a decoded GIF as a FrameSource. Each frame is the
// logical screen after compositing that frame over its predecessors and
// applying their disposal methods.
type GIFSource struct {
	g      *gif.GIF
	canvas *image.NRGBA
	index  int // Frame currently composited onto canvas, -1 for none.

	// Pixels under the current frame's rect, kept when its disposal method
	// is DisposalPrevious.
	saved []byte

	// declared[i] reports whether frame i has a graphic control extension.
	// Nil when unknown; a zero delay then counts as undeclared.
	declared []bool
}

var errNoGIFFrames = errors.New("animation: GIF has no frames")

// NewGIFSource returns a source positioned on frame 0.
func NewGIFSource(g *gif.GIF) (*GIFSource, error) {
	if g == nil || len(g.Image) == 0 {
		return nil, errNoGIFFrames
	}
	w, h := g.Config.Width, g.Config.Height
	if w <= 0 || h <= 0 {
		var r image.Rectangle
		for _, m := range g.Image {
			r = r.Union(m.Bounds())
		}
		w, h = r.Max.X, r.Max.Y
	}
	s := &GIFSource{
		g:      g,
		canvas: image.NewNRGBA(image.Rect(0, 0, w, h)),
		index:  -1,
	}
	if err := s.Seek(0); err != nil {
		return nil, err
	}
	return s, nil
}

// ReadGIF decodes a GIF stream and returns a source positioned on frame 0.
// Unlike NewGIFSource it knows which frames declare their delay, so an
// explicit zero delay is kept as zero.
func ReadGIF(data []byte) (*GIFSource, error) {
	g, err := gif.DecodeAll(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	s, err := NewGIFSource(g)
	if err != nil {
		return nil, err
	}
	// The decoder accepted the stream, so a walk failure only loses the
	// distinction between zero and missing delays.
	if declared, err := DeclaredDelays(data); err == nil && len(declared) == len(g.Image) {
		s.declared = declared
	}
	return s, nil
}

// GIF returns the decoded stream.
func (s *GIFSource) GIF() *gif.GIF { return s.g }

// NumFrames implements FrameSource.
func (s *GIFSource) NumFrames() int { return len(s.g.Image) }

// Index returns the frame under the cursor.
func (s *GIFSource) Index() int { return s.index }

// Size returns the logical screen size.
func (s *GIFSource) Size() image.Point { return s.canvas.Rect.Size() }

// Animated reports whether the GIF has more than one frame.
func (s *GIFSource) Animated() bool { return len(s.g.Image) > 1 }

// Inspect reports the frame count and whether the source should be treated
// as an animation.
func (s *GIFSource) Inspect() (frames int, animated bool) {
	return len(s.g.Image), s.Animated()
}

// LoopCount returns the GIF loop count.
func (s *GIFSource) LoopCount() int { return s.g.LoopCount }

// Seek implements FrameSource. Seeking backwards replays from frame 0.
func (s *GIFSource) Seek(i int) error {
	if i < 0 || i >= len(s.g.Image) {
		return fmt.Errorf("animation: frame %d out of range [0,%d)", i, len(s.g.Image))
	}
	if i < s.index {
		s.reset()
	}
	for s.index < i {
		s.advance()
	}
	return nil
}

// Current implements FrameSource. The returned image is a copy.
func (s *GIFSource) Current() (image.Image, time.Duration, error) {
	if s.index < 0 {
		return nil, 0, errNoGIFFrames
	}
	snap := image.NewNRGBA(s.canvas.Rect)
	copy(snap.Pix, s.canvas.Pix)

	return snap, s.delay(s.index), nil
}

func (s *GIFSource) delay(i int) time.Duration {
	if i >= len(s.g.Delay) {
		return NoDelay
	}
	cs := s.g.Delay[i]
	if s.declared == nil {
		if cs == 0 {
			return NoDelay
		}
	} else if !s.declared[i] {
		return NoDelay
	}
	return time.Duration(cs) * 10 * time.Millisecond
}

func (s *GIFSource) reset() {
	clear(s.canvas.Pix)
	s.releaseSaved()
	s.index = -1
}

// advance disposes of the current frame and composites the next one.
func (s *GIFSource) advance() {
	if s.index >= 0 {
		r := s.g.Image[s.index].Bounds()
		switch s.disposal(s.index) {
		case gif.DisposalBackground:
			clearCanvasRect(s.canvas, r)
		case gif.DisposalPrevious:
			restoreCanvasRect(s.canvas, r, s.saved)
		}
		s.releaseSaved()
	}

	s.index++
	frame := s.g.Image[s.index]
	b := frame.Bounds()
	if s.disposal(s.index) == gif.DisposalPrevious {
		s.saved = saveCanvasRect(s.canvas, b)
	}
	draw.Draw(s.canvas, b, frame, b.Min, draw.Over)
}

func (s *GIFSource) disposal(i int) byte {
	if i < len(s.g.Disposal) {
		return s.g.Disposal[i]
	}
	return gif.DisposalNone
}

func (s *GIFSource) releaseSaved() {
	if s.saved != nil {
		pool.Put(s.saved)
		s.saved = nil
	}
}

// saveCanvasRect copies pixel data from the given rect of the canvas.
func saveCanvasRect(canvas *image.NRGBA, r image.Rectangle) []byte {
	r = r.Intersect(canvas.Bounds())
	if r.Empty() {
		return nil
	}
	w := r.Dx() * 4
	saved := pool.Get(r.Dy() * w)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		srcOff := canvas.PixOffset(r.Min.X, y)
		dstOff := (y - r.Min.Y) * w
		copy(saved[dstOff:dstOff+w], canvas.Pix[srcOff:srcOff+w])
	}
	return saved
}

// restoreCanvasRect pastes saved pixel data back into the canvas rect.
func restoreCanvasRect(canvas *image.NRGBA, r image.Rectangle, saved []byte) {
	r = r.Intersect(canvas.Bounds())
	if r.Empty() || saved == nil {
		return
	}
	w := r.Dx() * 4
	for y := r.Min.Y; y < r.Max.Y; y++ {
		dstOff := canvas.PixOffset(r.Min.X, y)
		srcOff := (y - r.Min.Y) * w
		copy(canvas.Pix[dstOff:dstOff+w], saved[srcOff:srcOff+w])
	}
}

// clearCanvasRect sets the rect to transparent black.
func clearCanvasRect(canvas *image.NRGBA, r image.Rectangle) {
	r = r.Intersect(canvas.Bounds())
	if r.Empty() {
		return
	}
	w := r.Dx() * 4
	for y := r.Min.Y; y < r.Max.Y; y++ {
		off := canvas.PixOffset(r.Min.X, y)
		clear(canvas.Pix[off : off+w])
	}
}
