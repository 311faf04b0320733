package animation

import (
	"bytes"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"io"
	"testing"
	"time"

	"github.com/deepteams/webpconv/codec"
	"github.com/deepteams/webpconv/internal/container"
	"github.com/deepteams/webpconv/mux"
	"github.com/deepteams/webpconv/pixel"
)

// fakeEncoder writes a still WebP holding a VP8L header for the image
// size. It records the options of every call.
type fakeEncoder struct {
	calls []codec.Options
}

func (*fakeEncoder) Name() string { return "fake" }
func (*fakeEncoder) Lossy() bool  { return true }

func (e *fakeEncoder) Encode(w io.Writer, img image.Image, o codec.Options) error {
	e.calls = append(e.calls, o)
	b := img.Bounds()
	bs := make([]byte, 5+11)
	bs[0] = container.VP8LMagicByte
	binary.LittleEndian.PutUint32(bs[1:5], uint32(b.Dx()-1)|uint32(b.Dy()-1)<<14|1<<28)
	m := mux.NewMuxer()
	if err := m.AddFrame(bs, nil); err != nil {
		return err
	}
	return m.Assemble(w)
}

type failingEncoder struct{ fakeEncoder }

var errBoom = errors.New("boom")

func (*failingEncoder) Encode(io.Writer, image.Image, codec.Options) error { return errBoom }

func solidFrame(w, h int, c color.NRGBA) pixel.Frame {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return pixel.Frame{Mode: pixel.TransparencyCapable, Image: img}
}

// fakeSource is an in-memory FrameSource that records its cursor.
type fakeSource struct {
	frames  []image.Image
	delays  []time.Duration
	pos     int
	seeks   int
	failAt  int // Current fails on this frame; -1 disables.
	readLog []int
}

func newFakeSource(delays ...time.Duration) *fakeSource {
	s := &fakeSource{delays: delays, failAt: -1}
	for i := range delays {
		img := image.NewGray(image.Rect(0, 0, 4, 3))
		for p := range img.Pix {
			img.Pix[p] = uint8(i * 40)
		}
		s.frames = append(s.frames, img)
	}
	return s
}

func (s *fakeSource) NumFrames() int { return len(s.frames) }

func (s *fakeSource) Seek(i int) error {
	if i < 0 || i >= len(s.frames) {
		return errors.New("out of range")
	}
	s.pos = i
	s.seeks++
	return nil
}

func (s *fakeSource) Current() (image.Image, time.Duration, error) {
	if s.pos == s.failAt {
		return nil, 0, errBoom
	}
	s.readLog = append(s.readLog, s.pos)
	return s.frames[s.pos], s.delays[s.pos], nil
}

// --- Extract ---

func TestExtractDurations(t *testing.T) {
	src := newFakeSource(10*time.Millisecond, 200*time.Millisecond, 0, NoDelay, 50*time.Millisecond)
	seq, err := Extract(src)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	// An explicit 0 takes the floor; only an undeclared delay gets the default.
	want := []int{50, 200, 50, 100, 50}
	got := seq.Durations()
	if len(got) != len(want) {
		t.Fatalf("Durations = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("frame %d duration = %dms, want %dms", i, got[i], want[i])
		}
	}
	for i, f := range seq.Frames {
		if !f.Image.HasTransparency() {
			t.Errorf("frame %d mode = %v, want RGBA", i, f.Image.Mode)
		}
		if g := f.Image.Image.NRGBAAt(0, 0).R; g != uint8(i*40) {
			t.Errorf("frame %d came out of order (gray %d)", i, g)
		}
	}
	if src.pos != 0 {
		t.Errorf("cursor left on frame %d, want 0", src.pos)
	}
	for i, p := range src.readLog {
		if p != i {
			t.Fatalf("read order = %v, want ascending", src.readLog)
		}
	}
}

func TestExtractSingleFrame(t *testing.T) {
	src := newFakeSource(700 * time.Millisecond)
	seq, err := Extract(src)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if seq.Len() != 1 {
		t.Fatalf("Len = %d, want 1", seq.Len())
	}
	if seq.Frames[0].Duration != DefaultFrameDuration {
		t.Errorf("duration = %v, want %v", seq.Frames[0].Duration, DefaultFrameDuration)
	}
	// A gray image has no alpha, so normalization keeps it opaque.
	if seq.Frames[0].Image.Mode != pixel.Opaque {
		t.Errorf("mode = %v, want RGB", seq.Frames[0].Image.Mode)
	}
	if src.pos != 0 {
		t.Errorf("cursor = %d, want 0", src.pos)
	}
}

func TestExtractRewindsOnError(t *testing.T) {
	src := newFakeSource(100*time.Millisecond, 100*time.Millisecond, 100*time.Millisecond)
	src.failAt = 2
	if _, err := Extract(src); !errors.Is(err, errBoom) {
		t.Fatalf("err = %v, want errBoom", err)
	}
	if src.pos != 0 {
		t.Errorf("cursor = %d after failure, want 0", src.pos)
	}
}

func TestExtractNoFrames(t *testing.T) {
	if _, err := Extract(&fakeSource{failAt: -1}); !errors.Is(err, ErrNoFrames) {
		t.Errorf("err = %v, want ErrNoFrames", err)
	}
}

// --- Sequence ---

func TestSequenceAppendFloorsDuration(t *testing.T) {
	var seq Sequence
	seq.Append(solidFrame(2, 2, color.NRGBA{A: 255}), 0)
	seq.Append(solidFrame(2, 2, color.NRGBA{A: 255}), 80*time.Millisecond)
	if seq.Frames[0].Duration != MinFrameDuration {
		t.Errorf("duration = %v, want %v", seq.Frames[0].Duration, MinFrameDuration)
	}
	if seq.TotalDuration() != 130*time.Millisecond {
		t.Errorf("TotalDuration = %v, want 130ms", seq.TotalDuration())
	}
	if seq.Size() != image.Pt(2, 2) {
		t.Errorf("Size = %v, want (2,2)", seq.Size())
	}
	if !seq.HasTransparency() {
		t.Error("HasTransparency = false")
	}
}

// --- GIFSource ---

var gifPalette = color.Palette{
	color.RGBA{},
	color.RGBA{R: 255, A: 255},
	color.RGBA{G: 255, A: 255},
	color.RGBA{B: 255, A: 255},
}

func gifFrame(r image.Rectangle, idx uint8) *image.Paletted {
	m := image.NewPaletted(r, gifPalette)
	for i := range m.Pix {
		m.Pix[i] = idx
	}
	return m
}

// testGIF is a 4x4 screen: a red background frame, a green 2x2 patch that
// is restored afterwards, then a blue 2x2 patch elsewhere.
func testGIF() *gif.GIF {
	return &gif.GIF{
		Image: []*image.Paletted{
			gifFrame(image.Rect(0, 0, 4, 4), 1),
			gifFrame(image.Rect(0, 0, 2, 2), 2),
			gifFrame(image.Rect(2, 2, 4, 4), 3),
		},
		Delay:    []int{5, 0, 20},
		Disposal: []byte{gif.DisposalNone, gif.DisposalPrevious, gif.DisposalBackground},
		Config:   image.Config{Width: 4, Height: 4},
	}
}

func canvasAt(t *testing.T, s *GIFSource, i int) *image.NRGBA {
	t.Helper()
	if err := s.Seek(i); err != nil {
		t.Fatalf("Seek(%d): %v", i, err)
	}
	img, _, err := s.Current()
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	return img.(*image.NRGBA)
}

func TestGIFSourceCompositing(t *testing.T) {
	s, err := NewGIFSource(testGIF())
	if err != nil {
		t.Fatal(err)
	}
	red := color.NRGBA{R: 255, A: 255}
	green := color.NRGBA{G: 255, A: 255}
	blue := color.NRGBA{B: 255, A: 255}

	f1 := canvasAt(t, s, 1)
	if got := f1.NRGBAAt(0, 0); got != green {
		t.Errorf("frame 1 (0,0) = %v, want green", got)
	}
	if got := f1.NRGBAAt(3, 3); got != red {
		t.Errorf("frame 1 (3,3) = %v, want red", got)
	}

	// Frame 1 is restored to the red background before frame 2 is drawn.
	f2 := canvasAt(t, s, 2)
	if got := f2.NRGBAAt(0, 0); got != red {
		t.Errorf("frame 2 (0,0) = %v, want red after DisposalPrevious", got)
	}
	if got := f2.NRGBAAt(3, 3); got != blue {
		t.Errorf("frame 2 (3,3) = %v, want blue", got)
	}

	// Seeking backwards replays from the start.
	f0 := canvasAt(t, s, 0)
	if got := f0.NRGBAAt(3, 3); got != red {
		t.Errorf("frame 0 (3,3) = %v, want red", got)
	}
	if s.Index() != 0 {
		t.Errorf("Index = %d, want 0", s.Index())
	}
}

func TestGIFSourceCurrentIsACopy(t *testing.T) {
	s, err := NewGIFSource(testGIF())
	if err != nil {
		t.Fatal(err)
	}
	a := canvasAt(t, s, 0)
	a.SetNRGBA(0, 0, color.NRGBA{})
	b := canvasAt(t, s, 0)
	if b.NRGBAAt(0, 0).A == 0 {
		t.Error("mutating a snapshot changed the canvas")
	}
}

func TestGIFSourceDelays(t *testing.T) {
	s, err := NewGIFSource(testGIF())
	if err != nil {
		t.Fatal(err)
	}
	seq, err := Extract(s)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	// Without the raw stream a zero delay is indistinguishable from a
	// missing one: 5cs -> 50ms, 0 -> 100ms, 20cs -> 200ms.
	want := []int{50, 100, 200}
	for i, d := range seq.Durations() {
		if d != want[i] {
			t.Errorf("frame %d = %dms, want %dms", i, d, want[i])
		}
	}
	if s.Index() != 0 {
		t.Errorf("Index after Extract = %d, want 0", s.Index())
	}
	if !s.Animated() || s.Size() != image.Pt(4, 4) {
		t.Errorf("Animated=%v Size=%v", s.Animated(), s.Size())
	}
}

func TestGIFSourceSeekOutOfRange(t *testing.T) {
	s, err := NewGIFSource(testGIF())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Seek(3); err == nil {
		t.Error("Seek(3) succeeded on a 3-frame GIF")
	}
	if _, err := NewGIFSource(&gif.GIF{}); err == nil {
		t.Error("NewGIFSource accepted an empty GIF")
	}
}

// --- AnimEncoder ---

func TestEncodeSequence(t *testing.T) {
	var seq Sequence
	for i, d := range []time.Duration{50, 120, 300} {
		seq.Append(solidFrame(6, 4, color.NRGBA{R: uint8(i * 80), A: 200}), d*time.Millisecond)
	}
	enc := &fakeEncoder{}
	var buf bytes.Buffer
	err := Encode(&buf, &seq, &EncodeOptions{Quality: 42, Encoder: enc})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	d, err := mux.NewDemuxer(buf.Bytes())
	if err != nil {
		t.Fatalf("NewDemuxer: %v", err)
	}
	feat := d.GetFeatures()
	if !feat.HasAnimation || feat.Width != 6 || feat.Height != 4 {
		t.Errorf("features = %+v, want 6x4 animation", feat)
	}
	if d.LoopCount() != 0 {
		t.Errorf("LoopCount = %d, want 0", d.LoopCount())
	}
	want := []int{50, 120, 300}
	for i, got := range d.Durations() {
		if got != want[i] {
			t.Errorf("frame %d duration = %d, want %d", i, got, want[i])
		}
	}
	for i := 0; i < d.NumFrames(); i++ {
		f, _ := d.Frame(i)
		if f.BlendMode != mux.BlendNone || f.DisposeMode != mux.DisposeNone || f.OffsetX != 0 || f.OffsetY != 0 {
			t.Errorf("frame %d = %+v, want full-canvas keyframe", i, f)
		}
	}
	if len(enc.calls) != 3 {
		t.Fatalf("encoder called %d times, want 3", len(enc.calls))
	}
	for _, o := range enc.calls {
		if o.Quality != 42 || o.Lossless {
			t.Errorf("encoder options = %+v, want quality 42 lossy", o)
		}
	}
}

func TestAddFrameDimensionMismatch(t *testing.T) {
	enc := NewEncoder(io.Discard, 4, 4, &EncodeOptions{Encoder: &fakeEncoder{}})
	if err := enc.AddFrame(solidFrame(4, 4, color.NRGBA{A: 255}), time.Second); err != nil {
		t.Fatal(err)
	}
	err := enc.AddFrame(solidFrame(5, 4, color.NRGBA{A: 255}), time.Second)
	var dm *DimensionMismatchError
	if !errors.As(err, &dm) {
		t.Fatalf("err = %v, want DimensionMismatchError", err)
	}
	if dm.Index != 1 || dm.Want != image.Pt(4, 4) || dm.Got != image.Pt(5, 4) {
		t.Errorf("error = %+v", dm)
	}
}

func TestEncoderErrors(t *testing.T) {
	if err := NewEncoder(io.Discard, 2, 2, &EncodeOptions{Encoder: &fakeEncoder{}}).Close(); !errors.Is(err, ErrNoFrames) {
		t.Errorf("Close with no frames: err = %v, want ErrNoFrames", err)
	}

	enc := NewEncoder(io.Discard, 2, 2, &EncodeOptions{Encoder: &failingEncoder{}})
	if err := enc.AddFrame(solidFrame(2, 2, color.NRGBA{A: 255}), time.Second); !errors.Is(err, errBoom) {
		t.Errorf("AddFrame: err = %v, want errBoom", err)
	}

	enc = NewEncoder(io.Discard, 2, 2, &EncodeOptions{Encoder: &fakeEncoder{}})
	_ = enc.AddFrame(solidFrame(2, 2, color.NRGBA{A: 255}), time.Second)
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	if err := enc.AddFrame(solidFrame(2, 2, color.NRGBA{A: 255}), time.Second); !errors.Is(err, ErrEncoderClosed) {
		t.Errorf("AddFrame after Close: err = %v, want ErrEncoderClosed", err)
	}
}

func TestEncodeWithLosslessBackend(t *testing.T) {
	backend, err := codec.Lookup("native")
	if err != nil {
		t.Skip("native backend not registered")
	}
	s, err := NewGIFSource(testGIF())
	if err != nil {
		t.Fatal(err)
	}
	seq, err := Extract(s)
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := Encode(&buf, seq, &EncodeOptions{Lossless: true, Encoder: backend}); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	d, err := mux.NewDemuxer(buf.Bytes())
	if err != nil {
		t.Fatalf("NewDemuxer: %v", err)
	}
	if d.NumFrames() != 3 {
		t.Errorf("NumFrames = %d, want 3", d.NumFrames())
	}
	for i := 0; i < d.NumFrames(); i++ {
		if f, _ := d.Frame(i); !f.Lossless() {
			t.Errorf("frame %d is not VP8L", i)
		}
	}
}

func BenchmarkExtractGIF(b *testing.B) {
	g := testGIF()
	for i := 0; i < b.N; i++ {
		s, err := NewGIFSource(g)
		if err != nil {
			b.Fatal(err)
		}
		if _, err := Extract(s); err != nil {
			b.Fatal(err)
		}
	}
}

// gifWithControl encodes three 2x2 frames. image/gif writes a graphic
// control extension only when a frame has a delay, a disposal method or a
// transparent index, so frame 1 declares an explicit zero delay through its
// disposal method and frame 2 declares nothing.
func gifWithControl(t *testing.T) []byte {
	t.Helper()
	// A transparent palette entry would also force the extension.
	opaque := gifPalette[1:]
	g := &gif.GIF{Config: image.Config{Width: 2, Height: 2, ColorModel: opaque}}
	for i := 0; i < 3; i++ {
		m := image.NewPaletted(image.Rect(0, 0, 2, 2), opaque)
		for p := range m.Pix {
			m.Pix[p] = uint8(i)
		}
		g.Image = append(g.Image, m)
	}
	g.Delay = []int{5, 0, 0}
	g.Disposal = []byte{0, gif.DisposalNone, 0}
	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, g); err != nil {
		t.Fatalf("gif.EncodeAll: %v", err)
	}
	return buf.Bytes()
}

func TestDeclaredDelays(t *testing.T) {
	got, err := DeclaredDelays(gifWithControl(t))
	if err != nil {
		t.Fatalf("DeclaredDelays: %v", err)
	}
	want := []bool{true, true, false}
	if len(got) != len(want) {
		t.Fatalf("DeclaredDelays = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("frame %d declared = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestDeclaredDelaysRejectsBadInput(t *testing.T) {
	data := gifWithControl(t)
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, errNotGIF},
		{"png signature", []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\x00\x00"), errNotGIF},
		{"truncated", data[:len(data)-6], errTruncatedGIF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DeclaredDelays(tt.data); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestReadGIFKeepsExplicitZeroDelay(t *testing.T) {
	s, err := ReadGIF(gifWithControl(t))
	if err != nil {
		t.Fatalf("ReadGIF: %v", err)
	}
	if s.GIF() == nil || s.NumFrames() != 3 {
		t.Fatalf("ReadGIF decoded %d frames", s.NumFrames())
	}
	seq, err := Extract(s)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	// 5cs -> 50ms, declared 0 -> floor 50ms, undeclared -> 100ms.
	want := []int{50, 50, 100}
	for i, d := range seq.Durations() {
		if d != want[i] {
			t.Errorf("frame %d = %dms, want %dms", i, d, want[i])
		}
	}
}

func TestReadGIFRejectsGarbage(t *testing.T) {
	if _, err := ReadGIF([]byte("GIF89a")); err == nil {
		t.Error("ReadGIF accepted a truncated header")
	}
}
