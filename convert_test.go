package webpconv

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"testing"
	"time"

	"golang.org/x/image/bmp"
	"golang.org/x/image/webp"

	"github.com/deepteams/webpconv/codec"
	"github.com/deepteams/webpconv/mux"
)

func TestFormatFromName(t *testing.T) {
	tests := []struct {
		name string
		want Format
	}{
		{"a.png", FormatPNG},
		{"A.PNG", FormatPNG},
		{"photo.jpg", FormatJPEG},
		{"photo.JPEG", FormatJPEG},
		{"photo.jpe", FormatJPEG},
		{"photo.jfif", FormatJPEG},
		{"anim.Gif", FormatGIF},
		{"scan.tiff", FormatGeneric},
		{"noext", FormatGeneric},
		{"dir.png/file", FormatGeneric},
	}
	for _, tt := range tests {
		if got := FormatFromName(tt.name); got != tt.want {
			t.Errorf("FormatFromName(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestOutputName(t *testing.T) {
	for in, want := range map[string]string{
		"cat.png":         "cat.webp",
		"archive.tar.gif": "archive.tar.webp",
		"dir/photo.JPG":   "photo.webp",
		"noext":           "noext.webp",
	} {
		if got := OutputName(in); got != want {
			t.Errorf("OutputName(%q) = %q, want %q", in, got, want)
		}
	}
	r := &Result{Stats: Stats{Filename: "x.gif"}}
	if r.OutputName() != "x.webp" {
		t.Errorf("Result.OutputName = %q", r.OutputName())
	}
}

func convertWith(t *testing.T, enc codec.Encoder, name string, data []byte, p Policy) *Result {
	t.Helper()
	res, err := New(&Options{Encoder: enc}).Convert(context.Background(), Source{Name: name, Data: data}, p)
	if err != nil {
		t.Fatalf("Convert(%s): %v", name, err)
	}
	return res
}

func TestConvertPNGKeepsAlpha(t *testing.T) {
	data := pngBytes(t, gradient(t, 8, 6, 128))
	enc := &recordingEncoder{}
	res := convertWith(t, enc, "logo.png", data, Policy{Quality: 80})

	s := res.Stats
	if s.Format != "PNG" || s.Dimensions != "8x6" || !s.HasTransparency {
		t.Errorf("stats = %+v", s)
	}
	if s.Compression != "Quality 80" {
		t.Errorf("Compression = %q, want %q", s.Compression, "Quality 80")
	}
	if s.Sequence != nil {
		t.Errorf("Sequence = %+v, want nil for PNG", s.Sequence)
	}
	if s.OriginalSize != int64(len(data)) || s.EncodedSize != int64(len(res.Data)) {
		t.Errorf("sizes = %d/%d, want %d/%d", s.OriginalSize, s.EncodedSize, len(data), len(res.Data))
	}
	if got := enc.calls()[0].Quality; got != 85 {
		t.Errorf("encoder quality = %d, want 85", got)
	}
}

func TestConvertJPEGTaggedSourceIsOpaque(t *testing.T) {
	// PNG bytes with alpha behind a .jpg name: sniffing decodes the PNG,
	// but the JPEG route never keeps transparency.
	data := pngBytes(t, gradient(t, 4, 4, 0))
	enc := &recordingEncoder{}
	res := convertWith(t, enc, "photo.jpg", data, Policy{Quality: 70})

	if res.Stats.HasTransparency {
		t.Error("HasTransparency = true for a JPEG source")
	}
	if res.Stats.Format != "JPEG" {
		t.Errorf("Format = %q, want JPEG", res.Stats.Format)
	}
	if got := enc.calls()[0].Quality; got != 70 {
		t.Errorf("encoder quality = %d, want 70 (no bump)", got)
	}
	img := enc.images[0]
	if got := img.NRGBAAt(1, 1); got != (color.NRGBA{R: 255, G: 255, B: 255, A: 255}) {
		t.Errorf("transparent pixel composited to %v, want white", got)
	}
}

func TestConvertJPEGTaggedPaletteIsOpaque(t *testing.T) {
	// A palette PNG with a transparent entry behind a .jpg name. The palette
	// rule would keep alpha, but the JPEG route flattens unconditionally.
	pal := image.NewPaletted(image.Rect(0, 0, 3, 3), color.Palette{
		color.NRGBA{},
		color.NRGBA{R: 255, A: 255},
	})
	pal.SetColorIndex(2, 2, 1)
	enc := &recordingEncoder{}
	res := convertWith(t, enc, "x.jpg", pngBytes(t, pal), Policy{Quality: 70})

	if res.Stats.HasTransparency {
		t.Error("HasTransparency = true for a JPEG-named palette source")
	}
	if got := enc.calls()[0].Quality; got != 70 {
		t.Errorf("encoder quality = %d, want 70 (no bump)", got)
	}
	img := enc.images[0]
	if got := img.NRGBAAt(0, 0); got != (color.NRGBA{R: 255, G: 255, B: 255, A: 255}) {
		t.Errorf("transparent index composited to %v, want white", got)
	}
	if got := img.NRGBAAt(2, 2); got != (color.NRGBA{R: 255, A: 255}) {
		t.Errorf("opaque index = %v, want red", got)
	}
}

func TestConvertStatsLabelMatchesEncodedQuality(t *testing.T) {
	enc := &recordingEncoder{}
	res := convertWith(t, enc, "over.jpg", jpegBytes(t, gradient(t, 4, 4, 255)), Policy{Quality: 140})
	if got := enc.calls()[0].Quality; got != 100 {
		t.Errorf("encoder quality = %d, want 100", got)
	}
	if res.Stats.Compression != "Quality 100" {
		t.Errorf("Compression = %q, want %q", res.Stats.Compression, "Quality 100")
	}
}

func TestConvertJPEG(t *testing.T) {
	data := jpegBytes(t, gradient(t, 16, 16, 255))
	res := convertWith(t, &recordingEncoder{}, "p.jpeg", data, Policy{Quality: 60})
	if res.Stats.HasTransparency || res.Stats.Dimensions != "16x16" {
		t.Errorf("stats = %+v", res.Stats)
	}
}

func TestConvertGenericReportsDecoder(t *testing.T) {
	var buf bytes.Buffer
	if err := bmp.Encode(&buf, gradient(t, 3, 3, 255)); err != nil {
		t.Fatal(err)
	}
	res := convertWith(t, &recordingEncoder{}, "scan.bmp", buf.Bytes(), Policy{Quality: 50})
	if res.Stats.Format != "BMP" {
		t.Errorf("Format = %q, want BMP", res.Stats.Format)
	}
	if res.Stats.Compression != "Quality 50" {
		t.Errorf("Compression = %q", res.Stats.Compression)
	}
}

func TestConvertPNGLosslessRoundTrip(t *testing.T) {
	enc, err := codec.Lookup("native")
	if err != nil {
		t.Skip(err)
	}
	src := gradient(t, 12, 9, 255)
	res := convertWith(t, enc, "exact.png", pngBytes(t, src), Policy{Lossless: true, Quality: 3})
	if res.Stats.Compression != "Lossless" {
		t.Errorf("Compression = %q", res.Stats.Compression)
	}
	got, err := webp.Decode(bytes.NewReader(res.Data))
	if err != nil {
		t.Fatalf("webp.Decode: %v", err)
	}
	for y := 0; y < 9; y++ {
		for x := 0; x < 12; x++ {
			r1, g1, b1, a1 := src.At(x, y).RGBA()
			r2, g2, b2, a2 := got.At(x, y).RGBA()
			if r1 != r2 || g1 != g2 || b1 != b2 || a1 != a2 {
				t.Fatalf("pixel (%d,%d) = %v, want %v", x, y, got.At(x, y), src.At(x, y))
			}
		}
	}
}

func TestConvertLossyHighQualityIsClose(t *testing.T) {
	enc := lossyEncoder(t)
	src := gradient(t, 32, 32, 255)
	res := convertWith(t, enc, "smooth.png", pngBytes(t, src), Policy{Quality: 100})
	got, err := webp.Decode(bytes.NewReader(res.Data))
	if err != nil {
		t.Fatalf("webp.Decode: %v", err)
	}
	var sum, n int
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			r1, g1, b1, _ := src.At(x, y).RGBA()
			r2, g2, b2, _ := got.At(x, y).RGBA()
			sum += absDiff(r1>>8, r2>>8) + absDiff(g1>>8, g2>>8) + absDiff(b1>>8, b2>>8)
			n += 3
		}
	}
	if mean := float64(sum) / float64(n); mean > 6 {
		t.Errorf("mean channel error = %.2f, want <= 6", mean)
	}
}

func absDiff(a, b uint32) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}

func TestConvertSingleFrameGIFIsStatic(t *testing.T) {
	enc := &recordingEncoder{}
	res := convertWith(t, enc, "still.gif", gifBytes(t, 5, 4, 40), Policy{Quality: 80})

	s := res.Stats
	if s.Sequence == nil || s.Sequence.Frames != 1 || s.Sequence.Animated || s.Sequence.OutputType != "Static WebP" {
		t.Fatalf("Sequence = %+v, want 1 static frame", s.Sequence)
	}
	if s.Compression != "Static WebP - Quality 80" {
		t.Errorf("Compression = %q", s.Compression)
	}
	if s.Format != "GIF" || s.Dimensions != "5x4" {
		t.Errorf("stats = %+v", s)
	}
	d, err := mux.NewDemuxer(res.Data)
	if err != nil {
		t.Fatal(err)
	}
	if d.GetFeatures().HasAnimation {
		t.Error("single-frame GIF produced an animation")
	}
}

func TestConvertStaticGIFPaletteTransparency(t *testing.T) {
	pal := color.Palette{color.RGBA{}, color.RGBA{R: 255, A: 255}}
	m := image.NewPaletted(image.Rect(0, 0, 3, 3), pal)
	m.SetColorIndex(1, 1, 1)
	var buf bytes.Buffer
	if err := gif.Encode(&buf, m, nil); err != nil {
		t.Fatal(err)
	}
	res := convertWith(t, &recordingEncoder{}, "dot.gif", buf.Bytes(), Policy{Quality: 80})
	if !res.Stats.HasTransparency {
		t.Error("GIF with a transparent index lost its transparency")
	}
}

func TestConvertAnimatedGIF(t *testing.T) {
	data := gifBytes(t, 8, 8, 10, 0, 20, 5, 3)
	enc := &recordingEncoder{}
	res := convertWith(t, enc, "spin.gif", data, Policy{Lossless: true})

	s := res.Stats
	if s.Sequence == nil || s.Sequence.Frames != 5 || !s.Sequence.Animated || s.Sequence.OutputType != "Animated WebP" {
		t.Fatalf("Sequence = %+v, want 5 animated frames", s.Sequence)
	}
	if s.Compression != "Animated WebP - Lossless" {
		t.Errorf("Compression = %q", s.Compression)
	}
	if !s.HasTransparency {
		t.Error("animated output should report transparency")
	}

	d, err := mux.NewDemuxer(res.Data)
	if err != nil {
		t.Fatal(err)
	}
	if d.NumFrames() != 5 {
		t.Fatalf("NumFrames = %d, want 5", d.NumFrames())
	}
	want := []int{100, 100, 200, 50, 50}
	for i, got := range d.Durations() {
		if got != want[i] {
			t.Errorf("frame %d duration = %d, want %d", i, got, want[i])
		}
	}
}

func TestConvertAnimatedGIFExplicitZeroDelay(t *testing.T) {
	// Frame 1 carries a graphic control extension (forced by its disposal
	// method) declaring 0; frame 2 has none.
	g := &gif.GIF{Config: image.Config{Width: 4, Height: 4, ColorModel: testPalette}}
	for i := 0; i < 3; i++ {
		m := image.NewPaletted(image.Rect(0, 0, 4, 4), testPalette)
		for p := range m.Pix {
			m.Pix[p] = uint8(i)
		}
		g.Image = append(g.Image, m)
	}
	g.Delay = []int{20, 0, 0}
	g.Disposal = []byte{0, gif.DisposalNone, 0}
	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, g); err != nil {
		t.Fatal(err)
	}

	res := convertWith(t, &recordingEncoder{}, "zero.gif", buf.Bytes(), Policy{Lossless: true})
	d, err := mux.NewDemuxer(res.Data)
	if err != nil {
		t.Fatal(err)
	}
	want := []int{200, 50, 100}
	got := d.Durations()
	if len(got) != len(want) {
		t.Fatalf("Durations = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("frame %d duration = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestConvertErrors(t *testing.T) {
	conv := New(&Options{Encoder: &recordingEncoder{}})
	ctx := context.Background()

	_, err := conv.Convert(ctx, Source{Name: "broken.png", Data: []byte("not an image")}, DefaultPolicy())
	var ce *ConversionError
	var de *DecodeError
	if !errors.As(err, &ce) || ce.Filename != "broken.png" || !errors.As(err, &de) {
		t.Errorf("garbage: err = %v, want ConversionError wrapping DecodeError", err)
	}

	_, err = conv.Convert(ctx, Source{Name: "empty.gif"}, DefaultPolicy())
	if !errors.Is(err, ErrEmptySource) {
		t.Errorf("empty: err = %v, want ErrEmptySource", err)
	}

	_, err = conv.Convert(ctx, Source{Name: "fake.gif", Data: pngBytes(t, gradient(t, 2, 2, 255))}, DefaultPolicy())
	if !errors.As(err, &de) || de.Format != "GIF" {
		t.Errorf("png bytes on GIF route: err = %v, want DecodeError", err)
	}

	broken := New(&Options{Encoder: brokenEncoder{}})
	_, err = broken.Convert(ctx, Source{Name: "ok.png", Data: pngBytes(t, gradient(t, 2, 2, 255))}, DefaultPolicy())
	var cod *CodecError
	if !errors.As(err, &cod) || cod.Filename != "ok.png" || !errors.Is(err, errEncoderBroken) {
		t.Errorf("codec failure: err = %v, want CodecError for ok.png", err)
	}
}

func TestConvertNativeRejectsLossy(t *testing.T) {
	enc, err := codec.Lookup("native")
	if err != nil {
		t.Skip(err)
	}
	_, err = New(&Options{Encoder: enc}).Convert(context.Background(),
		Source{Name: "a.png", Data: pngBytes(t, gradient(t, 2, 2, 255))}, Policy{Quality: 80})
	if !errors.Is(err, codec.ErrLossyUnsupported) {
		t.Errorf("err = %v, want ErrLossyUnsupported", err)
	}
}

func TestConvertCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	enc := &recordingEncoder{}
	_, err := New(&Options{Encoder: enc}).Convert(ctx, Source{Name: "a.png", Data: []byte{1}}, DefaultPolicy())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if len(enc.calls()) != 0 {
		t.Error("encoder ran on a cancelled context")
	}
}

type recordingObserver struct {
	formats []Format
	errs    []error
}

func (o *recordingObserver) ObserveConversion(f Format, _ time.Duration, _ *Stats, err error) {
	o.formats = append(o.formats, f)
	o.errs = append(o.errs, err)
}

func TestConvertNotifiesObserver(t *testing.T) {
	obs := &recordingObserver{}
	conv := New(&Options{Encoder: &recordingEncoder{}, Observer: obs})
	ctx := context.Background()
	_, _ = conv.Convert(ctx, Source{Name: "a.png", Data: pngBytes(t, gradient(t, 2, 2, 255))}, DefaultPolicy())
	_, _ = conv.Convert(ctx, Source{Name: "b.gif", Data: []byte("nope")}, DefaultPolicy())

	if len(obs.formats) != 2 || obs.formats[0] != FormatPNG || obs.formats[1] != FormatGIF {
		t.Fatalf("formats = %v", obs.formats)
	}
	if obs.errs[0] != nil || obs.errs[1] == nil {
		t.Errorf("errs = %v, want [nil, error]", obs.errs)
	}
}
