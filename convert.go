package webpconv

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"log/slog"
	"runtime"
	"time"

	// Formats accepted by image.Decode signature sniffing.
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/deepteams/webpconv/animation"
	"github.com/deepteams/webpconv/codec"
	"github.com/deepteams/webpconv/internal/logging"
	"github.com/deepteams/webpconv/pixel"
)

// Source is one input file: its name and its raw bytes.
type Source struct {
	Name string
	Data []byte
}

// Observer receives the outcome of every conversion. Implementations must
// be safe for concurrent use.
type Observer interface {
	ObserveConversion(format Format, elapsed time.Duration, stats *Stats, err error)
}

// Options configures a Converter. The zero value is usable.
type Options struct {
	// Encoder is the WebP backend. Nil selects codec.Default().
	Encoder codec.Encoder
	// Background is composited under translucent pixels of opaque
	// outputs. Nil means white.
	Background color.Color
	// Logger receives per-item events. Nil discards them.
	Logger *slog.Logger
	// Workers bounds ConvertAll concurrency. Values <= 0 use GOMAXPROCS.
	Workers int
	// Observer, when set, is notified after every conversion.
	Observer Observer
}

// Converter routes sources to the right decode and encode path. It is safe
// for concurrent use.
type Converter struct {
	enc      codec.Encoder
	bg       color.Color
	log      *slog.Logger
	workers  int
	observer Observer
}

// New returns a Converter. opts may be nil.
func New(opts *Options) *Converter {
	var o Options
	if opts != nil {
		o = *opts
	}
	c := &Converter{
		enc:      o.Encoder,
		bg:       o.Background,
		log:      o.Logger,
		workers:  o.Workers,
		observer: o.Observer,
	}
	if c.enc == nil {
		c.enc = codec.Default()
	}
	if c.bg == nil {
		c.bg = pixel.White
	}
	if c.log == nil {
		c.log = logging.Discard()
	}
	if c.workers <= 0 {
		c.workers = runtime.GOMAXPROCS(0)
	}
	return c
}

// Encoder returns the backend in use.
func (c *Converter) Encoder() codec.Encoder { return c.enc }

// Convert converts a single source. Failures are returned as
// *ConversionError. If ctx is already done, ctx.Err() is returned and
// nothing is decoded.
func (c *Converter) Convert(ctx context.Context, src Source, p Policy) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	tag := FormatFromName(src.Name)

	res, err := c.convert(src, tag, p)
	if err != nil {
		err = &ConversionError{Filename: src.Name, Err: err}
	}
	elapsed := time.Since(start)
	if c.observer != nil {
		var stats *Stats
		if res != nil {
			stats = &res.Stats
		}
		c.observer.ObserveConversion(tag, elapsed, stats, err)
	}
	if err == nil {
		c.log.Debug("converted",
			"file", src.Name,
			"format", res.Stats.Format,
			"compression", res.Stats.Compression,
			"reduction", res.Stats.Reduction,
			"elapsed", elapsed)
	}
	return res, err
}

func (c *Converter) convert(src Source, tag Format, p Policy) (*Result, error) {
	if len(src.Data) == 0 {
		return nil, &DecodeError{Filename: src.Name, Format: tag.String(), Err: ErrEmptySource}
	}
	if tag == FormatGIF {
		return c.convertGIF(src, p)
	}

	img, decoder, err := image.Decode(bytes.NewReader(src.Data))
	if err != nil {
		return nil, &DecodeError{Filename: src.Name, Format: tag.String(), Err: err}
	}
	// Only PNG keeps its alpha channel. A JPEG-named source is always
	// flattened, even when sniffing found a transparent palette.
	var frame pixel.Frame
	if tag == FormatJPEG {
		frame = pixel.Flatten(img, c.bg)
	} else {
		frame = pixel.Normalize(img, tag == FormatPNG, c.bg)
	}
	data, err := c.encodeStill(src.Name, frame, p)
	if err != nil {
		return nil, err
	}
	stats := newStats(src, formatTag(tag, decoder), len(data), frame.Size(), p.Label(), frame.HasTransparency())
	return &Result{Data: data, Stats: stats}, nil
}

func (c *Converter) convertGIF(src Source, p Policy) (*Result, error) {
	gs, err := animation.ReadGIF(src.Data)
	if err != nil {
		return nil, &DecodeError{Filename: src.Name, Format: FormatGIF.String(), Err: err}
	}
	g := gs.GIF()

	frames, animated := gs.Inspect()
	if frames > 1 && animated {
		return c.convertAnimated(src, gs, p)
	}

	frame := pixel.Normalize(logicalScreen(g), true, c.bg)
	data, err := c.encodeStill(src.Name, frame, p)
	if err != nil {
		return nil, err
	}
	stats := newStats(src, FormatGIF.String(), len(data), frame.Size(),
		OutputStatic+" - "+p.Label(), frame.HasTransparency())
	stats.Sequence = &SequenceStats{Frames: frames, Animated: false, OutputType: OutputStatic}
	return &Result{Data: data, Stats: stats}, nil
}

func (c *Converter) convertAnimated(src Source, fs animation.FrameSource, p Policy) (*Result, error) {
	seq, err := animation.Extract(fs)
	if err != nil {
		return nil, &DecodeError{Filename: src.Name, Format: FormatGIF.String(), Err: err}
	}
	data, err := EncodeAnimated(c.enc, seq, p)
	if err != nil {
		var ce *CodecError
		if errors.As(err, &ce) {
			ce.Filename = src.Name
		}
		return nil, err
	}
	stats := newStats(src, FormatGIF.String(), len(data), seq.Size(),
		OutputAnimated+" - "+p.Label(), seq.HasTransparency())
	stats.Sequence = &SequenceStats{Frames: seq.Len(), Animated: true, OutputType: OutputAnimated}
	return &Result{Data: data, Stats: stats}, nil
}

func (c *Converter) encodeStill(name string, f pixel.Frame, p Policy) ([]byte, error) {
	data, err := EncodeStatic(c.enc, f, p)
	if err != nil {
		var ce *CodecError
		if errors.As(err, &ce) {
			ce.Filename = name
		}
		return nil, err
	}
	return data, nil
}

// logicalScreen returns the first frame of g placed on the GIF's logical
// screen, still as a palette image. Pixels outside the frame take the
// palette's transparent entry when it has one, else the background index.
func logicalScreen(g *gif.GIF) *image.Paletted {
	first := g.Image[0]
	screen := image.Rect(0, 0, g.Config.Width, g.Config.Height)
	if screen.Empty() || first.Rect == screen {
		return first
	}

	out := image.NewPaletted(screen, first.Palette)
	fill := uint8(g.BackgroundIndex)
	if int(fill) >= len(first.Palette) {
		fill = 0
	}
	for i, col := range first.Palette {
		if _, _, _, a := col.RGBA(); a == 0 {
			fill = uint8(i)
			break
		}
	}
	for i := range out.Pix {
		out.Pix[i] = fill
	}

	r := first.Rect.Intersect(screen)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		copy(out.Pix[out.PixOffset(r.Min.X, y):out.PixOffset(r.Max.X, y)],
			first.Pix[first.PixOffset(r.Min.X, y):first.PixOffset(r.Max.X, y)])
	}
	return out
}
