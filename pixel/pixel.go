// Package pixel maps decoded images of any color model onto the two layouts
// the WebP encoders accept: an opaque frame or a frame with an alpha channel.
//
// Both layouts are stored as *image.NRGBA anchored at (0,0). Opaque frames
// have every alpha sample at 0xff. Once built, a Frame's Mode is
// authoritative; encoders branch on it and never look at the source image
// again.
package pixel

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// Mode is the canonical layout of a normalized frame.
type Mode int

const (
	// Opaque frames carry no transparency information.
	Opaque Mode = iota
	// TransparencyCapable frames keep a meaningful alpha channel.
	TransparencyCapable
)

func (m Mode) String() string {
	if m == TransparencyCapable {
		return "RGBA"
	}
	return "RGB"
}

// Frame is a decoded image in one of the canonical modes.
type Frame struct {
	Mode  Mode
	Image *image.NRGBA
}

// Width returns the frame width in pixels.
func (f Frame) Width() int { return f.Image.Rect.Dx() }

// Height returns the frame height in pixels.
func (f Frame) Height() int { return f.Image.Rect.Dy() }

// Size returns the frame dimensions as a point.
func (f Frame) Size() image.Point { return f.Image.Rect.Size() }

// HasTransparency reports whether the frame is in TransparencyCapable mode.
func (f Frame) HasTransparency() bool { return f.Mode == TransparencyCapable }

// White is the default compositing background.
var White color.Color = color.White

// Normalize converts img to a canonical Frame.
//
// Images with an alpha channel stay TransparencyCapable when transparent is
// true. Otherwise they are composited over bg (White when nil) and become
// Opaque. Palette images become TransparencyCapable only when their palette
// declares a transparent entry. Every other color model becomes Opaque.
func Normalize(img image.Image, transparent bool, bg color.Color) Frame {
	if bg == nil {
		bg = White
	}
	switch {
	case HasAlphaChannel(img):
		if transparent {
			return Frame{Mode: TransparencyCapable, Image: toNRGBA(img)}
		}
		return Frame{Mode: Opaque, Image: flatten(img, bg)}
	case isPaletted(img):
		if PaletteHasTransparency(img.(*image.Paletted).Palette) {
			return Frame{Mode: TransparencyCapable, Image: toNRGBA(img)}
		}
		return Frame{Mode: Opaque, Image: flatten(img, bg)}
	default:
		return Frame{Mode: Opaque, Image: flatten(img, bg)}
	}
}

// Flatten composites img over bg (White when nil) and returns an Opaque
// frame whatever the source color model, palette transparency included.
func Flatten(img image.Image, bg color.Color) Frame {
	if bg == nil {
		bg = White
	}
	return Frame{Mode: Opaque, Image: flatten(img, bg)}
}

// ForceTransparent converts img to a TransparencyCapable frame regardless of
// its source color model. Animated output uses it so every frame carries the
// same layout.
func ForceTransparent(img image.Image) Frame {
	return Frame{Mode: TransparencyCapable, Image: toNRGBA(img)}
}

// HasAlphaChannel reports whether img declares an explicit alpha channel.
//
// Some decoders (image/png for truecolor files) widen RGB input to
// *image.RGBA. Those are only treated as having alpha when a pixel is
// actually translucent.
func HasAlphaChannel(img image.Image) bool {
	switch m := img.(type) {
	case *image.NRGBA, *image.NRGBA64, *image.NYCbCrA, *image.Alpha, *image.Alpha16:
		return true
	case *image.RGBA:
		return !m.Opaque()
	case *image.RGBA64:
		return !m.Opaque()
	case *image.Paletted, *image.Gray, *image.Gray16, *image.YCbCr, *image.CMYK, *image.Uniform:
		return false
	}
	switch img.ColorModel() {
	case color.NRGBAModel, color.NRGBA64Model, color.AlphaModel, color.Alpha16Model:
		return true
	case color.RGBAModel, color.RGBA64Model:
		if o, ok := img.(interface{ Opaque() bool }); ok {
			return !o.Opaque()
		}
		return true
	}
	return false
}

// PaletteHasTransparency reports whether any palette entry is not fully
// opaque. The GIF decoder maps the transparency index to such an entry.
func PaletteHasTransparency(p color.Palette) bool {
	for _, c := range p {
		if _, _, _, a := c.RGBA(); a != 0xffff {
			return true
		}
	}
	return false
}

func isPaletted(img image.Image) bool {
	_, ok := img.(*image.Paletted)
	return ok
}

// toNRGBA copies img into a fresh NRGBA anchored at the origin.
func toNRGBA(src image.Image) *image.NRGBA {
	b := src.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Rect, src, b.Min, draw.Src)
	return dst
}

// flatten composites src over bg: result = a*src + (1-a)*bg.
func flatten(src image.Image, bg color.Color) *image.NRGBA {
	b := src.Bounds()
	canvas := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(canvas, canvas.Rect, image.NewUniform(opaque(bg)), image.Point{}, draw.Src)
	draw.Draw(canvas, canvas.Rect, src, b.Min, draw.Over)

	// canvas is fully opaque, so premultiplied and straight alpha agree.
	dst := &image.NRGBA{Pix: canvas.Pix, Stride: canvas.Stride, Rect: canvas.Rect}
	return dst
}

// opaque drops any translucency from a background color.
func opaque(c color.Color) color.Color {
	r, g, b, a := c.RGBA()
	if a == 0xffff {
		return c
	}
	if a == 0 {
		return color.White
	}
	// Un-premultiply so a translucent background keeps its hue.
	return color.RGBA64{
		R: uint16(r * 0xffff / a),
		G: uint16(g * 0xffff / a),
		B: uint16(b * 0xffff / a),
		A: 0xffff,
	}
}
