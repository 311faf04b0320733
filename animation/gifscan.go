package animation

import (
	"errors"
	"fmt"
)

// GIF block introducers and extension labels.
const (
	gifExtension      = 0x21
	gifImageSeparator = 0x2C
	gifTrailer        = 0x3B
	gifGraphicControl = 0xF9
)

var (
	errNotGIF       = errors.New("animation: not a GIF stream")
	errTruncatedGIF = errors.New("animation: truncated GIF stream")
)

// DeclaredDelays walks the block structure of a GIF stream and reports,
// for each image in order, whether a graphic control extension precedes
// it. image/gif returns a delay of 0 both for an explicit zero and for a
// frame without that extension; this tells the two apart.
func DeclaredDelays(data []byte) ([]bool, error) {
	if len(data) < 13 || string(data[:3]) != "GIF" {
		return nil, errNotGIF
	}
	p := 13
	if packed := data[10]; packed&0x80 != 0 {
		p += colorTableSize(packed)
	}

	var declared []bool
	pending := false
	for p < len(data) {
		var err error
		switch data[p] {
		case gifExtension:
			if p+1 >= len(data) {
				return nil, errTruncatedGIF
			}
			if data[p+1] == gifGraphicControl {
				pending = true
			}
			p, err = skipSubBlocks(data, p+2)
		case gifImageSeparator:
			declared = append(declared, pending)
			pending = false
			// Separator, 8 bytes of geometry, packed flags.
			if p+10 > len(data) {
				return nil, errTruncatedGIF
			}
			packed := data[p+9]
			p += 10
			if packed&0x80 != 0 {
				p += colorTableSize(packed)
			}
			// LZW minimum code size, then the image data sub-blocks.
			p, err = skipSubBlocks(data, p+1)
		case gifTrailer:
			return declared, nil
		default:
			return nil, fmt.Errorf("animation: unknown GIF block 0x%02x at offset %d", data[p], p)
		}
		if err != nil {
			return nil, err
		}
	}
	return declared, nil
}

func colorTableSize(packed byte) int {
	return 3 << (int(packed&0x07) + 1)
}

// skipSubBlocks returns the offset just past the zero-length block that
// ends the sub-block chain starting at p.
func skipSubBlocks(data []byte, p int) (int, error) {
	for {
		if p >= len(data) {
			return 0, errTruncatedGIF
		}
		n := int(data[p])
		p++
		if n == 0 {
			return p, nil
		}
		p += n
	}
}
