package webpconv

import (
	"strconv"

	"github.com/deepteams/webpconv/codec"
	"github.com/deepteams/webpconv/pixel"
)

// DefaultQuality is the lossy quality used when none is configured.
const DefaultQuality = 85

// alphaQualityBump is added to the lossy quality of frames with an alpha
// channel.
const alphaQualityBump = 5

// Policy controls how every item of a conversion is compressed. One value
// governs a whole batch.
type Policy struct {
	// Lossless selects VP8L. Quality is ignored when it is set.
	Lossless bool
	// Quality is the lossy quality, 0-100.
	Quality int
}

// DefaultPolicy returns a lossy policy at DefaultQuality.
func DefaultPolicy() Policy {
	return Policy{Quality: DefaultQuality}
}

// EffectiveQuality returns the lossy quality used for a still frame of the
// given mode.
func (p Policy) EffectiveQuality(mode pixel.Mode) int {
	q := min(max(p.Quality, 0), 100)
	if mode == pixel.TransparencyCapable {
		q = min(q+alphaQualityBump, 100)
	}
	return q
}

// Label returns "Lossless" or "Quality N" with N clamped to [0,100].
func (p Policy) Label() string {
	if p.Lossless {
		return "Lossless"
	}
	return "Quality " + strconv.Itoa(min(max(p.Quality, 0), 100))
}

func (p Policy) stillOptions(mode pixel.Mode) codec.Options {
	if p.Lossless {
		return codec.Options{Lossless: true}
	}
	return codec.Options{Quality: p.EffectiveQuality(mode)}
}
