package webpconv

import (
	"errors"

	"github.com/deepteams/webpconv/animation"
	"github.com/deepteams/webpconv/codec"
	"github.com/deepteams/webpconv/internal/pool"
	"github.com/deepteams/webpconv/pixel"
)

// EncodeStatic encodes one normalized frame as a still WebP.
//
// Lossless policies ignore Quality. Lossy encodes of TransparencyCapable
// frames use Policy.EffectiveQuality, which adds a small bump to protect
// edges around transparent regions.
func EncodeStatic(enc codec.Encoder, f pixel.Frame, p Policy) ([]byte, error) {
	buf := pool.GetBuffer()
	defer pool.PutBuffer(buf)

	if err := enc.Encode(buf, f.Image, p.stillOptions(f.Mode)); err != nil {
		return nil, &CodecError{Backend: enc.Name(), Err: err}
	}
	return pool.CopyBytes(buf), nil
}

// EncodeAnimated encodes seq as an animated WebP that loops forever. A
// sequence of one frame is a still image and goes through EncodeStatic.
//
// Frames are encoded at the policy quality without the transparency bump.
// A frame whose size differs from the first frame fails the whole
// sequence with a *DimensionMismatchError.
func EncodeAnimated(enc codec.Encoder, seq *animation.Sequence, p Policy) ([]byte, error) {
	if seq == nil || seq.Len() == 0 {
		return nil, &CodecError{Backend: enc.Name(), Err: animation.ErrNoFrames}
	}
	if seq.Len() == 1 {
		return EncodeStatic(enc, seq.Frames[0].Image, p)
	}

	buf := pool.GetBuffer()
	defer pool.PutBuffer(buf)

	err := animation.Encode(buf, seq, &animation.EncodeOptions{
		LoopCount: 0,
		Lossless:  p.Lossless,
		Quality:   min(max(p.Quality, 0), 100),
		Encoder:   enc,
	})
	if err != nil {
		var dm *DimensionMismatchError
		if errors.As(err, &dm) {
			return nil, dm
		}
		return nil, &CodecError{Backend: enc.Name(), Err: err}
	}
	return pool.CopyBytes(buf), nil
}
