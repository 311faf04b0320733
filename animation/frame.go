// Package animation turns multi-frame sources into ordered, timed frame
// sequences and writes those sequences as animated WebP files.
//
// Frames are always full-canvas snapshots. The encoder emits one keyframe
// per element with blend=none and dispose=none, so the durations in the
// output line up with the input sequence by position.
package animation

import (
	"image"
	"time"

	"github.com/deepteams/webpconv/pixel"
)

const (
	// DefaultFrameDuration is used when a source declares no delay.
	DefaultFrameDuration = 100 * time.Millisecond
	// MinFrameDuration is the floor applied to every frame.
	MinFrameDuration = 50 * time.Millisecond
)

// Frame is one normalized animation frame and its display duration.
type Frame struct {
	Image    pixel.Frame
	Duration time.Duration
}

// Sequence is an ordered list of frames. Index order is playback order.
type Sequence struct {
	Frames []Frame
}

// Append adds a frame, raising its duration to MinFrameDuration if needed.
func (s *Sequence) Append(img pixel.Frame, d time.Duration) {
	s.Frames = append(s.Frames, Frame{Image: img, Duration: ClampDuration(d)})
}

// ClampDuration applies the MinFrameDuration floor.
func ClampDuration(d time.Duration) time.Duration {
	return max(d, MinFrameDuration)
}

// Len returns the number of frames.
func (s *Sequence) Len() int { return len(s.Frames) }

// Size returns the dimensions of the first frame.
func (s *Sequence) Size() image.Point {
	if len(s.Frames) == 0 {
		return image.Point{}
	}
	return s.Frames[0].Image.Size()
}

// Durations returns the frame durations in milliseconds, in frame order.
func (s *Sequence) Durations() []int {
	out := make([]int, len(s.Frames))
	for i, f := range s.Frames {
		out[i] = int(f.Duration / time.Millisecond)
	}
	return out
}

// TotalDuration returns the sum of all frame durations.
func (s *Sequence) TotalDuration() time.Duration {
	var total time.Duration
	for _, f := range s.Frames {
		total += f.Duration
	}
	return total
}

// HasTransparency reports whether any frame is TransparencyCapable.
func (s *Sequence) HasTransparency() bool {
	for _, f := range s.Frames {
		if f.Image.HasTransparency() {
			return true
		}
	}
	return false
}
