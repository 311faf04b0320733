package animation

import (
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/deepteams/webpconv/pixel"
)

// FrameSource is a seekable multi-frame image.
type FrameSource interface {
	// NumFrames returns the total frame count.
	NumFrames() int
	// Seek moves the cursor to frame i.
	Seek(i int) error
	// Current returns a copy of the frame under the cursor and its declared
	// delay, or NoDelay when the source declares none. A declared delay of
	// 0 is valid and is raised to MinFrameDuration.
	Current() (image.Image, time.Duration, error)
}

// NoDelay marks a frame without a declared delay. Extract gives such
// frames DefaultFrameDuration.
const NoDelay time.Duration = -1

var ErrNoFrames = errors.New("animation: no frames")

// Extract walks every frame of src in stream order and returns the
// resulting sequence. The cursor of src is back on frame 0 when Extract
// returns, whether or not it failed.
func Extract(src FrameSource) (seq *Sequence, err error) {
	n := src.NumFrames()
	if n < 1 {
		return nil, ErrNoFrames
	}
	defer func() {
		if serr := src.Seek(0); serr != nil && err == nil {
			seq, err = nil, fmt.Errorf("animation: rewinding source: %w", serr)
		}
	}()

	seq = &Sequence{Frames: make([]Frame, 0, n)}
	if n == 1 {
		img, _, err := frameAt(src, 0)
		if err != nil {
			return nil, err
		}
		seq.Append(pixel.Normalize(img, true, nil), DefaultFrameDuration)
		return seq, nil
	}

	for i := 0; i < n; i++ {
		img, delay, err := frameAt(src, i)
		if err != nil {
			return nil, err
		}
		if delay < 0 {
			delay = DefaultFrameDuration
		}
		// Every animated frame gets an alpha channel so all frames share
		// one layout.
		seq.Append(pixel.ForceTransparent(img), delay)
	}
	return seq, nil
}

func frameAt(src FrameSource, i int) (image.Image, time.Duration, error) {
	if err := src.Seek(i); err != nil {
		return nil, 0, fmt.Errorf("animation: seeking to frame %d: %w", i, err)
	}
	img, delay, err := src.Current()
	if err != nil {
		return nil, 0, fmt.Errorf("animation: reading frame %d: %w", i, err)
	}
	return img, delay, nil
}
