package mux

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/deepteams/webpconv/internal/container"
)

// FrameOptions specifies per-frame parameters for animated WebP.
type FrameOptions struct {
	Duration    int // Milliseconds.
	OffsetX     int
	OffsetY     int
	BlendMode   BlendMode
	DisposeMode DisposeMode
}

type muxFrame struct {
	alpha     []byte // ALPH payload, nil when absent.
	bitstream []byte // VP8/VP8L payload.
	width     int
	height    int
	opts      FrameOptions
}

// Muxer assembles a WebP RIFF container from encoded frames.
type Muxer struct {
	frames    []muxFrame
	bgColor   uint32
	loopCount int
	animated  bool
	// Explicit canvas size. When unset the canvas is the union of frame
	// extents.
	canvasWidth  int
	canvasHeight int
}

var (
	ErrNoFrames      = errors.New("mux: no frames to assemble")
	ErrFrameEmpty    = errors.New("mux: frame data is empty")
	ErrMuxValidation = errors.New("mux: validation failed")
)

// NewMuxer creates a new Muxer.
func NewMuxer() *Muxer {
	return &Muxer{}
}

// SetBackgroundColor sets the ANIM background color (ARGB).
func (m *Muxer) SetBackgroundColor(color uint32) {
	m.bgColor = color
}

// SetLoopCount sets the animation loop count (0 = infinite), clamped to
// 16 bits.
func (m *Muxer) SetLoopCount(count int) {
	m.loopCount = clamp(count, 0, container.MaxLoopCount)
}

// SetAnimated forces the animated layout even for a single frame.
func (m *Muxer) SetAnimated(animated bool) {
	m.animated = animated
}

// SetCanvasSize sets the VP8X canvas dimensions.
func (m *Muxer) SetCanvasSize(width, height int) {
	m.canvasWidth = width
	m.canvasHeight = height
}

// AddFrame adds an encoded frame. data is a raw VP8/VP8L bitstream, possibly
// preceded by an ALPH chunk (see FrameInfo.Payload). opts may be nil for
// still images. Duration is clamped to 24 bits.
func (m *Muxer) AddFrame(data []byte, opts *FrameOptions) error {
	if len(data) == 0 {
		return ErrFrameEmpty
	}
	f := muxFrame{}
	f.alpha, f.bitstream = splitAlphaAndBitstream(data)
	if len(f.bitstream) == 0 {
		return ErrFrameEmpty
	}
	f.width, f.height = bitstreamDimensions(f.bitstream)
	if opts != nil {
		f.opts = *opts
	}
	f.opts.Duration = clamp(f.opts.Duration, 0, container.MaxDuration)
	m.frames = append(m.frames, f)
	return nil
}

// NumFrames returns the number of frames added so far.
func (m *Muxer) NumFrames() int {
	return len(m.frames)
}

func (m *Muxer) isAnimated() bool {
	return m.animated || len(m.frames) > 1
}

func (m *Muxer) hasAlpha() bool {
	for _, f := range m.frames {
		if f.alpha != nil || bitstreamHasAlpha(f.bitstream) {
			return true
		}
	}
	return false
}

// Assemble writes the complete WebP file to w.
func (m *Muxer) Assemble(w io.Writer) error {
	if err := m.validate(); err != nil {
		return err
	}
	// A single opaque or VP8L frame fits the simple layout.
	if !m.isAnimated() && m.frames[0].alpha == nil {
		return m.assembleSimple(w)
	}
	return m.assembleExtended(w)
}

func (m *Muxer) validate() error {
	if len(m.frames) == 0 {
		return ErrNoFrames
	}
	cw, ch := m.canvasSize()
	if cw > container.MaxCanvasSize || ch > container.MaxCanvasSize {
		return fmt.Errorf("%w: canvas %dx%d too large", ErrMuxValidation, cw, ch)
	}
	for i, f := range m.frames {
		if f.width == 0 || f.height == 0 {
			return fmt.Errorf("%w: frame %d has an unreadable bitstream header", ErrMuxValidation, i)
		}
		if f.opts.OffsetX%2 != 0 || f.opts.OffsetY%2 != 0 {
			return fmt.Errorf("%w: frame %d offset (%d,%d) must be even",
				ErrMuxValidation, i, f.opts.OffsetX, f.opts.OffsetY)
		}
		if f.opts.OffsetX+f.width > cw || f.opts.OffsetY+f.height > ch {
			return fmt.Errorf("%w: frame %d (%dx%d at %d,%d) exceeds canvas (%dx%d)",
				ErrMuxValidation, i, f.width, f.height, f.opts.OffsetX, f.opts.OffsetY, cw, ch)
		}
	}
	return nil
}

func (m *Muxer) canvasSize() (int, int) {
	if m.canvasWidth > 0 && m.canvasHeight > 0 {
		return m.canvasWidth, m.canvasHeight
	}
	maxW, maxH := 1, 1
	for _, f := range m.frames {
		maxW = max(maxW, f.opts.OffsetX+f.width)
		maxH = max(maxH, f.opts.OffsetY+f.height)
	}
	return maxW, maxH
}

func (m *Muxer) assembleSimple(w io.Writer) error {
	f := m.frames[0]
	riffPayload := 4 + chunkTotalSize(uint32(len(f.bitstream)))
	if err := writeRIFFHeader(w, riffPayload); err != nil {
		return err
	}
	return writeDataChunk(w, detectBitstreamType(f.bitstream), f.bitstream)
}

func (m *Muxer) assembleExtended(w io.Writer) error {
	animated := m.isAnimated()

	var flags byte
	if animated {
		flags |= flagAnimation
	}
	if m.hasAlpha() {
		flags |= flagAlpha
	}

	riffPayload := uint32(4) + container.ChunkHeaderSize + container.VP8XChunkSize
	if animated {
		riffPayload += container.ChunkHeaderSize + container.ANIMChunkSize
	}
	for _, f := range m.frames {
		sub := frameSubChunksSize(f)
		if animated {
			riffPayload += chunkTotalSize(container.ANMFChunkSize + sub)
		} else {
			riffPayload += sub
		}
	}

	if err := writeRIFFHeader(w, riffPayload); err != nil {
		return err
	}

	cw, ch := m.canvasSize()
	vp8x := make([]byte, container.ChunkHeaderSize+container.VP8XChunkSize)
	writeChunkHeader(vp8x, FourCCVP8X, container.VP8XChunkSize)
	vp8x[8] = flags
	container.PutLE24(vp8x[12:15], cw-1)
	container.PutLE24(vp8x[15:18], ch-1)
	if _, err := w.Write(vp8x); err != nil {
		return err
	}

	if animated {
		anim := make([]byte, container.ChunkHeaderSize+container.ANIMChunkSize)
		writeChunkHeader(anim, FourCCANIM, container.ANIMChunkSize)
		binary.LittleEndian.PutUint32(anim[8:12], m.bgColor)
		binary.LittleEndian.PutUint16(anim[12:14], uint16(m.loopCount))
		if _, err := w.Write(anim); err != nil {
			return err
		}
	}

	for _, f := range m.frames {
		if animated {
			if err := writeANMFChunk(w, f); err != nil {
				return err
			}
			continue
		}
		if err := writeFrameSubChunks(w, f); err != nil {
			return err
		}
	}
	return nil
}

// writeANMFChunk writes one animation frame: the ANMF header followed by
// the ALPH (if any) and VP8/VP8L sub-chunks.
func writeANMFChunk(w io.Writer, f muxFrame) error {
	payload := uint32(container.ANMFChunkSize) + frameSubChunksSize(f)

	hdr := make([]byte, container.ChunkHeaderSize+container.ANMFChunkSize)
	writeChunkHeader(hdr, FourCCANMF, payload)
	container.PutLE24(hdr[8:11], f.opts.OffsetX/2)
	container.PutLE24(hdr[11:14], f.opts.OffsetY/2)
	container.PutLE24(hdr[14:17], f.width-1)
	container.PutLE24(hdr[17:20], f.height-1)
	container.PutLE24(hdr[20:23], f.opts.Duration)
	if f.opts.DisposeMode == DisposeBackground {
		hdr[23] |= 0x01
	}
	if f.opts.BlendMode == BlendNone {
		hdr[23] |= 0x02
	}
	if _, err := w.Write(hdr); err != nil {
		return err
	}
	return writeFrameSubChunks(w, f)
}

func writeFrameSubChunks(w io.Writer, f muxFrame) error {
	if f.alpha != nil {
		if err := writeDataChunk(w, FourCCALPH, f.alpha); err != nil {
			return err
		}
	}
	return writeDataChunk(w, detectBitstreamType(f.bitstream), f.bitstream)
}

func frameSubChunksSize(f muxFrame) uint32 {
	size := chunkTotalSize(uint32(len(f.bitstream)))
	if f.alpha != nil {
		size += chunkTotalSize(uint32(len(f.alpha)))
	}
	return size
}

// splitAlphaAndBitstream separates an optional leading ALPH chunk from the
// VP8/VP8L bitstream that follows it.
func splitAlphaAndBitstream(data []byte) (alpha, bitstream []byte) {
	c, n, err := ReadChunk(data)
	if err != nil || c.ID != FourCCALPH {
		return nil, data
	}
	return c.Data, data[n:]
}

func detectBitstreamType(data []byte) ChunkID {
	if len(data) > 0 && data[0] == container.VP8LMagicByte {
		return FourCCVP8L
	}
	return FourCCVP8
}

func writeRIFFHeader(w io.Writer, payload uint32) error {
	hdr := make([]byte, container.RIFFHeaderSize)
	binary.LittleEndian.PutUint32(hdr[0:4], FourCCRIFF)
	binary.LittleEndian.PutUint32(hdr[4:8], payload)
	binary.LittleEndian.PutUint32(hdr[8:12], FourCCWEBP)
	_, err := w.Write(hdr)
	return err
}

// writeDataChunk writes a chunk header, the data and an optional pad byte.
func writeDataChunk(w io.Writer, id ChunkID, data []byte) error {
	hdr := make([]byte, container.ChunkHeaderSize)
	writeChunkHeader(hdr, id, uint32(len(data)))
	if _, err := w.Write(hdr); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	if len(data)%2 != 0 {
		if _, err := w.Write([]byte{0}); err != nil {
			return err
		}
	}
	return nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
