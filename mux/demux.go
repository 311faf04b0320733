package mux

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/deepteams/webpconv/internal/container"
)

// BlendMode specifies how a frame is blended with the previous canvas.
type BlendMode int

const (
	BlendAlpha BlendMode = 0 // Alpha-blend with previous canvas.
	BlendNone  BlendMode = 1 // Do not blend; overwrite.
)

// DisposeMode specifies how the frame area is treated after rendering.
type DisposeMode int

const (
	DisposeNone       DisposeMode = 0 // Leave as-is.
	DisposeBackground DisposeMode = 1 // Fill with background color.
)

// Format describes the layout of a WebP file.
type Format int

const (
	FormatUndefined Format = iota
	FormatLossy
	FormatLossless
	FormatExtended
)

func (f Format) String() string {
	switch f {
	case FormatLossy:
		return "VP8"
	case FormatLossless:
		return "VP8L"
	case FormatExtended:
		return "VP8X"
	default:
		return "undefined"
	}
}

// VP8X flag bits.
const (
	flagAnimation = 1 << 1
	flagXMP       = 1 << 2
	flagEXIF      = 1 << 3
	flagAlpha     = 1 << 4
	flagICCP      = 1 << 5
)

// Features describes a WebP file as seen from its container headers.
type Features struct {
	Width        int
	Height       int
	HasAlpha     bool
	HasAnimation bool
	Format       Format
}

// FrameInfo is one frame of a WebP file (the sole image of a still file).
type FrameInfo struct {
	Bitstream   []byte // VP8 or VP8L payload.
	Alpha       []byte // ALPH payload, nil when absent.
	Width       int
	Height      int
	OffsetX     int
	OffsetY     int
	Duration    int // Milliseconds, 0 for still images.
	HasAlpha    bool
	BlendMode   BlendMode
	DisposeMode DisposeMode
}

// Lossless reports whether the frame bitstream is VP8L.
func (f *FrameInfo) Lossless() bool {
	return len(f.Bitstream) > 0 && f.Bitstream[0] == container.VP8LMagicByte
}

// Payload returns the frame as the muxer expects it: an optional ALPH chunk
// followed by the raw VP8/VP8L bitstream.
func (f *FrameInfo) Payload() []byte {
	if len(f.Alpha) == 0 {
		return f.Bitstream
	}
	alph := chunkTotalSize(uint32(len(f.Alpha)))
	out := make([]byte, int(alph)+len(f.Bitstream))
	writeChunkHeader(out, FourCCALPH, uint32(len(f.Alpha)))
	copy(out[container.ChunkHeaderSize:], f.Alpha)
	copy(out[alph:], f.Bitstream)
	return out
}

// Demuxer parses a WebP RIFF container.
type Demuxer struct {
	data      []byte
	features  Features
	frames    []FrameInfo
	bgColor   uint32
	loopCount int
}

// maxFrames bounds the number of ANMF chunks accepted from one file.
const maxFrames = 10000

var (
	ErrInvalidRIFF   = errors.New("mux: not a valid WebP file (bad RIFF header)")
	ErrNoImage       = errors.New("mux: no image data found")
	ErrInvalidVP8X   = errors.New("mux: invalid VP8X chunk")
	ErrInvalidANIM   = errors.New("mux: invalid ANIM chunk")
	ErrInvalidANMF   = errors.New("mux: invalid ANMF chunk")
	ErrInvalidFrame  = errors.New("mux: invalid frame bitstream")
	ErrFrameOutRange = errors.New("mux: frame index out of range")
	ErrTooManyFrames = errors.New("mux: too many frames")
	ErrAnimated      = errors.New("mux: expected a still image, got an animation")
)

// NewDemuxer parses a WebP file from data. Frame data aliases data.
func NewDemuxer(data []byte) (*Demuxer, error) {
	d := &Demuxer{data: data}
	if err := d.parse(); err != nil {
		return nil, err
	}
	return d, nil
}

// ExtractFrame parses a still WebP file, as produced by a codec, and returns
// its single frame.
func ExtractFrame(data []byte) (*FrameInfo, error) {
	d, err := NewDemuxer(data)
	if err != nil {
		return nil, err
	}
	if d.features.HasAnimation {
		return nil, ErrAnimated
	}
	return d.Frame(0)
}

// GetFeatures returns the features extracted from the WebP file.
func (d *Demuxer) GetFeatures() Features {
	return d.features
}

// NumFrames returns the number of frames.
func (d *Demuxer) NumFrames() int {
	return len(d.frames)
}

// Frame returns frame info for the given 0-based index.
func (d *Demuxer) Frame(index int) (*FrameInfo, error) {
	if index < 0 || index >= len(d.frames) {
		return nil, ErrFrameOutRange
	}
	fi := d.frames[index]
	return &fi, nil
}

// Durations returns the per-frame durations in milliseconds.
func (d *Demuxer) Durations() []int {
	out := make([]int, len(d.frames))
	for i, f := range d.frames {
		out[i] = f.Duration
	}
	return out
}

// LoopCount returns the animation loop count (0 = infinite).
func (d *Demuxer) LoopCount() int {
	return d.loopCount
}

// BackgroundColor returns the ANIM background color (ARGB).
func (d *Demuxer) BackgroundColor() uint32 {
	return d.bgColor
}

func (d *Demuxer) parse() error {
	if len(d.data) < container.RIFFHeaderSize {
		return ErrInvalidRIFF
	}
	if binary.LittleEndian.Uint32(d.data[0:4]) != FourCCRIFF ||
		binary.LittleEndian.Uint32(d.data[8:12]) != FourCCWEBP {
		return ErrInvalidRIFF
	}
	// The RIFF size counts everything after the first 8 bytes. Truncated
	// files are parsed as far as they go.
	total := int(binary.LittleEndian.Uint32(d.data[4:8])) + 8
	if total > len(d.data) || total < container.RIFFHeaderSize {
		total = len(d.data)
	}
	payload := d.data[container.RIFFHeaderSize:total]

	c, _, err := ReadChunk(payload)
	if err != nil {
		return ErrNoImage
	}
	switch c.ID {
	case FourCCVP8X:
		return d.parseExtended(payload)
	case FourCCVP8:
		w, h, err := parseVP8Dimensions(c.Data)
		if err != nil {
			return err
		}
		d.features = Features{Width: w, Height: h, Format: FormatLossy}
		d.frames = []FrameInfo{{Bitstream: c.Data, Width: w, Height: h}}
		return nil
	case FourCCVP8L:
		w, h, alpha, err := parseVP8LDimensions(c.Data)
		if err != nil {
			return err
		}
		d.features = Features{Width: w, Height: h, HasAlpha: alpha, Format: FormatLossless}
		d.frames = []FrameInfo{{Bitstream: c.Data, Width: w, Height: h, HasAlpha: alpha}}
		return nil
	default:
		return fmt.Errorf("mux: unknown first chunk %s", FourCCString(c.ID))
	}
}

func (d *Demuxer) parseExtended(payload []byte) error {
	vp8x, pos, err := ReadChunk(payload)
	if err != nil {
		return err
	}
	if vp8x.Size < container.VP8XChunkSize {
		return ErrInvalidVP8X
	}
	flags := vp8x.Data[0]
	d.features = Features{
		Width:        container.ReadLE24(vp8x.Data[4:7]) + 1,
		Height:       container.ReadLE24(vp8x.Data[7:10]) + 1,
		HasAlpha:     flags&flagAlpha != 0,
		HasAnimation: flags&flagAnimation != 0,
		Format:       FormatExtended,
	}

	// Still images keep ALPH and the bitstream as top-level chunks.
	var still FrameInfo
	for pos+container.ChunkHeaderSize <= len(payload) {
		c, n, err := ReadChunk(payload[pos:])
		if err != nil {
			break
		}
		switch c.ID {
		case FourCCANIM:
			if len(c.Data) < container.ANIMChunkSize {
				return ErrInvalidANIM
			}
			d.bgColor = binary.LittleEndian.Uint32(c.Data[0:4])
			d.loopCount = int(binary.LittleEndian.Uint16(c.Data[4:6]))
		case FourCCANMF:
			if err := d.parseANMF(c.Data); err != nil {
				return err
			}
		case FourCCALPH:
			if still.Alpha == nil {
				still.Alpha = c.Data
			}
		case FourCCVP8, FourCCVP8L:
			if still.Bitstream == nil {
				still.Bitstream = c.Data
			}
		}
		pos += n
	}

	if !d.features.HasAnimation && still.Bitstream != nil {
		still.Width = d.features.Width
		still.Height = d.features.Height
		still.HasAlpha = len(still.Alpha) > 0 || bitstreamHasAlpha(still.Bitstream)
		d.frames = []FrameInfo{still}
	}
	if len(d.frames) == 0 {
		return ErrNoImage
	}
	return nil
}

// parseANMF decodes one ANMF payload: a 16-byte frame header followed by
// an optional ALPH sub-chunk and a VP8/VP8L sub-chunk.
func (d *Demuxer) parseANMF(data []byte) error {
	if len(data) < container.ANMFChunkSize {
		return ErrInvalidANMF
	}
	if len(d.frames) >= maxFrames {
		return fmt.Errorf("%w: exceeded limit of %d", ErrTooManyFrames, maxFrames)
	}
	fi := FrameInfo{
		OffsetX:  container.ReadLE24(data[0:3]) * 2,
		OffsetY:  container.ReadLE24(data[3:6]) * 2,
		Width:    container.ReadLE24(data[6:9]) + 1,
		Height:   container.ReadLE24(data[9:12]) + 1,
		Duration: container.ReadLE24(data[12:15]),
	}
	if data[15]&0x01 != 0 {
		fi.DisposeMode = DisposeBackground
	}
	if data[15]&0x02 != 0 {
		fi.BlendMode = BlendNone
	}

	sub := data[container.ANMFChunkSize:]
	for pos := 0; pos+container.ChunkHeaderSize <= len(sub); {
		c, n, err := ReadChunk(sub[pos:])
		if err != nil {
			break
		}
		switch c.ID {
		case FourCCALPH:
			fi.Alpha = c.Data
		case FourCCVP8, FourCCVP8L:
			fi.Bitstream = c.Data
		}
		pos += n
	}
	if fi.Bitstream == nil {
		return fmt.Errorf("%w: frame %d has no bitstream", ErrInvalidANMF, len(d.frames))
	}
	fi.HasAlpha = len(fi.Alpha) > 0 || bitstreamHasAlpha(fi.Bitstream)
	d.frames = append(d.frames, fi)
	return nil
}

// parseVP8Dimensions extracts width/height from a VP8 keyframe header.
func parseVP8Dimensions(data []byte) (int, int, error) {
	if len(data) < 10 {
		return 0, 0, ErrInvalidFrame
	}
	// 3-byte frame tag, then the 0x9d 0x01 0x2a start code.
	if data[3] != 0x9d || data[4] != 0x01 || data[5] != 0x2a {
		return 0, 0, ErrInvalidFrame
	}
	width := int(binary.LittleEndian.Uint16(data[6:8])) & 0x3fff
	height := int(binary.LittleEndian.Uint16(data[8:10])) & 0x3fff
	return width, height, nil
}

// parseVP8LDimensions extracts width/height/alpha from a VP8L header.
func parseVP8LDimensions(data []byte) (int, int, bool, error) {
	if len(data) < 5 || data[0] != container.VP8LMagicByte {
		return 0, 0, false, ErrInvalidFrame
	}
	bits := binary.LittleEndian.Uint32(data[1:5])
	width := int(bits&0x3fff) + 1
	height := int((bits>>14)&0x3fff) + 1
	return width, height, (bits>>28)&0x1 != 0, nil
}

// bitstreamHasAlpha reports the VP8L alpha hint. VP8 never carries alpha
// in its bitstream; it comes from a separate ALPH chunk.
func bitstreamHasAlpha(data []byte) bool {
	_, _, alpha, err := parseVP8LDimensions(data)
	return err == nil && alpha
}

// bitstreamDimensions returns the frame size encoded in a bitstream, or
// zeros when the header cannot be parsed.
func bitstreamDimensions(data []byte) (int, int) {
	if w, h, _, err := parseVP8LDimensions(data); err == nil {
		return w, h
	}
	if w, h, err := parseVP8Dimensions(data); err == nil {
		return w, h
	}
	return 0, 0
}
