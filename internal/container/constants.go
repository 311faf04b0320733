// Package container defines constants for the WebP/RIFF container format:
// FourCC values, chunk sizes and the limits the muxer enforces.
package container

import "encoding/binary"

// FourCC creates a FourCC value from four bytes (little-endian).
func FourCC(a, b, c, d byte) uint32 {
	return uint32(a) | uint32(b)<<8 | uint32(c)<<16 | uint32(d)<<24
}

// Container FourCC values.
var (
	FourCCRIFF = FourCC('R', 'I', 'F', 'F')
	FourCCWEBP = FourCC('W', 'E', 'B', 'P')
	FourCCVP8  = FourCC('V', 'P', '8', ' ')
	FourCCVP8L = FourCC('V', 'P', '8', 'L')
	FourCCVP8X = FourCC('V', 'P', '8', 'X')
	FourCCALPH = FourCC('A', 'L', 'P', 'H')
	FourCCANIM = FourCC('A', 'N', 'I', 'M')
	FourCCANMF = FourCC('A', 'N', 'M', 'F')
	FourCCICCP = FourCC('I', 'C', 'C', 'P')
	FourCCEXIF = FourCC('E', 'X', 'I', 'F')
	FourCCXMP  = FourCC('X', 'M', 'P', ' ')
)

// Bitstream signatures.
const (
	VP8SignatureSize = 3    // 0x9d 0x01 0x2a after the 3-byte frame tag
	VP8LMagicByte    = 0x2f // VP8L signature byte
)

// Container structure sizes.
const (
	ChunkHeaderSize = 8  // FourCC + little-endian payload size
	RIFFHeaderSize  = 12 // "RIFF" + size + "WEBP"
	ANMFChunkSize   = 16 // ANMF frame header, before its sub-chunks
	ANIMChunkSize   = 6  // background color + loop count
	VP8XChunkSize   = 10 // flags + reserved + canvas size
)

// Limits.
const (
	MaxCanvasSize   = 1 << 24 // 24-bit max for VP8X width/height
	MaxLoopCount    = 1<<16 - 1
	MaxDuration     = 1<<24 - 1 // milliseconds, 24-bit
	MaxChunkPayload = ^uint32(0) - ChunkHeaderSize - 1
)

// ReadLE24 reads a 24-bit little-endian value.
func ReadLE24(b []byte) int {
	return int(b[0]) | int(b[1])<<8 | int(b[2])<<16
}

// PutLE24 writes a 24-bit little-endian value into b[0:3].
func PutLE24(b []byte, v int) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
}

// PutLE32 writes a little-endian uint32 to data.
func PutLE32(data []byte, v uint32) {
	binary.LittleEndian.PutUint32(data, v)
}
