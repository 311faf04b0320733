// Package mux reads and writes the WebP RIFF container.
//
// The demuxer splits a WebP file into its frames (VP8/VP8L bitstream plus an
// optional ALPH chunk). The muxer assembles already-encoded frames into a
// still or animated WebP file. Neither side touches pixel data.
package mux

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/deepteams/webpconv/internal/container"
)

// ChunkID is a FourCC identifier for a WebP chunk.
type ChunkID = uint32

// Chunk FourCC identifiers re-exported from the container package.
var (
	FourCCRIFF = container.FourCCRIFF
	FourCCWEBP = container.FourCCWEBP
	FourCCVP8  = container.FourCCVP8
	FourCCVP8L = container.FourCCVP8L
	FourCCVP8X = container.FourCCVP8X
	FourCCALPH = container.FourCCALPH
	FourCCANIM = container.FourCCANIM
	FourCCANMF = container.FourCCANMF
	FourCCICCP = container.FourCCICCP
	FourCCEXIF = container.FourCCEXIF
	FourCCXMP  = container.FourCCXMP
)

// Chunk is a single chunk of a WebP container. Data aliases the input.
type Chunk struct {
	ID   ChunkID
	Size uint32
	Data []byte
}

var (
	ErrInvalidChunkHeader = errors.New("mux: invalid chunk header: need at least 8 bytes")
	ErrChunkTooLarge      = errors.New("mux: chunk payload exceeds container limits")
)

// ReadChunkHeader reads a chunk FourCC and payload size from data.
func ReadChunkHeader(data []byte) (ChunkID, uint32, error) {
	if len(data) < container.ChunkHeaderSize {
		return 0, 0, ErrInvalidChunkHeader
	}
	id := binary.LittleEndian.Uint32(data[0:4])
	size := binary.LittleEndian.Uint32(data[4:8])
	if size > container.MaxChunkPayload {
		return 0, 0, ErrChunkTooLarge
	}
	return id, size, nil
}

// ReadChunk reads one chunk from data and returns it with the number of
// bytes consumed, padding byte included.
func ReadChunk(data []byte) (Chunk, int, error) {
	id, size, err := ReadChunkHeader(data)
	if err != nil {
		return Chunk{}, 0, err
	}
	end := container.ChunkHeaderSize + int(size)
	if end > len(data) {
		return Chunk{}, 0, fmt.Errorf("mux: chunk %s truncated: need %d bytes, have %d",
			FourCCString(id), end, len(data))
	}
	c := Chunk{ID: id, Size: size, Data: data[container.ChunkHeaderSize:end]}
	if size%2 != 0 && end < len(data) {
		end++
	}
	return c, end, nil
}

// FourCCString returns the printable form of a FourCC ("VP8L", "ANMF").
func FourCCString(id uint32) string {
	return string([]byte{byte(id), byte(id >> 8), byte(id >> 16), byte(id >> 24)})
}

func writeChunkHeader(buf []byte, id ChunkID, size uint32) {
	binary.LittleEndian.PutUint32(buf[0:4], id)
	binary.LittleEndian.PutUint32(buf[4:8], size)
}

// chunkTotalSize returns header + payload + optional padding byte.
func chunkTotalSize(payloadSize uint32) uint32 {
	total := uint32(container.ChunkHeaderSize) + payloadSize
	if payloadSize%2 != 0 {
		total++
	}
	return total
}
