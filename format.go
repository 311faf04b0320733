package webpconv

import (
	"path/filepath"
	"strings"
)

// Format is the route tag derived from a file name.
type Format int

const (
	FormatGeneric Format = iota
	FormatPNG
	FormatJPEG
	FormatGIF
)

func (f Format) String() string {
	switch f {
	case FormatPNG:
		return "PNG"
	case FormatJPEG:
		return "JPEG"
	case FormatGIF:
		return "GIF"
	default:
		return "Generic"
	}
}

// FormatFromName maps a file extension to a Format, ignoring case.
func FormatFromName(name string) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png":
		return FormatPNG
	case ".jpg", ".jpeg", ".jpe", ".jfif":
		return FormatJPEG
	case ".gif":
		return FormatGIF
	default:
		return FormatGeneric
	}
}

// formatTag is the original-format label reported in Stats. Generic
// sources use the name of the decoder that accepted them.
func formatTag(f Format, decoder string) string {
	if f != FormatGeneric || decoder == "" {
		return f.String()
	}
	return strings.ToUpper(decoder)
}
