package webpconv

import (
	"fmt"
	"image"
	"path/filepath"
	"strings"
)

// Output type labels for frame-sequence sources.
const (
	OutputStatic   = "Static WebP"
	OutputAnimated = "Animated WebP"
)

// Stats describes one successful conversion.
type Stats struct {
	Filename        string         `json:"filename"`
	Format          string         `json:"original_format"`
	OriginalSize    int64          `json:"original_size"`
	EncodedSize     int64          `json:"webp_size"`
	Reduction       float64        `json:"reduction"`
	Compression     string         `json:"compression"`
	Dimensions      string         `json:"dimensions"`
	HasTransparency bool           `json:"has_transparency"`
	Sequence        *SequenceStats `json:"sequence,omitempty"`
}

// SequenceStats is present only for frame-sequence (GIF) sources.
type SequenceStats struct {
	Frames     int    `json:"frames"`
	Animated   bool   `json:"animated"`
	OutputType string `json:"output_type"`
}

// Result is the encoded file and its statistics. Data is owned by the
// caller.
type Result struct {
	Data  []byte `json:"-"`
	Stats Stats  `json:"stats"`
}

// OutputName returns the source name with its last extension replaced by
// ".webp".
func (r *Result) OutputName() string {
	return OutputName(r.Stats.Filename)
}

// OutputName replaces the last extension of name with ".webp".
func OutputName(name string) string {
	base := filepath.Base(name)
	if base == "." || base == string(filepath.Separator) {
		base = "image"
	}
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".webp"
}

// reduction returns (1 - encoded/original) * 100, or 0 when original is 0.
func reduction(original, encoded int64) float64 {
	if original <= 0 {
		return 0
	}
	return (1 - float64(encoded)/float64(original)) * 100
}

func newStats(src Source, format string, encoded int, size image.Point, label string, alpha bool) Stats {
	orig := int64(len(src.Data))
	return Stats{
		Filename:        src.Name,
		Format:          format,
		OriginalSize:    orig,
		EncodedSize:     int64(encoded),
		Reduction:       reduction(orig, int64(encoded)),
		Compression:     label,
		Dimensions:      fmt.Sprintf("%dx%d", size.X, size.Y),
		HasTransparency: alpha,
	}
}
