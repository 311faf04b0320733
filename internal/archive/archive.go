// Package archive packages converted files into a single zip download.
package archive

import (
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/deepteams/webpconv"
)

// ContentType is the MIME type of the archives written by Write.
const ContentType = "application/zip"

// Entry is one file in an archive.
type Entry struct {
	Name string
	Data []byte
}

// FromResults turns conversion results into entries named after their
// sources, with ".webp" extensions.
func FromResults(results []*webpconv.Result) []Entry {
	entries := make([]Entry, len(results))
	for i, r := range results {
		entries[i] = Entry{Name: r.OutputName(), Data: r.Data}
	}
	return entries
}

// Write writes entries to w as a zip archive. WebP data is already
// compressed, so entries are stored rather than deflated. Duplicate names
// get a numeric suffix.
func Write(w io.Writer, entries []Entry) error {
	zw := zip.NewWriter(w)
	now := time.Now()
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	for i, name := range UniqueNames(names) {
		f, err := zw.CreateHeader(&zip.FileHeader{
			Name:     name,
			Method:   zip.Store,
			Modified: now,
		})
		if err != nil {
			return fmt.Errorf("archive: adding %s: %w", name, err)
		}
		if _, err := f.Write(entries[i].Data); err != nil {
			return fmt.Errorf("archive: writing %s: %w", name, err)
		}
	}
	return zw.Close()
}

// UniqueNames returns names with duplicates renamed to "base-N.ext". Names
// are reduced to their base element so archives never contain paths.
func UniqueNames(names []string) []string {
	out := make([]string, len(names))
	seen := make(map[string]bool, len(names))
	for i, n := range names {
		n = path.Base(strings.ReplaceAll(n, "\\", "/"))
		if n == "." || n == "/" {
			n = "image.webp"
		}
		candidate := n
		ext := path.Ext(n)
		stem := strings.TrimSuffix(n, ext)
		for k := 1; seen[candidate]; k++ {
			candidate = fmt.Sprintf("%s-%d%s", stem, k, ext)
		}
		seen[candidate] = true
		out[i] = candidate
	}
	return out
}
