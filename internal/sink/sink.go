// Package sink delivers converted files to a local directory or an S3
// compatible bucket.
package sink

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/deepteams/webpconv"
	"github.com/deepteams/webpconv/internal/archive"
)

// ContentTypeWebP is the MIME type of converted files.
const ContentTypeWebP = "image/webp"

// Sink stores one named file and returns where it ended up.
type Sink interface {
	Put(ctx context.Context, name, contentType string, data []byte) (string, error)
}

// Deliver stores every result in s under deduplicated ".webp" names, in
// result order. It stops at the first failure and returns the locations
// written so far.
func Deliver(ctx context.Context, s Sink, results []*webpconv.Result) ([]string, error) {
	entries := archive.FromResults(results)
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	locations := make([]string, 0, len(entries))
	for i, name := range archive.UniqueNames(names) {
		if err := ctx.Err(); err != nil {
			return locations, err
		}
		loc, err := s.Put(ctx, name, ContentTypeWebP, entries[i].Data)
		if err != nil {
			return locations, err
		}
		locations = append(locations, loc)
	}
	return locations, nil
}

// Dir writes files into a local directory.
type Dir struct {
	root string
}

var ErrNotDir = errors.New("sink: not a directory")

// NewDir creates root if needed.
func NewDir(root string) (*Dir, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("sink: creating %s: %w", root, err)
	}
	fi, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDir, root)
	}
	return &Dir{root: root}, nil
}

// Put writes data to root/name, replacing any existing file.
func (d *Dir) Put(_ context.Context, name, _ string, data []byte) (string, error) {
	path := filepath.Join(d.root, filepath.Base(name))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("sink: writing %s: %w", path, err)
	}
	return path, nil
}
