// Package codec adapts third-party WebP encoders to one interface.
//
// Three backends are available:
//
//	cgo     libwebp via cgo (github.com/chai2010/webp); only in cgo builds; default when present
//	wasm    libwebp compiled to WebAssembly (github.com/gen2brain/webp); lossy and lossless
//	native  pure Go VP8L encoder (github.com/HugoSmits86/nativewebp); lossless only
//
// Every backend writes a complete still WebP file.
package codec

import (
	"errors"
	"fmt"
	"image"
	"io"
	"sort"
	"sync"
)

// Options controls a single encode call.
type Options struct {
	Lossless bool
	Quality  int // 0-100, ignored when Lossless is set.
}

// Encoder produces a still WebP file from an image.
type Encoder interface {
	// Name identifies the backend ("wasm", "native", "cgo").
	Name() string
	// Lossy reports whether the backend supports lossy (VP8) output.
	Lossy() bool
	Encode(w io.Writer, img image.Image, o Options) error
}

// preferred lists, best first, the lossy backends DefaultName picks from.
// cgo is only registered in cgo builds; wasm is always available but its
// wazero runtime is not reliable on every Go toolchain.
var preferred = []string{"cgo", "wasm"}

var (
	ErrUnknownBackend   = errors.New("codec: unknown backend")
	ErrLossyUnsupported = errors.New("codec: backend does not support lossy encoding")
)

var (
	mu       sync.RWMutex
	registry = map[string]Encoder{}
)

// Register makes an encoder available by name. Registering a name twice
// replaces the previous encoder.
func Register(e Encoder) {
	mu.Lock()
	defer mu.Unlock()
	registry[e.Name()] = e
}

// DefaultName returns the backend used when none is configured: the first
// registered entry of cgo, wasm.
func DefaultName() string {
	mu.RLock()
	defer mu.RUnlock()
	return defaultNameLocked()
}

func defaultNameLocked() string {
	for _, n := range preferred {
		if _, ok := registry[n]; ok {
			return n
		}
	}
	return preferred[len(preferred)-1]
}

// Lookup returns the encoder registered under name. An empty name selects
// DefaultName.
func Lookup(name string) (Encoder, error) {
	mu.RLock()
	defer mu.RUnlock()
	if name == "" {
		name = defaultNameLocked()
	}
	e, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w %q (available: %v)", ErrUnknownBackend, name, namesLocked())
	}
	return e, nil
}

// Default returns the DefaultName encoder.
func Default() Encoder {
	e, err := Lookup("")
	if err != nil {
		panic(err)
	}
	return e
}

// Names lists the registered backends in sorted order.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	return namesLocked()
}

func namesLocked() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// clampQuality keeps quality inside the 0-100 range every backend accepts.
func clampQuality(q int) int {
	return min(max(q, 0), 100)
}
