// Package pool recycles scratch memory used while converting images:
// size-classed byte slices for canvas snapshots and bytes.Buffers for
// encoder output.
package pool

import (
	"bytes"
	"sync"
)

// Size classes for bucketed pools.
const (
	Size4K   = 4 << 10
	Size64K  = 64 << 10
	Size1M   = 1 << 20
	Size16M  = 16 << 20
	maxClass = 4
)

var sizes = [maxClass]int{Size4K, Size64K, Size1M, Size16M}

var pools [maxClass]sync.Pool

func init() {
	for i := range pools {
		sz := sizes[i]
		pools[i] = sync.Pool{
			New: func() any {
				b := make([]byte, sz)
				return &b
			},
		}
	}
}

// bucketIndex returns the pool index for a given size.
func bucketIndex(size int) int {
	for i, sz := range sizes {
		if size <= sz {
			return i
		}
	}
	return maxClass - 1
}

// Get returns a byte slice with len == size. Its contents are undefined.
// Release it with Put.
func Get(size int) []byte {
	bp := pools[bucketIndex(size)].Get().(*[]byte)
	b := *bp
	if cap(b) < size {
		return make([]byte, size)
	}
	return b[:size]
}

// Put returns a slice obtained from Get. Slices below the smallest class
// are dropped.
func Put(b []byte) {
	c := cap(b)
	if c < Size4K {
		return
	}
	// A slice lands in the largest class it can fully serve.
	idx := 0
	for i, sz := range sizes {
		if c >= sz {
			idx = i
		}
	}
	b = b[:c]
	pools[idx].Put(&b)
}

// maxPooledBuffer bounds the capacity of buffers kept for reuse, so one
// huge animation does not pin its output buffer forever.
const maxPooledBuffer = 32 << 20

var buffers = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

// GetBuffer returns an empty buffer.
func GetBuffer() *bytes.Buffer {
	buf := buffers.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// PutBuffer recycles buf. The caller must not retain buf.Bytes().
func PutBuffer(buf *bytes.Buffer) {
	if buf == nil || buf.Cap() > maxPooledBuffer {
		return
	}
	buffers.Put(buf)
}

// CopyBytes returns a copy of buf's contents that outlives the buffer.
func CopyBytes(buf *bytes.Buffer) []byte {
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out
}
