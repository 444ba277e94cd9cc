package fuzzy

import "sync"

// Scratch buffers up to this many bytes are arrays in the enumerating frame;
// larger ones are borrowed from a pool.
const maxInlineBytes = 1024

// inlineUnits is how many units fit the in-frame scratch. A string of at most
// inlineUnits bytes never has more units than that.
const inlineUnits = maxInlineBytes / 8

var (
	unitBuffers     bufferPool[uint64]
	positionBuffers bufferPool[int]
)

// bufferPool hands out scratch slices too large for the caller's frame.
type bufferPool[T any] struct {
	pool sync.Pool
}

// rent returns a pooled slice of length n. The release func clears it and
// returns it to the pool; it must be called exactly once, typically deferred.
func (p *bufferPool[T]) rent(n int) ([]T, func()) {
	ptr, _ := p.pool.Get().(*[]T)
	if ptr == nil || cap(*ptr) < n {
		s := make([]T, n)
		ptr = &s
	}
	buf := (*ptr)[:n]
	return buf, func() {
		clear(buf)
		*ptr = buf[:0]
		p.pool.Put(ptr)
	}
}
