package engine

import (
	"sync"
)

// DefaultBufferSize is the size of the byte buffers used for archive copies
// and downloads.
const DefaultBufferSize = 1 * 1024 * 1024

// BufferPool hands out reusable copy buffers so concurrent archive and
// download streams do not allocate one per file.
type BufferPool struct {
	pool sync.Pool
	size int
}

// NewBufferPool creates a pool of buffers of the given size.
// If size is <= 0, DefaultBufferSize is used.
func NewBufferPool(size int) *BufferPool {
	if size <= 0 {
		size = DefaultBufferSize
	}
	bp := &BufferPool{size: size}
	bp.pool.New = func() any {
		b := make([]byte, size)
		return &b
	}
	return bp
}

// Size returns the length of every buffer in the pool.
func (bp *BufferPool) Size() int {
	return bp.size
}

// Get retrieves a buffer. Return it with Put once the copy is done.
func (bp *BufferPool) Get() *[]byte {
	return bp.pool.Get().(*[]byte)
}

// Put returns a buffer to the pool. The caller must not use it afterwards.
func (bp *BufferPool) Put(b *[]byte) {
	if b != nil && len(*b) == bp.size {
		bp.pool.Put(b)
	}
}
