// Package pool provides reusable read buffers for streaming hashes.
//
// Hashing walks every candidate file in fixed-size chunks; pooling the chunk
// buffers keeps a run with thousands of files from allocating one per file.
package pool

import (
	"sync"
)

const (
	// MiB is one mebibyte.
	MiB = 1024 * 1024

	// DefaultChunkSize is used when a non-positive chunk size is requested.
	DefaultChunkSize = 1 * MiB
)

// BufferPool hands out byte slices of a single fixed size.
type BufferPool struct {
	size int
	pool *sync.Pool
}

// NewBufferPool creates a pool of buffers of the given size.
func NewBufferPool(size int) *BufferPool {
	if size <= 0 {
		size = DefaultChunkSize
	}
	return &BufferPool{
		size: size,
		pool: &sync.Pool{
			New: func() interface{} {
				buf := make([]byte, size)
				return &buf
			},
		},
	}
}

// Size returns the length of buffers handed out by the pool.
func (bp *BufferPool) Size() int {
	return bp.size
}

// Get returns a full-length buffer from the pool.
// The caller is responsible for calling Put to return the buffer to the pool.
func (bp *BufferPool) Get() *[]byte {
	bufPtr := bp.pool.Get().(*[]byte)
	*bufPtr = (*bufPtr)[:cap(*bufPtr)]
	return bufPtr
}

// Put returns a buffer to the pool.
// Buffers of a different capacity are dropped so the pool stays uniform.
func (bp *BufferPool) Put(bufPtr *[]byte) {
	if bufPtr == nil || cap(*bufPtr) != bp.size {
		return
	}
	bp.pool.Put(bufPtr)
}

var (
	poolsMu sync.Mutex
	pools   = map[int]*BufferPool{}
)

// ForSize returns the shared pool for buffers of size bytes.
func ForSize(size int) *BufferPool {
	if size <= 0 {
		size = DefaultChunkSize
	}

	poolsMu.Lock()
	defer poolsMu.Unlock()

	bp, ok := pools[size]
	if !ok {
		bp = NewBufferPool(size)
		pools[size] = bp
	}
	return bp
}
