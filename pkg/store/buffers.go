package store

import (
	"sync"
)

// Buffer size classes for raw column payloads
const (
	SmallBuffer  = 64 << 10  // masks, centers, short index lists
	MediumBuffer = 1 << 20   // a sample's worth of rows
	LargeBuffer  = 16 << 20  // gold-sized columns chunked by the caller
	MaxPooled    = 128 << 20 // Don't pool buffers larger than this
)

// BytePool provides size-class based pooling for column encode buffers.
// Columns are encoded into a raw little-endian buffer before compression;
// the buffer is returned to the pool once the compressed frame is written.
type BytePool struct {
	small  sync.Pool
	medium sync.Pool
	large  sync.Pool
}

// NewBytePool creates a new byte pool.
func NewBytePool() *BytePool {
	newClass := func(size int) sync.Pool {
		return sync.Pool{
			New: func() any {
				b := make([]byte, 0, size)
				return &b
			},
		}
	}
	return &BytePool{
		small:  newClass(SmallBuffer),
		medium: newClass(MediumBuffer),
		large:  newClass(LargeBuffer),
	}
}

func (p *BytePool) class(size int) *sync.Pool {
	switch {
	case size <= SmallBuffer:
		return &p.small
	case size <= MediumBuffer:
		return &p.medium
	case size <= LargeBuffer:
		return &p.large
	}
	return nil
}

// Get returns a byte slice with exactly the requested length.
func (p *BytePool) Get(size int) []byte {
	pool := p.class(size)
	if pool == nil {
		return make([]byte, size)
	}
	bp, ok := pool.Get().(*[]byte)
	if !ok || cap(*bp) < size {
		return make([]byte, size)
	}
	return (*bp)[:size]
}

// Put returns a byte slice to the pool for reuse.
func (p *BytePool) Put(b []byte) {
	c := cap(b)
	if c > MaxPooled {
		return
	}
	var pool *sync.Pool
	switch {
	case c >= LargeBuffer:
		pool = &p.large
	case c >= MediumBuffer:
		pool = &p.medium
	case c >= SmallBuffer:
		pool = &p.small
	default:
		return
	}
	b = b[:0]
	pool.Put(&b)
}

var defaultBytePool = NewBytePool()
