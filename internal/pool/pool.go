// Package pool provides bucketed sync.Pool instances for the large scratch
// slices a filter pass needs (ring arenas, slot indexes, luminance planes).
// Slices are organized by size class to minimize waste.
package pool

import "sync"

// Size classes for bucketed pools, in elements.
const (
	Size1K   = 1 << 10
	Size4K   = 1 << 12
	Size16K  = 1 << 14
	Size64K  = 1 << 16
	Size256K = 1 << 18
	Size1M   = 1 << 20
	Size4M   = 1 << 22
)

const numBuckets = 7

var sizes = [numBuckets]int{Size1K, Size4K, Size16K, Size64K, Size256K, Size1M, Size4M}

// bucketIndex returns the pool index for a given size.
func bucketIndex(size int) int {
	switch {
	case size <= Size1K:
		return 0
	case size <= Size4K:
		return 1
	case size <= Size16K:
		return 2
	case size <= Size64K:
		return 3
	case size <= Size256K:
		return 4
	case size <= Size1M:
		return 5
	default:
		return 6
	}
}

// Slab is a set of size-classed pools for slices of T.
// The zero value is ready to use and safe for concurrent use.
type Slab[T any] struct {
	pools [numBuckets]sync.Pool
}

// Get returns a slice of length size. Its contents are unspecified: callers
// must overwrite every element they read. The caller should call Put when done.
func (s *Slab[T]) Get(size int) []T {
	idx := bucketIndex(size)
	if bp, ok := s.pools[idx].Get().(*[]T); ok {
		if b := *bp; cap(b) >= size {
			return b[:size]
		}
	}
	return make([]T, size, max(size, sizes[idx]))
}

// Put returns a slice to the pool. Slices smaller than Size1K are not pooled.
func (s *Slab[T]) Put(b []T) {
	c := cap(b)
	if c < Size1K {
		return
	}
	idx := bucketIndex(c)
	b = b[:c]
	s.pools[idx].Put(&b)
}
