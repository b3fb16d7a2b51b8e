package histogram

import "image"

// MaxRadius is the largest supported window radius.
const MaxRadius = 30

// MaxCapacity is the ring capacity needed when a whole MaxRadius window
// falls into a single luminance bucket.
const MaxCapacity = (2*MaxRadius + 1) * (2*MaxRadius + 1)

// Capacity returns the number of ring slots a window of the given radius
// can occupy.
func Capacity(radius int) int {
	d := 2*radius + 1
	return d * d
}

// Source picks uniformly distributed integers in [0, n).
// *math/rand/v2.Rand satisfies it.
type Source interface {
	IntN(n int) int
}

// Ring is a fixed-capacity circular FIFO of pixel positions. It does not own
// its storage: elems is a window into an arena shared by all buckets of a
// Histogram.
type Ring struct {
	elems []image.Point
	head  int
	count int
}

func newRing(storage []image.Point) Ring {
	return Ring{elems: storage}
}

// Len returns the number of live positions.
func (r *Ring) Len() int { return r.count }

// Cap returns the capacity of the ring.
func (r *Ring) Cap() int { return len(r.elems) }

// slot maps the i-th live element (0 = front) to its index in elems.
func (r *Ring) slot(i int) int {
	s := r.head + i
	if s >= len(r.elems) {
		s -= len(r.elems)
	}
	return s
}

// live reports whether slot s currently holds a live element.
func (r *Ring) live(s int) bool {
	if s < 0 || s >= len(r.elems) {
		return false
	}
	d := s - r.head
	if d < 0 {
		d += len(r.elems)
	}
	return d < r.count
}

// PushBack appends p and returns the slot it was stored in.
func (r *Ring) PushBack(p image.Point) int {
	if r.count == len(r.elems) {
		panic("histogram: ring overflow")
	}
	s := r.slot(r.count)
	r.elems[s] = p
	r.count++
	return s
}

// Front returns the oldest live position.
func (r *Ring) Front() image.Point {
	if r.count == 0 {
		panic("histogram: front of empty ring")
	}
	return r.elems[r.head]
}

// PopFront removes and returns the oldest live position.
func (r *Ring) PopFront() image.Point {
	if r.count == 0 {
		panic("histogram: ring underflow")
	}
	p := r.elems[r.head]
	r.head++
	if r.head == len(r.elems) {
		r.head = 0
	}
	r.count--
	return p
}

// RemoveAt removes the live element stored in slot s. When s is not the
// front, the front element is moved into s so the live range stays
// contiguous; moved is that element and ok is true. The caller must
// re-index moved to slot s.
func (r *Ring) RemoveAt(s int) (moved image.Point, ok bool) {
	if !r.live(s) {
		panic("histogram: remove of dead ring slot")
	}
	if s == r.head {
		r.PopFront()
		return image.Point{}, false
	}
	moved = r.elems[r.head]
	r.elems[s] = moved
	r.PopFront()
	return moved, true
}

// Clear empties the ring without releasing its storage.
func (r *Ring) Clear() {
	r.head = 0
	r.count = 0
}

// Sample returns a live position chosen uniformly at random.
func (r *Ring) Sample(rng Source) image.Point {
	if r.count == 0 {
		panic("histogram: sample of empty ring")
	}
	return r.elems[r.slot(rng.IntN(r.count))]
}

// At returns the i-th live position counting from the front.
func (r *Ring) At(i int) image.Point {
	if i < 0 || i >= r.count {
		panic("histogram: ring index out of range")
	}
	return r.elems[r.slot(i)]
}
