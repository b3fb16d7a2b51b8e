// Package histogram implements the sliding luminance histogram behind the
// median despeckle filter.
//
// A Histogram counts the pixels of a rectangular window by luminance bucket
// and remembers, per bucket, which positions contributed. Pixels at or below
// the black level or at or above the white level are only counted in the
// Below and Above totals; the median is taken over the remaining in-range
// pixels. As the window slides, Reconcile adds and removes only the strips
// that differ between the old and new rectangles.
package histogram

import (
	"cmp"
	"image"
	"slices"

	"github.com/deepteams/despeckle/internal/pool"
)

// Buckets is the number of luminance buckets.
const Buckets = 256

var (
	arenas      pool.Slab[image.Point]
	slotIndexes pool.Slab[int32]
)

// Histogram is a sliding-window luminance histogram over a Plane's bounds.
// It is not safe for concurrent use.
type Histogram struct {
	counts [Buckets]int
	rings  [Buckets]Ring

	arena []image.Point
	// slots holds, for every tracked pixel, the ring slot of its position.
	slots  []int32
	bounds image.Rectangle

	black, white uint8
	below        int
	above        int
	inRange      int

	window image.Rectangle
	rng    Source
}

// New returns an empty histogram for windows of at most the given radius
// inside bounds. Luminance values <= black or >= white are treated as
// extremes. The caller must call Release when done.
func New(bounds image.Rectangle, radius int, black, white uint8, rng Source) *Histogram {
	if radius < 1 || radius > MaxRadius {
		panic("histogram: radius out of range")
	}
	capacity := Capacity(radius)
	h := &Histogram{
		arena:  arenas.Get(Buckets * capacity),
		slots:  slotIndexes.Get(bounds.Dx() * bounds.Dy()),
		bounds: bounds,
		black:  black,
		white:  white,
		rng:    rng,
	}
	for i := range h.rings {
		h.rings[i] = newRing(h.arena[i*capacity : (i+1)*capacity : (i+1)*capacity])
	}
	return h
}

// Release returns the histogram's storage to the pool.
func (h *Histogram) Release() {
	arenas.Put(h.arena)
	slotIndexes.Put(h.slots)
	h.arena, h.slots = nil, nil
	for i := range h.rings {
		h.rings[i] = Ring{}
	}
}

func (h *Histogram) index(p image.Point) int {
	return (p.Y-h.bounds.Min.Y)*h.bounds.Dx() + (p.X - h.bounds.Min.X)
}

// Reset empties every bucket and zeroes the counters. The window is left
// untouched; callers set it with SetWindow.
func (h *Histogram) Reset() {
	h.counts = [Buckets]int{}
	for i := range h.rings {
		h.rings[i].Clear()
	}
	h.below, h.above, h.inRange = 0, 0, 0
}

// Window returns the current window rectangle.
func (h *Histogram) Window() image.Rectangle { return h.window }

// SetWindow records r as the current window without touching the counts.
func (h *Histogram) SetWindow(r image.Rectangle) { h.window = r }

// Below returns the number of window pixels at or below the black level.
func (h *Histogram) Below() int { return h.below }

// Above returns the number of window pixels at or above the white level.
func (h *Histogram) Above() int { return h.above }

// InRange returns the number of window pixels strictly between the levels.
func (h *Histogram) InRange() int { return h.inRange }

// Count returns the number of in-range pixels in bucket lum.
func (h *Histogram) Count(lum uint8) int { return h.counts[lum] }

// Add counts the pixel at p whose luminance bucket is lum.
func (h *Histogram) Add(lum uint8, p image.Point) {
	switch {
	case lum <= h.black:
		h.below++
	case lum >= h.white:
		h.above++
	default:
		h.counts[lum]++
		h.inRange++
		h.slots[h.index(p)] = int32(h.rings[lum].PushBack(p))
	}
}

// Remove uncounts the pixel at p. lum must be the bucket it was added with.
func (h *Histogram) Remove(lum uint8, p image.Point) {
	switch {
	case lum <= h.black:
		if h.below == 0 {
			panic("histogram: below-black count underflow")
		}
		h.below--
	case lum >= h.white:
		if h.above == 0 {
			panic("histogram: above-white count underflow")
		}
		h.above--
	default:
		if h.counts[lum] == 0 {
			panic("histogram: bucket count underflow")
		}
		ring := &h.rings[lum]
		s := int(h.slots[h.index(p)])
		if !ring.live(s) || ring.elems[s] != p {
			panic("histogram: removed position is not tracked in its bucket")
		}
		if moved, ok := ring.RemoveAt(s); ok {
			h.slots[h.index(moved)] = int32(s)
		}
		h.counts[lum]--
		h.inRange--
	}
}

// AddRect adds every pixel of r, read from pl. An empty r is a no-op.
func (h *Histogram) AddRect(pl *Plane, r image.Rectangle) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			h.Add(pl.At(x, y), image.Point{X: x, Y: y})
		}
	}
}

// RemoveRect removes every pixel of r, read from pl. An empty r is a no-op.
func (h *Histogram) RemoveRect(pl *Plane, r image.Rectangle) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			h.Remove(pl.At(x, y), image.Point{X: x, Y: y})
		}
	}
}

// Reconcile moves the window to next, removing the cells only in the
// current window and adding the cells only in next.
func (h *Histogram) Reconcile(pl *Plane, next image.Rectangle) {
	if next == h.window {
		return
	}
	// Removals first: the rings are sized for a single window.
	for _, s := range subtract(h.window, next) {
		h.RemoveRect(pl, s)
	}
	for _, s := range subtract(next, h.window) {
		h.AddRect(pl, s)
	}
	h.window = next
}

// subtract splits a minus b into up to four disjoint strips: full-height
// left and right strips, then top and bottom strips between them.
func subtract(a, b image.Rectangle) (strips [4]image.Rectangle) {
	if a.Empty() {
		return strips
	}
	in := a.Intersect(b)
	if in.Empty() {
		strips[0] = a
		return strips
	}
	strips[0] = image.Rectangle{Min: a.Min, Max: image.Point{X: in.Min.X, Y: a.Max.Y}}
	strips[1] = image.Rectangle{Min: image.Point{X: in.Max.X, Y: a.Min.Y}, Max: a.Max}
	strips[2] = image.Rectangle{Min: image.Point{X: in.Min.X, Y: a.Min.Y}, Max: image.Point{X: in.Max.X, Y: in.Min.Y}}
	strips[3] = image.Rectangle{Min: image.Point{X: in.Min.X, Y: in.Max.Y}, Max: image.Point{X: in.Max.X, Y: a.Max.Y}}
	return strips
}

// MedianBucket returns the bucket holding the in-range pixel of rank
// ceil(n/2), or false when no in-range pixel is counted.
func (h *Histogram) MedianBucket() (uint8, bool) {
	if h.inRange == 0 {
		return 0, false
	}
	k := (h.inRange + 1) / 2
	sum := 0
	for lum, c := range h.counts {
		sum += c
		if sum >= k {
			return uint8(lum), true
		}
	}
	panic("histogram: in-range total exceeds bucket counts")
}

// Median returns the position of a pixel whose luminance is the window
// median, or def when the window has no in-range pixel. Ties inside the
// median bucket are broken uniformly at random through the histogram's
// Source, so repeated runs may pick different, luminance-equivalent pixels.
func (h *Histogram) Median(def image.Point) image.Point {
	lum, ok := h.MedianBucket()
	if !ok {
		return def
	}
	return h.rings[lum].Sample(h.rng)
}

// State is a comparable copy of a histogram's contents.
type State struct {
	Counts    [Buckets]int
	Below     int
	Above     int
	InRange   int
	Window    image.Rectangle
	Positions [Buckets][]image.Point // sorted by Y, then X
}

// Snapshot returns the histogram's contents with each bucket's positions
// in raster order, so two histograms holding the same pixels compare equal
// regardless of insertion history.
func (h *Histogram) Snapshot() State {
	st := State{
		Counts:  h.counts,
		Below:   h.below,
		Above:   h.above,
		InRange: h.inRange,
		Window:  h.window,
	}
	for i := range h.rings {
		r := &h.rings[i]
		if r.Len() == 0 {
			continue
		}
		ps := make([]image.Point, r.Len())
		for j := range ps {
			ps[j] = r.At(j)
		}
		slices.SortFunc(ps, func(a, b image.Point) int {
			if c := cmp.Compare(a.Y, b.Y); c != 0 {
				return c
			}
			return cmp.Compare(a.X, b.X)
		})
		st.Positions[i] = ps
	}
	return st
}
