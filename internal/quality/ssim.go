// Package quality measures how far a filtered luminance plane moved from
// its source.
package quality

import (
	"math"

	"github.com/deepteams/despeckle/internal/histogram"
)

// Stats accumulates the moments SSIM needs over one weighted window.
type Stats struct {
	W             uint32 // total weight
	Xm, Ym        uint32 // weighted sums of x and y
	Xxm, Xym, Yym uint32 // weighted sums of x*x, x*y, y*y
}

// Add accumulates the pair (x, y) with weight w.
func (s *Stats) Add(x, y uint8, w uint32) {
	s.W += w
	s.Xm += w * uint32(x)
	s.Ym += w * uint32(y)
	s.Xxm += w * uint32(x) * uint32(x)
	s.Xym += w * uint32(x) * uint32(y)
	s.Yym += w * uint32(y) * uint32(y)
}

// SSIM returns the structural similarity of the accumulated window,
// normalized by its own weight. An empty window scores 1.
func (s *Stats) SSIM() float64 {
	if s.W == 0 {
		return 1
	}
	n := s.W
	w2 := uint64(n) * uint64(n)
	c1 := 20 * w2
	c2 := 60 * w2
	dark := 8 * 8 * w2

	xmxm := uint64(s.Xm) * uint64(s.Xm)
	ymym := uint64(s.Ym) * uint64(s.Ym)
	// Two very dark windows compare equal whatever their texture.
	if xmxm+ymym < dark {
		return 1
	}

	xmym := uint64(s.Xm) * uint64(s.Ym)
	sxy := int64(s.Xym)*int64(n) - int64(xmym)
	sxx := uint64(s.Xxm)*uint64(n) - xmxm
	syy := uint64(s.Yym)*uint64(n) - ymym

	var sxyPos uint64
	if sxy > 0 {
		sxyPos = uint64(sxy)
	}
	// Descale before the final multiply so it stays within 64 bits.
	num := (2*xmym + c1) * ((2*sxyPos + c2) >> 8)
	den := (xmxm + ymym + c1) * ((sxx + syy + c2) >> 8)
	if den == 0 {
		return 1
	}
	return float64(num) / float64(den)
}

// kernel is the hat-shaped 7-tap window used for SSIM.
const kernel = 3

var weights = [2*kernel + 1]uint32{1, 2, 3, 4, 3, 2, 1}

// windowSSIM computes SSIM around (x, y), clipping the kernel at the plane
// edges. Both planes must cover the same rectangle.
func windowSSIM(a, b *histogram.Plane, x, y int) float64 {
	r := a.Rect
	var s Stats
	for wy := max(y-kernel, r.Min.Y); wy <= min(y+kernel, r.Max.Y-1); wy++ {
		wyw := weights[kernel+wy-y]
		for wx := max(x-kernel, r.Min.X); wx <= min(x+kernel, r.Max.X-1); wx++ {
			s.Add(a.At(wx, wy), b.At(wx, wy), weights[kernel+wx-x]*wyw)
		}
	}
	return s.SSIM()
}

// SSIM returns the mean windowed SSIM between two planes with identical
// rectangles, in [0, 1]. Empty planes score 1.
func SSIM(a, b *histogram.Plane) float64 {
	r := a.Rect
	if r.Empty() {
		return 1
	}
	var sum float64
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			sum += windowSSIM(a, b, x, y)
		}
	}
	return sum / float64(r.Dx()*r.Dy())
}

// SSE returns the sum of squared differences between two planes with
// identical rectangles.
func SSE(a, b *histogram.Plane) uint64 {
	r := a.Rect
	var sse uint64
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			d := int(a.At(x, y)) - int(b.At(x, y))
			sse += uint64(d * d)
		}
	}
	return sse
}

// PSNR converts a sum of squared errors over count samples to decibels.
// Identical inputs return +Inf.
func PSNR(sse uint64, count int) float64 {
	if sse == 0 || count == 0 {
		return math.Inf(1)
	}
	mse := float64(sse) / float64(count)
	return 10 * math.Log10(255*255/mse)
}
