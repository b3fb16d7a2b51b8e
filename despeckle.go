package despeckle

import (
	"fmt"
	"image"
	"time"

	"github.com/deepteams/despeckle/internal/histogram"
	"github.com/deepteams/despeckle/internal/monitoring"
)

// Despeckle runs a median despeckle pass over src and returns the filtered
// image, which has the same bounds as src. A nil opts uses DefaultOptions.
//
// In Recursive mode src is modified in place while the pass runs and ends
// up equal to the returned image; use Filter to leave the input untouched.
// src must not be read or written by anyone else during the call.
func Despeckle(src *image.RGBA64, opts *Options) (*image.RGBA64, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if src == nil {
		return nil, ErrNilImage
	}
	b := src.Bounds()
	dst := image.NewRGBA64(b)
	if b.Empty() {
		return dst, nil
	}

	start := time.Now()
	p := newPass(src, dst, opts)
	defer p.release()
	p.run()

	monitoring.Logf("despeckle: %dx%d %s radius=%d levels=%d/%d in %v",
		b.Dx(), b.Dy(), opts.Type, opts.Radius, opts.BlackLevel, opts.WhiteLevel, time.Since(start))
	return dst, nil
}

// Filter despeckles a copy of img and returns the result. img itself is
// never modified, whatever the filter type.
func Filter(img image.Image, opts *Options) (*image.RGBA64, error) {
	if img == nil {
		return nil, ErrNilImage
	}
	out, err := Despeckle(ToRGBA64(img), opts)
	if err != nil {
		return nil, fmt.Errorf("despeckle: filter: %w", err)
	}
	return out, nil
}

// step describes the filter state after one output pixel.
type step struct {
	X, Y    int
	Radius  int             // window radius used for this pixel
	Window  image.Rectangle // window the median was taken over
	Median  image.Point
	Below   int
	Above   int
	InRange int
}

// pass holds the state of one filter run. It exclusively owns src (in
// Recursive mode), dst, the luminance plane and the histogram.
type pass struct {
	src, dst *image.RGBA64
	opts     Options
	plane    *histogram.Plane
	hist     *histogram.Histogram

	// observe, when set, is called after every output pixel.
	observe func(step)
}

func newPass(src, dst *image.RGBA64, opts *Options) *pass {
	b := src.Bounds()
	plane := histogram.NewPlane(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			plane.Set(x, y, Luminance(src.RGBA64At(x, y)))
		}
	}
	return &pass{
		src:   src,
		dst:   dst,
		opts:  *opts,
		plane: plane,
		hist: histogram.New(b, opts.Radius, uint8(opts.BlackLevel), uint8(opts.WhiteLevel),
			opts.source()),
	}
}

func (p *pass) release() {
	p.hist.Release()
	p.plane.Release()
}

// window returns the radius-r neighborhood of (x, y) clipped to b.
func window(b image.Rectangle, x, y, r int) image.Rectangle {
	return image.Rect(x-r, y-r, x+r+1, y+r+1).Intersect(b)
}

// nextRadius applies the adaptive rule: grow toward limit while the window
// holds at least radius clipped pixels of either kind, otherwise shrink
// toward 1. A window at the limit that still qualifies keeps its radius.
func nextRadius(radius, limit, below, above int) int {
	if below >= radius || above >= radius {
		if radius < limit {
			radius++
		}
		return radius
	}
	if radius > 1 {
		radius--
	}
	return radius
}

func (p *pass) run() {
	b := p.src.Bounds()
	h := p.hist
	recursive := p.opts.Type == Recursive

	for y := b.Min.Y; y < b.Max.Y; y++ {
		radius := p.opts.Radius
		win := window(b, b.Min.X, y, radius)
		h.Reset()
		h.SetWindow(win)
		h.AddRect(p.plane, win)

		for x := b.Min.X; x < b.Max.X; x++ {
			win = window(b, x, y, radius)
			h.Reconcile(p.plane, win)
			below, above, inRange := h.Below(), h.Above(), h.InRange()

			at := image.Point{X: x, Y: y}
			m := h.Median(at)
			c := p.src.RGBA64At(m.X, m.Y)
			if recursive {
				h.Remove(p.plane.At(x, y), at)
				p.src.SetRGBA64(x, y, c)
				p.plane.Set(x, y, Luminance(c))
				h.Add(p.plane.At(x, y), at)
			}
			p.dst.SetRGBA64(x, y, c)

			if p.observe != nil {
				p.observe(step{
					X: x, Y: y, Radius: radius, Window: win, Median: m,
					Below: below, Above: above, InRange: inRange,
				})
			}
			if !recursive {
				radius = nextRadius(radius, p.opts.Radius, below, above)
			}
		}
	}
}
