package despeckle

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/deepteams/despeckle/internal/histogram"
	"github.com/deepteams/despeckle/internal/quality"
)

// ErrSizeMismatch is returned by Compare when the two images differ in size.
var ErrSizeMismatch = errors.New("despeckle: image sizes differ")

// Summary describes the luminance distribution of an image.
type Summary struct {
	Pixels int
	Below  int // luminance <= black level
	Above  int // luminance >= white level
	Mean   float64
	StdDev float64
}

// Clipped returns the share of pixels outside the level range.
func (s Summary) Clipped() float64 {
	if s.Pixels == 0 {
		return 0
	}
	return float64(s.Below+s.Above) / float64(s.Pixels)
}

// Summarize computes the luminance summary of img for the given levels.
func Summarize(img image.Image, black, white int) Summary {
	pl := lumaPlane(img)
	defer pl.Release()
	return summarize(pl, black, white)
}

func summarize(pl *histogram.Plane, black, white int) Summary {
	n := pl.Rect.Dx() * pl.Rect.Dy()
	s := Summary{Pixels: n}
	if n == 0 {
		return s
	}
	vals := make([]float64, n)
	for i, v := range pl.Pix[:n] {
		switch {
		case int(v) <= black:
			s.Below++
		case int(v) >= white:
			s.Above++
		}
		vals[i] = float64(v)
	}
	s.Mean, s.StdDev = stat.MeanStdDev(vals, nil)
	if math.IsNaN(s.StdDev) {
		s.StdDev = 0
	}
	return s
}

// Stats compares an image before and after filtering.
type Stats struct {
	Before, After Summary
	Changed       int     // pixels whose color differs
	PSNR          float64 // luminance PSNR in dB, +Inf when identical
	SSIM          float64 // mean windowed luminance SSIM in [0, 1]
}

// Compare summarizes before and after and measures how far they differ.
// Both images must have the same size; their origins may differ.
func Compare(before, after image.Image, black, white int) (Stats, error) {
	bb, ab := before.Bounds(), after.Bounds()
	if bb.Size() != ab.Size() {
		return Stats{}, fmt.Errorf("%w: %v vs %v", ErrSizeMismatch, bb.Size(), ab.Size())
	}
	p0, p1 := lumaPlane(before), lumaPlane(after)
	defer p0.Release()
	defer p1.Release()

	st := Stats{
		Before: summarize(p0, black, white),
		After:  summarize(p1, black, white),
		PSNR:   quality.PSNR(quality.SSE(p0, p1), bb.Dx()*bb.Dy()),
		SSIM:   quality.SSIM(p0, p1),
	}
	for y := 0; y < bb.Dy(); y++ {
		for x := 0; x < bb.Dx(); x++ {
			if rgba64At(before, bb.Min.X+x, bb.Min.Y+y) != rgba64At(after, ab.Min.X+x, ab.Min.Y+y) {
				st.Changed++
			}
		}
	}
	return st, nil
}

// lumaPlane returns the luminance of img in a pooled plane whose rectangle
// starts at the origin.
func lumaPlane(img image.Image) *histogram.Plane {
	b := img.Bounds()
	pl := histogram.NewPlane(image.Rectangle{Max: b.Size()})
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			pl.Set(x-b.Min.X, y-b.Min.Y, Luminance(rgba64At(img, x, y)))
		}
	}
	return pl
}

func rgba64At(img image.Image, x, y int) color.RGBA64 {
	if m, ok := img.(image.RGBA64Image); ok {
		return m.RGBA64At(x, y)
	}
	r, g, b, a := img.At(x, y).RGBA()
	return color.RGBA64{R: uint16(r), G: uint16(g), B: uint16(b), A: uint16(a)}
}
