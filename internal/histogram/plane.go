package histogram

import (
	"image"

	"github.com/deepteams/despeckle/internal/pool"
)

var planes pool.Slab[uint8]

// Plane is a one-byte-per-pixel luminance buffer covering Rect.
type Plane struct {
	Pix    []uint8
	Stride int
	Rect   image.Rectangle
}

// NewPlane returns a pooled plane for r. Its contents are unspecified until
// the caller fills every pixel. Call Release when done.
func NewPlane(r image.Rectangle) *Plane {
	return &Plane{
		Pix:    planes.Get(r.Dx() * r.Dy()),
		Stride: r.Dx(),
		Rect:   r,
	}
}

// Offset returns the index of (x, y) in Pix.
func (p *Plane) Offset(x, y int) int {
	return (y-p.Rect.Min.Y)*p.Stride + (x - p.Rect.Min.X)
}

// At returns the luminance bucket at (x, y).
func (p *Plane) At(x, y int) uint8 {
	return p.Pix[p.Offset(x, y)]
}

// Set stores the luminance bucket at (x, y).
func (p *Plane) Set(x, y int, v uint8) {
	p.Pix[p.Offset(x, y)] = v
}

// Release returns the plane's buffer to the pool. p must not be used afterwards.
func (p *Plane) Release() {
	planes.Put(p.Pix)
	p.Pix = nil
}
