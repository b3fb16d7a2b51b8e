package despeckle

import (
	"image"
	"image/color"

	xdraw "golang.org/x/image/draw"
)

// BT.709 luma weights.
const (
	lumaRed   = 0.2126
	lumaGreen = 0.7152
	lumaBlue  = 0.0722
)

// Luminance returns the luminance bucket of c in [0, 255].
//
// Each channel is reduced to its high byte, so 8-bit data widened as v*0x101
// maps back to v exactly. The weighted sum is truncated toward zero, never
// rounded: filter output depends on which bucket a pixel lands in.
func Luminance(c color.RGBA64) uint8 {
	// The explicit conversions keep the compiler from fusing the
	// multiply-adds, which would change results on some architectures.
	y := float64(float64(c.R>>8)*lumaRed) +
		float64(float64(c.G>>8)*lumaGreen) +
		float64(float64(c.B>>8)*lumaBlue)
	if y >= 255 {
		return 255
	}
	return uint8(y)
}

// ToRGBA64 returns a copy of img as an *image.RGBA64 with the same bounds.
// The result never aliases img, even when img is already an *image.RGBA64.
func ToRGBA64(img image.Image) *image.RGBA64 {
	b := img.Bounds()
	dst := image.NewRGBA64(b)
	if src, ok := img.(*image.RGBA64); ok {
		for y := b.Min.Y; y < b.Max.Y; y++ {
			copy(dst.Pix[dst.PixOffset(b.Min.X, y):dst.PixOffset(b.Max.X, y)],
				src.Pix[src.PixOffset(b.Min.X, y):src.PixOffset(b.Max.X, y)])
		}
		return dst
	}
	xdraw.Draw(dst, b, img, b.Min, xdraw.Src)
	return dst
}
