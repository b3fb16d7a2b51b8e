// Package despeckle removes black and white speckles from images with a
// clipped median filter.
//
// Each output pixel is the median, by luminance, of the pixels in a square
// window around it, ignoring pixels whose luminance is at or below the black
// level or at or above the white level. When every pixel in a window is
// clipped, the pixel keeps its own value. Pixels of equal luminance are
// picked at random, so the output color (never its luminance) can depend on
// the random source; set Options.Rand for reproducible results.
//
// Two filter types are supported:
//   - Adaptive grows the window (up to Options.Radius) where clipped pixels
//     are dense and shrinks it where they are rare. The source is unchanged.
//   - Recursive uses a fixed window and writes every median back into the
//     source as it goes, so later windows see filtered values.
//
// The window histogram is updated incrementally as the window slides, so
// the cost per pixel is proportional to the window edge rather than its area.
//
// Basic usage:
//
//	out, err := despeckle.Filter(img, nil)
//
// With options:
//
//	out, err := despeckle.Filter(img, &despeckle.Options{
//		Radius:     5,
//		Type:       despeckle.Recursive,
//		BlackLevel: 10,
//		WhiteLevel: 245,
//		Rand:       despeckle.NewSource(1),
//	})
package despeckle
