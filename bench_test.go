package despeckle

import (
	"fmt"
	"image"
	"image/color"
	"math/rand/v2"
	"testing"
)

func loadTestImage(b *testing.B) *image.RGBA64 {
	b.Helper()
	rng := rand.New(rand.NewPCG(1, 2))
	img := image.NewRGBA64(image.Rect(0, 0, 640, 480))
	for y := 0; y < 480; y++ {
		for x := 0; x < 640; x++ {
			c := color.RGBA64{
				R: uint16(x%256) * 0x101,
				G: uint16(y%256) * 0x101,
				B: uint16((x+y)%256) * 0x101,
				A: 0xffff,
			}
			switch rng.IntN(50) {
			case 0:
				c = color.RGBA64{A: 0xffff}
			case 1:
				c = color.RGBA64{R: 0xffff, G: 0xffff, B: 0xffff, A: 0xffff}
			}
			img.SetRGBA64(x, y, c)
		}
	}
	return img
}

func benchmarkFilter(b *testing.B, ft FilterType, radius int) {
	img := loadTestImage(b)
	opts := &Options{
		Radius:     radius,
		Type:       ft,
		BlackLevel: DefaultBlackLevel,
		WhiteLevel: DefaultWhiteLevel,
		Rand:       NewSource(3),
	}
	b.SetBytes(int64(len(img.Pix)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Filter(img, opts); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkFilter(b *testing.B) {
	for _, ft := range []FilterType{Adaptive, Recursive} {
		for _, r := range []int{1, 3, 8, 20} {
			b.Run(fmt.Sprintf("%s/r=%d", ft, r), func(b *testing.B) {
				benchmarkFilter(b, ft, r)
			})
		}
	}
}

func BenchmarkLuminance(b *testing.B) {
	c := color.RGBA64{R: 0x1234, G: 0x5678, B: 0x9abc, A: 0xffff}
	var sink uint8
	for i := 0; i < b.N; i++ {
		c.R += 0x101
		sink += Luminance(c)
	}
	_ = sink
}

func BenchmarkCompare(b *testing.B) {
	img := loadTestImage(b)
	out, err := Filter(img, &Options{Radius: 3, BlackLevel: 7, WhiteLevel: 248, Rand: NewSource(4)})
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Compare(img, out, 7, 248); err != nil {
			b.Fatal(err)
		}
	}
}
