// Package rawpix reads and writes RPX, a lossless 16-bit-per-channel raw
// image container.
//
// An RPX file is a 12-byte header followed by a single zstd frame:
//
//	"RPX1"           magic
//	width  uint32    big-endian
//	height uint32    big-endian
//	zstd(pixels)     width*height*8 bytes, rows top to bottom, each pixel
//	                 as big-endian R, G, B, A uint16 (the image.RGBA64 layout)
//
// RPX keeps every bit of an *image.RGBA64, so it is the format of choice for
// intermediate results between despeckle passes. The package registers itself
// with the image package under the name "rpx".
package rawpix

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"slices"

	"github.com/klauspost/compress/zstd"
	xdraw "golang.org/x/image/draw"
)

// Magic starts every RPX file.
const Magic = "RPX1"

// HeaderSize is the size of the fixed header in bytes.
const HeaderSize = 12

// MaxPixels bounds width*height accepted by the decoder.
const MaxPixels = 1 << 28

const bytesPerPixel = 8

var (
	ErrInvalidHeader = errors.New("rawpix: invalid header")
	ErrTruncated     = errors.New("rawpix: truncated pixel data")
	ErrTooLarge      = errors.New("rawpix: image too large")
)

func init() {
	image.RegisterFormat("rpx", Magic, Decode, DecodeConfig)
}

// Options controls the encoder.
type Options struct {
	// Level is the zstd compression level. Zero means zstd.SpeedDefault.
	Level zstd.EncoderLevel
}

// Encode writes img to w in RPX format. The image is stored relative to its
// bounds, so the decoded image always starts at (0, 0). A nil o uses defaults.
func Encode(w io.Writer, img image.Image, o *Options) error {
	b := img.Bounds()
	if uint64(b.Dx())*uint64(b.Dy()) > MaxPixels {
		return fmt.Errorf("%w: %dx%d", ErrTooLarge, b.Dx(), b.Dy())
	}
	level := zstd.SpeedDefault
	if o != nil && o.Level != 0 {
		level = o.Level
	}

	var hdr [HeaderSize]byte
	copy(hdr[:4], Magic)
	binary.BigEndian.PutUint32(hdr[4:8], uint32(b.Dx()))
	binary.BigEndian.PutUint32(hdr[8:12], uint32(b.Dy()))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}

	enc, err := zstd.NewWriter(w,
		zstd.WithEncoderConcurrency(1),
		zstd.WithEncoderLevel(level),
	)
	if err != nil {
		return err
	}
	if err := writeRows(enc, img); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

func writeRows(w io.Writer, img image.Image) error {
	b := img.Bounds()
	if b.Empty() {
		return nil
	}
	src, ok := img.(*image.RGBA64)
	if !ok {
		// Convert one row at a time to keep memory flat on large inputs.
		row := image.NewRGBA64(image.Rect(0, 0, b.Dx(), 1))
		for y := b.Min.Y; y < b.Max.Y; y++ {
			xdraw.Draw(row, row.Rect, img, image.Pt(b.Min.X, y), xdraw.Src)
			if _, err := w.Write(row.Pix); err != nil {
				return err
			}
		}
		return nil
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		if _, err := w.Write(src.Pix[src.PixOffset(b.Min.X, y):src.PixOffset(b.Max.X, y)]); err != nil {
			return err
		}
	}
	return nil
}

func readHeader(r io.Reader) (w, h int, err error) {
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, 0, fmt.Errorf("%w: short header", ErrInvalidHeader)
		}
		return 0, 0, err
	}
	if string(hdr[:4]) != Magic {
		return 0, 0, fmt.Errorf("%w: bad magic %q", ErrInvalidHeader, hdr[:4])
	}
	uw := binary.BigEndian.Uint32(hdr[4:8])
	uh := binary.BigEndian.Uint32(hdr[8:12])
	if uint64(uw)*uint64(uh) > MaxPixels {
		return 0, 0, fmt.Errorf("%w: %dx%d", ErrTooLarge, uw, uh)
	}
	return int(uw), int(uh), nil
}

// DecodeConfig returns the dimensions of an RPX image without decoding the
// pixel data.
func DecodeConfig(r io.Reader) (image.Config, error) {
	w, h, err := readHeader(r)
	if err != nil {
		return image.Config{}, err
	}
	return image.Config{ColorModel: color.RGBA64Model, Width: w, Height: h}, nil
}

// Decode reads an RPX image from r.
func Decode(r io.Reader) (image.Image, error) {
	img, err := DecodeRGBA64(r)
	if err != nil {
		return nil, err
	}
	return img, nil
}

// DecodeRGBA64 reads an RPX image from r into a new *image.RGBA64.
//
// The pixel buffer grows with the decompressed data, so a header claiming
// large dimensions costs nothing until the payload backs it up.
func DecodeRGBA64(r io.Reader) (*image.RGBA64, error) {
	w, h, err := readHeader(r)
	if err != nil {
		return nil, err
	}
	rect := image.Rect(0, 0, w, h)
	n := w * h * bytesPerPixel
	if n == 0 {
		return image.NewRGBA64(rect), nil
	}

	dec, err := zstd.NewReader(r,
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderLowmem(true),
		zstd.WithDecoderMaxMemory(uint64(n)+1<<20),
	)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	pix, err := readPixels(dec, n)
	if err != nil {
		return nil, err
	}
	return &image.RGBA64{Pix: pix, Stride: w * bytesPerPixel, Rect: rect}, nil
}

// initialChunk is the first allocation for the pixel buffer; it doubles
// from there up to the size the header announces.
const initialChunk = 64 << 10

// readPixels reads exactly n bytes from r.
func readPixels(r io.Reader, n int) ([]byte, error) {
	pix := make([]byte, 0, min(n, initialChunk))
	for len(pix) < n {
		if len(pix) == cap(pix) {
			pix = slices.Grow(pix, min(cap(pix), n-len(pix)))
		}
		m, err := r.Read(pix[len(pix):min(cap(pix), n)])
		pix = pix[:len(pix)+m]
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				if len(pix) == n {
					break
				}
				return nil, fmt.Errorf("%w: got %d of %d bytes", ErrTruncated, len(pix), n)
			}
			return nil, fmt.Errorf("rawpix: %w", err)
		}
	}
	return pix[:n:n], nil
}
