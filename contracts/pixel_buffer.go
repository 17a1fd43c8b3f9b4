package contracts

import (
	"fmt"
	"image"
)

// BytesPerPixel is the size of one RGBA8 pixel.
const BytesPerPixel = 4

// PixelBuffer is the flattened result of a decoded document: Width*Height
// straight-alpha RGBA8 pixels in row-major order. It is built once by a
// Decoder and read by an Encoder; nothing writes to Pix after construction.
type PixelBuffer struct {
	Width  uint32
	Height uint32
	Pix    []byte
}

// NewPixelBuffer wraps pix after checking it holds exactly width*height pixels.
func NewPixelBuffer(width, height uint32, pix []byte) (PixelBuffer, error) {
	buf := PixelBuffer{Width: width, Height: height, Pix: pix}
	if err := buf.Validate(); err != nil {
		return PixelBuffer{}, err
	}
	return buf, nil
}

func (b PixelBuffer) Validate() error {
	want := uint64(b.Width) * uint64(b.Height) * BytesPerPixel
	if uint64(len(b.Pix)) != want {
		return fmt.Errorf("pixel buffer %dx%d holds %d bytes, want %d", b.Width, b.Height, len(b.Pix), want)
	}
	return nil
}

// Len returns the number of pixels.
func (b PixelBuffer) Len() int {
	return len(b.Pix) / BytesPerPixel
}

// Image exposes the buffer as an *image.NRGBA sharing Pix.
func (b PixelBuffer) Image() *image.NRGBA {
	return &image.NRGBA{
		Pix:    b.Pix,
		Stride: int(b.Width) * BytesPerPixel,
		Rect:   image.Rect(0, 0, int(b.Width), int(b.Height)),
	}
}

// DecodedImage is what a Decoder hands to an Encoder.
type DecodedImage struct {
	Pixels PixelBuffer
	// DPI is the horizontal resolution declared by the source, 0 if none.
	DPI float64
}
