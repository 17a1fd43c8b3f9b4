package psdtest

import (
	"image"
	"image/color"

	"psd2png/contracts"
)

// PixelAt returns the pixel of buf at (x, y).
func PixelAt(buf contracts.PixelBuffer, x, y int) color.NRGBA {
	i := (y*int(buf.Width) + x) * contracts.BytesPerPixel
	p := buf.Pix[i : i+4 : i+4]
	return color.NRGBA{R: p[0], G: p[1], B: p[2], A: p[3]}
}

// FromImage copies any image into a new PixelBuffer with straight alpha,
// so decoded PNG and TIFF output can be compared with decoder output.
func FromImage(img image.Image) contracts.PixelBuffer {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	pix := make([]byte, w*h*contracts.BytesPerPixel)
	if n, ok := img.(*image.NRGBA); ok {
		for y := 0; y < h; y++ {
			off := n.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			copy(pix[y*w*4:(y+1)*w*4], n.Pix[off:off+w*4])
		}
		return contracts.PixelBuffer{Width: uint32(w), Height: uint32(h), Pix: pix}
	}
	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			copy(pix[i:i+4], []byte{c.R, c.G, c.B, c.A})
			i += 4
		}
	}
	return contracts.PixelBuffer{Width: uint32(w), Height: uint32(h), Pix: pix}
}
