package psdtest

import (
	"bytes"
	"encoding/binary"
	"image"
	"math"
)

// Resource IDs used by the helpers below.
const (
	ResResolutionInfo    = 1005
	ResTransparencyIndex = 1047
	ResVersionInfo       = 1057
	ResEXIFData1         = 1058
)

// FromNRGBA returns an 8-bit RGB document whose merged image is img, with
// a transparency channel. No layers are written.
func FromNRGBA(img *image.NRGBA) Document {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	planes := make([][]byte, 4)
	for c := range planes {
		planes[c] = make([]byte, w*h)
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			o := img.PixOffset(img.Rect.Min.X+x, img.Rect.Min.Y+y)
			for c := 0; c < 4; c++ {
				planes[c][y*w+x] = img.Pix[o+c]
			}
		}
	}
	return Document{
		Width:     uint32(w),
		Height:    uint32(h),
		ColorMode: ModeRGB,
		Channels:  planes,
	}
}

// LayerFromNRGBA returns an RGB layer with transparency whose bounds are img.Rect.
func LayerFromNRGBA(name string, img *image.NRGBA, opacity uint8) Layer {
	doc := FromNRGBA(img)
	return Layer{
		Name:    name,
		Rect:    img.Rect,
		Opacity: opacity,
		Channels: map[int16][]byte{
			0:  doc.Channels[0],
			1:  doc.Channels[1],
			2:  doc.Channels[2],
			-1: doc.Channels[3],
		},
	}
}

// Fill returns an image over rect filled with one color.
func Fill(rect image.Rectangle, r, g, b, a uint8) *image.NRGBA {
	img := image.NewNRGBA(rect)
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i+0], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = r, g, b, a
	}
	return img
}

// Plane returns n copies of v.
func Plane(n int, v byte) []byte {
	return bytes.Repeat([]byte{v}, n)
}

// Depth16 widens 8-bit samples to big-endian 16-bit.
func Depth16(plane []byte) []byte {
	out := make([]byte, len(plane)*2)
	for i, v := range plane {
		binary.BigEndian.PutUint16(out[i*2:], uint16(v)*257)
	}
	return out
}

// Depth32 widens 8-bit samples to big-endian float32 in [0, 1].
func Depth32(plane []byte) []byte {
	out := make([]byte, len(plane)*4)
	for i, v := range plane {
		binary.BigEndian.PutUint32(out[i*4:], math.Float32bits(float32(v)/255))
	}
	return out
}

// IndexedColorTable lays out a palette as all reds, all greens, all blues.
func IndexedColorTable(colors [][3]uint8) []byte {
	out := make([]byte, 768)
	for i, c := range colors {
		out[i], out[256+i], out[512+i] = c[0], c[1], c[2]
	}
	return out
}

// ResolutionInfo encodes resource 1005 in pixels per inch.
func ResolutionInfo(dpi float64) []byte {
	var b bytes.Buffer
	fixed := uint32(dpi * 65536)
	put32(&b, fixed)
	put16(&b, 1) // pixels per inch
	put16(&b, 1) // width unit: inches
	put32(&b, fixed)
	put16(&b, 1)
	put16(&b, 1)
	return b.Bytes()
}

// VersionInfo encodes resource 1057.
func VersionInfo(hasRealMergedData bool) []byte {
	var b bytes.Buffer
	put32(&b, 1)
	if hasRealMergedData {
		b.WriteByte(1)
	} else {
		b.WriteByte(0)
	}
	put32(&b, 0) // empty writer name
	put32(&b, 0) // empty reader name
	put32(&b, 1)
	return b.Bytes()
}

// TransparencyIndex encodes resource 1047.
func TransparencyIndex(idx uint16) []byte {
	var b bytes.Buffer
	put16(&b, idx)
	return b.Bytes()
}

// EXIF builds a big-endian TIFF-structured EXIF block holding only
// XResolution, YResolution and ResolutionUnit (2 = inch, 3 = cm).
func EXIF(dpiX, dpiY uint32, unit uint16) []byte {
	var b bytes.Buffer
	b.WriteString("MM")
	put16(&b, 0x2a)
	put32(&b, 8)

	const entries = 3
	dataOff := uint32(8 + 2 + entries*12 + 4)

	put16(&b, entries)
	// XResolution, RATIONAL
	put16(&b, 0x011a)
	put16(&b, 5)
	put32(&b, 1)
	put32(&b, dataOff)
	// YResolution, RATIONAL
	put16(&b, 0x011b)
	put16(&b, 5)
	put32(&b, 1)
	put32(&b, dataOff+8)
	// ResolutionUnit, SHORT
	put16(&b, 0x0128)
	put16(&b, 3)
	put32(&b, 1)
	put16(&b, unit)
	put16(&b, 0)
	put32(&b, 0) // no next IFD

	put32(&b, dpiX)
	put32(&b, 1)
	put32(&b, dpiY)
	put32(&b, 1)
	return b.Bytes()
}
