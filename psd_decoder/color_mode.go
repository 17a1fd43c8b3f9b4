package psd_decoder

import (
	"fmt"
	"math"
)

// ColorMode is the document's color encoding. Every mode resolves to
// straight-alpha RGBA8 inside this package.
type ColorMode uint16

const (
	ColorModeBitmap       ColorMode = 0
	ColorModeGrayscale    ColorMode = 1
	ColorModeIndexed      ColorMode = 2
	ColorModeRGB          ColorMode = 3
	ColorModeCMYK         ColorMode = 4
	ColorModeMultichannel ColorMode = 7
	ColorModeDuotone      ColorMode = 8
	ColorModeLab          ColorMode = 9
)

func (m ColorMode) String() string {
	switch m {
	case ColorModeBitmap:
		return "Bitmap"
	case ColorModeGrayscale:
		return "Grayscale"
	case ColorModeIndexed:
		return "Indexed"
	case ColorModeRGB:
		return "RGB"
	case ColorModeCMYK:
		return "CMYK"
	case ColorModeMultichannel:
		return "Multichannel"
	case ColorModeDuotone:
		return "Duotone"
	case ColorModeLab:
		return "Lab"
	}
	return fmt.Sprintf("ColorMode(%d)", uint16(m))
}

func (m ColorMode) supported() bool {
	switch m {
	case ColorModeBitmap, ColorModeGrayscale, ColorModeIndexed, ColorModeRGB,
		ColorModeCMYK, ColorModeDuotone, ColorModeLab:
		return true
	}
	return false
}

// colorChannels is the number of channels that carry color, before any alpha.
func (m ColorMode) colorChannels() int {
	switch m {
	case ColorModeRGB, ColorModeLab:
		return 3
	case ColorModeCMYK:
		return 4
	}
	return 1
}

// palette is the indexed color table: 256 entries of RGB.
type palette [256][3]uint8

// parsePalette reads the 768-byte color mode data of an indexed document,
// stored as all reds, then all greens, then all blues.
func parsePalette(data []byte) (*palette, error) {
	if len(data) < 768 {
		return nil, fmt.Errorf("%w: indexed color table has %d bytes, want 768", ErrCorrupt, len(data))
	}
	var p palette
	for i := 0; i < 256; i++ {
		p[i] = [3]uint8{data[i], data[256+i], data[512+i]}
	}
	return &p, nil
}

// planes holds one 8-bit plane per color channel plus an optional alpha
// plane, each of n bytes.
type planes struct {
	color [][]byte
	alpha []byte
}

// colorSpace carries what a color mode needs beyond the planes themselves.
type colorSpace struct {
	mode        ColorMode
	palette     *palette
	transparent int
}

// toRGBA writes n pixels of straight-alpha RGBA8 into dst.
func (cs colorSpace) toRGBA(p planes, n int, dst []byte) error {
	if len(p.color) < cs.mode.colorChannels() {
		return fmt.Errorf("%w: %s needs %d color planes, have %d", ErrCorrupt, cs.mode, cs.mode.colorChannels(), len(p.color))
	}
	for i := 0; i < n; i++ {
		o := i * 4
		switch cs.mode {
		case ColorModeRGB:
			dst[o+0] = p.color[0][i]
			dst[o+1] = p.color[1][i]
			dst[o+2] = p.color[2][i]
		case ColorModeGrayscale, ColorModeDuotone, ColorModeBitmap:
			g := p.color[0][i]
			dst[o+0], dst[o+1], dst[o+2] = g, g, g
		case ColorModeIndexed:
			if cs.palette == nil {
				return fmt.Errorf("%w: indexed document without color table", ErrCorrupt)
			}
			idx := p.color[0][i]
			c := cs.palette[idx]
			dst[o+0], dst[o+1], dst[o+2] = c[0], c[1], c[2]
			if int(idx) == cs.transparent {
				dst[o+3] = 0
				continue
			}
		case ColorModeCMYK:
			// CMYK planes are stored inverted: 255 means no ink.
			k := uint32(p.color[3][i])
			dst[o+0] = uint8((uint32(p.color[0][i])*k + 127) / 255)
			dst[o+1] = uint8((uint32(p.color[1][i])*k + 127) / 255)
			dst[o+2] = uint8((uint32(p.color[2][i])*k + 127) / 255)
		case ColorModeLab:
			dst[o+0], dst[o+1], dst[o+2] = labToRGB(p.color[0][i], p.color[1][i], p.color[2][i])
		default:
			return fmt.Errorf("%w: %s", ErrColorMode, cs.mode)
		}
		if p.alpha != nil {
			dst[o+3] = p.alpha[i]
		} else {
			dst[o+3] = 0xff
		}
	}
	return nil
}

// D50 reference white.
const (
	whiteX = 0.96422
	whiteY = 1.0
	whiteZ = 0.82521
)

// labToRGB converts 8-bit CIELAB (L scaled to 0..255, a and b offset by 128)
// to sRGB using the Bradford-adapted D50 matrix.
func labToRGB(l8, a8, b8 uint8) (uint8, uint8, uint8) {
	l := float64(l8) * 100 / 255
	a := float64(a8) - 128
	b := float64(b8) - 128

	fy := (l + 16) / 116
	fx := fy + a/500
	fz := fy - b/200

	x := whiteX * labInv(fx)
	y := whiteY * labInv(fy)
	z := whiteZ * labInv(fz)

	r := 3.1338561*x - 1.6168667*y - 0.4906146*z
	g := -0.9787684*x + 1.9161415*y + 0.0334540*z
	bl := 0.0719453*x - 0.2289914*y + 1.4052427*z

	return srgbEncode(r), srgbEncode(g), srgbEncode(bl)
}

func labInv(t float64) float64 {
	const delta = 6.0 / 29.0
	if t > delta {
		return t * t * t
	}
	return 3 * delta * delta * (t - 4.0/29.0)
}

func srgbEncode(v float64) uint8 {
	if v <= 0.0031308 {
		v *= 12.92
	} else {
		v = 1.055*math.Pow(v, 1/2.4) - 0.055
	}
	return clamp8(v * 255)
}

func clamp8(v float64) uint8 {
	if v <= 0 || math.IsNaN(v) {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v + 0.5)
}
