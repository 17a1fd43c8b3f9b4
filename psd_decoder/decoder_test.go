package psd_decoder

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"psd2png/contracts"
	"psd2png/psd_decoder/psdtest"
)

func gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			o := img.PixOffset(x, y)
			img.Pix[o+0] = uint8(x * 40)
			img.Pix[o+1] = uint8(y * 60)
			img.Pix[o+2] = uint8(200 - x*10)
			img.Pix[o+3] = uint8(255 - (x+y)*20)
		}
	}
	return img
}

func decode(t *testing.T, data []byte, mode contracts.CompositeMode) contracts.PixelBuffer {
	t.Helper()
	img, err := NewDecoder(mode).Decode(data)
	require.NoError(t, err)
	require.NoError(t, img.Pixels.Validate())
	return img.Pixels
}

func TestDecode_RedAndTransparentPixel(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	copy(src.Pix, []byte{255, 0, 0, 255, 0, 0, 0, 0})

	doc := psdtest.FromNRGBA(src)
	doc.MergedAlpha = true
	doc.Layers = []psdtest.Layer{psdtest.LayerFromNRGBA("Layer 1", src, 255)}

	buf := decode(t, doc.Bytes(), contracts.CompositeAuto)
	assert.Equal(t, uint32(2), buf.Width)
	assert.Equal(t, uint32(1), buf.Height)
	assert.Equal(t, 2, buf.Len())

	red := psdtest.PixelAt(buf, 0, 0)
	assert.Equal(t, [4]uint8{255, 0, 0, 255}, [4]uint8{red.R, red.G, red.B, red.A})
	assert.Equal(t, uint8(0), psdtest.PixelAt(buf, 1, 0).A)

	layered := decode(t, doc.Bytes(), contracts.CompositeLayers)
	assert.Equal(t, psdtest.PixelAt(buf, 0, 0), psdtest.PixelAt(layered, 0, 0))
	assert.Equal(t, uint8(0), psdtest.PixelAt(layered, 1, 0).A)
}

func TestDecode_Compression(t *testing.T) {
	src := gradient(5, 3)
	for _, tc := range []struct {
		name string
		comp uint16
	}{
		{"raw", psdtest.Raw},
		{"rle", psdtest.RLE},
		{"zip", psdtest.ZIP},
		{"zip with prediction", psdtest.ZIPPredict},
	} {
		t.Run(tc.name, func(t *testing.T) {
			doc := psdtest.FromNRGBA(src)
			doc.Compression = tc.comp
			buf := decode(t, doc.Bytes(), contracts.CompositeMerged)
			assert.Equal(t, src.Pix, buf.Pix)
		})
	}
}

func TestDecode_PSB(t *testing.T) {
	src := gradient(4, 4)
	for _, comp := range []uint16{psdtest.Raw, psdtest.RLE} {
		doc := psdtest.FromNRGBA(src)
		doc.Version = 2
		doc.Compression = comp
		doc.MergedAlpha = true
		doc.Layers = []psdtest.Layer{psdtest.LayerFromNRGBA("only", src, 255)}

		assert.Equal(t, src.Pix, decode(t, doc.Bytes(), contracts.CompositeMerged).Pix)
		assert.Equal(t, src.Pix, decode(t, doc.Bytes(), contracts.CompositeLayers).Pix)
	}
}

func TestDecode_ColorModes(t *testing.T) {
	tests := []struct {
		name string
		doc  psdtest.Document
		want []byte
	}{
		{
			name: "grayscale",
			doc: psdtest.Document{
				Width: 2, Height: 1, ColorMode: psdtest.ModeGrayscale,
				Channels: [][]byte{{0, 200}},
			},
			want: []byte{0, 0, 0, 255, 200, 200, 200, 255},
		},
		{
			name: "grayscale with alpha",
			doc: psdtest.Document{
				Width: 2, Height: 1, ColorMode: psdtest.ModeGrayscale,
				Channels: [][]byte{{10, 20}, {255, 128}},
			},
			want: []byte{10, 10, 10, 255, 20, 20, 20, 128},
		},
		{
			name: "indexed with transparency index",
			doc: psdtest.Document{
				Width: 3, Height: 1, ColorMode: psdtest.ModeIndexed,
				ColorModeData: psdtest.IndexedColorTable([][3]uint8{{255, 0, 0}, {0, 255, 0}, {0, 0, 255}}),
				Resources:     map[uint16][]byte{psdtest.ResTransparencyIndex: psdtest.TransparencyIndex(1)},
				Channels:      [][]byte{{0, 1, 2}},
			},
			want: []byte{255, 0, 0, 255, 0, 255, 0, 0, 0, 0, 255, 255},
		},
		{
			name: "cmyk",
			doc: psdtest.Document{
				Width: 2, Height: 1, ColorMode: psdtest.ModeCMYK,
				// Inverted ink: full magenta and yellow, then no ink at all.
				Channels: [][]byte{{255, 255}, {0, 255}, {0, 255}, {255, 255}},
			},
			want: []byte{255, 0, 0, 255, 255, 255, 255, 255},
		},
		{
			name: "cmyk with alpha",
			doc: psdtest.Document{
				Width: 1, Height: 1, ColorMode: psdtest.ModeCMYK,
				Channels: [][]byte{{255}, {255}, {255}, {0}, {77}},
			},
			want: []byte{0, 0, 0, 77},
		},
		{
			name: "bitmap",
			doc: psdtest.Document{
				Width: 10, Height: 1, Depth: 1, ColorMode: psdtest.ModeBitmap,
				Channels: [][]byte{{0b10100000, 0b01000000}},
			},
			want: []byte{
				0, 0, 0, 255, 255, 255, 255, 255, 0, 0, 0, 255, 255, 255, 255, 255,
				255, 255, 255, 255, 255, 255, 255, 255, 255, 255, 255, 255, 255, 255, 255, 255,
				255, 255, 255, 255, 0, 0, 0, 255,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := decode(t, tt.doc.Bytes(), contracts.CompositeAuto)
			assert.Equal(t, tt.want, buf.Pix)
		})
	}
}

func TestDecode_Lab(t *testing.T) {
	doc := psdtest.Document{
		Width: 2, Height: 1, ColorMode: psdtest.ModeLab,
		Channels: [][]byte{{255, 0}, {128, 128}, {128, 128}},
	}
	buf := decode(t, doc.Bytes(), contracts.CompositeAuto)

	white, black := psdtest.PixelAt(buf, 0, 0), psdtest.PixelAt(buf, 1, 0)
	for _, v := range []uint8{white.R, white.G, white.B} {
		assert.InDelta(t, 255, v, 1)
	}
	for _, v := range []uint8{black.R, black.G, black.B} {
		assert.InDelta(t, 0, v, 1)
	}
}

func TestDecode_HighBitDepth(t *testing.T) {
	src := gradient(3, 2)
	base := psdtest.FromNRGBA(src)

	t.Run("16-bit", func(t *testing.T) {
		doc := base
		doc.Depth = 16
		doc.Compression = psdtest.RLE
		doc.Channels = nil
		for _, p := range base.Channels {
			doc.Channels = append(doc.Channels, psdtest.Depth16(p))
		}
		assert.Equal(t, src.Pix, decode(t, doc.Bytes(), contracts.CompositeAuto).Pix)
	})

	t.Run("32-bit", func(t *testing.T) {
		doc := base
		doc.Depth = 32
		doc.Channels = nil
		for _, p := range base.Channels {
			doc.Channels = append(doc.Channels, psdtest.Depth32(p))
		}
		assert.Equal(t, src.Pix, decode(t, doc.Bytes(), contracts.CompositeAuto).Pix)
	})
}

func TestDecode_Errors(t *testing.T) {
	valid := psdtest.FromNRGBA(gradient(2, 2)).Bytes()

	withHeader := func(off int, b ...byte) []byte {
		out := append([]byte(nil), valid...)
		copy(out[off:], b)
		return out
	}

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, ErrSignature},
		{"not a psd", []byte("\x89PNG\r\n\x1a\n0000000000000000000000"), ErrSignature},
		{"unknown version", withHeader(4, 0, 3), ErrVersion},
		{"zero height", withHeader(14, 0, 0, 0, 0), ErrDimensions},
		{"zero width", withHeader(18, 0, 0, 0, 0), ErrDimensions},
		{"zero channels", withHeader(12, 0, 0), ErrChannels},
		{"unsupported depth", withHeader(22, 0, 12), ErrDepth},
		{"multichannel", withHeader(24, 0, 7), ErrColorMode},
		{"truncated image data", valid[:len(valid)-3], ErrTruncated},
		{"unknown compression", append(valid[:len(valid)-16-2:len(valid)-16-2], 0, 9), ErrCompression},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDecoder(contracts.CompositeAuto).Decode(tt.data)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDecode_TruncatedNeverPanics(t *testing.T) {
	src := gradient(3, 3)
	for _, comp := range []uint16{psdtest.Raw, psdtest.RLE, psdtest.ZIP} {
		doc := psdtest.FromNRGBA(src)
		doc.Compression = comp
		doc.MergedAlpha = true
		doc.Resources = map[uint16][]byte{psdtest.ResResolutionInfo: psdtest.ResolutionInfo(72)}
		doc.Layers = []psdtest.Layer{psdtest.LayerFromNRGBA("l", src, 200)}
		data := doc.Bytes()

		for n := 0; n < len(data); n++ {
			for _, mode := range []contracts.CompositeMode{contracts.CompositeMerged, contracts.CompositeLayers} {
				assert.NotPanics(t, func() {
					_, _ = NewDecoder(mode).Decode(data[:n])
				}, "compression %d, %d bytes", comp, n)
			}
		}
	}
}

func TestDecode_DPI(t *testing.T) {
	base := psdtest.FromNRGBA(gradient(1, 1))

	t.Run("resolution info", func(t *testing.T) {
		doc := base
		doc.Resources = map[uint16][]byte{psdtest.ResResolutionInfo: psdtest.ResolutionInfo(300)}
		img, err := NewDecoder("").Decode(doc.Bytes())
		require.NoError(t, err)
		assert.InDelta(t, 300, img.DPI, 0.01)
	})

	t.Run("exif fallback", func(t *testing.T) {
		doc := base
		doc.Resources = map[uint16][]byte{psdtest.ResEXIFData1: psdtest.EXIF(150, 150, 2)}
		img, err := NewDecoder("").Decode(doc.Bytes())
		require.NoError(t, err)
		assert.InDelta(t, 150, img.DPI, 0.01)
	})

	t.Run("none", func(t *testing.T) {
		img, err := NewDecoder("").Decode(base.Bytes())
		require.NoError(t, err)
		assert.Zero(t, img.DPI)
	})
}
