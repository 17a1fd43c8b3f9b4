package psd_decoder

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"psd2png/contracts"
	"psd2png/psd_decoder/psdtest"
)

// layeredDoc builds a 4x4 document whose merged image is solid white so
// tests can tell merged data from flattened layers.
func layeredDoc(realMerged bool, layers ...psdtest.Layer) psdtest.Document {
	doc := psdtest.FromNRGBA(psdtest.Fill(image.Rect(0, 0, 4, 4), 255, 255, 255, 255))
	doc.MergedAlpha = true
	doc.Resources = map[uint16][]byte{psdtest.ResVersionInfo: psdtest.VersionInfo(realMerged)}
	doc.Layers = layers
	return doc
}

func TestFlatten_OpacityAndOffsets(t *testing.T) {
	blue := psdtest.LayerFromNRGBA("blue", psdtest.Fill(image.Rect(0, 0, 4, 4), 0, 0, 255, 255), 255)
	red := psdtest.LayerFromNRGBA("red", psdtest.Fill(image.Rect(2, 2, 6, 6), 255, 0, 0, 255), 128)

	buf := decode(t, layeredDoc(false, blue, red).Bytes(), contracts.CompositeAuto)

	assert.Equal(t, [4]uint8{0, 0, 255, 255}, rgba(buf, 0, 0))

	mixed := rgba(buf, 3, 3)
	assert.InDelta(t, 128, mixed[0], 1)
	assert.InDelta(t, 0, mixed[1], 1)
	assert.InDelta(t, 127, mixed[2], 1)
	assert.Equal(t, uint8(255), mixed[3])
}

func TestFlatten_CompositeModeSelection(t *testing.T) {
	green := psdtest.LayerFromNRGBA("green", psdtest.Fill(image.Rect(0, 0, 4, 4), 0, 255, 0, 255), 255)

	tests := []struct {
		name string
		real bool
		mode contracts.CompositeMode
		want [4]uint8
	}{
		{"auto uses real merged data", true, contracts.CompositeAuto, [4]uint8{255, 255, 255, 255}},
		{"auto flattens when merged data is not real", false, contracts.CompositeAuto, [4]uint8{0, 255, 0, 255}},
		{"merged ignores layers", false, contracts.CompositeMerged, [4]uint8{255, 255, 255, 255}},
		{"layers ignores merged data", true, contracts.CompositeLayers, [4]uint8{0, 255, 0, 255}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := decode(t, layeredDoc(tt.real, green).Bytes(), tt.mode)
			assert.Equal(t, tt.want, rgba(buf, 1, 1))
		})
	}
}

func TestFlatten_Visibility(t *testing.T) {
	full := image.Rect(0, 0, 4, 4)
	bottom := psdtest.LayerFromNRGBA("bottom", psdtest.Fill(full, 10, 10, 10, 255), 255)

	hidden := psdtest.LayerFromNRGBA("hidden", psdtest.Fill(full, 200, 0, 0, 255), 255)
	hidden.Hidden = true

	// A group is stored as: bounding divider, children, folder record.
	groupEnd := psdtest.Layer{Name: "</Layer group>", Divider: 3, Opacity: 255}
	child := psdtest.LayerFromNRGBA("child", psdtest.Fill(full, 0, 200, 0, 255), 255)
	folder := psdtest.Layer{Name: "group", Divider: 1, Opacity: 255, Hidden: true}

	buf := decode(t, layeredDoc(false, bottom, groupEnd, child, folder, hidden).Bytes(), contracts.CompositeLayers)
	assert.Equal(t, [4]uint8{10, 10, 10, 255}, rgba(buf, 2, 2))

	folder.Hidden = false
	buf = decode(t, layeredDoc(false, bottom, groupEnd, child, folder, hidden).Bytes(), contracts.CompositeLayers)
	assert.Equal(t, [4]uint8{0, 200, 0, 255}, rgba(buf, 2, 2))
}

func TestFlatten_EmptyCanvasIsTransparent(t *testing.T) {
	hidden := psdtest.LayerFromNRGBA("hidden", psdtest.Fill(image.Rect(0, 0, 4, 4), 1, 2, 3, 255), 255)
	hidden.Hidden = true

	buf := decode(t, layeredDoc(false, hidden).Bytes(), contracts.CompositeLayers)
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			assert.Zero(t, psdtest.PixelAt(buf, x, y).A)
		}
	}
}

func TestParse_LayerRecords(t *testing.T) {
	a := psdtest.LayerFromNRGBA("Hintergrund", psdtest.Fill(image.Rect(0, 0, 4, 4), 1, 1, 1, 255), 255)
	b := psdtest.LayerFromNRGBA("Ébauche ✏", psdtest.Fill(image.Rect(-2, 1, 3, 3), 1, 1, 1, 255), 90)
	b.BlendMode = "mul "

	doc, err := Parse(layeredDoc(true, a, b).Bytes())
	require.NoError(t, err)
	require.Len(t, doc.Layers, 2)

	assert.True(t, doc.MergedAlpha)
	assert.Equal(t, "Hintergrund", doc.Layers[0].Name)
	assert.Equal(t, "Ébauche ✏", doc.Layers[1].Name)
	assert.Equal(t, image.Rect(-2, 1, 3, 3), doc.Layers[1].Rect)
	assert.Equal(t, uint8(90), doc.Layers[1].Opacity)
	assert.Equal(t, "mul ", doc.Layers[1].BlendMode)
	assert.True(t, doc.HasRealMergedData())
}

func TestParse_CorruptLayersOnlyFailFlatten(t *testing.T) {
	layer := psdtest.LayerFromNRGBA("l", psdtest.Fill(image.Rect(0, 0, 4, 4), 9, 9, 9, 255), 255)
	// Drop the transparency plane's bytes so the channel data runs short.
	layer.Channels[-1] = layer.Channels[-1][:3]
	data := layeredDoc(true, layer).Bytes()

	doc, err := Parse(data)
	require.NoError(t, err)

	_, err = doc.Merged()
	require.NoError(t, err)

	_, err = doc.Flatten()
	assert.ErrorIs(t, err, ErrTruncated)
}

func rgba(buf contracts.PixelBuffer, x, y int) [4]uint8 {
	c := psdtest.PixelAt(buf, x, y)
	return [4]uint8{c.R, c.G, c.B, c.A}
}

func TestFlatten_SingleLayerKeepsExactColors(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 1))
	copy(img.Pix, []byte{
		1, 200, 90, 3,
		255, 7, 13, 1,
		33, 66, 99, 128,
		250, 251, 252, 255,
	})

	buf := decode(t, layeredDoc(false, psdtest.LayerFromNRGBA("faint", img, 255)).Bytes(), contracts.CompositeLayers)
	assert.Equal(t, img.Pix, buf.Pix[:len(img.Pix)])
}

func TestFlatten_OpacityOverTransparentKeepsColor(t *testing.T) {
	img := psdtest.Fill(image.Rect(0, 0, 4, 4), 17, 140, 230, 200)

	buf := decode(t, layeredDoc(false, psdtest.LayerFromNRGBA("half", img, 128)).Bytes(), contracts.CompositeLayers)
	assert.Equal(t, [4]uint8{17, 140, 230, 100}, rgba(buf, 2, 2))
}

func TestFlatten_OversizedLayerIsRejected(t *testing.T) {
	doc := psdtest.Document{
		Width:     2,
		Height:    2,
		Depth:     32,
		ColorMode: psdtest.ModeRGB,
		Channels: [][]byte{
			psdtest.Depth32(psdtest.Plane(4, 0)),
			psdtest.Depth32(psdtest.Plane(4, 0)),
			psdtest.Depth32(psdtest.Plane(4, 0)),
		},
		Layers: []psdtest.Layer{{
			Name:     "huge",
			Rect:     image.Rect(-1<<30, -1<<30, 1<<30, 1<<30),
			Opacity:  255,
			Channels: map[int16][]byte{0: nil, 1: nil, 2: nil},
		}},
	}
	data := doc.Bytes()

	assert.NotPanics(t, func() {
		_, err := NewDecoder(contracts.CompositeLayers).Decode(data)
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	// The merged image is still usable.
	buf := decode(t, data, contracts.CompositeMerged)
	assert.Equal(t, [4]uint8{0, 0, 0, 255}, rgba(buf, 1, 1))
}
