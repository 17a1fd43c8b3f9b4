package psd_decoder

import (
	"fmt"

	"psd2png/contracts"
)

// Document is a parsed PSD or PSB file. Pixel data is decoded on demand by
// Merged and Flatten.
type Document struct {
	Header    Header
	Resources map[uint16][]byte
	Layers    []Layer
	// MergedAlpha records a negative layer count. It is informational:
	// Merged treats the first extra channel as transparency whenever the
	// channel count exceeds what the color mode needs, flag or not.
	MergedAlpha bool

	palette   *palette
	imageData []byte
	layerErr  error
}

// Parse reads the document structure. Layer records that fail to parse do
// not fail Parse; they only make Flatten fail.
func Parse(data []byte) (*Document, error) {
	r := newReader(data, false)
	h, err := parseHeader(r)
	if err != nil {
		return nil, err
	}
	doc := &Document{Header: h}

	colorData, err := r.section(false)
	if err != nil {
		return nil, fmt.Errorf("color mode data: %w", err)
	}
	if h.ColorMode == ColorModeIndexed {
		if doc.palette, err = parsePalette(colorData.buf); err != nil {
			return nil, err
		}
	}

	resources, err := r.section(false)
	if err != nil {
		return nil, fmt.Errorf("image resources: %w", err)
	}
	if doc.Resources, err = parseResources(resources); err != nil {
		return nil, fmt.Errorf("image resources: %w", err)
	}

	layerSec, err := r.section(true)
	if err != nil {
		return nil, fmt.Errorf("layer and mask information: %w", err)
	}
	if ls, err := parseLayerSection(layerSec); err != nil {
		doc.layerErr = fmt.Errorf("layer and mask information: %w", err)
	} else {
		doc.Layers = ls.layers
		doc.MergedAlpha = ls.mergedAlpha
	}

	doc.imageData = r.buf[r.off:]
	if len(doc.imageData) < 2 {
		return nil, fmt.Errorf("image data: %w: missing", ErrTruncated)
	}
	return doc, nil
}

func (d *Document) colorSpace() colorSpace {
	return colorSpace{mode: d.Header.ColorMode, palette: d.palette, transparent: d.transparentIndex()}
}

// Merged decodes the merged image data section. When the document has more
// channels than its color mode needs, the first extra channel is alpha.
func (d *Document) Merged() (contracts.PixelBuffer, error) {
	h := d.Header
	nc := h.ColorMode.colorChannels()
	want := make([]int, 0, nc+1)
	for c := 0; c < nc; c++ {
		want = append(want, c)
	}
	hasAlpha := int(h.Channels) > nc && h.ColorMode != ColorModeBitmap && h.ColorMode != ColorModeIndexed
	if hasAlpha {
		want = append(want, nc)
	}

	decoded, err := readMergedPlanes(newReader(d.imageData, h.IsPSB()), h, want)
	if err != nil {
		return contracts.PixelBuffer{}, fmt.Errorf("image data: %w", err)
	}
	p := planes{color: decoded[:nc]}
	if hasAlpha {
		p.alpha = decoded[nc]
	}

	pix := make([]byte, h.pixels()*contracts.BytesPerPixel)
	if err := d.colorSpace().toRGBA(p, h.pixels(), pix); err != nil {
		return contracts.PixelBuffer{}, err
	}
	return contracts.NewPixelBuffer(h.Width, h.Height, pix)
}

// LayerError reports why the layer section could not be read, if it could not.
func (d *Document) LayerError() error {
	return d.layerErr
}

// Flatten composites the visible layers. Documents without layers fall back
// to the merged image.
func (d *Document) Flatten() (contracts.PixelBuffer, error) {
	if d.layerErr != nil {
		return contracts.PixelBuffer{}, d.layerErr
	}
	if len(d.Layers) == 0 {
		return d.Merged()
	}
	img, err := flattenLayers(d.Header, d.colorSpace(), d.Layers)
	if err != nil {
		return contracts.PixelBuffer{}, err
	}
	return contracts.NewPixelBuffer(d.Header.Width, d.Header.Height, img.Pix)
}

// Decoder implements contracts.Decoder for PSD and PSB documents.
type Decoder struct {
	Composite contracts.CompositeMode
}

func NewDecoder(mode contracts.CompositeMode) *Decoder {
	if mode == "" {
		mode = contracts.CompositeAuto
	}
	return &Decoder{Composite: mode}
}

func (dec *Decoder) Decode(data []byte) (contracts.DecodedImage, error) {
	doc, err := Parse(data)
	if err != nil {
		return contracts.DecodedImage{}, err
	}

	var buf contracts.PixelBuffer
	if dec.useLayers(doc) {
		buf, err = doc.Flatten()
	} else {
		buf, err = doc.Merged()
	}
	if err != nil {
		return contracts.DecodedImage{}, err
	}
	return contracts.DecodedImage{Pixels: buf, DPI: doc.DPI()}, nil
}

func (dec *Decoder) useLayers(doc *Document) bool {
	switch dec.Composite {
	case contracts.CompositeLayers:
		return true
	case contracts.CompositeMerged:
		return false
	}
	return !doc.HasRealMergedData() && len(doc.Layers) > 0
}
