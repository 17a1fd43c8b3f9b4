package psd_decoder

import (
	"fmt"
	"image"
	"unicode/utf16"
)

// Layer flag bits.
const (
	flagHidden = 0x02
)

// Section divider types from the lsct/lsdk blocks.
const (
	dividerNone         = 0
	dividerOpenFolder   = 1
	dividerClosedFolder = 2
	dividerBounding     = 3
)

// Channel IDs with special meaning inside a layer record.
const (
	channelTransparency = -1
	channelUserMask     = -2
	channelRealMask     = -3
)

// Layer is one record of the layer info section. Records are stored bottom
// layer first.
type Layer struct {
	Name      string
	Rect      image.Rectangle
	BlendMode string
	Opacity   uint8
	Clipping  uint8
	Flags     uint8
	Divider   int

	channels []layerChannel
	raw      map[int16][]byte
}

type layerChannel struct {
	id     int16
	length int
}

func (l *Layer) Hidden() bool {
	return l.Flags&flagHidden != 0
}

// IsGroupStart reports whether the record opens a group when walking top-down.
func (l *Layer) IsGroupStart() bool {
	return l.Divider == dividerOpenFolder || l.Divider == dividerClosedFolder
}

// IsGroupEnd reports whether the record is the hidden marker closing a group.
func (l *Layer) IsGroupEnd() bool {
	return l.Divider == dividerBounding
}

// Tagged block keys whose length is 8 bytes wide in PSB documents.
var wideKeys = map[string]bool{
	"LMsk": true, "Lr16": true, "Lr32": true, "Layr": true, "Mt16": true,
	"Mt32": true, "Mtrn": true, "Alph": true, "FMsk": true, "lnk2": true,
	"FEid": true, "FXid": true, "PxSD": true,
}

type taggedBlock struct {
	key  string
	data []byte
}

// readTaggedBlocks reads 8BIM/8B64 additional info blocks until the reader
// is exhausted or an unknown signature appears.
func readTaggedBlocks(r *reader) ([]taggedBlock, error) {
	var blocks []taggedBlock
	for r.remaining() >= 12 {
		sig, err := r.bytes(4)
		if err != nil {
			return nil, err
		}
		if string(sig) != "8BIM" && string(sig) != "8B64" {
			break // padding or data we do not understand
		}
		key, err := r.bytes(4)
		if err != nil {
			return nil, err
		}
		body, err := r.section(wideKeys[string(key)])
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, taggedBlock{key: string(key), data: body.buf})
	}
	return blocks, nil
}

// parseLayerInfo reads a layer info body: the layer count, every layer
// record, then the channel image data of each layer in record order.
// A negative count means the first alpha channel of the merged image holds
// the merged transparency.
func parseLayerInfo(r *reader) ([]Layer, bool, error) {
	if r.remaining() == 0 {
		return nil, false, nil
	}
	count, err := r.i16()
	if err != nil {
		return nil, false, err
	}
	mergedAlpha := count < 0
	n := int(count)
	if n < 0 {
		n = -n
	}

	layers := make([]Layer, 0, n)
	for i := 0; i < n; i++ {
		l, err := parseLayerRecord(r)
		if err != nil {
			return nil, mergedAlpha, fmt.Errorf("layer record %d: %w", i, err)
		}
		layers = append(layers, l)
	}

	for i := range layers {
		if err := layers[i].readChannelData(r); err != nil {
			return nil, mergedAlpha, fmt.Errorf("layer %d (%q) channel data: %w", i, layers[i].Name, err)
		}
	}
	return layers, mergedAlpha, nil
}

func parseLayerRecord(r *reader) (Layer, error) {
	var l Layer
	var rect [4]int32
	for i := range rect {
		v, err := r.i32()
		if err != nil {
			return l, err
		}
		rect[i] = v
	}
	// top, left, bottom, right
	l.Rect = image.Rect(int(rect[1]), int(rect[0]), int(rect[3]), int(rect[2]))
	if rect[2] < rect[0] || rect[3] < rect[1] {
		return l, fmt.Errorf("%w: layer bounds %v", ErrCorrupt, rect)
	}
	limit := maxDimensionPSD
	if r.psb {
		limit = maxDimensionPSB
	}
	w, h := int64(rect[3])-int64(rect[1]), int64(rect[2])-int64(rect[0])
	if w > int64(limit) || h > int64(limit) {
		return l, fmt.Errorf("%w: layer of %dx%d exceeds %d pixels per side", ErrCorrupt, w, h, limit)
	}

	nch, err := r.u16()
	if err != nil {
		return l, err
	}
	if nch > maxChannels {
		return l, fmt.Errorf("%w: layer with %d channels", ErrChannels, nch)
	}
	l.channels = make([]layerChannel, nch)
	for i := range l.channels {
		id, err := r.i16()
		if err != nil {
			return l, err
		}
		length, err := r.length(true)
		if err != nil {
			return l, err
		}
		l.channels[i] = layerChannel{id: id, length: length}
	}

	sig, err := r.bytes(4)
	if err != nil {
		return l, err
	}
	if string(sig) != "8BIM" {
		return l, fmt.Errorf("%w: blend mode signature %q", ErrCorrupt, sig)
	}
	key, err := r.bytes(4)
	if err != nil {
		return l, err
	}
	l.BlendMode = string(key)
	if l.Opacity, err = r.u8(); err != nil {
		return l, err
	}
	if l.Clipping, err = r.u8(); err != nil {
		return l, err
	}
	if l.Flags, err = r.u8(); err != nil {
		return l, err
	}
	if err := r.skip(1); err != nil { // filler
		return l, err
	}

	extra, err := r.section(false)
	if err != nil {
		return l, err
	}
	if err := l.parseExtra(extra); err != nil {
		return l, err
	}
	return l, nil
}

// parseExtra reads the layer mask, blending ranges, name and the
// additional layer information blocks.
func (l *Layer) parseExtra(r *reader) error {
	if _, err := r.section(false); err != nil { // layer mask data
		return err
	}
	if _, err := r.section(false); err != nil { // blending ranges
		return err
	}
	name, err := r.pascalString(4)
	if err != nil {
		return err
	}
	l.Name = name

	blocks, err := readTaggedBlocks(r)
	if err != nil {
		return err
	}
	for _, b := range blocks {
		switch b.key {
		case "luni":
			if s, ok := unicodeString(b.data); ok {
				l.Name = s
			}
		case "lsct", "lsdk":
			if len(b.data) >= 4 {
				l.Divider = int(uint32(b.data[0])<<24 | uint32(b.data[1])<<16 | uint32(b.data[2])<<8 | uint32(b.data[3]))
			}
		}
	}
	return nil
}

// unicodeString decodes a 4-byte length followed by UTF-16BE code units.
func unicodeString(data []byte) (string, bool) {
	r := newReader(data, false)
	n, err := r.u32()
	if err != nil || int(n) > r.remaining()/2 {
		return "", false
	}
	units := make([]uint16, n)
	for i := range units {
		units[i], _ = r.u16()
	}
	for len(units) > 0 && units[len(units)-1] == 0 {
		units = units[:len(units)-1]
	}
	return string(utf16.Decode(units)), true
}

// readChannelData slices this layer's channel blocks out of r. Mask
// channels are dropped; the rest are decoded on demand by decodePlanes.
func (l *Layer) readChannelData(r *reader) error {
	l.raw = make(map[int16][]byte)
	for _, ch := range l.channels {
		data, err := r.bytes(ch.length)
		if err != nil {
			return err
		}
		if ch.id == channelUserMask || ch.id == channelRealMask {
			continue
		}
		if len(data) < 2 {
			return fmt.Errorf("%w: channel %d has %d bytes", ErrTruncated, ch.id, len(data))
		}
		l.raw[ch.id] = data
	}
	return nil
}

// decodePlanes decodes the color planes and the transparency plane of the
// layer at 8 bits per sample.
func (l *Layer) decodePlanes(colorChannels, depth int, psb bool) (planes, error) {
	w, h := l.Rect.Dx(), l.Rect.Dy()
	var p planes
	for id := 0; id < colorChannels; id++ {
		data, ok := l.raw[int16(id)]
		if !ok {
			return p, fmt.Errorf("%w: layer %q lacks color channel %d", ErrCorrupt, l.Name, id)
		}
		plane, err := readPlane(newReader(data, psb), w, h, depth)
		if err != nil {
			return p, fmt.Errorf("layer %q channel %d: %w", l.Name, id, err)
		}
		p.color = append(p.color, plane)
	}
	if data, ok := l.raw[channelTransparency]; ok {
		plane, err := readPlane(newReader(data, psb), w, h, depth)
		if err != nil {
			return p, fmt.Errorf("layer %q transparency: %w", l.Name, err)
		}
		p.alpha = plane
	}
	return p, nil
}

// layerSection holds the parsed layer and mask information section.
type layerSection struct {
	layers      []Layer
	mergedAlpha bool
}

// parseLayerSection reads the layer and mask information body. 16- and
// 32-bit documents may keep their layers in Lr16/Lr32 blocks instead of the
// main layer info.
func parseLayerSection(r *reader) (layerSection, error) {
	var ls layerSection
	if r.remaining() == 0 {
		return ls, nil
	}
	info, err := r.section(true)
	if err != nil {
		return ls, err
	}
	if ls.layers, ls.mergedAlpha, err = parseLayerInfo(info); err != nil {
		return ls, err
	}

	if r.remaining() >= 4 {
		if _, err := r.section(false); err != nil { // global layer mask info
			return ls, err
		}
	}
	if len(ls.layers) > 0 {
		return ls, nil
	}

	blocks, err := readTaggedBlocks(r)
	if err != nil {
		return ls, err
	}
	for _, b := range blocks {
		if b.key != "Lr16" && b.key != "Lr32" && b.key != "Layr" {
			continue
		}
		layers, mergedAlpha, err := parseLayerInfo(newReader(b.data, r.psb))
		if err != nil {
			return ls, fmt.Errorf("%s: %w", b.key, err)
		}
		ls.layers = layers
		ls.mergedAlpha = ls.mergedAlpha || mergedAlpha
		break
	}
	return ls, nil
}
