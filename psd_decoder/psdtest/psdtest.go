// Package psdtest writes small PSD and PSB documents for tests. It covers
// the parts of the format the decoder reads: header, indexed color table,
// image resources, layer records with channel data, and the merged image in
// raw, RLE or ZIP form.
package psdtest

import (
	"bytes"
	"encoding/binary"
	"image"
	"sort"
	"unicode/utf16"

	"github.com/klauspost/compress/zlib"
)

const (
	ModeBitmap    = 0
	ModeGrayscale = 1
	ModeIndexed   = 2
	ModeRGB       = 3
	ModeCMYK      = 4
	ModeLab       = 9

	Raw        = 0
	RLE        = 1
	ZIP        = 2
	ZIPPredict = 3
)

// Layer describes one layer record. Channels holds raw planes at the
// document depth keyed by channel ID (0.. color, -1 transparency).
type Layer struct {
	Name      string
	Rect      image.Rectangle
	Opacity   uint8
	Hidden    bool
	BlendMode string
	Divider   uint32
	Channels  map[int16][]byte
}

// Document describes a whole file. Zero values pick PSD version 1, 8-bit
// RGB and raw compression.
type Document struct {
	Version       uint16
	Width, Height uint32
	Depth         uint16
	ColorMode     uint16
	Compression   uint16
	ColorModeData []byte
	Resources     map[uint16][]byte
	Layers        []Layer
	MergedAlpha   bool
	// Channels are the merged image planes at Depth.
	Channels [][]byte
}

func (d Document) psb() bool { return d.Version == 2 }

func (d Document) depth() int {
	if d.Depth == 0 {
		return 8
	}
	return int(d.Depth)
}

func (d Document) rowBytes(width int) int {
	return (width*d.depth() + 7) / 8
}

// Bytes serializes the document.
func (d Document) Bytes() []byte {
	if d.Version == 0 {
		d.Version = 1
	}
	if d.Depth == 0 {
		d.Depth = 8
	}
	mode := d.ColorMode
	if mode == ModeBitmap && d.Depth != 1 {
		mode = ModeRGB
	}

	var b bytes.Buffer
	b.WriteString("8BPS")
	put16(&b, d.Version)
	b.Write(make([]byte, 6))
	put16(&b, uint16(len(d.Channels)))
	put32(&b, d.Height)
	put32(&b, d.Width)
	put16(&b, d.Depth)
	put16(&b, mode)

	put32(&b, uint32(len(d.ColorModeData)))
	b.Write(d.ColorModeData)

	res := d.resources()
	put32(&b, uint32(len(res)))
	b.Write(res)

	layers := d.layerSection()
	d.putLength(&b, len(layers))
	b.Write(layers)

	b.Write(d.imageData())
	return b.Bytes()
}

func (d Document) resources() []byte {
	ids := make([]int, 0, len(d.Resources))
	for id := range d.Resources {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)

	var b bytes.Buffer
	for _, id := range ids {
		data := d.Resources[uint16(id)]
		b.WriteString("8BIM")
		put16(&b, uint16(id))
		b.Write([]byte{0, 0}) // empty name, padded to even
		put32(&b, uint32(len(data)))
		b.Write(data)
		if len(data)%2 == 1 {
			b.WriteByte(0)
		}
	}
	return b.Bytes()
}

func (d Document) layerSection() []byte {
	if len(d.Layers) == 0 && !d.MergedAlpha {
		return nil
	}
	var info bytes.Buffer
	count := int16(len(d.Layers))
	if d.MergedAlpha {
		count = -count
	}
	put16(&info, uint16(count))

	channelData := make([][][]byte, len(d.Layers))
	for i, l := range d.Layers {
		ids := channelIDs(l)
		channelData[i] = make([][]byte, len(ids))

		put32(&info, uint32(int32(l.Rect.Min.Y)))
		put32(&info, uint32(int32(l.Rect.Min.X)))
		put32(&info, uint32(int32(l.Rect.Max.Y)))
		put32(&info, uint32(int32(l.Rect.Max.X)))
		put16(&info, uint16(len(ids)))
		for j, id := range ids {
			data := d.encodeChannel(l.Channels[id], l.Rect.Dx(), l.Rect.Dy())
			channelData[i][j] = data
			put16(&info, uint16(id))
			d.putLength(&info, len(data))
		}

		info.WriteString("8BIM")
		blend := l.BlendMode
		if blend == "" {
			blend = "norm"
		}
		info.WriteString(blend)
		info.WriteByte(l.Opacity)
		info.WriteByte(0) // clipping
		var flags byte
		if l.Hidden {
			flags |= 0x02
		}
		info.WriteByte(flags)
		info.WriteByte(0)

		extra := layerExtra(l)
		put32(&info, uint32(len(extra)))
		info.Write(extra)
	}
	for _, chans := range channelData {
		for _, data := range chans {
			info.Write(data)
		}
	}
	if info.Len()%2 == 1 {
		info.WriteByte(0)
	}

	var b bytes.Buffer
	d.putLength(&b, info.Len())
	b.Write(info.Bytes())
	put32(&b, 0) // global layer mask info
	return b.Bytes()
}

func channelIDs(l Layer) []int16 {
	ids := make([]int, 0, len(l.Channels))
	for id := range l.Channels {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)
	out := make([]int16, len(ids))
	for i, id := range ids {
		out[i] = int16(id)
	}
	return out
}

func layerExtra(l Layer) []byte {
	var b bytes.Buffer
	put32(&b, 0) // layer mask
	put32(&b, 0) // blending ranges

	name := l.Name
	if len(name) > 255 {
		name = name[:255]
	}
	b.WriteByte(byte(len(name)))
	b.WriteString(name)
	b.Write(make([]byte, (4-(1+len(name))%4)%4))

	units := utf16.Encode([]rune(l.Name))
	var uni bytes.Buffer
	put32(&uni, uint32(len(units)))
	for _, u := range units {
		put16(&uni, u)
	}
	if uni.Len()%4 != 0 {
		uni.Write(make([]byte, 4-uni.Len()%4))
	}
	b.WriteString("8BIMluni")
	put32(&b, uint32(uni.Len()))
	b.Write(uni.Bytes())

	if l.Divider != 0 {
		b.WriteString("8BIMlsct")
		put32(&b, 4)
		put32(&b, l.Divider)
	}
	return b.Bytes()
}

// encodeChannel writes one layer channel: compression tag plus payload.
func (d Document) encodeChannel(plane []byte, width, height int) []byte {
	var b bytes.Buffer
	put16(&b, d.Compression)
	rb := d.rowBytes(width)
	switch d.Compression {
	case RLE:
		rows := make([][]byte, height)
		for y := range rows {
			rows[y] = PackBits(plane[y*rb : (y+1)*rb])
			d.putCount(&b, len(rows[y]))
		}
		for _, row := range rows {
			b.Write(row)
		}
	case ZIP, ZIPPredict:
		b.Write(d.deflate(plane, width, height))
	default:
		b.Write(plane)
	}
	return b.Bytes()
}

func (d Document) imageData() []byte {
	var b bytes.Buffer
	put16(&b, d.Compression)
	w, h := int(d.Width), int(d.Height)
	rb := d.rowBytes(w)
	switch d.Compression {
	case RLE:
		var rows [][]byte
		for _, plane := range d.Channels {
			for y := 0; y < h; y++ {
				row := PackBits(plane[y*rb : (y+1)*rb])
				rows = append(rows, row)
				d.putCount(&b, len(row))
			}
		}
		for _, row := range rows {
			b.Write(row)
		}
	case ZIP, ZIPPredict:
		var all []byte
		for _, plane := range d.Channels {
			all = append(all, plane...)
		}
		b.Write(d.deflate(all, w, h*len(d.Channels)))
	default:
		for _, plane := range d.Channels {
			b.Write(plane)
		}
	}
	return b.Bytes()
}

// deflate compresses planar data, applying per-row byte deltas first for
// ZIPPredict. Prediction is only produced for 8-bit data.
func (d Document) deflate(data []byte, width, height int) []byte {
	src := data
	if d.Compression == ZIPPredict {
		rb := d.rowBytes(width)
		src = make([]byte, len(data))
		for y := 0; y < height; y++ {
			row := data[y*rb : (y+1)*rb]
			out := src[y*rb : (y+1)*rb]
			for i := range row {
				if i == 0 {
					out[i] = row[i]
				} else {
					out[i] = row[i] - row[i-1]
				}
			}
		}
	}
	var b bytes.Buffer
	zw := zlib.NewWriter(&b)
	zw.Write(src)
	zw.Close()
	return b.Bytes()
}

func (d Document) putLength(b *bytes.Buffer, n int) {
	if d.psb() {
		put64(b, uint64(n))
		return
	}
	put32(b, uint32(n))
}

func (d Document) putCount(b *bytes.Buffer, n int) {
	if d.psb() {
		put32(b, uint32(n))
		return
	}
	put16(b, uint16(n))
}

// PackBits run-length encodes one row.
func PackBits(row []byte) []byte {
	var out []byte
	i := 0
	for i < len(row) {
		run := 1
		for i+run < len(row) && run < 128 && row[i+run] == row[i] {
			run++
		}
		if run >= 3 {
			out = append(out, byte(int8(1-run)), row[i])
			i += run
			continue
		}
		start := i
		for i < len(row) && i-start < 128 {
			if i+2 < len(row) && row[i] == row[i+1] && row[i] == row[i+2] {
				break
			}
			i++
		}
		out = append(out, byte(i-start-1))
		out = append(out, row[start:i]...)
	}
	return out
}

func put16(b *bytes.Buffer, v uint16) {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	b.Write(buf[:])
}

func put32(b *bytes.Buffer, v uint32) {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	b.Write(buf[:])
}

func put64(b *bytes.Buffer, v uint64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	b.Write(buf[:])
}
