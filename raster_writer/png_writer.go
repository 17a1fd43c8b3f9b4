package raster_writer

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"image/png"
	"io"
	"math"
	"sync"

	"psd2png/contracts"
	"psd2png/utils"
)

const (
	pngSignatureLen = 8
	// IHDR is always the first chunk: length, type, 13 data bytes, CRC.
	ihdrChunkLen = 4 + 4 + 13 + 4
)

// PNGWriter encodes straight-alpha RGBA8 pixels as PNG. Fully opaque images
// are stored without an alpha channel by image/png; pixel values are kept.
type PNGWriter struct {
	Compression     contracts.PNGCompression
	EmbedResolution bool

	enc *png.Encoder
}

func NewPNGWriter(compression contracts.PNGCompression, embedResolution bool) *PNGWriter {
	return &PNGWriter{
		Compression:     compression,
		EmbedResolution: embedResolution,
		enc: &png.Encoder{
			CompressionLevel: compressionLevel(compression),
			BufferPool:       &encoderPool{},
		},
	}
}

func (w *PNGWriter) Extension() string { return ".png" }

func (w *PNGWriter) Encode(img contracts.DecodedImage) ([]byte, error) {
	if err := checkPixels(img.Pixels); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Grow(img.Pixels.Len())
	if err := w.enc.Encode(&buf, img.Pixels.Image()); err != nil {
		return nil, fmt.Errorf("png encode: %w", err)
	}
	if !w.EmbedResolution || img.DPI <= 0 {
		return buf.Bytes(), nil
	}

	out, err := insertPHYs(buf.Bytes(), img.DPI)
	if err != nil {
		return nil, fmt.Errorf("png resolution: %w", err)
	}
	return out, nil
}

func compressionLevel(c contracts.PNGCompression) png.CompressionLevel {
	switch c {
	case contracts.PNGCompressionNone:
		return png.NoCompression
	case contracts.PNGCompressionSpeed:
		return png.BestSpeed
	case contracts.PNGCompressionBest:
		return png.BestCompression
	}
	return png.DefaultCompression
}

// encoderPool shares deflate state between the workers of a batch.
type encoderPool struct {
	pool sync.Pool
}

func (p *encoderPool) Get() *png.EncoderBuffer {
	b, _ := p.pool.Get().(*png.EncoderBuffer)
	return b
}

func (p *encoderPool) Put(b *png.EncoderBuffer) {
	p.pool.Put(b)
}

// insertPHYs returns a copy of encoded with a pHYs chunk placed right after
// IHDR, declaring dpi in pixels per meter on both axes.
func insertPHYs(encoded []byte, dpi float64) ([]byte, error) {
	head := pngSignatureLen + ihdrChunkLen
	if len(encoded) < head || string(encoded[pngSignatureLen+4:pngSignatureLen+8]) != "IHDR" {
		return nil, fmt.Errorf("unexpected PNG layout")
	}
	ppm := math.Round(dpi * utils.InchesPerMeter)
	if ppm < 1 || ppm > math.MaxUint32 {
		return nil, fmt.Errorf("resolution %.2f dpi out of range", dpi)
	}

	var data [9]byte
	binary.BigEndian.PutUint32(data[0:4], uint32(ppm))
	binary.BigEndian.PutUint32(data[4:8], uint32(ppm))
	data[8] = 1 // meter

	out := bytes.NewBuffer(make([]byte, 0, len(encoded)+12+len(data)))
	out.Write(encoded[:head])
	if err := writeChunk(out, "pHYs", data[:]); err != nil {
		return nil, err
	}
	out.Write(encoded[head:])
	return out.Bytes(), nil
}

func writeChunk(w io.Writer, typ string, data []byte) error {
	var hdr [8]byte
	binary.BigEndian.PutUint32(hdr[:4], uint32(len(data)))
	copy(hdr[4:], typ)

	crc := crc32.NewIEEE()
	crc.Write(hdr[4:])
	crc.Write(data)
	var sum [4]byte
	binary.BigEndian.PutUint32(sum[:], crc.Sum32())

	for _, b := range [][]byte{hdr[:], data, sum[:]} {
		if _, err := w.Write(b); err != nil {
			return fmt.Errorf("error writing %s chunk: %v", typ, err)
		}
	}
	return nil
}
