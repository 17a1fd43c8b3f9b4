package raster_writer

import (
	"bytes"
	"fmt"

	"golang.org/x/image/tiff"

	"psd2png/contracts"
)

// TIFFWriter encodes pixels as a Deflate-compressed TIFF with unassociated
// alpha. Resolution is not written.
type TIFFWriter struct {
	opts *tiff.Options
}

func NewTIFFWriter() *TIFFWriter {
	return &TIFFWriter{opts: &tiff.Options{Compression: tiff.Deflate, Predictor: true}}
}

func (w *TIFFWriter) Extension() string { return ".tiff" }

func (w *TIFFWriter) Encode(img contracts.DecodedImage) ([]byte, error) {
	if err := checkPixels(img.Pixels); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := tiff.Encode(&buf, img.Pixels.Image(), w.opts); err != nil {
		return nil, fmt.Errorf("tiff encode: %w", err)
	}
	return buf.Bytes(), nil
}
