package raster_writer

import (
	"errors"
	"fmt"

	"psd2png/contracts"
)

// ErrEmptyImage is returned for a pixel buffer with a zero dimension; no
// target format can represent it.
var ErrEmptyImage = errors.New("image has zero width or height")

// New returns the encoder for format.
func New(format contracts.OutputFormat, compression contracts.PNGCompression, embedResolution bool) (contracts.Encoder, error) {
	switch format {
	case contracts.FormatPNG, "":
		return NewPNGWriter(compression, embedResolution), nil
	case contracts.FormatTIFF:
		return NewTIFFWriter(), nil
	}
	return nil, fmt.Errorf("unsupported output format %q", format)
}

func checkPixels(buf contracts.PixelBuffer) error {
	if buf.Width == 0 || buf.Height == 0 {
		return fmt.Errorf("%w: %dx%d", ErrEmptyImage, buf.Width, buf.Height)
	}
	return buf.Validate()
}
