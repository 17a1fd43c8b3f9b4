package psd_decoder

import (
	"errors"
	"fmt"
)

const (
	signature  = "8BPS"
	versionPSD = 1
	versionPSB = 2

	maxDimensionPSD = 30000
	maxDimensionPSB = 300000
	maxChannels     = 56
)

var (
	ErrSignature   = errors.New("not a PSD document")
	ErrVersion     = errors.New("unsupported PSD version")
	ErrDimensions  = errors.New("invalid document dimensions")
	ErrChannels    = errors.New("invalid channel count")
	ErrDepth       = errors.New("unsupported bit depth")
	ErrColorMode   = errors.New("unsupported color mode")
	ErrCompression = errors.New("unsupported compression")
	ErrTruncated   = errors.New("truncated data")
	ErrCorrupt     = errors.New("corrupt data")
)

// Header is the fixed 26-byte file header.
type Header struct {
	Version   uint16
	Channels  uint16
	Height    uint32
	Width     uint32
	Depth     uint16
	ColorMode ColorMode
}

func (h Header) IsPSB() bool {
	return h.Version == versionPSB
}

func (h Header) pixels() int {
	return int(h.Width) * int(h.Height)
}

func parseHeader(r *reader) (Header, error) {
	sig, err := r.bytes(4)
	if err != nil {
		return Header{}, fmt.Errorf("%w: %v", ErrSignature, err)
	}
	if string(sig) != signature {
		return Header{}, fmt.Errorf("%w: signature %q", ErrSignature, sig)
	}

	var h Header
	if h.Version, err = r.u16(); err != nil {
		return Header{}, err
	}
	if h.Version != versionPSD && h.Version != versionPSB {
		return Header{}, fmt.Errorf("%w: %d", ErrVersion, h.Version)
	}
	r.psb = h.Version == versionPSB

	if err := r.skip(6); err != nil { // reserved
		return Header{}, err
	}
	if h.Channels, err = r.u16(); err != nil {
		return Header{}, err
	}
	if h.Height, err = r.u32(); err != nil {
		return Header{}, err
	}
	if h.Width, err = r.u32(); err != nil {
		return Header{}, err
	}
	if h.Depth, err = r.u16(); err != nil {
		return Header{}, err
	}
	mode, err := r.u16()
	if err != nil {
		return Header{}, err
	}
	h.ColorMode = ColorMode(mode)

	return h, h.validate()
}

func (h Header) validate() error {
	limit := uint32(maxDimensionPSD)
	if h.IsPSB() {
		limit = maxDimensionPSB
	}
	if h.Width == 0 || h.Height == 0 || h.Width > limit || h.Height > limit {
		return fmt.Errorf("%w: %dx%d", ErrDimensions, h.Width, h.Height)
	}
	if h.Channels == 0 || h.Channels > maxChannels {
		return fmt.Errorf("%w: %d", ErrChannels, h.Channels)
	}
	switch h.Depth {
	case 1:
		if h.ColorMode != ColorModeBitmap {
			return fmt.Errorf("%w: 1-bit %s", ErrDepth, h.ColorMode)
		}
	case 8, 16, 32:
		if h.ColorMode == ColorModeBitmap {
			return fmt.Errorf("%w: %d-bit bitmap", ErrDepth, h.Depth)
		}
	default:
		return fmt.Errorf("%w: %d", ErrDepth, h.Depth)
	}
	if !h.ColorMode.supported() {
		return fmt.Errorf("%w: %s", ErrColorMode, h.ColorMode)
	}
	if int(h.Channels) < h.ColorMode.colorChannels() {
		return fmt.Errorf("%w: %s needs %d channels, document has %d",
			ErrChannels, h.ColorMode, h.ColorMode.colorChannels(), h.Channels)
	}
	return nil
}
