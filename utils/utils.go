package utils

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/dsoprea/go-exif/v3"
	exifcommon "github.com/dsoprea/go-exif/v3/common"
)

const (
	pngSignature = "\x89PNG\r\n\x1a\n"
	physChunk    = "pHYs"

	// InchesPerMeter converts pixels-per-meter to DPI.
	InchesPerMeter = 39.3700787
)

// ErrNoResolution is returned when a blob carries no usable resolution.
var ErrNoResolution = errors.New("no resolution found")

// DPIFromEXIF reads XResolution/YResolution from a raw EXIF blob, honouring
// ResolutionUnit (2 = inch, 3 = centimeter).
func DPIFromEXIF(data []byte) (dpiX float64, dpiY float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			dpiX, dpiY, err = 0, 0, fmt.Errorf("malformed EXIF: %v", r)
		}
	}()

	rawExif, err := exif.SearchAndExtractExif(data)
	if err != nil {
		return 0, 0, fmt.Errorf("EXIF not found: %w", err)
	}

	im := exifcommon.NewIfdMapping()
	ti := exif.NewTagIndex()
	if err := exifcommon.LoadStandardIfds(im); err != nil {
		return 0, 0, err
	}

	_, index, err := exif.Collect(im, ti, rawExif)
	if err != nil {
		return 0, 0, err
	}

	dpiX = rationalTag(index.RootIfd, "XResolution")
	dpiY = rationalTag(index.RootIfd, "YResolution")
	if dpiX <= 0 {
		return 0, 0, ErrNoResolution
	}
	if dpiY <= 0 {
		dpiY = dpiX
	}

	if tag, err := index.RootIfd.FindTagWithName("ResolutionUnit"); err == nil && len(tag) > 0 {
		if val, err := tag[0].Value(); err == nil {
			if u, ok := val.([]uint16); ok && len(u) > 0 && u[0] == 3 {
				dpiX *= 2.54
				dpiY *= 2.54
			}
		}
	}

	return dpiX, dpiY, nil
}

func rationalTag(ifd *exif.Ifd, name string) float64 {
	tag, err := ifd.FindTagWithName(name)
	if err != nil || len(tag) == 0 {
		return 0
	}
	val, err := tag[0].Value()
	if err != nil {
		return 0
	}
	rats, ok := val.([]exifcommon.Rational)
	if !ok || len(rats) == 0 || rats[0].Denominator == 0 {
		return 0
	}
	return float64(rats[0].Numerator) / float64(rats[0].Denominator)
}

// DPIFromPNG scans the chunks of a PNG stream for pHYs and returns its
// horizontal resolution. ok is false when the chunk is absent or the unit is
// unknown.
func DPIFromPNG(data []byte) (dpi float64, ok bool, err error) {
	if !bytes.HasPrefix(data, []byte(pngSignature)) {
		return 0, false, fmt.Errorf("not a PNG stream")
	}
	buf := bytes.NewReader(data[len(pngSignature):])

	for {
		var length uint32
		if err := binary.Read(buf, binary.BigEndian, &length); err != nil {
			break
		}

		chunkType := make([]byte, 4)
		if _, err := io.ReadFull(buf, chunkType); err != nil {
			break
		}

		if string(chunkType) == physChunk {
			var pxPerUnitX, pxPerUnitY uint32
			var unit byte

			if err := binary.Read(buf, binary.BigEndian, &pxPerUnitX); err != nil {
				return 0, false, err
			}
			if err := binary.Read(buf, binary.BigEndian, &pxPerUnitY); err != nil {
				return 0, false, err
			}
			if err := binary.Read(buf, binary.BigEndian, &unit); err != nil {
				return 0, false, err
			}
			if unit == 1 {
				return float64(pxPerUnitX) / InchesPerMeter, true, nil
			}
			return 0, false, nil // unit = 0 (unknown)
		}
		if string(chunkType) == "IDAT" || string(chunkType) == "IEND" {
			break // pHYs must precede IDAT
		}

		// skip chunk data + CRC
		if _, err := buf.Seek(int64(length)+4, io.SeekCurrent); err != nil {
			break
		}
	}

	return 0, false, nil
}
