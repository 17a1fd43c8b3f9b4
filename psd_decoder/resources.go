package psd_decoder

import (
	"encoding/binary"
	"fmt"

	"psd2png/utils"
)

// Image resource IDs the decoder understands.
const (
	resResolutionInfo    = 1005
	resTransparencyIndex = 1047
	resVersionInfo       = 1057
	resEXIFData1         = 1058
)

const resourceSignature = "8BIM"

// parseResources reads the image resource blocks into a map keyed by ID.
// Later duplicates win.
func parseResources(r *reader) (map[uint16][]byte, error) {
	res := make(map[uint16][]byte)
	for r.remaining() > 0 {
		sig, err := r.bytes(4)
		if err != nil {
			return nil, err
		}
		if string(sig) != resourceSignature {
			return nil, fmt.Errorf("%w: image resource signature %q", ErrCorrupt, sig)
		}
		id, err := r.u16()
		if err != nil {
			return nil, err
		}
		if _, err := r.pascalString(2); err != nil {
			return nil, err
		}
		size, err := r.u32()
		if err != nil {
			return nil, err
		}
		data, err := r.bytes(int(size))
		if err != nil {
			return nil, err
		}
		if size%2 == 1 && r.remaining() > 0 {
			if err := r.skip(1); err != nil {
				return nil, err
			}
		}
		res[id] = data
	}
	return res, nil
}

// resolutionDPI decodes ResolutionInfo: 16.16 fixed horizontal resolution
// followed by its unit (1 = pixels per inch, 2 = pixels per cm).
func resolutionDPI(data []byte) float64 {
	if len(data) < 6 {
		return 0
	}
	fixed := binary.BigEndian.Uint32(data[0:4])
	unit := binary.BigEndian.Uint16(data[4:6])
	dpi := float64(fixed) / 65536
	if unit == 2 {
		dpi *= 2.54
	}
	return dpi
}

// DPI returns the document's horizontal resolution from ResolutionInfo,
// falling back to the embedded EXIF block. Zero means none is declared.
func (d *Document) DPI() float64 {
	if data, ok := d.Resources[resResolutionInfo]; ok {
		if dpi := resolutionDPI(data); dpi > 0 {
			return dpi
		}
	}
	if data, ok := d.Resources[resEXIFData1]; ok {
		if dpiX, _, err := utils.DPIFromEXIF(data); err == nil {
			return dpiX
		}
	}
	return 0
}

// HasRealMergedData reports whether the merged image data is a faithful
// composite. Documents without VersionInfo are assumed to have one.
func (d *Document) HasRealMergedData() bool {
	data, ok := d.Resources[resVersionInfo]
	if !ok || len(data) < 5 {
		return true
	}
	return data[4] != 0
}

// transparentIndex returns the palette index rendered transparent in indexed
// documents, or -1.
func (d *Document) transparentIndex() int {
	data, ok := d.Resources[resTransparencyIndex]
	if !ok || len(data) < 2 {
		return -1
	}
	return int(binary.BigEndian.Uint16(data))
}
