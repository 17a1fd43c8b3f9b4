package psd_decoder

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/klauspost/compress/zlib"
)

// Compression methods for channel image data.
const (
	compressionRaw        = 0
	compressionRLE        = 1
	compressionZIP        = 2
	compressionZIPPredict = 3
)

func rowBytes(width, depth int) int {
	return (width*depth + 7) / 8
}

// planeSize returns the row and plane byte sizes of a width x height plane,
// failing where the product would overflow int.
func planeSize(width, height, depth int) (rb, size int, err error) {
	if width < 0 || height < 0 || depth <= 0 || width > (math.MaxInt-7)/depth {
		return 0, 0, fmt.Errorf("%w: plane of %dx%d at %d-bit", ErrCorrupt, width, height, depth)
	}
	rb = rowBytes(width, depth)
	if height > 0 && rb > math.MaxInt/height {
		return 0, 0, fmt.Errorf("%w: plane of %dx%d at %d-bit", ErrCorrupt, width, height, depth)
	}
	return rb, rb * height, nil
}

// rleCounts reads n per-row byte counts: 2 bytes each in PSD, 4 in PSB.
func rleCounts(r *reader, n int) ([]int, error) {
	width := 2
	if r.psb {
		width = 4
	}
	if n < 0 || n > r.remaining()/width {
		return nil, fmt.Errorf("%w: RLE table of %d rows", ErrTruncated, n)
	}
	counts := make([]int, n)
	for i := range counts {
		if r.psb {
			v, err := r.u32()
			if err != nil {
				return nil, err
			}
			counts[i] = int(v)
		} else {
			v, err := r.u16()
			if err != nil {
				return nil, err
			}
			counts[i] = int(v)
		}
	}
	return counts, nil
}

// checkRLEBudget rejects RLE data that could not possibly expand to the
// declared plane size, before any plane is allocated. PackBits expands at
// most 128 bytes per 2 input bytes.
func checkRLEBudget(counts []int, rb, available int) error {
	minRow := 2 * ((rb + 127) / 128)
	total := 0
	for _, c := range counts {
		if c < minRow {
			return fmt.Errorf("%w: RLE row of %d bytes cannot fill %d bytes", ErrCorrupt, c, rb)
		}
		total += c
	}
	if total > available {
		return fmt.Errorf("%w: RLE rows need %d bytes, have %d", ErrTruncated, total, available)
	}
	return nil
}

// unpackBits decodes one PackBits row into dst, which must be filled exactly.
func unpackBits(dst, src []byte) error {
	di, si := 0, 0
	for si < len(src) {
		n := int(int8(src[si]))
		si++
		switch {
		case n >= 0:
			cnt := n + 1
			if si+cnt > len(src) || di+cnt > len(dst) {
				return fmt.Errorf("%w: RLE literal run overflows row", ErrCorrupt)
			}
			copy(dst[di:di+cnt], src[si:si+cnt])
			si += cnt
			di += cnt
		case n > -128:
			cnt := 1 - n
			if si >= len(src) || di+cnt > len(dst) {
				return fmt.Errorf("%w: RLE repeat run overflows row", ErrCorrupt)
			}
			b := src[si]
			si++
			for j := 0; j < cnt; j++ {
				dst[di+j] = b
			}
			di += cnt
		}
	}
	if di != len(dst) {
		return fmt.Errorf("%w: RLE row decoded to %d bytes, want %d", ErrCorrupt, di, len(dst))
	}
	return nil
}

// readRLERows decodes len(counts) consecutive rows of rb bytes each.
func readRLERows(r *reader, counts []int, rb int) ([]byte, error) {
	out := make([]byte, len(counts)*rb)
	for i, c := range counts {
		src, err := r.bytes(c)
		if err != nil {
			return nil, err
		}
		if err := unpackBits(out[i*rb:(i+1)*rb], src); err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
	}
	return out, nil
}

// inflate decompresses exactly size bytes of zlib data.
func inflate(src []byte, size int) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("%w: zip channel: %v", ErrCorrupt, err)
	}
	defer zr.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(zr, int64(size)+1)); err != nil {
		return nil, fmt.Errorf("%w: zip channel: %v", ErrCorrupt, err)
	}
	if buf.Len() != size {
		return nil, fmt.Errorf("%w: zip channel inflated to %d bytes, want %d", ErrCorrupt, buf.Len(), size)
	}
	return buf.Bytes(), nil
}

// unpredict reverses ZIP-with-prediction row deltas in place.
func unpredict(data []byte, width, height, depth int) error {
	rb := rowBytes(width, depth)
	switch depth {
	case 8:
		for y := 0; y < height; y++ {
			row := data[y*rb : (y+1)*rb]
			for i := 1; i < len(row); i++ {
				row[i] += row[i-1]
			}
		}
	case 16:
		for y := 0; y < height; y++ {
			row := data[y*rb : (y+1)*rb]
			prev := binary.BigEndian.Uint16(row)
			for i := 2; i+1 < len(row); i += 2 {
				prev += binary.BigEndian.Uint16(row[i:])
				binary.BigEndian.PutUint16(row[i:], prev)
			}
		}
	case 32:
		// Bytes of each float are split into four consecutive planes per row
		// before the delta is applied.
		tmp := make([]byte, rb)
		for y := 0; y < height; y++ {
			row := data[y*rb : (y+1)*rb]
			for i := 1; i < len(row); i++ {
				row[i] += row[i-1]
			}
			for x := 0; x < width; x++ {
				for k := 0; k < 4; k++ {
					tmp[x*4+k] = row[k*width+x]
				}
			}
			copy(row, tmp)
		}
	default:
		return fmt.Errorf("%w: prediction at %d-bit", ErrCompression, depth)
	}
	return nil
}

// to8Bit reduces one plane of the given depth to 8 bits per sample.
// Bitmap planes are packed with 1 meaning black.
func to8Bit(raw []byte, width, height, depth int) []byte {
	n := width * height
	switch depth {
	case 8:
		return raw
	case 1:
		out := make([]byte, n)
		rb := rowBytes(width, 1)
		for y := 0; y < height; y++ {
			row := raw[y*rb:]
			for x := 0; x < width; x++ {
				if row[x/8]&(0x80>>uint(x%8)) == 0 {
					out[y*width+x] = 0xff
				}
			}
		}
		return out
	case 16:
		out := make([]byte, n)
		for i := range out {
			v := uint32(binary.BigEndian.Uint16(raw[i*2:]))
			out[i] = uint8((v*255 + 32767) / 65535)
		}
		return out
	case 32:
		out := make([]byte, n)
		for i := range out {
			f := math.Float32frombits(binary.BigEndian.Uint32(raw[i*4:]))
			out[i] = clamp8(float64(f) * 255)
		}
		return out
	}
	return nil
}

// readPlane decodes one layer channel: a compression tag followed by its
// payload, covering width x height samples.
func readPlane(r *reader, width, height, depth int) ([]byte, error) {
	comp, err := r.u16()
	if err != nil {
		return nil, err
	}
	rb, size, err := planeSize(width, height, depth)
	if err != nil {
		return nil, err
	}

	var raw []byte
	switch comp {
	case compressionRaw:
		if raw, err = r.bytes(size); err != nil {
			return nil, err
		}
	case compressionRLE:
		counts, err := rleCounts(r, height)
		if err != nil {
			return nil, err
		}
		if err := checkRLEBudget(counts, rb, r.remaining()); err != nil {
			return nil, err
		}
		if raw, err = readRLERows(r, counts, rb); err != nil {
			return nil, err
		}
	case compressionZIP, compressionZIPPredict:
		payload, err := r.bytes(r.remaining())
		if err != nil {
			return nil, err
		}
		if raw, err = inflate(payload, size); err != nil {
			return nil, err
		}
		if comp == compressionZIPPredict {
			if err := unpredict(raw, width, height, depth); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("%w: %d", ErrCompression, comp)
	}
	return to8Bit(raw, width, height, depth), nil
}
