package psd_decoder

import (
	"fmt"
	"math"
)

// readMergedPlanes decodes the requested channels of the merged image data
// section at 8 bits per sample. All channels share one compression method
// and are stored planar, one after another.
func readMergedPlanes(r *reader, h Header, want []int) ([][]byte, error) {
	comp, err := r.u16()
	if err != nil {
		return nil, err
	}
	width, height, depth := int(h.Width), int(h.Height), int(h.Depth)
	channels := int(h.Channels)
	rb, size, err := planeSize(width, height, depth)
	if err != nil {
		return nil, err
	}
	if channels > math.MaxInt/max(size, 1) {
		return nil, fmt.Errorf("%w: %d channels of %d bytes", ErrCorrupt, channels, size)
	}

	raws := make([][]byte, len(want))
	switch comp {
	case compressionRaw:
		body, err := r.bytes(size * channels)
		if err != nil {
			// Some writers omit trailing extra channels; accept that as long
			// as every requested channel is present.
			last := 0
			for _, c := range want {
				last = max(last, c+1)
			}
			if body, err = r.bytes(min(r.remaining(), size*channels)); err != nil || len(body) < size*last {
				return nil, fmt.Errorf("%w: merged image needs %d bytes, have %d", ErrTruncated, size*last, r.remaining())
			}
		}
		for i, c := range want {
			raws[i] = body[c*size : (c+1)*size]
		}
	case compressionRLE:
		counts, err := rleCounts(r, channels*height)
		if err != nil {
			return nil, err
		}
		if err := checkRLEBudget(counts, rb, r.remaining()); err != nil {
			return nil, err
		}
		offsets := make([]int, channels+1)
		for c := 0; c < channels; c++ {
			sum := 0
			for _, n := range counts[c*height : (c+1)*height] {
				sum += n
			}
			offsets[c+1] = offsets[c] + sum
		}
		body := r.buf[r.off:]
		for i, c := range want {
			sub := newReader(body[offsets[c]:offsets[c+1]], r.psb)
			if raws[i], err = readRLERows(sub, counts[c*height:(c+1)*height], rb); err != nil {
				return nil, fmt.Errorf("channel %d: %w", c, err)
			}
		}
	case compressionZIP, compressionZIPPredict:
		all, err := inflate(r.buf[r.off:], size*channels)
		if err != nil {
			return nil, err
		}
		if comp == compressionZIPPredict {
			if err := unpredict(all, width, height*channels, depth); err != nil {
				return nil, err
			}
		}
		for i, c := range want {
			raws[i] = all[c*size : (c+1)*size]
		}
	default:
		return nil, fmt.Errorf("%w: %d", ErrCompression, comp)
	}

	out := make([][]byte, len(raws))
	for i, raw := range raws {
		out[i] = to8Bit(raw, width, height, depth)
	}
	return out, nil
}
