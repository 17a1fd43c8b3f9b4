package psd_decoder

import (
	"encoding/binary"
	"fmt"
)

// reader is a bounds-checked cursor over a byte slice. Every read past the
// end fails with ErrTruncated instead of panicking.
type reader struct {
	buf []byte
	off int
	psb bool
}

func newReader(buf []byte, psb bool) *reader {
	return &reader{buf: buf, psb: psb}
}

func (r *reader) remaining() int {
	return len(r.buf) - r.off
}

func (r *reader) bytes(n int) ([]byte, error) {
	if n < 0 || n > r.remaining() {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrTruncated, n, r.off, r.remaining())
	}
	b := r.buf[r.off : r.off+n : r.off+n]
	r.off += n
	return b, nil
}

func (r *reader) skip(n int) error {
	_, err := r.bytes(n)
	return err
}

func (r *reader) u8() (uint8, error) {
	b, err := r.bytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) u16() (uint16, error) {
	b, err := r.bytes(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *reader) u32() (uint32, error) {
	b, err := r.bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *reader) u64() (uint64, error) {
	b, err := r.bytes(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (r *reader) i16() (int16, error) {
	v, err := r.u16()
	return int16(v), err
}

func (r *reader) i32() (int32, error) {
	v, err := r.u32()
	return int32(v), err
}

// length reads a section length: 4 bytes in PSD, 8 bytes in PSB when wide is set.
func (r *reader) length(wide bool) (int, error) {
	if wide && r.psb {
		v, err := r.u64()
		if err != nil {
			return 0, err
		}
		if v > uint64(r.remaining()) {
			return 0, fmt.Errorf("%w: section of %d bytes at offset %d, have %d", ErrTruncated, v, r.off, r.remaining())
		}
		return int(v), nil
	}
	v, err := r.u32()
	if err != nil {
		return 0, err
	}
	if uint64(v) > uint64(r.remaining()) {
		return 0, fmt.Errorf("%w: section of %d bytes at offset %d, have %d", ErrTruncated, v, r.off, r.remaining())
	}
	return int(v), nil
}

// section reads a length-prefixed block and returns a reader over its body.
func (r *reader) section(wide bool) (*reader, error) {
	n, err := r.length(wide)
	if err != nil {
		return nil, err
	}
	b, err := r.bytes(n)
	if err != nil {
		return nil, err
	}
	return newReader(b, r.psb), nil
}

// pascalString reads a length-prefixed string whose total size, length byte
// included, is padded to a multiple of pad.
func (r *reader) pascalString(pad int) (string, error) {
	n, err := r.u8()
	if err != nil {
		return "", err
	}
	b, err := r.bytes(int(n))
	if err != nil {
		return "", err
	}
	total := 1 + int(n)
	if rem := total % pad; rem != 0 {
		if err := r.skip(pad - rem); err != nil {
			return "", err
		}
	}
	return string(b), nil
}
