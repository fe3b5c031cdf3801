package compactast

import (
	"encoding/binary"
	"math"
)

// reader is a bounds-checked, little-endian cursor over an in-memory byte
// span. It never panics on short input: every read reports Truncated
// instead, so a malformed blob can never crash the decoder.
type reader struct {
	data []byte
	pos  uint32
}

func newReader(data []byte) *reader {
	return &reader{data: data}
}

func (r *reader) remaining() uint32 {
	if uint32(len(r.data)) <= r.pos {
		return 0
	}
	return uint32(len(r.data)) - r.pos
}

func (r *reader) need(n uint32) error {
	if r.remaining() < n {
		return &DecodeError{Kind: Truncated, Offset: r.pos}
	}
	return nil
}

func (r *reader) u8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.data[r.pos]
	r.pos++
	return v, nil
}

func (r *reader) u16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *reader) u32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *reader) i32() (int32, error) {
	v, err := r.u32()
	return int32(v), err
}

func (r *reader) f64() (float64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	bits := binary.LittleEndian.Uint64(r.data[r.pos:])
	r.pos += 8
	return math.Float64frombits(bits), nil
}

func (r *reader) bytes(n uint32) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, r.data[r.pos:r.pos+n])
	r.pos += n
	return out, nil
}
