package compactast

import "testing"

func TestReaderPrimitives(t *testing.T) {
	data := []byte{0x2a, 0x34, 0x12, 0x78, 0x56, 0x34, 0x12, 'h', 'i'}
	r := newReader(data)

	b, err := r.u8()
	if err != nil || b != 0x2a {
		t.Fatalf("u8 = %v, %v", b, err)
	}
	u16, err := r.u16()
	if err != nil || u16 != 0x1234 {
		t.Fatalf("u16 = %v, %v", u16, err)
	}
	u32, err := r.u32()
	if err != nil || u32 != 0x12345678 {
		t.Fatalf("u32 = %v, %v", u32, err)
	}
	bs, err := r.bytes(2)
	if err != nil || string(bs) != "hi" {
		t.Fatalf("bytes = %q, %v", bs, err)
	}
}

func TestReaderTruncated(t *testing.T) {
	r := newReader([]byte{0x01})
	if _, err := r.u32(); err == nil {
		t.Fatal("expected Truncated error reading u32 from 1 byte")
	} else if de, ok := err.(*DecodeError); !ok || de.Kind != Truncated {
		t.Fatalf("expected Truncated, got %v", err)
	}
}
