package compactast

import (
	"bytes"
	"encoding/binary"
	"math"
)

func float64bits(f float64) uint64 { return math.Float64bits(f) }

// Encode serializes a decoded node graph back into the CompactAST v3.2.0
// wire format. It exists mainly to support round-trip testing of Decode;
// the string table it produces is deduplicated but not guaranteed to be in
// the same order as the table the blob originally carried; Decode/Encode
// round-trips are therefore compared modulo string-table order, per the
// testable round-trip property.
func Encode(root *Node, flags uint16) ([]byte, error) {
	e := &encoder{strIndex: map[string]uint16{}}
	e.collectStrings(root)

	var nodeBuf bytes.Buffer
	offsets := map[*Node]uint32{}
	// One depth-first pass: each node reserves zeroed child-offset slots,
	// which are patched once its children have been written and their
	// offsets are known.
	e.layout(root, &nodeBuf, offsets)

	var strBuf bytes.Buffer
	for _, s := range e.strings {
		var lenBuf [2]byte
		binary.LittleEndian.PutUint16(lenBuf[:], uint16(len(s)))
		strBuf.Write(lenBuf[:])
		strBuf.WriteString(s)
	}

	var out bytes.Buffer
	out.Write(magic[:])
	writeU16(&out, uint16(supportedMajor)<<8|uint16(supportedMinor))
	writeU16(&out, flags)
	writeU32(&out, uint32(len(offsets)))
	writeU32(&out, headerSize+uint32(nodeBuf.Len()))
	writeU32(&out, uint32(strBuf.Len()))
	out.Write(nodeBuf.Bytes())
	out.Write(strBuf.Bytes())
	return out.Bytes(), nil
}

type encoder struct {
	strings  []string
	strIndex map[string]uint16
}

func (e *encoder) intern(s string) uint16 {
	if idx, ok := e.strIndex[s]; ok {
		return idx
	}
	idx := uint16(len(e.strings))
	e.strings = append(e.strings, s)
	e.strIndex[s] = idx
	return idx
}

func (e *encoder) collectStrings(n *Node) {
	if n == nil {
		return
	}
	if n.Attrs.HasName {
		e.intern(n.Attrs.Name)
	}
	if n.Attrs.HasType {
		e.intern(n.Attrs.Type)
	}
	if n.Literal != nil && n.Literal.Kind == LiteralString {
		e.intern(n.Literal.Str)
	}
	for _, c := range n.Children {
		e.collectStrings(c)
	}
}

func opCode(op string) uint8 {
	for i, o := range operatorTable {
		if o == op {
			return uint8(i)
		}
	}
	return 0
}

// layout writes every node once in depth-first order at a stable offset
// (headerSize + buffer position) so a parent can reference each child's
// write position by absolute offset, satisfying the decoder's "offset into
// the node table" contract.
func (e *encoder) layout(n *Node, buf *bytes.Buffer, offsets map[*Node]uint32) uint32 {
	if off, ok := offsets[n]; ok {
		return off
	}

	// Children must be laid out before the parent only if we wrote
	// absolute offsets inline; instead we reserve the parent's offset
	// first (depth-first pre-order matches Decode's expectations), then
	// patch child offset fields after encoding each child.
	selfOff := headerSize + uint32(buf.Len())
	offsets[n] = selfOff

	var bitmap uint16
	if n.Attrs.HasName {
		bitmap |= attrName
	}
	if n.Attrs.HasType {
		bitmap |= attrType
	}
	if n.Literal != nil {
		bitmap |= attrLiteral
	}
	if n.Attrs.HasOperator {
		bitmap |= attrOperator
	}
	if n.Attrs.HasFlags {
		bitmap |= attrFlags
	}

	buf.WriteByte(byte(n.Tag))
	buf.WriteByte(byte(len(n.Children)))
	writeU16(buf, bitmap)
	if n.Attrs.HasName {
		writeU16(buf, e.intern(n.Attrs.Name))
	}
	if n.Attrs.HasType {
		writeU16(buf, e.intern(n.Attrs.Type))
	}
	if n.Literal != nil {
		writeLiteral(buf, n.Literal, e)
	}
	if n.Attrs.HasOperator {
		buf.WriteByte(opCode(n.Attrs.Operator))
	}
	if n.Attrs.HasFlags {
		buf.WriteByte(n.Attrs.Flags)
	}

	childPlaceholder := buf.Len()
	for range n.Children {
		writeU32(buf, 0)
	}

	childOffsets := make([]uint32, len(n.Children))
	for i, c := range n.Children {
		childOffsets[i] = e.layout(c, buf, offsets)
	}

	out := buf.Bytes()
	for i, off := range childOffsets {
		binary.LittleEndian.PutUint32(out[childPlaceholder+i*4:], off)
	}

	return selfOff
}

func writeLiteral(buf *bytes.Buffer, lit *Literal, e *encoder) {
	buf.WriteByte(byte(lit.Kind))
	switch lit.Kind {
	case LiteralInt:
		writeU32(buf, uint32(lit.Int))
	case LiteralFloat:
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], float64bits(lit.Flt))
		buf.Write(b[:])
	case LiteralBool:
		if lit.Bool {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	case LiteralChar:
		buf.WriteByte(lit.Char)
	case LiteralString:
		writeU16(buf, e.intern(lit.Str))
	}
}

func writeU16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}
