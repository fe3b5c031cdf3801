package compactast

import "github.com/pkg/errors"

// Format v3.2.0 header layout, little-endian throughout:
//
//	magic            [4]byte   "AST3"
//	version          uint16    major<<8 | minor
//	flags            uint16    reserved, must round-trip
//	nodeCount        uint32    informational, cross-checked against the walk
//	stringTableOff   uint32    absolute byte offset of the string table
//	stringTableLen   uint32    byte length of the string table
const headerSize = 20

var magic = [4]byte{'A', 'S', 'T', '3'}

const (
	supportedMajor = 3
	supportedMinor = 2
)

// attribute bitmap bits, in the order their fields follow the fixed node
// prefix (tag, child count, bitmap) when present.
const (
	attrName uint16 = 1 << iota
	attrType
	attrLiteral
	attrOperator
	attrFlags
)

var operatorTable = []string{
	"", "+", "-", "*", "/", "%", "==", "!=", "<", "<=", ">", ">=",
	"&&", "||", "!", "&", "|", "^", "~", "<<", ">>",
	"=", "+=", "-=", "*=", "/=", "%=", "&=", "|=", "^=", "<<=", ">>=",
	"++", "--", "?", ":", "->", ".", ",",
}

// Decoded is the owned result of a successful decode: the root of the node
// graph plus the header fields a caller may want to inspect.
type Decoded struct {
	Root    *Node
	Version uint16
	Flags   uint16
}

// Decode parses a CompactAST v3.2.0 blob into an owned, immutable node
// graph. No slice of data survives in the result: every primitive is copied
// out before Decode returns.
func Decode(data []byte) (*Decoded, error) {
	if len(data) < headerSize {
		return nil, &DecodeError{Kind: Truncated, Offset: uint32(len(data))}
	}
	if [4]byte{data[0], data[1], data[2], data[3]} != magic {
		return nil, &DecodeError{Kind: BadMagic, Offset: 0}
	}

	r := newReader(data)
	r.pos = 4

	version, err := r.u16()
	if err != nil {
		return nil, err
	}
	major, minor := byte(version>>8), byte(version&0xff)
	if major != supportedMajor || minor != supportedMinor {
		return nil, &DecodeError{Kind: UnsupportedVersion, Offset: 4,
			Detail: errors.Errorf("got %d.%d, want %d.%d", major, minor, supportedMajor, supportedMinor).Error()}
	}

	flags, err := r.u16()
	if err != nil {
		return nil, err
	}
	nodeCount, err := r.u32()
	if err != nil {
		return nil, err
	}
	strOff, err := r.u32()
	if err != nil {
		return nil, err
	}
	strLen, err := r.u32()
	if err != nil {
		return nil, err
	}

	strings_, err := decodeStringTable(data, strOff, strLen)
	if err != nil {
		return nil, err
	}

	d := &decoder{data: data, strings: strings_, strStart: strOff, strEnd: strOff + strLen, visiting: map[uint32]bool{}, done: map[uint32]*Node{}}
	root, err := d.nodeAt(headerSize)
	if err != nil {
		return nil, err
	}
	if nodeCount > 0 && uint32(len(d.done)) > nodeCount {
		// Informational cross-check only: a decoder that reaches more nodes
		// than declared still produced a structurally valid tree, so this
		// is not treated as an error condition.
		_ = nodeCount
	}

	return &Decoded{Root: root, Version: version, Flags: flags}, nil
}

func decodeStringTable(data []byte, off, length uint32) ([]string, error) {
	if off > uint32(len(data)) || uint64(off)+uint64(length) > uint64(len(data)) {
		return nil, &DecodeError{Kind: Truncated, Offset: off}
	}
	r := &reader{data: data, pos: off}
	end := off + length
	var out []string
	for r.pos < end {
		n, err := r.u16()
		if err != nil {
			return nil, err
		}
		b, err := r.bytes(uint32(n))
		if err != nil {
			return nil, err
		}
		out = append(out, string(b))
	}
	return out, nil
}

type decoder struct {
	data     []byte
	strings  []string
	strStart uint32 // string table byte range, excluded from node offsets
	strEnd   uint32
	visiting map[uint32]bool
	done     map[uint32]*Node
}

func (d *decoder) string(idx uint16) (string, error) {
	if int(idx) >= len(d.strings) {
		return "", &DecodeError{Kind: BadStringIndex, Offset: uint32(idx)}
	}
	return d.strings[idx], nil
}

// nodeAt decodes (or returns the cached decode of) the node beginning at
// the given absolute byte offset. Offsets referenced more than once (a
// shared subexpression, or malformed input) are decoded exactly once.
func (d *decoder) nodeAt(offset uint32) (*Node, error) {
	if n, ok := d.done[offset]; ok {
		return n, nil
	}
	if d.visiting[offset] {
		return nil, &DecodeError{Kind: BadOffset, Offset: offset, Detail: "cyclic node reference"}
	}
	if offset < headerSize || offset >= uint32(len(d.data)) || (offset >= d.strStart && offset < d.strEnd) {
		return nil, &DecodeError{Kind: BadOffset, Offset: offset}
	}
	d.visiting[offset] = true
	defer delete(d.visiting, offset)

	r := &reader{data: d.data, pos: offset}

	tagByte, err := r.u8()
	if err != nil {
		return nil, err
	}
	if tagByte == 0 || Tag(tagByte) >= tagCount {
		return nil, &DecodeError{Kind: BadTag, Offset: offset}
	}
	childCount, err := r.u8()
	if err != nil {
		return nil, err
	}
	bitmap, err := r.u16()
	if err != nil {
		return nil, err
	}

	node := &Node{Tag: Tag(tagByte), Offset: offset}

	if bitmap&attrName != 0 {
		idx, err := r.u16()
		if err != nil {
			return nil, err
		}
		s, err := d.string(idx)
		if err != nil {
			return nil, err
		}
		node.Attrs.HasName = true
		node.Attrs.Name = s
	}
	if bitmap&attrType != 0 {
		idx, err := r.u16()
		if err != nil {
			return nil, err
		}
		s, err := d.string(idx)
		if err != nil {
			return nil, err
		}
		node.Attrs.HasType = true
		node.Attrs.Type = s
	}
	if bitmap&attrLiteral != 0 {
		lit, err := d.literal(r)
		if err != nil {
			return nil, err
		}
		node.Literal = lit
	}
	if bitmap&attrOperator != 0 {
		code, err := r.u8()
		if err != nil {
			return nil, err
		}
		if int(code) >= len(operatorTable) {
			return nil, &DecodeError{Kind: BadLiteral, Offset: offset, Detail: "operator code out of range"}
		}
		node.Attrs.HasOperator = true
		node.Attrs.Operator = operatorTable[code]
	}
	if bitmap&attrFlags != 0 {
		f, err := r.u8()
		if err != nil {
			return nil, err
		}
		node.Attrs.HasFlags = true
		node.Attrs.Flags = f
	}

	node.Children = make([]*Node, 0, childCount)
	for i := uint8(0); i < childCount; i++ {
		childOff, err := r.u32()
		if err != nil {
			return nil, err
		}
		child, err := d.nodeAt(childOff)
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, child)
	}

	d.done[offset] = node
	return node, nil
}

func (d *decoder) literal(r *reader) (*Literal, error) {
	kindByte, err := r.u8()
	if err != nil {
		return nil, err
	}
	kind := LiteralKind(kindByte)
	lit := &Literal{Kind: kind}
	switch kind {
	case LiteralInt:
		v, err := r.i32()
		if err != nil {
			return nil, err
		}
		lit.Int = v
	case LiteralFloat:
		v, err := r.f64()
		if err != nil {
			return nil, err
		}
		lit.Flt = v
	case LiteralBool:
		v, err := r.u8()
		if err != nil {
			return nil, err
		}
		lit.Bool = v != 0
	case LiteralChar:
		v, err := r.u8()
		if err != nil {
			return nil, err
		}
		lit.Char = v
	case LiteralString:
		idx, err := r.u16()
		if err != nil {
			return nil, err
		}
		s, err := d.string(idx)
		if err != nil {
			return nil, err
		}
		lit.Str = s
	default:
		return nil, &DecodeError{Kind: BadLiteral, Offset: r.pos, Detail: "unknown literal kind"}
	}
	return lit, nil
}
