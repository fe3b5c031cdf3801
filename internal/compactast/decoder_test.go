package compactast

import "testing"

// buildBlink hand-assembles the CompactAST for:
//
//	void setup() { pinMode(13, 1); }
//	void loop() { digitalWrite(13, 1); }
func buildBlink() *Node {
	pin := &Node{Tag: TagIntLiteral, Literal: &Literal{Kind: LiteralInt, Int: 13}}
	mode := &Node{Tag: TagIntLiteral, Literal: &Literal{Kind: LiteralInt, Int: 1}}
	callee := &Node{Tag: TagIdentifier, Attrs: Attrs{HasName: true, Name: "pinMode"}}
	call := &Node{Tag: TagCall, Children: []*Node{callee, pin, mode}}
	exprStmt := &Node{Tag: TagExprStmt, Children: []*Node{call}}
	body := &Node{Tag: TagCompound, Children: []*Node{exprStmt}}
	setup := &Node{Tag: TagFuncDef, Attrs: Attrs{HasName: true, Name: "setup"}, Children: []*Node{body}}
	loopBody := &Node{Tag: TagCompound}
	loop := &Node{Tag: TagFuncDef, Attrs: Attrs{HasName: true, Name: "loop"}, Children: []*Node{loopBody}}
	return &Node{Tag: TagProgram, Children: []*Node{setup, loop}}
}

func TestDecodeRoundTrip(t *testing.T) {
	root := buildBlink()
	blob, err := Encode(root, 0)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := Decode(blob)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.Root.Tag != TagProgram {
		t.Fatalf("root tag = %v, want Program", decoded.Root.Tag)
	}
	if len(decoded.Root.Children) != 2 {
		t.Fatalf("root children = %d, want 2", len(decoded.Root.Children))
	}
	setup := decoded.Root.Children[0]
	if setup.Tag != TagFuncDef || setup.Attrs.Name != "setup" {
		t.Fatalf("unexpected setup node: %+v", setup)
	}
	call := setup.Children[0].Children[0]
	if call.Tag != TagCall {
		t.Fatalf("expected call node, got %v", call.Tag)
	}
	if call.Children[1].Literal.Int != 13 {
		t.Fatalf("pin literal = %d, want 13", call.Children[1].Literal.Int)
	}

	blob2, err := Encode(decoded.Root, 0)
	if err != nil {
		t.Fatalf("re-Encode: %v", err)
	}
	decoded2, err := Decode(blob2)
	if err != nil {
		t.Fatalf("re-Decode: %v", err)
	}
	if decoded2.Root.Children[0].Attrs.Name != "setup" {
		t.Fatalf("round trip lost setup name")
	}
}

func TestDecodeBadMagic(t *testing.T) {
	blob := make([]byte, headerSize)
	copy(blob, "XXXX")
	_, err := Decode(blob)
	de, ok := err.(*DecodeError)
	if !ok || de.Kind != BadMagic {
		t.Fatalf("expected BadMagic, got %v", err)
	}
}

func TestDecodeUnsupportedVersion(t *testing.T) {
	root := &Node{Tag: TagProgram}
	blob, err := Encode(root, 0)
	if err != nil {
		t.Fatal(err)
	}
	blob[4] = 9 // minor version 9 (low byte of the little-endian version field)
	_, err = Decode(blob)
	de, ok := err.(*DecodeError)
	if !ok || de.Kind != UnsupportedVersion {
		t.Fatalf("expected UnsupportedVersion, got %v", err)
	}
}

func TestDecodeTruncated(t *testing.T) {
	root := buildBlink()
	blob, err := Encode(root, 0)
	if err != nil {
		t.Fatal(err)
	}
	_, err = Decode(blob[:headerSize+2])
	de, ok := err.(*DecodeError)
	if !ok || de.Kind != Truncated {
		t.Fatalf("expected Truncated, got %v", err)
	}
}

func TestDecodeBadOffset(t *testing.T) {
	root := &Node{Tag: TagProgram, Children: []*Node{{Tag: TagBreak}}}
	blob, err := Encode(root, 0)
	if err != nil {
		t.Fatal(err)
	}
	// Corrupt the lone child offset field (immediately after the 4-byte
	// header prefix of the root node) to point far outside the blob.
	childOffsetPos := headerSize + 4
	blob[childOffsetPos] = 0xff
	blob[childOffsetPos+1] = 0xff
	blob[childOffsetPos+2] = 0xff
	blob[childOffsetPos+3] = 0x7f
	_, err = Decode(blob)
	de, ok := err.(*DecodeError)
	if !ok || de.Kind != BadOffset {
		t.Fatalf("expected BadOffset, got %v", err)
	}
}
