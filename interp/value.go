package interp

import "fmt"

// Kind discriminates the runtime value union. The specification's source
// material ships three overlapping variant types (CommandValue,
// EnhancedCommandValue, FlexibleCommandValue); per its own open question we
// canonicalize them into the single closed union below instead of
// replicating the split. Array values of any element kind and rank share
// one handle type (KArray) rather than a cross product of
// Int/Double/String x 1-D/2-D variants — a Go-idiomatic collapse of the
// same union, recorded in DESIGN.md.
type Kind uint8

const (
	KVoid Kind = iota
	KBool
	KInt    // int32
	KUint   // uint32
	KDouble
	KString
	KArray
	KFuncPtr
	KStruct
	KPointer
	KEnhancedString
)

func (k Kind) String() string {
	switch k {
	case KVoid:
		return "void"
	case KBool:
		return "bool"
	case KInt:
		return "int"
	case KUint:
		return "uint"
	case KDouble:
		return "double"
	case KString:
		return "string"
	case KArray:
		return "array"
	case KFuncPtr:
		return "function pointer"
	case KStruct:
		return "struct"
	case KPointer:
		return "pointer"
	case KEnhancedString:
		return "String"
	}
	return "unknown"
}

// FuncPtr is a first-class function value: a symbolic name plus an opaque
// id, resolved at call time. It never captures a frame — the guest
// language has no closures.
type FuncPtr struct {
	Name string
	ID   uint32
}

// Value is the tagged union of every operand the interpreter manipulates.
// Only the field matching Kind is meaningful.
type Value struct {
	Kind Kind

	B bool
	I int32
	U uint32
	D float64
	S string
	Fn FuncPtr

	Arr *ArrayHandle
	St  *StructHandle
	Ptr *PointerHandle
	Es  *EnhancedStringHandle
}

func VoidValue() Value        { return Value{Kind: KVoid} }
func BoolValue(b bool) Value  { return Value{Kind: KBool, B: b} }
func IntValue(i int32) Value  { return Value{Kind: KInt, I: i} }
func UintValue(u uint32) Value { return Value{Kind: KUint, U: u} }
func DoubleValue(d float64) Value { return Value{Kind: KDouble, D: d} }
func StringValue(s string) Value  { return Value{Kind: KString, S: s} }

// Truthy implements the boolean-context coercion rules: 0 / 0.0 / empty
// string / void are false, everything else is true.
func (v Value) Truthy() bool {
	switch v.Kind {
	case KVoid:
		return false
	case KBool:
		return v.B
	case KInt:
		return v.I != 0
	case KUint:
		return v.U != 0
	case KDouble:
		return v.D != 0
	case KString:
		return v.S != ""
	case KPointer:
		return v.Ptr != nil && !v.Ptr.Null
	default:
		return true
	}
}

func (v Value) String() string {
	switch v.Kind {
	case KVoid:
		return ""
	case KBool:
		if v.B {
			return "true"
		}
		return "false"
	case KInt:
		return fmt.Sprintf("%d", v.I)
	case KUint:
		return fmt.Sprintf("%d", v.U)
	case KDouble:
		return fmt.Sprintf("%g", v.D)
	case KString:
		return v.S
	case KEnhancedString:
		if v.Es != nil {
			return string(v.Es.Buf)
		}
		return ""
	case KFuncPtr:
		return v.Fn.Name
	default:
		return fmt.Sprintf("<%s>", v.Kind)
	}
}

// ArrayHandle is the shared, reference-counted backing store for arrays of
// any rank (1 or 2) and element kind. Mutation through any alias is
// visible to all of them, satisfying the shared-value invariant.
type ArrayHandle struct {
	refs     int
	ElemKind Kind
	Dims     []int // len(Dims) == 1 or 2
	Data     []Value
}

func NewArray1D(elemKind Kind, length int) *ArrayHandle {
	h := &ArrayHandle{refs: 1, ElemKind: elemKind, Dims: []int{length}, Data: make([]Value, length)}
	h.fillZero()
	return h
}

func NewArray2D(elemKind Kind, rows, cols int) *ArrayHandle {
	h := &ArrayHandle{refs: 1, ElemKind: elemKind, Dims: []int{rows, cols}, Data: make([]Value, rows*cols)}
	h.fillZero()
	return h
}

func (h *ArrayHandle) fillZero() {
	var z Value
	switch h.ElemKind {
	case KDouble:
		z = DoubleValue(0)
	case KString:
		z = StringValue("")
	default:
		z = IntValue(0)
	}
	for i := range h.Data {
		h.Data[i] = z
	}
}

func (h *ArrayHandle) Len() int {
	n := 1
	for _, d := range h.Dims {
		n *= d
	}
	return n
}

// Retain/Release implement the handle's reference count; mutation is
// confined to the single worker goroutine, so no lock is needed.
func (h *ArrayHandle) Retain() { h.refs++ }
func (h *ArrayHandle) Release() int {
	h.refs--
	return h.refs
}

// StructHandle is the shared backing store for a struct instance. Member
// access mutates the map in place so aliases observe each other's writes.
type StructHandle struct {
	refs     int
	TypeName string
	Fields   map[string]Value
	Order    []string // declaration order, for deterministic initialization
}

func NewStruct(typeName string, order []string) *StructHandle {
	h := &StructHandle{refs: 1, TypeName: typeName, Fields: map[string]Value{}, Order: order}
	for _, name := range order {
		h.Fields[name] = VoidValue()
	}
	return h
}

func (h *StructHandle) Retain() { h.refs++ }
func (h *StructHandle) Release() int {
	h.refs--
	return h.refs
}

// PointerHandle resolves through the scope manager at access time; it is
// never a raw address, only a (frame, name[, index]) coordinate, per the
// design note on avoiding cyclic ownership.
type PointerHandle struct {
	refs        int
	Frame       *Frame
	Name        string
	HasIndex    bool
	Index       int
	PointedType string
	Null        bool
}

func NewPointer(frame *Frame, name string, pointedType string) *PointerHandle {
	return &PointerHandle{refs: 1, Frame: frame, Name: name, PointedType: pointedType}
}

func NullPointer(pointedType string) *PointerHandle {
	return &PointerHandle{refs: 1, PointedType: pointedType, Null: true}
}

func (h *PointerHandle) Retain() { h.refs++ }
func (h *PointerHandle) Release() int {
	h.refs--
	return h.refs
}

// EnhancedStringHandle backs the Arduino String class: a growable, mutable
// byte buffer shared by reference like struct/array values.
type EnhancedStringHandle struct {
	refs int
	Buf  []byte
}

func NewEnhancedString(s string) *EnhancedStringHandle {
	return &EnhancedStringHandle{refs: 1, Buf: []byte(s)}
}

func (h *EnhancedStringHandle) Retain() { h.refs++ }
func (h *EnhancedStringHandle) Release() int {
	h.refs--
	return h.refs
}

// Variable pairs a value with its declaration metadata.
type Variable struct {
	Value        Value
	DeclaredType string
	IsConst      bool
	IsReference  bool
}
