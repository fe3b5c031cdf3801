package interp

import (
	"strconv"

	"github.com/sfranzyshen/ArduinoASTInterpreter-sub000/internal/compactast"
)

// eval dispatches expression nodes to a Value, the counterpart of execStmt
// for statements. Assignment returns the assigned value (so `a = b = c`
// works); ternary and && / || short-circuit the unevaluated arm.
func (it *Interpreter) eval(n *compactast.Node) Value {
	if n == nil {
		return VoidValue()
	}
	switch n.Tag {
	case compactast.TagIntLiteral:
		return IntValue(n.Literal.Int)
	case compactast.TagFloatLiteral:
		return DoubleValue(n.Literal.Flt)
	case compactast.TagBoolLiteral:
		return BoolValue(n.Literal.Bool)
	case compactast.TagCharLiteral:
		return IntValue(int32(n.Literal.Char))
	case compactast.TagStringLiteral:
		return StringValue(n.Literal.Str)
	case compactast.TagIdentifier:
		return it.evalIdentifier(n)
	case compactast.TagBinaryOp:
		return it.evalBinary(n)
	case compactast.TagUnaryOp:
		return it.evalUnary(n)
	case compactast.TagPostfixOp:
		return it.evalPostfix(n)
	case compactast.TagTernary:
		if it.eval(n.Children[0]).Truthy() {
			return it.eval(n.Children[1])
		}
		return it.eval(n.Children[2])
	case compactast.TagAssignment:
		val := it.eval(n.Children[1])
		return it.assignTo(n.Children[0], val)
	case compactast.TagCompoundAssignment:
		return it.evalCompoundAssignment(n)
	case compactast.TagCall:
		return it.evalCall(n)
	case compactast.TagMember:
		return it.evalMember(n)
	case compactast.TagArrowMember:
		return it.evalArrowMember(n)
	case compactast.TagSubscript:
		h, idx := it.resolveIndex(n)
		return h.Data[idx]
	case compactast.TagCast:
		return it.evalCast(n)
	case compactast.TagSizeof:
		return it.evalSizeof(n)
	case compactast.TagArrayInit:
		return it.evalArrayInit(n)
	case compactast.TagStructInit:
		return it.evalStructInit(n)
	case compactast.TagAddressOf:
		return it.evalAddressOf(n)
	case compactast.TagDereference:
		return it.evalDereference(n)
	case compactast.TagCommaExpr:
		var v Value
		for _, c := range n.Children {
			v = it.eval(c)
		}
		return v
	}
	panic(&InterpError{Kind: TypeError, Message: "cannot evaluate node", NodeKind: n.Tag.String(), Offset: n.Offset})
}

// evalCall dispatches a Call node's callee: a bare Identifier resolves
// against the library registry first (built-ins shadow user functions,
// matching Arduino's own name resolution), then user-defined functions,
// then function-pointer variables. A Member callee (obj.method(...)) is an
// object-scoped library call with the receiver value prepended to args.
func (it *Interpreter) evalCall(n *compactast.Node) Value {
	callee := n.Children[0]
	argNodes := n.Children[1:]

	switch callee.Tag {
	case compactast.TagIdentifier:
		name := callee.Attrs.Name
		if entry, ok := it.reg.lookup("", name); ok {
			return it.callLibrary(entry, evalArgs(it, argNodes), n)
		}
		if fn, ok := it.userFuncs[name]; ok {
			return it.callUserFunction(fn, evalArgs(it, argNodes))
		}
		if v, ok := it.scope.Lookup(name); ok && v.Value.Kind == KFuncPtr {
			if fn, ok := it.userFuncs[v.Value.Fn.Name]; ok {
				return it.callUserFunction(fn, evalArgs(it, argNodes))
			}
		}
		panic(&InterpError{Kind: UndefinedFunction, Message: "undefined function " + name, NodeKind: n.Tag.String(), Offset: n.Offset})
	case compactast.TagMember:
		obj := callee.Children[0]
		method := callee.Attrs.Name

		// Serial is the one static library object; a bare top-level
		// identifier named "Serial" names it directly with no receiver
		// value involved. Anything else is an instance method call
		// (currently only String.*) with the receiver prepended to args.
		if obj.Tag == compactast.TagIdentifier && obj.Attrs.Name == "Serial" {
			entry, ok := it.reg.lookup("Serial", method)
			if !ok {
				panic(&InterpError{Kind: UndefinedFunction, Message: "undefined method Serial." + method, NodeKind: n.Tag.String(), Offset: n.Offset})
			}
			return it.callLibrary(entry, evalArgs(it, argNodes), n)
		}

		entry, ok := it.reg.lookup("String", method)
		if !ok {
			panic(&InterpError{Kind: UndefinedFunction, Message: "undefined method " + method, NodeKind: n.Tag.String(), Offset: n.Offset})
		}
		args := append([]Value{it.eval(obj)}, evalArgs(it, argNodes)...)
		return it.callLibrary(entry, args, n)
	}
	panic(&InterpError{Kind: TypeError, Message: "unsupported call target", NodeKind: callee.Tag.String(), Offset: callee.Offset})
}

func evalArgs(it *Interpreter, nodes []*compactast.Node) []Value {
	args := make([]Value, len(nodes))
	for i, a := range nodes {
		args[i] = it.eval(a)
	}
	return args
}

func (it *Interpreter) callLibrary(entry libraryEntry, args []Value, n *compactast.Node) Value {
	v, err := entry.Fn(it, args)
	if err != nil {
		if ie, ok := err.(*InterpError); ok {
			panic(ie)
		}
		panic(&InterpError{Kind: TypeError, Message: err.Error(), NodeKind: n.Tag.String(), Offset: n.Offset})
	}
	return v
}

func (it *Interpreter) evalIdentifier(n *compactast.Node) Value {
	v, ok := it.scope.Lookup(n.Attrs.Name)
	if !ok {
		if fn, ok2 := it.userFuncs[n.Attrs.Name]; ok2 {
			return Value{Kind: KFuncPtr, Fn: FuncPtr{Name: n.Attrs.Name, ID: it.funcPtrIDs[fn.Attrs.Name]}}
		}
		panic(&InterpError{Kind: NameError, Message: "undefined identifier " + n.Attrs.Name, NodeKind: n.Tag.String(), Offset: n.Offset})
	}
	return v.Value
}

func valuesEqual(a, b Value) bool {
	if a.Kind == KString || b.Kind == KString || a.Kind == KEnhancedString || b.Kind == KEnhancedString {
		return stringOf(a) == stringOf(b)
	}
	if isNumeric(a) && isNumeric(b) {
		if isDouble(a, b) {
			return asDouble(a) == asDouble(b)
		}
		return asInt(a) == asInt(b)
	}
	return false
}

func compareOrdered(op string, a, b Value) Value {
	if a.Kind == KString && b.Kind == KString {
		switch op {
		case "<":
			return BoolValue(a.S < b.S)
		case "<=":
			return BoolValue(a.S <= b.S)
		case ">":
			return BoolValue(a.S > b.S)
		case ">=":
			return BoolValue(a.S >= b.S)
		}
	}
	if isDouble(a, b) {
		x, y := asDouble(a), asDouble(b)
		switch op {
		case "<":
			return BoolValue(x < y)
		case "<=":
			return BoolValue(x <= y)
		case ">":
			return BoolValue(x > y)
		case ">=":
			return BoolValue(x >= y)
		}
	}
	x, y := asInt(a), asInt(b)
	switch op {
	case "<":
		return BoolValue(x < y)
	case "<=":
		return BoolValue(x <= y)
	case ">":
		return BoolValue(x > y)
	case ">=":
		return BoolValue(x >= y)
	}
	return BoolValue(false)
}

func (it *Interpreter) evalBinary(n *compactast.Node) Value {
	op := n.Attrs.Operator
	lhsNode, rhsNode := n.Children[0], n.Children[1]

	if op == "&&" {
		if !it.eval(lhsNode).Truthy() {
			return BoolValue(false)
		}
		return BoolValue(it.eval(rhsNode).Truthy())
	}
	if op == "||" {
		if it.eval(lhsNode).Truthy() {
			return BoolValue(true)
		}
		return BoolValue(it.eval(rhsNode).Truthy())
	}

	l := it.eval(lhsNode)
	r := it.eval(rhsNode)
	return it.applyBinary(op, l, r, n)
}

func (it *Interpreter) applyBinary(op string, l, r Value, n *compactast.Node) Value {
	isStr := l.Kind == KString || r.Kind == KString || l.Kind == KEnhancedString || r.Kind == KEnhancedString
	if op == "+" && isStr {
		return StringValue(stringOf(l) + stringOf(r))
	}

	switch op {
	case "==":
		return BoolValue(valuesEqual(l, r))
	case "!=":
		return BoolValue(!valuesEqual(l, r))
	case "<", "<=", ">", ">=":
		return compareOrdered(op, l, r)
	}

	useDouble := isDouble(l, r)
	switch op {
	case "+":
		if useDouble {
			return DoubleValue(asDouble(l) + asDouble(r))
		}
		return IntValue(wrapInt32(int64(asInt(l)) + int64(asInt(r))))
	case "-":
		if useDouble {
			return DoubleValue(asDouble(l) - asDouble(r))
		}
		return IntValue(wrapInt32(int64(asInt(l)) - int64(asInt(r))))
	case "*":
		if useDouble {
			return DoubleValue(asDouble(l) * asDouble(r))
		}
		return IntValue(wrapInt32(int64(asInt(l)) * int64(asInt(r))))
	case "/":
		if useDouble {
			return DoubleValue(asDouble(l) / asDouble(r)) // IEEE Inf/NaN on zero divisor
		}
		ri := asInt(r)
		if ri == 0 {
			panic(&InterpError{Kind: DivideByZero, Message: "integer division by zero", NodeKind: n.Tag.String(), Offset: n.Offset})
		}
		return IntValue(wrapInt32(int64(asInt(l)) / int64(ri))) // Go truncates toward zero
	case "%":
		if useDouble {
			return DoubleValue(doubleMod(asDouble(l), asDouble(r)))
		}
		ri := asInt(r)
		if ri == 0 {
			panic(&InterpError{Kind: DivideByZero, Message: "integer modulo by zero", NodeKind: n.Tag.String(), Offset: n.Offset})
		}
		return IntValue(asInt(l) % ri)
	case "&":
		return IntValue(asInt(l) & asInt(r))
	case "|":
		return IntValue(asInt(l) | asInt(r))
	case "^":
		return IntValue(asInt(l) ^ asInt(r))
	case "<<":
		return IntValue(asInt(l) << uint(asInt(r)))
	case ">>":
		return IntValue(asInt(l) >> uint(asInt(r)))
	}
	panic(&InterpError{Kind: TypeError, Message: "unknown binary operator " + op, NodeKind: n.Tag.String(), Offset: n.Offset})
}

func (it *Interpreter) evalUnary(n *compactast.Node) Value {
	op := n.Attrs.Operator
	switch op {
	case "-":
		v := it.eval(n.Children[0])
		if v.Kind == KDouble {
			return DoubleValue(-v.D)
		}
		return IntValue(wrapInt32(-int64(asInt(v))))
	case "+":
		return it.eval(n.Children[0])
	case "!":
		return BoolValue(!it.eval(n.Children[0]).Truthy())
	case "~":
		return IntValue(^asInt(it.eval(n.Children[0])))
	case "++":
		return it.evalIncDec(n.Children[0], 1, true)
	case "--":
		return it.evalIncDec(n.Children[0], -1, true)
	}
	panic(&InterpError{Kind: TypeError, Message: "unknown unary operator " + op, NodeKind: n.Tag.String(), Offset: n.Offset})
}

func (it *Interpreter) evalPostfix(n *compactast.Node) Value {
	switch n.Attrs.Operator {
	case "++":
		return it.evalIncDec(n.Children[0], 1, false)
	case "--":
		return it.evalIncDec(n.Children[0], -1, false)
	}
	panic(&InterpError{Kind: TypeError, Message: "unknown postfix operator " + n.Attrs.Operator})
}

func (it *Interpreter) evalIncDec(target *compactast.Node, delta int32, prefix bool) Value {
	old := it.evalLValue(target)
	var nv Value
	if old.Kind == KDouble {
		nv = DoubleValue(old.D + float64(delta))
	} else {
		nv = IntValue(wrapInt32(int64(asInt(old)) + int64(delta)))
	}
	it.assignTo(target, nv)
	if prefix {
		return nv
	}
	return old
}

// evalLValue reads the current value of an assignable expression, used by
// ++/-- and compound assignment for their read-modify-write.
func (it *Interpreter) evalLValue(target *compactast.Node) Value {
	return it.eval(target)
}

func (it *Interpreter) evalCompoundAssignment(n *compactast.Node) Value {
	target, rhsNode := n.Children[0], n.Children[1]
	op := n.Attrs.Operator // e.g. "+=" -> base operator is op[:len(op)-1]
	base := op
	if len(op) > 1 && op[len(op)-1] == '=' {
		base = op[:len(op)-1]
	}
	old := it.evalLValue(target)
	rhs := it.eval(rhsNode)
	nv := it.applyBinary(base, old, rhs, n)
	return it.assignTo(target, nv)
}

func (it *Interpreter) assignTo(target *compactast.Node, val Value) Value {
	switch target.Tag {
	case compactast.TagIdentifier:
		if err := it.scope.Assign(target.Attrs.Name, val); err != nil {
			panic(err)
		}
		return val
	case compactast.TagMember:
		return it.assignMember(target, val)
	case compactast.TagArrowMember:
		return it.assignArrowMember(target, val)
	case compactast.TagSubscript:
		h, idx := it.resolveIndex(target)
		h.Data[idx] = val
		return val
	case compactast.TagDereference:
		return it.assignDereference(target, val)
	}
	panic(&InterpError{Kind: TypeError, Message: "invalid assignment target", NodeKind: target.Tag.String(), Offset: target.Offset})
}

func (it *Interpreter) evalMember(n *compactast.Node) Value {
	obj := it.eval(n.Children[0])
	field := n.Attrs.Name
	if obj.Kind != KStruct || obj.St == nil {
		panic(&InterpError{Kind: TypeError, Message: "member access on non-struct value", NodeKind: n.Tag.String(), Offset: n.Offset})
	}
	v, ok := obj.St.Fields[field]
	if !ok {
		panic(&InterpError{Kind: NameError, Message: "no such field " + field})
	}
	return v
}

func (it *Interpreter) assignMember(n *compactast.Node, val Value) Value {
	obj := it.eval(n.Children[0])
	if obj.Kind != KStruct || obj.St == nil {
		panic(&InterpError{Kind: TypeError, Message: "member assignment on non-struct value", NodeKind: n.Tag.String(), Offset: n.Offset})
	}
	obj.St.Fields[n.Attrs.Name] = val
	return val
}

func (it *Interpreter) resolvePointerTarget(ptrNode *compactast.Node) *Variable {
	ptrVal := it.eval(ptrNode)
	if ptrVal.Kind != KPointer || ptrVal.Ptr == nil || ptrVal.Ptr.Null {
		panic(&InterpError{Kind: NullDereference, Message: "dereference of null pointer", NodeKind: ptrNode.Tag.String(), Offset: ptrNode.Offset})
	}
	v, ok := LookupIn(ptrVal.Ptr.Frame, ptrVal.Ptr.Name)
	if !ok {
		panic(&InterpError{Kind: NullDereference, Message: "dangling pointer target"})
	}
	return v
}

func (it *Interpreter) evalArrowMember(n *compactast.Node) Value {
	target := it.resolvePointerTarget(n.Children[0])
	if target.Value.Kind != KStruct || target.Value.St == nil {
		panic(&InterpError{Kind: TypeError, Message: "-> on non-struct pointer target"})
	}
	v, ok := target.Value.St.Fields[n.Attrs.Name]
	if !ok {
		panic(&InterpError{Kind: NameError, Message: "no such field " + n.Attrs.Name})
	}
	return v
}

func (it *Interpreter) assignArrowMember(n *compactast.Node, val Value) Value {
	target := it.resolvePointerTarget(n.Children[0])
	if target.Value.Kind != KStruct || target.Value.St == nil {
		panic(&InterpError{Kind: TypeError, Message: "-> on non-struct pointer target"})
	}
	target.Value.St.Fields[n.Attrs.Name] = val
	return val
}

func (it *Interpreter) evalDereference(n *compactast.Node) Value {
	return it.resolvePointerTarget(n.Children[0]).Value
}

func (it *Interpreter) assignDereference(n *compactast.Node, val Value) Value {
	target := it.resolvePointerTarget(n.Children[0])
	if target.IsConst {
		panic(&InterpError{Kind: ConstViolation, Message: "write through pointer to const"})
	}
	target.Value = val
	return val
}

func (it *Interpreter) evalAddressOf(n *compactast.Node) Value {
	id := n.Children[0]
	if id.Tag != compactast.TagIdentifier {
		panic(&InterpError{Kind: TypeError, Message: "address-of requires an identifier"})
	}
	frame := it.scope.FrameAt(id.Attrs.Name)
	if frame == nil {
		panic(&InterpError{Kind: NameError, Message: "undefined identifier " + id.Attrs.Name})
	}
	declType := ""
	if v, ok := LookupIn(frame, id.Attrs.Name); ok {
		declType = v.DeclaredType
	}
	return Value{Kind: KPointer, Ptr: NewPointer(frame, id.Attrs.Name, declType)}
}

// resolveIndex evaluates a Subscript node's array operand and its one or
// two index operands (1-D or 2-D access), bounds-checking against the
// array's declared dimensions.
func (it *Interpreter) resolveIndex(n *compactast.Node) (*ArrayHandle, int) {
	arrVal := it.eval(n.Children[0])
	if arrVal.Kind != KArray || arrVal.Arr == nil {
		panic(&InterpError{Kind: TypeError, Message: "subscript of non-array value", NodeKind: n.Tag.String(), Offset: n.Offset})
	}
	h := arrVal.Arr
	if len(n.Children) == 2 {
		idx := int(asInt(it.eval(n.Children[1])))
		if idx < 0 || idx >= h.Len() {
			panic(&InterpError{Kind: IndexOutOfRange, Message: "array index out of range", NodeKind: n.Tag.String(), Offset: n.Offset})
		}
		return h, idx
	}
	if len(n.Children) == 3 && len(h.Dims) == 2 {
		row := int(asInt(it.eval(n.Children[1])))
		col := int(asInt(it.eval(n.Children[2])))
		if row < 0 || row >= h.Dims[0] || col < 0 || col >= h.Dims[1] {
			panic(&InterpError{Kind: IndexOutOfRange, Message: "array index out of range", NodeKind: n.Tag.String(), Offset: n.Offset})
		}
		return h, row*h.Dims[1] + col
	}
	panic(&InterpError{Kind: TypeError, Message: "malformed subscript"})
}

func (it *Interpreter) evalCast(n *compactast.Node) Value {
	v := it.eval(n.Children[0])
	switch n.Attrs.Type {
	case "int", "int32", "short", "long":
		return IntValue(asInt(v))
	case "unsigned int", "uint32_t", "unsigned long":
		return UintValue(uint32(asInt(v)))
	case "double", "float":
		return DoubleValue(asDouble(v))
	case "bool", "boolean":
		return BoolValue(v.Truthy())
	case "char", "byte", "uint8_t":
		return IntValue(asInt(v) & 0xff)
	case "String", "string":
		return StringValue(stringOf(v))
	}
	return v
}

var typeSizes = map[string]int32{
	"bool": 1, "boolean": 1, "char": 1, "byte": 1, "uint8_t": 1,
	"short": 2, "int16_t": 2,
	"int": 4, "unsigned int": 4, "int32_t": 4, "uint32_t": 4, "float": 4,
	"long": 4, "double": 8,
}

func (it *Interpreter) evalSizeof(n *compactast.Node) Value {
	if sz, ok := typeSizes[n.Attrs.Type]; ok {
		return IntValue(sz)
	}
	if len(n.Children) == 1 {
		v := it.eval(n.Children[0])
		if v.Kind == KArray && v.Arr != nil {
			return IntValue(int32(v.Arr.Len()) * 4)
		}
	}
	return IntValue(4)
}

func (it *Interpreter) evalArrayInit(n *compactast.Node) Value {
	elemKind := KInt
	switch n.Attrs.Type {
	case "double", "float":
		elemKind = KDouble
	case "String", "string":
		elemKind = KString
	}
	values := make([]Value, len(n.Children))
	for i, c := range n.Children {
		values[i] = it.eval(c)
		if i == 0 && n.Attrs.Type == "" {
			elemKind = values[0].Kind
		}
	}
	h := &ArrayHandle{refs: 1, ElemKind: elemKind, Dims: []int{len(values)}, Data: values}
	return Value{Kind: KArray, Arr: h}
}

func (it *Interpreter) evalStructInit(n *compactast.Node) Value {
	typeName := n.Attrs.Type
	order := it.structFieldOrder(typeName, len(n.Children))
	h := NewStruct(typeName, order)
	for i, c := range n.Children {
		if i >= len(order) {
			break
		}
		h.Fields[order[i]] = it.eval(c)
	}
	return Value{Kind: KStruct, St: h}
}

// structFieldOrder resolves field declaration order from the indexed
// StructDef when known, falling back to synthesized "_N" names for a
// struct-init literal whose type wasn't declared in this program.
func (it *Interpreter) structFieldOrder(typeName string, n int) []string {
	if def, ok := it.structDefs[typeName]; ok {
		var order []string
		for _, c := range def.Children {
			if c.Attrs.HasName {
				order = append(order, c.Attrs.Name)
			}
		}
		if len(order) > 0 {
			return order
		}
	}
	order := make([]string, n)
	for i := range order {
		order[i] = "_" + strconv.Itoa(i)
	}
	return order
}
