package interp

func registerSerialLibrary(r *libraryRegistry) {
	r.register("Serial", "begin", LibExternal, fnSerialBegin)
	r.register("Serial", "print", LibExternal, fnSerialPrint)
	r.register("Serial", "println", LibExternal, fnSerialPrintln)
	r.register("Serial", "write", LibExternal, fnSerialWrite)
}

func fnSerialBegin(it *Interpreter, args []Value) (Value, error) {
	if len(args) != 1 {
		return Value{}, argCountError("Serial.begin", 1, len(args))
	}
	it.emit(CmdSerialBegin, f("baud", asInt(args[0])))
	return VoidValue(), nil
}

// serialPayload renders the printed value the way the wire protocol
// expects: numbers print as themselves, not stringified-then-requoted, so
// the JSON payload's "value" key stays a JSON number for numeric operands.
func serialPayload(v Value) interface{} {
	switch v.Kind {
	case KInt:
		return v.I
	case KUint:
		return v.U
	case KDouble:
		return v.D
	case KBool:
		return v.B
	default:
		return stringOf(v)
	}
}

func fnSerialPrint(it *Interpreter, args []Value) (Value, error) {
	if len(args) != 1 {
		return Value{}, argCountError("Serial.print", 1, len(args))
	}
	it.emit(CmdSerialPrint, f("value", serialPayload(args[0])))
	return VoidValue(), nil
}

func fnSerialPrintln(it *Interpreter, args []Value) (Value, error) {
	if len(args) > 1 {
		return Value{}, argCountError("Serial.println", 1, len(args))
	}
	var v Value
	if len(args) == 1 {
		v = args[0]
	}
	it.emit(CmdSerialPrintln, f("value", serialPayload(v)))
	return VoidValue(), nil
}

func fnSerialWrite(it *Interpreter, args []Value) (Value, error) {
	if len(args) != 1 {
		return Value{}, argCountError("Serial.write", 1, len(args))
	}
	it.emit(CmdSerialWrite, f("value", asInt(args[0])))
	return VoidValue(), nil
}
