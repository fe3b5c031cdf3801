package interp

import "math"

// registerMathLibrary registers the internal built-ins: pure functions
// that never emit a command.
func registerMathLibrary(r *libraryRegistry) {
	r.register("", "min", LibInternal, fnMin)
	r.register("", "max", LibInternal, fnMax)
	r.register("", "abs", LibInternal, fnAbs)
	r.register("", "map", LibInternal, fnMap)
	r.register("", "constrain", LibInternal, fnConstrain)
	r.register("", "sin", LibInternal, fnSin)
	r.register("", "cos", LibInternal, fnCos)
	r.register("", "sqrt", LibInternal, fnSqrt)
	r.register("", "pow", LibInternal, fnPow)
	r.register("", "bitRead", LibInternal, fnBitRead)
	r.register("", "bitWrite", LibInternal, fnBitWrite)
	r.register("", "lowByte", LibInternal, fnLowByte)
	r.register("", "highByte", LibInternal, fnHighByte)
	r.register("String", "length", LibInternal, fnStringLength)
	r.register("String", "substring", LibInternal, fnStringSubstring)
	r.register("String", "charAt", LibInternal, fnStringCharAt)
	r.register("String", "indexOf", LibInternal, fnStringIndexOf)
	r.register("String", "toUpperCase", LibInternal, fnStringToUpper)
	r.register("String", "toLowerCase", LibInternal, fnStringToLower)
}

func numericBinary(a, b Value, onInt func(int32, int32) int32, onDouble func(float64, float64) float64) Value {
	if isDouble(a, b) {
		return DoubleValue(onDouble(asDouble(a), asDouble(b)))
	}
	return IntValue(onInt(asInt(a), asInt(b)))
}

func fnMin(_ *Interpreter, args []Value) (Value, error) {
	if len(args) != 2 {
		return Value{}, argCountError("min", 2, len(args))
	}
	return numericBinary(args[0], args[1],
		func(a, b int32) int32 {
			if a < b {
				return a
			}
			return b
		},
		func(a, b float64) float64 { return math.Min(a, b) }), nil
}

func fnMax(_ *Interpreter, args []Value) (Value, error) {
	if len(args) != 2 {
		return Value{}, argCountError("max", 2, len(args))
	}
	return numericBinary(args[0], args[1],
		func(a, b int32) int32 {
			if a > b {
				return a
			}
			return b
		},
		func(a, b float64) float64 { return math.Max(a, b) }), nil
}

func fnAbs(_ *Interpreter, args []Value) (Value, error) {
	if len(args) != 1 {
		return Value{}, argCountError("abs", 1, len(args))
	}
	v := args[0]
	if v.Kind == KDouble {
		return DoubleValue(math.Abs(v.D)), nil
	}
	n := asInt(v)
	if n < 0 {
		n = -n
	}
	return IntValue(n), nil
}

func fnMap(_ *Interpreter, args []Value) (Value, error) {
	if len(args) != 5 {
		return Value{}, argCountError("map", 5, len(args))
	}
	x, inMin, inMax, outMin, outMax := asDouble(args[0]), asDouble(args[1]), asDouble(args[2]), asDouble(args[3]), asDouble(args[4])
	if inMax == inMin {
		return Value{}, &InterpError{Kind: DivideByZero, Message: "map: in_max == in_min"}
	}
	result := (x-inMin)*(outMax-outMin)/(inMax-inMin) + outMin
	return IntValue(wrapInt32(int64(result))), nil
}

func fnConstrain(_ *Interpreter, args []Value) (Value, error) {
	if len(args) != 3 {
		return Value{}, argCountError("constrain", 3, len(args))
	}
	if isDouble(args[0], args[1]) || isDouble(args[0], args[2]) {
		x, lo, hi := asDouble(args[0]), asDouble(args[1]), asDouble(args[2])
		if x < lo {
			return DoubleValue(lo), nil
		}
		if x > hi {
			return DoubleValue(hi), nil
		}
		return DoubleValue(x), nil
	}
	x, lo, hi := asInt(args[0]), asInt(args[1]), asInt(args[2])
	if x < lo {
		return IntValue(lo), nil
	}
	if x > hi {
		return IntValue(hi), nil
	}
	return IntValue(x), nil
}

func fnSin(_ *Interpreter, args []Value) (Value, error) {
	if len(args) != 1 {
		return Value{}, argCountError("sin", 1, len(args))
	}
	return DoubleValue(math.Sin(asDouble(args[0]))), nil
}

func fnCos(_ *Interpreter, args []Value) (Value, error) {
	if len(args) != 1 {
		return Value{}, argCountError("cos", 1, len(args))
	}
	return DoubleValue(math.Cos(asDouble(args[0]))), nil
}

func fnSqrt(_ *Interpreter, args []Value) (Value, error) {
	if len(args) != 1 {
		return Value{}, argCountError("sqrt", 1, len(args))
	}
	return DoubleValue(math.Sqrt(asDouble(args[0]))), nil
}

func fnPow(_ *Interpreter, args []Value) (Value, error) {
	if len(args) != 2 {
		return Value{}, argCountError("pow", 2, len(args))
	}
	return DoubleValue(math.Pow(asDouble(args[0]), asDouble(args[1]))), nil
}

func fnBitRead(_ *Interpreter, args []Value) (Value, error) {
	if len(args) != 2 {
		return Value{}, argCountError("bitRead", 2, len(args))
	}
	v, bit := asInt(args[0]), asInt(args[1])
	return IntValue((v >> uint(bit)) & 1), nil
}

func fnBitWrite(_ *Interpreter, args []Value) (Value, error) {
	if len(args) != 3 {
		return Value{}, argCountError("bitWrite", 3, len(args))
	}
	v, bit, bitVal := asInt(args[0]), uint(asInt(args[1])), asInt(args[2])
	if bitVal != 0 {
		v |= 1 << bit
	} else {
		v &^= 1 << bit
	}
	return IntValue(v), nil
}

func fnLowByte(_ *Interpreter, args []Value) (Value, error) {
	if len(args) != 1 {
		return Value{}, argCountError("lowByte", 1, len(args))
	}
	return IntValue(asInt(args[0]) & 0xff), nil
}

func fnHighByte(_ *Interpreter, args []Value) (Value, error) {
	if len(args) != 1 {
		return Value{}, argCountError("highByte", 1, len(args))
	}
	return IntValue((asInt(args[0]) >> 8) & 0xff), nil
}

func stringOf(v Value) string {
	if v.Kind == KEnhancedString && v.Es != nil {
		return string(v.Es.Buf)
	}
	return v.S
}

func fnStringLength(_ *Interpreter, args []Value) (Value, error) {
	if len(args) != 1 {
		return Value{}, argCountError("String.length", 1, len(args))
	}
	return IntValue(int32(len(stringOf(args[0])))), nil
}

func fnStringSubstring(_ *Interpreter, args []Value) (Value, error) {
	if len(args) < 2 || len(args) > 3 {
		return Value{}, argCountError("String.substring", 2, len(args))
	}
	s := stringOf(args[0])
	start := int(asInt(args[1]))
	end := len(s)
	if len(args) == 3 {
		end = int(asInt(args[2]))
	}
	if start < 0 {
		start = 0
	}
	if end > len(s) {
		end = len(s)
	}
	if start > end {
		return Value{}, &InterpError{Kind: IndexOutOfRange, Message: "String.substring: start > end"}
	}
	return StringValue(s[start:end]), nil
}

func fnStringCharAt(_ *Interpreter, args []Value) (Value, error) {
	if len(args) != 2 {
		return Value{}, argCountError("String.charAt", 2, len(args))
	}
	s := stringOf(args[0])
	idx := int(asInt(args[1]))
	if idx < 0 || idx >= len(s) {
		return Value{}, &InterpError{Kind: IndexOutOfRange, Message: "String.charAt: index out of range"}
	}
	return IntValue(int32(s[idx])), nil
}

func fnStringIndexOf(_ *Interpreter, args []Value) (Value, error) {
	if len(args) != 2 {
		return Value{}, argCountError("String.indexOf", 2, len(args))
	}
	s := stringOf(args[0])
	needle := stringOf(args[1])
	for i := 0; i+len(needle) <= len(s); i++ {
		if s[i:i+len(needle)] == needle {
			return IntValue(int32(i)), nil
		}
	}
	return IntValue(-1), nil
}

func fnStringToUpper(_ *Interpreter, args []Value) (Value, error) {
	if len(args) != 1 {
		return Value{}, argCountError("String.toUpperCase", 1, len(args))
	}
	s := []byte(stringOf(args[0]))
	for i, c := range s {
		if c >= 'a' && c <= 'z' {
			s[i] = c - 'a' + 'A'
		}
	}
	return StringValue(string(s)), nil
}

func fnStringToLower(_ *Interpreter, args []Value) (Value, error) {
	if len(args) != 1 {
		return Value{}, argCountError("String.toLowerCase", 1, len(args))
	}
	s := []byte(stringOf(args[0]))
	for i, c := range s {
		if c >= 'A' && c <= 'Z' {
			s[i] = c - 'A' + 'a'
		}
	}
	return StringValue(string(s)), nil
}

func argCountError(name string, want, got int) error {
	return &InterpError{Kind: TypeError, Message: name + ": wrong argument count"}
}
