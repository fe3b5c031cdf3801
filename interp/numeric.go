package interp

import "math"

// isNumeric reports whether v participates in numeric promotion (int32,
// uint32, double, bool and char-as-int all qualify per the ASCII
// implicit-conversion rule).
func isNumeric(v Value) bool {
	switch v.Kind {
	case KInt, KUint, KDouble, KBool:
		return true
	}
	return false
}

// asDouble widens any numeric value to float64.
func asDouble(v Value) float64 {
	switch v.Kind {
	case KInt:
		return float64(v.I)
	case KUint:
		return float64(v.U)
	case KDouble:
		return v.D
	case KBool:
		if v.B {
			return 1
		}
		return 0
	case KString:
		return 0
	}
	return 0
}

// asInt narrows any numeric value to int32, wrapping modulo 2^32 on
// overflow per the integer-overflow invariant.
func asInt(v Value) int32 {
	switch v.Kind {
	case KInt:
		return v.I
	case KUint:
		return int32(v.U)
	case KDouble:
		return int32(int64(v.D))
	case KBool:
		if v.B {
			return 1
		}
		return 0
	}
	return 0
}

// isDouble reports whether either operand forces double-width promotion.
func isDouble(a, b Value) bool {
	return a.Kind == KDouble || b.Kind == KDouble
}

// wrapInt32 applies the "integer overflow wraps modulo 2^32" rule to a
// 64-bit intermediate result (e.g. INT32_MAX + 1 -> INT32_MIN).
func wrapInt32(v int64) int32 {
	return int32(uint32(v))
}

// doubleMod implements IEEE remainder-with-sign-of-dividend, i.e. C's
// fmod, which differs from math.Remainder (round-to-nearest).
func doubleMod(a, b float64) float64 {
	return math.Mod(a, b)
}
