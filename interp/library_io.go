package interp

// registerIOLibrary registers the external built-ins: those that either
// produce an observable side-effect command or block on a world-read.
func registerIOLibrary(r *libraryRegistry) {
	r.register("", "pinMode", LibExternal, fnPinMode)
	r.register("", "digitalWrite", LibExternal, fnDigitalWrite)
	r.register("", "analogWrite", LibExternal, fnAnalogWrite)
	r.register("", "delay", LibExternal, fnDelay)
	r.register("", "delayMicroseconds", LibExternal, fnDelayMicroseconds)
	r.register("", "tone", LibExternal, fnTone)
	r.register("", "noTone", LibExternal, fnNoTone)
	r.register("", "attachInterrupt", LibExternal, fnAttachInterrupt)
	r.register("", "analogRead", LibExternal, fnAnalogRead)
	r.register("", "digitalRead", LibExternal, fnDigitalRead)
	r.register("", "millis", LibExternal, fnMillis)
	r.register("", "micros", LibExternal, fnMicros)
	r.register("", "pulseIn", LibExternal, fnPulseIn)
}

func fnPinMode(it *Interpreter, args []Value) (Value, error) {
	if len(args) != 2 {
		return Value{}, argCountError("pinMode", 2, len(args))
	}
	it.emit(CmdPinMode, f("pin", asInt(args[0])), f("mode", asInt(args[1])))
	return VoidValue(), nil
}

func fnDigitalWrite(it *Interpreter, args []Value) (Value, error) {
	if len(args) != 2 {
		return Value{}, argCountError("digitalWrite", 2, len(args))
	}
	it.emit(CmdDigitalWrite, f("pin", asInt(args[0])), f("value", asInt(args[1])))
	return VoidValue(), nil
}

func fnAnalogWrite(it *Interpreter, args []Value) (Value, error) {
	if len(args) != 2 {
		return Value{}, argCountError("analogWrite", 2, len(args))
	}
	it.emit(CmdAnalogWrite, f("pin", asInt(args[0])), f("value", asInt(args[1])))
	return VoidValue(), nil
}

func fnDelay(it *Interpreter, args []Value) (Value, error) {
	if len(args) != 1 {
		return Value{}, argCountError("delay", 1, len(args))
	}
	ms := asInt(args[0])
	it.advanceClock(uint32(ms))
	it.emit(CmdDelay, f("ms", ms))
	return VoidValue(), nil
}

func fnDelayMicroseconds(it *Interpreter, args []Value) (Value, error) {
	if len(args) != 1 {
		return Value{}, argCountError("delayMicroseconds", 1, len(args))
	}
	us := asInt(args[0])
	it.emit(CmdDelayMicroseconds, f("us", us))
	return VoidValue(), nil
}

func fnTone(it *Interpreter, args []Value) (Value, error) {
	if len(args) < 2 || len(args) > 3 {
		return Value{}, argCountError("tone", 2, len(args))
	}
	fields := []field{f("pin", asInt(args[0])), f("frequency", asInt(args[1]))}
	if len(args) == 3 {
		fields = append(fields, f("duration", asInt(args[2])))
	}
	it.emit(CmdTone, fields...)
	return VoidValue(), nil
}

func fnNoTone(it *Interpreter, args []Value) (Value, error) {
	if len(args) != 1 {
		return Value{}, argCountError("noTone", 1, len(args))
	}
	it.emit(CmdNoTone, f("pin", asInt(args[0])))
	return VoidValue(), nil
}

func fnAttachInterrupt(it *Interpreter, args []Value) (Value, error) {
	if len(args) != 3 {
		return Value{}, argCountError("attachInterrupt", 3, len(args))
	}
	it.emit(CmdAttachInterrupt, f("interrupt", asInt(args[0])), f("function", args[1].String()), f("mode", asInt(args[2])))
	return VoidValue(), nil
}

func fnAnalogRead(it *Interpreter, args []Value) (Value, error) {
	if len(args) != 1 {
		return Value{}, argCountError("analogRead", 1, len(args))
	}
	pin := asInt(args[0])
	return it.blockingRequest(CmdAnalogReadRequest, []field{f("pin", pin)},
		func(p SyncDataProvider) (Value, error) {
			v, err := p.AnalogRead(pin)
			return IntValue(v), err
		})
}

func fnDigitalRead(it *Interpreter, args []Value) (Value, error) {
	if len(args) != 1 {
		return Value{}, argCountError("digitalRead", 1, len(args))
	}
	pin := asInt(args[0])
	return it.blockingRequest(CmdDigitalReadRequest, []field{f("pin", pin)},
		func(p SyncDataProvider) (Value, error) {
			v, err := p.DigitalRead(pin)
			return IntValue(v), err
		})
}

func fnMillis(it *Interpreter, _ []Value) (Value, error) {
	return it.blockingRequest(CmdMillisRequest, nil,
		func(p SyncDataProvider) (Value, error) {
			v, err := p.Millis()
			return UintValue(v), err
		})
}

func fnMicros(it *Interpreter, _ []Value) (Value, error) {
	return it.blockingRequest(CmdMicrosRequest, nil,
		func(p SyncDataProvider) (Value, error) {
			v, err := p.Micros()
			return UintValue(v), err
		})
}

func fnPulseIn(it *Interpreter, args []Value) (Value, error) {
	if len(args) < 2 || len(args) > 3 {
		return Value{}, argCountError("pulseIn", 2, len(args))
	}
	pin, value := asInt(args[0]), asInt(args[1])
	timeout := uint32(1000000)
	if len(args) == 3 {
		timeout = uint32(asInt(args[2]))
	}
	return it.blockingRequest(CmdPulseInRequest, []field{f("pin", pin), f("value", value)},
		func(p SyncDataProvider) (Value, error) {
			v, err := p.PulseIn(pin, value, timeout)
			return UintValue(v), err
		})
}
