package interp

import (
	"sync/atomic"

	"github.com/sfranzyshen/ArduinoASTInterpreter-sub000/internal/compactast"
)

// runProgram is the worker goroutine's entry point for a full run: it
// recovers the internal unwind signals (loop limit, queued reset, and
// fatal InterpError) at one top-level boundary, the same way a panic is
// recovered at an interpreter's outermost evaluation entry point, converts
// a fatal error into a single ERROR command, and always leaves exactly one
// value on suspendedCh so the blocked Start/Resume/Step call can return.
func (it *Interpreter) runProgram() {
	defer func() {
		if r := recover(); r != nil {
			switch sig := r.(type) {
			case resetSignal:
				it.reinitialize()
			case loopLimitSignal:
				it.emit(CmdProgramEnd, f("reason", "loop_limit"))
				it.setState(StateComplete)
			case *InterpError:
				it.emit(CmdError, f("kind", sig.Kind.String()), f("message", sig.Message), f("node", sig.NodeKind), f("offset", sig.Offset))
				it.setState(StateError)
			default:
				panic(r)
			}
		}
		select {
		case it.suspendedCh <- struct{}{}:
		default:
		}
	}()

	if it.opts.EmitVersionInfo {
		it.emit(CmdVersionInfo, f("version", "3.2.0"))
	}
	it.emit(CmdProgramStart)

	it.checkpoint()
	it.runSetup()

	for it.loopIteration < it.opts.MaxLoopIterations {
		it.checkpoint()
		it.runOneLoop()
		it.loopIteration++
		it.mu.Lock()
		it.stats.LoopIterations = it.loopIteration
		it.mu.Unlock()
	}

	it.emit(CmdProgramEnd, f("reason", "loop_limit"))
	it.setState(StateComplete)
}

func (it *Interpreter) runSetup() {
	it.emit(CmdSetupStart)
	if fn, ok := it.userFuncs["setup"]; ok {
		it.callUserFunction(fn, nil)
	}
	it.emit(CmdSetupEnd)
}

func (it *Interpreter) runOneLoop() {
	it.emit(CmdLoopStart, f("iteration", it.loopIteration))
	if fn, ok := it.userFuncs["loop"]; ok {
		it.callUserFunction(fn, nil)
	}
	it.emit(CmdLoopEnd, f("iteration", it.loopIteration))
}

// execCompound runs a block's statements in order, checkpointing between
// each one so Pause/Step/Reset take effect at a whole-statement boundary,
// and restores scope depth afterward regardless of how it exits (return,
// break, continue or a panic all unwind through this defer).
func (it *Interpreter) execCompound(n *compactast.Node) {
	it.scope.Push()
	defer it.scope.Pop()
	for _, stmt := range n.Children {
		it.checkpoint()
		it.execStmt(stmt)
	}
}

func (it *Interpreter) execStmt(n *compactast.Node) {
	if n == nil {
		return
	}
	it.tr.record(TraceEntry, n.Tag.String(), "")
	defer it.tr.record(TraceExit, n.Tag.String(), "")

	switch n.Tag {
	case compactast.TagCompound:
		it.execCompound(n)
	case compactast.TagVarDecl:
		it.execVarDecl(n)
	case compactast.TagExprStmt:
		if len(n.Children) > 0 {
			it.eval(n.Children[0])
		}
	case compactast.TagIf:
		it.execIf(n)
	case compactast.TagFor:
		it.execFor(n)
	case compactast.TagWhile:
		it.execWhile(n)
	case compactast.TagDoWhile:
		it.execDoWhile(n)
	case compactast.TagSwitch:
		it.execSwitch(n)
	case compactast.TagReturn:
		var v Value
		if len(n.Children) > 0 {
			v = it.eval(n.Children[0])
		} else {
			v = VoidValue()
		}
		panic(returnSignal{value: v})
	case compactast.TagBreak:
		panic(breakSignal{})
	case compactast.TagContinue:
		panic(continueSignal{})
	case compactast.TagEmptyStmt, compactast.TagPreprocessor, compactast.TagTypedef,
		compactast.TagStructDef, compactast.TagEnumDef, compactast.TagFuncDef:
		// declarations are indexed ahead of time; nothing to execute here.
	default:
		it.eval(n)
	}
}

func (it *Interpreter) execVarDecl(n *compactast.Node) {
	if !n.Attrs.HasName {
		return
	}
	name := n.Attrs.Name
	declType := n.Attrs.Type
	isConst := n.HasFlag(compactast.FlagConst)
	isRef := n.HasFlag(compactast.FlagReference)
	isGlobal := n.HasFlag(compactast.FlagGlobalDecl)

	if isRef && len(n.Children) > 0 && n.Children[0].Tag == compactast.TagIdentifier {
		if target, ok := it.scope.Lookup(n.Children[0].Attrs.Name); ok {
			if err := it.scope.DeclareAlias(name, target); err != nil {
				panic(err)
			}
			return
		}
	}

	var val Value
	if len(n.Children) > 0 {
		val = it.eval(n.Children[0])
	} else {
		val = zeroValueForType(declType)
	}

	v := Variable{Value: val, DeclaredType: declType, IsConst: isConst, IsReference: isRef}
	var err error
	if isGlobal {
		err = it.scope.DeclareGlobal(name, v)
	} else {
		err = it.scope.Declare(name, v)
	}
	if err != nil {
		panic(err)
	}
}

func zeroValueForType(declType string) Value {
	switch declType {
	case "double", "float":
		return DoubleValue(0)
	case "String", "string":
		return StringValue("")
	case "bool", "boolean":
		return BoolValue(false)
	default:
		return IntValue(0)
	}
}

func (it *Interpreter) execIf(n *compactast.Node) {
	if len(n.Children) < 2 {
		return
	}
	cond := it.eval(n.Children[0])
	if cond.Truthy() {
		it.execStmt(n.Children[1])
	} else if len(n.Children) > 2 {
		it.execStmt(n.Children[2])
	}
}

// runLoopBody executes one loop-header body, translating break/continue
// unwind signals into normal control flow at the loop level.
func (it *Interpreter) runLoopBody(body *compactast.Node) (brk bool) {
	defer func() {
		if r := recover(); r != nil {
			switch r.(type) {
			case breakSignal:
				brk = true
			case continueSignal:
				// fall through, loop continues
			default:
				panic(r)
			}
		}
	}()
	it.execStmt(body)
	return false
}

func (it *Interpreter) execFor(n *compactast.Node) {
	// Children, in order: [init?, cond?, update?, body], with EmptyStmt
	// markers standing in for an omitted clause so arity stays fixed.
	if len(n.Children) != 4 {
		return
	}
	init, cond, update, body := n.Children[0], n.Children[1], n.Children[2], n.Children[3]

	it.scope.Push()
	defer it.scope.Pop()

	if init.Tag != compactast.TagEmptyStmt {
		it.execStmt(init)
	}
	iterations := uint32(0)
	for {
		if cond.Tag != compactast.TagEmptyStmt && !it.eval(cond).Truthy() {
			break
		}
		iterations++
		if iterations > it.opts.MaxLoopIterations {
			panic(loopLimitSignal{})
		}
		if brk := it.runLoopBody(body); brk {
			break
		}
		if update.Tag != compactast.TagEmptyStmt {
			it.eval(update)
		}
		it.checkpoint()
	}
}

func (it *Interpreter) execWhile(n *compactast.Node) {
	if len(n.Children) != 2 {
		return
	}
	cond, body := n.Children[0], n.Children[1]
	iterations := uint32(0)
	for it.eval(cond).Truthy() {
		iterations++
		if iterations > it.opts.MaxLoopIterations {
			panic(loopLimitSignal{})
		}
		if brk := it.runLoopBody(body); brk {
			break
		}
		it.checkpoint()
	}
}

func (it *Interpreter) execDoWhile(n *compactast.Node) {
	if len(n.Children) != 2 {
		return
	}
	body, cond := n.Children[0], n.Children[1]
	iterations := uint32(0)
	for {
		iterations++
		if iterations > it.opts.MaxLoopIterations {
			panic(loopLimitSignal{})
		}
		if brk := it.runLoopBody(body); brk {
			break
		}
		it.checkpoint()
		if !it.eval(cond).Truthy() {
			break
		}
	}
}

// execSwitch implements fallthrough-until-break dispatch over ordered
// Case/Default children.
func (it *Interpreter) execSwitch(n *compactast.Node) {
	if len(n.Children) < 1 {
		return
	}
	tag := it.eval(n.Children[0])
	cases := n.Children[1:]

	matchIdx := -1
	defaultIdx := -1
	for i, c := range cases {
		if c.Tag == compactast.TagDefault {
			defaultIdx = i
			continue
		}
		if len(c.Children) == 0 {
			continue
		}
		cv := it.eval(c.Children[0])
		if valuesEqual(tag, cv) {
			matchIdx = i
			break
		}
	}
	start := matchIdx
	if start == -1 {
		start = defaultIdx
	}
	if start == -1 {
		return
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				if _, ok := r.(breakSignal); ok {
					return
				}
				panic(r)
			}
		}()
		for i := start; i < len(cases); i++ {
			body := cases[i].Children
			from := 0
			if cases[i].Tag != compactast.TagDefault && len(body) > 0 {
				from = 1
			}
			for _, stmt := range body[from:] {
				it.execStmt(stmt)
			}
		}
	}()
}

// callUserFunction binds evaluated args to params in a fresh frame, runs
// the body, and returns its result (void if the function falls off the
// end without an explicit return). Scope depth is restored to its
// pre-call value on every exit path, including an early return.
func (it *Interpreter) callUserFunction(fn *compactast.Node, args []Value) (result Value) {
	it.callDepth++
	if it.callDepth > int(it.opts.MaxCallDepth) {
		it.callDepth--
		panic(&InterpError{Kind: StackOverflow, Message: "call depth exceeded", NodeKind: fn.Tag.String()})
	}
	defer func() { it.callDepth-- }()

	it.scope.Push()
	defer it.scope.Pop()

	params, body := splitFuncDef(fn)
	for i, p := range params {
		var v Value
		if i < len(args) {
			v = args[i]
		}
		name := p.Attrs.Name
		if name == "" {
			continue
		}
		_ = it.scope.Declare(name, Variable{Value: v, DeclaredType: p.Attrs.Type})
	}

	result = VoidValue()
	func() {
		defer func() {
			if r := recover(); r != nil {
				if ret, ok := r.(returnSignal); ok {
					result = ret.value
					return
				}
				panic(r)
			}
		}()
		if body != nil {
			it.execStmt(body)
		}
	}()
	return result
}

// splitFuncDef separates a FuncDef node's Param children from its
// Compound body child, which is always last.
func splitFuncDef(fn *compactast.Node) (params []*compactast.Node, body *compactast.Node) {
	for _, c := range fn.Children {
		if c.Tag == compactast.TagParam {
			params = append(params, c)
		} else if c.Tag == compactast.TagCompound {
			body = c
		}
	}
	return params, body
}

func (it *Interpreter) emit(typ CommandType, fields ...field) {
	it.mu.Lock()
	it.seq++
	seq := it.seq
	it.stats.CommandsEmitted = seq
	ts := it.clockMs
	it.mu.Unlock()

	cmd := newCommand(typ, seq, ts, fields...)
	it.tr.record(TraceEmit, string(typ), cmd.String())
	if it.cb != nil {
		it.cb(cmd)
	}
}

func (it *Interpreter) advanceClock(ms uint32) {
	it.mu.Lock()
	it.clockMs += ms
	it.mu.Unlock()
}

// blockingRequest emits a *_REQUEST command bearing a fresh request id,
// suspends in WAITING_FOR_RESPONSE, and calls the matching provider
// method synchronously via the request gate; no further command is emitted
// until it returns, so each request gets its one response before the next
// request. The state in force before the call (RUNNING or STEPPING) is
// restored afterwards.
func (it *Interpreter) blockingRequest(reqType CommandType, fields []field, call func(SyncDataProvider) (Value, error)) (Value, error) {
	if !it.opts.SyncMode {
		reqID := newRequestID()
		it.emit(reqType, append(append([]field{}, fields...), f("requestId", reqID), f("advisory", true))...)
		return zeroValueForRequest(reqType), nil
	}

	if it.provider == nil {
		panic(&InterpError{Kind: MissingProvider, Message: "no SyncDataProvider registered for " + string(reqType)})
	}

	reqID := newRequestID()
	it.emit(reqType, append(append([]field{}, fields...), f("requestId", reqID))...)

	prev := it.State()
	it.setState(StateWaitingForResponse)
	v, err := it.gate.do(reqID, func() (Value, error) { return call(it.provider) })
	it.setState(prev)

	if atomic.LoadInt32(&it.resetReq) != 0 {
		panic(resetSignal{})
	}
	if err != nil {
		panic(&InterpError{Kind: ProtocolError, Message: err.Error()})
	}
	return v, nil
}

func zeroValueForRequest(reqType CommandType) Value {
	switch reqType {
	case CmdMillisRequest, CmdMicrosRequest, CmdPulseInRequest:
		return UintValue(0)
	default:
		return IntValue(0)
	}
}
