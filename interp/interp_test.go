package interp

import (
	"sync/atomic"
	"testing"

	"github.com/sfranzyshen/ArduinoASTInterpreter-sub000/internal/compactast"
)

// --- hand-assembled AST helpers -------------------------------------------
//
// These build compactast.Node graphs directly, bypassing the binary decoder,
// the same way a hand-rolled bytecode fixture exercises a VM without a real
// compiler front end: the interpreter's contract is defined over the node
// graph, not over the wire bytes.

func intLit(v int32) *compactast.Node {
	return &compactast.Node{Tag: compactast.TagIntLiteral, Literal: &compactast.Literal{Kind: compactast.LiteralInt, Int: v}}
}

func strLit(s string) *compactast.Node {
	return &compactast.Node{Tag: compactast.TagStringLiteral, Literal: &compactast.Literal{Kind: compactast.LiteralString, Str: s}}
}

func ident(name string) *compactast.Node {
	return &compactast.Node{Tag: compactast.TagIdentifier, Attrs: compactast.Attrs{HasName: true, Name: name}}
}

func member(obj *compactast.Node, name string) *compactast.Node {
	return &compactast.Node{Tag: compactast.TagMember, Attrs: compactast.Attrs{HasName: true, Name: name}, Children: []*compactast.Node{obj}}
}

func arrow(obj *compactast.Node, name string) *compactast.Node {
	return &compactast.Node{Tag: compactast.TagArrowMember, Attrs: compactast.Attrs{HasName: true, Name: name}, Children: []*compactast.Node{obj}}
}

func call(callee *compactast.Node, args ...*compactast.Node) *compactast.Node {
	return &compactast.Node{Tag: compactast.TagCall, Children: append([]*compactast.Node{callee}, args...)}
}

func callName(name string, args ...*compactast.Node) *compactast.Node {
	return call(ident(name), args...)
}

func exprStmt(e *compactast.Node) *compactast.Node {
	return &compactast.Node{Tag: compactast.TagExprStmt, Children: []*compactast.Node{e}}
}

func compound(stmts ...*compactast.Node) *compactast.Node {
	return &compactast.Node{Tag: compactast.TagCompound, Children: stmts}
}

func binary(op string, l, r *compactast.Node) *compactast.Node {
	return &compactast.Node{Tag: compactast.TagBinaryOp, Attrs: compactast.Attrs{HasOperator: true, Operator: op}, Children: []*compactast.Node{l, r}}
}

func assign(target, val *compactast.Node) *compactast.Node {
	return &compactast.Node{Tag: compactast.TagAssignment, Children: []*compactast.Node{target, val}}
}

func subscript(arr *compactast.Node, idx ...*compactast.Node) *compactast.Node {
	return &compactast.Node{Tag: compactast.TagSubscript, Children: append([]*compactast.Node{arr}, idx...)}
}

func addressOf(e *compactast.Node) *compactast.Node {
	return &compactast.Node{Tag: compactast.TagAddressOf, Children: []*compactast.Node{e}}
}

func emptyStmt() *compactast.Node { return &compactast.Node{Tag: compactast.TagEmptyStmt} }

func varDecl(name, typ string, flags uint8, init *compactast.Node) *compactast.Node {
	n := &compactast.Node{
		Tag: compactast.TagVarDecl,
		Attrs: compactast.Attrs{
			HasName: true, Name: name,
			HasType: true, Type: typ,
			HasFlags: true, Flags: flags,
		},
	}
	if init != nil {
		n.Children = []*compactast.Node{init}
	}
	return n
}

func funcDef(name string, params []*compactast.Node, body *compactast.Node) *compactast.Node {
	return &compactast.Node{
		Tag:      compactast.TagFuncDef,
		Attrs:    compactast.Attrs{HasName: true, Name: name},
		Children: append(append([]*compactast.Node{}, params...), body),
	}
}

func param(name, typ string) *compactast.Node {
	return &compactast.Node{Tag: compactast.TagParam, Attrs: compactast.Attrs{HasName: true, Name: name, HasType: true, Type: typ}}
}

func program(decls ...*compactast.Node) *compactast.Node {
	return &compactast.Node{Tag: compactast.TagProgram, Children: decls}
}

// newTestInterpreter builds an Interpreter directly from a pre-built AST,
// skipping compactast.Decode the way the scenarios below skip the encoder.
func newTestInterpreter(t *testing.T, root *compactast.Node, opts Options) *Interpreter {
	t.Helper()
	syncOn := true
	if opts.SyncMode == nil {
		opts.SyncMode = &syncOn
	}
	if opts.EmitVersionInfo == nil {
		off := false
		opts.EmitVersionInfo = &off
	}
	it := &Interpreter{
		root:        root,
		opts:        opts.resolve(),
		reg:         newLibraryRegistry(),
		gate:        &requestGate{},
		tr:          newTracer(false),
		state:       StateIdle,
		userFuncs:   map[string]*compactast.Node{},
		structDefs:  map[string]*compactast.Node{},
		funcPtrIDs:  map[string]uint32{},
		resumeCh:    make(chan struct{}),
		suspendedCh: make(chan struct{}, 1),
		driveCh:     make(chan driveMode),
	}
	it.scope = NewScope(it.opts.MemoryLimitBytes)
	it.indexProgram()
	return it
}

func fieldVal(c Command, key string) (interface{}, bool) {
	for _, fd := range c.Fields {
		if fd.key == key {
			return fd.val, true
		}
	}
	return nil, false
}

// --- scenario 1: Blink -----------------------------------------------------

func TestBlinkEmitsExpectedCommandSequence(t *testing.T) {
	setup := funcDef("setup", nil, compound(
		exprStmt(callName("pinMode", intLit(13), intLit(1))),
	))
	loop := funcDef("loop", nil, compound(
		exprStmt(callName("digitalWrite", intLit(13), intLit(1))),
		exprStmt(callName("delay", intLit(1000))),
		exprStmt(callName("digitalWrite", intLit(13), intLit(0))),
		exprStmt(callName("delay", intLit(1000))),
	))

	it := newTestInterpreter(t, program(setup, loop), Options{MaxLoopIterations: 1, MaxCallDepth: 16})

	var types []CommandType
	it.SetCommandCallback(func(c Command) { types = append(types, c.Type) })

	if err := it.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	want := []CommandType{
		CmdProgramStart, CmdSetupStart, CmdPinMode, CmdSetupEnd,
		CmdLoopStart, CmdDigitalWrite, CmdDelay, CmdDigitalWrite, CmdDelay, CmdLoopEnd,
		CmdProgramEnd,
	}
	if len(types) != len(want) {
		t.Fatalf("command count = %d, want %d (%v)", len(types), len(want), types)
	}
	for i, w := range want {
		if types[i] != w {
			t.Errorf("command[%d] = %s, want %s", i, types[i], w)
		}
	}
	if it.State() != StateComplete {
		t.Errorf("state = %s, want COMPLETE", it.State())
	}
}

// --- scenario 2: analog read blocks on the provider -------------------------

type stubProvider struct {
	analog map[int32]int32
}

func (s *stubProvider) AnalogRead(pin int32) (int32, error) { return s.analog[pin], nil }
func (s *stubProvider) DigitalRead(int32) (int32, error)    { return 0, nil }
func (s *stubProvider) Millis() (uint32, error)              { return 0, nil }
func (s *stubProvider) Micros() (uint32, error)              { return 0, nil }
func (s *stubProvider) PulseIn(int32, int32, uint32) (uint32, error) { return 0, nil }
func (s *stubProvider) LibrarySensor(string, string, []Value) (Value, error) {
	return VoidValue(), nil
}

func TestAnalogReadBlocksOnProvider(t *testing.T) {
	loop := funcDef("loop", nil, compound(
		varDecl("v", "int", 0, callName("analogRead", intLit(0))),
		exprStmt(call(member(ident("Serial"), "println"), ident("v"))),
	))
	it := newTestInterpreter(t, program(loop), Options{MaxLoopIterations: 1, MaxCallDepth: 16})
	it.SetSyncDataProvider(&stubProvider{analog: map[int32]int32{0: 512}})

	var commands []Command
	it.SetCommandCallback(func(c Command) { commands = append(commands, c) })

	if err := it.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var println *Command
	var req *Command
	for i := range commands {
		switch commands[i].Type {
		case CmdAnalogReadRequest:
			req = &commands[i]
		case CmdSerialPrintln:
			println = &commands[i]
		}
	}
	if req == nil {
		t.Fatal("no ANALOG_READ_REQUEST command emitted")
	}
	if _, ok := fieldVal(*req, "requestId"); !ok {
		t.Error("ANALOG_READ_REQUEST missing requestId field")
	}
	if println == nil {
		t.Fatal("no SERIAL_PRINTLN command emitted")
	}
	v, _ := fieldVal(*println, "value")
	if v != int32(512) {
		t.Errorf("println value = %v, want 512", v)
	}
}

// --- scenario 3: user-defined function with a return value -----------------

func TestUserFunctionReturnValue(t *testing.T) {
	double := funcDef("doubleIt", []*compactast.Node{param("x", "int")}, compound(
		&compactast.Node{Tag: compactast.TagReturn, Children: []*compactast.Node{binary("*", ident("x"), intLit(2))}},
	))
	loop := funcDef("loop", nil, compound(
		varDecl("r", "int", 0, callName("doubleIt", intLit(21))),
		exprStmt(call(member(ident("Serial"), "println"), ident("r"))),
	))
	it := newTestInterpreter(t, program(double, loop), Options{MaxLoopIterations: 1, MaxCallDepth: 16})

	var got int32 = -1
	it.SetCommandCallback(func(c Command) {
		if c.Type == CmdSerialPrintln {
			if v, ok := fieldVal(c, "value"); ok {
				got = v.(int32)
			}
		}
	})
	if err := it.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got != 42 {
		t.Errorf("doubleIt(21) printed %d, want 42", got)
	}
}

// --- scenario 4: loop-iteration limit terminates cleanly --------------------

func TestLoopLimitTerminatesCleanly(t *testing.T) {
	loop := funcDef("loop", nil, compound(
		exprStmt(callName("delay", intLit(1))),
	))
	it := newTestInterpreter(t, program(loop), Options{MaxLoopIterations: 3, MaxCallDepth: 16})

	var ends int
	var reason interface{}
	it.SetCommandCallback(func(c Command) {
		if c.Type == CmdProgramEnd {
			ends++
			reason, _ = fieldVal(c, "reason")
		}
	})
	if err := it.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if ends != 1 {
		t.Fatalf("PROGRAM_END emitted %d times, want 1", ends)
	}
	if reason != "loop_limit" {
		t.Errorf("PROGRAM_END reason = %v, want loop_limit", reason)
	}
	if it.Stats().LoopIterations != 3 {
		t.Errorf("LoopIterations = %d, want 3", it.Stats().LoopIterations)
	}
	if it.State() != StateComplete {
		t.Errorf("state = %s, want COMPLETE", it.State())
	}
}

// --- scenario 5: out-of-range array access surfaces a typed ERROR -----------

func TestIndexOutOfRangeSurfacesAsError(t *testing.T) {
	loop := funcDef("loop", nil, compound(
		varDecl("arr", "int[]", 0, &compactast.Node{Tag: compactast.TagArrayInit, Children: []*compactast.Node{intLit(1), intLit(2), intLit(3)}}),
		exprStmt(assign(subscript(ident("arr"), intLit(5)), intLit(9))),
	))
	it := newTestInterpreter(t, program(loop), Options{MaxLoopIterations: 1, MaxCallDepth: 16})

	var errKind interface{}
	it.SetCommandCallback(func(c Command) {
		if c.Type == CmdError {
			errKind, _ = fieldVal(c, "kind")
		}
	})
	if err := it.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if errKind != IndexOutOfRange.String() {
		t.Errorf("ERROR kind = %v, want %s", errKind, IndexOutOfRange)
	}
	if it.State() != StateError {
		t.Errorf("state = %s, want ERROR", it.State())
	}
}

// --- scenario 6: struct pointer aliasing is visible through both names -----

func TestStructPointerAliasVisibleThroughBothNames(t *testing.T) {
	pointDef := &compactast.Node{
		Tag:   compactast.TagStructDef,
		Attrs: compactast.Attrs{HasName: true, Name: "Point"},
		Children: []*compactast.Node{
			{Tag: compactast.TagVarDecl, Attrs: compactast.Attrs{HasName: true, Name: "x"}},
		},
	}
	pInit := &compactast.Node{Tag: compactast.TagStructInit, Attrs: compactast.Attrs{HasType: true, Type: "Point"}, Children: []*compactast.Node{intLit(0)}}
	setup := funcDef("setup", nil, compound(
		varDecl("p", "Point", compactast.FlagGlobalDecl, pInit),
		varDecl("q", "Point*", compactast.FlagGlobalDecl, addressOf(ident("p"))),
		exprStmt(assign(arrow(ident("q"), "x"), intLit(5))),
		exprStmt(call(member(ident("Serial"), "println"), member(ident("p"), "x"))),
	))
	it := newTestInterpreter(t, program(pointDef, setup), Options{MaxLoopIterations: 0, MaxCallDepth: 16})

	var got int32 = -1
	it.SetCommandCallback(func(c Command) {
		if c.Type == CmdSerialPrintln {
			if v, ok := fieldVal(c, "value"); ok {
				got = v.(int32)
			}
		}
	})
	if err := it.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got != 5 {
		t.Errorf("p.x after q->x=5 is %d, want 5", got)
	}
}

// --- Pause / Resume / Step ---------------------------------------------------

func TestPauseRequiresActiveRun(t *testing.T) {
	loop := funcDef("loop", nil, compound(exprStmt(callName("delay", intLit(1)))))
	it := newTestInterpreter(t, program(loop), Options{MaxLoopIterations: 1, MaxCallDepth: 16})

	if err := it.Pause(); err == nil {
		t.Error("Pause before Start should error")
	}
	if err := it.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := it.Pause(); err == nil {
		t.Error("Pause after completion should error")
	}
	if err := it.Resume(); err == nil {
		t.Error("Resume on a COMPLETE interpreter should error")
	}
}

func TestResetReturnsToIdle(t *testing.T) {
	loop := funcDef("loop", nil, compound(exprStmt(callName("delay", intLit(1)))))
	it := newTestInterpreter(t, program(loop), Options{MaxLoopIterations: 1, MaxCallDepth: 16})
	if err := it.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if it.State() != StateComplete {
		t.Fatalf("state = %s, want COMPLETE", it.State())
	}
	if err := it.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if it.State() != StateIdle {
		t.Errorf("state after Reset = %s, want IDLE", it.State())
	}
	if it.Stats().LoopIterations != 0 {
		t.Errorf("Stats not cleared by Reset: %+v", it.Stats())
	}
}

// pausingProvider requests a pause from inside a provider call so the test
// can drive the interpreter to a known PAUSED point without racing a
// concurrent Pause() against the worker goroutine: the request is set on
// the worker goroutine itself, strictly before the checkpoint that acts on
// it. observedDuringStep records the state seen by the second read, which
// happens while the interpreter is running the single statement granted by
// Step().
type pausingProvider struct {
	it                 *Interpreter
	calls              int
	observedDuringStep State
}

func (p *pausingProvider) AnalogRead(pin int32) (int32, error) {
	p.calls++
	if p.calls == 1 {
		atomic.StoreInt32(&p.it.pauseReq, 1)
	} else {
		p.observedDuringStep = p.it.State()
	}
	return int32(pin), nil
}
func (p *pausingProvider) DigitalRead(int32) (int32, error) { return 0, nil }
func (p *pausingProvider) Millis() (uint32, error)           { return 0, nil }
func (p *pausingProvider) Micros() (uint32, error)           { return 0, nil }
func (p *pausingProvider) PulseIn(int32, int32, uint32) (uint32, error) {
	return 0, nil
}
func (p *pausingProvider) LibrarySensor(string, string, []Value) (Value, error) {
	return VoidValue(), nil
}

func TestStepTransitionsThroughStepping(t *testing.T) {
	loop := funcDef("loop", nil, compound(
		varDecl("v", "int", 0, callName("analogRead", intLit(0))),
		varDecl("w", "int", 0, callName("analogRead", intLit(1))),
	))
	it := newTestInterpreter(t, program(loop), Options{MaxLoopIterations: 2, MaxCallDepth: 16})
	provider := &pausingProvider{it: it}
	it.SetSyncDataProvider(provider)

	if err := it.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if it.State() != StatePaused {
		t.Fatalf("state after first analogRead = %s, want PAUSED", it.State())
	}

	if err := it.Step(); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if provider.observedDuringStep != StateStepping {
		t.Errorf("state observed inside the stepped statement = %s, want STEPPING", provider.observedDuringStep)
	}
	if it.State() != StatePaused {
		t.Fatalf("state after Step = %s, want PAUSED", it.State())
	}
}

// --- advisory (non-blocking) mode -------------------------------------------

func TestAsyncModeReturnsAdvisoryZero(t *testing.T) {
	loop := funcDef("loop", nil, compound(
		varDecl("v", "int", 0, callName("analogRead", intLit(0))),
		exprStmt(call(member(ident("Serial"), "println"), ident("v"))),
	))
	async := false
	it := newTestInterpreter(t, program(loop), Options{MaxLoopIterations: 1, MaxCallDepth: 16, SyncMode: &async})

	var advisory bool
	var got int32 = -1
	it.SetCommandCallback(func(c Command) {
		if c.Type == CmdAnalogReadRequest {
			if v, ok := fieldVal(c, "advisory"); ok {
				advisory, _ = v.(bool)
			}
		}
		if c.Type == CmdSerialPrintln {
			if v, ok := fieldVal(c, "value"); ok {
				got = v.(int32)
			}
		}
	})
	if err := it.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !advisory {
		t.Error("ANALOG_READ_REQUEST in async mode should carry advisory=true")
	}
	if got != 0 {
		t.Errorf("async analogRead result = %d, want 0", got)
	}
}
