// Package interp implements the tree-walking interpreter for the
// Arduino-dialect CompactAST: it decodes a binary AST, executes it, and
// emits an ordered stream of side-effect commands while resolving
// external world-reads through an injected synchronous provider.
package interp

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/sfranzyshen/ArduinoASTInterpreter-sub000/internal/compactast"
	"github.com/sfranzyshen/ArduinoASTInterpreter-sub000/internal/config"
)

// Options are the interpreter's user-settable options. Zero-valued fields
// left unset by the caller are backfilled with the documented defaults in
// New, keeping a small public Options struct separate from the private,
// fully-defaulted configuration it resolves into.
type Options struct {
	// MaxLoopIterations bounds how many times loop() runs; exceeding it
	// terminates cleanly. Zero is treated as unset and selects the default
	// of 1000; a limit of zero cannot be expressed through Options.
	MaxLoopIterations uint32
	// MaxCallDepth bounds recursion; exceeding it raises StackOverflow.
	MaxCallDepth uint32
	// MemoryLimitBytes is a soft ceiling on value-heap residency.
	MemoryLimitBytes uint64
	// SyncMode, when true, blocks external reads on the provider; when
	// false, reads return a canonical zero and emit an advisory request.
	SyncMode *bool
	// Verbose enables tracer event recording.
	Verbose bool
	// EmitVersionInfo, when true, makes VERSION_INFO the first command.
	EmitVersionInfo *bool
}

func (o Options) resolve() config.Values {
	v := config.Defaults()
	if o.MaxLoopIterations != 0 {
		v.MaxLoopIterations = o.MaxLoopIterations
	}
	if o.MaxCallDepth != 0 {
		v.MaxCallDepth = o.MaxCallDepth
	}
	if o.MemoryLimitBytes != 0 {
		v.MemoryLimitBytes = o.MemoryLimitBytes
	}
	if o.SyncMode != nil {
		v.SyncMode = *o.SyncMode
	}
	v.Verbose = o.Verbose
	if o.EmitVersionInfo != nil {
		v.EmitVersionInfo = *o.EmitVersionInfo
	}
	return v
}

// Stats reports interpreter progress, reset to zero by Reset.
type Stats struct {
	CommandsEmitted uint32
	LoopIterations  uint32
}

type driveMode int

const (
	driveRun driveMode = iota
	driveStep
)

// resetSignal unwinds the worker goroutine to the top when a queued Reset
// takes effect, distinct from loopLimitSignal and InterpError.
type resetSignal struct{}

// Interpreter holds the decoded AST, execution state, and all resources a
// run needs: a small set of always-present resources (scope, registry,
// tracer) assembled once in New, plus the mutable run state guarded by mu
// because Pause/Reset/State may be called from a different goroutine than the one
// driving Start/Resume/Step.
type Interpreter struct {
	root *compactast.Node
	opts config.Values

	reg  *libraryRegistry
	gate *requestGate
	tr   *tracer

	cb       CommandCallback
	provider SyncDataProvider

	mu      sync.RWMutex
	state   State
	started bool
	stats   Stats

	scope      *Scope
	userFuncs  map[string]*compactast.Node
	structDefs map[string]*compactast.Node
	funcPtrIDs map[string]uint32

	seq     uint32
	clockMs uint32

	loopIteration uint32
	callDepth     int

	pauseReq int32 // atomic bool
	stepReq  int32 // atomic bool
	resetReq int32 // atomic bool

	resumeCh    chan struct{}
	suspendedCh chan struct{}
	driveCh     chan driveMode
}

// New decodes astBytes and returns a ready-to-Start interpreter.
func New(astBytes []byte, options Options) (*Interpreter, error) {
	decoded, err := compactast.Decode(astBytes)
	if err != nil {
		return nil, err
	}
	opts := options.resolve()
	if err := config.Validate(opts); err != nil {
		return nil, err
	}

	it := &Interpreter{
		root:        decoded.Root,
		opts:        opts,
		reg:         newLibraryRegistry(),
		gate:        &requestGate{},
		tr:          newTracer(opts.Verbose),
		state:       StateIdle,
		userFuncs:   map[string]*compactast.Node{},
		structDefs:  map[string]*compactast.Node{},
		funcPtrIDs:  map[string]uint32{},
		resumeCh:    make(chan struct{}),
		suspendedCh: make(chan struct{}, 1),
		driveCh:     make(chan driveMode),
	}
	it.scope = NewScope(opts.MemoryLimitBytes)
	it.indexProgram()
	return it, nil
}

func (it *Interpreter) indexProgram() {
	if it.root == nil {
		return
	}
	for _, n := range it.root.Children {
		switch n.Tag {
		case compactast.TagFuncDef:
			if n.Attrs.HasName {
				it.userFuncs[n.Attrs.Name] = n
				if _, ok := it.funcPtrIDs[n.Attrs.Name]; !ok {
					it.funcPtrIDs[n.Attrs.Name] = uint32(len(it.funcPtrIDs) + 1)
				}
			}
		case compactast.TagStructDef:
			if n.Attrs.HasName {
				it.structDefs[n.Attrs.Name] = n
			}
		}
	}
}

// SetCommandCallback registers the sink for the observable command stream.
func (it *Interpreter) SetCommandCallback(cb CommandCallback) { it.cb = cb }

// SetSyncDataProvider registers the world-read resolver.
func (it *Interpreter) SetSyncDataProvider(p SyncDataProvider) { it.provider = p }

// State returns the current execution state.
func (it *Interpreter) State() State {
	it.mu.RLock()
	defer it.mu.RUnlock()
	return it.state
}

// Stats returns a snapshot of run counters.
func (it *Interpreter) Stats() Stats {
	it.mu.RLock()
	defer it.mu.RUnlock()
	return it.stats
}

// Trace returns the diagnostic ring buffer contents, empty unless
// Options.Verbose was set.
func (it *Interpreter) Trace() []TraceEvent { return it.tr.Snapshot() }

func (it *Interpreter) setState(s State) {
	it.mu.Lock()
	it.state = s
	it.mu.Unlock()
}

// Start begins execution: setup() runs once, then loop() runs forward
// until pause, error, completion or the loop-iteration limit. It blocks
// the calling goroutine until the run reaches one of those suspension
// points, following a cooperative single-goroutine scheduling model.
func (it *Interpreter) Start() error {
	it.mu.Lock()
	if it.started {
		it.mu.Unlock()
		return errors.New("interp: already started; call Reset first")
	}
	it.started = true
	it.state = StateRunning
	it.mu.Unlock()

	go it.workerLoop()
	return it.drive(driveRun)
}

// Resume continues a PAUSED interpreter until the next suspension point.
func (it *Interpreter) Resume() error {
	if it.State() != StatePaused {
		return errors.New("interp: Resume requires state PAUSED")
	}
	return it.drive(driveRun)
}

// Step executes exactly one statement and returns to PAUSED.
func (it *Interpreter) Step() error {
	switch it.State() {
	case StatePaused:
		return it.drive(driveStep)
	default:
		return errors.New("interp: Step requires state PAUSED")
	}
}

// Pause requests suspension at the next statement boundary. It may be
// called from a goroutine other than the one blocked in Start/Resume/Step.
func (it *Interpreter) Pause() error {
	if it.State() != StateRunning && it.State() != StateStepping {
		return errors.New("interp: Pause requires an active run")
	}
	atomic.StoreInt32(&it.pauseReq, 1)
	return nil
}

// Reset returns the interpreter to IDLE with scopes, counters and tracer
// state cleared. Legal in any non-WAITING state; inside WAITING it is
// queued and takes effect once the outstanding provider call returns.
func (it *Interpreter) Reset() error {
	if it.State() == StateWaitingForResponse {
		atomic.StoreInt32(&it.resetReq, 1)
		return nil
	}

	it.mu.Lock()
	running := it.started && (it.state == StateRunning || it.state == StatePaused || it.state == StateStepping)
	it.mu.Unlock()

	if running {
		atomic.StoreInt32(&it.resetReq, 1)
		// Unblock a paused worker so it can observe resetReq and unwind.
		select {
		case it.resumeCh <- struct{}{}:
		default:
		}
		<-it.suspendedCh
	}

	it.reinitialize()
	return nil
}

func (it *Interpreter) reinitialize() {
	it.mu.Lock()
	it.started = false
	it.state = StateIdle
	it.stats = Stats{}
	it.mu.Unlock()

	it.scope = NewScope(it.opts.MemoryLimitBytes)
	it.seq = 0
	it.clockMs = 0
	it.loopIteration = 0
	it.callDepth = 0
	atomic.StoreInt32(&it.pauseReq, 0)
	atomic.StoreInt32(&it.stepReq, 0)
	atomic.StoreInt32(&it.resetReq, 0)
	it.tr.reset()
}

// drive sends the worker one instruction (run-to-suspension, or single
// step) and blocks until it reports the next suspension.
func (it *Interpreter) drive(mode driveMode) error {
	if mode == driveStep {
		atomic.StoreInt32(&it.stepReq, 1)
	}
	atomic.StoreInt32(&it.pauseReq, 0)
	it.resumeCh <- struct{}{}
	<-it.suspendedCh
	return nil
}

// workerLoop runs the guest program on its own goroutine so Pause/Reset
// can be observed from a concurrent caller without unwinding Go's call
// stack; the first drive() unblocks it from its initial wait.
func (it *Interpreter) workerLoop() {
	<-it.resumeCh // wait for the first drive() from Start
	it.runProgram()
}

// checkpoint is called between statements and at loop-iteration
// boundaries; it is the only place a PAUSED suspension or a queued Reset
// takes effect, other than the provider call which is handled inline in
// blockingRequest. When resuming into a single step rather than a free
// run, the resumed state is STEPPING rather than RUNNING for the
// duration of that one statement, so State() can distinguish the two.
func (it *Interpreter) checkpoint() {
	if atomic.LoadInt32(&it.resetReq) != 0 {
		panic(resetSignal{})
	}
	if atomic.LoadInt32(&it.stepReq) != 0 {
		atomic.StoreInt32(&it.stepReq, 0)
		it.setState(StatePaused)
		it.suspendedCh <- struct{}{}
		<-it.resumeCh
		it.resumeState()
		return
	}
	if atomic.LoadInt32(&it.pauseReq) != 0 {
		it.setState(StatePaused)
		it.suspendedCh <- struct{}{}
		<-it.resumeCh
		it.resumeState()
	}
}

// resumeState sets the post-checkpoint state: STEPPING if the resume was
// triggered by a fresh Step() call (stepReq set again by drive before the
// resume signal), RUNNING otherwise.
func (it *Interpreter) resumeState() {
	if atomic.LoadInt32(&it.stepReq) != 0 {
		it.setState(StateStepping)
		return
	}
	it.setState(StateRunning)
}
