package interp

import "golang.org/x/sync/semaphore"

// Frame is one lexical level in the variable stack. Frame 0 (the bottom of
// the Scope stack) is the global frame and is never popped.
type Frame struct {
	vars map[string]*Variable
}

func newFrame() *Frame {
	return &Frame{vars: map[string]*Variable{}}
}

// estimatedVariableWeight is the accounting unit charged against the
// memory-limit semaphore per declared variable, independent of its actual
// Go-side size. It is deliberately coarse: the limit is a soft ceiling on
// guest-visible residency, not a precise allocator.
const estimatedVariableWeight = 32

// Scope is the ordered stack of lexical frames: push on function entry
// and on any lexical block, pop on exit, frame 0 never empties. A
// weighted semaphore enforces the configured soft memory ceiling on total
// value-heap residency; every declaration acquires its estimated weight
// and a popped frame releases what it held.
type Scope struct {
	frames []*Frame
	mem    *semaphore.Weighted
	held   []int64 // bytes held per frame, parallel to frames
}

func NewScope(memoryLimitBytes uint64) *Scope {
	s := &Scope{mem: semaphore.NewWeighted(int64(memoryLimitBytes))}
	s.Push() // frame 0, global
	return s
}

func (s *Scope) Push() {
	s.frames = append(s.frames, newFrame())
	s.held = append(s.held, 0)
}

// Pop releases the top frame's variables and its accounted memory. It is a
// no-op on the global frame.
func (s *Scope) Pop() {
	if len(s.frames) <= 1 {
		return
	}
	last := len(s.frames) - 1
	if s.held[last] > 0 {
		s.mem.Release(s.held[last])
	}
	s.frames = s.frames[:last]
	s.held = s.held[:last]
}

func (s *Scope) Depth() int { return len(s.frames) }

func (s *Scope) top() *Frame { return s.frames[len(s.frames)-1] }

// Declare binds name in the top frame. Redeclaration in the same frame is
// an error, matching the data model's scope contract.
func (s *Scope) Declare(name string, v Variable) error {
	top := s.top()
	if _, exists := top.vars[name]; exists {
		return &InterpError{Kind: NameError, Message: "redeclaration of " + name}
	}
	if !s.mem.TryAcquire(estimatedVariableWeight) {
		return &InterpError{Kind: MemoryLimitExceeded, Message: "value heap limit exceeded declaring " + name}
	}
	s.held[len(s.held)-1] += estimatedVariableWeight
	top.vars[name] = &v
	return nil
}

// DeclareGlobal binds name in frame 0 regardless of the current top frame,
// for `global` declarations.
func (s *Scope) DeclareGlobal(name string, v Variable) error {
	global := s.frames[0]
	if _, exists := global.vars[name]; exists {
		return &InterpError{Kind: NameError, Message: "redeclaration of " + name}
	}
	if !s.mem.TryAcquire(estimatedVariableWeight) {
		return &InterpError{Kind: MemoryLimitExceeded, Message: "value heap limit exceeded declaring " + name}
	}
	s.held[0] += estimatedVariableWeight
	global.vars[name] = &v
	return nil
}

// Lookup searches innermost-first.
func (s *Scope) Lookup(name string) (*Variable, bool) {
	for i := len(s.frames) - 1; i >= 0; i-- {
		if v, ok := s.frames[i].vars[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// Assign binds in the innermost frame containing name; errors if absent.
// Const variables reject assignment; reference variables forward the
// write to their bound target rather than rebinding.
func (s *Scope) Assign(name string, val Value) error {
	v, ok := s.Lookup(name)
	if !ok {
		return &InterpError{Kind: NameError, Message: "assignment to undeclared variable " + name}
	}
	if v.IsConst {
		return &InterpError{Kind: ConstViolation, Message: "assignment to const " + name}
	}
	v.Value = val
	return nil
}

// DeclareAlias binds name in the top frame to the same Variable as an
// existing binding, for `T& r = x;`-style reference declarations: writes
// through either name are visible through the other. No additional
// memory-limit weight is charged since no new storage is created.
func (s *Scope) DeclareAlias(name string, target *Variable) error {
	top := s.top()
	if _, exists := top.vars[name]; exists {
		return &InterpError{Kind: NameError, Message: "redeclaration of " + name}
	}
	top.vars[name] = target
	return nil
}

// FrameAt returns the frame that currently owns name, used to build a
// pointer coordinate, or nil if name is undeclared.
func (s *Scope) FrameAt(name string) *Frame {
	for i := len(s.frames) - 1; i >= 0; i-- {
		if _, ok := s.frames[i].vars[name]; ok {
			return s.frames[i]
		}
	}
	return nil
}

// LookupIn resolves a name against a specific frame, used by pointer
// dereference: a pointer is a (frame, name) coordinate, not a raw address,
// so every dereference re-resolves through the scope manager.
func LookupIn(f *Frame, name string) (*Variable, bool) {
	if f == nil {
		return nil, false
	}
	v, ok := f.vars[name]
	return v, ok
}

// releaseAll drains every acquired weight and zeroes the per-frame counts.
// Reset does not call it: reinitialize replaces the Scope with a new one.
func (s *Scope) releaseAll() {
	for i, h := range s.held {
		if h > 0 {
			s.mem.Release(h)
		}
		s.held[i] = 0
	}
}

// TryAcquireExtra charges ad hoc allocations (e.g. growing an array or
// String buffer after declaration) against the same ceiling.
func (s *Scope) TryAcquireExtra(weight int64) bool {
	if weight <= 0 {
		return true
	}
	ok := s.mem.TryAcquire(weight)
	if ok {
		s.held[len(s.held)-1] += weight
	}
	return ok
}
