package asm

import (
	"errors"
	"fmt"

	"layoutc/pkg/vm"
)

var (
	ErrUndefinedLabel     = errors.New("undefined label")
	ErrDuplicateLabel     = errors.New("duplicate label")
	ErrLabelScope         = errors.New("label scope misuse")
	ErrRegister           = errors.New("register misuse")
	ErrUnbalancedRegister = errors.New("unbalanced register save/restore")
	ErrFinalized          = errors.New("assembler already finalized")
)

type labelRef struct {
	at   int
	name string
}

// labelScope holds the definitions and pending references between one
// StartLabels/StopLabels pair.
type labelScope struct {
	labels map[string]int
	refs   []labelRef
}

// fixup rewrites code[at].A to the absolute address of code[target].
type fixup struct {
	at     int
	target int
}

// Assembler emits the instructions of one program.
//
// Pass one happens while emitting: label definitions and references are
// recorded per scope and resolved into fixups when the scope is stopped.
// Pass two happens in Finalize, once the program's heap address is known.
//
// Errors are sticky: the first one is kept, later emission is ignored, and
// Finalize reports it.
type Assembler struct {
	env  *Environment
	meta Meta
	code []vm.Instruction

	scopes []*labelScope
	fixups []fixup
	saved  []vm.Register

	err  error
	done bool
}

func New(env *Environment, meta Meta) *Assembler {
	return &Assembler{env: env, meta: meta}
}

func (b *Assembler) Env() *Environment { return b.env }

func (b *Assembler) Meta() Meta { return b.meta }

// Len returns the number of instructions emitted so far.
func (b *Assembler) Len() int { return len(b.code) }

func (b *Assembler) Err() error { return b.err }

// Fail records err unless an earlier error is already recorded.
func (b *Assembler) Fail(err error) {
	if b.err == nil && err != nil {
		b.err = err
	}
}

func (b *Assembler) failf(base error, format string, args ...any) {
	b.Fail(fmt.Errorf("%w: %s", base, fmt.Sprintf(format, args...)))
}

func (b *Assembler) emit(op vm.Opcode, a, c int32) {
	if b.err != nil || b.done {
		return
	}
	b.code = append(b.code, vm.Instruction{Op: op, A: a, B: c})
}

func (b *Assembler) constant(v any) int32 {
	return b.env.Heap.Constant(v)
}

// Labels

func (b *Assembler) StartLabels() {
	b.scopes = append(b.scopes, &labelScope{labels: make(map[string]int)})
}

func (b *Assembler) StopLabels() {
	if len(b.scopes) == 0 {
		b.failf(ErrLabelScope, "StopLabels without StartLabels")
		return
	}
	scope := b.scopes[len(b.scopes)-1]
	b.scopes = b.scopes[:len(b.scopes)-1]

	for _, ref := range scope.refs {
		target, ok := scope.labels[ref.name]
		if !ok {
			b.failf(ErrUndefinedLabel, "%q", ref.name)
			return
		}
		b.fixups = append(b.fixups, fixup{at: ref.at, target: target})
	}
}

// Label defines name at the address of the next instruction.
func (b *Assembler) Label(name string) {
	if len(b.scopes) == 0 {
		b.failf(ErrLabelScope, "label %q outside StartLabels", name)
		return
	}
	scope := b.scopes[len(b.scopes)-1]
	if _, exists := scope.labels[name]; exists {
		b.failf(ErrDuplicateLabel, "%q", name)
		return
	}
	scope.labels[name] = len(b.code)
}

func (b *Assembler) reference(op vm.Opcode, name string) {
	if len(b.scopes) == 0 {
		b.failf(ErrLabelScope, "reference to %q outside StartLabels", name)
		return
	}
	scope := b.scopes[len(b.scopes)-1]
	scope.refs = append(scope.refs, labelRef{at: len(b.code), name: name})
	b.emit(op, -1, 0)
}

func (b *Assembler) Jump(label string)       { b.reference(vm.OpJump, label) }
func (b *Assembler) JumpIf(label string)     { b.reference(vm.OpJumpIf, label) }
func (b *Assembler) JumpUnless(label string) { b.reference(vm.OpJumpUnless, label) }

// ReturnTo sets the return register of the current frame to label.
func (b *Assembler) ReturnTo(label string) { b.reference(vm.OpReturnTo, label) }

// Registers and stack

func (b *Assembler) valueRegister(r vm.Register) bool {
	if !r.IsValue() {
		b.failf(ErrRegister, "%s is not a value register", r)
		return false
	}
	return true
}

// Fetch pushes the content of r.
func (b *Assembler) Fetch(r vm.Register) {
	if b.valueRegister(r) {
		b.emit(vm.OpFetch, int32(r), 0)
	}
}

// Load pops the top of the stack into r.
func (b *Assembler) Load(r vm.Register) {
	if b.valueRegister(r) {
		b.emit(vm.OpLoad, int32(r), 0)
	}
}

// SaveRegister pushes the current content of a saved register so it can be
// reused. Every save must be matched by RestoreRegister, innermost first.
func (b *Assembler) SaveRegister(r vm.Register) {
	if !r.IsSaved() {
		b.failf(ErrRegister, "%s is not a saved register", r)
		return
	}
	b.Fetch(r)
	b.saved = append(b.saved, r)
}

// RestoreRegister pops the value pushed by the matching SaveRegister back into r.
func (b *Assembler) RestoreRegister(r vm.Register) {
	if len(b.saved) == 0 {
		b.failf(ErrUnbalancedRegister, "restore of %s without save", r)
		return
	}
	if top := b.saved[len(b.saved)-1]; top != r {
		b.failf(ErrUnbalancedRegister, "restore of %s while %s is saved", r, top)
		return
	}
	b.saved = b.saved[:len(b.saved)-1]
	b.Load(r)
}

func (b *Assembler) Dup() { b.emit(vm.OpDup, 0, 0) }

func (b *Assembler) Pop(n int) { b.emit(vm.OpPop, int32(n), 0) }

func (b *Assembler) Test(kind vm.TestKind) { b.emit(vm.OpTest, int32(kind), 0) }

// Values

func (b *Assembler) Primitive(v any) { b.emit(vm.OpPrimitive, b.constant(v), 0) }

func (b *Assembler) Function(fn vm.Function) {
	if fn == nil {
		b.Fail(errors.New("nil function expression"))
		return
	}
	b.emit(vm.OpFunction, b.constant(fn), 0)
}

func (b *Assembler) Concat(n int) { b.emit(vm.OpConcat, int32(n), 0) }

// Frames

func (b *Assembler) PushFrame() { b.emit(vm.OpPushFrame, 0, 0) }
func (b *Assembler) PopFrame()  { b.emit(vm.OpPopFrame, 0, 0) }
func (b *Assembler) Return()    { b.emit(vm.OpReturn, 0, 0) }

// Enter opens a region with n branches; Exit closes it.
func (b *Assembler) Enter(n int) { b.emit(vm.OpEnter, int32(n), 0) }
func (b *Assembler) Exit()       { b.emit(vm.OpExit, 0, 0) }

// PushArgs collects the values described by shape into one argument list.
func (b *Assembler) PushArgs(shape *vm.ArgsShape) { b.emit(vm.OpPushArgs, b.constant(shape), 0) }

// Helper calls fn with the argument list on top of the stack.
func (b *Assembler) Helper(fn vm.Helper) {
	if fn == nil {
		b.Fail(errors.New("nil helper"))
		return
	}
	b.emit(vm.OpHelper, b.constant(fn), 0)
}

// Elements

func (b *Assembler) PushComponentOperations() { b.emit(vm.OpPushComponentOperations, 0, 0) }

func (b *Assembler) OpenElement(tag string) {
	b.emit(vm.OpOpenElement, b.constant(tag), 0)
}

func (b *Assembler) OpenElementWithOperations(tag string) {
	b.emit(vm.OpOpenElementWithOperations, b.constant(tag), 0)
}

// OpenDynamicElement opens an element named by the value on top of the stack.
func (b *Assembler) OpenDynamicElement() { b.emit(vm.OpOpenDynamicElement, 0, 0) }

func (b *Assembler) StaticAttr(name, value, namespace string) {
	b.emit(vm.OpStaticAttr, b.constant(&vm.Attr{Name: name, Value: value, Namespace: namespace}), 0)
}

// DynamicAttr sets name to the value on top of the stack.
func (b *Assembler) DynamicAttr(name, namespace string) {
	b.emit(vm.OpDynamicAttr, b.constant(&vm.Attr{Name: name, Namespace: namespace}), 0)
}

func (b *Assembler) FlushElement() { b.emit(vm.OpFlushElement, 0, 0) }
func (b *Assembler) CloseElement() { b.emit(vm.OpCloseElement, 0, 0) }

func (b *Assembler) Text(text string) { b.emit(vm.OpText, b.constant(text), 0) }

func (b *Assembler) Append() { b.emit(vm.OpAppend, 0, 0) }

// DidCreateElement signals the component instance held in r.
func (b *Assembler) DidCreateElement(r vm.Register) {
	if b.valueRegister(r) {
		b.emit(vm.OpDidCreateElement, int32(r), 0)
	}
}

// DidRenderLayout signals the component instance held in r.
func (b *Assembler) DidRenderLayout(r vm.Register) {
	if b.valueRegister(r) {
		b.emit(vm.OpDidRenderLayout, int32(r), 0)
	}
}

// Invocation

// InvokeStatic compiles block and emits a call to it.
func (b *Assembler) InvokeStatic(block Block) {
	if b.err != nil {
		return
	}
	if block == nil {
		b.Fail(errors.New("invoke of nil block"))
		return
	}
	p, err := block.CompileStatic(b.env)
	if err != nil {
		b.Fail(fmt.Errorf("compile block: %w", err))
		return
	}
	b.emit(vm.OpInvokeStatic, int32(p.Start), int32(p.End))
}

// CompileBlock compiles block for use as an argument, without invoking it.
// A nil block yields nil.
func (b *Assembler) CompileBlock(block Block) *vm.Range {
	if block == nil || b.err != nil {
		return nil
	}
	p, err := block.CompileStatic(b.env)
	if err != nil {
		b.Fail(fmt.Errorf("compile block: %w", err))
		return nil
	}
	r := p.Range()
	return &r
}

func (b *Assembler) PushComponentManager(def vm.ComponentDefinition) {
	if def == nil {
		b.Fail(errors.New("nil component definition"))
		return
	}
	b.emit(vm.OpPushComponentManager, b.constant(def), 0)
}

// PushDynamicComponentManager binds the manager of the definition on top of
// the stack.
func (b *Assembler) PushDynamicComponentManager() { b.emit(vm.OpPushDynamicComponentManager, 0, 0) }

// InvokeComponent invokes the bound component with the argument list on top
// of the stack. An empty name means the component was resolved without one.
func (b *Assembler) InvokeComponent(name string) {
	idx := int32(-1)
	if name != "" {
		idx = b.constant(name)
	}
	b.emit(vm.OpInvokeComponent, idx, 0)
}

// Finalize resolves every label reference against the heap address the
// program is stored at, freezes it into the heap and returns its range.
func (b *Assembler) Finalize() (start, end int, err error) {
	if b.done {
		return 0, 0, ErrFinalized
	}
	b.done = true

	if b.err != nil {
		return 0, 0, b.err
	}
	if len(b.scopes) != 0 {
		return 0, 0, fmt.Errorf("%w: %d label scopes left open", ErrLabelScope, len(b.scopes))
	}
	if len(b.saved) != 0 {
		return 0, 0, fmt.Errorf("%w: %s saved but never restored", ErrUnbalancedRegister, b.saved[len(b.saved)-1])
	}

	r := b.env.Heap.Commit(func(base int) []vm.Instruction {
		for _, f := range b.fixups {
			b.code[f.at].A = int32(base + f.target)
		}
		return b.code
	})
	return r.Start, r.End, nil
}

// Program finalizes b and pairs the range with b's metadata.
func (b *Assembler) Program() (Program, error) {
	start, end, err := b.Finalize()
	if err != nil {
		return Program{}, err
	}
	return Program{Start: start, End: end, Meta: b.meta}, nil
}
