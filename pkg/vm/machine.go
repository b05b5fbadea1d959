package vm

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var ErrMachine = errors.New("machine error")

type frame struct {
	ra int
	sp int
}

// Machine is a reference implementation of the stack-based rendering
// machine. It executes programs straight from a Heap and drives an
// ElementBuilder.
type Machine struct {
	heap    *Heap
	builder ElementBuilder

	stack  []any
	values [registerCount]any

	pc int
	ra int

	frames  []frame
	regions []int32

	// set by OpPushComponentOperations, consumed by the next open
	operations bool

	// Self is the scope value visible to client-side functions.
	Self any
}

func NewMachine(heap *Heap, builder ElementBuilder) *Machine {
	return &Machine{
		heap:    heap,
		builder: builder,
		stack:   make([]any, 0, 16),
	}
}

func (m *Machine) Heap() *Heap { return m.heap }

func (m *Machine) Builder() ElementBuilder { return m.builder }

// Register returns the content of r. Machine registers report their
// numeric state: PC and RA addresses, FP the frame depth, SP the stack depth.
func (m *Machine) Register(r Register) any {
	switch r {
	case PC:
		return m.pc
	case RA:
		return m.ra
	case FP:
		return len(m.frames)
	case SP:
		return len(m.stack)
	}
	if r < registerCount {
		return m.values[r]
	}
	return nil
}

// SetRegister writes a value register. Machine registers are read-only.
func (m *Machine) SetRegister(r Register, v any) {
	if r.IsValue() {
		m.values[r] = v
	}
}

func (m *Machine) StackDepth() int { return len(m.stack) }

func (m *Machine) FrameDepth() int { return len(m.frames) }

// Execute runs r as a top-level program: frames and regions opened by the
// program must all be closed when it ends.
func (m *Machine) Execute(r Range) error {
	frames, regions := len(m.frames), len(m.regions)
	if err := m.Call(r); err != nil {
		return err
	}
	if len(m.frames) != frames {
		return fmt.Errorf("%w: %d frames left open by %s", ErrMachine, len(m.frames)-frames, r)
	}
	if len(m.regions) != regions {
		return fmt.Errorf("%w: %d regions left open by %s", ErrMachine, len(m.regions)-regions, r)
	}
	return nil
}

// Call runs r on the current stack and registers, the way a nested block or
// layout is invoked. PC and RA are restored afterwards.
func (m *Machine) Call(r Range) error {
	savedPC, savedRA := m.pc, m.ra
	defer func() {
		m.pc, m.ra = savedPC, savedRA
	}()

	m.pc = r.Start
	for m.pc >= r.Start && m.pc < r.End {
		instr, ok := m.heap.At(m.pc)
		if !ok {
			return fmt.Errorf("%w: no instruction at %d", ErrMachine, m.pc)
		}
		addr := m.pc
		m.pc++
		if err := m.step(instr); err != nil {
			return fmt.Errorf("%w at %d (%02X): %v", ErrMachine, addr, uint8(instr.Op), err)
		}
	}
	if m.pc != r.End {
		return fmt.Errorf("%w: jumped to %d outside %s", ErrMachine, m.pc, r)
	}
	return nil
}

func (m *Machine) push(v any) {
	m.stack = append(m.stack, v)
}

func (m *Machine) pop() (any, error) {
	if len(m.stack) == 0 {
		return nil, errors.New("stack underflow")
	}
	v := m.stack[len(m.stack)-1]
	m.stack = m.stack[:len(m.stack)-1]
	return v, nil
}

func (m *Machine) peek() (any, error) {
	if len(m.stack) == 0 {
		return nil, errors.New("stack underflow")
	}
	return m.stack[len(m.stack)-1], nil
}

func (m *Machine) constant(i int32) (any, error) {
	v, ok := m.heap.ConstantAt(i)
	if !ok {
		return nil, fmt.Errorf("no constant %d", i)
	}
	return v, nil
}

func constantAs[T any](m *Machine, i int32) (T, error) {
	var zero T
	v, err := m.constant(i)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("constant %d is %T, want %T", i, v, zero)
	}
	return t, nil
}

func (m *Machine) step(instr Instruction) error {
	switch instr.Op {
	case OpNop:
		// No operation.

	case OpPrimitive:
		v, err := m.constant(instr.A)
		if err != nil {
			return err
		}
		m.push(v)

	case OpFunction:
		fn, err := constantAs[Function](m, instr.A)
		if err != nil {
			return err
		}
		m.push(fn(m))

	case OpConcat:
		n := int(instr.A)
		if n > len(m.stack) {
			return errors.New("stack underflow")
		}
		var sb strings.Builder
		for _, v := range m.stack[len(m.stack)-n:] {
			sb.WriteString(toString(v))
		}
		m.stack = m.stack[:len(m.stack)-n]
		m.push(sb.String())

	case OpDup:
		v, err := m.peek()
		if err != nil {
			return err
		}
		m.push(v)

	case OpPop:
		n := int(instr.A)
		if n > len(m.stack) {
			return errors.New("stack underflow")
		}
		m.stack = m.stack[:len(m.stack)-n]

	case OpFetch:
		r := Register(instr.A)
		if !r.IsValue() {
			return fmt.Errorf("cannot fetch %s", r)
		}
		m.push(m.values[r])

	case OpLoad:
		r := Register(instr.A)
		if !r.IsValue() {
			return fmt.Errorf("cannot load %s", r)
		}
		v, err := m.pop()
		if err != nil {
			return err
		}
		m.values[r] = v

	case OpTest:
		v, err := m.pop()
		if err != nil {
			return err
		}
		m.push(Truthy(v))

	case OpJump:
		m.pc = int(instr.A)

	case OpJumpIf, OpJumpUnless:
		v, err := m.pop()
		if err != nil {
			return err
		}
		if Truthy(v) == (instr.Op == OpJumpIf) {
			m.pc = int(instr.A)
		}

	case OpPushFrame:
		m.frames = append(m.frames, frame{ra: m.ra, sp: len(m.stack)})

	case OpPopFrame:
		if len(m.frames) == 0 {
			return errors.New("pop of empty frame stack")
		}
		f := m.frames[len(m.frames)-1]
		m.frames = m.frames[:len(m.frames)-1]
		if f.sp > len(m.stack) {
			return errors.New("frame below stack pointer")
		}
		m.stack = m.stack[:f.sp]
		m.ra = f.ra

	case OpReturnTo:
		m.ra = int(instr.A)

	case OpReturn:
		m.pc = m.ra

	case OpEnter:
		m.regions = append(m.regions, instr.A)

	case OpExit:
		if len(m.regions) == 0 {
			return errors.New("exit without enter")
		}
		m.regions = m.regions[:len(m.regions)-1]

	case OpPushArgs:
		shape, err := constantAs[*ArgsShape](m, instr.A)
		if err != nil {
			return err
		}
		args, err := m.popArguments(shape)
		if err != nil {
			return err
		}
		m.push(args)

	case OpHelper:
		fn, err := constantAs[Helper](m, instr.A)
		if err != nil {
			return err
		}
		args, err := m.popArgs()
		if err != nil {
			return err
		}
		m.push(fn(m, args))

	case OpPushComponentOperations:
		m.operations = true

	case OpOpenElement, OpOpenElementWithOperations:
		tag, err := constantAs[string](m, instr.A)
		if err != nil {
			return err
		}
		m.builder.OpenElement(tag, instr.Op == OpOpenElementWithOperations)
		m.operations = false

	case OpOpenDynamicElement:
		v, err := m.pop()
		if err != nil {
			return err
		}
		m.builder.OpenElement(toString(v), m.operations)
		m.operations = false

	case OpStaticAttr:
		attr, err := constantAs[*Attr](m, instr.A)
		if err != nil {
			return err
		}
		m.builder.SetAttribute(attr.Name, attr.Value, attr.Namespace)

	case OpDynamicAttr:
		attr, err := constantAs[*Attr](m, instr.A)
		if err != nil {
			return err
		}
		v, err := m.pop()
		if err != nil {
			return err
		}
		// null and false remove the attribute
		if v == nil || v == false {
			return nil
		}
		m.builder.SetAttribute(attr.Name, toString(v), attr.Namespace)

	case OpFlushElement:
		m.builder.FlushElement()

	case OpCloseElement:
		m.builder.CloseElement()

	case OpText:
		text, err := constantAs[string](m, instr.A)
		if err != nil {
			return err
		}
		m.builder.AppendText(text)

	case OpAppend:
		v, err := m.pop()
		if err != nil {
			return err
		}
		if v != nil {
			m.builder.AppendText(toString(v))
		}

	case OpDidCreateElement:
		if o, ok := m.Register(Register(instr.A)).(ElementCreatedObserver); ok {
			o.DidCreateElement(m)
		}

	case OpDidRenderLayout:
		if o, ok := m.Register(Register(instr.A)).(LayoutRenderedObserver); ok {
			o.DidRenderLayout(m)
		}

	case OpInvokeStatic:
		return m.Call(Range{Start: int(instr.A), End: int(instr.B)})

	case OpPushComponentManager:
		def, err := constantAs[ComponentDefinition](m, instr.A)
		if err != nil {
			return err
		}
		m.push(def)

	case OpPushDynamicComponentManager:
		v, err := m.peek()
		if err != nil {
			return err
		}
		if _, ok := v.(ComponentDefinition); !ok {
			return fmt.Errorf("%T is not a component definition", v)
		}

	case OpInvokeComponent:
		args, err := m.popArgs()
		if err != nil {
			return err
		}
		v, err := m.pop()
		if err != nil {
			return err
		}
		def, ok := v.(ComponentDefinition)
		if !ok {
			return fmt.Errorf("%T is not a component definition", v)
		}
		mgr := def.Manager()
		if mgr == nil {
			return fmt.Errorf("component %q has no manager", def.ComponentName())
		}
		if err := mgr.Render(m, def, args); err != nil {
			return fmt.Errorf("render %q: %w", def.ComponentName(), err)
		}

	default:
		return fmt.Errorf("unknown opcode 0x%02X", uint8(instr.Op))
	}
	return nil
}

func (m *Machine) popArgs() (*Arguments, error) {
	v, err := m.pop()
	if err != nil {
		return nil, err
	}
	args, ok := v.(*Arguments)
	if !ok {
		return nil, fmt.Errorf("%T is not an argument list", v)
	}
	return args, nil
}

func (m *Machine) popArguments(shape *ArgsShape) (*Arguments, error) {
	n := shape.size()
	if n > len(m.stack) {
		return nil, errors.New("stack underflow")
	}
	values := m.stack[len(m.stack)-n:]
	args := &Arguments{
		Positional: append([]any(nil), values[:shape.Positional]...),
		Named:      make(map[string]any, len(shape.Names)),
		Default:    shape.Default,
		Inverse:    shape.Inverse,
	}
	for i, name := range shape.Names {
		args.Named[name] = values[shape.Positional+i]
	}
	m.stack = m.stack[:len(m.stack)-n]
	return args, nil
}

// Truthy is the "simple" test: nil, false, the empty string, zero and empty
// collections are false, everything else is true.
func Truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case int:
		return x != 0
	case int8:
		return x != 0
	case int16:
		return x != 0
	case int32:
		return x != 0
	case int64:
		return x != 0
	case uint:
		return x != 0
	case uint8:
		return x != 0
	case uint16:
		return x != 0
	case uint32:
		return x != 0
	case uint64:
		return x != 0
	case float32:
		return x != 0 && !math.IsNaN(float64(x))
	case float64:
		return x != 0 && !math.IsNaN(x)
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	}
	return true
}

func toString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprint(v)
}
