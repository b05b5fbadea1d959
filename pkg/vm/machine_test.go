package vm

import (
	"errors"
	"math"
	"strings"
	"testing"
)

// program stores consts and code in a fresh heap. Operands in code refer
// to the constants by index and to addresses relative to 0.
func program(consts []any, code ...Instruction) (*Heap, Range) {
	h := NewHeap()
	for _, c := range consts {
		h.Constant(c)
	}
	return h, h.Append(code)
}

func run(t *testing.T, h *Heap, r Range) (*Machine, *TreeBuilder) {
	t.Helper()
	tree := NewTreeBuilder()
	m := NewMachine(h, tree)
	if err := m.Execute(r); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	return m, tree
}

func TestTruthy(t *testing.T) {
	tests := []struct {
		v    any
		want bool
	}{
		{nil, false},
		{false, false},
		{true, true},
		{"", false},
		{"div", true},
		{0, false},
		{1, true},
		{int32(0), false},
		{int64(-1), true},
		{int8(0), false},
		{int16(2), true},
		{uint(0), false},
		{uint8(0), false},
		{uint16(0), false},
		{uint32(3), true},
		{uint64(0), false},
		{float32(0), false},
		{float32(math.NaN()), false},
		{float32(0.25), true},
		{0.0, false},
		{math.NaN(), false},
		{0.5, true},
		{[]any{}, false},
		{[]any{nil}, true},
		{map[string]any{}, false},
		{map[string]any{"a": 1}, true},
		{struct{}{}, true},
	}
	for _, tc := range tests {
		if got := Truthy(tc.v); got != tc.want {
			t.Errorf("Truthy(%#v) = %v, want %v", tc.v, got, tc.want)
		}
	}
}

func TestFetchLoad(t *testing.T) {
	h, r := program([]any{7},
		Instruction{Op: OpPrimitive, A: 0},
		Instruction{Op: OpLoad, A: int32(S0)},
		Instruction{Op: OpFetch, A: int32(S0)},
		Instruction{Op: OpFetch, A: int32(S0)},
	)
	m, _ := run(t, h, r)
	if m.StackDepth() != 2 {
		t.Errorf("stack depth = %d, want 2", m.StackDepth())
	}
	if m.Register(S0) != 7 {
		t.Errorf("s0 = %v, want 7", m.Register(S0))
	}
}

func TestMachineRegistersAreNotAddressable(t *testing.T) {
	for _, op := range []Opcode{OpFetch, OpLoad} {
		h, r := program([]any{1},
			Instruction{Op: OpPrimitive, A: 0},
			Instruction{Op: op, A: int32(PC)},
		)
		m := NewMachine(h, NewTreeBuilder())
		if err := m.Execute(r); !errors.Is(err, ErrMachine) {
			t.Errorf("%02X pc: error = %v, want ErrMachine", uint8(op), err)
		}
	}

	m := NewMachine(NewHeap(), nil)
	m.SetRegister(SP, 99)
	if m.Register(SP) != 0 {
		t.Errorf("SetRegister wrote a machine register")
	}
}

func TestTestAndJumps(t *testing.T) {
	tests := []struct {
		name  string
		value any
		op    Opcode
		want  string
	}{
		{"unless truthy falls through", "x", OpJumpUnless, "ab"},
		{"unless falsy jumps", "", OpJumpUnless, "b"},
		{"if truthy jumps", 1, OpJumpIf, "b"},
		{"if falsy falls through", 0, OpJumpIf, "ab"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h, r := program([]any{tc.value, "a", "b"},
				Instruction{Op: OpPrimitive, A: 0},
				Instruction{Op: OpTest, A: int32(TestSimple)},
				Instruction{Op: tc.op, A: 4},
				Instruction{Op: OpText, A: 1},
				Instruction{Op: OpText, A: 2},
			)
			m, tree := run(t, h, r)
			got, _ := tree.HTML()
			if got != tc.want {
				t.Errorf("output = %q, want %q", got, tc.want)
			}
			if m.StackDepth() != 0 {
				t.Errorf("jump left %d values on the stack", m.StackDepth())
			}
		})
	}
}

func TestFrames(t *testing.T) {
	h, r := program([]any{"x"},
		Instruction{Op: OpPushFrame},       // 0
		Instruction{Op: OpReturnTo, A: 5},  // 1
		Instruction{Op: OpPrimitive, A: 0}, // 2
		Instruction{Op: OpReturn},          // 3
		Instruction{Op: OpPrimitive, A: 0}, // 4, skipped
		Instruction{Op: OpPopFrame},        // 5
	)
	m, _ := run(t, h, r)
	if m.StackDepth() != 0 {
		t.Errorf("pop frame left %d values", m.StackDepth())
	}
	if m.FrameDepth() != 0 {
		t.Errorf("frame depth = %d, want 0", m.FrameDepth())
	}
	if m.Register(RA) != 0 {
		t.Errorf("ra = %v, want the saved 0", m.Register(RA))
	}
}

func TestExecuteChecksBalance(t *testing.T) {
	tests := []struct {
		name string
		code []Instruction
		want string
	}{
		{"frame left open", []Instruction{{Op: OpPushFrame}}, "frames"},
		{"region left open", []Instruction{{Op: OpEnter, A: 2}}, "regions"},
		{"exit without enter", []Instruction{{Op: OpExit}}, "exit without enter"},
		{"pop frame without push", []Instruction{{Op: OpPopFrame}}, "empty frame stack"},
		{"stack underflow", []Instruction{{Op: OpDup}}, "underflow"},
		{"jump outside", []Instruction{{Op: OpJump, A: 40}}, "outside"},
		{"unknown opcode", []Instruction{{Op: Opcode(0xEE)}}, "unknown opcode"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h, r := program(nil, tc.code...)
			err := NewMachine(h, NewTreeBuilder()).Execute(r)
			if !errors.Is(err, ErrMachine) {
				t.Fatalf("error = %v, want ErrMachine", err)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestElements(t *testing.T) {
	h, r := program([]any{
		"div",
		&Attr{Name: "class", Value: "box"},
		&Attr{Name: "title"},
		&Attr{Name: "hidden"},
		"id-",
		42,
		&Attr{Name: "id"},
	},
		Instruction{Op: OpPushComponentOperations},
		Instruction{Op: OpOpenElementWithOperations, A: 0},
		Instruction{Op: OpStaticAttr, A: 1},
		Instruction{Op: OpPrimitive, A: 0},
		Instruction{Op: OpDynamicAttr, A: 2},
		Instruction{Op: OpFunction, A: 7},
		Instruction{Op: OpDynamicAttr, A: 3},
		Instruction{Op: OpPrimitive, A: 4},
		Instruction{Op: OpPrimitive, A: 5},
		Instruction{Op: OpConcat, A: 2},
		Instruction{Op: OpDynamicAttr, A: 6},
		Instruction{Op: OpFlushElement},
		Instruction{Op: OpFunction, A: 7},
		Instruction{Op: OpAppend},
		Instruction{Op: OpPrimitive, A: 5},
		Instruction{Op: OpAppend},
		Instruction{Op: OpCloseElement},
	)
	h.Constant(Function(func(m *Machine) any { return nil }))

	_, tree := run(t, h, r)
	got, err := tree.HTML()
	if err != nil {
		t.Fatal(err)
	}
	if want := `<div class="box" title="div" id="id-42">42</div>`; got != want {
		t.Errorf("HTML = %q, want %q", got, want)
	}
	if tree.Operations != 1 {
		t.Errorf("elements with operations = %d, want 1", tree.Operations)
	}
}

func TestDynamicElement(t *testing.T) {
	h, r := program([]any{"section"},
		Instruction{Op: OpPrimitive, A: 0},
		Instruction{Op: OpPushComponentOperations},
		Instruction{Op: OpOpenDynamicElement},
		Instruction{Op: OpFlushElement},
		Instruction{Op: OpCloseElement},
	)
	_, tree := run(t, h, r)
	if got, _ := tree.HTML(); got != "<section></section>" {
		t.Errorf("HTML = %q", got)
	}
	if tree.Operations != 1 {
		t.Errorf("dynamic element did not receive component operations")
	}
}

func TestHelperArguments(t *testing.T) {
	var seen *Arguments
	helper := Helper(func(m *Machine, args *Arguments) any {
		seen = args
		return args.Named["suffix"]
	})
	h, r := program([]any{"a", "b", &ArgsShape{Positional: 1, Names: []string{"suffix"}}, helper},
		Instruction{Op: OpPrimitive, A: 0},
		Instruction{Op: OpPrimitive, A: 1},
		Instruction{Op: OpPushArgs, A: 2},
		Instruction{Op: OpHelper, A: 3},
		Instruction{Op: OpLoad, A: int32(T0)},
	)
	m, _ := run(t, h, r)
	if m.Register(T0) != "b" {
		t.Errorf("helper result = %v, want b", m.Register(T0))
	}
	if len(seen.Positional) != 1 || seen.Positional[0] != "a" {
		t.Errorf("positional = %v, want [a]", seen.Positional)
	}
}

type recordingManager struct {
	rendered []string
	args     []*Arguments
}

func (rm *recordingManager) Render(m *Machine, def ComponentDefinition, args *Arguments) error {
	rm.rendered = append(rm.rendered, def.ComponentName())
	rm.args = append(rm.args, args)
	m.Builder().AppendText(def.ComponentName())
	return nil
}

type definition struct {
	name    string
	manager ComponentManager
}

func (d *definition) ComponentName() string     { return d.name }
func (d *definition) Manager() ComponentManager { return d.manager }

func TestInvokeComponent(t *testing.T) {
	mgr := &recordingManager{}
	def := &definition{name: "card", manager: mgr}
	h, r := program([]any{def, "v", &ArgsShape{Names: []string{"title"}}},
		Instruction{Op: OpPushComponentManager, A: 0},
		Instruction{Op: OpPrimitive, A: 1},
		Instruction{Op: OpPushArgs, A: 2},
		Instruction{Op: OpInvokeComponent, A: -1},
	)
	m, tree := run(t, h, r)
	if len(mgr.rendered) != 1 || mgr.args[0].Named["title"] != "v" {
		t.Fatalf("rendered %v with %v", mgr.rendered, mgr.args)
	}
	if got, _ := tree.HTML(); got != "card" {
		t.Errorf("HTML = %q, want card", got)
	}
	if m.StackDepth() != 0 {
		t.Errorf("stack depth = %d, want 0", m.StackDepth())
	}
}

func TestPushDynamicComponentManagerChecksType(t *testing.T) {
	h, r := program([]any{"not a component"},
		Instruction{Op: OpPrimitive, A: 0},
		Instruction{Op: OpPushDynamicComponentManager},
	)
	if err := NewMachine(h, NewTreeBuilder()).Execute(r); err == nil {
		t.Error("expected an error for a non-definition")
	}
}

type observer struct {
	created, rendered int
}

func (o *observer) DidCreateElement(m *Machine) { o.created++ }
func (o *observer) DidRenderLayout(m *Machine)  { o.rendered++ }

func TestObservers(t *testing.T) {
	h, r := program(nil,
		Instruction{Op: OpDidCreateElement, A: int32(S0)},
		Instruction{Op: OpDidRenderLayout, A: int32(S0)},
		Instruction{Op: OpDidRenderLayout, A: int32(S1)},
	)
	o := &observer{}
	m := NewMachine(h, NewTreeBuilder())
	m.SetRegister(S0, o)
	if err := m.Execute(r); err != nil {
		t.Fatal(err)
	}
	if o.created != 1 || o.rendered != 1 {
		t.Errorf("created %d, rendered %d; want 1, 1", o.created, o.rendered)
	}
}

func TestInvokeStaticRestoresPC(t *testing.T) {
	h := NewHeap()
	text := h.Constant("inner")
	block := h.Append([]Instruction{{Op: OpText, A: text}})
	outer := h.Append([]Instruction{
		{Op: OpInvokeStatic, A: int32(block.Start), B: int32(block.End)},
		{Op: OpInvokeStatic, A: int32(block.Start), B: int32(block.End)},
	})
	_, tree := run(t, h, outer)
	if got, _ := tree.HTML(); got != "innerinner" {
		t.Errorf("HTML = %q, want innerinner", got)
	}
}
