package syntax

import (
	"errors"
	"log"
	"reflect"
	"strings"
	"testing"

	"layoutc/pkg/asm"
	"layoutc/pkg/vm"
)

func opcodes(env *asm.Environment, p asm.Program) []vm.Opcode {
	var ops []vm.Opcode
	for _, instr := range env.Heap.Slice(p.Range()) {
		ops = append(ops, instr.Op)
	}
	return ops
}

func render(t *testing.T, env *asm.Environment, p asm.Program, self any) string {
	t.Helper()
	tree := vm.NewTreeBuilder()
	m := vm.NewMachine(env.Heap, tree)
	m.Self = self
	if err := m.Execute(p.Range()); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	out, err := tree.HTML()
	if err != nil {
		t.Fatalf("HTML failed: %v", err)
	}
	return out
}

func selfName(m *vm.Machine) any { return m.Self }

func TestCompileExpression(t *testing.T) {
	tests := []struct {
		name    string
		expr    Expression
		want    []vm.Opcode
		wantErr bool
	}{
		{"literal", &Literal{Value: "a"}, []vm.Opcode{vm.OpPrimitive}, false},
		{"function", ClientSide(selfName), []vm.Opcode{vm.OpFunction}, false},
		{
			"concat",
			&Concat{Parts: []Expression{&Literal{Value: "a"}, ClientSide(selfName)}},
			[]vm.Opcode{vm.OpPrimitive, vm.OpFunction, vm.OpConcat},
			false,
		},
		{"nil", nil, nil, true},
		{"nil function", &FunctionExpression{}, nil, true},
		{"bad concat part", &Concat{Parts: []Expression{nil}}, nil, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := asm.NewEnvironment()
			b := asm.New(env, asm.Meta{})
			err := CompileExpression(tc.expr, b)
			if (err != nil) != tc.wantErr {
				t.Fatalf("CompileExpression() error = %v, wantErr %v", err, tc.wantErr)
			}
			if tc.wantErr {
				return
			}
			p, err := b.Program()
			if err != nil {
				t.Fatal(err)
			}
			if got := opcodes(env, p); !reflect.DeepEqual(got, tc.want) {
				t.Errorf("opcodes = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestBlockRendersBody(t *testing.T) {
	tmpl := &Template{
		TemplateMeta: "greeting",
		Symbols:      []string{"name"},
		Body: []Statement{
			&OpenElement{Tag: "p"},
			&StaticAttr{Name: "class", Value: "hello"},
			&DynamicAttr{Name: "title", Value: ClientSide(selfName)},
			&FlushElement{},
			&Text{Value: "Hi "},
			&Append{Value: ClientSide(selfName)},
			&CloseElement{},
		},
	}
	env := asm.NewEnvironment()
	p, err := tmpl.AsBlock().CompileStatic(env)
	if err != nil {
		t.Fatalf("CompileStatic failed: %v", err)
	}
	if p.Meta.TemplateMeta != "greeting" || !reflect.DeepEqual(p.Meta.Symbols, []string{"name"}) {
		t.Errorf("Meta = %+v", p.Meta)
	}
	if got := render(t, env, p, "Ann"); got != `<p class="hello" title="Ann">Hi Ann</p>` {
		t.Errorf("HTML = %q", got)
	}
}

func TestMetaCopiesSymbols(t *testing.T) {
	tmpl := &Template{Symbols: []string{"a"}}
	meta := tmpl.Meta()
	meta.Symbols[0] = "changed"
	if tmpl.Symbols[0] != "a" {
		t.Error("Meta shares the symbol slice with the template")
	}
}

func TestCompileStatementErrors(t *testing.T) {
	tests := []struct {
		name string
		stmt Statement
	}{
		{"nil statement", nil},
		{"append nil", &Append{}},
		{"attr nil", &DynamicAttr{Name: "x"}},
		{"invoke without emitter", &Invoke{Name: "x-card"}},
		{"invoke failing", &Invoke{Name: "x-card", Emit: func(*asm.Assembler) error { return errors.New("boom") }}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b := asm.New(asm.NewEnvironment(), asm.Meta{})
			if err := CompileStatement(tc.stmt, b); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestInvokeEmitsInPlace(t *testing.T) {
	tmpl := &Template{Body: []Statement{
		&Text{Value: "a"},
		&Invoke{Name: "x-b", Emit: func(b *asm.Assembler) error {
			b.Text("b")
			return nil
		}},
		&Text{Value: "c"},
	}}
	env := asm.NewEnvironment()
	p, err := tmpl.AsBlock().CompileStatic(env)
	if err != nil {
		t.Fatal(err)
	}
	if got := render(t, env, p, nil); got != "abc" {
		t.Errorf("HTML = %q, want abc", got)
	}
}

func TestLayoutSplicesAttributes(t *testing.T) {
	tmpl := &Template{Body: []Statement{
		&Text{Value: "\n  "},
		&OpenElement{Tag: "div"},
		&StaticAttr{Name: "class", Value: "own"},
		&FlushElement{},
		&Text{Value: "body"},
		&CloseElement{},
	}}
	attrs := []Attribute{
		&StaticAttr{Name: "id", Value: "x"},
		&StaticAttr{Name: "class", Value: "forwarded"},
	}

	env := asm.NewEnvironment()
	p, err := tmpl.AsLayout("x-box", attrs).CompileDynamic(env)
	if err != nil {
		t.Fatalf("CompileDynamic failed: %v", err)
	}

	want := []vm.Opcode{
		vm.OpText,
		vm.OpPushComponentOperations,
		vm.OpOpenElementWithOperations,
		vm.OpStaticAttr,
		vm.OpDidCreateElement,
		vm.OpStaticAttr,
		vm.OpStaticAttr,
		vm.OpFlushElement,
		vm.OpText,
		vm.OpCloseElement,
		vm.OpDidRenderLayout,
	}
	if got := opcodes(env, p); !reflect.DeepEqual(got, want) {
		t.Errorf("opcodes =\n%v\nwant\n%v", got, want)
	}

	// forwarded attributes come last, so they win
	if got := render(t, env, p, nil); got != "\n  <div class=\"forwarded\" id=\"x\">body</div>" {
		t.Errorf("HTML = %q", got)
	}
}

func TestLayoutWithoutRootElement(t *testing.T) {
	var buf strings.Builder
	env := asm.NewEnvironment()
	env.Logger = log.New(&buf, "", 0)
	env.Debug = true

	tmpl := &Template{Body: []Statement{&Text{Value: "loose"}, &OpenElement{Tag: "b"}, &FlushElement{}, &CloseElement{}}}
	p, err := tmpl.AsLayout("x-loose", []Attribute{&StaticAttr{Name: "id", Value: "x"}}).CompileDynamic(env)
	if err != nil {
		t.Fatalf("CompileDynamic failed: %v", err)
	}
	for _, op := range opcodes(env, p) {
		if op == vm.OpPushComponentOperations || op == vm.OpDidCreateElement {
			t.Errorf("layout without a root element emitted %s", asm.Mnemonic(op))
		}
	}
	if !strings.Contains(buf.String(), "x-loose") || !strings.Contains(buf.String(), "dropped") {
		t.Errorf("log = %q, want a dropped-attributes message", buf.String())
	}
	if got := render(t, env, p, nil); got != "loose<b></b>" {
		t.Errorf("HTML = %q", got)
	}
}

func TestLayoutRootNeverFlushed(t *testing.T) {
	tmpl := &Template{Body: []Statement{&OpenElement{Tag: "div"}, &CloseElement{}}}
	if _, err := tmpl.AsLayout("x-bad", nil).CompileDynamic(asm.NewEnvironment()); err == nil {
		t.Error("expected an error for a root element without a flush")
	}
}
