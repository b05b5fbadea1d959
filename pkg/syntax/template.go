package syntax

import (
	"errors"
	"fmt"
	"strings"

	"layoutc/pkg/asm"
	"layoutc/pkg/vm"
)

// Template is a parsed template body.
type Template struct {
	TemplateMeta any
	Symbols      []string
	HasEval      bool
	Body         []Statement
}

// Meta returns the compilation metadata of t. The symbol slice is a copy.
func (t *Template) Meta() asm.Meta {
	return asm.Meta{
		TemplateMeta: t.TemplateMeta,
		Symbols:      append([]string(nil), t.Symbols...),
		HasEval:      t.HasEval,
	}
}

// AsBlock returns t as an invocable block.
func (t *Template) AsBlock() asm.Block {
	return &block{template: t}
}

// AsLayout returns t as the layout of componentName, with attrs forwarded
// onto its root element.
func (t *Template) AsLayout(componentName string, attrs []Attribute) asm.Compilable {
	return &layout{template: t, componentName: componentName, attrs: attrs}
}

type block struct {
	template *Template
}

func (blk *block) CompileStatic(env *asm.Environment) (asm.Program, error) {
	b := asm.New(env, blk.template.Meta())
	b.StartLabels()
	if err := CompileStatements(blk.template.Body, b); err != nil {
		return asm.Program{}, err
	}
	b.StopLabels()
	return b.Program()
}

type layout struct {
	template      *Template
	componentName string
	attrs         []Attribute
}

// CompileDynamic compiles the body as a layout that owns no wrapping
// element. The body's root element, when it has one, is opened with
// component operations and receives the forwarded attributes after its own.
func (l *layout) CompileDynamic(env *asm.Environment) (asm.Program, error) {
	body := l.template.Body
	root := rootElement(body)
	if root < 0 && len(l.attrs) > 0 && env != nil && env.Logger != nil && env.Debug {
		env.Logger.Printf("layout %s: no root element, %d forwarded attributes dropped", l.componentName, len(l.attrs))
	}

	b := asm.New(env, l.template.Meta())
	b.StartLabels()

	inRootHead := false
	for i, s := range body {
		switch {
		case i == root:
			b.PushComponentOperations()
			b.OpenElementWithOperations(s.(*OpenElement).Tag)
			inRootHead = true
			continue

		case inRootHead:
			if _, ok := s.(*FlushElement); ok {
				b.DidCreateElement(vm.S0)
				for _, attr := range l.attrs {
					if err := CompileStatement(attr, b); err != nil {
						return asm.Program{}, fmt.Errorf("layout %s: %w", l.componentName, err)
					}
				}
				b.FlushElement()
				inRootHead = false
				continue
			}
		}

		if err := CompileStatement(s, b); err != nil {
			return asm.Program{}, fmt.Errorf("layout %s: statement %d: %w", l.componentName, i, err)
		}
	}
	if inRootHead {
		return asm.Program{}, fmt.Errorf("layout %s: %w", l.componentName, errors.New("root element is never flushed"))
	}

	b.DidRenderLayout(vm.S0)
	b.StopLabels()

	p, err := b.Program()
	if err != nil {
		return asm.Program{}, fmt.Errorf("layout %s: %w", l.componentName, err)
	}
	asm.DebugSlice(env, p.Range())
	return p, nil
}

// rootElement returns the index of the first top-level element, or -1 when
// content other than whitespace comes first.
func rootElement(body []Statement) int {
	for i, s := range body {
		switch n := s.(type) {
		case *OpenElement:
			return i
		case *Text:
			if strings.TrimSpace(n.Value) != "" {
				return -1
			}
		default:
			return -1
		}
	}
	return -1
}
