package compiler

import (
	"layoutc/pkg/asm"
)

// LayoutBuilder collects a layout configuration through calls made by the
// component being compiled, then compiles it.
//
// Exactly one of WrapLayout or FromLayout must be called, before Tag, Attrs
// or Compile.
type LayoutBuilder struct {
	env    *asm.Environment
	layout Layout
	tag    TagBuilder
}

func NewLayoutBuilder(env *asm.Environment) *LayoutBuilder {
	return &LayoutBuilder{env: env}
}

// WrapLayout configures a layout rendered inside its own element.
func (lb *LayoutBuilder) WrapLayout(layout Template) {
	lb.configure(Layout{Shape: Wrapped, Template: layout})
}

// FromLayout configures a layout whose body owns the root element.
func (lb *LayoutBuilder) FromLayout(componentName string, layout Template) {
	lb.configure(Layout{Shape: Unwrapped, ComponentName: componentName, Template: layout})
}

func (lb *LayoutBuilder) configure(l Layout) {
	if lb.layout.Shape != 0 {
		panic("BUG: layout shape configured twice")
	}
	lb.layout = l
}

// Tag returns the tag configuration. Unwrapped layouts have no tag: asking
// for one is a bug in the caller and panics.
func (lb *LayoutBuilder) Tag() *TagBuilder {
	switch lb.layout.Shape {
	case Wrapped:
		return &lb.tag
	case Unwrapped:
		panic("BUG: cannot call Tag on an unwrapped layout")
	}
	panic("BUG: Tag called before WrapLayout")
}

func (lb *LayoutBuilder) Attrs() *Attributes {
	if lb.layout.Shape == 0 {
		panic("BUG: Attrs called before WrapLayout or FromLayout")
	}
	return &lb.layout.Attrs
}

// Layout returns the configuration collected so far.
func (lb *LayoutBuilder) Layout() (Layout, error) {
	if lb.layout.Shape == 0 {
		return Layout{}, ErrNotConfigured
	}
	tag, err := lb.tag.Tag()
	if err != nil {
		return Layout{}, err
	}
	l := lb.layout
	l.Tag = tag
	return l, nil
}

// Compile compiles the collected configuration. Nothing is cached: each call
// emits a new program.
func (lb *LayoutBuilder) Compile() (asm.Program, error) {
	l, err := lb.Layout()
	if err != nil {
		return asm.Program{}, err
	}
	return Compile(l, lb.env)
}

// CompilableLayout is a component that describes its own layout.
type CompilableLayout interface {
	Compile(builder *LayoutBuilder)
}

// CompileLayout lets c configure a fresh builder and compiles the result.
func CompileLayout(c CompilableLayout, env *asm.Environment) (asm.Program, error) {
	builder := NewLayoutBuilder(env)
	c.Compile(builder)
	return builder.Compile()
}
