package compiler

import (
	"layoutc/pkg/syntax"
	"layoutc/pkg/vm"
)

// Attributes is an append-only list of attribute descriptors. Order is kept:
// when two entries set the same attribute, the later one wins at render time.
type Attributes struct {
	buffer []syntax.Attribute
}

func (a *Attributes) AddStatic(name, value string) {
	a.buffer = append(a.buffer, &syntax.StaticAttr{Name: name, Value: value})
}

// AddDynamic wraps fn as a client-side function expression.
func (a *Attributes) AddDynamic(name string, fn vm.Function) {
	a.buffer = append(a.buffer, &syntax.DynamicAttr{Name: name, Value: syntax.ClientSide(fn)})
}

// Add appends a descriptor built elsewhere, such as a namespaced attribute.
func (a *Attributes) Add(attr syntax.Attribute) {
	a.buffer = append(a.buffer, attr)
}

// Buffer returns the descriptors in append order.
func (a Attributes) Buffer() []syntax.Attribute {
	return append([]syntax.Attribute(nil), a.buffer...)
}

func (a Attributes) Len() int { return len(a.buffer) }
