// Package syntax holds the wire format of compiled templates, expressions and
// statements already parsed upstream, and the sub-compiler that lowers them
// to machine instructions.
package syntax

import (
	"fmt"

	"layoutc/pkg/asm"
	"layoutc/pkg/vm"
)

// AttrsBlock is the symbol reserved for attributes forwarded into a layout body.
const AttrsBlock = "&attrs"

// Expression nodes leave exactly one value on the stack.
type Expression interface {
	expressionNode()
	String() string
}

// Literal is a constant value.
type Literal struct {
	Value any
}

func (*Literal) expressionNode()  {}
func (l *Literal) String() string { return fmt.Sprintf("%#v", l.Value) }

// FunctionExpression is a client-side expression: a Go function evaluated by
// the machine at render time.
type FunctionExpression struct {
	Fn vm.Function
}

func (*FunctionExpression) expressionNode() {}
func (*FunctionExpression) String() string  { return "fn(...)" }

// ClientSide wraps fn as a client-side function expression.
func ClientSide(fn vm.Function) *FunctionExpression {
	return &FunctionExpression{Fn: fn}
}

// Concat joins the string forms of its parts.
type Concat struct {
	Parts []Expression
}

func (*Concat) expressionNode() {}
func (c *Concat) String() string {
	return fmt.Sprintf("concat%v", c.Parts)
}

// Statement nodes emit content or element structure.
type Statement interface {
	statementNode()
}

type Text struct {
	Value string
}

// Append renders the value of an expression as text.
type Append struct {
	Value Expression
}

type OpenElement struct {
	Tag string
}

type FlushElement struct{}

type CloseElement struct{}

// Attribute is an attribute descriptor: a StaticAttr or a DynamicAttr.
type Attribute interface {
	Statement
	AttrName() string
}

type StaticAttr struct {
	Name      string
	Value     string
	Namespace string
}

type DynamicAttr struct {
	Name      string
	Value     Expression
	Namespace string
}

// Invoke inserts a component. Emit writes the invocation, usually through
// the compiler's component builder.
type Invoke struct {
	Name string
	Emit func(b *asm.Assembler) error
}

func (*Text) statementNode()         {}
func (*Append) statementNode()       {}
func (*OpenElement) statementNode()  {}
func (*FlushElement) statementNode() {}
func (*CloseElement) statementNode() {}
func (*StaticAttr) statementNode()   {}
func (*DynamicAttr) statementNode()  {}
func (*Invoke) statementNode()       {}

func (a *StaticAttr) AttrName() string  { return a.Name }
func (a *DynamicAttr) AttrName() string { return a.Name }
